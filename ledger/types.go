/*
Package ledger provides the budget ledger data model.

PURPOSE:
  This package contains the pure, I/O-free core of the budget engine:
  the three linked entities (LineItem, PurchaseRequest, Transaction),
  the Amount value type, and the functions that compute derived totals
  (actual, remaining, variance) from a snapshot of entities.

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount: Exact currency quantity in minor units (cents)
  - CategoryType: Whether a line item tracks expense or revenue
  - ApprovalStatus: Purchase request workflow state
  - Typed identifiers for the three entities

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal - no float64 anywhere in the math
  2. Derivation: Totals are always recomputed from child records, never
     stored and mutated independently
  3. Type Safety: Strong typing for IDs prevents mixing entity IDs
  4. Determinism: Presentation ordering is fully specified, ties included

USAGE:
  estimated := ledger.Cents(100000) // $1000.00
  item := ledger.LineItem{
      ID:        "li-office",
      Name:      "Office supplies",
      Category:  ledger.CategoryExpense,
      Estimated: estimated,
  }

SEE ALSO:
  - entities.go: Entity definitions and aggregates
  - compute.go: Derived total computation
  - errors.go: Error taxonomy
*/
package ledger

import (
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Exact currency quantity
// =============================================================================

// Amount is a currency quantity with exact fixed-point arithmetic.
// Amounts are constructed from minor units (cents) or decimal strings;
// float64 never enters the computation path.
type Amount struct {
	value decimal.Decimal
}

// Cents builds an Amount from minor units. Cents(12345) is 123.45.
func Cents(minor int64) Amount {
	return Amount{value: decimal.New(minor, -2)}
}

// ParseAmount parses a decimal string such as "123.45".
// More than two fractional digits is rejected: the currency's native
// precision is the finest grain the ledger stores.
func ParseAmount(s string) (Amount, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return Amount{}, &FieldError{Field: "amount", Reason: "not a valid decimal number"}
	}
	if d.Exponent() < -2 {
		return Amount{}, &FieldError{Field: "amount", Reason: "more than two fractional digits"}
	}
	return Amount{value: d}, nil
}

// Zero is the zero amount.
var Zero = Amount{value: decimal.Zero}

// Cents returns the amount in minor units.
func (a Amount) Cents() int64 { return a.value.Mul(decimal.New(1, 2)).IntPart() }

func (a Amount) Add(b Amount) Amount       { return Amount{value: a.value.Add(b.value)} }
func (a Amount) Sub(b Amount) Amount       { return Amount{value: a.value.Sub(b.value)} }
func (a Amount) Neg() Amount               { return Amount{value: a.value.Neg()} }
func (a Amount) IsZero() bool              { return a.value.IsZero() }
func (a Amount) IsNegative() bool          { return a.value.IsNegative() }
func (a Amount) IsPositive() bool          { return a.value.IsPositive() }
func (a Amount) Equal(b Amount) bool       { return a.value.Equal(b.value) }
func (a Amount) LessThan(b Amount) bool    { return a.value.LessThan(b.value) }
func (a Amount) GreaterThan(b Amount) bool { return a.value.GreaterThan(b.value) }

// String renders with exactly two fractional digits, sign preserved.
// Callers must render sign explicitly; nothing in this package clamps.
func (a Amount) String() string { return a.value.StringFixed(2) }

// =============================================================================
// IDENTIFIERS
// =============================================================================

type LineItemID string
type PurchaseRequestID string
type TransactionID string

// =============================================================================
// CATEGORY AND STATUS
// =============================================================================

// CategoryType is the direction of money through a line item.
// Expense line items reach their transactions through approved purchase
// requests; revenue line items attach transactions directly.
type CategoryType string

const (
	CategoryExpense CategoryType = "expense"
	CategoryRevenue CategoryType = "revenue"
)

func (c CategoryType) Valid() bool {
	return c == CategoryExpense || c == CategoryRevenue
}

// ApprovalStatus is the workflow state of a purchase request.
// All three states are mutually reachable; the transition table lives in
// the approval package.
type ApprovalStatus string

const (
	StatusPending  ApprovalStatus = "Pending"
	StatusApproved ApprovalStatus = "Approved"
	StatusRejected ApprovalStatus = "Rejected"
)

func (s ApprovalStatus) Valid() bool {
	return s == StatusPending || s == StatusApproved || s == StatusRejected
}

// PaymentMethod records how a transaction was settled. Free-form values
// are accepted; these are the ones the forms offer.
type PaymentMethod string

const (
	PaymentCheck    PaymentMethod = "check"
	PaymentCard     PaymentMethod = "card"
	PaymentCash     PaymentMethod = "cash"
	PaymentTransfer PaymentMethod = "transfer"
)
