/*
entities.go - The three linked budget entities and their aggregate

PURPOSE:
  Defines LineItem, PurchaseRequest, and Transaction, plus the Aggregate
  that groups a line item with every record reachable from it. The
  aggregate is the unit of visibility for the coordinator: snapshots,
  optimistic projections, and refetches all operate on whole aggregates.

OWNERSHIP:
  LineItem ──< PurchaseRequest ──< Transaction   (expense)
  LineItem ──────────────────────< Transaction   (revenue)

  No entity has two owners; there are no cycles. Deleting an owner with
  live children is a persistence-layer guard, not modeled here.

SEE ALSO:
  - compute.go: Derived totals over these entities
  - coordinator: Snapshot/rollback over Aggregate
*/
package ledger

import "time"

// =============================================================================
// LINE ITEM - A budget bucket (expense or revenue)
// =============================================================================

type LineItem struct {
	ID          LineItemID
	Name        string
	Description string
	Vendor      string
	Category    CategoryType

	// Estimated is set by the budget owner and may change at any time.
	Estimated Amount

	CreatedAt time.Time
	UpdatedAt time.Time
}

// =============================================================================
// PURCHASE REQUEST - Approval-gated spending ceiling against a line item
// =============================================================================

type PurchaseRequest struct {
	ID          PurchaseRequestID
	LineItemID  LineItemID
	Description string
	Vendor      string

	// Amount is the requested ceiling, not a recorded movement of money.
	Amount Amount

	RequestedDate time.Time
	Status        ApprovalStatus

	// Set iff Status == StatusApproved.
	ApprovedDate *time.Time
	// Set iff Status == StatusRejected.
	RejectionReason *string

	RequestedBy string
	// Set iff the request has been decided at least once.
	DecidedBy *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// =============================================================================
// TRANSACTION - A single recorded movement of money
// =============================================================================

// Transaction is owned by exactly one of PurchaseRequestID (expense) or
// LineItemID (revenue). Amount is always positive; direction is implied
// by the owning line item's category.
type Transaction struct {
	ID          TransactionID
	Description string

	// Exactly one of these is set.
	PurchaseRequestID PurchaseRequestID
	LineItemID        LineItemID

	Amount Amount
	Date   time.Time
	Method PaymentMethod

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsRevenue reports whether the transaction attaches directly to a line
// item rather than through a purchase request.
func (t Transaction) IsRevenue() bool { return t.PurchaseRequestID == "" }

// =============================================================================
// AGGREGATE - A line item with everything reachable from it
// =============================================================================

// Aggregate is the full reachable state of one line item: the item, its
// purchase requests, and all transactions (through requests for expense,
// direct for revenue). Derived totals are computed by Totals in
// compute.go, never written by hand.
type Aggregate struct {
	LineItem LineItem
	Requests []PurchaseRequest
	// Transactions holds both request-owned and direct transactions.
	Transactions []Transaction
}

// Request returns the purchase request with the given id, or nil.
func (a *Aggregate) Request(id PurchaseRequestID) *PurchaseRequest {
	for i := range a.Requests {
		if a.Requests[i].ID == id {
			return &a.Requests[i]
		}
	}
	return nil
}

// Transaction returns the transaction with the given id, or nil.
func (a *Aggregate) Transaction(id TransactionID) *Transaction {
	for i := range a.Transactions {
		if a.Transactions[i].ID == id {
			return &a.Transactions[i]
		}
	}
	return nil
}

// RequestTransactions returns the transactions owned by one request.
func (a *Aggregate) RequestTransactions(id PurchaseRequestID) []Transaction {
	var out []Transaction
	for _, tx := range a.Transactions {
		if tx.PurchaseRequestID == id {
			out = append(out, tx)
		}
	}
	return out
}

// Clone deep-copies the aggregate, including pointer fields, so a
// snapshot cannot be mutated through the original.
func (a *Aggregate) Clone() *Aggregate {
	if a == nil {
		return nil
	}
	out := &Aggregate{LineItem: a.LineItem}
	out.Requests = make([]PurchaseRequest, len(a.Requests))
	for i, pr := range a.Requests {
		if pr.ApprovedDate != nil {
			d := *pr.ApprovedDate
			pr.ApprovedDate = &d
		}
		if pr.RejectionReason != nil {
			r := *pr.RejectionReason
			pr.RejectionReason = &r
		}
		if pr.DecidedBy != nil {
			b := *pr.DecidedBy
			pr.DecidedBy = &b
		}
		out.Requests[i] = pr
	}
	out.Transactions = make([]Transaction, len(a.Transactions))
	copy(out.Transactions, a.Transactions)
	return out
}
