/*
wire.go - JSON wire representation of the data model

PURPOSE:
  One serialization that round-trips the data model losslessly. Amounts
  travel as minor-unit integers (never floats), instants as RFC 3339.
  Both the HTTP client and the reference service encode with these
  types, so the two sides cannot drift.

SEE ALSO:
  - http.go: Client-side use
  - api/dto.go: Server-side use
*/
package remote

import (
	"time"

	"github.com/gracepoint/budget-engine/ledger"
)

// =============================================================================
// WIRE TYPES - Amounts in cents, instants in RFC 3339
// =============================================================================

type LineItemWire struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Description    string `json:"description,omitempty"`
	Vendor         string `json:"vendor,omitempty"`
	Category       string `json:"categoryType"`
	EstimatedCents int64  `json:"estimatedCents"`
	CreatedAt      string `json:"createdAt,omitempty"`
	UpdatedAt      string `json:"updatedAt,omitempty"`
}

type PurchaseRequestWire struct {
	ID              string  `json:"id"`
	LineItemID      string  `json:"lineItemId"`
	Description     string  `json:"description,omitempty"`
	Vendor          string  `json:"vendor,omitempty"`
	AmountCents     int64   `json:"amountCents"`
	RequestedDate   string  `json:"requestedDate"`
	ApprovalStatus  string  `json:"approvalStatus"`
	ApprovedDate    *string `json:"approvedDate,omitempty"`
	RejectionReason *string `json:"rejectionReason,omitempty"`
	RequestedBy     string  `json:"requestedBy,omitempty"`
	DecidedBy       *string `json:"decidedBy,omitempty"`
	CreatedAt       string  `json:"createdAt,omitempty"`
	UpdatedAt       string  `json:"updatedAt,omitempty"`
}

type TransactionWire struct {
	ID                string `json:"id"`
	PurchaseRequestID string `json:"purchaseRequestId,omitempty"`
	LineItemID        string `json:"lineItemId,omitempty"`
	Description       string `json:"description,omitempty"`
	AmountCents       int64  `json:"amountCents"`
	Date              string `json:"transactionDate"`
	Method            string `json:"paymentMethod,omitempty"`
	CreatedAt         string `json:"createdAt,omitempty"`
	UpdatedAt         string `json:"updatedAt,omitempty"`
}

// AggregateWire is the refetch payload: one line item with everything
// reachable from it, in the deterministic presentation order.
type AggregateWire struct {
	LineItem     LineItemWire          `json:"lineItem"`
	Requests     []PurchaseRequestWire `json:"purchaseRequests"`
	Transactions []TransactionWire     `json:"transactions"`

	// Server-computed derived totals, informational. Clients recompute
	// from children; these exist so curl output is readable.
	ActualCents   int64 `json:"actualCents"`
	VarianceCents int64 `json:"varianceCents"`
}

type TransitionWire struct {
	To     string `json:"to"`
	Actor  string `json:"actor,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// ErrorWire is the structured error body the service returns.
type ErrorWire struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func fmtTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func fmtTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := fmtTime(*t)
	return &s
}

func parseTimePtr(s *string) *time.Time {
	if s == nil {
		return nil
	}
	t := parseTime(*s)
	return &t
}

func LineItemToWire(li ledger.LineItem) LineItemWire {
	return LineItemWire{
		ID:             string(li.ID),
		Name:           li.Name,
		Description:    li.Description,
		Vendor:         li.Vendor,
		Category:       string(li.Category),
		EstimatedCents: li.Estimated.Cents(),
		CreatedAt:      fmtTime(li.CreatedAt),
		UpdatedAt:      fmtTime(li.UpdatedAt),
	}
}

func LineItemFromWire(w LineItemWire) ledger.LineItem {
	return ledger.LineItem{
		ID:          ledger.LineItemID(w.ID),
		Name:        w.Name,
		Description: w.Description,
		Vendor:      w.Vendor,
		Category:    ledger.CategoryType(w.Category),
		Estimated:   ledger.Cents(w.EstimatedCents),
		CreatedAt:   parseTime(w.CreatedAt),
		UpdatedAt:   parseTime(w.UpdatedAt),
	}
}

func PurchaseRequestToWire(pr ledger.PurchaseRequest) PurchaseRequestWire {
	return PurchaseRequestWire{
		ID:              string(pr.ID),
		LineItemID:      string(pr.LineItemID),
		Description:     pr.Description,
		Vendor:          pr.Vendor,
		AmountCents:     pr.Amount.Cents(),
		RequestedDate:   fmtTime(pr.RequestedDate),
		ApprovalStatus:  string(pr.Status),
		ApprovedDate:    fmtTimePtr(pr.ApprovedDate),
		RejectionReason: pr.RejectionReason,
		RequestedBy:     pr.RequestedBy,
		DecidedBy:       pr.DecidedBy,
		CreatedAt:       fmtTime(pr.CreatedAt),
		UpdatedAt:       fmtTime(pr.UpdatedAt),
	}
}

func PurchaseRequestFromWire(w PurchaseRequestWire) ledger.PurchaseRequest {
	return ledger.PurchaseRequest{
		ID:              ledger.PurchaseRequestID(w.ID),
		LineItemID:      ledger.LineItemID(w.LineItemID),
		Description:     w.Description,
		Vendor:          w.Vendor,
		Amount:          ledger.Cents(w.AmountCents),
		RequestedDate:   parseTime(w.RequestedDate),
		Status:          ledger.ApprovalStatus(w.ApprovalStatus),
		ApprovedDate:    parseTimePtr(w.ApprovedDate),
		RejectionReason: w.RejectionReason,
		RequestedBy:     w.RequestedBy,
		DecidedBy:       w.DecidedBy,
		CreatedAt:       parseTime(w.CreatedAt),
		UpdatedAt:       parseTime(w.UpdatedAt),
	}
}

func TransactionToWire(tx ledger.Transaction) TransactionWire {
	return TransactionWire{
		ID:                string(tx.ID),
		PurchaseRequestID: string(tx.PurchaseRequestID),
		LineItemID:        string(tx.LineItemID),
		Description:       tx.Description,
		AmountCents:       tx.Amount.Cents(),
		Date:              fmtTime(tx.Date),
		Method:            string(tx.Method),
		CreatedAt:         fmtTime(tx.CreatedAt),
		UpdatedAt:         fmtTime(tx.UpdatedAt),
	}
}

func TransactionFromWire(w TransactionWire) ledger.Transaction {
	return ledger.Transaction{
		ID:                ledger.TransactionID(w.ID),
		PurchaseRequestID: ledger.PurchaseRequestID(w.PurchaseRequestID),
		LineItemID:        ledger.LineItemID(w.LineItemID),
		Description:       w.Description,
		Amount:            ledger.Cents(w.AmountCents),
		Date:              parseTime(w.Date),
		Method:            ledger.PaymentMethod(w.Method),
		CreatedAt:         parseTime(w.CreatedAt),
		UpdatedAt:         parseTime(w.UpdatedAt),
	}
}

func AggregateToWire(a *ledger.Aggregate) AggregateWire {
	totals := ledger.ComputeTotals(a)
	w := AggregateWire{
		LineItem:      LineItemToWire(a.LineItem),
		Requests:      make([]PurchaseRequestWire, 0, len(a.Requests)),
		Transactions:  make([]TransactionWire, 0, len(a.Transactions)),
		ActualCents:   totals.Actual.Cents(),
		VarianceCents: totals.Variance.Cents(),
	}
	for _, pr := range a.Requests {
		w.Requests = append(w.Requests, PurchaseRequestToWire(pr))
	}
	for _, tx := range a.Transactions {
		w.Transactions = append(w.Transactions, TransactionToWire(tx))
	}
	return w
}

func AggregateFromWire(w AggregateWire) *ledger.Aggregate {
	a := &ledger.Aggregate{LineItem: LineItemFromWire(w.LineItem)}
	for _, pr := range w.Requests {
		a.Requests = append(a.Requests, PurchaseRequestFromWire(pr))
	}
	for _, tx := range w.Transactions {
		a.Transactions = append(a.Transactions, TransactionFromWire(tx))
	}
	return a
}
