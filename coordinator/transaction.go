/*
transaction.go - Transaction intents

PURPOSE:
  Record, edit, and delete movements of money. Creation is where the
  approval gate bites: an expense transaction is only legal while the
  owning purchase request's cached status is Approved. The gate is
  validated locally (no network call on failure) and enforced again by
  the persistence layer.

  Edits carry no status gate, and deletion is always legal - both
  immediately change the owning aggregate's derived totals, which are
  recomputed from children on every read.

SEE ALSO:
  - approval.GateTransaction: The creation gate
  - coordinator.go: The protocol these lower into
*/
package coordinator

import (
	"context"
	"time"

	"github.com/gracepoint/budget-engine/approval"
	"github.com/gracepoint/budget-engine/ledger"
)

// TransactionIntent carries the caller's fields for a transaction
// create or update. Exactly one of PurchaseRequestID (expense) or a
// revenue LineItemID ownership applies; LineItemID always names the
// aggregate the change is visible under.
type TransactionIntent struct {
	ID                ledger.TransactionID // set for update, empty for create
	LineItemID        ledger.LineItemID
	PurchaseRequestID ledger.PurchaseRequestID
	Description       string
	Amount            ledger.Amount
	Date              time.Time
	Method            ledger.PaymentMethod
}

func (in TransactionIntent) validateFields() error {
	if !in.Amount.IsPositive() {
		return &ledger.FieldError{Field: "amount", Reason: "must be greater than zero"}
	}
	if in.Date.IsZero() {
		return &ledger.FieldError{Field: "transactionDate", Reason: "required"}
	}
	return nil
}

// CreateTransaction records a movement of money: against an Approved
// purchase request (expense) or directly on a revenue line item.
func (c *Coordinator) CreateTransaction(ctx context.Context, in TransactionIntent) (ledger.TransactionID, error) {
	tempID := ledger.TransactionID(c.tempID())
	now := c.clock.Now()

	m := mutation{
		op:  "recording transaction",
		key: in.LineItemID,
		validate: func(agg *ledger.Aggregate) error {
			if agg == nil {
				return &ledger.FieldError{Field: "lineItemId", Reason: "line item is not loaded"}
			}
			if err := in.validateFields(); err != nil {
				return err
			}
			if in.PurchaseRequestID != "" {
				pr := agg.Request(in.PurchaseRequestID)
				if pr == nil {
					return &ledger.FieldError{Field: "purchaseRequestId", Reason: "purchase request is not loaded"}
				}
				return approval.GateTransaction(*pr)
			}
			if agg.LineItem.Category != ledger.CategoryRevenue {
				return &ledger.FieldError{Field: "lineItemId", Reason: "direct transactions belong to revenue line items"}
			}
			return nil
		},
		project: func(agg *ledger.Aggregate) *ledger.Aggregate {
			tx := ledger.Transaction{
				ID:          tempID,
				Description: in.Description,
				Amount:      in.Amount,
				Date:        in.Date,
				Method:      in.Method,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if in.PurchaseRequestID != "" {
				tx.PurchaseRequestID = in.PurchaseRequestID
			} else {
				tx.LineItemID = in.LineItemID
			}
			agg.Transactions = append(agg.Transactions, tx)
			return agg
		},
		dispatch: func(ctx context.Context) error {
			tx := ledger.Transaction{
				Description: in.Description,
				Amount:      in.Amount,
				Date:        in.Date,
				Method:      in.Method,
			}
			if in.PurchaseRequestID != "" {
				tx.PurchaseRequestID = in.PurchaseRequestID
			} else {
				tx.LineItemID = in.LineItemID
			}
			_, err := c.remote.CreateTransaction(ctx, tx)
			return err
		},
		refetch: func() ledger.LineItemID { return in.LineItemID },
	}

	if err := c.run(ctx, m); err != nil {
		return tempID, err
	}
	return tempID, nil
}

// UpdateTransaction edits amount, date, method, or description. No
// status gate applies to edits of existing transactions.
func (c *Coordinator) UpdateTransaction(ctx context.Context, in TransactionIntent) error {
	m := mutation{
		op:  "saving transaction",
		key: in.LineItemID,
		validate: func(agg *ledger.Aggregate) error {
			if agg == nil || agg.Transaction(in.ID) == nil {
				return &ledger.FieldError{Field: "id", Reason: "transaction is not loaded"}
			}
			return in.validateFields()
		},
		project: func(agg *ledger.Aggregate) *ledger.Aggregate {
			tx := agg.Transaction(in.ID)
			tx.Description = in.Description
			tx.Amount = in.Amount
			tx.Date = in.Date
			tx.Method = in.Method
			tx.UpdatedAt = c.clock.Now()
			return agg
		},
		dispatch: func(ctx context.Context) error {
			cur, _, _ := c.state.Get(in.LineItemID)
			tx := *cur.Transaction(in.ID)
			tx.Description = in.Description
			tx.Amount = in.Amount
			tx.Date = in.Date
			tx.Method = in.Method
			_, err := c.remote.UpdateTransaction(ctx, tx)
			return err
		},
		refetch: func() ledger.LineItemID { return in.LineItemID },
	}
	return c.run(ctx, m)
}

// DeleteTransaction removes a transaction. Always legal; the owning
// aggregate's totals shrink immediately in the optimistic view.
func (c *Coordinator) DeleteTransaction(ctx context.Context, lineItemID ledger.LineItemID, id ledger.TransactionID) error {
	m := mutation{
		op:  "deleting transaction",
		key: lineItemID,
		validate: func(agg *ledger.Aggregate) error {
			if agg == nil || agg.Transaction(id) == nil {
				return &ledger.FieldError{Field: "id", Reason: "transaction is not loaded"}
			}
			return nil
		},
		project: func(agg *ledger.Aggregate) *ledger.Aggregate {
			kept := agg.Transactions[:0]
			for _, tx := range agg.Transactions {
				if tx.ID != id {
					kept = append(kept, tx)
				}
			}
			agg.Transactions = kept
			return agg
		},
		dispatch: func(ctx context.Context) error {
			return c.remote.DeleteTransaction(ctx, id)
		},
		refetch: func() ledger.LineItemID { return lineItemID },
	}
	return c.run(ctx, m)
}
