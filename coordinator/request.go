/*
request.go - Purchase request intents

PURPOSE:
  Create, edit, delete, and transition purchase requests. Transitions go
  through the approval state machine; the same machine is applied to the
  projection locally and authoritatively on the server, so the
  optimistic view and the confirmed view agree when the write lands.

SEE ALSO:
  - approval: The transition table and its guards
  - coordinator.go: The protocol these lower into
*/
package coordinator

import (
	"context"
	"time"

	"github.com/gracepoint/budget-engine/approval"
	"github.com/gracepoint/budget-engine/ledger"
	"github.com/gracepoint/budget-engine/remote"
)

// RequestIntent carries the caller's fields for a purchase request
// create or update.
type RequestIntent struct {
	ID            ledger.PurchaseRequestID // set for update, empty for create
	LineItemID    ledger.LineItemID
	Description   string
	Vendor        string
	Amount        ledger.Amount
	RequestedDate time.Time
	RequestedBy   string
}

func (in RequestIntent) validateFields() error {
	if !in.Amount.IsPositive() {
		return &ledger.FieldError{Field: "amount", Reason: "must be greater than zero"}
	}
	if in.RequestedDate.IsZero() {
		return &ledger.FieldError{Field: "requestedDate", Reason: "required"}
	}
	return nil
}

// CreatePurchaseRequest opens a Pending request against an expense line
// item.
func (c *Coordinator) CreatePurchaseRequest(ctx context.Context, in RequestIntent) (ledger.PurchaseRequestID, error) {
	tempID := ledger.PurchaseRequestID(c.tempID())
	now := c.clock.Now()

	m := mutation{
		op:  "creating purchase request",
		key: in.LineItemID,
		validate: func(agg *ledger.Aggregate) error {
			if agg == nil {
				return &ledger.FieldError{Field: "lineItemId", Reason: "line item is not loaded"}
			}
			if agg.LineItem.Category != ledger.CategoryExpense {
				return &ledger.FieldError{Field: "lineItemId", Reason: "purchase requests belong to expense line items"}
			}
			return in.validateFields()
		},
		project: func(agg *ledger.Aggregate) *ledger.Aggregate {
			agg.Requests = append(agg.Requests, ledger.PurchaseRequest{
				ID:            tempID,
				LineItemID:    in.LineItemID,
				Description:   in.Description,
				Vendor:        in.Vendor,
				Amount:        in.Amount,
				RequestedDate: in.RequestedDate,
				Status:        ledger.StatusPending,
				RequestedBy:   in.RequestedBy,
				CreatedAt:     now,
				UpdatedAt:     now,
			})
			return agg
		},
		dispatch: func(ctx context.Context) error {
			_, err := c.remote.CreatePurchaseRequest(ctx, ledger.PurchaseRequest{
				LineItemID:    in.LineItemID,
				Description:   in.Description,
				Vendor:        in.Vendor,
				Amount:        in.Amount,
				RequestedDate: in.RequestedDate,
				Status:        ledger.StatusPending,
				RequestedBy:   in.RequestedBy,
			})
			return err
		},
		refetch: func() ledger.LineItemID { return in.LineItemID },
	}

	if err := c.run(ctx, m); err != nil {
		return tempID, err
	}
	return tempID, nil
}

// UpdatePurchaseRequest edits the request's descriptive fields and
// ceiling. Status never changes here; that is TransitionPurchaseRequest.
func (c *Coordinator) UpdatePurchaseRequest(ctx context.Context, in RequestIntent) error {
	m := mutation{
		op:  "saving purchase request",
		key: in.LineItemID,
		validate: func(agg *ledger.Aggregate) error {
			if agg == nil || agg.Request(in.ID) == nil {
				return &ledger.FieldError{Field: "id", Reason: "purchase request is not loaded"}
			}
			return in.validateFields()
		},
		project: func(agg *ledger.Aggregate) *ledger.Aggregate {
			pr := agg.Request(in.ID)
			pr.Description = in.Description
			pr.Vendor = in.Vendor
			pr.Amount = in.Amount
			pr.RequestedDate = in.RequestedDate
			pr.UpdatedAt = c.clock.Now()
			return agg
		},
		dispatch: func(ctx context.Context) error {
			cur, _, _ := c.state.Get(in.LineItemID)
			pr := *cur.Request(in.ID)
			pr.Description = in.Description
			pr.Vendor = in.Vendor
			pr.Amount = in.Amount
			pr.RequestedDate = in.RequestedDate
			_, err := c.remote.UpdatePurchaseRequest(ctx, pr)
			return err
		},
		refetch: func() ledger.LineItemID { return in.LineItemID },
	}
	return c.run(ctx, m)
}

// DeletePurchaseRequest removes a request that has no transactions.
func (c *Coordinator) DeletePurchaseRequest(ctx context.Context, lineItemID ledger.LineItemID, id ledger.PurchaseRequestID) error {
	m := mutation{
		op:  "deleting purchase request",
		key: lineItemID,
		validate: func(agg *ledger.Aggregate) error {
			if agg == nil {
				return &ledger.FieldError{Field: "lineItemId", Reason: "line item is not loaded"}
			}
			pr := agg.Request(id)
			if pr == nil {
				return &ledger.FieldError{Field: "id", Reason: "purchase request is not loaded"}
			}
			if !approval.CanDelete(*pr, agg.Transactions) {
				return &ledger.FieldError{Field: "id", Reason: "purchase request still has transactions"}
			}
			return nil
		},
		project: func(agg *ledger.Aggregate) *ledger.Aggregate {
			kept := agg.Requests[:0]
			for _, pr := range agg.Requests {
				if pr.ID != id {
					kept = append(kept, pr)
				}
			}
			agg.Requests = kept
			return agg
		},
		dispatch: func(ctx context.Context) error {
			return c.remote.DeletePurchaseRequest(ctx, id)
		},
		refetch: func() ledger.LineItemID { return lineItemID },
	}
	return c.run(ctx, m)
}

// TransitionPurchaseRequest moves a request through the approval state
// machine: approve, reject (reason required), or reopen to Pending.
func (c *Coordinator) TransitionPurchaseRequest(ctx context.Context, lineItemID ledger.LineItemID, id ledger.PurchaseRequestID, d approval.Decision) error {
	var machine approval.Machine
	if d.Now.IsZero() {
		d.Now = c.clock.Now()
	}

	m := mutation{
		op:  "updating approval status",
		key: lineItemID,
		validate: func(agg *ledger.Aggregate) error {
			if agg == nil {
				return &ledger.FieldError{Field: "lineItemId", Reason: "line item is not loaded"}
			}
			pr := agg.Request(id)
			if pr == nil {
				return &ledger.FieldError{Field: "id", Reason: "purchase request is not loaded"}
			}
			// Dry-run against a copy: same table, same guards.
			dry := *pr
			return machine.Transition(&dry, d)
		},
		project: func(agg *ledger.Aggregate) *ledger.Aggregate {
			machine.Transition(agg.Request(id), d)
			return agg
		},
		dispatch: func(ctx context.Context) error {
			_, err := c.remote.TransitionPurchaseRequest(ctx, id, remote.TransitionInput{
				To:     d.To,
				Actor:  d.Actor,
				Reason: d.Reason,
			})
			return err
		},
		refetch: func() ledger.LineItemID { return lineItemID },
	}
	return c.run(ctx, m)
}
