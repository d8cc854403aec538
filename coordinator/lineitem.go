/*
lineitem.go - Line item intents

PURPOSE:
  Create, edit, and delete budget line items through the optimistic
  protocol. Category is fixed at creation: flipping a bucket between
  expense and revenue under existing children would change which
  transactions are reachable, so edits carry everything but category.

SEE ALSO:
  - coordinator.go: The protocol these lower into
  - request.go, transaction.go: The other intents
*/
package coordinator

import (
	"context"
	"strings"

	"github.com/gracepoint/budget-engine/ledger"
)

// LineItemIntent carries the caller's fields for a create or update.
type LineItemIntent struct {
	ID          ledger.LineItemID // set for update, empty for create
	Name        string
	Description string
	Vendor      string
	Category    ledger.CategoryType // create only
	Estimated   ledger.Amount
}

func (in LineItemIntent) validateFields() error {
	if strings.TrimSpace(in.Name) == "" {
		return &ledger.FieldError{Field: "name", Reason: "required"}
	}
	if in.Estimated.IsNegative() {
		return &ledger.FieldError{Field: "estimatedAmount", Reason: "must not be negative"}
	}
	return nil
}

// CreateLineItem creates a new budget bucket. Returns the id the
// aggregate is visible under once confirmed (the server-assigned id),
// or the temporary id if confirmation could not complete.
func (c *Coordinator) CreateLineItem(ctx context.Context, in LineItemIntent) (ledger.LineItemID, error) {
	tempID := ledger.LineItemID(c.tempID())
	now := c.clock.Now()

	var created *ledger.LineItem
	finalID := tempID

	m := mutation{
		op:  "creating line item",
		key: tempID,
		validate: func(*ledger.Aggregate) error {
			if err := in.validateFields(); err != nil {
				return err
			}
			if !in.Category.Valid() {
				return &ledger.FieldError{Field: "categoryType", Reason: "must be expense or revenue"}
			}
			return nil
		},
		project: func(*ledger.Aggregate) *ledger.Aggregate {
			return &ledger.Aggregate{LineItem: ledger.LineItem{
				ID:          tempID,
				Name:        in.Name,
				Description: in.Description,
				Vendor:      in.Vendor,
				Category:    in.Category,
				Estimated:   in.Estimated,
				CreatedAt:   now,
				UpdatedAt:   now,
			}}
		},
		dispatch: func(ctx context.Context) error {
			li, err := c.remote.CreateLineItem(ctx, ledger.LineItem{
				Name:        in.Name,
				Description: in.Description,
				Vendor:      in.Vendor,
				Category:    in.Category,
				Estimated:   in.Estimated,
			})
			if err != nil {
				return err
			}
			created = li
			finalID = li.ID
			return nil
		},
		refetch: func() ledger.LineItemID {
			if created == nil {
				return tempID
			}
			return created.ID
		},
	}

	if err := c.run(ctx, m); err != nil {
		return finalID, err
	}
	return finalID, nil
}

// UpdateLineItem edits name, description, vendor, or estimated amount.
func (c *Coordinator) UpdateLineItem(ctx context.Context, in LineItemIntent) error {
	m := mutation{
		op:  "saving line item",
		key: in.ID,
		validate: func(agg *ledger.Aggregate) error {
			if agg == nil {
				return &ledger.FieldError{Field: "id", Reason: "line item is not loaded"}
			}
			return in.validateFields()
		},
		project: func(agg *ledger.Aggregate) *ledger.Aggregate {
			agg.LineItem.Name = in.Name
			agg.LineItem.Description = in.Description
			agg.LineItem.Vendor = in.Vendor
			agg.LineItem.Estimated = in.Estimated
			agg.LineItem.UpdatedAt = c.clock.Now()
			return agg
		},
		dispatch: func(ctx context.Context) error {
			cur, _, _ := c.state.Get(in.ID)
			item := cur.LineItem
			item.Name = in.Name
			item.Description = in.Description
			item.Vendor = in.Vendor
			item.Estimated = in.Estimated
			_, err := c.remote.UpdateLineItem(ctx, item)
			return err
		},
		refetch: func() ledger.LineItemID { return in.ID },
	}
	return c.run(ctx, m)
}

// DeleteLineItem removes an empty budget bucket. The persistence layer
// is the authority on the dependent-deletion guard; the local check
// only saves a doomed round trip.
func (c *Coordinator) DeleteLineItem(ctx context.Context, id ledger.LineItemID) error {
	m := mutation{
		op:  "deleting line item",
		key: id,
		validate: func(agg *ledger.Aggregate) error {
			if agg == nil {
				return &ledger.FieldError{Field: "id", Reason: "line item is not loaded"}
			}
			if len(agg.Requests) > 0 || len(agg.Transactions) > 0 {
				return &ledger.FieldError{Field: "id", Reason: "line item still has purchase requests or transactions"}
			}
			return nil
		},
		project: func(*ledger.Aggregate) *ledger.Aggregate { return nil },
		dispatch: func(ctx context.Context) error {
			return c.remote.DeleteLineItem(ctx, id)
		},
		refetch: func() ledger.LineItemID { return "" },
	}
	return c.run(ctx, m)
}
