/*
store.go - The collaborator contract the coordinator drives

PURPOSE:
  Request/response operations keyed by entity type and identifier. Every
  write returns the full authoritative entity on success or a structured
  error on failure. The coordinator treats this as opaque: it assumes
  nothing about SQL, wire format, or the store behind it. The store's
  own transactional guarantees (dependent-deletion guards, cascades) are
  assumed here, not implemented.

IMPLEMENTATIONS:
  - remote/http.go: HTTP/JSON client against the reference service
  - api + store/sqlite: the reference service itself
  - coordinator tests: in-memory fake with failure injection

SEE ALSO:
  - coordinator: The only caller
  - errors.go: The failure taxonomy implementations must honor
*/
package remote

import (
	"context"
	"time"

	"github.com/gracepoint/budget-engine/ledger"
)

// TransitionInput carries an approval decision across the wire.
type TransitionInput struct {
	To     ledger.ApprovalStatus
	Actor  string
	Reason string
}

// Store is the persistence layer as seen from the client side.
//
// Create operations ignore any client-synthesized identifier and return
// the entity with its server-assigned one. Update and Delete report
// Conflict or Gone per errors.go when the target has moved underneath
// the caller.
type Store interface {
	// Aggregate reads: the refetch target after every confirmed write.
	GetAggregate(ctx context.Context, id ledger.LineItemID) (*ledger.Aggregate, error)
	ListLineItems(ctx context.Context) ([]ledger.LineItem, error)

	CreateLineItem(ctx context.Context, item ledger.LineItem) (*ledger.LineItem, error)
	UpdateLineItem(ctx context.Context, item ledger.LineItem) (*ledger.LineItem, error)
	DeleteLineItem(ctx context.Context, id ledger.LineItemID) error

	CreatePurchaseRequest(ctx context.Context, pr ledger.PurchaseRequest) (*ledger.PurchaseRequest, error)
	UpdatePurchaseRequest(ctx context.Context, pr ledger.PurchaseRequest) (*ledger.PurchaseRequest, error)
	DeletePurchaseRequest(ctx context.Context, id ledger.PurchaseRequestID) error
	TransitionPurchaseRequest(ctx context.Context, id ledger.PurchaseRequestID, in TransitionInput) (*ledger.PurchaseRequest, error)

	CreateTransaction(ctx context.Context, tx ledger.Transaction) (*ledger.Transaction, error)
	UpdateTransaction(ctx context.Context, tx ledger.Transaction) (*ledger.Transaction, error)
	DeleteTransaction(ctx context.Context, id ledger.TransactionID) error
}

// Clock abstracts time for components that stamp or schedule. The
// default implementation is the real clock; tests substitute their own.
type Clock interface {
	Now() time.Time
}

// SystemClock is the real clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
