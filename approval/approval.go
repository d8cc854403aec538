/*
Package approval implements the purchase request approval state machine.

PURPOSE:
  Governs which status transitions are legal for a purchase request and
  what each transition does to the request's decision fields. Also owns
  the one ledger gate that depends on status: whether a new transaction
  may be recorded against a request right now.

STATES:
  Pending (initial), Approved, Rejected. There is no terminal state -
  every state is reachable from every other in a single step (the
  workflow has an explicit "undo decision" action), so this is a flat
  transition table, not a DAG.

TRANSITION TABLE:
  Pending  -> Approved   set approved date, clear rejection reason
  Pending  -> Rejected   requires non-empty reason; clears approved date
  Approved -> Pending    clear approved date
  Approved -> Rejected   set reason, clear approved date
  Rejected -> Pending    clear rejection reason
  Rejected -> Approved   set approved date, clear rejection reason

STATUS REGRESSION:
  Leaving Approved does NOT touch transactions already recorded against
  the request. They remain and keep counting toward totals. Only the
  creation of new transactions is blocked until the request is Approved
  again. This asymmetry is deliberate: it is the observed correction
  workflow, and destroying history on an undo would be worse.

USAGE:
  m := approval.Machine{}
  err := m.Transition(&pr, approval.Decision{
      To:     ledger.StatusApproved,
      Actor:  "treasurer-7",
      Now:    time.Now(),
  })

SEE ALSO:
  - ledger: Entity definitions and the ApprovalStatus type
  - coordinator: Checks CanRecordTransaction before any network call
*/
package approval

import (
	"fmt"
	"strings"
	"time"

	"github.com/gracepoint/budget-engine/ledger"
)

// =============================================================================
// DECISION - One requested transition
// =============================================================================

// Decision describes a single status transition request.
type Decision struct {
	To ledger.ApprovalStatus

	// Actor is recorded as the decider on any transition into a decided
	// state, and on undo transitions for auditability.
	Actor string

	// Reason is required when To == StatusRejected.
	Reason string

	// Now stamps ApprovedDate and UpdatedAt. Callers pass the clock so
	// tests stay deterministic.
	Now time.Time
}

// =============================================================================
// MACHINE - Flat single-step transition table
// =============================================================================

// Machine validates and applies status transitions. Zero value is ready
// to use.
type Machine struct{}

type edge struct {
	from, to ledger.ApprovalStatus
}

// guard returns nil when the transition may proceed.
type guard func(d Decision) error

// requireReason guards every transition into Rejected.
func requireReason(d Decision) error {
	if strings.TrimSpace(d.Reason) == "" {
		return &ledger.FieldError{Field: "rejectionReason", Reason: "required when rejecting"}
	}
	return nil
}

var transitions = map[edge]guard{
	{ledger.StatusPending, ledger.StatusApproved}:  nil,
	{ledger.StatusPending, ledger.StatusRejected}:  requireReason,
	{ledger.StatusApproved, ledger.StatusPending}:  nil,
	{ledger.StatusApproved, ledger.StatusRejected}: requireReason,
	{ledger.StatusRejected, ledger.StatusPending}:  nil,
	{ledger.StatusRejected, ledger.StatusApproved}: nil,
}

// CanTransition reports whether from -> to is an edge in the table.
func (Machine) CanTransition(from, to ledger.ApprovalStatus) bool {
	_, ok := transitions[edge{from, to}]
	return ok
}

// Transition applies d to pr in place. On any error pr is untouched.
func (m Machine) Transition(pr *ledger.PurchaseRequest, d Decision) error {
	if !d.To.Valid() {
		return &ledger.FieldError{Field: "approvalStatus", Reason: fmt.Sprintf("unknown status %q", d.To)}
	}
	g, ok := transitions[edge{pr.Status, d.To}]
	if !ok {
		return &ledger.StateError{
			Entity: "purchase request",
			Status: pr.Status,
			Reason: fmt.Sprintf("cannot transition to %s", d.To),
		}
	}
	if g != nil {
		if err := g(d); err != nil {
			return err
		}
	}

	pr.Status = d.To
	switch d.To {
	case ledger.StatusApproved:
		at := d.Now
		pr.ApprovedDate = &at
		pr.RejectionReason = nil
	case ledger.StatusRejected:
		reason := d.Reason
		pr.RejectionReason = &reason
		pr.ApprovedDate = nil
	case ledger.StatusPending:
		pr.ApprovedDate = nil
		pr.RejectionReason = nil
	}
	if d.Actor != "" {
		actor := d.Actor
		pr.DecidedBy = &actor
	}
	pr.UpdatedAt = d.Now
	return nil
}

// =============================================================================
// LEDGER GATES - What each status permits
// =============================================================================

// CanRecordTransaction reports whether a new transaction may be created
// against a request in the given status. Only Approved unlocks it.
// Existing transactions are never invalidated by this gate.
func CanRecordTransaction(status ledger.ApprovalStatus) bool {
	return status == ledger.StatusApproved
}

// GateTransaction is CanRecordTransaction as an error, for validators.
func GateTransaction(pr ledger.PurchaseRequest) error {
	if !CanRecordTransaction(pr.Status) {
		return &ledger.StateError{
			Entity: "purchase request",
			Status: pr.Status,
			Reason: "transactions may only be recorded against an approved request",
		}
	}
	return nil
}

// CanDelete reports whether the request may be deleted: only when no
// transactions reference it. The persistence layer enforces the same
// guard authoritatively; this is the client-side pre-check.
func CanDelete(pr ledger.PurchaseRequest, txs []ledger.Transaction) bool {
	for _, tx := range txs {
		if tx.PurchaseRequestID == pr.ID {
			return false
		}
	}
	return true
}
