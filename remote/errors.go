/*
errors.go - Persistence-layer error taxonomy

PURPOSE:
  Every failure a remote write or read can produce, classified the way
  the coordinator's rollback machinery needs it:

    Transient - the call failed (network, timeout, server error).
                Roll back, surface as retryable.
    Conflict  - the entity no longer matches the assumed prior state.
                Roll back, tell the caller to refresh, not retry blindly.
    Gone      - the entity does not exist (deleted concurrently, or a
                refetch after delete). Not an error during reconcile;
                the aggregate is simply removed from visible state.

  Local validation failures never reach this package; they are rejected
  before any network call (see ledger errors).

SEE ALSO:
  - coordinator: Maps these kinds onto rollback behavior
  - api: Produces the HTTP status codes these are decoded from
*/
package remote

import (
	"errors"
	"fmt"
)

// Kind classifies a remote failure.
type Kind string

const (
	KindTransient Kind = "transient"
	KindConflict  Kind = "conflict"
	KindGone      Kind = "gone"
)

// Error is a structured remote failure with a human-readable message
// suitable for surfacing to the user verbatim.
type Error struct {
	Kind    Kind
	Op      string // e.g. "create transaction"
	Message string
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Message)
}

// Transient wraps err as a retryable remote failure.
func Transient(op string, err error) *Error {
	return &Error{Kind: KindTransient, Op: op, Message: err.Error()}
}

// Conflict reports that the target entity was concurrently modified.
func Conflict(op, message string) *Error {
	return &Error{Kind: KindConflict, Op: op, Message: message}
}

// Gone reports that the target entity no longer exists.
func Gone(op, message string) *Error {
	return &Error{Kind: KindGone, Op: op, Message: message}
}

func kindOf(err error) (Kind, bool) {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind, true
	}
	return "", false
}

// IsTransient reports a retryable remote failure. Unclassified errors
// from the transport also count; anything that is not provably a
// conflict or a missing entity is treated as transient.
func IsTransient(err error) bool {
	k, ok := kindOf(err)
	return !ok || k == KindTransient
}

// IsConflict reports a concurrent-modification failure.
func IsConflict(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindConflict
}

// IsGone reports that the entity no longer exists.
func IsGone(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindGone
}
