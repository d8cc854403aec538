/*
errors.go - Validation errors for the ledger model

PURPOSE:
  Local, synchronous validation failures. These are surfaced before any
  network call is made and never touch optimistic state. Remote failure
  kinds (transient, conflict, gone) live in the remote package.

USAGE:
  Callers branch with errors.Is / errors.As:

    if errors.Is(err, ledger.ErrValidation) {
        var fe *ledger.FieldError
        if errors.As(err, &fe) { highlight(fe.Field) }
    }

SEE ALSO:
  - remote/errors.go: Persistence-layer error taxonomy
  - coordinator: Rejects intents on these errors pre-snapshot
*/
package ledger

import (
	"errors"
	"fmt"
)

// ErrValidation is the sentinel all local validation errors unwrap to.
var ErrValidation = errors.New("validation failed")

// FieldError pins a validation failure to a single input field so the
// caller can surface it next to the offending form control.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *FieldError) Unwrap() error { return ErrValidation }

// StateError reports an action that is illegal in the entity's current
// workflow state, such as recording a transaction against a request that
// is not approved.
type StateError struct {
	Entity string
	Status ApprovalStatus
	Reason string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s is %s: %s", e.Entity, e.Status, e.Reason)
}

func (e *StateError) Unwrap() error { return ErrValidation }

// IsValidation reports whether err is a local validation failure.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }
