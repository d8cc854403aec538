/*
errors.go - Coordinator failure surface

PURPOSE:
  Everything a caller can see go wrong, and what each one means for the
  state they are looking at:

    ledger.ErrValidation  - rejected before anything changed
    ErrBusy               - another mutation on this aggregate is in
                            flight; nothing changed, try again when it
                            resolves
    RevertedError         - the optimistic change WAS shown and has been
                            rolled back; the message says so explicitly
    RefreshError          - the write succeeded but the authoritative
                            refetch failed; visible state still shows
                            the optimistic numbers

  Nothing is silently swallowed: every failure path produces exactly one
  of these.

SEE ALSO:
  - coordinator.go: The paths that produce them
  - remote/errors.go: The underlying remote taxonomy
*/
package coordinator

import (
	"errors"
	"fmt"

	"github.com/gracepoint/budget-engine/remote"
)

// ErrBusy is returned when a second mutation targets an aggregate whose
// previous mutation has not resolved. Per-aggregate single-flight
// rejects rather than queues.
var ErrBusy = errors.New("a change to this item is still saving")

// RevertedError reports a failed write whose optimistic projection has
// been rolled back. The message makes clear the earlier success
// indication was reverted, not just that an error occurred.
type RevertedError struct {
	Op    string
	Cause error
}

func (e *RevertedError) Error() string {
	if remote.IsConflict(e.Cause) {
		return fmt.Sprintf("%s was reverted: the item changed on the server - refresh before retrying (%v)", e.Op, e.Cause)
	}
	return fmt.Sprintf("%s was reverted: %v", e.Op, e.Cause)
}

func (e *RevertedError) Unwrap() error { return e.Cause }

// Stale reports whether the caller should refresh rather than retry the
// identical mutation.
func (e *RevertedError) Stale() bool { return remote.IsConflict(e.Cause) }

// RefreshError reports that the write was accepted but the follow-up
// authoritative refetch failed. The optimistic numbers remain visible;
// a later poll or manual refresh will replace them.
type RefreshError struct {
	Op    string
	Cause error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("%s succeeded but refreshing from the server failed: %v", e.Op, e.Cause)
}

func (e *RefreshError) Unwrap() error { return e.Cause }
