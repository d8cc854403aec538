/*
state.go - The visible in-memory aggregate state

PURPOSE:
  Holds what the user currently sees: one aggregate per line item. This
  is the single well-defined place the coordinator captures snapshots
  from and restores them to. Rendering code reads through Get and never
  mutates; all writes flow through the coordinator.

  Derived totals are not stored here at all - Get recomputes them from
  the child records on every read, so a cached total can never drift
  from the sum of its parts.

SNAPSHOT / RESTORE:
  Snapshot deep-copies one aggregate (or records its absence). Restore
  puts exactly that back. The restored state is field-for-field equal to
  the pre-mutation state; there is no partial rollback.

SEE ALSO:
  - coordinator.go: The only writer
  - ledger: Aggregate and ComputeTotals
*/
package coordinator

import (
	"strings"
	"sync"

	"github.com/gracepoint/budget-engine/ledger"
)

// TempIDPrefix marks client-synthesized identifiers that have not been
// confirmed by the server. Server-assigned IDs are UUIDs and can never
// collide with this prefix.
const TempIDPrefix = "tmp-"

// IsProvisionalID reports whether id was synthesized locally and is
// still awaiting server confirmation.
func IsProvisionalID(id string) bool { return strings.HasPrefix(id, TempIDPrefix) }

// State is the visible aggregate store.
type State struct {
	mu      sync.RWMutex
	aggs    map[ledger.LineItemID]*ledger.Aggregate
	pending map[ledger.LineItemID]bool
}

// NewState creates an empty visible state.
func NewState() *State {
	return &State{
		aggs:    make(map[ledger.LineItemID]*ledger.Aggregate),
		pending: make(map[ledger.LineItemID]bool),
	}
}

// Get returns a deep copy of the aggregate and its freshly computed
// derived totals. The copy keeps callers from mutating visible state
// behind the coordinator's back.
func (s *State) Get(id ledger.LineItemID) (*ledger.Aggregate, ledger.Totals, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	agg, ok := s.aggs[id]
	if !ok {
		return nil, ledger.Totals{}, false
	}
	c := agg.Clone()
	return c, ledger.ComputeTotals(c), true
}

// List returns the ids of every visible aggregate.
func (s *State) List() []ledger.LineItemID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]ledger.LineItemID, 0, len(s.aggs))
	for id := range s.aggs {
		ids = append(ids, id)
	}
	return ids
}

// PendingConfirmation reports whether the aggregate currently shows an
// optimistic projection that the server has not confirmed.
func (s *State) PendingConfirmation(id ledger.LineItemID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pending[id]
}

// put swaps in a new version of the aggregate. pending marks it as an
// unconfirmed optimistic projection.
func (s *State) put(id ledger.LineItemID, agg *ledger.Aggregate, pending bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aggs[id] = agg.Clone()
	if pending {
		s.pending[id] = true
	} else {
		delete(s.pending, id)
	}
}

// clearPending drops the pending mark without touching the aggregate.
// Used when a write landed but its confirming refetch failed: the
// optimistic view stays up, and later polls are free to replace it.
func (s *State) clearPending(id ledger.LineItemID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, id)
}

// remove drops the aggregate entirely (confirmed delete, or entity gone).
func (s *State) remove(id ledger.LineItemID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.aggs, id)
	delete(s.pending, id)
}

// =============================================================================
// SNAPSHOT - Pre-mutation capture for rollback
// =============================================================================

// snapshot is the exact pre-mutation state of one aggregate. existed
// distinguishes "aggregate was absent" from "aggregate was empty".
type snapshot struct {
	id      ledger.LineItemID
	agg     *ledger.Aggregate
	existed bool
}

// capture records the current state of one aggregate.
func (s *State) capture(id ledger.LineItemID) snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	agg, ok := s.aggs[id]
	if !ok {
		return snapshot{id: id}
	}
	return snapshot{id: id, agg: agg.Clone(), existed: true}
}

// restore puts the snapshot back verbatim and clears the pending mark.
func (s *State) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if snap.existed {
		s.aggs[snap.id] = snap.agg.Clone()
	} else {
		delete(s.aggs, snap.id)
	}
	delete(s.pending, snap.id)
}
