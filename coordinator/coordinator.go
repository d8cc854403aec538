/*
Package coordinator makes every user-initiated write feel instantaneous
while guaranteeing the visible state never permanently diverges from the
authoritative store.

PROTOCOL (for any mutation):
  1. Claim the aggregate's single-flight slot and capture a snapshot.
     Validation, projection and rollback all work from that one
     snapshot; polls landing mid-mutation cannot slide a different
     aggregate underneath it.
  2. Validate against local, synchronous rules only, reading the
     snapshot. Failure aborts before any state change; no network call
     is made.
  3. Apply the mutation to a copy and swap it into visible state
     immediately, marked pending confirmation. Created records get a
     temporary identifier.
  4. Dispatch the write with a bounded timeout. Other aggregates stay
     fully interactive; the SAME aggregate rejects a second mutation
     until this one resolves.
  5. On success, refetch the authoritative aggregate and replace the
     projection. Never trust the optimistic numbers as final.
  6. On failure (timeout included), restore the exact pre-mutation
     snapshot and report a RevertedError.
  7. Both reconcile paths are safe if the entity was concurrently
     deleted: a refetch that finds nothing means "entity gone", and the
     aggregate is removed, never an error that disturbs other state.

CONCURRENCY MODEL:
  One coordinator serves one user session. The only shared resource is
  the visible State; it is mutated only here. Single-flight is per
  aggregate, not global.

USAGE:
  c := coordinator.New(client, coordinator.Options{})
  _, err := c.CreateTransaction(ctx, coordinator.TransactionIntent{
      LineItemID:        "li-1",
      PurchaseRequestID: "pr-1",
      Amount:            ledger.Cents(15000),
      Date:              time.Now(),
  })

SEE ALSO:
  - state.go: Visible state, snapshot, restore
  - lineitem.go, request.go, transaction.go: The typed intents
  - poller.go: Background reconciliation
*/
package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gracepoint/budget-engine/ledger"
	"github.com/gracepoint/budget-engine/remote"
)

// Options tunes a Coordinator. Zero value gives sane defaults.
type Options struct {
	// WriteTimeout bounds every dispatched write. Default 10s.
	WriteTimeout time.Duration
	// Clock stamps temporary ids and decision dates. Default: system.
	Clock remote.Clock
	// Log receives one line per reconcile outcome. Default: discard.
	Log logrus.FieldLogger
}

// Coordinator owns the visible state and runs the mutation protocol.
type Coordinator struct {
	state  *State
	remote remote.Store
	clock  remote.Clock
	log    logrus.FieldLogger

	timeout time.Duration

	mu       sync.Mutex
	inflight map[ledger.LineItemID]bool
}

// New creates a coordinator over the given persistence layer.
func New(store remote.Store, opts Options) *Coordinator {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = remote.SystemClock{}
	}
	if opts.Log == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		opts.Log = l
	}
	return &Coordinator{
		state:    NewState(),
		remote:   store,
		clock:    opts.Clock,
		log:      opts.Log,
		timeout:  opts.WriteTimeout,
		inflight: make(map[ledger.LineItemID]bool),
	}
}

// State exposes the visible aggregates for rendering. Read-only by
// contract: mutations go through the intent methods.
func (c *Coordinator) State() *State { return c.state }

// Inflight reports whether a mutation on the aggregate is unresolved.
func (c *Coordinator) Inflight(id ledger.LineItemID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inflight[id]
}

// Refresh fetches the authoritative aggregate and replaces visible
// state. Used on first load and for manual refresh. A missing entity
// removes the aggregate and reports nothing.
func (c *Coordinator) Refresh(ctx context.Context, id ledger.LineItemID) error {
	agg, err := c.remote.GetAggregate(ctx, id)
	if err != nil {
		if remote.IsGone(err) {
			c.state.remove(id)
			return nil
		}
		return err
	}
	c.state.put(id, agg, false)
	return nil
}

// tempID synthesizes a client-side identifier guaranteed not to collide
// with server-assigned UUIDs.
func (c *Coordinator) tempID() string {
	return fmt.Sprintf("%s%d", TempIDPrefix, c.clock.Now().UnixNano())
}

// =============================================================================
// PROTOCOL CORE - shared by every intent
// =============================================================================

// mutation is one intent lowered to the four protocol callbacks.
type mutation struct {
	op  string
	key ledger.LineItemID

	// validate sees a copy of the captured snapshot (nil if absent),
	// under the single-flight flag. It must not mutate the copy;
	// project receives the same one. Returning an error aborts before
	// any state change.
	validate func(agg *ledger.Aggregate) error

	// project applies the optimistic change to a copy of the snapshot.
	// For creates the copy may start nil; project returns the aggregate
	// to make visible.
	project func(agg *ledger.Aggregate) *ledger.Aggregate

	// dispatch performs the remote write. It may record the
	// server-assigned identity in refetch via closure.
	dispatch func(ctx context.Context) error

	// refetch returns the aggregate id to confirm from, or "" when the
	// aggregate was deleted and should simply be removed.
	refetch func() ledger.LineItemID
}

func (c *Coordinator) run(ctx context.Context, m mutation) error {
	// Per-aggregate single-flight: reject, don't queue. Acquired before
	// anything else so a poll cannot reshape the aggregate between
	// validation and the snapshot.
	c.mu.Lock()
	if c.inflight[m.key] {
		c.mu.Unlock()
		return ErrBusy
	}
	c.inflight[m.key] = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.inflight, m.key)
		c.mu.Unlock()
	}()

	// Step 1: snapshot.
	snap := c.state.capture(m.key)

	// Step 2: local validation, against the same snapshot the
	// projection will start from, before any state change or network
	// I/O.
	var base *ledger.Aggregate
	if snap.existed {
		base = snap.agg.Clone()
	}
	if err := m.validate(base); err != nil {
		return err
	}

	// Step 3: optimistic projection, visible immediately.
	projected := m.project(base)
	if projected != nil {
		c.state.put(m.key, projected, true)
	} else {
		c.state.remove(m.key)
	}

	// Step 4: dispatch with a bounded timeout. Timeout == failure.
	dctx, cancel := context.WithTimeout(ctx, c.timeout)
	err := m.dispatch(dctx)
	cancel()

	// Step 6: rollback to the exact pre-mutation snapshot.
	if err != nil {
		c.state.restore(snap)
		c.log.WithField("op", m.op).WithError(err).Warn("write failed, optimistic state reverted")
		return &RevertedError{Op: m.op, Cause: err}
	}

	// Step 5/7: confirm by refetching the authoritative aggregate.
	return c.confirm(ctx, m)
}

func (c *Coordinator) confirm(ctx context.Context, m mutation) error {
	target := m.refetch()

	// The mutation removed the aggregate (line item delete): nothing to
	// refetch, drop the projection's tombstone if any remains.
	if target == "" {
		c.state.remove(m.key)
		return nil
	}

	rctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	agg, err := c.remote.GetAggregate(rctx, target)
	if err != nil {
		// Concurrently deleted by another actor: the entity is gone,
		// not an error, and no unrelated state is touched.
		if remote.IsGone(err) {
			c.state.remove(m.key)
			if target != m.key {
				c.state.remove(target)
			}
			return nil
		}
		// The write landed; keep the optimistic view but tell the
		// caller the numbers are not yet authoritative. The pending
		// mark comes off so the next poll or manual refresh can
		// replace them.
		c.state.clearPending(m.key)
		c.log.WithField("op", m.op).WithError(err).Warn("confirmed write but refetch failed")
		return &RefreshError{Op: m.op, Cause: err}
	}

	// A create may have been keyed under a temporary id; the
	// authoritative aggregate lands under the server-assigned one.
	if target != m.key {
		c.state.remove(m.key)
	}
	c.state.put(target, agg, false)
	return nil
}
