/*
poller.go - Background polling reconciliation

PURPOSE:
  Some views refresh from the persistence layer on a fixed interval,
  independent of user mutations. Polled data is dangerous around
  optimistic updates: a slow poll carrying pre-mutation numbers must
  never erase a projection that is still waiting on its confirm or
  rollback. Two rules keep polls honest:

    1. In-flight wins. A poll result for an aggregate with an
       outstanding mutation (or an unconfirmed projection) is discarded;
       the mutation's own reconcile supersedes it.
    2. Newest poll wins. Each aggregate carries a generation counter; a
       response from an older poll than the latest started is discarded.

  Polled data is also diffed against visible state before replacing it,
  so an unchanged aggregate causes no churn.

USAGE:
  p := coordinator.NewPoller(c, 30*time.Second, log)
  p.Watch("li-1")
  p.Start()
  defer p.Stop()

SEE ALSO:
  - coordinator.go: applyPolled, the gatekeeper for rules 1 and 2
*/
package coordinator

import (
	"context"
	"reflect"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gracepoint/budget-engine/ledger"
	"github.com/gracepoint/budget-engine/remote"
)

// Poller refreshes a watched set of aggregates on a fixed interval.
type Poller struct {
	coord    *Coordinator
	interval time.Duration
	log      logrus.FieldLogger

	mu      sync.Mutex
	watched map[ledger.LineItemID]bool
	// latest generation started per aggregate; older responses lose.
	gen map[ledger.LineItemID]uint64

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
}

// NewPoller creates a poller over the coordinator's remote store.
func NewPoller(c *Coordinator, interval time.Duration, log logrus.FieldLogger) *Poller {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		log = l
	}
	return &Poller{
		coord:    c,
		interval: interval,
		log:      log,
		watched:  make(map[ledger.LineItemID]bool),
		gen:      make(map[ledger.LineItemID]uint64),
	}
}

// Watch adds an aggregate to the polled set.
func (p *Poller) Watch(id ledger.LineItemID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.watched[id] = true
}

// Unwatch removes an aggregate from the polled set.
func (p *Poller) Unwatch(id ledger.LineItemID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.watched, id)
}

// Start begins polling. Runs one sweep immediately.
func (p *Poller) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ticker != nil {
		return
	}
	p.ticker = time.NewTicker(p.interval)
	p.stop = make(chan struct{})
	p.wg.Add(1)
	go p.run(p.ticker, p.stop)
	p.log.WithField("interval", p.interval).Info("poller started")
}

// Stop halts polling and waits for the sweep in progress.
func (p *Poller) Stop() {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		return
	}
	p.ticker.Stop()
	close(p.stop)
	p.ticker = nil
	p.mu.Unlock()

	p.wg.Wait()
	p.log.Info("poller stopped")
}

func (p *Poller) run(ticker *time.Ticker, stop chan struct{}) {
	defer p.wg.Done()

	p.Sweep(context.Background())
	for {
		select {
		case <-ticker.C:
			p.Sweep(context.Background())
		case <-stop:
			return
		}
	}
}

// Sweep polls every watched aggregate once. Exported for tests and for
// manual refresh actions.
func (p *Poller) Sweep(ctx context.Context) {
	p.mu.Lock()
	ids := make([]ledger.LineItemID, 0, len(p.watched))
	for id := range p.watched {
		ids = append(ids, id)
	}
	p.mu.Unlock()

	for _, id := range ids {
		p.pollOne(ctx, id)
	}
}

func (p *Poller) pollOne(ctx context.Context, id ledger.LineItemID) {
	// A mutation is outstanding: its confirm or rollback must win over
	// anything this poll could bring back, so don't even start.
	if p.coord.Inflight(id) {
		return
	}

	p.mu.Lock()
	p.gen[id]++
	myGen := p.gen[id]
	p.mu.Unlock()

	agg, err := p.coord.remote.GetAggregate(ctx, id)

	p.mu.Lock()
	superseded := p.gen[id] != myGen
	p.mu.Unlock()
	if superseded {
		return
	}

	if err != nil {
		if remote.IsGone(err) {
			p.coord.applyPolled(id, nil)
			return
		}
		p.log.WithField("lineItem", id).WithError(err).Debug("poll failed")
		return
	}
	p.coord.applyPolled(id, agg)
}

// applyPolled replaces visible state with polled data, unless an
// optimistic projection is outstanding or the data is unchanged.
// A nil aggregate means the entity is gone.
func (c *Coordinator) applyPolled(id ledger.LineItemID, agg *ledger.Aggregate) {
	// Re-check at apply time: the mutation may have started while the
	// poll was on the wire.
	if c.Inflight(id) || c.state.PendingConfirmation(id) {
		return
	}
	if agg == nil {
		c.state.remove(id)
		return
	}
	cur, _, ok := c.state.Get(id)
	if ok && reflect.DeepEqual(cur, agg) {
		return
	}
	c.state.put(id, agg, false)
}
