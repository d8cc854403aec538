package coordinator_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gracepoint/budget-engine/approval"
	"github.com/gracepoint/budget-engine/coordinator"
	"github.com/gracepoint/budget-engine/ledger"
	"github.com/gracepoint/budget-engine/remote"
)

// =============================================================================
// TEST DOUBLES
// =============================================================================

// tickingClock returns strictly increasing times so synthesized
// temporary ids never collide.
type tickingClock struct {
	mu  sync.Mutex
	at  time.Time
	inc time.Duration
}

func newClock() *tickingClock {
	return &tickingClock{
		at:  time.Date(2026, time.May, 1, 9, 0, 0, 0, time.UTC),
		inc: time.Second,
	}
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.at = c.at.Add(c.inc)
	return c.at
}

// fakeStore is an in-memory remote.Store with failure injection. fail
// maps an operation name to the error its next call returns; block
// holds an operation until the channel is closed.
type fakeStore struct {
	mu    sync.Mutex
	aggs  map[ledger.LineItemID]*ledger.Aggregate
	fail  map[string]error
	block map[string]chan struct{}
	calls map[string]int
	next  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		aggs:  make(map[ledger.LineItemID]*ledger.Aggregate),
		fail:  make(map[string]error),
		block: make(map[string]chan struct{}),
		calls: make(map[string]int),
	}
}

func (f *fakeStore) seed(agg *ledger.Aggregate) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aggs[agg.LineItem.ID] = agg.Clone()
}

func (f *fakeStore) newID() string {
	f.next++
	return fmt.Sprintf("srv-%d", f.next)
}

// enter records the call and applies any injected block or failure.
func (f *fakeStore) enter(op string) error {
	f.mu.Lock()
	f.calls[op]++
	blocked := f.block[op]
	err := f.fail[op]
	f.mu.Unlock()
	if blocked != nil {
		<-blocked
	}
	return err
}

func (f *fakeStore) GetAggregate(_ context.Context, id ledger.LineItemID) (*ledger.Aggregate, error) {
	if err := f.enter("GetAggregate"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	agg, ok := f.aggs[id]
	if !ok {
		return nil, remote.Gone("GetAggregate", "no such line item")
	}
	return agg.Clone(), nil
}

func (f *fakeStore) ListLineItems(_ context.Context) ([]ledger.LineItem, error) {
	if err := f.enter("ListLineItems"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var items []ledger.LineItem
	for _, agg := range f.aggs {
		items = append(items, agg.LineItem)
	}
	return items, nil
}

func (f *fakeStore) CreateLineItem(_ context.Context, li ledger.LineItem) (*ledger.LineItem, error) {
	if err := f.enter("CreateLineItem"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	li.ID = ledger.LineItemID(f.newID())
	f.aggs[li.ID] = &ledger.Aggregate{LineItem: li}
	return &li, nil
}

func (f *fakeStore) UpdateLineItem(_ context.Context, li ledger.LineItem) (*ledger.LineItem, error) {
	if err := f.enter("UpdateLineItem"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	agg, ok := f.aggs[li.ID]
	if !ok {
		return nil, remote.Gone("UpdateLineItem", "no such line item")
	}
	li.Category = agg.LineItem.Category
	agg.LineItem = li
	return &li, nil
}

func (f *fakeStore) DeleteLineItem(_ context.Context, id ledger.LineItemID) error {
	if err := f.enter("DeleteLineItem"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.aggs[id]; !ok {
		return remote.Gone("DeleteLineItem", "no such line item")
	}
	delete(f.aggs, id)
	return nil
}

func (f *fakeStore) findRequest(id ledger.PurchaseRequestID) (*ledger.Aggregate, int) {
	for _, agg := range f.aggs {
		for i := range agg.Requests {
			if agg.Requests[i].ID == id {
				return agg, i
			}
		}
	}
	return nil, -1
}

func (f *fakeStore) CreatePurchaseRequest(_ context.Context, pr ledger.PurchaseRequest) (*ledger.PurchaseRequest, error) {
	if err := f.enter("CreatePurchaseRequest"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	agg, ok := f.aggs[pr.LineItemID]
	if !ok {
		return nil, remote.Gone("CreatePurchaseRequest", "no such line item")
	}
	pr.ID = ledger.PurchaseRequestID(f.newID())
	pr.Status = ledger.StatusPending
	agg.Requests = append(agg.Requests, pr)
	return &pr, nil
}

func (f *fakeStore) UpdatePurchaseRequest(_ context.Context, pr ledger.PurchaseRequest) (*ledger.PurchaseRequest, error) {
	if err := f.enter("UpdatePurchaseRequest"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	agg, i := f.findRequest(pr.ID)
	if agg == nil {
		return nil, remote.Gone("UpdatePurchaseRequest", "no such purchase request")
	}
	cur := agg.Requests[i]
	cur.Description, cur.Vendor = pr.Description, pr.Vendor
	cur.Amount, cur.RequestedDate = pr.Amount, pr.RequestedDate
	agg.Requests[i] = cur
	return &cur, nil
}

func (f *fakeStore) DeletePurchaseRequest(_ context.Context, id ledger.PurchaseRequestID) error {
	if err := f.enter("DeletePurchaseRequest"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	agg, i := f.findRequest(id)
	if agg == nil {
		return remote.Gone("DeletePurchaseRequest", "no such purchase request")
	}
	agg.Requests = append(agg.Requests[:i], agg.Requests[i+1:]...)
	return nil
}

func (f *fakeStore) TransitionPurchaseRequest(_ context.Context, id ledger.PurchaseRequestID, in remote.TransitionInput) (*ledger.PurchaseRequest, error) {
	if err := f.enter("TransitionPurchaseRequest"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	agg, i := f.findRequest(id)
	if agg == nil {
		return nil, remote.Gone("TransitionPurchaseRequest", "no such purchase request")
	}
	var m approval.Machine
	pr := agg.Requests[i]
	err := m.Transition(&pr, approval.Decision{
		To: in.To, Actor: in.Actor, Reason: in.Reason, Now: time.Now(),
	})
	if err != nil {
		return nil, remote.Conflict("TransitionPurchaseRequest", err.Error())
	}
	agg.Requests[i] = pr
	return &pr, nil
}

func (f *fakeStore) CreateTransaction(_ context.Context, tx ledger.Transaction) (*ledger.Transaction, error) {
	if err := f.enter("CreateTransaction"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var owner *ledger.Aggregate
	if tx.PurchaseRequestID != "" {
		agg, i := f.findRequest(tx.PurchaseRequestID)
		if agg == nil {
			return nil, remote.Gone("CreateTransaction", "no such purchase request")
		}
		if agg.Requests[i].Status != ledger.StatusApproved {
			return nil, remote.Conflict("CreateTransaction", "purchase request is not approved")
		}
		owner = agg
	} else {
		agg, ok := f.aggs[tx.LineItemID]
		if !ok {
			return nil, remote.Gone("CreateTransaction", "no such line item")
		}
		owner = agg
	}
	tx.ID = ledger.TransactionID(f.newID())
	owner.Transactions = append(owner.Transactions, tx)
	return &tx, nil
}

func (f *fakeStore) UpdateTransaction(_ context.Context, tx ledger.Transaction) (*ledger.Transaction, error) {
	if err := f.enter("UpdateTransaction"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, agg := range f.aggs {
		for i := range agg.Transactions {
			if agg.Transactions[i].ID == tx.ID {
				cur := agg.Transactions[i]
				cur.Description, cur.Amount = tx.Description, tx.Amount
				cur.Date, cur.Method = tx.Date, tx.Method
				agg.Transactions[i] = cur
				return &cur, nil
			}
		}
	}
	return nil, remote.Gone("UpdateTransaction", "no such transaction")
}

func (f *fakeStore) DeleteTransaction(_ context.Context, id ledger.TransactionID) error {
	if err := f.enter("DeleteTransaction"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, agg := range f.aggs {
		for i := range agg.Transactions {
			if agg.Transactions[i].ID == id {
				agg.Transactions = append(agg.Transactions[:i], agg.Transactions[i+1:]...)
				return nil
			}
		}
	}
	return remote.Gone("DeleteTransaction", "no such transaction")
}

// =============================================================================
// FIXTURES
// =============================================================================

func seededAggregate() *ledger.Aggregate {
	approvedAt := time.Date(2026, time.April, 20, 12, 0, 0, 0, time.UTC)
	return &ledger.Aggregate{
		LineItem: ledger.LineItem{
			ID:        "li-1",
			Name:      "Cloud hosting",
			Category:  ledger.CategoryExpense,
			Estimated: ledger.Cents(100_000),
		},
		Requests: []ledger.PurchaseRequest{
			{
				ID:            "pr-approved",
				LineItemID:    "li-1",
				Status:        ledger.StatusApproved,
				Amount:        ledger.Cents(50_000),
				RequestedDate: approvedAt.AddDate(0, 0, -3),
				ApprovedDate:  &approvedAt,
			},
			{
				ID:            "pr-pending",
				LineItemID:    "li-1",
				Status:        ledger.StatusPending,
				Amount:        ledger.Cents(30_000),
				RequestedDate: approvedAt.AddDate(0, 0, -1),
			},
		},
		Transactions: []ledger.Transaction{
			{
				ID:                "tx-1",
				PurchaseRequestID: "pr-approved",
				Amount:            ledger.Cents(10_000),
				Date:              approvedAt.AddDate(0, 0, -2),
			},
		},
	}
}

func newCoordinator(t *testing.T, store *fakeStore) *coordinator.Coordinator {
	t.Helper()
	c := coordinator.New(store, coordinator.Options{
		WriteTimeout: 2 * time.Second,
		Clock:        newClock(),
	})
	require.NoError(t, c.Refresh(context.Background(), "li-1"))
	return c
}

// =============================================================================
// CREATE / CONFIRM
// =============================================================================

func TestCreateLineItem_ConfirmedUnderServerID(t *testing.T) {
	// GIVEN: A connected coordinator
	// WHEN: Creating a line item
	// THEN: The aggregate lands under the server-assigned id and no
	//       temporary-id aggregate survives

	store := newFakeStore()
	c := coordinator.New(store, coordinator.Options{Clock: newClock()})

	id, err := c.CreateLineItem(context.Background(), coordinator.LineItemIntent{
		Name:      "Conference travel",
		Category:  ledger.CategoryExpense,
		Estimated: ledger.Cents(250_000),
	})

	require.NoError(t, err)
	assert.False(t, coordinator.IsProvisionalID(string(id)))

	agg, _, ok := c.State().Get(id)
	require.True(t, ok)
	assert.Equal(t, "Conference travel", agg.LineItem.Name)

	for _, visible := range c.State().List() {
		assert.False(t, coordinator.IsProvisionalID(string(visible)))
	}
}

func TestCreateLineItem_ValidationFailsBeforeNetwork(t *testing.T) {
	store := newFakeStore()
	c := coordinator.New(store, coordinator.Options{Clock: newClock()})

	_, err := c.CreateLineItem(context.Background(), coordinator.LineItemIntent{
		Name:     "",
		Category: ledger.CategoryExpense,
	})

	require.Error(t, err)
	assert.True(t, ledger.IsValidation(err))
	assert.Zero(t, store.calls["CreateLineItem"], "no network call on local validation failure")
}

func TestCreateTransaction_AgainstApprovedRequest(t *testing.T) {
	store := newFakeStore()
	store.seed(seededAggregate())
	c := newCoordinator(t, store)

	_, err := c.CreateTransaction(context.Background(), coordinator.TransactionIntent{
		LineItemID:        "li-1",
		PurchaseRequestID: "pr-approved",
		Description:       "April invoice",
		Amount:            ledger.Cents(5_000),
		Date:              time.Now(),
	})

	require.NoError(t, err)
	agg, totals, ok := c.State().Get("li-1")
	require.True(t, ok)
	assert.Len(t, agg.Transactions, 2)
	assert.Equal(t, int64(15_000), totals.Actual.Cents())
}

// =============================================================================
// APPROVAL GATE
// =============================================================================

func TestCreateTransaction_PendingRequestBlockedLocally(t *testing.T) {
	// GIVEN: A purchase request still Pending
	// WHEN: Recording a transaction against it
	// THEN: A validation error, no visible state change, no network call

	store := newFakeStore()
	store.seed(seededAggregate())
	c := newCoordinator(t, store)

	before, _, _ := c.State().Get("li-1")

	_, err := c.CreateTransaction(context.Background(), coordinator.TransactionIntent{
		LineItemID:        "li-1",
		PurchaseRequestID: "pr-pending",
		Amount:            ledger.Cents(1_000),
		Date:              time.Now(),
	})

	require.Error(t, err)
	assert.True(t, ledger.IsValidation(err))
	var stateErr *ledger.StateError
	assert.ErrorAs(t, err, &stateErr)

	after, _, _ := c.State().Get("li-1")
	assert.Equal(t, before, after)
	assert.Zero(t, store.calls["CreateTransaction"])
}

func TestCreateTransaction_DirectOnExpenseItemBlocked(t *testing.T) {
	store := newFakeStore()
	store.seed(seededAggregate())
	c := newCoordinator(t, store)

	_, err := c.CreateTransaction(context.Background(), coordinator.TransactionIntent{
		LineItemID: "li-1", // expense: direct transactions are revenue-only
		Amount:     ledger.Cents(1_000),
		Date:       time.Now(),
	})

	require.Error(t, err)
	assert.True(t, ledger.IsValidation(err))
}

// =============================================================================
// ROLLBACK
// =============================================================================

func TestUpdateLineItem_FailureRestoresExactSnapshot(t *testing.T) {
	// GIVEN: A loaded aggregate
	// WHEN: An update's dispatch fails
	// THEN: Visible state equals the pre-mutation snapshot field by
	//       field, and the caller gets a RevertedError

	store := newFakeStore()
	store.seed(seededAggregate())
	c := newCoordinator(t, store)

	before, beforeTotals, _ := c.State().Get("li-1")
	store.fail["UpdateLineItem"] = remote.Transient("UpdateLineItem", errors.New("boom"))

	err := c.UpdateLineItem(context.Background(), coordinator.LineItemIntent{
		ID:        "li-1",
		Name:      "Renamed",
		Estimated: ledger.Cents(999_999),
	})

	require.Error(t, err)
	var reverted *coordinator.RevertedError
	require.ErrorAs(t, err, &reverted)
	assert.False(t, reverted.Stale())

	after, afterTotals, _ := c.State().Get("li-1")
	assert.Equal(t, before, after)
	assert.Equal(t, beforeTotals, afterTotals)
	assert.False(t, c.State().PendingConfirmation("li-1"))
}

func TestCreateTransaction_FailureRevertsTotals(t *testing.T) {
	// GIVEN: An approved request with money already recorded
	// WHEN: Recording another spend fails at the server
	// THEN: The request's spent and remaining figures return to their
	//       pre-mutation values

	store := newFakeStore()
	store.seed(seededAggregate())
	c := newCoordinator(t, store)

	_, before, ok := c.State().Get("li-1")
	require.True(t, ok)
	store.fail["CreateTransaction"] = remote.Transient("CreateTransaction", errors.New("boom"))

	_, err := c.CreateTransaction(context.Background(), coordinator.TransactionIntent{
		LineItemID:        "li-1",
		PurchaseRequestID: "pr-approved",
		Description:       "second spend",
		Amount:            ledger.Cents(5_000),
		Date:              time.Now(),
	})

	var reverted *coordinator.RevertedError
	require.ErrorAs(t, err, &reverted)

	_, after, ok := c.State().Get("li-1")
	require.True(t, ok)
	assert.Equal(t, before.Actual.Cents(), after.Actual.Cents())
	assert.Equal(t, int64(10_000), after.RequestTotals["pr-approved"].Cents())
	assert.Equal(t, int64(40_000), after.Remaining["pr-approved"].Cents())
}

func TestTransition_ConflictMarksStale(t *testing.T) {
	// GIVEN: An approval whose remote write hits a conflict
	// THEN: The error reverts local state and advises a refresh

	store := newFakeStore()
	store.seed(seededAggregate())
	c := newCoordinator(t, store)

	store.fail["TransitionPurchaseRequest"] = remote.Conflict("TransitionPurchaseRequest", "decided by someone else")

	err := c.TransitionPurchaseRequest(context.Background(), "li-1", "pr-pending", approval.Decision{
		To:    ledger.StatusApproved,
		Actor: "treasurer-7",
	})

	require.Error(t, err)
	var reverted *coordinator.RevertedError
	require.ErrorAs(t, err, &reverted)
	assert.True(t, reverted.Stale())

	agg, _, _ := c.State().Get("li-1")
	assert.Equal(t, ledger.StatusPending, agg.Request("pr-pending").Status)
}

func TestCreateLineItem_FailureLeavesNoGhost(t *testing.T) {
	store := newFakeStore()
	c := coordinator.New(store, coordinator.Options{Clock: newClock()})
	store.fail["CreateLineItem"] = remote.Transient("CreateLineItem", errors.New("connection refused"))

	_, err := c.CreateLineItem(context.Background(), coordinator.LineItemIntent{
		Name:      "Doomed",
		Category:  ledger.CategoryExpense,
		Estimated: ledger.Cents(100),
	})

	require.Error(t, err)
	assert.Empty(t, c.State().List())
}

// =============================================================================
// TIMEOUT
// =============================================================================

func TestDispatch_TimeoutIsFailure(t *testing.T) {
	// GIVEN: A write that never returns within the deadline
	// THEN: The mutation is treated as failed and rolled back

	store := newFakeStore()
	store.seed(seededAggregate())
	never := make(chan struct{})
	defer close(never)
	store.block["UpdateLineItem"] = never

	c := coordinator.New(store, coordinator.Options{
		WriteTimeout: 50 * time.Millisecond,
		Clock:        newClock(),
	})
	require.NoError(t, c.Refresh(context.Background(), "li-1"))

	err := c.UpdateLineItem(context.Background(), coordinator.LineItemIntent{
		ID: "li-1", Name: "Renamed", Estimated: ledger.Cents(1),
	})

	require.Error(t, err)
	var reverted *coordinator.RevertedError
	assert.ErrorAs(t, err, &reverted)

	agg, _, _ := c.State().Get("li-1")
	assert.Equal(t, "Cloud hosting", agg.LineItem.Name)
}

// =============================================================================
// SINGLE FLIGHT
// =============================================================================

func TestSecondMutation_RejectedWhileFirstInflight(t *testing.T) {
	store := newFakeStore()
	store.seed(seededAggregate())
	c := newCoordinator(t, store)

	gate := make(chan struct{})
	store.block["UpdateLineItem"] = gate

	done := make(chan error, 1)
	go func() {
		done <- c.UpdateLineItem(context.Background(), coordinator.LineItemIntent{
			ID: "li-1", Name: "First", Estimated: ledger.Cents(1),
		})
	}()

	require.Eventually(t, func() bool { return c.Inflight("li-1") },
		time.Second, 5*time.Millisecond)

	err := c.UpdateLineItem(context.Background(), coordinator.LineItemIntent{
		ID: "li-1", Name: "Second", Estimated: ledger.Cents(2),
	})
	assert.ErrorIs(t, err, coordinator.ErrBusy)

	close(gate)
	require.NoError(t, <-done)

	agg, _, _ := c.State().Get("li-1")
	assert.Equal(t, "First", agg.LineItem.Name)
}

// =============================================================================
// REFETCH EDGE CASES
// =============================================================================

func TestConfirm_EntityDeletedByOtherActor(t *testing.T) {
	// GIVEN: The refetch after a successful write finds the aggregate
	//        deleted by someone else
	// THEN: The aggregate is removed locally; no error is reported

	store := newFakeStore()
	store.seed(seededAggregate())
	c := newCoordinator(t, store)

	// The write succeeds, then another actor deletes the line item
	// before the refetch. Simulate by failing only GetAggregate.
	store.fail["GetAggregate"] = remote.Gone("GetAggregate", "deleted elsewhere")

	err := c.UpdateLineItem(context.Background(), coordinator.LineItemIntent{
		ID: "li-1", Name: "Renamed", Estimated: ledger.Cents(1),
	})

	require.NoError(t, err)
	_, _, ok := c.State().Get("li-1")
	assert.False(t, ok)
}

func TestConfirm_RefetchTransientKeepsOptimisticView(t *testing.T) {
	// GIVEN: The write lands but the confirming refetch fails
	// THEN: The optimistic view stays visible and the caller is told
	//       the numbers are not yet authoritative

	store := newFakeStore()
	store.seed(seededAggregate())
	c := newCoordinator(t, store)

	store.fail["GetAggregate"] = remote.Transient("GetAggregate", errors.New("timeout"))

	err := c.UpdateLineItem(context.Background(), coordinator.LineItemIntent{
		ID: "li-1", Name: "Renamed", Estimated: ledger.Cents(42),
	})

	require.Error(t, err)
	var refresh *coordinator.RefreshError
	require.ErrorAs(t, err, &refresh)

	agg, _, ok := c.State().Get("li-1")
	require.True(t, ok)
	assert.Equal(t, "Renamed", agg.LineItem.Name)
}

func TestConfirm_RefetchFailureDoesNotBlockLaterPolls(t *testing.T) {
	// GIVEN: A write whose confirming refetch failed, leaving the
	//        optimistic view up
	// WHEN: The server copy changes and a later sweep runs
	// THEN: The authoritative version replaces the optimistic one

	store := newFakeStore()
	store.seed(seededAggregate())
	c := newCoordinator(t, store)
	p := coordinator.NewPoller(c, time.Minute, nil)
	p.Watch("li-1")

	store.fail["GetAggregate"] = remote.Transient("GetAggregate", errors.New("timeout"))
	err := c.UpdateLineItem(context.Background(), coordinator.LineItemIntent{
		ID: "li-1", Name: "Renamed", Estimated: ledger.Cents(42),
	})
	var refresh *coordinator.RefreshError
	require.ErrorAs(t, err, &refresh)

	delete(store.fail, "GetAggregate")
	store.mu.Lock()
	store.aggs["li-1"].LineItem.Name = "Upstream truth"
	store.mu.Unlock()

	p.Sweep(context.Background())

	agg, _, ok := c.State().Get("li-1")
	require.True(t, ok)
	assert.Equal(t, "Upstream truth", agg.LineItem.Name)
	assert.False(t, c.State().PendingConfirmation("li-1"))
}

func TestConfirm_RepeatedAuthoritativeFetchIsIdempotent(t *testing.T) {
	// GIVEN: A mutation confirmed against the server's copy
	// WHEN: The unchanged server data is fetched again, twice
	// THEN: The visible aggregate and its totals do not move

	store := newFakeStore()
	store.seed(seededAggregate())
	c := newCoordinator(t, store)
	p := coordinator.NewPoller(c, time.Minute, nil)
	p.Watch("li-1")

	require.NoError(t, c.UpdateLineItem(context.Background(), coordinator.LineItemIntent{
		ID: "li-1", Name: "Renamed", Estimated: ledger.Cents(42),
	}))

	first, firstTotals, ok := c.State().Get("li-1")
	require.True(t, ok)

	p.Sweep(context.Background())
	p.Sweep(context.Background())

	again, againTotals, ok := c.State().Get("li-1")
	require.True(t, ok)
	assert.Equal(t, first, again)
	assert.Equal(t, firstTotals.Actual.Cents(), againTotals.Actual.Cents())
	assert.Equal(t, firstTotals.Remaining["pr-approved"].Cents(), againTotals.Remaining["pr-approved"].Cents())
	assert.False(t, c.State().PendingConfirmation("li-1"))
}

// =============================================================================
// DELETES
// =============================================================================

func TestDeleteLineItem_BlockedWithDependents(t *testing.T) {
	store := newFakeStore()
	store.seed(seededAggregate())
	c := newCoordinator(t, store)

	err := c.DeleteLineItem(context.Background(), "li-1")

	require.Error(t, err)
	assert.True(t, ledger.IsValidation(err))
	assert.Zero(t, store.calls["DeleteLineItem"])
}

func TestDeleteLineItem_EmptySucceedsAndRemoves(t *testing.T) {
	store := newFakeStore()
	store.seed(&ledger.Aggregate{LineItem: ledger.LineItem{
		ID: "li-1", Name: "Empty", Category: ledger.CategoryExpense,
	}})
	c := newCoordinator(t, store)

	require.NoError(t, c.DeleteLineItem(context.Background(), "li-1"))

	_, _, ok := c.State().Get("li-1")
	assert.False(t, ok)
}

func TestDeletePurchaseRequest_BlockedWithTransactions(t *testing.T) {
	store := newFakeStore()
	store.seed(seededAggregate())
	c := newCoordinator(t, store)

	err := c.DeletePurchaseRequest(context.Background(), "li-1", "pr-approved")

	require.Error(t, err)
	assert.True(t, ledger.IsValidation(err))
}

// =============================================================================
// SCENARIO: Approve, spend, then the network flakes
// =============================================================================

func TestScenario_ApproveSpendRollback(t *testing.T) {
	// GIVEN: A pending request
	// WHEN: It is approved, money is recorded, then an edit fails
	// THEN: The first two mutations stick; the failed one reverts
	//       without disturbing them

	store := newFakeStore()
	store.seed(seededAggregate())
	c := newCoordinator(t, store)

	require.NoError(t, c.TransitionPurchaseRequest(context.Background(), "li-1", "pr-pending", approval.Decision{
		To: ledger.StatusApproved, Actor: "treasurer-7",
	}))

	_, err := c.CreateTransaction(context.Background(), coordinator.TransactionIntent{
		LineItemID:        "li-1",
		PurchaseRequestID: "pr-pending",
		Description:       "first spend",
		Amount:            ledger.Cents(7_500),
		Date:              time.Now(),
	})
	require.NoError(t, err)

	store.fail["UpdateLineItem"] = remote.Transient("UpdateLineItem", errors.New("flaky"))
	err = c.UpdateLineItem(context.Background(), coordinator.LineItemIntent{
		ID: "li-1", Name: "Renamed", Estimated: ledger.Cents(1),
	})
	require.Error(t, err)

	agg, totals, _ := c.State().Get("li-1")
	assert.Equal(t, "Cloud hosting", agg.LineItem.Name)
	assert.Equal(t, ledger.StatusApproved, agg.Request("pr-pending").Status)
	assert.Equal(t, int64(17_500), totals.Actual.Cents())
}
