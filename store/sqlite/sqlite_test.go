package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gracepoint/budget-engine/approval"
	"github.com/gracepoint/budget-engine/ledger"
	"github.com/gracepoint/budget-engine/store/sqlite"
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	st, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func createItem(t *testing.T, st *sqlite.Store, category ledger.CategoryType) *ledger.LineItem {
	t.Helper()
	li, err := st.CreateLineItem(context.Background(), ledger.LineItem{
		Name:      "Cloud hosting",
		Category:  category,
		Estimated: ledger.Cents(100_000),
	})
	require.NoError(t, err)
	return li
}

func createRequest(t *testing.T, st *sqlite.Store, liID ledger.LineItemID) *ledger.PurchaseRequest {
	t.Helper()
	pr, err := st.CreatePurchaseRequest(context.Background(), ledger.PurchaseRequest{
		LineItemID:    liID,
		Description:   "April invoice run",
		Amount:        ledger.Cents(50_000),
		RequestedDate: time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC),
		RequestedBy:   "ops",
	})
	require.NoError(t, err)
	return pr
}

func approve(t *testing.T, st *sqlite.Store, pr *ledger.PurchaseRequest) *ledger.PurchaseRequest {
	t.Helper()
	var m approval.Machine
	require.NoError(t, m.Transition(pr, approval.Decision{
		To: ledger.StatusApproved, Actor: "treasurer-7", Now: time.Now(),
	}))
	saved, err := st.SaveDecision(context.Background(), *pr)
	require.NoError(t, err)
	return saved
}

// =============================================================================
// LINE ITEMS
// =============================================================================

func TestCreateLineItem_AssignsServerID(t *testing.T) {
	st := newStore(t)

	li := createItem(t, st, ledger.CategoryExpense)

	assert.NotEmpty(t, li.ID)
	assert.Equal(t, int64(100_000), li.Estimated.Cents())
	assert.False(t, li.CreatedAt.IsZero())
}

func TestCreateLineItem_RejectsUnknownCategory(t *testing.T) {
	st := newStore(t)

	_, err := st.CreateLineItem(context.Background(), ledger.LineItem{
		Name: "Bad", Category: "savings",
	})

	assert.ErrorIs(t, err, sqlite.ErrInvalid)
}

func TestGetLineItem_MissingIsNotFound(t *testing.T) {
	st := newStore(t)

	_, err := st.GetLineItem(context.Background(), "nope")

	assert.ErrorIs(t, err, sqlite.ErrNotFound)
}

func TestUpdateLineItem_CategoryImmutable(t *testing.T) {
	st := newStore(t)
	li := createItem(t, st, ledger.CategoryExpense)

	li.Name = "Renamed"
	li.Category = ledger.CategoryRevenue
	updated, err := st.UpdateLineItem(context.Background(), *li)

	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
	assert.Equal(t, ledger.CategoryExpense, updated.Category)
}

func TestDeleteLineItem_BlockedByDependents(t *testing.T) {
	st := newStore(t)
	li := createItem(t, st, ledger.CategoryExpense)
	createRequest(t, st, li.ID)

	err := st.DeleteLineItem(context.Background(), li.ID)

	assert.ErrorIs(t, err, sqlite.ErrHasDependents)
}

func TestDeleteLineItem_EmptySucceeds(t *testing.T) {
	st := newStore(t)
	li := createItem(t, st, ledger.CategoryExpense)

	require.NoError(t, st.DeleteLineItem(context.Background(), li.ID))

	_, err := st.GetLineItem(context.Background(), li.ID)
	assert.ErrorIs(t, err, sqlite.ErrNotFound)
}

// =============================================================================
// PURCHASE REQUESTS
// =============================================================================

func TestCreatePurchaseRequest_ForcedPending(t *testing.T) {
	st := newStore(t)
	li := createItem(t, st, ledger.CategoryExpense)

	pr, err := st.CreatePurchaseRequest(context.Background(), ledger.PurchaseRequest{
		LineItemID:    li.ID,
		Amount:        ledger.Cents(10_000),
		RequestedDate: time.Now(),
		Status:        ledger.StatusApproved, // client cannot smuggle a status
	})

	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPending, pr.Status)
	assert.Nil(t, pr.ApprovedDate)
}

func TestCreatePurchaseRequest_RevenueItemRefused(t *testing.T) {
	st := newStore(t)
	li := createItem(t, st, ledger.CategoryRevenue)

	_, err := st.CreatePurchaseRequest(context.Background(), ledger.PurchaseRequest{
		LineItemID: li.ID, Amount: ledger.Cents(1), RequestedDate: time.Now(),
	})

	assert.ErrorIs(t, err, sqlite.ErrInvalid)
}

func TestSaveDecision_PersistsDecisionFields(t *testing.T) {
	st := newStore(t)
	li := createItem(t, st, ledger.CategoryExpense)
	pr := createRequest(t, st, li.ID)

	saved := approve(t, st, pr)

	assert.Equal(t, ledger.StatusApproved, saved.Status)
	require.NotNil(t, saved.ApprovedDate)
	require.NotNil(t, saved.DecidedBy)
	assert.Equal(t, "treasurer-7", *saved.DecidedBy)

	// Round-trips through a fresh read.
	got, err := st.GetPurchaseRequest(context.Background(), pr.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusApproved, got.Status)
}

func TestDeletePurchaseRequest_BlockedByTransactions(t *testing.T) {
	st := newStore(t)
	li := createItem(t, st, ledger.CategoryExpense)
	pr := approve(t, st, createRequest(t, st, li.ID))

	_, err := st.CreateTransaction(context.Background(), ledger.Transaction{
		PurchaseRequestID: pr.ID,
		Amount:            ledger.Cents(5_000),
		Date:              time.Now(),
	})
	require.NoError(t, err)

	err = st.DeletePurchaseRequest(context.Background(), pr.ID)
	assert.ErrorIs(t, err, sqlite.ErrHasDependents)
}

// =============================================================================
// TRANSACTIONS - the authoritative approval gate
// =============================================================================

func TestCreateTransaction_PendingRequestRefused(t *testing.T) {
	st := newStore(t)
	li := createItem(t, st, ledger.CategoryExpense)
	pr := createRequest(t, st, li.ID)

	_, err := st.CreateTransaction(context.Background(), ledger.Transaction{
		PurchaseRequestID: pr.ID,
		Amount:            ledger.Cents(1_000),
		Date:              time.Now(),
	})

	assert.ErrorIs(t, err, sqlite.ErrNotApproved)
}

func TestCreateTransaction_ApprovedRequestSucceeds(t *testing.T) {
	st := newStore(t)
	li := createItem(t, st, ledger.CategoryExpense)
	pr := approve(t, st, createRequest(t, st, li.ID))

	tx, err := st.CreateTransaction(context.Background(), ledger.Transaction{
		PurchaseRequestID: pr.ID,
		Description:       "April invoice",
		Amount:            ledger.Cents(12_345),
		Date:              time.Now(),
	})

	require.NoError(t, err)
	assert.NotEmpty(t, tx.ID)
	assert.Equal(t, int64(12_345), tx.Amount.Cents())
	assert.Equal(t, pr.ID, tx.PurchaseRequestID)
	assert.Empty(t, tx.LineItemID)
}

func TestCreateTransaction_DirectOnExpenseRefused(t *testing.T) {
	st := newStore(t)
	li := createItem(t, st, ledger.CategoryExpense)

	_, err := st.CreateTransaction(context.Background(), ledger.Transaction{
		LineItemID: li.ID,
		Amount:     ledger.Cents(1_000),
		Date:       time.Now(),
	})

	assert.ErrorIs(t, err, sqlite.ErrInvalid)
}

func TestCreateTransaction_RevenueDirectSucceeds(t *testing.T) {
	st := newStore(t)
	li := createItem(t, st, ledger.CategoryRevenue)

	tx, err := st.CreateTransaction(context.Background(), ledger.Transaction{
		LineItemID:  li.ID,
		Description: "Sponsorship payment",
		Amount:      ledger.Cents(80_000),
		Date:        time.Now(),
	})

	require.NoError(t, err)
	assert.True(t, tx.IsRevenue())
}

// =============================================================================
// AGGREGATE
// =============================================================================

func TestGetAggregate_CollectsEverythingReachable(t *testing.T) {
	// GIVEN: A line item with a request, an owned transaction, and an
	//        unrelated line item with its own data
	// WHEN: Reading the aggregate
	// THEN: Only the reachable records come back, in date order

	st := newStore(t)
	li := createItem(t, st, ledger.CategoryExpense)
	pr := approve(t, st, createRequest(t, st, li.ID))
	_, err := st.CreateTransaction(context.Background(), ledger.Transaction{
		PurchaseRequestID: pr.ID,
		Amount:            ledger.Cents(7_000),
		Date:              time.Now(),
	})
	require.NoError(t, err)

	other := createItem(t, st, ledger.CategoryRevenue)
	_, err = st.CreateTransaction(context.Background(), ledger.Transaction{
		LineItemID: other.ID,
		Amount:     ledger.Cents(99),
		Date:       time.Now(),
	})
	require.NoError(t, err)

	agg, err := st.GetAggregate(context.Background(), li.ID)

	require.NoError(t, err)
	assert.Equal(t, li.ID, agg.LineItem.ID)
	require.Len(t, agg.Requests, 1)
	require.Len(t, agg.Transactions, 1)
	assert.Equal(t, int64(7_000), agg.Transactions[0].Amount.Cents())

	totals := ledger.ComputeTotals(agg)
	assert.Equal(t, int64(7_000), totals.Actual.Cents())
}
