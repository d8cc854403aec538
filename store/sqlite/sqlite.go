/*
Package sqlite provides the SQLite-backed storage of the reference
persistence service.

PURPOSE:
  Implements the server side of the persistence contract: CRUD for the
  three entities plus the guards the client assumes - the
  dependent-deletion guard (no deleting an owner with live children) and
  the approval gate re-checked authoritatively on transaction creation.
  In production the same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

KEY TABLES:
  line_items:        Budget buckets (expense or revenue)
  purchase_requests: Approval-gated ceilings against expense line items
  transactions:      Recorded money movements

AMOUNT STORAGE:
  Amounts are stored as INTEGER minor units (cents). No REAL column
  ever holds currency.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety alongside WAL mode. Foreign keys
  are on; ownership is additionally guarded with explicit checks so the
  errors carry useful messages.

USAGE:
  st, err := sqlite.New("./budget.db")
  if err != nil { log.Fatal(err) }
  defer st.Close()

SEE ALSO:
  - api:    HTTP surface over this store
  - remote: The client-side view of the same contract
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/gracepoint/budget-engine/ledger"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNotFound is returned when the target entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrHasDependents is returned when deleting an entity that other
	// records still reference.
	ErrHasDependents = errors.New("entity has dependent records")

	// ErrNotApproved is returned when recording a transaction against a
	// purchase request that is not currently Approved.
	ErrNotApproved = errors.New("purchase request is not approved")

	// ErrInvalid is returned for rows that violate model rules the
	// schema cannot express.
	ErrInvalid = errors.New("invalid entity")
)

// Store implements the persistence service storage on SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New opens (or creates) the database at path. Use ":memory:" for an
// in-memory database.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS line_items (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		vendor TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL CHECK (category IN ('expense', 'revenue')),
		estimated_cents INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS purchase_requests (
		id TEXT PRIMARY KEY,
		line_item_id TEXT NOT NULL REFERENCES line_items(id),
		description TEXT NOT NULL DEFAULT '',
		vendor TEXT NOT NULL DEFAULT '',
		amount_cents INTEGER NOT NULL,
		requested_date TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'Pending'
			CHECK (status IN ('Pending', 'Approved', 'Rejected')),
		approved_date TEXT,
		rejection_reason TEXT,
		requested_by TEXT NOT NULL DEFAULT '',
		decided_by TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_purchase_requests_line_item
		ON purchase_requests(line_item_id);
	CREATE INDEX IF NOT EXISTS idx_purchase_requests_status
		ON purchase_requests(status);

	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		purchase_request_id TEXT REFERENCES purchase_requests(id),
		line_item_id TEXT REFERENCES line_items(id),
		description TEXT NOT NULL DEFAULT '',
		amount_cents INTEGER NOT NULL,
		tx_date TEXT NOT NULL,
		method TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		-- Exactly one owner: a purchase request (expense) or a line item (revenue).
		CHECK ((purchase_request_id IS NULL) != (line_item_id IS NULL))
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_request
		ON transactions(purchase_request_id) WHERE purchase_request_id IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_transactions_line_item
		ON transactions(line_item_id) WHERE line_item_id IS NOT NULL;
	`
	_, err := s.db.Exec(schema)
	return err
}

func now() string { return time.Now().UTC().Format(time.RFC3339Nano) }

func fmtTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func nullStr(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func strPtr(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	v := n.String
	return &v
}

// =============================================================================
// LINE ITEMS
// =============================================================================

// CreateLineItem inserts a line item with a server-assigned id and
// returns the authoritative row.
func (s *Store) CreateLineItem(ctx context.Context, li ledger.LineItem) (*ledger.LineItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !li.Category.Valid() {
		return nil, fmt.Errorf("%w: category %q", ErrInvalid, li.Category)
	}
	li.ID = ledger.LineItemID(uuid.NewString())
	ts := now()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO line_items (id, name, description, vendor, category, estimated_cents, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		li.ID, li.Name, li.Description, li.Vendor, li.Category, li.Estimated.Cents(), ts, ts,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert line item: %w", err)
	}
	return s.getLineItemLocked(ctx, li.ID)
}

// GetLineItem returns one line item.
func (s *Store) GetLineItem(ctx context.Context, id ledger.LineItemID) (*ledger.LineItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getLineItemLocked(ctx, id)
}

func (s *Store) getLineItemLocked(ctx context.Context, id ledger.LineItemID) (*ledger.LineItem, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, vendor, category, estimated_cents, created_at, updated_at
		FROM line_items WHERE id = ?`, id)

	var li ledger.LineItem
	var cents int64
	var created, updated string
	err := row.Scan(&li.ID, &li.Name, &li.Description, &li.Vendor, &li.Category, &cents, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("line item %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan line item: %w", err)
	}
	li.Estimated = ledger.Cents(cents)
	li.CreatedAt = parseTime(created)
	li.UpdatedAt = parseTime(updated)
	return &li, nil
}

// ListLineItems returns all line items, newest first.
func (s *Store) ListLineItems(ctx context.Context) ([]ledger.LineItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, vendor, category, estimated_cents, created_at, updated_at
		FROM line_items ORDER BY created_at DESC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query line items: %w", err)
	}
	defer rows.Close()

	var items []ledger.LineItem
	for rows.Next() {
		var li ledger.LineItem
		var cents int64
		var created, updated string
		if err := rows.Scan(&li.ID, &li.Name, &li.Description, &li.Vendor, &li.Category, &cents, &created, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan line item: %w", err)
		}
		li.Estimated = ledger.Cents(cents)
		li.CreatedAt = parseTime(created)
		li.UpdatedAt = parseTime(updated)
		items = append(items, li)
	}
	return items, rows.Err()
}

// UpdateLineItem overwrites the mutable fields. Category is immutable.
func (s *Store) UpdateLineItem(ctx context.Context, li ledger.LineItem) (*ledger.LineItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE line_items
		SET name = ?, description = ?, vendor = ?, estimated_cents = ?, updated_at = ?
		WHERE id = ?`,
		li.Name, li.Description, li.Vendor, li.Estimated.Cents(), now(), li.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update line item: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("line item %s: %w", li.ID, ErrNotFound)
	}
	return s.getLineItemLocked(ctx, li.ID)
}

// DeleteLineItem removes a line item. Blocked while any purchase
// request or transaction still references it.
func (s *Store) DeleteLineItem(ctx context.Context, id ledger.LineItemID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var refs int
	err := s.db.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM purchase_requests WHERE line_item_id = ?)
		     + (SELECT COUNT(*) FROM transactions WHERE line_item_id = ?)`,
		id, id,
	).Scan(&refs)
	if err != nil {
		return fmt.Errorf("failed to count dependents: %w", err)
	}
	if refs > 0 {
		return fmt.Errorf("line item %s has %d dependent records: %w", id, refs, ErrHasDependents)
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM line_items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete line item: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("line item %s: %w", id, ErrNotFound)
	}
	return nil
}

// =============================================================================
// PURCHASE REQUESTS
// =============================================================================

const prColumns = `id, line_item_id, description, vendor, amount_cents, requested_date,
	status, approved_date, rejection_reason, requested_by, decided_by, created_at, updated_at`

func scanRequest(row interface{ Scan(...any) error }) (*ledger.PurchaseRequest, error) {
	var pr ledger.PurchaseRequest
	var cents int64
	var requested, created, updated string
	var approved, reason, decidedBy sql.NullString
	err := row.Scan(&pr.ID, &pr.LineItemID, &pr.Description, &pr.Vendor, &cents, &requested,
		&pr.Status, &approved, &reason, &pr.RequestedBy, &decidedBy, &created, &updated)
	if err != nil {
		return nil, err
	}
	pr.Amount = ledger.Cents(cents)
	pr.RequestedDate = parseTime(requested)
	if approved.Valid {
		t := parseTime(approved.String)
		pr.ApprovedDate = &t
	}
	pr.RejectionReason = strPtr(reason)
	pr.DecidedBy = strPtr(decidedBy)
	pr.CreatedAt = parseTime(created)
	pr.UpdatedAt = parseTime(updated)
	return &pr, nil
}

// CreatePurchaseRequest inserts a Pending request against an expense
// line item and returns the authoritative row.
func (s *Store) CreatePurchaseRequest(ctx context.Context, pr ledger.PurchaseRequest) (*ledger.PurchaseRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	owner, err := s.getLineItemLocked(ctx, pr.LineItemID)
	if err != nil {
		return nil, err
	}
	if owner.Category != ledger.CategoryExpense {
		return nil, fmt.Errorf("%w: purchase requests belong to expense line items", ErrInvalid)
	}

	pr.ID = ledger.PurchaseRequestID(uuid.NewString())
	ts := now()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO purchase_requests
		(id, line_item_id, description, vendor, amount_cents, requested_date, status, requested_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 'Pending', ?, ?, ?)`,
		pr.ID, pr.LineItemID, pr.Description, pr.Vendor, pr.Amount.Cents(),
		fmtTime(pr.RequestedDate), pr.RequestedBy, ts, ts,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert purchase request: %w", err)
	}
	return s.getRequestLocked(ctx, pr.ID)
}

// GetPurchaseRequest returns one purchase request.
func (s *Store) GetPurchaseRequest(ctx context.Context, id ledger.PurchaseRequestID) (*ledger.PurchaseRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getRequestLocked(ctx, id)
}

func (s *Store) getRequestLocked(ctx context.Context, id ledger.PurchaseRequestID) (*ledger.PurchaseRequest, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+prColumns+` FROM purchase_requests WHERE id = ?`, id)
	pr, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("purchase request %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan purchase request: %w", err)
	}
	return pr, nil
}

// UpdatePurchaseRequest overwrites the descriptive fields and ceiling.
// Status and decision fields only change through SaveDecision.
func (s *Store) UpdatePurchaseRequest(ctx context.Context, pr ledger.PurchaseRequest) (*ledger.PurchaseRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE purchase_requests
		SET description = ?, vendor = ?, amount_cents = ?, requested_date = ?, updated_at = ?
		WHERE id = ?`,
		pr.Description, pr.Vendor, pr.Amount.Cents(), fmtTime(pr.RequestedDate), now(), pr.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update purchase request: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("purchase request %s: %w", pr.ID, ErrNotFound)
	}
	return s.getRequestLocked(ctx, pr.ID)
}

// SaveDecision persists the outcome of an approval transition. The
// caller has already run the state machine; this writes the resulting
// status and decision fields in one statement.
func (s *Store) SaveDecision(ctx context.Context, pr ledger.PurchaseRequest) (*ledger.PurchaseRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var approved sql.NullString
	if pr.ApprovedDate != nil {
		approved = sql.NullString{String: fmtTime(*pr.ApprovedDate), Valid: true}
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE purchase_requests
		SET status = ?, approved_date = ?, rejection_reason = ?, decided_by = ?, updated_at = ?
		WHERE id = ?`,
		pr.Status, approved, nullStr(pr.RejectionReason), nullStr(pr.DecidedBy), now(), pr.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to save decision: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("purchase request %s: %w", pr.ID, ErrNotFound)
	}
	return s.getRequestLocked(ctx, pr.ID)
}

// DeletePurchaseRequest removes a request. Blocked while transactions
// still reference it.
func (s *Store) DeletePurchaseRequest(ctx context.Context, id ledger.PurchaseRequestID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var refs int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions WHERE purchase_request_id = ?`, id).Scan(&refs)
	if err != nil {
		return fmt.Errorf("failed to count dependents: %w", err)
	}
	if refs > 0 {
		return fmt.Errorf("purchase request %s has %d transactions: %w", id, refs, ErrHasDependents)
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM purchase_requests WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete purchase request: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("purchase request %s: %w", id, ErrNotFound)
	}
	return nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

const txColumns = `id, purchase_request_id, line_item_id, description, amount_cents, tx_date, method, created_at, updated_at`

func scanTransaction(row interface{ Scan(...any) error }) (*ledger.Transaction, error) {
	var tx ledger.Transaction
	var prID, liID sql.NullString
	var cents int64
	var date, created, updated string
	err := row.Scan(&tx.ID, &prID, &liID, &tx.Description, &cents, &date, &tx.Method, &created, &updated)
	if err != nil {
		return nil, err
	}
	tx.PurchaseRequestID = ledger.PurchaseRequestID(prID.String)
	tx.LineItemID = ledger.LineItemID(liID.String)
	tx.Amount = ledger.Cents(cents)
	tx.Date = parseTime(date)
	tx.CreatedAt = parseTime(created)
	tx.UpdatedAt = parseTime(updated)
	return &tx, nil
}

// CreateTransaction records a movement of money. For an expense
// transaction the owning purchase request must currently be Approved;
// this is the authoritative re-check of the client-side gate.
func (s *Store) CreateTransaction(ctx context.Context, tx ledger.Transaction) (*ledger.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var prID, liID sql.NullString
	switch {
	case tx.PurchaseRequestID != "":
		pr, err := s.getRequestLocked(ctx, tx.PurchaseRequestID)
		if err != nil {
			return nil, err
		}
		if pr.Status != ledger.StatusApproved {
			return nil, fmt.Errorf("purchase request %s is %s: %w", pr.ID, pr.Status, ErrNotApproved)
		}
		prID = sql.NullString{String: string(tx.PurchaseRequestID), Valid: true}
	case tx.LineItemID != "":
		owner, err := s.getLineItemLocked(ctx, tx.LineItemID)
		if err != nil {
			return nil, err
		}
		if owner.Category != ledger.CategoryRevenue {
			return nil, fmt.Errorf("%w: direct transactions belong to revenue line items", ErrInvalid)
		}
		liID = sql.NullString{String: string(tx.LineItemID), Valid: true}
	default:
		return nil, fmt.Errorf("%w: transaction has no owner", ErrInvalid)
	}

	tx.ID = ledger.TransactionID(uuid.NewString())
	ts := now()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions
		(id, purchase_request_id, line_item_id, description, amount_cents, tx_date, method, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, prID, liID, tx.Description, tx.Amount.Cents(), fmtTime(tx.Date), tx.Method, ts, ts,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert transaction: %w", err)
	}
	return s.getTransactionLocked(ctx, tx.ID)
}

// GetTransaction returns one transaction.
func (s *Store) GetTransaction(ctx context.Context, id ledger.TransactionID) (*ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getTransactionLocked(ctx, id)
}

func (s *Store) getTransactionLocked(ctx context.Context, id ledger.TransactionID) (*ledger.Transaction, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+txColumns+` FROM transactions WHERE id = ?`, id)
	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transaction %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan transaction: %w", err)
	}
	return tx, nil
}

// UpdateTransaction overwrites amount, date, method, and description.
// No status gate: edits of existing transactions are always legal.
func (s *Store) UpdateTransaction(ctx context.Context, tx ledger.Transaction) (*ledger.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE transactions
		SET description = ?, amount_cents = ?, tx_date = ?, method = ?, updated_at = ?
		WHERE id = ?`,
		tx.Description, tx.Amount.Cents(), fmtTime(tx.Date), tx.Method, now(), tx.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update transaction: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("transaction %s: %w", tx.ID, ErrNotFound)
	}
	return s.getTransactionLocked(ctx, tx.ID)
}

// DeleteTransaction removes a transaction. Always legal.
func (s *Store) DeleteTransaction(ctx context.Context, id ledger.TransactionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete transaction: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("transaction %s: %w", id, ErrNotFound)
	}
	return nil
}

// =============================================================================
// AGGREGATE READ - The refetch target
// =============================================================================

// GetAggregate returns a line item with every purchase request and
// transaction reachable from it, in deterministic presentation order.
func (s *Store) GetAggregate(ctx context.Context, id ledger.LineItemID) (*ledger.Aggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	li, err := s.getLineItemLocked(ctx, id)
	if err != nil {
		return nil, err
	}
	agg := &ledger.Aggregate{LineItem: *li}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+prColumns+` FROM purchase_requests WHERE line_item_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query purchase requests: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		pr, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan purchase request: %w", err)
		}
		agg.Requests = append(agg.Requests, *pr)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	txRows, err := s.db.QueryContext(ctx, `
		SELECT `+txColumns+` FROM transactions
		WHERE line_item_id = ?
		   OR purchase_request_id IN (SELECT id FROM purchase_requests WHERE line_item_id = ?)`,
		id, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer txRows.Close()
	for txRows.Next() {
		tx, err := scanTransaction(txRows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		agg.Transactions = append(agg.Transactions, *tx)
	}
	if err := txRows.Err(); err != nil {
		return nil, err
	}

	ledger.SortRequests(agg.Requests, ledger.OrderByDate)
	ledger.SortTransactions(agg.Transactions, ledger.OrderByDate)
	return agg, nil
}
