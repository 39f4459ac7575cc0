/*
Package sqlite provides a SQLite-backed implementation of ledger.TxStore.

PURPOSE:
  Production persistence for the household ledger. In production with
  PostgreSQL the same patterns apply - only minor SQL dialect differences.

KEY TABLES:
  households:  Versioned household documents
  rota_items:  Versioned rota state (order + turn index)
  purchases:   Append-only purchase log (settlement_id stamped once)
  balances:    Open-period entry per (household, member)
  settlements: Append-only settlement history

APPEND-ONLY ENFORCEMENT:
  - No DELETE statements on purchases or settlements
  - The only UPDATE on purchases is the one-time settlement_id stamp

CONCURRENCY:
  - Version-checked writes: UPDATE ... WHERE version = ? detects lost
    updates and surfaces ledger.ErrVersionConflict for the recorder's
    bounded retry loop.
  - Insert-if-absent: the unique (household_id, period_start) index on
    settlements enforces at most one settlement per open period; a
    constraint violation maps to ledger.ErrAlreadySettled.
  - WithTx runs every mutating ledger operation inside one database
    transaction; reads inside the transaction observe its own writes.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - ledger/store.go: Interface definitions and contracts
  - ledger/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/household-ledger/ledger"
)

var _ ledger.TxStore = (*Store)(nil)

// Store implements ledger.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS households (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		admin_id TEXT NOT NULL,
		members_json TEXT NOT NULL,
		period_start TEXT NOT NULL,
		version INTEGER NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS rota_items (
		id TEXT PRIMARY KEY,
		household_id TEXT NOT NULL REFERENCES households(id),
		name TEXT NOT NULL,
		rota_order_json TEXT NOT NULL,
		turn_index INTEGER NOT NULL,
		active INTEGER NOT NULL,
		version INTEGER NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_rota_items_household
		ON rota_items(household_id);

	CREATE TABLE IF NOT EXISTS settlements (
		id TEXT PRIMARY KEY,
		household_id TEXT NOT NULL REFERENCES households(id),
		period_start TEXT NOT NULL,
		period_end TEXT NOT NULL,
		closed_by TEXT NOT NULL,
		statements_json TEXT NOT NULL,
		purchase_count INTEGER NOT NULL,
		created_at TEXT NOT NULL
	);

	-- Insert-if-absent guard: at most one settlement per open period.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_settlements_period
		ON settlements(household_id, period_start);
	CREATE INDEX IF NOT EXISTS idx_settlements_household
		ON settlements(household_id, created_at DESC);

	CREATE TABLE IF NOT EXISTS purchases (
		id TEXT PRIMARY KEY,
		household_id TEXT NOT NULL REFERENCES households(id),
		item_id TEXT NOT NULL REFERENCES rota_items(id),
		purchased_by TEXT NOT NULL,
		expected_by TEXT NOT NULL,
		amount TEXT NOT NULL,
		at TEXT NOT NULL,
		settlement_id TEXT REFERENCES settlements(id)
	);

	-- Open-period scan (hot path) and settlement archive lookup.
	CREATE INDEX IF NOT EXISTS idx_purchases_household_open
		ON purchases(household_id, at) WHERE settlement_id IS NULL;
	CREATE INDEX IF NOT EXISTS idx_purchases_settlement
		ON purchases(settlement_id) WHERE settlement_id IS NOT NULL;

	CREATE TABLE IF NOT EXISTS balances (
		household_id TEXT NOT NULL REFERENCES households(id),
		member_id TEXT NOT NULL,
		total_purchased TEXT NOT NULL,
		expected_purchases TEXT NOT NULL,
		last_updated TEXT NOT NULL,
		PRIMARY KEY (household_id, member_id)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// dbtx is the executor shared by the pool-backed store and transactions.
// Reads inside a transaction must observe its own writes: the balance
// ledger applies two deltas to the same row for an in-turn purchase.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// STORE (ledger.Store interface)
// =============================================================================

func (s *Store) GetHousehold(ctx context.Context, id ledger.HouseholdID) (*ledger.Household, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getHousehold(ctx, s.db, id)
}

func (s *Store) SaveHousehold(ctx context.Context, h ledger.Household) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveHousehold(ctx, s.db, h)
}

func (s *Store) GetRotaItem(ctx context.Context, id ledger.ItemID) (*ledger.RotaItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getRotaItem(ctx, s.db, id)
}

func (s *Store) ListRotaItems(ctx context.Context, household ledger.HouseholdID) ([]ledger.RotaItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listRotaItems(ctx, s.db, household)
}

func (s *Store) SaveRotaItem(ctx context.Context, item ledger.RotaItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveRotaItem(ctx, s.db, item)
}

func (s *Store) InsertPurchase(ctx context.Context, p ledger.Purchase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertPurchase(ctx, s.db, p)
}

func (s *Store) ListOpenPurchases(ctx context.Context, household ledger.HouseholdID) ([]ledger.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listOpenPurchases(ctx, s.db, household)
}

func (s *Store) ListPurchasesBySettlement(ctx context.Context, id ledger.SettlementID) ([]ledger.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listPurchasesBySettlement(ctx, s.db, id)
}

func (s *Store) StampPurchases(ctx context.Context, household ledger.HouseholdID, id ledger.SettlementID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return stampPurchases(ctx, s.db, household, id)
}

func (s *Store) GetBalances(ctx context.Context, household ledger.HouseholdID) ([]ledger.BalanceEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getBalances(ctx, s.db, household)
}

func (s *Store) UpsertBalance(ctx context.Context, household ledger.HouseholdID, e ledger.BalanceEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return upsertBalance(ctx, s.db, household, e)
}

func (s *Store) ResetBalances(ctx context.Context, household ledger.HouseholdID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return resetBalances(ctx, s.db, household, at)
}

func (s *Store) InsertSettlement(ctx context.Context, settlement ledger.Settlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertSettlement(ctx, s.db, settlement)
}

func (s *Store) GetSettlement(ctx context.Context, id ledger.SettlementID) (*ledger.Settlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getSettlement(ctx, s.db, id)
}

func (s *Store) ListSettlements(ctx context.Context, household ledger.HouseholdID) ([]ledger.Settlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listSettlements(ctx, s.db, household)
}

// =============================================================================
// TRANSACTIONAL STORE (ledger.TxStore interface)
// =============================================================================

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// txStore runs every operation on the open transaction, so reads see
// the transaction's own uncommitted writes.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) GetHousehold(ctx context.Context, id ledger.HouseholdID) (*ledger.Household, error) {
	return getHousehold(ctx, ts.tx, id)
}

func (ts *txStore) SaveHousehold(ctx context.Context, h ledger.Household) error {
	return saveHousehold(ctx, ts.tx, h)
}

func (ts *txStore) GetRotaItem(ctx context.Context, id ledger.ItemID) (*ledger.RotaItem, error) {
	return getRotaItem(ctx, ts.tx, id)
}

func (ts *txStore) ListRotaItems(ctx context.Context, household ledger.HouseholdID) ([]ledger.RotaItem, error) {
	return listRotaItems(ctx, ts.tx, household)
}

func (ts *txStore) SaveRotaItem(ctx context.Context, item ledger.RotaItem) error {
	return saveRotaItem(ctx, ts.tx, item)
}

func (ts *txStore) InsertPurchase(ctx context.Context, p ledger.Purchase) error {
	return insertPurchase(ctx, ts.tx, p)
}

func (ts *txStore) ListOpenPurchases(ctx context.Context, household ledger.HouseholdID) ([]ledger.Purchase, error) {
	return listOpenPurchases(ctx, ts.tx, household)
}

func (ts *txStore) ListPurchasesBySettlement(ctx context.Context, id ledger.SettlementID) ([]ledger.Purchase, error) {
	return listPurchasesBySettlement(ctx, ts.tx, id)
}

func (ts *txStore) StampPurchases(ctx context.Context, household ledger.HouseholdID, id ledger.SettlementID) (int, error) {
	return stampPurchases(ctx, ts.tx, household, id)
}

func (ts *txStore) GetBalances(ctx context.Context, household ledger.HouseholdID) ([]ledger.BalanceEntry, error) {
	return getBalances(ctx, ts.tx, household)
}

func (ts *txStore) UpsertBalance(ctx context.Context, household ledger.HouseholdID, e ledger.BalanceEntry) error {
	return upsertBalance(ctx, ts.tx, household, e)
}

func (ts *txStore) ResetBalances(ctx context.Context, household ledger.HouseholdID, at time.Time) error {
	return resetBalances(ctx, ts.tx, household, at)
}

func (ts *txStore) InsertSettlement(ctx context.Context, settlement ledger.Settlement) error {
	return insertSettlement(ctx, ts.tx, settlement)
}

func (ts *txStore) GetSettlement(ctx context.Context, id ledger.SettlementID) (*ledger.Settlement, error) {
	return getSettlement(ctx, ts.tx, id)
}

func (ts *txStore) ListSettlements(ctx context.Context, household ledger.HouseholdID) ([]ledger.Settlement, error) {
	return listSettlements(ctx, ts.tx, household)
}

// =============================================================================
// HOUSEHOLDS
// =============================================================================

func getHousehold(ctx context.Context, db dbtx, id ledger.HouseholdID) (*ledger.Household, error) {
	var (
		h           ledger.Household
		membersJSON string
		periodStart string
		createdAt   string
	)
	err := db.QueryRowContext(ctx, `
		SELECT id, name, admin_id, members_json, period_start, version, created_at
		FROM households WHERE id = ?`, string(id),
	).Scan(&h.ID, &h.Name, &h.AdminID, &membersJSON, &periodStart, &h.Version, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrHouseholdNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get household: %w", err)
	}

	if err := json.Unmarshal([]byte(membersJSON), &h.Members); err != nil {
		return nil, fmt.Errorf("failed to decode household members: %w", err)
	}
	if h.PeriodStart, err = parseTime(periodStart); err != nil {
		return nil, err
	}
	if h.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &h, nil
}

func saveHousehold(ctx context.Context, db dbtx, h ledger.Household) error {
	membersJSON, err := json.Marshal(h.Members)
	if err != nil {
		return fmt.Errorf("failed to encode household members: %w", err)
	}

	if h.Version == 0 {
		_, err := db.ExecContext(ctx, `
			INSERT INTO households (id, name, admin_id, members_json, period_start, version, created_at)
			VALUES (?, ?, ?, ?, ?, 1, ?)`,
			string(h.ID), h.Name, string(h.AdminID), string(membersJSON),
			formatTime(h.PeriodStart), formatTime(h.CreatedAt),
		)
		if err != nil {
			if isUniqueConstraintError(err) {
				return ledger.ErrVersionConflict
			}
			return fmt.Errorf("failed to insert household: %w", err)
		}
		return nil
	}

	res, err := db.ExecContext(ctx, `
		UPDATE households
		SET name = ?, admin_id = ?, members_json = ?, period_start = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		h.Name, string(h.AdminID), string(membersJSON), formatTime(h.PeriodStart),
		string(h.ID), h.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update household: %w", err)
	}
	return requireOneRow(res, ledger.ErrVersionConflict)
}

// =============================================================================
// ROTA ITEMS
// =============================================================================

func getRotaItem(ctx context.Context, db dbtx, id ledger.ItemID) (*ledger.RotaItem, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, household_id, name, rota_order_json, turn_index, active, version, created_at
		FROM rota_items WHERE id = ?`, string(id))
	item, err := scanRotaItem(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rota item: %w", err)
	}
	return item, nil
}

func listRotaItems(ctx context.Context, db dbtx, household ledger.HouseholdID) ([]ledger.RotaItem, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, household_id, name, rota_order_json, turn_index, active, version, created_at
		FROM rota_items WHERE household_id = ? ORDER BY created_at ASC, id ASC`, string(household))
	if err != nil {
		return nil, fmt.Errorf("failed to list rota items: %w", err)
	}
	defer rows.Close()

	var items []ledger.RotaItem
	for rows.Next() {
		item, err := scanRotaItem(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rota item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

func scanRotaItem(scan func(dest ...any) error) (*ledger.RotaItem, error) {
	var (
		item          ledger.RotaItem
		rotaOrderJSON string
		active        int
		createdAt     string
	)
	err := scan(&item.ID, &item.HouseholdID, &item.Name, &rotaOrderJSON,
		&item.TurnIndex, &active, &item.Version, &createdAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(rotaOrderJSON), &item.RotaOrder); err != nil {
		return nil, fmt.Errorf("failed to decode rota order: %w", err)
	}
	item.Active = active != 0
	if item.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &item, nil
}

func saveRotaItem(ctx context.Context, db dbtx, item ledger.RotaItem) error {
	orderJSON, err := json.Marshal(item.RotaOrder)
	if err != nil {
		return fmt.Errorf("failed to encode rota order: %w", err)
	}

	if item.Version == 0 {
		_, err := db.ExecContext(ctx, `
			INSERT INTO rota_items (id, household_id, name, rota_order_json, turn_index, active, version, created_at)
			VALUES (?, ?, ?, ?, ?, ?, 1, ?)`,
			string(item.ID), string(item.HouseholdID), item.Name, string(orderJSON),
			item.TurnIndex, boolToInt(item.Active), formatTime(item.CreatedAt),
		)
		if err != nil {
			if isUniqueConstraintError(err) {
				return ledger.ErrVersionConflict
			}
			return fmt.Errorf("failed to insert rota item: %w", err)
		}
		return nil
	}

	res, err := db.ExecContext(ctx, `
		UPDATE rota_items
		SET name = ?, rota_order_json = ?, turn_index = ?, active = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		item.Name, string(orderJSON), item.TurnIndex, boolToInt(item.Active),
		string(item.ID), item.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update rota item: %w", err)
	}
	return requireOneRow(res, ledger.ErrVersionConflict)
}

// =============================================================================
// PURCHASES (append-only)
// =============================================================================

func insertPurchase(ctx context.Context, db dbtx, p ledger.Purchase) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO purchases (id, household_id, item_id, purchased_by, expected_by, amount, at, settlement_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, NULL)`,
		string(p.ID), string(p.HouseholdID), string(p.ItemID),
		string(p.PurchasedBy), string(p.ExpectedBy),
		p.Amount.String(), formatTime(p.At),
	)
	if err != nil {
		return fmt.Errorf("failed to insert purchase: %w", err)
	}
	return nil
}

func listOpenPurchases(ctx context.Context, db dbtx, household ledger.HouseholdID) ([]ledger.Purchase, error) {
	return queryPurchases(ctx, db, `
		SELECT id, household_id, item_id, purchased_by, expected_by, amount, at, settlement_id
		FROM purchases
		WHERE household_id = ? AND settlement_id IS NULL
		ORDER BY at ASC, id ASC`, string(household))
}

func listPurchasesBySettlement(ctx context.Context, db dbtx, id ledger.SettlementID) ([]ledger.Purchase, error) {
	return queryPurchases(ctx, db, `
		SELECT id, household_id, item_id, purchased_by, expected_by, amount, at, settlement_id
		FROM purchases
		WHERE settlement_id = ?
		ORDER BY at ASC, id ASC`, string(id))
}

func stampPurchases(ctx context.Context, db dbtx, household ledger.HouseholdID, id ledger.SettlementID) (int, error) {
	res, err := db.ExecContext(ctx, `
		UPDATE purchases SET settlement_id = ?
		WHERE household_id = ? AND settlement_id IS NULL`,
		string(id), string(household),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to stamp purchases: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count stamped purchases: %w", err)
	}
	return int(n), nil
}

func queryPurchases(ctx context.Context, db dbtx, query string, args ...any) ([]ledger.Purchase, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query purchases: %w", err)
	}
	defer rows.Close()

	var purchases []ledger.Purchase
	for rows.Next() {
		var (
			p            ledger.Purchase
			amount       string
			at           string
			settlementID sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.HouseholdID, &p.ItemID, &p.PurchasedBy,
			&p.ExpectedBy, &amount, &at, &settlementID); err != nil {
			return nil, fmt.Errorf("failed to scan purchase: %w", err)
		}
		p.Amount = ledger.ParseAmount(amount)
		if p.At, err = parseTime(at); err != nil {
			return nil, err
		}
		p.SettlementID = ledger.SettlementID(settlementID.String)
		purchases = append(purchases, p)
	}
	return purchases, rows.Err()
}

// =============================================================================
// BALANCES
// =============================================================================

func getBalances(ctx context.Context, db dbtx, household ledger.HouseholdID) ([]ledger.BalanceEntry, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT member_id, total_purchased, expected_purchases, last_updated
		FROM balances WHERE household_id = ? ORDER BY member_id ASC`, string(household))
	if err != nil {
		return nil, fmt.Errorf("failed to query balances: %w", err)
	}
	defer rows.Close()

	var entries []ledger.BalanceEntry
	for rows.Next() {
		var (
			e                 ledger.BalanceEntry
			totalPurchased    string
			expectedPurchases string
			lastUpdated       string
		)
		if err := rows.Scan(&e.MemberID, &totalPurchased, &expectedPurchases, &lastUpdated); err != nil {
			return nil, fmt.Errorf("failed to scan balance entry: %w", err)
		}
		e.TotalPurchased = ledger.ParseAmount(totalPurchased)
		e.ExpectedPurchases = ledger.ParseAmount(expectedPurchases)
		if e.LastUpdated, err = parseTime(lastUpdated); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func upsertBalance(ctx context.Context, db dbtx, household ledger.HouseholdID, e ledger.BalanceEntry) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO balances (household_id, member_id, total_purchased, expected_purchases, last_updated)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (household_id, member_id) DO UPDATE SET
			total_purchased = excluded.total_purchased,
			expected_purchases = excluded.expected_purchases,
			last_updated = excluded.last_updated`,
		string(household), string(e.MemberID),
		e.TotalPurchased.String(), e.ExpectedPurchases.String(),
		formatTime(e.LastUpdated),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert balance: %w", err)
	}
	return nil
}

func resetBalances(ctx context.Context, db dbtx, household ledger.HouseholdID, at time.Time) error {
	_, err := db.ExecContext(ctx, `
		UPDATE balances SET total_purchased = '0', expected_purchases = '0', last_updated = ?
		WHERE household_id = ?`,
		formatTime(at), string(household),
	)
	if err != nil {
		return fmt.Errorf("failed to reset balances: %w", err)
	}
	return nil
}

// =============================================================================
// SETTLEMENTS (append-only)
// =============================================================================

func insertSettlement(ctx context.Context, db dbtx, s ledger.Settlement) error {
	statementsJSON, err := json.Marshal(statementRecords(s.Statements))
	if err != nil {
		return fmt.Errorf("failed to encode settlement statements: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO settlements (id, household_id, period_start, period_end, closed_by, statements_json, purchase_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(s.ID), string(s.HouseholdID),
		formatTime(s.Period.Start), formatTime(s.Period.End),
		string(s.ClosedBy), string(statementsJSON), s.PurchaseCount,
		formatTime(s.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ledger.ErrAlreadySettled
		}
		return fmt.Errorf("failed to insert settlement: %w", err)
	}
	return nil
}

func getSettlement(ctx context.Context, db dbtx, id ledger.SettlementID) (*ledger.Settlement, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, household_id, period_start, period_end, closed_by, statements_json, purchase_count, created_at
		FROM settlements WHERE id = ?`, string(id))
	s, err := scanSettlement(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrSettlementNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get settlement: %w", err)
	}
	return s, nil
}

func listSettlements(ctx context.Context, db dbtx, household ledger.HouseholdID) ([]ledger.Settlement, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, household_id, period_start, period_end, closed_by, statements_json, purchase_count, created_at
		FROM settlements WHERE household_id = ? ORDER BY created_at DESC, id ASC`, string(household))
	if err != nil {
		return nil, fmt.Errorf("failed to list settlements: %w", err)
	}
	defer rows.Close()

	var settlements []ledger.Settlement
	for rows.Next() {
		s, err := scanSettlement(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan settlement: %w", err)
		}
		settlements = append(settlements, *s)
	}
	return settlements, rows.Err()
}

func scanSettlement(scan func(dest ...any) error) (*ledger.Settlement, error) {
	var (
		s              ledger.Settlement
		periodStart    string
		periodEnd      string
		statementsJSON string
		createdAt      string
	)
	err := scan(&s.ID, &s.HouseholdID, &periodStart, &periodEnd, &s.ClosedBy,
		&statementsJSON, &s.PurchaseCount, &createdAt)
	if err != nil {
		return nil, err
	}

	var records []statementRecord
	if err := json.Unmarshal([]byte(statementsJSON), &records); err != nil {
		return nil, fmt.Errorf("failed to decode settlement statements: %w", err)
	}
	s.Statements = make([]ledger.MemberStatement, len(records))
	for i, r := range records {
		s.Statements[i] = r.toStatement()
	}
	if s.Period.Start, err = parseTime(periodStart); err != nil {
		return nil, err
	}
	if s.Period.End, err = parseTime(periodEnd); err != nil {
		return nil, err
	}
	if s.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &s, nil
}

// statementRecord is the stored JSON shape of a member statement. Amounts
// are decimal strings so the archive stays exact.
type statementRecord struct {
	MemberID          string `json:"member_id"`
	TotalPurchased    string `json:"total_purchased"`
	ExpectedPurchases string `json:"expected_purchases"`
	NetBalance        string `json:"net_balance"`
	BaseRentShare     string `json:"base_rent_share"`
	AdjustedRent      string `json:"adjusted_rent"`
}

func statementRecords(statements []ledger.MemberStatement) []statementRecord {
	records := make([]statementRecord, len(statements))
	for i, st := range statements {
		records[i] = statementRecord{
			MemberID:          string(st.MemberID),
			TotalPurchased:    st.TotalPurchased.String(),
			ExpectedPurchases: st.ExpectedPurchases.String(),
			NetBalance:        st.NetBalance.String(),
			BaseRentShare:     st.BaseRentShare.String(),
			AdjustedRent:      st.AdjustedRent.String(),
		}
	}
	return records
}

func (r statementRecord) toStatement() ledger.MemberStatement {
	return ledger.MemberStatement{
		MemberID:          ledger.MemberID(r.MemberID),
		TotalPurchased:    ledger.ParseAmount(r.TotalPurchased),
		ExpectedPurchases: ledger.ParseAmount(r.ExpectedPurchases),
		NetBalance:        ledger.ParseAmount(r.NetBalance),
		BaseRentShare:     ledger.ParseAmount(r.BaseRentShare),
		AdjustedRent:      ledger.ParseAmount(r.AdjustedRent),
	}
}

// =============================================================================
// HELPERS
// =============================================================================

func requireOneRow(res sql.Result, conflictErr error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if n == 0 {
		return conflictErr
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("corrupt time column %q: %w", s, err)
	}
	return t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
