/*
store.go - Persistence contract for the ledger core

PURPOSE:
  Defines the interface between the ledger and its document store. The core
  treats the backend as a transactional key-value/document store; all
  cross-entity consistency comes from the transaction boundary, never from
  ad-hoc multi-document joins.

KEY INTERFACES:
  Store:    Per-collection reads and writes
  TxStore:  Atomic read-modify-write scope for the mutating operations

CONCURRENCY CONTRACT:
  - Version-checked writes: SaveHousehold and SaveRotaItem persist the
    record only if the stored version still matches the version the caller
    read, then increment it. A mismatch returns ErrVersionConflict.
  - Insert-if-absent: InsertSettlement enforces at-most-one settlement per
    (household, period start) and returns ErrAlreadySettled on a duplicate.
  - WithTx: every state-changing operation (recordPurchase, setTurn,
    settlement close) runs as one WithTx call scoped to the minimal set of
    documents it touches. Reads inside the transaction observe its own
    writes.

IMPLEMENTATIONS:
  - store/sqlite: Production SQLite
  - ledger/store: In-memory, for tests and development
*/
package ledger

import (
	"context"
	"time"
)

// Store handles persistence of ledger documents.
//
// Purchases and settlements are append-only: there is no update or delete
// for either, except the one-time StampPurchases back-reference.
type Store interface {
	// GetHousehold returns the household or ErrHouseholdNotFound.
	GetHousehold(ctx context.Context, id HouseholdID) (*Household, error)

	// SaveHousehold persists the household with a version check: the write
	// succeeds only if the stored version equals h.Version (0 for a new
	// record), and the stored version becomes h.Version+1. A mismatch
	// returns ErrVersionConflict.
	SaveHousehold(ctx context.Context, h Household) error

	// GetRotaItem returns the item or ErrItemNotFound.
	GetRotaItem(ctx context.Context, id ItemID) (*RotaItem, error)

	// ListRotaItems returns all rota items of a household, creation order.
	ListRotaItems(ctx context.Context, household HouseholdID) ([]RotaItem, error)

	// SaveRotaItem persists the item with the same version-check semantics
	// as SaveHousehold.
	SaveRotaItem(ctx context.Context, item RotaItem) error

	// InsertPurchase appends a purchase. Purchases are immutable.
	InsertPurchase(ctx context.Context, p Purchase) error

	// ListOpenPurchases returns the household's purchases not yet stamped
	// with a settlement, ordered by purchase time.
	ListOpenPurchases(ctx context.Context, household HouseholdID) ([]Purchase, error)

	// ListPurchasesBySettlement returns the purchases archived under a
	// settlement, ordered by purchase time.
	ListPurchasesBySettlement(ctx context.Context, id SettlementID) ([]Purchase, error)

	// StampPurchases sets the settlement back-reference on every open
	// purchase of the household. Returns the number of purchases stamped.
	// The stamp set must equal the set of purchases whose balance deltas
	// the settlement snapshots, so there is no timestamp filter: a
	// purchase is open exactly until the close that absorbs it.
	StampPurchases(ctx context.Context, household HouseholdID, id SettlementID) (int, error)

	// GetBalances returns the open-period balance entries of a household.
	// Members without an entry simply have the zero balance.
	GetBalances(ctx context.Context, household HouseholdID) ([]BalanceEntry, error)

	// UpsertBalance stores the absolute balance entry for one member.
	UpsertBalance(ctx context.Context, household HouseholdID, e BalanceEntry) error

	// ResetBalances zeroes every balance entry of the household. Invoked
	// only by the settlement engine as part of a successful close.
	ResetBalances(ctx context.Context, household HouseholdID, at time.Time) error

	// InsertSettlement appends a settlement. Enforces at-most-one settlement
	// per (household, period start): a duplicate returns ErrAlreadySettled.
	InsertSettlement(ctx context.Context, s Settlement) error

	// GetSettlement returns the settlement or ErrSettlementNotFound.
	GetSettlement(ctx context.Context, id SettlementID) (*Settlement, error)

	// ListSettlements returns the household's settlements, newest first.
	ListSettlements(ctx context.Context, household HouseholdID) ([]Settlement, error)
}

// TxStore wraps Store with transaction support.
//
// WithTx executes fn within one atomic transaction: if fn returns an error
// the transaction is rolled back, otherwise it is committed. The Store
// passed to fn reads its own uncommitted writes.
type TxStore interface {
	Store

	WithTx(ctx context.Context, fn func(Store) error) error
}
