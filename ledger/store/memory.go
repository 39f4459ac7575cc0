// Package store provides ledger.Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/household-ledger/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

var (
	_ ledger.Store   = (*Memory)(nil)
	_ ledger.TxStore = (*TxMemory)(nil)
)

type Memory struct {
	mu sync.RWMutex

	households  map[ledger.HouseholdID]ledger.Household
	items       map[ledger.ItemID]ledger.RotaItem
	itemOrder   []ledger.ItemID
	purchases   []ledger.Purchase
	balances    map[ledger.HouseholdID]map[ledger.MemberID]ledger.BalanceEntry
	settlements map[ledger.SettlementID]ledger.Settlement
	settledAt   map[periodKey]bool
}

// periodKey enforces insert-if-absent for settlements.
type periodKey struct {
	Household   ledger.HouseholdID
	PeriodStart int64 // unix nanos
}

func NewMemory() *Memory {
	return &Memory{
		households:  make(map[ledger.HouseholdID]ledger.Household),
		items:       make(map[ledger.ItemID]ledger.RotaItem),
		balances:    make(map[ledger.HouseholdID]map[ledger.MemberID]ledger.BalanceEntry),
		settlements: make(map[ledger.SettlementID]ledger.Settlement),
		settledAt:   make(map[periodKey]bool),
	}
}

// -----------------------------------------------------------------------------
// Households
// -----------------------------------------------------------------------------

func (m *Memory) GetHousehold(_ context.Context, id ledger.HouseholdID) (*ledger.Household, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getHouseholdLocked(id)
}

func (m *Memory) getHouseholdLocked(id ledger.HouseholdID) (*ledger.Household, error) {
	h, ok := m.households[id]
	if !ok {
		return nil, ledger.ErrHouseholdNotFound
	}
	copied := h
	copied.Members = append([]ledger.MemberID(nil), h.Members...)
	return &copied, nil
}

func (m *Memory) SaveHousehold(_ context.Context, h ledger.Household) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveHouseholdLocked(h)
}

func (m *Memory) saveHouseholdLocked(h ledger.Household) error {
	existing, ok := m.households[h.ID]
	if ok {
		if existing.Version != h.Version {
			return ledger.ErrVersionConflict
		}
	} else if h.Version != 0 {
		return ledger.ErrVersionConflict
	}
	h.Version++
	h.Members = append([]ledger.MemberID(nil), h.Members...)
	m.households[h.ID] = h
	return nil
}

// -----------------------------------------------------------------------------
// Rota items
// -----------------------------------------------------------------------------

func (m *Memory) GetRotaItem(_ context.Context, id ledger.ItemID) (*ledger.RotaItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getRotaItemLocked(id)
}

func (m *Memory) getRotaItemLocked(id ledger.ItemID) (*ledger.RotaItem, error) {
	item, ok := m.items[id]
	if !ok {
		return nil, ledger.ErrItemNotFound
	}
	copied := item
	copied.RotaOrder = append([]ledger.MemberID(nil), item.RotaOrder...)
	return &copied, nil
}

func (m *Memory) ListRotaItems(_ context.Context, household ledger.HouseholdID) ([]ledger.RotaItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listRotaItemsLocked(household)
}

func (m *Memory) listRotaItemsLocked(household ledger.HouseholdID) ([]ledger.RotaItem, error) {
	var result []ledger.RotaItem
	for _, id := range m.itemOrder {
		item := m.items[id]
		if item.HouseholdID != household {
			continue
		}
		copied := item
		copied.RotaOrder = append([]ledger.MemberID(nil), item.RotaOrder...)
		result = append(result, copied)
	}
	return result, nil
}

func (m *Memory) SaveRotaItem(_ context.Context, item ledger.RotaItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveRotaItemLocked(item)
}

func (m *Memory) saveRotaItemLocked(item ledger.RotaItem) error {
	existing, ok := m.items[item.ID]
	if ok {
		if existing.Version != item.Version {
			return ledger.ErrVersionConflict
		}
	} else {
		if item.Version != 0 {
			return ledger.ErrVersionConflict
		}
		m.itemOrder = append(m.itemOrder, item.ID)
	}
	item.Version++
	item.RotaOrder = append([]ledger.MemberID(nil), item.RotaOrder...)
	m.items[item.ID] = item
	return nil
}

// -----------------------------------------------------------------------------
// Purchases (append-only)
// -----------------------------------------------------------------------------

func (m *Memory) InsertPurchase(_ context.Context, p ledger.Purchase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertPurchaseLocked(p)
}

func (m *Memory) insertPurchaseLocked(p ledger.Purchase) error {
	m.purchases = append(m.purchases, p)
	return nil
}

func (m *Memory) ListOpenPurchases(_ context.Context, household ledger.HouseholdID) ([]ledger.Purchase, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listOpenPurchasesLocked(household)
}

func (m *Memory) listOpenPurchasesLocked(household ledger.HouseholdID) ([]ledger.Purchase, error) {
	var result []ledger.Purchase
	for _, p := range m.purchases {
		if p.HouseholdID == household && p.SettlementID == "" {
			result = append(result, p)
		}
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].At.Before(result[j].At) })
	return result, nil
}

func (m *Memory) ListPurchasesBySettlement(_ context.Context, id ledger.SettlementID) ([]ledger.Purchase, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listPurchasesBySettlementLocked(id)
}

func (m *Memory) listPurchasesBySettlementLocked(id ledger.SettlementID) ([]ledger.Purchase, error) {
	var result []ledger.Purchase
	for _, p := range m.purchases {
		if p.SettlementID == id {
			result = append(result, p)
		}
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].At.Before(result[j].At) })
	return result, nil
}

func (m *Memory) StampPurchases(_ context.Context, household ledger.HouseholdID, id ledger.SettlementID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stampPurchasesLocked(household, id)
}

func (m *Memory) stampPurchasesLocked(household ledger.HouseholdID, id ledger.SettlementID) (int, error) {
	count := 0
	for i := range m.purchases {
		p := &m.purchases[i]
		if p.HouseholdID == household && p.SettlementID == "" {
			p.SettlementID = id
			count++
		}
	}
	return count, nil
}

// -----------------------------------------------------------------------------
// Balances
// -----------------------------------------------------------------------------

func (m *Memory) GetBalances(_ context.Context, household ledger.HouseholdID) ([]ledger.BalanceEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getBalancesLocked(household)
}

func (m *Memory) getBalancesLocked(household ledger.HouseholdID) ([]ledger.BalanceEntry, error) {
	entries := make([]ledger.BalanceEntry, 0, len(m.balances[household]))
	for _, e := range m.balances[household] {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].MemberID < entries[j].MemberID })
	return entries, nil
}

func (m *Memory) UpsertBalance(_ context.Context, household ledger.HouseholdID, e ledger.BalanceEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upsertBalanceLocked(household, e)
}

func (m *Memory) upsertBalanceLocked(household ledger.HouseholdID, e ledger.BalanceEntry) error {
	if m.balances[household] == nil {
		m.balances[household] = make(map[ledger.MemberID]ledger.BalanceEntry)
	}
	m.balances[household][e.MemberID] = e
	return nil
}

func (m *Memory) ResetBalances(_ context.Context, household ledger.HouseholdID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resetBalancesLocked(household, at)
}

func (m *Memory) resetBalancesLocked(household ledger.HouseholdID, at time.Time) error {
	for member, e := range m.balances[household] {
		e.TotalPurchased = ledger.NewAmount(0)
		e.ExpectedPurchases = ledger.NewAmount(0)
		e.LastUpdated = at
		m.balances[household][member] = e
	}
	return nil
}

// -----------------------------------------------------------------------------
// Settlements (append-only, insert-if-absent per period)
// -----------------------------------------------------------------------------

func (m *Memory) InsertSettlement(_ context.Context, s ledger.Settlement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertSettlementLocked(s)
}

func (m *Memory) insertSettlementLocked(s ledger.Settlement) error {
	key := periodKey{Household: s.HouseholdID, PeriodStart: s.Period.Start.UnixNano()}
	if m.settledAt[key] {
		return ledger.ErrAlreadySettled
	}
	s.Statements = append([]ledger.MemberStatement(nil), s.Statements...)
	m.settlements[s.ID] = s
	m.settledAt[key] = true
	return nil
}

func (m *Memory) GetSettlement(_ context.Context, id ledger.SettlementID) (*ledger.Settlement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getSettlementLocked(id)
}

func (m *Memory) getSettlementLocked(id ledger.SettlementID) (*ledger.Settlement, error) {
	s, ok := m.settlements[id]
	if !ok {
		return nil, ledger.ErrSettlementNotFound
	}
	copied := s
	copied.Statements = append([]ledger.MemberStatement(nil), s.Statements...)
	return &copied, nil
}

func (m *Memory) ListSettlements(_ context.Context, household ledger.HouseholdID) ([]ledger.Settlement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listSettlementsLocked(household)
}

func (m *Memory) listSettlementsLocked(household ledger.HouseholdID) ([]ledger.Settlement, error) {
	var result []ledger.Settlement
	for _, s := range m.settlements {
		if s.HouseholdID != household {
			continue
		}
		copied := s
		copied.Statements = append([]ledger.MemberStatement(nil), s.Statements...)
		result = append(result, copied)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction. For the memory store this is
// simulated with a full snapshot, restored on error. The view passed to fn
// reads its own writes.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.snapshot()

	if err := fn(&txMemoryView{parent: tm}); err != nil {
		tm.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	households  map[ledger.HouseholdID]ledger.Household
	items       map[ledger.ItemID]ledger.RotaItem
	itemOrder   []ledger.ItemID
	purchases   []ledger.Purchase
	balances    map[ledger.HouseholdID]map[ledger.MemberID]ledger.BalanceEntry
	settlements map[ledger.SettlementID]ledger.Settlement
	settledAt   map[periodKey]bool
}

func (tm *TxMemory) snapshot() memorySnapshot {
	s := memorySnapshot{
		households:  make(map[ledger.HouseholdID]ledger.Household, len(tm.households)),
		items:       make(map[ledger.ItemID]ledger.RotaItem, len(tm.items)),
		itemOrder:   append([]ledger.ItemID(nil), tm.itemOrder...),
		purchases:   append([]ledger.Purchase(nil), tm.purchases...),
		balances:    make(map[ledger.HouseholdID]map[ledger.MemberID]ledger.BalanceEntry, len(tm.balances)),
		settlements: make(map[ledger.SettlementID]ledger.Settlement, len(tm.settlements)),
		settledAt:   make(map[periodKey]bool, len(tm.settledAt)),
	}
	for k, v := range tm.households {
		s.households[k] = v
	}
	for k, v := range tm.items {
		s.items[k] = v
	}
	for k, v := range tm.balances {
		inner := make(map[ledger.MemberID]ledger.BalanceEntry, len(v))
		for mk, mv := range v {
			inner[mk] = mv
		}
		s.balances[k] = inner
	}
	for k, v := range tm.settlements {
		s.settlements[k] = v
	}
	for k, v := range tm.settledAt {
		s.settledAt[k] = v
	}
	return s
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.households = s.households
	tm.items = s.items
	tm.itemOrder = s.itemOrder
	tm.purchases = s.purchases
	tm.balances = s.balances
	tm.settlements = s.settlements
	tm.settledAt = s.settledAt
}

// txMemoryView calls the locked internals directly; the lock is held by
// WithTx for the whole transaction.
type txMemoryView struct {
	parent *TxMemory
}

func (tv *txMemoryView) GetHousehold(_ context.Context, id ledger.HouseholdID) (*ledger.Household, error) {
	return tv.parent.getHouseholdLocked(id)
}

func (tv *txMemoryView) SaveHousehold(_ context.Context, h ledger.Household) error {
	return tv.parent.saveHouseholdLocked(h)
}

func (tv *txMemoryView) GetRotaItem(_ context.Context, id ledger.ItemID) (*ledger.RotaItem, error) {
	return tv.parent.getRotaItemLocked(id)
}

func (tv *txMemoryView) ListRotaItems(_ context.Context, household ledger.HouseholdID) ([]ledger.RotaItem, error) {
	return tv.parent.listRotaItemsLocked(household)
}

func (tv *txMemoryView) SaveRotaItem(_ context.Context, item ledger.RotaItem) error {
	return tv.parent.saveRotaItemLocked(item)
}

func (tv *txMemoryView) InsertPurchase(_ context.Context, p ledger.Purchase) error {
	return tv.parent.insertPurchaseLocked(p)
}

func (tv *txMemoryView) ListOpenPurchases(_ context.Context, household ledger.HouseholdID) ([]ledger.Purchase, error) {
	return tv.parent.listOpenPurchasesLocked(household)
}

func (tv *txMemoryView) ListPurchasesBySettlement(_ context.Context, id ledger.SettlementID) ([]ledger.Purchase, error) {
	return tv.parent.listPurchasesBySettlementLocked(id)
}

func (tv *txMemoryView) StampPurchases(_ context.Context, household ledger.HouseholdID, id ledger.SettlementID) (int, error) {
	return tv.parent.stampPurchasesLocked(household, id)
}

func (tv *txMemoryView) GetBalances(_ context.Context, household ledger.HouseholdID) ([]ledger.BalanceEntry, error) {
	return tv.parent.getBalancesLocked(household)
}

func (tv *txMemoryView) UpsertBalance(_ context.Context, household ledger.HouseholdID, e ledger.BalanceEntry) error {
	return tv.parent.upsertBalanceLocked(household, e)
}

func (tv *txMemoryView) ResetBalances(_ context.Context, household ledger.HouseholdID, at time.Time) error {
	return tv.parent.resetBalancesLocked(household, at)
}

func (tv *txMemoryView) InsertSettlement(_ context.Context, s ledger.Settlement) error {
	return tv.parent.insertSettlementLocked(s)
}

func (tv *txMemoryView) GetSettlement(_ context.Context, id ledger.SettlementID) (*ledger.Settlement, error) {
	return tv.parent.getSettlementLocked(id)
}

func (tv *txMemoryView) ListSettlements(_ context.Context, household ledger.HouseholdID) ([]ledger.Settlement, error) {
	return tv.parent.listSettlementsLocked(household)
}
