/*
balance.go - The balance ledger for the open accounting period

PURPOSE:
  Maintains each member's running position (TotalPurchased vs
  ExpectedPurchases) for the open period. Deltas are additive; the net
  balance is derived on read, never written.

AT-MOST-ONCE:
  ApplyDelta is additive and NOT idempotent by itself. At-most-once delivery
  is the purchase recorder's responsibility: it applies deltas only inside
  the same store transaction that advances the rota and inserts the
  purchase, so a delta lands exactly once or not at all.
*/
package ledger

import (
	"context"
	"time"
)

// BalanceLedger applies balance deltas and reads balance snapshots through
// a Store. Construct it over the transaction-scoped Store inside WithTx for
// mutations, or over the plain store for display reads.
type BalanceLedger struct {
	store Store
}

// NewBalanceLedger creates a balance ledger backed by the given store.
func NewBalanceLedger(store Store) *BalanceLedger {
	return &BalanceLedger{store: store}
}

// ApplyDelta adds the given deltas to the member's open-period entry,
// creating the entry if it does not exist yet.
func (l *BalanceLedger) ApplyDelta(ctx context.Context, household HouseholdID, member MemberID, totalPurchasedDelta, expectedPurchasesDelta Amount, at time.Time) error {
	entries, err := l.store.GetBalances(ctx, household)
	if err != nil {
		return err
	}

	entry := BalanceEntry{MemberID: member}
	for _, e := range entries {
		if e.MemberID == member {
			entry = e
			break
		}
	}

	entry.TotalPurchased = entry.TotalPurchased.Add(totalPurchasedDelta)
	entry.ExpectedPurchases = entry.ExpectedPurchases.Add(expectedPurchasesDelta)
	entry.LastUpdated = at

	return l.store.UpsertBalance(ctx, household, entry)
}

// Snapshot returns the open-period balances keyed by member. Read-only;
// used by the settlement engine and for display.
func (l *BalanceLedger) Snapshot(ctx context.Context, household HouseholdID) (map[MemberID]BalanceEntry, error) {
	entries, err := l.store.GetBalances(ctx, household)
	if err != nil {
		return nil, err
	}
	snapshot := make(map[MemberID]BalanceEntry, len(entries))
	for _, e := range entries {
		snapshot[e.MemberID] = e
	}
	return snapshot, nil
}

// Reset zeroes every member's entry. Invoked only by the settlement engine
// as the final step of a successful close, never independently.
func (l *BalanceLedger) Reset(ctx context.Context, household HouseholdID, at time.Time) error {
	return l.store.ResetBalances(ctx, household, at)
}
