/*
settlement.go - Period close state machine

PURPOSE:
  Closes an accounting period: Open -> Closed, exactly once. Snapshots the
  final balances, folds them into adjusted rent contributions, archives the
  period's purchases immutably, resets the balance ledger, and starts the
  next open period.

STATE MACHINE:
  Open:   purchases accepted, balances accrue
  Closed: settlement record exists, balances zeroed, new Open period begins

  The transition is triggered only by an admin action and is one atomic
  store transaction. A partial settlement (balances reset with no
  settlement record, or stamped purchases with live balances) is a
  correctness violation and must never be observable.

EXACTLY-ONCE:
  The settlement insert is insert-if-absent on (household, period start).
  A second concurrent close observes ErrAlreadySettled, the transaction
  rolls back, and nothing changes: idempotent from the caller's view.

ADJUSTED RENT:
  adjustedRent = baseRentShare - netBalance. A member owed money pays less
  next period; a member who owes pays more. Base rent shares come from the
  bill-splitting collaborator; the engine only adjusts, never originates,
  rent figures.
*/
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// SettlementEngine closes accounting periods.
type SettlementEngine struct {
	store TxStore
}

// NewSettlementEngine creates a settlement engine backed by the given store.
func NewSettlementEngine(store TxStore) *SettlementEngine {
	return &SettlementEngine{store: store}
}

// Close settles the household's open period. The caller supplies each
// member's base rent share (from the bill-splitting collaborator) and the
// settlement timestamp, which becomes the next period's start.
//
// Fails with ErrNotAuthorized for non-admin callers (no state change,
// logged as security-relevant) and ErrAlreadySettled on a duplicate close
// (no-op). Steps inside succeed or fail as a unit.
func (e *SettlementEngine) Close(ctx context.Context, household HouseholdID, admin MemberID, shares map[MemberID]Amount, at time.Time) (*Settlement, error) {
	var settlement *Settlement

	err := e.store.WithTx(ctx, func(s Store) error {
		h, err := s.GetHousehold(ctx, household)
		if err != nil {
			return err
		}

		// Fresh admin check on every attempt: the admin role can change
		// between calls.
		if err := RequireAdmin(*h, admin); err != nil {
			slog.Warn("settlement close rejected: caller is not the household admin",
				"household_id", household, "caller_id", admin)
			return err
		}

		// A close at or before the open period's start is a replay of a
		// close that already happened.
		if !at.After(h.PeriodStart) {
			return ErrAlreadySettled
		}

		balances := NewBalanceLedger(s)
		snapshot, err := balances.Snapshot(ctx, household)
		if err != nil {
			return err
		}

		statements := make([]MemberStatement, 0, len(h.Members))
		for _, m := range h.Members {
			entry := snapshot[m] // zero entry for members without purchases
			net := entry.NetBalance()
			base := shares[m]
			statements = append(statements, MemberStatement{
				MemberID:          m,
				TotalPurchased:    entry.TotalPurchased,
				ExpectedPurchases: entry.ExpectedPurchases,
				NetBalance:        net,
				BaseRentShare:     base,
				AdjustedRent:      base.Sub(net),
			})
		}

		// Every open purchase already contributed its balance deltas, so
		// every open purchase archives under this settlement. Filtering by
		// purchase timestamp here would settle money the archive does not
		// show.
		open, err := s.ListOpenPurchases(ctx, household)
		if err != nil {
			return err
		}
		count := len(open)

		settlement = &Settlement{
			ID:            SettlementID(uuid.New().String()),
			HouseholdID:   household,
			Period:        Period{Start: h.PeriodStart, End: at},
			ClosedBy:      admin,
			Statements:    statements,
			PurchaseCount: count,
			CreatedAt:     at,
		}

		// Insert-if-absent enforces at-most-one settlement per open period.
		if err := s.InsertSettlement(ctx, *settlement); err != nil {
			return err
		}

		stamped, err := s.StampPurchases(ctx, household, settlement.ID)
		if err != nil {
			return err
		}
		if stamped != count {
			return fmt.Errorf("settlement archived %d purchases, expected %d", stamped, count)
		}

		if err := balances.Reset(ctx, household, at); err != nil {
			return err
		}

		h.PeriodStart = at
		return s.SaveHousehold(ctx, *h)
	})

	if err != nil {
		if errors.Is(err, ErrAlreadySettled) {
			slog.Info("duplicate settlement close ignored", "household_id", household)
		}
		return nil, err
	}

	slog.Info("period settled",
		"household_id", household,
		"settlement_id", settlement.ID,
		"period", settlement.Period.String(),
		"purchases_archived", settlement.PurchaseCount,
	)
	return settlement, nil
}
