/*
recorder.go - Purchase recording

PURPOSE:
  Validates and applies a purchase event: derives the expected buyer from
  the rota, advances the turn, inserts the immutable purchase record, and
  applies the balance deltas, all inside ONE store transaction.

ATOMICITY:
  Two members marking the same item purchased at the same instant must
  serialize with at-most-one rota advance per purchase event. The rota
  write is version-checked; the loser observes ErrVersionConflict, the
  whole transaction rolls back, and the operation retries against the
  now-advanced state with bounded exponential backoff. After exhaustion
  the caller gets PurchaseConflictError, which is safe to retry.

BALANCE RULE:
  ExpectedBy's ExpectedPurchases grows by the amount (the obligation
  existed regardless of who paid); PurchasedBy's TotalPurchased grows by
  the amount. When the buyer was in turn both deltas land on the same
  entry and the net effect is zero: the in-turn case is a degenerate
  instance of the same rule, not a special case.
*/
package ledger

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
)

const (
	// defaultMaxAttempts bounds conflict retries for one purchase event.
	defaultMaxAttempts = 5

	// defaultBackoffBase seeds the exponential backoff between attempts.
	defaultBackoffBase = 10 * time.Millisecond
)

// Recorder validates and applies purchase events.
type Recorder struct {
	store TxStore

	maxAttempts uint64
	backoffBase time.Duration
}

// NewRecorder creates a purchase recorder with default retry bounds.
func NewRecorder(store TxStore) *Recorder {
	return &Recorder{
		store:       store,
		maxAttempts: defaultMaxAttempts,
		backoffBase: defaultBackoffBase,
	}
}

// RecordPurchase records that member bought the item for amount at the given
// time. Returns the created purchase, or:
//   - ErrNegativeAmount, ErrNotMember, ErrItemInactive on validation failure
//   - ErrInvalidRotaState when the item's rotation order is unusable
//   - PurchaseConflictError after exhausting conflict retries
func (r *Recorder) RecordPurchase(ctx context.Context, household HouseholdID, item ItemID, member MemberID, amount Amount, at time.Time) (*Purchase, error) {
	if amount.IsNegative() {
		return nil, ErrNegativeAmount
	}

	var purchase *Purchase
	attempts := 0

	backoff := retry.WithMaxRetries(r.maxAttempts-1, retry.NewExponential(r.backoffBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		err := r.store.WithTx(ctx, func(s Store) error {
			p, err := r.recordOnce(ctx, s, household, item, member, amount, at)
			if err != nil {
				return err
			}
			purchase = p
			return nil
		})
		if IsRetryable(err) {
			slog.Debug("purchase transaction conflicted, retrying",
				"household_id", household, "item_id", item, "attempt", attempts)
			return retry.RetryableError(err)
		}
		return err
	})

	if err != nil {
		if errors.Is(err, ErrVersionConflict) {
			return nil, &PurchaseConflictError{ItemID: item, Attempts: attempts}
		}
		return nil, err
	}

	slog.Info("purchase recorded",
		"household_id", household,
		"item_id", item,
		"purchased_by", purchase.PurchasedBy,
		"expected_by", purchase.ExpectedBy,
		"amount", purchase.Amount.String(),
	)
	return purchase, nil
}

// recordOnce is one attempt, executed inside a store transaction.
func (r *Recorder) recordOnce(ctx context.Context, s Store, household HouseholdID, item ItemID, member MemberID, amount Amount, at time.Time) (*Purchase, error) {
	h, err := s.GetHousehold(ctx, household)
	if err != nil {
		return nil, err
	}
	if err := RequireMember(*h, member); err != nil {
		return nil, err
	}

	rotaItem, err := s.GetRotaItem(ctx, item)
	if err != nil {
		return nil, err
	}
	if rotaItem.HouseholdID != household {
		return nil, ErrItemNotFound
	}
	if !rotaItem.Active {
		return nil, ErrItemInactive
	}

	expectedBy, err := CurrentBuyer(*rotaItem)
	if err != nil {
		return nil, err
	}

	purchase := Purchase{
		ID:          PurchaseID(uuid.New().String()),
		HouseholdID: household,
		ItemID:      item,
		PurchasedBy: member,
		ExpectedBy:  expectedBy,
		Amount:      amount,
		At:          at,
	}

	// The version-checked rota write is the serialization point: a
	// concurrent purchase on the same item makes exactly one of the two
	// transactions fail here and retry against the advanced state.
	if err := s.SaveRotaItem(ctx, Advance(*rotaItem)); err != nil {
		return nil, err
	}
	if err := s.InsertPurchase(ctx, purchase); err != nil {
		return nil, err
	}

	balances := NewBalanceLedger(s)
	if err := balances.ApplyDelta(ctx, household, expectedBy, Amount{}, amount, at); err != nil {
		return nil, err
	}
	if err := balances.ApplyDelta(ctx, household, member, amount, Amount{}, at); err != nil {
		return nil, err
	}

	return &purchase, nil
}
