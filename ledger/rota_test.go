package ledger_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/household-ledger/ledger"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func threeMemberItem() ledger.RotaItem {
	return ledger.RotaItem{
		ID:          "item-1",
		HouseholdID: "house-1",
		Name:        "toilet rolls",
		RotaOrder:   []ledger.MemberID{"alice", "bob", "carol"},
		TurnIndex:   0,
		Active:      true,
	}
}

// =============================================================================
// ROTATION TESTS
// =============================================================================

func TestCurrentBuyer_FollowsRotaOrder(t *testing.T) {
	item := threeMemberItem()

	buyer, err := ledger.CurrentBuyer(item)
	require.NoError(t, err)
	assert.Equal(t, ledger.MemberID("alice"), buyer)

	item.TurnIndex = 2
	buyer, err = ledger.CurrentBuyer(item)
	require.NoError(t, err)
	assert.Equal(t, ledger.MemberID("carol"), buyer)
}

func TestCurrentBuyer_EmptyOrder_InvalidRotaState(t *testing.T) {
	// GIVEN: An item with no rotation order
	// WHEN: Asking whose turn it is
	// THEN: ErrInvalidRotaState

	item := threeMemberItem()
	item.RotaOrder = nil

	_, err := ledger.CurrentBuyer(item)
	assert.ErrorIs(t, err, ledger.ErrInvalidRotaState)
}

func TestCurrentBuyer_IndexOutOfRange_InvalidRotaState(t *testing.T) {
	item := threeMemberItem()
	item.TurnIndex = 3

	_, err := ledger.CurrentBuyer(item)
	assert.ErrorIs(t, err, ledger.ErrInvalidRotaState)
}

func TestAdvance_WrapsAround(t *testing.T) {
	// GIVEN: A three-member rotation
	// WHEN: Advancing N times
	// THEN: Turn index is always N mod 3

	item := threeMemberItem()
	for n := 1; n <= 10; n++ {
		item = ledger.Advance(item)
		assert.Equal(t, n%3, item.TurnIndex, "after %d advances", n)
	}
}

func TestAdvance_DoesNotMutateInput(t *testing.T) {
	item := threeMemberItem()
	next := ledger.Advance(item)

	assert.Equal(t, 0, item.TurnIndex)
	assert.Equal(t, 1, next.TurnIndex)
}

// =============================================================================
// ADMIN OVERRIDE TESTS
// =============================================================================

func TestSetTurn_PointsAtMember(t *testing.T) {
	item := threeMemberItem()

	next, err := ledger.SetTurn(item, "carol")
	require.NoError(t, err)
	assert.Equal(t, 2, next.TurnIndex)

	buyer, err := ledger.CurrentBuyer(next)
	require.NoError(t, err)
	assert.Equal(t, ledger.MemberID("carol"), buyer)
}

func TestSetTurn_UnknownMember_NotInRota(t *testing.T) {
	// GIVEN: A member outside the rotation order
	// WHEN: Pointing the turn at them
	// THEN: MemberNotInRota with the offending IDs attached

	item := threeMemberItem()

	_, err := ledger.SetTurn(item, "mallory")
	assert.ErrorIs(t, err, ledger.ErrMemberNotInRota)

	var notIn *ledger.NotInRotaError
	require.ErrorAs(t, err, &notIn)
	assert.Equal(t, ledger.MemberID("mallory"), notIn.MemberID)
	assert.Equal(t, ledger.ItemID("item-1"), notIn.ItemID)
}

func TestRemoveFromRota_BeforeCurrentTurn_ShiftsIndexDown(t *testing.T) {
	// GIVEN: Turn is on carol (index 2)
	// WHEN: Removing alice (index 0)
	// THEN: Turn stays on carol at index 1

	item := threeMemberItem()
	item.TurnIndex = 2

	next, err := ledger.RemoveFromRota(item, "alice")
	require.NoError(t, err)

	assert.Equal(t, []ledger.MemberID{"bob", "carol"}, next.RotaOrder)
	buyer, err := ledger.CurrentBuyer(next)
	require.NoError(t, err)
	assert.Equal(t, ledger.MemberID("carol"), buyer)
}

func TestRemoveFromRota_CurrentBuyer_PassesTurnOn(t *testing.T) {
	// GIVEN: Turn is on bob (index 1)
	// WHEN: Removing bob
	// THEN: Turn passes to carol, the next member in order

	item := threeMemberItem()
	item.TurnIndex = 1

	next, err := ledger.RemoveFromRota(item, "bob")
	require.NoError(t, err)

	assert.Equal(t, []ledger.MemberID{"alice", "carol"}, next.RotaOrder)
	buyer, err := ledger.CurrentBuyer(next)
	require.NoError(t, err)
	assert.Equal(t, ledger.MemberID("carol"), buyer)
}

func TestRemoveFromRota_LastOfOrder_WrapsToFirst(t *testing.T) {
	// Removing the last member while it is their turn wraps the turn to
	// the front of the shorter order.
	item := threeMemberItem()
	item.TurnIndex = 2

	next, err := ledger.RemoveFromRota(item, "carol")
	require.NoError(t, err)

	assert.Equal(t, []ledger.MemberID{"alice", "bob"}, next.RotaOrder)
	assert.Equal(t, 0, next.TurnIndex)
}

func TestRemoveFromRota_LastMember_Rejected(t *testing.T) {
	item := threeMemberItem()
	item.RotaOrder = []ledger.MemberID{"alice"}

	_, err := ledger.RemoveFromRota(item, "alice")
	assert.ErrorIs(t, err, ledger.ErrInvalidRotaState)
}

func TestRemoveFromRota_UnknownMember_NotInRota(t *testing.T) {
	item := threeMemberItem()

	_, err := ledger.RemoveFromRota(item, "mallory")
	assert.ErrorIs(t, err, ledger.ErrMemberNotInRota)
}

// =============================================================================
// ORDER VALIDATION TESTS
// =============================================================================

func TestValidateRotaOrder(t *testing.T) {
	h := ledger.Household{
		ID:      "house-1",
		AdminID: "alice",
		Members: []ledger.MemberID{"alice", "bob", "carol"},
	}

	assert.NoError(t, ledger.ValidateRotaOrder(h, []ledger.MemberID{"bob", "alice"}))
	assert.ErrorIs(t, ledger.ValidateRotaOrder(h, nil), ledger.ErrInvalidRotaState)
	assert.ErrorIs(t, ledger.ValidateRotaOrder(h, []ledger.MemberID{"alice", "alice"}), ledger.ErrDuplicateMember)
	assert.ErrorIs(t, ledger.ValidateRotaOrder(h, []ledger.MemberID{"alice", "mallory"}), ledger.ErrNotMember)
}
