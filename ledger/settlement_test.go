package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/household-ledger/ledger"
	"github.com/warp/household-ledger/ledger/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func equalShares(amount int64, members ...ledger.MemberID) map[ledger.MemberID]ledger.Amount {
	shares := make(map[ledger.MemberID]ledger.Amount, len(members))
	for _, m := range members {
		shares[m] = ledger.NewAmount(amount)
	}
	return shares
}

func statementFor(t *testing.T, s *ledger.Settlement, member ledger.MemberID) ledger.MemberStatement {
	t.Helper()
	for _, st := range s.Statements {
		if st.MemberID == member {
			return st
		}
	}
	t.Fatalf("no statement for member %s", member)
	return ledger.MemberStatement{}
}

// =============================================================================
// END-TO-END SCENARIO
// =============================================================================

func TestSettlement_ToiletRollsScenario(t *testing.T) {
	// GIVEN: Alice and Bob rotate buying toilet rolls, both owe 1000 rent.
	//        Alice buys in turn for 300, Bob buys in turn for 420, then
	//        Bob buys Alice's turn for 10.
	// WHEN: The admin closes the period
	// THEN: Bob is up 10, Alice down 10; Bob's rent is 990, Alice's 1010;
	//       purchases are archived and balances reset

	s := store.NewTxMemory()
	household, item := seedHousehold(t, s, "alice", "bob")
	recorder := ledger.NewRecorder(s)
	engine := ledger.NewSettlementEngine(s)
	ctx := context.Background()

	_, err := recorder.RecordPurchase(ctx, household, item, "alice", ledger.NewAmount(300), testStart.Add(1*time.Hour))
	require.NoError(t, err)
	_, err = recorder.RecordPurchase(ctx, household, item, "bob", ledger.NewAmount(420), testStart.Add(2*time.Hour))
	require.NoError(t, err)
	_, err = recorder.RecordPurchase(ctx, household, item, "bob", ledger.NewAmount(10), testStart.Add(3*time.Hour))
	require.NoError(t, err)

	closeAt := testStart.Add(24 * time.Hour)
	settlement, err := engine.Close(ctx, household, "alice", equalShares(1000, "alice", "bob"), closeAt)
	require.NoError(t, err)

	alice := statementFor(t, settlement, "alice")
	assert.True(t, alice.NetBalance.Equal(ledger.NewAmount(-10)), "alice net = %s", alice.NetBalance)
	assert.True(t, alice.AdjustedRent.Equal(ledger.NewAmount(1010)), "alice rent = %s", alice.AdjustedRent)

	bob := statementFor(t, settlement, "bob")
	assert.True(t, bob.NetBalance.Equal(ledger.NewAmount(10)))
	assert.True(t, bob.AdjustedRent.Equal(ledger.NewAmount(990)))

	assert.Equal(t, 3, settlement.PurchaseCount)
	assert.Equal(t, testStart, settlement.Period.Start)
	assert.Equal(t, closeAt, settlement.Period.End)

	// Purchases are archived under the settlement and the open period is empty.
	archived, err := s.ListPurchasesBySettlement(ctx, settlement.ID)
	require.NoError(t, err)
	assert.Len(t, archived, 3)
	open, err := s.ListOpenPurchases(ctx, household)
	require.NoError(t, err)
	assert.Empty(t, open)

	// Balances reset; the next period starts at the close time.
	for member, entry := range balancesByMember(t, s, household) {
		assert.True(t, entry.NetBalance().IsZero(), "member %s", member)
		assert.True(t, entry.TotalPurchased.IsZero(), "member %s", member)
	}
	h, err := s.GetHousehold(ctx, household)
	require.NoError(t, err)
	assert.Equal(t, closeAt, h.PeriodStart)
}

func TestSettlement_MembersWithoutPurchases_GetStatements(t *testing.T) {
	// Carol never bought anything, but still appears with a zero balance
	// and her full rent share.
	s := store.NewTxMemory()
	household, item := seedHousehold(t, s, "alice", "bob", "carol")
	recorder := ledger.NewRecorder(s)
	engine := ledger.NewSettlementEngine(s)
	ctx := context.Background()

	_, err := recorder.RecordPurchase(ctx, household, item, "alice", ledger.NewAmount(300), testStart.Add(time.Hour))
	require.NoError(t, err)

	settlement, err := engine.Close(ctx, household, "alice", equalShares(500, "alice", "bob", "carol"), testStart.Add(24*time.Hour))
	require.NoError(t, err)

	require.Len(t, settlement.Statements, 3)
	carol := statementFor(t, settlement, "carol")
	assert.True(t, carol.NetBalance.IsZero())
	assert.True(t, carol.AdjustedRent.Equal(ledger.NewAmount(500)))
}

// =============================================================================
// EXACTLY-ONCE TESTS
// =============================================================================

func TestSettlement_DuplicateClose_AlreadySettled(t *testing.T) {
	// GIVEN: A period already settled at its current start
	// WHEN: A second close races in against the same period
	// THEN: AlreadySettled and zero state change

	s := store.NewTxMemory()
	household, item := seedHousehold(t, s, "alice", "bob")
	recorder := ledger.NewRecorder(s)
	engine := ledger.NewSettlementEngine(s)
	ctx := context.Background()

	_, err := recorder.RecordPurchase(ctx, household, item, "bob", ledger.NewAmount(100), testStart.Add(time.Hour))
	require.NoError(t, err)

	// A concurrent close already settled this period.
	require.NoError(t, s.InsertSettlement(ctx, ledger.Settlement{
		ID:          "settlement-racer",
		HouseholdID: household,
		Period:      ledger.Period{Start: testStart, End: testStart.Add(12 * time.Hour)},
		ClosedBy:    "alice",
		CreatedAt:   testStart.Add(12 * time.Hour),
	}))

	_, err = engine.Close(ctx, household, "alice", equalShares(1000, "alice", "bob"), testStart.Add(24*time.Hour))
	assert.ErrorIs(t, err, ledger.ErrAlreadySettled)

	// The losing close rolled back completely.
	open, err := s.ListOpenPurchases(ctx, household)
	require.NoError(t, err)
	assert.Len(t, open, 1)
	assert.False(t, balancesByMember(t, s, household)["bob"].TotalPurchased.IsZero())
}

func TestSettlement_CloseAtPeriodStart_AlreadySettled(t *testing.T) {
	// Closing at the exact moment the open period began is a replay.
	s := store.NewTxMemory()
	household, _ := seedHousehold(t, s, "alice", "bob")
	engine := ledger.NewSettlementEngine(s)

	_, err := engine.Close(context.Background(), household, "alice", equalShares(1000, "alice", "bob"), testStart)
	assert.ErrorIs(t, err, ledger.ErrAlreadySettled)
}

func TestSettlement_SequentialPeriods_BothSettle(t *testing.T) {
	s := store.NewTxMemory()
	household, item := seedHousehold(t, s, "alice", "bob")
	recorder := ledger.NewRecorder(s)
	engine := ledger.NewSettlementEngine(s)
	ctx := context.Background()

	_, err := recorder.RecordPurchase(ctx, household, item, "bob", ledger.NewAmount(100), testStart.Add(time.Hour))
	require.NoError(t, err)
	first, err := engine.Close(ctx, household, "alice", equalShares(1000, "alice", "bob"), testStart.Add(24*time.Hour))
	require.NoError(t, err)

	// Purchases after the close accrue to the new period.
	_, err = recorder.RecordPurchase(ctx, household, item, "alice", ledger.NewAmount(200), testStart.Add(30*time.Hour))
	require.NoError(t, err)
	second, err := engine.Close(ctx, household, "alice", equalShares(1000, "alice", "bob"), testStart.Add(48*time.Hour))
	require.NoError(t, err)

	assert.Equal(t, 1, first.PurchaseCount)
	assert.Equal(t, 1, second.PurchaseCount)
	assert.Equal(t, first.Period.End, second.Period.Start)

	history, err := s.ListSettlements(ctx, household)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

// =============================================================================
// AUTHORIZATION TESTS
// =============================================================================

func TestSettlement_NonAdminClose_NotAuthorized(t *testing.T) {
	// GIVEN: Bob is a member but not the admin
	// WHEN: Bob tries to close the period
	// THEN: NotAuthorized and zero state change

	s := store.NewTxMemory()
	household, item := seedHousehold(t, s, "alice", "bob")
	recorder := ledger.NewRecorder(s)
	engine := ledger.NewSettlementEngine(s)
	ctx := context.Background()

	_, err := recorder.RecordPurchase(ctx, household, item, "bob", ledger.NewAmount(100), testStart.Add(time.Hour))
	require.NoError(t, err)

	_, err = engine.Close(ctx, household, "bob", equalShares(1000, "alice", "bob"), testStart.Add(24*time.Hour))
	assert.ErrorIs(t, err, ledger.ErrNotAuthorized)

	open, err := s.ListOpenPurchases(ctx, household)
	require.NoError(t, err)
	assert.Len(t, open, 1, "purchases must stay open")
	assert.True(t, balancesByMember(t, s, household)["bob"].NetBalance().Equal(ledger.NewAmount(100)))

	h, err := s.GetHousehold(ctx, household)
	require.NoError(t, err)
	assert.Equal(t, testStart, h.PeriodStart, "period must not advance")

	history, err := s.ListSettlements(ctx, household)
	require.NoError(t, err)
	assert.Empty(t, history)
}

// =============================================================================
// LATE PURCHASE TESTS
// =============================================================================

func TestSettlement_FutureTimestampedPurchase_ArchivesWithClose(t *testing.T) {
	// GIVEN: Bob records a purchase client-timestamped after the close
	//        cutoff, but before the close runs
	// WHEN: The admin closes the period
	// THEN: The purchase is archived with the settlement and its balance
	//       effect lands in the closing rents, not silently dropped

	s := store.NewTxMemory()
	household, item := seedHousehold(t, s, "alice", "bob")
	recorder := ledger.NewRecorder(s)
	engine := ledger.NewSettlementEngine(s)
	ctx := context.Background()

	closeAt := testStart.Add(24 * time.Hour)
	_, err := recorder.RecordPurchase(ctx, household, item, "alice", ledger.NewAmount(100), testStart.Add(time.Hour))
	require.NoError(t, err)
	late, err := recorder.RecordPurchase(ctx, household, item, "bob", ledger.NewAmount(200), closeAt.Add(time.Minute))
	require.NoError(t, err)

	settlement, err := engine.Close(ctx, household, "alice", equalShares(1000, "alice", "bob"), closeAt)
	require.NoError(t, err)
	assert.Equal(t, 2, settlement.PurchaseCount)

	archived, err := s.ListPurchasesBySettlement(ctx, settlement.ID)
	require.NoError(t, err)
	ids := make([]ledger.PurchaseID, 0, len(archived))
	for _, p := range archived {
		ids = append(ids, p.ID)
	}
	assert.Contains(t, ids, late.ID)

	open, err := s.ListOpenPurchases(ctx, household)
	require.NoError(t, err)
	assert.Empty(t, open)

	// The next close sees a clean slate: the late purchase does not
	// archive a second time.
	second, err := engine.Close(ctx, household, "alice", equalShares(1000, "alice", "bob"), closeAt.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, second.PurchaseCount)
	for _, st := range second.Statements {
		assert.True(t, st.NetBalance.IsZero(), "member %s", st.MemberID)
		assert.True(t, st.AdjustedRent.Equal(ledger.NewAmount(1000)), "member %s", st.MemberID)
	}
}

func TestSettlement_ArchiveReconcilesWithStatements(t *testing.T) {
	// Every cent the statements claim was purchased must be backed by an
	// archived purchase, including one timestamped past the cutoff.
	s := store.NewTxMemory()
	household, item := seedHousehold(t, s, "alice", "bob")
	recorder := ledger.NewRecorder(s)
	engine := ledger.NewSettlementEngine(s)
	ctx := context.Background()

	closeAt := testStart.Add(24 * time.Hour)
	_, err := recorder.RecordPurchase(ctx, household, item, "alice", ledger.NewAmount(300), testStart.Add(1*time.Hour))
	require.NoError(t, err)
	_, err = recorder.RecordPurchase(ctx, household, item, "bob", ledger.NewAmount(420), testStart.Add(2*time.Hour))
	require.NoError(t, err)
	_, err = recorder.RecordPurchase(ctx, household, item, "bob", ledger.NewAmount(200), closeAt.Add(time.Minute))
	require.NoError(t, err)

	settlement, err := engine.Close(ctx, household, "alice", equalShares(1000, "alice", "bob"), closeAt)
	require.NoError(t, err)

	archived, err := s.ListPurchasesBySettlement(ctx, settlement.ID)
	require.NoError(t, err)
	require.Len(t, archived, settlement.PurchaseCount)

	archivedTotal := ledger.NewAmount(0)
	for _, p := range archived {
		archivedTotal = archivedTotal.Add(p.Amount)
	}
	statedTotal := ledger.NewAmount(0)
	for _, st := range settlement.Statements {
		statedTotal = statedTotal.Add(st.TotalPurchased)
	}
	assert.True(t, archivedTotal.Equal(statedTotal),
		"archived %s vs stated %s", archivedTotal, statedTotal)
	assert.True(t, archivedTotal.Equal(ledger.NewAmount(920)))
}
