package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/household-ledger/api"
	"github.com/warp/household-ledger/auth"
	"github.com/warp/household-ledger/ledger"
	"github.com/warp/household-ledger/ledger/store"
	"github.com/warp/household-ledger/rent"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type testServer struct {
	server *httptest.Server
	tokens *auth.Manager
	store  *store.TxMemory
}

func newTestServer(t *testing.T) *testServer {
	s := store.NewTxMemory()
	tokens := auth.NewManager("test-secret", time.Hour)
	handler := api.NewHandler(s, rent.NewEqualSplitter(ledger.NewAmount(2000)))

	srv := httptest.NewServer(api.NewRouter(handler, tokens))
	t.Cleanup(srv.Close)
	return &testServer{server: srv, tokens: tokens, store: s}
}

// do sends an authenticated JSON request and decodes the response into out.
func (ts *testServer) do(t *testing.T, member, method, path string, body any, out any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.server.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if member != "" {
		token, err := ts.tokens.Generate(ledger.MemberID(member))
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := ts.server.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

// createHousehold drives the API to set up a two-member household with
// one rota item, returning both IDs.
func (ts *testServer) createHousehold(t *testing.T) (householdID, itemID string) {
	t.Helper()

	var household api.HouseholdDTO
	resp := ts.do(t, "alice", http.MethodPost, "/api/households", api.CreateHouseholdRequest{
		Name:    "Flat 4B",
		Members: []string{"alice", "bob"},
	}, &household)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var item api.RotaItemDTO
	resp = ts.do(t, "alice", http.MethodPost, fmt.Sprintf("/api/households/%s/items", household.ID), api.CreateItemRequest{
		Name: "toilet rolls",
	}, &item)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	return household.ID, item.ID
}

// =============================================================================
// AUTHENTICATION TESTS
// =============================================================================

func TestAPI_NoToken_Unauthorized(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, "", http.MethodPost, "/api/households", api.CreateHouseholdRequest{Name: "x"}, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAPI_NonMemberRead_Forbidden(t *testing.T) {
	ts := newTestServer(t)
	householdID, _ := ts.createHousehold(t)

	resp := ts.do(t, "mallory", http.MethodGet, "/api/households/"+householdID, nil, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

// =============================================================================
// HOUSEHOLD AND ITEM TESTS
// =============================================================================

func TestAPI_CreateHousehold_CallerIsAdmin(t *testing.T) {
	ts := newTestServer(t)

	var household api.HouseholdDTO
	resp := ts.do(t, "alice", http.MethodPost, "/api/households", api.CreateHouseholdRequest{
		Name:    "Flat 4B",
		Members: []string{"alice", "bob"},
	}, &household)

	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "alice", household.AdminID)
	assert.Equal(t, []string{"alice", "bob"}, household.Members)
}

func TestAPI_CreateItem_DefaultsRotaToMembers(t *testing.T) {
	ts := newTestServer(t)
	householdID, itemID := ts.createHousehold(t)

	var items []api.RotaItemDTO
	resp := ts.do(t, "bob", http.MethodGet, fmt.Sprintf("/api/households/%s/items", householdID), nil, &items)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, items, 1)
	assert.Equal(t, itemID, items[0].ID)
	assert.Equal(t, []string{"alice", "bob"}, items[0].RotaOrder)
	assert.Equal(t, "alice", items[0].CurrentBuyer)
}

func TestAPI_SetTurn_NonAdmin_Forbidden(t *testing.T) {
	ts := newTestServer(t)
	householdID, itemID := ts.createHousehold(t)

	resp := ts.do(t, "bob", http.MethodPost,
		fmt.Sprintf("/api/households/%s/items/%s/turn", householdID, itemID),
		api.SetTurnRequest{Member: "bob"}, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestAPI_SetTurn_UnknownMember_BadRequest(t *testing.T) {
	ts := newTestServer(t)
	householdID, itemID := ts.createHousehold(t)

	resp := ts.do(t, "alice", http.MethodPost,
		fmt.Sprintf("/api/households/%s/items/%s/turn", householdID, itemID),
		api.SetTurnRequest{Member: "mallory"}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// =============================================================================
// PURCHASE AND BALANCE TESTS
// =============================================================================

func TestAPI_RecordPurchase_UpdatesBalances(t *testing.T) {
	// GIVEN: Alice's turn on the rota
	// WHEN: Bob records a purchase of 300 through the API
	// THEN: The purchase names both parties and the balances shift by 300

	ts := newTestServer(t)
	householdID, itemID := ts.createHousehold(t)

	var purchase api.PurchaseDTO
	resp := ts.do(t, "bob", http.MethodPost,
		fmt.Sprintf("/api/households/%s/items/%s/purchases", householdID, itemID),
		api.RecordPurchaseRequest{Amount: 300}, &purchase)

	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "bob", purchase.PurchasedBy)
	assert.Equal(t, "alice", purchase.ExpectedBy)
	assert.Equal(t, "300", purchase.Amount)

	var balances []api.BalanceDTO
	resp = ts.do(t, "alice", http.MethodGet, fmt.Sprintf("/api/households/%s/balances", householdID), nil, &balances)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, balances, 2)

	byMember := make(map[string]api.BalanceDTO, len(balances))
	for _, b := range balances {
		byMember[b.MemberID] = b
	}
	assert.Equal(t, "-300", byMember["alice"].NetBalance)
	assert.Equal(t, "300", byMember["bob"].NetBalance)
}

func TestAPI_RecordPurchase_NegativeAmount_BadRequest(t *testing.T) {
	ts := newTestServer(t)
	householdID, itemID := ts.createHousehold(t)

	resp := ts.do(t, "alice", http.MethodPost,
		fmt.Sprintf("/api/households/%s/items/%s/purchases", householdID, itemID),
		api.RecordPurchaseRequest{Amount: -5}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// =============================================================================
// SETTLEMENT TESTS
// =============================================================================

func TestAPI_Settlement_FullFlow(t *testing.T) {
	// GIVEN: Bob bought out of turn for 10 and total rent is 2000
	// WHEN: The admin closes the period
	// THEN: Bob's rent is 990, Alice's 1010; a repeat close conflicts

	ts := newTestServer(t)
	householdID, itemID := ts.createHousehold(t)

	resp := ts.do(t, "bob", http.MethodPost,
		fmt.Sprintf("/api/households/%s/items/%s/purchases", householdID, itemID),
		api.RecordPurchaseRequest{Amount: 10}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	closeAt := time.Now().Add(time.Hour)
	var settlement api.SettlementDTO
	resp = ts.do(t, "alice", http.MethodPost,
		fmt.Sprintf("/api/households/%s/settlements", householdID),
		api.CloseSettlementRequest{At: &closeAt}, &settlement)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, 1, settlement.PurchaseCount)

	byMember := make(map[string]api.MemberStatementDTO, len(settlement.Statements))
	for _, st := range settlement.Statements {
		byMember[st.MemberID] = st
	}
	assert.Equal(t, "1010", byMember["alice"].AdjustedRent)
	assert.Equal(t, "990", byMember["bob"].AdjustedRent)

	// Repeat close of the same instant conflicts.
	resp = ts.do(t, "alice", http.MethodPost,
		fmt.Sprintf("/api/households/%s/settlements", householdID),
		api.CloseSettlementRequest{At: &closeAt}, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// The settlement is readable by any member.
	var fetched api.SettlementDTO
	resp = ts.do(t, "bob", http.MethodGet,
		fmt.Sprintf("/api/households/%s/settlements/%s", householdID, settlement.ID), nil, &fetched)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, settlement.ID, fetched.ID)
}

func TestAPI_Settlement_NonAdmin_Forbidden(t *testing.T) {
	ts := newTestServer(t)
	householdID, _ := ts.createHousehold(t)

	resp := ts.do(t, "bob", http.MethodPost,
		fmt.Sprintf("/api/households/%s/settlements", householdID),
		api.CloseSettlementRequest{}, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
