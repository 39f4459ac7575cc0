/*
handlers.go - HTTP API handlers for the household ledger

PURPOSE:
  Exposes the household ledger via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Households:
    POST   /api/households                    Create household
    GET    /api/households/{id}               Get household

  Rota items:
    POST   /api/households/{id}/items                 Create item
    GET    /api/households/{id}/items                 List items
    POST   /api/households/{id}/items/{itemID}/turn   Set turn (admin)
    POST   /api/households/{id}/items/{itemID}/rota/remove  Remove member (admin)
    DELETE /api/households/{id}/items/{itemID}        Deactivate (admin)

  Purchases:
    POST   /api/households/{id}/items/{itemID}/purchases  Record purchase
    GET    /api/households/{id}/purchases                 Open-period purchases

  Balances:
    GET    /api/households/{id}/balances      Open-period snapshot

  Settlements:
    POST   /api/households/{id}/settlements        Close period (admin)
    GET    /api/households/{id}/settlements        History
    GET    /api/households/{id}/settlements/{sid}  Single settlement

REQUEST FLOW:
  1. Parse HTTP request
  2. Resolve authenticated member from context
  3. Call domain logic (recorder, settlement engine, admin service)
  4. Serialize response
  5. Map domain errors to HTTP status

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 401: Missing or invalid token
  - 403: Caller lacks admin or member rights
  - 404: Resource not found
  - 409: Purchase conflict, period already settled
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/warp/household-ledger/auth"
	"github.com/warp/household-ledger/ledger"
	"github.com/warp/household-ledger/rent"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store      ledger.TxStore
	Admin      *ledger.AdminService
	Recorder   *ledger.Recorder
	Settlement *ledger.SettlementEngine
	Rent       rent.ShareProvider
}

// NewHandler creates a new handler on top of the given store and rent
// policy.
func NewHandler(store ledger.TxStore, rentShares rent.ShareProvider) *Handler {
	return &Handler{
		Store:      store,
		Admin:      ledger.NewAdminService(store),
		Recorder:   ledger.NewRecorder(store),
		Settlement: ledger.NewSettlementEngine(store),
		Rent:       rentShares,
	}
}

// =============================================================================
// HOUSEHOLD HANDLERS
// =============================================================================

// CreateHousehold creates a new household with the caller as admin.
func (h *Handler) CreateHousehold(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.MemberFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Not authenticated", nil)
		return
	}

	var req CreateHouseholdRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "Household name is required", nil)
		return
	}

	members := toMemberIDs(req.Members)
	household, err := h.Admin.CreateHousehold(r.Context(), req.Name, caller, members, time.Now())
	if err != nil {
		writeDomainError(w, "Failed to create household", err)
		return
	}

	writeJSON(w, http.StatusCreated, toHouseholdDTO(household))
}

// GetHousehold returns a single household. Members only.
func (h *Handler) GetHousehold(w http.ResponseWriter, r *http.Request) {
	_, household, ok := h.requireMember(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, toHouseholdDTO(household))
}

// =============================================================================
// ROTA ITEM HANDLERS
// =============================================================================

// CreateItem creates a rota item for a household.
func (h *Handler) CreateItem(w http.ResponseWriter, r *http.Request) {
	caller, household, ok := h.requireMember(w, r)
	if !ok {
		return
	}

	var req CreateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "Item name is required", nil)
		return
	}

	order := toMemberIDs(req.RotaOrder)
	if len(order) == 0 {
		order = household.Members
	}

	item, err := h.Admin.CreateItem(r.Context(), household.ID, caller, req.Name, order, time.Now())
	if err != nil {
		writeDomainError(w, "Failed to create item", err)
		return
	}

	writeJSON(w, http.StatusCreated, toRotaItemDTO(item))
}

// ListItems returns all rota items of a household.
func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	_, household, ok := h.requireMember(w, r)
	if !ok {
		return
	}

	items, err := h.Store.ListRotaItems(r.Context(), household.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list items", err)
		return
	}

	dtos := make([]RotaItemDTO, len(items))
	for i := range items {
		dtos[i] = toRotaItemDTO(&items[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// SetTurn repositions an item's rota at a specific member. Admin only.
func (h *Handler) SetTurn(w http.ResponseWriter, r *http.Request) {
	caller, household, ok := h.requireMember(w, r)
	if !ok {
		return
	}

	var req SetTurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	itemID := ledger.ItemID(chi.URLParam(r, "itemID"))
	item, err := h.Admin.SetTurn(r.Context(), household.ID, caller, itemID, ledger.MemberID(req.Member))
	if err != nil {
		writeDomainError(w, "Failed to set turn", err)
		return
	}

	writeJSON(w, http.StatusOK, toRotaItemDTO(item))
}

// RemoveFromRota drops a member from an item's rotation. Admin only.
func (h *Handler) RemoveFromRota(w http.ResponseWriter, r *http.Request) {
	caller, household, ok := h.requireMember(w, r)
	if !ok {
		return
	}

	var req RemoveFromRotaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	itemID := ledger.ItemID(chi.URLParam(r, "itemID"))
	item, err := h.Admin.RemoveFromRota(r.Context(), household.ID, caller, itemID, ledger.MemberID(req.Member))
	if err != nil {
		writeDomainError(w, "Failed to remove member from rota", err)
		return
	}

	writeJSON(w, http.StatusOK, toRotaItemDTO(item))
}

// DeactivateItem retires a rota item. Admin only.
func (h *Handler) DeactivateItem(w http.ResponseWriter, r *http.Request) {
	caller, household, ok := h.requireMember(w, r)
	if !ok {
		return
	}

	itemID := ledger.ItemID(chi.URLParam(r, "itemID"))
	item, err := h.Admin.DeactivateItem(r.Context(), household.ID, caller, itemID)
	if err != nil {
		writeDomainError(w, "Failed to deactivate item", err)
		return
	}

	writeJSON(w, http.StatusOK, toRotaItemDTO(item))
}

// =============================================================================
// PURCHASE HANDLERS
// =============================================================================

// RecordPurchase records a purchase against an item and advances the rota.
func (h *Handler) RecordPurchase(w http.ResponseWriter, r *http.Request) {
	caller, household, ok := h.requireMember(w, r)
	if !ok {
		return
	}

	var req RecordPurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	at := time.Now()
	if req.At != nil {
		at = *req.At
	}

	itemID := ledger.ItemID(chi.URLParam(r, "itemID"))
	purchase, err := h.Recorder.RecordPurchase(r.Context(), household.ID, itemID, caller, ledger.NewAmount(req.Amount), at)
	if err != nil {
		writeDomainError(w, "Failed to record purchase", err)
		return
	}

	writeJSON(w, http.StatusCreated, toPurchaseDTO(*purchase))
}

// ListOpenPurchases returns the open-period purchases of a household.
// Display read; not transactional with concurrent writes.
func (h *Handler) ListOpenPurchases(w http.ResponseWriter, r *http.Request) {
	_, household, ok := h.requireMember(w, r)
	if !ok {
		return
	}

	purchases, err := h.Store.ListOpenPurchases(r.Context(), household.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list purchases", err)
		return
	}

	dtos := make([]PurchaseDTO, len(purchases))
	for i, p := range purchases {
		dtos[i] = toPurchaseDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// BALANCE HANDLERS
// =============================================================================

// GetBalances returns the open-period balance snapshot. Display read.
func (h *Handler) GetBalances(w http.ResponseWriter, r *http.Request) {
	_, household, ok := h.requireMember(w, r)
	if !ok {
		return
	}

	entries, err := h.Store.GetBalances(r.Context(), household.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get balances", err)
		return
	}

	// Every member appears, purchases or not.
	byMember := make(map[ledger.MemberID]ledger.BalanceEntry, len(entries))
	for _, e := range entries {
		byMember[e.MemberID] = e
	}
	dtos := make([]BalanceDTO, len(household.Members))
	for i, member := range household.Members {
		entry, ok := byMember[member]
		if !ok {
			entry = ledger.BalanceEntry{
				MemberID:          member,
				TotalPurchased:    ledger.NewAmount(0),
				ExpectedPurchases: ledger.NewAmount(0),
			}
		}
		dtos[i] = toBalanceDTO(entry)
	}

	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// SETTLEMENT HANDLERS
// =============================================================================

// CloseSettlement closes the open period. Admin only.
func (h *Handler) CloseSettlement(w http.ResponseWriter, r *http.Request) {
	caller, household, ok := h.requireMember(w, r)
	if !ok {
		return
	}

	var req CloseSettlementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	at := time.Now()
	if req.At != nil {
		at = *req.At
	}

	shares, err := h.Rent.Shares(household.Members)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to compute rent shares", err)
		return
	}

	settlement, err := h.Settlement.Close(r.Context(), household.ID, caller, shares, at)
	if err != nil {
		writeDomainError(w, "Failed to close settlement", err)
		return
	}

	writeJSON(w, http.StatusCreated, toSettlementDTO(settlement))
}

// ListSettlements returns a household's settlement history, newest first.
func (h *Handler) ListSettlements(w http.ResponseWriter, r *http.Request) {
	_, household, ok := h.requireMember(w, r)
	if !ok {
		return
	}

	settlements, err := h.Store.ListSettlements(r.Context(), household.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list settlements", err)
		return
	}

	dtos := make([]SettlementDTO, len(settlements))
	for i := range settlements {
		dtos[i] = toSettlementDTO(&settlements[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetSettlement returns a single settlement with its statements.
func (h *Handler) GetSettlement(w http.ResponseWriter, r *http.Request) {
	_, household, ok := h.requireMember(w, r)
	if !ok {
		return
	}

	settlement, err := h.Store.GetSettlement(r.Context(), ledger.SettlementID(chi.URLParam(r, "sid")))
	if err != nil {
		writeDomainError(w, "Failed to get settlement", err)
		return
	}
	if settlement.HouseholdID != household.ID {
		writeError(w, http.StatusNotFound, "Settlement not found", nil)
		return
	}

	writeJSON(w, http.StatusOK, toSettlementDTO(settlement))
}

// =============================================================================
// HELPERS
// =============================================================================

// requireMember resolves the caller and the household from the request,
// rejecting callers that are not members. Handlers for mutating routes
// still rely on the ledger's own fresh checks; this only gates reads
// and produces consistent 401/403/404 responses.
func (h *Handler) requireMember(w http.ResponseWriter, r *http.Request) (ledger.MemberID, *ledger.Household, bool) {
	caller, ok := auth.MemberFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Not authenticated", nil)
		return "", nil, false
	}

	householdID := ledger.HouseholdID(chi.URLParam(r, "id"))
	household, err := h.Store.GetHousehold(r.Context(), householdID)
	if err != nil {
		writeDomainError(w, "Failed to get household", err)
		return "", nil, false
	}
	if !household.IsMember(caller) {
		writeError(w, http.StatusForbidden, "Not a member of this household", nil)
		return "", nil, false
	}
	return caller, household, true
}

func toMemberIDs(raw []string) []ledger.MemberID {
	members := make([]ledger.MemberID, len(raw))
	for i, m := range raw {
		members[i] = ledger.MemberID(m)
	}
	return members
}

// writeDomainError maps ledger errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case errors.Is(err, ledger.ErrNotAuthorized):
		writeError(w, http.StatusForbidden, message, err)
	case errors.Is(err, ledger.ErrNotMember):
		writeError(w, http.StatusForbidden, message, err)
	case errors.Is(err, ledger.ErrPurchaseConflict), errors.Is(err, ledger.ErrAlreadySettled):
		writeError(w, http.StatusConflict, message, err)
	case ledger.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
