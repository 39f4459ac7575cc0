/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/household-ledger/ledger"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// CreateHouseholdRequest creates a household. The authenticated caller
// becomes the admin.
type CreateHouseholdRequest struct {
	Name    string   `json:"name"`
	Members []string `json:"members"`
}

// CreateItemRequest creates a rota item. RotaOrder defaults to the
// household's member list when omitted.
type CreateItemRequest struct {
	Name      string   `json:"name"`
	RotaOrder []string `json:"rota_order,omitempty"`
}

// SetTurnRequest points an item's rota at a specific member.
type SetTurnRequest struct {
	Member string `json:"member"`
}

// RemoveFromRotaRequest drops a member from an item's rotation.
type RemoveFromRotaRequest struct {
	Member string `json:"member"`
}

// RecordPurchaseRequest records a purchase against an item. Amount is
// in minor currency units. At defaults to now when omitted.
type RecordPurchaseRequest struct {
	Amount int64      `json:"amount"`
	At     *time.Time `json:"at,omitempty"`
}

// CloseSettlementRequest closes the open period. At defaults to now.
type CloseSettlementRequest struct {
	At *time.Time `json:"at,omitempty"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// HouseholdDTO represents a household in API responses.
type HouseholdDTO struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	AdminID     string   `json:"admin_id"`
	Members     []string `json:"members"`
	PeriodStart string   `json:"period_start"`
	CreatedAt   string   `json:"created_at"`
}

// RotaItemDTO represents a rota item. CurrentBuyer is resolved from the
// rota state at read time.
type RotaItemDTO struct {
	ID           string   `json:"id"`
	HouseholdID  string   `json:"household_id"`
	Name         string   `json:"name"`
	RotaOrder    []string `json:"rota_order"`
	TurnIndex    int      `json:"turn_index"`
	CurrentBuyer string   `json:"current_buyer,omitempty"`
	Active       bool     `json:"active"`
	CreatedAt    string   `json:"created_at"`
}

// PurchaseDTO represents a recorded purchase. Amount is a decimal
// string of minor currency units.
type PurchaseDTO struct {
	ID           string `json:"id"`
	HouseholdID  string `json:"household_id"`
	ItemID       string `json:"item_id"`
	PurchasedBy  string `json:"purchased_by"`
	ExpectedBy   string `json:"expected_by"`
	Amount       string `json:"amount"`
	At           string `json:"at"`
	SettlementID string `json:"settlement_id,omitempty"`
}

// BalanceDTO is one member's open-period position. NetBalance is always
// derived from the two totals.
type BalanceDTO struct {
	MemberID          string `json:"member_id"`
	TotalPurchased    string `json:"total_purchased"`
	ExpectedPurchases string `json:"expected_purchases"`
	NetBalance        string `json:"net_balance"`
}

// MemberStatementDTO is one member's line in a settlement.
type MemberStatementDTO struct {
	MemberID          string `json:"member_id"`
	TotalPurchased    string `json:"total_purchased"`
	ExpectedPurchases string `json:"expected_purchases"`
	NetBalance        string `json:"net_balance"`
	BaseRentShare     string `json:"base_rent_share"`
	AdjustedRent      string `json:"adjusted_rent"`
}

// SettlementDTO represents a closed period.
type SettlementDTO struct {
	ID            string               `json:"id"`
	HouseholdID   string               `json:"household_id"`
	PeriodStart   string               `json:"period_start"`
	PeriodEnd     string               `json:"period_end"`
	ClosedBy      string               `json:"closed_by"`
	Statements    []MemberStatementDTO `json:"statements"`
	PurchaseCount int                  `json:"purchase_count"`
	CreatedAt     string               `json:"created_at"`
}

// ErrorResponse is the shape of all error payloads.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func toHouseholdDTO(h *ledger.Household) HouseholdDTO {
	members := make([]string, len(h.Members))
	for i, m := range h.Members {
		members[i] = string(m)
	}
	return HouseholdDTO{
		ID:          string(h.ID),
		Name:        h.Name,
		AdminID:     string(h.AdminID),
		Members:     members,
		PeriodStart: h.PeriodStart.Format(time.RFC3339),
		CreatedAt:   h.CreatedAt.Format(time.RFC3339),
	}
}

func toRotaItemDTO(item *ledger.RotaItem) RotaItemDTO {
	order := make([]string, len(item.RotaOrder))
	for i, m := range item.RotaOrder {
		order[i] = string(m)
	}
	dto := RotaItemDTO{
		ID:          string(item.ID),
		HouseholdID: string(item.HouseholdID),
		Name:        item.Name,
		RotaOrder:   order,
		TurnIndex:   item.TurnIndex,
		Active:      item.Active,
		CreatedAt:   item.CreatedAt.Format(time.RFC3339),
	}
	if buyer, err := ledger.CurrentBuyer(*item); err == nil {
		dto.CurrentBuyer = string(buyer)
	}
	return dto
}

func toPurchaseDTO(p ledger.Purchase) PurchaseDTO {
	return PurchaseDTO{
		ID:           string(p.ID),
		HouseholdID:  string(p.HouseholdID),
		ItemID:       string(p.ItemID),
		PurchasedBy:  string(p.PurchasedBy),
		ExpectedBy:   string(p.ExpectedBy),
		Amount:       p.Amount.String(),
		At:           p.At.Format(time.RFC3339),
		SettlementID: string(p.SettlementID),
	}
}

func toBalanceDTO(e ledger.BalanceEntry) BalanceDTO {
	return BalanceDTO{
		MemberID:          string(e.MemberID),
		TotalPurchased:    e.TotalPurchased.String(),
		ExpectedPurchases: e.ExpectedPurchases.String(),
		NetBalance:        e.NetBalance().String(),
	}
}

func toSettlementDTO(s *ledger.Settlement) SettlementDTO {
	statements := make([]MemberStatementDTO, len(s.Statements))
	for i, st := range s.Statements {
		statements[i] = MemberStatementDTO{
			MemberID:          string(st.MemberID),
			TotalPurchased:    st.TotalPurchased.String(),
			ExpectedPurchases: st.ExpectedPurchases.String(),
			NetBalance:        st.NetBalance.String(),
			BaseRentShare:     st.BaseRentShare.String(),
			AdjustedRent:      st.AdjustedRent.String(),
		}
	}
	return SettlementDTO{
		ID:            string(s.ID),
		HouseholdID:   string(s.HouseholdID),
		PeriodStart:   s.Period.Start.Format(time.RFC3339),
		PeriodEnd:     s.Period.End.Format(time.RFC3339),
		ClosedBy:      string(s.ClosedBy),
		Statements:    statements,
		PurchaseCount: s.PurchaseCount,
		CreatedAt:     s.CreatedAt.Format(time.RFC3339),
	}
}
