/*
Package ledger implements the household cost-sharing core: rota rotation,
purchase recording, per-member running balances, and period settlement.

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount: Money in minor currency units (backed by decimal.Decimal)
  - Household: Members, single admin, and the open accounting period
  - RotaItem: A shared item with its rotation order and current turn
  - Purchase: Immutable record of who bought what, and whose turn it was
  - BalanceEntry: Per-member running position for the open period
  - Settlement: Immutable period close with adjusted rent figures

DESIGN PRINCIPLES:
  1. Derived balances: NetBalance is ALWAYS computed from its two inputs,
     never stored as independent mutable state that could drift.
  2. Immutability: Purchases and Settlements are never modified after
     creation (except the one-time SettlementID back-reference stamp).
  3. Precision: decimal.Decimal for money, constructed from integer
     minor currency units. No floats anywhere near a balance.
  4. Optimistic concurrency: versioned documents; writers detect
     conflicting updates instead of locking.

SEE ALSO:
  - rota.go: Pure rotation logic
  - recorder.go: Purchase recording transaction
  - settlement.go: Period close state machine
  - store.go: Persistence contract
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Money in minor currency units
// =============================================================================

// Amount is a monetary value. It is constructed from integer minor currency
// units (cents, pence) and stays integral through additive operations; only
// the rent splitter ever divides, and it redistributes remainders explicitly.
type Amount struct {
	Value decimal.Decimal
}

// NewAmount creates an Amount from integer minor currency units.
func NewAmount(minorUnits int64) Amount {
	return Amount{Value: decimal.NewFromInt(minorUnits)}
}

// ParseAmount creates an Amount from a stored decimal string.
func ParseAmount(s string) Amount {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{Value: decimal.Zero}
	}
	return Amount{Value: d}
}

func (a Amount) Add(b Amount) Amount { return Amount{Value: a.Value.Add(b.Value)} }
func (a Amount) Sub(b Amount) Amount { return Amount{Value: a.Value.Sub(b.Value)} }
func (a Amount) IsZero() bool        { return a.Value.IsZero() }
func (a Amount) IsNegative() bool    { return a.Value.IsNegative() }
func (a Amount) Equal(b Amount) bool { return a.Value.Equal(b.Value) }

// MinorUnits returns the amount as integer minor currency units.
func (a Amount) MinorUnits() int64 { return a.Value.IntPart() }

func (a Amount) String() string { return a.Value.String() }

// =============================================================================
// IDENTIFIERS
// =============================================================================

type (
	HouseholdID  string
	MemberID     string
	ItemID       string
	PurchaseID   string
	SettlementID string
)

// =============================================================================
// HOUSEHOLD
// =============================================================================

// Household is the unit of cost sharing: an ordered set of members, exactly
// one admin (who must be a member), and the start of the open accounting
// period. Version supports optimistic concurrency in the store.
type Household struct {
	ID          HouseholdID
	Name        string
	AdminID     MemberID
	Members     []MemberID
	PeriodStart time.Time
	Version     int64
	CreatedAt   time.Time
}

// IsMember reports whether m belongs to the household.
func (h Household) IsMember(m MemberID) bool {
	for _, member := range h.Members {
		if member == m {
			return true
		}
	}
	return false
}

// Validate checks the household invariants: at least one member, and the
// admin is one of the members.
func (h Household) Validate() error {
	if len(h.Members) == 0 {
		return ErrNoMembers
	}
	if h.AdminID == "" || !h.IsMember(h.AdminID) {
		return ErrAdminNotMember
	}
	seen := make(map[MemberID]bool, len(h.Members))
	for _, m := range h.Members {
		if seen[m] {
			return ErrDuplicateMember
		}
		seen[m] = true
	}
	return nil
}

// =============================================================================
// ROTA ITEM
// =============================================================================

// RotaItem is a shared item (e.g. "toilet rolls") with a rotation order of
// members and the index of whose turn it currently is.
//
// Invariant: TurnIndex always resolves to a valid member of RotaOrder.
// Mutated only via the rota functions in rota.go, persisted with a
// version-checked write.
type RotaItem struct {
	ID          ItemID
	HouseholdID HouseholdID
	Name        string
	RotaOrder   []MemberID
	TurnIndex   int
	Active      bool
	Version     int64
	CreatedAt   time.Time
}

// =============================================================================
// PURCHASE
// =============================================================================

// Purchase records a single purchase event. Immutable once created, except
// for the SettlementID back-reference which is stamped exactly once when the
// period containing the purchase is closed.
type Purchase struct {
	ID          PurchaseID
	HouseholdID HouseholdID
	ItemID      ItemID
	PurchasedBy MemberID
	ExpectedBy  MemberID // whose turn it was at the moment of purchase
	Amount      Amount
	At          time.Time
	SettlementID SettlementID // empty while the period is open
}

// =============================================================================
// BALANCE ENTRY - One per member per open period
// =============================================================================

// BalanceEntry is a member's running position for the open period.
//
// NetBalance is deliberately NOT a field. It is derived from the two inputs
// on every read, so it cannot drift under partial failures. This is the
// single most important invariant in the system.
type BalanceEntry struct {
	MemberID          MemberID
	TotalPurchased    Amount // what the member actually paid
	ExpectedPurchases Amount // what the member should have paid in-turn
	LastUpdated       time.Time
}

// NetBalance returns TotalPurchased - ExpectedPurchases.
// Positive = the member is owed money back; negative = the member owes.
func (b BalanceEntry) NetBalance() Amount {
	return b.TotalPurchased.Sub(b.ExpectedPurchases)
}

// =============================================================================
// SETTLEMENT
// =============================================================================

// MemberStatement is one member's line in a settlement: the final balance
// snapshot and the derived adjusted rent figure.
type MemberStatement struct {
	MemberID          MemberID
	TotalPurchased    Amount
	ExpectedPurchases Amount
	NetBalance        Amount // snapshot of the derived value at close time
	BaseRentShare     Amount // supplied by the bill-splitting collaborator
	AdjustedRent      Amount // BaseRentShare - NetBalance
}

// Settlement is the immutable record closing an accounting period. Created
// exactly once per period; never mutated thereafter.
type Settlement struct {
	ID            SettlementID
	HouseholdID   HouseholdID
	Period        Period
	ClosedBy      MemberID
	Statements    []MemberStatement
	PurchaseCount int
	CreatedAt     time.Time
}
