/*
admin.go - Household and rota administration

PURPOSE:
  Creation of households and rota items, and the admin-only rota
  overrides (set turn, remove member from rotation, deactivate item).
  Each mutation is one store transaction with the authorization gate
  evaluated inside it against the stored household record.
*/
package ledger

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// AdminService performs household and rota item administration.
type AdminService struct {
	store TxStore
}

// NewAdminService creates an admin service backed by the given store.
func NewAdminService(store TxStore) *AdminService {
	return &AdminService{store: store}
}

// CreateHousehold creates a household with the given admin and members and
// opens its first accounting period at the given time.
func (a *AdminService) CreateHousehold(ctx context.Context, name string, admin MemberID, members []MemberID, at time.Time) (*Household, error) {
	h := Household{
		ID:          HouseholdID(uuid.New().String()),
		Name:        name,
		AdminID:     admin,
		Members:     members,
		PeriodStart: at,
		CreatedAt:   at,
	}
	if err := h.Validate(); err != nil {
		return nil, err
	}
	if err := a.store.SaveHousehold(ctx, h); err != nil {
		return nil, err
	}
	slog.Info("household created", "household_id", h.ID, "members", len(h.Members))
	return &h, nil
}

// CreateItem adds a shared item with the given rotation order. Any household
// member may add items; the order must consist of household members with no
// duplicates.
func (a *AdminService) CreateItem(ctx context.Context, household HouseholdID, actor MemberID, name string, order []MemberID, at time.Time) (*RotaItem, error) {
	var item *RotaItem
	err := a.store.WithTx(ctx, func(s Store) error {
		h, err := s.GetHousehold(ctx, household)
		if err != nil {
			return err
		}
		if err := RequireMember(*h, actor); err != nil {
			return err
		}
		if err := ValidateRotaOrder(*h, order); err != nil {
			return err
		}
		item = &RotaItem{
			ID:          ItemID(uuid.New().String()),
			HouseholdID: household,
			Name:        name,
			RotaOrder:   order,
			TurnIndex:   0,
			Active:      true,
			CreatedAt:   at,
		}
		return s.SaveRotaItem(ctx, *item)
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// SetTurn is the admin override that points an item's turn at a member.
func (a *AdminService) SetTurn(ctx context.Context, household HouseholdID, actor MemberID, item ItemID, member MemberID) (*RotaItem, error) {
	return a.mutateItem(ctx, household, actor, item, func(current RotaItem) (RotaItem, error) {
		return SetTurn(current, member)
	})
}

// RemoveFromRota removes a member from an item's rotation order,
// renormalizing the turn index immediately (see rota.go).
func (a *AdminService) RemoveFromRota(ctx context.Context, household HouseholdID, actor MemberID, item ItemID, member MemberID) (*RotaItem, error) {
	return a.mutateItem(ctx, household, actor, item, func(current RotaItem) (RotaItem, error) {
		return RemoveFromRota(current, member)
	})
}

// DeactivateItem stops purchases against an item. The item and its history
// are retained.
func (a *AdminService) DeactivateItem(ctx context.Context, household HouseholdID, actor MemberID, item ItemID) (*RotaItem, error) {
	return a.mutateItem(ctx, household, actor, item, func(current RotaItem) (RotaItem, error) {
		next := current
		next.Active = false
		return next, nil
	})
}

// mutateItem runs an admin-gated, version-checked rota item mutation inside
// one store transaction.
func (a *AdminService) mutateItem(ctx context.Context, household HouseholdID, actor MemberID, item ItemID, mutate func(RotaItem) (RotaItem, error)) (*RotaItem, error) {
	var updated *RotaItem
	err := a.store.WithTx(ctx, func(s Store) error {
		h, err := s.GetHousehold(ctx, household)
		if err != nil {
			return err
		}
		if err := RequireAdmin(*h, actor); err != nil {
			slog.Warn("rota override rejected: caller is not the household admin",
				"household_id", household, "caller_id", actor, "item_id", item)
			return err
		}
		current, err := s.GetRotaItem(ctx, item)
		if err != nil {
			return err
		}
		if current.HouseholdID != household {
			return ErrItemNotFound
		}
		next, err := mutate(*current)
		if err != nil {
			return err
		}
		if err := s.SaveRotaItem(ctx, next); err != nil {
			return err
		}
		updated = &next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
