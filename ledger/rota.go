/*
rota.go - Rotation logic for shared items

PURPOSE:
  Answers "whose turn is it?" and advances the turn after a purchase.
  Pure functions over immutable snapshots: no I/O, no side effects.
  The caller (recorder.go, or the admin override handlers) persists the
  returned copy with a version-checked write.

WHY PURE?
  The turn rule is a function of an ordered list and an index. Keeping it
  stateless makes it trivially testable and safe under concurrent reads;
  all serialization happens at the store boundary, not here.
*/
package ledger

// CurrentBuyer returns the member whose turn it is to buy the item.
// Fails with ErrInvalidRotaState on an empty rotation order or an index
// that does not resolve to a member.
func CurrentBuyer(item RotaItem) (MemberID, error) {
	if len(item.RotaOrder) == 0 {
		return "", ErrInvalidRotaState
	}
	if item.TurnIndex < 0 || item.TurnIndex >= len(item.RotaOrder) {
		return "", ErrInvalidRotaState
	}
	return item.RotaOrder[item.TurnIndex], nil
}

// Advance returns a copy of the item with the turn moved to the next member,
// wrapping around the rotation order. The input is not modified.
func Advance(item RotaItem) RotaItem {
	next := item
	if n := len(item.RotaOrder); n > 0 {
		next.TurnIndex = (item.TurnIndex + 1) % n
	}
	return next
}

// SetTurn returns a copy of the item with the turn set to the given member.
// Admin override; fails with NotInRotaError if the member is absent from the
// rotation order.
func SetTurn(item RotaItem, member MemberID) (RotaItem, error) {
	for i, m := range item.RotaOrder {
		if m == member {
			next := item
			next.TurnIndex = i
			return next, nil
		}
	}
	return RotaItem{}, &NotInRotaError{ItemID: item.ID, MemberID: member}
}

// RemoveFromRota returns a copy of the item with the member removed from the
// rotation order and the turn index renormalized:
//   - removing a member before the current turn shifts the index down
//   - removing the member whose turn it is passes the turn to the next
//     member in order (the index is reused, modulo the shorter order)
//
// Removing the last member would leave an empty rota, which is rejected
// with ErrInvalidRotaState; deactivate the item instead.
func RemoveFromRota(item RotaItem, member MemberID) (RotaItem, error) {
	idx := -1
	for i, m := range item.RotaOrder {
		if m == member {
			idx = i
			break
		}
	}
	if idx == -1 {
		return RotaItem{}, &NotInRotaError{ItemID: item.ID, MemberID: member}
	}
	if len(item.RotaOrder) == 1 {
		return RotaItem{}, ErrInvalidRotaState
	}

	next := item
	next.RotaOrder = make([]MemberID, 0, len(item.RotaOrder)-1)
	next.RotaOrder = append(next.RotaOrder, item.RotaOrder[:idx]...)
	next.RotaOrder = append(next.RotaOrder, item.RotaOrder[idx+1:]...)

	switch {
	case idx < item.TurnIndex:
		next.TurnIndex = item.TurnIndex - 1
	default:
		next.TurnIndex = item.TurnIndex % len(next.RotaOrder)
	}
	return next, nil
}

// ValidateRotaOrder checks a proposed rotation order against the household:
// non-empty, no duplicates, and every entry a household member.
func ValidateRotaOrder(h Household, order []MemberID) error {
	if len(order) == 0 {
		return ErrInvalidRotaState
	}
	seen := make(map[MemberID]bool, len(order))
	for _, m := range order {
		if seen[m] {
			return ErrDuplicateMember
		}
		seen[m] = true
		if !h.IsMember(m) {
			return ErrNotMember
		}
	}
	return nil
}
