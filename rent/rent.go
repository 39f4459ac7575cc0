/*
Package rent computes each member's base rent share for a settlement.

PURPOSE:
  Settlement needs a base rent share per member before it can compute
  adjusted rent. The split policy is pluggable: equal split with the
  remainder spread across the first members, or fixed per-member shares
  configured up front.

SEE ALSO:
  - ledger/settlement.go: Consumes the shares at close time
*/
package rent

import (
	"fmt"

	"github.com/warp/household-ledger/ledger"
)

// ShareProvider resolves the base rent share for every member of a
// household. The returned map must contain an entry for each member
// passed in.
type ShareProvider interface {
	Shares(members []ledger.MemberID) (map[ledger.MemberID]ledger.Amount, error)
}

// EqualSplitter divides a total rent evenly across members. When the
// total does not divide evenly, the leftover minor units go to the
// first members in order, one unit each, so the shares always sum to
// the total.
type EqualSplitter struct {
	Total ledger.Amount
}

func NewEqualSplitter(total ledger.Amount) *EqualSplitter {
	return &EqualSplitter{Total: total}
}

func (s *EqualSplitter) Shares(members []ledger.MemberID) (map[ledger.MemberID]ledger.Amount, error) {
	if len(members) == 0 {
		return nil, fmt.Errorf("cannot split rent across zero members")
	}
	if s.Total.IsNegative() {
		return nil, fmt.Errorf("cannot split negative rent %s", s.Total)
	}

	total := s.Total.MinorUnits()
	n := int64(len(members))
	base := total / n
	remainder := total % n

	shares := make(map[ledger.MemberID]ledger.Amount, len(members))
	for i, member := range members {
		share := base
		if int64(i) < remainder {
			share++
		}
		shares[member] = ledger.NewAmount(share)
	}
	return shares, nil
}

// StaticShares returns preconfigured per-member shares. Members without
// a configured share are an error: a settlement must never silently
// zero someone's rent.
type StaticShares struct {
	ByMember map[ledger.MemberID]ledger.Amount
}

func NewStaticShares(byMember map[ledger.MemberID]ledger.Amount) *StaticShares {
	return &StaticShares{ByMember: byMember}
}

func (s *StaticShares) Shares(members []ledger.MemberID) (map[ledger.MemberID]ledger.Amount, error) {
	shares := make(map[ledger.MemberID]ledger.Amount, len(members))
	for _, member := range members {
		share, ok := s.ByMember[member]
		if !ok {
			return nil, fmt.Errorf("no rent share configured for member %s", member)
		}
		shares[member] = share
	}
	return shares, nil
}
