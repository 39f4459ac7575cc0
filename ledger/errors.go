/*
errors.go - Centralized error types for the ledger core

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers (the API layer) match with errors.Is/errors.As and map to
  HTTP status codes.

ERROR CATEGORIES:
  1. Configuration errors - Empty rota, invalid household shape
  2. Validation errors - Bad input, rejected before any mutation
  3. Concurrency outcomes - Version conflicts (retried), exhausted retries
  4. Authorization - Admin gate rejections

No error in this package is recovered by silently substituting defaults,
and no message carries another member's balance or internal identifiers
beyond what the caller supplied.
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidRotaState is returned when a rota item has an empty rotation
	// order or an index outside it. Configuration error, surfaced to admin.
	ErrInvalidRotaState = errors.New("invalid rota state")

	// ErrMemberNotInRota is returned when an admin override targets a member
	// absent from the rotation order. Rejected with no mutation.
	ErrMemberNotInRota = errors.New("member not in rotation order")

	// ErrPurchaseConflict is returned after a purchase transaction lost to
	// concurrent writers on every bounded retry. Safe to retry from the client.
	ErrPurchaseConflict = errors.New("purchase conflicts with concurrent update")

	// ErrNotAuthorized is returned when a non-admin attempts an admin-only
	// mutation. Rejected, logged, no state change.
	ErrNotAuthorized = errors.New("not authorized")

	// ErrAlreadySettled is returned on a duplicate settlement attempt for the
	// same open period. The duplicate is a no-op: idempotent for the caller.
	ErrAlreadySettled = errors.New("period already settled")

	// ErrVersionConflict is returned by the store when a version-checked write
	// observes a concurrent modification. Retried internally; callers should
	// never see it escape RecordPurchase.
	ErrVersionConflict = errors.New("concurrent modification detected")

	// ErrNotMember is returned when the acting member does not belong to the
	// household.
	ErrNotMember = errors.New("not a household member")

	// ErrItemInactive is returned when recording a purchase against a
	// deactivated rota item.
	ErrItemInactive = errors.New("rota item is inactive")

	// ErrNegativeAmount is returned for purchase amounts below zero.
	ErrNegativeAmount = errors.New("amount must not be negative")

	// Household shape violations.
	ErrNoMembers       = errors.New("household has no members")
	ErrAdminNotMember  = errors.New("admin must be a household member")
	ErrDuplicateMember = errors.New("duplicate member in household")

	// Not-found sentinels.
	ErrHouseholdNotFound  = errors.New("household not found")
	ErrItemNotFound       = errors.New("rota item not found")
	ErrSettlementNotFound = errors.New("settlement not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// PurchaseConflictError reports exhausted conflict retries for one item.
type PurchaseConflictError struct {
	ItemID   ItemID
	Attempts int
}

func (e *PurchaseConflictError) Error() string {
	return fmt.Sprintf("purchase conflict on item %s after %d attempts", e.ItemID, e.Attempts)
}

func (e *PurchaseConflictError) Unwrap() error { return ErrPurchaseConflict }

// NotInRotaError reports an admin override targeting a member outside the
// rotation order.
type NotInRotaError struct {
	ItemID   ItemID
	MemberID MemberID
}

func (e *NotInRotaError) Error() string {
	return fmt.Sprintf("member %s is not in the rotation order of item %s", e.MemberID, e.ItemID)
}

func (e *NotInRotaError) Unwrap() error { return ErrMemberNotInRota }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrNegativeAmount) ||
		errors.Is(err, ErrItemInactive) ||
		errors.Is(err, ErrMemberNotInRota) ||
		errors.Is(err, ErrNoMembers) ||
		errors.Is(err, ErrAdminNotMember) ||
		errors.Is(err, ErrDuplicateMember)
}

// IsNotFound returns true if the error indicates a missing document.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrHouseholdNotFound) ||
		errors.Is(err, ErrItemNotFound) ||
		errors.Is(err, ErrSettlementNotFound)
}
