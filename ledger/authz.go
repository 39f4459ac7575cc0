package ledger

// Authorization gate for mutating operations. Evaluated fresh against the
// stored household record on every call, never cached: the admin role can
// change between calls.

// RequireMember rejects callers who are not household members.
func RequireMember(h Household, m MemberID) error {
	if !h.IsMember(m) {
		return ErrNotMember
	}
	return nil
}

// RequireAdmin rejects callers who are not the household admin.
func RequireAdmin(h Household, m MemberID) error {
	if err := RequireMember(h, m); err != nil {
		return ErrNotAuthorized
	}
	if h.AdminID != m {
		return ErrNotAuthorized
	}
	return nil
}
