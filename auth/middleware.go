package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/warp/household-ledger/ledger"
)

type contextKey string

const memberIDKey contextKey = "member_id"

// MemberFromContext returns the authenticated member set by Middleware.
func MemberFromContext(ctx context.Context) (ledger.MemberID, bool) {
	member, ok := ctx.Value(memberIDKey).(ledger.MemberID)
	return member, ok
}

// WithMember returns a context carrying the given member identity.
// Used by tests to bypass token parsing.
func WithMember(ctx context.Context, member ledger.MemberID) context.Context {
	return context.WithValue(ctx, memberIDKey, member)
}

// Middleware validates the Authorization bearer token and stores the
// member identity on the request context. Requests without a valid
// token get 401.
func Middleware(manager *Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				http.Error(w, "missing authorization header", http.StatusUnauthorized)
				return
			}

			tokenString, ok := strings.CutPrefix(header, "Bearer ")
			if !ok {
				http.Error(w, "invalid authorization header format", http.StatusUnauthorized)
				return
			}

			member, err := manager.Validate(tokenString)
			if err != nil {
				slog.Debug("token rejected", "error", err)
				http.Error(w, "invalid or expired token", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithMember(r.Context(), member)))
		})
	}
}
