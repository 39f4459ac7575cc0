/*
Package auth issues and verifies the bearer tokens used by the HTTP API.

PURPOSE:
  Maps an Authorization header to a household member identity. The
  ledger itself never trusts a cached role: handlers pass the verified
  member ID down and the ledger re-checks membership and admin rights
  against the current household document on every operation.

SEE ALSO:
  - auth/middleware.go: HTTP middleware extracting the identity
  - ledger/authz.go: Membership and admin checks
*/
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/warp/household-ledger/ledger"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// Claims carries the member identity inside a signed token.
type Claims struct {
	MemberID string `json:"member_id"`
	jwt.RegisteredClaims
}

// Manager issues and validates HS256 tokens.
type Manager struct {
	secretKey     []byte
	tokenDuration time.Duration
}

func NewManager(secretKey string, tokenDuration time.Duration) *Manager {
	return &Manager{
		secretKey:     []byte(secretKey),
		tokenDuration: tokenDuration,
	}
}

// Generate creates a signed token for the given member.
func (m *Manager) Generate(member ledger.MemberID) (string, error) {
	now := time.Now()
	claims := Claims{
		MemberID: string(member),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.tokenDuration)),
			Subject:   string(member),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Validate parses a token and returns the member it identifies.
func (m *Manager) Validate(tokenString string) (ledger.MemberID, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secretKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.MemberID == "" {
		return "", ErrInvalidToken
	}
	return ledger.MemberID(claims.MemberID), nil
}
