package auth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/household-ledger/auth"
)

func TestManager_GenerateAndValidate(t *testing.T) {
	manager := auth.NewManager("test-secret", time.Hour)

	token, err := manager.Generate("alice")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	member, err := manager.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", string(member))
}

func TestManager_WrongSecret_Invalid(t *testing.T) {
	token, err := auth.NewManager("secret-a", time.Hour).Generate("alice")
	require.NoError(t, err)

	_, err = auth.NewManager("secret-b", time.Hour).Validate(token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestManager_ExpiredToken_Rejected(t *testing.T) {
	manager := auth.NewManager("test-secret", -time.Minute)

	token, err := manager.Generate("alice")
	require.NoError(t, err)

	_, err = manager.Validate(token)
	assert.ErrorIs(t, err, auth.ErrExpiredToken)
}

func TestManager_Garbage_Invalid(t *testing.T) {
	manager := auth.NewManager("test-secret", time.Hour)

	_, err := manager.Validate("not.a.token")
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}
