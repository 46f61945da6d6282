package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTService_RoundTrip(t *testing.T) {
	svc := NewJWTService(DefaultJWTConfig("test-secret"))

	token, expiresAt, err := svc.GenerateAccessToken("operator-7", []string{"operator"}, []string{"ledger:write"})
	require.NoError(t, err)
	assert.True(t, expiresAt.After(time.Now()))

	p, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "operator-7", p.Subject)
	assert.True(t, p.HasPermission("ledger:write"))
	assert.False(t, p.HasPermission("admin:counters"))
	assert.NotEmpty(t, p.SessionID)
}

func TestJWTService_RejectsForeignSecret(t *testing.T) {
	issuer := NewJWTService(DefaultJWTConfig("other-secret"))
	token, _, err := issuer.GenerateAccessToken("operator-7", nil, nil)
	require.NoError(t, err)

	_, err = NewJWTService(DefaultJWTConfig("test-secret")).ValidateToken(token)
	assert.Error(t, err)
}

func TestJWTService_RejectsExpired(t *testing.T) {
	cfg := DefaultJWTConfig("test-secret")
	cfg.AccessTokenTTL = -time.Minute
	svc := NewJWTService(cfg)

	token, _, err := svc.GenerateAccessToken("operator-7", nil, nil)
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.Error(t, err)
}

func TestJWTService_RejectsMissingSubject(t *testing.T) {
	svc := NewJWTService(DefaultJWTConfig("test-secret"))
	token, _, err := svc.GenerateAccessToken("", nil, nil)
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.Error(t, err)
}
