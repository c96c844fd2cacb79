package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	hash, err := HashPassword("correct horse battery")
	require.NoError(t, err)
	return NewService(Config{
		Username:     "operator",
		PasswordHash: hash,
		JWTSecret:    "test-secret",
	})
}

func TestLoginIssuesValidTokenPair(t *testing.T) {
	svc := newTestService(t)

	pair, err := svc.Login("operator", "correct horse battery")
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	require.Equal(t, "Bearer", pair.TokenType)

	claims, err := svc.ValidateAccessToken(pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "operator", claims.Username)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Login("operator", "wrong")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login("someone-else", "correct horse battery")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRefreshTokenIsSingleUse(t *testing.T) {
	svc := newTestService(t)

	pair, err := svc.Login("operator", "correct horse battery")
	require.NoError(t, err)

	next, err := svc.Refresh(pair.RefreshToken)
	require.NoError(t, err)
	require.NotEmpty(t, next.AccessToken)

	_, err = svc.Refresh(pair.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestExpiredAccessTokenRejected(t *testing.T) {
	hash, err := HashPassword("pw-for-expiry-test")
	require.NoError(t, err)
	svc := NewService(Config{
		Username:       "operator",
		PasswordHash:   hash,
		JWTSecret:      "test-secret",
		AccessDuration: -time.Minute,
	})
	// NewService floors non-positive durations, force it back for the test.
	svc.cfg.AccessDuration = -time.Minute

	pair, err := svc.Login("operator", "pw-for-expiry-test")
	require.NoError(t, err)

	_, err = svc.ValidateAccessToken(pair.AccessToken)
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestTokenSignedWithOtherSecretRejected(t *testing.T) {
	svc := newTestService(t)
	other := NewService(Config{
		Username:     "operator",
		PasswordHash: svc.cfg.PasswordHash,
		JWTSecret:    "another-secret",
	})

	pair, err := other.Login("operator", "correct horse battery")
	require.NoError(t, err)

	_, err = svc.ValidateAccessToken(pair.AccessToken)
	require.ErrorIs(t, err, ErrInvalidToken)
}
