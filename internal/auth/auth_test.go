package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(t *testing.T, secret, issuer string, exp time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   "alice",
		Issuer:    issuer,
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestVerifierAcceptsValidToken(t *testing.T) {
	v, err := NewVerifier(VerifierOptions{Secret: "s3cret", Issuer: "idp"})
	require.NoError(t, err)

	claims, err := v.Verify(sign(t, "s3cret", "idp", time.Now().Add(time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
}

func TestVerifierRejects(t *testing.T) {
	v, err := NewVerifier(VerifierOptions{Secret: "s3cret", Issuer: "idp"})
	require.NoError(t, err)

	_, err = v.Verify(sign(t, "other", "idp", time.Now().Add(time.Hour)))
	assert.True(t, errors.Is(err, ErrInvalidCredential))

	_, err = v.Verify(sign(t, "s3cret", "someone-else", time.Now().Add(time.Hour)))
	assert.True(t, errors.Is(err, ErrInvalidCredential))

	_, err = v.Verify(sign(t, "s3cret", "idp", time.Now().Add(-time.Hour)))
	assert.True(t, errors.Is(err, ErrCredentialExpired))

	_, err = v.Verify("")
	assert.True(t, errors.Is(err, ErrMissingCredential))
}

func TestNewVerifierRequiresSecret(t *testing.T) {
	_, err := NewVerifier(VerifierOptions{})
	assert.Error(t, err)
}

func TestParseCredentialReadsExpiry(t *testing.T) {
	exp := time.Now().Add(30 * time.Minute).Truncate(time.Second)
	cred, err := ParseCredential("Bearer " + sign(t, "x", "", exp))
	require.NoError(t, err)
	assert.True(t, cred.ExpiresAt.Equal(exp))
	assert.NoError(t, cred.Check(time.Now()))
	assert.ErrorIs(t, cred.Check(exp.Add(time.Second)), ErrCredentialExpired)
}

func TestParseCredentialOpaqueToken(t *testing.T) {
	cred, err := ParseCredential("opaque-token")
	require.NoError(t, err)
	assert.Equal(t, "opaque-token", cred.Token)
	assert.True(t, cred.ExpiresAt.IsZero())
	assert.NoError(t, cred.Check(time.Now()))
	assert.Equal(t, "Bearer opaque-token", cred.Header())
}

func TestParseCredentialEmpty(t *testing.T) {
	_, err := ParseCredential("  ")
	assert.ErrorIs(t, err, ErrMissingCredential)
	assert.ErrorIs(t, Credential{}.Check(time.Now()), ErrMissingCredential)
}
