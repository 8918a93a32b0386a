package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthenticate_RoundTrip(t *testing.T) {
	a, err := NewAuthenticator(Config{Enabled: true, Username: "carer", Password: "s3cret", JWTSecret: "k"})
	require.NoError(t, err)

	token, exp, err := a.Authenticate("carer", "s3cret")
	require.NoError(t, err)
	assert.Greater(t, exp, time.Now().Unix())

	claims, err := a.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "carer", claims.Username)
	assert.Equal(t, "vigil", claims.Issuer)
}

func TestAuthenticate_WrongCredentials(t *testing.T) {
	a, err := NewAuthenticator(Config{Enabled: true, Password: "s3cret"})
	require.NoError(t, err)

	_, _, err = a.Authenticate("admin", "nope")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, err = a.Authenticate("someone", "s3cret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthenticate_Disabled(t *testing.T) {
	a, err := NewAuthenticator(Config{})
	require.NoError(t, err)
	assert.False(t, a.IsEnabled())

	_, _, err = a.Authenticate("admin", "x")
	assert.ErrorIs(t, err, ErrAuthDisabled)
}

func TestNewAuthenticator_RequiresPassword(t *testing.T) {
	_, err := NewAuthenticator(Config{Enabled: true})
	assert.Error(t, err)
}

func TestNewAuthenticator_AcceptsBcryptHash(t *testing.T) {
	hash, err := HashPassword("pw")
	require.NoError(t, err)

	a, err := NewAuthenticator(Config{Enabled: true, Password: hash})
	require.NoError(t, err)
	_, _, err = a.Authenticate("admin", "pw")
	assert.NoError(t, err)
}

func TestValidateToken_Expired(t *testing.T) {
	m := NewJWTManager("k", time.Minute)
	start := time.Now()
	m.now = func() time.Time { return start }

	token, _, err := m.GenerateToken("admin")
	require.NoError(t, err)

	m.now = func() time.Time { return start.Add(2 * time.Minute) }
	_, err = m.ValidateToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestValidateToken_WrongSecret(t *testing.T) {
	token, _, err := NewJWTManager("a", time.Hour).GenerateToken("admin")
	require.NoError(t, err)

	_, err = NewJWTManager("b", time.Hour).ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
