package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_RoundTrip(t *testing.T) {
	m := NewManager("secret", time.Hour)

	token, err := m.GenerateJWT("a@x.com")
	require.NoError(t, err)

	id, err := m.ValidateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", id.Email)
}

func TestManager_WrongSecret(t *testing.T) {
	token, err := NewManager("one", time.Hour).GenerateJWT("a@x.com")
	require.NoError(t, err)

	_, err = NewManager("two", time.Hour).ValidateJWT(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestManager_Expired(t *testing.T) {
	m := NewManager("secret", time.Minute)
	issued := time.Now().Add(-time.Hour)
	m.now = func() time.Time { return issued }

	token, err := m.GenerateJWT("a@x.com")
	require.NoError(t, err)

	m.now = time.Now
	_, err = m.ValidateJWT(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestManager_RejectsNoneAlgorithm(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "a@x.com"})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = NewManager("secret", time.Hour).ValidateJWT(signed)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestIdentityContext(t *testing.T) {
	_, ok := IdentityFrom(context.Background())
	assert.False(t, ok)

	ctx := WithIdentity(context.Background(), Identity{Email: "b@x.com"})
	id, ok := IdentityFrom(ctx)
	require.True(t, ok)
	assert.Equal(t, "b@x.com", id.Email)
}
