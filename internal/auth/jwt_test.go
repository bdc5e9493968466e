package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-with-enough-entropy"

func TestJWTManager_RoundTrip(t *testing.T) {
	m := NewJWTManager(testSecret, "rabotim-identity", time.Hour)

	token, err := m.GenerateAccessToken("user-1", RoleAdmin)
	require.NoError(t, err)

	claims, err := m.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, RoleAdmin, claims.Role)
}

func TestJWTManager_RejectsWrongSecret(t *testing.T) {
	token, err := NewJWTManager("other-secret", "", time.Hour).GenerateAccessToken("user-1", "")
	require.NoError(t, err)

	_, err = NewJWTManager(testSecret, "", time.Hour).Validate(token)
	assert.Error(t, err)
}

func TestJWTManager_RejectsExpired(t *testing.T) {
	m := NewJWTManager(testSecret, "", -time.Minute)
	token, err := m.GenerateAccessToken("user-1", "")
	require.NoError(t, err)

	_, err = m.Validate(token)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestJWTManager_RejectsWrongIssuer(t *testing.T) {
	token, err := NewJWTManager(testSecret, "someone-else", time.Hour).GenerateAccessToken("user-1", "")
	require.NoError(t, err)

	_, err = NewJWTManager(testSecret, "rabotim-identity", time.Hour).Validate(token)
	assert.ErrorIs(t, err, jwt.ErrTokenInvalidIssuer)
}

func TestJWTManager_RejectsOtherAlgorithm(t *testing.T) {
	claims := &Claims{
		UserID: "user-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = NewJWTManager(testSecret, "", time.Hour).Validate(token)
	assert.Error(t, err)
}

func TestJWTManager_FallsBackToSubject(t *testing.T) {
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-9",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	got, err := NewJWTManager(testSecret, "", time.Hour).Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "user-9", got.UserID)
}
