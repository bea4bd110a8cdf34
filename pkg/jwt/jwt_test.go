package jwt

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManager(secret string, ttl time.Duration) *JWTManager {
	return NewJWTManager(secret, "counselmeet", "counselmeet-api", ttl)
}

func TestNewJWTManager(t *testing.T) {
	manager := NewJWTManager("test-secret-key-for-testing-purposes", "iss", "aud", 15*time.Minute)

	assert.NotNil(t, manager)
	assert.Equal(t, "iss", manager.issuer)
	assert.Equal(t, "aud", manager.audience)
	assert.Equal(t, 15*time.Minute, manager.accessTokenDuration)
}

func TestValidateToken_ValidToken(t *testing.T) {
	manager := newManager("test-secret", 15*time.Minute)
	userID := uuid.New()

	token, err := manager.GenerateAccessToken(userID, "counsel@example.com", "counsel", "user")
	require.NoError(t, err)

	claims, err := manager.ValidateToken(token)

	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, "counsel@example.com", claims.Email)
	assert.Equal(t, "counsel", claims.Username)
	assert.Equal(t, "user", claims.Role)
	assert.Equal(t, "counselmeet", claims.Issuer)
	assert.Equal(t, userID.String(), claims.Subject)
	assert.NotEmpty(t, claims.ID)
	assert.True(t, claims.ExpiresAt.After(claims.IssuedAt.Time))
}

func TestValidateToken_ExpiredToken(t *testing.T) {
	manager := newManager("test-secret", time.Nanosecond)

	token, err := manager.GenerateAccessToken(uuid.New(), "counsel@example.com", "counsel", "user")
	require.NoError(t, err)

	time.Sleep(1100 * time.Millisecond)

	claims, err := manager.ValidateToken(token)

	assert.Error(t, err)
	assert.Nil(t, claims)
	assert.Contains(t, err.Error(), "expired")
}

func TestValidateToken_InvalidToken(t *testing.T) {
	manager := newManager("test-secret", 15*time.Minute)

	claims, err := manager.ValidateToken("invalid.token.here")

	assert.Error(t, err)
	assert.Nil(t, claims)
}

func TestValidateToken_WrongSecret(t *testing.T) {
	token, err := newManager("secret-1", 15*time.Minute).GenerateAccessToken(uuid.New(), "a@example.com", "a", "user")
	require.NoError(t, err)

	claims, err := newManager("secret-2", 15*time.Minute).ValidateToken(token)

	assert.Error(t, err)
	assert.Nil(t, claims)
}

func TestValidateToken_WrongAudience(t *testing.T) {
	other := NewJWTManager("test-secret", "counselmeet", "billing-api", 15*time.Minute)
	token, err := other.GenerateAccessToken(uuid.New(), "a@example.com", "a", "user")
	require.NoError(t, err)

	_, err = newManager("test-secret", 15*time.Minute).ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateToken_WrongIssuer(t *testing.T) {
	other := NewJWTManager("test-secret", "someone-else", "counselmeet-api", 15*time.Minute)
	token, err := other.GenerateAccessToken(uuid.New(), "a@example.com", "a", "user")
	require.NoError(t, err)

	_, err = newManager("test-secret", 15*time.Minute).ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateToken_ChecksDisabledWhenUnset(t *testing.T) {
	open := NewJWTManager("test-secret", "", "", 15*time.Minute)
	token, err := newManager("test-secret", 15*time.Minute).GenerateAccessToken(uuid.New(), "a@example.com", "a", "admin")
	require.NoError(t, err)

	claims, err := open.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Role)
}
