package token

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docsquare/auth-gateway/config"
	"github.com/docsquare/auth-gateway/models"
)

func testConfig() config.JWTConfig {
	return config.JWTConfig{
		SecretKey:       "test-secret-key",
		Issuer:          "auth-gateway",
		AccessTokenTTL:  30 * time.Minute,
		RefreshTokenTTL: 7 * 24 * time.Hour,
	}
}

func testUser() *models.User {
	user := models.NewUser("jane@example.com", "$2a$12$hash")
	user.Roles = []*models.Role{
		{ID: uuid.New(), Name: models.RoleMember},
	}
	return user
}

func TestIssueAndParseAccessToken(t *testing.T) {
	svc := NewService(testConfig())
	user := testUser()

	perms := []string{"documents:read", "documents:write"}
	quota := &models.QuotaLimits{DailyQueries: models.IntPtr(100)}

	signed, issued, err := svc.IssueAccessToken(user, perms, quota)
	require.NoError(t, err)
	require.NotEmpty(t, signed)
	assert.NotEmpty(t, issued.ID)

	claims, err := svc.ParseAccessToken(signed)
	require.NoError(t, err)

	assert.Equal(t, user.ID.String(), claims.Subject)
	assert.Equal(t, "jane@example.com", claims.Email)
	assert.Equal(t, TokenTypeAccess, claims.TokenType)
	assert.Equal(t, []string{models.RoleMember}, claims.Roles)
	assert.Equal(t, perms, claims.Permissions)
	require.NotNil(t, claims.Quota)
	assert.Equal(t, 100, *claims.Quota.DailyQueries)

	parsedID, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, user.ID, parsedID)
}

func TestParseAccessToken_Expired(t *testing.T) {
	issuedAt := time.Now()
	svc := NewService(testConfig()).WithClock(func() time.Time { return issuedAt })

	signed, _, err := svc.IssueAccessToken(testUser(), nil, nil)
	require.NoError(t, err)

	// Still valid just before expiry
	svc.WithClock(func() time.Time { return issuedAt.Add(29 * time.Minute) })
	_, err = svc.ParseAccessToken(signed)
	assert.NoError(t, err)

	// Rejected after expiry
	svc.WithClock(func() time.Time { return issuedAt.Add(31 * time.Minute) })
	_, err = svc.ParseAccessToken(signed)
	require.Error(t, err)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestParseAccessToken_WrongSecret(t *testing.T) {
	svc := NewService(testConfig())
	signed, _, err := svc.IssueAccessToken(testUser(), nil, nil)
	require.NoError(t, err)

	otherCfg := testConfig()
	otherCfg.SecretKey = "different-secret"
	other := NewService(otherCfg)

	_, err = other.ParseAccessToken(signed)
	assert.Error(t, err)
}

func TestParseAccessToken_WrongSigningMethod(t *testing.T) {
	svc := NewService(testConfig())

	// alg=none tokens must never validate
	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, &AccessClaims{
		TokenType: TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uuid.NewString(),
			Issuer:    "auth-gateway",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	tokenString, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = svc.ParseAccessToken(tokenString)
	assert.Error(t, err)
}

func TestParseAccessToken_Garbage(t *testing.T) {
	svc := NewService(testConfig())

	for _, input := range []string{"", "not-a-jwt", "a.b.c"} {
		_, err := svc.ParseAccessToken(input)
		assert.Error(t, err, "input %q should be rejected", input)
	}
}

func TestNewRefreshToken(t *testing.T) {
	svc := NewService(testConfig())

	raw, hash, err := svc.NewRefreshToken()
	require.NoError(t, err)

	assert.Len(t, raw, 64)  // 32 bytes hex encoded
	assert.Len(t, hash, 64) // sha256 hex encoded
	assert.NotEqual(t, raw, hash)
	assert.Equal(t, HashToken(raw), hash)

	// Each token is unique
	raw2, _, err := svc.NewRefreshToken()
	require.NoError(t, err)
	assert.NotEqual(t, raw, raw2)
}

func TestHashToken_Deterministic(t *testing.T) {
	assert.Equal(t, HashToken("abc"), HashToken("abc"))
	assert.NotEqual(t, HashToken("abc"), HashToken("abd"))
}
