// Package token issues and validates JWT access tokens and opaque refresh tokens.
package token

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/docsquare/auth-gateway/config"
	"github.com/docsquare/auth-gateway/models"
)

// TokenTypeAccess marks claims minted for API access
const TokenTypeAccess = "access"

// refreshTokenBytes is the entropy of an opaque refresh token
const refreshTokenBytes = 32

// AccessClaims are the claims embedded in an access token. Roles, permissions
// and quota limits are snapshots taken at issuance; validation that must see
// live state reads the database instead.
type AccessClaims struct {
	Email       string              `json:"email"`
	TokenType   string              `json:"token_type"`
	IsSuperuser bool                `json:"is_superuser"`
	Roles       []string            `json:"roles"`
	Permissions []string            `json:"permissions"`
	Quota       *models.QuotaLimits `json:"quota,omitempty"`
	jwt.RegisteredClaims
}

// UserID returns the subject as a parsed UUID
func (c *AccessClaims) UserID() (uuid.UUID, error) {
	return uuid.Parse(c.Subject)
}

// Service mints and validates tokens
type Service struct {
	cfg config.JWTConfig
	now func() time.Time
}

// NewService creates a new token service
func NewService(cfg config.JWTConfig) *Service {
	return &Service{
		cfg: cfg,
		now: time.Now,
	}
}

// WithClock overrides the clock, for tests
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// AccessTokenTTL returns the configured access token lifetime
func (s *Service) AccessTokenTTL() time.Duration {
	return s.cfg.AccessTokenTTL
}

// RefreshTokenTTL returns the configured refresh token lifetime
func (s *Service) RefreshTokenTTL() time.Duration {
	return s.cfg.RefreshTokenTTL
}

// IssueAccessToken mints a signed HS256 access token for a user.
// Roles, permissions and quota are snapshotted into the claims.
func (s *Service) IssueAccessToken(user *models.User, permissions []string, quota *models.QuotaLimits) (string, *AccessClaims, error) {
	now := s.now()
	claims := &AccessClaims{
		Email:       user.Email,
		TokenType:   TokenTypeAccess,
		IsSuperuser: user.IsSuperuser,
		Roles:       user.RoleNames(),
		Permissions: permissions,
		Quota:       quota,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			Issuer:    s.cfg.Issuer,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.AccessTokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.SecretKey))
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign access token: %w", err)
	}

	return signed, claims, nil
}

// ParseAccessToken validates a signed access token and returns its claims.
// Rejects tokens signed with any method other than HS256.
func (s *Service) ParseAccessToken(tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.SecretKey), nil
	}, jwt.WithTimeFunc(s.now), jwt.WithIssuer(s.cfg.Issuer))

	if err != nil {
		return nil, fmt.Errorf("invalid access token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid access token")
	}
	if subtle.ConstantTimeCompare([]byte(claims.TokenType), []byte(TokenTypeAccess)) != 1 {
		return nil, fmt.Errorf("invalid token type %q", claims.TokenType)
	}

	return claims, nil
}

// NewRefreshToken generates an opaque refresh token. The raw value is returned
// to the client once; only the hash is ever stored.
func (s *Service) NewRefreshToken() (raw string, hash string, err error) {
	return NewOpaqueSecret()
}

// NewOpaqueSecret generates a random opaque secret and its storage hash.
// Used for refresh tokens and password reset tokens.
func NewOpaqueSecret() (raw string, hash string, err error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("failed to generate secret: %w", err)
	}
	raw = hex.EncodeToString(buf)
	return raw, HashToken(raw), nil
}

// HashToken returns the hex-encoded SHA-256 digest of a token.
// Used for refresh tokens, reset tokens and blacklist entries so raw
// token material never reaches storage.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
