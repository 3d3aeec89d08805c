// Package auth orchestrates registration, login, token verification and
// session lifecycle.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/docsquare/auth-gateway/models"
	"github.com/docsquare/auth-gateway/repositories"
	"github.com/docsquare/auth-gateway/services"
	"github.com/docsquare/auth-gateway/services/password"
	"github.com/docsquare/auth-gateway/services/quota"
	"github.com/docsquare/auth-gateway/services/rbac"
	"github.com/docsquare/auth-gateway/services/token"
)

// RegisterRequest carries the fields accepted at signup
type RegisterRequest struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// TokenPair is the issued credential bundle returned to clients
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

// VerifyResult is the authorization oracle payload for downstream services
type VerifyResult struct {
	Valid       bool              `json:"valid"`
	UserID      uuid.UUID         `json:"user_id"`
	Email       string            `json:"email"`
	IsSuperuser bool              `json:"is_superuser"`
	Roles       []string          `json:"roles"`
	Permissions []string          `json:"permissions"`
	Usage       *quota.UsageStats `json:"usage"`
}

// Service implements the authentication operations
type Service struct {
	users         repositories.UserRepository
	roles         repositories.RoleRepository
	refreshTokens repositories.RefreshTokenRepository
	blacklist     repositories.TokenBlacklistRepository
	txMgr         repositories.TransactionManager
	tokens        *token.Service
	hasher        *password.Hasher
	rbac          *rbac.Service
	quota         *quota.Service
	logger        *zap.Logger
	now           func() time.Time
}

// NewService creates a new auth service
func NewService(
	repos *repositories.Repositories,
	txMgr repositories.TransactionManager,
	tokens *token.Service,
	hasher *password.Hasher,
	rbacSvc *rbac.Service,
	quotaSvc *quota.Service,
	logger *zap.Logger,
) *Service {
	return &Service{
		users:         repos.Users,
		roles:         repos.Roles,
		refreshTokens: repos.RefreshTokens,
		blacklist:     repos.TokenBlacklist,
		txMgr:         txMgr,
		tokens:        tokens,
		hasher:        hasher,
		rbac:          rbacSvc,
		quota:         quotaSvc,
		logger:        logger,
		now:           time.Now,
	}
}

// WithClock overrides the clock, for tests
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Register creates a new account and assigns the default guest role
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*models.User, error) {
	if _, err := s.users.GetByEmail(ctx, req.Email); err == nil {
		return nil, services.ErrDuplicateEmail
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return nil, services.WrapInternal("failed to check existing account", err)
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, services.NewDomainError(services.ErrorTypeValidation, "password does not meet requirements", err)
	}

	user := models.NewUser(req.Email, hash)
	user.FirstName = req.FirstName
	user.LastName = req.LastName

	err = s.txMgr.InTransaction(ctx, func(txCtx context.Context, _ repositories.Transaction) error {
		if err := s.users.Create(txCtx, user); err != nil {
			return err
		}

		guest, err := s.roles.GetByName(txCtx, models.RoleGuest)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				// Seed data missing; the account still exists, an admin
				// assigns a role later
				s.logger.Warn("guest role not found, user created without role",
					zap.String("user_id", user.ID.String()))
				return nil
			}
			return err
		}
		if err := s.roles.AssignToUser(txCtx, user.ID, guest.ID); err != nil {
			return err
		}
		user.Roles = []*models.Role{guest}
		return nil
	})
	if err != nil {
		return nil, services.WrapInternal("failed to register user", err)
	}

	s.logger.Info("user registered", zap.String("user_id", user.ID.String()))
	return user, nil
}

// Login authenticates credentials and issues a token pair. The error for a
// wrong password and an unknown email is identical.
func (s *Service) Login(ctx context.Context, email, plainPassword string, deviceInfo json.RawMessage) (*TokenPair, *models.User, error) {
	user, err := s.users.GetByEmailWithRoles(ctx, email)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, nil, services.ErrInvalidCredentials
		}
		return nil, nil, services.WrapInternal("failed to look up account", err)
	}

	if !s.hasher.Verify(plainPassword, user.PasswordHash) {
		return nil, nil, services.ErrInvalidCredentials
	}

	if !user.IsActive {
		return nil, nil, services.ErrAccountInactive
	}
	if user.OrgID == nil {
		return nil, nil, services.ErrNoOrganization
	}
	if len(user.Roles) == 0 {
		return nil, nil, services.ErrNoRoleAssigned
	}

	pair, err := s.issueTokenPair(ctx, user, deviceInfo)
	if err != nil {
		return nil, nil, err
	}

	now := s.now()
	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		// Not worth failing a successful login over
		s.logger.Warn("failed to record last login",
			zap.String("user_id", user.ID.String()), zap.Error(err))
	}
	user.LastLoginAt = &now

	s.logger.Info("user logged in", zap.String("user_id", user.ID.String()))
	return pair, user, nil
}

// Verify validates a bearer access token and returns the live authorization
// snapshot. Roles, permissions and usage reflect current state, not the
// claims frozen at issuance.
func (s *Service) Verify(ctx context.Context, rawAccessToken string) (*VerifyResult, error) {
	claims, err := s.tokens.ParseAccessToken(rawAccessToken)
	if err != nil {
		return nil, services.NewDomainError(services.ErrorTypeUnauthorized, "invalid authentication token", err)
	}

	blacklisted, err := s.blacklist.IsBlacklisted(ctx, token.HashToken(rawAccessToken))
	if err != nil {
		return nil, services.WrapInternal("failed to check token blacklist", err)
	}
	if blacklisted {
		return nil, services.ErrTokenRevoked
	}

	userID, err := claims.UserID()
	if err != nil {
		return nil, services.ErrInvalidToken
	}

	user, err := s.users.GetWithRoles(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrInvalidToken
		}
		return nil, services.WrapInternal("failed to load user", err)
	}
	if !user.IsActive {
		return nil, services.ErrAccountInactive
	}

	usage, err := s.quota.Stats(ctx, user.ID)
	if err != nil {
		return nil, services.WrapInternal("failed to load usage stats", err)
	}

	return &VerifyResult{
		Valid:       true,
		UserID:      user.ID,
		Email:       user.Email,
		IsSuperuser: user.IsSuperuser,
		Roles:       user.RoleNames(),
		Permissions: s.rbac.EffectivePermissions(user),
		Usage:       usage,
	}, nil
}

// Refresh rotates a refresh token: the presented token is revoked and a new
// pair is issued. A token rotates at most once; replays fail.
func (s *Service) Refresh(ctx context.Context, rawRefreshToken string, deviceInfo json.RawMessage) (*TokenPair, error) {
	now := s.now()

	var pair *TokenPair
	err := s.txMgr.InTransaction(ctx, func(txCtx context.Context, _ repositories.Transaction) error {
		claimed, err := s.refreshTokens.Claim(txCtx, token.HashToken(rawRefreshToken), now)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return services.ErrInvalidToken
			}
			return err
		}

		user, err := s.users.GetWithRoles(txCtx, claimed.UserID)
		if err != nil {
			return err
		}
		if !user.IsActive {
			return services.ErrAccountInactive
		}

		pair, err = s.issueTokenPair(txCtx, user, deviceInfo)
		return err
	})

	if err != nil {
		if services.IsUnauthorizedError(err) || services.IsForbiddenError(err) {
			return nil, err
		}
		return nil, services.WrapInternal("failed to refresh tokens", err)
	}

	return pair, nil
}

// Logout blacklists the access token for the rest of its natural life and
// revokes the presented refresh token
func (s *Service) Logout(ctx context.Context, rawAccessToken, rawRefreshToken string) error {
	claims, err := s.tokens.ParseAccessToken(rawAccessToken)
	if err != nil {
		return services.NewDomainError(services.ErrorTypeUnauthorized, "invalid authentication token", err)
	}
	userID, err := claims.UserID()
	if err != nil {
		return services.ErrInvalidToken
	}

	now := s.now()
	err = s.txMgr.InTransaction(ctx, func(txCtx context.Context, _ repositories.Transaction) error {
		if err := s.blacklist.Add(txCtx, &models.BlacklistedToken{
			ID:        uuid.New(),
			UserID:    userID,
			TokenHash: token.HashToken(rawAccessToken),
			ExpiresAt: claims.ExpiresAt.Time,
			Reason:    models.BlacklistReasonLogout,
			CreatedAt: now,
		}); err != nil {
			return err
		}

		if rawRefreshToken != "" {
			if _, err := s.refreshTokens.Claim(txCtx, token.HashToken(rawRefreshToken), now); err != nil {
				// Already revoked or expired is fine on logout
				if !errors.Is(err, repositories.ErrNotFound) {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return services.WrapInternal("failed to log out", err)
	}

	s.logger.Info("user logged out", zap.String("user_id", userID.String()))
	return nil
}

// LogoutAll blacklists the presented access token and revokes every refresh
// token the user holds, ending all sessions
func (s *Service) LogoutAll(ctx context.Context, rawAccessToken string) error {
	claims, err := s.tokens.ParseAccessToken(rawAccessToken)
	if err != nil {
		return services.NewDomainError(services.ErrorTypeUnauthorized, "invalid authentication token", err)
	}
	userID, err := claims.UserID()
	if err != nil {
		return services.ErrInvalidToken
	}

	now := s.now()
	err = s.txMgr.InTransaction(ctx, func(txCtx context.Context, _ repositories.Transaction) error {
		if err := s.blacklist.Add(txCtx, &models.BlacklistedToken{
			ID:        uuid.New(),
			UserID:    userID,
			TokenHash: token.HashToken(rawAccessToken),
			ExpiresAt: claims.ExpiresAt.Time,
			Reason:    models.BlacklistReasonLogout,
			CreatedAt: now,
		}); err != nil {
			return err
		}
		_, err := s.refreshTokens.RevokeAllForUser(txCtx, userID, now)
		return err
	})
	if err != nil {
		return services.WrapInternal("failed to log out all sessions", err)
	}

	s.logger.Info("all sessions revoked", zap.String("user_id", userID.String()))
	return nil
}

// issueTokenPair mints an access token with snapshot claims and stores a new
// refresh token
func (s *Service) issueTokenPair(ctx context.Context, user *models.User, deviceInfo json.RawMessage) (*TokenPair, error) {
	perms := s.rbac.EffectivePermissions(user)
	limits := s.rbac.EffectiveQuota(user)

	access, _, err := s.tokens.IssueAccessToken(user, perms, &limits)
	if err != nil {
		return nil, services.WrapInternal("failed to issue access token", err)
	}

	rawRefresh, refreshHash, err := s.tokens.NewRefreshToken()
	if err != nil {
		return nil, services.WrapInternal("failed to issue refresh token", err)
	}

	now := s.now()
	if err := s.refreshTokens.Create(ctx, &models.RefreshToken{
		ID:         uuid.New(),
		UserID:     user.ID,
		TokenHash:  refreshHash,
		ExpiresAt:  now.Add(s.tokens.RefreshTokenTTL()),
		DeviceInfo: deviceInfo,
		CreatedAt:  now,
	}); err != nil {
		return nil, services.WrapInternal("failed to store refresh token", err)
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: rawRefresh,
		TokenType:    "bearer",
		ExpiresIn:    int(s.tokens.AccessTokenTTL().Seconds()),
	}, nil
}
