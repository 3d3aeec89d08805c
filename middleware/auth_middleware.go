package middleware

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/docsquare/auth-gateway/models"
	"github.com/docsquare/auth-gateway/services"
	"github.com/docsquare/auth-gateway/services/auth"
	"github.com/docsquare/auth-gateway/utils"
)

// TokenVerifier validates a bearer token and returns the live identity
type TokenVerifier interface {
	Verify(ctx context.Context, rawAccessToken string) (*auth.VerifyResult, error)
}

// AuthMiddleware provides authentication middleware functionality
type AuthMiddleware struct {
	verifier TokenVerifier
	logger   *zap.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware
func NewAuthMiddleware(verifier TokenVerifier, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		verifier: verifier,
		logger:   logger,
	}
}

// RequireAuth is a middleware that requires a valid bearer token. The
// verified identity and the raw token are added to the request context.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := GetRequestIDFromContext(ctx)

		token := extractBearerToken(r)
		if token == "" {
			m.logger.Warn("missing bearer token",
				zap.String("request_id", requestID))
			_ = utils.WriteUnauthorized(w, "Missing or invalid authorization")
			return
		}

		identity, err := m.verifier.Verify(ctx, token)
		if err != nil {
			m.logger.Warn("token verification failed",
				zap.String("request_id", requestID),
				zap.Error(err))
			if services.IsForbiddenError(err) {
				_ = utils.WriteForbidden(w, err.Error())
				return
			}
			_ = utils.WriteUnauthorized(w, "Invalid or expired token")
			return
		}

		ctx = WithIdentity(ctx, identity)
		ctx = WithAccessToken(ctx, token)

		m.logger.Debug("authentication successful",
			zap.String("request_id", requestID),
			zap.String("user_id", identity.UserID.String()))

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole is a middleware that requires a specific role.
// Must run after RequireAuth.
func (m *AuthMiddleware) RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := GetRequestIDFromContext(ctx)

			identity := GetIdentityFromContext(ctx)
			if identity == nil {
				m.logger.Error("identity not found in context",
					zap.String("request_id", requestID))
				_ = utils.WriteUnauthorized(w, "Authentication required")
				return
			}

			if !identityIsPrivileged(identity) && !hasRole(identity, role) {
				m.logger.Warn("insufficient role",
					zap.String("request_id", requestID),
					zap.String("required_role", role),
					zap.Strings("user_roles", identity.Roles))
				_ = utils.WriteForbidden(w, "Insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequirePermission is a middleware that requires a permission on a resource.
// Wildcard grants apply. Must run after RequireAuth.
func (m *AuthMiddleware) RequirePermission(resource, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := GetRequestIDFromContext(ctx)

			identity := GetIdentityFromContext(ctx)
			if identity == nil {
				m.logger.Error("identity not found in context",
					zap.String("request_id", requestID))
				_ = utils.WriteUnauthorized(w, "Authentication required")
				return
			}

			if !identityIsPrivileged(identity) && !hasPermission(identity, resource, action) {
				m.logger.Warn("insufficient permissions",
					zap.String("request_id", requestID),
					zap.String("required_resource", resource),
					zap.String("required_action", action))
				_ = utils.WriteForbidden(w, "Insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func identityIsPrivileged(identity *auth.VerifyResult) bool {
	if identity.IsSuperuser {
		return true
	}
	for _, role := range identity.Roles {
		if role == models.RoleAdmin || role == models.RoleSuperuser {
			return true
		}
	}
	return false
}

func hasRole(identity *auth.VerifyResult, role string) bool {
	for _, r := range identity.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func hasPermission(identity *auth.VerifyResult, resource, action string) bool {
	for _, perm := range identity.Permissions {
		grantedResource, grantedAction, ok := strings.Cut(perm, ":")
		if !ok {
			continue
		}
		if (grantedResource == models.Wildcard || grantedResource == resource) &&
			(grantedAction == models.Wildcard || grantedAction == action) {
			return true
		}
	}
	return false
}

// extractBearerToken extracts the token from the Authorization header
func extractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
