package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/docsquare/auth-gateway/services/auth"
)

// Context key type to avoid collisions
type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"

	// IdentityKey is the context key for the verified identity
	IdentityKey contextKey = "identity"

	// AccessTokenKey is the context key for the raw bearer token. Handlers
	// that blacklist the current token on logout need it.
	AccessTokenKey contextKey = "access_token"
)

// GetRequestIDFromContext retrieves the request ID from context
func GetRequestIDFromContext(ctx context.Context) string {
	if val := ctx.Value(RequestIDKey); val != nil {
		if requestID, ok := val.(string); ok {
			return requestID
		}
	}
	return ""
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetIdentityFromContext retrieves the verified identity from context
func GetIdentityFromContext(ctx context.Context) *auth.VerifyResult {
	if val := ctx.Value(IdentityKey); val != nil {
		if identity, ok := val.(*auth.VerifyResult); ok {
			return identity
		}
	}
	return nil
}

// WithIdentity adds a verified identity to the context
func WithIdentity(ctx context.Context, identity *auth.VerifyResult) context.Context {
	return context.WithValue(ctx, IdentityKey, identity)
}

// GetUserIDFromContext retrieves the authenticated user ID from context
func GetUserIDFromContext(ctx context.Context) uuid.UUID {
	if identity := GetIdentityFromContext(ctx); identity != nil {
		return identity.UserID
	}
	return uuid.Nil
}

// GetAccessTokenFromContext retrieves the raw bearer token from context
func GetAccessTokenFromContext(ctx context.Context) string {
	if val := ctx.Value(AccessTokenKey); val != nil {
		if token, ok := val.(string); ok {
			return token
		}
	}
	return ""
}

// WithAccessToken adds the raw bearer token to the context
func WithAccessToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, AccessTokenKey, token)
}
