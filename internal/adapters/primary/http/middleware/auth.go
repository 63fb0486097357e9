package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/lorrc/coaching-realtime/internal/auth"
	apperrors "github.com/lorrc/coaching-realtime/internal/core/errors"
	"github.com/lorrc/coaching-realtime/internal/infrastructure/logging"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

// UserClaimsKey is the key used to store user claims in the request context.
const UserClaimsKey contextKey = "userClaims"

// TokenQueryParam carries the token for clients that cannot set headers
// (EventSource, browser websockets).
const TokenQueryParam = "token"

// JWTMiddleware validates the JWT token from the Authorization header.
func JWTMiddleware(tm *auth.TokenManager) func(http.Handler) http.Handler {
	return jwtMiddleware(tm, false)
}

// StreamJWTMiddleware is JWTMiddleware that also accepts ?token=.
func StreamJWTMiddleware(tm *auth.TokenManager) func(http.Handler) http.Handler {
	return jwtMiddleware(tm, true)
}

func jwtMiddleware(tm *auth.TokenManager, allowQuery bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, msg := bearerToken(r, allowQuery)
			if tokenString == "" {
				writeAppError(w, apperrors.NewUnauthorizedError(msg))
				return
			}

			claims, err := tm.ValidateToken(tokenString)
			if err != nil {
				writeAppError(w, apperrors.NewUnauthorizedError("Invalid or expired token"))
				return
			}

			// Add the claims to the context for downstream handlers to use.
			ctx := context.WithValue(r.Context(), UserClaimsKey, claims)
			ctx = logging.WithUserID(ctx, claims.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request, allowQuery bool) (string, string) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		if allowQuery {
			if token := r.URL.Query().Get(TokenQueryParam); token != "" {
				return token, ""
			}
		}
		return "", "Authorization header is required"
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", "Authorization header format must be Bearer {token}"
	}
	return parts[1], ""
}

// GetClaims returns the validated claims, or nil outside JWTMiddleware.
func GetClaims(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(UserClaimsKey).(*auth.Claims)
	return claims
}

// RequireRole rejects callers whose token does not carry role.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetClaims(r.Context())
			if claims == nil {
				writeAppError(w, apperrors.NewUnauthorizedError("Authentication required"))
				return
			}
			if !claims.HasRole(role) {
				writeAppError(w, apperrors.NewForbiddenError("You do not have permission to perform this action"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
