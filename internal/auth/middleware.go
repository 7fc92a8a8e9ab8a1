package auth

import (
	"context"
	"net/http"

	"github.com/go-chi/render"
	"github.com/nvoronov/link-manager/pkg/response"
)

type contextKey string

const callerKey contextKey = "auth.caller"

// CallerID returns the authenticated user ID stored by the middleware.
func CallerID(ctx context.Context) (int64, bool) {
	claims, ok := ctx.Value(callerKey).(*Claims)
	if !ok {
		return 0, false
	}
	return claims.UserID, true
}

// CallerClaims returns the full token claims, when present.
func CallerClaims(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(callerKey).(*Claims)
	return claims, ok
}

// RequireAuth rejects requests without a valid bearer token.
func RequireAuth(tokens *TokenManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := extractBearer(r.Header.Get("Authorization"))
			if tokenString == "" {
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.UnauthorizedResponse)
				return
			}

			claims, err := tokens.Verify(tokenString)
			if err != nil {
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.UnauthorizedResponse)
				return
			}

			ctx := context.WithValue(r.Context(), callerKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuth stores claims when a valid token is present and passes the
// request through either way. Handlers that serve both anonymous and
// authenticated callers use this.
func OptionalAuth(tokens *TokenManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := extractBearer(r.Header.Get("Authorization"))
			if tokenString == "" {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := tokens.Verify(tokenString)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), callerKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
