package middleware

import (
	"context"
	"net/http"

	"github.com/Togather-Foundation/recipes/internal/api/problem"
	"github.com/Togather-Foundation/recipes/internal/auth"
)

type contextKeyAuth string

const claimsKey contextKeyAuth = "claims"

// RequireScope validates the bearer token and requires scope (admins hold
// every scope). Missing or invalid tokens get 401, a valid token without the
// scope gets 403.
func RequireScope(manager *auth.JWTManager, scope, env string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if manager == nil {
				problem.Write(w, r, http.StatusUnauthorized, problem.CodeUnauthorized, "Unauthorized", problem.ErrUnauthorized, env)
				return
			}

			token, err := auth.TokenFromHeader(r.Header.Get("Authorization"))
			if err != nil {
				problem.Write(w, r, http.StatusUnauthorized, problem.CodeUnauthorized, "Missing bearer token", err, env)
				return
			}

			claims, err := manager.Validate(token)
			if err != nil {
				problem.Write(w, r, http.StatusUnauthorized, problem.CodeUnauthorized, "Invalid token", err, env)
				return
			}

			if !claims.HasScope(scope) {
				problem.Write(w, r, http.StatusForbidden, problem.CodeForbidden, "Insufficient permissions", problem.ErrForbidden, env)
				return
			}

			next.ServeHTTP(w, r.WithContext(contextWithClaims(r.Context(), claims)))
		})
	}
}

func contextWithClaims(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// Claims returns the validated token claims, or nil on unauthenticated routes.
func Claims(r *http.Request) *auth.Claims {
	if r == nil {
		return nil
	}
	if claims, ok := r.Context().Value(claimsKey).(*auth.Claims); ok {
		return claims
	}
	return nil
}
