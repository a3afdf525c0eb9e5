package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/zhdanovmax/token-service/internal/models"
)

// TokenValidator runs the full validation pipeline, ledger lookup included.
type TokenValidator interface {
	Validate(ctx context.Context, token, requiredRole string) *models.ValidationResult
}

type contextKey string

const (
	claimsContextKey contextKey = "claims"
	tokenContextKey  contextKey = "token"
)

// ClaimsFromContext returns the validated claim set stored by Middleware.
func ClaimsFromContext(ctx context.Context) (*models.ClaimSet, bool) {
	claims, ok := ctx.Value(claimsContextKey).(*models.ClaimSet)
	return claims, ok
}

// TokenFromContext returns the raw bearer token stored by Middleware.
func TokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(tokenContextKey).(string)
	return token, ok
}

// Middleware authenticates requests with the full pipeline, so revoked
// tokens are rejected even before their embedded expiry.
func Middleware(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "authorization header missing", http.StatusUnauthorized)
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				http.Error(w, "invalid authorization header", http.StatusUnauthorized)
				return
			}

			tokenStr := parts[1]
			result := validator.Validate(r.Context(), tokenStr, "")
			if result.Failure == models.FailureLedgerUnavailable {
				slog.Error("ledger unavailable during authentication")
				http.Error(w, "service temporarily unavailable", http.StatusServiceUnavailable)
				return
			}
			if !result.Valid {
				slog.Warn("rejected bearer token", "failure", result.Failure)
				http.Error(w, "invalid or revoked token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey, result.Claims)
			ctx = context.WithValue(ctx, tokenContextKey, tokenStr)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
