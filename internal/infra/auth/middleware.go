package auth

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/xela07ax/taskflow-approval-console/internal/domain"
)

// TokenValidator — контракт проверки токена оператора консоли
type TokenValidator interface {
	VerifyToken(tokenStr string) (*domain.OperatorClaims, error)
}

type ctxKey int

const claimsKey ctxKey = iota

// ClaimsFromContext возвращает клеймы оператора, положенные middleware.
func ClaimsFromContext(ctx context.Context) (*domain.OperatorClaims, bool) {
	c, ok := ctx.Value(claimsKey).(*domain.OperatorClaims)
	return c, ok
}

// ContextWithClaims кладет клеймы в контекст (middleware и тесты хендлеров).
func ContextWithClaims(ctx context.Context, claims *domain.OperatorClaims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

func NewMiddleware(v TokenValidator, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := v.VerifyToken(authHeader)
			if err != nil {
				logger.Warn("auth failure", zap.Error(err))
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			// Прокидываем клеймы в контекст
			next.ServeHTTP(w, r.WithContext(ContextWithClaims(r.Context(), claims)))
		})
	}
}

// RequireScope пропускает только операторов с нужным скоупом (или админов).
func RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			if !claims.Scopes["admin"] && !claims.Scopes[scope] {
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
