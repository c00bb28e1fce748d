package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/boddenberg/pdv-assistant-bfa-go/internal/service"

	"go.uber.org/zap"
)

type contextKey string

const storeIDKey contextKey = "storeID"

// JWTAuthMiddleware validates Bearer tokens and injects the store id (sub) into context.
func JWTAuthMiddleware(tokens *service.TokenService, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logger.Warn("auth: missing token",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				writeError(w, http.StatusUnauthorized, "Token de autenticação não fornecido")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				logger.Warn("auth: invalid token format",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				writeError(w, http.StatusUnauthorized, "Formato de token inválido")
				return
			}

			claims, err := tokens.ValidateAccessToken(parts[1])
			if err != nil {
				logger.Warn("auth: invalid or expired token",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
					zap.Error(err),
				)
				writeError(w, http.StatusUnauthorized, err.Error())
				return
			}

			next.ServeHTTP(w, r.WithContext(WithStoreID(r.Context(), claims.Sub)))
		})
	}
}

// StaticStoreMiddleware pins every request to storeID. Used when auth is
// disabled (single-store install, local dev).
func StaticStoreMiddleware(storeID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(WithStoreID(r.Context(), storeID)))
		})
	}
}

// WithStoreID returns a copy of ctx carrying storeID.
func WithStoreID(ctx context.Context, storeID string) context.Context {
	return context.WithValue(ctx, storeIDKey, storeID)
}

// StoreIDFromContext extracts the authenticated store ID from context.
func StoreIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(storeIDKey).(string)
	return v
}
