package infra

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	logger_lib "github.com/s21platform/logger-lib"

	"github.com/zveno/chat-service/internal/config"
	"github.com/zveno/chat-service/internal/model"
)

const bearerPrefix = "Bearer "

type TokenVerifier interface {
	ValidateAccessToken(tokenString string) (*model.AccessClaims, error)
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" value.
func BearerToken(header string) (string, bool) {
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", false
	}

	token := strings.TrimSpace(header[len(bearerPrefix):])
	return token, token != ""
}

// AuthInterceptorHTTP rejects requests without a valid bearer token and stores
// the caller's identity in the request context.
func AuthInterceptorHTTP(verifier TokenVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r.Header.Get("Authorization"))
			if !ok {
				writeUnauthorized(w)
				return
			}

			claims, err := verifier.ValidateAccessToken(token)
			if err != nil {
				logger := logger_lib.FromContext(r.Context(), config.KeyLogger)
				logger.Warn(err.Error())
				writeUnauthorized(w)
				return
			}

			ctx := context.WithValue(r.Context(), config.KeyUUID, claims.Subject)
			ctx = context.WithValue(ctx, config.KeyEmail, claims.Email)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": model.ErrorCode(model.ErrUnauthorized)})
}
