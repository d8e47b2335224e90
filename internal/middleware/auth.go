package middleware

import (
	"encoding/json"
	"net/http"

	"marketplace-be/internal/auth"
	"marketplace-be/internal/config"
	"marketplace-be/internal/logger"

	"go.uber.org/zap"
)

// Auth rejects requests without a valid access token and attaches the
// caller's principal to the request context.
func Auth(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := auth.ExtractAccessToken(r)
			if token == "" {
				unauthorized(w)
				return
			}

			p, err := auth.ParseToken(secret, token)
			if err != nil {
				logger.FromCtx(r.Context()).Debug("rejected access token", zap.Error(err))
				unauthorized(w)
				return
			}

			ctx := auth.WithPrincipal(r.Context(), p)
			ctx = logger.WithCustomerID(ctx, p.CustomerID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Runtime attaches the per-request switches to the context.
func Runtime(rt config.Runtime) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(config.WithRuntime(r.Context(), rt)))
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": "authentication required",
		"code":  "unauthorized",
	})
}
