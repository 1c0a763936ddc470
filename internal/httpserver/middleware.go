package httpserver

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"strategyvault/internal/auth"
	"strategyvault/internal/httputil"
)

type ctxKey string

const ctxKeyOwnerID ctxKey = "owner_id"

// WithAuth validates the bearer token and stores the authenticated owner id in
// the request context.
func WithAuth(a *auth.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "missing bearer token"})
				return
			}
			ownerID, err := a.ParseToken(token)
			if err != nil {
				zap.L().Debug("token rejected", zap.Error(err))
				httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "invalid token"})
				return
			}
			ctx := context.WithValue(r.Context(), ctxKeyOwnerID, ownerID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OwnerID returns the authenticated owner id placed by WithAuth, or "".
func OwnerID(r *http.Request) string {
	id, _ := r.Context().Value(ctxKeyOwnerID).(string)
	return id
}

// Authed adapts an owner-scoped handler to http.HandlerFunc.
func Authed(fn func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID := OwnerID(r)
		if ownerID == "" {
			httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "unauthorized"})
			return
		}
		fn(w, r, ownerID)
	}
}

// InternalAuth guards the service-to-service surface with a shared static
// token carried in X-Internal-Token.
func InternalAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" || r.Header.Get("X-Internal-Token") != token {
				httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	// Browsers cannot set headers on websocket upgrades.
	return r.URL.Query().Get("token")
}
