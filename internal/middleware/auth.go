package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/duobook/duobook-go/internal/service"
)

type contextKey string

const principalKey contextKey = "principal"

// Authenticator resolves a bearer token to the calling account.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (service.Principal, error)
}

// BearerAuth returns middleware that requires a valid, unrevoked bearer token
// belonging to an enabled account. Every rejection is a 401.
func BearerAuth(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok {
				writeJSONError(w, http.StatusUnauthorized, "Unauthorized: No token provided")
				return
			}

			principal, err := auth.Authenticate(r.Context(), token)
			if err != nil {
				switch {
				case errors.Is(err, service.ErrTokenRevoked):
					writeJSONError(w, http.StatusUnauthorized, "Unauthorized: Token invalidated")
				case errors.Is(err, service.ErrAccountDisabled):
					writeJSONError(w, http.StatusUnauthorized, "Unauthorized: User account is disabled")
				case errors.Is(err, service.ErrInvalidToken):
					writeJSONError(w, http.StatusUnauthorized, "Unauthorized: Invalid or expired token")
				default:
					slog.Error("authentication lookup failed", "error", err)
					writeJSONError(w, http.StatusUnauthorized, "Unauthorized: Invalid token")
				}
				return
			}

			ctx := context.WithValue(r.Context(), principalKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(r *http.Request) (string, bool) {
	token, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !found || token == "" {
		return "", false
	}
	return token, true
}

// PrincipalFromContext extracts the authenticated caller from the request context.
func PrincipalFromContext(ctx context.Context) (service.Principal, bool) {
	p, ok := ctx.Value(principalKey).(service.Principal)
	return p, ok
}

// WithPrincipal returns a context carrying p. Handlers under test use it to
// skip the token round trip.
func WithPrincipal(ctx context.Context, p service.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
