package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/familyassistant/server/internal/apperr"
	"github.com/familyassistant/server/internal/model"
)

type contextKey string

const (
	identityKey contextKey = "identity"
	scopeKey    contextKey = "family_scope"
)

// TokenHeader carries the session token. Header lookup is case-insensitive.
const TokenHeader = "X-Auth-Token"

// Verifier resolves session tokens (auth.Service)
type Verifier interface {
	Verify(ctx context.Context, token string) (model.Identity, bool, error)
}

// Authorizer resolves session tokens straight to a family scope (auth.Service)
type Authorizer interface {
	Authorize(ctx context.Context, token string) (model.FamilyScope, error)
}

// TokenFromRequest reads X-Auth-Token, falling back to "Authorization: Bearer <token>".
func TokenFromRequest(r *http.Request) string {
	if token := strings.TrimSpace(r.Header.Get(TokenHeader)); token != "" {
		return token
	}
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

// Authenticate verifies the session token and attaches the identity to the context.
// Requests without a valid token are rejected with 401 before reaching the handler.
func Authenticate(v Verifier, log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := TokenFromRequest(r)
			if token == "" {
				respondWithError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			identity, ok, err := v.Verify(r.Context(), token)
			if err != nil {
				log.Error().Err(err).Msg("session verification failed")
				respondWithError(w, http.StatusInternalServerError, apperr.Message(err))
				return
			}
			if !ok {
				respondWithError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), identityKey, identity)
			if scope, ok := identity.Scope(); ok {
				ctx = context.WithValue(ctx, scopeKey, scope)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireFamily rejects authenticated users without a household with 403.
// It must run after Authenticate.
func RequireFamily(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := GetIdentity(r.Context()); !ok {
			respondWithError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		if _, ok := GetScope(r.Context()); !ok {
			respondWithError(w, http.StatusForbidden, "user is not a member of a family")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Authorize is Authenticate and RequireFamily in one step, for routes that only work inside a family.
func Authorize(a Authorizer, log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scope, err := a.Authorize(r.Context(), TokenFromRequest(r))
			switch {
			case err == nil:
			case errors.Is(err, apperr.ErrUnauthenticated):
				respondWithError(w, http.StatusUnauthorized, apperr.Message(err))
				return
			case errors.Is(err, apperr.ErrNotInFamily):
				respondWithError(w, http.StatusForbidden, apperr.Message(err))
				return
			default:
				log.Error().Err(err).Msg("authorization failed")
				respondWithError(w, http.StatusInternalServerError, apperr.Message(err))
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), scopeKey, scope)))
		})
	}
}

// GetIdentity returns the identity attached by Authenticate
func GetIdentity(ctx context.Context) (model.Identity, bool) {
	id, ok := ctx.Value(identityKey).(model.Identity)
	return id, ok
}

// GetScope returns the family scope attached by Authenticate or Authorize
func GetScope(ctx context.Context) (model.FamilyScope, bool) {
	scope, ok := ctx.Value(scopeKey).(model.FamilyScope)
	return scope, ok
}

// respondWithError sends a JSON error response
func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	response := map[string]string{"error": message}
	_ = json.NewEncoder(w).Encode(response)
}
