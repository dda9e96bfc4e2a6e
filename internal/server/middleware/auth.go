package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/tonbeats/tonbeats/internal/service"
)

type contextKeyAuth string

// AuthPrincipalKey is the context key for the authenticated principal.
const AuthPrincipalKey contextKeyAuth = "auth_principal"

// Principal is the verified wallet identity making the request.
type Principal struct {
	Type      string // "api_key" or "session"
	Address   string // canonical wallet address
	SessionID string // set for session principals
}

// Authenticate validates the request's bearer credential. Two methods are
// supported:
//
//  1. API key via the X-API-Key header (stateless flow)
//  2. Session token via the Authorization Bearer header (stateful flow);
//     the token must map to a live in-memory session record
//
// On success a Principal is attached to the request context; on failure a
// 401 JSON error is returned.
func Authenticate(creds *service.CredentialIssuer, sessions *service.SessionStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var principal *Principal

			if rawKey := r.Header.Get("X-API-Key"); rawKey != "" {
				key, err := creds.ValidateAPIKey(r.Context(), rawKey)
				if err != nil || key == nil {
					writeAuthError(w, http.StatusUnauthorized, "Invalid API key")
					return
				}
				principal = &Principal{Type: "api_key", Address: key.Address}
			}

			if principal == nil {
				authHeader := r.Header.Get("Authorization")
				if strings.HasPrefix(authHeader, "Bearer ") {
					token := strings.TrimPrefix(authHeader, "Bearer ")
					claims, err := creds.ParseSessionToken(token)
					if err != nil {
						writeAuthError(w, http.StatusUnauthorized, "Invalid session token")
						return
					}
					// The in-memory record, not the token, is authoritative.
					rec := sessions.GetByAddress(claims.Subject)
					if rec == nil {
						writeAuthError(w, http.StatusUnauthorized, "Session expired")
						return
					}
					principal = &Principal{Type: "session", Address: rec.Address, SessionID: rec.ID}
				}
			}

			if principal == nil {
				writeAuthError(w, http.StatusUnauthorized,
					"Authentication required. Provide X-API-Key header or Bearer token.")
				return
			}

			ctx := context.WithValue(r.Context(), AuthPrincipalKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetPrincipal extracts the authenticated principal from the context, or nil
// for an unauthenticated request.
func GetPrincipal(ctx context.Context) *Principal {
	if p, ok := ctx.Value(AuthPrincipalKey).(*Principal); ok {
		return p
	}
	return nil
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Manually constructed to avoid an import cycle with the handler package.
	w.Write([]byte(`{"error":{"code":` + statusString(status) + `,"message":"` + message + `"}}`))
}

func statusString(code int) string {
	switch code {
	case 401:
		return "401"
	case 403:
		return "403"
	default:
		return "500"
	}
}
