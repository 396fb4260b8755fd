package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/nexthire/chatd/internal/identity"
	"github.com/nexthire/chatd/internal/models"
)

type contextKey string

const UserContextKey contextKey = "user"

// AuthMiddleware resolves bearer credentials through the identity
// service before any messaging operation runs.
type AuthMiddleware struct {
	auth identity.Authenticator
}

// NewAuthMiddleware creates a new auth middleware.
func NewAuthMiddleware(auth identity.Authenticator) *AuthMiddleware {
	return &AuthMiddleware{auth: auth}
}

// RequireAuth rejects requests without a valid bearer token and adds
// the resolved user to the request context.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		credential := BearerToken(r)
		if credential == "" {
			jsonError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		user, err := m.auth.Authenticate(r.Context(), credential)
		if err != nil {
			jsonError(w, http.StatusUnauthorized, "invalid or expired credential")
			return
		}

		ctx := context.WithValue(r.Context(), UserContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// BearerToken extracts the credential from the Authorization header or,
// for websocket upgrades where browsers cannot set headers, the token
// query parameter.
func BearerToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return token
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

// GetUserFromContext retrieves the authenticated user from the request
// context.
func GetUserFromContext(ctx context.Context) *models.User {
	user, ok := ctx.Value(UserContextKey).(*models.User)
	if !ok {
		return nil
	}
	return user
}

func jsonError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
