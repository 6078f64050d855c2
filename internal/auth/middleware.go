package auth

import (
	"net/http"
	"strings"

	"log/slog"

	"github.com/mbyo2/vehicle-log-sys/internal/directory"
	"github.com/mbyo2/vehicle-log-sys/internal/rbac"
)

// Middleware resolves the bearer token into an explicit principal and
// installs it on the request context. Unauthenticated requests stop here;
// nothing downstream reads an implicit current user.
type Middleware struct {
	Tokens    *TokenStore
	Directory *directory.Service
	Logger    *slog.Logger
}

// RequirePrincipal rejects requests without a resolvable principal.
func (m Middleware) RequirePrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		userID, err := m.Tokens.Resolve(r.Context(), token)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		principal, err := m.Directory.Resolve(r.Context(), userID)
		if err != nil {
			if m.Logger != nil {
				m.Logger.Warn("token resolves to no active profile", slog.String("user_id", userID))
			}
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		ctx := rbac.ContextWithPrincipal(r.Context(), principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
