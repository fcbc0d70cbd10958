package middleware

import (
	"net/http"

	"github.com/agblogger/agblogger/internal/domain/user"
)

// RequireRole returns middleware that restricts access to users with one
// of the given roles — admin (all mutations, sync, settings) or auth
// (cross-post from own account, render preview), per the two-role model.
func RequireRole(roles ...user.Role) func(http.Handler) http.Handler {
	allowed := make(map[user.Role]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u := UserFromContext(r.Context())
			if u == nil {
				writeJSONError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			if !allowed[u.Role()] {
				writeJSONError(w, http.StatusForbidden, "insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
