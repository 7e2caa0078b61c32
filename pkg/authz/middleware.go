package authz

import (
	"fmt"
	"net/http"

	"github.com/lockgate/lockgate/pkg/community"
)

// RequireIdentity rejects anonymous callers with 401.
func RequireIdentity() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, _ := IdentityFromContext(r.Context())
			if id.IsAnonymous() {
				writeAuthError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequirePermission returns middleware that enforces a resource/verb
// permission in the request's community. It reads the identity set by
// IdentityMiddleware and the community set by community.Middleware.
func RequirePermission(authorizer Authorizer, resource, verb string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, _ := IdentityFromContext(r.Context())
			cid := community.IDFromContext(r.Context())

			allowed, err := authorizer.Authorize(r.Context(), Request{
				User:      id.User,
				Groups:    id.Groups,
				Resource:  resource,
				Verb:      verb,
				Community: cid,
			})
			if err != nil {
				writeAuthError(w, http.StatusInternalServerError, "internal_error", "authorization check failed")
				return
			}
			if !allowed {
				writeAuthError(w, http.StatusForbidden, "forbidden",
					fmt.Sprintf("insufficient permissions for %s/%s in community %s", resource, verb, cid))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
