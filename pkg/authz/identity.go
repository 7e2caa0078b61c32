package authz

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

// Anonymous is the user name of unauthenticated callers.
const Anonymous = "anonymous"

type identityCtxKey struct{}

// Identity represents the authenticated user making a request.
type Identity struct {
	User   string
	Groups []string
}

// IsAnonymous reports whether the identity carries no user.
func (id Identity) IsAnonymous() bool {
	return id.User == "" || id.User == Anonymous
}

// WithIdentity returns a new context with the given Identity attached.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityCtxKey{}, id)
}

// IdentityFromContext retrieves the Identity from the context.
// Returns the zero value and false if no identity is set.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityCtxKey{}).(Identity)
	return id, ok
}

// headerIdentity reads X-Remote-User and the comma-separated
// X-Remote-Group, as set by an authenticating proxy.
func headerIdentity(r *http.Request) Identity {
	user := strings.TrimSpace(r.Header.Get("X-Remote-User"))
	if user == "" {
		user = Anonymous
	}
	var groups []string
	for _, g := range strings.Split(r.Header.Get("X-Remote-Group"), ",") {
		if g = strings.TrimSpace(g); g != "" {
			groups = append(groups, g)
		}
	}
	return Identity{User: user, Groups: groups}
}

// IdentityMiddleware stores the caller identity in the request context.
// With a nil extractor identity comes from proxy headers. Otherwise only
// bearer tokens are trusted: no token yields the anonymous identity and an
// invalid token is rejected with 401.
func IdentityMiddleware(jwt *JWTExtractor) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := headerIdentity(r)
			if jwt != nil {
				var err error
				id, err = jwt.Extract(r)
				if err != nil {
					writeAuthError(w, http.StatusUnauthorized, "unauthorized", err.Error())
					return
				}
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

func writeAuthError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   code,
		"message": message,
	})
}
