package community

import (
	"encoding/json"
	"net/http"
)

// Middleware resolves the community with resolver and stores it in the
// request context. On failure it responds with a 400 JSON error.
func Middleware(resolver Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := resolver.Resolve(r)
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusBadRequest)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"error":   "bad_request",
					"message": err.Error(),
				})
				return
			}
			next.ServeHTTP(w, r.WithContext(WithID(r.Context(), id)))
		})
	}
}

// NewMiddleware creates middleware with the resolver for mode.
func NewMiddleware(mode Mode) func(http.Handler) http.Handler {
	var resolver Resolver = SingleResolver{}
	if mode == ModeMulti {
		resolver = HeaderResolver{}
	}
	return Middleware(resolver)
}
