package cache

import (
	"bytes"
	"net/http"

	"github.com/lockgate/lockgate/pkg/community"
)

// cacheResponseWriter wraps http.ResponseWriter to capture the response body
// and status code so they can be stored in the cache.
type cacheResponseWriter struct {
	http.ResponseWriter
	statusCode int
	body       bytes.Buffer
	written    bool
}

func (w *cacheResponseWriter) WriteHeader(code int) {
	if !w.written {
		w.statusCode = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *cacheResponseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.statusCode = http.StatusOK
		w.written = true
	}
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// requestKey scopes a cache key to the caller's community, so one
// community never sees another's cached answer.
func requestKey(r *http.Request) string {
	return community.IDFromContext(r.Context()) + "|" + r.URL.RequestURI()
}

// CacheMiddleware returns HTTP middleware that caches GET responses in the
// provided LRUCache, keyed by community and request URI.
//
// Only GET requests are cached. A hit replays the body with X-Cache: HIT;
// a miss calls the handler, adds X-Cache: MISS, and stores the body if the
// status was 200.
func CacheMiddleware(c *LRUCache) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if c == nil || r.Method != http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}

			key := requestKey(r)
			if cached, ok := c.Get(key); ok {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("X-Cache", "HIT")
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write(cached)
				return
			}

			crw := &cacheResponseWriter{
				ResponseWriter: w,
			}
			crw.Header().Set("X-Cache", "MISS")
			next.ServeHTTP(crw, r)

			if crw.statusCode == http.StatusOK {
				c.Set(key, bytes.Clone(crw.body.Bytes()))
			}
		})
	}
}
