package cache

import (
	"net/http"
	"strings"

	"github.com/lockgate/lockgate/pkg/community"
)

// CacheManager holds the cache instances used by the gating API, each with
// its own TTL, and invalidates them when the data behind them changes.
type CacheManager struct {
	categories   *LRUCache
	applications *LRUCache
}

// NewCacheManager creates a CacheManager from the given configuration.
// If cfg is nil or disabled, it returns nil; every method is nil-safe and
// a nil manager caches nothing.
func NewCacheManager(cfg *CacheConfig) *CacheManager {
	if cfg == nil || !cfg.Enabled {
		return nil
	}
	return &CacheManager{
		categories:   NewLRUCache(cfg.MaxSize, cfg.CategoriesTTL),
		applications: NewLRUCache(cfg.MaxSize, cfg.ApplicationsTTL),
	}
}

// CategoriesMiddleware caches the category discovery listing.
func (cm *CacheManager) CategoriesMiddleware() func(http.Handler) http.Handler {
	if cm == nil {
		return passThrough
	}
	return CacheMiddleware(cm.categories)
}

// ApplicationsMiddleware caches resource lock lookups.
func (cm *CacheManager) ApplicationsMiddleware() func(http.Handler) http.Handler {
	if cm == nil {
		return passThrough
	}
	return CacheMiddleware(cm.applications)
}

// InvalidateResource drops cached lock lookups for the resource at path in
// communityID.
func (cm *CacheManager) InvalidateResource(communityID, path string) {
	if cm == nil {
		return
	}
	cm.applications.InvalidatePrefix(communityID + "|" + path)
}

// InvalidateAll clears every cache.
func (cm *CacheManager) InvalidateAll() {
	if cm == nil {
		return
	}
	cm.categories.InvalidateAll()
	cm.applications.InvalidateAll()
}

// InvalidationMiddleware clears cached lock lookups after a successful
// apply or remove on /resources/{type}/{id}/lock.
func (cm *CacheManager) InvalidationMiddleware() func(http.Handler) http.Handler {
	if cm == nil {
		return passThrough
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPut && r.Method != http.MethodDelete ||
				!strings.Contains(r.URL.Path, "/resources/") || !strings.HasSuffix(r.URL.Path, "/lock") {
				next.ServeHTTP(w, r)
				return
			}
			crw := &cacheResponseWriter{ResponseWriter: w}
			next.ServeHTTP(crw, r)
			if crw.statusCode >= 200 && crw.statusCode < 300 {
				cm.InvalidateResource(community.IDFromContext(r.Context()), r.URL.Path)
			}
		})
	}
}

func passThrough(next http.Handler) http.Handler { return next }
