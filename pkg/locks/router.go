package locks

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lockgate/lockgate/pkg/authz"
	"github.com/lockgate/lockgate/pkg/cache"
)

// RegisterRoutes adds the lock registry routes to r. Mutating routes
// require an authenticated caller. Resource lock lookups are cached by cm,
// which may be nil.
func RegisterRoutes(r chi.Router, h *Handlers, cm *cache.CacheManager) {
	auth := authz.RequireIdentity()
	guard := func(fn http.HandlerFunc) http.HandlerFunc { return auth(fn).ServeHTTP }

	r.Get("/locks", h.ListLocks)
	r.Post("/locks", guard(h.CreateLock))
	r.Get("/locks/{lockId}", h.GetLock)
	r.Patch("/locks/{lockId}", guard(h.UpdateLock))
	r.Delete("/locks/{lockId}", guard(h.DeleteLock))
	r.Get("/locks/{lockId}/usage", guard(h.LockUsage))

	r.With(cm.ApplicationsMiddleware()).Get("/resources/{resourceType}/{resourceId}/lock", h.GetResourceLock)
	r.Put("/resources/{resourceType}/{resourceId}/lock", guard(h.ApplyLock))
	r.Delete("/resources/{resourceType}/{resourceId}/lock", guard(h.RemoveLock))
}
