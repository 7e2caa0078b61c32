package gating

import (
	"github.com/go-chi/chi/v5"

	"github.com/lockgate/lockgate/pkg/authz"
	"github.com/lockgate/lockgate/pkg/cache"
)

// RegisterRoutes adds the verification and access routes to r. Category
// discovery is served through cm; a nil cm disables response caching.
func RegisterRoutes(r chi.Router, h *Handlers, cm *cache.CacheManager) {
	r.With(cm.CategoriesMiddleware()).Get("/categories", h.ListCategories)

	r.Post("/locks/{lockId}/challenges", h.IssueChallenge)
	r.With(authz.RequireIdentity()).
		Post("/locks/{lockId}/categories/{categoryType}/verifications", h.SubmitVerification)
	r.Get("/locks/{lockId}/status", h.LockStatus)
	r.Get("/resources/{resourceType}/{resourceId}/access", h.ResourceAccess)
}
