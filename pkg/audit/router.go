package audit

import (
	"github.com/go-chi/chi/v5"

	"github.com/lockgate/lockgate/pkg/authz"
)

// RegisterRoutes adds the audit API to r. When authorizer is non-nil,
// endpoints require audit:list and audit:get permissions.
func RegisterRoutes(r chi.Router, store *Store, authorizer authz.Authorizer) {
	listHandler := ListEventsHandler(store)
	getHandler := GetEventHandler(store)

	if authorizer != nil {
		r.Get("/audit/verifications", authz.RequirePermission(authorizer, authz.ResourceAudit, authz.VerbList)(listHandler).ServeHTTP)
		r.Get("/audit/events/{eventId}", authz.RequirePermission(authorizer, authz.ResourceAudit, authz.VerbGet)(getHandler).ServeHTTP)
	} else {
		r.Get("/audit/verifications", listHandler)
		r.Get("/audit/events/{eventId}", getHandler)
	}
}
