package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/lockgate/lockgate/pkg/audit"
	"github.com/lockgate/lockgate/pkg/authz"
	"github.com/lockgate/lockgate/pkg/cache"
	"github.com/lockgate/lockgate/pkg/community"
	"github.com/lockgate/lockgate/pkg/gating"
	"github.com/lockgate/lockgate/pkg/locks"
)

// apiBasePath is where the gating API is mounted.
const apiBasePath = "/api/gating/v1"

// routerDeps is everything the HTTP surface is built from.
type routerDeps struct {
	DB            *gorm.DB
	Service       *gating.Service
	Locks         *locks.Store
	AuditStore    *audit.Store
	AuditConfig   *audit.AuditConfig
	Recorder      audit.Recorder
	Authorizer    authz.Authorizer
	JWT           *authz.JWTExtractor
	Cache         *cache.CacheManager
	CommunityMode community.Mode
	CORSOrigins   []string
	Gatherer      prometheus.Gatherer
}

func newRouter(d routerDeps) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(d.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   d.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", community.Header},
			ExposedHeaders:   []string{"Retry-After", "X-Cache"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	r.Get("/healthz", healthHandler)
	r.Get("/livez", healthHandler)
	r.Get("/readyz", readyHandler(d.DB))
	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route(apiBasePath, func(api chi.Router) {
		api.Use(authz.IdentityMiddleware(d.JWT))
		api.Use(community.NewMiddleware(d.CommunityMode))
		if d.AuditConfig != nil && d.AuditConfig.Enabled {
			api.Use(audit.AuditMiddleware(d.Recorder, d.AuditConfig))
		}
		api.Use(d.Cache.InvalidationMiddleware())

		locks.RegisterRoutes(api, locks.NewHandlers(d.Locks, d.Authorizer), d.Cache)
		gating.RegisterRoutes(api, gating.NewHandlers(d.Service), d.Cache)
		if d.AuditStore != nil {
			audit.RegisterRoutes(api, d.AuditStore, d.Authorizer)
		}
	})
	return r
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readyHandler reports ready once the database answers a ping.
func readyHandler(db *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "ok"
		code := http.StatusOK
		if err := pingDatabase(r.Context(), db); err != nil {
			status = err.Error()
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, map[string]any{
			"status":     http.StatusText(code),
			"components": map[string]map[string]string{"database": {"status": status}},
		})
	}
}

func pingDatabase(ctx context.Context, db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return sqlDB.PingContext(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
