package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lockgate/lockgate/pkg/audit"
	"github.com/lockgate/lockgate/pkg/authz"
	"github.com/lockgate/lockgate/pkg/cache"
	"github.com/lockgate/lockgate/pkg/chain/chaintest"
	"github.com/lockgate/lockgate/pkg/community"
	"github.com/lockgate/lockgate/pkg/config"
	"github.com/lockgate/lockgate/pkg/gating"
	"github.com/lockgate/lockgate/pkg/ha"
	"github.com/lockgate/lockgate/pkg/locks"
	"github.com/lockgate/lockgate/pkg/preverify"
	"github.com/lockgate/lockgate/pkg/verifier"
	"github.com/lockgate/lockgate/pkg/verifier/evm"
	"github.com/lockgate/lockgate/pkg/verifier/universalprofile"
)

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	db, err := openDatabase(&config.Server{DatabaseType: config.DatabaseSQLite, DatabaseURL: ":memory:"})
	require.NoError(t, err)

	reg, err := verifier.NewRegistry(
		evm.New(chaintest.New(), nil, nil),
		universalprofile.New(chaintest.New(), universalprofile.Config{}, nil),
	)
	require.NoError(t, err)

	lockStore := locks.NewStore(db, reg)
	grants := preverify.NewStore(db)
	auditStore := audit.NewStore(db)
	locker := ha.NewMigrationLocker(db, &ha.Config{})
	require.NoError(t, ha.Migrate(context.Background(), locker, lockStore, grants, auditStore))

	promRegistry := prometheus.NewRegistry()
	metrics, err := gating.NewMetrics(promRegistry)
	require.NoError(t, err)
	auditCfg := audit.DefaultAuditConfig()
	recorder := audit.NewRecorder(auditStore, auditCfg, nil)

	svc, err := gating.NewService(gating.Deps{
		Locks:    lockStore,
		Registry: reg,
		Grants:   grants,
		Audit:    recorder,
		Metrics:  metrics,
	}, nil, nil)
	require.NoError(t, err)

	return newRouter(routerDeps{
		DB:            db,
		Service:       svc,
		Locks:         lockStore,
		AuditStore:    auditStore,
		AuditConfig:   auditCfg,
		Recorder:      recorder,
		Authorizer:    &authz.GroupAuthorizer{AdminGroup: "gating-admins"},
		Cache:         cache.NewCacheManager(cache.DefaultCacheConfig()),
		CommunityMode: community.ModeMulti,
		CORSOrigins:   []string{"https://app.example"},
		Gatherer:      promRegistry,
	})
}

func send(t *testing.T, h http.Handler, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(community.Header, "c1")
	if user != "" {
		req.Header.Set("X-Remote-User", user)
	}
	if user == "admin" {
		req.Header.Set("X-Remote-Group", "gating-admins")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoints(t *testing.T) {
	h := newTestServer(t)

	w := send(t, h, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = send(t, h, http.MethodGet, "/readyz", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var ready struct {
		Components map[string]map[string]string `json:"components"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&ready))
	assert.Equal(t, "ok", ready.Components["database"]["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestServer(t)

	w := send(t, h, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "gating_challenges_issued_total")
}

func TestCORSPreflight(t *testing.T) {
	h := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, apiBasePath+"/categories", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, "https://app.example", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestGatingAPIIsMounted(t *testing.T) {
	h := newTestServer(t)

	w := send(t, h, http.MethodGet, apiBasePath+"/categories", "", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var cats gating.CategoriesResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&cats))
	assert.Equal(t, 2, cats.Size)

	w = send(t, h, http.MethodPost, apiBasePath+"/locks", "alice", map[string]any{
		"name": "Holders",
		"gatingConfig": map[string]any{
			"requireAll": true,
			"categories": []map[string]any{{
				"type":         universalprofile.Type,
				"enabled":      true,
				"requirements": map[string]any{"minLyxBalance": "1000000000000000000"},
			}},
		},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var lock locks.LockResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&lock))

	w = send(t, h, http.MethodPut, apiBasePath+"/resources/post/p1/lock", "alice", map[string]any{"lockId": lock.ID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = send(t, h, http.MethodGet, apiBasePath+"/resources/post/p1/access", "bob", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var status gating.Status
	require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
	assert.False(t, status.CanAccess)
	assert.Equal(t, 1, status.Total)

	// Lock creation was recorded as a management event.
	w = send(t, h, http.MethodGet, apiBasePath+"/audit/verifications?eventType=management", "admin", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, strings.Contains(w.Body.String(), `"actor":"alice"`), w.Body.String())
}

func TestCommunityRequired(t *testing.T) {
	h := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, apiBasePath+"/categories", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
