package audit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lockgate/lockgate/pkg/authz"
	"github.com/lockgate/lockgate/pkg/community"
)

func setupRouter(t *testing.T, authorizer authz.Authorizer) (*chi.Mux, *Store) {
	t.Helper()
	s := newTestStore(t)
	r := chi.NewRouter()
	r.Use(authz.IdentityMiddleware(nil))
	r.Use(community.NewMiddleware(community.ModeMulti))
	RegisterRoutes(r, s, authorizer)
	return r, s
}

func get(r http.Handler, path, user, groups string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set(community.Header, "c1")
	if user != "" {
		req.Header.Set("X-Remote-User", user)
	}
	if groups != "" {
		req.Header.Set("X-Remote-Group", groups)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestListEventsHandler(t *testing.T) {
	r, s := setupRouter(t, nil)
	appendEvent(t, s, EventVerification, "alice", OutcomeSuccess, t0)
	appendEvent(t, s, EventSecurity, "bob", OutcomeDenied, t0.Add(time.Minute))
	appendEvent(t, s, EventManagement, "carol", OutcomeSuccess, t0.Add(2*time.Minute))

	w := get(r, "/audit/verifications", "", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Events    []eventResponse `json:"events"`
		TotalSize int             `json:"totalSize"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, 2, resp.TotalSize)
	require.Len(t, resp.Events, 2)
	assert.Equal(t, EventSecurity, resp.Events[0].EventType)

	w = get(r, "/audit/verifications?eventType=management", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, 1, resp.TotalSize)
}

func TestGetEventHandler(t *testing.T) {
	r, s := setupRouter(t, nil)
	e := appendEvent(t, s, EventSecurity, "bob", OutcomeDenied, t0)

	w := get(r, "/audit/events/"+e.ID, "", "")
	require.Equal(t, http.StatusOK, w.Code)
	var resp eventResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, e.ID, resp.ID)

	w = get(r, "/audit/events/missing", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAuditRoutesRequirePermission(t *testing.T) {
	r, _ := setupRouter(t, &authz.GroupAuthorizer{AdminGroup: "gating-admins"})

	w := get(r, "/audit/verifications", "alice", "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = get(r, "/audit/verifications", "alice", authz.CommunityAdminGroupPrefix+"c1")
	assert.Equal(t, http.StatusOK, w.Code)

	w = get(r, "/audit/events/x", "alice", authz.CommunityAdminGroupPrefix+"c2")
	assert.Equal(t, http.StatusForbidden, w.Code)
}
