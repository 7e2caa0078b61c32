package authz

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lockgate/lockgate/pkg/community"
)

func requestAs(id Identity, cid string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	ctx := WithIdentity(req.Context(), id)
	ctx = community.WithID(ctx, cid)
	return req.WithContext(ctx)
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequirePermission(t *testing.T) {
	groups := &GroupAuthorizer{AdminGroup: "gating-admins"}
	tests := []struct {
		name       string
		authorizer Authorizer
		id         Identity
		wantCode   int
	}{
		{"community admin", groups, Identity{User: "alice", Groups: []string{"community-admin:c1"}}, http.StatusOK},
		{"global admin", groups, Identity{User: "root", Groups: []string{"gating-admins"}}, http.StatusOK},
		{"admin of another community", groups, Identity{User: "bob", Groups: []string{"community-admin:c2"}}, http.StatusForbidden},
		{"no groups", groups, Identity{User: "carol"}, http.StatusForbidden},
		{"noop", &NoopAuthorizer{}, Identity{User: "dave"}, http.StatusOK},
		{"authorizer error", &mockAuthorizer{err: errors.New("boom")}, Identity{User: "eve"}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			RequirePermission(tt.authorizer, ResourceAudit, VerbAdmin)(okHandler()).ServeHTTP(rr, requestAs(tt.id, "c1"))
			if rr.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rr.Code, tt.wantCode)
			}
			if rr.Code == http.StatusForbidden {
				var body map[string]string
				if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
					t.Fatalf("failed to decode response body: %v", err)
				}
				if body["error"] != "forbidden" || body["message"] == "" {
					t.Errorf("unexpected body %v", body)
				}
			}
		})
	}
}

func TestGroupAuthorizerAllowsReads(t *testing.T) {
	g := &GroupAuthorizer{}
	for _, verb := range []string{VerbGet, VerbList} {
		ok, err := g.Authorize(context.Background(), Request{User: "x", Resource: ResourceLocks, Verb: verb, Community: "c1"})
		if err != nil || !ok {
			t.Errorf("%s should be allowed", verb)
		}
	}
	ok, _ := g.Authorize(context.Background(), Request{User: "x", Resource: ResourceLocks, Verb: VerbDelete, Community: "c1"})
	if ok {
		t.Error("delete without admin group should be denied")
	}
	ok, _ = g.Authorize(context.Background(), Request{User: "x", Resource: ResourceAudit, Verb: VerbList, Community: "c1"})
	if ok {
		t.Error("audit listing without admin group should be denied")
	}
}

func TestRequireIdentity(t *testing.T) {
	rr := httptest.NewRecorder()
	RequireIdentity()(okHandler()).ServeHTTP(rr, requestAs(Identity{User: Anonymous}, "c1"))
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("anonymous: status = %d, want 401", rr.Code)
	}

	rr = httptest.NewRecorder()
	RequireIdentity()(okHandler()).ServeHTTP(rr, requestAs(Identity{User: "alice"}, "c1"))
	if rr.Code != http.StatusOK {
		t.Errorf("alice: status = %d, want 200", rr.Code)
	}
}

func TestIsAdmin(t *testing.T) {
	g := &GroupAuthorizer{AdminGroup: "gating-admins"}
	ctx := context.Background()

	ok, err := IsAdmin(ctx, g, Identity{User: "alice", Groups: []string{"community-admin:c1"}}, "c1")
	if err != nil || !ok {
		t.Errorf("alice should administer c1")
	}
	ok, _ = IsAdmin(ctx, g, Identity{User: "alice", Groups: []string{"community-admin:c1"}}, "c2")
	if ok {
		t.Error("alice should not administer c2")
	}
	ok, _ = IsAdmin(ctx, &NoopAuthorizer{}, Identity{User: Anonymous}, "c1")
	if ok {
		t.Error("anonymous is never admin")
	}
	ok, _ = IsAdmin(ctx, nil, Identity{User: "alice"}, "c1")
	if ok {
		t.Error("nil authorizer grants nothing")
	}
}
