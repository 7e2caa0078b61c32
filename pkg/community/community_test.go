package community

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHeaderResolver(t *testing.T) {
	tests := []struct {
		name      string
		url       string
		header    string
		want      string
		wantError bool
	}{
		{name: "from query", url: "/x?communityId=c1", want: "c1"},
		{name: "from header", url: "/x", header: "c2", want: "c2"},
		{name: "query wins", url: "/x?communityId=q", header: "h", want: "q"},
		{name: "uuid", url: "/x?communityId=6f1c2a3e-0d1b-4a5e-9a0b-1c2d3e4f5a6b", want: "6f1c2a3e-0d1b-4a5e-9a0b-1c2d3e4f5a6b"},
		{name: "missing", url: "/x", wantError: true},
		{name: "bad chars", url: "/x?communityId=a%20b", wantError: true},
		{name: "leading dash", url: "/x?communityId=-a", wantError: true},
		{name: "too long", url: "/x?communityId=" + strings.Repeat("a", 65), wantError: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, tt.url, nil)
			if tt.header != "" {
				r.Header.Set(Header, tt.header)
			}
			got, err := HeaderResolver{}.Resolve(r)
			if tt.wantError {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("community = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		mode       Mode
		url        string
		wantStatus int
		want       string
	}{
		{"single ignores param", ModeSingle, "/x?communityId=c1", http.StatusOK, DefaultID},
		{"multi from param", ModeMulti, "/x?communityId=c1", http.StatusOK, "c1"},
		{"multi missing", ModeMulti, "/x", http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			h := NewMiddleware(tt.mode)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = IDFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			}))
			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.url, nil))
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if got != tt.want {
				t.Errorf("community = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestModeFromEnv(t *testing.T) {
	t.Setenv("GATING_COMMUNITY_MODE", "multi")
	if ModeFromEnv() != ModeMulti {
		t.Error("expected multi mode")
	}
	t.Setenv("GATING_COMMUNITY_MODE", "other")
	if ModeFromEnv() != ModeSingle {
		t.Error("expected single mode")
	}
}
