package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCheck(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{name: "ready", status: http.StatusOK, body: `{"status":"OK"}`},
		{name: "database down", status: http.StatusServiceUnavailable,
			body: `{"components":{"database":{"status":"connection refused"}}}`, wantErr: "database: connection refused"},
		{name: "plain failure", status: http.StatusInternalServerError, body: "boom", wantErr: "status 500"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			err := check(srv.URL, srv.Client())
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestTargetURL(t *testing.T) {
	t.Setenv("GATING_HEALTHCHECK_URL", "")
	if got := targetURL(nil); got != defaultURL {
		t.Errorf("targetURL() = %q, want %q", got, defaultURL)
	}
	t.Setenv("GATING_HEALTHCHECK_URL", "http://gating:8080/readyz")
	if got := targetURL(nil); got != "http://gating:8080/readyz" {
		t.Errorf("targetURL() = %q, want env value", got)
	}
	if got := targetURL([]string{"http://x/healthz"}); got != "http://x/healthz" {
		t.Errorf("targetURL() = %q, want argument", got)
	}
}
