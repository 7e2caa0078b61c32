// Package main is a container healthcheck for gating-server. It requests
// the readiness endpoint and exits 0 on a 2xx answer, 1 otherwise, naming
// any component the server reported as unhealthy.
// Usage: healthcheck [url] (default $GATING_HEALTHCHECK_URL or
// http://localhost:8080/readyz)
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

const defaultURL = "http://localhost:8080/readyz"

type readiness struct {
	Components map[string]struct {
		Status string `json:"status"`
	} `json:"components"`
}

func main() {
	if err := check(targetURL(os.Args[1:]), &http.Client{Timeout: 5 * time.Second}); err != nil {
		fmt.Fprintf(os.Stderr, "healthcheck failed: %v\n", err)
		os.Exit(1)
	}
}

func targetURL(args []string) string {
	if len(args) > 0 && args[0] != "" {
		return args[0]
	}
	if v := os.Getenv("GATING_HEALTHCHECK_URL"); v != "" {
		return v
	}
	return defaultURL
}

func check(url string, client *http.Client) error {
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var r readiness
	if json.Unmarshal(body, &r) == nil {
		for name, c := range r.Components {
			if c.Status != "ok" {
				return fmt.Errorf("status %d: %s: %s", resp.StatusCode, name, c.Status)
			}
		}
	}
	return fmt.Errorf("status %d", resp.StatusCode)
}
