package audit

import (
	"strings"
)

// pathTarget returns the resource type and ids addressed by a lock registry
// path. For /api/gating/v1/locks/{id} it returns "locks", [id]; for
// /api/gating/v1/resources/{type}/{id}/lock it returns "lockapplications",
// ["{type}:{id}"].
func pathTarget(path string) (string, []string) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for i, p := range parts {
		switch p {
		case "locks":
			if i+1 < len(parts) {
				return "locks", []string{parts[i+1]}
			}
			return "locks", nil
		case "resources":
			if i+2 < len(parts) {
				return "lockapplications", []string{parts[i+1] + ":" + parts[i+2]}
			}
			return "lockapplications", nil
		}
	}
	return "", nil
}

// extractActionVerb returns a human-readable action name from the HTTP
// method and path.
func extractActionVerb(method, path string) string {
	if strings.HasSuffix(strings.TrimSuffix(path, "/"), "/lock") {
		switch method {
		case "PUT":
			return "apply-lock"
		case "DELETE":
			return "remove-lock"
		}
	}

	switch method {
	case "POST":
		return "create"
	case "PUT":
		return "update"
	case "PATCH":
		return "patch"
	case "DELETE":
		return "delete"
	default:
		return strings.ToLower(method)
	}
}

// isManagementEndpoint returns true if the request should be audited by
// the middleware. Challenges are stateless and verifications are audited
// by the gating service itself.
func isManagementEndpoint(method, path string) bool {
	if isHealthEndpoint(path) {
		return false
	}
	if strings.Contains(path, "/challenges") || strings.Contains(path, "/verifications") {
		return false
	}

	switch method {
	case "POST", "PUT", "PATCH", "DELETE":
		return true
	}
	return false
}

// isHealthEndpoint returns true for health-check paths.
func isHealthEndpoint(path string) bool {
	switch path {
	case "/livez", "/readyz", "/healthz":
		return true
	}
	return false
}
