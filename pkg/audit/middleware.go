package audit

import (
	"net/http"
	"time"

	"github.com/lockgate/lockgate/pkg/authz"
	"github.com/lockgate/lockgate/pkg/community"
)

// responseCapture wraps http.ResponseWriter to capture the status code.
type responseCapture struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rc *responseCapture) WriteHeader(code int) {
	if !rc.written {
		rc.statusCode = code
		rc.written = true
	}
	rc.ResponseWriter.WriteHeader(code)
}

func (rc *responseCapture) Write(b []byte) (int, error) {
	if !rc.written {
		rc.statusCode = http.StatusOK
		rc.written = true
	}
	return rc.ResponseWriter.Write(b)
}

// AuditMiddleware records a management event for every lock registry
// mutation after the handler completes.
func AuditMiddleware(recorder Recorder, cfg *AuditConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg == nil || !cfg.Enabled || recorder == nil {
				next.ServeHTTP(w, r)
				return
			}
			if !isManagementEndpoint(r.Method, r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			startTime := time.Now()
			capture := &responseCapture{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(capture, r)

			statusCode := capture.statusCode
			outcome := outcomeFromStatus(statusCode)
			if outcome == OutcomeDenied && !cfg.LogDenied {
				return
			}

			ctx := r.Context()
			actor := ""
			var groups []string
			if id, ok := authz.IdentityFromContext(ctx); ok && !id.IsAnonymous() {
				actor = id.User
				groups = id.Groups
			}

			resourceType, resourceIDs := pathTarget(r.URL.Path)
			event := &Event{
				CommunityID:   community.IDFromContext(ctx),
				EventType:     EventManagement,
				Actor:         actor,
				Action:        extractActionVerb(r.Method, r.URL.Path),
				Outcome:       outcome,
				StatusCode:    statusCode,
				CorrelationID: r.Header.Get("X-Correlation-ID"),
				CreatedAt:     startTime.UTC(),
				Metadata: map[string]any{
					"method":       r.Method,
					"path":         r.URL.Path,
					"duration":     time.Since(startTime).String(),
					"resourceType": resourceType,
					"resourceIds":  resourceIDs,
					"groups":       groups,
				},
			}
			if resourceType == "locks" && len(resourceIDs) == 1 {
				event.LockID = resourceIDs[0]
			}
			recorder.Record(ctx, event)
		})
	}
}

// outcomeFromStatus maps HTTP status codes to audit outcomes.
func outcomeFromStatus(code int) string {
	switch {
	case code >= 200 && code < 300:
		return OutcomeSuccess
	case code == http.StatusForbidden, code == http.StatusUnauthorized:
		return OutcomeDenied
	default:
		return OutcomeFailure
	}
}
