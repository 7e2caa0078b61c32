package gating

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lockgate/lockgate/pkg/authz"
	"github.com/lockgate/lockgate/pkg/community"
	"github.com/lockgate/lockgate/pkg/gaterr"
	"github.com/lockgate/lockgate/pkg/scope"
	"github.com/lockgate/lockgate/pkg/verifier"
)

// Handlers serves the verification and access API.
type Handlers struct {
	svc *Service
}

// NewHandlers creates gating handlers for svc.
func NewHandlers(svc *Service) *Handlers {
	return &Handlers{svc: svc}
}

// CategoriesResponse lists the registered category verifiers.
type CategoriesResponse struct {
	Items []verifier.Metadata `json:"items"`
	Size  int                 `json:"size"`
}

// ListCategories handles GET /categories.
func (h *Handlers) ListCategories(w http.ResponseWriter, r *http.Request) {
	items := h.svc.Categories()
	writeJSON(w, http.StatusOK, CategoriesResponse{Items: items, Size: len(items)})
}

type challengeRequest struct {
	Category string        `json:"category"`
	Address  string        `json:"address"`
	Context  scope.Context `json:"context"`
}

// IssueChallenge handles POST /locks/{lockId}/challenges.
func (h *Handlers) IssueChallenge(w http.ResponseWriter, r *http.Request) {
	var body challengeRequest
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, gaterr.CodeConfiguration, err.Error())
		return
	}
	c, err := h.svc.IssueChallenge(r.Context(), ChallengeRequest{
		CommunityID: community.IDFromContext(r.Context()),
		LockID:      chi.URLParam(r, "lockId"),
		Category:    body.Category,
		Context:     body.Context,
		Address:     body.Address,
	})
	if err != nil {
		writeGateError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

type verificationRequest struct {
	Signature        string         `json:"signature"`
	Message          string         `json:"message"`
	Address          string         `json:"address"`
	Context          scope.Context  `json:"context"`
	VerificationData map[string]any `json:"verificationData,omitempty"`
}

// SubmitVerification handles
// POST /locks/{lockId}/categories/{categoryType}/verifications.
func (h *Handlers) SubmitVerification(w http.ResponseWriter, r *http.Request) {
	var body verificationRequest
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, gaterr.CodeConfiguration, err.Error())
		return
	}
	id, _ := authz.IdentityFromContext(r.Context())
	out, err := h.svc.SubmitVerification(r.Context(), Submission{
		CommunityID:      community.IDFromContext(r.Context()),
		UserID:           id.User,
		LockID:           chi.URLParam(r, "lockId"),
		CategoryType:     chi.URLParam(r, "categoryType"),
		Context:          body.Context,
		Address:          body.Address,
		Message:          body.Message,
		Signature:        body.Signature,
		VerificationData: body.VerificationData,
	})
	if err != nil {
		var rl *gaterr.RateLimitedError
		if errors.As(err, &rl) {
			w.Header().Set("Retry-After", fmt.Sprint(rl.RetryAfterSeconds))
		}
		writeJSON(w, gaterr.HTTPStatus(err), out)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// LockStatus handles GET /locks/{lockId}/status?contextType=&contextId=.
func (h *Handlers) LockStatus(w http.ResponseWriter, r *http.Request) {
	sc := scope.Context{
		Type: scope.Type(r.URL.Query().Get("contextType")),
		ID:   r.URL.Query().Get("contextId"),
	}
	if err := sc.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, gaterr.CodeConfiguration, err.Error())
		return
	}
	status, err := h.svc.DecideAccess(r.Context(), DecisionRequest{
		CommunityID: community.IDFromContext(r.Context()),
		UserID:      userID(r),
		LockID:      chi.URLParam(r, "lockId"),
		Context:     sc,
	})
	if err != nil {
		writeGateError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// ResourceAccess handles GET /resources/{resourceType}/{resourceId}/access.
func (h *Handlers) ResourceAccess(w http.ResponseWriter, r *http.Request) {
	status, err := h.svc.DecideForResource(r.Context(),
		community.IDFromContext(r.Context()),
		userID(r),
		chi.URLParam(r, "resourceType"),
		chi.URLParam(r, "resourceId"))
	if err != nil {
		writeGateError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// userID returns the caller, or "" for anonymous callers who hold no
// verifications.
func userID(r *http.Request) string {
	id, _ := authz.IdentityFromContext(r.Context())
	if id.IsAnonymous() {
		return ""
	}
	return id.User
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": code, "message": message})
}

func writeGateError(w http.ResponseWriter, err error) {
	writeError(w, gaterr.HTTPStatus(err), gaterr.Code(err), err.Error())
}
