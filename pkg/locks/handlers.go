package locks

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"gorm.io/datatypes"

	"github.com/lockgate/lockgate/pkg/authz"
	"github.com/lockgate/lockgate/pkg/community"
	"github.com/lockgate/lockgate/pkg/gaterr"
	"github.com/lockgate/lockgate/pkg/scope"
)

// Handlers serves the lock registry API.
type Handlers struct {
	store      *Store
	authorizer authz.Authorizer
}

// NewHandlers creates lock registry handlers. authorizer decides who
// administers a community; nil means nobody does.
func NewHandlers(store *Store, authorizer authz.Authorizer) *Handlers {
	return &Handlers{store: store, authorizer: authorizer}
}

type caller struct {
	id        authz.Identity
	community string
	isAdmin   bool
}

func (h *Handlers) caller(r *http.Request) (caller, error) {
	id, _ := authz.IdentityFromContext(r.Context())
	c := caller{id: id, community: community.IDFromContext(r.Context())}
	admin, err := authz.IsAdmin(r.Context(), h.authorizer, id, c.community)
	if err != nil {
		return c, fmt.Errorf("authorization check failed: %w", err)
	}
	c.isAdmin = admin
	return c, nil
}

type lockRequest struct {
	Name         *string       `json:"name"`
	Description  *string       `json:"description"`
	Icon         *string       `json:"icon"`
	Color        *string       `json:"color"`
	GatingConfig *GatingConfig `json:"gatingConfig"`
	IsTemplate   *bool         `json:"isTemplate"`
	IsPublic     *bool         `json:"isPublic"`
}

// LockResponse is the API representation of a lock.
type LockResponse struct {
	ID           string       `json:"id"`
	CommunityID  string       `json:"communityId"`
	CreatorID    string       `json:"creatorId"`
	Name         string       `json:"name"`
	Description  string       `json:"description,omitempty"`
	Icon         string       `json:"icon,omitempty"`
	Color        string       `json:"color,omitempty"`
	GatingConfig GatingConfig `json:"gatingConfig"`
	IsTemplate   bool         `json:"isTemplate"`
	IsPublic     bool         `json:"isPublic"`
	UsageCount   int64        `json:"usageCount"`
	CreatedAt    string       `json:"createdAt"`
	UpdatedAt    string       `json:"updatedAt"`
}

func lockToResponse(l *Lock) LockResponse {
	return LockResponse{
		ID:           l.ID,
		CommunityID:  l.CommunityID,
		CreatorID:    l.CreatorID,
		Name:         l.Name,
		Description:  l.Description,
		Icon:         l.Icon,
		Color:        l.Color,
		GatingConfig: l.Config(),
		IsTemplate:   l.IsTemplate,
		IsPublic:     l.IsPublic,
		UsageCount:   l.UsageCount,
		CreatedAt:    l.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    l.UpdatedAt.Format(time.RFC3339),
	}
}

// ApplicationResponse is the API representation of a lock application.
type ApplicationResponse struct {
	LockID                      string `json:"lockId"`
	ResourceType                string `json:"resourceType"`
	ResourceID                  string `json:"resourceId"`
	RequireAll                  bool   `json:"requireAll"`
	VerificationDurationMinutes int    `json:"verificationDurationMinutes,omitempty"`
	AppliedBy                   string `json:"appliedBy,omitempty"`
	UpdatedAt                   string `json:"updatedAt"`
}

func applicationToResponse(a *LockApplication) ApplicationResponse {
	return ApplicationResponse{
		LockID:                      a.LockID,
		ResourceType:                a.ResourceType,
		ResourceID:                  a.ResourceID,
		RequireAll:                  a.RequireAll,
		VerificationDurationMinutes: a.VerificationDurationMinutes,
		AppliedBy:                   a.AppliedBy,
		UpdatedAt:                   a.UpdatedAt.Format(time.RFC3339),
	}
}

// CreateLock handles POST /locks
func (h *Handlers) CreateLock(w http.ResponseWriter, r *http.Request) {
	c, err := h.caller(r)
	if err != nil {
		writeGateError(w, err)
		return
	}
	var req lockRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	l := &Lock{CommunityID: c.community, CreatorID: c.id.User}
	if req.Name != nil {
		l.Name = *req.Name
	}
	if req.Description != nil {
		l.Description = *req.Description
	}
	if req.Icon != nil {
		l.Icon = *req.Icon
	}
	if req.Color != nil {
		l.Color = *req.Color
	}
	if req.IsPublic != nil {
		l.IsPublic = *req.IsPublic
	}
	if req.IsTemplate != nil && *req.IsTemplate {
		if !c.isAdmin {
			writeError(w, http.StatusForbidden, "forbidden", "only community admins can create templates")
			return
		}
		l.IsTemplate = true
	}
	if req.GatingConfig != nil {
		l.GatingConfig = datatypes.NewJSONType(*req.GatingConfig)
	}
	if err := h.store.Create(r.Context(), l); err != nil {
		writeGateError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, lockToResponse(l))
}

// ListLocks handles GET /locks
// Query params: q, creatorId, templates, pageSize, pageToken
func (h *Handlers) ListLocks(w http.ResponseWriter, r *http.Request) {
	c, err := h.caller(r)
	if err != nil {
		writeGateError(w, err)
		return
	}
	q := r.URL.Query()
	filter := ListFilter{
		CommunityID:   c.community,
		CreatorID:     q.Get("creatorId"),
		Query:         q.Get("q"),
		Templates:     q.Get("templates") == "true",
		Viewer:        c.id.User,
		ViewerIsAdmin: c.isAdmin,
	}
	pageSize := 20
	if ps := q.Get("pageSize"); ps != "" {
		if v, err := strconv.Atoi(ps); err == nil && v > 0 {
			pageSize = v
		}
	}

	records, next, total, err := h.store.List(r.Context(), filter, pageSize, q.Get("pageToken"))
	if err != nil {
		writeGateError(w, err)
		return
	}
	items := make([]LockResponse, len(records))
	for i := range records {
		items[i] = lockToResponse(&records[i])
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"locks":         items,
		"nextPageToken": next,
		"totalSize":     total,
	})
}

// GetLock handles GET /locks/{lockId}
func (h *Handlers) GetLock(w http.ResponseWriter, r *http.Request) {
	c, l, ok := h.loadLock(w, r)
	if !ok {
		return
	}
	if !CanUse(l, c.id.User, c.isAdmin) {
		writeError(w, http.StatusForbidden, "forbidden", "lock is private")
		return
	}
	writeJSON(w, http.StatusOK, lockToResponse(l))
}

// UpdateLock handles PATCH /locks/{lockId}
func (h *Handlers) UpdateLock(w http.ResponseWriter, r *http.Request) {
	c, l, ok := h.loadLock(w, r)
	if !ok {
		return
	}
	if !CanEdit(l, c.id.User, c.isAdmin) {
		writeError(w, http.StatusForbidden, "forbidden", "only the creator or a community admin can edit this lock")
		return
	}
	var req lockRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if req.IsTemplate != nil && *req.IsTemplate != l.IsTemplate && !c.isAdmin {
		writeError(w, http.StatusForbidden, "forbidden", "only community admins can change template status")
		return
	}
	updated, err := h.store.Update(r.Context(), c.community, l.ID, Patch{
		Name:         req.Name,
		Description:  req.Description,
		Icon:         req.Icon,
		Color:        req.Color,
		GatingConfig: req.GatingConfig,
		IsTemplate:   req.IsTemplate,
		IsPublic:     req.IsPublic,
	})
	if err != nil {
		writeGateError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lockToResponse(updated))
}

// DeleteLock handles DELETE /locks/{lockId}
func (h *Handlers) DeleteLock(w http.ResponseWriter, r *http.Request) {
	c, l, ok := h.loadLock(w, r)
	if !ok {
		return
	}
	if !CanEdit(l, c.id.User, c.isAdmin) {
		writeError(w, http.StatusForbidden, "forbidden", "only the creator or a community admin can delete this lock")
		return
	}
	if err := h.store.Delete(r.Context(), c.community, l.ID); err != nil {
		writeGateError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// LockUsage handles GET /locks/{lockId}/usage
func (h *Handlers) LockUsage(w http.ResponseWriter, r *http.Request) {
	c, l, ok := h.loadLock(w, r)
	if !ok {
		return
	}
	if !CanEdit(l, c.id.User, c.isAdmin) {
		writeError(w, http.StatusForbidden, "forbidden", "only the creator or a community admin can view usage")
		return
	}
	apps, err := h.store.ListApplications(r.Context(), c.community, l.ID)
	if err != nil {
		writeGateError(w, err)
		return
	}
	items := make([]ApplicationResponse, len(apps))
	for i := range apps {
		items[i] = applicationToResponse(&apps[i])
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"lockId":       l.ID,
		"usageCount":   l.UsageCount,
		"applications": items,
	})
}

type applyRequest struct {
	LockID                      string `json:"lockId"`
	RequireAll                  *bool  `json:"requireAll"`
	VerificationDurationMinutes int    `json:"verificationDurationMinutes"`
}

func resourceFromPath(r *http.Request) (scope.Context, error) {
	sc := scope.Context{Type: scope.Type(chi.URLParam(r, "resourceType")), ID: chi.URLParam(r, "resourceId")}
	return sc, sc.Validate()
}

// canManageResource: boards are managed by community admins; a post's lock
// by whoever applied it or an admin.
func canManageResource(c caller, sc scope.Context, existing *LockApplication) bool {
	if c.isAdmin {
		return true
	}
	if sc.Type == scope.Board {
		return false
	}
	return existing == nil || existing.AppliedBy == c.id.User
}

// ApplyLock handles PUT /resources/{resourceType}/{resourceId}/lock
func (h *Handlers) ApplyLock(w http.ResponseWriter, r *http.Request) {
	c, err := h.caller(r)
	if err != nil {
		writeGateError(w, err)
		return
	}
	sc, err := resourceFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	var req applyRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if req.LockID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "lockId is required")
		return
	}
	l, err := h.store.Get(r.Context(), c.community, req.LockID)
	if err != nil {
		writeGateError(w, err)
		return
	}
	if !CanUse(l, c.id.User, c.isAdmin) {
		writeError(w, http.StatusForbidden, "forbidden", "lock is private")
		return
	}
	existing, err := h.store.GetApplication(r.Context(), c.community, string(sc.Type), sc.ID)
	if err != nil && !gaterr.IsNotFound(err) {
		writeGateError(w, err)
		return
	}
	if !canManageResource(c, sc, existing) {
		writeError(w, http.StatusForbidden, "forbidden", fmt.Sprintf("not allowed to manage the lock of %s", sc))
		return
	}

	requireAll := l.Config().RequireAll
	if req.RequireAll != nil {
		requireAll = *req.RequireAll
	}
	app, err := h.store.Apply(r.Context(), &LockApplication{
		LockID:                      l.ID,
		CommunityID:                 c.community,
		ResourceType:                string(sc.Type),
		ResourceID:                  sc.ID,
		RequireAll:                  requireAll,
		VerificationDurationMinutes: req.VerificationDurationMinutes,
		AppliedBy:                   c.id.User,
	})
	if err != nil {
		writeGateError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, applicationToResponse(app))
}

// GetResourceLock handles GET /resources/{resourceType}/{resourceId}/lock
func (h *Handlers) GetResourceLock(w http.ResponseWriter, r *http.Request) {
	sc, err := resourceFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	app, err := h.store.GetApplication(r.Context(), community.IDFromContext(r.Context()), string(sc.Type), sc.ID)
	if err != nil {
		writeGateError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, applicationToResponse(app))
}

// RemoveLock handles DELETE /resources/{resourceType}/{resourceId}/lock
func (h *Handlers) RemoveLock(w http.ResponseWriter, r *http.Request) {
	c, err := h.caller(r)
	if err != nil {
		writeGateError(w, err)
		return
	}
	sc, err := resourceFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	existing, err := h.store.GetApplication(r.Context(), c.community, string(sc.Type), sc.ID)
	if err != nil {
		writeGateError(w, err)
		return
	}
	if !canManageResource(c, sc, existing) {
		writeError(w, http.StatusForbidden, "forbidden", fmt.Sprintf("not allowed to manage the lock of %s", sc))
		return
	}
	if err := h.store.RemoveApplication(r.Context(), c.community, string(sc.Type), sc.ID); err != nil {
		writeGateError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) loadLock(w http.ResponseWriter, r *http.Request) (caller, *Lock, bool) {
	c, err := h.caller(r)
	if err != nil {
		writeGateError(w, err)
		return c, nil, false
	}
	lockID := chi.URLParam(r, "lockId")
	if lockID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "missing lock ID")
		return c, nil, false
	}
	l, err := h.store.Get(r.Context(), c.community, lockID)
	if err != nil {
		writeGateError(w, err)
		return c, nil, false
	}
	return c, l, true
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
	var coded gaterr.Coded
	if errors.As(err, &coded) {
		writeError(w, coded.HTTPStatus(), coded.Code(), err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, gaterr.CodeInternal, err.Error())
}
