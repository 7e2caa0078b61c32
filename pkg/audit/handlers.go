package audit

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lockgate/lockgate/pkg/community"
)

// ListEventsHandler handles GET /audit/verifications.
// Query params: eventType (comma separated), actor, lockId, outcome,
// pageSize, pageToken. Without eventType, verification and security
// events are listed.
func ListEventsHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := ListFilter{
			CommunityID: community.IDFromContext(r.Context()),
			EventTypes:  []string{EventVerification, EventSecurity},
			Actor:       q.Get("actor"),
			LockID:      q.Get("lockId"),
			Outcome:     q.Get("outcome"),
		}
		if et := q.Get("eventType"); et != "" {
			filter.EventTypes = strings.Split(et, ",")
		}

		pageSize := 20
		if ps := q.Get("pageSize"); ps != "" {
			if v, err := strconv.Atoi(ps); err == nil && v > 0 {
				pageSize = v
			}
		}

		events, nextToken, total, err := store.List(r.Context(), filter, pageSize, q.Get("pageToken"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", fmt.Sprintf("failed to list audit events: %v", err))
			return
		}

		items := make([]eventResponse, len(events))
		for i := range events {
			items[i] = eventToResponse(&events[i])
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"events":        items,
			"nextPageToken": nextToken,
			"totalSize":     total,
		})
	}
}

// GetEventHandler handles GET /audit/events/{eventId}.
func GetEventHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		eventID := chi.URLParam(r, "eventId")
		if eventID == "" {
			writeError(w, http.StatusBadRequest, "bad_request", "missing event ID")
			return
		}

		event, err := store.Get(r.Context(), community.IDFromContext(r.Context()), eventID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", fmt.Sprintf("failed to get audit event: %v", err))
			return
		}
		if event == nil {
			writeError(w, http.StatusNotFound, "not_found", fmt.Sprintf("audit event %q not found", eventID))
			return
		}

		writeJSON(w, http.StatusOK, eventToResponse(event))
	}
}

type eventResponse struct {
	ID            string         `json:"id"`
	CommunityID   string         `json:"communityId"`
	EventType     string         `json:"eventType"`
	Actor         string         `json:"actor"`
	Address       string         `json:"address,omitempty"`
	LockID        string         `json:"lockId,omitempty"`
	CategoryType  string         `json:"categoryType,omitempty"`
	Context       string         `json:"context,omitempty"`
	Action        string         `json:"action,omitempty"`
	Outcome       string         `json:"outcome"`
	Code          string         `json:"code,omitempty"`
	Reason        string         `json:"reason,omitempty"`
	StatusCode    int            `json:"statusCode,omitempty"`
	RequestID     string         `json:"requestId,omitempty"`
	CorrelationID string         `json:"correlationId,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	CreatedAt     string         `json:"createdAt"`
}

func eventToResponse(e *Event) eventResponse {
	resp := eventResponse{
		ID:            e.ID,
		CommunityID:   e.CommunityID,
		EventType:     e.EventType,
		Actor:         e.Actor,
		Address:       e.Address,
		LockID:        e.LockID,
		CategoryType:  e.CategoryType,
		Action:        e.Action,
		Outcome:       e.Outcome,
		Code:          e.Code,
		Reason:        e.Reason,
		StatusCode:    e.StatusCode,
		RequestID:     e.RequestID,
		CorrelationID: e.CorrelationID,
		Metadata:      map[string]any(e.Metadata),
		CreatedAt:     e.CreatedAt.Format(time.RFC3339Nano),
	}
	if e.ContextType != "" {
		resp.Context = e.ContextType + ":" + e.ContextID
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": code, "message": message})
}
