package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// Recorder accepts audit events. Recording is best effort: a failed write
// never fails the operation being audited.
type Recorder interface {
	Record(ctx context.Context, event *Event)
}

// Discard drops every event.
type Discard struct{}

func (Discard) Record(context.Context, *Event) {}

// StoreRecorder writes events to a Store.
type StoreRecorder struct {
	store  *Store
	logger *slog.Logger
	now    func() time.Time
}

// NewRecorder returns a Recorder backed by store. A nil store or a
// disabled config yields Discard.
func NewRecorder(store *Store, cfg *AuditConfig, logger *slog.Logger) Recorder {
	if store == nil || cfg == nil || !cfg.Enabled {
		return Discard{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StoreRecorder{store: store, logger: logger, now: time.Now}
}

func (r *StoreRecorder) Record(ctx context.Context, event *Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = r.now().UTC()
	}
	if event.CommunityID == "" {
		event.CommunityID = "default"
	}
	if event.Actor == "" {
		event.Actor = "anonymous"
	}
	if event.RequestID == "" {
		event.RequestID = middleware.GetReqID(ctx)
	}
	if event.CorrelationID == "" {
		event.CorrelationID = event.RequestID
	}
	// The audited request may already be cancelled; the write must still land.
	if err := r.store.Append(context.WithoutCancel(ctx), event); err != nil {
		r.logger.Error("failed to write audit event", "error", err, "eventType", event.EventType, "requestID", event.RequestID)
	}
}
