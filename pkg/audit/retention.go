package audit

import (
	"context"
	"time"
)

// Retention deletes events older than a configured age. It is driven by
// the housekeeping worker.
type Retention struct {
	store     *Store
	retention time.Duration
	now       func() time.Time
}

// NewRetention keeps retentionDays days of events. A non-positive value
// disables deletion.
func NewRetention(store *Store, retentionDays int) *Retention {
	return &Retention{
		store:     store,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		now:       time.Now,
	}
}

// Name identifies the task in housekeeping logs.
func (r *Retention) Name() string { return "audit-retention" }

// Sweep performs a single retention pass.
func (r *Retention) Sweep(ctx context.Context) (int64, error) {
	if r.store == nil || r.retention <= 0 {
		return 0, nil
	}
	return r.store.DeleteOlderThan(ctx, r.now().Add(-r.retention))
}
