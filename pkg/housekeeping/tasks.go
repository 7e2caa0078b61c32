package housekeeping

import (
	"context"
	"time"

	"github.com/lockgate/lockgate/pkg/preverify"
)

// Task is one unit of periodic cleanup. Sweep returns how many rows it
// changed.
type Task interface {
	Name() string
	Sweep(ctx context.Context) (int64, error)
}

// StalePending returns verifications stuck in pending for longer than
// Timeout to not_started. They are left behind by evaluations whose
// process died before resolving them.
type StalePending struct {
	Store   *preverify.Store
	Timeout time.Duration
}

func (StalePending) Name() string { return "stale-pending" }

func (t StalePending) Sweep(ctx context.Context) (int64, error) {
	return t.Store.ResetStalePending(ctx, t.Store.Now().Add(-t.Timeout))
}

// ExpiredGrants deletes verifications that expired more than Retention
// ago. Access decisions already ignore them.
type ExpiredGrants struct {
	Store     *preverify.Store
	Retention time.Duration
}

func (ExpiredGrants) Name() string { return "expired-grants" }

func (t ExpiredGrants) Sweep(ctx context.Context) (int64, error) {
	return t.Store.DeleteExpiredBefore(ctx, t.Store.Now().Add(-t.Retention))
}

// GrantTasks returns the pre-verification tasks configured by cfg.
func GrantTasks(store *preverify.Store, cfg *Config) []Task {
	var tasks []Task
	if cfg.PendingTimeout > 0 {
		tasks = append(tasks, StalePending{Store: store, Timeout: cfg.PendingTimeout})
	}
	if cfg.RetentionHours > 0 {
		tasks = append(tasks, ExpiredGrants{Store: store, Retention: time.Duration(cfg.RetentionHours) * time.Hour})
	}
	return tasks
}
