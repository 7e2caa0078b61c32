// Package housekeeping periodically removes rows nothing reads anymore:
// long-expired verifications, abandoned pending evaluations and old audit
// events. Access decisions never depend on it.
package housekeeping

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Sweeper runs housekeeping tasks on a fixed interval.
type Sweeper struct {
	tasks   []Task
	cfg     *Config
	logger  *slog.Logger
	metrics *Metrics
}

// NewSweeper creates a sweeper running tasks. A nil metrics records nothing.
func NewSweeper(cfg *Config, metrics *Metrics, logger *slog.Logger, tasks ...Task) *Sweeper {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{tasks: tasks, cfg: cfg, logger: logger, metrics: metrics}
}

// Run sweeps every Interval until ctx is cancelled. The first sweep runs
// immediately.
func (s *Sweeper) Run(ctx context.Context) {
	if !s.cfg.Enabled || len(s.tasks) == 0 {
		s.logger.Info("housekeeping disabled")
		return
	}

	s.logger.Info("housekeeping starting", "interval", s.cfg.Interval.String(), "tasks", len(s.tasks))
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		s.SweepOnce(ctx)
		select {
		case <-ctx.Done():
			s.logger.Info("housekeeping stopped")
			return
		case <-ticker.C:
		}
	}
}

// SweepOnce runs every task once and returns the rows each changed. A
// failing task is logged and does not stop the others.
func (s *Sweeper) SweepOnce(ctx context.Context) map[string]int64 {
	out := make(map[string]int64, len(s.tasks))
	for _, t := range s.tasks {
		if ctx.Err() != nil {
			return out
		}
		n, err := t.Sweep(ctx)
		if err != nil {
			s.logger.Error("housekeeping task failed", "task", t.Name(), "error", err)
			s.metrics.recordFailure(t.Name())
			continue
		}
		out[t.Name()] = n
		s.metrics.recordRows(t.Name(), n)
		if n > 0 {
			s.logger.Info("housekeeping task done", "task", t.Name(), "rows", n)
		}
	}
	return out
}

// Metrics counts housekeeping work.
type Metrics struct {
	rows     *prometheus.CounterVec
	failures *prometheus.CounterVec
}

// NewMetrics creates housekeeping metrics and registers them with registry.
func NewMetrics(registry prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gating_housekeeping_rows_total",
			Help: "Rows removed or reset by housekeeping, by task",
		}, []string{"task"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gating_housekeeping_failures_total",
			Help: "Failed housekeeping task runs, by task",
		}, []string{"task"}),
	}
	if registry != nil {
		for _, c := range []prometheus.Collector{m.rows, m.failures} {
			if err := registry.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *Metrics) recordRows(task string, n int64) {
	if m == nil {
		return
	}
	m.rows.WithLabelValues(task).Add(float64(n))
}

func (m *Metrics) recordFailure(task string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(task).Inc()
}
