package ha

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/leaderelection"
	"k8s.io/client-go/tools/leaderelection/resourcelock"
)

// Runner runs singleton background work, such as housekeeping, on the
// replica entitled to it.
type Runner interface {
	// Run blocks until ctx is done. work is started with a context that is
	// cancelled when this replica stops being entitled to run it.
	Run(ctx context.Context, work func(ctx context.Context))
}

// Standalone is the Runner of a single-replica deployment: work always
// runs.
type Standalone struct{}

func (Standalone) Run(ctx context.Context, work func(ctx context.Context)) {
	work(ctx)
}

// NewRunner returns a LeaderElector when leader election is enabled and
// Standalone otherwise.
func NewRunner(cfg *Config, client kubernetes.Interface, logger *slog.Logger) (Runner, error) {
	if cfg == nil || !cfg.LeaderElectionEnabled {
		return Standalone{}, nil
	}
	return NewLeaderElector(cfg, client, logger)
}

// LeaderElector runs work only while this replica holds the configured
// Kubernetes Lease, and campaigns again after losing it.
type LeaderElector struct {
	cfg    Config
	client kubernetes.Interface
	logger *slog.Logger

	mu       sync.RWMutex
	isLeader bool
}

// NewLeaderElector validates cfg and returns an elector using client.
func NewLeaderElector(cfg *Config, client kubernetes.Interface, logger *slog.Logger) (*LeaderElector, error) {
	if client == nil {
		return nil, fmt.Errorf("leader election requires a kubernetes client")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LeaderElector{cfg: *cfg, client: client, logger: logger.With("identity", cfg.Identity)}, nil
}

// IsLeader reports whether this replica currently holds the lease.
func (le *LeaderElector) IsLeader() bool {
	le.mu.RLock()
	defer le.mu.RUnlock()
	return le.isLeader
}

func (le *LeaderElector) setLeader(v bool) {
	le.mu.Lock()
	le.isLeader = v
	le.mu.Unlock()
}

func (le *LeaderElector) Run(ctx context.Context, work func(ctx context.Context)) {
	le.logger.Info("starting leader election",
		"lease", le.cfg.LeaseName,
		"namespace", le.cfg.LeaseNamespace,
		"leaseDuration", le.cfg.LeaseDuration,
		"renewDeadline", le.cfg.RenewDeadline,
		"retryPeriod", le.cfg.RetryPeriod,
	)
	for ctx.Err() == nil {
		if err := le.campaign(ctx, work); err != nil {
			le.logger.Error("leader election failed", "error", err)
		}
		select {
		case <-ctx.Done():
		case <-time.After(le.cfg.RetryPeriod):
		}
	}
}

// campaign competes for the lease once and returns when leadership is lost
// or ctx is done.
func (le *LeaderElector) campaign(ctx context.Context, work func(ctx context.Context)) error {
	lock := &resourcelock.LeaseLock{
		LeaseMeta: metav1.ObjectMeta{
			Name:      le.cfg.LeaseName,
			Namespace: le.cfg.LeaseNamespace,
		},
		Client:     le.client.CoordinationV1(),
		LockConfig: resourcelock.ResourceLockConfig{Identity: le.cfg.Identity},
	}
	elector, err := leaderelection.NewLeaderElector(leaderelection.LeaderElectionConfig{
		Lock:            lock,
		LeaseDuration:   le.cfg.LeaseDuration,
		RenewDeadline:   le.cfg.RenewDeadline,
		RetryPeriod:     le.cfg.RetryPeriod,
		ReleaseOnCancel: true,
		Name:            le.cfg.LeaseName,
		Callbacks: leaderelection.LeaderCallbacks{
			OnStartedLeading: func(ctx context.Context) {
				le.setLeader(true)
				le.logger.Info("elected as leader")
				work(ctx)
			},
			OnStoppedLeading: func() {
				le.setLeader(false)
				le.logger.Info("lost leadership")
			},
			OnNewLeader: func(identity string) {
				if identity != le.cfg.Identity {
					le.logger.Info("new leader elected", "leader", identity)
				}
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create leader elector: %w", err)
	}
	elector.Run(ctx)
	return nil
}
