// Package main is the gating server: the lock registry, verification and
// access decision API backed by a relational database and two chain RPC
// endpoints.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"

	"github.com/lockgate/lockgate/pkg/audit"
	"github.com/lockgate/lockgate/pkg/authz"
	"github.com/lockgate/lockgate/pkg/cache"
	"github.com/lockgate/lockgate/pkg/chain"
	"github.com/lockgate/lockgate/pkg/community"
	"github.com/lockgate/lockgate/pkg/config"
	"github.com/lockgate/lockgate/pkg/gating"
	"github.com/lockgate/lockgate/pkg/ha"
	"github.com/lockgate/lockgate/pkg/housekeeping"
	"github.com/lockgate/lockgate/pkg/locks"
	"github.com/lockgate/lockgate/pkg/policy"
	"github.com/lockgate/lockgate/pkg/preverify"
	"github.com/lockgate/lockgate/pkg/ratelimit"
	"github.com/lockgate/lockgate/pkg/verifier"
	"github.com/lockgate/lockgate/pkg/verifier/evm"
	"github.com/lockgate/lockgate/pkg/verifier/universalprofile"
)

func main() {
	config.RegisterFlags(pflag.CommandLine)
	pflag.CommandLine.AddGoFlagSet(flag.CommandLine)
	pflag.Parse()

	// glog is kept for fatal startup errors.
	_ = flag.Set("logtostderr", "true")

	v, err := config.New(pflag.CommandLine)
	if err != nil {
		glog.Fatalf("Failed to set up configuration: %v", err)
	}
	cfg, err := config.Load(v)
	if err != nil {
		glog.Fatalf("Failed to load configuration: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, v, cfg, logger); err != nil {
		glog.Fatalf("gating server: %v", err)
	}
}

func run(ctx context.Context, v *viper.Viper, cfg *config.Server, logger *slog.Logger) error {
	logger.Info("starting gating server",
		"listen", cfg.Listen,
		"database", cfg.DatabaseType,
		"config", cfg.ConfigFile,
	)

	authzCfg := authz.ConfigFromEnv()
	haCfg := ha.ConfigFromEnv()

	var kube kubernetes.Interface
	if authzCfg.Mode == authz.ModeSAR || haCfg.LeaderElectionEnabled {
		client, err := newKubeClient()
		if err != nil {
			return err
		}
		kube = client
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}

	registry, closeChains, err := newVerifiers(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeChains()

	lockStore := locks.NewStore(db, registry)
	grants := preverify.NewStore(db)
	auditStore := audit.NewStore(db)

	if err := ha.Migrate(ctx, ha.NewMigrationLocker(db, haCfg), lockStore, grants, auditStore); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	logger.Info("database migrated")

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := gating.NewMetrics(promRegistry)
	if err != nil {
		return fmt.Errorf("register gating metrics: %w", err)
	}

	limiter, closeLimiter, err := ratelimit.New(ratelimit.ConfigFromEnv(), logger)
	if err != nil {
		return fmt.Errorf("create rate limiter: %w", err)
	}
	defer func() { _ = closeLimiter() }()

	auditCfg := audit.AuditConfigFromEnv()
	recorder := audit.NewRecorder(auditStore, auditCfg, logger)

	durations := policy.New(&cfg.Policy)
	config.WatchPolicy(v, durations, logger)

	svc, err := gating.NewService(gating.Deps{
		Locks:    lockStore,
		Registry: registry,
		Grants:   grants,
		Policy:   durations,
		Limiter:  limiter,
		Audit:    recorder,
		Metrics:  metrics,
	}, gating.ConfigFromEnv(), logger)
	if err != nil {
		return fmt.Errorf("create gating service: %w", err)
	}

	var sar authz.Authorizer
	if authzCfg.Mode == authz.ModeSAR {
		sar = authz.NewSARAuthorizer(kube)
	}
	authorizer, err := authz.New(authzCfg, sar)
	if err != nil {
		return fmt.Errorf("create authorizer: %w", err)
	}
	var jwt *authz.JWTExtractor
	if authzCfg.JWTSecret != "" {
		jwt = authz.NewJWTExtractor(authzCfg.JWTSecret, authzCfg.JWTIssuer)
	}
	logger.Info("authorization configured", "mode", authzCfg.Mode, "jwt", jwt != nil)

	router := newRouter(routerDeps{
		DB:            db,
		Service:       svc,
		Locks:         lockStore,
		AuditStore:    auditStore,
		AuditConfig:   auditCfg,
		Recorder:      recorder,
		Authorizer:    authorizer,
		JWT:           jwt,
		Cache:         cache.NewCacheManager(cache.CacheConfigFromEnv()),
		CommunityMode: community.ModeFromEnv(),
		CORSOrigins:   cfg.CORSOrigins,
		Gatherer:      promRegistry,
	})

	if err := startHousekeeping(ctx, grants, auditStore, auditCfg, haCfg, kube, promRegistry, logger); err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              cfg.Listen,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	logger.Info("gating server ready", "listen", cfg.Listen, "categories", len(svc.Categories()))

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}
	logger.Info("gating server stopped")
	return nil
}

// newVerifiers dials both chains and registers the category verifiers.
func newVerifiers(ctx context.Context, cfg *config.Server, logger *slog.Logger) (*verifier.Registry, func(), error) {
	eth, closeEth, err := chain.Dial(ctx, chain.Config{
		Name:        "ethereum",
		RPCURL:      cfg.EthereumRPCURL,
		CallTimeout: cfg.RPCCallTimeout,
		ENSRegistry: chain.MainnetENSRegistry,
	}, logger)
	if err != nil {
		return nil, nil, err
	}
	lukso, closeLukso, err := chain.Dial(ctx, chain.Config{
		Name:        "lukso",
		RPCURL:      cfg.LuksoRPCURL,
		CallTimeout: cfg.RPCCallTimeout,
	}, logger)
	if err != nil {
		closeEth()
		return nil, nil, err
	}
	closeAll := func() {
		closeEth()
		closeLukso()
	}

	efp := evm.NewHTTPEFPClient(evm.EFPConfig{BaseURL: cfg.EFPBaseURL}, nil, logger)
	registry, err := verifier.NewRegistry(
		evm.New(chain.NewCachedReader(eth, cfg.ChainCacheTTL), efp, logger),
		universalprofile.New(chain.NewCachedReader(lukso, cfg.ChainCacheTTL), universalprofile.Config{}, logger),
	)
	if err != nil {
		closeAll()
		return nil, nil, fmt.Errorf("register verifiers: %w", err)
	}
	return registry, closeAll, nil
}

// startHousekeeping runs the sweeper in the background, on the elected
// leader only when leader election is enabled.
func startHousekeeping(
	ctx context.Context,
	grants *preverify.Store,
	auditStore *audit.Store,
	auditCfg *audit.AuditConfig,
	haCfg *ha.Config,
	kube kubernetes.Interface,
	registry prometheus.Registerer,
	logger *slog.Logger,
) error {
	hkCfg := housekeeping.ConfigFromEnv()
	if !hkCfg.Enabled {
		logger.Info("housekeeping disabled")
		return nil
	}
	metrics, err := housekeeping.NewMetrics(registry)
	if err != nil {
		return fmt.Errorf("register housekeeping metrics: %w", err)
	}
	tasks := housekeeping.GrantTasks(grants, hkCfg)
	tasks = append(tasks, audit.NewRetention(auditStore, auditCfg.RetentionDays))
	sweeper := housekeeping.NewSweeper(hkCfg, metrics, logger.With("component", "housekeeping"), tasks...)

	runner, err := ha.NewRunner(haCfg, kube, logger)
	if err != nil {
		return fmt.Errorf("create leader election runner: %w", err)
	}
	go runner.Run(ctx, sweeper.Run)
	return nil
}

func newKubeClient() (kubernetes.Interface, error) {
	restCfg, err := rest.InClusterConfig()
	if err != nil {
		return nil, fmt.Errorf("create in-cluster kubernetes config (is the server running in a pod?): %w", err)
	}
	client, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		return nil, fmt.Errorf("create kubernetes clientset: %w", err)
	}
	return client, nil
}
