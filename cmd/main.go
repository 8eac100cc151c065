package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/urfave/cli/v2"

	"github.com/okian/rankboard/internal/adapters/http/api"
	"github.com/okian/rankboard/internal/adapters/http/swagger"
	"github.com/okian/rankboard/internal/adapters/repository"
	service "github.com/okian/rankboard/internal/app"
	"github.com/okian/rankboard/internal/config"
	"github.com/okian/rankboard/internal/domain/keys"
	"github.com/okian/rankboard/internal/loadcheck"
	"github.com/okian/rankboard/pkg/logger"
	"github.com/okian/rankboard/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout            = 10 * time.Second
	writeTimeout           = 10 * time.Second
	idleTimeout            = 60 * time.Second
	readHeaderTimeout      = 5 * time.Second
	shutdownTimeout        = 30 * time.Second
	systemMetricsInterval  = 10 * time.Second
	serviceMetricsInterval = 5 * time.Second
)

// Load check defaults.
const (
	defaultCheckLeaderboards = 4
	defaultCheckMembers      = 200
	defaultCheckOps          = 10000
	defaultCheckPageSize     = 100
	defaultCheckTimeout      = 30 * time.Second
	defaultCheckDeadline     = 10 * time.Minute
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		stop()
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "rankboard",
		Usage: "dense-rank leaderboards on Redis",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "path to a YAML config file",
				EnvVars: []string{config.FileEnv},
			},
		},
		Before: func(c *cli.Context) error {
			if path := c.String("config"); path != "" {
				return os.Setenv(config.FileEnv, path)
			}
			return nil
		},
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP API and the background reconciliation loop",
				Action: serve,
			},
			{
				Name:   "fix-points",
				Usage:  "run one reconciliation pass over every leaderboard and exit",
				Action: fixPoints,
			},
			{
				Name:  "loadcheck",
				Usage: "drive a running server with concurrent increments and verify dense ranks",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "url", Value: "http://localhost:12345", Usage: "base URL of the service"},
					&cli.IntFlag{Name: "leaderboards", Value: defaultCheckLeaderboards, Usage: "leaderboards to spread ops over"},
					&cli.IntFlag{Name: "members", Value: defaultCheckMembers, Usage: "distinct members"},
					&cli.IntFlag{Name: "ops", Value: defaultCheckOps, Usage: "increment patches to submit"},
					&cli.IntFlag{Name: "workers", Value: runtime.NumCPU() * 2, Usage: "concurrent submitters"},
					&cli.IntFlag{Name: "page-size", Value: defaultCheckPageSize, Usage: "rows per leaderboard page"},
					&cli.DurationFlag{Name: "timeout", Value: defaultCheckTimeout, Usage: "HTTP request timeout"},
					&cli.BoolFlag{Name: "verbose", Usage: "log progress"},
				},
				Action: runLoadcheck,
			},
		},
	}
}

// setup loads configuration and initializes the global metrics and logger
// from it.
func setup(ctx context.Context) (*config.Config, logger.Logger, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, nil, err
	}
	metrics.Configure(metrics.WithConstLabels(map[string]string{"namespace": cfg.Namespace}))
	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		return nil, nil, err
	}
	log := logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	return cfg, log, nil
}

// newService dials Redis and builds the engine. The returned close func
// releases the client.
func newService(ctx context.Context, cfg *config.Config, log logger.Logger) (*service.Service, func(), error) {
	client, err := repository.Dial(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, nil, err
	}
	store := repository.NewRedisStore(client, keys.NewScheme(cfg.Namespace))

	svc := service.New(store,
		service.WithLogger(log.Named("service")),
		service.WithWorkerCount(cfg.ReconcileWorkers),
		service.WithQueueSize(cfg.ReconcileQueueSize),
		service.WithReconcileInterval(cfg.ReconcileInterval, cfg.ReconcileJitter),
		service.WithRepairMissing(cfg.ReconcileRepairMissing),
		service.WithMaxPageSize(cfg.MaxPageSize),
		service.WithOrphanRetry(cfg.OrphanMaxAttempts, cfg.OrphanBackoffBase, cfg.OrphanBackoffMax),
	)
	return svc, func() { _ = client.Close() }, nil
}

// newHandler builds the router with the API and docs routes.
func newHandler(ctx context.Context, cfg *config.Config, svc api.Dependencies, log logger.Logger) http.Handler {
	r := chi.NewRouter()
	api.NewServer(svc,
		api.WithLogger(log.Named("api")),
		api.WithMetrics(cfg.MetricsEnabled),
		api.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
	).Register(ctx, r)
	swagger.Register(ctx, r)
	return r
}

func serve(c *cli.Context) error {
	ctx := c.Context
	cfg, log, err := setup(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := logger.Sync(); err != nil {
			os.Stderr.WriteString("failed to sync logger: " + err.Error() + "\n")
		}
	}()

	svc, closeStore, err := newService(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := svc.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := svc.Stop(stopCtx); err != nil {
			log.Error(stopCtx, "service stop failed", logger.Error(err))
		}
	}()

	go startSystemMetricsUpdater(ctx)
	go startServiceMetricsUpdater(ctx, svc)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newHandler(ctx, cfg, svc, log),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return err
		}
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
	return nil
}

func fixPoints(c *cli.Context) error {
	ctx := c.Context
	cfg, log, err := setup(ctx)
	if err != nil {
		return err
	}

	svc, closeStore, err := newService(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	report, err := svc.ReconcileOnce(ctx)
	if err != nil {
		return err
	}
	log.Info(ctx, "fix-points finished",
		logger.Int("leaderboards", report.Leaderboards),
		logger.Int("removed", report.Removed),
		logger.Int("repaired", report.Repaired),
		logger.Int("failed", report.Failed))
	return nil
}

func runLoadcheck(c *cli.Context) error {
	if err := logger.Init(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Context, defaultCheckDeadline)
	defer cancel()

	_, err := loadcheck.Run(ctx, &loadcheck.Config{
		BaseURL:      c.String("url"),
		Leaderboards: c.Int("leaderboards"),
		Members:      c.Int("members"),
		Ops:          c.Int("ops"),
		Workers:      c.Int("workers"),
		PageSize:     c.Int("page-size"),
		Timeout:      c.Duration("timeout"),
		Verbose:      c.Bool("verbose"),
	}, logger.Named("loadcheck"))
	return err
}

// startSystemMetricsUpdater periodically publishes memory and goroutine gauges.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater refreshes the sweep queue gauge from GetStats.
func startServiceMetricsUpdater(ctx context.Context, svc *service.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(svc)
		}
	}
}

func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
}

func updateServiceMetrics(svc *service.Service) {
	stats := svc.GetStats()
	if queueLen, ok := stats["queueLength"].(int); ok {
		metrics.UpdateQueueSize(queueLen)
	}
}
