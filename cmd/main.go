package main

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/okian/boostcalc/internal/adapters/http/api"
	"github.com/okian/boostcalc/internal/adapters/http/swagger"
	"github.com/okian/boostcalc/internal/adapters/profile"
	"github.com/okian/boostcalc/internal/adapters/registry"
	"github.com/okian/boostcalc/internal/adapters/repository"
	service "github.com/okian/boostcalc/internal/app"
	"github.com/okian/boostcalc/internal/config"
	"github.com/okian/boostcalc/internal/domain/cohort"
	"github.com/okian/boostcalc/internal/domain/scoring"
	"github.com/okian/boostcalc/pkg/logger"
	"github.com/okian/boostcalc/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 5 * time.Minute
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	systemMetricsInterval     = 10 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		os.Stderr.WriteString("failed to read .env: " + err.Error() + "\n")
	}

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		// Use stderr since logger isn't configured yet
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := logger.Init(logger.WithFormat(cfg.LogFormat), logger.WithLevel(cfg.LogLevel)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Get()

	a, err := newApplication(ctx, cfg, log)
	if err != nil {
		log.Error(ctx, "failed to start", logger.Error(err))
		os.Exit(1)
	}
	defer a.close()

	go startSystemMetricsUpdater(ctx)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           a.handler,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		log.Info(ctx, "starting HTTP server",
			logger.String("addr", cfg.Addr),
			logger.String("environment", cfg.Environment),
			logger.Int("participants", a.registry.Len()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "HTTP server failed", logger.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	log.Info(ctx, "server stopped")
}

// application holds the wired components behind the HTTP handler.
type application struct {
	registry *registry.Registry
	watcher  *registry.Watcher
	fetcher  *profile.HTTPFetcher
	service  *service.Service
	handler  http.Handler
}

func newApplication(ctx context.Context, cfg *config.Config, log logger.Logger) (*application, error) {
	metrics.Configure(
		metrics.WithNamespace(cfg.MetricsNamespace),
		metrics.WithSubsystem(cfg.MetricsSubsystem),
		metrics.WithConstLabels(map[string]string{"environment": cfg.Environment}),
	)

	store := repository.NewFileStore(cfg.RegistryPath)
	reg := registry.New(store, registry.WithLogger(log.Named("registry")))
	reg.Load(ctx)

	a := &application{registry: reg}
	if cfg.RegistryWatch {
		w, err := registry.NewWatcher(cfg.RegistryPath, reg, registry.DefaultDebounce)
		if err != nil {
			return nil, err
		}
		if err := w.Start(ctx); err != nil {
			log.Warn(ctx, "registry watch disabled", logger.String("path", cfg.RegistryPath), logger.Error(err))
			_ = w.Stop()
		} else {
			a.watcher = w
		}
	}

	a.fetcher = profile.NewHTTPFetcher(
		profile.WithTimeout(cfg.FetchTimeout()),
		profile.WithRateLimit(cfg.FetchRatePerSec, cfg.FetchBurst),
		profile.WithCache(cfg.FetchCacheSize, cfg.FetchCacheTTL()),
		profile.WithUserAgent(cfg.UserAgent),
		profile.WithLogger(log.Named("profile-fetcher")),
	)
	extractor := profile.NewHTMLExtractor(profile.WithGameKeywords(cfg.GameKeywords...))

	a.service = service.New(reg, a.fetcher, extractor,
		service.WithScorer(scoring.NewScorer(scoring.WithPolicy(cfg.Policy()))),
		service.WithAggregator(cohort.NewAggregator(
			cohort.WithBaseline(cfg.CompletionBaseline),
			cohort.WithLeaderboardSize(cfg.LeaderboardSize),
		)),
		service.WithWorkerCount(cfg.WorkerCount),
		service.WithUnitTimeout(cfg.UnitTimeout()),
		service.WithTestModeSize(cfg.TestModeSize),
		service.WithLogger(log.Named("service")),
	)

	if cfg.AdminToken == "" {
		log.Warn(ctx, "admin_token not set, /api/admin routes are disabled")
	}
	router := api.NewServer(a.service,
		api.WithEnvironment(cfg.Environment),
		api.WithLogger(log.Named("api")),
		api.WithAdminToken(cfg.AdminToken),
	).Router()
	swagger.Register(router)
	a.handler = router
	return a, nil
}

func (a *application) close() {
	if a.watcher != nil {
		_ = a.watcher.Stop()
	}
	a.fetcher.Purge()
}

// startSystemMetricsUpdater periodically publishes runtime metrics.
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

func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}
