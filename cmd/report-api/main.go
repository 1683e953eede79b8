package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"spese-report/internal/backend"
	"spese-report/internal/cache"
	"spese-report/internal/cli"
	"spese-report/internal/config"
	apphttp "spese-report/internal/http"
	"spese-report/internal/log"
	"spese-report/internal/period"
	"spese-report/internal/report"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.MustLoadConfig(os.Getenv("REPORT_CONFIG_FILE"))
	logger := cli.SetupLogger(cfg, log.ComponentApp)

	ctx := context.Background()
	store, err := backend.Open(ctx, backend.FromAppConfig(cfg), logger)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer store.Close()

	reportCache, closeCache := openCache(ctx, cfg, logger)

	reports := report.NewService(store, report.Config{
		Resolver: period.NewResolver(cfg.WeekStart),
		Logger:   logger,
	})

	srv := apphttp.NewServer(apphttp.Options{
		Addr:           ":" + cfg.Port,
		Reports:        reports,
		Notifications:  store,
		Cache:          reportCache,
		Ready:          store.Ping,
		Logger:         logger,
		Debug:          cfg.Debug,
		CORSOrigins:    cfg.CORSOrigins,
		RateLimitRPM:   cfg.RateLimitRPM,
		TrustedProxies: cfg.TrustedProxies,
	})

	shutdownCtx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		closeCache()
	})

	logger.Info("Starting report API",
		log.FieldOperation, log.OpStartup,
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"week_start", cfg.WeekStart.String())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(shutdownCtx, done)
	logger.Info("Server stopped gracefully")
}

// openCache prefers Redis when REDIS_URL is set and falls back to an
// in-process LRU swept by a cache.Manager.
func openCache(ctx context.Context, cfg *config.Config, logger *log.Logger) (cache.Store, func()) {
	if cfg.ReportCacheTTL == 0 {
		return nil, func() {}
	}
	if cfg.RedisURL != "" {
		rs, err := cache.NewRedisStore(ctx, cfg.RedisURL, cfg.ReportCacheTTL)
		if err == nil {
			logger.Info("Report cache backed by Redis", "ttl", cfg.ReportCacheTTL.String())
			return rs, func() { _ = rs.Close() }
		}
		logger.Warn("Redis unavailable, using in-process report cache", log.FieldError, err)
	}

	lru := cache.NewLRUStore(cfg.ReportCacheSize, cfg.ReportCacheTTL)
	manager := cache.NewManager(logger)
	manager.Register(lru)
	manager.StartCleanup(time.Minute)
	logger.Info("Report cache in process", "size", cfg.ReportCacheSize, "ttl", cfg.ReportCacheTTL.String())
	return lru, manager.Stop
}
