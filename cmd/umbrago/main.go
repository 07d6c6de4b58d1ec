package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/umbra/umbrago/internal/api"
	"github.com/umbra/umbrago/internal/auth"
	"github.com/umbra/umbrago/internal/catalog"
	"github.com/umbra/umbrago/internal/circumstances"
	"github.com/umbra/umbrago/internal/metrics"
	"github.com/umbra/umbrago/internal/overlay"
	"github.com/umbra/umbrago/internal/stream"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	addr := os.Getenv("UMBRAGO_HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	authCfg, err := loadAuthConfig(logger)
	if err != nil {
		logger.Error("invalid auth configuration", "error", err)
		os.Exit(1)
	}

	catalogCfg := loadCatalogConfig(logger)
	store := catalog.NewStore(catalogCfg.SnapshotPath, logger)

	// Attempt to load catalog data on startup: the durable snapshot
	// first, then an explicitly configured seed file.
	restored, err := store.Restore()
	if err != nil {
		logger.Warn("catalog snapshot restore failed", "error", err)
	}
	if restored {
		metrics.SetCatalogRecords(len(store.Get().Eclipses))
	} else if seedPath := os.Getenv("UMBRAGO_CATALOG_PATH"); seedPath != "" {
		data, err := os.ReadFile(seedPath)
		if err != nil {
			logger.Error("reading seed catalog", "path", seedPath, "error", err)
			os.Exit(1)
		}
		loadCatalog(logger, store, data, seedPath, time.Now())
	} else {
		logger.Info("no catalog snapshot found, starting without catalog data")
	}

	solverCfg := loadSolverConfig(logger)
	overlayCfg := loadOverlayConfig(logger)
	overlays := overlay.NewCache(overlayCfg, store, logger)

	streamCfg := loadStreamConfig(logger)
	streamHandler := stream.NewHandler(store, overlayCfg, streamCfg, logger)

	srv := api.NewServer(addr, logger, authCfg, store, catalogCfg, solverCfg, overlays, streamHandler)

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start overlay cache background worker.
	go overlays.Start(ctx)

	// Background goroutine to update the catalog age gauge.
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				age := store.AgeSeconds()
				if age >= 0 {
					metrics.SetCatalogAge(age)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		logger.Info("starting server", "addr", addr, "auth_enabled", authCfg.Enabled, "catalog_fetch_enabled", catalogCfg.EnableFetch)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server listen error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.HTTPServer().Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// loadCatalog parses raw catalog JSON into the store.
func loadCatalog(logger *slog.Logger, store *catalog.Store, data []byte, source string, ts time.Time) {
	records, err := catalog.Parse(bytes.NewReader(data), logger)
	if err != nil {
		logger.Warn("failed to parse catalog data", "source", source, "error", err)
		return
	}
	if len(records) == 0 {
		logger.Warn("catalog data contains no valid records", "source", source)
		return
	}

	store.Set(catalog.NewDataset(source, ts, records))
	metrics.SetCatalogRecords(len(records))
	logger.Info("loaded eclipse catalog",
		"count", len(records),
		"source", source,
		"loaded_at", ts.Format(time.RFC3339),
	)
}

func loadAuthConfig(logger *slog.Logger) (auth.Config, error) {
	cfg := auth.Config{}

	enabledStr := os.Getenv("UMBRAGO_AUTH_ENABLED")
	if enabledStr != "" {
		enabled, err := strconv.ParseBool(enabledStr)
		if err != nil {
			return cfg, errors.New("UMBRAGO_AUTH_ENABLED must be a boolean value (true/false/1/0)")
		}
		cfg.Enabled = enabled
	}

	if cfg.Enabled {
		cfg.Token = os.Getenv("UMBRAGO_AUTH_TOKEN")
		if cfg.Token == "" {
			return cfg, errors.New("UMBRAGO_AUTH_TOKEN is required when auth is enabled")
		}
		logger.Info("auth enabled")
	}

	return cfg, nil
}

func loadCatalogConfig(logger *slog.Logger) api.CatalogConfig {
	cfg := api.CatalogConfig{
		EnableFetch:  false,
		SnapshotPath: "/tmp/umbrago/catalog.json",
	}

	if v := os.Getenv("UMBRAGO_CATALOG_URL"); v != "" {
		cfg.SourceURL = v
		cfg.EnableFetch = true
	}

	if v := os.Getenv("UMBRAGO_ENABLE_CATALOG_FETCH"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			logger.Warn("invalid UMBRAGO_ENABLE_CATALOG_FETCH value, defaulting to false", "value", v)
		} else {
			cfg.EnableFetch = enabled
		}
	}

	if v := os.Getenv("UMBRAGO_CATALOG_SNAPSHOT"); v != "" {
		cfg.SnapshotPath = v
	}

	logger.Info("catalog config",
		"source_url", cfg.SourceURL,
		"fetch_enabled", cfg.EnableFetch,
		"snapshot_path", cfg.SnapshotPath,
	)

	return cfg
}

func loadSolverConfig(logger *slog.Logger) circumstances.Config {
	cfg := circumstances.DefaultConfig()

	if v := os.Getenv("UMBRAGO_SOLVER_WINDOW_HOURS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			logger.Warn("invalid UMBRAGO_SOLVER_WINDOW_HOURS value, using default", "value", v, "default", cfg.WindowHours)
		} else {
			cfg.WindowHours = f
		}
	}

	if v := os.Getenv("UMBRAGO_SOLVER_COARSE_STEP_SECONDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid UMBRAGO_SOLVER_COARSE_STEP_SECONDS value, using default", "value", v, "default", 60)
		} else {
			cfg.CoarseStepHours = float64(n) / 3600
		}
	}

	if v := os.Getenv("UMBRAGO_SOLVER_FINE_STEP_SECONDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid UMBRAGO_SOLVER_FINE_STEP_SECONDS value, using default", "value", v, "default", 6)
		} else {
			cfg.FineStepHours = float64(n) / 3600
		}
	}

	logger.Info("solver config",
		"window_hours", cfg.WindowHours,
		"coarse_step_hours", cfg.CoarseStepHours,
		"fine_step_hours", cfg.FineStepHours,
		"tol_hours", cfg.TolHours,
	)

	return cfg
}

func loadOverlayConfig(logger *slog.Logger) overlay.Config {
	cfg := overlay.DefaultConfig()

	if v := os.Getenv("UMBRAGO_OVERLAY_VISIBLE_STEP_MINUTES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid UMBRAGO_OVERLAY_VISIBLE_STEP_MINUTES value, using default", "value", v, "default", 6)
		} else {
			cfg.VisibleStepHours = float64(n) / 60
		}
	}

	if v := os.Getenv("UMBRAGO_OVERLAY_CENTRAL_STEP_MINUTES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid UMBRAGO_OVERLAY_CENTRAL_STEP_MINUTES value, using default", "value", v, "default", 3)
		} else {
			cfg.CentralStepHours = float64(n) / 60
		}
	}

	if v := os.Getenv("UMBRAGO_OVERLAY_BISECT_ITERATIONS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid UMBRAGO_OVERLAY_BISECT_ITERATIONS value, using default", "value", v, "default", cfg.BisectIterations)
		} else {
			cfg.BisectIterations = n
		}
	}

	logger.Info("overlay config",
		"visible_step_hours", cfg.VisibleStepHours,
		"central_step_hours", cfg.CentralStepHours,
		"visible_bearings", cfg.VisibleBearings,
		"central_bearings", cfg.CentralBearings,
		"bisect_iterations", cfg.BisectIterations,
	)

	return cfg
}

func loadStreamConfig(logger *slog.Logger) stream.Config {
	cfg := stream.Config{
		MaxConcurrentPerIP: 10,
		MaxConcurrentTotal: 256,
		KeepaliveInterval:  30 * time.Second,
	}

	if v := os.Getenv("UMBRAGO_STREAM_MAX_CONCURRENT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid UMBRAGO_STREAM_MAX_CONCURRENT value, using default", "value", v, "default", 10)
		} else {
			cfg.MaxConcurrentPerIP = n
		}
	}

	if v := os.Getenv("UMBRAGO_STREAM_MAX_TOTAL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid UMBRAGO_STREAM_MAX_TOTAL value, using default", "value", v, "default", 256)
		} else {
			cfg.MaxConcurrentTotal = n
		}
	}

	if v := os.Getenv("UMBRAGO_STREAM_KEEPALIVE_INTERVAL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid UMBRAGO_STREAM_KEEPALIVE_INTERVAL value, using default", "value", v, "default", 30)
		} else {
			cfg.KeepaliveInterval = time.Duration(n) * time.Second
		}
	}

	if v := os.Getenv("UMBRAGO_STREAM_TRUST_PROXY"); v != "" {
		trust, err := strconv.ParseBool(v)
		if err != nil {
			logger.Warn("invalid UMBRAGO_STREAM_TRUST_PROXY value, defaulting to false", "value", v)
		} else {
			cfg.TrustProxy = trust
		}
	}

	logger.Info("stream config",
		"max_concurrent_per_ip", cfg.MaxConcurrentPerIP,
		"max_concurrent_total", cfg.MaxConcurrentTotal,
		"keepalive_interval_seconds", cfg.KeepaliveInterval.Seconds(),
		"trust_proxy", cfg.TrustProxy,
	)

	return cfg
}
