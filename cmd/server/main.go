package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"chartbot/internal/api"
	"chartbot/internal/cache"
	"chartbot/internal/config"
	"chartbot/internal/llm"
	"chartbot/internal/observability"
	"chartbot/internal/service"
	"chartbot/internal/state"
	"chartbot/internal/storage"
)

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if len(os.Args) > 2 && os.Args[1] == "--config" {
		cfgPath = os.Args[2]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
	})

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("Server failed")
	}
	logger.Info().Msg("Server stopped")
}

func run(cfg *config.Config, logger *observability.Logger) error {
	ctx := context.Background()

	// Initialize Services
	llmClient := llm.NewClient(llm.Config{
		BaseURL: cfg.Predictor.BaseURL,
		Path:    cfg.Predictor.Path,
		Timeout: cfg.Predictor.Timeout,
		Retry: llm.RetryConfig{
			MaxRetries:     cfg.Predictor.MaxRetries,
			InitialBackoff: cfg.Predictor.InitialBackoff,
			MaxBackoff:     cfg.Predictor.MaxBackoff,
		},
	})

	predictor, closeCache, err := buildPredictor(cfg, llmClient, logger)
	if err != nil {
		return err
	}
	defer closeCache()

	var (
		recorder service.HistoryRecorder
		lister   api.HistoryLister
	)
	if cfg.History.Path != "" {
		history, err := storage.OpenHistory(ctx, cfg.History.Path)
		if err != nil {
			return err
		}
		defer history.Close()
		recorder, lister = history, history
	}

	policy, err := service.ParseNaNPolicy(cfg.Matching.NaNPolicy)
	if err != nil {
		return err
	}
	pipeline := service.NewPipeline(
		predictor,
		service.NewIntentResolver(cfg.Matching.PlotTypes, cfg.Matching.MaxDistance),
		service.NewChartSpecBuilder(policy),
		recorder,
		logger,
	)

	sessions := state.NewStore()
	handler := api.NewHandler(pipeline, sessions, lister, llmClient, connectPostgres, logger)
	handler.MaxFileSize = cfg.Server.MaxUploadBytes
	defer handler.Close()

	// Router Setup
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", api.SessionHeader},
		ExposedHeaders:   []string{api.SessionHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("chartbot is running"))
	})
	handler.RegisterRoutes(r)

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	stopPrune := pruneSessions(sessions, cfg.Server.SessionIdle, logger)
	defer stopPrune()

	logger.Info().
		Str("addr", srv.Addr).
		Str("predictor", cfg.Predictor.BaseURL+cfg.Predictor.Path).
		Str("cache", cfg.Cache.Driver).
		Str("history", cfg.History.Path).
		Strs("allowed_origins", cfg.Server.AllowedOrigins).
		Msg("Starting chartbot")

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case sig := <-shutdown:
		logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.GracefulShutdown)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Graceful shutdown failed")
		return srv.Close()
	}
	return nil
}

// buildPredictor wraps the predictor client in the configured cache.
func buildPredictor(cfg *config.Config, client *llm.Client, logger *observability.Logger) (service.Predictor, func(), error) {
	var store cache.Client
	switch cfg.Cache.Driver {
	case "redis":
		rc, err := cache.NewRedisClient(cache.RedisConfig{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
			PoolSize: cfg.Cache.Redis.PoolSize,
		})
		if err != nil {
			return nil, nil, err
		}
		store = rc
	case "memory":
		store = cache.NewMemoryClient(cfg.Cache.MaxEntries)
	default:
		return client, func() {}, nil
	}

	closeFn := func() {
		if err := store.Close(); err != nil {
			logger.Warn().Err(err).Msg("closing prediction cache")
		}
	}
	return cache.NewCachedPredictor(client, store, cfg.Cache.TTL, logger), closeFn, nil
}

func connectPostgres(ctx context.Context, cfg storage.DataSourceConfig) (storage.DataSource, error) {
	return storage.ConnectPostgres(ctx, cfg)
}

// pruneSessions drops idle sessions in the background until stopped.
func pruneSessions(sessions *state.Store, maxIdle time.Duration, logger *observability.Logger) func() {
	if maxIdle <= 0 {
		return func() {}
	}
	ticker := time.NewTicker(maxIdle / 2)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ticker.C:
				if n := sessions.Prune(maxIdle); n > 0 {
					logger.Debug().Int("pruned", n).Int("remaining", sessions.Len()).Msg("idle sessions dropped")
				}
			case <-done:
				return
			}
		}
	}()

	return func() {
		ticker.Stop()
		close(done)
	}
}
