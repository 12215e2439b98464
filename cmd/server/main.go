// Package main is the entrypoint for the LectureLab API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kiranshivaraju/lecturelab/internal/activity"
	"github.com/kiranshivaraju/lecturelab/internal/ai"
	"github.com/kiranshivaraju/lecturelab/internal/api"
	"github.com/kiranshivaraju/lecturelab/internal/api/handler"
	mw "github.com/kiranshivaraju/lecturelab/internal/api/middleware"
	"github.com/kiranshivaraju/lecturelab/internal/api/response"
	"github.com/kiranshivaraju/lecturelab/internal/artifact"
	"github.com/kiranshivaraju/lecturelab/internal/cache"
	"github.com/kiranshivaraju/lecturelab/internal/config"
	"github.com/kiranshivaraju/lecturelab/internal/metrics"
	"github.com/kiranshivaraju/lecturelab/internal/pipeline"
	"github.com/kiranshivaraju/lecturelab/internal/registry"
	"github.com/kiranshivaraju/lecturelab/internal/splitter"
	"github.com/kiranshivaraju/lecturelab/pkg/textproc"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, failing fast on invalid values
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env, "registry", cfg.Registry.Backend,
		"generation_candidates", len(cfg.AI.GenerationCandidates),
		"transcription_candidates", len(cfg.AI.TranscriptionCandidates))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Job registry, and the rate-limit counter when Redis is configured
	var (
		reg     registry.Registry
		counter mw.Counter
	)
	switch cfg.Registry.Backend {
	case "redis":
		redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("create redis cache: %w", err)
		}
		defer redisCache.Close()

		if err := redisCache.Ping(ctx); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		slog.Info("redis connected")
		reg = registry.NewRedis(redisCache, cfg.Registry.JobTTL)
		counter = redisCache
	default:
		reg = registry.NewMemory()
	}

	// 3. Artifact store; nothing on disk survives a restart
	store, err := artifact.New(cfg.Artifacts.Root)
	if err != nil {
		return fmt.Errorf("create artifact store: %w", err)
	}
	if err := store.Purge(); err != nil {
		slog.Warn("purging stale artifacts failed", "error", err)
	}

	// 4. AI backends, in candidate order
	generators, err := ai.NewGenerators(cfg.AI)
	if err != nil {
		return fmt.Errorf("create generation backends: %w", err)
	}
	transcribers, err := ai.NewTranscribers(ctx, cfg.AI)
	if err != nil {
		return fmt.Errorf("create transcription backends: %w", err)
	}
	defer func() {
		if err := errors.Join(ai.CloseAll(transcribers), ai.CloseAll(generators)); err != nil {
			slog.Warn("closing AI backends failed", "error", err)
		}
	}()
	slog.Info("AI backends initialized",
		"generation", cfg.AI.GenerationCandidates, "transcription", cfg.AI.TranscriptionCandidates)

	markers, err := textproc.NewMarkerRewriter(cfg.Pipeline.MarkerPattern, cfg.Pipeline.MarkerReplacement)
	if err != nil {
		return fmt.Errorf("question markers: %w", err)
	}

	// 5. Pipeline
	m := metrics.New()
	pacer := ai.NewPacer(cfg.AI.Pacing)
	retry := ai.DefaultRetryConfig()
	retry.MaxRetries = cfg.AI.MaxRetries
	retry.AttemptTimeout = cfg.AI.InferenceTimeout

	engine := pipeline.NewEngine(pipeline.Options{
		Registry: reg,
		Store:    store,
		Pacer:    pacer,
		Metrics:  m,
		Retry:    retry,
	})
	submitter := pipeline.NewSubmitter(engine, &pipeline.Services{
		Transcribers:  transcribers,
		Generators:    generators,
		ProbeTimeout:  cfg.AI.ProbeTimeout,
		AudioSplitter: splitter.NewAudioSplitter(cfg.Pipeline.FFmpegPath, cfg.Pipeline.ChunkLength, nil),
		Markers:       markers,
		Metrics:       m,
	})
	activities := activity.NewService(generators, cfg.AI.ProbeTimeout, pacer, retry, m)

	// 6. Build router with dependencies
	deps := api.Dependencies{
		RateLimit: mw.NewRateLimit(counter, cfg.Server.RateLimitPerMinute),
		Metrics:   m,

		HealthHandler: healthHandler(reg, store),
		SubmitJobHandler: handler.NewSubmitJobHandler(submitter, store, handler.JobsConfig{
			MaxUploadBytes:      int64(cfg.Server.MaxUploadMB) << 20,
			DefaultLanguage:     cfg.Pipeline.DefaultLanguage,
			DefaultEssayMaximum: cfg.Pipeline.DefaultEssayMaximum,
		}),
		GetJobHandler:     handler.NewGetJobHandler(reg),
		ActivitiesHandler: handler.NewActivitiesHandler(activities, cfg.Pipeline.DefaultLanguage),
	}

	router := api.NewRouter(deps)

	// 7. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout, then give running jobs the same budget
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	if !engine.WaitTimeout(cfg.Server.ShutdownTimeout) {
		slog.Warn("jobs still running at shutdown; their records stay non-terminal")
	}

	slog.Info("server stopped gracefully")
	return nil
}

// pinger is the part of the registry the health check needs.
type pinger interface {
	Ping(ctx context.Context) error
}

// healthHandler checks registry connectivity and the artifact root.
func healthHandler(reg pinger, store *artifact.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"registry":  "ok",
			"artifacts": "ok",
		}

		if err := reg.Ping(r.Context()); err != nil {
			checks["registry"] = "degraded"
		}
		if _, err := os.Stat(store.Root()); err != nil {
			checks["artifacts"] = "degraded"
		}

		degraded := checks["registry"] != "ok" || checks["artifacts"] != "ok"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
