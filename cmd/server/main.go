package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/stemsi/proctorexam/internal/config"
	"github.com/stemsi/proctorexam/internal/database"
	"github.com/stemsi/proctorexam/internal/handler"
	"github.com/stemsi/proctorexam/internal/logger"
	"github.com/stemsi/proctorexam/internal/middleware"
	"github.com/stemsi/proctorexam/internal/repository"
	"github.com/stemsi/proctorexam/internal/router"
	"github.com/stemsi/proctorexam/internal/service"
	"github.com/stemsi/proctorexam/internal/validator"
	"github.com/stemsi/proctorexam/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting proctored exam service")

	if cfg.JWTSecret == "" {
		log.Fatal().Msg("JWT_SECRET is required")
	}

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Initialize Repositories ───────────────────────────────────────
	attemptRepo := repository.NewAttemptRepository(pool)
	examRepo := repository.NewExamRepository(pool)
	eventRepo := repository.NewEventRepository(pool)

	// ─── Initialize Services ──────────────────────────────────────────
	catalog := service.NewExamCatalogService(examRepo, rdb, cfg.ExamCacheTTL, log)
	frames := service.NewFileFrameStore(cfg.FrameDir, cfg.MaxFrameBytes)
	sink := service.NewRedisEventSink(rdb)

	attemptService := service.NewAttemptService(attemptRepo, catalog, log)
	proctorService := service.NewProctorService(attemptRepo, frames, sink, log).WithAuditLog(eventRepo)
	scoringService := service.NewScoringService(attemptRepo, catalog)
	tokenService := service.NewTokenService(cfg.JWTSecret, cfg.JWTExpiry)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		StudentPortal: handler.NewStudentPortalHandler(attemptService, proctorService, scoringService, log),
		Exam:          handler.NewExamHandler(attemptService, proctorService, scoringService, catalog, log),
		Monitor:       handler.NewMonitorHandler(rdb, attemptService, log),
		WS:            handler.NewWSHandler(attemptService, proctorService, log, cfg.AllowedOrigins),
		System: handler.NewSystemHandler(rdb, map[string]handler.HealthCheck{
			"postgres": pool.Ping,
			"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		}, log),
	}

	frameLimiter := middleware.NewRateLimiter(rdb, cfg.FrameRateLimit, cfg.FrameRateWindow, log)

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	eventWorker := worker.NewProctorEventWorker(eventRepo, rdb, log)
	expiryWorker := worker.NewExpiryWorker(attemptRepo, attemptService, cfg.AutoFinalizeGrace, cfg.AutoFinalizeInterval, log)

	workers.Add(2)
	go func() { defer workers.Done(); eventWorker.Start(workerCtx) }()
	go func() { defer workers.Done(); expiryWorker.Start(workerCtx) }()

	// ─── Prewarm Redis Caches ─────────────────────────────────────────
	// Load open exams into Redis BEFORE accepting traffic so the first wave
	// of students does not stampede the database.
	if err := catalog.Prewarm(ctx, time.Now()); err != nil {
		log.Warn().Err(err).Msg("Cache prewarm failed")
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(tokenService, handlers, frameLimiter, cfg, log)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout). Hijacked WebSocket
	// and SSE connections are not waited for.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop background workers and wait for the audit buffer to drain.
	workerCancel()
	drained := make(chan struct{})
	go func() { workers.Wait(); close(drained) }()
	select {
	case <-drained:
	case <-time.After(10 * time.Second):
		log.Warn().Msg("Workers did not stop in time")
	}

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
