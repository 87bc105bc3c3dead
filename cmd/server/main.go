package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/examguard-backend/internal/config"
	"github.com/stemsi/examguard-backend/internal/database"
	"github.com/stemsi/examguard-backend/internal/handler"
	"github.com/stemsi/examguard-backend/internal/logger"
	"github.com/stemsi/examguard-backend/internal/repository"
	"github.com/stemsi/examguard-backend/internal/router"
	"github.com/stemsi/examguard-backend/internal/service"
	"github.com/stemsi/examguard-backend/internal/validator"
	"github.com/stemsi/examguard-backend/internal/worker"
)

// reaperBatchSize bounds how many abandoned attempts one sweep finalizes.
const reaperBatchSize = 100

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting ExamGuard Backend")

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
	studentRepo := repository.NewStudentRepository(pool)
	proctorRepo := repository.NewProctorRepository(pool)
	examRepo := repository.NewExamRepository(pool)
	questionRepo := repository.NewQuestionRepository(pool)
	sessionRepo := repository.NewExamSessionRepository(pool)
	attemptRepo := repository.NewAttemptRepository(pool)
	responseRepo := repository.NewResponseRepository(pool)
	violationRepo := repository.NewViolationRepository(pool)
	settingRepo := repository.NewSettingRepository(pool)

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg, rdb)
	studentService := service.NewStudentService(studentRepo, authService, log)
	proctorService := service.NewProctorService(proctorRepo, authService)
	examService := service.NewExamService(examRepo, questionRepo, sessionRepo, rdb, log)
	attemptService := service.NewAttemptService(
		cfg, attemptRepo, examRepo, sessionRepo, questionRepo,
		responseRepo, violationRepo, studentRepo, settingRepo, rdb, log,
	)
	monitorService := service.NewMonitorService(attemptRepo, violationRepo)
	settingService := service.NewSettingService(settingRepo)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Auth:        handler.NewAuthHandler(authService, studentService, proctorService),
		Attempt:     handler.NewAttemptHandler(attemptService, examService),
		Exam:        handler.NewExamHandler(examService),
		Monitor:     handler.NewMonitorHandler(rdb, attemptService, examService, monitorService, log),
		StudentMgmt: handler.NewStudentManagementHandler(studentService),
		Setting:     handler.NewSettingHandler(settingService),
		WS:          handler.NewWSHandler(attemptService, log, cfg.AllowedOrigins),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())

	responseWorker := worker.NewResponseWorker(responseRepo, rdb, log)
	violationWorker := worker.NewViolationWorker(violationRepo, rdb, log)

	go responseWorker.Start(workerCtx)
	go violationWorker.Start(workerCtx)

	// ─── Start Expiry Reaper ──────────────────────────────────────────
	// Finalizes abandoned attempts whose session window closed without a
	// student-side submit.
	go func() {
		ticker := time.NewTicker(cfg.ReaperInterval)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				if n := attemptService.FinalizeExpired(workerCtx, reaperBatchSize); n > 0 {
					log.Info().Int("count", n).Msg("Reaper finalized expired attempts")
				}
			}
		}
	}()

	// ─── Prewarm Redis Caches ─────────────────────────────────────────
	// Load all published exam payloads into Redis BEFORE accepting traffic.
	// This avoids race conditions from lazy loading under thundering herd.
	if err := examService.PrewarmAllCaches(ctx); err != nil {
		log.Warn().Err(err).Msg("Cache prewarm failed")
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop background workers and wait for queues to drain.
	workerCancel()
	time.Sleep(2 * time.Second) // Allow workers to drain.

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
