package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/familyassistant/server/internal/auth"
	"github.com/familyassistant/server/internal/config"
	"github.com/familyassistant/server/internal/db"
	"github.com/familyassistant/server/internal/household"
	httphandler "github.com/familyassistant/server/internal/http"
	"github.com/familyassistant/server/internal/http/handlers"
	"github.com/familyassistant/server/internal/metrics"
	"github.com/familyassistant/server/internal/middleware"
	"github.com/familyassistant/server/internal/repo"
	"github.com/familyassistant/server/internal/telemetry"
)

const serviceName = "family-assistant"

func main() {
	// .env from CWD or server/ so it works from repo root or server/ (env vars override)
	cfg, err := config.Load(".env", "server/.env")
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("failed to load configuration")
	}

	log := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Init(ctx, serviceName, cfg.OTLPEndpoint)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise tracing")
	}

	database, err := db.Open(ctx, cfg.DatabaseURL, db.DefaultPoolOptions, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer database.Close()

	if err := db.Migrate(database, log); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	store := repo.NewPostgresStore(database)
	collectors := metrics.New()

	authService := auth.NewService(
		store,
		auth.NewPasswordHasher(cfg.BcryptCost),
		auth.NewResetTokenService(cfg.ResetTokenSecret),
		auth.NewLogSender(log),
		auth.Options{
			SessionTTL:       cfg.SessionTTL,
			ResetCodeTTL:     cfg.ResetCodeTTL,
			MaxResetAttempts: cfg.ResetMaxAttempts,
			ResetCodeSalt:    cfg.ResetCodeSalt,
			DevMode:          cfg.DevMode,
		},
		log,
	).WithEvents(collectors)
	if cfg.DevMode {
		log.Warn().Msg("DEV_MODE is on: reset codes are returned in API responses")
	}

	authLimiter := middleware.NewRateLimiter(cfg.AuthRateWindow, cfg.AuthRateLimit)
	defer authLimiter.Stop()

	router := httphandler.NewRouter(httphandler.Deps{
		Auth:        authService,
		AuthHandler: handlers.NewAuthHandler(authService, log),
		Members:     handlers.NewMembersHandler(household.NewMemberService(store, log), log),
		Tasks:       handlers.NewTasksHandler(household.NewTaskService(store, log), log),
		Health:      handlers.NewHealthHandler(store, log),
		Metrics:     collectors,
		AuthLimiter: authLimiter,
		Log:         log,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down server")
	case err := <-serverErr:
		log.Error().Err(err).Msg("server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("failed to flush traces")
	}

	log.Info().Msg("server exited")
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var logger zerolog.Logger
	if cfg.LogFormat == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen})
	} else {
		logger = zerolog.New(os.Stdout)
	}
	return logger.Level(level).With().Timestamp().Str("service", serviceName).Logger()
}
