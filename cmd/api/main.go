package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"taskhub/internal/cache"
	"taskhub/internal/config"
	"taskhub/internal/database"
	"taskhub/internal/handlers"
	"taskhub/internal/jobs"
	"taskhub/internal/log"
	"taskhub/internal/mail"
	"taskhub/internal/metrics"
	"taskhub/internal/oauth"
	"taskhub/internal/queue"
	"taskhub/internal/repository"
	"taskhub/internal/security"
	"taskhub/internal/server"
	"taskhub/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()

	dbPool, err := database.Open(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect postgres")
	}

	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect redis")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewRecorder(registry)

	store := repository.NewPostgresStore(dbPool)
	codec := security.NewTokenCodec(cfg.Security)
	outbox := queue.NewProducer(redisClient, cfg.Mail.Stream)
	taskQueue := queue.NewProducer(redisClient, cfg.Worker.Stream)

	auth := service.NewAuthService(service.AuthDeps{
		Store:  store,
		Hasher: security.NewArgon2Hasher(security.DefaultArgon2Params),
		Tokens: codec,
		Mailer: mail.NewQueueDispatcher(outbox),
		Tasks:  taskQueue,
		Events: recorder,
	}, cfg, logger)
	mfa := service.NewMFAService(store, security.NewTOTP(cfg.MFA.Issuer), auth, logger)

	var google *oauth.Google
	if cfg.OAuth.Google.ClientID != "" {
		states := oauth.NewStateStore(redisClient, cfg.OAuth.Google.ClientSecret, cfg.OAuth.Google.StateTTL)
		google = oauth.NewGoogle(cfg.OAuth.Google, states)
	} else {
		logger.Warn().Msg("google sign-in disabled: no client id configured")
	}

	handlerSet := handlers.NewHandlerSet(logger, cfg, handlers.Deps{
		Auth:    auth,
		MFA:     mfa,
		Roles:   store.Members(),
		Google:  google,
		Metrics: recorder.Handler(),
		Checks: map[string]handlers.HealthCheck{
			"database": dbPool.Ping,
			"cache": func(ctx context.Context) error {
				return cache.Ping(ctx, redisClient)
			},
		},
	})
	httpServer, err := server.NewHTTPServer(cfg, logger, handlerSet)
	if err != nil {
		logger.Fatal().Err(err).Msg("http server setup failed")
	}

	scheduler := jobs.NewScheduler(taskQueue, cfg.Worker.CleanupSchedule, logger)
	if err := scheduler.Start(); err != nil {
		logger.Error().Err(err).Msg("scheduler start failed")
	}

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	waitForShutdown(logger, httpServer, scheduler, dbPool, redisClient)
}

func waitForShutdown(logger zerolog.Logger, srv *server.HTTPServer, scheduler *jobs.Scheduler, db *pgxpool.Pool, redisClient *redis.Client) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	scheduler.Stop(shutdownCtx)

	db.Close()
	if err := redisClient.Close(); err != nil {
		logger.Error().Err(err).Msg("redis close error")
	}

	logger.Info().Msg("server exited cleanly")
}
