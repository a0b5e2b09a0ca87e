package main

import (
	"context"
	"errors"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog"

	"taskhub/internal/cache"
	"taskhub/internal/config"
	"taskhub/internal/database"
	"taskhub/internal/log"
	"taskhub/internal/mail"
	"taskhub/internal/queue"
	"taskhub/internal/repository"
	"taskhub/internal/storage"
	"taskhub/internal/tasks"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.NewWithLevel(cfg.Worker.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Migrations are owned by the api process.
	pgCfg := cfg.Postgres
	pgCfg.Migrate = false
	dbPool, err := database.Open(ctx, pgCfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect postgres")
	}
	defer dbPool.Close()

	client, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection failed")
	}
	defer client.Close()

	var sender mail.Sender
	if cfg.Mail.Host != "" {
		sender = mail.NewSMTPSender(cfg.Mail)
	} else {
		logger.Warn().Msg("no smtp host configured, emails will only be logged")
		sender = mail.NewLogSender(logger)
	}

	deps := tasks.ProcessorDeps{
		Mail:  sender,
		Store: repository.NewPostgresStore(dbPool),
	}
	if cfg.Storage.Endpoint != "" {
		objectStore, err := storage.NewObjectStore(cfg.Storage)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to init object store")
		}
		if err := objectStore.EnsureBuckets(ctx); err != nil {
			logger.Warn().Err(err).Msg("ensure buckets failed")
		}
		deps.Avatars = objectStore
	}
	processor := tasks.NewProcessor(deps, logger)

	streams := []string{cfg.Mail.Stream, cfg.Worker.Stream}
	var wg sync.WaitGroup
	for _, stream := range streams {
		consumer := queue.NewConsumer(client, queue.ConsumerConfig{
			Stream:        stream,
			Group:         cfg.Worker.Group,
			Name:          cfg.Worker.Consumer,
			ClaimInterval: cfg.Worker.ClaimInterval,
			MaxDeliveries: cfg.Worker.MaxDeliveries,
		}, logger, processor)

		wg.Add(1)
		go func() {
			defer wg.Done()
			run(ctx, stop, logger, consumer)
		}()
	}

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")
	wg.Wait()
	logger.Info().Msg("worker exited cleanly")
}

func run(ctx context.Context, stop context.CancelFunc, logger zerolog.Logger, consumer *queue.Consumer) {
	if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("consumer stopped unexpectedly")
		stop()
	}
}
