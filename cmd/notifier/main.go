package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gghookah/hookah-orders/internal/config"
	kafkax "github.com/gghookah/hookah-orders/internal/kafka"
	"github.com/gghookah/hookah-orders/internal/notify"
	"github.com/gghookah/hookah-orders/internal/redisx"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	setupLogger(cfg)
	service := cfg.ServiceName + "-notifier"
	logger := log.With().Str("service", service).Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tpl, err := notify.DefaultTemplates()
	if err != nil {
		logger.Fatal().Err(err).Msg("load templates")
	}

	// Redis only guards against redelivery; without it duplicates may go out.
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	if err := redisx.Ping(ctx, rdb); err != nil {
		logger.Warn().Err(err).Msg("redis unavailable, dedup disabled until it recovers")
	}

	d := &notify.Dispatcher{
		Templates: tpl,
		Sender:    notify.NewHTTPSender(cfg.NotifyURL, cfg.NotifyTimeout),
		Dedup:     redisx.NewDedup(rdb, service),
		Operators: cfg.OperatorIDs,
		Log:       logger,
	}

	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.NotifyGroup, cfg.NotifyTopic, cfg.NotifyWorkers, logger)
	done := make(chan struct{})
	go func() {
		defer close(done)
		logger.Info().
			Str("group", cfg.NotifyGroup).
			Str("topic", cfg.NotifyTopic).
			Int("workers", cfg.NotifyWorkers).
			Msg("notifier consumer started")
		if err := cons.Start(ctx, d.Handle); err != nil {
			logger.Error().Err(err).Msg("consumer exit")
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	logger.Info().Msg("shutting down notifier")
	cancel()
	<-done // workers drain in-flight deliveries
}

func setupLogger(cfg config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339
	if cfg.LogFormat == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}
