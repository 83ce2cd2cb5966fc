package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gghookah/hookah-orders/internal/authz"
	"github.com/gghookah/hookah-orders/internal/config"
	"github.com/gghookah/hookah-orders/internal/httpx"
	kafkax "github.com/gghookah/hookah-orders/internal/kafka"
	"github.com/gghookah/hookah-orders/internal/notify"
	"github.com/gghookah/hookah-orders/internal/orders"
	"github.com/gghookah/hookah-orders/internal/postgres"
	"github.com/gghookah/hookah-orders/internal/redisx"
	"github.com/gghookah/hookah-orders/internal/timer"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	setupLogger(cfg)
	logger := log.With().Str("service", cfg.ServiceName).Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN, cfg.ServiceName)
	if err != nil {
		logger.Fatal().Err(err).Msg("db connect")
	}
	defer db.Close()
	if cfg.MigrateOnStart {
		if err := postgres.Migrate(db); err != nil {
			logger.Fatal().Err(err).Msg("migrate")
		}
	}

	// Redis is a cache only; the API keeps serving when it is down.
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	if err := redisx.Ping(ctx, rdb); err != nil {
		logger.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unavailable, caching disabled until it recovers")
	}
	cache := redisx.NewCache(rdb, logger)

	// Kafka producer
	prod := kafkax.NewProducer(cfg.KafkaBrokers, cfg.NotifyTopic, 1024, 50*time.Millisecond, logger)
	prod.Start(ctx)

	operators := authz.NewOperators(cfg.OperatorIDs)
	if len(operators.IDs()) == 0 {
		logger.Warn().Msg("OPERATOR_IDS is empty, every staff operation will be rejected")
	}

	svc := orders.NewService(
		&orders.Repo{DB: db},
		operators,
		notify.NewPublisher(prod, cfg.ServiceName, logger),
		orders.WithStatusCache(cache),
		orders.WithLogger(logger),
	)

	if cfg.TimerEnabled {
		d := &timer.Daemon{
			Sweeper:   svc,
			Interval:  cfg.TimerInterval,
			Lookahead: cfg.TimerLookahead,
			Log:       logger.With().Str("component", "timer").Logger(),
		}
		go d.Run(ctx)
	}

	router := httpx.NewRouter(logger)
	(&httpx.OrdersHandler{Service: svc, Cache: cache, Log: logger}).Register(router)
	(&httpx.AdminHandler{Service: svc}).Register(router)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 20 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("http listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("listen")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info().Msg("shutting down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	cancel()          // stop timer
	prod.Close()      // flush pending notifications
	prod.WaitClosed()
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
