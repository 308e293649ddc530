// Command eventsworker dedupes and batches client interaction events from
// the events topic into the OLAP events table (C6 consumer half).
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/feedpipeline/feedsvc/internal/adapter/cdcingest"
	"github.com/feedpipeline/feedsvc/internal/adapter/eventsingest"
	"github.com/feedpipeline/feedsvc/internal/adapter/observability"
	"github.com/feedpipeline/feedsvc/internal/adapter/olap"
	"github.com/feedpipeline/feedsvc/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)
	observability.SetAppEnv(cfg.AppEnv)
	observability.InitMetrics()
	metrics := observability.NewMetrics()

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(":9091", mux); err != nil {
			slog.Error("eventsworker metrics server error", slog.Any("error", err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	olapClient, err := olap.NewClient(ctx, olap.Config{
		DSN:            cfg.OLAPURL,
		MaxConns:       int32(cfg.DBMaxConnections),
		ConnectTimeout: cfg.DBConnectTimeout(),
		QueryTimeout:   cfg.OLAPQueryTimeout(),
	})
	if err != nil {
		slog.Error("olap connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer olapClient.Close()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("redis url parse failed", slog.Any("error", err))
		os.Exit(1)
	}
	rdb := redis.NewClient(redisOpts)
	defer func() { _ = rdb.Close() }()
	dedup := eventsingest.NewDeduper(rdb, cfg.EventsSeenTTL)

	dlq, err := cdcingest.NewDeadLetterProducer(cfg.KafkaBrokers, cfg.EventsDLQTopic)
	if err != nil {
		slog.Error("events dead letter producer init failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = dlq.Close() }()

	consumer, err := eventsingest.NewConsumer(
		cfg.KafkaBrokers,
		"eventsworker",
		cfg.EventsTopic,
		olapClient,
		dedup,
		dlq,
		cfg.CDCBatchMaxRecords,
		time.Duration(cfg.CDCBatchMaxMS)*time.Millisecond,
		metrics,
	)
	if err != nil {
		slog.Error("events consumer init failed", slog.Any("error", err))
		os.Exit(1)
	}

	slog.Info("eventsworker starting", slog.String("topic", cfg.EventsTopic))
	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("eventsworker stopped with error", slog.Any("error", err))
	}
	slog.Info("eventsworker shut down")
}
