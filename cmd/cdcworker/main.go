// Command cdcworker runs one consumer group per CDC source topic,
// upserting decoded change envelopes into their OLAP mirror tables (C5).
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/feedpipeline/feedsvc/internal/adapter/cdcingest"
	"github.com/feedpipeline/feedsvc/internal/adapter/observability"
	"github.com/feedpipeline/feedsvc/internal/adapter/olap"
	"github.com/feedpipeline/feedsvc/internal/config"
)

// cdcSources pairs each source topic with the mirror table it feeds,
// grounded on spec.md §5's four mirrored entities.
var cdcSources = []struct {
	topic string
	table string
}{
	{"cdc.posts", "mirror_posts"},
	{"cdc.comments", "mirror_comments"},
	{"cdc.likes", "mirror_likes"},
	{"cdc.follows", "mirror_follows"},
}

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
		if err := http.ListenAndServe(":9090", mux); err != nil {
			slog.Error("cdcworker metrics server error", slog.Any("error", err))
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

	dlq, err := cdcingest.NewDeadLetterProducer(cfg.KafkaBrokers, cfg.CDCDLQTopic)
	if err != nil {
		slog.Error("cdc dead letter producer init failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = dlq.Close() }()

	g, gctx := errgroup.WithContext(ctx)
	for _, src := range cdcSources {
		src := src
		consumer, err := cdcingest.NewConsumer(
			cfg.KafkaBrokers,
			"cdcworker-"+src.table,
			src.topic,
			src.table,
			olapClient,
			dlq,
			cfg.CDCBatchMaxRecords,
			time.Duration(cfg.CDCBatchMaxMS)*time.Millisecond,
			metrics,
		)
		if err != nil {
			slog.Error("cdc consumer init failed", slog.String("topic", src.topic), slog.Any("error", err))
			os.Exit(1)
		}
		g.Go(func() error {
			slog.Info("cdc consumer starting", slog.String("topic", src.topic), slog.String("table", src.table))
			return consumer.Run(gctx)
		})
	}

	if err := g.Wait(); err != nil && gctx.Err() == nil {
		slog.Error("cdcworker stopped with error", slog.Any("error", err))
	}
	slog.Info("cdcworker shut down")
}
