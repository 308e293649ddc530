// Command server starts the feed pipeline's HTTP API and the candidate
// refresh job supervisor (C7).
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

	"github.com/redis/go-redis/v9"

	"github.com/feedpipeline/feedsvc/internal/adapter/dbpool"
	"github.com/feedpipeline/feedsvc/internal/adapter/eventsingest"
	"github.com/feedpipeline/feedsvc/internal/adapter/feedcache"
	httpserver "github.com/feedpipeline/feedsvc/internal/adapter/httpserver"
	"github.com/feedpipeline/feedsvc/internal/adapter/observability"
	"github.com/feedpipeline/feedsvc/internal/adapter/olap"
	"github.com/feedpipeline/feedsvc/internal/app"
	"github.com/feedpipeline/feedsvc/internal/config"
	"github.com/feedpipeline/feedsvc/internal/job/refresh"
	"github.com/feedpipeline/feedsvc/internal/job/retention"
	"github.com/feedpipeline/feedsvc/internal/ranking"
	"github.com/feedpipeline/feedsvc/internal/resilience"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)
	observability.SetAppEnv(cfg.AppEnv)
	observability.InitMetrics()
	metrics := observability.NewMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	ctx := context.Background()

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

	oltpPool, err := dbpool.NewPool(ctx, dbpool.Config{
		DSN:            cfg.OLTPURL,
		Service:        "oltp",
		MaxConns:       int32(cfg.DBMaxConnections),
		ConnectTimeout: cfg.DBConnectTimeout(),
		Threshold:      cfg.DBPoolBackpressureThreshold,
		Metrics:        metrics,
	})
	if err != nil {
		slog.Error("oltp connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer oltpPool.Close()
	go oltpPool.StartUtilizationSampler(ctx, 30*time.Second)

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("redis url parse failed", slog.Any("error", err))
		os.Exit(1)
	}
	rdb := redis.NewClient(redisOpts)
	defer func() { _ = rdb.Close() }()

	cache := feedcache.New(rdb, metrics)

	breakerRegistry := resilience.NewRegistry(
		cfg.CircuitBreakerFailureThreshold,
		cfg.CircuitBreakerSuccessThreshold,
		cfg.CircuitBreakerTimeout(),
		observability.NewBreakerRecorder(metrics),
	)
	olapBreaker := breakerRegistry.GetBreaker("olap")

	rankingSvc := ranking.NewService(olapClient, olapBreaker, cache, oltpPool, metrics, ranking.Config{
		PrefetchMultiplier: cfg.FeedCandidatePrefetchMultiplier,
		MaxCandidates:      cfg.FeedMaxCandidates,
		CacheBaseTTLSecs:   cfg.FeedCacheTTLSecs,
		FallbackTTLSecs:    cfg.FeedFallbackCacheTTLSecs,
		FreshnessWeight:    cfg.FeedFreshnessWeight,
		EngagementWeight:   cfg.FeedEngagementWeight,
		AffinityWeight:     cfg.FeedAffinityWeight,
		BaselineLambda:     cfg.FeedFreshnessLambda,
		OLTPAcquireTimeout: cfg.DBAcquireTimeoutSecs,
	})

	eventsProducer, err := eventsingest.NewProducer(cfg.KafkaBrokers, cfg.EventsTopic)
	if err != nil {
		slog.Error("events producer init failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = eventsProducer.Close() }()

	monitors := observability.NewRankingScoreMonitors(metrics, 50, 0.3)
	supervisor := refresh.NewSupervisor(metrics,
		refresh.NewFolloweesJob(olapClient, cfg.RefreshInterval, cfg.FolloweesWindowDays, cfg.AffinityEdgeWindowDays, monitors),
		refresh.NewTrendingJob(olapClient, cfg.RefreshInterval, cfg.TrendingWindowDays, monitors),
		refresh.NewAffinityJob(olapClient, cfg.RefreshInterval, cfg.AffinityWindowDays, cfg.AffinityEdgeWindowDays, monitors),
	)
	refreshCtx, cancelRefresh := context.WithCancel(ctx)
	defer cancelRefresh()
	go func() {
		if err := supervisor.Run(refreshCtx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("refresh supervisor stopped", slog.Any("error", err))
		}
	}()

	retentionSvc := retention.NewService(olapClient, cfg.DataRetentionDays)
	retentionCtx, cancelRetention := context.WithCancel(ctx)
	defer cancelRetention()
	go retentionSvc.RunPeriodic(retentionCtx, cfg.CleanupInterval)

	olapCheck, oltpCheck, redisCheck := app.BuildReadinessChecks(olapClient, oltpPool, cache)
	srv := httpserver.NewServer(cfg, rankingSvc, eventsProducer, olapCheck, oltpCheck, redisCheck)
	handler := app.BuildRouter(cfg, srv)

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port))
		errCh <- srvHTTP.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = srvHTTP.Shutdown(shutdownCtx)
}
