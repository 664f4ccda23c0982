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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	kafkaadapter "github.com/nimafallahian/go-indexer/internal/adapters/kafka"
	"github.com/nimafallahian/go-indexer/internal/app"
	"github.com/nimafallahian/go-indexer/internal/config"
	"github.com/nimafallahian/go-indexer/internal/logging"
	"github.com/nimafallahian/go-indexer/internal/metrics"
	"github.com/nimafallahian/go-indexer/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New(os.Stderr, "ERROR", logging.FormatJSON).Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", "error", err)
		os.Exit(1)
	}

	a, err := app.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open components", "error", err)
		os.Exit(1)
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			logger.Error("failed to close components", "error", cerr)
		}
	}()

	kConsumer, err := kafkaadapter.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID, logger)
	if err != nil {
		logger.Error("failed to create kafka consumer", "error", err)
		os.Exit(1)
	}
	defer func() {
		if cerr := kConsumer.Close(); cerr != nil {
			logger.Error("failed to close kafka consumer", "error", cerr)
		}
	}()

	svc, err := service.NewIndexerService(kConsumer, a.Registry, a.Producer,
		service.WithWorkerCount(cfg.WorkerCount),
		service.WithRetry(cfg.MaxAttempts, cfg.RetryBackoff),
		service.WithTimeouts(cfg.StoreTimeout, cfg.SearchTimeout),
		service.WithDeadLetterer(a.Producer),
		service.WithRunState(a.Runs),
		service.WithDrift(a.Drift),
		service.WithLogger(logger),
	)
	if err != nil {
		logger.Error("failed to create indexer service", "error", err)
		os.Exit(1)
	}

	metricsSrv := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return svc.Start(ctx)
	})
	g.Go(func() error {
		logger.Info("serving metrics", "addr", cfg.MetricsAddr)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsSrv.Shutdown(shutdownCtx)
	})

	logger.Info("indexer started",
		"topic", cfg.KafkaTopic,
		"group", cfg.KafkaGroupID,
		"workers", cfg.WorkerCount,
	)
	if err := g.Wait(); err != nil {
		logger.Error("service terminated with error", "error", err)
	}
}
