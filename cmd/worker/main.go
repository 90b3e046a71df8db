package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opsmind/tenant-rag-agent/internal/config"
	"github.com/opsmind/tenant-rag-agent/internal/core/domain"
	"github.com/opsmind/tenant-rag-agent/internal/infrastructure/queue/nats"
	"github.com/opsmind/tenant-rag-agent/internal/infrastructure/repository/postgres"
	"github.com/opsmind/tenant-rag-agent/internal/observability/logging"
	"github.com/opsmind/tenant-rag-agent/internal/observability/metrics"
)

func main() {
	cfg := config.Load()
	service := cfg.ServiceName + "-worker"
	slog.SetDefault(logging.NewJSONLogger(service, cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		slog.Error("open_postgres_failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		slog.Error("ensure_schema_failed", "error", err)
		os.Exit(1)
	}
	history := postgres.NewHistoryRepository(db)

	queue, err := nats.New(cfg.NATSURL, cfg.NATSSubject)
	if err != nil {
		slog.Error("init_queue_failed", "error", err)
		os.Exit(1)
	}
	defer queue.Close()

	workerMetrics := metrics.NewWorkerMetrics(service)
	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: workerMetrics.Handler(),
	}
	go func() {
		slog.Info("worker_metrics_listening", "addr", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("worker_metrics_failed", "error", err)
		}
	}()

	slog.Info("worker_subscribed", "subject", cfg.NATSSubject)
	err = queue.SubscribeExecutionCompleted(ctx, func(handlerCtx context.Context, record domain.ExecutionRecord) error {
		workerMetrics.StartRecord()
		start := time.Now()
		if !record.CreatedAt.IsZero() {
			workerMetrics.ObserveQueueLag(service, time.Since(record.CreatedAt))
		}

		insertCtx, cancel := context.WithTimeout(handlerCtx, 10*time.Second)
		defer cancel()
		insertErr := history.InsertExecutionRecord(insertCtx, record)
		workerMetrics.FinishRecord(service, time.Since(start), insertErr)
		return insertErr
	})
	if err != nil {
		slog.Error("worker_subscribe_failed", "error", err)
		os.Exit(1)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)
}
