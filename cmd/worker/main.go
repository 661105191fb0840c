package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/avolkov/climate-rag/internal/bootstrap"
	"github.com/avolkov/climate-rag/internal/config"
	"github.com/avolkov/climate-rag/internal/observability/logging"
	"github.com/avolkov/climate-rag/internal/observability/metrics"
)

const serviceName = "worker"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config error", "error", err)
		os.Exit(1)
	}
	logging.Setup(serviceName, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, nil)
	if err != nil {
		slog.Error("bootstrap error", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: workerMetrics.Handler(),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	slog.Info("worker_subscribed", "subject", cfg.NATSSubject)
	err = app.Queue.SubscribeCorpusIngest(ctx, func(handlerCtx context.Context, path string) error {
		processCtx, cancel := context.WithTimeout(handlerCtx, 5*time.Minute)
		defer cancel()

		workerMetrics.StartIngest()
		start := time.Now()
		stats, err := app.IngestUC.ProcessCorpus(processCtx, path)
		workerMetrics.FinishIngest(serviceName, time.Since(start), err)
		if err != nil {
			return err
		}

		workerMetrics.ObserveIndexedChunks(serviceName, cfg.ChromaAbstractCollection, stats.AbstractDocs)
		workerMetrics.ObserveIndexedChunks(serviceName, cfg.ChromaContentCollection, stats.ContentChunks)
		slog.Info("corpus_ingested",
			"path", path,
			"theses", stats.Theses,
			"abstract_docs", stats.AbstractDocs,
			"content_chunks", stats.ContentChunks,
			"skipped", stats.SkippedEntries,
		)
		return nil
	})
	if err != nil {
		slog.Error("worker subscribe error", "error", err)
		os.Exit(1)
	}
}
