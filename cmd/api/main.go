package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/avolkov/climate-rag/internal/adapters/http"
	"github.com/avolkov/climate-rag/internal/bootstrap"
	"github.com/avolkov/climate-rag/internal/config"
	"github.com/avolkov/climate-rag/internal/observability/logging"
	"github.com/avolkov/climate-rag/internal/observability/metrics"
)

const serviceName = "api"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config error", "error", err)
		os.Exit(1)
	}
	logging.Setup(serviceName, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpMetrics := metrics.NewHTTPServerMetrics(serviceName)

	// The server starts accepting before the backends are reachable; the
	// handlers answer 503 until the holder publishes the app.
	holder := bootstrap.NewHolder()
	defer holder.Close()
	go func() {
		if err := holder.Initialize(ctx, cfg, httpMetrics.Observer(serviceName)); err != nil {
			slog.Error("bootstrap_failed", "error", err)
		}
	}()

	provider := func() (httpadapter.Services, error) {
		app, err := holder.Ready()
		if err != nil {
			return httpadapter.Services{}, err
		}
		return httpadapter.Services{
			Chat:      app.ChatUC,
			Directory: app.ChatsUC,
			Ingestor:  app.IngestUC,
		}, nil
	}

	router := httpadapter.NewRouter(provider, httpadapter.Options{
		ServiceName:          serviceName,
		RateLimitRPS:         cfg.RateLimitRPS,
		RateLimitBurst:       cfg.RateLimitBurst,
		BackpressureCapacity: cfg.BackpressureCapacity,
		BackpressureWait:     100 * time.Millisecond,
		Metrics:              httpMetrics,
	})

	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("api_listening", "port", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("api server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("api shutdown error", "error", err)
	}
}
