package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/geosearch/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/geosearch/internal/adapter/kafka"
	"github.com/couchcryptid/geosearch/internal/config"
	"github.com/couchcryptid/geosearch/internal/lookup"
	"github.com/couchcryptid/geosearch/internal/observability"
	"github.com/couchcryptid/geosearch/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := lookup.Build(ctx, cfg, logger, metrics)
	if err != nil {
		logger.Error("failed to build geocoder", "error", err)
		os.Exit(1)
	}

	ready := []httpadapter.ReadinessChecker{svc}

	var (
		reader *kafkaadapter.Reader
		writer *kafkaadapter.Writer
		done   = make(chan struct{})
	)
	if cfg.PipelineEnabled {
		reader = kafkaadapter.NewReader(cfg, logger)
		writer = kafkaadapter.NewWriter(cfg, logger)
		p := pipeline.New(reader, pipeline.NewTransformer(svc.Geocoder, logger), writer, logger, metrics, cfg.BatchSize)
		ready = append(ready, p)

		go func() {
			defer close(done)
			if err := p.Run(ctx); err != nil {
				logger.Error("pipeline error", "error", err)
			}
		}()
	} else {
		close(done)
		logger.Info("batch pipeline disabled")
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, svc.Geocoder, httpadapter.AllReady(ready...), logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Warn("pipeline did not stop before shutdown timeout")
	}
	if reader != nil {
		if err := reader.Close(); err != nil {
			logger.Error("kafka reader close error", "error", err)
		}
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}
	if err := svc.Close(); err != nil {
		logger.Error("geocoder close error", "error", err)
	}

	logger.Info("shutdown complete")
}
