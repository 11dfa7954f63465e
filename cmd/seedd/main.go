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

	"github.com/go-co-op/gocron"

	httpadapter "github.com/marinerlabs/gridseed/internal/adapter/http"
	kafkaadapter "github.com/marinerlabs/gridseed/internal/adapter/kafka"
	"github.com/marinerlabs/gridseed/internal/cache"
	"github.com/marinerlabs/gridseed/internal/catalog"
	"github.com/marinerlabs/gridseed/internal/codec"
	"github.com/marinerlabs/gridseed/internal/config"
	"github.com/marinerlabs/gridseed/internal/ingest"
	"github.com/marinerlabs/gridseed/internal/observability"
	"github.com/marinerlabs/gridseed/internal/provider"
	"github.com/marinerlabs/gridseed/internal/slicer"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	store, err := cache.NewStore(cfg.CacheDir, logger)
	if err != nil {
		logger.Error("failed to open seed cache", "error", err)
		os.Exit(1)
	}

	orchestrator, err := slicer.New(slicer.Options{
		Provider: provider.NewMock(cfg.MockSeed),
		Cache:    store,
		Schedule: slicer.RunSchedule{
			CadenceHours: cfg.RunCadenceHours,
			LatencyHours: cfg.RunLatencyHours,
		},
		ResolutionDeg: cfg.ResolutionDeg,
		Logger:        logger,
		Metrics:       metrics,
	})
	if err != nil {
		logger.Error("failed to build orchestrator", "error", err)
		os.Exit(1)
	}

	variables, err := catalog.SetByName(cfg.VariableSet)
	if err != nil {
		logger.Error("invalid variable set", "error", err)
		os.Exit(1)
	}

	// Announcements are feature-flagged via ANNOUNCE_ENABLED.
	var announcer ingest.Announcer
	var writer *kafkaadapter.Writer
	if cfg.AnnounceEnabled {
		writer = kafkaadapter.NewWriter(cfg, logger)
		announcer = writer
		logger.Info("seed announcements enabled", "topic", cfg.KafkaSeedTopic)
	} else {
		logger.Info("seed announcements disabled")
	}

	job, err := ingest.New(ingest.Options{
		Orchestrator:  orchestrator,
		Announcer:     announcer,
		OutputDir:     cfg.OutputDir,
		Level:         codec.Level(cfg.CompressionLevel),
		Regions:       cfg.Regions,
		ForecastHours: cfg.ForecastHours,
		TimeStepHours: cfg.TimeStepHours,
		BufferDeg:     cfg.BufferDeg,
		Variables:     variables,
		Logger:        logger,
		Metrics:       metrics,
	})
	if err != nil {
		logger.Error("failed to build slicing job", "error", err)
		os.Exit(1)
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, job, job, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Schedule the slicing job.
	scheduler := gocron.NewScheduler(time.UTC)
	_, err = scheduler.Every(cfg.SliceInterval).StartImmediately().Do(func() {
		if err := job.RunOnce(ctx); err != nil {
			logger.Error("slicing pass finished with errors", "error", err)
		}
	})
	if err != nil {
		logger.Error("failed to schedule slicing job", "error", err)
		os.Exit(1)
	}
	scheduler.StartAsync()
	metrics.DaemonRunning.Set(1)
	logger.Info("seed daemon started",
		"regions", len(cfg.Regions), "interval", cfg.SliceInterval, "variable_set", cfg.VariableSet)

	<-ctx.Done()
	logger.Info("shutting down")
	metrics.DaemonRunning.Set(0)

	scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
