package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/opscart/gpu-fleet-sim/pkg/broadcast"
	"github.com/opscart/gpu-fleet-sim/pkg/engine"
	"github.com/opscart/gpu-fleet-sim/pkg/gateway"
	"github.com/opscart/gpu-fleet-sim/pkg/metrics"
	"github.com/opscart/gpu-fleet-sim/pkg/server"
)

const shutdownTimeout = 10 * time.Second

func runServe(cmd *cobra.Command, args []string) {
	cfg := loadConfig(cmd)
	logger := newLogger(cfg)
	defer logger.Sync()

	store, err := openStore(cfg)
	if err != nil {
		logger.Fatal("storage unavailable", zap.Error(err))
	}
	defer store.Close()
	if cfg.StorageEnabled {
		logger.Info("recording fleet history to database", zap.Duration("interval", cfg.RecordInterval))
	}

	m := metrics.New()

	eng, err := engine.NewFromConfig(cfg, store, m, logger)
	if err != nil {
		logger.Fatal("failed to create simulation engine", zap.Error(err))
	}

	gw := gateway.New(gateway.Config{
		BaseURL:     cfg.AnalysisURL,
		APIKey:      cfg.AnalysisAPIKey,
		Model:       cfg.AnalysisModel,
		SpeechModel: cfg.SpeechModel,
		SpeechVoice: cfg.SpeechVoice,
		Timeout:     cfg.AnalysisTimeout,
	})
	if cfg.AnalysisEnabled() {
		logger.Info("analysis gateway configured", zap.String("url", cfg.AnalysisURL), zap.String("model", cfg.AnalysisModel))
	} else {
		logger.Info("no analysis API key set, using offline summaries")
	}

	hub := broadcast.NewHub(eng, gw, broadcast.HubOptions{
		PushInterval:    cfg.PushInterval,
		AnalysisTimeout: cfg.AnalysisTimeout,
		OriginPatterns:  allowedOrigins,
		Recorder:        m,
		Logger:          logger,
	})

	srv, err := server.New(server.Config{
		ListenAddress: cfg.ListenAddr,
		Engine:        eng,
		Hub:           hub,
		Metrics:       m.Handler(),
		Health:        store,
		Logger:        logger,
	})
	if err != nil {
		logger.Fatal("failed to create server", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		eng.RunSpikeClock(ctx, cfg.SpikeTickInterval)
	}()
	go func() {
		defer wg.Done()
		eng.RunRecorder(ctx, cfg.RecordInterval, store)
	}()

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			logger.Error("server stopped", zap.Error(err))
		}
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown incomplete", zap.Error(err))
	}
	wg.Wait()
}
