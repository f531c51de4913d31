package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"tgrelay/internal/bus"
	"tgrelay/internal/channel"
	"tgrelay/internal/config"
	"tgrelay/internal/dispatch"
	"tgrelay/internal/media"
	"tgrelay/internal/metrics"
	"tgrelay/internal/relay"
	"tgrelay/internal/translate"

	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start relaying (Telegram listener + relay loop)",
		Long:  "Connects to Telegram and relays every new post of the configured channel to the Discord webhook. Press Ctrl+C to stop.",
		RunE:  runRelay,
	}
}

func runRelay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Ready(); err != nil {
		return err
	}

	log, logCloser, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logCloser.Close()
	logger = log

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine, translateCloser, err := translate.Build(cfg.Translation, logger)
	if err != nil {
		return err
	}
	defer translateCloser.Close()

	telegram := channel.NewTelegram(channel.TelegramConfig{
		Token:           cfg.Source.BotToken,
		ChannelID:       cfg.Source.ChannelID.String(),
		DownloadTimeout: seconds(cfg.Media.DownloadTimeoutSeconds),
		Logger:          logger,
	})

	mediaMgr, err := media.New(media.Config{
		Fetcher:  telegram,
		TempDir:  cfg.Media.TempDir,
		MaxBytes: cfg.Media.MaxBytes,
		Timeout:  seconds(cfg.Media.DownloadTimeoutSeconds),
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("media manager: %w", err)
	}

	webhook := dispatch.New(dispatch.Config{
		URL:           cfg.Destination.WebhookURL,
		TextTimeout:   seconds(cfg.Destination.TextTimeoutSeconds),
		FileTimeout:   seconds(cfg.Destination.FileTimeoutSeconds),
		RatePerMinute: cfg.Destination.RatePerMinute,
		RateBurst:     cfg.Destination.RateBurst,
		Logger:        logger,
	})

	relayer := relay.New(relay.Config{
		Media:          mediaMgr,
		Translator:     engine,
		Dispatcher:     webhook,
		Target:         cfg.Translation.Target,
		UsernamePrefix: cfg.Destination.UsernamePrefix,
		MaxConcurrent:  cfg.Relay.MaxConcurrent,
		Logger:         logger,
	})

	// Message bus (closed during graceful shutdown below)
	messageBus := bus.New(cfg.Relay.BusSize, logger)

	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		metricsSrv = startMetricsServer(cfg.Metrics)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		relayer.Run(ctx, messageBus.Subscribe())
	}()

	listenErr := make(chan error, 1)
	go func() {
		listenErr <- telegram.Start(ctx, messageBus)
	}()

	logger.Info("relay started. Press Ctrl+C to stop.",
		"channel", cfg.Source.ChannelID.String(),
		"translation", engine.Strategy(),
		"target", cfg.Translation.Target,
	)

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-listenErr:
		if err != nil {
			logger.Error("telegram listener failed", "err", err)
			runErr = err
		}
		stop()
	}
	logger.Info("shutting down relay...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		messageBus.Close()
		wg.Wait()
		if metricsSrv != nil {
			metricsSrv.Shutdown(shutdownCtx)
		}
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timed out, forcing exit")
		if runErr == nil {
			runErr = fmt.Errorf("shutdown timed out")
		}
	}
	return runErr
}

func startMetricsServer(mc config.MetricsConfig) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(mc.Path, metrics.Collector.Handler())
	srv := &http.Server{
		Addr:              mc.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		logger.Info("metrics endpoint listening", "addr", mc.Addr, "path", mc.Path)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "err", err)
		}
	}()
	return srv
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
