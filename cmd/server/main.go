// Activity monitor server - synchronized capture, classification, and REST API
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"github.com/deskpulse/deskpulse/internal/audio"
	"github.com/deskpulse/deskpulse/internal/classifier"
	"github.com/deskpulse/deskpulse/internal/config"
	"github.com/deskpulse/deskpulse/internal/errlog"
	"github.com/deskpulse/deskpulse/internal/extsvc"
	"github.com/deskpulse/deskpulse/internal/fusion"
	"github.com/deskpulse/deskpulse/internal/obs"
	"github.com/deskpulse/deskpulse/internal/server"
	"github.com/deskpulse/deskpulse/internal/store"
	"github.com/deskpulse/deskpulse/internal/stream"
	"github.com/deskpulse/deskpulse/internal/video"
)

// forwardingSink persists results locally and mirrors them to the
// companion service when one is configured.
type forwardingSink struct {
	store  *store.Store
	ext    *extsvc.Client
	errors *errlog.Sink
}

func (s *forwardingSink) SaveActivity(result classifier.Result) error {
	if err := s.store.SaveActivity(result); err != nil {
		s.errors.LogError("database", err, map[string]string{"op": "save_activity"})
		return err
	}
	if s.ext != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := s.ext.SendActivity(ctx, result); err != nil {
				s.errors.LogError("external", err, map[string]string{"op": "send_activity"})
			}
		}()
	}
	return nil
}

func main() {
	// Setup structured logging
	logger := slog.New(tint.NewHandler(os.Stdout, &tint.Options{Level: slog.LevelDebug}))
	slog.SetDefault(logger)

	cfg := config.Load()

	errors := errlog.NewSink(cfg.ErrorLogPath, cfg.MaxErrors)

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open activity database", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	// Connect to the capture backend. A missing backend disables video
	// but the rest of the pipeline keeps running.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var backend video.Backend
	connectCtx, connectCancel := context.WithTimeout(ctx, 10*time.Second)
	obsClient, err := obs.Connect(connectCtx, cfg.OBSHost, cfg.OBSPort, cfg.OBSPassword)
	connectCancel()
	if err != nil {
		slog.Warn("capture backend unavailable, video disabled", "host", cfg.OBSHost, "port", cfg.OBSPort, "error", err)
		errors.LogError("obs_connection", err, nil)
	} else {
		backend = obsClient
		defer func() { _ = obsClient.Close() }()
	}

	videoCap := video.NewCapturer(ctx, backend, cfg.VideoWidth, cfg.VideoHeight)

	audioCap, err := audio.NewCapturer(cfg.AudioDevice, cfg.SampleRate, cfg.ChunkSize, cfg.BufferSeconds)
	if err != nil {
		slog.Error("failed to initialize audio", "error", err)
		os.Exit(1)
	}
	defer audioCap.Terminate()

	manager := fusion.NewManager(videoCap, audioCap, stream.NewProcessor(cfg.VideoWidth, cfg.VideoHeight), fusion.Options{
		SyncInterval:  cfg.SyncInterval,
		VideoInterval: cfg.VideoInterval,
		AudioWindow:   cfg.AudioWindow,
		VideoSource:   cfg.VideoSource,
	})
	if err := manager.Start(); err != nil {
		slog.Error("failed to start synchronized capture", "error", err)
		os.Exit(1)
	}

	external := extsvc.New(cfg.ExternalURL, cfg.ExternalTimeout, cfg.ExternalRetries, cfg.ExternalRetryDelay)
	if external != nil {
		if external.Ping(ctx) {
			slog.Info("companion service reachable", "url", cfg.ExternalURL)
		} else {
			slog.Warn("companion service not responding", "url", cfg.ExternalURL)
		}
	}

	sink := &forwardingSink{store: db, ext: external, errors: errors}
	analyzer := classifier.New(manager, sink, cfg.AnalysisInterval, cfg.MinConfidence)
	analyzer.Start()

	srv := server.New(manager, analyzer, db, errors)

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("activity monitor starting", "http", cfg.HTTPAddr, "obs", cfg.OBSHost)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("http server error", "error", err)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	slog.Info("shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}

	analyzer.Stop()
	manager.Stop()
	slog.Info("shutdown complete")
}
