package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/yegors/glidepath/internal/adsb"
	"github.com/yegors/glidepath/internal/api"
	"github.com/yegors/glidepath/internal/batch"
	"github.com/yegors/glidepath/internal/config"
	"github.com/yegors/glidepath/internal/extractor"
	"github.com/yegors/glidepath/internal/feed"
	"github.com/yegors/glidepath/internal/ingest"
	"github.com/yegors/glidepath/internal/scoring"
	"github.com/yegors/glidepath/internal/storage/backend"
	"github.com/yegors/glidepath/internal/weather"
	"github.com/yegors/glidepath/internal/websocket"
	"github.com/yegors/glidepath/pkg/logger"
)

var (
	// Version is injected at build time
	Version = "dev"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to configuration file (optional - will search in configs/ and root directory)")
	flag.Parse()

	// Load configuration with fallback logic
	cfg, err := config.LoadWithFallback(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Create logger
	log, err := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		FilePath:   cfg.Logging.FilePath,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting glidepath server",
		logger.String("version", Version),
		logger.String("config_path", *configPath),
		logger.String("storage", cfg.Storage.Backend),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Open storage
	store, err := backend.Open(ctx, cfg.Storage, log)
	if err != nil {
		log.Fatal("Failed to open storage", logger.Error(err))
	}
	defer store.Close()

	mirror, err := backend.OpenMirror(ctx, cfg.Storage, log)
	if err != nil {
		log.Error("Failed to connect ClickHouse mirror, continuing without it", logger.Error(err))
		mirror = nil
	}
	if mirror != nil {
		defer mirror.Close()
	}

	// Create WebSocket server
	wsServer := websocket.NewServer(log)
	go wsServer.Run()
	defer wsServer.Stop()

	// Create ingestion service
	for _, path := range []string{cfg.Ingest.BufferPath, cfg.Ingest.StatePath} {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			log.Fatal("Failed to create data directory", logger.String("path", path), logger.Error(err))
		}
	}
	format, err := extractor.ParseFormat(cfg.Ingest.Format)
	if err != nil {
		log.Fatal("Invalid ingest format", logger.Error(err))
	}
	buffer := ingest.NewBuffer(cfg.Ingest.BufferPath)
	stateFile := ingest.NewStateFile(cfg.Ingest.StatePath)
	ingestService := ingest.NewService(
		cfg.Ingest,
		buffer,
		stateFile,
		extractor.New(format, cfg.Ingest.Filter(), log),
		store,
		log,
	)
	ingestService.OnCycle(func(res ingest.CycleResult) {
		wsServer.Publish(websocket.MessageTypeIngestCycle, "cycle", res)
	})
	if err := ingestService.Start(ctx); err != nil {
		log.Fatal("Failed to start ingestion service", logger.Error(err))
	}

	// Create feed subscriber
	var subscriber *feed.Subscriber
	if cfg.Feed.Enabled {
		subscriber = feed.NewSubscriber(cfg.Feed, buffer, stateFile, log)
		if err := subscriber.Start(ctx); err != nil {
			log.Error("Failed to start feed subscriber", logger.Error(err))
			subscriber = nil
		}
	} else {
		log.Info("Feed subscriber disabled in configuration")
	}

	// Create ADS-B collector
	var adsbCollector *adsb.Collector
	if cfg.ADSB.Enabled {
		adsbCollector = adsb.NewCollector(cfg.ADSB, store, log)
		if err := adsbCollector.Start(ctx); err != nil {
			log.Error("Failed to start ADS-B collector", logger.Error(err))
			adsbCollector = nil
		}
	}

	// Create weather service
	var weatherService *weather.Service
	if cfg.Weather.Enabled {
		weatherService = weather.NewService(cfg.Weather, store, log)
		if err := weatherService.Start(ctx); err != nil {
			log.Error("Failed to start weather service", logger.Error(err))
			weatherService = nil
		}
	} else {
		log.Info("Weather service disabled in configuration")
	}

	// Scoring snapshot; on-demand scoring reloads it per request
	scoringConfig, err := batch.ScoringConfig(ctx, cfg.Scoring.Overrides, store, log)
	if err != nil {
		log.Fatal("Failed to build scoring configuration", logger.Error(err))
	}
	configLoader := batch.LiveConfig(cfg.Scoring.Overrides, store, log)
	var sinks []batch.ScoreSink
	var benchmarks api.BenchmarkSource
	if mirror != nil {
		sinks = append(sinks, mirror)
		benchmarks = mirror
	}
	scorer := batch.NewScorer(cfg.Batch, store, scoring.NewEngine(scoringConfig), log, sinks...)
	scorer.SetConfigLoader(configLoader)

	// Create API router
	handler := api.NewHandler(store, ingestService, benchmarks, scoringConfig, wsServer, log)
	handler.SetScorer(scorer)
	handler.SetConfigLoader(configLoader)
	router := api.NewRouter(handler, log)

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router.Routes(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSeconds) * time.Second,
	}

	go func() {
		log.Info("Starting HTTP server", logger.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error on startup", logger.String("addr", server.Addr), logger.Error(err))
		}
	}()

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("Shutting down server...")

	// Stop background services first. The subscriber goes before the
	// ingestion loop so no block lands after the last cycle.
	if subscriber != nil {
		log.Info("Stopping feed subscriber...")
		subscriber.Stop()
	}

	if adsbCollector != nil {
		log.Info("Stopping ADS-B collector...")
		adsbCollector.Stop()
	}

	log.Info("Stopping ingestion service...")
	ingestService.Stop()

	if weatherService != nil {
		log.Info("Stopping weather service...")
		weatherService.Stop()
	}

	cancel()

	log.Info("Shutting down HTTP server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", logger.Error(err))
	}

	log.Info("Server fully stopped")
}
