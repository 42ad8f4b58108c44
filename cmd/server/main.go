package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/robertov8/gspeech/internal/config"
	"github.com/robertov8/gspeech/internal/events"
	"github.com/robertov8/gspeech/internal/events/redisbridge"
	"github.com/robertov8/gspeech/internal/gemini"
	"github.com/robertov8/gspeech/internal/metrics"
	"github.com/robertov8/gspeech/internal/pipeline"
	"github.com/robertov8/gspeech/internal/playback"
	"github.com/robertov8/gspeech/internal/playback/device"
	"github.com/robertov8/gspeech/internal/server"
	"github.com/robertov8/gspeech/internal/ui"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "gspeech"
	serviceVersion    = "1.0.0"
	uiCacheKey        = "gspeech:ui"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger based on configuration
	logger := initLogger(cfg.Logging)

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	// Log configuration summary (without sensitive data)
	logger.Info("Configuration loaded",
		slog.Int("http_port", cfg.HTTP.Port),
		slog.String("translate_model", cfg.Gemini.TranslateModel),
		slog.String("tts_model", cfg.Gemini.TTSModel),
		slog.String("default_voice", cfg.Gemini.DefaultVoice),
		slog.Bool("api_key_set", cfg.Gemini.APIKey != ""),
		slog.Bool("wrapper_supported", cfg.Wrapper.Supported),
		slog.Bool("playback_device", cfg.Playback.Device),
		slog.Bool("redis_enabled", cfg.Redis.Enabled),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Prometheus metrics
	appMetrics := metrics.NewMetrics(prometheus.DefaultRegisterer)
	logger.Info("Prometheus metrics initialized")

	bus := events.NewBus(cfg.Events.SubscriberBuffer, appMetrics, logger)

	client, err := gemini.NewClient(gemini.Config{
		BaseURL:        cfg.Gemini.BaseURL,
		TranslateModel: cfg.Gemini.TranslateModel,
		TTSModel:       cfg.Gemini.TTSModel,
	}, appMetrics, logger)
	if err != nil {
		logger.Error("Failed to create Gemini client", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Output device is optional; without it clients render the WAV handle.
	var output playback.Output
	var speaker *device.PortaudioOutput
	if cfg.Playback.Device {
		speaker, err = device.NewPortaudioOutput(device.Config{
			FramesPerBuffer: cfg.Playback.FramesPerBuffer,
		}, logger)
		if err != nil {
			logger.Warn("Audio device unavailable, serving handles only", slog.String("error", err.Error()))
			speaker = nil
		} else {
			output = speaker
		}
	}

	surface := playback.NewSurface(playback.Config{
		HandleTTL: cfg.Playback.GetHandleTTLDuration(),
	}, output, appMetrics, logger)

	orchestrator := pipeline.NewOrchestrator(client, client, surface, bus, pipeline.Options{
		WrapperSupported:       cfg.Wrapper.Supported,
		DefaultLanguage:        cfg.Pipeline.DefaultLanguage,
		DefaultEnglishBehavior: cfg.Pipeline.DefaultEnglishBehavior,
		DefaultVoice:           cfg.Gemini.DefaultVoice,
		DefaultAPIKey:          cfg.Gemini.APIKey,
		DefaultEndpoint:        cfg.Wrapper.Endpoint,
		RunTimeout:             cfg.Pipeline.GetRunTimeoutDuration(),
		HistorySize:            cfg.Pipeline.HistorySize,
	}, appMetrics, logger)
	logger.Info("Pipeline initialized",
		slog.Duration("run_timeout", cfg.Pipeline.GetRunTimeoutDuration()),
		slog.Int("history_size", cfg.Pipeline.HistorySize),
	)

	// Redis mirror and UI cache (if enabled)
	var cache ui.Cache
	var bridge *redisbridge.Bridge
	if cfg.Redis.Enabled {
		redisClient := redisbridge.NewClient(cfg.Redis)
		defer redisClient.Close()

		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		err := redisbridge.Ping(pingCtx, redisClient)
		pingCancel()
		if err != nil {
			logger.Warn("Redis unavailable, mirror disabled", slog.String("error", err.Error()))
		} else {
			cache = ui.NewRedisCache(redisClient, uiCacheKey)
			bridge = redisbridge.New(redisClient, cfg.Redis.Channel, logger)
			go bridge.Forward(ctx, bus.Subscribe())
			logger.Info("Redis mirror started", slog.String("channel", cfg.Redis.Channel))
		}
	}

	dispatcher := ui.NewDispatcher(cache, logger)
	if err := dispatcher.Restore(ctx); err != nil {
		logger.Warn("Failed to restore ui cache", slog.String("error", err.Error()))
	}
	go dispatcher.Run(ctx, bus.Subscribe())

	// Initialize HTTP API server
	httpServer := server.NewHTTPServer(cfg, server.Dependencies{
		Orchestrator: orchestrator,
		Surface:      surface,
		Bus:          bus,
		Dispatcher:   dispatcher,
		Client:       client,
		Bridge:       bridge,
		Metrics:      appMetrics,
		Gatherer:     prometheus.DefaultGatherer,
	}, logger)

	if err := httpServer.Start(); err != nil {
		logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...",
		slog.String("http_address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
	)

	// Wait for shutdown signal
	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("Context cancelled, shutting down")
	}

	logger.Info("Starting graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Closing the bus first ends open event streams so Shutdown can drain.
	bus.Close()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
	}

	if err := orchestrator.Wait(shutdownCtx); err != nil {
		logger.Warn("Runs still in flight at shutdown", slog.String("error", err.Error()))
	}

	surface.Close()
	cancel()

	if speaker != nil {
		if err := speaker.Terminate(); err != nil {
			logger.Error("Error releasing audio device", slog.String("error", err.Error()))
		}
	}

	// Get final statistics
	busStats := bus.Stats()
	clientStats := client.GetStats()
	logger.Info("Final service statistics",
		slog.Uint64("latest_generation", orchestrator.Generation()),
		slog.Uint64("messages_published", busStats.Published),
		slog.Uint64("messages_dropped", busStats.Dropped),
		slog.Uint64("remote_requests", clientStats.TotalRequests),
		slog.Uint64("remote_failures", clientStats.FailedRequests),
	)

	logger.Info("Service stopped")
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	// Parse log level
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	// Determine output destination
	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
