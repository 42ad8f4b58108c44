package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/robertov8/gspeech/internal/config"
	"github.com/robertov8/gspeech/internal/events"
	"github.com/robertov8/gspeech/internal/events/redisbridge"
	"github.com/robertov8/gspeech/internal/gemini"
	"github.com/robertov8/gspeech/internal/metrics"
	"github.com/robertov8/gspeech/internal/pipeline"
	"github.com/robertov8/gspeech/internal/playback"
	"github.com/robertov8/gspeech/internal/ui"
)

const (
	maxRequestBody = 16 << 20 // base64 audio for /play can be large
	sseHeartbeat   = 15 * time.Second
)

// Dependencies are the components the API exposes. Client, Bridge and
// Gatherer may be nil.
type Dependencies struct {
	Orchestrator *pipeline.Orchestrator
	Surface      *playback.Surface
	Bus          *events.Bus
	Dispatcher   *ui.Dispatcher
	Client       *gemini.Client
	Bridge       *redisbridge.Bridge
	Metrics      *metrics.Metrics
	Gatherer     prometheus.Gatherer
}

// HTTPServer provides the HTTP API used by sidebar clients
type HTTPServer struct {
	server  *http.Server
	handler http.Handler
	logger  *slog.Logger
	config  *config.Config
	deps    Dependencies

	startTime time.Time
}

// NewHTTPServer creates a new HTTP API server
func NewHTTPServer(appConfig *config.Config, deps Dependencies, logger *slog.Logger) *HTTPServer {
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	h := &HTTPServer{
		logger:    logger,
		config:    appConfig,
		deps:      deps,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)
	h.handler = mux

	h.server = &http.Server{
		Addr:        fmt.Sprintf("%s:%d", appConfig.HTTP.Address, appConfig.HTTP.Port),
		Handler:     mux,
		ReadTimeout: 30 * time.Second,
		// No WriteTimeout: /events streams for as long as the client listens.
		IdleTimeout: 60 * time.Second,
	}

	return h
}

// Handler returns the routed handler
func (h *HTTPServer) Handler() http.Handler {
	return h.handler
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	// Processing endpoints
	mux.HandleFunc("/process", h.withMetrics("/process", h.handleProcess))
	mux.HandleFunc("/play", h.withMetrics("/play", h.handlePlay))
	mux.HandleFunc("/stop", h.withMetrics("/stop", h.handleStop))

	// Observation endpoints
	mux.HandleFunc("/events", h.withMetrics("/events", h.handleEvents))
	mux.HandleFunc("/audio/", h.withMetrics("/audio/{id}", h.handleAudio))
	mux.HandleFunc("/state", h.withMetrics("/state", h.handleState))
	mux.HandleFunc("/voices", h.withMetrics("/voices", h.handleVoices))
	mux.HandleFunc("/runs", h.withMetrics("/runs", h.handleRuns))
	mux.HandleFunc("/runs/", h.withMetrics("/runs/{generation}", h.handleRunDetail))

	// Service endpoints
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))
	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))

	// Prometheus metrics endpoint (no metrics needed for metrics endpoint)
	mux.Handle("/metrics", promhttp.HandlerFor(h.deps.Gatherer, promhttp.HandlerOpts{}))

	// Root endpoint with API documentation
	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		// Create a response writer wrapper to capture status code
		ww := &responseWriter{ResponseWriter: w, statusCode: 200}

		handler(ww, r)

		if h.deps.Metrics == nil {
			return
		}

		duration := time.Since(startTime).Seconds()
		statusCode := strconv.Itoa(ww.statusCode)
		h.deps.Metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.deps.Metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush lets streaming handlers flush through the wrapper
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP API server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

// writeJSON encodes v with the given status
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeFailure reports an error in the {"success":false} envelope
func writeFailure(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"success": false,
		"error":   message,
	})
}

// handleProcess implements the POST /process endpoint
func (h *HTTPServer) handleProcess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req pipeline.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	ack, err := h.deps.Orchestrator.Submit(req)
	if err != nil {
		if errors.Is(err, pipeline.ErrInvalidRequest) {
			writeFailure(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("Failed to submit request", slog.String("error", err.Error()))
		writeFailure(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, ack)
}

// playRequest is the body of POST /play
type playRequest struct {
	AudioData string `json:"audioData"`
}

// handlePlay implements the POST /play endpoint
func (h *HTTPServer) handlePlay(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req playRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	handle, err := h.deps.Orchestrator.PlayDirect(r.Context(), req.AudioData)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, pipeline.ErrInvalidRequest) {
			status = http.StatusBadRequest
		}
		writeFailure(w, status, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"handle":  handle,
	})
}

// handleStop implements the POST /stop endpoint
func (h *HTTPServer) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.deps.Surface.Stop()
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// handleEvents implements the GET /events Server-Sent-Events stream
func (h *HTTPServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	sub := h.deps.Bus.Subscribe()
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	h.logger.Debug("Event stream opened", slog.String("remote", r.RemoteAddr))
	defer h.logger.Debug("Event stream closed", slog.String("remote", r.RemoteAddr))

	heartbeat := time.NewTicker(sseHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case msg, ok := <-sub.C():
			if !ok {
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				h.logger.Warn("Failed to encode event", slog.String("error", err.Error()))
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Type, data)
			flusher.Flush()
		}
	}
}

// handleAudio implements the GET /audio/{id}.wav endpoint
func (h *HTTPServer) handleAudio(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name := strings.TrimPrefix(r.URL.Path, "/audio/")
	id, ok := strings.CutSuffix(name, ".wav")
	if !ok || id == "" {
		http.Error(w, "Audio handle required", http.StatusBadRequest)
		return
	}

	container, exists := h.deps.Surface.Open(id)
	if !exists {
		http.Error(w, "Audio not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", container.ContentType())
	w.Header().Set("Content-Length", strconv.Itoa(container.Len()))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodGet {
		w.Write(container.Bytes())
	}
}

// handleState implements the GET /state endpoint
func (h *HTTPServer) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]any{
		"state": h.deps.Dispatcher.State(),
	}
	if active, ok := h.deps.Surface.Active(); ok {
		response["playback"] = active
	}

	writeJSON(w, http.StatusOK, response)
}

// handleVoices implements the GET /voices endpoint
func (h *HTTPServer) handleVoices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"default": h.config.Gemini.DefaultVoice,
		"voices":  gemini.Voices(),
	})
}

// handleRuns implements the GET /runs endpoint
func (h *HTTPServer) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	runs := h.deps.Orchestrator.Runs()
	writeJSON(w, http.StatusOK, map[string]any{
		"latest_generation": h.deps.Orchestrator.Generation(),
		"total_runs":        len(runs),
		"runs":              runs,
	})
}

// handleRunDetail implements the GET /runs/{generation} endpoint
func (h *HTTPServer) handleRunDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	genStr := strings.TrimPrefix(r.URL.Path, "/runs/")
	if genStr == "" {
		http.Error(w, "Generation required", http.StatusBadRequest)
		return
	}

	generation, err := strconv.ParseUint(genStr, 10, 64)
	if err != nil {
		http.Error(w, "Invalid generation", http.StatusBadRequest)
		return
	}

	record, exists := h.deps.Orchestrator.GetRun(generation)
	if !exists {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, record)
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	components := map[string]any{
		"bus": h.deps.Bus.Stats(),
		"playback": map[string]any{
			"status":         "running",
			"active_handles": h.deps.Surface.Count(),
		},
		"pipeline": map[string]any{
			"status":            "running",
			"latest_generation": h.deps.Orchestrator.Generation(),
			"wrapper_supported": h.config.Wrapper.Supported,
		},
	}
	if h.deps.Client != nil {
		components["gemini"] = h.deps.Client.GetStats()
	}
	if h.deps.Bridge != nil {
		components["redis_mirror"] = h.deps.Bridge.GetStats()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": map[string]any{
			"name":    "gspeech",
			"version": "1.0.0",
		},
		"components": components,
	})
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Return sanitized configuration (remove sensitive data)
	sanitizedConfig := map[string]any{
		"http": map[string]any{
			"port":    h.config.HTTP.Port,
			"address": h.config.HTTP.Address,
		},
		"gemini": map[string]any{
			"base_url":        h.config.Gemini.BaseURL,
			"translate_model": h.config.Gemini.TranslateModel,
			"tts_model":       h.config.Gemini.TTSModel,
			"default_voice":   h.config.Gemini.DefaultVoice,
			"api_key_set":     h.config.Gemini.APIKey != "",
		},
		"wrapper": map[string]any{
			"supported": h.config.Wrapper.Supported,
			"endpoint":  h.config.Wrapper.Endpoint,
		},
		"pipeline": map[string]any{
			"default_language":         h.config.Pipeline.DefaultLanguage,
			"default_english_behavior": h.config.Pipeline.DefaultEnglishBehavior,
			"run_timeout":              h.config.Pipeline.RunTimeout,
			"history_size":             h.config.Pipeline.HistorySize,
		},
		"playback": map[string]any{
			"device":            h.config.Playback.Device,
			"frames_per_buffer": h.config.Playback.FramesPerBuffer,
			"handle_ttl":        h.config.Playback.HandleTTL,
		},
		"events": map[string]any{
			"subscriber_buffer": h.config.Events.SubscriberBuffer,
		},
		"redis": map[string]any{
			"enabled": h.config.Redis.Enabled,
			"channel": h.config.Redis.Channel,
			// URL is omitted: it may carry a password
		},
		"logging": map[string]any{
			"level":  h.config.Logging.Level,
			"format": h.config.Logging.Format,
			"output": h.config.Logging.Output,
		},
	}

	writeJSON(w, http.StatusOK, sanitizedConfig)
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	apiDoc := map[string]any{
		"service": "gspeech translation and speech service",
		"version": "1.0.0",
		"endpoints": map[string]any{
			"GET /":                  "API documentation",
			"POST /process":          "Translate and/or synthesize text",
			"POST /play":             "Play base64 PCM directly",
			"POST /stop":             "Stop the active playback",
			"GET /events":            "Server-Sent-Events progress stream",
			"GET /audio/{id}.wav":    "Fetch a live audio handle",
			"GET /state":             "Current sidebar state",
			"GET /voices":            "Prebuilt voice catalog",
			"GET /runs":              "Recent runs",
			"GET /runs/{generation}": "One run",
			"GET /health":            "Service health check",
			"GET /config":            "Get service configuration",
			"GET /metrics":           "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	}

	writeJSON(w, http.StatusOK, apiDoc)
}
