package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/robertov8/gspeech/internal/config"
	"github.com/robertov8/gspeech/internal/events"
	"github.com/robertov8/gspeech/internal/gemini"
	"github.com/robertov8/gspeech/internal/metrics"
	"github.com/robertov8/gspeech/internal/pipeline"
	"github.com/robertov8/gspeech/internal/playback"
	"github.com/robertov8/gspeech/internal/ui"
)

const (
	testTranslateModel = "text-model"
	testTTSModel       = "tts-model"
)

var testPCM = []byte{0x01, 0x00, 0x02, 0x00, 0x03, 0x00, 0x04, 0x00}

// fakeGemini answers both generateContent calls
func fakeGemini(t *testing.T) *httptest.Server {
	t.Helper()
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p map[string]any
		switch {
		case strings.Contains(r.URL.Path, testTTSModel):
			p = map[string]any{"inlineData": map[string]any{
				"mimeType": "audio/L16;codec=pcm;rate=24000",
				"data":     base64.StdEncoding.EncodeToString(testPCM),
			}}
		case strings.Contains(r.URL.Path, testTranslateModel):
			p = map[string]any{"text": "Olá mundo"}
		default:
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []any{map[string]any{
				"content": map[string]any{"parts": []any{p}},
			}},
		})
	}))
	t.Cleanup(upstream.Close)
	return upstream
}

type testEnv struct {
	server  *HTTPServer
	orch    *pipeline.Orchestrator
	surface *playback.Surface
	bus     *events.Bus
	reg     *prometheus.Registry
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	upstream := fakeGemini(t)

	cfg := config.Defaults()
	cfg.Gemini.BaseURL = upstream.URL
	cfg.Gemini.TranslateModel = testTranslateModel
	cfg.Gemini.TTSModel = testTTSModel
	cfg.Gemini.APIKey = "secret-key"

	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)

	client, err := gemini.NewClient(gemini.Config{
		BaseURL:        cfg.Gemini.BaseURL,
		TranslateModel: cfg.Gemini.TranslateModel,
		TTSModel:       cfg.Gemini.TTSModel,
	}, m, nil)
	require.NoError(t, err)

	bus := events.NewBus(64, m, nil)
	surface := playback.NewSurface(playback.Config{HandleTTL: time.Minute}, nil, m, nil)
	orch := pipeline.NewOrchestrator(client, client, surface, bus, pipeline.Options{
		DefaultAPIKey: cfg.Gemini.APIKey,
	}, m, nil)

	t.Cleanup(func() {
		bus.Close()
		surface.Close()
	})

	h := NewHTTPServer(cfg, Dependencies{
		Orchestrator: orch,
		Surface:      surface,
		Bus:          bus,
		Dispatcher:   ui.NewDispatcher(nil, nil),
		Client:       client,
		Metrics:      m,
		Gatherer:     reg,
	}, nil)

	return &testEnv{server: h, orch: orch, surface: surface, bus: bus, reg: reg}
}

func (e *testEnv) do(method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func waitRuns(t *testing.T, orch *pipeline.Orchestrator) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, orch.Wait(ctx))
}

func TestProcessRunsPipeline(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/process", map[string]any{
		"text":     "Hello world",
		"language": "en",
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	body := decode(t, rec)
	require.Equal(t, true, body["success"])
	require.Equal(t, float64(1), body["generation"])

	waitRuns(t, env.orch)

	record, ok := env.orch.GetRun(1)
	require.True(t, ok)
	require.Equal(t, pipeline.StateDone, record.State)

	handle, ok := env.surface.Active()
	require.True(t, ok)

	audioRec := env.do(http.MethodGet, handle.URL, nil)
	require.Equal(t, http.StatusOK, audioRec.Code)
	require.Equal(t, "audio/wav", audioRec.Header().Get("Content-Type"))
	require.True(t, bytes.HasPrefix(audioRec.Body.Bytes(), []byte("RIFF")))
	require.Equal(t, 44+len(testPCM), audioRec.Body.Len())

	runs := decode(t, env.do(http.MethodGet, "/runs", nil))
	require.Equal(t, float64(1), runs["total_runs"])

	detail := env.do(http.MethodGet, "/runs/1", nil)
	require.Equal(t, http.StatusOK, detail.Code)
	require.Equal(t, "done", decode(t, detail)["state"])
}

func TestProcessRejectsInvalidRequests(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body any
	}{
		{"empty text", map[string]any{"text": "   "}},
		{"unknown voice", map[string]any{"text": "Oi", "voice": "Nobody"}},
		{"bad behavior", map[string]any{"text": "Hi", "language": "en", "englishBehavior": "shout"}},
		{"malformed json", "not an object"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(http.MethodPost, "/process", tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			body := decode(t, rec)
			require.Equal(t, false, body["success"])
			require.NotEmpty(t, body["error"])
		})
	}

	require.Equal(t, uint64(0), env.orch.Generation())
}

func TestMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/process"},
		{http.MethodGet, "/play"},
		{http.MethodGet, "/stop"},
		{http.MethodPost, "/events"},
		{http.MethodPost, "/state"},
		{http.MethodPost, "/voices"},
		{http.MethodDelete, "/runs"},
		{http.MethodPut, "/health"},
		{http.MethodPost, "/config"},
	}

	for _, tt := range tests {
		rec := env.do(tt.method, tt.path, nil)
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s %s: expected 405, got %d", tt.method, tt.path, rec.Code)
		}
	}
}

func TestPlayAndStop(t *testing.T) {
	env := newTestEnv(t)
	sub := env.bus.Subscribe()
	defer sub.Close()

	rec := env.do(http.MethodPost, "/play", map[string]any{
		"audioData": base64.StdEncoding.EncodeToString(testPCM),
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Success bool            `json:"success"`
		Handle  playback.Handle `json:"handle"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.True(t, body.Success)
	require.Equal(t, len(testPCM)+44, body.Handle.Size)

	select {
	case msg := <-sub.C():
		require.Equal(t, events.TypePlayAudio, msg.Type)
	case <-time.After(time.Second):
		t.Fatal("expected PLAY_AUDIO on the bus")
	}

	require.Equal(t, http.StatusOK, env.do(http.MethodGet, body.Handle.URL, nil).Code)

	require.Equal(t, http.StatusOK, env.do(http.MethodPost, "/stop", nil).Code)
	require.Equal(t, http.StatusNotFound, env.do(http.MethodGet, body.Handle.URL, nil).Code)
}

func TestPlayRejectsBadAudio(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/play", map[string]any{"audioData": "%%%"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, false, decode(t, rec)["success"])
}

func TestAudioNotFound(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		path string
		code int
	}{
		{"/audio/missing.wav", http.StatusNotFound},
		{"/audio/missing", http.StatusBadRequest},
		{"/audio/.wav", http.StatusBadRequest},
	}

	for _, tt := range tests {
		rec := env.do(http.MethodGet, tt.path, nil)
		if rec.Code != tt.code {
			t.Errorf("GET %s: expected %d, got %d", tt.path, tt.code, rec.Code)
		}
	}
}

func TestRunDetailErrors(t *testing.T) {
	env := newTestEnv(t)

	require.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/runs/abc", nil).Code)
	require.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/runs/42", nil).Code)
}

func TestVoicesAndState(t *testing.T) {
	env := newTestEnv(t)

	voices := decode(t, env.do(http.MethodGet, "/voices", nil))
	require.Equal(t, gemini.DefaultVoice, voices["default"])
	require.Len(t, voices["voices"], len(gemini.Voices()))

	state := env.do(http.MethodGet, "/state", nil)
	require.Equal(t, http.StatusOK, state.Code)
	require.Contains(t, decode(t, state), "state")
}

func TestConfigOmitsAPIKey(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/config", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotContains(t, rec.Body.String(), "secret-key")

	body := decode(t, rec)
	geminiSection := body["gemini"].(map[string]any)
	require.Equal(t, true, geminiSection["api_key_set"])
}

func TestHealthAndRoot(t *testing.T) {
	env := newTestEnv(t)

	health := decode(t, env.do(http.MethodGet, "/health", nil))
	require.Equal(t, "healthy", health["status"])
	components := health["components"].(map[string]any)
	require.Contains(t, components, "bus")
	require.Contains(t, components, "gemini")
	require.NotContains(t, components, "redis_mirror")

	root := decode(t, env.do(http.MethodGet, "/", nil))
	require.Contains(t, root, "endpoints")

	require.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/nope", nil).Code)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.do(http.MethodGet, "/health", nil)

	rec := env.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "gspeech_http_requests_total")
}

func TestEventsStream(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.server.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, ": connected\n", line)

	env.bus.Publish(events.TranslationComplete(7, "Olá"))

	var eventLine, dataLine string
	for eventLine == "" || dataLine == "" {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		switch {
		case strings.HasPrefix(line, "event: "):
			eventLine = strings.TrimSpace(strings.TrimPrefix(line, "event: "))
		case strings.HasPrefix(line, "data: "):
			dataLine = strings.TrimSpace(strings.TrimPrefix(line, "data: "))
		}
	}

	require.Equal(t, string(events.TypeTranslationComplete), eventLine)

	var msg events.Message
	require.NoError(t, json.Unmarshal([]byte(dataLine), &msg))
	require.Equal(t, "Olá", msg.Text)
	require.Equal(t, uint64(7), msg.Generation)
}
