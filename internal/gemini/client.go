package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/robertov8/gspeech/internal/audio"
	"github.com/robertov8/gspeech/internal/metrics"
)

const (
	opTranslate  = "translate"
	opSynthesize = "synthesize"

	backendCloud   = "cloud"
	backendWrapper = "wrapper"
)

// TranslatePrompt prefixes the source text in every translation request
const TranslatePrompt = "Translate the following text to Portuguese (Brazil). Return ONLY the translated text, nothing else:\n\n"

// Client talks to the Gemini generateContent API and to self-hosted
// translation wrappers.
type Client struct {
	config     Config
	httpClient *http.Client
	metrics    *metrics.Metrics
	logger     *slog.Logger

	// Statistics
	totalRequests   uint64
	successRequests uint64
	failedRequests  uint64
	avgResponseTime time.Duration

	mu sync.RWMutex
}

// Config contains remote client configuration
type Config struct {
	BaseURL        string
	TranslateModel string
	TTSModel       string
	HTTPClient     *http.Client // nil uses a client without timeout
}

// ClientStats represents client statistics
type ClientStats struct {
	TotalRequests   uint64        `json:"total_requests"`
	SuccessRequests uint64        `json:"success_requests"`
	FailedRequests  uint64        `json:"failed_requests"`
	SuccessRate     float64       `json:"success_rate"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
}

// NewClient creates a new remote client. m and logger may be nil.
func NewClient(config Config, m *metrics.Metrics, logger *slog.Logger) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}
	if config.TranslateModel == "" || config.TTSModel == "" {
		return nil, fmt.Errorf("translate and TTS models must be set")
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	httpClient := config.HTTPClient
	if httpClient == nil {
		// Callers bound each call through the context.
		httpClient = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}

	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Client{
		config:     config,
		httpClient: httpClient,
		metrics:    m,
		logger:     logger,
	}, nil
}

// Translate converts text to Brazilian Portuguese. A non-empty
// endpointOverride selects the wrapper protocol and no credential is sent;
// otherwise the cloud API is called with credential.
func (c *Client) Translate(ctx context.Context, text, credential, endpointOverride string) (string, error) {
	prompt := TranslatePrompt + text

	var (
		translated string
		err        error
		backend    = backendCloud
	)
	start := time.Now()

	if strings.TrimSpace(endpointOverride) != "" {
		backend = backendWrapper
		translated, err = c.translateWrapper(ctx, prompt, endpointOverride)
	} else {
		translated, err = c.translateCloud(ctx, prompt, credential)
	}
	if err == nil {
		translated = strings.TrimSpace(translated)
		if translated == "" {
			err = &Error{
				Kind:    KindEmptyResult,
				Op:      opTranslate,
				Backend: backend,
				Message: "A tradução retornou um texto vazio.",
			}
		}
	}

	c.record(opTranslate, backend, err, time.Since(start))
	if err != nil {
		return "", err
	}
	return translated, nil
}

func (c *Client) translateCloud(ctx context.Context, prompt, credential string) (string, error) {
	endpoint := c.modelURL(c.config.TranslateModel)
	req := generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
	}

	var resp generateResponse
	if err := c.postJSON(ctx, opTranslate, backendCloud, endpoint, credential, req, &resp,
		"Erro na requisição de tradução para Gemini"); err != nil {
		return "", err
	}

	// A missing text part is an empty translation.
	if p := resp.firstPart(); p != nil {
		return p.Text, nil
	}
	return "", nil
}

func (c *Client) translateWrapper(ctx context.Context, prompt, endpoint string) (string, error) {
	endpoint = normalizeEndpoint(endpoint)

	var resp wrapperResponse
	if err := c.postJSON(ctx, opTranslate, backendWrapper, endpoint, "", wrapperRequest{Prompt: prompt}, &resp,
		"Erro na requisição para o servidor local"); err != nil {
		return "", err
	}
	return resp.Response, nil
}

// Synthesize generates speech for text with the named prebuilt voice. The
// returned payload is always signed 16-bit little-endian, 24 kHz mono.
func (c *Client) Synthesize(ctx context.Context, text, credential, voice string) (audio.Payload, error) {
	start := time.Now()
	payload, err := c.synthesize(ctx, text, credential, voice)
	c.record(opSynthesize, backendCloud, err, time.Since(start))
	if err != nil {
		return audio.Payload{}, err
	}
	if c.metrics != nil {
		c.metrics.RecordAudioSynthesized(len(payload.PCM))
	}
	return payload, nil
}

func (c *Client) synthesize(ctx context.Context, text, credential, voice string) (audio.Payload, error) {
	endpoint := c.modelURL(c.config.TTSModel)
	req := generateRequest{
		Contents: []content{{Parts: []part{{Text: text}}}},
		GenerationConfig: &generationConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig: &speechConfig{
				VoiceConfig: voiceConfig{
					PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: voice},
				},
			},
		},
	}

	var resp generateResponse
	if err := c.postJSON(ctx, opSynthesize, backendCloud, endpoint, credential, req, &resp,
		"Erro na requisição para Gemini TTS"); err != nil {
		return audio.Payload{}, err
	}

	p := resp.firstPart()
	if p == nil || p.InlineData == nil {
		msg := "Formato de resposta inesperado do Gemini ou texto retornado."
		if p != nil && p.Text != "" {
			c.logger.Warn("Model returned text instead of audio",
				slog.String("model", c.config.TTSModel),
				slog.Int("text_length", len(p.Text)))
		}
		return audio.Payload{}, &Error{
			Kind:     KindUnexpectedFormat,
			Op:       opSynthesize,
			Backend:  backendCloud,
			Endpoint: endpoint,
			Message:  msg,
		}
	}

	// The MIME type is ignored: the model always returns raw s16le 24 kHz mono.
	if strings.TrimSpace(p.InlineData.Data) == "" {
		return audio.Payload{}, &Error{
			Kind:     KindEmptyResult,
			Op:       opSynthesize,
			Backend:  backendCloud,
			Endpoint: endpoint,
			Message:  "O Gemini retornou áudio vazio.",
		}
	}

	payload, err := audio.DecodeBase64PCM(p.InlineData.Data)
	if err != nil {
		return audio.Payload{}, &Error{
			Kind:     KindUnexpectedFormat,
			Op:       opSynthesize,
			Backend:  backendCloud,
			Endpoint: endpoint,
			Message:  "Áudio retornado pelo Gemini é inválido.",
			Err:      err,
		}
	}

	return payload, nil
}

// postJSON sends body to endpoint and decodes a 2xx response into out.
// A non-empty credential is appended as the key query parameter; endpoint
// itself never carries it, so it is safe to log and to report.
func (c *Client) postJSON(ctx context.Context, op, backend, endpoint, credential string, body, out any, fallback string) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	target := endpoint
	if credential != "" {
		target += "?key=" + url.QueryEscape(credential)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return &Error{
			Kind:     KindNetwork,
			Op:       op,
			Backend:  backend,
			Endpoint: endpoint,
			Message:  fmt.Sprintf("Endereço inválido: %s", endpoint),
			Err:      err,
		}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", "gspeech/1.0")

	c.logger.Debug("Sending remote request",
		slog.String("operation", op),
		slog.String("backend", backend),
		slog.String("endpoint", endpoint))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return networkError(op, backend, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &Error{
			Kind:       KindAPI,
			Op:         op,
			Backend:    backend,
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Message:    apiErrorMessage(resp, fallback),
		}
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return networkError(op, backend, endpoint, err)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return &Error{
			Kind:     KindUnexpectedFormat,
			Op:       op,
			Backend:  backend,
			Endpoint: endpoint,
			Message:  "Resposta inválida do servidor remoto.",
			Err:      err,
		}
	}

	return nil
}

func networkError(op, backend, endpoint string, err error) *Error {
	msg := fmt.Sprintf("Falha de conexão com %s: %v", endpoint, unwrapURLError(err))
	if backend == backendWrapper && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		msg = fmt.Sprintf("Não foi possível conectar ao servidor local em %s. Verifique se o wrapper está em execução.", endpoint)
	}
	return &Error{
		Kind:     KindNetwork,
		Op:       op,
		Backend:  backend,
		Endpoint: endpoint,
		Message:  msg,
		Err:      err,
	}
}

// unwrapURLError strips the *url.Error wrapper, whose text repeats the URL
// including the credential query parameter.
func unwrapURLError(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return uerr.Err
	}
	return err
}

func (c *Client) modelURL(model string) string {
	return fmt.Sprintf("%s/models/%s:generateContent", c.config.BaseURL, model)
}

// normalizeEndpoint defaults a scheme-less wrapper URL to plain HTTP
func normalizeEndpoint(endpoint string) string {
	endpoint = strings.TrimSpace(endpoint)
	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}
	return endpoint
}

func (c *Client) record(op, backend string, err error, elapsed time.Duration) {
	result := "success"
	if err != nil {
		result = string(KindOf(err))
		if result == "" {
			result = "error"
		}
	}

	if c.metrics != nil {
		c.metrics.RecordRemoteRequest(op, backend, result, elapsed.Seconds())
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRequests++
	if err != nil {
		c.failedRequests++
		return
	}
	c.successRequests++

	// Simple moving average
	if c.avgResponseTime == 0 {
		c.avgResponseTime = elapsed
	} else {
		c.avgResponseTime = (c.avgResponseTime + elapsed) / 2
	}
}

// GetStats returns current client statistics
func (c *Client) GetStats() ClientStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	successRate := float64(0)
	if c.totalRequests > 0 {
		successRate = float64(c.successRequests) / float64(c.totalRequests) * 100
	}

	return ClientStats{
		TotalRequests:   c.totalRequests,
		SuccessRequests: c.successRequests,
		FailedRequests:  c.failedRequests,
		SuccessRate:     successRate,
		AvgResponseTime: c.avgResponseTime,
	}
}
