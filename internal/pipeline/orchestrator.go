package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robertov8/gspeech/internal/audio"
	"github.com/robertov8/gspeech/internal/events"
	"github.com/robertov8/gspeech/internal/gemini"
	"github.com/robertov8/gspeech/internal/metrics"
	"github.com/robertov8/gspeech/internal/playback"
)

// Status messages shown to the user
const (
	msgTranslating      = "Traduzindo para Português..."
	msgTranslated       = "Tradução concluída."
	msgTranslatedOnly   = "Traduzido (Áudio ignorado nas configurações)."
	msgAudioSkipped     = "Concluído (geração de áudio desativada)."
	msgGenerating       = "Gerando áudio..."
	msgStartingPlayback = "Iniciando reprodução..."
	msgAudioReady       = "Áudio pronto para ouvir."
	msgErrorPrefix      = "Erro: "
)

var errEmptyTranslation = errors.New("A tradução retornou um texto vazio.")

// Translator converts text through a cloud or wrapper backend
type Translator interface {
	Translate(ctx context.Context, text, credential, endpointOverride string) (string, error)
}

// Synthesizer converts text to speech
type Synthesizer interface {
	Synthesize(ctx context.Context, text, credential, voice string) (audio.Payload, error)
}

// Player receives synthesized audio for playback
type Player interface {
	Play(ctx context.Context, p audio.Payload) (playback.Handle, error)
}

// Options contains orchestrator configuration
type Options struct {
	// WrapperSupported enables self-hosted translation endpoints. When
	// false, request endpoints are ignored and the cloud backend is used.
	WrapperSupported bool

	DefaultLanguage        string
	DefaultEnglishBehavior string
	DefaultVoice           string
	DefaultAPIKey          string
	DefaultEndpoint        string

	RunTimeout  time.Duration // zero disables
	HistorySize int
}

// Ack is returned as soon as a request is accepted
type Ack struct {
	Accepted   bool   `json:"success"`
	Generation uint64 `json:"generation"`
}

// Orchestrator runs requests through translation, synthesis and playback
// hand-off. It holds no UI state; progress is only published as messages.
type Orchestrator struct {
	translator  Translator
	synthesizer Synthesizer
	player      Player
	publisher   events.Publisher
	options     Options
	metrics     *metrics.Metrics
	logger      *slog.Logger

	generation atomic.Uint64
	history    *history
	wg         sync.WaitGroup
}

// NewOrchestrator creates an orchestrator. player, m and logger may be nil.
func NewOrchestrator(translator Translator, synthesizer Synthesizer, player Player,
	publisher events.Publisher, options Options, m *metrics.Metrics, logger *slog.Logger) *Orchestrator {
	if options.DefaultLanguage == "" {
		options.DefaultLanguage = "pt-BR"
	}
	if options.DefaultEnglishBehavior == "" {
		options.DefaultEnglishBehavior = string(TranslateAndSpeak)
	}
	if options.DefaultVoice == "" {
		options.DefaultVoice = gemini.DefaultVoice
	}
	if options.HistorySize <= 0 {
		options.HistorySize = 32
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Orchestrator{
		translator:  translator,
		synthesizer: synthesizer,
		player:      player,
		publisher:   publisher,
		options:     options,
		metrics:     m,
		logger:      logger,
		history:     newHistory(options.HistorySize),
	}
}

// Submit validates req and starts its run in the background
func (o *Orchestrator) Submit(req Request) (Ack, error) {
	req, err := o.normalize(req)
	if err != nil {
		return Ack{}, err
	}

	r := o.begin(req)

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ctx, cancel := o.runContext(context.Background())
		defer cancel()
		r.execute(ctx)
	}()

	return Ack{Accepted: true, Generation: r.gen}, nil
}

// Run validates req and runs it to completion on the calling goroutine
func (o *Orchestrator) Run(ctx context.Context, req Request) (Record, error) {
	req, err := o.normalize(req)
	if err != nil {
		return Record{}, err
	}

	r := o.begin(req)

	ctx, cancel := o.runContext(ctx)
	defer cancel()
	r.execute(ctx)

	return r.rec, nil
}

// PlayDirect plays base64 PCM without running the pipeline
func (o *Orchestrator) PlayDirect(ctx context.Context, audioData string) (playback.Handle, error) {
	if o.player == nil {
		return playback.Handle{}, fmt.Errorf("playback is not available")
	}

	payload, err := audio.DecodeBase64PCM(audioData)
	if err != nil {
		return playback.Handle{}, fmt.Errorf("%w: audioData: %w", ErrInvalidRequest, err)
	}

	o.publisher.Publish(events.PlayAudio(audioData))
	return o.player.Play(ctx, payload)
}

// Runs returns the most recent run records, newest first
func (o *Orchestrator) Runs() []Record {
	return o.history.list()
}

// GetRun returns the record of one generation if still kept
func (o *Orchestrator) GetRun(generation uint64) (Record, bool) {
	return o.history.get(generation)
}

// Generation returns the latest issued generation
func (o *Orchestrator) Generation() uint64 {
	return o.generation.Load()
}

// Wait blocks until background runs finish or ctx is done
func (o *Orchestrator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) runContext(parent context.Context) (context.Context, context.CancelFunc) {
	if o.options.RunTimeout > 0 {
		return context.WithTimeout(parent, o.options.RunTimeout)
	}
	return context.WithCancel(parent)
}

// begin stamps a new generation and announces it
func (o *Orchestrator) begin(req Request) *run {
	gen := o.generation.Add(1)

	backend := ""
	if req.needsTranslation() {
		backend = "cloud"
		if req.LocalEndpoint != "" {
			backend = "wrapper"
		}
	}

	r := &run{
		o:     o,
		gen:   gen,
		req:   req,
		start: time.Now(),
		rec: Record{
			Generation: gen,
			State:      StateIdle,
			Language:   req.Language,
			Voice:      req.Voice,
			Backend:    backend,
			StartedAt:  time.Now(),
		},
	}
	o.history.upsert(r.rec)

	if o.metrics != nil {
		o.metrics.RecordRunStarted()
	}
	o.logger.Info("Processing request accepted",
		slog.Uint64("generation", gen),
		slog.String("language", req.Language),
		slog.String("voice", req.Voice),
		slog.String("english_behavior", string(req.EnglishBehavior)),
		slog.Bool("skip_audio", req.SkipAudio),
		slog.Int("text_length", len(req.Text)))

	o.publisher.Publish(events.StartProcess(gen))
	return r
}

// run is the state of one request
type run struct {
	o     *Orchestrator
	gen   uint64
	req   Request
	rec   Record
	start time.Time
}

func (r *run) execute(ctx context.Context) {
	text := r.req.Text

	if r.req.needsTranslation() {
		r.transition(StateTranslating)
		if !r.status(msgTranslating, events.SeverityInfo, false, events.PhaseNone) {
			return
		}

		translated, err := r.o.translator.Translate(ctx, text, r.req.APIKey, r.req.LocalEndpoint)
		if r.superseded() {
			return
		}
		if err == nil && strings.TrimSpace(translated) == "" {
			err = errEmptyTranslation
		}
		if err != nil {
			r.fail(ReasonTranslationFailed, err)
			return
		}
		text = translated

		r.broadcast(events.TranslationComplete(r.gen, text))

		switch {
		case r.req.EnglishBehavior == TranslateOnly:
			r.finish(&Outcome{Kind: OutcomeTranslated, Text: text}, msgTranslatedOnly)
			return
		case r.req.SkipAudio:
			r.finish(&Outcome{Kind: OutcomeTranslated, Text: text}, msgAudioSkipped)
			return
		}

		if !r.status(msgTranslated, events.SeveritySuccess, false, events.PhaseNone) {
			return
		}
	} else if r.req.SkipAudio {
		r.finish(&Outcome{Kind: OutcomeTranslated, Text: text}, msgAudioSkipped)
		return
	}

	r.transition(StateSynthesizing)
	if !r.status(msgGenerating, events.SeverityInfo, false, events.PhaseNone) {
		return
	}

	payload, err := r.o.synthesizer.Synthesize(ctx, text, r.req.APIKey, r.req.Voice)
	if r.superseded() {
		return
	}
	if err != nil {
		r.fail(string(gemini.KindOf(err)), err)
		return
	}

	r.transition(StatePlaybackHandoff)
	if !r.status(msgStartingPlayback, events.SeveritySuccess, true, events.PhaseAccepted) {
		return
	}
	if !r.broadcast(events.AudioReady(r.gen, payload.EncodeBase64())) {
		return
	}

	if r.o.player != nil {
		if _, err := r.o.player.Play(ctx, payload); err != nil {
			r.fail(ReasonPlaybackFailed, err)
			return
		}
	}

	outcome := &Outcome{Kind: OutcomeAudioReady, AudioBytes: len(payload.PCM)}
	if r.req.needsTranslation() {
		outcome.Text = text
	}
	r.complete(StateDone, outcome)
	r.status(msgAudioReady, events.SeveritySuccess, true, events.PhaseConfirmed)
}

// superseded marks the run stale once a newer generation exists
func (r *run) superseded() bool {
	if r.rec.Stale {
		return true
	}
	if r.o.generation.Load() == r.gen {
		return false
	}

	r.rec.Stale = true
	if !r.rec.State.Terminal() {
		r.rec.FinishedAt = time.Now()
		if r.o.metrics != nil {
			r.o.metrics.RecordRunStale()
			r.o.metrics.RecordRunFinished("stale", time.Since(r.start).Seconds())
		}
	}
	r.o.history.upsert(r.rec)

	r.o.logger.Debug("Discarding stale run",
		slog.Uint64("generation", r.gen),
		slog.Uint64("latest", r.o.generation.Load()),
		slog.String("state", string(r.rec.State)))
	return true
}

// status publishes a status event unless the run went stale
func (r *run) status(message string, severity events.Severity, terminal bool, phase events.Phase) bool {
	return r.broadcast(events.StatusMessage(events.StatusEvent{
		Message:    message,
		Severity:   severity,
		Terminal:   terminal,
		Phase:      phase,
		Generation: r.gen,
	}))
}

func (r *run) broadcast(msg events.Message) bool {
	if r.superseded() {
		return false
	}
	r.o.publisher.Publish(msg)
	return true
}

func (r *run) transition(state State) {
	r.rec.State = state
	r.o.history.upsert(r.rec)
}

func (r *run) finish(outcome *Outcome, message string) {
	if r.superseded() {
		return
	}
	r.complete(StateDone, outcome)
	r.status(message, events.SeveritySuccess, true, events.PhaseNone)
}

func (r *run) fail(reason string, err error) {
	if reason == "" {
		reason = "Error"
	}

	outcome := &Outcome{
		Kind:    OutcomeFailed,
		Reason:  reason,
		Cause:   string(gemini.KindOf(err)),
		Message: userMessage(err),
	}
	r.complete(StateFailed, outcome)

	r.o.logger.Warn("Processing failed",
		slog.Uint64("generation", r.gen),
		slog.String("reason", reason),
		slog.String("error", err.Error()))

	r.status(msgErrorPrefix+outcome.Message, events.SeverityError, true, events.PhaseNone)
}

func (r *run) complete(state State, outcome *Outcome) {
	r.rec.State = state
	r.rec.Outcome = outcome
	r.rec.FinishedAt = time.Now()
	r.o.history.upsert(r.rec)

	elapsed := time.Since(r.start)
	if r.o.metrics != nil {
		r.o.metrics.RecordRunFinished(string(state), elapsed.Seconds())
	}
	r.o.logger.Info("Processing finished",
		slog.Uint64("generation", r.gen),
		slog.String("state", string(state)),
		slog.Duration("elapsed", elapsed))
}

// userMessage prefers the remote error's own message over the wrapped chain
func userMessage(err error) string {
	var gerr *gemini.Error
	if errors.As(err, &gerr) {
		return gerr.Message
	}
	return err.Error()
}
