package playback

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/robertov8/gspeech/internal/audio"
	"github.com/robertov8/gspeech/internal/metrics"
)

// Output renders a payload. Play blocks until the audio finished or ctx is
// cancelled.
type Output interface {
	Play(ctx context.Context, p audio.Payload) error
}

// Handle identifies a playable audio resource
type Handle struct {
	ID        string        `json:"id"`
	URL       string        `json:"url"`
	Size      int           `json:"size_bytes"`
	Duration  time.Duration `json:"duration"`
	CreatedAt time.Time     `json:"created_at"`
}

// Config contains playback surface configuration
type Config struct {
	HandleTTL     time.Duration
	CleanupPeriod time.Duration // zero derives it from HandleTTL
}

type entry struct {
	handle    Handle
	container audio.Container
	expiresAt time.Time
}

type activePlayback struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{} // nil without an Output
}

// Surface owns audio resources for playback. At most one playback is
// active; starting another stops and revokes the previous one.
type Surface struct {
	output  Output
	ttl     time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics

	handles map[string]*entry
	active  *activePlayback
	mu      sync.Mutex
	playMu  sync.Mutex // serializes Play and Stop

	now func() time.Time

	// Cleanup management
	ctx     context.Context
	cancel  context.CancelFunc
	cleanup chan struct{}
}

// NewSurface creates a surface and starts its handle cleanup routine. A
// nil output leaves rendering to whoever fetches the handle.
func NewSurface(config Config, output Output, m *metrics.Metrics, logger *slog.Logger) *Surface {
	if config.HandleTTL <= 0 {
		config.HandleTTL = 10 * time.Minute
	}
	if config.CleanupPeriod <= 0 {
		config.CleanupPeriod = config.HandleTTL / 4
		if config.CleanupPeriod > 30*time.Second {
			config.CleanupPeriod = 30 * time.Second
		}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Surface{
		output:  output,
		ttl:     config.HandleTTL,
		logger:  logger,
		metrics: m,
		handles: make(map[string]*entry),
		now:     time.Now,
		ctx:     ctx,
		cancel:  cancel,
		cleanup: make(chan struct{}),
	}

	go s.startCleanupRoutine(config.CleanupPeriod)

	return s
}

// Play builds the container for p, registers it under a new handle and
// starts it, superseding any active playback.
func (s *Surface) Play(ctx context.Context, p audio.Payload) (Handle, error) {
	container, err := audio.BuildContainer(p)
	if err != nil {
		return Handle{}, fmt.Errorf("failed to build audio container: %w", err)
	}

	s.playMu.Lock()
	defer s.playMu.Unlock()

	replaced, err := s.stopActive(ctx)
	if err != nil {
		return Handle{}, err
	}

	id := uuid.NewString()
	now := s.now()
	handle := Handle{
		ID:        id,
		URL:       "/audio/" + id + ".wav",
		Size:      container.Len(),
		Duration:  p.Duration(),
		CreatedAt: now,
	}

	playCtx, cancel := context.WithCancel(s.ctx)
	active := &activePlayback{id: id, cancel: cancel}
	if s.output != nil {
		active.done = make(chan struct{})
	}

	s.mu.Lock()
	s.handles[id] = &entry{handle: handle, container: container, expiresAt: now.Add(s.ttl)}
	s.active = active
	s.reportHandles()
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordPlaybackStarted(p.Duration().Seconds(), replaced)
	}
	s.logger.Info("Playback started",
		slog.String("handle", id),
		slog.Duration("duration", p.Duration()),
		slog.Bool("replaced", replaced))

	if s.output != nil {
		go s.render(playCtx, active, p)
	}

	return handle, nil
}

// render drives the output and revokes the handle when it finishes
func (s *Surface) render(ctx context.Context, active *activePlayback, p audio.Payload) {
	defer close(active.done)

	err := s.output.Play(ctx, p)
	if err != nil && ctx.Err() == nil {
		s.logger.Error("Playback failed",
			slog.String("handle", active.id),
			slog.String("error", err.Error()))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == active {
		s.active = nil
	}
	s.revoke(active.id)
	s.logger.Debug("Playback ended", slog.String("handle", active.id))
}

// stopActive cancels and revokes the active playback, waiting for its
// output to return. Caller holds playMu.
func (s *Surface) stopActive(ctx context.Context) (bool, error) {
	s.mu.Lock()
	prev := s.active
	s.active = nil
	if prev != nil {
		s.revoke(prev.id)
	}
	s.mu.Unlock()

	if prev == nil {
		return false, nil
	}

	prev.cancel()
	if prev.done != nil {
		select {
		case <-prev.done:
		case <-ctx.Done():
			return true, fmt.Errorf("waiting for previous playback to stop: %w", ctx.Err())
		}
	}
	return true, nil
}

// Open returns the container behind a live handle
func (s *Surface) Open(id string) (audio.Container, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.handles[id]
	if !ok {
		return audio.Container{}, false
	}
	return e.container, true
}

// Stop ends the active playback, if any, and revokes its handle
func (s *Surface) Stop() {
	s.playMu.Lock()
	defer s.playMu.Unlock()

	if stopped, _ := s.stopActive(context.Background()); stopped {
		s.logger.Info("Playback stopped")
	}
}

// Active returns the handle of the active playback
func (s *Surface) Active() (Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil {
		return Handle{}, false
	}
	e, ok := s.handles[s.active.id]
	if !ok {
		return Handle{}, false
	}
	return e.handle, true
}

// Count returns the number of live handles
func (s *Surface) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}

// Close stops playback, revokes every handle and stops the cleanup routine
func (s *Surface) Close() {
	s.Stop()
	s.cancel()
	<-s.cleanup

	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.handles {
		s.revoke(id)
	}
}

// revoke must be called with s.mu held
func (s *Surface) revoke(id string) {
	if _, ok := s.handles[id]; !ok {
		return
	}
	delete(s.handles, id)
	s.reportHandles()
}

func (s *Surface) reportHandles() {
	if s.metrics != nil {
		s.metrics.SetHandlesActive(len(s.handles))
	}
}

// startCleanupRoutine runs in a separate goroutine to expire unused handles
func (s *Surface) startCleanupRoutine(period time.Duration) {
	defer close(s.cleanup)

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	s.logger.Debug("Handle cleanup routine started",
		slog.Duration("ttl", s.ttl),
		slog.Duration("check_interval", period))

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.cleanupExpired()
		}
	}
}

// cleanupExpired revokes handles past their TTL. A handle being rendered
// by the output is kept until rendering ends.
func (s *Surface) cleanupExpired() int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	expired := 0
	for id, e := range s.handles {
		if now.Before(e.expiresAt) {
			continue
		}
		if s.active != nil && s.active.id == id {
			if s.active.done != nil {
				continue
			}
			s.active.cancel()
			s.active = nil
		}
		s.revoke(id)
		expired++
	}

	if expired > 0 {
		s.logger.Debug("Expired audio handles", slog.Int("count", expired))
	}
	return expired
}
