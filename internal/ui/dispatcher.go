package ui

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/robertov8/gspeech/internal/events"
)

// Dispatcher folds bus messages into State through Reduce and persists
// the cached fields.
type Dispatcher struct {
	state  State
	cache  Cache
	logger *slog.Logger
	mu     sync.RWMutex
}

// NewDispatcher creates a dispatcher. A nil cache keeps state in memory only.
func NewDispatcher(cache Cache, logger *slog.Logger) *Dispatcher {
	if cache == nil {
		cache = NewMemoryCache()
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Dispatcher{cache: cache, logger: logger}
}

// Restore seeds the state from the cache
func (d *Dispatcher) Restore(ctx context.Context) error {
	snap, err := d.cache.Load(ctx)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.state.LastTranslatedText = snap.LastTranslatedText
	d.state.StatusMessage = snap.LastStatus
	return nil
}

// Run dispatches messages from sub until ctx is done or sub is closed
func (d *Dispatcher) Run(ctx context.Context, sub *events.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.C():
			if !ok {
				return
			}
			d.Dispatch(ctx, msg)
		}
	}
}

// Dispatch applies one message and returns the new state
func (d *Dispatcher) Dispatch(ctx context.Context, msg events.Message) State {
	d.mu.Lock()
	prev := d.state
	next := Reduce(prev, msg)
	d.state = next
	d.mu.Unlock()

	if next.LastTranslatedText != prev.LastTranslatedText || (msg.IsTerminal() && next.StatusMessage != prev.StatusMessage) {
		snap := Snapshot{LastTranslatedText: next.LastTranslatedText, LastStatus: next.StatusMessage}
		if err := d.cache.Save(ctx, snap); err != nil {
			d.logger.Warn("Failed to save ui cache", slog.String("error", err.Error()))
		}
	}

	return next
}

// State returns the current state
func (d *Dispatcher) State() State {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}
