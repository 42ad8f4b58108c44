package pipeline

import (
	"sync"
	"time"
)

// State of a run
type State string

const (
	StateIdle            State = "idle"
	StateTranslating     State = "translating"
	StateSynthesizing    State = "synthesizing"
	StatePlaybackHandoff State = "playback_handoff"
	StateDone            State = "done"
	StateFailed          State = "failed"
)

// Terminal reports whether no further transition can happen
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// OutcomeKind tags an Outcome
type OutcomeKind string

const (
	OutcomeTranslated OutcomeKind = "translated"
	OutcomeAudioReady OutcomeKind = "audio_ready"
	OutcomeFailed     OutcomeKind = "failed"
)

// Failure reasons recorded on Outcome.Reason besides the remote error kinds
const (
	ReasonTranslationFailed = "TranslationFailed"
	ReasonPlaybackFailed    = "PlaybackFailed"
)

// Outcome is the result of a run
type Outcome struct {
	Kind       OutcomeKind `json:"kind"`
	Text       string      `json:"text,omitempty"`        // translated text
	AudioBytes int         `json:"audio_bytes,omitempty"` // PCM size for AudioReady
	Reason     string      `json:"reason,omitempty"`      // machine-readable failure kind
	Cause      string      `json:"cause,omitempty"`       // remote error kind behind Reason
	Message    string      `json:"message,omitempty"`     // human-readable failure
}

// Record is the diagnostic view of one run
type Record struct {
	Generation uint64    `json:"generation"`
	State      State     `json:"state"`
	Language   string    `json:"language"`
	Voice      string    `json:"voice"`
	Backend    string    `json:"backend,omitempty"`
	Outcome    *Outcome  `json:"outcome,omitempty"`
	Stale      bool      `json:"stale"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// history keeps the most recent run records in a ring
type history struct {
	records []Record
	next    int
	full    bool
	mu      sync.RWMutex
}

func newHistory(size int) *history {
	if size < 1 {
		size = 1
	}
	return &history{records: make([]Record, size)}
}

// upsert stores rec, replacing an existing record of the same generation
func (h *history) upsert(rec Record) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i := range h.records {
		if (h.full || i < h.next) && h.records[i].Generation == rec.Generation {
			h.records[i] = rec
			return
		}
	}

	h.records[h.next] = rec
	h.next = (h.next + 1) % len(h.records)
	if h.next == 0 {
		h.full = true
	}
}

// list returns records newest first
func (h *history) list() []Record {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := h.next
	if h.full {
		n = len(h.records)
	}
	out := make([]Record, 0, n)
	for i := 1; i <= n; i++ {
		idx := (h.next - i + len(h.records)) % len(h.records)
		out = append(out, h.records[idx])
	}
	return out
}

func (h *history) get(generation uint64) (Record, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for i := range h.records {
		if (h.full || i < h.next) && h.records[i].Generation == generation {
			return h.records[i], true
		}
	}
	return Record{}, false
}
