package ui

import (
	"github.com/robertov8/gspeech/internal/events"
)

// State is what a sidebar shows
type State struct {
	Loading            bool            `json:"loading"`
	Generation         uint64          `json:"generation"`
	StatusMessage      string          `json:"status_message"`
	StatusSeverity     events.Severity `json:"status_severity,omitempty"`
	PlaybackPhase      events.Phase    `json:"playback_phase,omitempty"`
	LastTranslatedText string          `json:"last_translated_text"`
	AudioReady         bool            `json:"audio_ready"`
	AudioGeneration    uint64          `json:"audio_generation,omitempty"`
}

// Reduce returns the state after msg. It does not modify s.
//
// Messages from a run older than the one being shown are ignored, so a
// late event from a superseded run cannot clear the loading flag of the
// current one.
func Reduce(s State, msg events.Message) State {
	if msg.Generation != 0 && msg.Generation < s.Generation {
		return s
	}

	switch msg.Type {
	case events.TypeStartProcess:
		s.Loading = true
		s.Generation = msg.Generation
		s.StatusMessage = ""
		s.StatusSeverity = ""
		s.PlaybackPhase = events.PhaseNone
		s.AudioReady = false

	case events.TypeStatusUpdate:
		if msg.Status == nil {
			return s
		}
		if msg.Generation > s.Generation {
			s.Generation = msg.Generation
		}
		s.StatusMessage = msg.Status.Message
		s.StatusSeverity = msg.Status.Severity
		if msg.Status.Phase != events.PhaseNone {
			s.PlaybackPhase = msg.Status.Phase
		}
		if msg.Status.Terminal {
			s.Loading = false
		}

	case events.TypeTranslationComplete:
		s.LastTranslatedText = msg.Text

	case events.TypeAudioReady:
		s.AudioReady = true
		s.AudioGeneration = msg.Generation

	case events.TypePlayAudio:
		s.AudioReady = true
		s.AudioGeneration = 0
	}

	return s
}
