package events

import (
	"time"
)

// Type identifies a message on the bus
type Type string

const (
	TypeStartProcess        Type = "START_PROCESS"
	TypeStatusUpdate        Type = "STATUS_UPDATE"
	TypeTranslationComplete Type = "TRANSLATION_COMPLETE"
	TypeAudioReady          Type = "AUDIO_READY"
	TypePlayAudio           Type = "PLAY_AUDIO"
)

// Severity of a status event
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
)

// Phase separates the optimistic playback status from the confirmed one
type Phase string

const (
	PhaseNone      Phase = ""
	PhaseAccepted  Phase = "accepted"
	PhaseConfirmed Phase = "confirmed"
)

// StatusEvent is informational progress for one run. Receivers must
// tolerate losing any of them.
type StatusEvent struct {
	Message    string   `json:"message"`
	Severity   Severity `json:"type"`
	Terminal   bool     `json:"finished"`
	Phase      Phase    `json:"phase,omitempty"`
	Generation uint64   `json:"generation"`
}

// Message is the unit carried by the Bus. Only the fields relevant to
// Type are set.
type Message struct {
	Type       Type         `json:"type"`
	Generation uint64       `json:"generation,omitempty"`
	Status     *StatusEvent `json:"status,omitempty"`
	Text       string       `json:"text,omitempty"`      // TRANSLATION_COMPLETE
	AudioData  string       `json:"audioData,omitempty"` // base64 PCM for AUDIO_READY and PLAY_AUDIO
	Timestamp  time.Time    `json:"timestamp"`
}

// StatusMessage wraps a status event
func StatusMessage(status StatusEvent) Message {
	return Message{
		Type:       TypeStatusUpdate,
		Generation: status.Generation,
		Status:     &status,
		Timestamp:  time.Now(),
	}
}

// TranslationComplete carries a finished translation
func TranslationComplete(generation uint64, text string) Message {
	return Message{
		Type:       TypeTranslationComplete,
		Generation: generation,
		Text:       text,
		Timestamp:  time.Now(),
	}
}

// AudioReady carries synthesized audio as base64 PCM
func AudioReady(generation uint64, audioData string) Message {
	return Message{
		Type:       TypeAudioReady,
		Generation: generation,
		AudioData:  audioData,
		Timestamp:  time.Now(),
	}
}

// PlayAudio is a direct playback request that bypasses the pipeline
func PlayAudio(audioData string) Message {
	return Message{
		Type:      TypePlayAudio,
		AudioData: audioData,
		Timestamp: time.Now(),
	}
}

// StartProcess announces an accepted processing request
func StartProcess(generation uint64) Message {
	return Message{
		Type:       TypeStartProcess,
		Generation: generation,
		Timestamp:  time.Now(),
	}
}

// IsTerminal reports whether the message ends a run from the receiver's view
func (m Message) IsTerminal() bool {
	return m.Status != nil && m.Status.Terminal
}
