package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/robertov8/gspeech/internal/gemini"
)

// EnglishBehavior decides what happens to English text after translation
type EnglishBehavior string

const (
	TranslateOnly     EnglishBehavior = "translate_only"
	TranslateAndSpeak EnglishBehavior = "translate_and_speak"
)

// LanguageEnglish is the only language hint that triggers translation
const LanguageEnglish = "en"

// ErrInvalidRequest is wrapped by every validation failure
var ErrInvalidRequest = errors.New("invalid request")

// Request is one processing invocation. It is not modified once submitted.
type Request struct {
	Text            string          `json:"text"`
	APIKey          string          `json:"apiKey"`
	Voice           string          `json:"voice"`
	Language        string          `json:"language"`
	EnglishBehavior EnglishBehavior `json:"englishBehavior"`
	LocalEndpoint   string          `json:"localEndpoint,omitempty"`
	SkipAudio       bool            `json:"skipAudio,omitempty"`
}

// needsTranslation reports whether the run starts in Translating
func (r Request) needsTranslation() bool {
	return r.Language == LanguageEnglish
}

// needsSynthesis reports whether the run reaches Synthesizing
func (r Request) needsSynthesis() bool {
	if r.SkipAudio {
		return false
	}
	return !(r.needsTranslation() && r.EnglishBehavior == TranslateOnly)
}

// needsCloud reports whether any remote call will use the credential
func (r Request) needsCloud() bool {
	if r.needsSynthesis() {
		return true
	}
	return r.needsTranslation() && r.LocalEndpoint == ""
}

// normalize applies defaults and validates r
func (o *Orchestrator) normalize(r Request) (Request, error) {
	r.Text = strings.TrimSpace(r.Text)
	if r.Text == "" {
		return Request{}, fmt.Errorf("%w: text cannot be empty", ErrInvalidRequest)
	}

	r.APIKey = strings.TrimSpace(r.APIKey)
	if r.APIKey == "" {
		r.APIKey = o.options.DefaultAPIKey
	}

	if r.Language == "" {
		r.Language = o.options.DefaultLanguage
	}

	if r.EnglishBehavior == "" {
		r.EnglishBehavior = EnglishBehavior(o.options.DefaultEnglishBehavior)
	}
	if r.EnglishBehavior != TranslateOnly && r.EnglishBehavior != TranslateAndSpeak {
		return Request{}, fmt.Errorf("%w: englishBehavior must be %q or %q, got %q",
			ErrInvalidRequest, TranslateOnly, TranslateAndSpeak, r.EnglishBehavior)
	}

	voice := strings.TrimSpace(r.Voice)
	if voice == "" {
		voice = o.options.DefaultVoice
	}
	v, ok := gemini.LookupVoice(voice)
	if !ok {
		return Request{}, fmt.Errorf("%w: unknown voice %q", ErrInvalidRequest, voice)
	}
	r.Voice = v.Name

	r.LocalEndpoint = strings.TrimSpace(r.LocalEndpoint)
	if r.LocalEndpoint == "" {
		r.LocalEndpoint = o.options.DefaultEndpoint
	}
	if !o.options.WrapperSupported {
		r.LocalEndpoint = ""
	}

	if r.APIKey == "" && r.needsCloud() {
		return Request{}, fmt.Errorf("%w: apiKey is required", ErrInvalidRequest)
	}

	return r, nil
}
