package gemini

import (
	"errors"
)

// Kind classifies a remote call failure
type Kind string

const (
	KindNetwork          Kind = "NetworkError"
	KindAPI              Kind = "ApiError"
	KindEmptyResult      Kind = "EmptyResult"
	KindUnexpectedFormat Kind = "UnexpectedFormat"
)

// Sentinels for errors.Is. Every *Error matches the sentinel of its Kind.
var (
	ErrNetwork          = errors.New("network error")
	ErrAPI              = errors.New("api error")
	ErrEmptyResult      = errors.New("empty result")
	ErrUnexpectedFormat = errors.New("unexpected response format")
)

var kindSentinels = map[Kind]error{
	KindNetwork:          ErrNetwork,
	KindAPI:              ErrAPI,
	KindEmptyResult:      ErrEmptyResult,
	KindUnexpectedFormat: ErrUnexpectedFormat,
}

// Error is returned by every Client operation. Message is user-facing and
// is what Error() reports.
type Error struct {
	Kind       Kind
	Op         string // "translate" or "synthesize"
	Backend    string // "cloud" or "wrapper"
	Endpoint   string // request URL without credentials
	StatusCode int    // set for KindAPI
	Message    string
	Err        error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for e.Kind
func (e *Error) Is(target error) bool {
	sentinel, ok := kindSentinels[e.Kind]
	return ok && target == sentinel
}

// KindOf returns the Kind of the first *Error in err's chain, or "" if none
func KindOf(err error) Kind {
	var gerr *Error
	if errors.As(err, &gerr) {
		return gerr.Kind
	}
	return ""
}
