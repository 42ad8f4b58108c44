// Package gemini is the remote speech and translation client.
//
// Translate selects one of two backends per call: the Gemini cloud API
// (authenticated with an API key) or a self-hosted wrapper addressed by URL
// that accepts {"prompt": ...} and answers {"response": ...}. Synthesize
// always uses the cloud text-to-speech model and returns raw 24 kHz mono
// 16-bit PCM.
//
// Every failure is an *Error whose Kind is one of NetworkError, ApiError,
// EmptyResult or UnexpectedFormat. Calls are never retried.
package gemini
