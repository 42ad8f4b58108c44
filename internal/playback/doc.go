// Package playback owns synthesized audio from container build to release.
//
// Surface.Play wraps a payload in a WAV container, exposes it under a
// short-lived handle (served as /audio/{id}.wav) and hands it to an Output.
// Only one playback is active at a time. Handles are revoked when their
// playback ends, when superseded, or when unused past their TTL.
package playback
