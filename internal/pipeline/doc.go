// Package pipeline implements the processing orchestrator.
//
// A run moves through Idle, Translating (English input only),
// Synthesizing and PlaybackHandoff to Done, or to Failed at the first
// error. Progress is published as events.Message values; delivery is
// best-effort. Every accepted request gets a new generation number and a
// run that finds a newer generation discards the rest of its output.
package pipeline
