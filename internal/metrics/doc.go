// Package metrics defines the Prometheus collectors for runs, remote
// calls, the event bus, playback and the HTTP API.
package metrics
