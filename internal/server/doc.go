// Package server implements the HTTP API used by sidebar clients: request
// submission, direct playback, the Server-Sent-Events progress stream,
// audio handle retrieval and the monitoring endpoints.
package server
