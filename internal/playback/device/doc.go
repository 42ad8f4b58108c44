// Package device implements playback.Output on the local sound card
// through PortAudio.
package device
