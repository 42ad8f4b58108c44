// Package audio handles raw PCM payloads and their WAV container.
// Remote speech arrives as base64 s16le mono PCM at 24 kHz; it is wrapped in a
// fixed 44-byte RIFF/WAVE header so any generic player can decode it.
package audio
