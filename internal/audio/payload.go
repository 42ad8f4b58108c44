package audio

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

// Speech output format. The remote synthesizer always returns this layout,
// whatever MIME type it declares.
const (
	SpeechSampleRate    = 24000
	SpeechChannels      = 1
	SpeechBitsPerSample = 16
)

// Payload is a block of interleaved little-endian PCM samples
type Payload struct {
	PCM           []byte
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// NewSpeechPayload wraps raw PCM in the fixed speech format
func NewSpeechPayload(pcm []byte) Payload {
	return Payload{
		PCM:           pcm,
		SampleRate:    SpeechSampleRate,
		Channels:      SpeechChannels,
		BitsPerSample: SpeechBitsPerSample,
	}
}

// BlockAlign returns the size in bytes of one frame (all channels)
func (p Payload) BlockAlign() int {
	return p.Channels * p.BitsPerSample / 8
}

// ByteRate returns the number of bytes per second of audio
func (p Payload) ByteRate() int {
	return p.SampleRate * p.BlockAlign()
}

// Frames returns the number of sample frames in the payload
func (p Payload) Frames() int {
	align := p.BlockAlign()
	if align == 0 {
		return 0
	}
	return len(p.PCM) / align
}

// Duration returns the playback length of the payload
func (p Payload) Duration() time.Duration {
	if p.SampleRate <= 0 {
		return 0
	}
	return time.Duration(p.Frames()) * time.Second / time.Duration(p.SampleRate)
}

// Validate checks the format fields and the frame alignment of the samples
func (p Payload) Validate() error {
	if p.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", p.SampleRate)
	}
	if p.Channels <= 0 || p.Channels > 0xFFFF {
		return fmt.Errorf("channel count out of range: %d", p.Channels)
	}
	if p.BitsPerSample <= 0 || p.BitsPerSample%8 != 0 {
		return fmt.Errorf("bits per sample must be a positive multiple of 8, got %d", p.BitsPerSample)
	}
	if len(p.PCM)%p.BlockAlign() != 0 {
		return fmt.Errorf("pcm length %d is not a multiple of block align %d", len(p.PCM), p.BlockAlign())
	}
	return nil
}

// Samples16 decodes 16-bit samples; it assumes BitsPerSample is 16
func (p Payload) Samples16() []int16 {
	samples := make([]int16, len(p.PCM)/2)
	for i := range samples {
		samples[i] = int16(uint16(p.PCM[2*i]) | uint16(p.PCM[2*i+1])<<8)
	}
	return samples
}

// DecodeBase64PCM decodes a base64 speech blob into a payload in the fixed
// speech format. Surrounding whitespace is ignored.
func DecodeBase64PCM(data string) (Payload, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(data))
	if err != nil {
		return Payload{}, fmt.Errorf("failed to decode base64 audio: %w", err)
	}
	p := NewSpeechPayload(raw)
	if err := p.Validate(); err != nil {
		return Payload{}, err
	}
	return p, nil
}

// EncodeBase64 returns the PCM bytes as standard base64
func (p Payload) EncodeBase64() string {
	return base64.StdEncoding.EncodeToString(p.PCM)
}
