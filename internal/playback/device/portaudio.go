package device

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/robertov8/gspeech/internal/audio"
)

// Config contains output device configuration
type Config struct {
	FramesPerBuffer int
}

// PortaudioOutput plays payloads on the default output device
type PortaudioOutput struct {
	config Config
	logger *slog.Logger
	mu     sync.Mutex // one stream at a time
}

// NewPortaudioOutput initializes PortAudio. Call Terminate when done.
func NewPortaudioOutput(config Config, logger *slog.Logger) (*PortaudioOutput, error) {
	if config.FramesPerBuffer <= 0 {
		config.FramesPerBuffer = 1024
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}

	logger.Info("Audio output initialized",
		slog.String("portaudio", portaudio.VersionText()),
		slog.Int("frames_per_buffer", config.FramesPerBuffer))

	return &PortaudioOutput{config: config, logger: logger}, nil
}

// Play opens a stream matching the payload format and writes it out
// buffer by buffer, stopping early when ctx is cancelled.
func (o *PortaudioOutput) Play(ctx context.Context, p audio.Payload) error {
	if p.BitsPerSample != 16 {
		return fmt.Errorf("unsupported sample size %d bits", p.BitsPerSample)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	buffer := make([]int16, o.config.FramesPerBuffer*p.Channels)
	stream, err := portaudio.OpenDefaultStream(0, p.Channels, float64(p.SampleRate), o.config.FramesPerBuffer, buffer)
	if err != nil {
		return fmt.Errorf("failed to open output stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("failed to start output stream: %w", err)
	}
	defer stream.Stop()

	return writeSamples(ctx, p.Samples16(), buffer, stream.Write)
}

// writeSamples copies samples into buffer one block at a time, zero-filling
// the final block, and calls write after each copy.
func writeSamples(ctx context.Context, samples, buffer []int16, write func() error) error {
	for offset := 0; offset < len(samples); offset += len(buffer) {
		if err := ctx.Err(); err != nil {
			return err
		}

		n := copy(buffer, samples[offset:])
		for i := n; i < len(buffer); i++ {
			buffer[i] = 0
		}

		if err := write(); err != nil {
			return fmt.Errorf("failed to write audio: %w", err)
		}
	}
	return nil
}

// Terminate releases PortAudio
func (o *PortaudioOutput) Terminate() error {
	return portaudio.Terminate()
}
