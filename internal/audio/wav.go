package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// HeaderSize is the length of the canonical PCM WAV header
const HeaderSize = 44

// WAVHeader represents the header structure of a WAV file
type WAVHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // dataLength + 36
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16  // Number of channels
	SampleRate    uint32  // Sample rate
	ByteRate      uint32  // SampleRate * NumChannels * BitsPerSample / 8
	BlockAlign    uint16  // NumChannels * BitsPerSample / 8
	BitsPerSample uint16  // Bits per sample
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32  // Number of bytes in the data
}

// Container is a complete WAV file: header followed by the PCM payload.
// It is never modified after BuildContainer returns it.
type Container struct {
	data []byte
}

// Bytes returns the encoded file. Callers must not modify the slice.
func (c Container) Bytes() []byte {
	return c.data
}

// Len returns the total size in bytes
func (c Container) Len() int {
	return len(c.data)
}

// ContentType is the MIME type for serving the container
func (c Container) ContentType() string {
	return "audio/wav"
}

// newHeader derives the header for a payload
func newHeader(p Payload) WAVHeader {
	dataSize := uint32(len(p.PCM))
	return WAVHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1, // PCM
		NumChannels:   uint16(p.Channels),
		SampleRate:    uint32(p.SampleRate),
		ByteRate:      uint32(p.ByteRate()),
		BlockAlign:    uint16(p.BlockAlign()),
		BitsPerSample: uint16(p.BitsPerSample),
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}
}

// BuildContainer wraps the payload in a 44-byte PCM WAV header. An empty
// payload yields a valid header with a zero data length.
func BuildContainer(p Payload) (Container, error) {
	if err := p.Validate(); err != nil {
		return Container{}, fmt.Errorf("invalid payload: %w", err)
	}

	buf := bytes.NewBuffer(make([]byte, 0, HeaderSize+len(p.PCM)))

	if err := binary.Write(buf, binary.LittleEndian, newHeader(p)); err != nil {
		return Container{}, fmt.Errorf("failed to write WAV header: %w", err)
	}

	// The PCM is already little-endian; copy it verbatim.
	buf.Write(p.PCM)

	return Container{data: buf.Bytes()}, nil
}

// ReadHeader decodes and validates the fixed header of a WAV file
func ReadHeader(data []byte) (*WAVHeader, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("WAV data too short: need at least %d bytes, got %d", HeaderSize, len(data))
	}

	var header WAVHeader
	if err := binary.Read(bytes.NewReader(data[:HeaderSize]), binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("failed to read WAV header: %w", err)
	}

	if string(header.ChunkID[:]) != "RIFF" {
		return nil, fmt.Errorf("invalid WAV file: missing RIFF header")
	}
	if string(header.Format[:]) != "WAVE" {
		return nil, fmt.Errorf("invalid WAV file: missing WAVE format")
	}
	if string(header.Subchunk1ID[:]) != "fmt " {
		return nil, fmt.Errorf("invalid WAV file: missing fmt chunk")
	}
	if string(header.Subchunk2ID[:]) != "data" {
		return nil, fmt.Errorf("invalid WAV file: missing data chunk")
	}
	if header.AudioFormat != 1 {
		return nil, fmt.Errorf("unsupported audio format: %d (only PCM is supported)", header.AudioFormat)
	}

	return &header, nil
}

// ParseContainer decodes a WAV file produced by BuildContainer back into its
// payload. The PCM slice aliases data.
func ParseContainer(data []byte) (Payload, error) {
	header, err := ReadHeader(data)
	if err != nil {
		return Payload{}, err
	}

	end := HeaderSize + int(header.Subchunk2Size)
	if end > len(data) {
		return Payload{}, fmt.Errorf("WAV data truncated: header declares %d data bytes, got %d",
			header.Subchunk2Size, len(data)-HeaderSize)
	}

	p := Payload{
		PCM:           data[HeaderSize:end],
		SampleRate:    int(header.SampleRate),
		Channels:      int(header.NumChannels),
		BitsPerSample: int(header.BitsPerSample),
	}
	if err := p.Validate(); err != nil {
		return Payload{}, err
	}

	return p, nil
}

// WAVInfo holds basic information about a WAV file
type WAVInfo struct {
	SampleRate    uint32  `json:"sample_rate"`
	Channels      uint16  `json:"channels"`
	BitsPerSample uint16  `json:"bits_per_sample"`
	Duration      float64 `json:"duration_seconds"`
	DataSize      uint32  `json:"data_size_bytes"`
}

// GetWAVInfo extracts metadata from a WAV file
func GetWAVInfo(data []byte) (*WAVInfo, error) {
	header, err := ReadHeader(data)
	if err != nil {
		return nil, err
	}

	duration := 0.0
	if header.ByteRate > 0 {
		duration = float64(header.Subchunk2Size) / float64(header.ByteRate)
	}

	return &WAVInfo{
		SampleRate:    header.SampleRate,
		Channels:      header.NumChannels,
		BitsPerSample: header.BitsPerSample,
		Duration:      duration,
		DataSize:      header.Subchunk2Size,
	}, nil
}
