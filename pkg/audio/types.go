// Package audio defines the value types that flow through the Nexa voice
// pipeline: captured [Frame]s, wire-format [EncodedChunk]s and decoded
// [PlaybackBuffer]s, all tagged with a [Format].
//
// The package holds no state. Codecs live in audio/pcm, the outbound path in
// audio/capture, the inbound path in audio/playback and device adapters in
// audio/device.
package audio

import (
	"fmt"
	"time"
)

// BytesPerSample is the width of one signed 16-bit PCM sample on the wire.
const BytesPerSample = 2

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	// SampleRate in Hz (16000 for capture, 24000 for Gemini Live output).
	SampleRate int

	// Channels is the interleaved channel count. The pipeline runs mono.
	Channels int
}

// Valid reports whether f has a positive sample rate and channel count.
func (f Format) Valid() bool {
	return f.SampleRate > 0 && f.Channels > 0
}

// FrameDuration returns the wall-clock length of n sample frames in f.
func (f Format) FrameDuration(n int64) time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(f.SampleRate)
}

// FramesIn returns how many whole sample frames of f fit into d.
func (f Format) FramesIn(d time.Duration) int64 {
	return int64(d) * int64(f.SampleRate) / int64(time.Second)
}

// String returns e.g. "16000Hz mono".
func (f Format) String() string {
	return formatString(f.SampleRate, f.Channels)
}

// Frame is a block of captured floating-point samples in [-1, 1].
// Frames are ephemeral: the capture pipeline encodes them immediately.
type Frame struct {
	// Samples are interleaved when Format.Channels > 1.
	Samples []float32

	Format Format
}

// EncodedChunk is signed 16-bit little-endian PCM tagged with its format.
// Outbound chunks are built from a [Frame] and sent once; inbound chunks are
// received from the remote service and decoded once.
type EncodedChunk struct {
	Data   []byte
	Format Format
}

// Len returns the size of the payload in bytes.
func (c EncodedChunk) Len() int { return len(c.Data) }

// PlaybackBuffer is a decoded, ready-to-play buffer. It is owned by the
// playback scheduler from decode until the output device has rendered it and
// is never mutated after decode.
type PlaybackBuffer struct {
	// Samples are interleaved float32 values in [-1, 1).
	Samples []float32

	Format Format
}

// Frames returns the number of sample frames (samples per channel).
func (b PlaybackBuffer) Frames() int64 {
	if b.Format.Channels <= 0 {
		return 0
	}
	return int64(len(b.Samples) / b.Format.Channels)
}

// Duration returns Frames / SampleRate as a duration.
func (b PlaybackBuffer) Duration() time.Duration {
	return b.Format.FrameDuration(b.Frames())
}

// formatString returns a human-readable string for a sample rate and channel count,
// e.g. "48000Hz stereo".
func formatString(rate, channels int) string {
	ch := "mono"
	if channels == 2 {
		ch = "stereo"
	} else if channels > 2 {
		ch = fmt.Sprintf("%dch", channels)
	}
	return fmt.Sprintf("%dHz %s", rate, ch)
}
