// Package device defines the microphone and output-device interfaces the
// voice pipeline runs on, plus hardware-free implementations.
//
// Outputs expose a sample clock: [Output.Position] counts frames rendered
// since the device opened, and [Output.Schedule] places a buffer at an exact
// frame on that clock. Real outputs are built on a [Timeline], which keeps the
// scheduled buffers and mixes whatever is due into each render callback.
//
// Hardware adapters live in sub-packages (device/portaudio). Test doubles live
// in device/mock.
package device

import (
	"context"
	"errors"

	"github.com/webnexifystudio/nexa/pkg/audio"
	"github.com/webnexifystudio/nexa/pkg/audio/playback"
)

var (
	// ErrPermissionDenied is returned by [Microphone.Open] when the platform
	// refuses access to the capture device.
	ErrPermissionDenied = errors.New("device: microphone permission denied")

	// ErrNoDevice is returned when no suitable capture or output device exists.
	ErrNoDevice = errors.New("device: no audio device available")
)

// Microphone opens capture streams.
type Microphone interface {
	// Open starts capturing mono audio in format. Every frame delivered on the
	// returned stream holds exactly frameSize samples. Open honours ctx while
	// waiting for the device (e.g. a pending permission prompt).
	Open(ctx context.Context, format audio.Format, frameSize int) (InputStream, error)
}

// InputStream is an open capture stream.
type InputStream interface {
	// Frames returns the channel captured frames arrive on. It is closed by
	// Close or when the device stops.
	Frames() <-chan audio.Frame

	// Close stops capture and releases the device. Safe to call more than once.
	Close() error
}

// Speaker opens output devices.
type Speaker interface {
	Open(ctx context.Context, format audio.Format) (Output, error)
}

// Output is an open output device with a sample clock.
//
// Outputs may additionally implement [playback.Flusher].
type Output interface {
	playback.Output

	// Format returns the format buffers must be scheduled in.
	Format() audio.Format

	// Analyser returns the read-only analysis tap fed by rendered audio.
	Analyser() *Analyser

	// Close stops rendering and releases the device. Scheduled audio that has
	// not played is discarded. Safe to call more than once.
	Close() error
}
