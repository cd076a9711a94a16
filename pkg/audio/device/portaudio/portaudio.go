//go:build portaudio

// Package portaudio adapts the host's default capture and playback devices
// through PortAudio. Build with -tags portaudio; without the tag every Open
// returns device.ErrNoDevice.
package portaudio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	pa "github.com/gordonklaus/portaudio"

	"github.com/webnexifystudio/nexa/pkg/audio"
	"github.com/webnexifystudio/nexa/pkg/audio/device"
)

// Available reports whether this binary was built with PortAudio support.
const Available = true

// framesPerBuffer is the device callback size for playback.
const framesPerBuffer = 512

// PortAudio must be initialised once per process for as long as any stream
// is open; refs counts open streams.
var (
	initMu sync.Mutex
	refs   int
)

func acquire() error {
	initMu.Lock()
	defer initMu.Unlock()
	if refs == 0 {
		if err := pa.Initialize(); err != nil {
			return fmt.Errorf("portaudio: initialize: %w", err)
		}
	}
	refs++
	return nil
}

func release() {
	initMu.Lock()
	defer initMu.Unlock()
	refs--
	if refs == 0 {
		if err := pa.Terminate(); err != nil {
			slog.Warn("portaudio: terminate", "err", err)
		}
	}
}

// ── Microphone ──────────────────────────────────────────────────────────────

// Microphone captures from the default input device.
type Microphone struct{}

// Open starts a mono callback stream at format.SampleRate. PortAudio cannot
// distinguish a refused permission from a missing device, so both surface as
// [device.ErrNoDevice] when no default input exists.
func (Microphone) Open(ctx context.Context, format audio.Format, frameSize int) (device.InputStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := acquire(); err != nil {
		return nil, errors.Join(device.ErrNoDevice, err)
	}
	if _, err := pa.DefaultInputDevice(); err != nil {
		release()
		return nil, fmt.Errorf("portaudio: default input: %w", errors.Join(device.ErrNoDevice, err))
	}

	s := &inputStream{
		frames: make(chan audio.Frame, 8),
		format: format,
	}
	stream, err := pa.OpenDefaultStream(format.Channels, 0, float64(format.SampleRate), frameSize, s.callback)
	if err != nil {
		release()
		return nil, fmt.Errorf("portaudio: open input: %w", errors.Join(device.ErrNoDevice, err))
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		release()
		return nil, fmt.Errorf("portaudio: start input: %w", err)
	}
	s.stream = stream
	slog.Info("portaudio: microphone open", "format", format, "frame_size", frameSize)
	return s, nil
}

type inputStream struct {
	stream *pa.Stream
	format audio.Format
	frames chan audio.Frame

	mu     sync.Mutex
	closed bool
}

// callback runs on the PortAudio thread and must not block.
func (s *inputStream) callback(in []float32) {
	samples := make([]float32, len(in))
	copy(samples, in)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.frames <- audio.Frame{Samples: samples, Format: s.format}:
	default:
	}
}

func (s *inputStream) Frames() <-chan audio.Frame { return s.frames }

func (s *inputStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.frames)
	s.mu.Unlock()

	err := errors.Join(s.stream.Stop(), s.stream.Close())
	release()
	return err
}

// ── Speaker ─────────────────────────────────────────────────────────────────

// Speaker plays through the default output device.
type Speaker struct {
	// AnalyserSize sets the tap window. Zero means device.DefaultAnalyserSize.
	AnalyserSize int
}

// Open starts a callback stream that renders a [device.Timeline].
func (s Speaker) Open(ctx context.Context, format audio.Format) (device.Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := acquire(); err != nil {
		return nil, errors.Join(device.ErrNoDevice, err)
	}
	if _, err := pa.DefaultOutputDevice(); err != nil {
		release()
		return nil, fmt.Errorf("portaudio: default output: %w", errors.Join(device.ErrNoDevice, err))
	}

	o := &output{Timeline: device.NewTimeline(format, device.NewAnalyser(s.AnalyserSize))}
	stream, err := pa.OpenDefaultStream(0, format.Channels, float64(format.SampleRate), framesPerBuffer, o.Render)
	if err != nil {
		release()
		return nil, fmt.Errorf("portaudio: open output: %w", errors.Join(device.ErrNoDevice, err))
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		release()
		return nil, fmt.Errorf("portaudio: start output: %w", err)
	}
	o.stream = stream
	slog.Info("portaudio: speaker open", "format", format)
	return o, nil
}

type output struct {
	*device.Timeline
	stream *pa.Stream
	once   sync.Once
	err    error
}

func (o *output) Close() error {
	o.once.Do(func() {
		o.err = errors.Join(o.stream.Stop(), o.stream.Close())
		o.Flush()
		release()
	})
	return o.err
}

// Compile-time interface assertions.
var (
	_ device.Microphone = Microphone{}
	_ device.Speaker    = Speaker{}
)
