// Package mock provides test doubles for the device package interfaces.
//
// Speaker opens Outputs with a manual clock: nothing plays until the test
// calls Output.Advance. Microphone opens Streams the test feeds with Send, and
// can be told to block Open until released to exercise cancellation.
//
// Example:
//
//	spk := &mock.Speaker{}
//	out, _ := spk.Open(ctx, audio.Format{SampleRate: 24000, Channels: 1})
//	spk.Last().Advance(480) // 20 ms of playback
package mock

import (
	"context"
	"sync"

	"github.com/webnexifystudio/nexa/pkg/audio"
	"github.com/webnexifystudio/nexa/pkg/audio/device"
)

// ── Speaker ─────────────────────────────────────────────────────────────────

// ScheduleCall records a single invocation of Output.Schedule.
type ScheduleCall struct {
	Buf audio.PlaybackBuffer
	At  int64
}

// Speaker is a mock implementation of device.Speaker.
type Speaker struct {
	mu sync.Mutex

	// OpenErr, if non-nil, is returned by Open.
	OpenErr error

	// outputs records every output opened, in order.
	outputs []*Output
}

// Open returns a new manual-clock Output, or OpenErr.
func (s *Speaker) Open(ctx context.Context, format audio.Format) (device.Output, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.OpenErr != nil {
		return nil, s.OpenErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o := &Output{Timeline: device.NewTimeline(format, device.NewAnalyser(0))}
	s.outputs = append(s.outputs, o)
	return o, nil
}

// Outputs returns every output opened so far.
func (s *Speaker) Outputs() []*Output {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Output(nil), s.outputs...)
}

// Last returns the most recently opened output, or nil.
func (s *Speaker) Last() *Output {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.outputs) == 0 {
		return nil
	}
	return s.outputs[len(s.outputs)-1]
}

// Output is a mock device.Output backed by a real [device.Timeline] whose
// clock only moves when Advance is called.
type Output struct {
	*device.Timeline

	mu sync.Mutex

	// ScheduleErr, if non-nil, is returned by every Schedule call.
	ScheduleErr error

	// ScheduleCalls records every Schedule call in order.
	ScheduleCalls []ScheduleCall

	// FlushCount is the number of Flush calls.
	FlushCount int

	// CloseCount is the number of Close calls.
	CloseCount int
}

// Schedule records the call and forwards it to the timeline.
func (o *Output) Schedule(buf audio.PlaybackBuffer, at int64) error {
	o.mu.Lock()
	o.ScheduleCalls = append(o.ScheduleCalls, ScheduleCall{Buf: buf, At: at})
	err := o.ScheduleErr
	o.mu.Unlock()
	if err != nil {
		return err
	}
	return o.Timeline.Schedule(buf, at)
}

// Calls returns a copy of the recorded Schedule calls.
func (o *Output) Calls() []ScheduleCall {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]ScheduleCall(nil), o.ScheduleCalls...)
}

// Flush records the call and flushes the timeline.
func (o *Output) Flush() {
	o.mu.Lock()
	o.FlushCount++
	o.mu.Unlock()
	o.Timeline.Flush()
}

// Advance renders frames frames and returns the rendered interleaved samples.
func (o *Output) Advance(frames int) []float32 {
	out := make([]float32, frames*o.Format().Channels)
	o.Render(out)
	return out
}

// Close records the call.
func (o *Output) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.CloseCount++
	return nil
}

// Closed reports whether Close has been called at least once.
func (o *Output) Closed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.CloseCount > 0
}

// ── Microphone ──────────────────────────────────────────────────────────────

// OpenCall records a single invocation of Microphone.Open.
type OpenCall struct {
	Format    audio.Format
	FrameSize int
}

// Microphone is a mock implementation of device.Microphone.
type Microphone struct {
	mu sync.Mutex

	// OpenErr, if non-nil, is returned by Open.
	OpenErr error

	// Gate, if non-nil, makes Open block until the channel is closed or the
	// context is done. Use it to simulate a pending permission prompt.
	Gate chan struct{}

	// Entered, if non-nil, receives one value when Open starts waiting on Gate.
	Entered chan struct{}

	// OpenCalls records every Open in order.
	OpenCalls []OpenCall

	streams []*Stream
}

// Open records the call, waits on Gate if set, and returns a new Stream.
func (m *Microphone) Open(ctx context.Context, format audio.Format, frameSize int) (device.InputStream, error) {
	m.mu.Lock()
	m.OpenCalls = append(m.OpenCalls, OpenCall{Format: format, FrameSize: frameSize})
	gate, entered, openErr := m.Gate, m.Entered, m.OpenErr
	m.mu.Unlock()

	if gate != nil {
		if entered != nil {
			entered <- struct{}{}
		}
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if openErr != nil {
		return nil, openErr
	}

	s := &Stream{frames: make(chan audio.Frame, 16), format: format}
	m.mu.Lock()
	m.streams = append(m.streams, s)
	m.mu.Unlock()
	return s, nil
}

// Streams returns every stream opened so far.
func (m *Microphone) Streams() []*Stream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Stream(nil), m.streams...)
}

// Last returns the most recently opened stream, or nil.
func (m *Microphone) Last() *Stream {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.streams) == 0 {
		return nil
	}
	return m.streams[len(m.streams)-1]
}

// Stream is a mock device.InputStream fed by the test.
type Stream struct {
	mu     sync.Mutex
	frames chan audio.Frame
	format audio.Format
	closed bool
}

// Frames returns the frame channel.
func (s *Stream) Frames() <-chan audio.Frame { return s.frames }

// Send delivers samples as one frame. It reports false if the stream is
// closed or its buffer is full.
func (s *Stream) Send(samples []float32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.frames <- audio.Frame{Samples: samples, Format: s.format}:
		return true
	default:
		return false
	}
}

// Close closes the frame channel. Safe to call more than once.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.frames)
	}
	return nil
}

// Closed reports whether Close has been called.
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Compile-time interface assertions.
var (
	_ device.Speaker     = (*Speaker)(nil)
	_ device.Output      = (*Output)(nil)
	_ device.Microphone  = (*Microphone)(nil)
	_ device.InputStream = (*Stream)(nil)
)
