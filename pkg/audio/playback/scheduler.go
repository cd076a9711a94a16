// Package playback turns inbound speech chunks into a gapless, ordered
// stream on an output device.
//
// A [Scheduler] keeps one cursor on the output's sample clock: the frame at
// which the next buffer should start. Every chunk is decoded, placed at the
// cursor (or at the device's current position if the cursor has fallen
// behind), and the cursor advances by the buffer's length. Successive buffers
// therefore join without gap or overlap, in arrival order. A server
// interruption resets the cursor so the next reply starts at "now".
//
// Scheduler methods are safe for concurrent use; all state transitions are
// serialised by one mutex.
package playback

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/webnexifystudio/nexa/pkg/audio"
	"github.com/webnexifystudio/nexa/pkg/audio/pcm"
)

// ErrClosed is returned by [Scheduler.OnChunk] after [Scheduler.Close].
var ErrClosed = errors.New("playback: scheduler closed")

// Output is the part of an output device the scheduler drives. Positions are
// measured in sample frames at the output's rate since the device started.
type Output interface {
	// Position returns the device's current playback position.
	Position() int64

	// Schedule queues buf to start exactly at frame at. Buffers scheduled in
	// the past play from the current position.
	Schedule(buf audio.PlaybackBuffer, at int64) error
}

// Flusher is implemented by outputs that can discard audio that has been
// scheduled but not yet rendered.
type Flusher interface {
	Flush()
}

// Scheduled describes where one chunk landed on the output timeline.
type Scheduled struct {
	// Start is the first frame of the buffer.
	Start int64

	// Frames is the buffer length in frames.
	Frames int64

	// Lead is how far ahead of the device position Start was, in frames.
	Lead int64

	// Resynced is true when the cursor had fallen behind the device clock
	// and was moved forward to the current position.
	Resynced bool

	format audio.Format
}

// StartTime returns Start as a duration from the device origin.
func (s Scheduled) StartTime() time.Duration { return s.format.FrameDuration(s.Start) }

// EndTime returns the end of the buffer as a duration from the device origin.
func (s Scheduled) EndTime() time.Duration { return s.format.FrameDuration(s.Start + s.Frames) }

// LeadTime returns Lead as a duration.
func (s Scheduled) LeadTime() time.Duration { return s.format.FrameDuration(s.Lead) }

// ── Options ─────────────────────────────────────────────────────────────────

// Option configures a [Scheduler].
type Option func(*Scheduler)

// WithFlushOnInterrupt makes [Scheduler.OnInterrupt] also discard audio that
// is scheduled but not yet heard, if the output implements [Flusher]. By
// default already-scheduled audio keeps playing and only the cursor resets.
func WithFlushOnInterrupt(flush bool) Option {
	return func(s *Scheduler) { s.flushOnInterrupt = flush }
}

// WithLogger sets the logger for dropped chunks. Default: [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// ── Scheduler ───────────────────────────────────────────────────────────────

// Scheduler places decoded buffers back to back on an [Output].
type Scheduler struct {
	out              Output
	format           audio.Format
	flushOnInterrupt bool
	logger           *slog.Logger

	mu         sync.Mutex
	next       int64 // 0 = unset
	closed     bool
	rateWarned bool
}

// New creates a scheduler for out, which plays audio in format.
func New(out Output, format audio.Format, opts ...Option) *Scheduler {
	s := &Scheduler{
		out:    out,
		format: format,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// OnChunk decodes chunk and schedules it at the cursor. A chunk that fails
// to decode is dropped and reported as a [*pcm.DecodeError]; the cursor is
// left untouched so following chunks stay contiguous with the last good one.
func (s *Scheduler) OnChunk(chunk audio.EncodedChunk) (Scheduled, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Scheduled{}, ErrClosed
	}

	if r := chunk.Format.SampleRate; r > 0 && r != s.format.SampleRate && !s.rateWarned {
		s.rateWarned = true
		s.logger.Warn("playback: inbound sample rate differs from output, playing without resampling",
			"chunk_rate", r, "output_rate", s.format.SampleRate)
	}

	buf, err := pcm.Decode(chunk, s.format)
	if err != nil {
		s.logger.Debug("playback: dropping undecodable chunk", "bytes", chunk.Len(), "err", err)
		return Scheduled{}, err
	}

	now := s.out.Position()
	resynced := false
	if s.next < now {
		s.next = now
		resynced = true
	}

	if err := s.out.Schedule(buf, s.next); err != nil {
		return Scheduled{}, fmt.Errorf("playback: schedule at frame %d: %w", s.next, err)
	}

	sc := Scheduled{
		Start:    s.next,
		Frames:   buf.Frames(),
		Lead:     s.next - now,
		Resynced: resynced,
		format:   s.format,
	}
	s.next += buf.Frames()
	return sc, nil
}

// OnInterrupt resets the cursor so the next chunk starts at the device's
// current position. With [WithFlushOnInterrupt] it also flushes the output.
func (s *Scheduler) OnInterrupt() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.next = 0
	if !s.flushOnInterrupt || s.closed {
		return
	}
	if f, ok := s.out.(Flusher); ok {
		f.Flush()
	}
}

// Close resets the cursor and rejects further chunks. It does not close the
// output. Calling Close more than once is safe.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next = 0
	s.closed = true
}
