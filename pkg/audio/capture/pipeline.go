// Package capture turns a microphone stream into wire-format chunks and hands
// them to an outbound sink without ever blocking the audio thread.
//
// A [Pipeline] re-frames whatever the device delivers into fixed-size frames,
// encodes each frame to 16-bit PCM synchronously, and enqueues it on a small
// bounded queue drained by one sender goroutine. Delivery is best effort:
// chunks are dropped while no sink is installed or when the queue is full.
// There is no retry and no backpressure.
package capture

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/webnexifystudio/nexa/pkg/audio"
	"github.com/webnexifystudio/nexa/pkg/audio/pcm"
)

// Sink receives encoded outbound audio. Implementations must be safe to call
// from the pipeline's sender goroutine.
type Sink interface {
	SendAudio(chunk audio.EncodedChunk) error
}

// Result classifies what happened to one encoded frame.
type Result int

const (
	// Sent means the sink accepted the chunk.
	Sent Result = iota
	// DroppedNotReady means no sink was installed.
	DroppedNotReady
	// DroppedFull means the send queue was full.
	DroppedFull
	// SendFailed means the sink returned an error.
	SendFailed
)

func (r Result) String() string {
	switch r {
	case Sent:
		return "sent"
	case DroppedNotReady:
		return "dropped_not_ready"
	case DroppedFull:
		return "dropped_full"
	case SendFailed:
		return "send_failed"
	default:
		return "unknown"
	}
}

// Stats is a snapshot of pipeline counters.
type Stats struct {
	Sent            uint64
	DroppedNotReady uint64
	DroppedFull     uint64
	SendFailed      uint64
}

// Defaults applied by [New].
const (
	DefaultFrameSize = 4096
	DefaultQueueSize = 8
)

// ── Options ─────────────────────────────────────────────────────────────────

// Option configures a [Pipeline].
type Option func(*Pipeline)

// WithFrameSize sets the number of samples per encoded frame.
func WithFrameSize(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.frameSize = n
		}
	}
}

// WithQueueSize sets the capacity of the outbound queue.
func WithQueueSize(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.queueSize = n
		}
	}
}

// WithLogger sets the logger. Default: [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithObserver registers fn to be called with the outcome of every frame.
// fn runs on the audio thread for drops and on the sender goroutine for
// sends, so it must be cheap and non-blocking.
func WithObserver(fn func(Result)) Option {
	return func(p *Pipeline) { p.observe = fn }
}

// ── Pipeline ────────────────────────────────────────────────────────────────

type queued struct {
	box   *sinkBox
	chunk audio.EncodedChunk
}

// Pipeline is the outbound audio path. Create with [New], install a sink
// with SetSink once the remote session is open, and feed it with Run or Push.
type Pipeline struct {
	format    audio.Format
	frameSize int
	queueSize int
	logger    *slog.Logger
	observe   func(Result)

	sink atomic.Pointer[sinkBox]

	// pending accumulates samples until a full frame is available.
	mu      sync.Mutex
	pending []float32

	queue chan queued

	sent, droppedNotReady, droppedFull, sendFailed atomic.Uint64
}

// sinkBox lets an interface value live in an atomic.Pointer.
type sinkBox struct{ s Sink }

// New creates a pipeline producing chunks in format.
func New(format audio.Format, opts ...Option) *Pipeline {
	p := &Pipeline{
		format:    format,
		frameSize: DefaultFrameSize,
		queueSize: DefaultQueueSize,
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	p.queue = make(chan queued, p.queueSize)
	return p
}

// FrameSize returns the number of samples per encoded frame.
func (p *Pipeline) FrameSize() int { return p.frameSize }

// SetSink installs s as the destination for encoded chunks. Passing nil marks
// the pipeline not ready; frames produced meanwhile are dropped.
func (p *Pipeline) SetSink(s Sink) {
	if s == nil {
		p.sink.Store(nil)
		return
	}
	p.sink.Store(&sinkBox{s: s})
}

// Push re-frames f and encodes and enqueues every complete frame. It never
// blocks on the network. It reports whether every complete frame was queued.
func (p *Pipeline) Push(f audio.Frame) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	samples := f.Samples
	if f.Format.Channels > 1 {
		samples = audio.MixChannels(samples, f.Format.Channels, p.format.Channels)
	}

	ok := true
	if len(p.pending) == 0 && len(samples) == p.frameSize {
		return p.enqueue(samples)
	}
	p.pending = append(p.pending, samples...)
	for len(p.pending) >= p.frameSize {
		frame := make([]float32, p.frameSize)
		copy(frame, p.pending)
		p.pending = append(p.pending[:0], p.pending[p.frameSize:]...)
		if !p.enqueue(frame) {
			ok = false
		}
	}
	return ok
}

func (p *Pipeline) enqueue(samples []float32) bool {
	box := p.sink.Load()
	if box == nil {
		p.record(DroppedNotReady)
		return false
	}
	chunk := pcm.Encode(audio.Frame{Samples: samples, Format: p.format})
	select {
	case p.queue <- queued{box: box, chunk: chunk}:
		return true
	default:
		p.record(DroppedFull)
		return false
	}
}

// Run consumes frames until the channel closes or ctx is done, delivering
// queued chunks from a single sender goroutine. It returns after the sender
// has stopped; chunks still queued at that point are discarded.
func (p *Pipeline) Run(ctx context.Context, frames <-chan audio.Frame) error {
	ctx, cancel := context.WithCancel(ctx)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.sendLoop(ctx)
	}()
	defer func() {
		cancel()
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f, ok := <-frames:
			if !ok {
				return nil
			}
			p.Push(f)
		}
	}
}

func (p *Pipeline) sendLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case q := <-p.queue:
			// A sink swapped out while this chunk waited must not receive it.
			if p.sink.Load() != q.box {
				p.record(DroppedNotReady)
				continue
			}
			if err := q.box.s.SendAudio(q.chunk); err != nil {
				p.logger.Debug("capture: send failed", "bytes", q.chunk.Len(), "err", err)
				p.record(SendFailed)
				continue
			}
			p.record(Sent)
		}
	}
}

func (p *Pipeline) record(r Result) {
	switch r {
	case Sent:
		p.sent.Add(1)
	case DroppedNotReady:
		p.droppedNotReady.Add(1)
	case DroppedFull:
		p.droppedFull.Add(1)
	case SendFailed:
		p.sendFailed.Add(1)
	}
	if p.observe != nil {
		p.observe(r)
	}
}

// Stats returns a snapshot of the pipeline counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Sent:            p.sent.Load(),
		DroppedNotReady: p.droppedNotReady.Load(),
		DroppedFull:     p.droppedFull.Load(),
		SendFailed:      p.sendFailed.Load(),
	}
}
