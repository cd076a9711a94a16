// Package session owns the lifecycle of one full-duplex voice conversation.
//
// A [Controller] acquires the output device, the microphone and the remote
// speech session in that order, wires capture to the session and inbound
// audio to the playback scheduler, and releases everything again on
// [Controller.Disconnect], on a remote close or on a remote error. It is the
// only component that tracks connection state.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/webnexifystudio/nexa/internal/observe"
	"github.com/webnexifystudio/nexa/pkg/audio"
	"github.com/webnexifystudio/nexa/pkg/audio/capture"
	"github.com/webnexifystudio/nexa/pkg/audio/device"
	"github.com/webnexifystudio/nexa/pkg/audio/pcm"
	"github.com/webnexifystudio/nexa/pkg/audio/playback"
	"github.com/webnexifystudio/nexa/pkg/provider/s2s"
)

// State is the connection state of a [Controller].
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateError
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Status is a snapshot of the controller's state.
type Status struct {
	State State

	// Error is the user-facing message of the last failure. It is set only
	// in [StateError].
	Error string

	// Since is when the controller entered State.
	Since time.Time
}

// Config holds the collaborators and audio settings of a [Controller].
type Config struct {
	// Provider opens the remote speech session.
	Provider s2s.Provider

	// ProviderName labels provider metrics.
	ProviderName string

	// Microphone and Speaker are the local audio devices.
	Microphone device.Microphone
	Speaker    device.Speaker

	// Session carries the persona and voice. Its formats are overwritten
	// with InputFormat and OutputFormat.
	Session s2s.SessionConfig

	// InputFormat is the capture format sent upstream. Default 16 kHz mono.
	InputFormat audio.Format

	// OutputFormat is the playback format. Default 24 kHz mono.
	OutputFormat audio.Format

	// FrameSize is the number of samples per outbound chunk. Default
	// [capture.DefaultFrameSize].
	FrameSize int

	// QueueSize bounds the outbound chunk queue. Default
	// [capture.DefaultQueueSize].
	QueueSize int

	// FlushOnInterrupt discards scheduled audio on barge-in.
	FlushOnInterrupt bool
}

// Option configures a [Controller].
type Option func(*Controller)

// WithLogger sets the logger. Default: [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithMetrics sets the metric instruments. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// resources is everything one connection attempt acquires. Until it is
// committed it is owned by the Connect call that built it.
type resources struct {
	output    device.Output
	input     device.InputStream
	scheduler *playback.Scheduler
	pipeline  *capture.Pipeline
	session   s2s.Session

	stopCapture context.CancelFunc
	captureDone chan struct{}

	opened    chan struct{}
	openOnce  sync.Once
	ended     chan error
	committed bool
}

// Controller drives one voice conversation at a time. All methods are safe
// for concurrent use.
type Controller struct {
	cfg     Config
	logger  *slog.Logger
	metrics *observe.Metrics

	mu            sync.Mutex
	state         State
	errMsg        string
	since         time.Time
	gen           uint64
	res           *resources
	cancelConnect context.CancelFunc

	listenMu  sync.Mutex
	listeners []func(Status)
}

// New creates a disconnected controller.
func New(cfg Config, opts ...Option) *Controller {
	if !cfg.InputFormat.Valid() {
		cfg.InputFormat = audio.Format{SampleRate: 16000, Channels: 1}
	}
	if !cfg.OutputFormat.Valid() {
		cfg.OutputFormat = audio.Format{SampleRate: 24000, Channels: 1}
	}
	if cfg.FrameSize <= 0 {
		cfg.FrameSize = capture.DefaultFrameSize
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = capture.DefaultQueueSize
	}
	cfg.Session.InputFormat = cfg.InputFormat
	cfg.Session.OutputFormat = cfg.OutputFormat

	c := &Controller{
		cfg:     cfg,
		logger:  slog.Default(),
		metrics: observe.DefaultMetrics(),
		since:   time.Now(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Status returns the current state.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

func (c *Controller) statusLocked() Status {
	return Status{State: c.state, Error: c.errMsg, Since: c.since}
}

// OnStateChange registers fn to be called after every state transition.
// fn must not call back into the controller synchronously.
func (c *Controller) OnStateChange(fn func(Status)) {
	c.listenMu.Lock()
	defer c.listenMu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Analyser returns the analysis tap of the connected output, or nil.
func (c *Controller) Analyser() *device.Analyser {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.res == nil || c.res.output == nil {
		return nil
	}
	return c.res.output.Analyser()
}

// setStateLocked records a transition and returns the status to publish.
func (c *Controller) setStateLocked(s State, msg string) Status {
	c.state = s
	c.errMsg = msg
	c.since = time.Now()
	return c.statusLocked()
}

func (c *Controller) publish(st Status) {
	c.listenMu.Lock()
	fns := slices.Clone(c.listeners)
	c.listenMu.Unlock()
	for _, fn := range fns {
		fn(st)
	}
}

// Connect establishes a conversation. It returns once the remote service has
// accepted the session and capture is running, or with an error after every
// resource it acquired has been released. Connect is allowed from
// [StateDisconnected] and [StateError]; otherwise it returns [ErrBusy]. If
// Disconnect is called meanwhile, Connect returns [ErrCanceled].
func (c *Controller) Connect(ctx context.Context) (err error) {
	ctx, span := observe.StartSpan(ctx, "session.connect",
		trace.WithAttributes(observe.Attr("provider", c.cfg.ProviderName)))
	defer func() { observe.EndSpan(span, err, ErrBusy, ErrCanceled) }()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	if c.state == StateConnecting || c.state == StateConnected {
		c.mu.Unlock()
		return ErrBusy
	}
	c.gen++
	gen := c.gen
	c.cancelConnect = cancel
	st := c.setStateLocked(StateConnecting, "")
	c.mu.Unlock()
	c.publish(st)

	start := time.Now()
	r := &resources{
		opened: make(chan struct{}),
		ended:  make(chan error, 1),
	}

	if err = c.acquire(ctx, gen, r); err == nil {
		err = c.commit(gen, r)
	}
	if err != nil {
		return c.abort(ctx, gen, r, err)
	}

	c.metrics.ConnectDuration.Record(ctx, time.Since(start).Seconds())
	c.metrics.ActiveSessions.Add(ctx, 1)
	observe.Logger(ctx, c.logger).Info("session connected",
		"provider", c.cfg.ProviderName,
		"input", c.cfg.InputFormat.String(),
		"output", c.cfg.OutputFormat.String(),
	)
	return nil
}

// acquire opens the output, the microphone and the remote session, then waits
// for the open signal. r holds whatever was acquired when it returns.
func (c *Controller) acquire(ctx context.Context, gen uint64, r *resources) error {
	out, err := c.cfg.Speaker.Open(ctx, c.cfg.OutputFormat)
	if err != nil {
		return classifyDevice(err, "open output")
	}
	r.output = out
	if !c.current(gen) {
		return ErrCanceled
	}

	in, err := c.cfg.Microphone.Open(ctx, c.cfg.InputFormat, c.cfg.FrameSize)
	if err != nil {
		return classifyDevice(err, "open microphone")
	}
	r.input = in
	if !c.current(gen) {
		return ErrCanceled
	}

	r.scheduler = playback.New(out, c.cfg.OutputFormat,
		playback.WithFlushOnInterrupt(c.cfg.FlushOnInterrupt),
		playback.WithLogger(c.logger),
	)
	r.pipeline = capture.New(c.cfg.InputFormat,
		capture.WithFrameSize(c.cfg.FrameSize),
		capture.WithQueueSize(c.cfg.QueueSize),
		capture.WithLogger(c.logger),
		capture.WithObserver(c.observeCapture),
	)

	sess, err := c.cfg.Provider.Connect(ctx, c.cfg.Session, c.callbacks(gen, r))
	if err != nil {
		c.metrics.RecordProviderError(ctx, c.cfg.ProviderName, "connect")
		return &Error{Kind: KindConnection, Err: err}
	}
	r.session = sess
	if !c.current(gen) {
		return ErrCanceled
	}

	select {
	case <-r.opened:
		return nil
	case err := <-r.ended:
		return &Error{Kind: KindConnection, Err: err}
	case <-ctx.Done():
		if !c.current(gen) {
			return ErrCanceled
		}
		return &Error{Kind: KindConnection, Err: ctx.Err()}
	}
}

// commit makes r the live connection and starts capture.
func (c *Controller) commit(gen uint64, r *resources) error {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return ErrCanceled
	}
	// A remote end that raced the open signal was parked on r.ended.
	select {
	case err := <-r.ended:
		c.mu.Unlock()
		return &Error{Kind: KindConnection, Err: err}
	default:
	}

	r.committed = true
	c.res = r
	c.cancelConnect = nil
	r.pipeline.SetSink(r.session)

	captureCtx, stop := context.WithCancel(context.Background())
	r.stopCapture = stop
	r.captureDone = make(chan struct{})
	go func() {
		defer close(r.captureDone)
		if err := r.pipeline.Run(captureCtx, r.input.Frames()); err != nil && !errors.Is(err, context.Canceled) {
			c.logger.Warn("session: capture stopped", "err", err)
		}
	}()

	st := c.setStateLocked(StateConnected, "")
	c.mu.Unlock()
	c.publish(st)
	return nil
}

// abort releases what the failed attempt acquired and settles the state.
func (c *Controller) abort(ctx context.Context, gen uint64, r *resources, err error) error {
	c.release(r)

	var se *Error
	if errors.Is(err, ErrCanceled) || errors.Is(err, context.Canceled) && !c.current(gen) {
		return ErrCanceled
	}
	if !errors.As(err, &se) {
		se = &Error{Kind: KindUnknown, Err: err}
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return ErrCanceled
	}
	c.cancelConnect = nil
	st := c.setStateLocked(StateError, se.UserMessage())
	c.mu.Unlock()

	c.metrics.RecordSessionError(ctx, se.Kind.String())
	observe.Logger(ctx, c.logger).Warn("session connect failed", "kind", se.Kind.String(), "err", se.Err)
	c.publish(st)
	return se
}

// Disconnect ends the conversation and releases every resource. It is
// idempotent and may be called in any state, including while Connect is in
// flight. The returned error joins any release failures.
func (c *Controller) Disconnect() error {
	c.mu.Lock()
	if c.state == StateDisconnected && c.res == nil && c.cancelConnect == nil {
		c.mu.Unlock()
		return nil
	}
	c.gen++
	r := c.res
	c.res = nil
	cancel := c.cancelConnect
	c.cancelConnect = nil
	st := c.setStateLocked(StateDisconnected, "")
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	var err error
	if r != nil {
		err = c.release(r)
	}
	c.publish(st)
	return err
}

// remoteEnded handles OnClose and OnError. cause is nil for an orderly close.
func (c *Controller) remoteEnded(gen uint64, r *resources, cause error, reason string) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	if !r.committed {
		err := cause
		if err == nil {
			err = fmt.Errorf("remote closed before open: %s", reason)
		}
		select {
		case r.ended <- err:
		default:
		}
		c.mu.Unlock()
		return
	}

	c.gen++
	c.res = nil
	var st Status
	if cause != nil {
		se := &Error{Kind: KindConnection, Err: cause}
		st = c.setStateLocked(StateError, se.UserMessage())
	} else {
		st = c.setStateLocked(StateDisconnected, "")
	}
	c.mu.Unlock()

	ctx := context.Background()
	if cause != nil {
		c.metrics.RecordSessionError(ctx, KindConnection.String())
		c.metrics.RecordProviderError(ctx, c.cfg.ProviderName, "stream")
		c.logger.Warn("session: remote error", "provider", c.cfg.ProviderName, "err", cause)
	} else {
		c.logger.Info("session: remote closed", "provider", c.cfg.ProviderName, "reason", reason)
	}
	_ = c.release(r)
	c.publish(st)
}

// release tears r down in dependency order: stop feeding the session, stop
// capture, close the session, then the devices. Nil members are skipped.
func (c *Controller) release(r *resources) error {
	var errs []error
	if r.pipeline != nil {
		r.pipeline.SetSink(nil)
	}
	if r.stopCapture != nil {
		r.stopCapture()
	}
	if r.session != nil {
		if err := r.session.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close session: %w", err))
		}
	}
	if r.input != nil {
		if err := r.input.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close microphone: %w", err))
		}
	}
	if r.captureDone != nil {
		<-r.captureDone
	}
	if r.scheduler != nil {
		r.scheduler.Close()
	}
	if r.output != nil {
		if err := r.output.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close output: %w", err))
		}
	}
	if r.committed {
		c.metrics.ActiveSessions.Add(context.Background(), -1)
	}
	if err := errors.Join(errs...); err != nil {
		c.logger.Warn("session: release failed", "err", err)
		return err
	}
	return nil
}

func (c *Controller) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen == gen
}

func (c *Controller) callbacks(gen uint64, r *resources) s2s.Callbacks {
	return s2s.Callbacks{
		OnOpen: func() {
			r.openOnce.Do(func() { close(r.opened) })
		},
		OnMessage: func(m s2s.Message) {
			if c.current(gen) {
				c.handleMessage(r, m)
			}
		},
		OnClose: func(reason string) { c.remoteEnded(gen, r, nil, reason) },
		OnError: func(err error) { c.remoteEnded(gen, r, err, "") },
	}
}

// handleMessage applies one inbound message to the playback scheduler. It
// runs on the provider's receive goroutine.
func (c *Controller) handleMessage(r *resources, m s2s.Message) {
	ctx := context.Background()
	if m.Interrupted {
		r.scheduler.OnInterrupt()
		c.metrics.Interruptions.Add(ctx, 1)
	}
	if m.Audio == "" {
		return
	}

	data, err := pcm.DecodeBase64(m.Audio)
	if err != nil {
		c.metrics.DecodeErrors.Add(ctx, 1)
		c.logger.Debug("session: dropping inbound audio", "err", err)
		return
	}
	sc, err := r.scheduler.OnChunk(audio.EncodedChunk{Data: data, Format: m.Format})
	var de *pcm.DecodeError
	switch {
	case err == nil:
	case errors.As(err, &de):
		c.metrics.DecodeErrors.Add(ctx, 1)
		return
	case errors.Is(err, playback.ErrClosed):
		return
	default:
		c.logger.Warn("session: schedule failed", "err", err)
		return
	}

	c.metrics.PlaybackChunks.Add(ctx, 1)
	if sc.Resynced {
		c.metrics.PlaybackResyncs.Add(ctx, 1)
	}
	c.metrics.ScheduleLead.Record(ctx, sc.LeadTime().Seconds())
}

func (c *Controller) observeCapture(res capture.Result) {
	ctx := context.Background()
	switch res {
	case capture.Sent:
		c.metrics.RecordCaptureFrame(ctx, observe.CaptureSent)
	case capture.DroppedNotReady:
		c.metrics.RecordCaptureFrame(ctx, observe.CaptureDroppedNotReady)
	case capture.DroppedFull:
		c.metrics.RecordCaptureFrame(ctx, observe.CaptureDroppedFull)
	case capture.SendFailed:
		c.metrics.CaptureSendErrors.Add(ctx, 1)
	}
}

// classifyDevice maps a device failure to a session error kind. Context
// errors pass through so the caller can tell cancellation from failure.
func classifyDevice(err error, op string) error {
	kind := KindDevice
	switch {
	case errors.Is(err, device.ErrPermissionDenied):
		kind = KindPermission
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	}
	return &Error{Kind: kind, Err: fmt.Errorf("%s: %w", op, err)}
}
