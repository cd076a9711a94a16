// Package s2s defines the Provider interface for remote speech-to-speech
// streaming services.
//
// A provider opens one full-duplex session: the caller streams microphone
// audio in with [Session.SendAudio] and receives synthesised speech, barge-in
// signals and lifecycle events through [Callbacks]. Services such as Gemini
// Live and the OpenAI Realtime API fit this shape.
//
// Callbacks of one session are invoked serially from the session's receive
// goroutine. [Session.Close] never waits for callbacks; a callback may still
// be running when Close returns, so callers that tear down shared state must
// gate callbacks themselves.
package s2s

import (
	"context"
	"errors"
	"time"

	"github.com/webnexifystudio/nexa/pkg/audio"
)

// ErrSessionClosed is returned by [Session.SendAudio] after Close or after
// the remote end has gone away.
var ErrSessionClosed = errors.New("s2s: session closed")

// Modality selects what the remote model responds with.
type Modality string

const (
	// ModalityAudio requests spoken responses.
	ModalityAudio Modality = "AUDIO"
	// ModalityText requests text-only responses.
	ModalityText Modality = "TEXT"
)

// SessionConfig is the immutable configuration passed when a session opens.
type SessionConfig struct {
	// Modality is the response modality. Empty means [ModalityAudio].
	Modality Modality

	// Instructions is the system instruction that shapes the model's persona.
	Instructions string

	// Voice is the provider's prebuilt voice name (e.g. "Kore").
	Voice string

	// InputFormat is the format of chunks passed to SendAudio.
	InputFormat audio.Format

	// OutputFormat is the format the caller plays audio in.
	OutputFormat audio.Format
}

// ResponseModality returns cfg.Modality or [ModalityAudio] if unset.
func (cfg SessionConfig) ResponseModality() Modality {
	if cfg.Modality == "" {
		return ModalityAudio
	}
	return cfg.Modality
}

// Message is one inbound server event. A message may carry audio, a control
// flag, or both.
type Message struct {
	// Audio is base64-encoded 16-bit little-endian PCM, empty if the message
	// carries no audio.
	Audio string

	// Format is the audio format announced by the server. Zero when the
	// server did not say.
	Format audio.Format

	// Interrupted reports that the user barged in and the model stopped its
	// current turn.
	Interrupted bool

	// TurnComplete reports that the model finished its turn.
	TurnComplete bool
}

// Callbacks receive session events. Any field may be nil.
//
// OnOpen fires once when the service has accepted the session configuration.
// Exactly one of OnClose or OnError ends a session the remote side
// terminates; a session closed locally with [Session.Close] ends silently.
type Callbacks struct {
	OnOpen    func()
	OnMessage func(Message)
	OnClose   func(reason string)
	OnError   func(err error)
}

// Open invokes OnOpen if set.
func (c Callbacks) Open() {
	if c.OnOpen != nil {
		c.OnOpen()
	}
}

// Message invokes OnMessage if set.
func (c Callbacks) Message(m Message) {
	if c.OnMessage != nil {
		c.OnMessage(m)
	}
}

// Close invokes OnClose if set.
func (c Callbacks) Close(reason string) {
	if c.OnClose != nil {
		c.OnClose(reason)
	}
}

// Error invokes OnError if set.
func (c Callbacks) Error(err error) {
	if c.OnError != nil {
		c.OnError(err)
	}
}

// Session is an open remote session. All methods are safe for concurrent use.
type Session interface {
	// SendAudio sends one encoded microphone chunk. It is fire-and-forget: a
	// returned error means this chunk was lost, not that the session failed.
	SendAudio(chunk audio.EncodedChunk) error

	// Close ends the session. It is idempotent and never waits on callbacks.
	Close() error
}

// Capabilities describes static properties of a provider.
type Capabilities struct {
	// Voices lists the prebuilt voice names the provider accepts.
	Voices []string

	// InputFormat is the format the service expects for outbound audio.
	InputFormat audio.Format

	// OutputFormat is the format the service emits.
	OutputFormat audio.Format

	// MaxSessionDuration is the service-imposed session limit. Zero means no
	// documented limit.
	MaxSessionDuration time.Duration
}

// Provider opens remote sessions. Implementations must be safe for
// concurrent use.
type Provider interface {
	// Connect establishes a session. It returns once the transport is up and
	// the configuration has been sent; OnOpen signals that the service
	// accepted it. Connect honours ctx only while establishing the transport.
	// The caller owns the returned Session and must Close it.
	Connect(ctx context.Context, cfg SessionConfig, cb Callbacks) (Session, error)

	// Capabilities returns static metadata about the provider.
	Capabilities() Capabilities
}
