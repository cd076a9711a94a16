// Package genai implements the s2s.Provider interface on top of the official
// Google Gen AI SDK's Live API.
//
// It talks to the same BidiGenerateContent service as package gemini but lets
// the SDK own the transport, authentication and message schema. Use it when
// SDK parity matters more than control over the socket.
package genai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"google.golang.org/genai"

	"github.com/webnexifystudio/nexa/pkg/audio"
	"github.com/webnexifystudio/nexa/pkg/audio/pcm"
	"github.com/webnexifystudio/nexa/pkg/provider/s2s"
)

// Compile-time assertions that Provider and session satisfy the s2s interfaces.
var _ s2s.Provider = (*Provider)(nil)
var _ s2s.Session = (*session)(nil)

// DefaultModel is the native-audio Live model used when none is configured.
const DefaultModel = "gemini-2.5-flash-native-audio-preview-12-2025"

var (
	inputFormat  = audio.Format{SampleRate: 16000, Channels: 1}
	outputFormat = audio.Format{SampleRate: 24000, Channels: 1}
)

// ── Options ────────────────────────────────────────────────────────────────────

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the Live model used for sessions.
func WithModel(model string) Option {
	return func(p *Provider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithBaseURL overrides the SDK's API base URL.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = url }
}

// WithLogger sets the logger. Default: [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) { p.logger = l }
}

// ── Provider ───────────────────────────────────────────────────────────────────

// Provider implements s2s.Provider with [genai.Client.Live].
type Provider struct {
	apiKey  string
	model   string
	baseURL string
	logger  *slog.Logger
}

// New creates a Provider authenticating with apiKey against the Gemini API
// backend.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		apiKey: apiKey,
		model:  DefaultModel,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Capabilities returns static metadata about the Live API.
func (p *Provider) Capabilities() s2s.Capabilities {
	return s2s.Capabilities{
		Voices:             []string{"Aoede", "Charon", "Fenrir", "Kore", "Puck"},
		InputFormat:        inputFormat,
		OutputFormat:       outputFormat,
		MaxSessionDuration: 15 * time.Minute,
	}
}

// Connect creates an SDK client and opens a Live session. cb.OnOpen fires
// when the first setupComplete message is received.
func (p *Provider) Connect(ctx context.Context, cfg s2s.SessionConfig, cb s2s.Callbacks) (s2s.Session, error) {
	cc := &genai.ClientConfig{
		APIKey:  p.apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if p.baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: p.baseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("genai: new client: %w", err)
	}

	live, err := client.Live.Connect(ctx, p.model, liveConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("genai: live connect: %w", err)
	}

	s := &session{live: live, cb: cb, logger: p.logger, done: make(chan struct{})}
	go s.receiveLoop()
	return s, nil
}

// liveConfig translates a session configuration into the SDK's setup shape.
func liveConfig(cfg s2s.SessionConfig) *genai.LiveConnectConfig {
	lc := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.Modality(cfg.ResponseModality())},
	}
	if cfg.Instructions != "" {
		lc.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: cfg.Instructions}}}
	}
	if cfg.Voice != "" {
		lc.SpeechConfig = &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: cfg.Voice},
			},
		}
	}
	return lc
}

// ── session ────────────────────────────────────────────────────────────────────

type session struct {
	live   *genai.Session
	cb     s2s.Callbacks
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
	opened bool
	done   chan struct{}
	once   sync.Once
}

func (s *session) receiveLoop() {
	defer s.markClosed()
	for {
		msg, err := s.live.Receive()
		if err != nil {
			if s.isDone() {
				return
			}
			s.terminate(err)
			return
		}
		open, msgs := translate(msg)
		if open {
			s.mu.Lock()
			first := !s.opened
			s.opened = true
			s.mu.Unlock()
			if first {
				s.cb.Open()
			}
		}
		if msg.GoAway != nil {
			s.logger.Warn("genai: server will end the session")
		}
		for _, m := range msgs {
			s.cb.Message(m)
		}
	}
}

// terminate maps a receive error to OnClose for orderly WebSocket closes and
// OnError otherwise. The SDK surfaces its transport's close errors unchanged.
func (s *session) terminate(err error) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) && (ce.Code == websocket.CloseNormalClosure || ce.Code == websocket.CloseGoingAway) {
		reason := ce.Text
		if reason == "" {
			reason = "closed"
		}
		s.cb.Close(reason)
		return
	}
	s.cb.Error(fmt.Errorf("genai: receive: %w", err))
}

// translate converts one SDK message into zero or more s2s messages. open
// reports whether msg acknowledged the setup.
func translate(msg *genai.LiveServerMessage) (open bool, out []s2s.Message) {
	if msg == nil {
		return false, nil
	}
	open = msg.SetupComplete != nil
	sc := msg.ServerContent
	if sc == nil {
		return open, nil
	}
	if sc.ModelTurn != nil {
		for _, p := range sc.ModelTurn.Parts {
			if p == nil || p.InlineData == nil || len(p.InlineData.Data) == 0 {
				continue
			}
			if !strings.HasPrefix(p.InlineData.MIMEType, "audio/") {
				continue
			}
			out = append(out, s2s.Message{
				Audio:  pcm.EncodeBase64(p.InlineData.Data),
				Format: s2s.FormatFromMIME(p.InlineData.MIMEType),
			})
		}
	}
	if sc.Interrupted || sc.TurnComplete {
		out = append(out, s2s.Message{Interrupted: sc.Interrupted, TurnComplete: sc.TurnComplete})
	}
	return open, out
}

func (s *session) isDone() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *session) markClosed() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// SendAudio forwards one chunk as realtime audio input.
func (s *session) SendAudio(chunk audio.EncodedChunk) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return s2s.ErrSessionClosed
	}
	rate := chunk.Format.SampleRate
	if rate == 0 {
		rate = inputFormat.SampleRate
	}
	err := s.live.SendRealtimeInput(genai.LiveRealtimeInput{
		Audio: &genai.Blob{MIMEType: "audio/pcm;rate=" + strconv.Itoa(rate), Data: chunk.Data},
	})
	if err != nil {
		return fmt.Errorf("genai: send audio: %w", err)
	}
	return nil
}

// Close ends the Live session. Idempotent.
func (s *session) Close() error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.done)
		err = s.live.Close()
	})
	return err
}
