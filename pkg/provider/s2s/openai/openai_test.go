package openai_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/webnexifystudio/nexa/pkg/audio"
	"github.com/webnexifystudio/nexa/pkg/provider/s2s"
	"github.com/webnexifystudio/nexa/pkg/provider/s2s/openai"
)

// ── Helpers ───────────────────────────────────────────────────────────────────

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// startMockServer launches a test WebSocket server that hands each accepted
// connection to handler. The server is closed when the test finishes.
func startMockServer(t *testing.T, handler func(conn *websocket.Conn, r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")
		handler(conn, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func readJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Errorf("readJSON: %v", err)
		return
	}
	if err := json.Unmarshal(data, v); err != nil {
		t.Errorf("readJSON unmarshal: %v", err)
	}
}

func writeJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	data, _ := json.Marshal(v)
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Logf("writeJSON: %v (may be expected on close)", err)
	}
}

// acceptSession reads session.update and acknowledges it.
func acceptSession(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	var update map[string]any
	readJSON(t, conn, &update)
	writeJSON(t, conn, map[string]any{"type": "session.updated"})
}

type events struct {
	open     chan struct{}
	messages chan s2s.Message
	closed   chan string
	errs     chan error
}

func newEvents() *events {
	return &events{
		open:     make(chan struct{}, 1),
		messages: make(chan s2s.Message, 16),
		closed:   make(chan string, 1),
		errs:     make(chan error, 1),
	}
}

func (e *events) callbacks() s2s.Callbacks {
	return s2s.Callbacks{
		OnOpen:    func() { e.open <- struct{}{} },
		OnMessage: func(m s2s.Message) { e.messages <- m },
		OnClose:   func(reason string) { e.closed <- reason },
		OnError:   func(err error) { e.errs <- err },
	}
}

func waitFor[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(3 * time.Second):
		t.Fatalf("timeout waiting for %s", what)
	}
	var zero T
	return zero
}

func connect(t *testing.T, srv *httptest.Server, cfg s2s.SessionConfig, ev *events, opts ...openai.Option) s2s.Session {
	t.Helper()
	opts = append([]openai.Option{openai.WithBaseURL(wsURL(srv))}, opts...)
	sess, err := openai.New("sk-test", opts...).Connect(context.Background(), cfg, ev.callbacks())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { _ = sess.Close() })
	return sess
}

// ── Connection tests ──────────────────────────────────────────────────────────

func TestConnect_HeadersAndModel(t *testing.T) {
	t.Parallel()

	reqCh := make(chan *http.Request, 1)
	srv := startMockServer(t, func(conn *websocket.Conn, r *http.Request) {
		reqCh <- r
		<-conn.CloseRead(context.Background()).Done()
	})

	connect(t, srv, s2s.SessionConfig{}, newEvents(), openai.WithModel("gpt-realtime"))

	r := waitFor(t, reqCh, "request")
	if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
		t.Errorf("Authorization = %q", got)
	}
	if got := r.Header.Get("OpenAI-Beta"); got != "realtime=v1" {
		t.Errorf("OpenAI-Beta = %q", got)
	}
	if got := r.URL.Query().Get("model"); got != "gpt-realtime" {
		t.Errorf("model = %q, want gpt-realtime", got)
	}
}

func TestConnect_SendsSessionUpdate(t *testing.T) {
	t.Parallel()

	type updateMsg struct {
		Type    string `json:"type"`
		Session struct {
			Modalities        []string `json:"modalities"`
			Voice             string   `json:"voice"`
			Instructions      string   `json:"instructions"`
			InputAudioFormat  string   `json:"input_audio_format"`
			OutputAudioFormat string   `json:"output_audio_format"`
		} `json:"session"`
	}
	received := make(chan updateMsg, 1)
	srv := startMockServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var msg updateMsg
		readJSON(t, conn, &msg)
		received <- msg
		<-conn.CloseRead(context.Background()).Done()
	})

	connect(t, srv, s2s.SessionConfig{Instructions: "You are Nexa.", Voice: "coral"}, newEvents())

	msg := waitFor(t, received, "session.update")
	if msg.Type != "session.update" {
		t.Errorf("type = %q", msg.Type)
	}
	if msg.Session.Voice != "coral" || msg.Session.Instructions != "You are Nexa." {
		t.Errorf("session = %+v", msg.Session)
	}
	if msg.Session.InputAudioFormat != "pcm16" || msg.Session.OutputAudioFormat != "pcm16" {
		t.Errorf("formats = %q/%q, want pcm16", msg.Session.InputAudioFormat, msg.Session.OutputAudioFormat)
	}
	if len(msg.Session.Modalities) != 2 || msg.Session.Modalities[0] != "audio" {
		t.Errorf("modalities = %v, want [audio text]", msg.Session.Modalities)
	}
}

func TestConnect_OpenWaitsForSessionUpdated(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := startMockServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var update map[string]any
		readJSON(t, conn, &update)
		writeJSON(t, conn, map[string]any{"type": "session.created"})
		<-release
		writeJSON(t, conn, map[string]any{"type": "session.updated"})
		<-conn.CloseRead(context.Background()).Done()
	})

	ev := newEvents()
	connect(t, srv, s2s.SessionConfig{}, ev)

	select {
	case <-ev.open:
		t.Fatal("OnOpen fired before session.updated")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	waitFor(t, ev.open, "OnOpen")
}

func TestConnect_DialFailure(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := openai.New("bad", openai.WithBaseURL(wsURL(srv)))
	if _, err := p.Connect(context.Background(), s2s.SessionConfig{}, s2s.Callbacks{}); err == nil {
		t.Fatal("expected dial error")
	}
}

// ── Audio ─────────────────────────────────────────────────────────────────────

func TestSendAudio_ResamplesTo24k(t *testing.T) {
	t.Parallel()

	type appendMsg struct {
		Type  string `json:"type"`
		Audio string `json:"audio"`
	}
	received := make(chan appendMsg, 1)
	srv := startMockServer(t, func(conn *websocket.Conn, _ *http.Request) {
		acceptSession(t, conn)
		var msg appendMsg
		readJSON(t, conn, &msg)
		received <- msg
		<-conn.CloseRead(context.Background()).Done()
	})

	ev := newEvents()
	sess := connect(t, srv, s2s.SessionConfig{}, ev)
	waitFor(t, ev.open, "OnOpen")

	// 160 samples at 16 kHz is 10 ms, which is 240 samples at 24 kHz.
	chunk := audio.EncodedChunk{Data: make([]byte, 320), Format: audio.Format{SampleRate: 16000, Channels: 1}}
	if err := sess.SendAudio(chunk); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}

	msg := waitFor(t, received, "append")
	if msg.Type != "input_audio_buffer.append" {
		t.Errorf("type = %q", msg.Type)
	}
	raw, err := base64.StdEncoding.DecodeString(msg.Audio)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(raw) != 480 {
		t.Errorf("appended %d bytes, want 480", len(raw))
	}
}

func TestReceive_AudioInterruptAndDone(t *testing.T) {
	t.Parallel()

	delta := base64.StdEncoding.EncodeToString([]byte{0x01, 0x00})
	srv := startMockServer(t, func(conn *websocket.Conn, _ *http.Request) {
		acceptSession(t, conn)
		writeJSON(t, conn, map[string]any{"type": "response.audio.delta", "delta": delta})
		writeJSON(t, conn, map[string]any{"type": "response.audio_transcript.delta", "delta": "hi"})
		writeJSON(t, conn, map[string]any{"type": "input_audio_buffer.speech_started"})
		writeJSON(t, conn, map[string]any{"type": "response.done"})
		<-conn.CloseRead(context.Background()).Done()
	})

	ev := newEvents()
	connect(t, srv, s2s.SessionConfig{}, ev)
	waitFor(t, ev.open, "OnOpen")

	m := waitFor(t, ev.messages, "audio")
	if m.Audio != delta || m.Format.SampleRate != 24000 {
		t.Errorf("audio message = %+v", m)
	}
	if m = waitFor(t, ev.messages, "interrupt"); !m.Interrupted {
		t.Errorf("message = %+v, want interrupted", m)
	}
	if m = waitFor(t, ev.messages, "done"); !m.TurnComplete {
		t.Errorf("message = %+v, want turn complete", m)
	}
}

// ── Termination ───────────────────────────────────────────────────────────────

func TestErrorEvent_OnError(t *testing.T) {
	t.Parallel()
	srv := startMockServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var update map[string]any
		readJSON(t, conn, &update)
		writeJSON(t, conn, map[string]any{
			"type":  "error",
			"error": map[string]any{"type": "invalid_request_error", "code": "invalid_api_key", "message": "bad key"},
		})
		<-conn.CloseRead(context.Background()).Done()
	})

	ev := newEvents()
	connect(t, srv, s2s.SessionConfig{}, ev)

	err := waitFor(t, ev.errs, "OnError")
	if !strings.Contains(err.Error(), "bad key") || !strings.Contains(err.Error(), "invalid_api_key") {
		t.Errorf("err = %v", err)
	}
}

func TestRemoteNormalClose_OnClose(t *testing.T) {
	t.Parallel()
	srv := startMockServer(t, func(conn *websocket.Conn, _ *http.Request) {
		acceptSession(t, conn)
		conn.Close(websocket.StatusGoingAway, "server restart")
	})

	ev := newEvents()
	connect(t, srv, s2s.SessionConfig{}, ev)
	waitFor(t, ev.open, "OnOpen")

	if reason := waitFor(t, ev.closed, "OnClose"); reason != "server restart" {
		t.Errorf("reason = %q", reason)
	}
}

func TestClose_IdempotentAndSilent(t *testing.T) {
	t.Parallel()
	srv := startMockServer(t, func(conn *websocket.Conn, _ *http.Request) {
		acceptSession(t, conn)
		<-conn.CloseRead(context.Background()).Done()
	})

	ev := newEvents()
	sess := connect(t, srv, s2s.SessionConfig{}, ev)
	waitFor(t, ev.open, "OnOpen")

	_ = sess.Close()
	_ = sess.Close()
	if err := sess.SendAudio(audio.EncodedChunk{Data: []byte{0, 0}}); !errors.Is(err, s2s.ErrSessionClosed) {
		t.Errorf("SendAudio after Close err = %v, want ErrSessionClosed", err)
	}
	select {
	case r := <-ev.closed:
		t.Errorf("OnClose(%q) after local Close", r)
	case err := <-ev.errs:
		t.Errorf("OnError(%v) after local Close", err)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestErrorEvent_CloseFromCallbackReturnsPromptly(t *testing.T) {
	t.Parallel()
	trigger := make(chan struct{})
	hold := make(chan struct{})
	srv := startMockServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var update map[string]any
		readJSON(t, conn, &update)
		<-trigger
		writeJSON(t, conn, map[string]any{
			"type":  "error",
			"error": map[string]any{"code": "session_expired", "message": "expired"},
		})
		// Never read again, so a close handshake from the client cannot finish.
		<-hold
	})
	t.Cleanup(func() { close(hold) })

	var sess s2s.Session
	took := make(chan time.Duration, 1)
	p := openai.New("sk-test", openai.WithBaseURL(wsURL(srv)))
	sess, err := p.Connect(context.Background(), s2s.SessionConfig{}, s2s.Callbacks{
		OnError: func(error) {
			start := time.Now()
			_ = sess.Close()
			took <- time.Since(start)
		},
	})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	close(trigger)

	if d := waitFor(t, took, "Close inside OnError"); d > time.Second {
		t.Errorf("Close inside OnError took %v, want well under the close handshake timeout", d)
	}
}
