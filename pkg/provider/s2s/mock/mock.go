// Package mock provides test doubles for the s2s package interfaces.
//
// Use Provider to verify Connect calls and to obtain the Sessions it hands
// out. Use Session to inspect outbound audio and to play the remote side by
// firing callbacks.
//
// Example:
//
//	p := &mock.Provider{AutoOpen: true}
//	sess, _ := p.Connect(ctx, cfg, cb)
//	p.Last().Deliver(s2s.Message{Audio: chunk})
package mock

import (
	"context"
	"sync"

	"github.com/webnexifystudio/nexa/pkg/audio"
	"github.com/webnexifystudio/nexa/pkg/provider/s2s"
)

// ConnectCall records a single invocation of Provider.Connect.
type ConnectCall struct {
	// Cfg is the SessionConfig passed to Connect.
	Cfg s2s.SessionConfig
}

// Provider is a mock implementation of s2s.Provider.
type Provider struct {
	mu sync.Mutex

	// ConnectErr, if non-nil, is returned as the error from Connect.
	ConnectErr error

	// AutoOpen fires OnOpen from a separate goroutine right after Connect
	// returns, as a real service acknowledging the setup would.
	AutoOpen bool

	// Connected, if non-nil, receives every Session created by Connect.
	Connected chan *Session

	// ProviderCapabilities is returned by Capabilities.
	ProviderCapabilities s2s.Capabilities

	// ConnectCalls records every call to Connect in order.
	ConnectCalls []ConnectCall

	sessions []*Session
}

// Connect records the call and returns a new Session bound to cb.
func (p *Provider) Connect(ctx context.Context, cfg s2s.SessionConfig, cb s2s.Callbacks) (s2s.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.ConnectCalls = append(p.ConnectCalls, ConnectCall{Cfg: cfg})
	if p.ConnectErr != nil {
		err := p.ConnectErr
		p.mu.Unlock()
		return nil, err
	}
	s := &Session{cb: cb}
	p.sessions = append(p.sessions, s)
	autoOpen, notify := p.AutoOpen, p.Connected
	p.mu.Unlock()

	if notify != nil {
		notify <- s
	}
	if autoOpen {
		go s.Open()
	}
	return s, nil
}

// Capabilities returns ProviderCapabilities.
func (p *Provider) Capabilities() s2s.Capabilities {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ProviderCapabilities
}

// Sessions returns every session created so far.
func (p *Provider) Sessions() []*Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Session(nil), p.sessions...)
}

// Last returns the most recent session, or nil.
func (p *Provider) Last() *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.sessions) == 0 {
		return nil
	}
	return p.sessions[len(p.sessions)-1]
}

// Calls returns a copy of the recorded Connect calls.
func (p *Provider) Calls() []ConnectCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ConnectCall(nil), p.ConnectCalls...)
}

// ── Session ───────────────────────────────────────────────────────────────────

// Session is a mock implementation of s2s.Session.
//
// The remote-side helpers (Open, Deliver, RemoteClose, Fail) invoke the
// callbacks serially, matching the ordering guarantee of real providers.
// They are no-ops once the session has been closed locally or remotely.
type Session struct {
	// cbMu serialises callback invocations.
	cbMu sync.Mutex
	cb   s2s.Callbacks

	mu         sync.Mutex
	closed     bool
	ended      bool
	sent       []audio.EncodedChunk
	closeCount int

	// SendErr, if non-nil, is returned from SendAudio.
	SendErr error
}

// SendAudio records chunk.
func (s *Session) SendAudio(chunk audio.EncodedChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.ended {
		return s2s.ErrSessionClosed
	}
	if s.SendErr != nil {
		return s.SendErr
	}
	s.sent = append(s.sent, chunk)
	return nil
}

// Close marks the session closed. It never invokes callbacks.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.closeCount++
	return nil
}

// Sent returns a copy of every chunk passed to SendAudio.
func (s *Session) Sent() []audio.EncodedChunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]audio.EncodedChunk(nil), s.sent...)
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// CloseCount returns the number of Close calls.
func (s *Session) CloseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCount
}

// live reports whether remote events may still be delivered.
func (s *Session) live() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && !s.ended
}

func (s *Session) end() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.ended {
		return false
	}
	s.ended = true
	return true
}

// Open fires OnOpen.
func (s *Session) Open() {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	if s.live() {
		s.cb.Open()
	}
}

// Deliver fires OnMessage with m.
func (s *Session) Deliver(m s2s.Message) {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	if s.live() {
		s.cb.Message(m)
	}
}

// RemoteClose ends the session from the remote side and fires OnClose.
func (s *Session) RemoteClose(reason string) {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	if s.end() {
		s.cb.Close(reason)
	}
}

// Fail ends the session with a transport error and fires OnError.
func (s *Session) Fail(err error) {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	if s.end() {
		s.cb.Error(err)
	}
}
