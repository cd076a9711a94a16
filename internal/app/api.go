package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/webnexifystudio/nexa/internal/health"
	"github.com/webnexifystudio/nexa/internal/observe"
	"github.com/webnexifystudio/nexa/internal/session"
)

// statusResponse is the JSON body of the status and lifecycle endpoints.
type statusResponse struct {
	State string    `json:"state"`
	Error string    `json:"error,omitempty"`
	Since time.Time `json:"since"`
}

// analyserResponse is the JSON body of GET /v1/analyser.
type analyserResponse struct {
	TimeDomain []float32 `json:"time_domain"`
	Frequency  []float32 `json:"frequency"`
	Level      float32   `json:"level"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (a *App) routes() http.Handler {
	mux := http.NewServeMux()
	health.New(a.checkers()...).Register(mux)
	if a.metricsHandler != nil {
		mux.Handle("GET /metrics", a.metricsHandler)
	}
	mux.HandleFunc("GET /v1/status", a.handleStatus)
	mux.HandleFunc("POST /v1/connect", a.handleConnect)
	mux.HandleFunc("POST /v1/disconnect", a.handleDisconnect)
	mux.HandleFunc("GET /v1/analyser", a.handleAnalyser)
	return observe.Middleware(a.metrics, a.logger)(mux)
}

func toStatus(st session.Status) statusResponse {
	return statusResponse{State: st.State.String(), Error: st.Error, Since: st.Since.UTC()}
}

func (a *App) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, toStatus(a.controller.Status()))
}

// handleConnect blocks until the session is open or has failed. The connect
// outlives a client that hangs up; use /v1/disconnect to abort it.
func (a *App) handleConnect(w http.ResponseWriter, r *http.Request) {
	err := a.Connect(context.WithoutCancel(r.Context()))
	if err == nil {
		writeJSON(w, http.StatusOK, toStatus(a.controller.Status()))
		return
	}

	var se *session.Error
	switch {
	case errors.Is(err, session.ErrBusy):
		writeJSON(w, http.StatusConflict, errorResponse{Error: "A session is already active."})
	case errors.Is(err, session.ErrCanceled):
		writeJSON(w, http.StatusConflict, errorResponse{Error: "Connect was canceled."})
	case errors.As(err, &se):
		writeJSON(w, statusForKind(se.Kind), errorResponse{Error: se.UserMessage()})
	default:
		observe.Logger(r.Context(), a.logger).Error("connect failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Failed to access microphone or connect to AI service."})
	}
}

func statusForKind(k session.Kind) int {
	switch k {
	case session.KindPermission:
		return http.StatusForbidden
	case session.KindDevice:
		return http.StatusServiceUnavailable
	case session.KindConnection:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (a *App) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if err := a.controller.Disconnect(); err != nil {
		observe.Logger(r.Context(), a.logger).Warn("disconnect released with errors", "err", err)
	}
	writeJSON(w, http.StatusOK, toStatus(a.controller.Status()))
}

func (a *App) handleAnalyser(w http.ResponseWriter, _ *http.Request) {
	an := a.controller.Analyser()
	if an == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, analyserResponse{
		TimeDomain: an.TimeDomain(),
		Frequency:  an.Frequency(),
		Level:      an.Level(),
	})
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
