package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/plusone-ai/plusone/internal/assistant"
	"github.com/plusone-ai/plusone/internal/broadcast"
	"github.com/plusone-ai/plusone/internal/config"
	"github.com/plusone-ai/plusone/internal/observability"
	"github.com/plusone-ai/plusone/internal/session"
	"github.com/plusone-ai/plusone/internal/telephony"
)

// Server exposes the session control API, the transcript websocket, and the
// telephony media stream endpoint.
type Server struct {
	cfg      *config.Config
	ctl      *session.Controller
	bus      *broadcast.Broadcaster
	media    *telephony.MediaStream
	answerer assistant.Answerer
	notes    *assistant.NoteManager
	logger   zerolog.Logger
}

// New creates the HTTP surface. media may be nil when telephony is not
// configured; the stream endpoint then returns 404. answerer may be nil when
// no reasoning backend is configured; chat questions then return 503.
func New(cfg *config.Config, ctl *session.Controller, bus *broadcast.Broadcaster, media *telephony.MediaStream, answerer assistant.Answerer, logger zerolog.Logger) *Server {
	return &Server{
		cfg:      cfg,
		ctl:      ctl,
		bus:      bus,
		media:    media,
		answerer: answerer,
		notes:    assistant.NewNoteManager(),
		logger:   logger,
	}
}

// Routes builds the request mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/start", s.handleStart)
	mux.HandleFunc("/api/stop", s.handleStop)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/chat", s.handleChat)
	mux.HandleFunc("/api/notes", s.handleNotes)
	mux.HandleFunc("/ws/transcript", s.handleTranscriptWS)

	if s.media != nil {
		mux.HandleFunc("/streams/telephony", s.media.Handler())
	}

	mux.HandleFunc("/health", observability.HealthCheckHandler())
	mux.HandleFunc("/ready", observability.ReadinessHandler(s.readinessChecks()))

	if s.cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
	}

	return mux
}

// HTTPServer wraps the mux with production timeouts. The write timeout is
// left unset because the transcript websocket holds its connection open.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:        ":" + s.cfg.Port,
		Handler:     s.Routes(),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}
}

type startRequest struct {
	Topic string `json:"topic"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}

	var req startRequest
	if r.Body != nil {
		// An empty body is fine; the topic is optional.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	st, err := s.ctl.Start(r.Context(), req.Topic)
	if err != nil {
		if errors.Is(err, session.ErrAlreadyRecording) {
			writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
			return
		}
		s.logger.Error().Err(err).Msg("Session start failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	s.notes.Clear()
	writeJSON(w, http.StatusOK, st)
}

type stopResponse struct {
	session.StopResult
	Error string `json:"error,omitempty"`
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}

	result, err := s.ctl.Stop(r.Context())
	if err != nil {
		if errors.Is(err, session.ErrNotRecording) {
			writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
			return
		}
		// The session still ended; report the artifact failure alongside
		// what was captured.
		s.logger.Error().Err(err).Msg("Session stop reported an error")
		writeJSON(w, http.StatusInternalServerError, stopResponse{StopResult: result, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, stopResponse{StopResult: result})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}
	writeJSON(w, http.StatusOK, s.ctl.Status())
}

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Type     string          `json:"type"`
	Response string          `json:"response"`
	Note     *assistant.Note `json:"note,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "message is required"})
		return
	}

	if assistant.DetectIntent(message) == assistant.IntentNote {
		entries, elapsedMS := s.ctl.TranscriptContext()
		note := s.notes.Capture(message, entries, elapsedMS)
		writeJSON(w, http.StatusOK, chatResponse{
			Type:     "note",
			Response: "Noted: " + note.Message,
			Note:     &note,
		})
		return
	}

	if s.answerer == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "no reasoning backend configured"})
		return
	}
	text, err := s.answerer.Answer(r.Context(), message, s.ctl.TranscriptText())
	if err != nil {
		s.logger.Error().Err(err).Msg("Chat answer failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "answer failed"})
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{Type: "question", Response: text})
}

func (s *Server) handleNotes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string][]assistant.Note{"notes": s.notes.Notes()})
}

func (s *Server) readinessChecks() map[string]observability.HealthCheckFunc {
	return map[string]observability.HealthCheckFunc{
		"transcription": func(ctx context.Context) (bool, error) {
			if s.cfg.DeepgramAPIKey == "" {
				return false, errors.New("transcription API key missing")
			}
			return true, nil
		},
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
