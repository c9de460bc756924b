// Package httpapi implements the HTTP+WS surface of spec §6: the
// /v1/* UI-facing routes, the artifact file server, and the renderer
// websocket. Grounded on the teacher's internal/httpapi/server.go —
// the chi router setup, CheckOrigin same-origin rule, and
// decodeJSON/respondJSON/respondError helpers are kept close to
// verbatim; the session-websocket handler is replaced outright with
// an SSE handler, since spec §4.7 specifies a pull-loop stream rather
// than a bidirectional realtime socket.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/watershed-arts/basin/internal/agent"
	"github.com/watershed-arts/basin/internal/config"
	"github.com/watershed-arts/basin/internal/conversation"
	"github.com/watershed-arts/basin/internal/errclass"
	"github.com/watershed-arts/basin/internal/observability"
	"github.com/watershed-arts/basin/internal/renderer"
	"github.com/watershed-arts/basin/internal/stream"
	"github.com/watershed-arts/basin/internal/stt"
	"github.com/watershed-arts/basin/internal/workflow"
)

// Server wires the installation backend's HTTP surface: chat
// dispatch, transcription, agent listing, artifact serving, and the
// renderer push-channel upgrade.
type Server struct {
	cfg           config.Config
	conv          *conversation.Store
	workflow      *workflow.Orchestrator
	transcriber   *stt.Transcriber
	hub           *renderer.Hub
	metrics       *observability.Metrics
	artifacts     http.Handler
	artifactsRoot string
}

func New(cfg config.Config, conv *conversation.Store, wf *workflow.Orchestrator, transcriber *stt.Transcriber, hub *renderer.Hub, metrics *observability.Metrics, artifactsRoot string) *Server {
	return &Server{
		cfg:           cfg,
		conv:          conv,
		workflow:      wf,
		transcriber:   transcriber,
		hub:           hub,
		metrics:       metrics,
		artifacts:     http.FileServer(http.Dir(artifactsRoot)),
		artifactsRoot: artifactsRoot,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleHealth)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Get("/v1/health", s.handleHealth)
	r.Get("/v1/agents", s.handleAgents)
	r.Post("/v1/stt", s.handleSTT)
	r.Post("/v1/chat", s.handleChat)
	r.Post("/v1/reset", s.handleReset)
	r.Handle("/v1/audio/*", http.StripPrefix("/v1/audio/", s.artifacts))

	if s.cfg.EventsWSEnabled {
		r.Get("/v1/events", s.handleEvents)
	}

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleAgents(w http.ResponseWriter, _ *http.Request) {
	agents := agent.All()
	out := make([]map[string]any, 0, len(agents))
	for _, a := range agents {
		out = append(out, map[string]any{
			"id":          a.ID,
			"name":        a.Name,
			"provider":    a.Provider,
			"model":       a.Model,
			"description": a.Description,
			"color":       a.Color,
		})
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleSTT(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		respondError(w, http.StatusRequestEntityTooLarge, "too_large", err.Error())
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, "missing_file", "multipart field 'file' is required")
		return
	}
	defer file.Close()

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	result, err := s.transcriber.Transcribe(r.Context(), header.Filename, mimeType, file)
	if err != nil {
		status, code := sttErrorStatus(err)
		respondError(w, status, code, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// sttErrorStatus maps a Transcriber error's taxonomy class to a status
// for POST /v1/stt: 422 for errclass.Unknown (the transcriber's own
// validation and local failures, such as an empty upload), 502 for
// every upstream failure class. It never returns 415.
func sttErrorStatus(err error) (int, string) {
	switch errclass.Classify(err) {
	case errclass.Unknown:
		return http.StatusUnprocessableEntity, "unsupported_or_too_short"
	default:
		return http.StatusBadGateway, "stt_upstream_error"
	}
}

type chatRequest struct {
	Message string                 `json:"message"`
	Slots   []agent.SlotAssignment `json:"slots"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "message is required")
		return
	}
	if len(req.Slots) == 0 {
		respondError(w, http.StatusBadRequest, "invalid_request", "slots is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming_unsupported", "response writer does not support flushing")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	if s.metrics != nil {
		s.metrics.SSEConnections.Inc()
		defer s.metrics.SSEConnections.Dec()
	}

	q := s.workflow.RunSSE(r.Context(), req.Message, req.Slots)
	writeSSE(w, flusher, q)
}

// writeSSE drains q until its sentinel and writes each event as one
// `data: <json>\n\n` frame, flushing after every write so the UI sees
// events as they're produced rather than buffered.
func writeSSE(w http.ResponseWriter, flusher http.Flusher, q *stream.Queue) {
	for {
		event, ok := q.Next()
		if !ok {
			return
		}
		payload, err := json.Marshal(event)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
	}
}

func (s *Server) handleReset(w http.ResponseWriter, _ *http.Request) {
	cleared := s.conv.ResetAll()
	respondJSON(w, http.StatusOK, map[string]any{"clearedSlots": cleared})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if err := s.hub.Accept(w, r); err != nil {
		respondError(w, http.StatusBadRequest, "ws_upgrade_failed", err.Error())
		return
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
