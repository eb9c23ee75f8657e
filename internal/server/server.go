package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/m2tx/gemini_chat/internal/chat"
	"github.com/m2tx/gemini_chat/internal/logger"
	"github.com/m2tx/gemini_chat/internal/model"
)

// Server exposes a chat.Client over HTTP.
type Server struct {
	client      *chat.Client
	model       string
	instruction string
	sessions    *Registry
}

func New(client *chat.Client, defaultModel, systemInstruction string) *Server {
	return &Server{
		client:      client,
		model:       defaultModel,
		instruction: systemInstruction,
		sessions:    NewRegistry(),
	}
}

// Routes wires HTTP routes to the chat client.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Post("/chat", s.handleChat)

	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", s.handleCreateSession)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Post("/messages", s.handleSendMessage)
			r.Get("/history", s.handleHistory)
			r.Delete("/", s.handleDeleteSession)
		})
	})

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logger.L.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"elapsed", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if !s.client.Ready() {
		status = "not_ready"
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": status})
}

type historyMessage struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

type chatRequest struct {
	PermanentContext string           `json:"permanent_context"`
	ChatHistory      []historyMessage `json:"chat_history"`
}

type chatResponse struct {
	Type      string           `json:"type"`
	Content   string           `json:"content,omitempty"`
	Results   []map[string]any `json:"results,omitempty"`
	ErrorType string           `json:"error_type,omitempty"`
	Message   string           `json:"message,omitempty"`
}

// handleChat answers the last user turn of a client-held conversation.
// Provider failures are reported in the body with type "error".
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	n := len(req.ChatHistory)
	if n == 0 {
		respondError(w, http.StatusBadRequest, "chat_history is required")
		return
	}

	last := req.ChatHistory[n-1]
	if model.Role(last.Role) != model.RoleUser || strings.TrimSpace(last.Text) == "" {
		respondError(w, http.StatusBadRequest, "last chat_history entry must be a non-empty user message")
		return
	}

	seed := make([]model.Message, 0, n-1)
	for _, m := range req.ChatHistory[:n-1] {
		role := model.Role(m.Role)
		if !role.Valid() {
			respondError(w, http.StatusBadRequest, "unknown role "+m.Role)
			return
		}
		seed = append(seed, model.Message{Role: role, Text: m.Text})
	}

	session, err := s.client.CreateSession(r.Context(), s.model,
		chat.WithSessionInstruction(s.combineInstruction(req.PermanentContext)),
		chat.WithHistory(seed),
	)
	if err != nil {
		s.respondChatError(w, err)
		return
	}

	reply, err := session.SendMessage(r.Context(), last.Text)
	if err != nil {
		s.respondChatError(w, err)
		return
	}

	resp := chatResponse{Type: "text", Content: reply.Text}
	for _, tr := range reply.ToolResults {
		resp.Results = append(resp.Results, tr.Response)
	}
	if len(resp.Results) > 1 {
		resp.Type = "multi_tool_result"
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) combineInstruction(permanent string) string {
	permanent = strings.TrimSpace(permanent)
	switch {
	case permanent == "":
		return s.instruction
	case s.instruction == "":
		return "Things to remember about the user:\n" + permanent
	default:
		return s.instruction + "\n\nThings to remember about the user:\n" + permanent
	}
}

func (s *Server) respondChatError(w http.ResponseWriter, err error) {
	kind := errorType(err)
	logger.L.Warn("chat request failed", "error_type", kind, "error", err)
	respondJSON(w, http.StatusOK, chatResponse{
		Type:      "error",
		ErrorType: kind,
		Message:   err.Error(),
	})
}

type createSessionRequest struct {
	Model             string `json:"model"`
	SystemInstruction string `json:"system_instruction"`
}

type sessionResponse struct {
	ID    string `json:"id"`
	Model string `json:"model"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	modelName := req.Model
	if modelName == "" {
		modelName = s.model
	}

	var opts []chat.SessionOption
	if req.SystemInstruction != "" {
		opts = append(opts, chat.WithSessionInstruction(req.SystemInstruction))
	}

	session, err := s.client.CreateSession(r.Context(), modelName, opts...)
	if err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}

	s.sessions.Put(session)
	respondJSON(w, http.StatusCreated, sessionResponse{ID: session.ID(), Model: session.Model()})
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	session, ok := s.sessions.Get(chi.URLParam(r, "sessionID"))
	if !ok {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}

	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	reply, err := session.SendMessage(r.Context(), req.Text)
	if err != nil {
		if !errors.Is(err, chat.ErrEmptyMessage) {
			logger.L.Warn("session message failed", "session_id", session.ID(), "error", err)
		}
		respondError(w, statusFor(err), err.Error())
		return
	}

	respondJSON(w, http.StatusOK, reply)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	session, ok := s.sessions.Get(chi.URLParam(r, "sessionID"))
	if !ok {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}

	respondJSON(w, http.StatusOK, session.History())
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if !s.sessions.Delete(chi.URLParam(r, "sessionID")) {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
