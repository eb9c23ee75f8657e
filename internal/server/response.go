package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/m2tx/gemini_chat/internal/chat"
	"github.com/m2tx/gemini_chat/internal/logger"
)

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.L.Warn("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// errorType names a chat failure for clients that branch on it.
func errorType(err error) string {
	var (
		remoteErr    *chat.RemoteError
		credErr      *chat.CredentialError
		transportErr *chat.TransportError
		sessionErr   *chat.SessionCreationError
	)
	switch {
	case errors.As(err, &remoteErr) && remoteErr.Overloaded():
		return "model_overloaded"
	case errors.As(err, &credErr):
		return "credential"
	case errors.As(err, &transportErr):
		return "transport"
	case errors.As(err, &sessionErr):
		return "session"
	default:
		return "remote"
	}
}

// statusFor maps a chat failure onto an HTTP status for the session API.
func statusFor(err error) int {
	if errors.Is(err, chat.ErrEmptyMessage) {
		return http.StatusBadRequest
	}

	switch errorType(err) {
	case "model_overloaded":
		return http.StatusServiceUnavailable
	case "transport":
		return http.StatusGatewayTimeout
	case "session":
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}
