package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/m2tx/gemini_chat/internal/logger"
	"github.com/m2tx/gemini_chat/internal/model"
)

// Session is an append-only conversation bound to one model.
type Session struct {
	id                string
	model             string
	systemInstruction string
	client            *Client

	mu      sync.Mutex
	history []model.Message
}

type SessionOption func(*Session) error

// WithSessionInstruction overrides the client's default system instruction.
func WithSessionInstruction(s string) SessionOption {
	return func(sess *Session) error {
		sess.systemInstruction = s
		return nil
	}
}

// WithHistory seeds the session with turns from an earlier conversation.
func WithHistory(history []model.Message) SessionOption {
	return func(sess *Session) error {
		for i, m := range history {
			if !m.Role.Valid() {
				return fmt.Errorf("history[%d]: unknown role %q", i, m.Role)
			}
		}
		sess.history = append(sess.history, history...)
		return nil
	}
}

func newSession(c *Client, modelName string) *Session {
	return &Session{
		id:                uuid.NewString(),
		model:             modelName,
		systemInstruction: c.systemInstruction,
		client:            c,
		history:           make([]model.Message, 0, 16),
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) Model() string { return s.model }

func (s *Session) SystemInstruction() string { return s.systemInstruction }

// History returns a copy of the committed turns in order.
func (s *Session) History() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make([]model.Message, len(s.history))
	copy(copied, s.history)
	return copied
}

// Len returns the number of committed turns.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history)
}

// SendMessage sends text with the full history and blocks for the reply.
// On success the user and assistant turns are appended and the assistant
// turn is returned; on failure the history is left untouched.
func (s *Session) SendMessage(ctx context.Context, text string) (model.Message, error) {
	if strings.TrimSpace(text) == "" {
		return model.Message{}, ErrEmptyMessage
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user := model.NewUserMessage(text)
	history := make([]model.Message, len(s.history))
	copy(history, s.history)

	callCtx, cancel := context.WithTimeout(ctx, s.client.timeout)
	defer cancel()

	start := time.Now()
	reply, err := s.client.backend.Generate(callCtx, Request{
		Model:             s.model,
		SystemInstruction: s.systemInstruction,
		History:           history,
		Text:              text,
		Tools:             s.client.tools,
	})
	if err != nil {
		if ctxErr := callCtx.Err(); ctxErr != nil {
			err = &TransportError{Err: errors.Join(ctxErr, err)}
		} else {
			err = classify(err)
		}
		logger.L.Warn("send message failed", "session_id", s.id, "model", s.model, "error", err)
		return model.Message{}, err
	}

	if reply.Text == "" && len(reply.ToolResults) == 0 {
		return model.Message{}, &RemoteError{Message: "empty reply", Err: ErrEmptyReply}
	}

	assistant := model.Message{
		Role:        model.RoleAssistant,
		Text:        reply.Text,
		ToolResults: reply.ToolResults,
		Usage:       reply.Usage,
		CreatedAt:   time.Now().UTC(),
	}
	s.history = append(s.history, user, assistant)

	logger.L.Debug("message exchanged",
		"session_id", s.id,
		"model", s.model,
		"turns", len(s.history),
		"elapsed", time.Since(start),
	)

	s.client.record(ctx, s, user, assistant)

	return assistant, nil
}
