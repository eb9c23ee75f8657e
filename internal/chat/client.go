package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/qmuntal/stateless"

	"github.com/m2tx/gemini_chat/internal/config"
	"github.com/m2tx/gemini_chat/internal/logger"
	"github.com/m2tx/gemini_chat/internal/model"
	"github.com/m2tx/gemini_chat/internal/transcript"
)

// Client lifecycle states
type State = stateless.State

var (
	StateUninitialized State = "Uninitialized"
	StateReady         State = "Ready"
	StateSessionActive State = "SessionActive"
	StateFailed        State = "Failed"
)

// Client lifecycle triggers
type Trigger = stateless.Trigger

var (
	TriggerInitialize    Trigger = "Initialize"
	TriggerFail          Trigger = "Fail"
	TriggerCreateSession Trigger = "CreateSession"
)

const defaultTimeout = 60 * time.Second

// Client is a handle on one provider credential. It is safe to share between
// goroutines; each Session it creates is an isolated conversation.
type Client struct {
	backend           Backend
	tools             *Toolbox
	recorder          transcript.Recorder
	timeout           time.Duration
	validateModel     bool
	systemInstruction string

	mu  sync.Mutex
	fsm *stateless.StateMachine
}

type Option func(*Client)

// WithToolbox offers the toolbox's functions to the model in every session.
func WithToolbox(t *Toolbox) Option {
	return func(c *Client) { c.tools = t }
}

// WithRecorder records every committed exchange.
func WithRecorder(r transcript.Recorder) Option {
	return func(c *Client) { c.recorder = r }
}

// WithTimeout bounds each SendMessage call.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithModelValidation makes CreateSession ask the provider whether the model exists.
func WithModelValidation(enabled bool) Option {
	return func(c *Client) { c.validateModel = enabled }
}

// WithSystemInstruction sets the default system instruction for new sessions.
func WithSystemInstruction(s string) Option {
	return func(c *Client) { c.systemInstruction = s }
}

// NewClient returns an uninitialized client; call Initialize before creating sessions.
func NewClient(backend Backend, opts ...Option) *Client {
	c := &Client{
		backend: backend,
		timeout: defaultTimeout,
		fsm:     newLifecycle(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func newLifecycle() *stateless.StateMachine {
	fsm := stateless.NewStateMachine(StateUninitialized)

	fsm.Configure(StateUninitialized).
		Permit(TriggerInitialize, StateReady).
		Permit(TriggerFail, StateFailed)

	fsm.Configure(StateReady).
		Permit(TriggerCreateSession, StateSessionActive)

	fsm.Configure(StateSessionActive).
		PermitReentry(TriggerCreateSession)

	return fsm
}

// NewBackend builds the provider backend named by cfg.Provider.
func NewBackend(ctx context.Context, cfg config.LLMConfig) (Backend, error) {
	switch cfg.Provider {
	case config.ProviderGemini, "":
		return NewGeminiBackend(ctx, cfg)
	case config.ProviderOpenAI:
		return NewOpenAIBackend(cfg)
	default:
		return nil, fmt.Errorf("chat: unknown provider %q", cfg.Provider)
	}
}

// Bootstrap builds the configured backend and initializes a client on it.
// A non-nil error means the process has no usable client.
func Bootstrap(ctx context.Context, cfg config.LLMConfig, opts ...Option) (*Client, error) {
	backend, err := NewBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}

	base := []Option{
		WithTimeout(cfg.Timeout),
		WithModelValidation(cfg.ValidateModel),
		WithSystemInstruction(cfg.SystemInstruction),
	}
	c := NewClient(backend, append(base, opts...)...)

	if err := c.Initialize(ctx); err != nil {
		return nil, err
	}

	return c, nil
}

// Initialize verifies the credential and moves the client to Ready.
func (c *Client) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.fsm.MustState() != StateUninitialized {
		return fmt.Errorf("chat: initialize called in state %v", c.fsm.MustState())
	}

	if err := c.verify(ctx); err != nil {
		if fireErr := c.fsm.Fire(TriggerFail); fireErr != nil {
			logger.L.Warn("lifecycle transition failed", "trigger", TriggerFail, "error", fireErr)
		}
		return err
	}

	if err := c.fsm.Fire(TriggerInitialize); err != nil {
		return fmt.Errorf("chat: initialize: %w", err)
	}

	logger.L.Info("chat client initialized", "provider", c.backend.Name())
	return nil
}

func (c *Client) verify(ctx context.Context) error {
	provider := "unknown"
	if c.backend == nil {
		return &CredentialError{Provider: provider, Err: ErrMissingCredential}
	}
	provider = c.backend.Name()

	err := c.backend.Verify(ctx)
	if err == nil {
		return nil
	}
	var credErr *CredentialError
	if errors.As(err, &credErr) {
		return err
	}
	return &CredentialError{Provider: provider, Err: err}
}

// State reports the lifecycle state.
func (c *Client) State() State {
	if c == nil || c.fsm == nil {
		return StateUninitialized
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fsm.MustState()
}

// Ready reports whether sessions can be created.
func (c *Client) Ready() bool {
	s := c.State()
	return s == StateReady || s == StateSessionActive
}

// CreateSession opens an empty conversation bound to modelName.
func (c *Client) CreateSession(ctx context.Context, modelName string, opts ...SessionOption) (*Session, error) {
	if !c.Ready() {
		return nil, &SessionCreationError{Model: modelName, Err: ErrClientNotReady}
	}

	if modelName == "" {
		return nil, &SessionCreationError{Model: modelName, Err: fmt.Errorf("model name is required")}
	}

	s := newSession(c, modelName)
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, &SessionCreationError{Model: modelName, Err: err}
		}
	}

	if c.validateModel {
		if err := c.backend.CheckModel(ctx, modelName); err != nil {
			return nil, &SessionCreationError{Model: modelName, Err: err}
		}
	}

	c.mu.Lock()
	err := c.fsm.Fire(TriggerCreateSession)
	c.mu.Unlock()
	if err != nil {
		return nil, &SessionCreationError{Model: modelName, Err: err}
	}

	logger.L.Debug("chat session created", "session_id", s.ID(), "model", modelName)
	return s, nil
}

func (c *Client) record(ctx context.Context, s *Session, user, assistant model.Message) {
	if c.recorder == nil {
		return
	}

	ex := transcript.NewExchange(s.ID(), s.Model(), user, assistant)
	if err := c.recorder.Record(ctx, ex); err != nil {
		logger.L.Warn("failed to record exchange", "session_id", s.ID(), "error", err)
	}
}
