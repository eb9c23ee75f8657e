package chat

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

var (
	ErrMissingCredential = errors.New("chat: no API key configured")
	ErrClientNotReady    = errors.New("chat: client is not initialized")
	ErrEmptyMessage      = errors.New("chat: message text is empty")
	ErrEmptyReply        = errors.New("chat: provider returned no content")
	ErrTooManyToolRounds = errors.New("chat: too many function call rounds")
)

// CredentialError reports a missing credential or one the provider refused.
type CredentialError struct {
	Provider string
	Err      error
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("chat: %s credential: %v", e.Provider, e.Err)
}

func (e *CredentialError) Unwrap() error { return e.Err }

// SessionCreationError reports that a session could not be opened.
type SessionCreationError struct {
	Model string
	Err   error
}

func (e *SessionCreationError) Error() string {
	return fmt.Sprintf("chat: create session for model %q: %v", e.Model, e.Err)
}

func (e *SessionCreationError) Unwrap() error { return e.Err }

// TransportError reports that the provider could not be reached in time.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("chat: transport: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RemoteError is a failure reported by the provider itself.
type RemoteError struct {
	Code    int
	Status  string
	Message string
	Err     error
}

func (e *RemoteError) Error() string {
	switch {
	case e.Code != 0 && e.Message != "":
		return fmt.Sprintf("chat: remote error %d %s: %s", e.Code, e.Status, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("chat: remote error: %v", e.Err)
	default:
		return fmt.Sprintf("chat: remote error %d %s", e.Code, e.Status)
	}
}

func (e *RemoteError) Unwrap() error { return e.Err }

// Overloaded reports whether the provider asked the caller to back off.
func (e *RemoteError) Overloaded() bool {
	return e.Code == http.StatusTooManyRequests || e.Code == http.StatusServiceUnavailable
}

// Unauthorized reports whether the provider refused the credential.
func (e *RemoteError) Unauthorized() bool {
	return e.Code == http.StatusUnauthorized || e.Code == http.StatusForbidden
}

// classify turns an arbitrary error into a TransportError or RemoteError.
// Errors that already carry one of the package's types are returned as is.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var (
		transportErr *TransportError
		remoteErr    *RemoteError
		credErr      *CredentialError
	)
	if errors.As(err, &transportErr) || errors.As(err, &remoteErr) || errors.As(err, &credErr) {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &TransportError{Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return &TransportError{Err: err}
	}

	return &RemoteError{Err: err}
}
