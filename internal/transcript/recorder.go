package transcript

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/m2tx/gemini_chat/internal/model"
)

// Exchange is one committed user/assistant pair.
type Exchange struct {
	ID        string        `json:"id" bson:"_id"`
	SessionID string        `json:"session_id" bson:"session_id"`
	Model     string        `json:"model" bson:"model"`
	User      model.Message `json:"user" bson:"user"`
	Assistant model.Message `json:"assistant" bson:"assistant"`
	CreatedAt time.Time     `json:"created_at" bson:"created_at"`
}

// NewExchange stamps a new exchange with an ID and the current time.
func NewExchange(sessionID, modelName string, user, assistant model.Message) Exchange {
	return Exchange{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Model:     modelName,
		User:      user,
		Assistant: assistant,
		CreatedAt: time.Now().UTC(),
	}
}

// Recorder is a write-mostly audit log of exchanges.
type Recorder interface {
	// Record appends an exchange.
	Record(ctx context.Context, ex Exchange) error

	// List returns a session's exchanges oldest first; unknown sessions yield an empty slice.
	List(ctx context.Context, sessionID string) ([]Exchange, error)

	Close(ctx context.Context) error
}

// MemoryRecorder keeps exchanges in process memory.
type MemoryRecorder struct {
	mu        sync.Mutex
	exchanges []Exchange
}

func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{}
}

func (r *MemoryRecorder) Record(_ context.Context, ex Exchange) error {
	r.mu.Lock()
	r.exchanges = append(r.exchanges, ex)
	r.mu.Unlock()
	return nil
}

func (r *MemoryRecorder) List(_ context.Context, sessionID string) ([]Exchange, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := []Exchange{}
	for _, ex := range r.exchanges {
		if ex.SessionID == sessionID {
			out = append(out, ex)
		}
	}
	return out, nil
}

func (r *MemoryRecorder) Close(context.Context) error { return nil }
