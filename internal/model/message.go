package model

import "time"

// Role identifies who authored a turn.
type Role string

const (
	RoleUser Role = "user"
	// RoleAssistant is spelled "model" to match the Gemini wire format.
	RoleAssistant Role = "model"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Usage is the token accounting reported by the provider for one reply.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens" bson:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens" bson:"completion_tokens"`
	TotalTokens      int `json:"total_tokens" bson:"total_tokens"`
}

// ToolResult is the outcome of a function the model invoked while producing a reply.
type ToolResult struct {
	Name     string         `json:"name" bson:"name"`
	Args     map[string]any `json:"args,omitempty" bson:"args,omitempty"`
	Response map[string]any `json:"response,omitempty" bson:"response,omitempty"`
}

// Message is a single conversation turn.
type Message struct {
	Role        Role         `json:"role" bson:"role"`
	Text        string       `json:"text" bson:"text"`
	ToolResults []ToolResult `json:"tool_results,omitempty" bson:"tool_results,omitempty"`
	Usage       *Usage       `json:"usage,omitempty" bson:"usage,omitempty"`
	CreatedAt   time.Time    `json:"created_at" bson:"created_at"`
}

// NewUserMessage returns a user turn stamped with the current time.
func NewUserMessage(text string) Message {
	return Message{Role: RoleUser, Text: text, CreatedAt: time.Now().UTC()}
}
