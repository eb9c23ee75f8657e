package functions

import (
	"context"
	"fmt"
	"strings"

	"github.com/m2tx/gemini_chat/internal/chat"
)

// CreateRememberFunctionDeclaration lets the model ask the client to store a
// fact in the user's permanent context.
func CreateRememberFunctionDeclaration() *chat.FunctionDeclaration {
	return &chat.FunctionDeclaration{
		Name:        "remember",
		Description: "Stores a lasting fact about the user so it is included in future conversations. Use it when the user asks you to remember something.",
		ParametersSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"content": map[string]any{
					"type":        "string",
					"description": "The fact to remember, phrased in the third person",
				},
			},
			"required": []string{"content"},
		},
		FunctionCall: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			content, _ := args["content"].(string)
			content = strings.TrimSpace(content)
			if content == "" {
				return nil, fmt.Errorf("remember: content argument is required")
			}

			return map[string]any{
				"type":    "context_update",
				"content": content,
			}, nil
		},
	}
}
