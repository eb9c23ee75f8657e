package functions

import (
	"context"
	"fmt"

	"github.com/m2tx/gemini_chat/internal/chat"
	"github.com/m2tx/gemini_chat/internal/knowledge"
)

// CreateDocsSearchFunctionDeclaration returns a tool that searches the
// user's indexed notes.
func CreateDocsSearchFunctionDeclaration(ix *knowledge.Index) *chat.FunctionDeclaration {
	return &chat.FunctionDeclaration{
		Name:        "search_docs",
		Description: "Searches the user's notes and documents for passages relevant to the query. Use this whenever the user asks about something that might be written down.",
		ParametersSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "The search query describing what information you need",
				},
			},
			"required": []string{"query"},
		},
		FunctionCall: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			query, ok := args["query"].(string)
			if !ok || query == "" {
				return nil, fmt.Errorf("search_docs: query argument is required")
			}

			passages := ix.Search(query, 3)
			results := make([]map[string]any, 0, len(passages))
			for _, p := range passages {
				results = append(results, map[string]any{
					"filename": p.Filename,
					"content":  p.Text,
				})
			}

			return map[string]any{"type": "docs", "results": results}, nil
		},
	}
}
