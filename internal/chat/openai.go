package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/m2tx/gemini_chat/internal/config"
	"github.com/m2tx/gemini_chat/internal/model"
)

// OpenAIClient is the subset of openai.Client used by OpenAIBackend.
type OpenAIClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	ListModels(ctx context.Context) (openai.ModelsList, error)
	GetModel(ctx context.Context, modelID string) (openai.Model, error)
}

// OpenAIBackend talks to any OpenAI-compatible chat completions endpoint.
type OpenAIBackend struct {
	client        OpenAIClient
	verify        bool
	maxToolRounds int
}

func NewOpenAIBackend(cfg config.LLMConfig) (*OpenAIBackend, error) {
	if cfg.APIKey == "" {
		return nil, &CredentialError{Provider: config.ProviderOpenAI, Err: ErrMissingCredential}
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &OpenAIBackend{
		client:        openai.NewClientWithConfig(clientConfig),
		verify:        cfg.VerifyCredential,
		maxToolRounds: maxRounds(cfg.MaxToolRounds),
	}, nil
}

func (b *OpenAIBackend) Name() string { return config.ProviderOpenAI }

func (b *OpenAIBackend) Verify(ctx context.Context) error {
	if !b.verify {
		return nil
	}

	if _, err := b.client.ListModels(ctx); err != nil {
		mapped := openAIError(err)
		var remoteErr *RemoteError
		if errors.As(mapped, &remoteErr) && remoteErr.Unauthorized() {
			return &CredentialError{Provider: b.Name(), Err: mapped}
		}
		return mapped
	}

	return nil
}

func (b *OpenAIBackend) CheckModel(ctx context.Context, name string) error {
	if _, err := b.client.GetModel(ctx, name); err != nil {
		return openAIError(err)
	}
	return nil
}

func (b *OpenAIBackend) Generate(ctx context.Context, req Request) (Reply, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.History)+2)
	if req.SystemInstruction != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemInstruction,
		})
	}
	for _, m := range req.History {
		text := turnText(m)
		if text == "" {
			continue
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openAIRole(m.Role),
			Content: text,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Text,
	})

	var tools []openai.Tool
	for _, fd := range req.Tools.Declarations() {
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        fd.Name,
				Description: fd.Description,
				Parameters:  fd.ParametersSchema,
			},
		})
	}

	var reply Reply
	usage := &model.Usage{}

	for round := 0; ; round++ {
		resp, err := b.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:    req.Model,
			Messages: messages,
			Tools:    tools,
		})
		if err != nil {
			return Reply{}, openAIError(err)
		}
		usage.PromptTokens += resp.Usage.PromptTokens
		usage.CompletionTokens += resp.Usage.CompletionTokens
		usage.TotalTokens += resp.Usage.TotalTokens

		if len(resp.Choices) == 0 {
			return Reply{}, &RemoteError{Message: "no choices in response", Err: ErrEmptyReply}
		}

		msg := resp.Choices[0].Message
		if len(msg.ToolCalls) == 0 {
			reply.Text = msg.Content
			reply.Usage = usage
			return reply, nil
		}

		if round >= b.maxToolRounds {
			return Reply{}, &RemoteError{Err: ErrTooManyToolRounds}
		}

		messages = append(messages, msg)
		for _, call := range msg.ToolCalls {
			var args map[string]any
			var out map[string]any
			if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
				out = map[string]any{"error": fmt.Sprintf("invalid arguments: %v", err)}
			} else {
				out = req.Tools.invoke(ctx, call.Function.Name, args)
			}

			reply.ToolResults = append(reply.ToolResults, model.ToolResult{
				Name:     call.Function.Name,
				Args:     args,
				Response: out,
			})

			content, err := json.Marshal(out)
			if err != nil {
				return Reply{}, fmt.Errorf("chat: encode %s result: %w", call.Function.Name, err)
			}
			messages = append(messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    string(content),
				Name:       call.Function.Name,
				ToolCallID: call.ID,
			})
		}
	}
}

func openAIRole(r model.Role) string {
	if r == model.RoleAssistant {
		return openai.ChatMessageRoleAssistant
	}
	return openai.ChatMessageRoleUser
}

func openAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &RemoteError{Code: apiErr.HTTPStatusCode, Status: apiErr.Type, Message: apiErr.Message, Err: err}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &RemoteError{Code: reqErr.HTTPStatusCode, Status: reqErr.HTTPStatus, Message: fmt.Sprint(reqErr.Err), Err: err}
	}

	return classify(err)
}
