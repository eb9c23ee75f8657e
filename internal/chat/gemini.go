package chat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"google.golang.org/genai"

	"github.com/m2tx/gemini_chat/internal/config"
	"github.com/m2tx/gemini_chat/internal/model"
)

// GeminiBackend talks to the Gemini API through google.golang.org/genai.
type GeminiBackend struct {
	client        *genai.Client
	model         string
	verify        bool
	maxToolRounds int

	cacheMu sync.Mutex
	cache   toolCache
}

// toolCache holds the genai form of one toolbox at one version.
type toolCache struct {
	box     *Toolbox
	version uint64
	tools   []*genai.Tool
}

func NewGeminiBackend(ctx context.Context, cfg config.LLMConfig) (*GeminiBackend, error) {
	if cfg.APIKey == "" {
		return nil, &CredentialError{Provider: config.ProviderGemini, Err: ErrMissingCredential}
	}

	clientConfig := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, &CredentialError{Provider: config.ProviderGemini, Err: err}
	}

	return &GeminiBackend{
		client:        client,
		model:         cfg.Model,
		verify:        cfg.VerifyCredential,
		maxToolRounds: maxRounds(cfg.MaxToolRounds),
	}, nil
}

func (b *GeminiBackend) Name() string { return config.ProviderGemini }

func (b *GeminiBackend) Verify(ctx context.Context) error {
	if !b.verify {
		return nil
	}

	if _, err := b.client.Models.Get(ctx, b.model, nil); err != nil {
		mapped := geminiError(err)
		var remoteErr *RemoteError
		if errors.As(mapped, &remoteErr) && (remoteErr.Unauthorized() || remoteErr.Code == http.StatusBadRequest) {
			return &CredentialError{Provider: b.Name(), Err: mapped}
		}
		return mapped
	}

	return nil
}

func (b *GeminiBackend) CheckModel(ctx context.Context, name string) error {
	if _, err := b.client.Models.Get(ctx, name, nil); err != nil {
		return geminiError(err)
	}
	return nil
}

func (b *GeminiBackend) Generate(ctx context.Context, req Request) (Reply, error) {
	contents := make([]*genai.Content, 0, len(req.History)+1)
	for _, m := range req.History {
		text := turnText(m)
		if text == "" {
			continue
		}
		contents = append(contents, genai.NewContentFromText(text, genai.Role(m.Role)))
	}
	contents = append(contents, &genai.Content{
		Role:  string(model.RoleUser),
		Parts: []*genai.Part{{Text: req.Text}},
	})

	generateConfig := &genai.GenerateContentConfig{}
	if req.SystemInstruction != "" {
		generateConfig.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.SystemInstruction}},
		}
	}
	if req.Tools.Len() > 0 {
		generateConfig.Tools = b.tools(req.Tools)
	}

	var reply Reply
	usage := &model.Usage{}

	for round := 0; ; round++ {
		resp, err := b.client.Models.GenerateContent(ctx, req.Model, contents, generateConfig)
		if err != nil {
			return Reply{}, geminiError(err)
		}
		addGeminiUsage(usage, resp.UsageMetadata)

		candidate := firstCandidate(resp)
		if candidate == nil {
			return Reply{}, &RemoteError{Message: blockReason(resp), Err: ErrEmptyReply}
		}

		calls := functionCalls(candidate.Content)
		if len(calls) == 0 {
			reply.Text = textOf(candidate.Content)
			reply.Usage = usage
			return reply, nil
		}

		if round >= b.maxToolRounds {
			return Reply{}, &RemoteError{Err: ErrTooManyToolRounds}
		}

		responses := &genai.Content{Role: string(model.RoleUser)}
		for _, call := range calls {
			out := req.Tools.invoke(ctx, call.Name, call.Args)
			reply.ToolResults = append(reply.ToolResults, model.ToolResult{
				Name:     call.Name,
				Args:     call.Args,
				Response: out,
			})
			responses.Parts = append(responses.Parts, &genai.Part{
				FunctionResponse: &genai.FunctionResponse{
					ID:       call.ID,
					Name:     call.Name,
					Response: out,
				},
			})
		}

		contents = append(contents, candidate.Content, responses)
	}
}

// tools converts the toolbox to genai declarations, rebuilding only when
// the toolbox or its contents change.
func (b *GeminiBackend) tools(box *Toolbox) []*genai.Tool {
	decls, version := box.snapshot()

	b.cacheMu.Lock()
	defer b.cacheMu.Unlock()

	if b.cache.box == box && b.cache.version == version && b.cache.tools != nil {
		return b.cache.tools
	}

	converted := make([]*genai.FunctionDeclaration, len(decls))
	for i, fd := range decls {
		converted[i] = &genai.FunctionDeclaration{
			Name:                 fd.Name,
			Description:          fd.Description,
			ParametersJsonSchema: fd.ParametersSchema,
			ResponseJsonSchema:   fd.ResponseSchema,
		}
	}

	b.cache = toolCache{
		box:     box,
		version: version,
		tools:   []*genai.Tool{{FunctionDeclarations: converted}},
	}
	return b.cache.tools
}

func firstCandidate(resp *genai.GenerateContentResponse) *genai.Candidate {
	if resp == nil {
		return nil
	}
	for _, candidate := range resp.Candidates {
		if candidate != nil && candidate.Content != nil {
			return candidate
		}
	}
	return nil
}

func functionCalls(content *genai.Content) []*genai.FunctionCall {
	var calls []*genai.FunctionCall
	for _, part := range content.Parts {
		if part != nil && part.FunctionCall != nil {
			calls = append(calls, part.FunctionCall)
		}
	}
	return calls
}

func textOf(content *genai.Content) string {
	var sb strings.Builder
	for _, part := range content.Parts {
		if part == nil || part.Thought {
			continue
		}
		sb.WriteString(part.Text)
	}
	return sb.String()
}

func blockReason(resp *genai.GenerateContentResponse) string {
	if resp != nil && resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return fmt.Sprintf("prompt blocked: %s", resp.PromptFeedback.BlockReason)
	}
	return "no candidates in response"
}

func addGeminiUsage(u *model.Usage, meta *genai.GenerateContentResponseUsageMetadata) {
	if meta == nil {
		return
	}
	u.PromptTokens += int(meta.PromptTokenCount)
	u.CompletionTokens += int(meta.CandidatesTokenCount)
	u.TotalTokens += int(meta.TotalTokenCount)
}

func geminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &RemoteError{Code: apiErr.Code, Status: apiErr.Status, Message: apiErr.Message, Err: err}
	}

	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return &RemoteError{Code: apiErrPtr.Code, Status: apiErrPtr.Status, Message: apiErrPtr.Message, Err: err}
	}

	return classify(err)
}

func maxRounds(n int) int {
	if n <= 0 {
		return 5
	}
	return n
}
