package chat

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m2tx/gemini_chat/internal/config"
	"github.com/m2tx/gemini_chat/internal/model"
)

type geminiPart struct {
	Text             string `json:"text,omitempty"`
	FunctionResponse *struct {
		Name     string         `json:"name"`
		Response map[string]any `json:"response"`
	} `json:"functionResponse,omitempty"`
	FunctionCall *struct {
		Name string `json:"name"`
	} `json:"functionCall,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents          []geminiContent `json:"contents"`
	SystemInstruction *geminiContent  `json:"systemInstruction"`
	Tools             []struct {
		FunctionDeclarations []struct {
			Name string `json:"name"`
		} `json:"functionDeclarations"`
	} `json:"tools"`
}

// fakeGemini answers generateContent calls with queued bodies and records each request.
type fakeGemini struct {
	mu        sync.Mutex
	responses []string
	status    int
	errBody   string
	requests  []geminiRequest
	apiKeys   []string
}

func (f *fakeGemini) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")

	if r.Method == http.MethodGet && strings.Contains(r.URL.Path, "/models/") {
		if strings.HasSuffix(r.URL.Path, "/models/gemini-2.5-flash") {
			io.WriteString(w, `{"name":"models/gemini-2.5-flash","displayName":"Gemini 2.5 Flash"}`)
			return
		}
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"error":{"code":404,"message":"model not found","status":"NOT_FOUND"}}`)
		return
	}

	if !strings.HasSuffix(r.URL.Path, ":generateContent") {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	f.apiKeys = append(f.apiKeys, r.Header.Get("x-goog-api-key"))

	var req geminiRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	f.requests = append(f.requests, req)

	if f.status != 0 {
		w.WriteHeader(f.status)
		io.WriteString(w, f.errBody)
		return
	}
	if len(f.responses) == 0 {
		io.WriteString(w, `{"candidates":[]}`)
		return
	}
	body := f.responses[0]
	f.responses = f.responses[1:]
	io.WriteString(w, body)
}

func (f *fakeGemini) recorded() []geminiRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]geminiRequest(nil), f.requests...)
}

func textResponse(text string) string {
	b, _ := json.Marshal(text)
	return `{"candidates":[{"content":{"role":"model","parts":[{"text":` + string(b) + `}]},"finishReason":"STOP"}],` +
		`"usageMetadata":{"promptTokenCount":5,"candidatesTokenCount":3,"totalTokenCount":8}}`
}

func geminiConfig(url string) config.LLMConfig {
	return config.LLMConfig{
		Provider:      config.ProviderGemini,
		APIKey:        "test-key",
		BaseURL:       url + "/",
		Model:         "gemini-2.5-flash",
		Timeout:       5 * time.Second,
		MaxToolRounds: 2,
	}
}

func TestGemini_Conversation(t *testing.T) {
	fake := &fakeGemini{responses: []string{
		textResponse("Yes, I will remember."),
		textResponse("You asked whether I remember."),
	}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	cfg := geminiConfig(srv.URL)
	cfg.SystemInstruction = "Be brief."
	c, err := Bootstrap(context.Background(), cfg)
	require.NoError(t, err)

	s, err := c.CreateSession(context.Background(), cfg.Model)
	require.NoError(t, err)

	reply, err := s.SendMessage(context.Background(), "Hi, can you remember this conversation?")
	require.NoError(t, err)
	assert.Equal(t, "Yes, I will remember.", reply.Text)
	require.NotNil(t, reply.Usage)
	assert.Equal(t, 8, reply.Usage.TotalTokens)

	_, err = s.SendMessage(context.Background(), "What did I ask?")
	require.NoError(t, err)
	assert.Equal(t, 4, s.Len())

	reqs := fake.recorded()
	require.Len(t, reqs, 2)
	assert.Equal(t, "test-key", fake.apiKeys[0])
	require.NotNil(t, reqs[0].SystemInstruction)
	assert.Equal(t, "Be brief.", reqs[0].SystemInstruction.Parts[0].Text)
	assert.Empty(t, reqs[0].Tools)

	second := reqs[1].Contents
	require.Len(t, second, 3)
	assert.Equal(t, "user", second[0].Role)
	assert.Equal(t, "Hi, can you remember this conversation?", second[0].Parts[0].Text)
	assert.Equal(t, "model", second[1].Role)
	assert.Equal(t, "Yes, I will remember.", second[1].Parts[0].Text)
	assert.Equal(t, "user", second[2].Role)
	assert.Equal(t, "What did I ask?", second[2].Parts[0].Text)
}

func TestGemini_FunctionCalling(t *testing.T) {
	fake := &fakeGemini{responses: []string{
		`{"candidates":[{"content":{"role":"model","parts":[{"functionCall":{"name":"set_alarm","args":{"time":"07:30","label":"Wake up"}}}]}}]}`,
		textResponse("Alarm set for 07:30."),
	}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	tools := NewToolbox()
	require.NoError(t, tools.Add(&FunctionDeclaration{
		Name:        "set_alarm",
		Description: "Sets an alarm",
		ParametersSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"time":  map[string]any{"type": "string"},
				"label": map[string]any{"type": "string"},
			},
		},
		FunctionCall: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			return map[string]any{"type": "alarm", "time": args["time"], "label": args["label"]}, nil
		},
	}))

	c, err := Bootstrap(context.Background(), geminiConfig(srv.URL), WithToolbox(tools))
	require.NoError(t, err)
	s, err := c.CreateSession(context.Background(), "gemini-2.5-flash")
	require.NoError(t, err)

	reply, err := s.SendMessage(context.Background(), "Wake me at 7:30")
	require.NoError(t, err)
	assert.Equal(t, "Alarm set for 07:30.", reply.Text)
	require.Len(t, reply.ToolResults, 1)
	assert.Equal(t, "set_alarm", reply.ToolResults[0].Name)
	assert.Equal(t, "alarm", reply.ToolResults[0].Response["type"])
	assert.Equal(t, "07:30", reply.ToolResults[0].Response["time"])

	history := s.History()
	require.Len(t, history, 2)
	assert.Equal(t, model.RoleAssistant, history[1].Role)

	reqs := fake.recorded()
	require.Len(t, reqs, 2)
	require.Len(t, reqs[0].Tools, 1)
	assert.Equal(t, "set_alarm", reqs[0].Tools[0].FunctionDeclarations[0].Name)

	followUp := reqs[1].Contents
	require.Len(t, followUp, 3)
	require.NotNil(t, followUp[1].Parts[0].FunctionCall)
	require.NotNil(t, followUp[2].Parts[0].FunctionResponse)
	assert.Equal(t, "set_alarm", followUp[2].Parts[0].FunctionResponse.Name)
	assert.Equal(t, "alarm", followUp[2].Parts[0].FunctionResponse.Response["type"])
}

func TestGemini_ToolOnlyTurnNeverSendsEmptyParts(t *testing.T) {
	fake := &fakeGemini{responses: []string{
		`{"candidates":[{"content":{"role":"model","parts":[{"functionCall":{"name":"remember","args":{"content":"likes tea"}}}]}}]}`,
		`{"candidates":[{"content":{"role":"model","parts":[]},"finishReason":"STOP"}]}`,
		textResponse("You like tea."),
	}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	tools := NewToolbox()
	require.NoError(t, tools.Add(&FunctionDeclaration{
		Name: "remember",
		FunctionCall: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			return map[string]any{"type": "context_update", "content": args["content"]}, nil
		},
	}))

	c, err := Bootstrap(context.Background(), geminiConfig(srv.URL), WithToolbox(tools))
	require.NoError(t, err)
	s, err := c.CreateSession(context.Background(), "gemini-2.5-flash")
	require.NoError(t, err)

	reply, err := s.SendMessage(context.Background(), "Remember that I like tea")
	require.NoError(t, err)
	assert.Empty(t, reply.Text)
	require.Len(t, reply.ToolResults, 1)
	assert.Equal(t, 2, s.Len())

	reply, err = s.SendMessage(context.Background(), "What do I like?")
	require.NoError(t, err)
	assert.Equal(t, "You like tea.", reply.Text)

	reqs := fake.recorded()
	require.Len(t, reqs, 3)
	for i, req := range reqs {
		for j, content := range req.Contents {
			require.NotEmpty(t, content.Parts, "request %d content %d has no parts", i, j)
			for _, part := range content.Parts {
				assert.True(t, part.Text != "" || part.FunctionCall != nil || part.FunctionResponse != nil,
					"request %d content %d carries an empty part", i, j)
			}
		}
	}

	third := reqs[2].Contents
	require.Len(t, third, 3)
	assert.Equal(t, "model", third[1].Role)
	assert.Contains(t, third[1].Parts[0].Text, "remember returned")
	assert.Contains(t, third[1].Parts[0].Text, "likes tea")
}

func TestGemini_ToolsConvertedOncePerVersion(t *testing.T) {
	b, err := NewGeminiBackend(context.Background(), geminiConfig("http://127.0.0.1:1"))
	require.NoError(t, err)

	tb := NewToolbox()
	require.NoError(t, tb.Add(echoTool("alpha")))

	first := b.tools(tb)
	require.Len(t, first, 1)
	require.Len(t, first[0].FunctionDeclarations, 1)
	assert.Same(t, first[0], b.tools(tb)[0])

	require.NoError(t, tb.Add(echoTool("beta")))
	second := b.tools(tb)
	require.Len(t, second[0].FunctionDeclarations, 2)
	assert.NotSame(t, first[0], second[0])
	assert.Equal(t, "alpha", second[0].FunctionDeclarations[0].Name)
	assert.Equal(t, "beta", second[0].FunctionDeclarations[1].Name)

	other := NewToolbox()
	require.NoError(t, other.Add(echoTool("gamma")))
	assert.Equal(t, "gamma", b.tools(other)[0].FunctionDeclarations[0].Name)
}

func TestTurnText(t *testing.T) {
	assert.Equal(t, "hello", turnText(model.Message{Role: model.RoleAssistant, Text: "hello"}))
	assert.Empty(t, turnText(model.Message{Role: model.RoleAssistant}))

	rendered := turnText(model.Message{
		Role: model.RoleAssistant,
		ToolResults: []model.ToolResult{
			{Name: "set_alarm", Response: map[string]any{"type": "alarm", "time": "07:30"}},
		},
	})
	assert.Equal(t, `set_alarm returned {"time":"07:30","type":"alarm"}`, rendered)
}

func TestGemini_TooManyToolRounds(t *testing.T) {
	call := `{"candidates":[{"content":{"role":"model","parts":[{"functionCall":{"name":"loop","args":{}}}]}}]}`
	fake := &fakeGemini{responses: []string{call, call, call, call}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	tools := NewToolbox()
	require.NoError(t, tools.Add(&FunctionDeclaration{
		Name: "loop",
		FunctionCall: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			return map[string]any{}, nil
		},
	}))

	c, err := Bootstrap(context.Background(), geminiConfig(srv.URL), WithToolbox(tools))
	require.NoError(t, err)
	s, err := c.CreateSession(context.Background(), "gemini-2.5-flash")
	require.NoError(t, err)

	_, err = s.SendMessage(context.Background(), "go")
	assert.ErrorIs(t, err, ErrTooManyToolRounds)
	assert.Zero(t, s.Len())
	assert.Len(t, fake.recorded(), 3)
}

func TestGemini_RemoteError(t *testing.T) {
	fake := &fakeGemini{
		status:  http.StatusServiceUnavailable,
		errBody: `{"error":{"code":503,"message":"The model is overloaded.","status":"UNAVAILABLE"}}`,
	}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	c, err := Bootstrap(context.Background(), geminiConfig(srv.URL))
	require.NoError(t, err)
	s, err := c.CreateSession(context.Background(), "gemini-2.5-flash")
	require.NoError(t, err)

	_, err = s.SendMessage(context.Background(), "hello")
	var remoteErr *RemoteError
	require.ErrorAs(t, err, &remoteErr)
	assert.Equal(t, 503, remoteErr.Code)
	assert.True(t, remoteErr.Overloaded())
	assert.Zero(t, s.Len())
}

func TestGemini_EmptyCandidates(t *testing.T) {
	fake := &fakeGemini{responses: []string{`{"candidates":[],"promptFeedback":{"blockReason":"SAFETY"}}`}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	c, err := Bootstrap(context.Background(), geminiConfig(srv.URL))
	require.NoError(t, err)
	s, err := c.CreateSession(context.Background(), "gemini-2.5-flash")
	require.NoError(t, err)

	_, err = s.SendMessage(context.Background(), "hello")
	var remoteErr *RemoteError
	require.ErrorAs(t, err, &remoteErr)
	assert.ErrorIs(t, err, ErrEmptyReply)
	assert.Contains(t, remoteErr.Message, "SAFETY")
}

func TestGemini_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := Bootstrap(context.Background(), geminiConfig(url))
	require.NoError(t, err)
	s, err := c.CreateSession(context.Background(), "gemini-2.5-flash")
	require.NoError(t, err)

	_, err = s.SendMessage(context.Background(), "hello")
	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Zero(t, s.Len())
}

func TestGemini_ModelValidation(t *testing.T) {
	srv := httptest.NewServer(&fakeGemini{})
	defer srv.Close()

	cfg := geminiConfig(srv.URL)
	cfg.ValidateModel = true
	cfg.VerifyCredential = true

	c, err := Bootstrap(context.Background(), cfg)
	require.NoError(t, err)

	_, err = c.CreateSession(context.Background(), "gemini-2.5-flash")
	require.NoError(t, err)

	_, err = c.CreateSession(context.Background(), "gemini-0")
	var sessErr *SessionCreationError
	require.ErrorAs(t, err, &sessErr)
	var remoteErr *RemoteError
	require.ErrorAs(t, err, &remoteErr)
	assert.Equal(t, 404, remoteErr.Code)
}
