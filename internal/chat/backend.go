package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/m2tx/gemini_chat/internal/model"
)

// Request is one turn sent to a provider: the committed history plus the new user text.
type Request struct {
	Model             string
	SystemInstruction string
	History           []model.Message
	Text              string
	Tools             *Toolbox
}

// Reply is the provider's answer to a Request, after any function calls were resolved.
type Reply struct {
	Text        string
	ToolResults []model.ToolResult
	Usage       *model.Usage
}

// Backend is the provider boundary. Implementations classify their SDK
// errors into TransportError or RemoteError.
type Backend interface {
	// Name identifies the provider in logs and errors.
	Name() string

	// Verify checks the credential. Implementations may skip the remote
	// round-trip when verification is disabled.
	Verify(ctx context.Context) error

	// CheckModel reports whether the provider serves the model.
	CheckModel(ctx context.Context, name string) error

	Generate(ctx context.Context, req Request) (Reply, error)
}

// turnText is the text a committed turn contributes to a provider request.
// Assistant turns that only carried tool results are rendered from them.
func turnText(m model.Message) string {
	if m.Text != "" || len(m.ToolResults) == 0 {
		return m.Text
	}

	lines := make([]string, 0, len(m.ToolResults))
	for _, tr := range m.ToolResults {
		out, err := json.Marshal(tr.Response)
		if err != nil {
			out = []byte("{}")
		}
		lines = append(lines, fmt.Sprintf("%s returned %s", tr.Name, out))
	}
	return strings.Join(lines, "\n")
}
