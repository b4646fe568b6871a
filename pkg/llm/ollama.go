package llm

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"inquest/pkg/llm/llmerrors"
	"inquest/pkg/logx"
)

const defaultOllamaHost = "http://localhost:11434"

// OllamaClient talks to a local Ollama server. Ollama accepts system parts
// inline, so session history maps directly onto chat messages.
type OllamaClient struct {
	client   *api.Client
	hostURL  string
	sessions *sessionStore
}

// NewOllamaClient creates a raw Ollama client for the given server URL,
// falling back to the default local address when the URL is unusable.
func NewOllamaClient(hostURL string) *OllamaClient {
	parsed, err := url.Parse(hostURL)
	if err != nil || hostURL == "" {
		parsed, _ = url.Parse(defaultOllamaHost)
	}
	return &OllamaClient{
		client:   api.NewClient(parsed, http.DefaultClient),
		hostURL:  parsed.String(),
		sessions: newSessionStore(),
	}
}

// CreateSession opens a local conversation thread.
func (c *OllamaClient) CreateSession(ctx context.Context, title string) (string, error) {
	id := c.sessions.open()
	logx.Debug(ctx, "llm", "ollama session %s opened for %q", id, title)
	return id, nil
}

// SendPrompt implements Client.
func (c *OllamaClient) SendPrompt(ctx context.Context, req PromptRequest) (PromptResult, error) {
	outgoing, err := c.sessions.outgoing(req.SessionID, req.Parts)
	if err != nil {
		return PromptResult{}, err
	}
	hinted := withSchemaHint(outgoing, req.SchemaHint)
	if len(hinted) == 0 {
		return PromptResult{}, llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, "ollama prompt is empty")
	}

	messages := make([]api.Message, 0, len(hinted))
	for i := range hinted {
		messages = append(messages, api.Message{
			Role:    string(hinted[i].Role),
			Content: hinted[i].Content,
		})
	}

	stream := false
	chatReq := &api.ChatRequest{
		// The "ollama:" prefix is a provider-routing convention, not part
		// of the model name the server knows.
		Model:    strings.TrimPrefix(req.Model, "ollama:"),
		Messages: messages,
		Stream:   &stream,
		Options: map[string]any{
			"num_predict": capOutput(req.Model, req.MaxTokens),
		},
	}

	var last api.ChatResponse
	err = c.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		last = resp
		return nil
	})
	if err != nil {
		return PromptResult{}, llmerrors.Wrap(err, "ollama call failed")
	}

	text := last.Message.Content
	if text == "" {
		return PromptResult{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "ollama response carried no content")
	}
	c.sessions.commit(req.SessionID, req.Parts, text)

	return PromptResult{
		Text:       text,
		Structured: parseObject(text),
		Usage: Usage{
			InputTokens:  last.Metrics.PromptEvalCount,
			OutputTokens: last.Metrics.EvalCount,
		},
	}, nil
}
