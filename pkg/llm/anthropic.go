package llm

import (
	"context"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"inquest/pkg/llm/llmerrors"
	"inquest/pkg/logx"
)

// AnthropicClient talks to the Anthropic Messages API. The Messages API is
// stateless, so the client keeps session history locally and replays it on
// every call.
type AnthropicClient struct {
	client   anthropic.Client
	sessions *sessionStore
}

// NewAnthropicClient creates a raw Anthropic client. Resilience wrappers are
// applied by the factory.
func NewAnthropicClient(apiKey string) *AnthropicClient {
	return &AnthropicClient{
		client:   anthropic.NewClient(option.WithAPIKey(apiKey)),
		sessions: newSessionStore(),
	}
}

// CreateSession opens a local conversation thread.
func (c *AnthropicClient) CreateSession(ctx context.Context, title string) (string, error) {
	id := c.sessions.open()
	logx.Debug(ctx, "llm", "anthropic session %s opened for %q", id, title)
	return id, nil
}

// SendPrompt implements Client.
func (c *AnthropicClient) SendPrompt(ctx context.Context, req PromptRequest) (PromptResult, error) {
	outgoing, err := c.sessions.outgoing(req.SessionID, req.Parts)
	if err != nil {
		return PromptResult{}, err
	}
	system, turns, err := foldForAPI(withSchemaHint(outgoing, req.SchemaHint))
	if err != nil {
		return PromptResult{}, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeBadPrompt, err, "anthropic prompt rejected")
	}

	messages := make([]anthropic.MessageParam, 0, len(turns))
	for i := range turns {
		messages = append(messages, anthropic.MessageParam{
			Role:    anthropic.MessageParamRole(turns[i].Role),
			Content: []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(turns[i].Content)},
		})
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		Messages:  messages,
		MaxTokens: int64(capOutput(req.Model, req.MaxTokens)),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system, Type: "text"}}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return PromptResult{}, llmerrors.Wrap(err, "anthropic call failed")
	}
	if resp == nil || len(resp.Content) == 0 {
		return PromptResult{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "empty response from anthropic")
	}

	var sb strings.Builder
	for i := range resp.Content {
		block := &resp.Content[i]
		if block.Type == "text" {
			sb.WriteString(block.AsText().Text)
		}
	}
	text := sb.String()
	if text == "" {
		return PromptResult{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "anthropic response carried no text blocks")
	}
	c.sessions.commit(req.SessionID, req.Parts, text)

	return PromptResult{
		Text:       text,
		Structured: parseObject(text),
		Usage: Usage{
			InputTokens:  int(resp.Usage.InputTokens),
			OutputTokens: int(resp.Usage.OutputTokens),
		},
	}, nil
}
