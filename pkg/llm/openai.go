package llm

import (
	"context"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"

	"inquest/pkg/llm/llmerrors"
	"inquest/pkg/logx"
)

// OpenAIClient talks to the OpenAI Responses API. The Responses API takes a
// single input blob, so session history is flattened into a labelled
// transcript on each call.
type OpenAIClient struct {
	client   openai.Client
	sessions *sessionStore
}

// NewOpenAIClient creates a raw OpenAI client. Resilience wrappers are
// applied by the factory.
func NewOpenAIClient(apiKey string) *OpenAIClient {
	return &OpenAIClient{
		client:   openai.NewClient(option.WithAPIKey(apiKey)),
		sessions: newSessionStore(),
	}
}

// CreateSession opens a local conversation thread.
func (c *OpenAIClient) CreateSession(ctx context.Context, title string) (string, error) {
	id := c.sessions.open()
	logx.Debug(ctx, "llm", "openai session %s opened for %q", id, title)
	return id, nil
}

// SendPrompt implements Client.
func (c *OpenAIClient) SendPrompt(ctx context.Context, req PromptRequest) (PromptResult, error) {
	outgoing, err := c.sessions.outgoing(req.SessionID, req.Parts)
	if err != nil {
		return PromptResult{}, err
	}
	input := flatten(withSchemaHint(outgoing, req.SchemaHint))
	if input == "" {
		return PromptResult{}, llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, "openai prompt is empty")
	}

	params := responses.ResponseNewParams{
		Model:           req.Model,
		MaxOutputTokens: openai.Int(int64(capOutput(req.Model, req.MaxTokens))),
		Input:           responses.ResponseNewParamsInputUnion{OfString: openai.String(input)},
	}

	resp, err := c.client.Responses.New(ctx, params)
	if err != nil {
		return PromptResult{}, llmerrors.Wrap(err, "openai call failed")
	}
	if resp == nil {
		return PromptResult{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "empty response from openai")
	}

	text := resp.OutputText()
	if text == "" {
		return PromptResult{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "openai response carried no output text")
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
