package llm

import (
	"context"
	"sync"

	"google.golang.org/genai"

	"inquest/pkg/llm/llmerrors"
	"inquest/pkg/logx"
)

// GeminiClient talks to the Google GenAI API. Client construction needs a
// context, so the underlying client is built lazily on first use.
type GeminiClient struct {
	apiKey   string
	sessions *sessionStore

	mu     sync.Mutex
	client *genai.Client
}

// NewGeminiClient creates a raw Gemini client. Resilience wrappers are
// applied by the factory.
func NewGeminiClient(apiKey string) *GeminiClient {
	return &GeminiClient{
		apiKey:   apiKey,
		sessions: newSessionStore(),
	}
}

// CreateSession opens a local conversation thread.
func (c *GeminiClient) CreateSession(ctx context.Context, title string) (string, error) {
	id := c.sessions.open()
	logx.Debug(ctx, "llm", "gemini session %s opened for %q", id, title)
	return id, nil
}

func (c *GeminiClient) ensureClient(ctx context.Context) (*genai.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		return c.client, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  c.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, llmerrors.Wrap(err, "gemini client init failed")
	}
	c.client = client
	return client, nil
}

// SendPrompt implements Client.
func (c *GeminiClient) SendPrompt(ctx context.Context, req PromptRequest) (PromptResult, error) {
	client, err := c.ensureClient(ctx)
	if err != nil {
		return PromptResult{}, err
	}
	outgoing, err := c.sessions.outgoing(req.SessionID, req.Parts)
	if err != nil {
		return PromptResult{}, err
	}
	system, turns, err := foldForAPI(withSchemaHint(outgoing, req.SchemaHint))
	if err != nil {
		return PromptResult{}, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeBadPrompt, err, "gemini prompt rejected")
	}

	contents := make([]*genai.Content, 0, len(turns))
	for i := range turns {
		role := "user"
		if turns[i].Role == RoleAssistant {
			role = "model" // Gemini names the assistant role "model"
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: turns[i].Content}},
		})
	}

	gcfg := &genai.GenerateContentConfig{
		//nolint:gosec // Output budgets are far below int32 range
		MaxOutputTokens: int32(capOutput(req.Model, req.MaxTokens)),
	}
	if system != "" {
		gcfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: system}},
		}
	}

	result, err := client.Models.GenerateContent(ctx, req.Model, contents, gcfg)
	if err != nil {
		return PromptResult{}, llmerrors.Wrap(err, "gemini call failed")
	}
	if result == nil {
		return PromptResult{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "empty response from gemini")
	}

	text := result.Text()
	if text == "" {
		return PromptResult{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "gemini response carried no text")
	}
	c.sessions.commit(req.SessionID, req.Parts, text)

	res := PromptResult{
		Text:       text,
		Structured: parseObject(text),
	}
	if result.UsageMetadata != nil {
		res.Usage = Usage{
			InputTokens:  int(result.UsageMetadata.PromptTokenCount),
			OutputTokens: int(result.UsageMetadata.CandidatesTokenCount),
		}
	}
	return res, nil
}
