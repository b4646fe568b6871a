package llm

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"inquest/pkg/config"
	"inquest/pkg/limiter"
	"inquest/pkg/metrics"
)

// Factory builds one resilient client per provider and hands them out keyed
// by model name. Clients are shared so circuit state, rate budgets, and
// session histories are process-wide.
type Factory struct {
	cfg      config.Config
	gate     *limiter.Gate
	recorder metrics.Recorder

	mu      sync.Mutex
	clients map[string]Client
}

// NewFactory creates a client factory. A nil gate disables rate limiting,
// which only tests should do; a nil recorder disables gate instrumentation.
func NewFactory(cfg config.Config, gate *limiter.Gate, recorder metrics.Recorder) *Factory {
	if recorder == nil {
		recorder = metrics.Nop()
	}
	return &Factory{
		cfg:      cfg,
		gate:     gate,
		recorder: recorder,
		clients:  make(map[string]Client),
	}
}

// ClientFor resolves the provider for a model and returns the shared client
// for it, building the wrap stack (breaker around limiter around raw) on
// first use.
func (f *Factory) ClientFor(model string) (Client, error) {
	provider, err := config.GetModelProvider(model)
	if err != nil {
		return nil, fmt.Errorf("resolving client for model %q: %w", model, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if client, ok := f.clients[provider]; ok {
		return client, nil
	}

	raw, err := newProviderClient(provider)
	if err != nil {
		return nil, err
	}
	var client Client = raw
	if f.gate != nil {
		client = NewLimitedClient(client, provider, f.gate, f.recorder)
	}
	client = NewBreaker(client, provider, f.cfg.Breaker)
	f.clients[provider] = client
	return client, nil
}

func newProviderClient(provider string) (Client, error) {
	switch provider {
	case config.ProviderAnthropic:
		key, err := config.GetSecret(config.SecretAnthropicAPIKey)
		if err != nil {
			return nil, fmt.Errorf("anthropic client: %w", err)
		}
		return NewAnthropicClient(key), nil
	case config.ProviderOpenAI:
		key, err := config.GetSecret(config.SecretOpenAIAPIKey)
		if err != nil {
			return nil, fmt.Errorf("openai client: %w", err)
		}
		return NewOpenAIClient(key), nil
	case config.ProviderGoogle:
		key, err := config.GetSecret(config.SecretGeminiAPIKey)
		if err != nil {
			return nil, fmt.Errorf("gemini client: %w", err)
		}
		return NewGeminiClient(key), nil
	case config.ProviderOllama:
		return NewOllamaClient(ollamaHost()), nil
	default:
		return nil, fmt.Errorf("unsupported provider %q", provider)
	}
}

// ollamaHost resolves the Ollama server address from the conventional
// environment variable.
func ollamaHost() string {
	host := os.Getenv("OLLAMA_HOST")
	if host == "" {
		return defaultOllamaHost
	}
	if !strings.Contains(host, "://") {
		host = "http://" + host
	}
	return host
}
