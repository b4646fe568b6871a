// Package config holds the process-wide configuration for the inquest
// debate engine: model registry, debate tuning knobs, rate limits, and
// storage locations. Access goes through the package singleton; values
// are returned by value so callers cannot mutate shared state.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

// API provider names.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGoogle    = "google"
	ProviderOllama    = "ollama"
)

// ModelInfo carries pricing and limit metadata for one model.
type ModelInfo struct {
	Provider         string  // API provider name
	InputCPM         float64 // Cost per million input tokens (USD)
	OutputCPM        float64 // Cost per million output tokens (USD)
	MaxContextTokens int     // Maximum context window size in tokens
	MaxOutputTokens  int     // Maximum output tokens per request
}

// KnownModels registry contains pricing and provider information for the
// models the debate roles are expected to run on.
//
//nolint:gochecknoglobals // Intentional global registry
var KnownModels = map[string]ModelInfo{
	// Claude models (Anthropic)
	"claude-sonnet-4-5": {
		Provider:         ProviderAnthropic,
		InputCPM:         3.0,
		OutputCPM:        15.0,
		MaxContextTokens: 200000,
		MaxOutputTokens:  8192,
	},
	"claude-opus-4-5": {
		Provider:         ProviderAnthropic,
		InputCPM:         15.0,
		OutputCPM:        75.0,
		MaxContextTokens: 200000,
		MaxOutputTokens:  16384,
	},

	// OpenAI models
	"gpt-4o": {
		Provider:         ProviderOpenAI,
		InputCPM:         2.5,
		OutputCPM:        10.0,
		MaxContextTokens: 128000,
		MaxOutputTokens:  16384,
	},
	"o3": {
		Provider:         ProviderOpenAI,
		InputCPM:         10.0,
		OutputCPM:        40.0,
		MaxContextTokens: 200000,
		MaxOutputTokens:  100000,
	},

	// Google Gemini models
	"gemini-2.5-flash": {
		Provider:         ProviderGoogle,
		InputCPM:         0.30,
		OutputCPM:        2.50,
		MaxContextTokens: 1048576,
		MaxOutputTokens:  65536,
	},
	"gemini-3-pro-preview": {
		Provider:         ProviderGoogle,
		InputCPM:         2.0,
		OutputCPM:        12.0,
		MaxContextTokens: 1048576,
		MaxOutputTokens:  65536,
	},
}

// ProviderPattern maps a model-name prefix to a provider, so new models
// work without code changes.
type ProviderPattern struct {
	Prefix   string
	Provider string
}

//nolint:gochecknoglobals // Intentional global for inference rules
var ProviderPatterns = []ProviderPattern{
	{"claude", ProviderAnthropic},
	{"gpt", ProviderOpenAI},
	{"o1", ProviderOpenAI},
	{"o3", ProviderOpenAI},
	{"o4", ProviderOpenAI},
	{"gemini", ProviderGoogle},
	{"phi", ProviderOllama},
	{"llama", ProviderOllama},
	{"qwen", ProviderOllama},
	{"mistral", ProviderOllama},
	{"deepseek", ProviderOllama},
	{"ollama:", ProviderOllama},
}

// GetModelProvider returns the API provider for a model name, first via
// KnownModels and then via prefix patterns. An unmappable model is an error:
// the caller cannot pick a client without a provider.
func GetModelProvider(modelName string) (string, error) {
	if info, exists := KnownModels[modelName]; exists {
		return info.Provider, nil
	}
	for i := range ProviderPatterns {
		if strings.HasPrefix(modelName, ProviderPatterns[i].Prefix) {
			return ProviderPatterns[i].Provider, nil
		}
	}
	return "", fmt.Errorf("unknown model %q: no provider mapping or pattern match", modelName)
}

// GetModelInfo returns the ModelInfo for a model name, with conservative
// defaults and an inferred provider for unknown models.
func GetModelInfo(modelName string) (ModelInfo, bool) {
	if info, exists := KnownModels[modelName]; exists {
		return info, true
	}
	provider := ""
	for i := range ProviderPatterns {
		if strings.HasPrefix(modelName, ProviderPatterns[i].Prefix) {
			provider = ProviderPatterns[i].Provider
			break
		}
	}
	return ModelInfo{
		Provider:         provider,
		MaxContextTokens: 32000,
		MaxOutputTokens:  4096,
	}, false
}

// DebateConfig tunes the routing engine and session controller. The rule
// thresholds are empirically tuned defaults, not invariants.
type DebateConfig struct {
	MinRounds          int `json:"min_rounds"`
	MaxRounds          int `json:"max_rounds"`
	MaxDiscussionSteps int `json:"max_discussion_steps"`

	// ConsensusThreshold is the minimum judge confidence that stops the debate.
	ConsensusThreshold float64 `json:"consensus_threshold"`

	// CommanderSettleConfidence forces the judge once the commander reports
	// at least this confidence with zero unresolved questions.
	CommanderSettleConfidence float64 `json:"commander_settle_confidence"`

	// RevisitSettleConfidence caps analysis-worker revisits in
	// critique-disabled mode once the commander is at least this confident.
	RevisitSettleConfidence float64 `json:"revisit_settle_confidence"`

	// DegradedConfidence is assigned to turns synthesized after terminal
	// worker failure.
	DegradedConfidence float64 `json:"degraded_confidence"`

	EnableCritique      bool `json:"enable_critique"`
	EnableRebuttal      bool `json:"enable_rebuttal"`
	EnableCollaboration bool `json:"enable_collaboration"`

	// CardCap bounds the evidence card store; EvidenceCap bounds the
	// evidence strings kept per card.
	CardCap     int `json:"card_cap"`
	EvidenceCap int `json:"evidence_cap"`

	// Models per role class.
	AnalysisModel  string `json:"analysis_model"`
	CritiqueModel  string `json:"critique_model"`
	JudgeModel     string `json:"judge_model"`
	CommanderModel string `json:"commander_model"`
}

// ExecutionConfig tunes the worker execution manager.
type ExecutionConfig struct {
	// CallTimeout bounds every first attempt; RetryTimeout bounds the
	// second attempt granted to the judge and commander.
	CallTimeout  time.Duration `json:"call_timeout"`
	RetryTimeout time.Duration `json:"retry_timeout"`

	// CompactTargetTokens is the prompt budget applied when a timed-out
	// prompt is compacted before retry.
	CompactTargetTokens int `json:"compact_target_tokens"`

	// RetryOutputFraction scales the output token budget down on retry.
	RetryOutputFraction float64 `json:"retry_output_fraction"`
}

// ProviderLimits defines rate limiting for one API provider.
type ProviderLimits struct {
	TokensPerMinute int `json:"tokens_per_minute"`
	MaxConcurrency  int `json:"max_concurrency"`
}

// RateLimitConfig groups rate limits by provider plus the global
// outbound-call bound shared by every debate session in the process.
type RateLimitConfig struct {
	MaxConcurrentCalls int64          `json:"max_concurrent_calls"`
	Anthropic          ProviderLimits `json:"anthropic"`
	OpenAI             ProviderLimits `json:"openai"`
	Google             ProviderLimits `json:"google"`
	Ollama             ProviderLimits `json:"ollama"`
}

// CircuitBreakerConfig defines circuit breaker behavior for model clients.
type CircuitBreakerConfig struct {
	FailureThreshold int           `json:"failure_threshold"`
	SuccessThreshold int           `json:"success_threshold"`
	Timeout          time.Duration `json:"timeout"`
}

// EventLogConfig locates the JSONL session event stream.
type EventLogConfig struct {
	Dir        string `json:"dir"`
	MaxAgeDays int    `json:"max_age_days"`
}

// DatabaseConfig locates the checkpoint store.
type DatabaseConfig struct {
	Path string `json:"path"`
}

// MetricsConfig controls Prometheus instrumentation and queries.
type MetricsConfig struct {
	Enabled       bool   `json:"enabled"`
	PrometheusURL string `json:"prometheus_url"`
}

// Config is the root configuration document.
type Config struct {
	Debate    DebateConfig         `json:"debate"`
	Execution ExecutionConfig      `json:"execution"`
	RateLimit RateLimitConfig      `json:"rate_limit"`
	Breaker   CircuitBreakerConfig `json:"circuit_breaker"`
	EventLog  EventLogConfig       `json:"event_log"`
	Database  DatabaseConfig       `json:"database"`
	Metrics   MetricsConfig        `json:"metrics"`
}

//nolint:gochecknoglobals // Intentional singleton guarded by cfgMux
var (
	cfg    *Config
	cfgMux sync.RWMutex
)

// DefaultConfig returns the full default configuration.
func DefaultConfig() Config {
	return Config{
		Debate: DebateConfig{
			MinRounds:                 1,
			MaxRounds:                 3,
			MaxDiscussionSteps:        12,
			ConsensusThreshold:        0.85,
			CommanderSettleConfidence: 0.78,
			RevisitSettleConfidence:   0.65,
			DegradedConfidence:        0.3,
			EnableCritique:            true,
			EnableRebuttal:            true,
			EnableCollaboration:       false,
			CardCap:                   20,
			EvidenceCap:               8,
			AnalysisModel:             "claude-sonnet-4-5",
			CritiqueModel:             "claude-sonnet-4-5",
			JudgeModel:                "claude-opus-4-5",
			CommanderModel:            "claude-sonnet-4-5",
		},
		Execution: ExecutionConfig{
			CallTimeout:         60 * time.Second,
			RetryTimeout:        90 * time.Second,
			CompactTargetTokens: 6000,
			RetryOutputFraction: 0.5,
		},
		RateLimit: RateLimitConfig{
			MaxConcurrentCalls: 4,
			Anthropic:          ProviderLimits{TokensPerMinute: 300000, MaxConcurrency: 5},
			OpenAI:             ProviderLimits{TokensPerMinute: 150000, MaxConcurrency: 5},
			Google:             ProviderLimits{TokensPerMinute: 200000, MaxConcurrency: 5},
			Ollama:             ProviderLimits{TokensPerMinute: 1000000, MaxConcurrency: 2},
		},
		Breaker: CircuitBreakerConfig{
			FailureThreshold: 5,
			SuccessThreshold: 2,
			Timeout:          30 * time.Second,
		},
		EventLog: EventLogConfig{
			Dir:        "logs/events",
			MaxAgeDays: 30,
		},
		Database: DatabaseConfig{
			Path: "inquest.db",
		},
		Metrics: MetricsConfig{
			Enabled:       true,
			PrometheusURL: "http://localhost:9090",
		},
	}
}

// LoadConfig reads a JSON config file, overlays it on the defaults,
// validates the result, and installs it as the process singleton.
// An empty path installs the defaults.
func LoadConfig(path string) error {
	loaded := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read config %s: %w", path, err)
		}
		if err := json.Unmarshal(data, &loaded); err != nil {
			return fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := validate(&loaded); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	cfgMux.Lock()
	defer cfgMux.Unlock()
	cfg = &loaded
	return nil
}

// SetConfig installs a configuration directly; test hook.
func SetConfig(c Config) error {
	if err := validate(&c); err != nil {
		return err
	}
	cfgMux.Lock()
	defer cfgMux.Unlock()
	cfg = &c
	return nil
}

// GetConfig returns the current configuration by value.
func GetConfig() (Config, error) {
	cfgMux.RLock()
	defer cfgMux.RUnlock()
	if cfg == nil {
		return Config{}, fmt.Errorf("config not loaded: call LoadConfig first")
	}
	return *cfg, nil
}

func validate(c *Config) error {
	d := &c.Debate
	if d.MinRounds < 1 {
		return fmt.Errorf("debate.min_rounds must be >= 1, got %d", d.MinRounds)
	}
	if d.MaxRounds < d.MinRounds {
		return fmt.Errorf("debate.max_rounds (%d) must be >= min_rounds (%d)", d.MaxRounds, d.MinRounds)
	}
	if d.MaxDiscussionSteps < 1 {
		return fmt.Errorf("debate.max_discussion_steps must be >= 1, got %d", d.MaxDiscussionSteps)
	}
	for name, v := range map[string]float64{
		"consensus_threshold":         d.ConsensusThreshold,
		"commander_settle_confidence": d.CommanderSettleConfidence,
		"revisit_settle_confidence":   d.RevisitSettleConfidence,
		"degraded_confidence":         d.DegradedConfidence,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("debate.%s must be in [0,1], got %v", name, v)
		}
	}
	if d.CardCap < 1 {
		return fmt.Errorf("debate.card_cap must be >= 1, got %d", d.CardCap)
	}
	if d.EvidenceCap < 1 {
		return fmt.Errorf("debate.evidence_cap must be >= 1, got %d", d.EvidenceCap)
	}
	for name, model := range map[string]string{
		"analysis_model":  d.AnalysisModel,
		"critique_model":  d.CritiqueModel,
		"judge_model":     d.JudgeModel,
		"commander_model": d.CommanderModel,
	} {
		if model == "" {
			return fmt.Errorf("debate.%s must not be empty", name)
		}
		if _, err := GetModelProvider(model); err != nil {
			return fmt.Errorf("debate.%s: %w", name, err)
		}
	}
	if c.Execution.CallTimeout <= 0 {
		return fmt.Errorf("execution.call_timeout must be positive")
	}
	if c.Execution.RetryTimeout < c.Execution.CallTimeout {
		return fmt.Errorf("execution.retry_timeout must be >= call_timeout")
	}
	if f := c.Execution.RetryOutputFraction; f <= 0 || f > 1 {
		return fmt.Errorf("execution.retry_output_fraction must be in (0,1], got %v", f)
	}
	if c.RateLimit.MaxConcurrentCalls < 1 {
		return fmt.Errorf("rate_limit.max_concurrent_calls must be >= 1")
	}
	if c.Breaker.FailureThreshold < 1 || c.Breaker.SuccessThreshold < 1 {
		return fmt.Errorf("circuit_breaker thresholds must be >= 1")
	}
	return nil
}

// ProviderLimitsFor returns the configured limits for a provider name.
func (c Config) ProviderLimitsFor(provider string) ProviderLimits {
	switch provider {
	case ProviderAnthropic:
		return c.RateLimit.Anthropic
	case ProviderOpenAI:
		return c.RateLimit.OpenAI
	case ProviderGoogle:
		return c.RateLimit.Google
	case ProviderOllama:
		return c.RateLimit.Ollama
	default:
		return ProviderLimits{}
	}
}
