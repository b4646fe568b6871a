package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// SessionMetrics represents aggregated usage for a debate session.
type SessionMetrics struct {
	SessionID        string  `json:"session_id"`
	Model            string  `json:"model,omitempty"`
	PromptTokens     int64   `json:"prompt_tokens"`
	CompletionTokens int64   `json:"completion_tokens"`
	TotalTokens      int64   `json:"total_tokens"`
	TotalCost        float64 `json:"total_cost_usd"`
}

// QueryService provides methods to query session usage from Prometheus.
type QueryService struct {
	client   api.Client
	queryAPI v1.API
}

// NewQueryService creates a new metrics query service.
func NewQueryService(prometheusURL string) (*QueryService, error) {
	client, err := api.NewClient(api.Config{
		Address: prometheusURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}

	return &QueryService{
		client:   client,
		queryAPI: v1.NewAPI(client),
	}, nil
}

// GetSessionMetrics retrieves aggregated token and cost usage for a session,
// summed across all workers and models.
func (q *QueryService) GetSessionMetrics(ctx context.Context, sessionID string) (*SessionMetrics, error) {
	metrics := &SessionMetrics{
		SessionID: sessionID,
	}

	promptQuery := fmt.Sprintf(`sum(debate_llm_tokens_total{session_id=%q, type="prompt"})`, sessionID)
	promptTokens, err := q.sumQuery(ctx, promptQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query prompt tokens: %w", err)
	}
	metrics.PromptTokens = int64(promptTokens)

	completionQuery := fmt.Sprintf(`sum(debate_llm_tokens_total{session_id=%q, type="completion"})`, sessionID)
	completionTokens, err := q.sumQuery(ctx, completionQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query completion tokens: %w", err)
	}
	metrics.CompletionTokens = int64(completionTokens)

	metrics.TotalTokens = metrics.PromptTokens + metrics.CompletionTokens

	costQuery := fmt.Sprintf(`sum(debate_llm_costs_total{session_id=%q})`, sessionID)
	cost, err := q.sumQuery(ctx, costQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query total cost: %w", err)
	}
	metrics.TotalCost = cost

	return metrics, nil
}

// GetSessionMetricsByModel retrieves usage broken down by model for a session.
func (q *QueryService) GetSessionMetricsByModel(ctx context.Context, sessionID string) (map[string]*SessionMetrics, error) {
	result := make(map[string]*SessionMetrics)

	modelsQuery := fmt.Sprintf(`group by (model) (debate_llm_tokens_total{session_id=%q})`, sessionID)
	modelsVector, err := q.vectorQuery(ctx, modelsQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query models: %w", err)
	}

	var models []string
	for _, sample := range modelsVector {
		if modelName, ok := sample.Metric["model"]; ok {
			models = append(models, string(modelName))
		}
	}

	for _, modelName := range models {
		metrics := &SessionMetrics{
			SessionID: sessionID,
			Model:     modelName,
		}

		promptQuery := fmt.Sprintf(`sum(debate_llm_tokens_total{session_id=%q, model=%q, type="prompt"})`, sessionID, modelName)
		promptTokens, err := q.sumQuery(ctx, promptQuery)
		if err != nil {
			return nil, fmt.Errorf("failed to query prompt tokens for model %s: %w", modelName, err)
		}
		metrics.PromptTokens = int64(promptTokens)

		completionQuery := fmt.Sprintf(`sum(debate_llm_tokens_total{session_id=%q, model=%q, type="completion"})`, sessionID, modelName)
		completionTokens, err := q.sumQuery(ctx, completionQuery)
		if err != nil {
			return nil, fmt.Errorf("failed to query completion tokens for model %s: %w", modelName, err)
		}
		metrics.CompletionTokens = int64(completionTokens)

		metrics.TotalTokens = metrics.PromptTokens + metrics.CompletionTokens

		costQuery := fmt.Sprintf(`sum(debate_llm_costs_total{session_id=%q, model=%q})`, sessionID, modelName)
		cost, err := q.sumQuery(ctx, costQuery)
		if err != nil {
			return nil, fmt.Errorf("failed to query cost for model %s: %w", modelName, err)
		}
		metrics.TotalCost = cost

		result[modelName] = metrics
	}

	return result, nil
}

// sumQuery evaluates an instant query expected to yield a single aggregate
// sample and returns its value. An empty result reads as zero.
func (q *QueryService) sumQuery(ctx context.Context, query string) (float64, error) {
	vector, err := q.vectorQuery(ctx, query)
	if err != nil {
		return 0, err
	}
	if len(vector) == 0 {
		return 0, nil
	}
	return float64(vector[0].Value), nil
}

func (q *QueryService) vectorQuery(ctx context.Context, query string) (model.Vector, error) {
	result, _, err := q.queryAPI.Query(ctx, query, time.Now())
	if err != nil {
		return nil, err
	}

	vector, ok := result.(model.Vector)
	if !ok {
		return nil, fmt.Errorf("unexpected result type %T", result)
	}
	return vector, nil
}
