package metrics

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// promStub serves /api/v1/query, answering each instant query via answer.
func promStub(t *testing.T, answer func(query string) string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/query" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, answer(r.FormValue("query")))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func vectorResult(samples ...string) string {
	return fmt.Sprintf(`{"status":"success","data":{"resultType":"vector","result":[%s]}}`,
		strings.Join(samples, ","))
}

func vectorSample(metric, value string) string {
	return fmt.Sprintf(`{"metric":%s,"value":[1726000000,%q]}`, metric, value)
}

func TestGetSessionMetrics(t *testing.T) {
	srv := promStub(t, func(query string) string {
		switch {
		case strings.Contains(query, `type="prompt"`):
			return vectorResult(vectorSample(`{}`, "1200"))
		case strings.Contains(query, `type="completion"`):
			return vectorResult(vectorSample(`{}`, "340"))
		case strings.Contains(query, "debate_llm_costs_total"):
			return vectorResult(vectorSample(`{}`, "0.42"))
		default:
			return vectorResult()
		}
	})

	qs, err := NewQueryService(srv.URL)
	require.NoError(t, err)

	got, err := qs.GetSessionMetrics(context.Background(), "sess-1")
	require.NoError(t, err)

	assert.Equal(t, "sess-1", got.SessionID)
	assert.Equal(t, int64(1200), got.PromptTokens)
	assert.Equal(t, int64(340), got.CompletionTokens)
	assert.Equal(t, int64(1540), got.TotalTokens)
	assert.InDelta(t, 0.42, got.TotalCost, 1e-9)
}

func TestGetSessionMetricsEmptyResultReadsZero(t *testing.T) {
	srv := promStub(t, func(string) string {
		return vectorResult()
	})

	qs, err := NewQueryService(srv.URL)
	require.NoError(t, err)

	got, err := qs.GetSessionMetrics(context.Background(), "sess-unknown")
	require.NoError(t, err)

	assert.Zero(t, got.PromptTokens)
	assert.Zero(t, got.CompletionTokens)
	assert.Zero(t, got.TotalTokens)
	assert.Zero(t, got.TotalCost)
}

func TestGetSessionMetricsByModel(t *testing.T) {
	srv := promStub(t, func(query string) string {
		switch {
		case strings.Contains(query, "group by (model)"):
			return vectorResult(
				vectorSample(`{"model":"claude-opus-4-5"}`, "1"),
				vectorSample(`{"model":"claude-sonnet-4-5"}`, "1"),
			)
		case strings.Contains(query, `model="claude-opus-4-5"`) && strings.Contains(query, `type="prompt"`):
			return vectorResult(vectorSample(`{}`, "800"))
		case strings.Contains(query, `model="claude-opus-4-5"`) && strings.Contains(query, `type="completion"`):
			return vectorResult(vectorSample(`{}`, "200"))
		case strings.Contains(query, `model="claude-opus-4-5"`):
			return vectorResult(vectorSample(`{}`, "0.30"))
		case strings.Contains(query, `model="claude-sonnet-4-5"`) && strings.Contains(query, `type="prompt"`):
			return vectorResult(vectorSample(`{}`, "400"))
		case strings.Contains(query, `model="claude-sonnet-4-5"`) && strings.Contains(query, `type="completion"`):
			return vectorResult(vectorSample(`{}`, "140"))
		case strings.Contains(query, `model="claude-sonnet-4-5"`):
			return vectorResult(vectorSample(`{}`, "0.12"))
		default:
			return vectorResult()
		}
	})

	qs, err := NewQueryService(srv.URL)
	require.NoError(t, err)

	got, err := qs.GetSessionMetricsByModel(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Len(t, got, 2)

	opus := got["claude-opus-4-5"]
	require.NotNil(t, opus)
	assert.Equal(t, int64(800), opus.PromptTokens)
	assert.Equal(t, int64(200), opus.CompletionTokens)
	assert.Equal(t, int64(1000), opus.TotalTokens)
	assert.InDelta(t, 0.30, opus.TotalCost, 1e-9)

	sonnet := got["claude-sonnet-4-5"]
	require.NotNil(t, sonnet)
	assert.Equal(t, int64(400), sonnet.PromptTokens)
	assert.Equal(t, int64(140), sonnet.CompletionTokens)
	assert.InDelta(t, 0.12, sonnet.TotalCost, 1e-9)
}

func TestGetSessionMetricsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	qs, err := NewQueryService(srv.URL)
	require.NoError(t, err)

	_, err = qs.GetSessionMetrics(context.Background(), "sess-1")
	assert.Error(t, err)
}

func TestNewQueryServiceRejectsBadURL(t *testing.T) {
	_, err := NewQueryService("://not-a-url")
	assert.Error(t, err)
}
