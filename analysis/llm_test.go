package analysis_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailored-agentic-units/backlog/analysis"
	"github.com/tailored-agentic-units/backlog/orchestrate/capability"
)

// chatServer serves OpenAI-style chat completions. reply returns the status
// code and the assistant message content.
func chatServer(t *testing.T, reply func(prompt string) (int, string)) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}

		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		status, content := reply(req.Messages[len(req.Messages)-1].Content)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]any{"message": content, "type": "error"},
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  req.Model,
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func llmCatalog(t *testing.T, url string) *capability.Catalog {
	t.Helper()
	cfg := analysis.DefaultLLMConfig()
	cfg.BaseURL = url + "/v1"
	cfg.APIKey = "test-key"
	cfg.RequestsPerSecond = 0

	cat := capability.NewCatalog()
	require.NoError(t, analysis.Register(cat, analysis.Options{LLM: analysis.NewLLM(cfg)}))
	return cat
}

func invoke(t *testing.T, cat *capability.Catalog, name string) (map[string]any, error) {
	t.Helper()
	c, ok := cat.Lookup(name)
	require.True(t, ok, "capability %s not registered", name)
	return c.Invoke(context.Background(), textView("Checkout fails for all users"))
}

func TestLLM_Risk(t *testing.T) {
	srv, _ := chatServer(t, func(prompt string) (int, string) {
		assert.Contains(t, prompt, "Checkout fails for all users")
		return http.StatusOK, `{"risk": 8}`
	})
	out, err := invoke(t, llmCatalog(t, srv.URL), "llm.risk")
	require.NoError(t, err)
	assert.Equal(t, 8.0, out[analysis.KeyRisk])
}

func TestLLM_ClampsAndStripsFences(t *testing.T) {
	srv, _ := chatServer(t, func(string) (int, string) {
		return http.StatusOK, "```json\n{\"confidence\": 1.7, \"urgency\": -2}\n```"
	})
	out, err := invoke(t, llmCatalog(t, srv.URL), "llm.confidence_urgency")
	require.NoError(t, err)
	assert.Equal(t, 1.0, out[analysis.KeyConfidence])
	assert.Equal(t, 0.0, out[analysis.KeyUrgency])
}

func TestLLM_Classify(t *testing.T) {
	srv, _ := chatServer(t, func(string) (int, string) {
		return http.StatusOK, `{"category": " Bug ", "category_confidence": 0.9}`
	})
	out, err := invoke(t, llmCatalog(t, srv.URL), "llm.classify")
	require.NoError(t, err)
	assert.Equal(t, "bug", out[analysis.KeyCategory])
	assert.Equal(t, 0.9, out["category_confidence"])
}

func TestLLM_ContextDomain(t *testing.T) {
	srv, _ := chatServer(t, func(string) (int, string) {
		return http.StatusOK, `{"domain": "Finance"}`
	})
	out, err := invoke(t, llmCatalog(t, srv.URL), "llm.context")
	require.NoError(t, err)
	assert.Equal(t, "finance", out[analysis.KeyDomain])
}

func TestLLM_ErrorKinds(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		content string
		kind    capability.Kind
	}{
		{"not json", http.StatusOK, "risk is high", capability.KindMalformedResponse},
		{"missing field", http.StatusOK, `{"score": 4}`, capability.KindMalformedResponse},
		{"wrong type", http.StatusOK, `{"risk": "high"}`, capability.KindMalformedResponse},
		{"rate limited", http.StatusTooManyRequests, "slow down", capability.KindRateLimited},
		{"server error", http.StatusBadGateway, "upstream", capability.KindUnavailable},
		{"bad request", http.StatusBadRequest, "bad prompt", capability.KindValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := chatServer(t, func(string) (int, string) {
				return tt.status, tt.content
			})
			_, err := invoke(t, llmCatalog(t, srv.URL), "llm.risk")
			require.Error(t, err)
			assert.Equal(t, tt.kind, capability.KindOf(err))
		})
	}
}

func TestLLM_UnexpectedCategory(t *testing.T) {
	srv, _ := chatServer(t, func(string) (int, string) {
		return http.StatusOK, `{"category": "complaint", "category_confidence": 0.9}`
	})
	_, err := invoke(t, llmCatalog(t, srv.URL), "llm.classify")
	require.Error(t, err)
	assert.Equal(t, capability.KindMalformedResponse, capability.KindOf(err))
}

func TestLLM_EmptyTextSkipsCall(t *testing.T) {
	srv, calls := chatServer(t, func(string) (int, string) {
		return http.StatusOK, `{"impact": 5}`
	})
	c, ok := llmCatalog(t, srv.URL).Lookup("llm.impact")
	require.True(t, ok)

	_, err := c.Invoke(context.Background(), textView(""))
	require.Error(t, err)
	assert.Equal(t, capability.KindValidation, capability.KindOf(err))
	assert.Zero(t, calls.Load())
}

func TestLLMConfig(t *testing.T) {
	cfg := analysis.DefaultLLMConfig()
	assert.False(t, cfg.Enabled())

	cfg.Merge(&analysis.LLMConfig{APIKey: "k", Model: "gpt-4o-mini", Burst: 8})
	assert.True(t, cfg.Enabled())
	assert.Equal(t, "gpt-4o-mini", cfg.Model)
	assert.Equal(t, 8, cfg.Burst)
	assert.Equal(t, "https://api.mistral.ai/v1", cfg.BaseURL)
	assert.Equal(t, 2.0, cfg.RequestsPerSecond)
}
