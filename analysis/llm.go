package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/tailored-agentic-units/backlog/orchestrate/capability"
	"github.com/tailored-agentic-units/backlog/orchestrate/state"
)

const systemPrompt = "You triage product backlog submissions. Reply with a single JSON object and nothing else."

// LLMConfig configures the OpenAI-compatible scoring client.
//
// Example YAML:
//
//	llm:
//	  base_url: https://api.mistral.ai/v1
//	  model: mistral-small-latest
//	  requests_per_second: 2
//	  burst: 4
type LLMConfig struct {
	BaseURL           string  `json:"base_url" yaml:"base_url" validate:"omitempty,url"`
	Model             string  `json:"model" yaml:"model"`
	APIKey            string  `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second" validate:"gte=0"`
	Burst             int     `json:"burst" yaml:"burst" validate:"gte=0"`
	Temperature       float32 `json:"temperature" yaml:"temperature" validate:"gte=0,lte=2"`
}

// DefaultLLMConfig returns defaults for a Mistral endpoint. The client stays
// disabled until an API key is set.
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		BaseURL:           "https://api.mistral.ai/v1",
		Model:             "mistral-small-latest",
		RequestsPerSecond: 2,
		Burst:             4,
	}
}

func (c *LLMConfig) Merge(source *LLMConfig) {
	if source.BaseURL != "" {
		c.BaseURL = source.BaseURL
	}
	if source.Model != "" {
		c.Model = source.Model
	}
	if source.APIKey != "" {
		c.APIKey = source.APIKey
	}
	if source.RequestsPerSecond > 0 {
		c.RequestsPerSecond = source.RequestsPerSecond
	}
	if source.Burst > 0 {
		c.Burst = source.Burst
	}
	if source.Temperature > 0 {
		c.Temperature = source.Temperature
	}
}

// Enabled reports whether an API key is configured.
func (c *LLMConfig) Enabled() bool { return c.APIKey != "" }

// LLM is a rate-limited chat completion client that returns JSON objects.
type LLM struct {
	client      *openai.Client
	model       string
	temperature float32
	limiter     *rate.Limiter
}

// NewLLM creates a client from cfg. RequestsPerSecond 0 disables limiting.
func NewLLM(cfg LLMConfig) *LLM {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	slog.Info("Initializing LLM client", "model", cfg.Model, "base_url", clientCfg.BaseURL)
	return &LLM{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		limiter:     rate.NewLimiter(limit, max(cfg.Burst, 1)),
	}
}

// Complete sends prompt and decodes the reply as a JSON object. Failures are
// returned as capability errors classified by cause.
func (l *LLM) Complete(ctx context.Context, prompt string) (map[string]any, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, capability.RateLimited(err)
	}

	resp, err := l.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: l.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: l.temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, classifyAPIError(err)
	}

	if len(resp.Choices) == 0 {
		return nil, capability.Malformed(errors.New("LLM returned no choices"))
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	content = strings.TrimSuffix(strings.TrimPrefix(content, "```json"), "```")

	var out map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &out); err != nil {
		return nil, capability.Malformed(fmt.Errorf("LLM reply is not a JSON object: %w", err))
	}
	return out, nil
}

func classifyAPIError(err error) error {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	switch {
	case status == http.StatusTooManyRequests:
		return capability.RateLimited(err)
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return capability.Invalid("prompt", err)
	default:
		return capability.Unavailable(err)
	}
}

type scoreField struct {
	key    string
	lo, hi float64
}

// llmTask describes one model-backed stage: the instruction and the fields
// its reply must carry.
type llmTask struct {
	instruction string
	numbers     []scoreField
	label       string
	labels      []string
}

var llmTasks = map[string]llmTask{
	CapClassify: {
		instruction: `Classify the submission. Reply {"category": one of "bug","idea","feedback","question","request","general", "category_confidence": number 0-1}.`,
		numbers:     []scoreField{{"category_confidence", 0, 1}},
		label:       KeyCategory,
		labels:      []string{"bug", "idea", "feedback", "question", "request", "general"},
	},
	CapContext: {
		instruction: `Name the business domain of the submission. Reply {"domain": one of "it","marketing","finance","general"}.`,
		label:       KeyDomain,
		labels:      []string{"it", "marketing", "finance", "general"},
	},
	CapConfidenceUrgency: {
		instruction: `Rate how clearly actionable the submission is and how time-sensitive it is. Reply {"confidence": number 0-1, "urgency": number 0-10}.`,
		numbers:     []scoreField{{KeyConfidence, 0, 1}, {KeyUrgency, 0, 10}},
	},
	CapRisk: {
		instruction: `Rate the delivery and security risk of acting on the submission. Reply {"risk": number 0-10}.`,
		numbers:     []scoreField{{KeyRisk, 0, 10}},
	},
	CapImpact: {
		instruction: `Rate the potential user and business impact of the submission. Reply {"impact": number 0-10}.`,
		numbers:     []scoreField{{KeyImpact, 0, 10}},
	},
	CapResources: {
		instruction: `Rate how readily a typical team could staff this work, 10 meaning trivially. Reply {"resources": number 1-10}.`,
		numbers:     []scoreField{{KeyResources, 1, 10}},
	},
}

// llmCapability runs one llmTask and validates the reply.
type llmCapability struct {
	llm  *LLM
	task llmTask
}

func (c *llmCapability) Invoke(ctx context.Context, view state.View) (state.PartialOutput, error) {
	text, err := submissionText(view)
	if err != nil {
		return nil, err
	}

	reply, err := c.llm.Complete(ctx, c.task.instruction+"\n\nSubmission:\n"+text)
	if err != nil {
		return nil, err
	}

	out := state.PartialOutput{}
	for _, f := range c.task.numbers {
		v, ok := state.AsFloat(reply[f.key])
		if !ok {
			return nil, capability.Malformed(fmt.Errorf("reply field %q missing or not a number", f.key))
		}
		out[f.key] = clamp(v, f.lo, f.hi)
	}
	if c.task.label != "" {
		label, _ := reply[c.task.label].(string)
		label = strings.ToLower(strings.TrimSpace(label))
		if !slices.Contains(c.task.labels, label) {
			return nil, capability.Malformed(fmt.Errorf("reply field %q has unexpected value %q", c.task.label, label))
		}
		out[c.task.label] = label
	}
	return out, nil
}
