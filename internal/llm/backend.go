// Package llm is the model backend contract used by the agent: one streamed
// completion per call, returning either text or tool-call requests.
package llm

import (
	"context"
	"fmt"

	"github.com/raphaelgruber/diveroast/internal/config"
	"github.com/raphaelgruber/diveroast/internal/models"
)

// Provider names accepted in DIVEROAST_LLM_PROVIDER.
const (
	ProviderGemini    = "gemini"
	ProviderOllama    = "ollama"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderBedrock   = "bedrock"
)

// Property is one JSON-schema property of a tool's arguments.
type Property struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
	Minimum     *float64 `json:"minimum,omitempty"`
	Maximum     *float64 `json:"maximum,omitempty"`
}

// ToolSchema declares a tool to the model.
type ToolSchema struct {
	Name        string
	Description string
	Properties  map[string]Property
	Required    []string
}

// JSONSchema renders the argument schema as a JSON-schema object.
func (s ToolSchema) JSONSchema() map[string]any {
	props := make(map[string]any, len(s.Properties))
	for name, p := range s.Properties {
		props[name] = p
	}
	schema := map[string]any{"type": "object", "properties": props}
	if len(s.Required) > 0 {
		schema["required"] = s.Required
	}
	return schema
}

// Request is a full-history completion request.
type Request struct {
	System  string
	History []models.Turn
	Tools   []ToolSchema
}

// Usage reports token counts for one call, when the provider exposes them.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Response is the model's answer: natural-language content, tool calls, or both.
type Response struct {
	Content   string
	ToolCalls []models.ToolCall
	Usage     Usage
}

// DeltaFunc receives content fragments as they are produced. Returning an
// error aborts the call.
type DeltaFunc func(delta string) error

// Backend is a streaming chat model with tool calling.
type Backend interface {
	Stream(ctx context.Context, req Request, onDelta DeltaFunc) (*Response, error)
	Model() string
}

// New creates the configured backend wrapped in the retry-once policy.
func New(ctx context.Context, cfg config.Config) (Backend, error) {
	var (
		b   Backend
		err error
	)
	switch cfg.LLMProvider {
	case ProviderGemini:
		b, err = NewGemini(ctx, cfg.GeminiAPIKey, cfg.LLMModel)
	case ProviderOllama, ProviderOpenAI, ProviderAnthropic, ProviderBedrock:
		b, err = NewLangchain(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLMProvider)
	}
	if err != nil {
		return nil, err
	}
	return WithRetry(b, cfg.ModelRetryBackoff, nil), nil
}

// Complete runs a tool-less, non-streamed prompt and returns the text.
func Complete(ctx context.Context, b Backend, system, prompt string) (string, error) {
	resp, err := b.Stream(ctx, Request{
		System:  system,
		History: []models.Turn{{Role: models.RoleUser, Content: prompt}},
	}, nil)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}
