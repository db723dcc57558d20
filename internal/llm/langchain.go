package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/bedrock"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/raphaelgruber/diveroast/internal/config"
	"github.com/raphaelgruber/diveroast/internal/models"
)

// LangchainBackend adapts a langchaingo chat model.
type LangchainBackend struct {
	llm       llms.Model
	modelName string
}

var _ Backend = (*LangchainBackend)(nil)

// NewLangchain creates a langchaingo-backed model for the ollama, openai,
// anthropic or bedrock provider.
func NewLangchain(ctx context.Context, cfg config.Config) (*LangchainBackend, error) {
	var model llms.Model
	var err error

	switch cfg.LLMProvider {
	case ProviderOllama:
		model, err = ollama.New(
			ollama.WithModel(cfg.LLMModel),
			ollama.WithServerURL(cfg.OllamaHost),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}

	case ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, errors.New("OpenAI API key required")
		}
		model, err = openai.New(
			openai.WithToken(cfg.OpenAIAPIKey),
			openai.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}

	case ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return nil, errors.New("Anthropic API key required")
		}
		model, err = anthropic.New(
			anthropic.WithToken(cfg.AnthropicAPIKey),
			anthropic.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}

	case ProviderBedrock:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		model, err = bedrock.New(
			bedrock.WithClient(bedrockruntime.NewFromConfig(awsCfg)),
			bedrock.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create bedrock model: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLMProvider)
	}

	return &LangchainBackend{llm: model, modelName: cfg.LLMModel}, nil
}

// Model returns the LLM model name.
func (m *LangchainBackend) Model() string {
	return m.modelName
}

// Stream sends the conversation and forwards streamed content to onDelta.
func (m *LangchainBackend) Stream(ctx context.Context, req Request, onDelta DeltaFunc) (*Response, error) {
	messages := toLangchainMessages(req)

	var opts []llms.CallOption
	if len(req.Tools) > 0 {
		opts = append(opts, llms.WithTools(toLangchainTools(req.Tools)))
	}
	if onDelta != nil {
		opts = append(opts, llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
			if len(chunk) == 0 {
				return nil
			}
			return onDelta(string(chunk))
		}))
	}

	resp, err := m.llm.GenerateContent(ctx, messages, opts...)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, backendError("generate", err)
	}
	if len(resp.Choices) == 0 {
		return nil, backendError("generate", errors.New("no response choices"))
	}

	choice := resp.Choices[0]
	out := &Response{
		Content: choice.Content,
		Usage: Usage{
			InputTokens:  intInfo(choice.GenerationInfo, "PromptTokens", "InputTokens", "input_tokens"),
			OutputTokens: intInfo(choice.GenerationInfo, "CompletionTokens", "OutputTokens", "output_tokens"),
		},
	}
	for _, tc := range choice.ToolCalls {
		if tc.FunctionCall == nil {
			continue
		}
		args := map[string]any{}
		if tc.FunctionCall.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.FunctionCall.Arguments), &args); err != nil {
				return nil, fmt.Errorf("%w: %s: %v", models.ErrInvalidArguments, tc.FunctionCall.Name, err)
			}
		}
		out.ToolCalls = append(out.ToolCalls, models.ToolCall{
			ID:        tc.ID,
			Name:      tc.FunctionCall.Name,
			Arguments: args,
		})
	}
	return out, nil
}

func toLangchainMessages(req Request) []llms.MessageContent {
	messages := make([]llms.MessageContent, 0, len(req.History)+1)
	if req.System != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, req.System))
	}

	for _, turn := range req.History {
		switch turn.Role {
		case models.RoleUser:
			messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, turn.Content))

		case models.RoleAssistant:
			msg := llms.MessageContent{Role: llms.ChatMessageTypeAI}
			if turn.Content != "" {
				msg.Parts = append(msg.Parts, llms.TextContent{Text: turn.Content})
			}
			for _, call := range turn.ToolCalls {
				raw, _ := json.Marshal(call.Arguments)
				msg.Parts = append(msg.Parts, llms.ToolCall{
					ID:   call.ID,
					Type: "function",
					FunctionCall: &llms.FunctionCall{
						Name:      call.Name,
						Arguments: string(raw),
					},
				})
			}
			messages = append(messages, msg)

		case models.RoleTool:
			messages = append(messages, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{llms.ToolCallResponse{
					ToolCallID: turn.ToolCallID,
					Name:       turn.ToolName,
					Content:    turn.Content,
				}},
			})
		}
	}
	return messages
}

func toLangchainTools(schemas []ToolSchema) []llms.Tool {
	tools := make([]llms.Tool, len(schemas))
	for i, s := range schemas {
		tools[i] = llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        s.Name,
				Description: s.Description,
				Parameters:  s.JSONSchema(),
			},
		}
	}
	return tools
}

// intInfo reads the first present token counter from provider generation info.
func intInfo(info map[string]any, keys ...string) int {
	for _, k := range keys {
		switch v := info[k].(type) {
		case int:
			return v
		case int32:
			return int(v)
		case int64:
			return int(v)
		case float64:
			return int(v)
		}
	}
	return 0
}
