package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/raphaelgruber/diveroast/internal/models"
)

// Gemini content roles.
const (
	roleUser  = "user"
	roleModel = "model"
)

// GeminiBackend streams from the Gemini API with native function calling.
type GeminiBackend struct {
	client *genai.Client
	model  string
}

var _ Backend = (*GeminiBackend)(nil)

// NewGemini creates a Gemini backend. The API key falls back to GEMINI_API_KEY
// through the SDK when empty.
func NewGemini(ctx context.Context, apiKey, model string) (*GeminiBackend, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiBackend{client: client, model: model}, nil
}

// Model returns the Gemini model name.
func (g *GeminiBackend) Model() string {
	return g.model
}

// Stream sends the conversation and forwards text parts as they arrive.
func (g *GeminiBackend) Stream(ctx context.Context, req Request, onDelta DeltaFunc) (*Response, error) {
	cfg := &genai.GenerateContentConfig{}
	if req.System != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}
	if len(req.Tools) > 0 {
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: toGeminiDeclarations(req.Tools)}}
	}

	var (
		text strings.Builder
		out  Response
	)
	for chunk, err := range g.client.Models.GenerateContentStream(ctx, g.model, toGeminiContents(req.History), cfg) {
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, backendError("gemini stream", err)
		}
		if chunk == nil {
			continue
		}
		if delta := chunk.Text(); delta != "" {
			text.WriteString(delta)
			if onDelta != nil {
				if err := onDelta(delta); err != nil {
					return nil, err
				}
			}
		}
		for _, fc := range chunk.FunctionCalls() {
			id := fc.ID
			if id == "" {
				id = uuid.New().String()[:8]
			}
			args := fc.Args
			if args == nil {
				args = map[string]any{}
			}
			out.ToolCalls = append(out.ToolCalls, models.ToolCall{ID: id, Name: fc.Name, Arguments: args})
		}
		if u := chunk.UsageMetadata; u != nil {
			out.Usage = Usage{
				InputTokens:  int(u.PromptTokenCount),
				OutputTokens: int(u.CandidatesTokenCount),
			}
		}
	}

	out.Content = text.String()
	if out.Content == "" && len(out.ToolCalls) == 0 {
		return nil, backendError("gemini stream", errors.New("empty response"))
	}
	return &out, nil
}

// toGeminiContents maps history onto Gemini roles. Tool results travel as
// function responses in a user content; consecutive results share one content.
func toGeminiContents(history []models.Turn) []*genai.Content {
	var contents []*genai.Content
	for _, turn := range history {
		switch turn.Role {
		case models.RoleUser:
			contents = append(contents, &genai.Content{Role: roleUser, Parts: []*genai.Part{{Text: turn.Content}}})

		case models.RoleAssistant:
			var parts []*genai.Part
			if turn.Content != "" {
				parts = append(parts, &genai.Part{Text: turn.Content})
			}
			for _, call := range turn.ToolCalls {
				parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{
					ID:   call.ID,
					Name: call.Name,
					Args: call.Arguments,
				}})
			}
			if len(parts) > 0 {
				contents = append(contents, &genai.Content{Role: roleModel, Parts: parts})
			}

		case models.RoleTool:
			key := "output"
			if turn.IsError {
				key = "error"
			}
			part := &genai.Part{FunctionResponse: &genai.FunctionResponse{
				ID:       turn.ToolCallID,
				Name:     turn.ToolName,
				Response: map[string]any{key: turn.Content},
			}}
			if n := len(contents); n > 0 && isFunctionResponses(contents[n-1]) {
				contents[n-1].Parts = append(contents[n-1].Parts, part)
				continue
			}
			contents = append(contents, &genai.Content{Role: roleUser, Parts: []*genai.Part{part}})
		}
	}
	return contents
}

func isFunctionResponses(c *genai.Content) bool {
	if c.Role != roleUser || len(c.Parts) == 0 {
		return false
	}
	for _, p := range c.Parts {
		if p.FunctionResponse == nil {
			return false
		}
	}
	return true
}

func toGeminiDeclarations(schemas []ToolSchema) []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, len(schemas))
	for i, s := range schemas {
		decls[i] = &genai.FunctionDeclaration{
			Name:        s.Name,
			Description: s.Description,
		}
		// Gemini rejects OBJECT schemas without properties.
		if len(s.Properties) == 0 {
			continue
		}
		props := make(map[string]*genai.Schema, len(s.Properties))
		for name, p := range s.Properties {
			props[name] = toGeminiSchema(p)
		}
		decls[i].Parameters = &genai.Schema{
			Type:       genai.TypeObject,
			Properties: props,
			Required:   s.Required,
		}
	}
	return decls
}

func toGeminiSchema(p Property) *genai.Schema {
	schema := &genai.Schema{Description: p.Description, Enum: p.Enum, Minimum: p.Minimum, Maximum: p.Maximum}
	switch p.Type {
	case "integer":
		schema.Type = genai.TypeInteger
	case "number":
		schema.Type = genai.TypeNumber
	case "boolean":
		schema.Type = genai.TypeBoolean
	default:
		schema.Type = genai.TypeString
	}
	return schema
}
