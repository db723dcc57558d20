package tools

import (
	"context"
	"errors"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// CurrentSession tracks the session MCP clients work on. parse_dive_log
// replaces it; dive-scoped tools read it.
type CurrentSession struct {
	mu sync.RWMutex
	id string
}

// ID returns the current session id, or "" before any log was parsed.
func (c *CurrentSession) ID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.id
}

// Set replaces the current session.
func (c *CurrentSession) Set(id string) {
	c.mu.Lock()
	c.id = id
	c.mu.Unlock()
}

// RegisterAll registers all tools with the MCP server.
// This is called from main after server creation but before Run().
func RegisterAll(server *mcp.Server, box *Toolbox, current *CurrentSession) {
	mcp.AddTool(server, mcpTool(SearchIncidents), handlerFor[SearchArgs](box, SearchIncidents, current))
	mcp.AddTool(server, mcpTool(SearchGuidelines), handlerFor[SearchArgs](box, SearchGuidelines, current))
	mcp.AddTool(server, mcpTool(ParseDiveLog), newParseHandler(box, current))
	mcp.AddTool(server, mcpTool(AnalyzeProfile), handlerFor[DiveArgs](box, AnalyzeProfile, current))
	mcp.AddTool(server, mcpTool(DiveSummary), handlerFor[DiveArgs](box, DiveSummary, current))
	mcp.AddTool(server, mcpTool(ListDives), handlerFor[ListArgs](box, ListDives, current))
	mcp.AddTool(server, mcpTool(RefreshCorpus), handlerFor[RefreshArgs](box, RefreshCorpus, current))
}

func mcpTool(name Name) *mcp.Tool {
	return &mcp.Tool{Name: string(name), Description: table[name].schema.Description}
}

// handlerFor adapts a toolbox tool to a typed MCP handler against the
// current session.
func handlerFor[In any](box *Toolbox, name Name, current *CurrentSession) mcp.ToolHandlerFor[In, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input In) (*mcp.CallToolResult, any, error) {
		if bad := invalid(&input); bad != nil {
			return bad, nil, nil
		}
		res, err := box.run(ctx, current.ID(), name, &input)
		if err != nil {
			return nil, nil, err
		}
		return toCallResult(res), nil, nil
	}
}

func newParseHandler(box *Toolbox, current *CurrentSession) mcp.ToolHandlerFor[ParseArgs, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input ParseArgs) (*mcp.CallToolResult, any, error) {
		if bad := invalid(&input); bad != nil {
			return bad, nil, nil
		}
		upload, res := box.upload(ctx, input)
		if upload != nil {
			current.Set(upload.SessionID)
		}
		return toCallResult(res), nil, nil
	}
}

func invalid(args any) *mcp.CallToolResult {
	err := validate.Struct(args)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return ErrorResult("Invalid argument "+verrs[0].Field(), "Check the tool schema")
	}
	return ErrorResult("Invalid arguments", "Check the tool schema")
}
