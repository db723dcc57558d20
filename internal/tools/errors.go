package tools

import (
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ErrorResult creates a tool error result with optional recovery hint.
// If hint is non-empty, formats as "{msg}. {hint}".
// Returns IsError=true so LLM can see the error and self-correct.
func ErrorResult(msg, hint string) *mcp.CallToolResult {
	return toCallResult(errorResult(msg, hint))
}

// TextResult creates a success result with text content.
func TextResult(text string) *mcp.CallToolResult {
	return toCallResult(Result{Content: text})
}

// toCallResult converts a toolbox result to the MCP wire form. Unavailable
// results are not errors: the client should still answer without evidence.
func toCallResult(r Result) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: r.Content},
		},
		IsError: r.IsError,
	}
}

// FormatResults joins items with newlines for list output.
func FormatResults(items []string) string {
	return strings.Join(items, "\n")
}
