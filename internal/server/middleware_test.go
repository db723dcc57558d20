package server

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is too long", 10, "this is..."},
		{"tauchgänge", 8, "tauch..."},
		{"abc", 2, "ab"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, truncate(tt.in, tt.max))
		})
	}
}

func TestLoggingMiddleware_ToolCall(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	next := func(ctx context.Context, method string, req mcp.Request) (mcp.Result, error) {
		return &mcp.CallToolResult{IsError: true}, nil
	}
	handler := LoggingMiddleware(logger)(next)

	args, _ := json.Marshal(map[string]string{"raw": strings.Repeat("x", 500)})
	req := &mcp.CallToolRequest{Params: &mcp.CallToolParamsRaw{Name: "parse_dive_log", Arguments: args}}
	_, err := handler(context.Background(), "tools/call", req)
	assert.NoError(t, err)

	var entry map[string]any
	assert.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "request completed", entry["msg"])
	assert.Equal(t, "parse_dive_log", entry["tool"])
	assert.Equal(t, true, entry["tool_error"])
	assert.Len(t, []rune(entry["args"].(string)), maxArgLogLen)
}
