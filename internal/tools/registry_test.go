package tools

import (
	"context"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func connect(t *testing.T, box *Toolbox, current *CurrentSession) (*mcp.ClientSession, context.Context) {
	t.Helper()

	server := mcp.NewServer(&mcp.Implementation{Name: "test-diveroast", Version: "0.0.1-test"}, nil)
	RegisterAll(server, box, current)

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	go func() { _ = server.Run(ctx, serverTransport) }()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err, "client should connect successfully")
	t.Cleanup(func() { _ = session.Close() })
	return session, ctx
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.Len(t, res.Content, 1)
	tc, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok, "content should be TextContent")
	return tc.Text
}

func TestMCPTools(t *testing.T) {
	box, _, retriever := newTestToolbox(t)
	current := &CurrentSession{}
	session, ctx := connect(t, box, current)

	t.Run("tools/list returns the closed set", func(t *testing.T) {
		result, err := session.ListTools(ctx, nil)
		require.NoError(t, err)
		require.Len(t, result.Tools, 7)

		names := make([]string, len(result.Tools))
		for i, tool := range result.Tools {
			names[i] = tool.Name
		}
		for _, s := range Schemas() {
			assert.Contains(t, names, s.Name)
		}
	})

	t.Run("dive tools need a parsed log", func(t *testing.T) {
		res, err := session.CallTool(ctx, &mcp.CallToolParams{Name: "list_dives", Arguments: map[string]any{}})
		require.NoError(t, err)
		assert.True(t, res.IsError)
		assert.Contains(t, text(t, res), "No dive log loaded")
	})

	t.Run("parse sets the current session", func(t *testing.T) {
		res, err := session.CallTool(ctx, &mcp.CallToolParams{
			Name:      "parse_dive_log",
			Arguments: map[string]any{"raw": "<divelog/>"},
		})
		require.NoError(t, err)
		assert.False(t, res.IsError)
		require.NotEmpty(t, current.ID())

		res, err = session.CallTool(ctx, &mcp.CallToolParams{
			Name:      "get_dive_summary",
			Arguments: map[string]any{"dive_id": "1"},
		})
		require.NoError(t, err)
		assert.Contains(t, text(t, res), "Blue Hole")
	})

	t.Run("validation errors are tool errors", func(t *testing.T) {
		res, err := session.CallTool(ctx, &mcp.CallToolParams{
			Name:      "search_dan_incidents",
			Arguments: map[string]any{"query": "x", "k": 99},
		})
		require.NoError(t, err)
		assert.True(t, res.IsError)
		assert.Empty(t, retriever.queries)
	})

	t.Run("search", func(t *testing.T) {
		res, err := session.CallTool(ctx, &mcp.CallToolParams{
			Name:      "search_dan_guidelines",
			Arguments: map[string]any{"query": "safety stop"},
		})
		require.NoError(t, err)
		assert.False(t, res.IsError)
		assert.Contains(t, text(t, res), "No DAN safety guidelines matched")
	})
}
