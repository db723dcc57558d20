package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/diveroast/internal/analysis"
	"github.com/raphaelgruber/diveroast/internal/server"
	"github.com/raphaelgruber/diveroast/internal/service"
	"github.com/raphaelgruber/diveroast/internal/session"
	"github.com/raphaelgruber/diveroast/internal/tools"
)

const logbook = `<divelog><divesites><site uuid='1' name='Blue Hole'/></divesites><dives>
<dive number='7' divesiteid='1'><divecomputer>
<sample time='0:00 min' depth='0.0 m'/>
<sample time='5:00 min' depth='22.0 m'/>
<sample time='30:00 min' depth='0.0 m'/>
</divecomputer></dive>
</dives></divelog>`

// testLogger creates a logger that writes to stderr for test visibility.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

type corpusCount struct {
	n   int
	err error
}

func (c corpusCount) CountPassages(ctx context.Context) (int, error) { return c.n, c.err }

func connect(t *testing.T, corpus server.CorpusCounter) (*mcp.ClientSession, context.Context) {
	t.Helper()
	logger := testLogger()
	th := analysis.DefaultThresholds()
	store := session.NewMemoryStore(time.Hour, logger)
	dives := service.NewDiveService(store, th, nil, nil, nil, logger)
	box := tools.NewToolbox(&tools.Dependencies{Sessions: store, Uploader: dives, Thresholds: th, Logger: logger})

	srv := server.New("0.1.0-test", logger)
	srv.Setup(box, &tools.CurrentSession{}, store, corpus)

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	go func() { _ = srv.MCPServer().Run(ctx, serverTransport) }()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err, "client should connect successfully")
	t.Cleanup(func() { _ = cs.Close() })
	return cs, ctx
}

func readStatus(t *testing.T, ctx context.Context, cs *mcp.ClientSession) server.Status {
	t.Helper()
	res, err := cs.ReadResource(ctx, &mcp.ReadResourceParams{URI: server.StatusURI})
	require.NoError(t, err)
	require.Len(t, res.Contents, 1)
	var st server.Status
	require.NoError(t, json.Unmarshal([]byte(res.Contents[0].Text), &st))
	return st
}

func TestServerInitialize(t *testing.T) {
	cs, ctx := connect(t, corpusCount{n: 10})

	initResult := cs.InitializeResult()
	require.NotNil(t, initResult, "initialize result should not be nil")
	assert.Equal(t, "diveroast", initResult.ServerInfo.Name)
	assert.Equal(t, "0.1.0-test", initResult.ServerInfo.Version)

	toolsResult, err := cs.ListTools(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, toolsResult.Tools, 7)

	resources, err := cs.ListResources(ctx, nil)
	require.NoError(t, err)
	require.Len(t, resources.Resources, 1)
	assert.Equal(t, server.StatusURI, resources.Resources[0].URI)
}

func TestStatusResource(t *testing.T) {
	cs, ctx := connect(t, corpusCount{n: 10})

	st := readStatus(t, ctx, cs)
	require.NotNil(t, st.CorpusPassages)
	assert.Equal(t, 10, *st.CorpusPassages)
	assert.Empty(t, st.CurrentSession)
	assert.Zero(t, st.DiveCount)

	res, err := cs.CallTool(ctx, &mcp.CallToolParams{Name: "parse_dive_log", Arguments: map[string]any{"raw": logbook}})
	require.NoError(t, err)
	require.False(t, res.IsError)

	st = readStatus(t, ctx, cs)
	assert.NotEmpty(t, st.CurrentSession)
	assert.Equal(t, 1, st.DiveCount)
}

func TestStatusResource_CorpusDown(t *testing.T) {
	cs, ctx := connect(t, corpusCount{err: errors.New("connection refused")})
	st := readStatus(t, ctx, cs)
	assert.Nil(t, st.CorpusPassages)
	assert.Contains(t, st.CorpusError, "refused")
}

func TestServerRespondsToMultipleRequests(t *testing.T) {
	cs, ctx := connect(t, nil)

	for i := 0; i < 3; i++ {
		_, err := cs.ListTools(ctx, nil)
		require.NoError(t, err, "request %d should succeed", i)
	}

	res, err := cs.CallTool(ctx, &mcp.CallToolParams{
		Name:      "analyze_dive_profile",
		Arguments: map[string]any{"dive_id": strings.Repeat("9", 10)},
	})
	require.NoError(t, err)
	assert.True(t, res.IsError, "no log loaded yet")
}
