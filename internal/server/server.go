// Package server provides the MCP server wrapper with lifecycle management.
package server

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/raphaelgruber/diveroast/internal/session"
	"github.com/raphaelgruber/diveroast/internal/tools"
)

// StatusURI is the resource describing the server's corpus and session.
const StatusURI = "diveroast://status"

// CorpusCounter reports the stored passage count.
type CorpusCounter interface {
	CountPassages(ctx context.Context) (int, error)
}

// Server wraps the MCP server with dependencies and lifecycle management.
type Server struct {
	mcp     *mcp.Server
	version string
	logger  *slog.Logger
}

// New creates a new MCP server with the given version and logger.
func New(version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	impl := &mcp.Implementation{
		Name:    "diveroast",
		Version: version,
	}

	mcpServer := mcp.NewServer(impl, nil)

	return &Server{
		mcp:     mcpServer,
		version: version,
		logger:  logger,
	}
}

// Run starts the server on stdio transport and blocks until disconnect or context cancellation.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server", "transport", "stdio")
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}

// MCPServer returns the underlying MCP server.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Setup adds the logging middleware, the dive tools and the status
// resource. corpus may be nil when no corpus store is reachable.
func (s *Server) Setup(box *tools.Toolbox, current *tools.CurrentSession, sessions session.Store, corpus CorpusCounter) {
	s.mcp.AddReceivingMiddleware(LoggingMiddleware(s.logger))
	tools.RegisterAll(s.mcp, box, current)
	s.mcp.AddResource(&mcp.Resource{
		URI:         StatusURI,
		Name:        "status",
		Description: "Corpus size and the dive log currently loaded",
		MIMEType:    "application/json",
	}, s.statusHandler(current, sessions, corpus))
}

// Status is the body of the status resource.
type Status struct {
	Version        string `json:"version"`
	CorpusPassages *int   `json:"corpus_passages"`
	CorpusError    string `json:"corpus_error,omitempty"`
	CurrentSession string `json:"current_session,omitempty"`
	DiveCount      int    `json:"dive_count"`
}

func (s *Server) statusHandler(current *tools.CurrentSession, sessions session.Store, corpus CorpusCounter) mcp.ResourceHandler {
	return func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		st := Status{Version: s.version, CurrentSession: current.ID()}
		if corpus != nil {
			if n, err := corpus.CountPassages(ctx); err != nil {
				st.CorpusError = err.Error()
			} else {
				st.CorpusPassages = &n
			}
		}
		if st.CurrentSession != "" {
			if sess, err := sessions.Get(st.CurrentSession); err == nil {
				st.DiveCount = len(sess.Features)
			} else {
				// Expired since it was parsed.
				st.CurrentSession = ""
			}
		}

		data, err := json.MarshalIndent(st, "", "  ")
		if err != nil {
			return nil, err
		}
		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{{
				URI:      StatusURI,
				MIMEType: "application/json",
				Text:     string(data),
			}},
		}, nil
	}
}
