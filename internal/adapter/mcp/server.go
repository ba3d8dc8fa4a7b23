// Package mcp exposes the review orchestration surface over the Model
// Context Protocol so inspector models can poll builds and submit
// verdicts as tool calls.
package mcp

import (
	"context"
	"net/http"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/Strob0t/ReviewLoop/internal/domain/build"
	"github.com/Strob0t/ReviewLoop/internal/domain/inspection"
	"github.com/Strob0t/ReviewLoop/internal/domain/revision"
	"github.com/Strob0t/ReviewLoop/internal/service"
)

// BuildReader is the build lookup surface the tools need.
type BuildReader interface {
	Get(ctx context.Context, buildID string) (*build.Build, error)
	LatestReady(ctx context.Context, projectID string) (*build.Build, error)
}

// ReviewOps is the verdict and revision surface the tools need.
type ReviewOps interface {
	SubmitInspection(ctx context.Context, req *inspection.SubmitRequest) (*inspection.Inspection, bool, error)
	RequestRevision(ctx context.Context, req *revision.CreateRequest) (*revision.Revision, error)
	PendingRevisions(ctx context.Context, projectID, buildID string) ([]*revision.Revision, error)
	ApproveBuild(ctx context.Context, buildID, approvedBy string) (*service.ApprovalResult, error)
}

// ServerConfig identifies the MCP server to connecting clients.
type ServerConfig struct {
	Name    string
	Version string
}

// ServerDeps holds the services the tools delegate to. Nil fields make
// the corresponding tools return a configuration error result.
type ServerDeps struct {
	Builds  BuildReader
	Reviews ReviewOps
}

// Server exposes review orchestration tools over MCP.
type Server struct {
	deps      ServerDeps
	mcpServer *mcpserver.MCPServer
}

// NewServer creates the MCP server and registers all tools.
func NewServer(cfg ServerConfig, deps ServerDeps) *Server {
	s := &Server{
		deps: deps,
		mcpServer: mcpserver.NewMCPServer(cfg.Name, cfg.Version,
			mcpserver.WithToolCapabilities(true)),
	}
	s.registerTools()
	return s
}

// MCPServer returns the underlying mcp-go server, mainly for tests.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

// Handler returns the streamable HTTP transport for mounting on an
// existing router, e.g. at /mcp.
func (s *Server) Handler() http.Handler {
	return mcpserver.NewStreamableHTTPServer(s.mcpServer)
}
