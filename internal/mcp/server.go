// Package mcp exposes the analyzer over the Model Context Protocol. The
// server runs on stdio and calls the internal services directly.
//
// Every tool takes tenant_slug as a required argument. There is no default
// tenant and no way to address another tenant's data.
package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/airqoon/analyzer/internal/analyzer"
	"github.com/airqoon/analyzer/internal/rag"
)

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name. Default: "airqoon-analyzer"
	Name string

	// Version is the server version. Default: "dev"
	Version string

	// Logger for structured logging.
	Logger *zap.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "airqoon-analyzer",
		Version: "dev",
		Logger:  zap.NewNop(),
	}
}

// Server wires the analysis and RAG services into MCP tools.
type Server struct {
	mcp      *mcp.Server
	analyzer *analyzer.Service
	rag      *rag.Service
	logger   *zap.Logger
}

// NewServer creates the MCP server and registers all tools.
func NewServer(cfg *Config, analyzerSvc *analyzer.Service, ragSvc *rag.Service) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if analyzerSvc == nil {
		return nil, fmt.Errorf("analyzer service is required")
	}
	if ragSvc == nil {
		return nil, fmt.Errorf("rag service is required")
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		},
		nil,
	)

	s := &Server{
		mcp:      mcpServer,
		analyzer: analyzerSvc,
		rag:      ragSvc,
		logger:   cfg.Logger,
	}
	s.registerTools()
	return s, nil
}

// Run starts the MCP server on the stdio transport and blocks until ctx is
// canceled or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server on stdio transport")
	transport := &mcp.StdioTransport{}
	if err := s.mcp.Run(ctx, transport); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}
