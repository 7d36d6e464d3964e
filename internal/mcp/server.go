// Package mcp exposes the engine over the Model Context Protocol:
// indexing, search, cache, and status tools backed by internal/engine.
// Grounded on the teacher's internal/mcp/{server.go,tools.go}
// (mark3labs/mcp-go tool registration and stdio transport), rewired from
// the teacher's embeddings-client/vectorDB/indexer/searcher quartet onto
// the new engine.Engine/search.Engine/scheduler.Scheduler stack.
package mcp

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/codeintel-dev/codeintel-engine/internal/config"
	"github.com/codeintel-dev/codeintel-engine/internal/engine"
)

// Server represents the MCP server
type Server struct {
	config    *config.Config
	mcpServer *server.MCPServer
	engine    *engine.Engine
	cancel    context.CancelFunc

	mu      sync.Mutex
	lastJob map[string]string // codebase id -> most recent job id
}

// NewServer creates a new MCP server instance, wiring the engine from cfg
// and starting its scheduler reactor loop in the background.
func NewServer(cfg *config.Config) (*Server, error) {
	ctx, cancel := context.WithCancel(context.Background())

	eng, err := engine.New(ctx, cfg)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to build engine: %w", err)
	}

	go func() {
		if err := eng.Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("scheduler exited: %v", err)
		}
	}()

	s := &Server{
		config:  cfg,
		engine:  eng,
		cancel:  cancel,
		lastJob: make(map[string]string),
	}

	mcpServer := server.NewMCPServer(
		cfg.Server.Name,
		cfg.Server.Version,
	)

	tools := s.getTools()
	for _, tool := range tools {
		mcpServer.AddTool(tool, s.createToolHandler(tool.Name))
	}

	s.mcpServer = mcpServer

	log.Printf("MCP server initialized: %s v%s", cfg.Server.Name, cfg.Server.Version)
	log.Printf("Registered %d tools", len(tools))

	return s, nil
}

// createToolHandler creates a handler function for a given tool name
func (s *Server) createToolHandler(toolName string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		log.Printf("Handling tool call: %s", toolName)

		var args map[string]interface{}
		if request.Params.Arguments != nil {
			var ok bool
			args, ok = request.Params.Arguments.(map[string]interface{})
			if !ok {
				return errorResult("invalid arguments format"), nil
			}
		} else {
			args = make(map[string]interface{})
		}

		switch toolName {
		case "search_code":
			return s.handleSearchCode(ctx, args)
		case "index_codebase":
			return s.handleIndexCodebase(ctx, args)
		case "get_index_status":
			return s.handleGetIndexStatus(ctx, args)
		case "clear_cache":
			return s.handleClearCache(ctx, args)
		case "get_suggestions":
			return s.handleGetSuggestions(ctx, args)
		default:
			return errorResult(fmt.Sprintf("unknown tool: %s", toolName)), nil
		}
	}
}

// Start starts the MCP server with stdio transport
func (s *Server) Start(ctx context.Context) error {
	log.Printf("Starting MCP server on stdio transport...")
	if err := server.ServeStdio(s.mcpServer); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Close stops the scheduler reactor loop and releases engine resources.
func (s *Server) Close() error {
	log.Printf("Shutting down MCP server...")
	s.cancel()
	return s.engine.Close()
}
