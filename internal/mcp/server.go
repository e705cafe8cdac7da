// Package mcp exposes workflow search, load and graph analysis as MCP tools.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"auraforce/backend/internal/services"
	"auraforce/backend/pkg/models"
)

// Server wraps the MCP protocol server around the workflow service. Tool
// calls run as the configured agent user; only workflows that user may read
// are visible.
type Server struct {
	mcpServer *server.MCPServer
	workflows *services.WorkflowService
	userID    string
}

// NewServer creates the MCP server and registers its tools.
func NewServer(workflows *services.WorkflowService, userID string) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			"AuraForce Workflows",
			"1.0.0",
			server.WithToolCapabilities(true),
		),
		workflows: workflows,
		userID:    userID,
	}

	s.registerTools()
	return s
}

func (s *Server) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool(
			"search_workflows",
			mcp.WithDescription("Search deployed workflows by text and tag"),
			mcp.WithString("query", mcp.Description("Free-text match against name and description")),
			mcp.WithString("tag", mcp.Description("Restrict results to workflows carrying this tag")),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results")),
		),
		s.handleSearchWorkflows,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"load_workflow",
			mcp.WithDescription("Load a workflow's bundle files and record the usage"),
			mcp.WithString("id", mcp.Required(), mcp.Description("The workflow ID")),
		),
		s.handleLoadWorkflow,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"workflow_graph",
			mcp.WithDescription("Analyze a workflow's dependency graph"),
			mcp.WithString("id", mcp.Required(), mcp.Description("The workflow ID")),
		),
		s.handleWorkflowGraph,
	)
}

func (s *Server) handleSearchWorkflows(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	opts := models.SearchOptions{UserID: s.userID}
	if q, ok := args["query"].(string); ok {
		opts.Query = q
	}
	if tag, ok := args["tag"].(string); ok {
		opts.Tag = tag
	}
	if limit, ok := args["limit"].(float64); ok && limit > 0 {
		opts.Limit = int(limit)
	}

	resp, err := s.workflows.Search(ctx, opts)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Search failed: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(resp)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleLoadWorkflow(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	id, ok := args["id"].(string)
	if !ok || id == "" {
		return mcp.NewToolResultError("Missing required parameter: id"), nil
	}

	workflow, files, err := s.workflows.LoadWorkflow(ctx, id, s.userID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to load workflow: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(map[string]any{
		"workflow":    workflow,
		"configFiles": files,
	})
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleWorkflowGraph(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	id, ok := args["id"].(string)
	if !ok || id == "" {
		return mcp.NewToolResultError("Missing required parameter: id"), nil
	}

	analysis, err := s.workflows.AnalyzeGraph(ctx, id, s.userID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to analyze graph: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(analysis)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

// MountHTTPHandlers serves the MCP server over SSE under /mcp.
func MountHTTPHandlers(mux *http.ServeMux, mcpServer *server.MCPServer) {
	sseServer := server.NewSSEServer(mcpServer, server.WithStaticBasePath("/mcp"))

	mux.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			sseServer.ServeHTTP(w, r)
			return
		}
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	})

	mux.HandleFunc("/mcp/sse", sseServer.ServeHTTP)
	mux.HandleFunc("/mcp/message", sseServer.ServeHTTP)
}
