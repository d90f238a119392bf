// Package mcp exposes workflow navigation and progress as MCP tools.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"workflow-engine/backend/internal/services"
	"workflow-engine/backend/pkg/models"
)

type Server struct {
	mcpServer   *server.MCPServer
	definitions *services.DefinitionService
	navigator   *services.Navigator
	logs        *services.ProcessLogService
}

// DependencyResult is returned by the check_dependency tool.
type DependencyResult struct {
	Attempted bool                      `json:"attempted"`
	Satisfied bool                      `json:"satisfied"`
	State     *services.DependencyState `json:"state,omitempty"`
}

func NewServer(definitions *services.DefinitionService, navigator *services.Navigator, logs *services.ProcessLogService) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			"Workflow Engine",
			"1.0.0",
			server.WithToolCapabilities(true),
		),
		definitions: definitions,
		navigator:   navigator,
		logs:        logs,
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
			"next_action",
			mcp.WithDescription("Resolve the next edge and node of a workflow from a source node"),
			mcp.WithString("workflow_code", mcp.Required(), mcp.Description("Workflow code, e.g. W12")),
			mcp.WithString("source_id", mcp.Description("Current node id; blank means start")),
			mcp.WithString("label", mcp.Description("Edge label to follow; blank or ... takes the first edge")),
		),
		s.handleNextAction,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"check_dependency",
			mcp.WithDescription("Check whether a prior step has finished for an application"),
			mcp.WithString("workflow_code", mcp.Required(), mcp.Description("Workflow code, e.g. W12")),
			mcp.WithString("app_id", mcp.Required(), mcp.Description("Application id")),
			mcp.WithString("source_id", mcp.Required(), mcp.Description("Step that must have finished")),
		),
		s.handleCheckDependency,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"workflow_progress",
			mcp.WithDescription("Report total and completed steps of an application in a workflow"),
			mcp.WithString("workflow_code", mcp.Required(), mcp.Description("Workflow code, e.g. W12")),
			mcp.WithString("app_id", mcp.Required(), mcp.Description("Application id")),
		),
		s.handleWorkflowProgress,
	)
}

func (s *Server) handleNextAction(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	code, ok := args["workflow_code"].(string)
	if !ok || code == "" {
		return mcp.NewToolResultError("Missing required parameter: workflow_code"), nil
	}
	source, _ := args["source_id"].(string)
	label, _ := args["label"].(string)

	graph, err := s.definitions.Get(ctx, code)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to load workflow: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(s.navigator.NextStep(ctx, graph, source, label))
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleCheckDependency(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	code, ok := args["workflow_code"].(string)
	if !ok || code == "" {
		return mcp.NewToolResultError("Missing required parameter: workflow_code"), nil
	}
	appID, ok := args["app_id"].(string)
	if !ok || appID == "" {
		return mcp.NewToolResultError("Missing required parameter: app_id"), nil
	}
	source, ok := args["source_id"].(string)
	if !ok || source == "" {
		return mcp.NewToolResultError("Missing required parameter: source_id"), nil
	}

	workflowID, err := models.ParseWorkflowID(code)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	state, err := s.logs.CheckDependency(ctx, source, appID, workflowID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to check dependency: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(DependencyResult{
		Attempted: state != nil,
		Satisfied: state != nil && state.Satisfied,
		State:     state,
	})
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleWorkflowProgress(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	code, ok := args["workflow_code"].(string)
	if !ok || code == "" {
		return mcp.NewToolResultError("Missing required parameter: workflow_code"), nil
	}
	appID, ok := args["app_id"].(string)
	if !ok || appID == "" {
		return mcp.NewToolResultError("Missing required parameter: app_id"), nil
	}

	graph, err := s.definitions.Get(ctx, code)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to load workflow: %v", err)), nil
	}
	progress, err := s.logs.CalcProgress(ctx, graph, appID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to calculate progress: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(progress)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func MountHTTPHandlers(mux *http.ServeMux, mcpServer *server.MCPServer) {
	// Use SSE server for /mcp/sse and /mcp/message endpoints
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
