// Package mcp exposes the research pipeline as Model Context Protocol tools
// over stdio.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/felixgeelhaar/scribe/internal/guard"
	"github.com/felixgeelhaar/scribe/internal/memory"
	"github.com/felixgeelhaar/scribe/internal/observe"
	"github.com/felixgeelhaar/scribe/internal/orchestrate"
	"github.com/felixgeelhaar/scribe/internal/runtime"
)

// Pipeline runs one research query. *orchestrate.Orchestrator implements it.
type Pipeline interface {
	Run(ctx context.Context, sessionID, query string) (*orchestrate.Result, error)
}

// Recaller looks up the newest memory record of a session.
type Recaller interface {
	FindLastBySession(sessionID string) (memory.Record, bool)
}

// Server holds the dependencies of the MCP tool handlers.
type Server struct {
	pipeline Pipeline
	memory   Recaller
	guard    *guard.Guard
	tools    *runtime.ToolRegistry
	obs      *observe.Observer
}

func NewServer(p Pipeline, mem Recaller, g *guard.Guard, obs *observe.Observer) *Server {
	if g == nil {
		g = guard.New(guard.DefaultPolicy)
	}
	return &Server{pipeline: p, memory: mem, guard: g, obs: observe.OrNop(obs)}
}

// WithTools also exposes every tool in reg, taking a single "input" string.
func (s *Server) WithTools(reg *runtime.ToolRegistry) *Server {
	s.tools = reg
	return s
}

// RunOutput is the run_pipeline result payload.
type RunOutput struct {
	SessionID string `json:"session_id"`
	orchestrate.Result
}

// MCPServer builds the protocol server with all tools registered.
func (s *Server) MCPServer(version string) *server.MCPServer {
	srv := server.NewMCPServer(
		"scribe",
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)
	srv.AddTool(s.RunPipelineTool(), s.HandleRunPipeline)
	srv.AddTool(s.RecallSessionTool(), s.HandleRecallSession)

	if s.tools != nil {
		for _, def := range s.tools.List() {
			srv.AddTool(registryTool(def), s.registryHandler(def.Name))
		}
	}
	return srv
}

// Serve runs the server on stdin/stdout until the client disconnects.
func (s *Server) Serve(version string) error {
	return server.ServeStdio(s.MCPServer(version))
}

func (s *Server) RunPipelineTool() mcp.Tool {
	return mcp.NewTool("run_pipeline",
		mcp.WithDescription(
			"Research a topic and write a short technical brief. Runs the research, "+
				"summarize, critique and write stages and returns every stage's output.",
		),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("The topic or question to research"),
		),
		mcp.WithString("session_id",
			mcp.Description("Session to record the run under; a new one is created when omitted"),
		),
	)
}

func (s *Server) HandleRunPipeline(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := req.GetString("query", "")
	if v := s.guard.CheckQuery(query); v != nil {
		return mcp.NewToolResultError(v.Error()), nil
	}
	sessionID := req.GetString("session_id", "")

	res, err := s.pipeline.Run(ctx, sessionID, query)
	if err != nil {
		s.obs.Log().Error().Str("component", "mcp").Err(err).Msg("run_pipeline failed")
		return mcp.NewToolResultError(fmt.Sprintf("pipeline failed: %v", err)), nil
	}

	data, err := json.MarshalIndent(RunOutput{SessionID: res.SessionID, Result: *res}, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) RecallSessionTool() mcp.Tool {
	return mcp.NewTool("recall_session",
		mcp.WithDescription("Return the most recent stored run for a session."),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session identifier"),
		),
	)
}

func (s *Server) HandleRecallSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("session_id", "")
	if id == "" {
		return mcp.NewToolResultError("'session_id' is required"), nil
	}
	if s.memory == nil {
		return mcp.NewToolResultError("memory is not configured"), nil
	}

	rec, ok := s.memory.FindLastBySession(id)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("no runs recorded for session %q", id)), nil
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}

func registryTool(def runtime.ToolDefinition) mcp.Tool {
	desc := "Input for the tool"
	if d, ok := def.Parameters["description"].(string); ok && d != "" {
		desc = d
	}
	return mcp.NewTool(def.Name,
		mcp.WithDescription(def.Description),
		mcp.WithString("input",
			mcp.Required(),
			mcp.Description(desc),
		),
	)
}

func (s *Server) registryHandler(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		res := s.tools.Call(ctx, name, req.GetString("input", ""))
		if !res.OK() {
			return mcp.NewToolResultError(res.Error), nil
		}
		data, err := json.MarshalIndent(res.Result, "", "  ")
		if err != nil {
			return nil, err
		}
		return mcp.NewToolResultText(string(data)), nil
	}
}
