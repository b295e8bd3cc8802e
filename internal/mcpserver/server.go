// Package mcpserver exposes routing, blast radius, planning and runs as
// MCP tools over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/msageha/conductor/internal/logging"
	"github.com/msageha/conductor/internal/model"
	"github.com/msageha/conductor/internal/pipeline"
)

// Engine is the part of *pipeline.Engine the tools need.
type Engine interface {
	Run(ctx context.Context, req model.RunRequest) (*model.ExecutionTrace, error)
	Preview(ctx context.Context, req model.RunRequest) (*pipeline.PlanPreview, error)
}

type Options struct {
	Version string
	// AllowExecute lets the run tool dispatch real work. Without it every
	// run is forced to dry run.
	AllowExecute bool
	Logger       *logging.Logger
}

// New builds the MCP server with all conductor tools registered.
func New(engine Engine, source pipeline.Source, opts Options) *server.MCPServer {
	s := server.NewMCPServer(
		"conductor",
		opts.Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)

	route := NewRouteTool(source)
	s.AddTool(route.Definition(), route.Handle)

	blast := NewBlastRadiusTool(source)
	s.AddTool(blast.Definition(), blast.Handle)

	plan := NewPlanTool(engine)
	s.AddTool(plan.Definition(), plan.Handle)

	run := NewRunTool(engine, opts.AllowExecute, opts.Logger)
	s.AddTool(run.Definition(), run.Handle)

	return s
}

// Serve blocks serving MCP on stdin/stdout.
func Serve(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

const instructions = `conductor routes a change intent through an ownership tree, expands it with
a component dependency graph, gates each task by risk and aggregates results.
Use route to see which nodes own an intent, blast_radius to see what a change to
components affects, plan to preview tasks and approvals, and run to execute.`

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func stringSliceArg(req mcp.CallToolRequest, key string) []string {
	raw, ok := req.GetArguments()[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

func boolArg(req mcp.CallToolRequest, key string, defaultVal bool) bool {
	v, ok := req.GetArguments()[key].(bool)
	if !ok {
		return defaultVal
	}
	return v
}

// requestArg builds a run request from the shared intent/target/direct
// arguments.
func requestArg(req mcp.CallToolRequest) (model.RunRequest, error) {
	rr := model.RunRequest{
		Intent:     req.GetString("intent", ""),
		TargetNode: req.GetString("target_node", ""),
	}
	if node := req.GetString("direct_node", ""); node != "" {
		rr.Direct = &model.DirectRequest{Node: node, TaskText: rr.Intent}
	}
	if rr.Intent == "" {
		return rr, fmt.Errorf("'intent' is required")
	}
	return rr, nil
}

func requestParams() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("intent",
			mcp.Required(),
			mcp.Description("Free-text description of the change"),
		),
		mcp.WithString("target_node",
			mcp.Description("Restrict decomposition to the subtree under this node"),
		),
		mcp.WithString("direct_node",
			mcp.Description("Skip routing and build a single task at this node"),
		),
	}
}
