package mcpserver

import (
	"context"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/msageha/conductor/internal/logging"
	"github.com/msageha/conductor/internal/model"
	"github.com/msageha/conductor/internal/pipeline"
	"github.com/msageha/conductor/internal/router"
)

type RouteTool struct {
	source pipeline.Source
}

func NewRouteTool(source pipeline.Source) *RouteTool {
	return &RouteTool{source: source}
}

func (t *RouteTool) Definition() mcp.Tool {
	return mcp.NewTool("route",
		mcp.WithDescription("Rank the tree nodes whose names and owned resources match an intent."),
		mcp.WithString("intent",
			mcp.Required(),
			mcp.Description("Free-text description of the change"),
		),
	)
}

func (t *RouteTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	intent := req.GetString("intent", "")
	if intent == "" {
		return mcp.NewToolResultError("'intent' is required"), nil
	}
	defs, err := t.source.Load(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("load definitions: %v", err)), nil
	}
	matches := router.Route(intent, defs.Tree)
	if matches == nil {
		matches = []router.Match{}
	}
	return jsonResult(matches)
}

type BlastRadiusTool struct {
	source pipeline.Source
}

func NewBlastRadiusTool(source pipeline.Source) *BlastRadiusTool {
	return &BlastRadiusTool{source: source}
}

func (t *BlastRadiusTool) Definition() mcp.Tool {
	return mcp.NewTool("blast_radius",
		mcp.WithDescription("Compute the components, tiers and owning nodes affected by changing the given components."),
		mcp.WithArray("components",
			mcp.Required(),
			mcp.Description("Changed component names"),
			mcp.WithStringItems(),
		),
	)
}

func (t *BlastRadiusTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	changed := stringSliceArg(req, "components")
	if len(changed) == 0 {
		return mcp.NewToolResultError("'components' must list at least one component"), nil
	}
	defs, err := t.source.Load(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("load definitions: %v", err)), nil
	}
	if defs.Graph == nil {
		return mcp.NewToolResultError("no component graph configured"), nil
	}
	return jsonResult(defs.Graph.BlastRadius(changed))
}

type PlanTool struct {
	engine Engine
}

func NewPlanTool(engine Engine) *PlanTool {
	return &PlanTool{engine: engine}
}

func (t *PlanTool) Definition() mcp.Tool {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription("Preview the tasks an intent decomposes into and the approval level of each. Nothing is executed."),
	}, requestParams()...)
	return mcp.NewTool("plan", opts...)
}

func (t *PlanTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rr, err := requestArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	p, err := t.engine.Preview(ctx, rr)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("plan failed: %v", err)), nil
	}
	return jsonResult(p)
}

type RunTool struct {
	engine       Engine
	allowExecute bool
	logger       *logging.Logger
}

func NewRunTool(engine Engine, allowExecute bool, logger *logging.Logger) *RunTool {
	return &RunTool{engine: engine, allowExecute: allowExecute, logger: logger.Named("mcp")}
}

func (t *RunTool) Definition() mcp.Tool {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription("Run an intent through every phase and return the execution trace. " +
			"Runs are dry unless the server was started with execution enabled."),
	}, requestParams()...)
	opts = append(opts, mcp.WithBoolean("dry_run",
		mcp.Description("Dispatch to the dry-run executor (default true)"),
	))
	return mcp.NewTool("run", opts...)
}

func (t *RunTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rr, err := requestArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rr.DryRun = boolArg(req, "dry_run", true)
	if !rr.DryRun && !t.allowExecute {
		t.logger.Warnf("run requested without dry_run; execution is disabled, forcing dry run")
		rr.DryRun = true
	}

	tr, err := t.engine.Run(ctx, rr)
	if err != nil {
		var cfgErr *model.ConfigError
		if errors.As(err, &cfgErr) || errors.Is(err, pipeline.ErrInvalidRequest) {
			return mcp.NewToolResultError(fmt.Sprintf("run aborted: %v", err)), nil
		}
		return nil, err
	}
	return jsonResult(tr)
}
