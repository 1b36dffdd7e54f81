package tools

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/tidwall/sjson"

	"github.com/taigabridge/taiga-bridge/internal/taiga"
)

// MilestoneTools exposes the milestone (sprint) resource.
type MilestoneTools struct {
	gw Executor
}

// NewMilestoneTools creates the milestone tool set.
func NewMilestoneTools(gw Executor) *MilestoneTools {
	return &MilestoneTools{gw: gw}
}

// Register adds all milestone tools to the server.
func (t *MilestoneTools) Register(s *mcpserver.MCPServer) {
	s.AddTool(t.listDefinition(), t.handleList)
	s.AddTool(t.getDefinition(), t.handleGet)
	s.AddTool(t.createDefinition(), t.handleCreate)
}

func (t *MilestoneTools) listDefinition() mcp.Tool {
	return mcp.NewTool("taiga_milestones_list",
		mcp.WithDescription("List milestones (sprints) in a project."),
		mcp.WithNumber("project_id",
			mcp.Required(),
			mcp.Description("Project id."),
		),
		mcp.WithBoolean("closed",
			mcp.Description("Include only closed milestones when true, only open ones when false. Omit for all."),
		),
	)
}

func (t *MilestoneTools) handleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	project := int(req.GetFloat("project_id", 0))
	if project <= 0 {
		return mcp.NewToolResultError("project_id is required"), nil
	}

	b := taiga.NewRequest(http.MethodGet, "/milestones").
		Query("project", strconv.Itoa(project))
	if args := req.GetArguments(); args != nil {
		if _, set := args["closed"]; set {
			b = b.Query("closed", strconv.FormatBool(req.GetBool("closed", false)))
		}
	}

	d, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("building milestones list request: %w", err)
	}
	return run(ctx, t.gw, d)
}

func (t *MilestoneTools) getDefinition() mcp.Tool {
	return mcp.NewTool("taiga_milestone_get",
		mcp.WithDescription("Fetch one milestone by id, including its user stories."),
		mcp.WithNumber("milestone_id",
			mcp.Required(),
			mcp.Description("Milestone id."),
		),
	)
}

func (t *MilestoneTools) handleGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := int(req.GetFloat("milestone_id", 0))
	if id <= 0 {
		return mcp.NewToolResultError("milestone_id is required"), nil
	}

	d, err := taiga.NewRequest(http.MethodGet, fmt.Sprintf("/milestones/%d", id)).Build()
	if err != nil {
		return nil, fmt.Errorf("building milestone get request: %w", err)
	}
	return run(ctx, t.gw, d)
}

func (t *MilestoneTools) createDefinition() mcp.Tool {
	return mcp.NewTool("taiga_milestone_create",
		mcp.WithDescription("Create a milestone (sprint) in a project."),
		mcp.WithNumber("project_id",
			mcp.Required(),
			mcp.Description("Project id."),
		),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Milestone name, e.g. 'Sprint 12'."),
		),
		mcp.WithString("estimated_start",
			mcp.Required(),
			mcp.Description("Start date, ISO format (YYYY-MM-DD)."),
		),
		mcp.WithString("estimated_finish",
			mcp.Required(),
			mcp.Description("Finish date, ISO format (YYYY-MM-DD)."),
		),
	)
}

func (t *MilestoneTools) handleCreate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	project := int(req.GetFloat("project_id", 0))
	name := req.GetString("name", "")
	start := req.GetString("estimated_start", "")
	finish := req.GetString("estimated_finish", "")
	if project <= 0 || name == "" || start == "" || finish == "" {
		return mcp.NewToolResultError("project_id, name, estimated_start and estimated_finish are required"), nil
	}

	body := []byte(`{}`)
	body, _ = sjson.SetBytes(body, "project", project)
	body, _ = sjson.SetBytes(body, "name", name)
	body, _ = sjson.SetBytes(body, "estimated_start", start)
	body, _ = sjson.SetBytes(body, "estimated_finish", finish)

	d, err := taiga.NewRequest(http.MethodPost, "/milestones").
		Body(body).
		Invalidates(taiga.GetKey("/milestones")).
		Build()
	if err != nil {
		return nil, fmt.Errorf("building milestone create request: %w", err)
	}
	return run(ctx, t.gw, d)
}
