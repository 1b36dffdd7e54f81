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

// UserStoryTools exposes the user story resource.
type UserStoryTools struct {
	gw Executor
}

// NewUserStoryTools creates the user story tool set.
func NewUserStoryTools(gw Executor) *UserStoryTools {
	return &UserStoryTools{gw: gw}
}

// Register adds all user story tools to the server.
func (t *UserStoryTools) Register(s *mcpserver.MCPServer) {
	s.AddTool(t.listDefinition(), t.handleList)
	s.AddTool(t.getDefinition(), t.handleGet)
	s.AddTool(t.createDefinition(), t.handleCreate)
	s.AddTool(t.updateDefinition(), t.handleUpdate)
}

func (t *UserStoryTools) listDefinition() mcp.Tool {
	return mcp.NewTool("taiga_userstories_list",
		mcp.WithDescription("List user stories, filtered by project and optionally by milestone or status."),
		mcp.WithNumber("project_id",
			mcp.Required(),
			mcp.Description("Project id to list stories for."),
		),
		mcp.WithNumber("milestone",
			mcp.Description("Filter by milestone (sprint) id."),
		),
		mcp.WithNumber("status",
			mcp.Description("Filter by status id."),
		),
		mcp.WithBoolean("all_pages",
			mcp.Description("Return the full unpaginated list."),
		),
	)
}

func (t *UserStoryTools) handleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	project := int(req.GetFloat("project_id", 0))
	if project <= 0 {
		return mcp.NewToolResultError("project_id is required"), nil
	}

	b := taiga.NewRequest(http.MethodGet, "/userstories").
		Query("project", strconv.Itoa(project))
	if milestone := int(req.GetFloat("milestone", 0)); milestone > 0 {
		b = b.Query("milestone", strconv.Itoa(milestone))
	}
	if status := int(req.GetFloat("status", 0)); status > 0 {
		b = b.Query("status", strconv.Itoa(status))
	}
	if req.GetBool("all_pages", false) {
		b = b.DisablePagination()
	}

	d, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("building user stories list request: %w", err)
	}
	return run(ctx, t.gw, d)
}

func (t *UserStoryTools) getDefinition() mcp.Tool {
	return mcp.NewTool("taiga_userstory_get",
		mcp.WithDescription("Fetch one user story by id, including its version field needed for updates."),
		mcp.WithNumber("userstory_id",
			mcp.Required(),
			mcp.Description("User story id."),
		),
	)
}

func (t *UserStoryTools) handleGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := int(req.GetFloat("userstory_id", 0))
	if id <= 0 {
		return mcp.NewToolResultError("userstory_id is required"), nil
	}

	d, err := taiga.NewRequest(http.MethodGet, fmt.Sprintf("/userstories/%d", id)).Build()
	if err != nil {
		return nil, fmt.Errorf("building user story get request: %w", err)
	}
	return run(ctx, t.gw, d)
}

func (t *UserStoryTools) createDefinition() mcp.Tool {
	return mcp.NewTool("taiga_userstory_create",
		mcp.WithDescription("Create a user story in a project."),
		mcp.WithNumber("project_id",
			mcp.Required(),
			mcp.Description("Project id."),
		),
		mcp.WithString("subject",
			mcp.Required(),
			mcp.Description("Story subject (title)."),
		),
		mcp.WithString("description",
			mcp.Description("Story description in markdown."),
		),
		mcp.WithNumber("milestone",
			mcp.Description("Milestone (sprint) id to assign the story to."),
		),
	)
}

func (t *UserStoryTools) handleCreate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	project := int(req.GetFloat("project_id", 0))
	subject := req.GetString("subject", "")
	if project <= 0 || subject == "" {
		return mcp.NewToolResultError("project_id and subject are required"), nil
	}

	body := []byte(`{}`)
	body, _ = sjson.SetBytes(body, "project", project)
	body, _ = sjson.SetBytes(body, "subject", subject)
	if description := req.GetString("description", ""); description != "" {
		body, _ = sjson.SetBytes(body, "description", description)
	}
	if milestone := int(req.GetFloat("milestone", 0)); milestone > 0 {
		body, _ = sjson.SetBytes(body, "milestone", milestone)
	}

	d, err := taiga.NewRequest(http.MethodPost, "/userstories").
		Body(body).
		Invalidates(taiga.GetKey("/userstories"), taiga.GetKey("/milestones")).
		Build()
	if err != nil {
		return nil, fmt.Errorf("building user story create request: %w", err)
	}
	return run(ctx, t.gw, d)
}

func (t *UserStoryTools) updateDefinition() mcp.Tool {
	return mcp.NewTool("taiga_userstory_update",
		mcp.WithDescription(
			"Update a user story's subject, description, status or milestone. "+
				"Requires the current version field; fetch it with "+
				"taiga_userstory_get first.",
		),
		mcp.WithNumber("userstory_id",
			mcp.Required(),
			mcp.Description("User story id."),
		),
		mcp.WithNumber("version",
			mcp.Required(),
			mcp.Description("Current story version."),
		),
		mcp.WithString("subject",
			mcp.Description("New subject."),
		),
		mcp.WithString("description",
			mcp.Description("New description."),
		),
		mcp.WithNumber("status",
			mcp.Description("New status id."),
		),
		mcp.WithNumber("milestone",
			mcp.Description("New milestone id."),
		),
	)
}

func (t *UserStoryTools) handleUpdate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := int(req.GetFloat("userstory_id", 0))
	version := int(req.GetFloat("version", 0))
	if id <= 0 || version <= 0 {
		return mcp.NewToolResultError("userstory_id and version are required"), nil
	}

	body := []byte(`{}`)
	body, _ = sjson.SetBytes(body, "version", version)
	if subject := req.GetString("subject", ""); subject != "" {
		body, _ = sjson.SetBytes(body, "subject", subject)
	}
	if description := req.GetString("description", ""); description != "" {
		body, _ = sjson.SetBytes(body, "description", description)
	}
	if status := int(req.GetFloat("status", 0)); status > 0 {
		body, _ = sjson.SetBytes(body, "status", status)
	}
	if milestone := int(req.GetFloat("milestone", 0)); milestone > 0 {
		body, _ = sjson.SetBytes(body, "milestone", milestone)
	}

	d, err := taiga.NewRequest(http.MethodPatch, fmt.Sprintf("/userstories/%d", id)).
		Body(body).
		Invalidates(taiga.GetKey("/userstories"), taiga.GetKey("/milestones")).
		Build()
	if err != nil {
		return nil, fmt.Errorf("building user story update request: %w", err)
	}
	return run(ctx, t.gw, d)
}
