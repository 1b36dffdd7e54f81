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

// ProjectTools exposes the project resource.
type ProjectTools struct {
	gw Executor
}

// NewProjectTools creates the project tool set.
func NewProjectTools(gw Executor) *ProjectTools {
	return &ProjectTools{gw: gw}
}

// Register adds all project tools to the server.
func (t *ProjectTools) Register(s *mcpserver.MCPServer) {
	s.AddTool(t.listDefinition(), t.handleList)
	s.AddTool(t.getDefinition(), t.handleGet)
	s.AddTool(t.createDefinition(), t.handleCreate)
	s.AddTool(t.updateDefinition(), t.handleUpdate)
	s.AddTool(t.deleteDefinition(), t.handleDelete)
}

func (t *ProjectTools) listDefinition() mcp.Tool {
	return mcp.NewTool("taiga_projects_list",
		mcp.WithDescription(
			"List projects visible to the authenticated user. "+
				"Optionally filter by member id or sort order.",
		),
		mcp.WithNumber("member",
			mcp.Description("Filter projects by member user id."),
		),
		mcp.WithString("order_by",
			mcp.Description("Sort order, e.g. 'memberships__user_order' or 'total_activity'."),
		),
		mcp.WithBoolean("all_pages",
			mcp.Description("Return the full unpaginated list."),
		),
	)
}

func (t *ProjectTools) handleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	b := taiga.NewRequest(http.MethodGet, "/projects").
		Query("order_by", req.GetString("order_by", ""))
	if member := int(req.GetFloat("member", 0)); member > 0 {
		b = b.Query("member", strconv.Itoa(member))
	}
	if req.GetBool("all_pages", false) {
		b = b.DisablePagination()
	}

	d, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("building projects list request: %w", err)
	}
	return run(ctx, t.gw, d)
}

func (t *ProjectTools) getDefinition() mcp.Tool {
	return mcp.NewTool("taiga_project_get",
		mcp.WithDescription("Fetch one project by id, including its version field needed for updates."),
		mcp.WithNumber("project_id",
			mcp.Required(),
			mcp.Description("Project id."),
		),
	)
}

func (t *ProjectTools) handleGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := int(req.GetFloat("project_id", 0))
	if id <= 0 {
		return mcp.NewToolResultError("project_id is required"), nil
	}

	d, err := taiga.NewRequest(http.MethodGet, fmt.Sprintf("/projects/%d", id)).Build()
	if err != nil {
		return nil, fmt.Errorf("building project get request: %w", err)
	}
	return run(ctx, t.gw, d)
}

func (t *ProjectTools) createDefinition() mcp.Tool {
	return mcp.NewTool("taiga_project_create",
		mcp.WithDescription("Create a project."),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Project name."),
		),
		mcp.WithString("description",
			mcp.Required(),
			mcp.Description("Project description."),
		),
		mcp.WithBoolean("is_private",
			mcp.Description("Create as a private project. Defaults to false."),
		),
	)
}

func (t *ProjectTools) handleCreate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := req.GetString("name", "")
	description := req.GetString("description", "")
	if name == "" || description == "" {
		return mcp.NewToolResultError("name and description are required"), nil
	}

	body := []byte(`{}`)
	body, _ = sjson.SetBytes(body, "name", name)
	body, _ = sjson.SetBytes(body, "description", description)
	if req.GetBool("is_private", false) {
		body, _ = sjson.SetBytes(body, "is_private", true)
	}

	d, err := taiga.NewRequest(http.MethodPost, "/projects").
		Body(body).
		Invalidates(taiga.GetKey("/projects")).
		Build()
	if err != nil {
		return nil, fmt.Errorf("building project create request: %w", err)
	}
	return run(ctx, t.gw, d)
}

func (t *ProjectTools) updateDefinition() mcp.Tool {
	return mcp.NewTool("taiga_project_update",
		mcp.WithDescription(
			"Update a project. Requires the current version field for "+
				"optimistic concurrency; fetch it with taiga_project_get first. "+
				"A version mismatch fails with a conflict — refetch and retry.",
		),
		mcp.WithNumber("project_id",
			mcp.Required(),
			mcp.Description("Project id."),
		),
		mcp.WithNumber("version",
			mcp.Required(),
			mcp.Description("Current project version."),
		),
		mcp.WithString("name",
			mcp.Description("New project name."),
		),
		mcp.WithString("description",
			mcp.Description("New project description."),
		),
	)
}

func (t *ProjectTools) handleUpdate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := int(req.GetFloat("project_id", 0))
	version := int(req.GetFloat("version", 0))
	if id <= 0 || version <= 0 {
		return mcp.NewToolResultError("project_id and version are required"), nil
	}

	body := []byte(`{}`)
	body, _ = sjson.SetBytes(body, "version", version)
	if name := req.GetString("name", ""); name != "" {
		body, _ = sjson.SetBytes(body, "name", name)
	}
	if description := req.GetString("description", ""); description != "" {
		body, _ = sjson.SetBytes(body, "description", description)
	}

	d, err := taiga.NewRequest(http.MethodPatch, fmt.Sprintf("/projects/%d", id)).
		Body(body).
		Invalidates(taiga.GetKey("/projects")).
		Build()
	if err != nil {
		return nil, fmt.Errorf("building project update request: %w", err)
	}
	return run(ctx, t.gw, d)
}

func (t *ProjectTools) deleteDefinition() mcp.Tool {
	return mcp.NewTool("taiga_project_delete",
		mcp.WithDescription("Delete a project permanently. This cannot be undone."),
		mcp.WithNumber("project_id",
			mcp.Required(),
			mcp.Description("Project id."),
		),
	)
}

func (t *ProjectTools) handleDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := int(req.GetFloat("project_id", 0))
	if id <= 0 {
		return mcp.NewToolResultError("project_id is required"), nil
	}

	d, err := taiga.NewRequest(http.MethodDelete, fmt.Sprintf("/projects/%d", id)).
		Invalidates(taiga.GetKey("/projects")).
		Build()
	if err != nil {
		return nil, fmt.Errorf("building project delete request: %w", err)
	}

	res, err := t.gw.Execute(ctx, d, authKey(ctx))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(res.Payload) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("Project %d deleted.", id)), nil
	}
	return toolResult(res), nil
}
