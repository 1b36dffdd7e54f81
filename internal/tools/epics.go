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

// EpicTools exposes the epic resource.
type EpicTools struct {
	gw Executor
}

// NewEpicTools creates the epic tool set.
func NewEpicTools(gw Executor) *EpicTools {
	return &EpicTools{gw: gw}
}

// Register adds all epic tools to the server.
func (t *EpicTools) Register(s *mcpserver.MCPServer) {
	s.AddTool(t.listDefinition(), t.handleList)
	s.AddTool(t.getDefinition(), t.handleGet)
	s.AddTool(t.createDefinition(), t.handleCreate)
}

func (t *EpicTools) listDefinition() mcp.Tool {
	return mcp.NewTool("taiga_epics_list",
		mcp.WithDescription("List epics in a project."),
		mcp.WithNumber("project_id",
			mcp.Required(),
			mcp.Description("Project id."),
		),
		mcp.WithBoolean("all_pages",
			mcp.Description("Return the full unpaginated list."),
		),
	)
}

func (t *EpicTools) handleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	project := int(req.GetFloat("project_id", 0))
	if project <= 0 {
		return mcp.NewToolResultError("project_id is required"), nil
	}

	b := taiga.NewRequest(http.MethodGet, "/epics").
		Query("project", strconv.Itoa(project))
	if req.GetBool("all_pages", false) {
		b = b.DisablePagination()
	}

	d, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("building epics list request: %w", err)
	}
	return run(ctx, t.gw, d)
}

func (t *EpicTools) getDefinition() mcp.Tool {
	return mcp.NewTool("taiga_epic_get",
		mcp.WithDescription("Fetch one epic by id."),
		mcp.WithNumber("epic_id",
			mcp.Required(),
			mcp.Description("Epic id."),
		),
	)
}

func (t *EpicTools) handleGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := int(req.GetFloat("epic_id", 0))
	if id <= 0 {
		return mcp.NewToolResultError("epic_id is required"), nil
	}

	d, err := taiga.NewRequest(http.MethodGet, fmt.Sprintf("/epics/%d", id)).Build()
	if err != nil {
		return nil, fmt.Errorf("building epic get request: %w", err)
	}
	return run(ctx, t.gw, d)
}

func (t *EpicTools) createDefinition() mcp.Tool {
	return mcp.NewTool("taiga_epic_create",
		mcp.WithDescription("Create an epic in a project."),
		mcp.WithNumber("project_id",
			mcp.Required(),
			mcp.Description("Project id."),
		),
		mcp.WithString("subject",
			mcp.Required(),
			mcp.Description("Epic subject (title)."),
		),
		mcp.WithString("description",
			mcp.Description("Epic description in markdown."),
		),
		mcp.WithString("color",
			mcp.Description("Display color, e.g. '#fc8eac'."),
		),
	)
}

func (t *EpicTools) handleCreate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
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
	if color := req.GetString("color", ""); color != "" {
		body, _ = sjson.SetBytes(body, "color", color)
	}

	d, err := taiga.NewRequest(http.MethodPost, "/epics").
		Body(body).
		Invalidates(taiga.GetKey("/epics")).
		Build()
	if err != nil {
		return nil, fmt.Errorf("building epic create request: %w", err)
	}
	return run(ctx, t.gw, d)
}
