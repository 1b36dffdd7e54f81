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

// TaskTools exposes the task resource.
type TaskTools struct {
	gw Executor
}

// NewTaskTools creates the task tool set.
func NewTaskTools(gw Executor) *TaskTools {
	return &TaskTools{gw: gw}
}

// Register adds all task tools to the server.
func (t *TaskTools) Register(s *mcpserver.MCPServer) {
	s.AddTool(t.listDefinition(), t.handleList)
	s.AddTool(t.getDefinition(), t.handleGet)
	s.AddTool(t.createDefinition(), t.handleCreate)
	s.AddTool(t.updateDefinition(), t.handleUpdate)
}

func (t *TaskTools) listDefinition() mcp.Tool {
	return mcp.NewTool("taiga_tasks_list",
		mcp.WithDescription("List tasks in a project, optionally scoped to one user story."),
		mcp.WithNumber("project_id",
			mcp.Required(),
			mcp.Description("Project id."),
		),
		mcp.WithNumber("user_story",
			mcp.Description("Filter by parent user story id."),
		),
		mcp.WithBoolean("all_pages",
			mcp.Description("Return the full unpaginated list."),
		),
	)
}

func (t *TaskTools) handleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	project := int(req.GetFloat("project_id", 0))
	if project <= 0 {
		return mcp.NewToolResultError("project_id is required"), nil
	}

	b := taiga.NewRequest(http.MethodGet, "/tasks").
		Query("project", strconv.Itoa(project))
	if story := int(req.GetFloat("user_story", 0)); story > 0 {
		b = b.Query("user_story", strconv.Itoa(story))
	}
	if req.GetBool("all_pages", false) {
		b = b.DisablePagination()
	}

	d, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("building tasks list request: %w", err)
	}
	return run(ctx, t.gw, d)
}

func (t *TaskTools) getDefinition() mcp.Tool {
	return mcp.NewTool("taiga_task_get",
		mcp.WithDescription("Fetch one task by id, including its version field needed for updates."),
		mcp.WithNumber("task_id",
			mcp.Required(),
			mcp.Description("Task id."),
		),
	)
}

func (t *TaskTools) handleGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := int(req.GetFloat("task_id", 0))
	if id <= 0 {
		return mcp.NewToolResultError("task_id is required"), nil
	}

	d, err := taiga.NewRequest(http.MethodGet, fmt.Sprintf("/tasks/%d", id)).Build()
	if err != nil {
		return nil, fmt.Errorf("building task get request: %w", err)
	}
	return run(ctx, t.gw, d)
}

func (t *TaskTools) createDefinition() mcp.Tool {
	return mcp.NewTool("taiga_task_create",
		mcp.WithDescription("Create a task, optionally attached to a user story."),
		mcp.WithNumber("project_id",
			mcp.Required(),
			mcp.Description("Project id."),
		),
		mcp.WithString("subject",
			mcp.Required(),
			mcp.Description("Task subject (title)."),
		),
		mcp.WithString("description",
			mcp.Description("Task description in markdown."),
		),
		mcp.WithNumber("user_story",
			mcp.Description("Parent user story id."),
		),
	)
}

func (t *TaskTools) handleCreate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
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
	if story := int(req.GetFloat("user_story", 0)); story > 0 {
		body, _ = sjson.SetBytes(body, "user_story", story)
	}

	d, err := taiga.NewRequest(http.MethodPost, "/tasks").
		Body(body).
		Invalidates(taiga.GetKey("/tasks"), taiga.GetKey("/userstories")).
		Build()
	if err != nil {
		return nil, fmt.Errorf("building task create request: %w", err)
	}
	return run(ctx, t.gw, d)
}

func (t *TaskTools) updateDefinition() mcp.Tool {
	return mcp.NewTool("taiga_task_update",
		mcp.WithDescription(
			"Update a task's subject, description or status. Requires the "+
				"current version field; fetch it with taiga_task_get first.",
		),
		mcp.WithNumber("task_id",
			mcp.Required(),
			mcp.Description("Task id."),
		),
		mcp.WithNumber("version",
			mcp.Required(),
			mcp.Description("Current task version."),
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
	)
}

func (t *TaskTools) handleUpdate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := int(req.GetFloat("task_id", 0))
	version := int(req.GetFloat("version", 0))
	if id <= 0 || version <= 0 {
		return mcp.NewToolResultError("task_id and version are required"), nil
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

	d, err := taiga.NewRequest(http.MethodPatch, fmt.Sprintf("/tasks/%d", id)).
		Body(body).
		Invalidates(taiga.GetKey("/tasks")).
		Build()
	if err != nil {
		return nil, fmt.Errorf("building task update request: %w", err)
	}
	return run(ctx, t.gw, d)
}
