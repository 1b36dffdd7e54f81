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

// IssueTools exposes the issue resource.
type IssueTools struct {
	gw Executor
}

// NewIssueTools creates the issue tool set.
func NewIssueTools(gw Executor) *IssueTools {
	return &IssueTools{gw: gw}
}

// Register adds all issue tools to the server.
func (t *IssueTools) Register(s *mcpserver.MCPServer) {
	s.AddTool(t.listDefinition(), t.handleList)
	s.AddTool(t.getDefinition(), t.handleGet)
	s.AddTool(t.createDefinition(), t.handleCreate)
	s.AddTool(t.updateDefinition(), t.handleUpdate)
}

func (t *IssueTools) listDefinition() mcp.Tool {
	return mcp.NewTool("taiga_issues_list",
		mcp.WithDescription("List issues in a project, optionally filtered by status or severity."),
		mcp.WithNumber("project_id",
			mcp.Required(),
			mcp.Description("Project id."),
		),
		mcp.WithNumber("status",
			mcp.Description("Filter by status id."),
		),
		mcp.WithNumber("severity",
			mcp.Description("Filter by severity id."),
		),
		mcp.WithBoolean("all_pages",
			mcp.Description("Return the full unpaginated list."),
		),
	)
}

func (t *IssueTools) handleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	project := int(req.GetFloat("project_id", 0))
	if project <= 0 {
		return mcp.NewToolResultError("project_id is required"), nil
	}

	b := taiga.NewRequest(http.MethodGet, "/issues").
		Query("project", strconv.Itoa(project))
	if status := int(req.GetFloat("status", 0)); status > 0 {
		b = b.Query("status", strconv.Itoa(status))
	}
	if severity := int(req.GetFloat("severity", 0)); severity > 0 {
		b = b.Query("severity", strconv.Itoa(severity))
	}
	if req.GetBool("all_pages", false) {
		b = b.DisablePagination()
	}

	d, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("building issues list request: %w", err)
	}
	return run(ctx, t.gw, d)
}

func (t *IssueTools) getDefinition() mcp.Tool {
	return mcp.NewTool("taiga_issue_get",
		mcp.WithDescription("Fetch one issue by id, including its version field needed for updates."),
		mcp.WithNumber("issue_id",
			mcp.Required(),
			mcp.Description("Issue id."),
		),
	)
}

func (t *IssueTools) handleGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := int(req.GetFloat("issue_id", 0))
	if id <= 0 {
		return mcp.NewToolResultError("issue_id is required"), nil
	}

	d, err := taiga.NewRequest(http.MethodGet, fmt.Sprintf("/issues/%d", id)).Build()
	if err != nil {
		return nil, fmt.Errorf("building issue get request: %w", err)
	}
	return run(ctx, t.gw, d)
}

func (t *IssueTools) createDefinition() mcp.Tool {
	return mcp.NewTool("taiga_issue_create",
		mcp.WithDescription("Create an issue in a project."),
		mcp.WithNumber("project_id",
			mcp.Required(),
			mcp.Description("Project id."),
		),
		mcp.WithString("subject",
			mcp.Required(),
			mcp.Description("Issue subject (title)."),
		),
		mcp.WithString("description",
			mcp.Description("Issue description in markdown."),
		),
		mcp.WithNumber("priority",
			mcp.Description("Priority id."),
		),
		mcp.WithNumber("severity",
			mcp.Description("Severity id."),
		),
		mcp.WithNumber("type",
			mcp.Description("Issue type id."),
		),
	)
}

func (t *IssueTools) handleCreate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
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
	for _, field := range []string{"priority", "severity", "type"} {
		if v := int(req.GetFloat(field, 0)); v > 0 {
			body, _ = sjson.SetBytes(body, field, v)
		}
	}

	d, err := taiga.NewRequest(http.MethodPost, "/issues").
		Body(body).
		Invalidates(taiga.GetKey("/issues")).
		Build()
	if err != nil {
		return nil, fmt.Errorf("building issue create request: %w", err)
	}
	return run(ctx, t.gw, d)
}

func (t *IssueTools) updateDefinition() mcp.Tool {
	return mcp.NewTool("taiga_issue_update",
		mcp.WithDescription(
			"Update an issue's subject, description or status. Requires the "+
				"current version field; fetch it with taiga_issue_get first.",
		),
		mcp.WithNumber("issue_id",
			mcp.Required(),
			mcp.Description("Issue id."),
		),
		mcp.WithNumber("version",
			mcp.Required(),
			mcp.Description("Current issue version."),
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

func (t *IssueTools) handleUpdate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := int(req.GetFloat("issue_id", 0))
	version := int(req.GetFloat("version", 0))
	if id <= 0 || version <= 0 {
		return mcp.NewToolResultError("issue_id and version are required"), nil
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

	d, err := taiga.NewRequest(http.MethodPatch, fmt.Sprintf("/issues/%d", id)).
		Body(body).
		Invalidates(taiga.GetKey("/issues")).
		Build()
	if err != nil {
		return nil, fmt.Errorf("building issue update request: %w", err)
	}
	return run(ctx, t.gw, d)
}
