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

// WikiTools exposes project wiki pages.
type WikiTools struct {
	gw Executor
}

// NewWikiTools creates the wiki tool set.
func NewWikiTools(gw Executor) *WikiTools {
	return &WikiTools{gw: gw}
}

// Register adds all wiki tools to the server.
func (t *WikiTools) Register(s *mcpserver.MCPServer) {
	s.AddTool(t.listDefinition(), t.handleList)
	s.AddTool(t.getDefinition(), t.handleGet)
	s.AddTool(t.createDefinition(), t.handleCreate)
}

func (t *WikiTools) listDefinition() mcp.Tool {
	return mcp.NewTool("taiga_wiki_list",
		mcp.WithDescription("List wiki pages in a project."),
		mcp.WithNumber("project_id",
			mcp.Required(),
			mcp.Description("Project id."),
		),
	)
}

func (t *WikiTools) handleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	project := int(req.GetFloat("project_id", 0))
	if project <= 0 {
		return mcp.NewToolResultError("project_id is required"), nil
	}

	d, err := taiga.NewRequest(http.MethodGet, "/wiki").
		Query("project", strconv.Itoa(project)).
		Build()
	if err != nil {
		return nil, fmt.Errorf("building wiki list request: %w", err)
	}
	return run(ctx, t.gw, d)
}

func (t *WikiTools) getDefinition() mcp.Tool {
	return mcp.NewTool("taiga_wiki_get",
		mcp.WithDescription("Fetch one wiki page by id."),
		mcp.WithNumber("page_id",
			mcp.Required(),
			mcp.Description("Wiki page id."),
		),
	)
}

func (t *WikiTools) handleGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := int(req.GetFloat("page_id", 0))
	if id <= 0 {
		return mcp.NewToolResultError("page_id is required"), nil
	}

	d, err := taiga.NewRequest(http.MethodGet, fmt.Sprintf("/wiki/%d", id)).Build()
	if err != nil {
		return nil, fmt.Errorf("building wiki get request: %w", err)
	}
	return run(ctx, t.gw, d)
}

func (t *WikiTools) createDefinition() mcp.Tool {
	return mcp.NewTool("taiga_wiki_create",
		mcp.WithDescription("Create a wiki page in a project."),
		mcp.WithNumber("project_id",
			mcp.Required(),
			mcp.Description("Project id."),
		),
		mcp.WithString("slug",
			mcp.Required(),
			mcp.Description("URL slug for the page, e.g. 'home' or 'release-notes'."),
		),
		mcp.WithString("content",
			mcp.Required(),
			mcp.Description("Page content in Taiga wiki markup."),
		),
	)
}

func (t *WikiTools) handleCreate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	project := int(req.GetFloat("project_id", 0))
	slug := req.GetString("slug", "")
	content := req.GetString("content", "")
	if project <= 0 || slug == "" || content == "" {
		return mcp.NewToolResultError("project_id, slug and content are required"), nil
	}

	body := []byte(`{}`)
	body, _ = sjson.SetBytes(body, "project", project)
	body, _ = sjson.SetBytes(body, "slug", slug)
	body, _ = sjson.SetBytes(body, "content", content)

	d, err := taiga.NewRequest(http.MethodPost, "/wiki").
		Body(body).
		Invalidates(taiga.GetKey("/wiki")).
		Build()
	if err != nil {
		return nil, fmt.Errorf("building wiki create request: %w", err)
	}
	return run(ctx, t.gw, d)
}
