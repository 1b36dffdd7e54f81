// Package tools implements the MCP tool wrappers over the API gateway.
//
// Each entity file owns one upstream resource (projects, user stories,
// tasks, ...). A wrapper never touches HTTP: it validates its arguments,
// builds a typed request descriptor, and hands it to the gateway. Everything
// resilient — caching, rate limiting, token refresh, retries — happens below.
package tools

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/tidwall/sjson"

	"github.com/taigabridge/taiga-bridge/internal/taiga"
)

// Executor runs one descriptor through the resilient access layer.
// Implemented by taiga.Gateway.
type Executor interface {
	Execute(ctx context.Context, d taiga.Descriptor, authContextKey string) (*taiga.Result, error)
}

// defaultAuthContext is used when the MCP session carries no identity.
const defaultAuthContext = "default"

// authKey derives the auth context from the MCP session, so parallel clients
// of one bridge process keep separate credential records.
func authKey(ctx context.Context) string {
	if session := mcpserver.ClientSessionFromContext(ctx); session != nil {
		if id := session.SessionID(); id != "" {
			return id
		}
	}
	return defaultAuthContext
}

// toolResult renders a gateway result for the MCP client. List responses get
// a pagination envelope; everything else passes the upstream JSON through.
func toolResult(res *taiga.Result) *mcp.CallToolResult {
	if res.Page == nil {
		return mcp.NewToolResultText(string(res.Payload))
	}

	env := []byte(`{}`)
	env, _ = sjson.SetRawBytes(env, "data", res.Payload)
	pageJSON, _ := json.Marshal(res.Page)
	env, _ = sjson.SetRawBytes(env, "pagination", pageJSON)
	return mcp.NewToolResultText(string(env))
}

// run executes a built descriptor and renders the outcome. Typed upstream
// failures become tool errors the model can read; they are not protocol
// errors.
func run(ctx context.Context, gw Executor, d taiga.Descriptor) (*mcp.CallToolResult, error) {
	res, err := gw.Execute(ctx, d, authKey(ctx))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return toolResult(res), nil
}
