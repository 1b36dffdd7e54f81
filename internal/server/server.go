// Package server assembles the bridge: config in, a ready MCP server out.
//
// The wiring order mirrors the dependency chain — transport, credentials,
// cache, limiter, telemetry, gateway, tools. Nothing in here contains
// behavior; it only plugs the pieces together.
package server

import (
	"fmt"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog/log"

	"github.com/taigabridge/taiga-bridge/internal/auth"
	"github.com/taigabridge/taiga-bridge/internal/cache"
	"github.com/taigabridge/taiga-bridge/internal/config"
	"github.com/taigabridge/taiga-bridge/internal/monitoring"
	"github.com/taigabridge/taiga-bridge/internal/ratelimit"
	"github.com/taigabridge/taiga-bridge/internal/taiga"
	"github.com/taigabridge/taiga-bridge/internal/tools"
)

// Version is overridden at build time via -ldflags.
var Version = "dev"

// Bridge is the assembled application.
type Bridge struct {
	mcp     *mcpserver.MCPServer
	tracker *monitoring.Tracker
	cache   *cache.Cache[taiga.CachedResponse]
}

// New wires every component from the validated configuration.
func New(cfg *config.Config) (*Bridge, error) {
	transport := taiga.NewTransport(cfg.Taiga.BaseURL, cfg.Timeout())

	authClient := auth.NewClient(transport, cfg.TokenTTL())
	storeOpts := []auth.StoreOption{
		auth.WithRefreshMargin(cfg.RefreshMargin()),
	}
	if cfg.Taiga.Token != "" {
		storeOpts = append(storeOpts, auth.WithStaticToken(cfg.Taiga.Token))
	}
	store := auth.NewStore(authClient, cfg.Taiga.Username, cfg.Taiga.Password, storeOpts...)

	tracker, err := monitoring.NewTracker(monitoring.TelemetryConfig{
		Enabled:     cfg.Monitoring.Enabled,
		LogPath:     cfg.Monitoring.LogPath,
		LogToStdout: cfg.Monitoring.LogToStdout,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing telemetry: %w", err)
	}

	gwOpts := []taiga.GatewayOption{
		taiga.WithCallTimeout(cfg.Timeout()),
		taiga.WithObserver(tracker.Observe),
	}
	if cfg.Retry.MaxAttempts > 0 {
		policy := taiga.DefaultPolicy()
		policy.MaxAttempts = cfg.Retry.MaxAttempts
		gwOpts = append(gwOpts, taiga.WithPolicy(policy))
	}

	var responses *cache.Cache[taiga.CachedResponse]
	if cfg.Cache.MaxEntries > 0 && cfg.CacheTTL() > 0 {
		responses = cache.New(cfg.Cache.MaxEntries, cfg.CacheTTL(),
			cache.WithSizer(func(v taiga.CachedResponse) int { return len(v.Body) }))
		gwOpts = append(gwOpts, taiga.WithCache(responses))
	}
	if cfg.RateLimit.RequestsPerSecond > 0 {
		gwOpts = append(gwOpts, taiga.WithLimiter(
			ratelimit.New(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.BucketCapacity)))
	}

	gateway := taiga.NewGateway(transport, store, gwOpts...)

	s := mcpserver.NewMCPServer(
		"taiga-bridge",
		Version,
		mcpserver.WithToolCapabilities(false),
		mcpserver.WithRecovery(),
	)

	for _, set := range []interface {
		Register(*mcpserver.MCPServer)
	}{
		tools.NewProjectTools(gateway),
		tools.NewUserStoryTools(gateway),
		tools.NewTaskTools(gateway),
		tools.NewIssueTools(gateway),
		tools.NewEpicTools(gateway),
		tools.NewMilestoneTools(gateway),
		tools.NewWikiTools(gateway),
	} {
		set.Register(s)
	}

	log.Info().
		Str("base_url", cfg.Taiga.BaseURL).
		Bool("cache", responses != nil).
		Float64("rps", cfg.RateLimit.RequestsPerSecond).
		Msg("server: bridge assembled")

	return &Bridge{mcp: s, tracker: tracker, cache: responses}, nil
}

// Serve runs the MCP server over stdio until the client disconnects.
// Stdout belongs to the protocol; all logging must go elsewhere.
func (b *Bridge) Serve() error {
	return mcpserver.ServeStdio(b.mcp)
}

// Close flushes telemetry and drops cached responses.
func (b *Bridge) Close() error {
	if b.cache != nil {
		b.cache.Purge()
	}
	return b.tracker.Close()
}
