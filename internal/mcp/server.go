// Package mcp exposes the journal as Model Context Protocol tools over stdio.
package mcp

import (
	"context"
	"database/sql"
	"sort"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hpungsan/moodlog/internal/config"
	"github.com/hpungsan/moodlog/internal/live"
	"github.com/hpungsan/moodlog/internal/mood"
	"github.com/hpungsan/moodlog/internal/ops"
)

// SessionSource yields the signed-in user for a tool call. Implemented by
// *auth.Manager.
type SessionSource interface {
	Refresh(ctx context.Context) (*mood.Session, error)
}

// Deps are the collaborators tool handlers call into.
type Deps struct {
	DB        *sql.DB
	Config    *config.Config
	Hub       *live.Hub // optional; appends are published when set
	Sessions  SessionSource
	Analyzer  ops.Analyzer
	Responder ops.Responder
	Version   string
}

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

var toolRegistry = map[string]toolEntry{
	"mood_log": {
		def:     logToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleLog },
	},
	"mood_list": {
		def:     listToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleList },
	},
	"mood_timeline": {
		def:     timelineToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleTimeline },
	},
	"mood_stats": {
		def:     statsToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleStats },
	},
	"mood_insights": {
		def:     insightsToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleInsights },
	},
	"mood_tips": {
		def:     tipsToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleTips },
	},
	"mood_ask": {
		def:     askToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleAsk },
	},
}

// AllToolNames returns every tool name, sorted.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateDisabledTools returns the names in the list that are not tools.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// NewServer creates an MCP server with the journal tools registered,
// minus those listed in the config's DisabledTools.
func NewServer(deps Deps) *server.MCPServer {
	s := server.NewMCPServer(
		"moodlog",
		deps.Version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(deps)

	disabled := make(map[string]bool)
	if deps.Config != nil {
		for _, name := range deps.Config.DisabledTools {
			disabled[name] = true
		}
	}

	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run serves the tools over stdio until stdin closes.
func Run(deps Deps) error {
	return server.ServeStdio(NewServer(deps))
}
