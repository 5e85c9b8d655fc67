package mcp

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"log"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/moodlog/internal/config"
	"github.com/hpungsan/moodlog/internal/errors"
	"github.com/hpungsan/moodlog/internal/live"
	"github.com/hpungsan/moodlog/internal/mood"
	"github.com/hpungsan/moodlog/internal/ops"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	db        *sql.DB
	cfg       *config.Config
	hub       *live.Hub
	sessions  SessionSource
	analyzer  ops.Analyzer
	responder ops.Responder
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(deps Deps) *Handlers {
	cfg := deps.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &Handlers{
		db:        deps.DB,
		cfg:       cfg,
		hub:       deps.Hub,
		sessions:  deps.Sessions,
		analyzer:  deps.Analyzer,
		responder: deps.Responder,
	}
}

// LogRequest represents the arguments for mood_log.
type LogRequest struct {
	Mood      string   `json:"mood"`
	Intensity float64  `json:"intensity"`
	Source    string   `json:"source,omitempty"`
	Tracks    []string `json:"tracks,omitempty"`
	Genres    []string `json:"genres,omitempty"`
	Tempo     *float64 `json:"tempo,omitempty"`
	Energy    *float64 `json:"energy,omitempty"`
}

// ListRequest represents the arguments for mood_list.
type ListRequest struct {
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// AskRequest represents the arguments for mood_ask.
type AskRequest struct {
	Question string `json:"question"`
}

// session returns the current signed-in user, or nil.
func (h *Handlers) session(ctx context.Context) (*mood.Session, error) {
	if h.sessions == nil {
		return nil, nil
	}
	return h.sessions.Refresh(ctx)
}

// HandleLog handles the mood_log tool call.
func (h *Handlers) HandleLog(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[LogRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	if input.Intensity != float64(int(input.Intensity)) {
		return errorResult(errors.NewInvalidRequest("intensity must be a whole number")), nil
	}
	sess, err := h.session(ctx)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.Append(ctx, h.db, h.hub, sess, ops.AppendInput{
		Mood:      input.Mood,
		Intensity: int(input.Intensity),
		Source:    input.Source,
		Metadata: &mood.Metadata{
			Tracks: input.Tracks,
			Genres: input.Genres,
			Tempo:  input.Tempo,
			Energy: input.Energy,
		},
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result.Entry)
}

// HandleList handles the mood_list tool call.
func (h *Handlers) HandleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ListRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	sess, err := h.session(ctx)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.List(h.db, sess, ops.ListInput{Limit: input.Limit, Offset: input.Offset})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleTimeline handles the mood_timeline tool call.
func (h *Handlers) HandleTimeline(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := h.session(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	result, err := ops.Timeline(h.db, sess)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleStats handles the mood_stats tool call.
func (h *Handlers) HandleStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := h.session(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	result, err := ops.Stats(h.db, sess)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleInsights handles the mood_insights tool call.
func (h *Handlers) HandleInsights(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := h.session(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	result, err := ops.Insights(ctx, h.db, h.analyzer, sess)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleTips handles the mood_tips tool call.
func (h *Handlers) HandleTips(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := h.session(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	result, err := ops.Tips(ctx, h.db, h.analyzer, sess)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleAsk handles the mood_ask tool call.
func (h *Handlers) HandleAsk(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[AskRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	sess, err := h.session(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	result, err := ops.Ask(ctx, h.db, h.responder, sess, input.Question)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// errorResult creates an MCP error result with IsError set. Internal error
// details are logged, not returned.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	var mErr *errors.MoodError
	if stderrors.As(err, &mErr) && mErr.Code != errors.ErrInternal {
		errorObj := map[string]any{
			"code":    mErr.Code,
			"message": mErr.Message,
			"status":  mErr.Status,
		}
		if mErr.Details != nil {
			errorObj["details"] = mErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		log.Printf("[mcp] internal error: %v", err)
		payload = map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL",
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
