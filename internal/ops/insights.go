package ops

import (
	"context"
	"database/sql"
	"strings"

	"github.com/hpungsan/moodlog/internal/ai"
	"github.com/hpungsan/moodlog/internal/errors"
	"github.com/hpungsan/moodlog/internal/mood"
)

// InsightsOutput is the analysis, or the reason there is none yet.
type InsightsOutput struct {
	Eligible   bool           `json:"eligible"`
	EntryCount int            `json:"entry_count"`
	Needed     int            `json:"needed,omitempty"`
	Message    string         `json:"message,omitempty"`
	Analysis   *mood.Analysis `json:"analysis,omitempty"`
	Fallback   bool           `json:"fallback,omitempty"`
}

// gate reports eligibility for AI features given an entry count.
func gate(count int) (bool, int) {
	if count >= ai.MinEntries {
		return true, 0
	}
	return false, ai.MinEntries - count
}

// Insights analyzes the signed-in user's recent entries. With fewer than
// ai.MinEntries entries the analyzer is not called.
func Insights(ctx context.Context, database *sql.DB, analyzer Analyzer, sess *mood.Session) (*InsightsOutput, error) {
	all, err := entries(database, sess)
	if err != nil {
		return nil, err
	}

	out := &InsightsOutput{EntryCount: len(all)}
	eligible, needed := gate(len(all))
	if !eligible {
		out.Needed = needed
		out.Message = GateMessage(needed)
		return out, nil
	}

	analysis := analyzer.Analyze(ctx, all)
	out.Eligible = true
	out.Analysis = &analysis
	out.Fallback = analysis.IsFallback()
	return out, nil
}

// TipsOutput holds quick suggestions.
type TipsOutput struct {
	Eligible bool     `json:"eligible"`
	Tips     []string `json:"tips"`
	Message  string   `json:"message,omitempty"`
}

// Tips asks for short actionable suggestions, gated like Insights.
func Tips(ctx context.Context, database *sql.DB, analyzer Analyzer, sess *mood.Session) (*TipsOutput, error) {
	all, err := entries(database, sess)
	if err != nil {
		return nil, err
	}

	eligible, needed := gate(len(all))
	if !eligible {
		return &TipsOutput{Tips: []string{}, Message: GateMessage(needed)}, nil
	}
	return &TipsOutput{Eligible: true, Tips: analyzer.Tips(ctx, all)}, nil
}

// AskOutput holds an answer to a question.
type AskOutput struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Ask answers a question using every entry of the signed-in user as context.
func Ask(ctx context.Context, database *sql.DB, responder Responder, sess *mood.Session, question string) (*AskOutput, error) {
	if _, err := requireSession(sess); err != nil {
		return nil, err
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, errors.NewInvalidRequest("question is required")
	}

	all, err := entries(database, sess)
	if err != nil {
		return nil, err
	}

	answer, err := responder.Ask(ctx, question, all)
	if err != nil {
		return nil, err
	}
	return &AskOutput{Question: question, Answer: answer}, nil
}
