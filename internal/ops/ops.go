// Package ops implements the journal operations shared by the CLI, the MCP
// server and the web server.
package ops

import (
	"context"
	"fmt"

	"github.com/hpungsan/moodlog/internal/ai"
	"github.com/hpungsan/moodlog/internal/errors"
	"github.com/hpungsan/moodlog/internal/mood"
)

// Pagination limits
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// Pagination contains pagination metadata for list operations.
type Pagination struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
	Total   int  `json:"total"`
}

// Analyzer produces analyses and tips from a newest-first entry sequence.
// Implemented by *ai.Analyzer.
type Analyzer interface {
	Analyze(ctx context.Context, entries []mood.Entry) mood.Analysis
	Tips(ctx context.Context, entries []mood.Entry) []string
}

// Responder answers questions about entries. Implemented by *ai.Responder.
type Responder interface {
	Ask(ctx context.Context, question string, entries []mood.Entry) (string, error)
}

var (
	_ Analyzer  = (*ai.Analyzer)(nil)
	_ Responder = (*ai.Responder)(nil)
)

// requireSession returns the session's user id or UNAUTHENTICATED.
func requireSession(sess *mood.Session) (string, error) {
	if sess.UserID() == "" {
		return "", errors.NewUnauthenticated()
	}
	return sess.UserID(), nil
}

// GateMessage tells the user how many more entries unlock insights.
func GateMessage(needed int) string {
	suffix := "s"
	if needed == 1 {
		suffix = ""
	}
	return fmt.Sprintf("Track %d more mood%s to unlock AI-powered insights", needed, suffix)
}

// suggestedQuestions are offered as starting points for Ask.
var suggestedQuestions = []string{
	"How has my mood changed over time?",
	"What patterns do you notice?",
	"What can I do to improve my emotional well-being?",
	"When am I most energetic?",
}

// SuggestedQuestions returns a copy of the suggested starter questions.
func SuggestedQuestions() []string {
	return append([]string(nil), suggestedQuestions...)
}
