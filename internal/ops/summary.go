package ops

import (
	"database/sql"

	"github.com/hpungsan/moodlog/internal/mood"
)

// TimelineOutput holds chart points, oldest first.
type TimelineOutput struct {
	Points  []mood.ChartPoint `json:"points"`
	Empty   bool              `json:"empty"`
	Message string            `json:"message,omitempty"`
}

// Timeline returns the chart points for the signed-in user's most recent
// entries.
func Timeline(database *sql.DB, sess *mood.Session) (*TimelineOutput, error) {
	all, err := entries(database, sess)
	if err != nil {
		return nil, err
	}
	out := &TimelineOutput{Points: mood.Timeline(all, mood.TimelineLimit)}
	if len(out.Points) == 0 {
		out.Empty = true
		out.Message = "Track your first mood to begin visualizing your emotional patterns"
	}
	return out, nil
}

// Stats returns local, non-AI statistics over every entry.
func Stats(database *sql.DB, sess *mood.Session) (*mood.Stats, error) {
	all, err := entries(database, sess)
	if err != nil {
		return nil, err
	}
	s := mood.Summarize(all)
	return &s, nil
}
