package ops

import (
	"context"
	"database/sql"

	"github.com/hpungsan/moodlog/internal/db"
	"github.com/hpungsan/moodlog/internal/live"
	"github.com/hpungsan/moodlog/internal/mood"
)

// ListInput contains parameters for the List operation.
type ListInput struct {
	Limit  int // default: 20, max: 100
	Offset int // default: 0
}

// ListOutput contains the result of the List operation.
type ListOutput struct {
	Items      []mood.Entry `json:"items"`
	Pagination Pagination   `json:"pagination"`
	Sort       string       `json:"sort"`
}

// List retrieves the signed-in user's entries, newest first, with pagination.
func List(database *sql.DB, sess *mood.Session, input ListInput) (*ListOutput, error) {
	userID, err := requireSession(sess)
	if err != nil {
		return nil, err
	}

	limit := input.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	offset := max(input.Offset, 0)

	items, total, err := db.ListEntriesByUser(database, userID, limit, offset)
	if err != nil {
		return nil, err
	}

	return &ListOutput{
		Items: items,
		Pagination: Pagination{
			Limit:   limit,
			Offset:  offset,
			HasMore: offset+len(items) < total,
			Total:   total,
		},
		Sort: "timestamp_desc",
	}, nil
}

// Subscribe opens a live subscription for the session's entries. A nil
// session yields the absent-session subscription (one empty snapshot,
// then closed).
func Subscribe(ctx context.Context, hub *live.Hub, sess *mood.Session) (*live.Subscription, error) {
	return hub.Subscribe(ctx, sess.UserID())
}

// entries loads every entry of the signed-in user, newest first.
func entries(database *sql.DB, sess *mood.Session) ([]mood.Entry, error) {
	userID, err := requireSession(sess)
	if err != nil {
		return nil, err
	}
	return db.EntriesByUser(database, userID)
}
