package ops

import (
	"context"
	"database/sql"
	"log"
	"math"
	"strings"

	"github.com/hpungsan/moodlog/internal/db"
	"github.com/hpungsan/moodlog/internal/errors"
	"github.com/hpungsan/moodlog/internal/live"
	"github.com/hpungsan/moodlog/internal/mood"
)

// AppendInput contains parameters for the Append operation.
// Id, owner and timestamp are always assigned by the store.
type AppendInput struct {
	Mood      string         // required, one of mood.Moods
	Intensity int            // required, 1..10
	Source    string         // optional, defaults to "manual"
	Metadata  *mood.Metadata // optional
}

// AppendOutput contains the stored entry.
type AppendOutput struct {
	mood.Entry
}

// Append records a new entry for the signed-in user and notifies that
// user's live subscribers. hub may be nil.
func Append(ctx context.Context, database *sql.DB, hub *live.Hub, sess *mood.Session, input AppendInput) (*AppendOutput, error) {
	userID, err := requireSession(sess)
	if err != nil {
		return nil, err
	}

	m, ok := mood.ParseMood(input.Mood)
	if !ok {
		return nil, errors.NewInvalidRequest("mood must be one of: " + joinMoods())
	}
	if !mood.ValidIntensity(input.Intensity) {
		return nil, errors.NewInvalidRequest("intensity must be between 1 and 10")
	}
	src := mood.SourceManual
	if strings.TrimSpace(input.Source) != "" {
		if src, ok = mood.ParseSource(input.Source); !ok {
			return nil, errors.NewInvalidRequest("source must be one of: manual, spotify, youtube, apple_music")
		}
	}

	if input.Metadata != nil {
		if !finite(input.Metadata.Tempo) {
			return nil, errors.NewInvalidRequest("tempo must be a finite number")
		}
		if !finite(input.Metadata.Energy) {
			return nil, errors.NewInvalidRequest("energy must be a finite number")
		}
	}

	e := &mood.Entry{
		UserID:    userID,
		Mood:      m,
		Intensity: input.Intensity,
		Source:    src,
	}
	if !input.Metadata.IsZero() {
		e.Metadata = input.Metadata
	}

	if err := db.InsertEntry(database, e); err != nil {
		return nil, err
	}

	if hub != nil {
		// Write succeeded; publish failures are only logged
		if err := hub.Publish(ctx, userID); err != nil {
			log.Printf("[ops] publish after append failed: %v", err)
		}
	}

	return &AppendOutput{Entry: *e}, nil
}

func finite(f *float64) bool {
	return f == nil || !(math.IsNaN(*f) || math.IsInf(*f, 0))
}

func joinMoods() string {
	names := make([]string, len(mood.Moods))
	for i, m := range mood.Moods {
		names[i] = string(m)
	}
	return strings.Join(names, ", ")
}
