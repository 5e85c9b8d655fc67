package db

import (
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hpungsan/moodlog/internal/errors"
	"github.com/hpungsan/moodlog/internal/mood"
)

// now is the persistence layer's clock. Tests may replace it.
var now = time.Now

var (
	idMu     sync.Mutex
	entropy  = ulid.Monotonic(rand.Reader, 0)
	lastNano int64
)

// nextStamp returns a fresh ULID and write timestamp.
// Timestamps are strictly increasing within the process so that
// (created_at, id) order matches insertion order.
func nextStamp() (string, time.Time, error) {
	idMu.Lock()
	defer idMu.Unlock()

	t := now().UTC()
	ns := t.UnixNano()
	if ns <= lastNano {
		ns = lastNano + 1
		t = time.Unix(0, ns).UTC()
	}
	lastNano = ns

	id, err := ulid.New(ulid.Timestamp(t), entropy)
	if err != nil {
		return "", time.Time{}, err
	}
	return id.String(), t, nil
}

// InsertEntry stores a new entry. ID and Timestamp are assigned here and
// written back into e; any values the caller set are ignored.
func InsertEntry(db *sql.DB, e *mood.Entry) error {
	var metaJSON sql.NullString
	if !e.Metadata.IsZero() {
		data, err := json.Marshal(e.Metadata)
		if err != nil {
			return errors.NewInternal(err)
		}
		metaJSON = sql.NullString{String: string(data), Valid: true}
	}

	id, ts, err := nextStamp()
	if err != nil {
		return errors.NewInternal(err)
	}

	query := `
		INSERT INTO mood_entries (
			id, user_id, mood, intensity, source, metadata_json, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	if _, err := db.Exec(query,
		id, e.UserID, string(e.Mood), e.Intensity, string(e.Source), metaJSON, ts.UnixNano(),
	); err != nil {
		return errors.NewInternal(err)
	}

	e.ID = id
	e.Timestamp = ts
	return nil
}

// ListEntriesByUser returns the user's entries newest first (created_at
// DESC, id DESC) and the total count for the user.
// A limit <= 0 returns every entry from offset on.
func ListEntriesByUser(db *sql.DB, userID string, limit, offset int) ([]mood.Entry, int, error) {
	total, err := CountEntriesByUser(db, userID)
	if err != nil {
		return nil, 0, err
	}

	query := `
		SELECT id, user_id, mood, intensity, source, metadata_json, created_at
		FROM mood_entries
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`
	if limit <= 0 {
		limit = -1
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := db.Query(query, userID, limit, offset)
	if err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	defer rows.Close()

	entries := make([]mood.Entry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, errors.NewInternal(err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.NewInternal(err)
	}

	return entries, total, nil
}

// EntriesByUser returns all of the user's entries newest first.
func EntriesByUser(db *sql.DB, userID string) ([]mood.Entry, error) {
	entries, _, err := ListEntriesByUser(db, userID, 0, 0)
	return entries, err
}

// CountEntriesByUser returns how many entries the user has.
func CountEntriesByUser(db *sql.DB, userID string) (int, error) {
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM mood_entries WHERE user_id = ?`, userID).Scan(&n); err != nil {
		return 0, errors.NewInternal(err)
	}
	return n, nil
}

// GetEntry retrieves one entry by id.
func GetEntry(db *sql.DB, id string) (*mood.Entry, error) {
	row := db.QueryRow(`
		SELECT id, user_id, mood, intensity, source, metadata_json, created_at
		FROM mood_entries
		WHERE id = ?
	`, id)
	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return e, nil
}

type scanner interface {
	Scan(dest ...any) error
}

// scanEntry scans a single row into an Entry.
func scanEntry(row scanner) (*mood.Entry, error) {
	var (
		e         mood.Entry
		moodStr   string
		sourceStr string
		metaJSON  sql.NullString
		createdAt int64
	)

	if err := row.Scan(&e.ID, &e.UserID, &moodStr, &e.Intensity, &sourceStr, &metaJSON, &createdAt); err != nil {
		return nil, err
	}

	e.Mood = mood.Mood(moodStr)
	e.Source = mood.Source(sourceStr)
	e.Timestamp = time.Unix(0, createdAt).UTC()

	if metaJSON.Valid && metaJSON.String != "" {
		var m mood.Metadata
		if err := json.Unmarshal([]byte(metaJSON.String), &m); err != nil {
			return nil, err
		}
		e.Metadata = &m
	}

	return &e, nil
}

// toNullString converts a *string to sql.NullString.
func toNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// fromNullString converts a sql.NullString to *string.
func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}
