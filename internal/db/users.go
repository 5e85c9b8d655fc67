package db

import (
	"database/sql"
	"time"

	"github.com/hpungsan/moodlog/internal/errors"
)

// User is a persisted identity, keyed by (provider, email).
type User struct {
	ID          string
	Provider    string
	Email       string
	DisplayName *string
	PhotoURL    *string
	CreatedAt   time.Time
}

// SessionRecord is a persisted bearer-token session.
type SessionRecord struct {
	Token      string
	UserID     string
	CreatedAt  time.Time
	LastActive time.Time
	ExpiresAt  time.Time
}

// UpsertUser finds the user for (provider, email), creating it if needed.
// Profile fields are refreshed from the arguments when non-nil.
func UpsertUser(db *sql.DB, provider, email string, displayName, photoURL *string) (*User, error) {
	u, err := getUserByEmail(db, provider, email)
	if err == nil {
		if displayName != nil || photoURL != nil {
			if displayName != nil {
				u.DisplayName = displayName
			}
			if photoURL != nil {
				u.PhotoURL = photoURL
			}
			if _, err := db.Exec(`UPDATE users SET display_name = ?, photo_url = ? WHERE id = ?`,
				toNullString(u.DisplayName), toNullString(u.PhotoURL), u.ID); err != nil {
				return nil, errors.NewInternal(err)
			}
		}
		return u, nil
	}
	if !errors.Is(err, errors.ErrNotFound) {
		return nil, err
	}

	id, ts, err := nextStamp()
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	u = &User{
		ID:          id,
		Provider:    provider,
		Email:       email,
		DisplayName: displayName,
		PhotoURL:    photoURL,
		CreatedAt:   ts,
	}
	if _, err := db.Exec(`
		INSERT INTO users (id, provider, email, display_name, photo_url, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, u.ID, u.Provider, u.Email, toNullString(displayName), toNullString(photoURL), ts.UnixNano()); err != nil {
		return nil, errors.NewInternal(err)
	}
	return u, nil
}

// GetUser retrieves a user by id.
func GetUser(db *sql.DB, id string) (*User, error) {
	row := db.QueryRow(`
		SELECT id, provider, email, display_name, photo_url, created_at
		FROM users WHERE id = ?
	`, id)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return u, nil
}

func getUserByEmail(db *sql.DB, provider, email string) (*User, error) {
	row := db.QueryRow(`
		SELECT id, provider, email, display_name, photo_url, created_at
		FROM users WHERE provider = ? AND email = ?
	`, provider, email)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(email)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return u, nil
}

func scanUser(row scanner) (*User, error) {
	var (
		u           User
		displayName sql.NullString
		photoURL    sql.NullString
		createdAt   int64
	)
	if err := row.Scan(&u.ID, &u.Provider, &u.Email, &displayName, &photoURL, &createdAt); err != nil {
		return nil, err
	}
	u.DisplayName = fromNullString(displayName)
	u.PhotoURL = fromNullString(photoURL)
	u.CreatedAt = time.Unix(0, createdAt).UTC()
	return &u, nil
}

// InsertSession stores a new session.
func InsertSession(db *sql.DB, s *SessionRecord) error {
	_, err := db.Exec(`
		INSERT INTO sessions (token, user_id, created_at, last_active, expires_at)
		VALUES (?, ?, ?, ?, ?)
	`, s.Token, s.UserID, s.CreatedAt.UnixNano(), s.LastActive.UnixNano(), s.ExpiresAt.UnixNano())
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// GetSession retrieves a session by token, expired or not.
func GetSession(db *sql.DB, token string) (*SessionRecord, error) {
	var (
		s                               SessionRecord
		createdAt, lastActive, expireAt int64
	)
	err := db.QueryRow(`
		SELECT token, user_id, created_at, last_active, expires_at
		FROM sessions WHERE token = ?
	`, token).Scan(&s.Token, &s.UserID, &createdAt, &lastActive, &expireAt)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("session")
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	s.CreatedAt = time.Unix(0, createdAt).UTC()
	s.LastActive = time.Unix(0, lastActive).UTC()
	s.ExpiresAt = time.Unix(0, expireAt).UTC()
	return &s, nil
}

// TouchSession records activity and slides the expiry forward.
func TouchSession(db *sql.DB, token string, lastActive, expiresAt time.Time) error {
	result, err := db.Exec(`UPDATE sessions SET last_active = ?, expires_at = ? WHERE token = ?`,
		lastActive.UnixNano(), expiresAt.UnixNano(), token)
	if err != nil {
		return errors.NewInternal(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if n == 0 {
		return errors.NewNotFound("session")
	}
	return nil
}

// DeleteSession removes a session. Deleting a missing session is not an error.
func DeleteSession(db *sql.DB, token string) error {
	if _, err := db.Exec(`DELETE FROM sessions WHERE token = ?`, token); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// PurgeExpiredSessions deletes sessions that expired before t.
func PurgeExpiredSessions(db *sql.DB, t time.Time) (int64, error) {
	result, err := db.Exec(`DELETE FROM sessions WHERE expires_at < ?`, t.UnixNano())
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	return n, nil
}
