package auth

import (
	"context"
	"database/sql"
	stderrors "errors"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hpungsan/moodlog/internal/db"
	"github.com/hpungsan/moodlog/internal/errors"
)

// LocalProvider is a SQLite-backed Provider. It records the federated
// claims supplied by the caller and hands out expiring bearer tokens.
// When tokenPath is set the current token survives process restarts.
type LocalProvider struct {
	db        *sql.DB
	ttl       time.Duration
	tokenPath string
	now       func() time.Time

	mu        sync.Mutex
	token     string
	listeners map[int]func(*Identity)
	nextID    int
}

// NewLocalProvider creates a provider. tokenPath may be empty for an
// in-memory current session.
func NewLocalProvider(database *sql.DB, ttl time.Duration, tokenPath string) *LocalProvider {
	p := &LocalProvider{
		db:        database,
		ttl:       ttl,
		tokenPath: tokenPath,
		now:       time.Now,
		listeners: make(map[int]func(*Identity)),
	}
	if tokenPath != "" {
		if data, err := os.ReadFile(tokenPath); err == nil {
			p.token = strings.TrimSpace(string(data))
		}
	}
	return p
}

// Issue validates the claims, records the user and creates a new session.
func (p *LocalProvider) Issue(ctx context.Context, method Method, claims Claims) (*Identity, error) {
	if _, ok := ParseMethod(string(method)); !ok {
		return nil, errors.NewInvalidRequest("unsupported sign-in method: " + string(method))
	}
	email := strings.ToLower(strings.TrimSpace(claims.Email))
	if email == "" {
		return nil, errors.NewInvalidRequest("email is required")
	}

	u, err := db.UpsertUser(p.db, string(method), email, claims.DisplayName, claims.PhotoURL)
	if err != nil {
		return nil, err
	}

	t := p.now().UTC()
	rec := &db.SessionRecord{
		Token:      uuid.NewString(),
		UserID:     u.ID,
		CreatedAt:  t,
		LastActive: t,
		ExpiresAt:  t.Add(p.ttl),
	}
	if err := db.InsertSession(p.db, rec); err != nil {
		return nil, err
	}

	return identityFrom(u, method, rec.Token), nil
}

// Resolve looks up a token. Unknown or expired tokens yield nil, nil;
// expired ones are deleted. A valid token's expiry slides forward.
func (p *LocalProvider) Resolve(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, nil
	}
	rec, err := db.GetSession(p.db, token)
	if errors.Is(err, errors.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	t := p.now().UTC()
	if !t.Before(rec.ExpiresAt) {
		if err := db.DeleteSession(p.db, token); err != nil {
			return nil, err
		}
		return nil, nil
	}
	if err := db.TouchSession(p.db, token, t, t.Add(p.ttl)); err != nil {
		return nil, err
	}

	u, err := db.GetUser(p.db, rec.UserID)
	if errors.Is(err, errors.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return identityFrom(u, Method(u.Provider), token), nil
}

// Revoke deletes a session. Revoking an unknown token is not an error.
func (p *LocalProvider) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return db.DeleteSession(p.db, token)
}

// SignIn issues a session and makes it the current identity.
func (p *LocalProvider) SignIn(ctx context.Context, method Method, claims Claims) (*Identity, error) {
	id, err := p.Issue(ctx, method, claims)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	old := p.token
	p.token = id.Token
	if err := p.persistLocked(); err != nil {
		p.token = old
		p.mu.Unlock()
		_ = p.Revoke(ctx, id.Token)
		return nil, err
	}
	p.mu.Unlock()

	if old != "" && old != id.Token {
		if err := p.Revoke(ctx, old); err != nil {
			log.Printf("[auth] failed to revoke previous session: %v", err)
		}
	}

	p.notify(id)
	return id, nil
}

// SignOut ends the current session. Signing out when nobody is signed in
// is a no-op.
func (p *LocalProvider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	token := p.token
	if token == "" {
		p.mu.Unlock()
		return nil
	}
	if err := p.Revoke(ctx, token); err != nil {
		p.mu.Unlock()
		return err
	}
	p.token = ""
	err := p.persistLocked()
	p.mu.Unlock()

	p.notify(nil)
	return err
}

// CurrentIdentity resolves the current token. An expired session clears
// the current identity and notifies listeners.
func (p *LocalProvider) CurrentIdentity(ctx context.Context) (*Identity, error) {
	p.mu.Lock()
	token := p.token
	p.mu.Unlock()
	if token == "" {
		return nil, nil
	}

	id, err := p.Resolve(ctx, token)
	if err != nil {
		return nil, err
	}
	if id == nil {
		p.mu.Lock()
		cleared := p.token == token
		if cleared {
			p.token = ""
			_ = p.persistLocked()
		}
		p.mu.Unlock()
		if cleared {
			p.notify(nil)
		}
	}
	return id, nil
}

// OnAuthStateChanged registers fn and immediately reports the current
// identity to it.
func (p *LocalProvider) OnAuthStateChanged(fn func(*Identity)) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	p.mu.Unlock()

	cur, err := p.CurrentIdentity(context.Background())
	if err != nil {
		log.Printf("[auth] failed to read current identity: %v", err)
	}
	fn(cur)

	return func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	}
}

func (p *LocalProvider) notify(id *Identity) {
	p.mu.Lock()
	fns := make([]func(*Identity), 0, len(p.listeners))
	for _, fn := range p.listeners {
		fns = append(fns, fn)
	}
	p.mu.Unlock()

	for _, fn := range fns {
		fn(id)
	}
}

// persistLocked writes the current token to tokenPath. Caller holds p.mu.
func (p *LocalProvider) persistLocked() error {
	if p.tokenPath == "" {
		return nil
	}
	if p.token == "" {
		if err := os.Remove(p.tokenPath); err != nil && !stderrors.Is(err, os.ErrNotExist) {
			return errors.NewInternal(err)
		}
		return nil
	}
	if err := os.WriteFile(p.tokenPath, []byte(p.token+"\n"), 0600); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

func identityFrom(u *db.User, method Method, token string) *Identity {
	return &Identity{
		UID:         u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		PhotoURL:    u.PhotoURL,
		Method:      method,
		CreatedAt:   u.CreatedAt,
		Token:       token,
	}
}
