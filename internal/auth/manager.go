package auth

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/hpungsan/moodlog/internal/errors"
	"github.com/hpungsan/moodlog/internal/mood"
)

// ToSession maps a provider identity to a journal session. LastActive is
// the mapping time. A nil identity maps to a nil session.
func ToSession(id *Identity, now time.Time) *mood.Session {
	if id == nil {
		return nil
	}
	return &mood.Session{
		ID:          id.UID,
		Email:       id.Email,
		DisplayName: id.DisplayName,
		PhotoURL:    id.PhotoURL,
		CreatedAt:   id.CreatedAt,
		LastActive:  now,
	}
}

// Manager exposes the current session and the sign-in operations.
type Manager struct {
	provider Provider
	now      func() time.Time

	mu        sync.Mutex
	current   *mood.Session
	listeners map[int]func(*mood.Session)
	nextID    int

	unsubscribe func()
}

// NewManager starts following provider's identity events.
func NewManager(provider Provider) *Manager {
	m := &Manager{
		provider:  provider,
		now:       time.Now,
		listeners: make(map[int]func(*mood.Session)),
	}
	m.unsubscribe = provider.OnAuthStateChanged(m.onIdentity)
	return m
}

func (m *Manager) onIdentity(id *Identity) {
	sess := ToSession(id, m.now().UTC())

	m.mu.Lock()
	m.current = sess
	fns := make([]func(*mood.Session), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(sess)
	}
}

// Current returns the signed-in session, or nil.
func (m *Manager) Current() *mood.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Refresh re-reads the provider's current identity, picking up expiry.
func (m *Manager) Refresh(ctx context.Context) (*mood.Session, error) {
	id, err := m.provider.CurrentIdentity(ctx)
	if err != nil {
		return nil, err
	}
	m.onIdentity(id)
	return m.Current(), nil
}

// OnChange registers fn for session changes and calls it once with the
// current session. The returned func unregisters it.
func (m *Manager) OnChange(fn func(*mood.Session)) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	cur := m.current
	m.mu.Unlock()

	fn(cur)

	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

// SignInWithGoogle signs in with Google-asserted claims.
func (m *Manager) SignInWithGoogle(ctx context.Context, claims Claims) (*mood.Session, error) {
	return m.SignIn(ctx, MethodGoogle, claims)
}

// SignInWithApple signs in with Apple-asserted claims.
func (m *Manager) SignInWithApple(ctx context.Context, claims Claims) (*mood.Session, error) {
	return m.SignIn(ctx, MethodApple, claims)
}

// SignIn signs in with the given method. Provider failures are logged and
// returned as AUTH_PROVIDER errors; invalid input stays INVALID_REQUEST.
func (m *Manager) SignIn(ctx context.Context, method Method, claims Claims) (*mood.Session, error) {
	op := "sign in with " + string(method)
	id, err := m.provider.SignIn(ctx, method, claims)
	if err != nil {
		log.Printf("[auth] %s failed: %v", op, err)
		if errors.Is(err, errors.ErrInvalidRequest) {
			return nil, err
		}
		return nil, errors.NewAuthProvider(op, err)
	}
	return ToSession(id, m.now().UTC()), nil
}

// SignOut ends the current session.
func (m *Manager) SignOut(ctx context.Context) error {
	if err := m.provider.SignOut(ctx); err != nil {
		log.Printf("[auth] sign out failed: %v", err)
		return errors.NewAuthProvider("sign out", err)
	}
	return nil
}

// Close stops following the provider.
func (m *Manager) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}
