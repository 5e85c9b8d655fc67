package auth

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/moodlog/internal/db"
	"github.com/hpungsan/moodlog/internal/errors"
	"github.com/hpungsan/moodlog/internal/mood"
)

func strPtr(s string) *string { return &s }

func setupDB(t *testing.T) (*sql.DB, string) {
	t.Helper()
	dir := t.TempDir()
	database, err := db.Init(dir)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return database, dir
}

func TestParseMethod(t *testing.T) {
	m, ok := ParseMethod(" Google ")
	require.True(t, ok)
	require.Equal(t, MethodGoogle, m)

	m, ok = ParseMethod("apple")
	require.True(t, ok)
	require.Equal(t, MethodApple, m)

	_, ok = ParseMethod("github")
	require.False(t, ok)
}

func TestToSession(t *testing.T) {
	require.Nil(t, ToSession(nil, time.Now()))

	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	at := created.Add(time.Hour)
	s := ToSession(&Identity{UID: "u1", Email: "a@b.c", DisplayName: strPtr("Ann"), CreatedAt: created}, at)
	require.Equal(t, "u1", s.ID)
	require.Equal(t, "a@b.c", s.Email)
	require.Equal(t, "Ann", *s.DisplayName)
	require.Nil(t, s.PhotoURL)
	require.Equal(t, created, s.CreatedAt)
	require.Equal(t, at, s.LastActive)
}

func TestLocalProvider_IssueResolveRevoke(t *testing.T) {
	database, _ := setupDB(t)
	p := NewLocalProvider(database, time.Hour, "")
	ctx := context.Background()

	id, err := p.Issue(ctx, MethodGoogle, Claims{Email: " Ann@Example.com ", DisplayName: strPtr("Ann")})
	require.NoError(t, err)
	require.NotEmpty(t, id.Token)
	require.Equal(t, "ann@example.com", id.Email)

	got, err := p.Resolve(ctx, id.Token)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, id.UID, got.UID)
	require.Equal(t, MethodGoogle, got.Method)

	// Issuing again for the same identity keeps the user id
	again, err := p.Issue(ctx, MethodGoogle, Claims{Email: "ann@example.com"})
	require.NoError(t, err)
	require.Equal(t, id.UID, again.UID)
	require.NotEqual(t, id.Token, again.Token)

	require.NoError(t, p.Revoke(ctx, id.Token))
	got, err = p.Resolve(ctx, id.Token)
	require.NoError(t, err)
	require.Nil(t, got)

	got, err = p.Resolve(ctx, "")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestLocalProvider_IssueValidation(t *testing.T) {
	database, _ := setupDB(t)
	p := NewLocalProvider(database, time.Hour, "")

	_, err := p.Issue(context.Background(), MethodApple, Claims{Email: "  "})
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))

	_, err = p.Issue(context.Background(), Method("github"), Claims{Email: "a@b.c"})
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestLocalProvider_Expiry(t *testing.T) {
	database, _ := setupDB(t)
	p := NewLocalProvider(database, time.Hour, "")
	clock := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return clock }
	ctx := context.Background()

	var (
		mu     sync.Mutex
		events []*Identity
	)
	unsub := p.OnAuthStateChanged(func(id *Identity) {
		mu.Lock()
		events = append(events, id)
		mu.Unlock()
	})
	defer unsub()

	id, err := p.SignIn(ctx, MethodGoogle, Claims{Email: "a@b.c"})
	require.NoError(t, err)

	// Activity slides the expiry
	clock = clock.Add(50 * time.Minute)
	cur, err := p.CurrentIdentity(ctx)
	require.NoError(t, err)
	require.NotNil(t, cur)

	clock = clock.Add(50 * time.Minute)
	cur, err = p.CurrentIdentity(ctx)
	require.NoError(t, err)
	require.NotNil(t, cur, "touch should have extended the session")

	clock = clock.Add(2 * time.Hour)
	cur, err = p.CurrentIdentity(ctx)
	require.NoError(t, err)
	require.Nil(t, cur)

	_, err = db.GetSession(database, id.Token)
	require.True(t, errors.Is(err, errors.ErrNotFound), "expired session should be deleted")

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 3) // initial nil, sign in, expiry
	require.Nil(t, events[0])
	require.Equal(t, id.UID, events[1].UID)
	require.Nil(t, events[2])
}

func TestLocalProvider_TokenFilePersistence(t *testing.T) {
	database, dir := setupDB(t)
	tokenPath := filepath.Join(dir, "session")
	ctx := context.Background()

	p1 := NewLocalProvider(database, time.Hour, tokenPath)
	id, err := p1.SignIn(ctx, MethodApple, Claims{Email: "a@b.c"})
	require.NoError(t, err)

	info, err := os.Stat(tokenPath)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0600), info.Mode().Perm())

	// A new process picks the session back up
	p2 := NewLocalProvider(database, time.Hour, tokenPath)
	cur, err := p2.CurrentIdentity(ctx)
	require.NoError(t, err)
	require.NotNil(t, cur)
	require.Equal(t, id.UID, cur.UID)

	require.NoError(t, p2.SignOut(ctx))
	_, err = os.Stat(tokenPath)
	require.True(t, os.IsNotExist(err))

	// Signing out twice is fine
	require.NoError(t, p2.SignOut(ctx))
}

func TestLocalProvider_SignInReplacesPrevious(t *testing.T) {
	database, _ := setupDB(t)
	p := NewLocalProvider(database, time.Hour, "")
	ctx := context.Background()

	first, err := p.SignIn(ctx, MethodGoogle, Claims{Email: "a@b.c"})
	require.NoError(t, err)
	second, err := p.SignIn(ctx, MethodGoogle, Claims{Email: "z@b.c"})
	require.NoError(t, err)

	got, err := p.Resolve(ctx, first.Token)
	require.NoError(t, err)
	require.Nil(t, got, "previous session should be revoked")

	cur, err := p.CurrentIdentity(ctx)
	require.NoError(t, err)
	require.Equal(t, second.UID, cur.UID)
}

func TestManager_FollowsProvider(t *testing.T) {
	database, _ := setupDB(t)
	p := NewLocalProvider(database, time.Hour, "")
	m := NewManager(p)
	defer m.Close()
	ctx := context.Background()

	require.Nil(t, m.Current())

	var seen []*mood.Session
	unsub := m.OnChange(func(s *mood.Session) { seen = append(seen, s) })
	defer unsub()

	sess, err := m.SignInWithGoogle(ctx, Claims{Email: "a@b.c", PhotoURL: strPtr("https://img")})
	require.NoError(t, err)
	require.Equal(t, "a@b.c", sess.Email)
	require.Equal(t, sess.ID, m.Current().ID)
	require.Equal(t, "https://img", *m.Current().PhotoURL)

	require.NoError(t, m.SignOut(ctx))
	require.Nil(t, m.Current())

	require.Len(t, seen, 3) // initial, sign in, sign out
	require.Nil(t, seen[0])
	require.NotNil(t, seen[1])
	require.Nil(t, seen[2])

	appleSess, err := m.SignInWithApple(ctx, Claims{Email: "a@b.c"})
	require.NoError(t, err)
	require.NotEqual(t, sess.ID, appleSess.ID)
}

func TestManager_Refresh(t *testing.T) {
	database, _ := setupDB(t)
	p := NewLocalProvider(database, time.Minute, "")
	clock := time.Now()
	p.now = func() time.Time { return clock }
	m := NewManager(p)
	defer m.Close()
	ctx := context.Background()

	_, err := m.SignInWithGoogle(ctx, Claims{Email: "a@b.c"})
	require.NoError(t, err)

	clock = clock.Add(2 * time.Minute)
	sess, err := m.Refresh(ctx)
	require.NoError(t, err)
	require.Nil(t, sess)
	require.Nil(t, m.Current())
}

// failingProvider rejects every operation.
type failingProvider struct{}

func (failingProvider) SignIn(context.Context, Method, Claims) (*Identity, error) {
	return nil, fmt.Errorf("popup closed")
}
func (failingProvider) SignOut(context.Context) error { return fmt.Errorf("network down") }
func (failingProvider) CurrentIdentity(context.Context) (*Identity, error) {
	return nil, nil
}
func (failingProvider) OnAuthStateChanged(fn func(*Identity)) func() {
	fn(nil)
	return func() {}
}

func TestManager_ProviderFailures(t *testing.T) {
	m := NewManager(failingProvider{})
	defer m.Close()
	ctx := context.Background()

	_, err := m.SignInWithApple(ctx, Claims{Email: "a@b.c"})
	require.True(t, errors.Is(err, errors.ErrAuthProvider))
	require.Contains(t, err.Error(), "popup closed")

	err = m.SignOut(ctx)
	require.True(t, errors.Is(err, errors.ErrAuthProvider))
	require.Nil(t, m.Current())
}

func TestManager_InvalidClaimsStayInvalid(t *testing.T) {
	database, _ := setupDB(t)
	m := NewManager(NewLocalProvider(database, time.Hour, ""))
	defer m.Close()

	_, err := m.SignInWithGoogle(context.Background(), Claims{})
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))
}
