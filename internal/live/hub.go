// Package live delivers per-user entry snapshots to subscribers as the
// store changes.
package live

import (
	"context"
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/hpungsan/moodlog/internal/db"
	"github.com/hpungsan/moodlog/internal/mood"
)

// Snapshot is the full visible entry sequence for one user, newest first.
// Entries is shared between subscribers and must not be modified.
type Snapshot struct {
	// Seq increases with every snapshot loaded for the user. Zero for the
	// empty snapshot of an absent session.
	Seq     uint64
	UserID  string
	Entries []mood.Entry
}

// Loader reads the current entry sequence for a user, newest first.
type Loader func(ctx context.Context, userID string) ([]mood.Entry, error)

// DBLoader returns a Loader backed by the SQLite store.
func DBLoader(database *sql.DB) Loader {
	return func(_ context.Context, userID string) ([]mood.Entry, error) {
		return db.EntriesByUser(database, userID)
	}
}

// Counter reports how many entries a user has. Entries are append-only,
// so an unchanged count means an unchanged sequence.
type Counter func(ctx context.Context, userID string) (int, error)

// DBCounter returns a Counter backed by the SQLite store.
func DBCounter(database *sql.DB) Counter {
	return func(_ context.Context, userID string) (int, error) {
		return db.CountEntriesByUser(database, userID)
	}
}

// userState serializes snapshot loads and deliveries for one user.
// refs is guarded by Hub.mu; the rest by mu.
type userState struct {
	refs int

	mu    sync.Mutex
	seq   uint64
	count int // entries in the last delivered snapshot
}

// Hub tracks active subscriptions and fans out snapshots per user.
type Hub struct {
	load Loader

	mu     sync.Mutex
	subs   map[string]map[*Subscription]struct{}
	users  map[string]*userState
	closed bool
}

// NewHub creates a hub that reads snapshots through load.
func NewHub(load Loader) *Hub {
	return &Hub{
		load:  load,
		subs:  make(map[string]map[*Subscription]struct{}),
		users: make(map[string]*userState),
	}
}

// acquire returns the user's state and pins it until release.
func (h *Hub) acquire(userID string) *userState {
	h.mu.Lock()
	defer h.mu.Unlock()
	us, ok := h.users[userID]
	if !ok {
		us = &userState{}
		h.users[userID] = us
	}
	us.refs++
	return us
}

// release unpins us, dropping it once nothing uses it and the user has
// no subscriptions.
func (h *Hub) release(userID string, us *userState) {
	h.mu.Lock()
	defer h.mu.Unlock()
	us.refs--
	h.dropIdleLocked(userID)
}

// dropIdleLocked removes the user's state when unused. Caller holds h.mu.
func (h *Hub) dropIdleLocked(userID string) {
	us, ok := h.users[userID]
	if ok && us.refs == 0 && len(h.subs[userID]) == 0 {
		delete(h.users, userID)
	}
}

// Subscribe registers a subscription for userID and delivers the current
// snapshot as its first value. The subscription ends when Cancel is
// called, when ctx is done, or when the hub is closed.
//
// An empty userID yields a subscription whose channel carries one empty
// snapshot and is then closed; nothing is registered.
func (h *Hub) Subscribe(ctx context.Context, userID string) (*Subscription, error) {
	if userID == "" {
		return closedSubscription(Snapshot{Entries: []mood.Entry{}}), nil
	}

	s := newSubscription(h, userID)

	us := h.acquire(userID)
	defer h.release(userID, us)
	us.mu.Lock()
	defer us.mu.Unlock()

	if !h.register(s) {
		s.Cancel()
		return s, nil
	}

	entries, err := h.load(ctx, userID)
	if err != nil {
		h.unregister(s)
		s.Cancel()
		return nil, err
	}
	us.seq++
	us.count = len(entries)
	s.deliver(Snapshot{Seq: us.seq, UserID: userID, Entries: entries})

	go func() {
		select {
		case <-ctx.Done():
			s.Cancel()
		case <-s.done:
		}
	}()

	return s, nil
}

// Publish loads a fresh snapshot for userID and delivers it to every
// active subscriber of that user. It is a no-op when nobody is subscribed.
func (h *Hub) Publish(ctx context.Context, userID string) error {
	if userID == "" {
		return nil
	}

	us := h.acquire(userID)
	defer h.release(userID, us)
	us.mu.Lock()
	defer us.mu.Unlock()

	return h.publishLocked(ctx, userID, us)
}

// publishLocked loads and delivers a snapshot. Caller holds us.mu.
func (h *Hub) publishLocked(ctx context.Context, userID string, us *userState) error {
	targets := h.subscribers(userID)
	if len(targets) == 0 {
		return nil
	}

	entries, err := h.load(ctx, userID)
	if err != nil {
		log.Printf("[live] snapshot load failed for %s: %v", userID, err)
		return err
	}
	us.seq++
	us.count = len(entries)
	snap := Snapshot{Seq: us.seq, UserID: userID, Entries: entries}
	for _, s := range targets {
		s.deliver(snap)
	}
	return nil
}

// Refresh republishes for every subscribed user whose entry count differs
// from the last delivered snapshot. It picks up entries written through
// another hub or process sharing the store.
func (h *Hub) Refresh(ctx context.Context, count Counter) error {
	var firstErr error
	for _, userID := range h.subscribedUsers() {
		if err := h.refreshUser(ctx, userID, count); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (h *Hub) refreshUser(ctx context.Context, userID string, count Counter) error {
	us := h.acquire(userID)
	defer h.release(userID, us)
	us.mu.Lock()
	defer us.mu.Unlock()

	n, err := count(ctx, userID)
	if err != nil {
		return err
	}
	if n == us.count {
		return nil
	}
	return h.publishLocked(ctx, userID, us)
}

// Poll calls Refresh every interval until ctx is done.
func (h *Hub) Poll(ctx context.Context, interval time.Duration, count Counter) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.Refresh(ctx, count); err != nil && ctx.Err() == nil {
				log.Printf("[live] refresh failed: %v", err)
			}
		}
	}
}

// SubscriberCount returns the number of active subscriptions for userID.
func (h *Hub) SubscriberCount(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[userID])
}

// Close cancels every active subscription. Later subscriptions are
// returned already closed.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	var all []*Subscription
	for _, set := range h.subs {
		for s := range set {
			all = append(all, s)
		}
	}
	h.mu.Unlock()

	for _, s := range all {
		s.Cancel()
	}
}

func (h *Hub) register(s *Subscription) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	set, ok := h.subs[s.userID]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[s.userID] = set
	}
	set[s] = struct{}{}
	return true
}

func (h *Hub) unregister(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.subs[s.userID]
	delete(set, s)
	if len(set) == 0 {
		delete(h.subs, s.userID)
		h.dropIdleLocked(s.userID)
	}
}

func (h *Hub) subscribedUsers() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.subs))
	for userID := range h.subs {
		out = append(out, userID)
	}
	return out
}

func (h *Hub) subscribers(userID string) []*Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.subs[userID]
	out := make([]*Subscription, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	return out
}
