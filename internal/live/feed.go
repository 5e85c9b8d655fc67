package live

import (
	"context"
	"sync"
)

// Feed holds at most one subscription and restarts it when the followed
// identity changes.
type Feed struct {
	hub *Hub

	mu  sync.Mutex
	cur *Subscription
}

// NewFeed creates a feed over hub.
func NewFeed(hub *Hub) *Feed {
	return &Feed{hub: hub}
}

// Switch cancels the current subscription, if any, then subscribes to
// userID. An empty userID leaves the feed on the absent-session
// subscription.
func (f *Feed) Switch(ctx context.Context, userID string) (*Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.cur != nil {
		f.cur.Cancel()
		f.cur = nil
	}

	s, err := f.hub.Subscribe(ctx, userID)
	if err != nil {
		return nil, err
	}
	f.cur = s
	return s, nil
}

// Current returns the active subscription or nil.
func (f *Feed) Current() *Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cur
}

// Close cancels the current subscription.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cur != nil {
		f.cur.Cancel()
		f.cur = nil
	}
}
