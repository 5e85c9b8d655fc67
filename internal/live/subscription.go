package live

import "sync"

// Subscription is a live view of one user's entries with a cancel handle.
type Subscription struct {
	hub    *Hub
	userID string

	ch   chan Snapshot
	done chan struct{}

	mu     sync.Mutex
	closed bool
	once   sync.Once
}

func newSubscription(h *Hub, userID string) *Subscription {
	return &Subscription{
		hub:    h,
		userID: userID,
		ch:     make(chan Snapshot, 1),
		done:   make(chan struct{}),
	}
}

// closedSubscription returns a finished subscription whose channel holds
// only snap.
func closedSubscription(snap Snapshot) *Subscription {
	s := newSubscription(nil, snap.UserID)
	s.ch <- snap
	s.once.Do(func() {
		s.closed = true
		close(s.ch)
		close(s.done)
	})
	return s
}

// UserID returns the identity this subscription follows ("" for absent).
func (s *Subscription) UserID() string { return s.userID }

// Updates returns the snapshot channel. Only the latest undelivered
// snapshot is kept; the channel is closed on cancellation.
func (s *Subscription) Updates() <-chan Snapshot { return s.ch }

// Done is closed once the subscription has been cancelled.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Cancel ends delivery. Once it returns no further snapshot can be
// received. Safe to call more than once and from any goroutine.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		if s.hub != nil {
			s.hub.unregister(s)
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		s.closed = true
		// Drop anything not yet read
		select {
		case <-s.ch:
		default:
		}
		close(s.ch)
		close(s.done)
	})
}

// deliver replaces any pending snapshot with snap. No-op after Cancel.
func (s *Subscription) deliver(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case <-s.ch:
	default:
	}
	s.ch <- snap
}
