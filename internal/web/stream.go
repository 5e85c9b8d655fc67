package web

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hpungsan/moodlog/internal/errors"
	"github.com/hpungsan/moodlog/internal/live"
	"github.com/hpungsan/moodlog/internal/mood"
	"github.com/hpungsan/moodlog/internal/ops"
)

// closeSessionEnded is sent when a WebSocket stream ends because its
// session was revoked or expired (private-use close code range).
const closeSessionEnded = 4001

const wsWriteTimeout = 10 * time.Second

// upgrader keeps gorilla's default same-origin check.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// streamMessage is one snapshot as sent to stream clients.
type streamMessage struct {
	Type    string       `json:"type"`
	Seq     uint64       `json:"seq"`
	Entries []mood.Entry `json:"entries"`
}

func snapshotMessage(snap live.Snapshot) streamMessage {
	return streamMessage{Type: "snapshot", Seq: snap.Seq, Entries: snap.Entries}
}

// liveStream is one open SSE or WebSocket stream. Snapshots are written
// under mu, so once end returns nothing more is sent on the stream.
type liveStream struct {
	sub *live.Subscription

	mu    sync.Mutex
	ended bool
}

// end stops the stream for its session. The stream loop then reports
// the sign-out to the client.
func (s *liveStream) end() {
	s.mu.Lock()
	s.ended = true
	s.mu.Unlock()
	s.sub.Cancel()
}

func (s *liveStream) isEnded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

// send runs write unless the stream has ended. It reports whether write ran.
func (s *liveStream) send(write func() error) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return false, nil
	}
	return true, write()
}

// streamRegistry tracks open streams by the token that opened them.
type streamRegistry struct {
	mu      sync.Mutex
	byToken map[string]map[*liveStream]struct{}
}

func newStreamRegistry() *streamRegistry {
	return &streamRegistry{byToken: make(map[string]map[*liveStream]struct{})}
}

// open registers a stream for token. The returned func unregisters it.
func (r *streamRegistry) open(token string, sub *live.Subscription) (*liveStream, func()) {
	ls := &liveStream{sub: sub}
	r.mu.Lock()
	set, ok := r.byToken[token]
	if !ok {
		set = make(map[*liveStream]struct{})
		r.byToken[token] = set
	}
	set[ls] = struct{}{}
	r.mu.Unlock()

	return ls, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.byToken[token], ls)
		if len(r.byToken[token]) == 0 {
			delete(r.byToken, token)
		}
	}
}

// endToken ends every stream opened with token and returns how many.
func (r *streamRegistry) endToken(token string) int {
	r.mu.Lock()
	streams := make([]*liveStream, 0, len(r.byToken[token]))
	for ls := range r.byToken[token] {
		streams = append(streams, ls)
	}
	r.mu.Unlock()

	for _, ls := range streams {
		ls.end()
	}
	return len(streams)
}

// sessionValid re-resolves token. Lookup errors keep the stream open.
func (h *Handlers) sessionValid(ctx context.Context, token string) bool {
	id, err := h.auth.Resolve(ctx, token)
	if err != nil {
		log.Printf("[web] session check failed: %v", err)
		return true
	}
	return id != nil
}

// HandleStream handles GET /api/entries/stream - Server-Sent Events with
// one "snapshot" event per change to the user's entries.
func (h *Handlers) HandleStream(w http.ResponseWriter, r *http.Request) {
	sess, err := h.requireSession(r)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.renderer.renderError(w, r, errors.NewInternal(fmt.Errorf("streaming unsupported")))
		return
	}

	sub, err := ops.Subscribe(r.Context(), h.hub, sess)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	defer sub.Cancel()

	token := requestToken(r)
	stream, unregister := h.streams.open(token, sub)
	defer unregister()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	rc := http.NewResponseController(w)
	signedOut := func() {
		_ = writeEvent(w, "signed_out", map[string]any{"type": "signed_out"})
		flusher.Flush()
	}

	ticker := time.NewTicker(h.sessionCheck)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case snap, ok := <-sub.Updates():
			if !ok {
				if stream.isEnded() {
					signedOut()
				}
				return
			}
			sent, err := stream.send(func() error {
				_ = rc.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				if err := writeEvent(w, "snapshot", snapshotMessage(snap)); err != nil {
					return err
				}
				flusher.Flush()
				return nil
			})
			if err != nil {
				return
			}
			if !sent {
				signedOut()
				return
			}
		case <-ticker.C:
			if !h.sessionValid(r.Context(), token) {
				stream.end()
				signedOut()
				return
			}
			_ = rc.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// writeEvent writes one SSE event with a JSON payload.
func writeEvent(w http.ResponseWriter, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

// HandleWebSocket handles GET /api/entries/ws - the same snapshots as
// HandleStream, one JSON text message each.
func (h *Handlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	sess, err := h.requireSession(r)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied
		log.Printf("[web] websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	// The request context is not cancelled by a hijacked client going away,
	// so the read loop below owns cancellation
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sub, err := ops.Subscribe(ctx, h.hub, sess)
	if err != nil {
		log.Printf("[web] subscribe failed: %v", err)
		closeConn(conn, websocket.CloseInternalServerErr, "subscribe failed")
		return
	}
	defer sub.Cancel()

	token := requestToken(r)
	stream, unregister := h.streams.open(token, sub)
	defer unregister()

	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.sessionCheck)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-sub.Updates():
			if !ok {
				if stream.isEnded() {
					closeConn(conn, closeSessionEnded, "signed out")
				} else {
					closeConn(conn, websocket.CloseGoingAway, "stream closed")
				}
				return
			}
			sent, err := stream.send(func() error {
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				return conn.WriteJSON(snapshotMessage(snap))
			})
			if err != nil {
				return
			}
			if !sent {
				closeConn(conn, closeSessionEnded, "signed out")
				return
			}
		case <-ticker.C:
			if !h.sessionValid(ctx, token) {
				stream.end()
				closeConn(conn, closeSessionEnded, "signed out")
				return
			}
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
		}
	}
}

func closeConn(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(2*time.Second))
}
