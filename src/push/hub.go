package push

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"leadgrid/src/infrastructure/log"
)

const (
	// Per-subscriber queue depth. Delivery is best-effort: a subscriber that
	// cannot drain its queue loses events rather than blocking the hub.
	sendQueueSize = 64

	writeTimeout = 10 * time.Second

	// Long-poll sessions that have not polled for this long are dropped.
	sessionIdleTimeout = 2 * time.Minute
)

// Hub fans server-pushed events out to every connected client. It serves two
// transports: websocket connections and long-poll sessions. The hub is shared
// process-wide; clients come and go.
type Hub struct {
	mu       sync.RWMutex
	conns    map[*websocket.Conn]chan Event
	sessions map[string]*pollSession
}

type pollSession struct {
	queue    chan Event
	lastSeen time.Time
}

func NewHub() *Hub {
	return &Hub{
		conns:    make(map[*websocket.Conn]chan Event),
		sessions: make(map[string]*pollSession),
	}
}

// Register attaches a websocket connection and starts its writer. The
// connection is removed on the first write failure; the caller owns reads.
func (h *Hub) Register(conn *websocket.Conn) {
	queue := make(chan Event, sendQueueSize)

	h.mu.Lock()
	h.conns[conn] = queue
	h.mu.Unlock()

	go func() {
		for ev := range queue {
			payload, err := ev.Encode()
			if err != nil {
				log.Error(err, "failed to encode push event", "kind", ev.Kind)
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				h.Unregister(conn)
				return
			}
		}
	}()
}

// Unregister detaches a websocket connection. Safe to call more than once.
func (h *Hub) Unregister(conn *websocket.Conn) {
	h.mu.Lock()
	queue, ok := h.conns[conn]
	if ok {
		delete(h.conns, conn)
	}
	h.mu.Unlock()

	if ok {
		close(queue)
		conn.Close()
	}
}

// OpenSession creates (or refreshes) a long-poll session. Events broadcast
// after this point are queued for the session until it polls.
func (h *Hub) OpenSession(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if s, ok := h.sessions[id]; ok {
		s.lastSeen = time.Now()
		return
	}
	h.sessions[id] = &pollSession{
		queue:    make(chan Event, sendQueueSize),
		lastSeen: time.Now(),
	}
}

// Poll drains queued events for the session, waiting up to wait for the first
// one. It returns an empty slice on timeout so the client can re-poll.
func (h *Hub) Poll(ctx context.Context, id string, wait time.Duration) []Event {
	h.mu.Lock()
	s, ok := h.sessions[id]
	if !ok {
		s = &pollSession{
			queue:    make(chan Event, sendQueueSize),
			lastSeen: time.Now(),
		}
		h.sessions[id] = s
	}
	s.lastSeen = time.Now()
	h.mu.Unlock()

	var events []Event
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case ev := <-s.queue:
		events = append(events, ev)
	case <-timer.C:
		return events
	case <-ctx.Done():
		return events
	}

	// Drain whatever else is already queued without waiting again.
	for {
		select {
		case ev := <-s.queue:
			events = append(events, ev)
		default:
			return events
		}
	}
}

// CloseSession removes a long-poll session.
func (h *Hub) CloseSession(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, id)
}

// Broadcast delivers the event to every websocket connection and long-poll
// session. Subscribers with a full queue are skipped.
func (h *Hub) Broadcast(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for conn, queue := range h.conns {
		select {
		case queue <- ev:
		default:
			log.Info("dropping push event for slow websocket subscriber",
				"kind", ev.Kind, "remote", conn.RemoteAddr().String())
		}
	}

	for id, s := range h.sessions {
		select {
		case s.queue <- ev:
		default:
			log.Info("dropping push event for slow poll session",
				"kind", ev.Kind, "session", id)
		}
	}
}

// ReapIdleSessions drops long-poll sessions that stopped polling. Intended to
// run periodically from the server loop.
func (h *Hub) ReapIdleSessions() {
	h.mu.Lock()
	defer h.mu.Unlock()

	cutoff := time.Now().Add(-sessionIdleTimeout)
	for id, s := range h.sessions {
		if s.lastSeen.Before(cutoff) {
			delete(h.sessions, id)
		}
	}
}

// ConnCount returns the number of attached websocket connections.
func (h *Hub) ConnCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}
