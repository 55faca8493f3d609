// Package channel maintains a live push connection to the server's event
// feed. Delivery is best-effort by design: subscribers use events as hints
// to refresh, never as the source of truth, so a dropped connection degrades
// the experience without corrupting any state.
package channel

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"leadgrid/src/infrastructure/log"
	"leadgrid/src/push"
)

const (
	// MaxReconnectAttempts bounds consecutive failed reconnects before the
	// channel gives up for good.
	MaxReconnectAttempts = 5

	// ReconnectBaseDelay grows linearly with the attempt number.
	ReconnectBaseDelay = time.Second

	// ReconnectMaxDelay caps the backoff.
	ReconnectMaxDelay = 5 * time.Second
)

// ReconnectDelay returns how long to wait before reconnect attempt n
// (1-based). The second return value is false once the attempt budget is
// exhausted.
func ReconnectDelay(attempt int) (time.Duration, bool) {
	if attempt > MaxReconnectAttempts {
		return 0, false
	}
	delay := time.Duration(attempt) * ReconnectBaseDelay
	if delay > ReconnectMaxDelay {
		delay = ReconnectMaxDelay
	}
	return delay, true
}

// Handler receives one event. Handlers run on the channel's dispatch
// goroutine in receipt order; keep them cheap.
type Handler func(push.Event)

// Subscription is one registered handler. Unsubscribe guarantees the handler
// is never invoked for events received afterwards.
type Subscription struct {
	ch     *Channel
	kind   push.Kind
	fn     Handler
	active atomic.Bool
}

// Unsubscribe deactivates the handler. Idempotent, safe from any goroutine
// including the handler itself.
func (s *Subscription) Unsubscribe() {
	if !s.active.CompareAndSwap(true, false) {
		return
	}
	s.ch.remove(s)
}

// Channel is a self-healing push connection. It tries each transport in
// order on every connect, reconnects with bounded linear backoff after a
// drop, and goes silent once the attempt budget runs out.
type Channel struct {
	baseURL    string
	transports []Transport

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	conn      Conn
	connected bool
	lastErr   error
	subs      map[push.Kind][]*Subscription
}

// New creates a channel and starts connecting in the background. The default
// transport order is websocket first, long-poll fallback.
func New(baseURL string, transports ...Transport) *Channel {
	if len(transports) == 0 {
		transports = []Transport{WebSocketTransport{}, LongPollTransport{}}
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Channel{
		baseURL:    baseURL,
		transports: transports,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		subs:       make(map[push.Kind][]*Subscription),
	}

	go c.manage()
	return c
}

// Connected reports whether a transport is currently established.
func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// LastError returns the most recent connection error, if any.
func (c *Channel) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Subscribe registers a handler for one event kind.
func (c *Channel) Subscribe(kind push.Kind, fn Handler) *Subscription {
	s := &Subscription{ch: c, kind: kind, fn: fn}
	s.active.Store(true)

	c.mu.Lock()
	c.subs[kind] = append(c.subs[kind], s)
	c.mu.Unlock()
	return s
}

func (c *Channel) remove(sub *Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()

	list := c.subs[sub.kind]
	for i, s := range list {
		if s == sub {
			c.subs[sub.kind] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
}

// Emit sends an event to the server. It reports false without attempting a
// send when the channel is disconnected; callers fall back to polling.
func (c *Channel) Emit(kind push.Kind, payload any) bool {
	ev, err := push.NewEvent(kind, payload)
	if err != nil {
		log.Error(err, "failed to build push event", "kind", string(kind))
		return false
	}

	c.mu.Lock()
	conn := c.conn
	connected := c.connected
	c.mu.Unlock()

	if !connected || conn == nil {
		log.Debug("emit skipped, channel disconnected", "kind", string(kind))
		return false
	}

	if err := conn.WriteEvent(ev); err != nil {
		log.Debug("emit failed", "kind", string(kind), "error", err.Error())
		return false
	}
	return true
}

// Close tears the channel down. Pending handlers may still complete; no new
// events are dispatched after Close returns and the manager has exited.
func (c *Channel) Close() {
	c.cancel()

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		conn.Close()
	}

	<-c.done
}

// manage is the connection lifecycle: dial, pump events until the connection
// drops, back off, repeat. A successful connect resets the attempt budget.
func (c *Channel) manage() {
	defer close(c.done)

	attempt := 0
	for {
		if c.ctx.Err() != nil {
			return
		}

		conn, name, err := c.dial()
		if err != nil {
			c.setDisconnected(err)

			attempt++
			delay, ok := ReconnectDelay(attempt)
			if !ok {
				// Out of attempts. Give up quietly: the reconciler keeps
				// polling, so the UI stays correct without push.
				log.Info("push channel gave up reconnecting", "attempts", attempt-1)
				return
			}

			select {
			case <-c.ctx.Done():
				return
			case <-time.After(delay):
			}
			continue
		}

		attempt = 0
		c.setConnected(conn)
		log.Debug("push channel connected", "transport", name)

		c.pump(conn)
		conn.Close()
		c.setDisconnected(nil)

		if c.ctx.Err() != nil {
			return
		}
		log.Debug("push channel disconnected, reconnecting")
	}
}

func (c *Channel) dial() (Conn, string, error) {
	var lastErr error
	for _, t := range c.transports {
		conn, err := t.Dial(c.ctx, c.baseURL)
		if err == nil {
			return conn, t.Name(), nil
		}
		lastErr = err
		log.Debug("push transport failed", "transport", t.Name(), "error", err.Error())
	}
	return nil, "", lastErr
}

// pump reads events until the connection breaks, dispatching each in receipt
// order from this single goroutine.
func (c *Channel) pump(conn Conn) {
	for {
		ev, err := conn.ReadEvent()
		if err != nil {
			if c.ctx.Err() == nil {
				c.mu.Lock()
				c.lastErr = err
				c.mu.Unlock()
			}
			return
		}
		c.dispatch(ev)
	}
}

func (c *Channel) dispatch(ev push.Event) {
	c.mu.Lock()
	subs := make([]*Subscription, len(c.subs[ev.Kind]))
	copy(subs, c.subs[ev.Kind])
	c.mu.Unlock()

	for _, s := range subs {
		// Re-checked per delivery: an unsubscribe between snapshot and
		// invocation wins.
		if s.active.Load() {
			s.fn(ev)
		}
	}
}

func (c *Channel) setConnected(conn Conn) {
	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.lastErr = nil
	c.mu.Unlock()
}

func (c *Channel) setDisconnected(err error) {
	c.mu.Lock()
	c.conn = nil
	c.connected = false
	if err != nil {
		c.lastErr = err
	}
	c.mu.Unlock()
}
