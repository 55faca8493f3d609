package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"leadgrid/src/push"
)

// Conn is one established push connection, transport-agnostic.
type Conn interface {
	// ReadEvent blocks until the next event arrives or the connection dies.
	ReadEvent() (push.Event, error)
	// WriteEvent sends an event to the server.
	WriteEvent(push.Event) error
	Close() error
}

// Transport dials one kind of push connection. Transports are attempted in
// preference order on every (re)connect.
type Transport interface {
	Name() string
	Dial(ctx context.Context, baseURL string) (Conn, error)
}

const dialTimeout = 10 * time.Second

// WebSocketTransport is the primary transport.
type WebSocketTransport struct{}

func (WebSocketTransport) Name() string { return "websocket" }

func (WebSocketTransport) Dial(ctx context.Context, baseURL string) (Conn, error) {
	wsURL, err := websocketURL(baseURL)
	if err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	conn, resp, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial failed with status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}

	return &wsConn{conn: conn}, nil
}

func websocketURL(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid push url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported push url scheme: %s", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String(), nil
}

type wsConn struct {
	conn *websocket.Conn

	// gorilla allows one concurrent writer; reads stay on the manager
	// goroutine.
	writeMu sync.Mutex
}

func (c *wsConn) ReadEvent() (push.Event, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return push.Event{}, err
	}
	return push.DecodeEvent(data)
}

func (c *wsConn) WriteEvent(ev push.Event) error {
	data, err := ev.Encode()
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(dialTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}

// LongPollTransport is the fallback transport for networks that do not pass
// websocket upgrades. It trades latency for reachability.
type LongPollTransport struct{}

func (LongPollTransport) Name() string { return "polling" }

const pollWait = 25 * time.Second

func (LongPollTransport) Dial(ctx context.Context, baseURL string) (Conn, error) {
	session := uuid.NewString()
	connCtx, cancel := context.WithCancel(context.Background())

	c := &pollConn{
		httpClient: &http.Client{Timeout: pollWait + dialTimeout},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		session:    session,
		ctx:        connCtx,
		cancel:     cancel,
	}

	// Register the session eagerly so events queue from now on, and so a dead
	// server fails the dial instead of the first read.
	if err := c.poll(ctx, 0); err != nil {
		cancel()
		return nil, fmt.Errorf("long-poll registration failed: %w", err)
	}

	return c, nil
}

type pollConn struct {
	httpClient *http.Client
	baseURL    string
	session    string
	ctx        context.Context
	cancel     context.CancelFunc

	mu     sync.Mutex
	queued []push.Event
}

func (c *pollConn) ReadEvent() (push.Event, error) {
	for {
		c.mu.Lock()
		if len(c.queued) > 0 {
			ev := c.queued[0]
			c.queued = c.queued[1:]
			c.mu.Unlock()
			return ev, nil
		}
		c.mu.Unlock()

		if err := c.poll(c.ctx, pollWait); err != nil {
			return push.Event{}, err
		}
	}
}

func (c *pollConn) poll(ctx context.Context, wait time.Duration) error {
	pollURL := fmt.Sprintf("%s/api/events/poll?session=%s&wait=%s", c.baseURL, c.session, wait)
	req, err := http.NewRequestWithContext(ctx, "GET", pollURL, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("poll returned status %d", resp.StatusCode)
	}

	var events []push.Event
	if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
		return fmt.Errorf("failed to decode poll response: %w", err)
	}

	c.mu.Lock()
	c.queued = append(c.queued, events...)
	c.mu.Unlock()
	return nil
}

func (c *pollConn) WriteEvent(ev push.Event) error {
	data, err := ev.Encode()
	if err != nil {
		return err
	}

	emitURL := fmt.Sprintf("%s/api/events/emit?session=%s", c.baseURL, c.session)
	req, err := http.NewRequestWithContext(c.ctx, "POST", emitURL, strings.NewReader(string(data)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("emit returned status %d", resp.StatusCode)
	}
	return nil
}

func (c *pollConn) Close() error {
	c.cancel()
	return nil
}
