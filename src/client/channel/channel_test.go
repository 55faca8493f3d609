package channel_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"leadgrid/src/client/channel"
	"leadgrid/src/push"
)

func TestReconnectDelay(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
		wantOK  bool
	}{
		{1, 1 * time.Second, true},
		{2, 2 * time.Second, true},
		{3, 3 * time.Second, true},
		{4, 4 * time.Second, true},
		{5, 5 * time.Second, true},
		{6, 0, false},
		{100, 0, false},
	}

	for _, tt := range tests {
		got, ok := channel.ReconnectDelay(tt.attempt)
		if ok != tt.wantOK {
			t.Fatalf("ReconnectDelay(%d) ok = %v, want %v", tt.attempt, ok, tt.wantOK)
		}
		if ok && got != tt.want {
			t.Errorf("ReconnectDelay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

// wsTestServer is a minimal push endpoint: it upgrades /ws, sends every event
// queued via send, and records events written back by the client.
type wsTestServer struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu       sync.Mutex
	conns    []*websocket.Conn
	received []push.Event
}

func newWSTestServer(t *testing.T) *wsTestServer {
	t.Helper()
	s := &wsTestServer{}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		s.mu.Lock()
		s.conns = append(s.conns, conn)
		s.mu.Unlock()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			ev, err := push.DecodeEvent(data)
			if err != nil {
				continue
			}
			s.mu.Lock()
			s.received = append(s.received, ev)
			s.mu.Unlock()
		}
	})

	s.srv = httptest.NewServer(mux)
	t.Cleanup(s.srv.Close)
	return s
}

func (s *wsTestServer) send(t *testing.T, kind push.Kind, payload any) {
	t.Helper()
	ev, err := push.NewEvent(kind, payload)
	require.NoError(t, err)
	data, err := ev.Encode()
	require.NoError(t, err)

	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.conns, "no client connected")
	conn := s.conns[len(s.conns)-1]
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

func (s *wsTestServer) receivedEvents() []push.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]push.Event, len(s.received))
	copy(out, s.received)
	return out
}

func waitConnected(t *testing.T, c *channel.Channel) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for !c.Connected() {
		select {
		case <-deadline:
			t.Fatal("channel never connected")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestChannelDispatchOrder(t *testing.T) {
	srv := newWSTestServer(t)

	c := channel.New(srv.srv.URL, channel.WebSocketTransport{})
	defer c.Close()
	waitConnected(t, c)

	var mu sync.Mutex
	var got []int
	done := make(chan struct{})
	c.Subscribe(push.ScrapingProgress, func(ev push.Event) {
		var p struct {
			Seq int `json:"seq"`
		}
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			t.Errorf("bad payload: %v", err)
			return
		}
		mu.Lock()
		got = append(got, p.Seq)
		if len(got) == 5 {
			close(done)
		}
		mu.Unlock()
	})

	for i := 1; i <= 5; i++ {
		srv.send(t, push.ScrapingProgress, map[string]int{"seq": i})
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("events not delivered")
	}

	mu.Lock()
	defer mu.Unlock()
	// Handlers see events in the exact order the connection received them.
	require.Equal(t, []int{1, 2, 3, 4, 5}, got)
}

func TestChannelKindFiltering(t *testing.T) {
	srv := newWSTestServer(t)

	c := channel.New(srv.srv.URL, channel.WebSocketTransport{})
	defer c.Close()
	waitConnected(t, c)

	var mu sync.Mutex
	var createdCount, statsCount int
	statsDone := make(chan struct{})
	c.Subscribe(push.BusinessCreated, func(push.Event) {
		mu.Lock()
		createdCount++
		mu.Unlock()
	})
	c.Subscribe(push.StatsUpdated, func(push.Event) {
		mu.Lock()
		statsCount++
		mu.Unlock()
		close(statsDone)
	})

	srv.send(t, push.BusinessCreated, map[string]string{"id": "1"})
	srv.send(t, push.StatsUpdated, nil)

	select {
	case <-statsDone:
	case <-time.After(2 * time.Second):
		t.Fatal("stats event not delivered")
	}

	mu.Lock()
	defer mu.Unlock()
	if createdCount != 1 || statsCount != 1 {
		t.Errorf("createdCount = %d, statsCount = %d, want 1 and 1", createdCount, statsCount)
	}
}

func TestSubscriptionUnsubscribe(t *testing.T) {
	srv := newWSTestServer(t)

	c := channel.New(srv.srv.URL, channel.WebSocketTransport{})
	defer c.Close()
	waitConnected(t, c)

	var mu sync.Mutex
	var calls int
	first := make(chan struct{})
	var sub *channel.Subscription
	sub = c.Subscribe(push.BusinessEnriched, func(push.Event) {
		mu.Lock()
		calls++
		if calls == 1 {
			close(first)
		}
		mu.Unlock()
		// Unsubscribing from inside a handler must not deadlock and must
		// stop all further deliveries.
		sub.Unsubscribe()
	})

	// Second subscription proves later events still flow to others.
	var otherCalls int
	otherDone := make(chan struct{})
	c.Subscribe(push.BusinessEnriched, func(push.Event) {
		mu.Lock()
		otherCalls++
		if otherCalls == 2 {
			close(otherDone)
		}
		mu.Unlock()
	})

	srv.send(t, push.BusinessEnriched, map[string]string{"id": "1"})
	select {
	case <-first:
	case <-time.After(2 * time.Second):
		t.Fatal("first event not delivered")
	}

	srv.send(t, push.BusinessEnriched, map[string]string{"id": "2"})
	select {
	case <-otherDone:
	case <-time.After(2 * time.Second):
		t.Fatal("second event not delivered to surviving subscription")
	}

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Errorf("unsubscribed handler called %d times, want 1", calls)
	}

	sub.Unsubscribe() // idempotent
}

func TestEmitConnected(t *testing.T) {
	srv := newWSTestServer(t)

	c := channel.New(srv.srv.URL, channel.WebSocketTransport{})
	defer c.Close()
	waitConnected(t, c)

	require.True(t, c.Emit(push.StatsUpdated, map[string]string{"source": "test"}))

	deadline := time.After(2 * time.Second)
	for len(srv.receivedEvents()) == 0 {
		select {
		case <-deadline:
			t.Fatal("server never received emitted event")
		case <-time.After(5 * time.Millisecond):
		}
	}

	events := srv.receivedEvents()
	require.Equal(t, push.StatsUpdated, events[0].Kind)
}

func TestEmitDisconnected(t *testing.T) {
	// Nothing listens on this port; the channel stays disconnected while it
	// retries in the background.
	c := channel.New("http://127.0.0.1:1", channel.WebSocketTransport{})
	defer c.Close()

	if c.Emit(push.StatsUpdated, nil) {
		t.Fatal("Emit reported success while disconnected")
	}
}

func TestChannelReconnect(t *testing.T) {
	srv := newWSTestServer(t)

	c := channel.New(srv.srv.URL, channel.WebSocketTransport{})
	defer c.Close()
	waitConnected(t, c)

	// Kill the server side of the connection and wait for the channel to
	// dial back in.
	srv.mu.Lock()
	srv.conns[0].Close()
	srv.mu.Unlock()

	deadline := time.After(5 * time.Second)
	for {
		srv.mu.Lock()
		reconnected := len(srv.conns) >= 2
		srv.mu.Unlock()
		if reconnected {
			break
		}
		select {
		case <-deadline:
			t.Fatal("channel never reconnected")
		case <-time.After(10 * time.Millisecond):
		}
	}

	waitConnected(t, c)
}

func TestLongPollTransport(t *testing.T) {
	var mu sync.Mutex
	pending := make(map[string][]push.Event)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/events/poll", func(w http.ResponseWriter, r *http.Request) {
		session := r.URL.Query().Get("session")

		mu.Lock()
		events := pending[session]
		pending[session] = nil
		mu.Unlock()

		if events == nil {
			events = []push.Event{}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(events)
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := channel.New(srv.URL, channel.LongPollTransport{})
	defer c.Close()
	waitConnected(t, c)

	ev, err := push.NewEvent(push.EnrichmentCompleted, map[string]string{"jobId": "j1"})
	require.NoError(t, err)

	// Queue the event for every session that registered.
	mu.Lock()
	for session := range pending {
		pending[session] = append(pending[session], ev)
	}
	if len(pending) == 0 {
		// The session registers on dial; if the map is empty the dial never
		// hit the server.
		mu.Unlock()
		t.Fatal("no long-poll session registered")
	}
	mu.Unlock()

	got := make(chan push.Event, 1)
	c.Subscribe(push.EnrichmentCompleted, func(ev push.Event) {
		select {
		case got <- ev:
		default:
		}
	})

	select {
	case ev := <-got:
		require.Equal(t, push.EnrichmentCompleted, ev.Kind)
	case <-time.After(3 * time.Second):
		t.Fatal("long-poll event not delivered")
	}
}
