package http

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"leadgrid/src/infrastructure/log"
	"leadgrid/src/push"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Dashboards are served from arbitrary origins during development.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	defaultPollWait = 25 * time.Second
	maxPollWait     = 30 * time.Second
)

// ServeWebSocket upgrades the connection and attaches it to the hub. The read
// side accepts client-emitted events and rebroadcasts them; the hub owns the
// write side.
func (h *Handler) ServeWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error(err, "websocket upgrade failed")
		return
	}

	h.hub.Register(conn)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			h.hub.Unregister(conn)
			return
		}

		ev, err := push.DecodeEvent(data)
		if err != nil {
			log.Debug("ignoring undecodable client event", "error", err.Error())
			continue
		}
		h.hub.Broadcast(ev)
	}
}

// PollEvents is the long-poll transport: it blocks up to wait for the first
// queued event for the session, then drains and returns the batch.
func (h *Handler) PollEvents(c *gin.Context) {
	session := c.Query("session")
	if session == "" {
		sendError(c, http.StatusBadRequest, errors.New("session parameter is required"))
		return
	}

	wait := defaultPollWait
	if raw := c.Query("wait"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed < 0 {
			sendError(c, http.StatusBadRequest, errors.New("invalid wait duration"))
			return
		}
		wait = parsed
	}
	if wait > maxPollWait {
		wait = maxPollWait
	}

	events := h.hub.Poll(c.Request.Context(), session, wait)
	if events == nil {
		events = []push.Event{}
	}
	sendJSON(c, http.StatusOK, events)
}

// EmitEvent accepts an event from a long-poll client and rebroadcasts it.
func (h *Handler) EmitEvent(c *gin.Context) {
	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		sendError(c, http.StatusBadRequest, err)
		return
	}

	ev, err := push.DecodeEvent(data)
	if err != nil {
		sendError(c, http.StatusBadRequest, err)
		return
	}

	h.hub.Broadcast(ev)
	c.Status(http.StatusAccepted)
}
