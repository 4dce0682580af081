package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/ayusman/candlelight/internal/geometry"
)

const writeTimeout = time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// Message is a client message on /api/events.
type Message struct {
	Type  string         `json:"type"`
	Rect  *geometry.Rect `json:"rect,omitempty"`
	Mount bool           `json:"mount,omitempty"`
}

// Client message types.
const (
	MessageLayout  = "layout"
	MessageRelight = "relight"
)

type client struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, msg)
}

// EventsHandler pushes session snapshots to WebSocket clients and applies
// layout and relight messages they send.
type EventsHandler struct {
	session  Controller
	interval time.Duration
	logger   zerolog.Logger

	clients map[string]*client
	mu      sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewEventsHandler creates a handler and starts pushing snapshots every
// interval while at least one client is connected.
func NewEventsHandler(session Controller, interval time.Duration, logger zerolog.Logger) *EventsHandler {
	ctx, cancel := context.WithCancel(context.Background())
	h := &EventsHandler{
		session:  session,
		interval: interval,
		logger:   logger,
		clients:  make(map[string]*client),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go h.broadcast()
	return h
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.ctx.Err() != nil {
		http.Error(w, "Server shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	c := &client{id: uuid.New().String(), conn: conn}
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	h.logger.Debug().Str("client", c.id).Msg("Display connected")

	defer func() {
		h.mu.Lock()
		delete(h.clients, c.id)
		h.mu.Unlock()
		h.logger.Debug().Str("client", c.id).Msg("Display disconnected")
	}()

	// Send the current state right away so the display does not wait a tick.
	if msg, err := json.Marshal(h.session.Snapshot()); err == nil {
		if err := c.write(msg); err != nil {
			return
		}
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		h.handleMessage(c, data)
	}
}

func (h *EventsHandler) handleMessage(c *client, data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		h.logger.Debug().Err(err).Str("client", c.id).Msg("Ignoring malformed message")
		return
	}

	switch msg.Type {
	case MessageLayout:
		if msg.Rect == nil {
			return
		}
		if err := applyLayout(h.session, layoutRequest{Mount: msg.Mount, Rect: *msg.Rect}); err != nil {
			h.logger.Debug().Err(err).Str("client", c.id).Msg("Ignoring layout")
		}
	case MessageRelight:
		h.session.Relight()
	default:
		h.logger.Debug().Str("type", msg.Type).Str("client", c.id).Msg("Ignoring unknown message")
	}
}

// broadcast sends snapshots to all connected clients.
func (h *EventsHandler) broadcast() {
	defer close(h.done)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return
		case <-ticker.C:
		}

		clients := h.snapshotClients()
		if len(clients) == 0 {
			continue
		}

		msg, err := json.Marshal(h.session.Snapshot())
		if err != nil {
			h.logger.Warn().Err(err).Msg("Encode snapshot")
			continue
		}

		for _, c := range clients {
			if err := c.write(msg); err != nil {
				// The reader loop notices the broken connection and removes it.
				c.conn.Close()
			}
		}
	}
}

func (h *EventsHandler) snapshotClients() []*client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	return clients
}

// Clients returns the number of connected clients.
func (h *EventsHandler) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close stops broadcasting and disconnects every client.
func (h *EventsHandler) Close() {
	h.cancel()
	<-h.done

	for _, c := range h.snapshotClients() {
		c.mu.Lock()
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(writeTimeout))
		c.mu.Unlock()
		c.conn.Close()
	}
}
