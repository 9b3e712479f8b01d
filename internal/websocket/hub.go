// Package websocket streams tracked events to browser and CLI clients over
// WebSocket connections. A Hub is a delivery sink: every flushed batch is
// broadcast to every connected client as one JSON message.
package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/conneroisu/autotrack/internal/events"
	"github.com/conneroisu/autotrack/internal/logging"
	"github.com/conneroisu/autotrack/internal/validation"
)

// MessageTypeEvents tags a broadcast batch of events.
const MessageTypeEvents = "events"

// Message is what clients receive.
type Message struct {
	Type      string         `json:"type"`
	Events    []events.Event `json:"events"`
	Timestamp time.Time      `json:"timestamp"`
}

// OriginValidator decides which origins may connect.
type OriginValidator interface {
	IsAllowedOrigin(origin string) bool
}

// AllowList allows the listed origins or hosts. An empty list or "*"
// allows any.
type AllowList []string

// IsAllowedOrigin implements OriginValidator.
func (a AllowList) IsAllowedOrigin(origin string) bool {
	if len(a) == 0 {
		return true
	}
	return validation.ValidateOrigin(origin, a) == nil
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub manages connections and broadcasts event batches to them.
//
// Invariants:
//   - clients is only touched under mutex
//   - ctx is canceled exactly once, by Shutdown
type Hub struct {
	clients map[*client]struct{}
	mutex   sync.RWMutex

	broadcast  chan []byte
	register   chan *client
	unregister chan *client

	origins OriginValidator
	logger  logging.Logger

	ctx          context.Context
	cancel       context.CancelFunc
	shutdownOnce sync.Once
}

// NewHub creates a hub and starts its broadcast loop.
func NewHub(origins OriginValidator, logger logging.Logger) *Hub {
	if origins == nil {
		origins = AllowList(nil)
	}
	if logger == nil {
		logger = logging.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		clients:    make(map[*client]struct{}),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *client, 32),
		unregister: make(chan *client, 32),
		origins:    origins,
		logger:     logger.WithComponent("websocket"),
		ctx:        ctx,
		cancel:     cancel,
	}
	go h.run()
	return h
}

// ServeHTTP upgrades the request and registers the connection.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.ctx.Err() != nil {
		http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
		return
	}
	if origin := r.Header.Get("Origin"); origin != "" && !h.origins.IsAllowedOrigin(origin) {
		h.logger.Warn(r.Context(), nil, "websocket origin rejected", "origin", origin)
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Origins were checked above.
		InsecureSkipVerify: true,
		CompressionMode:    websocket.CompressionDisabled,
	})
	if err != nil {
		h.logger.Warn(r.Context(), err, "websocket upgrade failed", "remote", r.RemoteAddr)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, 64)}
	select {
	case h.register <- c:
	case <-h.ctx.Done():
		_ = conn.Close(websocket.StatusServiceRestart, "server shutting down")
		return
	}

	go h.writePump(c)
}

func (h *Hub) run() {
	for {
		select {
		case c := <-h.register:
			h.mutex.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mutex.Unlock()
			h.logger.Debug(h.ctx, "websocket client connected", "clients", n)

		case c := <-h.unregister:
			h.drop(c)

		case message := <-h.broadcast:
			h.mutex.RLock()
			for c := range h.clients {
				select {
				case c.send <- message:
				default:
					go func(c *client) { h.unregister <- c }(c)
				}
			}
			h.mutex.RUnlock()

		case <-h.ctx.Done():
			return
		}
	}
}

func (h *Hub) drop(c *client) {
	h.mutex.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mutex.Unlock()
	if ok {
		_ = c.conn.Close(websocket.StatusNormalClosure, "")
		h.logger.Debug(h.ctx, "websocket client disconnected", "clients", n)
	}
}

// writePump forwards broadcasts to one client until it goes away.
func (h *Hub) writePump(c *client) {
	readCtx := c.conn.CloseRead(h.ctx)
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.ctx.Done():
			_ = c.conn.Close(websocket.StatusGoingAway, "server shutting down")
		}
	}()

	for {
		select {
		case message := <-c.send:
			ctx, cancel := context.WithTimeout(h.ctx, 10*time.Second)
			err := c.conn.Write(ctx, websocket.MessageText, message)
			cancel()
			if err != nil {
				return
			}
		case <-readCtx.Done():
			return
		}
	}
}

// Name implements delivery.Sink.
func (h *Hub) Name() string { return "websocket" }

// Send implements delivery.Sink by broadcasting batch to every client.
func (h *Hub) Send(ctx context.Context, batch []events.Event) error {
	if h.ctx.Err() != nil {
		return fmt.Errorf("websocket hub is shut down")
	}
	data, err := json.Marshal(Message{
		Type:      MessageTypeEvents,
		Events:    batch,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	select {
	case h.broadcast <- data:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		h.logger.Warn(ctx, nil, "broadcast channel full, dropping batch", "events", len(batch))
		return nil
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// Shutdown closes every connection and stops the hub.
func (h *Hub) Shutdown(context.Context) error {
	h.shutdownOnce.Do(func() {
		h.cancel()
		h.mutex.Lock()
		for c := range h.clients {
			_ = c.conn.Close(websocket.StatusGoingAway, "server shutdown")
		}
		h.clients = make(map[*client]struct{})
		h.mutex.Unlock()
	})
	return nil
}
