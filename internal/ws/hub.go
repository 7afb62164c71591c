// Package ws provides a lightweight WebSocket pub/sub hub.
// Components broadcast JSON messages through the hub, and every connected
// client receives the ones its filter admits. The hub also handles
// ping/pong keepalives so stale connections get cleaned up automatically.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	pingInterval = 20 * time.Second
	readTimeout  = 60 * time.Second
	writeTimeout = 3 * time.Second
)

type client struct {
	conn   *websocket.Conn
	filter map[string]bool // empty admits everything
}

func (c *client) admits(kind string) bool {
	return len(c.filter) == 0 || c.filter[kind]
}

type message struct {
	kind string
	body []byte
}

// Hub manages WebSocket client connections and fans out broadcast messages
// to them. It is safe for concurrent use; register, unregister, and
// broadcast all go through channels.
type Hub struct {
	log        *zap.Logger
	clients    map[*websocket.Conn]*client
	register   chan *client
	unregister chan *websocket.Conn
	broadcast  chan message
	upgrader   websocket.Upgrader
	dropped    func()

	// registered is called on the Run goroutine after each registration.
	registered func(clients int)
}

// NewHub allocates a hub with buffered channels.
// Call Run in a goroutine to start the event loop.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		log:        logger.Named("ws"),
		clients:    make(map[*websocket.Conn]*client),
		register:   make(chan *client, 16),
		unregister: make(chan *websocket.Conn, 16),
		broadcast:  make(chan message, 256),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Run processes registrations, unregistrations, broadcasts, and keepalive
// pings in a single select loop. It closes all clients when ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			for conn := range h.clients {
				_ = conn.Close()
			}
			return

		case c := <-h.register:
			h.clients[c.conn] = c
			h.log.Debug("client connected", zap.String("remote", c.conn.RemoteAddr().String()), zap.Int("clients", len(h.clients)))
			if h.registered != nil {
				h.registered(len(h.clients))
			}

		case conn := <-h.unregister:
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				_ = conn.Close()
			}

		case msg := <-h.broadcast:
			for conn, c := range h.clients {
				if !c.admits(msg.kind) {
					continue
				}
				_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := conn.WriteMessage(websocket.TextMessage, msg.body); err != nil {
					delete(h.clients, conn)
					_ = conn.Close()
				}
			}

		case <-ping.C:
			for conn := range h.clients {
				_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					delete(h.clients, conn)
					_ = conn.Close()
				}
			}
		}
	}
}

// Handler returns an http.Handler that upgrades incoming requests to
// WebSocket connections and registers them with the hub. A comma-separated
// "filter" query parameter limits which message kinds the client receives.
func (h *Hub) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c := &client{conn: conn, filter: parseFilter(r.URL.Query().Get("filter"))}
		h.register <- c

		go func() {
			defer func() { h.unregister <- conn }()
			_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
			conn.SetPongHandler(func(string) error {
				_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
				return nil
			})

			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	})
}

func parseFilter(raw string) map[string]bool {
	if raw == "" {
		return nil
	}
	out := make(map[string]bool)
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			out[k] = true
		}
	}
	return out
}

// OnDrop registers fn to be called whenever a message is dropped because
// the broadcast queue is full.
func (h *Hub) OnDrop(fn func()) { h.dropped = fn }

// BroadcastJSON marshals v to JSON and queues it for delivery to every
// client whose filter admits kind. If the broadcast channel is full the
// message is dropped rather than blocking the caller.
func (h *Hub) BroadcastJSON(kind string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		h.log.Warn("unencodable broadcast", zap.String("kind", kind), zap.Error(err))
		return
	}
	select {
	case h.broadcast <- message{kind: kind, body: b}:
	default:
		if h.dropped != nil {
			h.dropped()
		}
	}
}
