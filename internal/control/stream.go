// Package control is the thin HTTP/WebSocket adapter over the core's
// typed control-surface methods. It holds no business logic of its
// own: every handler delegates to the orchestrator, the repository, or
// the event bus and only shapes the response.
package control

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/koshedutech/equities-trader/internal/events"
	"github.com/koshedutech/equities-trader/internal/logging"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsClient is one connected operator-UI socket.
type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans every EventBus publication out to connected WebSocket
// clients, the same register/unregister/broadcast-channel shape as the
// teacher's internal/api WSHub, subscribed here instead of wired
// through BotAPI since the core has no single "bot" object.
type Hub struct {
	mu         sync.RWMutex
	clients    map[*wsClient]bool
	broadcast  chan []byte
	register   chan *wsClient
	unregister chan *wsClient
	log        *logging.Logger
}

// NewHub builds a Hub and subscribes it to every event on bus. Call Run
// in its own goroutine to start serving.
func NewHub(bus *events.EventBus, log *logging.Logger) *Hub {
	h := &Hub{
		clients:    make(map[*wsClient]bool),
		broadcast:  make(chan []byte, 1024),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		log:        log,
	}
	bus.SubscribeAll(func(ev events.Event) {
		payload, err := json.Marshal(ev)
		if err != nil {
			return
		}
		select {
		case h.broadcast <- payload:
		default:
			if h.log != nil {
				h.log.Warn("control: websocket broadcast channel full, dropping event", "type", string(ev.Type))
			}
		}
	})
	return h
}

// Run drains the register/unregister/broadcast channels until ctx-less
// shutdown; it is meant to run for the process lifetime.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
		case msg := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					close(c.send)
					delete(h.clients, c)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// ServeWS upgrades an HTTP request to a WebSocket and registers the
// client with the hub until it disconnects.
func (h *Hub) ServeWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	client := &wsClient{conn: conn, send: make(chan []byte, 256)}
	h.register <- client

	go h.writePump(client)
	h.readPump(client)
}

// readPump discards client messages (this stream is server-to-client
// only) but must keep reading to notice a closed connection.
func (h *Hub) readPump(c *wsClient) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *wsClient) {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}
