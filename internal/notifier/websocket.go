package notifier

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsClient is one connected subscriber of the websocket sink.
type wsClient struct {
	conn          *websocket.Conn
	send          chan []byte
	mu            sync.RWMutex
	subscriptions map[EventType]bool
	hub           *WebSocketSink
}

// WebSocketSink broadcasts every SwapEvent it receives to connected
// websocket clients, as one concrete Notifier subscriber among possibly
// several — it implements no HTTP routing, auth, or rate limiting of its
// own; Upgrade is called from whatever handler the caller wires it to.
type WebSocketSink struct {
	mu         sync.RWMutex
	clients    map[*wsClient]bool
	register   chan *wsClient
	unregister chan *wsClient
	broadcast  chan []byte
}

// NewWebSocketSink creates an unstarted sink; call Run in a goroutine and
// Handler() as a Notifier subscriber.
func NewWebSocketSink() *WebSocketSink {
	return &WebSocketSink{
		clients:    make(map[*wsClient]bool),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		broadcast:  make(chan []byte, 256),
	}
}

// Run drives the sink's registration/broadcast loop until stopCh is closed.
func (s *WebSocketSink) Run(stopCh <-chan struct{}) {
	for {
		select {
		case <-stopCh:
			return
		case client := <-s.register:
			s.mu.Lock()
			s.clients[client] = true
			s.mu.Unlock()
			log.Debug("websocket client connected", "clients", len(s.clients))

		case client := <-s.unregister:
			s.mu.Lock()
			if _, ok := s.clients[client]; ok {
				delete(s.clients, client)
				close(client.send)
			}
			s.mu.Unlock()
			log.Debug("websocket client disconnected", "clients", len(s.clients))

		case data := <-s.broadcast:
			s.mu.RLock()
			for client := range s.clients {
				select {
				case client.send <- data:
				default:
					log.Warn("websocket client buffer full, dropping")
				}
			}
			s.mu.RUnlock()
		}
	}
}

// Handler returns a notifier.Handler that broadcasts every event to
// connected websocket clients as JSON.
func (s *WebSocketSink) Handler() Handler {
	return func(event SwapEvent) {
		data, err := json.Marshal(event)
		if err != nil {
			log.Error("failed to marshal swap event for websocket broadcast", "error", err)
			return
		}
		select {
		case s.broadcast <- data:
		default:
			log.Warn("websocket broadcast channel full, dropping event", "event_type", event.EventType)
		}
	}
}

// Upgrade upgrades an HTTP connection to a websocket subscriber.
func (s *WebSocketSink) Upgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &wsClient{
		conn:          conn,
		send:          make(chan []byte, 256),
		subscriptions: make(map[EventType]bool),
		hub:           s,
	}
	s.register <- client

	go client.writePump()
	go client.readPump()
}

func (c *wsClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
