package events

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/platinummonkey/tenantdesk/pkg/observability"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	clientSendSize = 64
)

type client struct {
	conn   *websocket.Conn
	topics map[string]struct{}
	send   chan []byte
	once   sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// Hub delivers events to websocket subscribers in this process. Slow
// clients whose buffer is full are disconnected rather than blocking
// publishers.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *observability.Logger
	metrics  *observability.Metrics

	mu      sync.RWMutex
	clients map[*client]struct{}
}

// NewHub creates a Hub. metrics may be nil.
func NewHub(logger *observability.Logger, metrics *observability.Metrics) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger:  logger,
		metrics: metrics,
		clients: make(map[*client]struct{}),
	}
}

// Publish queues ev for every client subscribed to topic
func (h *Hub) Publish(_ context.Context, topic string, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	h.mu.RLock()
	var slow []*client
	for c := range h.clients {
		if _, ok := c.topics[topic]; !ok {
			continue
		}
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.WithField("topic", topic).Warn("disconnecting slow websocket client")
		h.remove(c)
	}
	return nil
}

// Clients returns the number of connected subscribers
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Serve upgrades the request and streams events for topics until the peer
// goes away. Callers authorize topics before calling Serve.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, topics ...string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Debug("websocket upgrade failed")
		return
	}

	c := &client{conn: conn, topics: make(map[string]struct{}, len(topics)), send: make(chan []byte, clientSendSize)}
	for _, t := range topics {
		c.topics[t] = struct{}{}
	}
	h.add(c)

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.WebsocketClients.Set(float64(n))
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()
	if !ok {
		return
	}
	c.close()
	if h.metrics != nil {
		h.metrics.WebsocketClients.Set(float64(n))
	}
}

// readPump only services control frames; subscribers never send data.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.remove(c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close disconnects every client
func (h *Hub) Close(context.Context) error {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	for _, c := range clients {
		h.remove(c)
	}
	return nil
}
