package ws

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"OptionPulse/internal/domain/models"
	"OptionPulse/pkg/logger"
)

const (
	// liveness: a client that neither reads nor pongs for this long is
	// pruned so dead dashboard tabs do not pile up.
	pongWait     = 5 * time.Minute
	pingInterval = time.Minute
	writeWait    = 10 * time.Second

	// sendBuffer bounds the per-client queue; a client that cannot keep
	// up with one snapshot per poll gets disconnected, not buffered.
	sendBuffer = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The dashboard is served from arbitrary origins in development.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub fans published snapshots out to connected dashboard clients. It is the
// Broadcaster the orchestrator publishes through.
type Hub struct {
	log *logger.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		log:     log,
		clients: make(map[*client]struct{}),
	}
}

// Broadcast marshals the snapshot once and queues it to every client. Clients
// with a full send queue are dropped; the next snapshot supersedes this one
// anyway.
func (h *Hub) Broadcast(snap *models.PublishedSnapshot) {
	payload, err := json.Marshal(snap)
	if err != nil {
		h.log.Error("snapshot marshal failed", logger.Error(err))
		return
	}

	h.mu.RLock()
	var slow []*client
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.log.Warn("dropping slow websocket client", logger.String("remote", c.remote))
		h.remove(c)
	}
}

// Subscribers returns the connected client count.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Serve upgrades the request and runs the client until it disconnects or
// goes silent past the liveness window.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := &client{
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		remote: r.RemoteAddr,
	}
	h.add(c)
	h.log.Info("websocket client connected", logger.String("remote", c.remote), logger.Int("subscribers", h.Subscribers()))

	go c.writePump()
	go h.readPump(c)
	return nil
}

// Close disconnects every client. Used on shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if ok {
		c.close()
		h.log.Info("websocket client disconnected", logger.String("remote", c.remote), logger.Int("subscribers", h.Subscribers()))
	}
}

// readPump discards inbound frames; the stream is one-way. Its real job is
// keeping the liveness deadline fresh via the pong handler.
func (h *Hub) readPump(c *client) {
	defer h.remove(c)

	c.conn.SetReadLimit(1024)
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

type client struct {
	conn   *websocket.Conn
	send   chan []byte
	remote string

	closeOnce sync.Once
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.send)
		_ = c.conn.Close()
	})
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
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
