// Package alerts streams order lifecycle events over WebSocket so
// client and lawyer frontends can update without polling.
package alerts

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/advoflow/advoflow/internal/metrics"
)

// Event names pushed by the order service.
const (
	EventOrderCreated    = "order.created"
	EventOrderFunded     = "order.funded"
	EventOrderInProgress = "order.in_progress"
	EventOrderDelivered  = "order.delivered"
	EventOrderCompleted  = "order.completed"
	EventOrderCancelled  = "order.cancelled"
	EventOrderDisputed   = "order.disputed"
	EventOrderRefunded   = "order.refunded"
	EventDisputeOpened   = "dispute.opened"

	// EventSecurityViolation flags forged gateway deliveries.
	EventSecurityViolation = "security.violation"
)

// Alert is one pushed notification.
type Alert struct {
	Event     string            `json:"event"`
	Timestamp time.Time         `json:"timestamp"`
	Data      map[string]string `json:"data"`
}

// Subscription narrows which alerts a connection receives. A client
// sends an updated subscription as a JSON text message at any time.
type Subscription struct {
	AllEvents bool     `json:"allEvents"`
	Events    []string `json:"events"`
	// PartyIDs limits alerts to orders where one of these IDs is the
	// client or the lawyer.
	PartyIDs []string `json:"partyIds"`
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	mu   sync.RWMutex
	sub  Subscription
}

// MaxConnections caps concurrent WebSocket connections.
const MaxConnections = 10000

var normalCloseCodes = []int{
	websocket.CloseNormalClosure,
	websocket.CloseGoingAway,
	websocket.CloseNoStatusReceived,
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // non-browser clients
		}
		host := r.Host
		return origin == "http://"+host || origin == "https://"+host
	},
}

// Hub fans alerts out to connected WebSocket clients. It implements
// the order service's Alerter.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan *Alert
	register   chan *client
	unregister chan *client
	mu         sync.RWMutex
	logger     *slog.Logger
	done       chan struct{} // closed when Run exits; prevents upgrade race
	maxConns   int

	totalAlerts atomic.Int64
	peakClients atomic.Int64
}

// NewHub creates an alert hub. Call Run before accepting upgrades.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan *Alert, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		logger:     logger,
		done:       make(chan struct{}),
		maxConns:   MaxConnections,
	}
}

// Run drives the hub until ctx is cancelled, then closes every
// connection.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("alert hub started")
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send) // writePump sends CloseMessage on closed channel
				delete(h.clients, c)
			}
			h.mu.Unlock()
			metrics.ActiveAlertClients.Set(0)
			h.logger.Info("alert hub stopped")
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			if n := int64(len(h.clients)); n > h.peakClients.Load() {
				h.peakClients.Store(n)
			}
			n := len(h.clients)
			h.mu.Unlock()
			metrics.ActiveAlertClients.Set(float64(n))
			h.logger.Info("alert client connected", "total", n)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			metrics.ActiveAlertClients.Set(float64(n))
			h.logger.Info("alert client disconnected", "total", n)

		case alert := <-h.broadcast:
			h.totalAlerts.Add(1)
			payload, err := json.Marshal(alert)
			if err != nil {
				h.logger.Error("failed to serialize alert", "error", err)
				continue
			}
			h.mu.RLock()
			var slow []*client
			for c := range h.clients {
				if !c.wants(alert) {
					continue
				}
				select {
				case c.send <- payload:
				default:
					slow = append(slow, c)
				}
			}
			h.mu.RUnlock()
			// Drop clients that cannot keep up rather than block the hub.
			if len(slow) > 0 {
				h.mu.Lock()
				for _, c := range slow {
					if _, ok := h.clients[c]; ok {
						close(c.send)
						delete(h.clients, c)
					}
				}
				h.mu.Unlock()
			}
		}
	}
}

// Notify queues an alert for broadcast. Implements order.Alerter.
// Drops the alert if the queue is full; alerts are advisory.
func (h *Hub) Notify(event string, payload map[string]string) {
	alert := &Alert{
		Event:     event,
		Timestamp: time.Now().UTC(),
		Data:      payload,
	}
	select {
	case h.broadcast <- alert:
	default:
		h.logger.Warn("alert queue full, dropping", "event", event)
	}
}

func (c *client) wants(alert *Alert) bool {
	c.mu.RLock()
	sub := c.sub
	c.mu.RUnlock()

	if sub.AllEvents {
		return true
	}
	if len(sub.Events) > 0 {
		matched := false
		for _, e := range sub.Events {
			if e == alert.Event {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	if len(sub.PartyIDs) > 0 {
		clientID := alert.Data["client"]
		lawyerID := alert.Data["lawyer"]
		matched := false
		for _, id := range sub.PartyIDs {
			if id == clientID || id == lawyerID {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

// Stats reports hub counters for the admin surface.
func (h *Hub) Stats() map[string]any {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return map[string]any{
		"connectedClients": len(h.clients),
		"totalAlerts":      h.totalAlerts.Load(),
		"peakClients":      h.peakClients.Load(),
	}
}

// HandleWebSocket upgrades the request and attaches it to the hub.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	select {
	case <-h.done:
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	default:
	}

	h.mu.RLock()
	n := len(h.clients)
	h.mu.RUnlock()
	if n >= h.maxConns {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, 64),
		sub:  Subscription{AllEvents: true},
	}
	h.register <- c

	go c.writePump()
	go c.readPump()
}

// readPump consumes subscription updates and pongs.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(16 * 1024)
	_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, normalCloseCodes...) {
				c.hub.logger.Warn("websocket read error", "error", err)
			}
			break
		}
		var sub Subscription
		if err := json.Unmarshal(message, &sub); err == nil {
			c.mu.Lock()
			c.sub = sub
			c.mu.Unlock()
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.hub.logger.Warn("websocket write error", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.hub.logger.Debug("websocket ping failed", "error", err)
				return
			}
		}
	}
}
