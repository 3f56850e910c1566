/**
 * @description
 * This file implements the realtime gateway: a WebSocket hub that accepts
 * dashboard connections, delegates email registration to the Registry, and
 * fans messages out either globally or to the connections of one email.
 *
 * Key behaviors:
 * - Delivery is fire-and-forget. Each connection owns a buffered send channel
 *   drained by a write goroutine; a message for a slow or gone connection is
 *   dropped, never retried, and never reported to the sender.
 * - Broadcasting to an email with no registered connections is a logged no-op.
 * - On disconnect the connection is unregistered and a `clientDisconnected`
 *   event carrying the close reason goes to every remaining connection.
 *
 * @dependencies
 * - encoding/json, log, net/http, sync, time: Standard Go libraries.
 * - github.com/google/uuid: Fresh connection identifiers.
 * - github.com/gorilla/websocket: WebSocket upgrade and transport.
 */

package realtime

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Client-sent event names.
const (
	EventRegisterEmail    = "registerEmail"
	EventBroadcastToEmail = "broadcastToEmail"
	EventUpdate           = "update"
)

// Server-sent event names.
const (
	EventEmailBroadcast     = "emailBroadcast"
	EventResponse           = "response"
	EventClientDisconnected = "clientDisconnected"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 16
	sendBufferSize = 32
)

// Envelope is the wire frame for every event in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type registerEmailData struct {
	Email string `json:"email"`
}

type broadcastToEmailData struct {
	Email   string          `json:"email"`
	Message json.RawMessage `json:"message"`
}

type emailBroadcastData struct {
	Message json.RawMessage `json:"message"`
}

type clientDisconnectedData struct {
	Reason string `json:"reason"`
}

// Hub owns the set of live connections and the email registry.
type Hub struct {
	registry *Registry
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*client
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

// NewHub creates a hub around the given registry. checkOrigin may be nil to
// accept all origins (the dashboard is served from a separate host).
func NewHub(registry *Registry, checkOrigin func(r *http.Request) bool) *Hub {
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Hub{
		registry: registry,
		upgrader: websocket.Upgrader{CheckOrigin: checkOrigin},
		clients:  make(map[string]*client),
	}
}

// ServeWS upgrades the request and runs the connection until it closes.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("level=warn component=realtime msg=\"websocket upgrade failed\" err=%v", err)
		return
	}

	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}

	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	log.Printf("level=info component=realtime msg=\"client connected\" conn_id=%s", c.id)

	go c.writePump()
	h.readLoop(c)
}

// readLoop processes inbound events for one connection in arrival order.
func (h *Hub) readLoop(c *client) {
	defer h.dropClient(c, "connection closed")

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("level=warn component=realtime msg=\"unexpected close\" conn_id=%s err=%v", c.id, err)
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			log.Printf("level=warn component=realtime msg=\"malformed event dropped\" conn_id=%s err=%v", c.id, err)
			continue
		}
		h.dispatch(c, env)
	}
}

func (h *Hub) dispatch(c *client, env Envelope) {
	switch env.Event {
	case EventRegisterEmail:
		var data registerEmailData
		if err := json.Unmarshal(env.Data, &data); err != nil || data.Email == "" {
			log.Printf("level=warn component=realtime event=registerEmail msg=\"invalid payload dropped\" conn_id=%s", c.id)
			return
		}
		h.registry.Register(data.Email, c.id)
		log.Printf("level=info component=realtime event=registerEmail conn_id=%s email=%s", c.id, data.Email)

	case EventBroadcastToEmail:
		var data broadcastToEmailData
		if err := json.Unmarshal(env.Data, &data); err != nil || data.Email == "" {
			log.Printf("level=warn component=realtime event=broadcastToEmail msg=\"invalid payload dropped\" conn_id=%s", c.id)
			return
		}
		h.BroadcastToEmail(data.Email, data.Message)

	case EventUpdate:
		h.broadcastAll(Envelope{Event: EventResponse, Data: env.Data})

	default:
		log.Printf("level=warn component=realtime msg=\"unknown event dropped\" conn_id=%s event=%s", c.id, env.Event)
	}
}

// BroadcastToEmail delivers message to every connection registered for email.
// No registered connection is a logged no-op, never an error.
func (h *Hub) BroadcastToEmail(email string, message json.RawMessage) {
	connIDs := h.registry.Lookup(email)
	if len(connIDs) == 0 {
		log.Printf("level=info component=realtime event=broadcastToEmail outcome=no_recipients email=%s", email)
		return
	}

	data, err := json.Marshal(emailBroadcastData{Message: message})
	if err != nil {
		log.Printf("level=error component=realtime event=broadcastToEmail msg=\"marshal failed\" err=%v", err)
		return
	}
	frame := mustFrame(Envelope{Event: EventEmailBroadcast, Data: data})

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, id := range connIDs {
		if c, ok := h.clients[id]; ok {
			c.trySend(frame)
		}
	}
}

// NotifyEmail marshals payload and delivers it as an emailBroadcast event. It
// is the hook the payment pipeline uses to push confirmations to the payer.
func (h *Hub) NotifyEmail(email string, payload interface{}) {
	message, err := json.Marshal(payload)
	if err != nil {
		log.Printf("level=error component=realtime msg=\"notify payload marshal failed\" email=%s err=%v", email, err)
		return
	}
	h.BroadcastToEmail(email, message)
}

// broadcastAll delivers an envelope to every connected client unconditionally.
func (h *Hub) broadcastAll(env Envelope) {
	frame := mustFrame(env)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		c.trySend(frame)
	}
}

// dropClient removes the connection, clears its registrations, and announces
// the departure to every remaining connection as a global event.
func (h *Hub) dropClient(c *client, reason string) {
	h.mu.Lock()
	_, present := h.clients[c.id]
	delete(h.clients, c.id)
	h.mu.Unlock()
	if !present {
		return
	}

	h.registry.Unregister(c.id)
	c.close()
	log.Printf("level=info component=realtime msg=\"client disconnected\" conn_id=%s reason=%q", c.id, reason)

	data, _ := json.Marshal(clientDisconnectedData{Reason: reason})
	h.broadcastAll(Envelope{Event: EventClientDisconnected, Data: data})
}

// Clients returns the number of live connections.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func mustFrame(env Envelope) []byte {
	frame, err := json.Marshal(env)
	if err != nil {
		// Envelope marshal can only fail on invalid Data; drop loudly.
		log.Printf("level=error component=realtime msg=\"envelope marshal failed\" event=%s err=%v", env.Event, err)
		return nil
	}
	return frame
}

// trySend enqueues a frame without blocking; full buffers drop the message.
func (c *client) trySend(frame []byte) {
	if frame == nil {
		return
	}
	select {
	case c.send <- frame:
	default:
		log.Printf("level=warn component=realtime msg=\"send buffer full; message dropped\" conn_id=%s", c.id)
	}
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.send)
	})
}

// writePump drains the send channel onto the socket and keeps the connection
// alive with pings. It owns all writes to the underlying connection.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
