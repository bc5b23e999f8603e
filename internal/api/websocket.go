package api

import (
	"context"
	"encoding/json"
	"maps"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/lampfleet-core/internal/auth"
	"github.com/nerrad567/lampfleet-core/internal/infrastructure/config"
	"github.com/nerrad567/lampfleet-core/internal/infrastructure/logging"
	"github.com/nerrad567/lampfleet-core/internal/lamp"
)

// WebSocket message types.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"

	// wsSendBufferSize is the per-client outbound queue length. Events for a
	// client whose queue is full are dropped.
	wsSendBufferSize = 256
)

// lampChannels are the event channels a client may subscribe to.
var lampChannels = map[string]struct{}{
	lamp.EventLampStatus:  {},
	lamp.EventLampCommand: {},
	lamp.EventLampConfig:  {},
}

// WSMessage is the envelope of every frame in both directions.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload selects channels and, optionally, narrows lamp events
// to a set of lamps. An empty LampIDs keeps every lamp the caller may see.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
	LampIDs  []string `json:"lamp_ids,omitempty"`
}

// wsRequest is an inbound frame with its payload left undecoded.
type wsRequest struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// LampScoped is implemented by event payloads that concern a single lamp.
// Such events only reach clients allowed to see that lamp.
type LampScoped interface {
	EventLampID() string
}

// Authorizer decides whether caller may see events for lampID.
type Authorizer func(caller auth.Caller, lampID string) bool

// Hub fans lamp events out to connected WebSocket clients.
type Hub struct {
	cfg       config.WebSocketConfig
	logger    *logging.Logger
	mu        sync.RWMutex
	clients   map[*WSClient]struct{}
	authorize Authorizer
}

// WSClient is one connection, bound to the caller who redeemed its ticket.
type WSClient struct {
	hub    *Hub
	conn   *websocket.Conn
	caller auth.Caller
	send   chan []byte

	mu       sync.Mutex
	channels map[string]struct{}
	lamps    map[string]struct{} // empty: no narrowing
	closed   bool
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// NewHub creates a hub. Call Run to tie its lifetime to a context.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

// SetAuthorizer installs the per-lamp visibility check. Without one, lamp
// events reach admins only.
func (h *Hub) SetAuthorizer(fn Authorizer) {
	h.mu.Lock()
	h.authorize = fn
	h.mu.Unlock()
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*WSClient]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.close()
		if c.conn != nil {
			c.conn.Close()
		}
	}
}

func newWSClient(hub *Hub, conn *websocket.Conn, caller auth.Caller) *WSClient {
	return &WSClient{
		hub:      hub,
		conn:     conn,
		caller:   caller,
		send:     make(chan []byte, wsSendBufferSize),
		channels: make(map[string]struct{}),
		lamps:    make(map[string]struct{}),
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *WSClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "username", c.caller.Username, "clients", n)
}

// Unregister removes a client and closes its queue.
func (h *Hub) Unregister(c *WSClient) {
	h.mu.Lock()
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()
	c.close()
	h.logger.Debug("websocket client disconnected", "username", c.caller.Username, "clients", n)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast delivers an event to clients subscribed to channel. Payloads
// implementing LampScoped go only to admins and to callers the authorizer
// accepts, and respect each client's lamp filter.
func (h *Hub) Broadcast(channel string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: channel,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		h.logger.Error("dropping unencodable event", "channel", channel, "error", err)
		return
	}

	h.mu.RLock()
	clients := make([]*WSClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	authorize := h.authorize
	h.mu.RUnlock()

	lampID := ""
	if scoped, ok := payload.(LampScoped); ok {
		lampID = scoped.EventLampID()
	}

	sent := 0
	for _, c := range clients {
		if !c.wants(channel, lampID) {
			continue
		}
		if lampID != "" && !c.caller.IsAdmin() && (authorize == nil || !authorize(c.caller, lampID)) {
			continue
		}
		if c.enqueue(data) {
			sent++
		}
	}
	if sent > 0 {
		h.logger.Debug("event delivered", "channel", channel, "lamp_id", lampID, "recipients", sent)
	}
}

// handleWebSocket upgrades an authenticated request. The ticket comes from
// POST /auth/ws-ticket because browsers cannot set headers on upgrades.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ticket := r.URL.Query().Get("ticket")
	if ticket == "" {
		writeUnauthorized(w, "ticket query parameter is required")
		return
	}
	caller, ok := s.tickets.redeem(ticket)
	if !ok {
		writeUnauthorized(w, "invalid or expired ticket")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := newWSClient(s.hub, conn, caller)
	s.hub.Register(client)

	go client.writePump(s.wsCfg)
	go client.readPump(s.wsCfg)
}

func (c *WSClient) readPump(cfg config.WebSocketConfig) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	deadline := time.Duration(cfg.PingInterval+cfg.PongTimeout) * time.Second
	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(deadline))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(deadline))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "username", c.caller.Username, "error", err)
			}
			return
		}
		// Browsers do not always answer protocol pings; any frame counts.
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(deadline))
		c.handleMessage(data)
	}
}

func (c *WSClient) writePump(cfg config.WebSocketConfig) {
	ticker := time.NewTicker(time.Duration(cfg.PingInterval) * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	writeWait := time.Duration(cfg.PongTimeout) * time.Second

	for {
		select {
		case data, ok := <-c.send:
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				//nolint:errcheck // Best-effort close frame
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *WSClient) handleMessage(data []byte) {
	var req wsRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.reply("", WSTypeError, errorPayload("invalid JSON message"))
		return
	}

	switch req.Type {
	case WSTypeSubscribe:
		c.handleSubscribe(req)
	case WSTypeUnsubscribe:
		c.handleUnsubscribe(req)
	case WSTypePing:
		c.reply(req.ID, WSTypePong, nil)
	default:
		c.reply(req.ID, WSTypeError, errorPayload("unknown message type: "+req.Type))
	}
}

// handleSubscribe adds channels, and replaces the lamp filter when the
// request names lamps. Unknown channels reject the whole request.
func (c *WSClient) handleSubscribe(req wsRequest) {
	var sub WSSubscribePayload
	if err := json.Unmarshal(req.Payload, &sub); err != nil || len(sub.Channels) == 0 {
		c.reply(req.ID, WSTypeError, errorPayload("subscribe needs a channels list"))
		return
	}
	for _, ch := range sub.Channels {
		if _, ok := lampChannels[ch]; !ok {
			c.reply(req.ID, WSTypeError, map[string]any{
				"message":  "unknown channel: " + ch,
				"channels": slices.Sorted(maps.Keys(lampChannels)),
			})
			return
		}
	}

	c.mu.Lock()
	for _, ch := range sub.Channels {
		c.channels[ch] = struct{}{}
	}
	if len(sub.LampIDs) > 0 {
		c.lamps = make(map[string]struct{}, len(sub.LampIDs))
		for _, id := range sub.LampIDs {
			c.lamps[id] = struct{}{}
		}
	}
	c.mu.Unlock()

	c.hub.logger.Info("websocket client subscribed",
		"username", c.caller.Username, "channels", sub.Channels, "lamp_ids", sub.LampIDs)
	c.reply(req.ID, WSTypeResponse, map[string]any{
		"subscribed": sub.Channels,
		"lamp_ids":   sub.LampIDs,
	})
}

func (c *WSClient) handleUnsubscribe(req wsRequest) {
	var sub WSSubscribePayload
	if err := json.Unmarshal(req.Payload, &sub); err != nil {
		c.reply(req.ID, WSTypeError, errorPayload("invalid unsubscribe payload"))
		return
	}

	c.mu.Lock()
	for _, ch := range sub.Channels {
		delete(c.channels, ch)
	}
	c.mu.Unlock()

	c.reply(req.ID, WSTypeResponse, map[string]any{"unsubscribed": sub.Channels})
}

// wants reports whether the client subscribed to channel and, for lamp
// events, whether its lamp filter lets lampID through.
func (c *WSClient) wants(channel, lampID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.channels[channel]; !ok {
		return false
	}
	if lampID == "" || len(c.lamps) == 0 {
		return true
	}
	_, ok := c.lamps[lampID]
	return ok
}

// enqueue queues data without blocking. It reports false when the client
// is closed or its queue is full.
func (c *WSClient) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// close ends the write pump. Safe to call more than once.
func (c *WSClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *WSClient) reply(id, msgType string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		return
	}
	c.enqueue(data)
}

func errorPayload(message string) map[string]string {
	return map[string]string{"message": message}
}
