package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/lampfleet-core/internal/auth"
	"github.com/nerrad567/lampfleet-core/internal/infrastructure/config"
	"github.com/nerrad567/lampfleet-core/internal/infrastructure/logging"
	"github.com/nerrad567/lampfleet-core/internal/lamp"
)

func TestTicketStore(t *testing.T) {
	store := newTicketStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	alice := auth.Caller{Username: "alice", Role: auth.RoleUser}
	ticket := store.issue(alice)

	caller, ok := store.redeem(ticket)
	if !ok || caller.Username != "alice" {
		t.Fatalf("redeem() = %+v, %v; want alice", caller, ok)
	}
	if _, ok := store.redeem(ticket); ok {
		t.Error("ticket redeemed twice")
	}

	stale := store.issue(alice)
	now = now.Add(ticketTTL + time.Second)
	if _, ok := store.redeem(stale); ok {
		t.Error("expired ticket redeemed")
	}

	store.issue(alice)
	now = now.Add(2 * ticketTTL)
	store.clean()
	if n := len(store.tickets); n != 0 {
		t.Errorf("clean() left %d tickets", n)
	}
}

func newTestClient(hub *Hub, caller auth.Caller, channels ...string) *WSClient {
	c := newWSClient(hub, nil, caller)
	for _, ch := range channels {
		c.channels[ch] = struct{}{}
	}
	hub.Register(c)
	return c
}

func TestHub_BroadcastFiltersLampEvents(t *testing.T) {
	log := logging.New(config.LoggingConfig{Level: "error"}, "test")
	hub := NewHub(config.WebSocketConfig{}, log)
	hub.SetAuthorizer(func(c auth.Caller, lampID string) bool {
		return c.Username == "alice" && lampID == "lamp-a"
	})

	alice := newTestClient(hub, auth.Caller{Username: "alice", Role: auth.RoleUser}, lamp.EventLampCommand)
	bob := newTestClient(hub, auth.Caller{Username: "bob", Role: auth.RoleUser}, lamp.EventLampCommand)
	root := newTestClient(hub, auth.Caller{Username: "root", Role: auth.RoleAdmin}, lamp.EventLampCommand)
	idle := newTestClient(hub, auth.Caller{Username: "alice", Role: auth.RoleUser})

	hub.Broadcast(lamp.EventLampCommand, lamp.CommandEvent{LampID: "lamp-a"})
	hub.Broadcast(lamp.EventLampCommand, lamp.CommandEvent{LampID: "lamp-b"})
	hub.Broadcast(lamp.EventLampCommand, map[string]string{"note": "fleet-wide"})

	tests := []struct {
		name   string
		client *WSClient
		want   int
	}{
		{"owner sees own lamp and unscoped", alice, 2},
		{"other user sees unscoped only", bob, 1},
		{"admin sees everything", root, 3},
		{"unsubscribed sees nothing", idle, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := len(tt.client.send); got != tt.want {
				t.Errorf("received %d messages, want %d", got, tt.want)
			}
		})
	}
}

func TestHub_NoAuthorizerAdminOnly(t *testing.T) {
	log := logging.New(config.LoggingConfig{Level: "error"}, "test")
	hub := NewHub(config.WebSocketConfig{}, log)

	user := newTestClient(hub, auth.Caller{Username: "alice", Role: auth.RoleUser}, lamp.EventLampStatus)
	admin := newTestClient(hub, auth.Caller{Username: "root", Role: auth.RoleAdmin}, lamp.EventLampStatus)

	hub.Broadcast(lamp.EventLampStatus, lamp.ConfigEvent{LampID: "lamp-a"})
	if len(user.send) != 0 {
		t.Error("user received a lamp event without an authorizer")
	}
	if len(admin.send) != 1 {
		t.Error("admin did not receive the lamp event")
	}

	hub.Unregister(user)
	if hub.ClientCount() != 1 {
		t.Errorf("ClientCount() = %d, want 1", hub.ClientCount())
	}
}

func TestHub_LampFilter(t *testing.T) {
	log := logging.New(config.LoggingConfig{Level: "error"}, "test")
	hub := NewHub(config.WebSocketConfig{}, log)

	root := newTestClient(hub, auth.Caller{Username: "root", Role: auth.RoleAdmin}, lamp.EventLampConfig)
	root.lamps["lamp-a"] = struct{}{}

	hub.Broadcast(lamp.EventLampConfig, lamp.ConfigEvent{LampID: "lamp-a"})
	hub.Broadcast(lamp.EventLampConfig, lamp.ConfigEvent{LampID: "lamp-b"})
	hub.Broadcast(lamp.EventLampConfig, map[string]string{"note": "fleet-wide"})

	if got := len(root.send); got != 2 {
		t.Errorf("received %d messages, want lamp-a and the unscoped event", got)
	}
}

func TestHub_BroadcastAfterUnregister(t *testing.T) {
	log := logging.New(config.LoggingConfig{Level: "error"}, "test")
	hub := NewHub(config.WebSocketConfig{}, log)
	c := newTestClient(hub, auth.Caller{Username: "root", Role: auth.RoleAdmin}, lamp.EventLampStatus)

	hub.Unregister(c)
	hub.Unregister(c)
	hub.Broadcast(lamp.EventLampStatus, lamp.ConfigEvent{LampID: "lamp-a"})

	if c.enqueue([]byte("{}")) {
		t.Error("enqueue() succeeded on a closed client")
	}
	if _, ok := <-c.send; ok {
		t.Error("send channel still open after Unregister()")
	}
}

func TestWebSocket_RequiresTicket(t *testing.T) {
	e := testServer(t)

	for _, path := range []string{"/api/v1/ws", "/api/v1/ws?ticket=bogus"} {
		w := e.do(t, http.MethodGet, path, "", nil)
		wantStatus(t, w, http.StatusUnauthorized)
	}
}

// dialWS obtains a ticket for username and opens a WebSocket.
func dialWS(t *testing.T, e *testEnv, ts *httptest.Server, username string) *websocket.Conn {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/v1/auth/ws-ticket", username, nil)
	wantStatus(t, w, http.StatusOK)
	var resp struct {
		Ticket string `json:"ticket"`
	}
	decodeBody(t, w, &resp)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws?ticket=" + resp.Ticket
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readWS(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	//nolint:errcheck // Test deadline
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal %q: %v", data, err)
	}
	return msg
}

func writeWS(t *testing.T, conn *websocket.Conn, msg WSMessage) {
	t.Helper()
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
}

func subscribeWS(t *testing.T, conn *websocket.Conn, channels ...string) {
	t.Helper()
	writeWS(t, conn, WSMessage{Type: WSTypeSubscribe, ID: "sub", Payload: WSSubscribePayload{Channels: channels}})
	if msg := readWS(t, conn); msg.Type != WSTypeResponse || msg.ID != "sub" {
		t.Fatalf("subscribe reply = %+v", msg)
	}
}

func TestWebSocket_LampEvents(t *testing.T) {
	e := testServer(t)
	e.addLamp(t, "lamp-a", "alice")
	e.hub.SetAuthorizer(func(c auth.Caller, lampID string) bool {
		_, err := e.srv.lamps.Get(context.Background(), c, lampID)
		return err == nil
	})

	ts := httptest.NewServer(e.router)
	t.Cleanup(ts.Close)

	alice := dialWS(t, e, ts, "alice")
	bob := dialWS(t, e, ts, "bob")
	subscribeWS(t, alice, lamp.EventLampCommand)
	subscribeWS(t, bob, lamp.EventLampCommand)

	w := e.do(t, http.MethodPost, "/api/v1/lamps/lamp-a/command", "alice", `{"set_mode":{"mode_id":1}}`)
	wantStatus(t, w, http.StatusAccepted)

	msg := readWS(t, alice)
	if msg.Type != WSTypeEvent || msg.EventType != lamp.EventLampCommand {
		t.Fatalf("alice got %+v, want lamp.command event", msg)
	}
	payload, _ := msg.Payload.(map[string]any)
	if payload["lamp_id"] != "lamp-a" {
		t.Errorf("event payload = %v", msg.Payload)
	}

	// The event was queued before the ping, so bob's next message being the
	// pong shows the event was withheld.
	writeWS(t, bob, WSMessage{Type: WSTypePing, ID: "p1"})
	if msg := readWS(t, bob); msg.Type != WSTypePong || msg.ID != "p1" {
		t.Errorf("bob got %+v, want pong", msg)
	}
}

func TestWebSocket_UnknownMessage(t *testing.T) {
	e := testServer(t)
	ts := httptest.NewServer(e.router)
	t.Cleanup(ts.Close)

	conn := dialWS(t, e, ts, "alice")
	writeWS(t, conn, WSMessage{Type: "shout", ID: "x"})
	if msg := readWS(t, conn); msg.Type != WSTypeError || msg.ID != "x" {
		t.Errorf("reply = %+v, want error", msg)
	}
}

func TestWebSocket_SubscribeValidation(t *testing.T) {
	e := testServer(t)
	ts := httptest.NewServer(e.router)
	t.Cleanup(ts.Close)
	conn := dialWS(t, e, ts, "alice")

	tests := []struct {
		name     string
		payload  any
		wantType string
	}{
		{"unknown channel", WSSubscribePayload{Channels: []string{lamp.EventLampStatus, "device.state"}}, WSTypeError},
		{"no channels", WSSubscribePayload{}, WSTypeError},
		{"missing payload", nil, WSTypeError},
		{"narrowed to lamps", WSSubscribePayload{Channels: []string{lamp.EventLampStatus}, LampIDs: []string{"lamp-a"}}, WSTypeResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			writeWS(t, conn, WSMessage{Type: WSTypeSubscribe, ID: tt.name, Payload: tt.payload})
			msg := readWS(t, conn)
			if msg.Type != tt.wantType || msg.ID != tt.name {
				t.Errorf("reply = %+v, want %s", msg, tt.wantType)
			}
		})
	}
}
