package lamp

import (
	"sync"
)

type publishedMessage struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// mockMQTT records publishes.
type mockMQTT struct {
	mu         sync.Mutex
	published  []publishedMessage
	publishErr error
}

func (m *mockMQTT) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return m.publishErr
	}
	m.published = append(m.published, publishedMessage{topic, payload, qos, retained})
	return nil
}

func (m *mockMQTT) messages() []publishedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]publishedMessage(nil), m.published...)
}

func (m *mockMQTT) last() (publishedMessage, bool) {
	msgs := m.messages()
	if len(msgs) == 0 {
		return publishedMessage{}, false
	}
	return msgs[len(msgs)-1], true
}

type broadcastEvent struct {
	channel string
	payload any
}

// mockHub records broadcasts.
type mockHub struct {
	mu     sync.Mutex
	events []broadcastEvent
}

func (h *mockHub) Broadcast(channel string, payload any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, broadcastEvent{channel, payload})
}

func (h *mockHub) channels() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.events))
	for i, e := range h.events {
		out[i] = e.channel
	}
	return out
}
