package lamp

import (
	"github.com/nerrad567/lampfleet-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/lampfleet-core/internal/wire"
)

// MQTTClient is the broker publish capability the service needs.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// EventHub broadcasts lamp events to live subscribers.
type EventHub interface {
	Broadcast(channel string, payload any)
}

// Event channels broadcast on the hub.
const (
	EventLampCommand = "lamp.command"
	EventLampConfig  = "lamp.config"
	EventLampStatus  = "lamp.status"
)

// qosAtLeastOnce is used for every server-to-lamp message.
const qosAtLeastOnce byte = 1

// CommandEvent is broadcast after a command is applied.
type CommandEvent struct {
	LampID  string           `json:"lamp_id"`
	Kind    wire.CommandKind `json:"kind"`
	Changed bool             `json:"changed"`
	Lamp    *Lamp            `json:"lamp,omitempty"`
}

// ConfigEvent is broadcast after a config is stored or republished.
type ConfigEvent struct {
	LampID string           `json:"lamp_id"`
	Config *wire.LampConfig `json:"config"`
}

// EventLampID scopes the event to its lamp.
func (e CommandEvent) EventLampID() string { return e.LampID }

// EventLampID scopes the event to its lamp.
func (e ConfigEvent) EventLampID() string { return e.LampID }

// publishConfig sends cfg retained, so a lamp that reconnects picks up its
// latest config. Failures are logged; the stored state is authoritative.
func (s *Service) publishConfig(lampID string, cfg *wire.LampConfig) {
	if s.mqtt == nil {
		s.logger.Warn("mqtt unavailable, config not sent", "lamp_id", lampID)
		return
	}
	payload, err := wire.EncodeConfig(cfg)
	if err != nil {
		s.logger.Error("encoding config", "lamp_id", lampID, "error", err)
		return
	}
	if err := s.mqtt.Publish(mqtt.Topics{}.LampConfig(lampID), payload, qosAtLeastOnce, true); err != nil {
		s.logger.Error("publishing config", "lamp_id", lampID, "error", err)
		return
	}
	s.logger.Debug("config published", "lamp_id", lampID, "modes", len(cfg.Modes))
}

// publishCommand sends cmd once, not retained.
func (s *Service) publishCommand(lampID string, cmd *wire.LampCommand) {
	if s.mqtt == nil {
		s.logger.Warn("mqtt unavailable, command not sent", "lamp_id", lampID, "kind", cmd.Kind())
		return
	}
	payload, err := wire.EncodeCommand(cmd)
	if err != nil {
		s.logger.Error("encoding command", "lamp_id", lampID, "kind", cmd.Kind(), "error", err)
		return
	}
	if err := s.mqtt.Publish(mqtt.Topics{}.LampCommand(lampID), payload, qosAtLeastOnce, false); err != nil {
		s.logger.Error("publishing command", "lamp_id", lampID, "kind", cmd.Kind(), "error", err)
		return
	}
	s.logger.Debug("command published", "lamp_id", lampID, "kind", cmd.Kind())
}

func (s *Service) broadcast(channel string, payload any) {
	if s.hub != nil {
		s.hub.Broadcast(channel, payload)
	}
}
