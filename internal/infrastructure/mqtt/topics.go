package mqtt

import (
	"fmt"
	"strings"
)

// Topic roots.
const (
	TopicPrefixLamps  = "lamps"
	TopicPrefixSystem = "lampfleet/system"
)

// Lamp topic kinds, the last topic segment.
const (
	KindConfig  = "config"
	KindCommand = "command"
	KindStatus  = "status"
)

// Topics builds broker topic names.
//
//	topics := mqtt.Topics{}
//	topics.LampConfig("lamp-7") // "lamps/lamp-7/config"
type Topics struct{}

// LampConfig is where a lamp's full configuration is published (retained).
func (Topics) LampConfig(lampID string) string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefixLamps, lampID, KindConfig)
}

// LampCommand is where one-shot commands are sent to a lamp.
func (Topics) LampCommand(lampID string) string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefixLamps, lampID, KindCommand)
}

// AllLampStatus matches the status topic of every lamp.
func (Topics) AllLampStatus() string {
	return fmt.Sprintf("%s/+/%s", TopicPrefixLamps, KindStatus)
}

// SystemStatus carries the core's own online/offline presence.
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

// ParseLampTopic splits a lamp topic into lamp id and kind.
//
// Both the broker form "lamps/{id}/{kind}" and the dotted form
// "lamps.{id}.{kind}" used by some gateways are accepted. The topic must have
// exactly three non-empty segments and start with "lamps".
func ParseLampTopic(topic string) (lampID, kind string, ok bool) {
	sep := "/"
	if !strings.Contains(topic, "/") {
		sep = "."
	}
	parts := strings.Split(topic, sep)
	if len(parts) != 3 || parts[0] != TopicPrefixLamps || parts[1] == "" || parts[2] == "" {
		return "", "", false
	}
	return parts[1], parts[2], true
}
