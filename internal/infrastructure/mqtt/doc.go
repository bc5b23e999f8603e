// Package mqtt connects Lamp Fleet Core to the message broker that sits
// between the service and the lamps.
//
// The core publishes lamp configuration (retained) and commands, and
// subscribes to the status reports lamps emit periodically:
//
//	lamps/{id}/config   core -> lamp, QoS 1, retained
//	lamps/{id}/command  core -> lamp, QoS 1
//	lamps/{id}/status   lamp -> core
//
// Payloads are opaque bytes here; the wire package owns the encoding.
//
// The client reconnects with backoff, restores subscriptions after a
// reconnect and announces its own presence on lampfleet/system/status with
// a Last Will so other services notice a crash.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllLampStatus(), 1, ingestor.HandleMessage)
package mqtt
