// Package lamp holds the persisted state of the lamp fleet and the
// operations that change it.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────────────┐
//	│                            lamp.Service                          │
//	│                                                                  │
//	│  ┌────────────────┐   ┌────────────────┐   ┌──────────────────┐  │
//	│  │  Transcoder    │   │ Command state  │   │  Repositories    │  │
//	│  │ (transcoder.go)│   │   (state.go)   │   │ lamps / metrics  │  │
//	│  │ wire ⇄ []Mode  │   │ cmd → Lamp     │   │ / alerts (SQLite)│  │
//	│  └────────────────┘   └────────────────┘   └──────────────────┘  │
//	│            │                   │                     │           │
//	│            └──── per-lamp Locks (locks.go) ──────────┘           │
//	└──────────────────────────────┬───────────────────────────────────┘
//	                               │ CBOR over MQTT
//	                               ▼
//	            lamps/{id}/config (retained)   lamps/{id}/command
//
// # Modes
//
// A lamp exposes up to MaxModes mode slots. Each slot holds one of
// DiscoMode, ScheduleMode or PresetMode; the list is stored as JSON in
// Lamp.ModesConfig with a "type" discriminator per entry. Slot
// PresetModeID holds the presets addressed by the set-preset command.
//
// # Control state
//
// Lamp.ActiveModeID is nil while the lamp is under direct control. Direct
// and photo commands clear it; set-mode and set-preset set it and leave
// the LED channels alone, which are refreshed by the next status report.
//
// # Concurrency
//
// HTTP handlers, the telemetry ingestor and the automation loops all
// mutate lamp rows. Each read-modify-write holds the lamp's entry in a
// shared Locks set, so two writers to one lamp never interleave while
// different lamps proceed in parallel.
package lamp
