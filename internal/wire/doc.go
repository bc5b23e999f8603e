// Package wire defines the closed set of messages exchanged with lamps and
// their binary encoding.
//
// Three top-level messages exist: LampConfig (core to lamp, also the shape
// the HTTP API accepts), LampCommand (core to lamp) and StatusReport (lamp
// to core). Each carries a Version; this build speaks ProtocolVersion 1 and
// rejects anything else.
//
// Messages are encoded as CBOR with small integer map keys and Core
// Deterministic Encoding, so identical messages always produce identical
// bytes. Unknown keys are ignored on decode. The same structs carry JSON
// tags and are rendered as JSON by the HTTP API.
//
// Variant fields (LampState, ModeSettings, ScheduleEntry triggers and the
// LampCommand payload) are modelled as optional pointers of which exactly
// one is populated; helpers on each type report which one.
package wire
