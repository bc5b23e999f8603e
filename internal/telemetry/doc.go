// Package telemetry turns lamp status reports into stored state and decides
// when a lamp has gone silent.
//
// The Ingestor is subscribed to lamps/+/status. For each report it marks the
// lamp online, copies the sensor and LED snapshot onto the lamp row, appends
// a metric sample and replaces the lamp's active alert set. Reports from
// lamps that were never claimed are dropped; nothing is auto-provisioned.
//
// The LivenessTracker runs on a timer. It is the only component that moves
// a lamp from online to offline, and the Ingestor is the only one that
// moves it back.
package telemetry
