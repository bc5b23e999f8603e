// Package influxdb mirrors lamp telemetry into InfluxDB for long-term
// charting.
//
// The mirror is optional. When influxdb.enabled is false Connect returns
// ErrDisabled and callers run without it; SQLite stays the system of record
// for metrics either way.
//
// Writes go through the non-blocking write API: points are batched and
// flushed in the background, and write failures arrive on the callback set
// with SetOnError.
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err == nil {
//	    defer client.Close()
//	    client.WriteLampStatus(influxdb.StatusSample{LampID: "lamp-7", ...})
//	}
package influxdb
