package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// MeasurementLampStatus is the measurement written for each status report.
const MeasurementLampStatus = "lamp_status"

// StatusSample is the numeric part of one lamp status report.
type StatusSample struct {
	LampID string

	// Temperature is the primary sensor reading; ignored unless HasTemperature.
	Temperature    float64
	HasTemperature bool

	AmbientLight  int
	AmbientNoise  int
	UptimeSeconds int64
	Abnormal      bool

	Time time.Time
}

// WriteLampStatus queues one lamp_status point tagged with the lamp id.
// Dropped silently when the client is closed.
func (c *Client) WriteLampStatus(s StatusSample) {
	if !c.IsConnected() {
		return
	}

	fields := map[string]interface{}{
		"ambient_light":  s.AmbientLight,
		"ambient_noise":  s.AmbientNoise,
		"uptime_seconds": s.UptimeSeconds,
		"abnormal":       s.Abnormal,
	}
	if s.HasTemperature {
		fields["temperature_c"] = s.Temperature
	}

	ts := s.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	c.writeAPI.WritePoint(write.NewPoint(MeasurementLampStatus,
		map[string]string{"lamp_id": s.LampID}, fields, ts))
}
