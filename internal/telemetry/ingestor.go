package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/lampfleet-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/lampfleet-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/lampfleet-core/internal/lamp"
	"github.com/nerrad567/lampfleet-core/internal/wire"
)

// StatusMirror receives a copy of every accepted status report.
// Implemented by *influxdb.Client.
type StatusMirror interface {
	WriteLampStatus(s influxdb.StatusSample)
}

// StatusEvent is broadcast on lamp.status after a report is stored.
type StatusEvent struct {
	LampID       string         `json:"lamp_id"`
	Online       bool           `json:"online"`
	AmbientLight int            `json:"ambient_light"`
	AmbientNoise int            `json:"ambient_noise"`
	LED          *lamp.Channels `json:"led,omitempty"`
	Temperatures []float64      `json:"temperatures,omitempty"`
	Alerts       int            `json:"alerts"`
	Abnormal     bool           `json:"abnormal"`
}

// EventLampID scopes the event to its lamp.
func (e StatusEvent) EventLampID() string { return e.LampID }

// IngestorConfig wires an Ingestor. Mirror, Hub and Logger are optional.
type IngestorConfig struct {
	Lamps   lamp.Repository
	Metrics lamp.MetricRepository
	Alerts  lamp.AlertRepository
	Locks   *lamp.Locks
	Mirror  StatusMirror
	Hub     lamp.EventHub
	Logger  Logger
}

// Ingestor processes messages arriving on lamp topics.
// Safe for concurrent use; reports for one lamp are serialised by Locks.
type Ingestor struct {
	lamps   lamp.Repository
	metrics lamp.MetricRepository
	alerts  lamp.AlertRepository
	locks   *lamp.Locks
	mirror  StatusMirror
	hub     lamp.EventHub
	logger  Logger
	now     func() time.Time
}

// NewIngestor creates an Ingestor.
func NewIngestor(cfg IngestorConfig) *Ingestor {
	in := &Ingestor{
		lamps:   cfg.Lamps,
		metrics: cfg.Metrics,
		alerts:  cfg.Alerts,
		locks:   cfg.Locks,
		mirror:  cfg.Mirror,
		hub:     cfg.Hub,
		logger:  cfg.Logger,
		now:     time.Now,
	}
	if in.logger == nil {
		in.logger = noopLogger{}
	}
	if in.locks == nil {
		in.locks = lamp.NewLocks()
	}
	return in
}

// HandleMessage adapts Ingest to the MQTT handler signature. Unknown lamps
// and malformed payloads are already logged by Ingest and are not reported
// again.
func (in *Ingestor) HandleMessage(topic string, payload []byte) error {
	err := in.Ingest(context.Background(), topic, payload)
	if errors.Is(err, ErrUnknownLamp) || errors.Is(err, ErrMalformedMessage) {
		return nil
	}
	return err
}

// Ingest processes one message. Topics are lamps/{id}/{kind} with slash or
// dot separators. Status reports are stored; command echoes are logged;
// anything else is ignored with a warning.
func (in *Ingestor) Ingest(ctx context.Context, topic string, payload []byte) error {
	lampID, kind, ok := mqtt.ParseLampTopic(topic)
	if !ok {
		in.logger.Warn("ignoring message on unexpected topic", "topic", topic)
		return fmt.Errorf("%w: %q", ErrInvalidTopic, topic)
	}

	switch kind {
	case mqtt.KindStatus:
		return in.ingestStatus(ctx, lampID, payload)
	case mqtt.KindCommand:
		cmd, err := wire.DecodeCommand(payload)
		if err != nil {
			in.logger.Warn("malformed command echo", "lamp_id", lampID, "error", err)
			return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}
		in.logger.Debug("command echo received", "lamp_id", lampID, "kind", cmd.Kind())
		return nil
	default:
		in.logger.Warn("ignoring unsupported message kind", "lamp_id", lampID, "kind", kind)
		return nil
	}
}

func (in *Ingestor) ingestStatus(ctx context.Context, lampID string, payload []byte) error {
	report, err := wire.DecodeStatus(payload)
	if err != nil {
		in.logger.Error("dropping malformed status report", "lamp_id", lampID, "error", err)
		return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	receivedAt := in.now().UTC()
	event, err := in.store(ctx, lampID, report, receivedAt)
	if err != nil {
		return err
	}

	if report.Abnormal {
		in.logger.Warn("abnormal status report", "lamp_id", lampID)
	}
	for _, a := range report.Alerts {
		in.logger.Warn("lamp alert", "lamp_id", lampID, "alert_id", a.ID,
			"cause", a.Cause.Normalize().String(), "level", a.Level.Normalize().String(), "message", a.Message)
	}

	if in.mirror != nil {
		sample := influxdb.StatusSample{
			LampID:        lampID,
			AmbientLight:  report.AmbientLight,
			AmbientNoise:  report.AmbientNoise,
			UptimeSeconds: report.UptimeSeconds,
			Abnormal:      report.Abnormal,
			Time:          receivedAt,
		}
		if len(report.Temperatures) > 0 {
			sample.Temperature = report.Temperatures[0]
			sample.HasTemperature = true
		}
		in.mirror.WriteLampStatus(sample)
	}
	if in.hub != nil {
		in.hub.Broadcast(lamp.EventLampStatus, event)
	}

	in.logger.Debug("status report stored", "lamp_id", lampID, "uptime_seconds", report.UptimeSeconds)
	return nil
}

// store applies the report under the lamp's lock.
func (in *Ingestor) store(ctx context.Context, lampID string, report *wire.StatusReport, receivedAt time.Time) (StatusEvent, error) {
	unlock := in.locks.Lock(lampID)
	defer unlock()

	l, err := in.lamps.GetByID(ctx, lampID)
	if errors.Is(err, lamp.ErrLampNotFound) {
		in.logger.Warn("status report from unknown lamp, ignoring", "lamp_id", lampID)
		return StatusEvent{}, fmt.Errorf("%w: %s", ErrUnknownLamp, lampID)
	}
	if err != nil {
		return StatusEvent{}, fmt.Errorf("loading lamp %s: %w", lampID, err)
	}

	if !l.Online {
		in.logger.Info("lamp online", "lamp_id", lampID)
	}
	l.Online = true
	light, noise := report.AmbientLight, report.AmbientNoise
	l.AmbientLight = &light
	l.AmbientNoise = &noise
	if report.LED != nil {
		l.LED = lamp.ChannelsFromWire(report.LED)
	}
	if report.FirmwareVersion != "" {
		l.FirmwareVersion = report.FirmwareVersion
	}
	if err := in.lamps.Save(ctx, l); err != nil {
		return StatusEvent{}, fmt.Errorf("saving lamp %s: %w", lampID, err)
	}

	metric := &lamp.Metric{
		LampID:          lampID,
		Timestamp:       receivedAt,
		DeviceTimestamp: report.DeviceTimestamp,
		UptimeSeconds:   report.UptimeSeconds,
		Temperatures:    lamp.JoinTemperatures(report.Temperatures),
		AmbientLight:    report.AmbientLight,
		AmbientNoise:    report.AmbientNoise,
		Abnormal:        report.Abnormal,
	}
	if err := in.metrics.Append(ctx, metric); err != nil {
		return StatusEvent{}, fmt.Errorf("appending metric for %s: %w", lampID, err)
	}

	alerts := make([]lamp.Alert, 0, len(report.Alerts))
	for _, a := range report.Alerts {
		alerts = append(alerts, lamp.AlertFromWire(lampID, a, receivedAt))
	}
	if err := in.alerts.ReplaceActive(ctx, lampID, alerts); err != nil {
		return StatusEvent{}, fmt.Errorf("replacing alerts for %s: %w", lampID, err)
	}

	event := StatusEvent{
		LampID:       lampID,
		Online:       true,
		AmbientLight: report.AmbientLight,
		AmbientNoise: report.AmbientNoise,
		Temperatures: report.Temperatures,
		Alerts:       len(alerts),
		Abnormal:     report.Abnormal,
	}
	if report.LED != nil {
		led := l.LED
		event.LED = &led
	}
	return event, nil
}
