package automation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/lampfleet-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/lampfleet-core/internal/lamp"
	"github.com/nerrad567/lampfleet-core/internal/wire"
)

// DefaultInterval is the time between passes over the fleet.
const DefaultInterval = 60 * time.Second

const qosAtLeastOnce = 1

// Logger is the logging interface used by the loop.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config wires a Loop. MQTT, Hub and Logger are optional; zero values take
// the package defaults.
type Config struct {
	Lamps    lamp.Repository
	Locks    *lamp.Locks
	MQTT     lamp.MQTTClient
	Hub      lamp.EventHub
	Logger   Logger
	Location *time.Location
	Interval time.Duration

	// CircadianHysteresis and BrightnessHysteresis are nil for the defaults.
	CircadianHysteresis  *int
	BrightnessHysteresis *int
}

// Result summarises one pass.
type Result struct {
	Visited   int
	Circadian []string
	Adaptive  []string
	Failed    []string
}

// Loop applies the circadian and adaptive brightness policies on a timer.
type Loop struct {
	lamps    lamp.Repository
	locks    *lamp.Locks
	mqtt     lamp.MQTTClient
	hub      lamp.EventHub
	logger   Logger
	location *time.Location
	interval time.Duration

	circadianHysteresis  int
	brightnessHysteresis int

	now func() time.Time

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewLoop creates a Loop.
func NewLoop(cfg Config) *Loop {
	l := &Loop{
		lamps:                cfg.Lamps,
		locks:                cfg.Locks,
		mqtt:                 cfg.MQTT,
		hub:                  cfg.Hub,
		logger:               cfg.Logger,
		location:             cfg.Location,
		interval:             cfg.Interval,
		circadianHysteresis:  DefaultCircadianHysteresis,
		brightnessHysteresis: DefaultBrightnessHysteresis,
		now:                  time.Now,
		done:                 make(chan struct{}),
	}
	if l.logger == nil {
		l.logger = noopLogger{}
	}
	if l.locks == nil {
		l.locks = lamp.NewLocks()
	}
	if l.location == nil {
		l.location = time.UTC
	}
	if l.interval <= 0 {
		l.interval = DefaultInterval
	}
	if cfg.CircadianHysteresis != nil {
		l.circadianHysteresis = *cfg.CircadianHysteresis
	}
	if cfg.BrightnessHysteresis != nil {
		l.brightnessHysteresis = *cfg.BrightnessHysteresis
	}
	return l
}

// Start begins periodic passes. Call Stop to end them.
func (l *Loop) Start(ctx context.Context) {
	l.wg.Add(1)
	go l.loop(ctx)
	l.logger.Info("automation loop started", "interval", l.interval.String(), "location", l.location.String())
}

// Stop halts the loop and waits for an in-flight pass. Safe to call twice.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		close(l.done)
		l.wg.Wait()
		l.logger.Info("automation loop stopped")
	})
}

func (l *Loop) loop(ctx context.Context) {
	defer l.wg.Done()

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.done:
			return
		case <-ticker.C:
			if _, err := l.Run(ctx); err != nil {
				l.logger.Error("automation pass failed", "error", err)
			}
		}
	}
}

// Run performs one pass over active lamps. A failure on one lamp is logged
// and recorded in Result.Failed; the pass continues with the next lamp.
func (l *Loop) Run(ctx context.Context) (Result, error) {
	active, err := l.lamps.ListActive(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("listing active lamps: %w", err)
	}

	now := l.now()
	var res Result
	for i := range active {
		candidate := &active[i]
		if !candidate.CircadianEnabled && !candidate.AdaptiveBrightnessEnabled {
			continue
		}
		res.Visited++

		circ, adapt, err := l.adjust(ctx, candidate.ID, now)
		if err != nil {
			l.logger.Error("automation failed for lamp", "lamp_id", candidate.ID, "error", err)
			res.Failed = append(res.Failed, candidate.ID)
			continue
		}
		if circ {
			res.Circadian = append(res.Circadian, candidate.ID)
		}
		if adapt {
			res.Adaptive = append(res.Adaptive, candidate.ID)
		}
	}

	if len(res.Circadian)+len(res.Adaptive) > 0 {
		l.logger.Debug("automation pass complete",
			"visited", res.Visited, "circadian", len(res.Circadian), "adaptive", len(res.Adaptive))
	}
	return res, nil
}

// adjust re-reads the lamp under its lock and applies both policies.
func (l *Loop) adjust(ctx context.Context, id string, now time.Time) (circadian, adaptive bool, err error) {
	unlock := l.locks.Lock(id)
	defer unlock()

	lp, err := l.lamps.GetByID(ctx, id)
	if err != nil {
		return false, false, err
	}
	if !lp.Online || !lp.On {
		return false, false, nil
	}

	var cmd *wire.LampCommand
	if lp.CircadianEnabled {
		target := CircadianTarget(now, l.location)
		if exceeds(lp.LED.WarmWhite, target.Warm, l.circadianHysteresis) ||
			exceeds(lp.LED.ColdWhite, target.Cold, l.circadianHysteresis) {
			cmd = wire.NewDirectCommand(wire.DirectSettings{WarmWhite: target.Warm, ColdWhite: target.Cold})
			if _, err := lamp.ApplyCommand(lp, cmd); err != nil {
				return false, false, err
			}
			circadian = true
		}
	}

	if lp.AdaptiveBrightnessEnabled && lp.AmbientLight != nil {
		target := AdaptiveBrightness(*lp.AmbientLight)
		if exceeds(lp.Brightness, target, l.brightnessHysteresis) {
			l.logger.Info("adaptive brightness", "lamp_id", id, "lux", *lp.AmbientLight,
				"from", lp.Brightness, "to", target)
			lp.Brightness = target
			adaptive = true
		}
	}

	if !circadian && !adaptive {
		return false, false, nil
	}
	if err := l.lamps.Save(ctx, lp); err != nil {
		return false, false, err
	}

	if cmd != nil {
		l.publish(id, cmd)
		if l.hub != nil {
			l.hub.Broadcast(lamp.EventLampCommand, lamp.CommandEvent{
				LampID: id, Kind: cmd.Kind(), Changed: true, Lamp: lp,
			})
		}
	}
	return circadian, adaptive, nil
}

func (l *Loop) publish(id string, cmd *wire.LampCommand) {
	if l.mqtt == nil {
		l.logger.Warn("mqtt unavailable, circadian command not sent", "lamp_id", id)
		return
	}
	payload, err := wire.EncodeCommand(cmd)
	if err != nil {
		l.logger.Error("encoding circadian command", "lamp_id", id, "error", err)
		return
	}
	if err := l.mqtt.Publish(mqtt.Topics{}.LampCommand(id), payload, qosAtLeastOnce, false); err != nil {
		l.logger.Error("publishing circadian command", "lamp_id", id, "error", err)
		return
	}
	l.logger.Debug("circadian command published", "lamp_id", id)
}
