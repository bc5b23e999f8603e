package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/lampfleet-core/internal/lamp"
)

const (
	// DefaultLivenessInterval is how often online lamps are checked.
	DefaultLivenessInterval = 20 * time.Second

	// DefaultOfflineThreshold is the silence after which a lamp is offline.
	DefaultOfflineThreshold = lamp.DefaultOfflineThreshold
)

// LivenessConfig wires a LivenessTracker.
type LivenessConfig struct {
	Lamps     lamp.Repository
	Metrics   lamp.MetricRepository
	Locks     *lamp.Locks
	Hub       lamp.EventHub
	Logger    Logger
	Interval  time.Duration
	Threshold time.Duration
}

// LivenessTracker flags lamps offline when their status reports stop.
type LivenessTracker struct {
	lamps     lamp.Repository
	metrics   lamp.MetricRepository
	locks     *lamp.Locks
	hub       lamp.EventHub
	logger    Logger
	interval  time.Duration
	threshold time.Duration
	now       func() time.Time

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewLivenessTracker creates a tracker. Zero durations take the defaults.
func NewLivenessTracker(cfg LivenessConfig) *LivenessTracker {
	t := &LivenessTracker{
		lamps:     cfg.Lamps,
		metrics:   cfg.Metrics,
		locks:     cfg.Locks,
		hub:       cfg.Hub,
		logger:    cfg.Logger,
		interval:  cfg.Interval,
		threshold: cfg.Threshold,
		now:       time.Now,
		done:      make(chan struct{}),
	}
	if t.logger == nil {
		t.logger = noopLogger{}
	}
	if t.locks == nil {
		t.locks = lamp.NewLocks()
	}
	if t.interval <= 0 {
		t.interval = DefaultLivenessInterval
	}
	if t.threshold <= 0 {
		t.threshold = DefaultOfflineThreshold
	}
	return t
}

// Start begins periodic scans. Call Stop to end them.
func (t *LivenessTracker) Start(ctx context.Context) {
	t.wg.Add(1)
	go t.loop(ctx)
	t.logger.Info("liveness tracker started", "interval", t.interval.String(), "threshold", t.threshold.String())
}

// Stop halts the scan loop and waits for an in-flight scan to finish.
// Safe to call more than once.
func (t *LivenessTracker) Stop() {
	t.stopOnce.Do(func() {
		close(t.done)
		t.wg.Wait()
		t.logger.Info("liveness tracker stopped")
	})
}

func (t *LivenessTracker) loop(ctx context.Context) {
	defer t.wg.Done()

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.done:
			return
		case <-ticker.C:
			if _, err := t.Run(ctx); err != nil {
				t.logger.Error("liveness scan failed", "error", err)
			}
		}
	}
}

// Run performs one scan over online lamps and returns the IDs flagged
// offline. A lamp whose latest metric is missing or older than the threshold
// goes offline and off. A lamp that is still reporting is marked on when its
// brightness is non-zero. Per-lamp failures are logged and skipped.
func (t *LivenessTracker) Run(ctx context.Context) ([]string, error) {
	online, err := t.lamps.ListOnline(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing online lamps: %w", err)
	}

	cutoff := t.now().Add(-t.threshold)
	var offline []string
	for i := range online {
		id := online[i].ID
		wentOffline, err := t.check(ctx, id, cutoff)
		if err != nil {
			t.logger.Error("liveness check failed", "lamp_id", id, "error", err)
			continue
		}
		if wentOffline {
			offline = append(offline, id)
		}
	}
	return offline, nil
}

func (t *LivenessTracker) check(ctx context.Context, id string, cutoff time.Time) (bool, error) {
	unlock := t.locks.Lock(id)
	defer unlock()

	// Reload under the lock; a report may have landed since the listing.
	l, err := t.lamps.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	if !l.Online {
		return false, nil
	}

	latest, err := t.metrics.Latest(ctx, id)
	if err != nil && !errors.Is(err, lamp.ErrNoMetrics) {
		return false, err
	}

	stale := latest == nil || latest.Timestamp.Before(cutoff)
	changed := false
	switch {
	case stale:
		l.Online = false
		l.On = false
		changed = true
	case l.Brightness > 0 && !l.On:
		l.On = true
		changed = true
	}
	if !changed {
		return false, nil
	}

	if err := t.lamps.Save(ctx, l); err != nil {
		return false, err
	}
	if stale {
		t.logger.Warn("lamp offline", "lamp_id", id, "threshold", t.threshold.String())
		if t.hub != nil {
			t.hub.Broadcast(lamp.EventLampStatus, StatusEvent{LampID: id, Online: false})
		}
	}
	return stale, nil
}
