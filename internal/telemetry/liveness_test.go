package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/nerrad567/lampfleet-core/internal/lamp"
	"github.com/nerrad567/lampfleet-core/internal/wire"
)

func newTracker(f *fixture, now time.Time) *LivenessTracker {
	tr := NewLivenessTracker(LivenessConfig{
		Lamps:     f.lamps,
		Metrics:   f.metrics,
		Locks:     f.locks,
		Hub:       f.hub,
		Threshold: 2 * time.Minute,
	})
	tr.now = func() time.Time { return now }
	return tr
}

func TestLivenessTracker_Run(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	online := func(brightness int, on bool) func(*lamp.Lamp) {
		return func(l *lamp.Lamp) {
			l.Online = true
			l.On = on
			l.Brightness = brightness
		}
	}
	f.addLamp(t, "fresh-dim", online(0, false))
	f.addLamp(t, "fresh-lit", online(80, false))
	f.addLamp(t, "stale", online(80, true))
	f.addLamp(t, "silent", online(80, true))
	f.addLamp(t, "already-offline", func(l *lamp.Lamp) { l.On = true })

	// Reports for the fresh lamps land at baseTime; the stale one long before.
	for _, id := range []string{"fresh-dim", "fresh-lit"} {
		if err := f.in.Ingest(ctx, "lamps/"+id+"/status", encodeStatus(t, wire.StatusReport{})); err != nil {
			t.Fatalf("Ingest(%s) error = %v", id, err)
		}
	}
	f.in.now = func() time.Time { return baseTime.Add(-10 * time.Minute) }
	if err := f.in.Ingest(ctx, "lamps/stale/status", encodeStatus(t, wire.StatusReport{})); err != nil {
		t.Fatalf("Ingest(stale) error = %v", err)
	}
	f.hub.events = nil

	tr := newTracker(f, baseTime.Add(time.Minute))
	offline, err := tr.Run(ctx)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(offline) != 2 || offline[0] != "silent" || offline[1] != "stale" {
		t.Errorf("offline = %v, want [silent stale]", offline)
	}

	tests := []struct {
		id         string
		wantOnline bool
		wantOn     bool
	}{
		{"fresh-dim", true, false},
		{"fresh-lit", true, true},
		{"stale", false, false},
		{"silent", false, false},
		{"already-offline", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			l := f.get(t, tt.id)
			if l.Online != tt.wantOnline || l.On != tt.wantOn {
				t.Errorf("online/on = %v/%v, want %v/%v", l.Online, l.On, tt.wantOnline, tt.wantOn)
			}
		})
	}

	if len(f.hub.events) != 2 {
		t.Errorf("offline broadcasts = %d, want 2", len(f.hub.events))
	}
}

func TestLivenessTracker_ReportBringsLampBack(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.addLamp(t, "lamp-1", func(l *lamp.Lamp) { l.Online = true })

	tr := newTracker(f, baseTime)
	if _, err := tr.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if f.get(t, "lamp-1").Online {
		t.Fatal("lamp with no metrics should be offline")
	}

	if err := f.in.Ingest(ctx, "lamps/lamp-1/status", encodeStatus(t, wire.StatusReport{})); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if _, err := tr.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !f.get(t, "lamp-1").Online {
		t.Error("lamp should be online again after reporting")
	}
}

func TestLivenessTracker_Defaults(t *testing.T) {
	tr := NewLivenessTracker(LivenessConfig{})
	if tr.interval != DefaultLivenessInterval {
		t.Errorf("interval = %v, want %v", tr.interval, DefaultLivenessInterval)
	}
	if tr.threshold != DefaultOfflineThreshold {
		t.Errorf("threshold = %v, want %v", tr.threshold, DefaultOfflineThreshold)
	}
}

func TestLivenessTracker_StartStop(t *testing.T) {
	f := setup(t)
	f.addLamp(t, "lamp-1", func(l *lamp.Lamp) { l.Online = true })

	tr := NewLivenessTracker(LivenessConfig{
		Lamps:    f.lamps,
		Metrics:  f.metrics,
		Interval: 10 * time.Millisecond,
	})
	tr.Start(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for f.get(t, "lamp-1").Online {
		if time.Now().After(deadline) {
			t.Fatal("tracker never flagged the silent lamp offline")
		}
		time.Sleep(10 * time.Millisecond)
	}

	tr.Stop()
	tr.Stop() // second call must not panic or block
}
