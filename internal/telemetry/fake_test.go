package telemetry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/lampfleet-core/internal/infrastructure/database/dbtest"
	"github.com/nerrad567/lampfleet-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/lampfleet-core/internal/lamp"
	"github.com/nerrad567/lampfleet-core/internal/wire"
)

var baseTime = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

type fakeMirror struct {
	mu      sync.Mutex
	samples []influxdb.StatusSample
}

func (m *fakeMirror) WriteLampStatus(s influxdb.StatusSample) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples = append(m.samples, s)
}

type fakeHub struct {
	mu     sync.Mutex
	events []StatusEvent
}

func (h *fakeHub) Broadcast(channel string, payload any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ev, ok := payload.(StatusEvent); ok && channel == lamp.EventLampStatus {
		h.events = append(h.events, ev)
	}
}

type fixture struct {
	lamps   *lamp.SQLiteRepository
	metrics *lamp.SQLiteMetricRepository
	alerts  *lamp.SQLiteAlertRepository
	locks   *lamp.Locks
	mirror  *fakeMirror
	hub     *fakeHub
	in      *Ingestor
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.Open(t).DB
	f := &fixture{
		lamps:   lamp.NewSQLiteRepository(db),
		metrics: lamp.NewSQLiteMetricRepository(db),
		alerts:  lamp.NewSQLiteAlertRepository(db),
		locks:   lamp.NewLocks(),
		mirror:  &fakeMirror{},
		hub:     &fakeHub{},
	}
	f.in = NewIngestor(IngestorConfig{
		Lamps:   f.lamps,
		Metrics: f.metrics,
		Alerts:  f.alerts,
		Locks:   f.locks,
		Mirror:  f.mirror,
		Hub:     f.hub,
	})
	f.in.now = func() time.Time { return baseTime }
	return f
}

func (f *fixture) addLamp(t *testing.T, id string, mutate func(*lamp.Lamp)) {
	t.Helper()
	l := lamp.New(id)
	if mutate != nil {
		mutate(l)
	}
	if err := f.lamps.Create(context.Background(), l); err != nil {
		t.Fatalf("Create(%s) error = %v", id, err)
	}
}

func (f *fixture) get(t *testing.T, id string) *lamp.Lamp {
	t.Helper()
	l, err := f.lamps.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID(%s) error = %v", id, err)
	}
	return l
}

func encodeStatus(t *testing.T, r wire.StatusReport) []byte {
	t.Helper()
	r.Version = wire.ProtocolVersion
	data, err := wire.EncodeStatus(&r)
	if err != nil {
		t.Fatalf("EncodeStatus() error = %v", err)
	}
	return data
}
