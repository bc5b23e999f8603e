package automation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/lampfleet-core/internal/infrastructure/database/dbtest"
	"github.com/nerrad567/lampfleet-core/internal/lamp"
	"github.com/nerrad567/lampfleet-core/internal/wire"
)

// noon falls in the day band: warm 0, cold 255.
var noon = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

type published struct {
	topic   string
	payload []byte
}

type mockMQTT struct {
	mu         sync.Mutex
	messages   []published
	publishErr error
}

func (m *mockMQTT) Publish(topic string, payload []byte, _ byte, _ bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return m.publishErr
	}
	m.messages = append(m.messages, published{topic, payload})
	return nil
}

func (m *mockMQTT) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}

type mockHub struct {
	mu       sync.Mutex
	channels []string
}

func (h *mockHub) Broadcast(channel string, _ any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.channels = append(h.channels, channel)
}

type fixture struct {
	lamps *lamp.SQLiteRepository
	mqtt  *mockMQTT
	hub   *mockHub
	loop  *Loop
}

func setup(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		lamps: lamp.NewSQLiteRepository(dbtest.Open(t).DB),
		mqtt:  &mockMQTT{},
		hub:   &mockHub{},
	}
	f.loop = NewLoop(Config{Lamps: f.lamps, MQTT: f.mqtt, Hub: f.hub})
	f.loop.now = func() time.Time { return noon }
	return f
}

func intp(v int) *int { return &v }

func (f *fixture) addLamp(t *testing.T, id string, mutate func(*lamp.Lamp)) {
	t.Helper()
	l := lamp.New(id)
	l.Online = true
	l.On = true
	mutate(l)
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

func TestLoop_CircadianAppliesAndPublishes(t *testing.T) {
	f := setup(t)
	f.addLamp(t, "lamp-1", func(l *lamp.Lamp) {
		l.CircadianEnabled = true
		l.LED = lamp.Channels{Red: 40, WarmWhite: 200, ColdWhite: 30}
		l.ActiveModeID = intp(1)
	})

	res, err := f.loop.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(res.Circadian) != 1 || res.Circadian[0] != "lamp-1" {
		t.Errorf("Circadian = %v, want [lamp-1]", res.Circadian)
	}

	got := f.get(t, "lamp-1")
	want := lamp.Channels{WarmWhite: 0, ColdWhite: 255}
	if got.LED != want {
		t.Errorf("LED = %+v, want %+v", got.LED, want)
	}
	if got.ActiveModeID != nil {
		t.Errorf("ActiveModeID = %v, want nil after a direct command", *got.ActiveModeID)
	}

	if f.mqtt.count() != 1 {
		t.Fatalf("published %d messages, want 1", f.mqtt.count())
	}
	msg := f.mqtt.messages[0]
	if msg.topic != "lamps/lamp-1/command" {
		t.Errorf("topic = %q, want lamps/lamp-1/command", msg.topic)
	}
	cmd, err := wire.DecodeCommand(msg.payload)
	if err != nil {
		t.Fatalf("DecodeCommand() error = %v", err)
	}
	if cmd.Direct == nil {
		t.Fatalf("command kind = %q, want direct", cmd.Kind())
	}
	if *cmd.Direct != (wire.DirectSettings{WarmWhite: 0, ColdWhite: 255}) {
		t.Errorf("direct settings = %+v", *cmd.Direct)
	}
	if len(f.hub.channels) != 1 || f.hub.channels[0] != lamp.EventLampCommand {
		t.Errorf("broadcasts = %v", f.hub.channels)
	}
}

func TestLoop_CircadianHysteresis(t *testing.T) {
	tests := []struct {
		name       string
		warm, cold int
		wantApply  bool
	}{
		{"on target", 0, 255, false},
		{"within threshold", 10, 245, false},
		{"warm over threshold", 11, 255, true},
		{"cold under target", 0, 244, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t)
			f.addLamp(t, "lamp-1", func(l *lamp.Lamp) {
				l.CircadianEnabled = true
				l.LED = lamp.Channels{WarmWhite: tt.warm, ColdWhite: tt.cold}
			})

			res, err := f.loop.Run(context.Background())
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if applied := len(res.Circadian) == 1; applied != tt.wantApply {
				t.Errorf("applied = %v, want %v", applied, tt.wantApply)
			}
			if published := f.mqtt.count() == 1; published != tt.wantApply {
				t.Errorf("published = %v, want %v", published, tt.wantApply)
			}
		})
	}
}

func TestLoop_AdaptiveBrightness(t *testing.T) {
	tests := []struct {
		name           string
		lux            *int
		brightness     int
		wantBrightness int
	}{
		{"bright room dims lamp", intp(900), 60, 10},
		{"delta of 3 ignored", intp(200), 73, 73},
		{"delta of 30 applied", intp(200), 40, 70},
		{"dark room", intp(20), 50, 100},
		{"no reading", nil, 50, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t)
			f.addLamp(t, "lamp-1", func(l *lamp.Lamp) {
				l.AdaptiveBrightnessEnabled = true
				l.AmbientLight = tt.lux
				l.Brightness = tt.brightness
			})

			if _, err := f.loop.Run(context.Background()); err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if got := f.get(t, "lamp-1").Brightness; got != tt.wantBrightness {
				t.Errorf("Brightness = %d, want %d", got, tt.wantBrightness)
			}
			if f.mqtt.count() != 0 {
				t.Errorf("adaptive brightness published %d commands, want 0", f.mqtt.count())
			}
		})
	}
}

func TestLoop_SkipsInactiveLamps(t *testing.T) {
	f := setup(t)
	f.addLamp(t, "offline", func(l *lamp.Lamp) {
		l.Online = false
		l.CircadianEnabled = true
	})
	f.addLamp(t, "switched-off", func(l *lamp.Lamp) {
		l.On = false
		l.CircadianEnabled = true
	})
	f.addLamp(t, "no-features", func(l *lamp.Lamp) {
		l.AmbientLight = intp(900)
	})

	res, err := f.loop.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Visited != 0 || f.mqtt.count() != 0 {
		t.Errorf("visited = %d, published = %d; want 0, 0", res.Visited, f.mqtt.count())
	}
	if got := f.get(t, "no-features").Brightness; got != lamp.DefaultBrightness {
		t.Errorf("Brightness = %d, want untouched default", got)
	}
}

func TestLoop_ConfiguredHysteresis(t *testing.T) {
	f := setup(t)
	f.loop = NewLoop(Config{
		Lamps:                f.lamps,
		MQTT:                 f.mqtt,
		CircadianHysteresis:  intp(0),
		BrightnessHysteresis: intp(50),
	})
	f.loop.now = func() time.Time { return noon }
	f.addLamp(t, "lamp-1", func(l *lamp.Lamp) {
		l.CircadianEnabled = true
		l.AdaptiveBrightnessEnabled = true
		l.AmbientLight = intp(900)
		l.Brightness = 40
		l.LED = lamp.Channels{WarmWhite: 1, ColdWhite: 255}
	})

	res, err := f.loop.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(res.Circadian) != 1 {
		t.Error("zero circadian hysteresis should apply a one-unit change")
	}
	if len(res.Adaptive) != 0 || f.get(t, "lamp-1").Brightness != 40 {
		t.Error("brightness hysteresis of 50 should hold a 30-point change")
	}
}

func TestLoop_PublishFailureKeepsState(t *testing.T) {
	f := setup(t)
	f.mqtt.publishErr = errors.New("broker down")
	f.addLamp(t, "lamp-1", func(l *lamp.Lamp) {
		l.CircadianEnabled = true
		l.LED = lamp.Channels{WarmWhite: 255}
	})

	res, err := f.loop.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(res.Failed) != 0 {
		t.Errorf("Failed = %v, want none", res.Failed)
	}
	if got := f.get(t, "lamp-1").LED.ColdWhite; got != 255 {
		t.Errorf("ColdWhite = %d, want persisted 255", got)
	}
}

func TestLoop_StartStop(t *testing.T) {
	f := setup(t)
	f.addLamp(t, "lamp-1", func(l *lamp.Lamp) {
		l.AdaptiveBrightnessEnabled = true
		l.AmbientLight = intp(900)
	})
	lp := NewLoop(Config{Lamps: f.lamps, Interval: 10 * time.Millisecond})
	lp.Start(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for f.get(t, "lamp-1").Brightness != 10 {
		if time.Now().After(deadline) {
			t.Fatal("loop never adjusted brightness")
		}
		time.Sleep(10 * time.Millisecond)
	}
	lp.Stop()
	lp.Stop()
}
