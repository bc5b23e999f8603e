package lamp

import (
	"fmt"
	"time"

	"github.com/nerrad567/lampfleet-core/internal/wire"
)

// DefaultWakeUpIntervalMinutes is sent in every config's internal block.
const DefaultWakeUpIntervalMinutes = 10

// now is swapped in tests.
var now = time.Now

// ToWire builds the config message for a lamp from its stored settings.
// Empty preset slots are kept as empty states so slot positions survive.
func ToWire(l *Lamp, modes []Mode) *wire.LampConfig {
	interval := l.ReportInterval
	if interval <= 0 {
		interval = DefaultReportInterval
	}

	cfg := &wire.LampConfig{
		Version:   wire.ProtocolVersion,
		Timestamp: now().UnixMilli(),
		Internal: &wire.InternalConfig{
			ReportingIntervalSeconds: interval,
			WakeUpIntervalMinutes:    DefaultWakeUpIntervalMinutes,
		},
	}

	for _, m := range modes {
		ws := wire.ModeSettings{ModeID: m.ID}
		switch s := m.Settings.(type) {
		case DiscoMode:
			pattern := s.Pattern
			if !pattern.Valid() {
				pattern = wire.DiscoOff
			}
			ws.Disco = &wire.DiscoSettings{Pattern: pattern, Speed: s.Speed, Intensity: s.Intensity}
		case ScheduleMode:
			ws.Daylight = &wire.DaylightSettings{}
			for _, e := range s.Entries {
				we, ok := entryToWire(e)
				if ok {
					ws.Daylight.Entries = append(ws.Daylight.Entries, we)
				}
			}
		case PresetMode:
			ws.Preset = &wire.PresetSettings{Presets: make([]wire.LampState, 0, len(s.Slots))}
			for _, slot := range s.Slots {
				ws.Preset.Presets = append(ws.Preset.Presets, targetToWire(slot))
			}
		default:
			continue
		}
		cfg.Modes = append(cfg.Modes, ws)
	}
	return cfg
}

func entryToWire(e ScheduleEntry) (wire.ScheduleEntry, bool) {
	target := targetToWire(e.Target)
	if target.Empty() {
		return wire.ScheduleEntry{}, false
	}
	we := wire.ScheduleEntry{Target: &target}
	switch t := e.Trigger.(type) {
	case HourTrigger:
		we.Hour = &wire.HourSetting{
			StartSecond:       t.StartSecond,
			EndSecond:         t.EndSecond,
			TransitionSeconds: t.TransitionSeconds,
			EndsNextDay:       t.EndsNextDay(),
		}
	case BrightnessTrigger:
		we.Brightness = &wire.BrightnessSetting{
			MinBrightness:     t.Min,
			MaxBrightness:     t.Max,
			TransitionSeconds: t.TransitionSeconds,
		}
	default:
		return wire.ScheduleEntry{}, false
	}
	return we, true
}

// targetToWire returns an empty state for a nil target.
func targetToWire(t TargetState) wire.LampState {
	switch v := t.(type) {
	case DirectTarget:
		ds := v.Channels.Wire()
		return wire.LampState{Direct: &ds}
	case PhotoWhiteTarget:
		return wire.LampState{PhotoWhite: &wire.PhotoWhiteSetting{Intensity: v.Intensity, Temperature: v.Temperature}}
	case PhotoColorTarget:
		return wire.LampState{PhotoColor: &wire.PhotoColorSetting{Intensity: v.Intensity, Hue: v.Hue, Saturation: v.Saturation}}
	default:
		return wire.LampState{}
	}
}

// targetFromWire returns nil for an empty state. When several payloads are
// set the first of direct, photo-white, photo-colour wins.
func targetFromWire(s *wire.LampState) TargetState {
	switch {
	case s.Empty():
		return nil
	case s.Direct != nil:
		return DirectTarget{Channels: ChannelsFromWire(s.Direct)}
	case s.PhotoWhite != nil:
		return PhotoWhiteTarget{Intensity: s.PhotoWhite.Intensity, Temperature: s.PhotoWhite.Temperature}
	default:
		return PhotoColorTarget{Intensity: s.PhotoColor.Intensity, Hue: s.PhotoColor.Hue, Saturation: s.PhotoColor.Saturation}
	}
}

// ModesFromWire converts the modes of an incoming config. Modes with no
// settings are skipped, as are schedule entries lacking a trigger or a
// target. Preset slots are always kept; an empty slot becomes nil.
func ModesFromWire(cfg *wire.LampConfig) ([]Mode, error) {
	if cfg == nil {
		return nil, nil
	}
	var modes []Mode
	seen := make(map[int]bool, len(cfg.Modes))
	for _, ws := range cfg.Modes {
		if ws.ModeID < 0 || ws.ModeID >= MaxModes {
			return nil, fmt.Errorf("%w: mode id %d outside 0..%d", ErrInvalidConfig, ws.ModeID, MaxModes-1)
		}
		if seen[ws.ModeID] {
			return nil, fmt.Errorf("%w: duplicate mode id %d", ErrInvalidConfig, ws.ModeID)
		}
		seen[ws.ModeID] = true

		m := Mode{ID: ws.ModeID, Name: ModeName(ws.ModeID)}
		switch {
		case ws.Disco != nil:
			pattern := ws.Disco.Pattern
			if !pattern.Valid() {
				pattern = wire.DiscoOff
			}
			m.Settings = DiscoMode{Pattern: pattern, Speed: ws.Disco.Speed, Intensity: ws.Disco.Intensity}
		case ws.Daylight != nil:
			m.Settings = scheduleFromWire(ws.Daylight)
		case ws.Preset != nil:
			pm := PresetMode{Slots: make([]TargetState, 0, len(ws.Preset.Presets))}
			for i := range ws.Preset.Presets {
				pm.Slots = append(pm.Slots, targetFromWire(&ws.Preset.Presets[i]))
			}
			m.Settings = pm
		default:
			continue
		}
		modes = append(modes, m)
	}
	return modes, nil
}

func scheduleFromWire(d *wire.DaylightSettings) ScheduleMode {
	var sm ScheduleMode
	for _, e := range d.Entries {
		target := targetFromWire(e.Target)
		if target == nil {
			continue
		}
		var trigger Trigger
		switch {
		case e.Hour != nil:
			trigger = HourTrigger{
				StartSecond:       e.Hour.StartSecond,
				EndSecond:         e.Hour.EndSecond,
				TransitionSeconds: e.Hour.TransitionSeconds,
			}
		case e.Brightness != nil:
			trigger = BrightnessTrigger{
				Min:               e.Brightness.MinBrightness,
				Max:               e.Brightness.MaxBrightness,
				TransitionSeconds: e.Brightness.TransitionSeconds,
			}
		default:
			continue
		}
		sm.Entries = append(sm.Entries, ScheduleEntry{Trigger: trigger, Target: target})
	}
	return sm
}
