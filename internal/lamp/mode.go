package lamp

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/nerrad567/lampfleet-core/internal/wire"
)

const (
	// MaxModes is the number of mode slots a lamp exposes (IDs 0..MaxModes-1).
	MaxModes = 10

	// PresetModeID is the mode slot holding the preset list.
	PresetModeID = 3

	// MaxPresetSlots is the number of preset slots offered by default.
	MaxPresetSlots = 5
)

// Mode type discriminators in stored JSON.
const (
	ModeTypeDisco    = "disco"
	ModeTypeSchedule = "schedule"
	ModeTypePreset   = "preset"
)

// Mode is one configured mode slot.
type Mode struct {
	ID       int
	Name     string
	Settings ModeSettings
}

// ModeName is the default label for a mode slot.
func ModeName(id int) string {
	return "Mode " + strconv.Itoa(id)
}

// ModeSettings is the behaviour a mode runs. Implemented by DiscoMode,
// ScheduleMode and PresetMode.
type ModeSettings interface {
	modeType() string
}

// DiscoMode plays an animation.
type DiscoMode struct {
	Pattern   wire.DiscoPattern `json:"pattern"`
	Speed     int               `json:"speed"`
	Intensity int               `json:"intensity"`
}

// ScheduleMode switches targets by time of day or ambient light.
type ScheduleMode struct {
	Entries []ScheduleEntry
}

// PresetMode holds addressable target slots. A nil slot is empty.
type PresetMode struct {
	Slots []TargetState
}

func (DiscoMode) modeType() string    { return ModeTypeDisco }
func (ScheduleMode) modeType() string { return ModeTypeSchedule }
func (PresetMode) modeType() string   { return ModeTypePreset }

// ScheduleEntry pairs a trigger with the target it applies.
type ScheduleEntry struct {
	Trigger Trigger
	Target  TargetState
}

// Trigger is implemented by HourTrigger and BrightnessTrigger.
type Trigger interface {
	triggerType() string
}

const secondsPerHour = 3600

// HourTrigger is a window in seconds past local midnight. A window whose
// end precedes its start wraps past midnight.
type HourTrigger struct {
	StartSecond       int `json:"start_second"`
	EndSecond         int `json:"end_second"`
	TransitionSeconds int `json:"transition_seconds"`
}

// NewHourTrigger builds a window from whole hours.
func NewHourTrigger(startHour, endHour, transitionSeconds int) HourTrigger {
	return HourTrigger{
		StartSecond:       startHour * secondsPerHour,
		EndSecond:         endHour * secondsPerHour,
		TransitionSeconds: transitionSeconds,
	}
}

// Hours returns the window bounds truncated to whole hours.
func (h HourTrigger) Hours() (start, end int) {
	return h.StartSecond / secondsPerHour, h.EndSecond / secondsPerHour
}

// EndsNextDay reports whether the window wraps past midnight.
func (h HourTrigger) EndsNextDay() bool {
	return h.EndSecond < h.StartSecond
}

// BrightnessTrigger is an ambient light band.
type BrightnessTrigger struct {
	Min               int `json:"min"`
	Max               int `json:"max"`
	TransitionSeconds int `json:"transition_seconds"`
}

func (HourTrigger) triggerType() string       { return "hour" }
func (BrightnessTrigger) triggerType() string { return "brightness" }

// TargetState is implemented by DirectTarget, PhotoWhiteTarget and
// PhotoColorTarget.
type TargetState interface {
	targetType() string
}

// DirectTarget sets raw channel levels.
type DirectTarget struct {
	Channels Channels `json:"channels"`
}

// PhotoWhiteTarget sets white output by colour temperature.
type PhotoWhiteTarget struct {
	Intensity   int `json:"intensity"`
	Temperature int `json:"temperature"`
}

// PhotoColorTarget sets colour output by hue and saturation.
type PhotoColorTarget struct {
	Intensity  int `json:"intensity"`
	Hue        int `json:"hue"`
	Saturation int `json:"saturation"`
}

func (DirectTarget) targetType() string     { return "direct" }
func (PhotoWhiteTarget) targetType() string { return "photo_white" }
func (PhotoColorTarget) targetType() string { return "photo_color" }

// JSON envelopes. Each carries a "type" discriminator and exactly one
// populated variant.

type modeJSON struct {
	ModeID   int           `json:"mode_id"`
	Name     string        `json:"name"`
	Type     string        `json:"type"`
	Disco    *DiscoMode    `json:"disco,omitempty"`
	Schedule *scheduleJSON `json:"schedule,omitempty"`
	Presets  *presetJSON   `json:"presets,omitempty"`
}

type scheduleJSON struct {
	Entries []entryJSON `json:"entries"`
}

type presetJSON struct {
	Slots []*targetJSON `json:"slots"`
}

type entryJSON struct {
	Trigger *triggerJSON `json:"trigger"`
	Target  *targetJSON  `json:"target"`
}

type triggerJSON struct {
	Type              string `json:"type"`
	StartSecond       int    `json:"start_second,omitempty"`
	EndSecond         int    `json:"end_second,omitempty"`
	Min               int    `json:"min,omitempty"`
	Max               int    `json:"max,omitempty"`
	TransitionSeconds int    `json:"transition_seconds"`
}

type targetJSON struct {
	Type       string            `json:"type"`
	Channels   *Channels         `json:"channels,omitempty"`
	PhotoWhite *PhotoWhiteTarget `json:"photo_white,omitempty"`
	PhotoColor *PhotoColorTarget `json:"photo_color,omitempty"`
}

// MarshalJSON writes the discriminated stored form.
func (m Mode) MarshalJSON() ([]byte, error) {
	out := modeJSON{ModeID: m.ID, Name: m.Name}
	switch s := m.Settings.(type) {
	case DiscoMode:
		out.Type = ModeTypeDisco
		out.Disco = &s
	case ScheduleMode:
		out.Type = ModeTypeSchedule
		sj := &scheduleJSON{Entries: make([]entryJSON, 0, len(s.Entries))}
		for _, e := range s.Entries {
			tr, err := encodeTrigger(e.Trigger)
			if err != nil {
				return nil, err
			}
			tg, err := encodeTarget(e.Target)
			if err != nil {
				return nil, err
			}
			sj.Entries = append(sj.Entries, entryJSON{Trigger: tr, Target: tg})
		}
		out.Schedule = sj
	case PresetMode:
		out.Type = ModeTypePreset
		pj := &presetJSON{Slots: make([]*targetJSON, 0, len(s.Slots))}
		for _, slot := range s.Slots {
			tg, err := encodeTarget(slot)
			if err != nil {
				return nil, err
			}
			pj.Slots = append(pj.Slots, tg)
		}
		out.Presets = pj
	default:
		return nil, fmt.Errorf("mode %d: unsupported settings %T", m.ID, m.Settings)
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads the discriminated stored form.
func (m *Mode) UnmarshalJSON(data []byte) error {
	var in modeJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	m.ID = in.ModeID
	m.Name = in.Name

	switch in.Type {
	case ModeTypeDisco:
		if in.Disco == nil {
			return fmt.Errorf("mode %d: missing disco settings", in.ModeID)
		}
		m.Settings = *in.Disco
	case ModeTypeSchedule:
		var sm ScheduleMode
		if in.Schedule != nil {
			for i, e := range in.Schedule.Entries {
				tr, err := decodeTrigger(e.Trigger)
				if err != nil {
					return fmt.Errorf("mode %d entry %d: %w", in.ModeID, i, err)
				}
				tg, err := decodeTarget(e.Target)
				if err != nil {
					return fmt.Errorf("mode %d entry %d: %w", in.ModeID, i, err)
				}
				if tr == nil || tg == nil {
					return fmt.Errorf("mode %d entry %d: trigger and target are required", in.ModeID, i)
				}
				sm.Entries = append(sm.Entries, ScheduleEntry{Trigger: tr, Target: tg})
			}
		}
		m.Settings = sm
	case ModeTypePreset:
		var pm PresetMode
		if in.Presets != nil {
			for i, s := range in.Presets.Slots {
				tg, err := decodeTarget(s)
				if err != nil {
					return fmt.Errorf("mode %d slot %d: %w", in.ModeID, i, err)
				}
				pm.Slots = append(pm.Slots, tg)
			}
		}
		m.Settings = pm
	default:
		return fmt.Errorf("mode %d: unknown type %q", in.ModeID, in.Type)
	}
	return nil
}

func encodeTrigger(t Trigger) (*triggerJSON, error) {
	switch v := t.(type) {
	case HourTrigger:
		return &triggerJSON{
			Type:              v.triggerType(),
			StartSecond:       v.StartSecond,
			EndSecond:         v.EndSecond,
			TransitionSeconds: v.TransitionSeconds,
		}, nil
	case BrightnessTrigger:
		return &triggerJSON{
			Type:              v.triggerType(),
			Min:               v.Min,
			Max:               v.Max,
			TransitionSeconds: v.TransitionSeconds,
		}, nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported trigger %T", t)
	}
}

func decodeTrigger(j *triggerJSON) (Trigger, error) {
	if j == nil {
		return nil, nil
	}
	switch j.Type {
	case "hour":
		return HourTrigger{StartSecond: j.StartSecond, EndSecond: j.EndSecond, TransitionSeconds: j.TransitionSeconds}, nil
	case "brightness":
		return BrightnessTrigger{Min: j.Min, Max: j.Max, TransitionSeconds: j.TransitionSeconds}, nil
	default:
		return nil, fmt.Errorf("unknown trigger type %q", j.Type)
	}
}

// encodeTarget returns nil for an empty slot.
func encodeTarget(t TargetState) (*targetJSON, error) {
	switch v := t.(type) {
	case DirectTarget:
		ch := v.Channels
		return &targetJSON{Type: v.targetType(), Channels: &ch}, nil
	case PhotoWhiteTarget:
		return &targetJSON{Type: v.targetType(), PhotoWhite: &v}, nil
	case PhotoColorTarget:
		return &targetJSON{Type: v.targetType(), PhotoColor: &v}, nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported target %T", t)
	}
}

func decodeTarget(j *targetJSON) (TargetState, error) {
	if j == nil {
		return nil, nil
	}
	switch j.Type {
	case "direct":
		if j.Channels == nil {
			return DirectTarget{}, nil
		}
		return DirectTarget{Channels: *j.Channels}, nil
	case "photo_white":
		if j.PhotoWhite == nil {
			return PhotoWhiteTarget{}, nil
		}
		return *j.PhotoWhite, nil
	case "photo_color":
		if j.PhotoColor == nil {
			return PhotoColorTarget{}, nil
		}
		return *j.PhotoColor, nil
	default:
		return nil, fmt.Errorf("unknown target type %q", j.Type)
	}
}

// EncodeModes renders a mode list for Lamp.ModesConfig. An empty list
// encodes as "".
func EncodeModes(modes []Mode) (string, error) {
	if len(modes) == 0 {
		return "", nil
	}
	data, err := json.Marshal(modes)
	if err != nil {
		return "", fmt.Errorf("encoding modes: %w", err)
	}
	return string(data), nil
}

// DecodeModes parses Lamp.ModesConfig. An empty string is an empty list.
// Corrupt input returns ErrInvalidModes.
func DecodeModes(raw string) ([]Mode, error) {
	if raw == "" {
		return nil, nil
	}
	var modes []Mode
	if err := json.Unmarshal([]byte(raw), &modes); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidModes, err)
	}
	return modes, nil
}

// FindMode returns the mode with the given ID.
func FindMode(modes []Mode, id int) (Mode, bool) {
	for _, m := range modes {
		if m.ID == id {
			return m, true
		}
	}
	return Mode{}, false
}
