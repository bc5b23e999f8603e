package wire

// ProtocolVersion is the only message version this build accepts.
const ProtocolVersion = 1

// DirectSettings are raw LED channel levels, 0..255 each.
type DirectSettings struct {
	Red          int `cbor:"1,keyasint,omitempty" json:"red"`
	Green        int `cbor:"2,keyasint,omitempty" json:"green"`
	Blue         int `cbor:"3,keyasint,omitempty" json:"blue"`
	WarmWhite    int `cbor:"4,keyasint,omitempty" json:"warm_white"`
	ColdWhite    int `cbor:"5,keyasint,omitempty" json:"cold_white"`
	NeutralWhite int `cbor:"6,keyasint,omitempty" json:"neutral_white"`
}

// PhotoWhiteSetting drives the white channels by colour temperature.
type PhotoWhiteSetting struct {
	Intensity   int `cbor:"1,keyasint,omitempty" json:"intensity"`
	Temperature int `cbor:"2,keyasint,omitempty" json:"temperature"`
}

// PhotoColorSetting drives the RGB channels by hue and saturation.
type PhotoColorSetting struct {
	Intensity  int `cbor:"1,keyasint,omitempty" json:"intensity"`
	Hue        int `cbor:"2,keyasint,omitempty" json:"hue"`
	Saturation int `cbor:"3,keyasint,omitempty" json:"saturation"`
}

// LampState is a target output. At most one field is set; none set is an
// empty preset slot.
type LampState struct {
	Direct     *DirectSettings    `cbor:"1,keyasint,omitempty" json:"direct,omitempty"`
	PhotoWhite *PhotoWhiteSetting `cbor:"2,keyasint,omitempty" json:"photo_white,omitempty"`
	PhotoColor *PhotoColorSetting `cbor:"3,keyasint,omitempty" json:"photo_color,omitempty"`
}

// Empty reports whether no target payload is populated.
func (s *LampState) Empty() bool {
	return s == nil || (s.Direct == nil && s.PhotoWhite == nil && s.PhotoColor == nil)
}

// HourSetting is a time-of-day window in seconds past local midnight.
// EndsNextDay is set when the window wraps midnight (End < Start).
type HourSetting struct {
	StartSecond       int  `cbor:"1,keyasint,omitempty" json:"start_second"`
	EndSecond         int  `cbor:"2,keyasint,omitempty" json:"end_second"`
	TransitionSeconds int  `cbor:"3,keyasint,omitempty" json:"transition_seconds"`
	EndsNextDay       bool `cbor:"4,keyasint,omitempty" json:"ends_next_day,omitempty"`
}

// BrightnessSetting is an ambient light band.
type BrightnessSetting struct {
	MinBrightness     int `cbor:"1,keyasint,omitempty" json:"min_brightness"`
	MaxBrightness     int `cbor:"2,keyasint,omitempty" json:"max_brightness"`
	TransitionSeconds int `cbor:"3,keyasint,omitempty" json:"transition_seconds"`
}

// ScheduleEntry pairs one trigger (Hour or Brightness) with a target.
type ScheduleEntry struct {
	Hour       *HourSetting       `cbor:"1,keyasint,omitempty" json:"hour,omitempty"`
	Brightness *BrightnessSetting `cbor:"2,keyasint,omitempty" json:"brightness,omitempty"`
	Target     *LampState         `cbor:"3,keyasint,omitempty" json:"target,omitempty"`
}

// DiscoSettings configures an animated mode.
type DiscoSettings struct {
	Pattern   DiscoPattern `cbor:"1,keyasint,omitempty" json:"pattern"`
	Speed     int          `cbor:"2,keyasint,omitempty" json:"speed"`
	Intensity int          `cbor:"3,keyasint,omitempty" json:"intensity"`
}

// DaylightSettings is a schedule mode.
type DaylightSettings struct {
	Entries []ScheduleEntry `cbor:"1,keyasint,omitempty" json:"entries"`
}

// PresetSettings holds addressable preset slots.
type PresetSettings struct {
	Presets []LampState `cbor:"1,keyasint,omitempty" json:"presets"`
}

// ModeSettings is one configured mode slot. Exactly one of Disco, Daylight
// or Preset should be set.
type ModeSettings struct {
	ModeID   int               `cbor:"1,keyasint" json:"mode_id"`
	Disco    *DiscoSettings    `cbor:"2,keyasint,omitempty" json:"disco,omitempty"`
	Daylight *DaylightSettings `cbor:"3,keyasint,omitempty" json:"daylight,omitempty"`
	Preset   *PresetSettings   `cbor:"4,keyasint,omitempty" json:"preset,omitempty"`
}

// InternalConfig carries lamp housekeeping settings.
type InternalConfig struct {
	ReportingIntervalSeconds int `cbor:"1,keyasint,omitempty" json:"reporting_interval_seconds"`
	WakeUpIntervalMinutes    int `cbor:"2,keyasint,omitempty" json:"wake_up_interval_minutes,omitempty"`
}

// LampConfig is the full configuration pushed to a lamp.
type LampConfig struct {
	Version   int             `cbor:"1,keyasint" json:"version"`
	Timestamp int64           `cbor:"2,keyasint,omitempty" json:"timestamp,omitempty"`
	Internal  *InternalConfig `cbor:"3,keyasint,omitempty" json:"internal,omitempty"`
	Modes     []ModeSettings  `cbor:"4,keyasint,omitempty" json:"modes,omitempty"`
}

// Alert is one active alert reported by a lamp.
type Alert struct {
	ID          int64      `cbor:"1,keyasint,omitempty" json:"id"`
	Cause       AlertCause `cbor:"2,keyasint,omitempty" json:"cause"`
	Level       AlertLevel `cbor:"3,keyasint,omitempty" json:"level"`
	Message     string     `cbor:"4,keyasint,omitempty" json:"message,omitempty"`
	Timestamp   int64      `cbor:"5,keyasint,omitempty" json:"timestamp,omitempty"`
	WillPersist bool       `cbor:"6,keyasint,omitempty" json:"will_persist,omitempty"`
}

// StatusReport is the periodic telemetry a lamp publishes.
// Timestamps are Unix milliseconds on the lamp's clock.
type StatusReport struct {
	Version         int             `cbor:"1,keyasint" json:"version"`
	DeviceTimestamp int64           `cbor:"2,keyasint,omitempty" json:"timestamp,omitempty"`
	UptimeSeconds   int64           `cbor:"3,keyasint,omitempty" json:"uptime_seconds"`
	Temperatures    []float64       `cbor:"4,keyasint,omitempty" json:"temperatures,omitempty"`
	AmbientLight    int             `cbor:"5,keyasint,omitempty" json:"ambient_light"`
	AmbientNoise    int             `cbor:"6,keyasint,omitempty" json:"ambient_noise"`
	FirmwareVersion string          `cbor:"7,keyasint,omitempty" json:"firmware_version,omitempty"`
	LED             *DirectSettings `cbor:"8,keyasint,omitempty" json:"led,omitempty"`
	Alerts          []Alert         `cbor:"9,keyasint,omitempty" json:"alerts,omitempty"`
	Abnormal        bool            `cbor:"10,keyasint,omitempty" json:"abnormal,omitempty"`
}
