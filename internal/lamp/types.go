package lamp

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/lampfleet-core/internal/wire"
)

// Defaults for a freshly provisioned lamp.
const (
	DefaultBrightness     = 50
	DefaultColor          = "#ffffff"
	DefaultReportInterval = 60 // seconds

	maxNameLength = 100
)

// Channels are LED channel levels, 0..255.
type Channels struct {
	Red          int `json:"red"`
	Green        int `json:"green"`
	Blue         int `json:"blue"`
	WarmWhite    int `json:"warm_white"`
	ColdWhite    int `json:"cold_white"`
	NeutralWhite int `json:"neutral_white"`
}

// PhotoWhite is the last photo-white setting sent to the lamp.
type PhotoWhite struct {
	Intensity   int `json:"intensity"`
	Temperature int `json:"temperature"`
}

// PhotoColor is the last photo-colour setting sent to the lamp.
type PhotoColor struct {
	Intensity  int `json:"intensity"`
	Hue        int `json:"hue"`
	Saturation int `json:"saturation"`
}

// Lamp is the persisted state of one physical lamp.
//
// ActiveModeID nil means the lamp is under direct control and LED is
// authoritative. A non-nil value means the lamp runs that mode; LED then
// only reflects the last telemetry snapshot.
type Lamp struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	OwnerID *string `json:"owner_id,omitempty"`
	FleetID *string `json:"fleet_id,omitempty"`

	Online bool `json:"online"`
	On     bool `json:"on"`

	LED        Channels `json:"led"`
	Brightness int      `json:"brightness"`
	Color      string   `json:"color"`

	ReportInterval int  `json:"report_interval"`
	AmbientLight   *int `json:"ambient_light,omitempty"`
	AmbientNoise   *int `json:"ambient_noise,omitempty"`

	PhotoWhite PhotoWhite `json:"photo_white"`
	PhotoColor PhotoColor `json:"photo_color"`

	ActiveModeID *int `json:"active_mode_id,omitempty"`

	// ModesConfig is the JSON-encoded mode list; see DecodeModes.
	ModesConfig string `json:"-"`

	CircadianEnabled          bool `json:"circadian_enabled"`
	AdaptiveBrightnessEnabled bool `json:"adaptive_brightness_enabled"`

	FirmwareVersion string `json:"firmware_version,omitempty"`

	// TokenHash is the SHA-256 hex digest of the lamp's broker token.
	TokenHash string `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New returns a lamp with factory defaults.
func New(id string) *Lamp {
	return &Lamp{
		ID:             id,
		Brightness:     DefaultBrightness,
		Color:          DefaultColor,
		ReportInterval: DefaultReportInterval,
	}
}

// ValidateName checks a user-facing lamp name.
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxNameLength {
		return fmt.Errorf("%w: must be 1-%d characters", ErrInvalidName, maxNameLength)
	}
	return nil
}

// HexColor renders RGB channels as "#rrggbb", clamping each to 0..255.
func HexColor(r, g, b int) string {
	return fmt.Sprintf("#%02x%02x%02x", clampByte(r), clampByte(g), clampByte(b))
}

func clampByte(v int) int {
	return max(0, min(255, v))
}

// ChannelsFromWire copies wire direct settings into stored channels.
func ChannelsFromWire(ds *wire.DirectSettings) Channels {
	return Channels{
		Red:          ds.Red,
		Green:        ds.Green,
		Blue:         ds.Blue,
		WarmWhite:    ds.WarmWhite,
		ColdWhite:    ds.ColdWhite,
		NeutralWhite: ds.NeutralWhite,
	}
}

// Wire returns the channels as wire direct settings.
func (c Channels) Wire() wire.DirectSettings {
	return wire.DirectSettings{
		Red:          c.Red,
		Green:        c.Green,
		Blue:         c.Blue,
		WarmWhite:    c.WarmWhite,
		ColdWhite:    c.ColdWhite,
		NeutralWhite: c.NeutralWhite,
	}
}

// Metric is one stored status report sample. Rows are append-only.
type Metric struct {
	ID              int64     `json:"id"`
	LampID          string    `json:"lamp_id"`
	Timestamp       time.Time `json:"timestamp"`
	DeviceTimestamp int64     `json:"device_timestamp"`
	UptimeSeconds   int64     `json:"uptime_seconds"`
	Temperatures    string    `json:"temperatures"`
	AmbientLight    int       `json:"ambient_light"`
	AmbientNoise    int       `json:"ambient_noise"`
	Abnormal        bool      `json:"abnormal"`
}

// temperatureSeparator joins multi-sensor readings in Metric.Temperatures.
const temperatureSeparator = ","

// JoinTemperatures renders readings in their shortest exact decimal form.
func JoinTemperatures(readings []float64) string {
	parts := make([]string, len(readings))
	for i, r := range readings {
		parts[i] = strconv.FormatFloat(r, 'f', -1, 64)
	}
	return strings.Join(parts, temperatureSeparator)
}

// SplitTemperatures parses the stored list, skipping unparsable and
// non-finite entries.
func SplitTemperatures(s string) []float64 {
	var out []float64
	for _, part := range strings.Split(s, temperatureSeparator) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if v, err := strconv.ParseFloat(part, 64); err == nil && !math.IsNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	return out
}

// PrimaryTemperature returns the first reading, or 0 when there is none.
func (m *Metric) PrimaryTemperature() (float64, bool) {
	first, _, _ := strings.Cut(m.Temperatures, temperatureSeparator)
	v, err := strconv.ParseFloat(strings.TrimSpace(first), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// Alert is one alert a lamp reported. The active set for a lamp is
// replaced wholesale by each status report.
type Alert struct {
	ID            int64           `json:"id"`
	LampID        string          `json:"lamp_id"`
	DeviceAlertID int64           `json:"device_alert_id"`
	Cause         wire.AlertCause `json:"cause"`
	Level         wire.AlertLevel `json:"level"`
	Message       string          `json:"message"`
	Timestamp     time.Time       `json:"timestamp"`
	Active        bool            `json:"active"`
}

// AlertFromWire builds a stored alert, normalising unknown enum values. A zero device timestamp
// falls back to receivedAt.
func AlertFromWire(lampID string, a wire.Alert, receivedAt time.Time) Alert {
	ts := receivedAt
	if a.Timestamp > 0 {
		ts = time.UnixMilli(a.Timestamp).UTC()
	}
	return Alert{
		LampID:        lampID,
		DeviceAlertID: a.ID,
		Cause:         a.Cause.Normalize(),
		Level:         a.Level.Normalize(),
		Message:       a.Message,
		Timestamp:     ts,
		Active:        true,
	}
}

func (a Alert) wire() wire.Alert {
	msg := a.Message
	if msg == "" {
		msg = "Unknown error"
	}
	return wire.Alert{
		ID:          a.DeviceAlertID,
		Cause:       a.Cause.Normalize(),
		Level:       a.Level.Normalize(),
		Message:     msg,
		Timestamp:   a.Timestamp.UnixMilli(),
		WillPersist: true,
	}
}
