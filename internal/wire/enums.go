package wire

import (
	"fmt"
	"strings"
)

// DiscoPattern selects the animation a disco mode plays.
type DiscoPattern int

const (
	DiscoOff        DiscoPattern = 0
	DiscoColorCycle DiscoPattern = 1
	DiscoStrobe     DiscoPattern = 2
)

var discoNames = map[DiscoPattern]string{
	DiscoOff:        "OFF",
	DiscoColorCycle: "COLOR_CYCLE",
	DiscoStrobe:     "STROBE",
}

func (p DiscoPattern) String() string {
	if name, ok := discoNames[p]; ok {
		return name
	}
	return fmt.Sprintf("DiscoPattern(%d)", int(p))
}

// Valid reports whether p is one of the known patterns.
func (p DiscoPattern) Valid() bool {
	_, ok := discoNames[p]
	return ok
}

// ParseDiscoPattern resolves a pattern name, case-insensitively.
func ParseDiscoPattern(name string) (DiscoPattern, bool) {
	for p, n := range discoNames {
		if strings.EqualFold(n, name) {
			return p, true
		}
	}
	return DiscoOff, false
}

// MarshalText renders the pattern name in JSON.
func (p DiscoPattern) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText accepts a pattern name; unknown names become DiscoOff.
func (p *DiscoPattern) UnmarshalText(text []byte) error {
	*p, _ = ParseDiscoPattern(string(text))
	return nil
}

// AlertCause classifies why a lamp raised an alert.
type AlertCause int

const (
	CauseGeneral        AlertCause = 0
	CauseWifi           AlertCause = 1
	CauseOTAUpdate      AlertCause = 2
	CauseHardware       AlertCause = 3
	CauseInvalidConfig  AlertCause = 4
	CauseInvalidCommand AlertCause = 5
	CauseInvalidMode    AlertCause = 6
	CauseInvalidPreset  AlertCause = 7
)

var causeNames = [...]string{
	"GENERAL", "WIFI", "OTA_UPDATE", "HARDWARE",
	"INVALID_CONFIG", "INVALID_COMMAND", "INVALID_MODE", "INVALID_PRESET",
}

// Normalize maps unknown codes to CauseGeneral.
func (c AlertCause) Normalize() AlertCause {
	if c < 0 || int(c) >= len(causeNames) {
		return CauseGeneral
	}
	return c
}

func (c AlertCause) String() string {
	return causeNames[c.Normalize()]
}

// AlertLevel is the severity of an alert.
type AlertLevel int

const (
	LevelDebug    AlertLevel = 0
	LevelInfo     AlertLevel = 1
	LevelWarning  AlertLevel = 2
	LevelError    AlertLevel = 3
	LevelCritical AlertLevel = 4
)

var levelNames = [...]string{"DEBUG", "INFO", "WARNING", "ERROR", "CRITICAL"}

// Normalize maps unknown levels to LevelError.
func (l AlertLevel) Normalize() AlertLevel {
	if l < 0 || int(l) >= len(levelNames) {
		return LevelError
	}
	return l
}

func (l AlertLevel) String() string {
	return levelNames[l.Normalize()]
}
