package automation

import "time"

// Default hysteresis thresholds.
const (
	DefaultCircadianHysteresis  = 10
	DefaultBrightnessHysteresis = 5
)

// WhiteBalance is a warm/cold white channel pair (0-255).
type WhiteBalance struct {
	Warm int
	Cold int
}

// CircadianTarget returns the white balance for the hour of t in loc.
//
//	06:00-09:00  dawn   warm 100, cold 150
//	09:00-17:00  day    warm   0, cold 255
//	17:00-20:00  dusk   warm 150, cold 100
//	otherwise    night  warm 255, cold   0
func CircadianTarget(t time.Time, loc *time.Location) WhiteBalance {
	if loc == nil {
		loc = time.UTC
	}
	switch hour := t.In(loc).Hour(); {
	case hour >= 6 && hour < 9:
		return WhiteBalance{Warm: 100, Cold: 150}
	case hour >= 9 && hour < 17:
		return WhiteBalance{Warm: 0, Cold: 255}
	case hour >= 17 && hour < 20:
		return WhiteBalance{Warm: 150, Cold: 100}
	default:
		return WhiteBalance{Warm: 255, Cold: 0}
	}
}

// AdaptiveBrightness maps an ambient light reading (lux) to a brightness
// percentage. Brighter rooms get a dimmer lamp.
func AdaptiveBrightness(lux int) int {
	switch {
	case lux > 800:
		return 10
	case lux > 400:
		return 40
	case lux < 100:
		return 100
	default:
		return 70
	}
}

// exceeds reports whether current differs from target by more than threshold.
func exceeds(current, target, threshold int) bool {
	d := current - target
	if d < 0 {
		d = -d
	}
	return d > threshold
}
