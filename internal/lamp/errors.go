package lamp

import "errors"

// Domain errors for the lamp package. Check with errors.Is.
var (
	// ErrLampNotFound is returned when a lamp ID does not exist. Lamps are
	// never created implicitly.
	ErrLampNotFound = errors.New("lamp: not found")

	// ErrLampExists is returned when creating a lamp whose ID is taken.
	ErrLampExists = errors.New("lamp: already exists")

	// ErrAccessDenied is returned when the caller neither owns the lamp nor
	// is an administrator.
	ErrAccessDenied = errors.New("lamp: access denied")

	// ErrInvalidConfig is returned for a LampConfig that cannot be stored,
	// such as a mode slot outside 0..MaxModes-1.
	ErrInvalidConfig = errors.New("lamp: invalid config")

	// ErrInvalidModes is returned when stored mode JSON cannot be decoded.
	ErrInvalidModes = errors.New("lamp: invalid stored modes")

	// ErrInvalidPreset is returned for a preset slot outside 0..MaxPresetSlots-1.
	ErrInvalidPreset = errors.New("lamp: invalid preset slot")

	// ErrInvalidName is returned for an empty or overlong lamp name.
	ErrInvalidName = errors.New("lamp: invalid name")

	// ErrNoMetrics is returned when a lamp has never reported.
	ErrNoMetrics = errors.New("lamp: no metrics recorded")
)
