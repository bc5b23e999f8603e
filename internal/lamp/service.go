package lamp

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/nerrad567/lampfleet-core/internal/auth"
	"github.com/nerrad567/lampfleet-core/internal/wire"
)

// Logger is the logging interface used by the lamp service.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

const (
	// DefaultOfflineThreshold is the telemetry silence after which a lamp
	// counts as offline.
	DefaultOfflineThreshold = 120 * time.Second

	// DefaultBlinkSeconds is used when a blink request names no duration.
	DefaultBlinkSeconds = 5

	temperatureHistoryLimit = 100
	ambientHistoryLimit     = 50

	tokenBytes = 32
)

// ServiceDeps wires a Service. MQTT, Hub and Logger are optional.
type ServiceDeps struct {
	Lamps   Repository
	Metrics MetricRepository
	Alerts  AlertRepository
	Locks   *Locks
	MQTT    MQTTClient
	Hub     EventHub
	Logger  Logger

	// OfflineThreshold defaults to DefaultOfflineThreshold.
	OfflineThreshold time.Duration
}

// Service exposes the lamp operations used by the HTTP surface.
// Every mutation of a lamp row holds that lamp's lock for the whole
// read-modify-write cycle.
type Service struct {
	lamps        Repository
	metrics      MetricRepository
	alerts       AlertRepository
	locks        *Locks
	mqtt         MQTTClient
	hub          EventHub
	logger       Logger
	offlineAfter time.Duration
}

// NewService creates a lamp service.
func NewService(deps ServiceDeps) *Service {
	s := &Service{
		lamps:        deps.Lamps,
		metrics:      deps.Metrics,
		alerts:       deps.Alerts,
		locks:        deps.Locks,
		mqtt:         deps.MQTT,
		hub:          deps.Hub,
		logger:       deps.Logger,
		offlineAfter: deps.OfflineThreshold,
	}
	if s.logger == nil {
		s.logger = noopLogger{}
	}
	if s.locks == nil {
		s.locks = NewLocks()
	}
	if s.offlineAfter <= 0 {
		s.offlineAfter = DefaultOfflineThreshold
	}
	return s
}

// Locks returns the lock set shared with the telemetry and automation loops.
func (s *Service) Locks() *Locks {
	return s.locks
}

// Authorize allows access to unowned lamps, to the owner, and to admins.
func Authorize(caller auth.Caller, l *Lamp) error {
	if l.OwnerID == nil || *l.OwnerID == "" {
		return nil
	}
	if caller.Owns(*l.OwnerID) || caller.IsAdmin() {
		return nil
	}
	return ErrAccessDenied
}

func (s *Service) load(ctx context.Context, caller auth.Caller, id string) (*Lamp, error) {
	l, err := s.lamps.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := Authorize(caller, l); err != nil {
		return nil, err
	}
	return l, nil
}

// modesOf decodes stored modes for read-only views. Corrupt JSON is logged
// and treated as no modes so reads keep working; writers use DecodeModes.
func (s *Service) modesOf(l *Lamp) []Mode {
	modes, err := DecodeModes(l.ModesConfig)
	if err != nil {
		s.logger.Warn("stored modes unreadable, treating as empty", "lamp_id", l.ID, "error", err)
		return nil
	}
	return modes
}

// ListLamps returns every lamp for admins and the caller's own otherwise.
func (s *Service) ListLamps(ctx context.Context, caller auth.Caller) ([]Lamp, error) {
	if caller.IsAdmin() {
		return s.lamps.List(ctx)
	}
	return s.lamps.ListByOwner(ctx, caller.Username)
}

// Get returns one lamp.
func (s *Service) Get(ctx context.Context, caller auth.Caller, id string) (*Lamp, error) {
	return s.load(ctx, caller, id)
}

// ApplyConfig stores an incoming config and pushes the resulting config to
// the lamp. The report interval changes only for a positive value and the
// mode list only when the config carries modes. ActiveModeID is untouched.
func (s *Service) ApplyConfig(ctx context.Context, caller auth.Caller, id string, cfg *wire.LampConfig) ([]Mode, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: empty config", ErrInvalidConfig)
	}
	incoming, err := ModesFromWire(cfg)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(id)
	l, err := s.load(ctx, caller, id)
	if err != nil {
		unlock()
		return nil, err
	}

	if cfg.Internal != nil && cfg.Internal.ReportingIntervalSeconds > 0 {
		l.ReportInterval = cfg.Internal.ReportingIntervalSeconds
	}
	if len(cfg.Modes) > 0 {
		encoded, err := EncodeModes(incoming)
		if err != nil {
			unlock()
			return nil, err
		}
		l.ModesConfig = encoded
	} else if _, err := DecodeModes(l.ModesConfig); err != nil {
		// The pushed config would wipe the device's modes.
		unlock()
		return nil, err
	}

	if err := s.lamps.Save(ctx, l); err != nil {
		unlock()
		return nil, fmt.Errorf("saving lamp config: %w", err)
	}
	modes := s.modesOf(l)
	unlock()

	out := ToWire(l, modes)
	s.publishConfig(id, out)
	s.broadcast(EventLampConfig, ConfigEvent{LampID: id, Config: out})
	s.logger.Info("lamp config applied", "lamp_id", id, "modes", len(modes), "report_interval", l.ReportInterval)
	return modes, nil
}

// ReadConfig builds the config message for a lamp from stored state.
func (s *Service) ReadConfig(ctx context.Context, caller auth.Caller, id string) (*wire.LampConfig, error) {
	l, err := s.load(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	return ToWire(l, s.modesOf(l)), nil
}

// RefreshConfig republishes the stored config.
func (s *Service) RefreshConfig(ctx context.Context, caller auth.Caller, id string) error {
	cfg, err := s.ReadConfig(ctx, caller, id)
	if err != nil {
		return err
	}
	s.publishConfig(id, cfg)
	s.broadcast(EventLampConfig, ConfigEvent{LampID: id, Config: cfg})
	s.logger.Info("lamp config refreshed", "lamp_id", id)
	return nil
}

// ApplyCommand folds cmd into the lamp's state, saving once if anything
// changed, then forwards cmd to the lamp.
func (s *Service) ApplyCommand(ctx context.Context, caller auth.Caller, id string, cmd *wire.LampCommand) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	if cmd.Version == 0 {
		cmd.Version = wire.ProtocolVersion
	}
	if cmd.Timestamp == 0 {
		cmd.Timestamp = now().UnixMilli()
	}

	unlock := s.locks.Lock(id)
	l, err := s.load(ctx, caller, id)
	if err != nil {
		unlock()
		return err
	}
	changed, err := ApplyCommand(l, cmd)
	if err != nil {
		unlock()
		return err
	}
	if changed {
		if err := s.lamps.Save(ctx, l); err != nil {
			unlock()
			return fmt.Errorf("saving lamp state: %w", err)
		}
	}
	unlock()

	s.publishCommand(id, cmd)
	event := CommandEvent{LampID: id, Kind: cmd.Kind(), Changed: changed}
	if changed {
		event.Lamp = l
	}
	s.broadcast(EventLampCommand, event)
	s.logger.Info("lamp command applied", "lamp_id", id, "kind", cmd.Kind(), "changed", changed)
	return nil
}

// ReadStatusReport rebuilds the latest status report from stored telemetry.
// A lamp that never reported yields a report with only the version set.
func (s *Service) ReadStatusReport(ctx context.Context, caller auth.Caller, id string) (*wire.StatusReport, error) {
	l, err := s.load(ctx, caller, id)
	if err != nil {
		return nil, err
	}

	report := &wire.StatusReport{Version: wire.ProtocolVersion}
	m, err := s.metrics.Latest(ctx, id)
	if errors.Is(err, ErrNoMetrics) {
		return report, nil
	}
	if err != nil {
		return nil, err
	}

	led := l.LED.Wire()
	report.DeviceTimestamp = m.DeviceTimestamp
	report.UptimeSeconds = m.UptimeSeconds
	report.Temperatures = SplitTemperatures(m.Temperatures)
	report.AmbientLight = m.AmbientLight
	report.AmbientNoise = m.AmbientNoise
	report.FirmwareVersion = l.FirmwareVersion
	report.LED = &led
	report.Abnormal = m.Abnormal

	alerts, err := s.alerts.ListActive(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, a := range alerts {
		report.Alerts = append(report.Alerts, a.wire())
	}
	return report, nil
}

// Claim assigns the lamp to the caller and issues a fresh device token,
// returned in clear and sent to the lamp. Claiming a lamp registered to
// someone else re-provisions it, wiping its modes and telemetry history.
// An unknown lamp is registered.
func (s *Service) Claim(ctx context.Context, caller auth.Caller, id string) (string, error) {
	if caller.Username == "" {
		return "", auth.ErrNoCaller
	}
	token, hash, err := newDeviceToken()
	if err != nil {
		return "", err
	}

	unlock := s.locks.Lock(id)
	l, err := s.lamps.GetByID(ctx, id)
	switch {
	case errors.Is(err, ErrLampNotFound):
		l = New(id)
		l.OwnerID = &caller.Username
		l.TokenHash = hash
		err = s.lamps.Create(ctx, l)
	case err != nil:
	case l.OwnerID != nil && *l.OwnerID != caller.Username:
		s.logger.Info("lamp owner changed, re-provisioning", "lamp_id", id)
		resetForNewOwner(l)
		l.OwnerID = &caller.Username
		l.TokenHash = hash
		err = s.lamps.Reprovision(ctx, l)
	default:
		l.OwnerID = &caller.Username
		l.FleetID = nil
		l.TokenHash = hash
		err = s.lamps.Save(ctx, l)
	}
	unlock()
	if err != nil {
		return "", fmt.Errorf("claiming lamp: %w", err)
	}

	s.publishCommand(id, wire.NewRegisterTokenCommand(token))
	s.logger.Info("lamp claimed", "lamp_id", id, "owner", caller.Username)
	return token, nil
}

// resetForNewOwner restores factory settings. Smart toggles, name and
// firmware version are kept.
func resetForNewOwner(l *Lamp) {
	fresh := New(l.ID)
	l.FleetID = nil
	l.LED = fresh.LED
	l.Brightness = fresh.Brightness
	l.Color = fresh.Color
	l.ReportInterval = fresh.ReportInterval
	l.AmbientLight = nil
	l.AmbientNoise = nil
	l.PhotoWhite = fresh.PhotoWhite
	l.PhotoColor = fresh.PhotoColor
	l.ActiveModeID = nil
	l.ModesConfig = ""
}

func newDeviceToken() (token, hash string, err error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generating device token: %w", err)
	}
	token = hex.EncodeToString(buf)
	return token, HashToken(token), nil
}

// HashToken returns the SHA-256 hex digest stored for a device token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Rename sets the lamp's display name.
func (s *Service) Rename(ctx context.Context, caller auth.Caller, id, name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	return s.update(ctx, caller, id, func(l *Lamp) {
		l.Name = strings.TrimSpace(name)
	})
}

// SmartConfig holds the automation toggles. Nil fields are left unchanged
// on update.
type SmartConfig struct {
	Circadian *bool `json:"circadian,omitempty"`
	Adaptive  *bool `json:"adaptive,omitempty"`
}

// SmartConfig returns the lamp's automation toggles.
func (s *Service) SmartConfig(ctx context.Context, caller auth.Caller, id string) (SmartConfig, error) {
	l, err := s.load(ctx, caller, id)
	if err != nil {
		return SmartConfig{}, err
	}
	circadian, adaptive := l.CircadianEnabled, l.AdaptiveBrightnessEnabled
	return SmartConfig{Circadian: &circadian, Adaptive: &adaptive}, nil
}

// SetSmartConfig updates the toggles that are set in sc.
func (s *Service) SetSmartConfig(ctx context.Context, caller auth.Caller, id string, sc SmartConfig) error {
	return s.update(ctx, caller, id, func(l *Lamp) {
		if sc.Circadian != nil {
			l.CircadianEnabled = *sc.Circadian
		}
		if sc.Adaptive != nil {
			l.AdaptiveBrightnessEnabled = *sc.Adaptive
		}
		s.logger.Info("smart config updated", "lamp_id", id,
			"circadian", l.CircadianEnabled, "adaptive", l.AdaptiveBrightnessEnabled)
	})
}

func (s *Service) update(ctx context.Context, caller auth.Caller, id string, mutate func(*Lamp)) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	l, err := s.load(ctx, caller, id)
	if err != nil {
		return err
	}
	mutate(l)
	return s.lamps.Save(ctx, l)
}

// Details is a lamp view with liveness derived from telemetry recency.
type Details struct {
	Lamp
	CurrentTemperature *float64   `json:"current_temperature,omitempty"`
	UptimeSeconds      *int64     `json:"uptime_seconds,omitempty"`
	LastUpdate         *time.Time `json:"last_update,omitempty"`
}

// Details returns the lamp with Online recomputed against the offline
// threshold and On reported only while online.
func (s *Service) Details(ctx context.Context, caller auth.Caller, id string) (*Details, error) {
	l, err := s.load(ctx, caller, id)
	if err != nil {
		return nil, err
	}

	d := &Details{Lamp: *l}
	m, err := s.metrics.Latest(ctx, id)
	switch {
	case errors.Is(err, ErrNoMetrics):
		d.Online = false
	case err != nil:
		return nil, err
	default:
		d.Online = now().Sub(m.Timestamp) < s.offlineAfter
		if t, ok := m.PrimaryTemperature(); ok {
			d.CurrentTemperature = &t
		}
		uptime := m.UptimeSeconds
		ts := m.Timestamp
		d.UptimeSeconds = &uptime
		d.LastUpdate = &ts
	}
	d.On = d.Online && l.On
	return d, nil
}

// TemperatureHistory returns the primary temperature of recent samples,
// newest first. Unparsable readings are reported as 0.
func (s *Service) TemperatureHistory(ctx context.Context, caller auth.Caller, id string) ([]float64, error) {
	if _, err := s.load(ctx, caller, id); err != nil {
		return nil, err
	}
	metrics, err := s.metrics.Recent(ctx, id, temperatureHistoryLimit)
	if err != nil {
		return nil, err
	}
	values := make([]float64, 0, len(metrics))
	for i := range metrics {
		t, _ := metrics[i].PrimaryTemperature()
		values = append(values, t)
	}
	return values, nil
}

// AmbientPoint is one ambient light sample.
type AmbientPoint struct {
	Timestamp    time.Time `json:"timestamp"`
	AmbientLight int       `json:"ambient_light"`
}

// AmbientHistory returns recent ambient light samples, oldest first.
func (s *Service) AmbientHistory(ctx context.Context, caller auth.Caller, id string) ([]AmbientPoint, error) {
	if _, err := s.load(ctx, caller, id); err != nil {
		return nil, err
	}
	metrics, err := s.metrics.Recent(ctx, id, ambientHistoryLimit)
	if err != nil {
		return nil, err
	}
	points := make([]AmbientPoint, 0, len(metrics))
	for _, m := range metrics {
		points = append(points, AmbientPoint{Timestamp: m.Timestamp, AmbientLight: m.AmbientLight})
	}
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Timestamp.Before(points[j].Timestamp)
	})
	return points, nil
}

// Reboot asks the lamp to restart.
func (s *Service) Reboot(ctx context.Context, caller auth.Caller, id string) error {
	return s.ApplyCommand(ctx, caller, id, wire.NewRebootCommand())
}

// Blink flashes the lamp for seconds, DefaultBlinkSeconds when not positive.
func (s *Service) Blink(ctx context.Context, caller auth.Caller, id string, seconds int) error {
	if seconds <= 0 {
		seconds = DefaultBlinkSeconds
	}
	return s.ApplyCommand(ctx, caller, id, wire.NewBlinkCommand(seconds))
}

// SetWifi sends new network credentials. The password is never logged.
func (s *Service) SetWifi(ctx context.Context, caller auth.Caller, id, ssid, password string) error {
	if strings.TrimSpace(ssid) == "" {
		return fmt.Errorf("%w: ssid is required", wire.ErrInvalidCommand)
	}
	return s.ApplyCommand(ctx, caller, id, wire.NewSetWifiCommand(ssid, password))
}

// AcknowledgeAlerts tells the lamp to clear the given device alert IDs.
// The stored set is refreshed by the lamp's next status report.
func (s *Service) AcknowledgeAlerts(ctx context.Context, caller auth.Caller, id string, alertIDs []int64) error {
	return s.ApplyCommand(ctx, caller, id, wire.NewAckAlertsCommand(alertIDs))
}
