package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
)

func sampleConfig() *LampConfig {
	return &LampConfig{
		Version:   ProtocolVersion,
		Timestamp: 1767225600000,
		Internal:  &InternalConfig{ReportingIntervalSeconds: 30, WakeUpIntervalMinutes: 10},
		Modes: []ModeSettings{
			{ModeID: 0, Disco: &DiscoSettings{Pattern: DiscoStrobe, Speed: 5, Intensity: 80}},
			{ModeID: 1, Daylight: &DaylightSettings{Entries: []ScheduleEntry{
				{
					Hour:   &HourSetting{StartSecond: 3600, EndSecond: 7200, TransitionSeconds: 60},
					Target: &LampState{PhotoWhite: &PhotoWhiteSetting{Intensity: 50, Temperature: 4000}},
				},
				{
					Brightness: &BrightnessSetting{MinBrightness: 0, MaxBrightness: 100, TransitionSeconds: 5},
					Target:     &LampState{Direct: &DirectSettings{Red: 255, WarmWhite: 10}},
				},
			}}},
			{ModeID: 3, Preset: &PresetSettings{Presets: []LampState{
				{PhotoColor: &PhotoColorSetting{Intensity: 70, Hue: 200, Saturation: 90}},
				{},
			}}},
		},
	}
}

func TestConfigRoundTrip(t *testing.T) {
	in := sampleConfig()

	data, err := EncodeConfig(in)
	if err != nil {
		t.Fatalf("EncodeConfig() error = %v", err)
	}
	out, err := DecodeConfig(data)
	if err != nil {
		t.Fatalf("DecodeConfig() error = %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", out, in)
	}
}

func TestEncodeDeterministic(t *testing.T) {
	a, err := EncodeConfig(sampleConfig())
	if err != nil {
		t.Fatalf("EncodeConfig() error = %v", err)
	}
	b, err := EncodeConfig(sampleConfig())
	if err != nil {
		t.Fatalf("EncodeConfig() error = %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Error("identical configs produced different bytes")
	}
}

func TestPresetSlotPositionsSurvive(t *testing.T) {
	data, err := EncodeConfig(sampleConfig())
	if err != nil {
		t.Fatalf("EncodeConfig() error = %v", err)
	}
	out, err := DecodeConfig(data)
	if err != nil {
		t.Fatalf("DecodeConfig() error = %v", err)
	}
	slots := out.Modes[2].Preset.Presets
	if len(slots) != 2 {
		t.Fatalf("preset slots = %d, want 2", len(slots))
	}
	if !slots[1].Empty() {
		t.Errorf("slot 1 = %+v, want empty", slots[1])
	}
	if slots[0].Empty() {
		t.Error("slot 0 decoded as empty")
	}
}

func TestDecode_Errors(t *testing.T) {
	future, _ := Marshal(&StatusReport{Version: 2})
	garbage := []byte{0xff, 0x00, 0x13}
	nan, _ := Marshal(&StatusReport{Version: ProtocolVersion, Temperatures: []float64{math.NaN(), 21.5}})
	inf, _ := Marshal(&StatusReport{Version: ProtocolVersion, Temperatures: []float64{math.Inf(-1)}})

	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{"empty", nil, ErrMalformed},
		{"garbage", garbage, ErrMalformed},
		{"wrong type", []byte{0x01}, ErrMalformed},
		{"future version", future, ErrUnsupportedVersion},
		{"missing version", []byte{0xa0}, ErrUnsupportedVersion},
		{"oversized", make([]byte, maxMessageSize+1), ErrMalformed},
		{"NaN reading", nan, ErrMalformed},
		{"infinite reading", inf, ErrMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeStatus(tt.data); !errors.Is(err, tt.wantErr) {
				t.Errorf("DecodeStatus() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestDecode_IgnoresUnknownKeys(t *testing.T) {
	data, err := cbor.Marshal(map[int]any{1: 1, 5: 420, 99: "from a newer firmware"})
	if err != nil {
		t.Fatalf("cbor.Marshal() error = %v", err)
	}
	r, err := DecodeStatus(data)
	if err != nil {
		t.Fatalf("DecodeStatus() error = %v", err)
	}
	if r.AmbientLight != 420 {
		t.Errorf("AmbientLight = %d, want 420", r.AmbientLight)
	}
}

func TestStatusRoundTrip(t *testing.T) {
	in := &StatusReport{
		Version:         ProtocolVersion,
		DeviceTimestamp: 1767225600123,
		UptimeSeconds:   86400,
		Temperatures:    []float64{41.5, 39},
		AmbientLight:    250,
		AmbientNoise:    30,
		FirmwareVersion: "1.4.2",
		LED:             &DirectSettings{Red: 10, Green: 20, Blue: 30, WarmWhite: 40},
		Alerts: []Alert{
			{ID: 7, Cause: CauseHardware, Level: LevelCritical, Message: "fan stalled", Timestamp: 1767225600000},
		},
		Abnormal: true,
	}

	data, err := EncodeStatus(in)
	if err != nil {
		t.Fatalf("EncodeStatus() error = %v", err)
	}
	out, err := DecodeStatus(data)
	if err != nil {
		t.Fatalf("DecodeStatus() error = %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", out, in)
	}
}

func TestCommandRoundTrip(t *testing.T) {
	prev := now
	now = func() time.Time { return time.UnixMilli(1767225600000) }
	t.Cleanup(func() { now = prev })

	cmds := []*LampCommand{
		NewDirectCommand(DirectSettings{Red: 1, Green: 2, Blue: 3}),
		NewSetModeCommand(0),
		NewPhotoWhiteCommand(PhotoWhiteSetting{Intensity: 10, Temperature: 2700}),
		NewPhotoColorCommand(PhotoColorSetting{Intensity: 10, Hue: 120, Saturation: 100}),
		NewSetWifiCommand("home", "hunter2"),
		NewRebootCommand(),
		NewBlinkCommand(5),
		NewOTADownloadCommand(OTADownload{URL: "https://fw.example/1.5.0.bin", Version: "1.5.0"}),
		NewSetPresetCommand(0),
		NewAckAlertsCommand([]int64{1, 2}),
		NewRegisterTokenCommand("abc"),
	}

	for _, in := range cmds {
		t.Run(string(in.Kind()), func(t *testing.T) {
			if in.Kind() == KindNone {
				t.Fatal("constructor produced a command without a kind")
			}
			if in.Timestamp != 1767225600000 || in.Version != ProtocolVersion {
				t.Errorf("header = (%d, %d)", in.Version, in.Timestamp)
			}
			data, err := EncodeCommand(in)
			if err != nil {
				t.Fatalf("EncodeCommand() error = %v", err)
			}
			out, err := DecodeCommand(data)
			if err != nil {
				t.Fatalf("DecodeCommand() error = %v", err)
			}
			if !reflect.DeepEqual(in, out) {
				t.Errorf("round trip mismatch:\n got %+v\nwant %+v", out, in)
			}
		})
	}
}

func TestCommandValidate(t *testing.T) {
	tests := []struct {
		name    string
		cmd     *LampCommand
		want    CommandKind
		wantErr bool
	}{
		{"nil", nil, KindNone, true},
		{"empty", &LampCommand{Version: 1}, KindNone, true},
		{"two payloads", &LampCommand{Version: 1, Reboot: &RebootCommand{}, Blink: &BlinkCommand{}}, KindNone, true},
		{"reboot", &LampCommand{Version: 1, Reboot: &RebootCommand{}}, KindReboot, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cmd.Kind(); got != tt.want {
				t.Errorf("Kind() = %q, want %q", got, tt.want)
			}
			err := tt.cmd.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidCommand) {
				t.Errorf("Validate() error = %v, want ErrInvalidCommand", err)
			}
		})
	}

	if _, err := EncodeCommand(&LampCommand{Version: 1}); !errors.Is(err, ErrInvalidCommand) {
		t.Errorf("EncodeCommand(empty) error = %v, want ErrInvalidCommand", err)
	}
}

func TestCommandJSON(t *testing.T) {
	var cmd LampCommand
	if err := json.Unmarshal([]byte(`{"version":1,"set_mode":{"mode_id":2}}`), &cmd); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if cmd.Kind() != KindSetMode || cmd.SetMode.ModeID != 2 {
		t.Errorf("decoded %+v", cmd)
	}
}
