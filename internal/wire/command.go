package wire

import (
	"fmt"
	"time"
)

// CommandKind names the populated LampCommand payload.
type CommandKind string

const (
	KindNone          CommandKind = ""
	KindDirect        CommandKind = "direct"
	KindSetMode       CommandKind = "set_mode"
	KindPhotoWhite    CommandKind = "photo_white"
	KindPhotoColor    CommandKind = "photo_color"
	KindSetWifi       CommandKind = "set_wifi"
	KindReboot        CommandKind = "reboot"
	KindBlink         CommandKind = "blink"
	KindOTADownload   CommandKind = "ota_download"
	KindSetPreset     CommandKind = "set_preset"
	KindAckAlerts     CommandKind = "ack_alerts"
	KindRegisterToken CommandKind = "register_token"
)

type SetModeCommand struct {
	ModeID int `cbor:"1,keyasint" json:"mode_id"`
}

// WifiParams must never be logged; Password is a credential.
type WifiParams struct {
	SSID     string `cbor:"1,keyasint,omitempty" json:"ssid"`
	Password string `cbor:"2,keyasint,omitempty" json:"password,omitempty"`
}

type RebootCommand struct {
	DelaySeconds int `cbor:"1,keyasint,omitempty" json:"delay_seconds,omitempty"`
}

type BlinkCommand struct {
	DurationSeconds int `cbor:"1,keyasint,omitempty" json:"duration_seconds"`
}

// OTADownload points the lamp at a firmware image.
type OTADownload struct {
	URL     string `cbor:"1,keyasint,omitempty" json:"url"`
	Version string `cbor:"2,keyasint,omitempty" json:"version"`
	SHA256  string `cbor:"3,keyasint,omitempty" json:"sha256,omitempty"`
}

type SetPresetCommand struct {
	Slot int `cbor:"1,keyasint" json:"slot"`
}

type AckAlertsCommand struct {
	AlertIDs []int64 `cbor:"1,keyasint,omitempty" json:"alert_ids"`
}

// RegisterToken hands the lamp its broker credential. Never logged.
type RegisterToken struct {
	Token string `cbor:"1,keyasint,omitempty" json:"token"`
}

// LampCommand is a one-shot instruction. Exactly one payload is set.
type LampCommand struct {
	Version   int   `cbor:"1,keyasint" json:"version"`
	Timestamp int64 `cbor:"2,keyasint,omitempty" json:"timestamp,omitempty"`

	Direct        *DirectSettings    `cbor:"10,keyasint,omitempty" json:"direct,omitempty"`
	SetMode       *SetModeCommand    `cbor:"11,keyasint,omitempty" json:"set_mode,omitempty"`
	PhotoWhite    *PhotoWhiteSetting `cbor:"12,keyasint,omitempty" json:"photo_white,omitempty"`
	PhotoColor    *PhotoColorSetting `cbor:"13,keyasint,omitempty" json:"photo_color,omitempty"`
	SetWifi       *WifiParams        `cbor:"14,keyasint,omitempty" json:"set_wifi,omitempty"`
	Reboot        *RebootCommand     `cbor:"15,keyasint,omitempty" json:"reboot,omitempty"`
	Blink         *BlinkCommand      `cbor:"16,keyasint,omitempty" json:"blink,omitempty"`
	OTADownload   *OTADownload       `cbor:"17,keyasint,omitempty" json:"ota_download,omitempty"`
	SetPreset     *SetPresetCommand  `cbor:"18,keyasint,omitempty" json:"set_preset,omitempty"`
	AckAlerts     *AckAlertsCommand  `cbor:"19,keyasint,omitempty" json:"ack_alerts,omitempty"`
	RegisterToken *RegisterToken     `cbor:"20,keyasint,omitempty" json:"register_token,omitempty"`
}

// kinds lists every populated payload in field order.
func (c *LampCommand) kinds() []CommandKind {
	var ks []CommandKind
	add := func(set bool, k CommandKind) {
		if set {
			ks = append(ks, k)
		}
	}
	add(c.Direct != nil, KindDirect)
	add(c.SetMode != nil, KindSetMode)
	add(c.PhotoWhite != nil, KindPhotoWhite)
	add(c.PhotoColor != nil, KindPhotoColor)
	add(c.SetWifi != nil, KindSetWifi)
	add(c.Reboot != nil, KindReboot)
	add(c.Blink != nil, KindBlink)
	add(c.OTADownload != nil, KindOTADownload)
	add(c.SetPreset != nil, KindSetPreset)
	add(c.AckAlerts != nil, KindAckAlerts)
	add(c.RegisterToken != nil, KindRegisterToken)
	return ks
}

// Kind returns the populated payload, or KindNone when none or several are set.
func (c *LampCommand) Kind() CommandKind {
	if c == nil {
		return KindNone
	}
	ks := c.kinds()
	if len(ks) != 1 {
		return KindNone
	}
	return ks[0]
}

// Validate checks that exactly one payload is populated.
func (c *LampCommand) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: nil command", ErrInvalidCommand)
	}
	switch ks := c.kinds(); len(ks) {
	case 0:
		return fmt.Errorf("%w: no payload set", ErrInvalidCommand)
	case 1:
		return nil
	default:
		return fmt.Errorf("%w: %d payloads set %v", ErrInvalidCommand, len(ks), ks)
	}
}

// now is swapped in tests.
var now = time.Now

func newCommand() *LampCommand {
	return &LampCommand{Version: ProtocolVersion, Timestamp: now().UnixMilli()}
}

func NewDirectCommand(ds DirectSettings) *LampCommand {
	c := newCommand()
	c.Direct = &ds
	return c
}

func NewSetModeCommand(modeID int) *LampCommand {
	c := newCommand()
	c.SetMode = &SetModeCommand{ModeID: modeID}
	return c
}

func NewPhotoWhiteCommand(s PhotoWhiteSetting) *LampCommand {
	c := newCommand()
	c.PhotoWhite = &s
	return c
}

func NewPhotoColorCommand(s PhotoColorSetting) *LampCommand {
	c := newCommand()
	c.PhotoColor = &s
	return c
}

func NewSetWifiCommand(ssid, password string) *LampCommand {
	c := newCommand()
	c.SetWifi = &WifiParams{SSID: ssid, Password: password}
	return c
}

func NewRebootCommand() *LampCommand {
	c := newCommand()
	c.Reboot = &RebootCommand{}
	return c
}

func NewBlinkCommand(durationSeconds int) *LampCommand {
	c := newCommand()
	c.Blink = &BlinkCommand{DurationSeconds: durationSeconds}
	return c
}

func NewOTADownloadCommand(ota OTADownload) *LampCommand {
	c := newCommand()
	c.OTADownload = &ota
	return c
}

func NewSetPresetCommand(slot int) *LampCommand {
	c := newCommand()
	c.SetPreset = &SetPresetCommand{Slot: slot}
	return c
}

func NewAckAlertsCommand(ids []int64) *LampCommand {
	c := newCommand()
	c.AckAlerts = &AckAlertsCommand{AlertIDs: ids}
	return c
}

func NewRegisterTokenCommand(token string) *LampCommand {
	c := newCommand()
	c.RegisterToken = &RegisterToken{Token: token}
	return c
}
