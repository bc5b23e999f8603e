package lamp

import (
	"fmt"

	"github.com/nerrad567/lampfleet-core/internal/wire"
)

// ApplyCommand folds a command into the stored lamp state and reports
// whether anything changed. Commands that only act on the device (wifi,
// reboot, blink, OTA, alert acknowledgement, token registration) leave
// the lamp untouched.
//
// Direct and photo commands put the lamp under manual control and clear
// ActiveModeID. Selecting a mode never touches the LED channels. Mode IDs
// and preset slots are range-checked only; a slot the lamp has not
// configured yet is accepted and the device falls back to its default.
func ApplyCommand(l *Lamp, cmd *wire.LampCommand) (bool, error) {
	if err := cmd.Validate(); err != nil {
		return false, err
	}

	switch cmd.Kind() {
	case wire.KindDirect:
		l.On = true
		l.Online = true
		l.LED = ChannelsFromWire(cmd.Direct)
		l.Color = HexColor(cmd.Direct.Red, cmd.Direct.Green, cmd.Direct.Blue)
		l.ActiveModeID = nil
		return true, nil

	case wire.KindSetMode:
		id := cmd.SetMode.ModeID
		if id < 0 || id >= MaxModes {
			return false, fmt.Errorf("%w: mode id %d outside 0..%d", wire.ErrInvalidCommand, id, MaxModes-1)
		}
		l.On = true
		l.Online = true
		l.ActiveModeID = &id
		return true, nil

	case wire.KindPhotoWhite:
		l.On = true
		l.Online = true
		l.ActiveModeID = nil
		l.PhotoWhite = PhotoWhite{
			Intensity:   cmd.PhotoWhite.Intensity,
			Temperature: cmd.PhotoWhite.Temperature,
		}
		return true, nil

	case wire.KindPhotoColor:
		l.On = true
		l.Online = true
		l.ActiveModeID = nil
		l.PhotoColor = PhotoColor{
			Intensity:  cmd.PhotoColor.Intensity,
			Hue:        cmd.PhotoColor.Hue,
			Saturation: cmd.PhotoColor.Saturation,
		}
		return true, nil

	case wire.KindSetPreset:
		if err := validSlot(cmd.SetPreset.Slot); err != nil {
			return false, err
		}
		id := PresetModeID
		l.On = true
		l.Online = true
		l.ActiveModeID = &id
		return true, nil

	case wire.KindSetWifi, wire.KindReboot, wire.KindBlink, wire.KindOTADownload,
		wire.KindAckAlerts, wire.KindRegisterToken:
		return false, nil

	default:
		return false, fmt.Errorf("%w: unhandled kind %q", wire.ErrInvalidCommand, cmd.Kind())
	}
}
