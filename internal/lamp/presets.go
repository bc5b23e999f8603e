package lamp

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/nerrad567/lampfleet-core/internal/auth"
	"github.com/nerrad567/lampfleet-core/internal/wire"
)

// Preset is one addressable preset slot. A nil Target is an empty slot.
type Preset struct {
	Slot   int
	Name   string
	Target TargetState
}

// MarshalJSON renders the target with its type discriminator.
func (p Preset) MarshalJSON() ([]byte, error) {
	target, err := encodeTarget(p.Target)
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		Slot   int         `json:"slot"`
		Name   string      `json:"name"`
		Target *targetJSON `json:"target"`
	}{p.Slot, p.Name, target})
}

// DecodeTarget parses a target in its stored JSON form. "null" is an
// empty slot.
func DecodeTarget(data []byte) (TargetState, error) {
	var j *targetJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPreset, err)
	}
	t, err := decodeTarget(j)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPreset, err)
	}
	return t, nil
}

func presetName(slot int) string {
	return "Slot " + strconv.Itoa(slot+1)
}

// presetsFrom lists the slots of the preset mode, or MaxPresetSlots empty
// slots when none are configured.
func presetsFrom(modes []Mode) []Preset {
	var slots []TargetState
	if m, ok := FindMode(modes, PresetModeID); ok {
		if pm, ok := m.Settings.(PresetMode); ok {
			slots = pm.Slots
		}
	}
	if len(slots) == 0 {
		slots = make([]TargetState, MaxPresetSlots)
	}
	out := make([]Preset, len(slots))
	for i, t := range slots {
		out[i] = Preset{Slot: i, Name: presetName(i), Target: t}
	}
	return out
}

// Presets lists the lamp's preset slots.
func (s *Service) Presets(ctx context.Context, caller auth.Caller, id string) ([]Preset, error) {
	l, err := s.load(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	return presetsFrom(s.modesOf(l)), nil
}

func validSlot(slot int) error {
	if slot < 0 || slot >= MaxPresetSlots {
		return fmt.Errorf("%w: %d outside 0..%d", ErrInvalidPreset, slot, MaxPresetSlots-1)
	}
	return nil
}

// SavePreset stores target in a preset slot, creating the preset mode if
// needed, and pushes the updated config. A nil target empties the slot.
func (s *Service) SavePreset(ctx context.Context, caller auth.Caller, id string, slot int, target TargetState) ([]Preset, error) {
	if err := validSlot(slot); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(id)
	l, err := s.load(ctx, caller, id)
	if err != nil {
		unlock()
		return nil, err
	}

	modes, err := DecodeModes(l.ModesConfig)
	if err != nil {
		unlock()
		s.logger.Error("refusing to overwrite unreadable modes", "lamp_id", id, "error", err)
		return nil, err
	}
	idx := -1
	for i := range modes {
		if modes[i].ID == PresetModeID {
			idx = i
			break
		}
	}
	var pm PresetMode
	if idx >= 0 {
		pm, _ = modes[idx].Settings.(PresetMode)
	}
	slots := make([]TargetState, max(MaxPresetSlots, len(pm.Slots)))
	copy(slots, pm.Slots)
	slots[slot] = target

	mode := Mode{ID: PresetModeID, Name: ModeName(PresetModeID), Settings: PresetMode{Slots: slots}}
	if idx >= 0 {
		modes[idx] = mode
	} else {
		modes = append(modes, mode)
	}

	encoded, err := EncodeModes(modes)
	if err != nil {
		unlock()
		return nil, err
	}
	l.ModesConfig = encoded
	if err := s.lamps.Save(ctx, l); err != nil {
		unlock()
		return nil, fmt.Errorf("saving preset: %w", err)
	}
	unlock()

	s.publishConfig(id, ToWire(l, modes))
	s.logger.Info("preset saved", "lamp_id", id, "slot", slot)
	return presetsFrom(modes), nil
}

// ActivatePreset switches the lamp to a preset slot.
func (s *Service) ActivatePreset(ctx context.Context, caller auth.Caller, id string, slot int) error {
	if err := validSlot(slot); err != nil {
		return err
	}
	return s.ApplyCommand(ctx, caller, id, wire.NewSetPresetCommand(slot))
}
