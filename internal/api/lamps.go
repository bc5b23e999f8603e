package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/lampfleet-core/internal/audit"
	"github.com/nerrad567/lampfleet-core/internal/auth"
	"github.com/nerrad567/lampfleet-core/internal/lamp"
	"github.com/nerrad567/lampfleet-core/internal/wire"
)

// callerFrom returns the authenticated caller or writes a 401.
func callerFrom(w http.ResponseWriter, r *http.Request) (auth.Caller, bool) {
	caller, err := auth.CallerFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w, err.Error())
		return auth.Caller{}, false
	}
	return caller, true
}

// decodeJSON reads an optional JSON body into v. An empty body leaves v
// untouched.
func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func accepted(w http.ResponseWriter, id, action string) {
	writeJSON(w, http.StatusAccepted, map[string]string{
		"lamp_id": id,
		"status":  action,
	})
}

// handleListLamps lists the lamps visible to the caller.
func (s *Server) handleListLamps(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	lamps, err := s.lamps.ListLamps(r.Context(), caller)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if lamps == nil {
		lamps = []lamp.Lamp{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"lamps": lamps,
		"count": len(lamps),
	})
}

func (s *Server) handleGetLamp(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	l, err := s.lamps.Get(r.Context(), caller, chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (s *Server) handleLampDetails(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	d, err := s.lamps.Details(r.Context(), caller, chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// handleClaimLamp assigns the lamp to the caller. The device token is
// returned once and never stored in clear.
func (s *Server) handleClaimLamp(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	token, err := s.lamps.Claim(r.Context(), caller, id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.record(r, caller, audit.ActionClaim, id, nil)
	writeJSON(w, http.StatusOK, map[string]string{
		"lamp_id":      id,
		"owner_id":     caller.Username,
		"device_token": token,
	})
}

type renameRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleRenameLamp(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	var req renameRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.lamps.Rename(r.Context(), caller, id, req.Name); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.record(r, caller, audit.ActionRename, id, map[string]any{"name": strings.TrimSpace(req.Name)})
	l, err := s.lamps.Get(r.Context(), caller, id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (s *Server) handleGetSmartConfig(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	sc, err := s.lamps.SmartConfig(r.Context(), caller, chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

// handleSetSmartConfig updates the toggles present in the body.
func (s *Server) handleSetSmartConfig(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	var req lamp.SmartConfig
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.lamps.SetSmartConfig(r.Context(), caller, id, req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.record(r, caller, audit.ActionSmartConfig, id, nil)
	sc, err := s.lamps.SmartConfig(r.Context(), caller, id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	cfg, err := s.lamps.ReadConfig(r.Context(), caller, chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeWire(w, r, http.StatusOK, cfg)
}

// handleApplyConfig stores a LampConfig and responds with the config as it
// was sent to the lamp.
func (s *Server) handleApplyConfig(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	cfg, err := decodeConfig(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	id := chi.URLParam(r, "id")
	if _, err := s.lamps.ApplyConfig(r.Context(), caller, id, cfg); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.record(r, caller, audit.ActionConfig, id, map[string]any{"modes": len(cfg.Modes)})
	stored, err := s.lamps.ReadConfig(r.Context(), caller, id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeWire(w, r, http.StatusOK, stored)
}

func (s *Server) handleRefreshConfig(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.lamps.RefreshConfig(r.Context(), caller, id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.record(r, caller, audit.ActionRefresh, id, nil)
	accepted(w, id, "config_published")
}

func (s *Server) handleApplyCommand(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	cmd, err := decodeCommand(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.lamps.ApplyCommand(r.Context(), caller, id, cmd); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.recordCommand(r, caller, id, cmd.Kind())
	writeJSON(w, http.StatusAccepted, map[string]any{
		"lamp_id": id,
		"kind":    cmd.Kind(),
		"status":  "command_sent",
	})
}

func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	report, err := s.lamps.ReadStatusReport(r.Context(), caller, chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeWire(w, r, http.StatusOK, report)
}

func (s *Server) handleListPresets(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	presets, err := s.lamps.Presets(r.Context(), caller, chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"presets": presets})
}

// slotParam parses the {slot} path parameter.
func slotParam(r *http.Request) (int, error) {
	slot, err := strconv.Atoi(chi.URLParam(r, "slot"))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", lamp.ErrInvalidPreset, chi.URLParam(r, "slot"))
	}
	return slot, nil
}

// handleSavePreset stores a target in a slot. The body is a target object
// such as {"type":"direct","channels":{...}}, or null to clear the slot.
func (s *Server) handleSavePreset(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	slot, err := slotParam(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeBadRequest(w, "reading body")
		return
	}
	target, err := lamp.DecodeTarget(body)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	id := chi.URLParam(r, "id")
	presets, err := s.lamps.SavePreset(r.Context(), caller, id, slot, target)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.record(r, caller, audit.ActionPresetSave, id, map[string]any{"slot": slot})
	writeJSON(w, http.StatusOK, map[string]any{"presets": presets})
}

func (s *Server) handleActivatePreset(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	slot, err := slotParam(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.lamps.ActivatePreset(r.Context(), caller, id, slot); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.recordCommand(r, caller, id, wire.KindSetPreset)
	accepted(w, id, "preset_activated")
}

func (s *Server) handleReboot(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.lamps.Reboot(r.Context(), caller, id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.recordCommand(r, caller, id, wire.KindReboot)
	accepted(w, id, "reboot_sent")
}

type blinkRequest struct {
	DurationSeconds int `json:"duration_seconds"`
}

func (s *Server) handleBlink(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	var req blinkRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.lamps.Blink(r.Context(), caller, id, req.DurationSeconds); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.recordCommand(r, caller, id, wire.KindBlink)
	accepted(w, id, "blink_sent")
}

type wifiRequest struct {
	SSID     string `json:"ssid"`
	Password string `json:"password"`
}

func (s *Server) handleSetWifi(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	var req wifiRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.lamps.SetWifi(r.Context(), caller, id, req.SSID, req.Password); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.recordCommand(r, caller, id, wire.KindSetWifi)
	accepted(w, id, "wifi_sent")
}

type ackAlertsRequest struct {
	AlertIDs []int64 `json:"alert_ids"`
}

func (s *Server) handleAckAlerts(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	var req ackAlertsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.lamps.AcknowledgeAlerts(r.Context(), caller, id, req.AlertIDs); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.recordCommand(r, caller, id, wire.KindAckAlerts)
	accepted(w, id, "alerts_acknowledged")
}

func (s *Server) handleTemperatureHistory(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	temps, err := s.lamps.TemperatureHistory(r.Context(), caller, chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if temps == nil {
		temps = []float64{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"temperatures": temps})
}

func (s *Server) handleAmbientHistory(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	points, err := s.lamps.AmbientHistory(r.Context(), caller, chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if points == nil {
		points = []lamp.AmbientPoint{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"points": points})
}
