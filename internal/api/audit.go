package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/lampfleet-core/internal/audit"
	"github.com/nerrad567/lampfleet-core/internal/auth"
	"github.com/nerrad567/lampfleet-core/internal/wire"
)

// record appends an audit entry. Failures are logged and never reach the
// client, since the action itself already succeeded.
func (s *Server) record(r *http.Request, caller auth.Caller, action, lampID string, details map[string]any) {
	if s.audit == nil {
		return
	}
	entry := &audit.Entry{
		Action:   action,
		LampID:   lampID,
		Username: caller.Username,
		Details:  details,
	}
	if err := s.audit.Create(r.Context(), entry); err != nil {
		s.logger.Warn("audit write failed", "action", action, "lamp_id", lampID, "error", err)
	}
}

// recordCommand audits a command by kind.
func (s *Server) recordCommand(r *http.Request, caller auth.Caller, lampID string, kind wire.CommandKind) {
	s.record(r, caller, audit.ActionCommand, lampID, map[string]any{"kind": string(kind)})
}

// handleLampAudit lists the audit trail of one lamp, newest first.
// Query parameters: action, limit, offset.
func (s *Server) handleLampAudit(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if _, err := s.lamps.Get(r.Context(), caller, id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if s.audit == nil {
		writeJSON(w, http.StatusOK, audit.ListResult{Entries: []audit.Entry{}})
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{LampID: id, Action: q.Get("action")}
	var err error
	if v := q.Get("limit"); v != "" {
		if filter.Limit, err = strconv.Atoi(v); err != nil {
			writeBadRequest(w, "limit must be an integer")
			return
		}
	}
	if v := q.Get("offset"); v != "" {
		if filter.Offset, err = strconv.Atoi(v); err != nil {
			writeBadRequest(w, "offset must be an integer")
			return
		}
	}

	result, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
