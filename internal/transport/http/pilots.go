package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"pilotdesk/internal/pilot"
	id "pilotdesk/pkg/domain"
)

func (h *handlers) getPilot(w http.ResponseWriter, r *http.Request) {
	pilotID, err := pathPilotID(r)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	p, err := h.pilots.Get(r.Context(), pilotID)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPilotView(p))
}

func (h *handlers) advancePilotStatus(w http.ResponseWriter, r *http.Request) {
	pilotID, err := pathPilotID(r)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	var payload struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	updated, err := h.pilots.AdvanceStatus(r.Context(), pilotID, pilot.Status(payload.Status), payload.Reason)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPilotView(updated))
}

func (h *handlers) completeMilestone(w http.ResponseWriter, r *http.Request) {
	pilotID, err := pathPilotID(r)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	updated, err := h.pilots.CompleteMilestone(r.Context(), pilotID, chi.URLParam(r, "milestoneID"))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPilotView(updated))
}

func pathPilotID(r *http.Request) (id.PilotID, error) {
	return id.ParsePilotID(chi.URLParam(r, "id"))
}
