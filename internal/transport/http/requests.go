package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"pilotdesk/internal/consent"
	"pilotdesk/internal/request"
	id "pilotdesk/pkg/domain"
)

type submitPayload struct {
	ApplicantName string   `json:"applicant_name"`
	Email         string   `json:"email"`
	Organization  string   `json:"organization"`
	RoleHint      string   `json:"role_hint"`
	Sector        string   `json:"sector"`
	Region        string   `json:"region"`
	Tags          []string `json:"tags"`
}

func (h *handlers) submitRequest(w http.ResponseWriter, r *http.Request) {
	var payload submitPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	created, err := h.requests.Submit(r.Context(), request.Submission{
		ApplicantName: payload.ApplicantName,
		Email:         payload.Email,
		Organization:  payload.Organization,
		RoleHint:      payload.RoleHint,
		Sector:        payload.Sector,
		Region:        payload.Region,
		Tags:          payload.Tags,
	})
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRequestView(created))
}

func (h *handlers) listRequests(w http.ResponseWriter, r *http.Request) {
	requests, err := h.requests.List(r.Context())
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	views := make([]requestView, 0, len(requests))
	for _, req := range requests {
		views = append(views, toRequestView(req))
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *handlers) getRequest(w http.ResponseWriter, r *http.Request) {
	requestID, err := pathRequestID(r)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	req, err := h.requests.Get(r.Context(), requestID)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestView(req))
}

func (h *handlers) assignReviewer(w http.ResponseWriter, r *http.Request) {
	requestID, err := pathRequestID(r)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	var payload struct {
		ReviewerID    string `json:"reviewer_id"`
		ReviewerEmail string `json:"reviewer_email"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	updated, err := h.requests.AssignReviewer(r.Context(), requestID, payload.ReviewerID, payload.ReviewerEmail)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestView(updated))
}

func (h *handlers) confirmContact(w http.ResponseWriter, r *http.Request) {
	requestID, err := pathRequestID(r)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if err := h.requests.ConfirmContact(r.Context(), requestID); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (h *handlers) tagRequest(w http.ResponseWriter, r *http.Request) {
	requestID, err := pathRequestID(r)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	var payload struct {
		Tags []string `json:"tags"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	updated, err := h.requests.TagRequest(r.Context(), requestID, payload.Tags)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestView(updated))
}

type scorePayload struct {
	MissionFit      criterionView `json:"mission_fit"`
	RoleClarity     criterionView `json:"role_clarity"`
	DataFeasibility criterionView `json:"data_feasibility"`
	Timeline        criterionView `json:"timeline"`
}

func (h *handlers) scoreFit(w http.ResponseWriter, r *http.Request) {
	requestID, err := pathRequestID(r)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	var payload scorePayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	updated, err := h.requests.ScoreFit(r.Context(), requestID, request.RubricScores{
		MissionFit:      request.CriterionScore(payload.MissionFit),
		RoleClarity:     request.CriterionScore(payload.RoleClarity),
		DataFeasibility: request.CriterionScore(payload.DataFeasibility),
		Timeline:        request.CriterionScore(payload.Timeline),
	})
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestView(updated))
}

func (h *handlers) mergeRequest(w http.ResponseWriter, r *http.Request) {
	requestID, err := pathRequestID(r)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	var payload struct {
		MergeInto string `json:"merge_into"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	mergeIntoID, err := id.ParseRequestID(payload.MergeInto)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if err := h.requests.Deduplicate(r.Context(), requestID, mergeIntoID); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (h *handlers) generateAgreement(w http.ResponseWriter, r *http.Request) {
	requestID, err := pathRequestID(r)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	link, err := h.requests.GenerateAgreementLink(r.Context(), requestID)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	// The only response that ever carries the full token.
	writeJSON(w, http.StatusCreated, map[string]any{
		"token":      link.Token,
		"expires_at": link.ExpiresAt,
	})
}

func (h *handlers) recordConsent(w http.ResponseWriter, r *http.Request) {
	requestID, err := pathRequestID(r)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	var payload struct {
		Type  string `json:"type"`
		Scope string `json:"scope"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if err := h.requests.RecordConsent(r.Context(), requestID, consent.Type(payload.Type), payload.Scope); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (h *handlers) advanceStatus(w http.ResponseWriter, r *http.Request) {
	requestID, err := pathRequestID(r)
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
	updated, err := h.requests.AdvanceStatus(r.Context(), requestID, request.Status(payload.Status), payload.Reason)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestView(updated))
}

func (h *handlers) auditTrail(w http.ResponseWriter, r *http.Request) {
	requestID, err := pathRequestID(r)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	entries, err := h.requests.AuditTrail(r.Context(), requestID)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAuditViews(entries))
}

func (h *handlers) exportCaseFile(w http.ResponseWriter, r *http.Request) {
	requestID, err := pathRequestID(r)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	file, err := h.requests.ExportCaseFile(r.Context(), requestID)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"request":     toRequestView(file.Request),
		"audit_trail": toAuditViews(file.Entries),
		"consents":    toConsentViews(file.Consents),
		"exported_at": file.ExportedAt,
	})
}

func (h *handlers) convertRequest(w http.ResponseWriter, r *http.Request) {
	requestID, err := pathRequestID(r)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	pilotID, err := h.pilots.CreatePilotWorkspace(r.Context(), requestID)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"pilot_id": pilotID.String()})
}

func pathRequestID(r *http.Request) (id.RequestID, error) {
	return id.ParseRequestID(chi.URLParam(r, "id"))
}
