package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"pilotdesk/internal/audit"
	"pilotdesk/internal/consent"
	"pilotdesk/internal/pilot"
	"pilotdesk/internal/request"
	dErrors "pilotdesk/pkg/domain-errors"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

// writeError maps domain error codes onto HTTP statuses. Internal detail
// stays in the server log; callers only see the code and message.
func writeError(w http.ResponseWriter, logger *slog.Logger, r *http.Request, err error) {
	status := http.StatusInternalServerError
	code := dErrors.CodeInternal
	message := "internal error"

	var domainErr *dErrors.Error
	if errors.As(err, &domainErr) {
		code = domainErr.Code
		message = domainErr.Message
		switch domainErr.Code {
		case dErrors.CodeNotFound:
			status = http.StatusNotFound
		case dErrors.CodeValidation:
			status = http.StatusBadRequest
		case dErrors.CodeTokenInvalid:
			status = http.StatusGone
		case dErrors.CodeConflict:
			status = http.StatusConflict
		case dErrors.CodeForbidden:
			status = http.StatusForbidden
		case dErrors.CodeUnavailable:
			status = http.StatusServiceUnavailable
		}
	}

	if status >= http.StatusInternalServerError && logger != nil {
		logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, map[string]string{
		"code":  string(code),
		"error": message,
	})
}

func decodeJSON(r *http.Request, into any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(into); err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, "invalid request body")
	}
	return nil
}

// Views. Agreement tokens never appear in responses other than the one that
// generated them.

type agreementView struct {
	ExpiresAt time.Time  `json:"expires_at"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
}

type criterionView struct {
	Score int    `json:"score"`
	Notes string `json:"notes,omitempty"`
}

type scoreView struct {
	MissionFit      criterionView `json:"mission_fit"`
	RoleClarity     criterionView `json:"role_clarity"`
	DataFeasibility criterionView `json:"data_feasibility"`
	Timeline        criterionView `json:"timeline"`
	OverallScore    float64       `json:"overall_score"`
	Recommendation  string        `json:"recommendation"`
}

type requestView struct {
	ID            string         `json:"id"`
	ApplicantName string         `json:"applicant_name"`
	Email         string         `json:"email"`
	Organization  string         `json:"organization"`
	RoleHint      string         `json:"role_hint"`
	Sector        string         `json:"sector,omitempty"`
	Region        string         `json:"region,omitempty"`
	Tags          []string       `json:"tags,omitempty"`
	Score         *scoreView     `json:"score,omitempty"`
	OwnerUserID   string         `json:"owner_user_id,omitempty"`
	Agreement     *agreementView `json:"agreement,omitempty"`
	Status        string         `json:"status"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

func toRequestView(r request.PilotRequest) requestView {
	view := requestView{
		ID:            r.ID.String(),
		ApplicantName: r.ApplicantName,
		Email:         r.Email,
		Organization:  r.Organization,
		RoleHint:      string(r.RoleHint),
		Sector:        r.Sector,
		Region:        r.Region,
		Tags:          r.Tags,
		OwnerUserID:   r.OwnerUserID,
		Status:        string(r.Status),
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
	if r.Score != nil {
		view.Score = &scoreView{
			MissionFit:      criterionView(r.Score.MissionFit),
			RoleClarity:     criterionView(r.Score.RoleClarity),
			DataFeasibility: criterionView(r.Score.DataFeasibility),
			Timeline:        criterionView(r.Score.Timeline),
			OverallScore:    r.Score.OverallScore,
			Recommendation:  string(r.Score.Recommendation),
		}
	}
	if r.AgreementLink != nil {
		view.Agreement = &agreementView{
			ExpiresAt: r.AgreementLink.ExpiresAt,
			UsedAt:    r.AgreementLink.UsedAt,
		}
	}
	return view
}

type auditEntryView struct {
	ID        string            `json:"id"`
	Action    string            `json:"action"`
	Actor     string            `json:"actor"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	PrevHash  string            `json:"prev_hash,omitempty"`
	CurrHash  string            `json:"curr_hash"`
}

func toAuditViews(entries []audit.Entry) []auditEntryView {
	views := make([]auditEntryView, 0, len(entries))
	for _, entry := range entries {
		views = append(views, auditEntryView{
			ID:        entry.ID,
			Action:    string(entry.Action),
			Actor:     entry.Actor,
			Metadata:  entry.Metadata,
			Timestamp: entry.Timestamp,
			PrevHash:  entry.PrevHash,
			CurrHash:  entry.CurrHash,
		})
	}
	return views
}

type consentView struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Scope      string    `json:"scope,omitempty"`
	RecordedBy string    `json:"recorded_by"`
	RecordedAt time.Time `json:"recorded_at"`
}

func toConsentViews(records []consent.Record) []consentView {
	views := make([]consentView, 0, len(records))
	for _, record := range records {
		views = append(views, consentView{
			ID:         record.ID,
			Type:       string(record.Type),
			Scope:      record.Scope,
			RecordedBy: record.RecordedBy,
			RecordedAt: record.RecordedAt,
		})
	}
	return views
}

type milestoneView struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	DueAt       time.Time  `json:"due_at"`
	Status      string     `json:"status"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

type participantView struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	RoleHint  string `json:"role_hint"`
}

type pilotView struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Organization string            `json:"organization"`
	Status       string            `json:"status"`
	Targets      targetsView       `json:"targets"`
	RequestID    string            `json:"request_id"`
	Participants []participantView `json:"participants"`
	Milestones   []milestoneView   `json:"milestones"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

type targetsView struct {
	StorageDelta           float64 `json:"storage_delta"`
	VerifyLatencyP95Millis int     `json:"verify_latency_p95_ms"`
	AuditEffortDelta       float64 `json:"audit_effort_delta"`
}

func toPilotView(p pilot.Pilot) pilotView {
	view := pilotView{
		ID:           p.ID.String(),
		Name:         p.Name,
		Organization: p.Organization,
		Status:       string(p.Status),
		Targets: targetsView{
			StorageDelta:           p.Targets.StorageDelta,
			VerifyLatencyP95Millis: p.Targets.VerifyLatencyP95Millis,
			AuditEffortDelta:       p.Targets.AuditEffortDelta,
		},
		RequestID: p.RequestID.String(),
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
	for _, participant := range p.Participants {
		view.Participants = append(view.Participants, participantView(participant))
	}
	for _, milestone := range p.Milestones {
		view.Milestones = append(view.Milestones, milestoneView{
			ID:          milestone.ID,
			Name:        milestone.Name,
			Description: milestone.Description,
			DueAt:       milestone.DueAt,
			Status:      string(milestone.Status),
			CompletedAt: milestone.CompletedAt,
		})
	}
	return view
}
