package httpapi

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/mssola/useragent"

	"pilotdesk/pkg/requestcontext"
)

// resolveAgreement lets the public signing page show who it is for before
// anyone signs. Only the applicant-facing basics are exposed.
func (h *handlers) resolveAgreement(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	req, err := h.requests.ResolveAgreementToken(r.Context(), token)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"organization":   req.Organization,
		"applicant_name": req.ApplicantName,
		"expires_at":     req.AgreementLink.ExpiresAt,
	})
}

func (h *handlers) signAgreement(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	req, err := h.requests.ResolveAgreementToken(r.Context(), token)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	var payload struct {
		Signer string `json:"signer"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	ctx := r.Context()
	signed, err := h.requests.RecordSignature(ctx, req.ID, token, payload.Signer,
		requestcontext.ClientIP(ctx), deviceSummary(requestcontext.UserAgent(ctx)))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestView(signed))
}

// deviceSummary reduces a raw User-Agent to "Browser x.y on OS". The raw
// string is never stored.
func deviceSummary(rawUserAgent string) string {
	if rawUserAgent == "" {
		return ""
	}
	ua := useragent.New(rawUserAgent)
	name, version := ua.Browser()
	if name == "" {
		return ""
	}
	summary := name
	if version != "" {
		summary = fmt.Sprintf("%s %s", name, version)
	}
	if os := ua.OS(); os != "" {
		summary = fmt.Sprintf("%s on %s", summary, os)
	}
	return summary
}
