// Package httpapi exposes the back-office core over HTTP: a public intake
// and signing surface plus a token-gated admin surface.
package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pilotdesk/internal/pilot"
	"pilotdesk/internal/request"
	"pilotdesk/pkg/platform/middleware/auth"
	"pilotdesk/pkg/platform/middleware/requesttime"
)

// Deps carries the wired services into the router.
type Deps struct {
	Requests *request.Service
	Pilots   *pilot.Provisioner
	Verifier *auth.Verifier
	Logger   *slog.Logger
}

type handlers struct {
	requests *request.Service
	pilots   *pilot.Provisioner
	logger   *slog.Logger
}

// NewRouter assembles the HTTP surface. Public routes carry no auth; the
// admin surface requires a bearer token, with mutations limited to
// owner_admin.
func NewRouter(deps Deps) http.Handler {
	h := &handlers{requests: deps.Requests, pilots: deps.Pilots, logger: deps.Logger}

	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(requesttime.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	// Public surface: intake and agreement signing.
	r.Post("/requests", h.submitRequest)
	r.Get("/agreements/{token}", h.resolveAgreement)
	r.Post("/agreements/{token}/sign", h.signAgreement)

	r.Route("/admin", func(r chi.Router) {
		r.Use(deps.Verifier.Middleware)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(auth.RoleOwnerAdmin, auth.RoleAuditor, auth.RoleRegulator))
			r.Get("/requests", h.listRequests)
			r.Get("/requests/{id}", h.getRequest)
			r.Get("/requests/{id}/audit", h.auditTrail)
			r.Get("/requests/{id}/export", h.exportCaseFile)
			r.Get("/pilots/{id}", h.getPilot)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(auth.RoleOwnerAdmin))
			r.Post("/requests/{id}/reviewer", h.assignReviewer)
			r.Post("/requests/{id}/contact", h.confirmContact)
			r.Put("/requests/{id}/tags", h.tagRequest)
			r.Post("/requests/{id}/score", h.scoreFit)
			r.Post("/requests/{id}/merge", h.mergeRequest)
			r.Post("/requests/{id}/agreement", h.generateAgreement)
			r.Post("/requests/{id}/consent", h.recordConsent)
			r.Post("/requests/{id}/status", h.advanceStatus)
			r.Post("/requests/{id}/convert", h.convertRequest)
			r.Post("/pilots/{id}/status", h.advancePilotStatus)
			r.Post("/pilots/{id}/milestones/{milestoneID}/complete", h.completeMilestone)
		})
	})

	return r
}
