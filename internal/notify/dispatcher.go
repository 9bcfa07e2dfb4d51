// Package notify is the outbound notification boundary. Template rendering
// and delivery are owned by an external transactional mail service; the core
// only resolves a template id, recipients, and a variable bag.
package notify

import (
	"context"
	"log/slog"
	"sync"
)

// Template identifiers known to the external mail service.
const (
	TemplateReviewerAssigned = "reviewer_assigned"
	TemplateSLANudge         = "sla_nudge"
	TemplateAgreementOut     = "agreement_out"
	TemplateWorkspaceReady   = "workspace_ready"
)

// Dispatcher resolves a template id + recipients + variables to an outbound
// send. Callers treat sends as fire-and-forget: a failed send is logged and
// never fails the user-facing operation.
type Dispatcher interface {
	Send(ctx context.Context, templateID string, recipients []string, vars map[string]string) error
}

// LogDispatcher logs sends instead of delivering them. It is the default
// wiring until a real mail collaborator is configured.
type LogDispatcher struct {
	logger *slog.Logger
}

func NewLogDispatcher(logger *slog.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger}
}

func (d *LogDispatcher) Send(ctx context.Context, templateID string, recipients []string, vars map[string]string) error {
	if d.logger != nil {
		d.logger.InfoContext(ctx, "notification dispatched",
			"template", templateID,
			"recipients", len(recipients),
		)
	}
	return nil
}

// Delivery is one recorded send.
type Delivery struct {
	Template   string
	Recipients []string
	Vars       map[string]string
}

// Recorder is a test dispatcher that records deliveries and can be primed to
// fail.
type Recorder struct {
	mu   sync.Mutex
	Err  error
	sent []Delivery
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Send(_ context.Context, templateID string, recipients []string, vars map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.sent = append(r.sent, Delivery{Template: templateID, Recipients: recipients, Vars: vars})
	return nil
}

// Deliveries returns a copy of everything sent so far.
func (r *Recorder) Deliveries() []Delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Delivery{}, r.sent...)
}
