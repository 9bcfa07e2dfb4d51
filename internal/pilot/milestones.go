package pilot

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	dErrors "pilotdesk/pkg/domain-errors"
)

// milestoneInterval spaces generated milestone due dates.
const milestoneInterval = 14 * 24 * time.Hour

// PlanTemplate is an ordered sequence of milestone definitions, loadable
// from YAML so engagement plans can change without a deploy.
type PlanTemplate struct {
	Milestones []MilestoneTemplate `yaml:"milestones"`
}

// MilestoneTemplate is one planned step.
type MilestoneTemplate struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// DefaultPlan is the standard six-step engagement plan.
func DefaultPlan() PlanTemplate {
	return PlanTemplate{Milestones: []MilestoneTemplate{
		{Name: "Kickoff", Description: "Introductions, access provisioning, and goal alignment"},
		{Name: "Data scoping", Description: "Identify the evidence corpus and integration points"},
		{Name: "Integration", Description: "Wire the audit pipeline into the customer environment"},
		{Name: "Verification run", Description: "First end-to-end verification over live evidence"},
		{Name: "Findings synthesis", Description: "Measure against the agreed metric targets"},
		{Name: "Closeout readout", Description: "Present results and agree next steps"},
	}}
}

// LoadPlan reads a plan template from a YAML file.
func LoadPlan(path string) (PlanTemplate, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return PlanTemplate{}, fmt.Errorf("read milestone plan: %w", err)
	}
	var plan PlanTemplate
	if err := yaml.Unmarshal(raw, &plan); err != nil {
		return PlanTemplate{}, dErrors.Wrap(err, dErrors.CodeValidation, "invalid milestone plan")
	}
	if len(plan.Milestones) == 0 {
		return PlanTemplate{}, dErrors.New(dErrors.CodeValidation, "milestone plan has no milestones")
	}
	return plan, nil
}

// BuildMilestones instantiates the plan with due dates at fixed 14-day
// intervals from now, all starting PENDING.
func BuildMilestones(plan PlanTemplate, now time.Time) []Milestone {
	milestones := make([]Milestone, 0, len(plan.Milestones))
	for i, template := range plan.Milestones {
		milestones = append(milestones, Milestone{
			ID:          uuid.NewString(),
			Name:        template.Name,
			Description: template.Description,
			DueAt:       now.Add(time.Duration(i+1) * milestoneInterval),
			Status:      MilestonePending,
		})
	}
	return milestones
}
