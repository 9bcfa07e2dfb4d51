package pilot

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "pilotdesk/pkg/domain-errors"
)

func TestBuildMilestonesSpacesFourteenDays(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	milestones := BuildMilestones(DefaultPlan(), now)

	require.Len(t, milestones, 6)
	for i, milestone := range milestones {
		assert.Equal(t, MilestonePending, milestone.Status)
		assert.Equal(t, now.Add(time.Duration(i+1)*14*24*time.Hour), milestone.DueAt)
		assert.NotEmpty(t, milestone.ID)
		assert.Nil(t, milestone.CompletedAt)
	}
	assert.Equal(t, "Kickoff", milestones[0].Name)
	assert.Equal(t, "Closeout readout", milestones[5].Name)
}

func TestLoadPlan(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
milestones:
  - name: Kickoff
    description: Meet the team
  - name: Wrap-up
    description: Final readout
`), 0o600))

	plan, err := LoadPlan(path)
	require.NoError(t, err)
	require.Len(t, plan.Milestones, 2)
	assert.Equal(t, "Kickoff", plan.Milestones[0].Name)
	assert.Equal(t, "Final readout", plan.Milestones[1].Description)
}

func TestLoadPlanRejectsEmptyPlan(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte("milestones: []\n"), 0o600))

	_, err := LoadPlan(path)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}
