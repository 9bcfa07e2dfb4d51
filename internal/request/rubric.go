package request

import (
	"fmt"
	"math"

	dErrors "pilotdesk/pkg/domain-errors"
)

// Recommendation is derived from the overall rubric score.
type Recommendation string

const (
	RecommendAccept      Recommendation = "ACCEPT"
	RecommendConditional Recommendation = "CONDITIONAL"
	RecommendReject      Recommendation = "REJECT"
)

// CriterionScore is one rubric criterion: an integer score from 0 to 5 and
// free-text reviewer notes.
type CriterionScore struct {
	Score int
	Notes string
}

// RubricScores is the four-criterion fit rubric. OverallScore and
// Recommendation are derived; call Derive after setting the sub-scores.
type RubricScores struct {
	MissionFit      CriterionScore
	RoleClarity     CriterionScore
	DataFeasibility CriterionScore
	Timeline        CriterionScore

	OverallScore   float64
	Recommendation Recommendation
}

// Derive validates the sub-scores and recomputes OverallScore (the mean,
// rounded to one decimal) and Recommendation. Thresholds: 4.5 and up is
// ACCEPT, 3.0 and up is CONDITIONAL, anything lower is REJECT.
func (r *RubricScores) Derive() error {
	criteria := []struct {
		name string
		c    CriterionScore
	}{
		{"mission_fit", r.MissionFit},
		{"role_clarity", r.RoleClarity},
		{"data_feasibility", r.DataFeasibility},
		{"timeline", r.Timeline},
	}
	sum := 0
	for _, entry := range criteria {
		if entry.c.Score < 0 || entry.c.Score > 5 {
			return dErrors.New(dErrors.CodeValidation,
				fmt.Sprintf("%s score must be between 0 and 5, got %d", entry.name, entry.c.Score))
		}
		sum += entry.c.Score
	}
	r.OverallScore = math.Round(float64(sum)/4*10) / 10

	switch {
	case r.OverallScore >= 4.5:
		r.Recommendation = RecommendAccept
	case r.OverallScore >= 3.0:
		r.Recommendation = RecommendConditional
	default:
		r.Recommendation = RecommendReject
	}
	return nil
}
