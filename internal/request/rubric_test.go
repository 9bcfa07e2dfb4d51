package request

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "pilotdesk/pkg/domain-errors"
)

func uniformScores(score int) RubricScores {
	c := CriterionScore{Score: score}
	return RubricScores{MissionFit: c, RoleClarity: c, DataFeasibility: c, Timeline: c}
}

func TestRubricDerivation(t *testing.T) {
	cases := []struct {
		name           string
		scores         RubricScores
		wantOverall    float64
		wantRecommend  Recommendation
	}{
		{"all fives accepts", uniformScores(5), 5.0, RecommendAccept},
		{"all threes is conditional", uniformScores(3), 3.0, RecommendConditional},
		{"all ones rejects", uniformScores(1), 1.0, RecommendReject},
		{"four point zero stays conditional", uniformScores(4), 4.0, RecommendConditional},
		{
			"mean rounds to one decimal",
			RubricScores{
				MissionFit:      CriterionScore{Score: 5},
				RoleClarity:     CriterionScore{Score: 4},
				DataFeasibility: CriterionScore{Score: 4},
				Timeline:        CriterionScore{Score: 5},
			},
			4.5, RecommendAccept,
		},
		{
			"uneven mean truncates nothing",
			RubricScores{
				MissionFit:      CriterionScore{Score: 3},
				RoleClarity:     CriterionScore{Score: 3},
				DataFeasibility: CriterionScore{Score: 3},
				Timeline:        CriterionScore{Score: 4},
			},
			3.3, RecommendConditional,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			scores := tc.scores
			require.NoError(t, scores.Derive())
			assert.Equal(t, tc.wantOverall, scores.OverallScore)
			assert.Equal(t, tc.wantRecommend, scores.Recommendation)
		})
	}
}

func TestRubricRejectsOutOfRangeScores(t *testing.T) {
	scores := uniformScores(4)
	scores.Timeline.Score = 6
	err := scores.Derive()
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	scores = uniformScores(4)
	scores.MissionFit.Score = -1
	err = scores.Derive()
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}
