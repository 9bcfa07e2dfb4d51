//go:build integration

package request_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"pilotdesk/internal/request"
	id "pilotdesk/pkg/domain"
	"pilotdesk/pkg/platform/sentinel"
	"pilotdesk/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *request.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	s.postgres.Exec(s.T(), request.Schema())
	s.store = request.NewPostgresStore(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(), "pilot_requests")
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) TestRoundTrip() {
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	usedAt := now.Add(time.Hour)

	stored := request.PilotRequest{
		ID:            id.NewRequestID(),
		ApplicantName: "Dana Osei",
		Email:         "dana@example.org",
		Organization:  "Meridian Safety Lab",
		RoleHint:      request.RoleAuditor,
		Sector:        "healthcare",
		Region:        "EU",
		Tags:          []string{"inbound", "conference"},
		Score: &request.RubricScores{
			MissionFit:      request.CriterionScore{Score: 4, Notes: "strong"},
			RoleClarity:     request.CriterionScore{Score: 4},
			DataFeasibility: request.CriterionScore{Score: 4},
			Timeline:        request.CriterionScore{Score: 4},
			OverallScore:    4.0,
			Recommendation:  request.RecommendConditional,
		},
		OwnerUserID: "u1",
		AgreementLink: &request.AgreementLink{
			Token:     "tok-integration",
			ExpiresAt: now.Add(30 * 24 * time.Hour),
			UsedAt:    &usedAt,
		},
		Status:    request.StatusSigned,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.Require().NoError(s.store.Create(ctx, stored))

	loaded, err := s.store.Get(ctx, stored.ID)
	s.Require().NoError(err)
	s.Equal(stored.ApplicantName, loaded.ApplicantName)
	s.Equal(stored.Tags, loaded.Tags)
	s.Require().NotNil(loaded.Score)
	s.Equal(4.0, loaded.Score.OverallScore)
	s.Equal(request.RecommendConditional, loaded.Score.Recommendation)
	s.Require().NotNil(loaded.AgreementLink)
	s.Equal("tok-integration", loaded.AgreementLink.Token)
	s.Require().NotNil(loaded.AgreementLink.UsedAt)
	s.True(loaded.AgreementLink.UsedAt.Equal(usedAt))
	s.Equal(request.StatusSigned, loaded.Status)
}

func (s *PostgresStoreSuite) TestUpdateMissingRowIsNotFound() {
	err := s.store.Update(context.Background(), request.PilotRequest{ID: id.NewRequestID()})
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestListOrdersByCreation() {
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		r := request.PilotRequest{
			ID:            id.NewRequestID(),
			ApplicantName: "Applicant",
			Email:         "a@example.org",
			Organization:  "Org",
			RoleHint:      request.RoleRegulator,
			Status:        request.StatusNew,
			CreatedAt:     base.Add(time.Duration(i) * time.Minute),
			UpdatedAt:     base.Add(time.Duration(i) * time.Minute),
		}
		s.Require().NoError(s.store.Create(ctx, r))
	}

	requests, err := s.store.List(ctx)
	s.Require().NoError(err)
	s.Require().Len(requests, 3)
	s.True(requests[0].CreatedAt.Before(requests[2].CreatedAt))
}
