package request

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	id "pilotdesk/pkg/domain"
	"pilotdesk/pkg/platform/sentinel"
)

// PostgresStore persists requests in the pilot_requests table. The rubric
// score rides along as JSONB since it is only ever read and written whole.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Schema returns the DDL for the pilot_requests table. Exposed for
// migrations and integration test setup.
func Schema() string {
	return `
CREATE TABLE IF NOT EXISTS pilot_requests (
	id                   UUID PRIMARY KEY,
	applicant_name       TEXT NOT NULL,
	email                TEXT NOT NULL,
	organization         TEXT NOT NULL,
	role_hint            TEXT NOT NULL,
	sector               TEXT NOT NULL DEFAULT '',
	region               TEXT NOT NULL DEFAULT '',
	tags                 JSONB NOT NULL DEFAULT '[]',
	score                JSONB,
	owner_user_id        TEXT NOT NULL DEFAULT '',
	agreement_token      TEXT,
	agreement_expires_at TIMESTAMPTZ,
	agreement_used_at    TIMESTAMPTZ,
	status               TEXT NOT NULL,
	created_at           TIMESTAMPTZ NOT NULL,
	updated_at           TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS pilot_requests_status_idx ON pilot_requests (status);
`
}

// scoreRecord is the JSONB shape of a stored rubric score.
type scoreRecord struct {
	MissionFit      criterionRecord `json:"mission_fit"`
	RoleClarity     criterionRecord `json:"role_clarity"`
	DataFeasibility criterionRecord `json:"data_feasibility"`
	Timeline        criterionRecord `json:"timeline"`
	OverallScore    float64         `json:"overall_score"`
	Recommendation  string          `json:"recommendation"`
}

type criterionRecord struct {
	Score int    `json:"score"`
	Notes string `json:"notes,omitempty"`
}

func (s *PostgresStore) Create(ctx context.Context, request PilotRequest) error {
	tags, score, err := marshalRequestDocs(request)
	if err != nil {
		return err
	}
	token, expiresAt, usedAt := agreementColumns(request.AgreementLink)

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO pilot_requests
			(id, applicant_name, email, organization, role_hint, sector, region,
			 tags, score, owner_user_id, agreement_token, agreement_expires_at,
			 agreement_used_at, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		request.ID.String(), request.ApplicantName, request.Email, request.Organization,
		string(request.RoleHint), request.Sector, request.Region,
		tags, score, request.OwnerUserID, token, expiresAt, usedAt,
		string(request.Status), request.CreatedAt, request.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert pilot request: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, requestID id.RequestID) (PilotRequest, error) {
	row := s.db.QueryRowContext(ctx, selectRequestQuery+` WHERE id = $1`, requestID.String())
	request, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return PilotRequest{}, sentinel.ErrNotFound
	}
	if err != nil {
		return PilotRequest{}, fmt.Errorf("get pilot request: %w", err)
	}
	return request, nil
}

func (s *PostgresStore) Update(ctx context.Context, request PilotRequest) error {
	tags, score, err := marshalRequestDocs(request)
	if err != nil {
		return err
	}
	token, expiresAt, usedAt := agreementColumns(request.AgreementLink)

	result, err := s.db.ExecContext(ctx, `
		UPDATE pilot_requests SET
			applicant_name = $2, email = $3, organization = $4, role_hint = $5,
			sector = $6, region = $7, tags = $8, score = $9, owner_user_id = $10,
			agreement_token = $11, agreement_expires_at = $12, agreement_used_at = $13,
			status = $14, updated_at = $15
		WHERE id = $1`,
		request.ID.String(), request.ApplicantName, request.Email, request.Organization,
		string(request.RoleHint), request.Sector, request.Region,
		tags, score, request.OwnerUserID, token, expiresAt, usedAt,
		string(request.Status), request.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update pilot request: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update pilot request: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]PilotRequest, error) {
	rows, err := s.db.QueryContext(ctx, selectRequestQuery+` ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list pilot requests: %w", err)
	}
	defer rows.Close()

	var requests []PilotRequest
	for rows.Next() {
		request, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pilot request: %w", err)
		}
		requests = append(requests, request)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pilot requests: %w", err)
	}
	return requests, nil
}

const selectRequestQuery = `
	SELECT id, applicant_name, email, organization, role_hint, sector, region,
	       tags, score, owner_user_id, agreement_token, agreement_expires_at,
	       agreement_used_at, status, created_at, updated_at
	FROM pilot_requests`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (PilotRequest, error) {
	var (
		request   PilotRequest
		rawID     string
		roleHint  string
		status    string
		tags      []byte
		score     []byte
		token     sql.NullString
		expiresAt sql.NullTime
		usedAt    sql.NullTime
	)
	if err := row.Scan(&rawID, &request.ApplicantName, &request.Email, &request.Organization,
		&roleHint, &request.Sector, &request.Region, &tags, &score, &request.OwnerUserID,
		&token, &expiresAt, &usedAt, &status, &request.CreatedAt, &request.UpdatedAt); err != nil {
		return PilotRequest{}, err
	}

	requestID, err := id.ParseRequestID(rawID)
	if err != nil {
		return PilotRequest{}, err
	}
	request.ID = requestID
	request.RoleHint = RoleHint(roleHint)
	request.Status = Status(status)

	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &request.Tags); err != nil {
			return PilotRequest{}, fmt.Errorf("unmarshal tags: %w", err)
		}
	}
	if len(score) > 0 {
		var record scoreRecord
		if err := json.Unmarshal(score, &record); err != nil {
			return PilotRequest{}, fmt.Errorf("unmarshal score: %w", err)
		}
		request.Score = &RubricScores{
			MissionFit:      CriterionScore(record.MissionFit),
			RoleClarity:     CriterionScore(record.RoleClarity),
			DataFeasibility: CriterionScore(record.DataFeasibility),
			Timeline:        CriterionScore(record.Timeline),
			OverallScore:    record.OverallScore,
			Recommendation:  Recommendation(record.Recommendation),
		}
	}
	if token.Valid {
		link := &AgreementLink{Token: token.String, ExpiresAt: expiresAt.Time}
		if usedAt.Valid {
			t := usedAt.Time
			link.UsedAt = &t
		}
		request.AgreementLink = link
	}
	return request, nil
}

func marshalRequestDocs(request PilotRequest) (tags []byte, score []byte, err error) {
	if request.Tags == nil {
		tags = []byte("[]")
	} else if tags, err = json.Marshal(request.Tags); err != nil {
		return nil, nil, fmt.Errorf("marshal tags: %w", err)
	}
	if request.Score != nil {
		record := scoreRecord{
			MissionFit:      criterionRecord(request.Score.MissionFit),
			RoleClarity:     criterionRecord(request.Score.RoleClarity),
			DataFeasibility: criterionRecord(request.Score.DataFeasibility),
			Timeline:        criterionRecord(request.Score.Timeline),
			OverallScore:    request.Score.OverallScore,
			Recommendation:  string(request.Score.Recommendation),
		}
		if score, err = json.Marshal(record); err != nil {
			return nil, nil, fmt.Errorf("marshal score: %w", err)
		}
	}
	return tags, score, nil
}

func agreementColumns(link *AgreementLink) (token sql.NullString, expiresAt, usedAt sql.NullTime) {
	if link == nil {
		return
	}
	token = sql.NullString{String: link.Token, Valid: true}
	expiresAt = sql.NullTime{Time: link.ExpiresAt, Valid: true}
	if link.UsedAt != nil {
		usedAt = sql.NullTime{Time: *link.UsedAt, Valid: true}
	}
	return
}
