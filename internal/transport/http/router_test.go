package httpapi_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pilotdesk/internal/audit"
	"pilotdesk/internal/consent"
	"pilotdesk/internal/notify"
	"pilotdesk/internal/pilot"
	"pilotdesk/internal/request"
	"pilotdesk/internal/sla"
	httpapi "pilotdesk/internal/transport/http"
	"pilotdesk/pkg/platform/middleware/auth"
)

const signingKey = "router-test-key"

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	requestStore := request.NewInMemoryStore()
	auditLog := audit.NewLog(audit.NewInMemoryStore())
	requests := request.NewService(requestStore, auditLog,
		request.WithDeadlines(sla.NewTracker(sla.NewInMemoryStore())),
		request.WithConsents(consent.NewService(consent.NewInMemoryStore())),
		request.WithDispatcher(notify.NewRecorder()),
	)
	pilots := pilot.NewProvisioner(pilot.NewInMemoryStore(), requestStore, auditLog)

	return httpapi.NewRouter(httpapi.Deps{
		Requests: requests,
		Pilots:   pilots,
		Verifier: auth.NewVerifier(signingKey),
	})
}

func adminToken(t *testing.T) string {
	t.Helper()
	token, err := auth.NewToken(signingKey, "u-admin-1", auth.RoleOwnerAdmin, time.Hour)
	require.NoError(t, err)
	return token
}

func doJSON(t *testing.T, router http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestIntakeThroughConversion(t *testing.T) {
	router := newTestRouter(t)
	token := adminToken(t)

	// Public intake.
	rec := doJSON(t, router, http.MethodPost, "/requests", "", map[string]any{
		"applicant_name": "Dana Osei",
		"email":          "dana.osei@example.org",
		"organization":   "Meridian Safety Lab",
		"role_hint":      "auditor",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	requestID := decodeBody(t, rec)["id"].(string)
	require.NotEmpty(t, requestID)

	// Admin triage.
	rec = doJSON(t, router, http.MethodPost, "/admin/requests/"+requestID+"/reviewer", token, map[string]any{
		"reviewer_id":    "u-reviewer-1",
		"reviewer_email": "reviewer@example.org",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "u-reviewer-1", decodeBody(t, rec)["owner_user_id"])

	rec = doJSON(t, router, http.MethodPost, "/admin/requests/"+requestID+"/score", token, map[string]any{
		"mission_fit":      map[string]any{"score": 4},
		"role_clarity":     map[string]any{"score": 4},
		"data_feasibility": map[string]any{"score": 4},
		"timeline":         map[string]any{"score": 4},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	score := decodeBody(t, rec)["score"].(map[string]any)
	assert.Equal(t, 4.0, score["overall_score"])
	assert.Equal(t, "CONDITIONAL", score["recommendation"])

	// Agreement out.
	rec = doJSON(t, router, http.MethodPost, "/admin/requests/"+requestID+"/agreement", token, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	agreementToken := decodeBody(t, rec)["token"].(string)
	require.NotEmpty(t, agreementToken)

	// The public signing page resolves the token without auth.
	rec = doJSON(t, router, http.MethodGet, "/agreements/"+agreementToken, "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Meridian Safety Lab", decodeBody(t, rec)["organization"])

	// Sign from the applicant's browser.
	raw, err := json.Marshal(map[string]any{"signer": "Dana Osei"})
	require.NoError(t, err)
	signReq := httptest.NewRequest(http.MethodPost, "/agreements/"+agreementToken+"/sign", bytes.NewReader(raw))
	signReq.Header.Set("X-Forwarded-For", "203.0.113.5")
	signReq.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0")
	signRec := httptest.NewRecorder()
	router.ServeHTTP(signRec, signReq)
	require.Equal(t, http.StatusOK, signRec.Code, signRec.Body.String())
	assert.Equal(t, "SIGNED", decodeBody(t, signRec)["status"])

	// A second signature attempt hits the consumed link.
	rec = doJSON(t, router, http.MethodPost, "/agreements/"+agreementToken+"/sign", "", map[string]any{"signer": "Dana Osei"})
	assert.Equal(t, http.StatusGone, rec.Code)

	// Convert to a pilot workspace.
	rec = doJSON(t, router, http.MethodPost, "/admin/requests/"+requestID+"/convert", token, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	pilotID := decodeBody(t, rec)["pilot_id"].(string)

	rec = doJSON(t, router, http.MethodGet, "/admin/pilots/"+pilotID, token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	pilotBody := decodeBody(t, rec)
	assert.Equal(t, "onboarding", pilotBody["status"])
	assert.Len(t, pilotBody["milestones"], 6)

	// The audit trail shows the whole story, with the IP only as a hash.
	rec = doJSON(t, router, http.MethodGet, "/admin/requests/"+requestID+"/audit", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var entries []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 6)
	assert.Equal(t, "PILOT_CREATED", entries[5]["action"])
	signedEntry := entries[4]
	require.Equal(t, "AGREEMENT_SIGNED", signedEntry["action"])
	metadata := signedEntry["metadata"].(map[string]any)
	assert.NotContains(t, fmt.Sprint(metadata), "203.0.113.5")
	assert.Contains(t, metadata["device"], "Firefox")
}

func TestAdminSurfaceRequiresAuth(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/admin/requests", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// A valid but under-privileged token can read but not mutate.
	readOnly, err := auth.NewToken(signingKey, "u-auditor-1", auth.RoleAuditor, time.Hour)
	require.NoError(t, err)

	rec = doJSON(t, router, http.MethodGet, "/admin/requests", readOnly, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/admin/requests/00000000-0000-4000-8000-000000000001/reviewer", readOnly, map[string]any{
		"reviewer_id": "u1",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestUnknownRequestIs404(t *testing.T) {
	router := newTestRouter(t)
	token := adminToken(t)

	rec := doJSON(t, router, http.MethodGet, "/admin/requests/00000000-0000-4000-8000-000000000001", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
