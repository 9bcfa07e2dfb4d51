package request

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"pilotdesk/internal/audit"
	"pilotdesk/internal/consent"
	"pilotdesk/internal/notify"
	"pilotdesk/internal/platform/metrics"
	"pilotdesk/internal/sla"
	id "pilotdesk/pkg/domain"
	dErrors "pilotdesk/pkg/domain-errors"
	"pilotdesk/pkg/platform/sentinel"
	"pilotdesk/pkg/requestcontext"
)

const (
	defaultAgreementLinkTTL  = 30 * 24 * time.Hour
	defaultReviewerSLAWindow = 48 * time.Hour
)

// Store persists pilot requests.
type Store interface {
	Create(ctx context.Context, request PilotRequest) error
	Get(ctx context.Context, requestID id.RequestID) (PilotRequest, error)
	Update(ctx context.Context, request PilotRequest) error
	List(ctx context.Context) ([]PilotRequest, error)
}

// Auditor is the per-entity hash chain every mutation is recorded in.
type Auditor interface {
	Append(ctx context.Context, entityID, actor string, action audit.Action, metadata map[string]string) (audit.Entry, error)
	Read(ctx context.Context, entityID string) ([]audit.Entry, error)
	Verify(ctx context.Context, entityID string) (bool, error)
}

// Deadlines is the SLA tracker surface the lifecycle needs.
type Deadlines interface {
	Set(ctx context.Context, entityID string, dueAt time.Time, kind sla.Kind) error
	Resolve(ctx context.Context, entityID string, kind sla.Kind) error
}

// Consents records consent decisions alongside the request.
type Consents interface {
	Record(ctx context.Context, requestID id.RequestID, consentType consent.Type, scope, recordedBy string) (consent.Record, error)
	List(ctx context.Context, requestID id.RequestID) ([]consent.Record, error)
}

// Service orchestrates the pilot request lifecycle. Every mutation follows
// the same shape: validate, persist, then append to the audit chain. The
// audit append comes after the state change succeeds, so a failed mutation
// never leaves a phantom entry in the chain.
type Service struct {
	store      Store
	auditor    Auditor
	deadlines  Deadlines
	consents   Consents
	dispatcher notify.Dispatcher
	tokens     TokenIndex
	logger     *slog.Logger
	metrics    *metrics.Metrics
	tracer     trace.Tracer

	linkTTL   time.Duration
	slaWindow time.Duration
	policy    TransitionPolicy
}

type Option func(s *Service)

func WithDeadlines(d Deadlines) Option {
	return func(s *Service) { s.deadlines = d }
}

func WithConsents(c Consents) Option {
	return func(s *Service) { s.consents = c }
}

func WithDispatcher(d notify.Dispatcher) Option {
	return func(s *Service) { s.dispatcher = d }
}

func WithTokenIndex(t TokenIndex) Option {
	return func(s *Service) { s.tokens = t }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithAgreementLinkTTL(ttl time.Duration) Option {
	return func(s *Service) { s.linkTTL = ttl }
}

func WithReviewerSLAWindow(window time.Duration) Option {
	return func(s *Service) { s.slaWindow = window }
}

func WithTransitionPolicy(policy TransitionPolicy) Option {
	return func(s *Service) { s.policy = policy }
}

func NewService(store Store, auditor Auditor, opts ...Option) *Service {
	s := &Service{
		store:     store,
		auditor:   auditor,
		tokens:    NewInMemoryTokenIndex(),
		tracer:    otel.Tracer("pilotdesk/request"),
		linkTTL:   defaultAgreementLinkTTL,
		slaWindow: defaultReviewerSLAWindow,
		policy:    PolicyPermissive,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit creates a request from an inbound intake payload.
func (s *Service) Submit(ctx context.Context, submission Submission) (PilotRequest, error) {
	ctx, span := s.tracer.Start(ctx, "request.Submit")
	defer span.End()

	submission.Normalize()
	if err := submission.Validate(); err != nil {
		return PilotRequest{}, err
	}

	now := requestcontext.Now(ctx)
	request := PilotRequest{
		ID:            id.NewRequestID(),
		ApplicantName: submission.ApplicantName,
		Email:         submission.Email,
		Organization:  submission.Organization,
		RoleHint:      RoleHint(submission.RoleHint),
		Sector:        submission.Sector,
		Region:        submission.Region,
		Tags:          dedupeTags(submission.Tags),
		Status:        StatusNew,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.Create(ctx, request); err != nil {
		return PilotRequest{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to create request")
	}

	if _, err := s.auditor.Append(ctx, request.ID.String(), s.actor(ctx), audit.ActionRequestSubmitted, map[string]string{
		"organization": request.Organization,
		"role_hint":    string(request.RoleHint),
		"sector":       request.Sector,
	}); err != nil {
		return PilotRequest{}, err
	}
	if s.metrics != nil {
		s.metrics.RequestsCreated.Inc()
	}
	return request, nil
}

// Get loads a single request.
func (s *Service) Get(ctx context.Context, requestID id.RequestID) (PilotRequest, error) {
	return s.load(ctx, requestID)
}

// List returns all requests, oldest first.
func (s *Service) List(ctx context.Context) ([]PilotRequest, error) {
	requests, err := s.store.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to list requests")
	}
	return requests, nil
}

// AssignReviewer sets the owning reviewer without changing status. It also
// opens the initial-contact SLA and notifies the reviewer; both side effects
// are independent of the assignment itself and are logged rather than
// propagated on failure.
func (s *Service) AssignReviewer(ctx context.Context, requestID id.RequestID, reviewerID, reviewerEmail string) (PilotRequest, error) {
	ctx, span := s.tracer.Start(ctx, "request.AssignReviewer")
	defer span.End()

	if reviewerID == "" {
		return PilotRequest{}, dErrors.New(dErrors.CodeValidation, "reviewer id is required")
	}
	request, err := s.loadMutable(ctx, requestID)
	if err != nil {
		return PilotRequest{}, err
	}

	request.OwnerUserID = reviewerID
	request.UpdatedAt = requestcontext.Now(ctx)
	if err := s.store.Update(ctx, request); err != nil {
		return PilotRequest{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to assign reviewer")
	}

	if _, err := s.auditor.Append(ctx, requestID.String(), s.actor(ctx), audit.ActionReviewerAssigned, map[string]string{
		"reviewer_id": reviewerID,
	}); err != nil {
		return PilotRequest{}, err
	}

	if s.deadlines != nil {
		dueAt := requestcontext.Now(ctx).Add(s.slaWindow)
		if err := s.deadlines.Set(ctx, requestID.String(), dueAt, sla.KindInitialContact); err != nil {
			s.warn(ctx, "failed to open initial-contact SLA", requestID, err)
		}
	}
	if s.dispatcher != nil && reviewerEmail != "" {
		err := s.dispatcher.Send(ctx, notify.TemplateReviewerAssigned, []string{reviewerEmail}, map[string]string{
			"request_id":   requestID.String(),
			"organization": request.Organization,
			"applicant":    request.ApplicantName,
		})
		if err != nil {
			s.notifyFailed(ctx, "reviewer assignment notification failed", requestID, err)
		}
	}
	return request, nil
}

// ConfirmContact records that the assigned reviewer made first contact and
// closes the initial-contact SLA.
func (s *Service) ConfirmContact(ctx context.Context, requestID id.RequestID) error {
	ctx, span := s.tracer.Start(ctx, "request.ConfirmContact")
	defer span.End()

	if _, err := s.load(ctx, requestID); err != nil {
		return err
	}
	if s.deadlines != nil {
		if err := s.deadlines.Resolve(ctx, requestID.String(), sla.KindInitialContact); err != nil && !dErrors.HasCode(err, dErrors.CodeNotFound) {
			return err
		}
	}
	_, err := s.auditor.Append(ctx, requestID.String(), s.actor(ctx), audit.ActionContactConfirmed, nil)
	return err
}

// TagRequest replaces the request's tag set.
func (s *Service) TagRequest(ctx context.Context, requestID id.RequestID, tags []string) (PilotRequest, error) {
	ctx, span := s.tracer.Start(ctx, "request.TagRequest")
	defer span.End()

	request, err := s.loadMutable(ctx, requestID)
	if err != nil {
		return PilotRequest{}, err
	}

	request.Tags = dedupeTags(tags)
	request.UpdatedAt = requestcontext.Now(ctx)
	if err := s.store.Update(ctx, request); err != nil {
		return PilotRequest{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to update tags")
	}

	if _, err := s.auditor.Append(ctx, requestID.String(), s.actor(ctx), audit.ActionTagsUpdated, map[string]string{
		"tags": strings.Join(request.Tags, ","),
	}); err != nil {
		return PilotRequest{}, err
	}
	return request, nil
}

// ScoreFit stores the rubric sub-scores and their derived overall score and
// recommendation.
func (s *Service) ScoreFit(ctx context.Context, requestID id.RequestID, scores RubricScores) (PilotRequest, error) {
	ctx, span := s.tracer.Start(ctx, "request.ScoreFit")
	defer span.End()

	if err := scores.Derive(); err != nil {
		return PilotRequest{}, err
	}
	request, err := s.loadMutable(ctx, requestID)
	if err != nil {
		return PilotRequest{}, err
	}

	request.Score = &scores
	request.UpdatedAt = requestcontext.Now(ctx)
	if err := s.store.Update(ctx, request); err != nil {
		return PilotRequest{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to store rubric score")
	}

	if _, err := s.auditor.Append(ctx, requestID.String(), s.actor(ctx), audit.ActionRubricScored, map[string]string{
		"mission_fit":      fmt.Sprintf("%d", scores.MissionFit.Score),
		"role_clarity":     fmt.Sprintf("%d", scores.RoleClarity.Score),
		"data_feasibility": fmt.Sprintf("%d", scores.DataFeasibility.Score),
		"timeline":         fmt.Sprintf("%d", scores.Timeline.Score),
		"overall_score":    fmt.Sprintf("%.1f", scores.OverallScore),
		"recommendation":   string(scores.Recommendation),
	}); err != nil {
		return PilotRequest{}, err
	}
	return request, nil
}

// Deduplicate absorbs a duplicate request into the surviving one. The loser
// is marked CONVERTED to make it inert, and both chains record the merge.
func (s *Service) Deduplicate(ctx context.Context, requestID, mergeIntoID id.RequestID) error {
	ctx, span := s.tracer.Start(ctx, "request.Deduplicate")
	defer span.End()

	if requestID == mergeIntoID {
		return dErrors.New(dErrors.CodeValidation, "a request cannot be merged into itself")
	}
	loser, err := s.load(ctx, requestID)
	if err != nil {
		return err
	}
	winner, err := s.load(ctx, mergeIntoID)
	if err != nil {
		return err
	}
	if loser.Converted() {
		return dErrors.New(dErrors.CodeConflict, "request is already converted")
	}

	loser.Status = StatusConverted
	loser.UpdatedAt = requestcontext.Now(ctx)
	if err := s.store.Update(ctx, loser); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to absorb duplicate request")
	}

	actor := s.actor(ctx)
	if _, err := s.auditor.Append(ctx, winner.ID.String(), actor, audit.ActionRequestMerged, map[string]string{
		"merged_request_id": loser.ID.String(),
		"applicant_email":   loser.Email,
		"organization":      loser.Organization,
	}); err != nil {
		return err
	}
	_, err = s.auditor.Append(ctx, loser.ID.String(), actor, audit.ActionMergedInto, map[string]string{
		"merged_into": winner.ID.String(),
	})
	return err
}

// GenerateAgreementLink mints a single-use signing token with a fixed expiry
// and moves the request to AGREEMENT_OUT. The full token is returned to the
// caller and indexed for lookup, but only a redacted prefix ever reaches the
// audit chain or logs.
func (s *Service) GenerateAgreementLink(ctx context.Context, requestID id.RequestID) (AgreementLink, error) {
	ctx, span := s.tracer.Start(ctx, "request.GenerateAgreementLink")
	defer span.End()

	request, err := s.loadMutable(ctx, requestID)
	if err != nil {
		return AgreementLink{}, err
	}

	token, err := newAgreementToken()
	if err != nil {
		return AgreementLink{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate agreement token")
	}
	now := requestcontext.Now(ctx)
	link := AgreementLink{Token: token, ExpiresAt: now.Add(s.linkTTL)}

	// Index first so a half-written link is never resolvable but a stored
	// link is always resolvable.
	if err := s.tokens.Put(ctx, token, requestID, s.linkTTL); err != nil {
		return AgreementLink{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to index agreement token")
	}

	request.AgreementLink = &link
	request.Status = StatusAgreementOut
	request.UpdatedAt = now
	if err := s.store.Update(ctx, request); err != nil {
		return AgreementLink{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to store agreement link")
	}

	if _, err := s.auditor.Append(ctx, requestID.String(), s.actor(ctx), audit.ActionAgreementLinkGenerated, map[string]string{
		"token_prefix": redactToken(token),
		"expires_at":   link.ExpiresAt.UTC().Format(time.RFC3339),
	}); err != nil {
		return AgreementLink{}, err
	}
	if s.dispatcher != nil {
		err := s.dispatcher.Send(ctx, notify.TemplateAgreementOut, []string{request.Email}, map[string]string{
			"request_id": requestID.String(),
			"applicant":  request.ApplicantName,
			"expires_at": link.ExpiresAt.UTC().Format(time.RFC3339),
		})
		if err != nil {
			s.notifyFailed(ctx, "agreement notification failed", requestID, err)
		}
	}
	return link, nil
}

// ResolveAgreementToken finds the request behind a signing token. Unknown
// tokens and tokens that are expired or already used fail identically, so
// the public endpoint leaks nothing about which case occurred.
func (s *Service) ResolveAgreementToken(ctx context.Context, token string) (PilotRequest, error) {
	requestID, err := s.tokens.Lookup(ctx, token)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return PilotRequest{}, invalidTokenError()
		}
		return PilotRequest{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to resolve agreement token")
	}
	request, err := s.load(ctx, requestID)
	if err != nil {
		return PilotRequest{}, err
	}
	if request.AgreementLink == nil || request.AgreementLink.Token != token ||
		!request.AgreementLink.Usable(requestcontext.Now(ctx)) {
		return PilotRequest{}, invalidTokenError()
	}
	return request, nil
}

// RecordSignature consumes the agreement link and moves the request to
// SIGNED. An invalid link fails before any state change or audit append. The
// signer's IP is stored only as a SHA-256 digest.
func (s *Service) RecordSignature(ctx context.Context, requestID id.RequestID, token, signer, ipAddress, deviceSummary string) (PilotRequest, error) {
	ctx, span := s.tracer.Start(ctx, "request.RecordSignature")
	defer span.End()

	request, err := s.load(ctx, requestID)
	if err != nil {
		return PilotRequest{}, err
	}
	now := requestcontext.Now(ctx)
	if request.AgreementLink == nil || request.AgreementLink.Token != token ||
		!request.AgreementLink.Usable(now) {
		return PilotRequest{}, invalidTokenError()
	}

	request.AgreementLink.UsedAt = &now
	request.Status = StatusSigned
	request.UpdatedAt = now
	if err := s.store.Update(ctx, request); err != nil {
		return PilotRequest{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to record signature")
	}

	metadata := map[string]string{
		"signer":  signer,
		"ip_hash": hashIP(ipAddress),
	}
	if deviceSummary != "" {
		metadata["device"] = deviceSummary
	}
	if _, err := s.auditor.Append(ctx, requestID.String(), s.actor(ctx), audit.ActionAgreementSigned, metadata); err != nil {
		return PilotRequest{}, err
	}
	return request, nil
}

// RecordConsent persists a consent decision and records it in the chain.
func (s *Service) RecordConsent(ctx context.Context, requestID id.RequestID, consentType consent.Type, scope string) error {
	ctx, span := s.tracer.Start(ctx, "request.RecordConsent")
	defer span.End()

	if s.consents == nil {
		return dErrors.New(dErrors.CodeUnavailable, "consent recording is not configured")
	}
	request, err := s.load(ctx, requestID)
	if err != nil {
		return err
	}
	if _, err := s.consents.Record(ctx, requestID, consentType, scope, request.Email); err != nil {
		return err
	}
	_, err = s.auditor.Append(ctx, requestID.String(), s.actor(ctx), audit.ActionConsentRecorded, map[string]string{
		"consent_type": string(consentType),
		"scope":        scope,
	})
	return err
}

// AdvanceStatus moves the request to an arbitrary status with a free-text
// reason. Under the permissive policy, off-path jumps are allowed but logged.
func (s *Service) AdvanceStatus(ctx context.Context, requestID id.RequestID, next Status, reason string) (PilotRequest, error) {
	ctx, span := s.tracer.Start(ctx, "request.AdvanceStatus")
	defer span.End()

	request, err := s.load(ctx, requestID)
	if err != nil {
		return PilotRequest{}, err
	}
	if err := s.policy.Validate(request.Status, next); err != nil {
		return PilotRequest{}, err
	}
	if !IsForward(request.Status, next) {
		s.warn(ctx, fmt.Sprintf("off-path status jump %s -> %s", request.Status, next), requestID, nil)
	}

	previous := request.Status
	request.Status = next
	request.UpdatedAt = requestcontext.Now(ctx)
	if err := s.store.Update(ctx, request); err != nil {
		return PilotRequest{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to advance status")
	}

	if _, err := s.auditor.Append(ctx, requestID.String(), s.actor(ctx), audit.ActionStatusAdvanced, map[string]string{
		"from":   string(previous),
		"to":     string(next),
		"reason": reason,
	}); err != nil {
		return PilotRequest{}, err
	}
	return request, nil
}

// CaseFile is the full exportable record of a request: its current state,
// its verified audit chain, and any consent decisions.
type CaseFile struct {
	Request    PilotRequest
	Entries    []audit.Entry
	Consents   []consent.Record
	ExportedAt time.Time
}

// ExportCaseFile assembles the case file after verifying chain integrity. A
// chain that fails verification blocks the export.
func (s *Service) ExportCaseFile(ctx context.Context, requestID id.RequestID) (CaseFile, error) {
	ctx, span := s.tracer.Start(ctx, "request.ExportCaseFile")
	defer span.End()

	request, err := s.load(ctx, requestID)
	if err != nil {
		return CaseFile{}, err
	}
	ok, err := s.auditor.Verify(ctx, requestID.String())
	if err != nil {
		return CaseFile{}, err
	}
	if !ok {
		return CaseFile{}, dErrors.New(dErrors.CodeConflict, "audit chain failed verification; refusing to export")
	}
	entries, err := s.auditor.Read(ctx, requestID.String())
	if err != nil {
		return CaseFile{}, err
	}

	file := CaseFile{Request: request, Entries: entries, ExportedAt: requestcontext.Now(ctx)}
	if s.consents != nil {
		if file.Consents, err = s.consents.List(ctx, requestID); err != nil {
			return CaseFile{}, err
		}
	}
	return file, nil
}

// AuditTrail returns the request's audit entries, oldest first.
func (s *Service) AuditTrail(ctx context.Context, requestID id.RequestID) ([]audit.Entry, error) {
	if _, err := s.load(ctx, requestID); err != nil {
		return nil, err
	}
	return s.auditor.Read(ctx, requestID.String())
}

func (s *Service) load(ctx context.Context, requestID id.RequestID) (PilotRequest, error) {
	request, err := s.store.Get(ctx, requestID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return PilotRequest{}, dErrors.New(dErrors.CodeNotFound, "request not found")
		}
		return PilotRequest{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to load request")
	}
	return request, nil
}

// loadMutable rejects operations on converted requests, which are terminal.
func (s *Service) loadMutable(ctx context.Context, requestID id.RequestID) (PilotRequest, error) {
	request, err := s.load(ctx, requestID)
	if err != nil {
		return PilotRequest{}, err
	}
	if request.Converted() {
		return PilotRequest{}, dErrors.New(dErrors.CodeConflict, "request is converted and can no longer change")
	}
	return request, nil
}

func (s *Service) actor(ctx context.Context) string {
	if actor := requestcontext.ActorID(ctx); actor != "" {
		return actor
	}
	return audit.SystemActor
}

func (s *Service) warn(ctx context.Context, msg string, requestID id.RequestID, err error) {
	if s.logger == nil {
		return
	}
	attrs := []any{"request_id", requestID.String()}
	if err != nil {
		attrs = append(attrs, "error", err)
	}
	s.logger.WarnContext(ctx, msg, attrs...)
}

func (s *Service) notifyFailed(ctx context.Context, msg string, requestID id.RequestID, err error) {
	if s.metrics != nil {
		s.metrics.NotificationFailures.Inc()
	}
	s.warn(ctx, msg, requestID, err)
}

func invalidTokenError() error {
	return dErrors.New(dErrors.CodeTokenInvalid, "agreement link is missing, expired, or already used")
}

// newAgreementToken returns 256 bits of URL-safe randomness.
func newAgreementToken() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// redactToken keeps enough of the token to correlate log lines without
// making the chain a place the full secret can be recovered from.
func redactToken(token string) string {
	if len(token) <= 8 {
		return token
	}
	return token[:8] + "…"
}

func hashIP(ipAddress string) string {
	sum := sha256.Sum256([]byte(ipAddress))
	return hex.EncodeToString(sum[:])
}
