package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"paflow/internal/paf/metrics"
	"paflow/internal/paf/models"
	"paflow/internal/paf/pafid"
	"paflow/pkg/domain"
	dErrors "paflow/pkg/domain-errors"
	"paflow/pkg/platform/sentinel"
	"paflow/pkg/requestcontext"
)

// Store is the persistence surface the lifecycle needs. ExecuteTransition
// must run the apply callback, the history insert and the outbox insert in
// one transaction, and fail with sentinel.ErrStateConflict when the persisted
// status no longer matches expected.
type Store interface {
	Create(ctx context.Context, p *models.PAF, first models.HistoryEntry) (*models.PAF, error)
	FindByID(ctx context.Context, id int64) (*models.PAF, error)
	History(ctx context.Context, pafID int64) ([]models.HistoryEntry, error)
	ListByScope(ctx context.Context, scopeID int64, status models.Status) ([]*models.PAF, error)
	ListByParty(ctx context.Context, actorID int64) ([]*models.PAF, error)
	ExecuteTransition(ctx context.Context, pafID int64, expected models.Status, apply func(*models.PAF) error, entry models.HistoryEntry) (*models.PAF, error)
}

// Notifier receives a completed transition after commit. Implementations must
// not block; failures are logged and never fail the transition.
type Notifier interface {
	TransitionCompleted(ctx context.Context, p *models.PAF, edge Edge)
}

// Service drives PAFs through the workflow. All edges funnel through
// Transition; there is one code path from guard to commit.
type Service struct {
	store        Store
	platformCode string
	logger       *slog.Logger
	notifier     Notifier
	metrics      *metrics.Metrics
	tracer       trace.Tracer
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// New constructs a Service. platformCode is the four-character licensee
// platform prefix on assigned PAF identifiers.
func New(store Store, platformCode string, opts ...Option) *Service {
	s := &Service{
		store:        store,
		platformCode: platformCode,
		logger:       slog.Default(),
		tracer:       otel.Tracer("paflow/lifecycle"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateInput carries the fields a creator supplies for a new PAF. The
// licensee scope and creator come from the actor, never the body.
type CreateInput struct {
	AgentID        int64               `json:"agent_id"`
	Jurisdiction   models.Jurisdiction `json:"jurisdiction"`
	FrequencyCode  string              `json:"frequency_code"`
	ListOwnerNAICS string              `json:"list_owner_naics"`
	Notes          string              `json:"notes"`
}

func (in CreateInput) validate() error {
	if !in.Jurisdiction.Valid() {
		return dErrors.New(dErrors.CodeValidation, "jurisdiction must be DOMESTIC or FOREIGN")
	}
	if !models.ValidFrequencyCode(in.FrequencyCode) {
		return dErrors.New(dErrors.CodeValidation, "frequency code must be 01-52 or 99")
	}
	if in.ListOwnerNAICS == "" {
		return dErrors.New(dErrors.CodeValidation, "list owner NAICS code is required")
	}
	return nil
}

// Create registers a new PAF in INITIAL status with its first history entry.
func (s *Service) Create(ctx context.Context, in CreateInput) (*models.PAF, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	p := &models.PAF{
		LicenseeScopeID: actor.ScopeID,
		CreatorID:       actor.ActorID,
		AgentID:         in.AgentID,
		Jurisdiction:    in.Jurisdiction,
		Status:          models.StatusInitial,
		Type:            models.TypeInitial,
		FrequencyCode:   in.FrequencyCode,
		ListOwnerNAICS:  in.ListOwnerNAICS,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	first := models.HistoryEntry{
		Status:    models.StatusInitial,
		Notes:     in.Notes,
		ActorID:   actor.ActorID,
		CreatedAt: now,
	}

	created, err := s.store.Create(ctx, p, first)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create PAF")
	}

	if s.metrics != nil {
		s.metrics.IncrementCreated()
	}
	s.logger.InfoContext(ctx, "paf created",
		"paf_id", created.ID,
		"jurisdiction", created.Jurisdiction,
		"has_agent", created.HasAgent(),
		"request_id", requestcontext.RequestID(ctx))
	return created, nil
}

// Transition drives one PAF across one edge. Processing order is fixed:
// guard, status precondition, payload validation, side effects, atomic
// commit, post-commit notification.
func (s *Service) Transition(ctx context.Context, pafID int64, edge Edge, payload models.Payload) (*models.PAF, error) {
	ctx, span := s.tracer.Start(ctx, "paf.transition",
		trace.WithAttributes(
			attribute.String("paf.edge", string(edge)),
			attribute.Int64("paf.id", pafID),
		))
	defer span.End()

	start := time.Now()
	updated, err := s.transition(ctx, pafID, edge, payload)
	if s.metrics != nil {
		s.metrics.ObserveTransition(start)
		s.metrics.RecordTransition(string(edge), outcomeOf(err))
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.logger.InfoContext(ctx, "paf transition",
		"paf_id", updated.ID,
		"edge", edge,
		"status", updated.Status,
		"request_id", requestcontext.RequestID(ctx))
	s.notifyAsync(ctx, updated, edge)
	return updated, nil
}

func (s *Service) transition(ctx context.Context, pafID int64, edge Edge, payload models.Payload) (*models.PAF, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	t, err := Resolve(edge)
	if err != nil {
		return nil, err
	}
	if payload == nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "missing request payload")
	}
	if err := payload.Validate(); err != nil {
		return nil, err
	}

	p, err := s.store.FindByID(ctx, pafID)
	if err != nil {
		return nil, s.storeError(err, "failed to load PAF")
	}

	if err := t.Authorize(actor, p); err != nil {
		return nil, err
	}
	if !t.Allows(p.Status) {
		return nil, stateConflict(edge, p.Status)
	}

	now := requestcontext.Now(ctx)
	if edge == EdgeRenew && !RenewalEligible(p, now) {
		return nil, dErrors.New(dErrors.CodeConflict, "PAF is not within its renewal window")
	}

	next := t.Next(p)
	apply, err := s.applyFunc(edge, next, payload, now)
	if err != nil {
		return nil, err
	}
	entry := models.HistoryEntry{
		PAFID:     pafID,
		Status:    next,
		Notes:     historyNotes(payload),
		ActorID:   actor.ActorID,
		CreatedAt: now,
	}

	updated, err := s.store.ExecuteTransition(ctx, pafID, p.Status, apply, entry)
	if err != nil {
		return nil, s.storeError(err, "failed to execute transition")
	}
	return updated, nil
}

// applyFunc builds the mutation the executor runs under the row lock. The
// callback only touches fields the edge owns; status and UpdatedAt are set
// for every edge.
func (s *Service) applyFunc(edge Edge, next models.Status, payload models.Payload, now time.Time) (func(*models.PAF) error, error) {
	base := func(p *models.PAF) {
		p.Status = next
		p.UpdatedAt = now
	}

	switch edge {
	case EdgeAgentApprove:
		sig, ok := payload.(models.SignaturePayload)
		if !ok {
			return nil, badPayload(edge)
		}
		return func(p *models.PAF) error {
			p.AgentSignature = sig.Signature(now)
			base(p)
			return nil
		}, nil

	case EdgeListOwnerApprove:
		sig, ok := payload.(models.SignaturePayload)
		if !ok {
			return nil, badPayload(edge)
		}
		return func(p *models.PAF) error {
			p.ListOwnerSignature = sig.Signature(now)
			base(p)
			return nil
		}, nil

	case EdgeLicenseeValidate:
		val, ok := payload.(models.ValidationPayload)
		if !ok {
			return nil, badPayload(edge)
		}
		return func(p *models.PAF) error {
			effective := now
			if val.EffectiveDate != nil {
				effective = *val.EffectiveDate
			}
			expiration := ComputeExpiration(effective)
			p.LicenseeSignature = val.Signature(now)
			p.EffectiveDate = &effective
			p.ExpirationDate = &expiration
			if p.DisplayIdentifier == "" {
				p.DisplayIdentifier = pafid.Generate(
					s.platformCode, p.ListOwnerNAICS, p.FrequencyCode, p.ID, pafid.ClassPAF)
			}
			base(p)
			return nil
		}, nil

	case EdgeRenew:
		if _, ok := payload.(models.RenewPayload); !ok {
			return nil, badPayload(edge)
		}
		return func(p *models.PAF) error {
			p.Type = models.TypeRenewal
			base(p)
			return nil
		}, nil

	case EdgeSubmit:
		if _, ok := payload.(models.SubmitPayload); !ok {
			return nil, badPayload(edge)
		}
	case EdgeUSPSApprove:
		if _, ok := payload.(models.ApprovalPayload); !ok {
			return nil, badPayload(edge)
		}
	case EdgeReject:
		if _, ok := payload.(models.RejectPayload); !ok {
			return nil, badPayload(edge)
		}
	}

	return func(p *models.PAF) error {
		base(p)
		return nil
	}, nil
}

// Get returns one PAF. Visible to its creator, its agent, and licensee
// administrators of its scope.
func (s *Service) Get(ctx context.Context, pafID int64) (*models.PAF, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	p, err := s.store.FindByID(ctx, pafID)
	if err != nil {
		return nil, s.storeError(err, "failed to load PAF")
	}
	if err := canView(actor, p); err != nil {
		return nil, err
	}
	return p, nil
}

// History returns the PAF's audit trail, oldest first.
func (s *Service) History(ctx context.Context, pafID int64) ([]models.HistoryEntry, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	p, err := s.store.FindByID(ctx, pafID)
	if err != nil {
		return nil, s.storeError(err, "failed to load PAF")
	}
	if err := canView(actor, p); err != nil {
		return nil, err
	}
	entries, err := s.store.History(ctx, pafID)
	if err != nil {
		return nil, s.storeError(err, "failed to load PAF history")
	}
	return entries, nil
}

// List returns the PAFs the actor may see: every PAF in the scope for
// administrators, otherwise the PAFs the actor created or is agent on.
// status filters when non-empty.
func (s *Service) List(ctx context.Context, status models.Status) ([]*models.PAF, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	if status != "" && !status.Valid() {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown status "+string(status))
	}

	if actor.Role == domain.RoleAdmin {
		pafs, err := s.store.ListByScope(ctx, actor.ScopeID, status)
		if err != nil {
			return nil, s.storeError(err, "failed to list PAFs")
		}
		return pafs, nil
	}

	pafs, err := s.store.ListByParty(ctx, actor.ActorID)
	if err != nil {
		return nil, s.storeError(err, "failed to list PAFs")
	}
	if status == "" {
		return pafs, nil
	}
	filtered := pafs[:0]
	for _, p := range pafs {
		if p.Status == status {
			filtered = append(filtered, p)
		}
	}
	return filtered, nil
}

func (s *Service) notifyAsync(ctx context.Context, p *models.PAF, edge Edge) {
	if s.notifier == nil {
		return
	}
	// Detach from the request context so cancellation after the response
	// does not drop the notification.
	detached := context.WithoutCancel(ctx)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.ErrorContext(detached, "notifier panic", "panic", r, "paf_id", p.ID)
			}
		}()
		s.notifier.TransitionCompleted(detached, p, edge)
	}()
}

func (s *Service) storeError(err error, msg string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "PAF not found")
	case errors.Is(err, sentinel.ErrStateConflict):
		return dErrors.New(dErrors.CodeConflict, "PAF was modified concurrently; re-read and retry")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}

func requireActor(ctx context.Context) (domain.ActorContext, error) {
	actor := requestcontext.Actor(ctx)
	if actor.IsZero() {
		return domain.ActorContext{}, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	return actor, nil
}

func canView(actor domain.ActorContext, p *models.PAF) error {
	if isCreator(actor, p) || isScopeAdmin(actor, p) {
		return nil
	}
	if p.HasAgent() && actor.ActorID == p.AgentID {
		return nil
	}
	return dErrors.New(dErrors.CodeForbidden, "not a party to this PAF")
}

func stateConflict(edge Edge, current models.Status) error {
	return dErrors.New(dErrors.CodeConflict,
		fmt.Sprintf("cannot %s a PAF in status %s", edge, current))
}

func badPayload(edge Edge) error {
	return dErrors.New(dErrors.CodeBadRequest, "wrong payload type for "+string(edge))
}

func historyNotes(payload models.Payload) string {
	switch p := payload.(type) {
	case models.SubmitPayload:
		return p.Notes
	case models.SignaturePayload:
		return "signed by " + p.SignerName + ", " + p.SignerTitle
	case models.ApprovalPayload:
		if p.Notes != "" {
			return "USPS approval " + p.Reference + ": " + p.Notes
		}
		return "USPS approval " + p.Reference
	case models.ValidationPayload:
		return "validated by " + p.SignerName + ", " + p.SignerTitle
	case models.RejectPayload:
		return p.Reason
	case models.RenewPayload:
		return p.Notes
	default:
		return ""
	}
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "success"
	case dErrors.HasCode(err, dErrors.CodeConflict):
		return "conflict"
	case dErrors.HasCode(err, dErrors.CodeForbidden):
		return "forbidden"
	default:
		return "error"
	}
}
