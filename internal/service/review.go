package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/boddenberg/pdv-assistant-bfa-go/internal/domain"
	"github.com/boddenberg/pdv-assistant-bfa-go/internal/infra/observability"
	"github.com/boddenberg/pdv-assistant-bfa-go/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var reviewTracer = otel.Tracer("service/review")

// Operator-facing messages set on the snapshot.
const (
	msgReviewReady = "Confira os dados antes de salvar."
	msgSaved       = "Lançamento salvo!"
)

// ReviewSessionDeps groups the collaborators of a review session.
type ReviewSessionDeps struct {
	Classifier port.Classifier
	Committer  Committer
	Metrics    *observability.Metrics
	Logger     *zap.Logger

	// DismissDelay is how long a session stays in SUCCESS before OnDismiss runs.
	DismissDelay time.Duration
	// OnDismiss closes the session after a successful commit. Optional.
	OnDismiss func(sessionID string)
}

// ReviewSession owns one in-flight draft from text entry to commit.
//
//	INPUT ──Submit──▶ PROCESSING ──▶ REVIEW ──Commit──▶ SUCCESS
//	                      │             │  ▲
//	                      ▼             └──┘ commit failed, draft kept
//	                    INPUT (erro ou nada entendido)
//
// The classifier and store are called without holding the lock; the
// PROCESSING phase and the committing flag reject re-entrant calls with
// *domain.ErrBusy meanwhile.
type ReviewSession struct {
	id      string
	storeID string
	context string
	deps    ReviewSessionDeps

	mu         sync.Mutex
	phase      domain.ReviewPhase
	draft      domain.Draft
	message    string
	committed  *domain.CommitResult
	committing bool
	dismiss    *time.Timer
	updatedAt  time.Time
}

// NewReviewSession creates a session in INPUT. contextTag defaults to quick-capture.
func NewReviewSession(storeID, contextTag string, deps ReviewSessionDeps) *ReviewSession {
	if contextTag != domain.ContextChat {
		contextTag = domain.ContextQuickCapture
	}
	s := &ReviewSession{
		id:        uuid.NewString(),
		storeID:   storeID,
		context:   contextTag,
		deps:      deps,
		phase:     domain.PhaseInput,
		updatedAt: time.Now(),
	}
	deps.Metrics.IncrSession(string(domain.PhaseInput))
	return s
}

// ID returns the session id.
func (s *ReviewSession) ID() string { return s.id }

// StoreID returns the store that owns the session.
func (s *ReviewSession) StoreID() string { return s.storeID }

// Snapshot returns a copy of the current state.
func (s *ReviewSession) Snapshot() *domain.SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *ReviewSession) snapshotLocked() *domain.SessionSnapshot {
	snap := &domain.SessionSnapshot{
		ID:        s.id,
		StoreID:   s.storeID,
		Context:   s.context,
		Phase:     s.phase,
		Message:   s.message,
		UpdatedAt: s.updatedAt,
	}
	if s.draft != nil {
		snap.Draft = domain.CloneDraft(s.draft)
		snap.Kind = s.draft.Kind()
	}
	if s.committed != nil {
		c := *s.committed
		snap.Committed = &c
	}
	return snap
}

// setPhaseLocked moves the session and records the transition.
func (s *ReviewSession) setPhaseLocked(p domain.ReviewPhase) {
	s.phase = p
	s.updatedAt = time.Now()
	s.deps.Metrics.IncrSession(string(p))
}

// Submit classifies text and, on success, holds the resulting draft in REVIEW.
// Only allowed in INPUT. On failure the session returns to INPUT with a
// message and no draft.
func (s *ReviewSession) Submit(ctx context.Context, text string) (*domain.SessionSnapshot, error) {
	text = strings.TrimSpace(text)

	s.mu.Lock()
	switch s.phase {
	case domain.PhaseInput:
	case domain.PhaseProcessing:
		s.mu.Unlock()
		return nil, &domain.ErrBusy{Operation: "classification"}
	default:
		phase := s.phase
		s.mu.Unlock()
		return nil, &domain.ErrInvalidPhase{Operation: "submit", Phase: string(phase)}
	}
	if text == "" {
		s.mu.Unlock()
		return nil, &domain.ErrValidation{Field: "text", Message: "must not be empty"}
	}
	s.draft = nil
	s.committed = nil
	s.message = ""
	s.setPhaseLocked(domain.PhaseProcessing)
	s.mu.Unlock()

	ctx, span := reviewTracer.Start(ctx, "ReviewSession.Submit")
	defer span.End()
	span.SetAttributes(
		attribute.String("session.id", s.id),
		attribute.String("session.context", s.context),
	)

	start := time.Now()
	candidates, err := s.deps.Classifier.Classify(ctx, text, s.context)
	s.deps.Metrics.RecordRequestDuration("classify", time.Since(start))

	var draft domain.Draft
	if err == nil {
		for _, c := range candidates {
			s.deps.Metrics.IncrCandidate(string(c.Kind()))
		}
		draft = BuildDraft(candidates)
		if draft == nil {
			err = &domain.ErrClassificationEmpty{Text: text}
		}
	} else {
		var transport *domain.ErrClassificationTransport
		if !errors.As(err, &transport) {
			err = &domain.ErrClassificationTransport{Err: err}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		span.RecordError(err)
		s.message = domain.UserMessage(err)
		s.setPhaseLocked(domain.PhaseInput)
		s.deps.Logger.Warn("classification failed",
			observability.TraceField(ctx),
			zap.String("session_id", s.id),
			zap.String("store_id", s.storeID),
			zap.Int("candidates", len(candidates)),
			zap.Error(err),
		)
		return s.snapshotLocked(), err
	}

	assignIdempotencyKey(draft)
	s.draft = draft
	s.message = msgReviewReady
	s.setPhaseLocked(domain.PhaseReview)
	s.deps.Logger.Info("draft ready for review",
		observability.TraceField(ctx),
		zap.String("session_id", s.id),
		zap.String("store_id", s.storeID),
		zap.String("kind", string(draft.Kind())),
		zap.Int("candidates", len(candidates)),
	)
	return s.snapshotLocked(), nil
}

// Edit overwrites fields of the held draft. Only allowed in REVIEW; the
// merge rules are not re-applied.
//
// Any accepted change gets a fresh idempotency key, so the next commit is
// not dropped as a duplicate of an earlier attempt. After a partial commit
// only the debt amount of a failed debt step stays editable.
func (s *ReviewSession) Edit(patch domain.DraftPatch) (*domain.SessionSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkReviewLocked("edit"); err != nil {
		return nil, err
	}
	fields := patchedFields(patch)
	if tx, ok := s.draft.(*domain.TransactionDraft); ok && tx.Written != nil {
		if locked := lockedFields(tx.Written, fields); len(locked) > 0 {
			return nil, &domain.ErrDraftLocked{Fields: locked}
		}
	}
	if err := applyPatch(s.draft, patch); err != nil {
		return nil, err
	}
	if len(fields) > 0 {
		assignIdempotencyKey(s.draft)
	}
	s.updatedAt = time.Now()
	return s.snapshotLocked(), nil
}

// Commit persists the held draft. On success the session enters SUCCESS and
// is dismissed after DismissDelay; on failure it stays in REVIEW with the
// draft intact so the operator can edit or retry.
func (s *ReviewSession) Commit(ctx context.Context) (*domain.SessionSnapshot, error) {
	s.mu.Lock()
	if err := s.checkReviewLocked("commit"); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.committing = true
	draft := domain.CloneDraft(s.draft)
	s.mu.Unlock()

	ctx, span := reviewTracer.Start(ctx, "ReviewSession.Commit")
	defer span.End()
	span.SetAttributes(
		attribute.String("session.id", s.id),
		attribute.String("draft.kind", string(draft.Kind())),
	)

	res, err := s.deps.Committer.Commit(ctx, s.storeID, draft)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.committing = false

	if err != nil {
		span.RecordError(err)
		var partial *domain.ErrCommitPartialFailure
		if tx, ok := s.draft.(*domain.TransactionDraft); ok && errors.As(err, &partial) {
			tx.Written = &domain.CommitProgress{
				TransactionID: partial.TransactionID,
				DebtID:        partial.DebtID,
				FailedStep:    partial.Step,
			}
		}
		s.message = domain.UserMessage(err)
		s.updatedAt = time.Now()
		return s.snapshotLocked(), err
	}

	s.draft = nil
	s.committed = res
	s.message = msgSaved
	s.setPhaseLocked(domain.PhaseSuccess)

	if s.deps.OnDismiss != nil {
		id := s.id
		s.dismiss = time.AfterFunc(s.deps.DismissDelay, func() { s.deps.OnDismiss(id) })
	}
	return s.snapshotLocked(), nil
}

// Reset returns to INPUT and drops any draft. Not allowed while a
// classification or commit is in flight.
func (s *ReviewSession) Reset() (*domain.SessionSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase == domain.PhaseProcessing {
		return nil, &domain.ErrBusy{Operation: "classification"}
	}
	if s.committing {
		return nil, &domain.ErrBusy{Operation: "commit"}
	}
	if s.dismiss != nil {
		s.dismiss.Stop()
		s.dismiss = nil
	}
	s.draft = nil
	s.committed = nil
	s.message = ""
	s.setPhaseLocked(domain.PhaseInput)
	return s.snapshotLocked(), nil
}

// Close stops the pending dismiss timer, if any.
func (s *ReviewSession) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dismiss != nil {
		s.dismiss.Stop()
		s.dismiss = nil
	}
}

func (s *ReviewSession) checkReviewLocked(op string) error {
	if s.committing {
		return &domain.ErrBusy{Operation: "commit"}
	}
	if s.phase == domain.PhaseProcessing {
		return &domain.ErrBusy{Operation: "classification"}
	}
	if s.phase != domain.PhaseReview || s.draft == nil {
		return &domain.ErrInvalidPhase{Operation: op, Phase: string(s.phase)}
	}
	return nil
}

func assignIdempotencyKey(d domain.Draft) {
	switch v := d.(type) {
	case *domain.TransactionDraft:
		v.IdempotencyKey = uuid.NewString()
	case *domain.StockDraft:
		v.IdempotencyKey = uuid.NewString()
	case *domain.ServiceOrderDraft:
		v.IdempotencyKey = uuid.NewString()
	}
}

func patchedFields(p domain.DraftPatch) []string {
	var fields []string
	if p.Description != nil {
		fields = append(fields, "description")
	}
	if p.Amount != nil {
		fields = append(fields, "amount")
	}
	if p.DebtAmount != nil {
		fields = append(fields, "debt_amount")
	}
	if p.Items != nil {
		fields = append(fields, "items")
	}
	if p.CustomerName != nil {
		fields = append(fields, "customer_name")
	}
	if p.PaymentMethod != nil {
		fields = append(fields, "payment_method")
	}
	return fields
}

// lockedFields returns the fields a partially committed draft can no longer
// change: everything except debt_amount, and that one too unless the debt
// step is the one that failed.
func lockedFields(w *domain.CommitProgress, fields []string) []string {
	var locked []string
	for _, f := range fields {
		if f == "debt_amount" && w.FailedStep == "debt" && w.DebtID == "" {
			continue
		}
		locked = append(locked, f)
	}
	return locked
}

// applyPatch overwrites the patched fields on d in place.
func applyPatch(d domain.Draft, p domain.DraftPatch) error {
	if p.Amount != nil && p.Amount.IsNegative() {
		return &domain.ErrValidation{Field: "amount", Message: "must not be negative"}
	}
	if p.DebtAmount != nil && p.DebtAmount.IsNegative() {
		return &domain.ErrValidation{Field: "debt_amount", Message: "must not be negative"}
	}

	switch v := d.(type) {
	case *domain.TransactionDraft:
		if p.Description != nil {
			desc := strings.TrimSpace(*p.Description)
			if desc == "" {
				return &domain.ErrValidation{Field: "description", Message: "must not be empty"}
			}
			v.Description = desc
		}
		if p.Amount != nil {
			v.Amount = p.Amount.Round(2)
		}
		if p.DebtAmount != nil {
			v.DebtAmount = p.DebtAmount.Round(2)
		}
		if p.Items != nil {
			v.Items = NormalizeItems(*p.Items)
		}
		if p.CustomerName != nil {
			v.CustomerName = strings.TrimSpace(*p.CustomerName)
		}
		if p.PaymentMethod != nil {
			v.PaymentMethod = NormalizePaymentMethod(*p.PaymentMethod)
		}
		return nil

	case *domain.ServiceOrderDraft:
		if p.DebtAmount != nil || p.Items != nil || p.PaymentMethod != nil {
			return &domain.ErrValidation{Field: "draft", Message: "field not editable on a service order"}
		}
		if p.Description != nil {
			v.ProblemDescription = strings.TrimSpace(*p.Description)
		}
		if p.Amount != nil {
			v.EstimatedPrice = p.Amount.Round(2)
		}
		if p.CustomerName != nil {
			v.CustomerName = strings.TrimSpace(*p.CustomerName)
		}
		return nil
	}
	return &domain.ErrValidation{Field: "draft", Message: "draft of kind " + string(d.Kind()) + " is not editable"}
}
