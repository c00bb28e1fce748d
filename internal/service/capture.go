package service

import (
	"context"
	"time"

	"github.com/boddenberg/pdv-assistant-bfa-go/internal/domain"
	"github.com/boddenberg/pdv-assistant-bfa-go/internal/infra/observability"
	"github.com/boddenberg/pdv-assistant-bfa-go/internal/port"
	"github.com/boddenberg/pdv-assistant-bfa-go/internal/speech"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var captureTracer = otel.Tracer("service/capture")

// EngineFactory builds a one-shot speech engine for an uploaded recording.
type EngineFactory interface {
	NewEngine(audio []byte, contentType string) speech.Engine
}

// CaptureConfig holds the timings of the capture pipeline.
type CaptureConfig struct {
	SuccessDismissDelay time.Duration
	VoiceTimeout        time.Duration
	Speech              speech.Options
}

// CaptureService keeps the open review sessions of every store and routes
// text and voice input into them.
type CaptureService struct {
	sessions   port.Cache[*ReviewSession]
	classifier port.Classifier
	committer  Committer
	engines    EngineFactory
	cfg        CaptureConfig
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// NewCaptureService creates the service with all dependencies injected.
// engines may be nil, in which case voice capture reports UNSUPPORTED.
func NewCaptureService(
	sessions port.Cache[*ReviewSession],
	classifier port.Classifier,
	committer Committer,
	engines EngineFactory,
	cfg CaptureConfig,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *CaptureService {
	return &CaptureService{
		sessions:   sessions,
		classifier: classifier,
		committer:  committer,
		engines:    engines,
		cfg:        cfg,
		metrics:    metrics,
		logger:     logger,
	}
}

// Open starts a new review session in INPUT for storeID.
func (s *CaptureService) Open(ctx context.Context, storeID, contextTag string) *domain.SessionSnapshot {
	_, span := captureTracer.Start(ctx, "CaptureService.Open")
	defer span.End()

	rs := NewReviewSession(storeID, contextTag, ReviewSessionDeps{
		Classifier:   s.classifier,
		Committer:    s.committer,
		Metrics:      s.metrics,
		Logger:       s.logger,
		DismissDelay: s.cfg.SuccessDismissDelay,
		OnDismiss:    s.dismiss,
	})
	s.sessions.Set(rs.ID(), rs)
	span.SetAttributes(attribute.String("session.id", rs.ID()))

	s.logger.Info("capture session opened",
		zap.String("session_id", rs.ID()),
		zap.String("store_id", storeID),
	)
	return rs.Snapshot()
}

// Get returns the current state of a session.
func (s *CaptureService) Get(storeID, sessionID string) (*domain.SessionSnapshot, error) {
	rs, err := s.lookup(storeID, sessionID)
	if err != nil {
		return nil, err
	}
	return rs.Snapshot(), nil
}

// SubmitText classifies text inside the session.
func (s *CaptureService) SubmitText(ctx context.Context, storeID, sessionID, text string) (*domain.SessionSnapshot, error) {
	rs, err := s.lookup(storeID, sessionID)
	if err != nil {
		return nil, err
	}
	return rs.Submit(ctx, text)
}

type voiceOutcome struct {
	transcript string
	err        *domain.SpeechError
	idle       bool
}

// SubmitVoice runs a one-shot speech session over audio and submits the
// transcript. Speech errors leave the review session untouched.
func (s *CaptureService) SubmitVoice(ctx context.Context, storeID, sessionID string, audio []byte, contentType string) (*domain.SessionSnapshot, error) {
	rs, err := s.lookup(storeID, sessionID)
	if err != nil {
		return nil, err
	}

	ctx, span := captureTracer.Start(ctx, "CaptureService.SubmitVoice")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sessionID))

	var engine speech.Engine
	if s.engines != nil {
		engine = s.engines.NewEngine(audio, contentType)
	}

	outcomes := make(chan voiceOutcome, 4)
	send := func(o voiceOutcome) {
		select {
		case outcomes <- o:
		default:
		}
	}
	ctrl := speech.NewController(engine, speech.Callbacks{
		OnTranscript: func(text string) { send(voiceOutcome{transcript: text}) },
		OnError: func(e *domain.SpeechError) {
			s.metrics.IncrSpeechError(string(e.Kind))
			send(voiceOutcome{err: e})
		},
		OnPhase: func(p speech.Phase, _ string) {
			if p == speech.PhaseIdle {
				send(voiceOutcome{idle: true})
			}
		},
	}, s.cfg.Speech, s.logger)

	if err := ctrl.Start(); err != nil {
		span.RecordError(err)
		return nil, err
	}

	timeout := s.cfg.VoiceTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var outcome voiceOutcome
	select {
	case outcome = <-outcomes:
	case <-timer.C:
		ctrl.Stop()
		outcome = voiceOutcome{err: &domain.SpeechError{Kind: domain.SpeechNoSpeech}}
	case <-ctx.Done():
		ctrl.Stop()
		return nil, ctx.Err()
	}

	switch {
	case outcome.err != nil:
		span.RecordError(outcome.err)
		return nil, outcome.err
	case outcome.idle:
		// Session ended normally without a final result.
		s.metrics.IncrSpeechError(string(domain.SpeechNoSpeech))
		return nil, &domain.SpeechError{Kind: domain.SpeechNoSpeech}
	}

	s.logger.Debug("voice transcript",
		zap.String("session_id", sessionID),
		zap.Int("chars", len(outcome.transcript)),
	)
	return rs.Submit(ctx, outcome.transcript)
}

// Edit applies a field-level patch to the held draft.
func (s *CaptureService) Edit(storeID, sessionID string, patch domain.DraftPatch) (*domain.SessionSnapshot, error) {
	rs, err := s.lookup(storeID, sessionID)
	if err != nil {
		return nil, err
	}
	return rs.Edit(patch)
}

// Commit persists the held draft.
func (s *CaptureService) Commit(ctx context.Context, storeID, sessionID string) (*domain.SessionSnapshot, error) {
	rs, err := s.lookup(storeID, sessionID)
	if err != nil {
		return nil, err
	}
	return rs.Commit(ctx)
}

// Reset returns the session to INPUT.
func (s *CaptureService) Reset(storeID, sessionID string) (*domain.SessionSnapshot, error) {
	rs, err := s.lookup(storeID, sessionID)
	if err != nil {
		return nil, err
	}
	return rs.Reset()
}

// Close discards the session.
func (s *CaptureService) Close(storeID, sessionID string) error {
	rs, err := s.lookup(storeID, sessionID)
	if err != nil {
		return err
	}
	rs.Close()
	s.sessions.Delete(sessionID)
	return nil
}

// lookup finds the session and refreshes its TTL. Sessions of another store
// are reported as not found.
func (s *CaptureService) lookup(storeID, sessionID string) (*ReviewSession, error) {
	rs, ok := s.sessions.Touch(sessionID)
	if !ok || rs.StoreID() != storeID {
		return nil, &domain.ErrNotFound{Resource: "capture session", ID: sessionID}
	}
	return rs, nil
}

func (s *CaptureService) dismiss(sessionID string) {
	if rs, ok := s.sessions.Get(sessionID); ok {
		rs.Close()
	}
	s.sessions.Delete(sessionID)
	s.logger.Debug("capture session dismissed", zap.String("session_id", sessionID))
}
