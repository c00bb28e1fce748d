package speech

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/boddenberg/pdv-assistant-bfa-go/internal/domain"

	"go.uber.org/zap"
)

// Phase is the lifecycle of a recognition session.
type Phase string

const (
	PhaseIdle         Phase = "IDLE"
	PhaseInitializing Phase = "INITIALIZING"
	PhaseListening    Phase = "LISTENING"
)

// Status messages shown next to the microphone button.
const (
	statusInitializing = "Iniciando microfone..."
	statusListening    = "Ouvindo..."
)

// Default timings.
const (
	DefaultStartTimeout  = 8 * time.Second
	DefaultBlockedWindow = 500 * time.Millisecond
)

// ErrSessionActive is returned by Start while a session is already running.
// Callers that want "press again to stop" semantics use Toggle.
var ErrSessionActive = errors.New("speech: session already active")

// Callbacks receive the controller's output. Any of them may be nil. They
// are invoked without the controller lock held, so they may call back into
// the controller.
type Callbacks struct {
	OnTranscript func(text string)
	OnPhase      func(phase Phase, status string)
	OnError      func(err *domain.SpeechError)
}

// Options tune the controller timings.
type Options struct {
	// StartTimeout bounds INITIALIZING; on expiry the session is aborted with
	// PERMISSION_OR_TIMEOUT.
	StartTimeout time.Duration
	// BlockedWindow: an end event this soon after Start, still INITIALIZING,
	// is reported as BLOCKED.
	BlockedWindow time.Duration
	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
}

// Session is a read-only view of the recognition state.
type Session struct {
	Phase     Phase     `json:"phase"`
	StartedAt time.Time `json:"started_at,omitempty"`
	Status    string    `json:"status,omitempty"`
}

// Controller owns a single Engine and runs at most one session at a time.
//
// Every session gets a generation number; engine events are delivered
// through a sink bound to that generation, so events from an aborted or
// finished session are dropped instead of corrupting the next one.
type Controller struct {
	engine Engine
	cb     Callbacks
	opts   Options
	logger *zap.Logger

	mu        sync.Mutex
	gen       uint64
	phase     Phase
	startedAt time.Time
	status    string
	timer     *time.Timer
}

// NewController creates an idle controller.
func NewController(engine Engine, cb Callbacks, opts Options, logger *zap.Logger) *Controller {
	if opts.StartTimeout <= 0 {
		opts.StartTimeout = DefaultStartTimeout
	}
	if opts.BlockedWindow <= 0 {
		opts.BlockedWindow = DefaultBlockedWindow
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Controller{
		engine: engine,
		cb:     cb,
		opts:   opts,
		logger: logger,
		phase:  PhaseIdle,
	}
}

// Session returns the current recognition state.
func (c *Controller) Session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Session{Phase: c.phase, StartedAt: c.startedAt, Status: c.status}
}

// Active reports whether a session is initializing or listening.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase != PhaseIdle
}

// Start begins a session: IDLE → INITIALIZING, with the start timeout armed.
// It fails with UNSUPPORTED when the engine is unavailable and with
// ErrSessionActive when a session is already running.
func (c *Controller) Start() error {
	if c.engine == nil || !c.engine.Supported() {
		err := &domain.SpeechError{Kind: domain.SpeechUnsupported}
		c.emitError(err)
		return err
	}

	c.mu.Lock()
	if c.phase != PhaseIdle {
		c.mu.Unlock()
		return ErrSessionActive
	}
	c.gen++
	gen := c.gen
	c.phase = PhaseInitializing
	c.startedAt = c.opts.Now()
	c.status = statusInitializing
	c.timer = time.AfterFunc(c.opts.StartTimeout, func() { c.onTimeout(gen) })
	c.mu.Unlock()

	c.emitPhase(PhaseInitializing, statusInitializing)

	if err := c.engine.Begin(&sink{c: c, gen: gen}); err != nil {
		if c.finish(gen) {
			c.engine.Abort()
			speechErr := &domain.SpeechError{Kind: domain.SpeechOther, Code: err.Error()}
			c.emitError(speechErr)
			c.emitPhase(PhaseIdle, "")
			return speechErr
		}
		return err
	}
	return nil
}

// Stop ends the current session, if any. Calling it while idle does nothing.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.phase == PhaseIdle {
		c.mu.Unlock()
		return
	}
	c.finishLocked()
	c.mu.Unlock()

	c.engine.Abort()
	c.emitPhase(PhaseIdle, "")
}

// Toggle stops a running session or starts a new one.
func (c *Controller) Toggle() error {
	if c.Active() {
		c.Stop()
		return nil
	}
	return c.Start()
}

// finish ends session gen if it is still current. It reports whether it did.
func (c *Controller) finish(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen || c.phase == PhaseIdle {
		return false
	}
	c.finishLocked()
	return true
}

func (c *Controller) finishLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.gen++
	c.phase = PhaseIdle
	c.status = ""
	c.startedAt = time.Time{}
}

func (c *Controller) onTimeout(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || c.phase != PhaseInitializing {
		c.mu.Unlock()
		return
	}
	c.finishLocked()
	c.mu.Unlock()

	c.logger.Warn("speech start timed out", zap.Duration("timeout", c.opts.StartTimeout))
	c.engine.Abort()
	c.emitError(&domain.SpeechError{Kind: domain.SpeechPermissionOrTimeout})
	c.emitPhase(PhaseIdle, "")
}

func (c *Controller) onStart(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || c.phase != PhaseInitializing {
		c.mu.Unlock()
		return
	}
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.phase = PhaseListening
	c.status = statusListening
	c.mu.Unlock()

	c.emitPhase(PhaseListening, statusListening)
}

func (c *Controller) onResult(gen uint64, transcript string, final bool) {
	transcript = strings.TrimSpace(transcript)
	if !final || transcript == "" {
		return
	}
	if !c.finish(gen) {
		return
	}

	c.engine.Abort()
	if c.cb.OnTranscript != nil {
		c.cb.OnTranscript(transcript)
	}
	c.emitPhase(PhaseIdle, "")
}

func (c *Controller) onEnd(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || c.phase == PhaseIdle {
		c.mu.Unlock()
		return
	}
	blocked := c.phase == PhaseInitializing && c.opts.Now().Sub(c.startedAt) < c.opts.BlockedWindow
	c.finishLocked()
	c.mu.Unlock()

	if blocked {
		c.emitError(&domain.SpeechError{Kind: domain.SpeechBlocked})
	}
	c.emitPhase(PhaseIdle, "")
}

func (c *Controller) onError(gen uint64, code string) {
	if !c.finish(gen) {
		return
	}

	c.engine.Abort()
	if kind := MapErrorCode(code); kind != domain.SpeechAborted {
		c.emitError(&domain.SpeechError{Kind: kind, Code: code})
	}
	c.emitPhase(PhaseIdle, "")
}

func (c *Controller) emitPhase(p Phase, status string) {
	if c.cb.OnPhase != nil {
		c.cb.OnPhase(p, status)
	}
}

func (c *Controller) emitError(err *domain.SpeechError) {
	c.logger.Info("speech error", zap.String("kind", string(err.Kind)), zap.String("code", err.Code))
	if c.cb.OnError != nil {
		c.cb.OnError(err)
	}
}

// MapErrorCode maps a raw engine code to the error taxonomy.
func MapErrorCode(code string) domain.SpeechErrorKind {
	switch code {
	case CodeNotAllowed:
		return domain.SpeechPermissionDenied
	case CodeNoSpeech:
		return domain.SpeechNoSpeech
	case CodeNetwork:
		return domain.SpeechNetwork
	case CodeAborted:
		return domain.SpeechAborted
	default:
		return domain.SpeechOther
	}
}

// sink forwards engine events for one session generation.
type sink struct {
	c   *Controller
	gen uint64
}

func (s *sink) OnStart()                         { s.c.onStart(s.gen) }
func (s *sink) OnResult(text string, final bool) { s.c.onResult(s.gen, text, final) }
func (s *sink) OnEnd()                           { s.c.onEnd(s.gen) }
func (s *sink) OnError(code string)              { s.c.onError(s.gen, code) }
