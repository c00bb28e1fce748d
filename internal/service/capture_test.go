package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/boddenberg/pdv-assistant-bfa-go/internal/domain"
	"github.com/boddenberg/pdv-assistant-bfa-go/internal/infra/cache"
	"github.com/boddenberg/pdv-assistant-bfa-go/internal/infra/observability"
	"github.com/boddenberg/pdv-assistant-bfa-go/internal/service"
	"github.com/boddenberg/pdv-assistant-bfa-go/internal/speech"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// scriptedEngine replays a fixed event script on Begin.
type scriptedEngine struct {
	supported bool
	script    func(ev speech.Events)
}

func (e *scriptedEngine) Supported() bool { return e.supported }

func (e *scriptedEngine) Begin(ev speech.Events) error {
	go e.script(ev)
	return nil
}

func (e *scriptedEngine) Abort() {}

type scriptedFactory struct {
	engine *scriptedEngine
	audio  []byte
}

func (f *scriptedFactory) NewEngine(audio []byte, _ string) speech.Engine {
	f.audio = audio
	return f.engine
}

func newCaptureService(t *testing.T, classifier *mockClassifier, store *mockLedgerStore, engines service.EngineFactory) *service.CaptureService {
	t.Helper()
	sessions := cache.New[*service.ReviewSession](time.Minute)
	t.Cleanup(sessions.Stop)

	metrics := observability.NewMetrics()
	return service.NewCaptureService(
		sessions,
		classifier,
		service.NewCommitCoordinator(store, service.NewPageNavigator(), metrics, zap.NewNop()),
		engines,
		service.CaptureConfig{
			SuccessDismissDelay: 20 * time.Millisecond,
			VoiceTimeout:        time.Second,
			Speech:              speech.Options{StartTimeout: 200 * time.Millisecond, BlockedWindow: 10 * time.Millisecond},
		},
		metrics,
		zap.NewNop(),
	)
}

func TestCaptureService_FullTextFlow(t *testing.T) {
	classifier := &mockClassifier{}
	classifier.On("Classify", mock.Anything, "vendi bolo fiado pro João", domain.ContextQuickCapture).
		Return([]domain.ActionCandidate{
			domain.TransactionCandidate{Amount: dec("30"), DebtAmount: dec("20"), Description: "Bolo", CustomerName: "João"},
		}, nil).Once()
	store := &mockLedgerStore{}
	store.On("SaveTransaction", mock.Anything, mock.Anything).Return(nil).Once()
	store.On("SaveDebt", mock.Anything, mock.Anything).Return(nil).Once()

	svc := newCaptureService(t, classifier, store, nil)
	ctx := context.Background()

	opened := svc.Open(ctx, "store-1", "")
	assert.Equal(t, domain.PhaseInput, opened.Phase)
	assert.Equal(t, domain.ContextQuickCapture, opened.Context)

	snap, err := svc.SubmitText(ctx, "store-1", opened.ID, "vendi bolo fiado pro João")
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseReview, snap.Phase)

	snap, err = svc.Commit(ctx, "store-1", opened.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseSuccess, snap.Phase)
	assert.Equal(t, []string{"transaction", "debt"}, store.order())

	// dismissed after SuccessDismissDelay
	assert.Eventually(t, func() bool {
		_, err := svc.Get("store-1", opened.ID)
		return err != nil
	}, time.Second, 5*time.Millisecond)
}

func TestCaptureService_OtherStoreCannotSeeSession(t *testing.T) {
	svc := newCaptureService(t, &mockClassifier{}, &mockLedgerStore{}, nil)
	opened := svc.Open(context.Background(), "store-1", domain.ContextChat)

	_, err := svc.Get("store-2", opened.ID)

	var nf *domain.ErrNotFound
	assert.ErrorAs(t, err, &nf)
}

func TestCaptureService_Close(t *testing.T) {
	svc := newCaptureService(t, &mockClassifier{}, &mockLedgerStore{}, nil)
	opened := svc.Open(context.Background(), "store-1", "")

	require.NoError(t, svc.Close("store-1", opened.ID))

	_, err := svc.Get("store-1", opened.ID)
	var nf *domain.ErrNotFound
	assert.ErrorAs(t, err, &nf)
}

func TestCaptureService_VoiceTranscriptIsSubmitted(t *testing.T) {
	classifier := &mockClassifier{}
	classifier.On("Classify", mock.Anything, "vendi um café no pix", mock.Anything).
		Return([]domain.ActionCandidate{domain.TransactionCandidate{Amount: dec("5"), PaymentMethod: "pix"}}, nil).Once()

	factory := &scriptedFactory{engine: &scriptedEngine{supported: true, script: func(ev speech.Events) {
		ev.OnStart()
		ev.OnResult("vendi um", false)
		ev.OnResult("vendi um café no pix", true)
		ev.OnEnd()
	}}}
	svc := newCaptureService(t, classifier, &mockLedgerStore{}, factory)
	opened := svc.Open(context.Background(), "store-1", "")

	snap, err := svc.SubmitVoice(context.Background(), "store-1", opened.ID, []byte("RIFF"), "audio/wav")

	require.NoError(t, err)
	assert.Equal(t, domain.PhaseReview, snap.Phase)
	assert.Equal(t, []byte("RIFF"), factory.audio)
	assert.Equal(t, domain.PaymentPix, snap.Draft.(*domain.TransactionDraft).PaymentMethod)
}

func TestCaptureService_VoiceErrorsLeaveSessionUntouched(t *testing.T) {
	tests := []struct {
		name   string
		engine *scriptedEngine
		want   domain.SpeechErrorKind
	}{
		{
			name:   "unsupported",
			engine: &scriptedEngine{supported: false},
			want:   domain.SpeechUnsupported,
		},
		{
			name: "permission denied",
			engine: &scriptedEngine{supported: true, script: func(ev speech.Events) {
				ev.OnError("not-allowed")
			}},
			want: domain.SpeechPermissionDenied,
		},
		{
			name: "ended without result",
			engine: &scriptedEngine{supported: true, script: func(ev speech.Events) {
				ev.OnStart()
				time.Sleep(20 * time.Millisecond)
				ev.OnEnd()
			}},
			want: domain.SpeechNoSpeech,
		},
		{
			name: "never started",
			engine: &scriptedEngine{supported: true, script: func(speech.Events) {
			}},
			want: domain.SpeechPermissionOrTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			classifier := &mockClassifier{}
			svc := newCaptureService(t, classifier, &mockLedgerStore{}, &scriptedFactory{engine: tt.engine})
			opened := svc.Open(context.Background(), "store-1", "")

			_, err := svc.SubmitVoice(context.Background(), "store-1", opened.ID, []byte("x"), "audio/wav")

			var speechErr *domain.SpeechError
			require.ErrorAs(t, err, &speechErr)
			assert.Equal(t, tt.want, speechErr.Kind)

			snap, err := svc.Get("store-1", opened.ID)
			require.NoError(t, err)
			assert.Equal(t, domain.PhaseInput, snap.Phase)
			classifier.AssertNotCalled(t, "Classify", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestCaptureService_VoiceWithoutEngines(t *testing.T) {
	svc := newCaptureService(t, &mockClassifier{}, &mockLedgerStore{}, nil)
	opened := svc.Open(context.Background(), "store-1", "")

	_, err := svc.SubmitVoice(context.Background(), "store-1", opened.ID, nil, "")

	var speechErr *domain.SpeechError
	require.ErrorAs(t, err, &speechErr)
	assert.Equal(t, domain.SpeechUnsupported, speechErr.Kind)
}

// countingCache counts writes so lookups can be checked to never add entries.
type countingCache struct {
	*cache.InMemory[*service.ReviewSession]
	sets int
}

func (c *countingCache) Set(key string, value *service.ReviewSession) {
	c.sets++
	c.InMemory.Set(key, value)
}

func TestCaptureService_LookupNeverReaddsDismissedSession(t *testing.T) {
	sessions := &countingCache{InMemory: cache.New[*service.ReviewSession](time.Minute)}
	t.Cleanup(sessions.Stop)

	metrics := observability.NewMetrics()
	svc := service.NewCaptureService(
		sessions,
		&mockClassifier{},
		service.NewCommitCoordinator(&mockLedgerStore{}, service.NewPageNavigator(), metrics, zap.NewNop()),
		nil,
		service.CaptureConfig{SuccessDismissDelay: time.Minute},
		metrics,
		zap.NewNop(),
	)

	opened := svc.Open(context.Background(), "store-1", "")
	for i := 0; i < 3; i++ {
		_, err := svc.Get("store-1", opened.ID)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, sessions.sets)

	sessions.Delete(opened.ID)
	_, err := svc.Get("store-1", opened.ID)

	var nf *domain.ErrNotFound
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, 0, sessions.Len())
	assert.Equal(t, 1, sessions.sets)
}
