package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/boddenberg/pdv-assistant-bfa-go/internal/domain"
	"github.com/boddenberg/pdv-assistant-bfa-go/internal/infra/observability"
	"github.com/boddenberg/pdv-assistant-bfa-go/internal/port"
	"github.com/boddenberg/pdv-assistant-bfa-go/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newSession(classifier port.Classifier, store *mockLedgerStore, onDismiss func(string)) *service.ReviewSession {
	metrics := observability.NewMetrics()
	return service.NewReviewSession("store-1", domain.ContextQuickCapture, service.ReviewSessionDeps{
		Classifier:   classifier,
		Committer:    service.NewCommitCoordinator(store, service.NewPageNavigator(), metrics, zap.NewNop()),
		Metrics:      metrics,
		Logger:       zap.NewNop(),
		DismissDelay: 10 * time.Millisecond,
		OnDismiss:    onDismiss,
	})
}

func saleCandidates() []domain.ActionCandidate {
	return []domain.ActionCandidate{
		domain.TransactionCandidate{Amount: dec("30"), Description: "Refrigerante", PaymentMethod: "pix"},
		domain.TransactionCandidate{Amount: dec("20"), Description: "Salgado"},
	}
}

func TestReviewSession_SubmitMovesToReview(t *testing.T) {
	classifier := &mockClassifier{}
	classifier.On("Classify", mock.Anything, "refri e salgado", domain.ContextQuickCapture).
		Return(saleCandidates(), nil).Once()

	s := newSession(classifier, &mockLedgerStore{}, nil)
	snap, err := s.Submit(context.Background(), "  refri e salgado ")

	require.NoError(t, err)
	assert.Equal(t, domain.PhaseReview, snap.Phase)
	assert.Equal(t, domain.ActionTransaction, snap.Kind)
	tx := snap.Draft.(*domain.TransactionDraft)
	assert.Equal(t, "Refrigerante + Salgado", tx.Description)
	assert.True(t, tx.Amount.Equal(dec("50")))
	assert.NotEmpty(t, tx.IdempotencyKey)
	classifier.AssertExpectations(t)
}

func TestReviewSession_EmptyClassificationReturnsToInput(t *testing.T) {
	classifier := &mockClassifier{}
	classifier.On("Classify", mock.Anything, mock.Anything, mock.Anything).
		Return([]domain.ActionCandidate{}, nil).Once()

	s := newSession(classifier, &mockLedgerStore{}, nil)
	snap, err := s.Submit(context.Background(), "bom dia")

	var empty *domain.ErrClassificationEmpty
	require.ErrorAs(t, err, &empty)
	assert.Equal(t, domain.PhaseInput, snap.Phase)
	assert.Nil(t, snap.Draft)
	assert.Equal(t, "Não entendi o comando. Tente descrever de outra forma.", snap.Message)
}

func TestReviewSession_TransportErrorReturnsToInput(t *testing.T) {
	classifier := &mockClassifier{}
	classifier.On("Classify", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, &domain.ErrExternalService{Service: "classifier", Err: errors.New("503")}).Once()

	s := newSession(classifier, &mockLedgerStore{}, nil)
	snap, err := s.Submit(context.Background(), "vendi um bolo")

	var transport *domain.ErrClassificationTransport
	require.ErrorAs(t, err, &transport)
	var ext *domain.ErrExternalService
	assert.ErrorAs(t, err, &ext)
	assert.Equal(t, domain.PhaseInput, snap.Phase)
	assert.NotEmpty(t, snap.Message)
}

func TestReviewSession_SubmitRejectsEmptyText(t *testing.T) {
	s := newSession(&mockClassifier{}, &mockLedgerStore{}, nil)

	_, err := s.Submit(context.Background(), "   ")

	var v *domain.ErrValidation
	require.ErrorAs(t, err, &v)
	assert.Equal(t, domain.PhaseInput, s.Snapshot().Phase)
}

func TestReviewSession_ReentrantSubmitIsBusy(t *testing.T) {
	classifier := newBlockingClassifier(saleCandidates())
	s := newSession(classifier, &mockLedgerStore{}, nil)

	done := make(chan error, 1)
	go func() {
		_, err := s.Submit(context.Background(), "refri e salgado")
		done <- err
	}()
	<-classifier.entered

	assert.Equal(t, domain.PhaseProcessing, s.Snapshot().Phase)

	_, err := s.Submit(context.Background(), "outra coisa")
	var busy *domain.ErrBusy
	assert.ErrorAs(t, err, &busy)

	_, err = s.Reset()
	assert.ErrorAs(t, err, &busy)

	_, err = s.Edit(domain.DraftPatch{})
	assert.ErrorAs(t, err, &busy)

	close(classifier.release)
	require.NoError(t, <-done)
	assert.Equal(t, domain.PhaseReview, s.Snapshot().Phase)
}

func TestReviewSession_EditOnlyInReview(t *testing.T) {
	s := newSession(&mockClassifier{}, &mockLedgerStore{}, nil)

	desc := "Outra"
	_, err := s.Edit(domain.DraftPatch{Description: &desc})

	var phase *domain.ErrInvalidPhase
	assert.ErrorAs(t, err, &phase)
}

func TestReviewSession_EditDoesNotRemerge(t *testing.T) {
	classifier := &mockClassifier{}
	classifier.On("Classify", mock.Anything, mock.Anything, mock.Anything).Return([]domain.ActionCandidate{
		domain.TransactionCandidate{
			Items: []domain.LineItem{{Name: "camisa", Quantity: dec("2"), UnitPrice: dec("50")}},
		},
	}, nil).Once()

	s := newSession(classifier, &mockLedgerStore{}, nil)
	_, err := s.Submit(context.Background(), "vendi 2 camisas")
	require.NoError(t, err)

	amount := dec("90")
	debt := dec("10")
	customer := " João "
	payment := "Cartão Master parcelado"
	items := []domain.LineItem{{Name: "camisa", Quantity: dec("0"), UnitPrice: dec("50")}}
	snap, err := s.Edit(domain.DraftPatch{
		Amount:        &amount,
		DebtAmount:    &debt,
		CustomerName:  &customer,
		PaymentMethod: &payment,
		Items:         &items,
	})
	require.NoError(t, err)

	tx := snap.Draft.(*domain.TransactionDraft)
	assert.True(t, tx.Amount.Equal(dec("90")), "items edit must not override amount")
	assert.True(t, tx.DebtAmount.Equal(dec("10")))
	assert.Equal(t, "João", tx.CustomerName)
	assert.Equal(t, domain.PaymentCredito, tx.PaymentMethod)
	require.Len(t, tx.Items, 1)
	assert.True(t, tx.Items[0].Quantity.Equal(dec("1")))
	assert.True(t, tx.Items[0].Total.Equal(dec("50")))
}

func TestReviewSession_EditRejectsNegativeAmount(t *testing.T) {
	classifier := &mockClassifier{}
	classifier.On("Classify", mock.Anything, mock.Anything, mock.Anything).Return(saleCandidates(), nil).Once()
	s := newSession(classifier, &mockLedgerStore{}, nil)
	_, err := s.Submit(context.Background(), "refri")
	require.NoError(t, err)

	neg := dec("-1")
	_, err = s.Edit(domain.DraftPatch{Amount: &neg})

	var v *domain.ErrValidation
	require.ErrorAs(t, err, &v)
	assert.Equal(t, "amount", v.Field)
}

func TestReviewSession_SnapshotDoesNotAliasDraft(t *testing.T) {
	classifier := &mockClassifier{}
	classifier.On("Classify", mock.Anything, mock.Anything, mock.Anything).Return(saleCandidates(), nil).Once()
	s := newSession(classifier, &mockLedgerStore{}, nil)
	snap, err := s.Submit(context.Background(), "refri")
	require.NoError(t, err)

	snap.Draft.(*domain.TransactionDraft).Description = "alterado por fora"

	assert.Equal(t, "Refrigerante + Salgado", s.Snapshot().Draft.(*domain.TransactionDraft).Description)
}

func TestReviewSession_CommitSuccessSchedulesDismiss(t *testing.T) {
	classifier := &mockClassifier{}
	classifier.On("Classify", mock.Anything, mock.Anything, mock.Anything).Return(saleCandidates(), nil).Once()
	store := &mockLedgerStore{}
	store.On("SaveTransaction", mock.Anything, mock.Anything).Return(nil).Once()

	dismissed := make(chan string, 1)
	s := newSession(classifier, store, func(id string) { dismissed <- id })

	_, err := s.Submit(context.Background(), "refri")
	require.NoError(t, err)
	snap, err := s.Commit(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.PhaseSuccess, snap.Phase)
	assert.Nil(t, snap.Draft)
	require.NotNil(t, snap.Committed)
	assert.NotEmpty(t, snap.Committed.TransactionID)

	select {
	case id := <-dismissed:
		assert.Equal(t, s.ID(), id)
	case <-time.After(time.Second):
		t.Fatal("expected the session to be dismissed")
	}
}

func TestReviewSession_CommitFailureKeepsDraftInReview(t *testing.T) {
	classifier := &mockClassifier{}
	classifier.On("Classify", mock.Anything, mock.Anything, mock.Anything).Return(saleCandidates(), nil).Once()
	store := &mockLedgerStore{}
	store.On("SaveTransaction", mock.Anything, mock.Anything).Return(errors.New("offline")).Once()
	store.On("SaveTransaction", mock.Anything, mock.Anything).Return(nil).Once()

	s := newSession(classifier, store, nil)
	before, err := s.Submit(context.Background(), "refri")
	require.NoError(t, err)

	snap, err := s.Commit(context.Background())
	var rejected *domain.ErrCommitRejected
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, domain.PhaseReview, snap.Phase)
	assert.Equal(t, before.Draft, snap.Draft)
	assert.Equal(t, "Erro ao salvar. Verifique os dados e tente novamente.", snap.Message)

	// manual retry
	snap, err = s.Commit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseSuccess, snap.Phase)
}

func TestReviewSession_ResetClearsDraft(t *testing.T) {
	classifier := &mockClassifier{}
	classifier.On("Classify", mock.Anything, mock.Anything, mock.Anything).Return(saleCandidates(), nil).Twice()
	s := newSession(classifier, &mockLedgerStore{}, nil)

	_, err := s.Submit(context.Background(), "refri")
	require.NoError(t, err)

	snap, err := s.Reset()
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseInput, snap.Phase)
	assert.Nil(t, snap.Draft)

	// the next attempt starts from scratch
	snap, err = s.Submit(context.Background(), "refri")
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseReview, snap.Phase)
}

func TestReviewSession_SubmitNotAllowedInReview(t *testing.T) {
	classifier := &mockClassifier{}
	classifier.On("Classify", mock.Anything, mock.Anything, mock.Anything).Return(saleCandidates(), nil).Once()
	s := newSession(classifier, &mockLedgerStore{}, nil)
	_, err := s.Submit(context.Background(), "refri")
	require.NoError(t, err)

	_, err = s.Submit(context.Background(), "de novo")

	var phase *domain.ErrInvalidPhase
	assert.ErrorAs(t, err, &phase)
	classifier.AssertNumberOfCalls(t, "Classify", 1)
}

func TestReviewSession_EditRotatesIdempotencyKey(t *testing.T) {
	classifier := &mockClassifier{}
	classifier.On("Classify", mock.Anything, mock.Anything, mock.Anything).Return(saleCandidates(), nil).Once()
	store := &mockLedgerStore{}
	store.On("SaveTransaction", mock.Anything, mock.Anything).Return(errors.New("timeout")).Once()

	var saved *domain.LedgerTransaction
	store.On("SaveTransaction", mock.Anything, mock.MatchedBy(func(tx *domain.LedgerTransaction) bool {
		saved = tx
		return true
	})).Return(nil).Once()

	s := newSession(classifier, store, nil)
	before, err := s.Submit(context.Background(), "refri")
	require.NoError(t, err)
	_, err = s.Commit(context.Background())
	require.Error(t, err)

	amount := dec("55")
	snap, err := s.Edit(domain.DraftPatch{Amount: &amount})
	require.NoError(t, err)
	oldKey := before.Draft.(*domain.TransactionDraft).IdempotencyKey
	newKey := snap.Draft.(*domain.TransactionDraft).IdempotencyKey
	assert.NotEqual(t, oldKey, newKey)

	_, err = s.Commit(context.Background())
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, newKey, saved.IdempotencyKey)
	assert.True(t, saved.Amount.Equal(dec("55")))
}

func TestReviewSession_RetryAfterPartialFailureKeepsWrittenLedger(t *testing.T) {
	classifier := &mockClassifier{}
	classifier.On("Classify", mock.Anything, mock.Anything, mock.Anything).Return([]domain.ActionCandidate{
		domain.TransactionCandidate{Amount: dec("30"), DebtAmount: dec("20"), Description: "Camisa", CustomerName: "João"},
	}, nil).Once()

	store := &mockLedgerStore{}
	var ledger *domain.LedgerTransaction
	store.On("SaveTransaction", mock.Anything, mock.MatchedBy(func(tx *domain.LedgerTransaction) bool {
		ledger = tx
		return true
	})).Return(nil).Once()
	store.On("SaveDebt", mock.Anything, mock.Anything).Return(errors.New("offline")).Once()
	var debt *domain.Debt
	store.On("SaveDebt", mock.Anything, mock.MatchedBy(func(d *domain.Debt) bool {
		debt = d
		return true
	})).Return(nil).Once()

	s := newSession(classifier, store, nil)
	_, err := s.Submit(context.Background(), "vendi uma camisa pro João")
	require.NoError(t, err)

	snap, err := s.Commit(context.Background())
	var partial *domain.ErrCommitPartialFailure
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, domain.PhaseReview, snap.Phase)
	written := snap.Draft.(*domain.TransactionDraft).Written
	require.NotNil(t, written)
	require.NotNil(t, ledger)
	assert.Equal(t, ledger.ID, written.TransactionID)
	assert.Equal(t, "debt", written.FailedStep)

	// the ledger row is already saved with 30
	amount := dec("45")
	_, err = s.Edit(domain.DraftPatch{Amount: &amount})
	var locked *domain.ErrDraftLocked
	require.ErrorAs(t, err, &locked)
	assert.Equal(t, []string{"amount"}, locked.Fields)
	assert.True(t, s.Snapshot().Draft.(*domain.TransactionDraft).Amount.Equal(dec("30")))

	debtAmount := dec("25")
	_, err = s.Edit(domain.DraftPatch{DebtAmount: &debtAmount})
	require.NoError(t, err)

	snap, err = s.Commit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseSuccess, snap.Phase)
	assert.Equal(t, ledger.ID, snap.Committed.TransactionID)

	require.NotNil(t, debt)
	assert.True(t, debt.Amount.Equal(dec("25")))
	assert.Equal(t, ledger.ID, debt.TransactionID)
	assert.Equal(t, "Restante de Camisa (Total era R$ 55,00)", debt.Description)
	store.AssertNumberOfCalls(t, "SaveTransaction", 1)
	store.AssertNumberOfCalls(t, "SaveDebt", 2)
}

func TestReviewSession_PartialFailureAtProductsLocksDraft(t *testing.T) {
	classifier := &mockClassifier{}
	classifier.On("Classify", mock.Anything, mock.Anything, mock.Anything).Return([]domain.ActionCandidate{
		domain.TransactionCandidate{Amount: dec("10"), Description: "Venda"},
		domain.StockCandidate{ProductName: "Caneta", Quantity: dec("5")},
	}, nil).Once()

	store := &mockLedgerStore{}
	store.On("SaveTransaction", mock.Anything, mock.Anything).Return(nil).Once()
	store.On("SaveProduct", mock.Anything, mock.Anything).Return(errors.New("offline")).Once()

	s := newSession(classifier, store, nil)
	_, err := s.Submit(context.Background(), "vendi e comprei canetas")
	require.NoError(t, err)
	_, err = s.Commit(context.Background())
	require.Error(t, err)

	debtAmount := dec("5")
	_, err = s.Edit(domain.DraftPatch{DebtAmount: &debtAmount})

	var locked *domain.ErrDraftLocked
	require.ErrorAs(t, err, &locked)
	assert.Equal(t, []string{"debt_amount"}, locked.Fields)
}
