package service_test

import (
	"context"
	"sync"

	"github.com/boddenberg/pdv-assistant-bfa-go/internal/domain"

	"github.com/stretchr/testify/mock"
)

// --- Mocks ---

type mockClassifier struct {
	mock.Mock
}

func (m *mockClassifier) Classify(ctx context.Context, text, contextTag string) ([]domain.ActionCandidate, error) {
	args := m.Called(ctx, text, contextTag)
	cands, _ := args.Get(0).([]domain.ActionCandidate)
	return cands, args.Error(1)
}

type mockLedgerStore struct {
	mock.Mock

	mu    sync.Mutex
	calls []string
}

func (m *mockLedgerStore) record(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, name)
}

func (m *mockLedgerStore) order() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *mockLedgerStore) SaveTransaction(ctx context.Context, tx *domain.LedgerTransaction) error {
	m.record("transaction")
	return m.Called(ctx, tx).Error(0)
}

func (m *mockLedgerStore) SaveDebt(ctx context.Context, debt *domain.Debt) error {
	m.record("debt")
	return m.Called(ctx, debt).Error(0)
}

func (m *mockLedgerStore) SaveProduct(ctx context.Context, product *domain.Product) error {
	m.record("product")
	return m.Called(ctx, product).Error(0)
}

func (m *mockLedgerStore) SaveServiceOrder(ctx context.Context, order *domain.ServiceOrder) error {
	m.record("service_order")
	return m.Called(ctx, order).Error(0)
}

// blockingClassifier parks inside Classify until release is closed.
type blockingClassifier struct {
	entered chan struct{}
	release chan struct{}
	result  []domain.ActionCandidate
}

func newBlockingClassifier(result []domain.ActionCandidate) *blockingClassifier {
	return &blockingClassifier{
		entered: make(chan struct{}),
		release: make(chan struct{}),
		result:  result,
	}
}

func (b *blockingClassifier) Classify(ctx context.Context, _, _ string) ([]domain.ActionCandidate, error) {
	close(b.entered)
	select {
	case <-b.release:
		return b.result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
