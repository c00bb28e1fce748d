// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"

	"github.com/boddenberg/pdv-assistant-bfa-go/internal/domain"
)

// Classifier turns free text into zero or more action candidates.
// contextTag is domain.ContextQuickCapture or domain.ContextChat.
type Classifier interface {
	Classify(ctx context.Context, text, contextTag string) ([]domain.ActionCandidate, error)
}

// LedgerStore persists the entities produced by a commit.
// Implementations must ignore a second write carrying the same idempotency key.
type LedgerStore interface {
	SaveTransaction(ctx context.Context, tx *domain.LedgerTransaction) error
	SaveDebt(ctx context.Context, debt *domain.Debt) error
	SaveProduct(ctx context.Context, product *domain.Product) error
	SaveServiceOrder(ctx context.Context, order *domain.ServiceOrder) error
}

// Navigator resolves a navigation intent into a route the client opens.
type Navigator interface {
	Navigate(ctx context.Context, targetPage string) (string, error)
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	// Touch returns a live entry and refreshes its expiry; it never adds one.
	Touch(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}
