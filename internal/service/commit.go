package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/boddenberg/pdv-assistant-bfa-go/internal/domain"
	"github.com/boddenberg/pdv-assistant-bfa-go/internal/infra/observability"
	"github.com/boddenberg/pdv-assistant-bfa-go/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var commitTracer = otel.Tracer("service/commit")

const (
	counterpartyWalkIn   = "Consumidor final"
	counterpartySupplier = "Fornecedor"

	serviceOrderOpen = "open"
)

// Committer persists a finalized draft.
type Committer interface {
	Commit(ctx context.Context, storeID string, draft domain.Draft) (*domain.CommitResult, error)
}

// CommitCoordinator writes a draft through the ledger store.
//
// For a TransactionDraft the order is fixed: ledger row, then debt, then
// products for stock entries. A step that already succeeded is never
// reverted. Steps listed in the draft's Written progress are skipped; the
// others derive their ids from the idempotency key so a retry rewrites the
// same rows and the store drops the duplicates.
type CommitCoordinator struct {
	store     port.LedgerStore
	navigator port.Navigator
	metrics   *observability.Metrics
	logger    *zap.Logger
	now       func() time.Time
}

// NewCommitCoordinator creates the coordinator with all dependencies injected.
func NewCommitCoordinator(
	store port.LedgerStore,
	navigator port.Navigator,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *CommitCoordinator {
	return &CommitCoordinator{
		store:     store,
		navigator: navigator,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
}

// Commit persists draft on behalf of storeID.
//
// Errors are *domain.ErrCommitRejected when nothing was written and
// *domain.ErrCommitPartialFailure when an earlier step was written.
func (c *CommitCoordinator) Commit(ctx context.Context, storeID string, draft domain.Draft) (*domain.CommitResult, error) {
	if draft == nil {
		return nil, &domain.ErrCommitRejected{Err: &domain.ErrValidation{Field: "draft", Message: "nothing to commit"}}
	}

	ctx, span := commitTracer.Start(ctx, "CommitCoordinator.Commit")
	defer span.End()
	span.SetAttributes(
		attribute.String("store.id", storeID),
		attribute.String("draft.kind", string(draft.Kind())),
	)

	start := time.Now()
	defer func() {
		c.metrics.RecordRequestDuration("commit", time.Since(start))
	}()

	var (
		res *domain.CommitResult
		err error
	)
	switch d := draft.(type) {
	case *domain.TransactionDraft:
		res, err = c.commitTransaction(ctx, storeID, d)
	case *domain.StockDraft:
		res, err = c.commitStock(ctx, storeID, d)
	case *domain.ServiceOrderDraft:
		res, err = c.commitServiceOrder(ctx, storeID, d)
	case *domain.NavigateIntent:
		res, err = c.commitNavigate(ctx, d)
	default:
		err = &domain.ErrCommitRejected{Err: fmt.Errorf("unsupported draft %T", draft)}
	}

	kind := string(draft.Kind())
	if err != nil {
		span.RecordError(err)
		outcome := "rejected"
		var partial *domain.ErrCommitPartialFailure
		if errors.As(err, &partial) {
			outcome = "partial"
		}
		c.metrics.IncrCommit(kind, outcome)
		c.logger.Error("commit failed",
			observability.TraceField(ctx),
			zap.String("store_id", storeID),
			zap.String("kind", kind),
			zap.String("outcome", outcome),
			zap.Error(err),
		)
		return nil, err
	}

	c.metrics.IncrCommit(kind, "success")
	c.logger.Info("commit succeeded",
		observability.TraceField(ctx),
		zap.String("store_id", storeID),
		zap.String("kind", kind),
		zap.String("transaction_id", res.TransactionID),
		zap.String("debt_id", res.DebtID),
		zap.Bool("ledger_skipped", res.LedgerSkipped),
	)
	return res, nil
}

func (c *CommitCoordinator) commitTransaction(ctx context.Context, storeID string, d *domain.TransactionDraft) (*domain.CommitResult, error) {
	if d.DebtAmount.IsNegative() || d.Amount.IsNegative() {
		return nil, &domain.ErrCommitRejected{Err: &domain.ErrValidation{Field: "amount", Message: "amounts must not be negative"}}
	}
	if d.DebtAmount.IsPositive() && d.CustomerName == "" {
		return nil, &domain.ErrCommitRejected{Err: &domain.ErrValidation{Field: "customer_name", Message: "required when debt_amount > 0"}}
	}

	key := ensureKey(d.IdempotencyKey)
	now := c.now().UTC()
	res := &domain.CommitResult{Kind: domain.ActionTransaction}
	written := false

	var done domain.CommitProgress
	if d.Written != nil {
		done = *d.Written
	}

	switch {
	case done.TransactionID != "":
		res.TransactionID = done.TransactionID
		written = true
	// A zero-value, item-less draft is a pure debt note: no empty ledger row.
	case d.Amount.IsPositive() || len(d.Items) > 0:
		tx := &domain.LedgerTransaction{
			ID:             derivedID(key, "ledger"),
			IdempotencyKey: key,
			StoreID:        storeID,
			Description:    d.Description,
			Amount:         d.Amount,
			Type:           d.Type,
			Category:       d.Category,
			PaymentMethod:  NormalizePaymentMethod(string(d.PaymentMethod)),
			Counterparty:   counterparty(d),
			Items:          d.Items,
			CreatedAt:      now,
		}
		if err := c.store.SaveTransaction(ctx, tx); err != nil {
			c.metrics.IncrExternalError("ledger")
			return nil, &domain.ErrCommitRejected{Err: fmt.Errorf("save transaction: %w", err)}
		}
		res.TransactionID = tx.ID
		written = true
	default:
		res.LedgerSkipped = true
	}

	switch {
	case done.DebtID != "":
		res.DebtID = done.DebtID
		written = true
	case d.DebtAmount.IsPositive():
		debt := &domain.Debt{
			ID:             derivedID(key, "debt"),
			IdempotencyKey: key + ":debt",
			StoreID:        storeID,
			CustomerName:   d.CustomerName,
			Amount:         d.DebtAmount,
			Description:    DebtDescription(d),
			TransactionID:  res.TransactionID,
			CreatedAt:      now,
		}
		if err := c.store.SaveDebt(ctx, debt); err != nil {
			c.metrics.IncrExternalError("ledger")
			if !written {
				return nil, &domain.ErrCommitRejected{Err: fmt.Errorf("save debt: %w", err)}
			}
			return nil, &domain.ErrCommitPartialFailure{Step: "debt", TransactionID: res.TransactionID, Err: err}
		}
		res.DebtID = debt.ID
		written = true
	}

	if len(d.StockEntries) > 0 {
		ids, saved, err := c.saveProducts(ctx, storeID, key, d.StockEntries, now)
		if err != nil {
			if !written && saved == 0 {
				return nil, &domain.ErrCommitRejected{Err: fmt.Errorf("save products: %w", err)}
			}
			return nil, &domain.ErrCommitPartialFailure{
				Step:          "products",
				TransactionID: res.TransactionID,
				DebtID:        res.DebtID,
				Err:           err,
			}
		}
		res.ProductIDs = ids
	}

	return res, nil
}

func (c *CommitCoordinator) commitStock(ctx context.Context, storeID string, d *domain.StockDraft) (*domain.CommitResult, error) {
	if len(d.Products) == 0 {
		return nil, &domain.ErrCommitRejected{Err: &domain.ErrValidation{Field: "products", Message: "no products"}}
	}
	key := ensureKey(d.IdempotencyKey)

	ids, saved, err := c.saveProducts(ctx, storeID, key, d.Products, c.now().UTC())
	if err != nil {
		if saved == 0 {
			return nil, &domain.ErrCommitRejected{Err: fmt.Errorf("save products: %w", err)}
		}
		return nil, &domain.ErrCommitPartialFailure{Step: "products", Err: err}
	}
	return &domain.CommitResult{Kind: domain.ActionStock, ProductIDs: ids}, nil
}

// saveProducts writes entries concurrently. It returns the ids in entry order
// and how many writes succeeded.
func (c *CommitCoordinator) saveProducts(
	ctx context.Context,
	storeID, key string,
	entries []domain.ProductEntry,
	now time.Time,
) ([]string, int64, error) {
	ids := make([]string, len(entries))
	var saved atomic.Int64

	g, gCtx := errgroup.WithContext(ctx)
	for i, e := range entries {
		suffix := "product:" + strconv.Itoa(i)
		p := &domain.Product{
			ID:             derivedID(key, suffix),
			IdempotencyKey: key + ":" + suffix,
			StoreID:        storeID,
			Name:           e.Name,
			Quantity:       e.Quantity,
			CostPrice:      e.CostPrice,
			SalePrice:      e.SalePrice,
			CreatedAt:      now,
		}
		ids[i] = p.ID

		g.Go(func() error {
			if err := c.store.SaveProduct(gCtx, p); err != nil {
				c.metrics.IncrExternalError("ledger")
				return fmt.Errorf("product %q: %w", p.Name, err)
			}
			saved.Add(1)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, saved.Load(), err
	}
	return ids, saved.Load(), nil
}

func (c *CommitCoordinator) commitServiceOrder(ctx context.Context, storeID string, d *domain.ServiceOrderDraft) (*domain.CommitResult, error) {
	if d.CustomerName == "" {
		return nil, &domain.ErrCommitRejected{Err: &domain.ErrValidation{Field: "customer_name", Message: "required for a service order"}}
	}
	key := ensureKey(d.IdempotencyKey)

	order := &domain.ServiceOrder{
		ID:                 derivedID(key, "service-order"),
		IdempotencyKey:     key,
		StoreID:            storeID,
		CustomerName:       d.CustomerName,
		Device:             d.Device,
		ProblemDescription: d.ProblemDescription,
		EstimatedPrice:     d.EstimatedPrice,
		Status:             serviceOrderOpen,
		CreatedAt:          c.now().UTC(),
	}
	if err := c.store.SaveServiceOrder(ctx, order); err != nil {
		c.metrics.IncrExternalError("ledger")
		return nil, &domain.ErrCommitRejected{Err: fmt.Errorf("save service order: %w", err)}
	}
	return &domain.CommitResult{Kind: domain.ActionServiceOrder, ServiceOrderID: order.ID}, nil
}

func (c *CommitCoordinator) commitNavigate(ctx context.Context, d *domain.NavigateIntent) (*domain.CommitResult, error) {
	route, err := c.navigator.Navigate(ctx, d.TargetPage)
	if err != nil {
		return nil, &domain.ErrCommitRejected{Err: err}
	}
	return &domain.CommitResult{Kind: domain.ActionNavigate, Route: route}, nil
}

// DebtDescription embeds the original total of the sale for auditability:
// "Restante de Venda (Total era R$ 50,00)".
func DebtDescription(d *domain.TransactionDraft) string {
	return fmt.Sprintf("Restante de %s (Total era %s)", d.Description, FormatBRL(d.GrandTotal()))
}

func counterparty(d *domain.TransactionDraft) string {
	if d.Type == domain.TransactionExpense {
		return counterpartySupplier
	}
	if d.CustomerName != "" {
		return d.CustomerName
	}
	return counterpartyWalkIn
}

func ensureKey(key string) string {
	if key == "" {
		return uuid.NewString()
	}
	return key
}

// derivedID is stable for a given idempotency key and step.
func derivedID(key, step string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(key+":"+step)).String()
}
