package supabase

import (
	"context"
	"encoding/json"
	"time"

	"github.com/boddenberg/pdv-assistant-bfa-go/internal/domain"
	"github.com/boddenberg/pdv-assistant-bfa-go/internal/infra/resilience"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

const (
	tableTransactions  = "transactions"
	tableDebts         = "debts"
	tableProducts      = "products"
	tableServiceOrders = "service_orders"

	conflictIdempotency = "idempotency_key"
)

// LedgerStore implements port.LedgerStore on top of PostgREST tables.
// Every table has a unique idempotency_key column.
type LedgerStore struct {
	client *Client
}

// NewLedgerStore creates a LedgerStore.
func NewLedgerStore(client *Client) *LedgerStore {
	return &LedgerStore{client: client}
}

// --- Row mappings ---

type transactionRow struct {
	ID             string          `json:"id"`
	IdempotencyKey string          `json:"idempotency_key"`
	StoreID        string          `json:"store_id"`
	Description    string          `json:"description"`
	Amount         decimal.Decimal `json:"amount"`
	Type           string          `json:"type"`
	Category       string          `json:"category"`
	PaymentMethod  string          `json:"payment_method"`
	Counterparty   string          `json:"counterparty"`
	Items          json.RawMessage `json:"items"`
	CreatedAt      string          `json:"created_at"`
}

type debtRow struct {
	ID             string          `json:"id"`
	IdempotencyKey string          `json:"idempotency_key"`
	StoreID        string          `json:"store_id"`
	CustomerName   string          `json:"customer_name"`
	Amount         decimal.Decimal `json:"amount"`
	Description    string          `json:"description"`
	TransactionID  *string         `json:"transaction_id"`
	Status         string          `json:"status"`
	CreatedAt      string          `json:"created_at"`
}

// SaveTransaction inserts a ledger row.
func (s *LedgerStore) SaveTransaction(ctx context.Context, tx *domain.LedgerTransaction) error {
	ctx, span := tracer.Start(ctx, "Supabase.SaveTransaction")
	defer span.End()
	span.SetAttributes(attribute.String("store.id", tx.StoreID))

	items := tx.Items
	if items == nil {
		items = []domain.LineItem{}
	}
	rawItems, err := json.Marshal(items)
	if err != nil {
		return err
	}

	return s.insert(ctx, tableTransactions, transactionRow{
		ID:             tx.ID,
		IdempotencyKey: tx.IdempotencyKey,
		StoreID:        tx.StoreID,
		Description:    tx.Description,
		Amount:         tx.Amount,
		Type:           string(tx.Type),
		Category:       tx.Category,
		PaymentMethod:  string(tx.PaymentMethod),
		Counterparty:   tx.Counterparty,
		Items:          rawItems,
		CreatedAt:      tx.CreatedAt.Format(time.RFC3339),
	})
}

// SaveDebt inserts an open accounts-receivable row.
func (s *LedgerStore) SaveDebt(ctx context.Context, d *domain.Debt) error {
	ctx, span := tracer.Start(ctx, "Supabase.SaveDebt")
	defer span.End()
	span.SetAttributes(attribute.String("store.id", d.StoreID))

	var txID *string
	if d.TransactionID != "" {
		txID = &d.TransactionID
	}

	return s.insert(ctx, tableDebts, debtRow{
		ID:             d.ID,
		IdempotencyKey: d.IdempotencyKey,
		StoreID:        d.StoreID,
		CustomerName:   d.CustomerName,
		Amount:         d.Amount,
		Description:    d.Description,
		TransactionID:  txID,
		Status:         "open",
		CreatedAt:      d.CreatedAt.Format(time.RFC3339),
	})
}

// SaveProduct inserts a product row.
func (s *LedgerStore) SaveProduct(ctx context.Context, p *domain.Product) error {
	ctx, span := tracer.Start(ctx, "Supabase.SaveProduct")
	defer span.End()

	return s.insert(ctx, tableProducts, map[string]any{
		"id":              p.ID,
		"idempotency_key": p.IdempotencyKey,
		"store_id":        p.StoreID,
		"name":            p.Name,
		"quantity":        p.Quantity,
		"cost_price":      p.CostPrice,
		"sale_price":      p.SalePrice,
		"created_at":      p.CreatedAt.Format(time.RFC3339),
	})
}

// SaveServiceOrder inserts a service order row.
func (s *LedgerStore) SaveServiceOrder(ctx context.Context, o *domain.ServiceOrder) error {
	ctx, span := tracer.Start(ctx, "Supabase.SaveServiceOrder")
	defer span.End()

	return s.insert(ctx, tableServiceOrders, map[string]any{
		"id":                  o.ID,
		"idempotency_key":     o.IdempotencyKey,
		"store_id":            o.StoreID,
		"customer_name":       o.CustomerName,
		"device":              o.Device,
		"problem_description": o.ProblemDescription,
		"estimated_price":     o.EstimatedPrice,
		"status":              o.Status,
		"created_at":          o.CreatedAt.Format(time.RFC3339),
	})
}

func (s *LedgerStore) insert(ctx context.Context, table string, row any) error {
	c := s.client
	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			return c.doInsert(ctx, table, conflictIdempotency, row)
		})
	})
	if err != nil {
		return &domain.ErrExternalService{Service: "supabase/" + table, Err: err}
	}
	return nil
}
