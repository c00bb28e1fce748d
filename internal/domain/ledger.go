package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================
// Persisted records (written through port.LedgerStore)
// ============================================================

// LedgerTransaction is one row of the cash ledger.
type LedgerTransaction struct {
	ID             string          `json:"id"`
	IdempotencyKey string          `json:"idempotency_key"`
	StoreID        string          `json:"store_id"`
	Description    string          `json:"description"`
	Amount         decimal.Decimal `json:"amount"`
	Type           TransactionType `json:"type"`
	Category       string          `json:"category"`
	PaymentMethod  PaymentMethod   `json:"payment_method"`
	Counterparty   string          `json:"counterparty"`
	Items          []LineItem      `json:"items,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Debt is an accounts-receivable ("fiado") record linked to a sale.
type Debt struct {
	ID             string          `json:"id"`
	IdempotencyKey string          `json:"idempotency_key"`
	StoreID        string          `json:"store_id"`
	CustomerName   string          `json:"customer_name"`
	Amount         decimal.Decimal `json:"amount"`
	Description    string          `json:"description"`
	TransactionID  string          `json:"transaction_id,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Product is a stock item created or replenished by a capture.
type Product struct {
	ID             string          `json:"id"`
	IdempotencyKey string          `json:"idempotency_key"`
	StoreID        string          `json:"store_id"`
	Name           string          `json:"name"`
	Quantity       decimal.Decimal `json:"quantity"`
	CostPrice      decimal.Decimal `json:"cost_price"`
	SalePrice      decimal.Decimal `json:"sale_price"`
	CreatedAt      time.Time       `json:"created_at"`
}

// ServiceOrder is an open repair/service order.
type ServiceOrder struct {
	ID                 string          `json:"id"`
	IdempotencyKey     string          `json:"idempotency_key"`
	StoreID            string          `json:"store_id"`
	CustomerName       string          `json:"customer_name"`
	Device             string          `json:"device"`
	ProblemDescription string          `json:"problem_description"`
	EstimatedPrice     decimal.Decimal `json:"estimated_price"`
	Status             string          `json:"status"` // open, in_progress, done
	CreatedAt          time.Time       `json:"created_at"`
}

// CommitResult reports what a commit wrote.
type CommitResult struct {
	Kind           ActionKind `json:"kind"`
	TransactionID  string     `json:"transaction_id,omitempty"`
	DebtID         string     `json:"debt_id,omitempty"`
	ProductIDs     []string   `json:"product_ids,omitempty"`
	ServiceOrderID string     `json:"service_order_id,omitempty"`
	Route          string     `json:"route,omitempty"`
	LedgerSkipped  bool       `json:"ledger_skipped,omitempty"`
}
