// Package domain holds the entities of the PDV capture pipeline. It has no
// dependencies on transport or storage.
//
// capture.go define os tipos do pipeline de captura
// por voz/texto: candidatos retornados pelo classificador e os rascunhos
// (drafts) que o operador revisa antes de gravar no caixa.
//
// O fluxo completo:
//  1. Operador fala ou digita ("Vendi 2 camisas por 50 reais no pix")
//  2. Classificador devolve zero, um ou vários ActionCandidate
//  3. Os candidatos viram um único Draft (merge quando necessário)
//  4. Operador edita o Draft na revisão
//  5. CommitCoordinator grava lançamento e, se houver, o fiado
package domain

import (
	"github.com/shopspring/decimal"
)

// ActionKind identifies the variant of a candidate or draft.
type ActionKind string

const (
	ActionTransaction  ActionKind = "TRANSACTION"
	ActionStock        ActionKind = "STOCK"
	ActionServiceOrder ActionKind = "SERVICE_ORDER"
	ActionNavigate     ActionKind = "NAVIGATE"
)

// TransactionType is the ledger direction.
type TransactionType string

const (
	TransactionIncome  TransactionType = "INCOME"
	TransactionExpense TransactionType = "EXPENSE"
)

// DefaultCategory is the generic bucket used when the classifier omits one.
const DefaultCategory = "Geral"

// ============================================================
// Candidates — saída imutável do classificador
// ============================================================

// ActionCandidate is one intent detected by the classifier. The set of
// implementations is closed: TransactionCandidate, StockCandidate,
// ServiceOrderCandidate and NavigateCandidate.
type ActionCandidate interface {
	Kind() ActionKind
	isCandidate()
}

// LineItem is one sold or bought item.
type LineItem struct {
	Name      string          `json:"name"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Total     decimal.Decimal `json:"total"`
}

// TransactionCandidate is a sale or expense. Zero amounts mean "not stated".
type TransactionCandidate struct {
	Description   string          `json:"description,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	DebtAmount    decimal.Decimal `json:"debt_amount"`
	Type          TransactionType `json:"type,omitempty"`
	Category      string          `json:"category,omitempty"`
	PaymentMethod string          `json:"payment_method,omitempty"` // texto livre, normalizado depois
	Items         []LineItem      `json:"items,omitempty"`
	CustomerName  string          `json:"customer_name,omitempty"`
}

// StockCandidate is a stock entry (new product or replenishment).
// Amount/DebtAmount are only read when the candidate joins a transaction merge.
type StockCandidate struct {
	ProductName string          `json:"product_name"`
	Quantity    decimal.Decimal `json:"quantity"`
	CostPrice   decimal.Decimal `json:"cost_price"`
	SalePrice   decimal.Decimal `json:"sale_price"`
	Amount      decimal.Decimal `json:"amount"`
	DebtAmount  decimal.Decimal `json:"debt_amount"`
}

// ServiceOrderCandidate opens a repair/service order.
type ServiceOrderCandidate struct {
	CustomerName       string          `json:"customer_name"`
	Device             string          `json:"device"`
	ProblemDescription string          `json:"problem_description"`
	EstimatedPrice     decimal.Decimal `json:"estimated_price"`
}

// NavigateCandidate asks the UI to open a page.
type NavigateCandidate struct {
	TargetPage string `json:"target_page"`
}

func (TransactionCandidate) Kind() ActionKind  { return ActionTransaction }
func (StockCandidate) Kind() ActionKind        { return ActionStock }
func (ServiceOrderCandidate) Kind() ActionKind { return ActionServiceOrder }
func (NavigateCandidate) Kind() ActionKind     { return ActionNavigate }

func (TransactionCandidate) isCandidate()  {}
func (StockCandidate) isCandidate()        {}
func (ServiceOrderCandidate) isCandidate() {}
func (NavigateCandidate) isCandidate()     {}

// ============================================================
// Drafts — estado mutável durante a revisão
// ============================================================

// Draft is the single in-flight entity owned by a review session.
// Implementations: *TransactionDraft, *StockDraft, *ServiceOrderDraft, *NavigateIntent.
type Draft interface {
	Kind() ActionKind
	isDraft()
}

// TransactionDraft is the merged, normalized ledger entry awaiting confirmation.
//
// Amount is what was received/paid now; DebtAmount is what remains owed.
// When Items is non-empty and sums to a positive total, that sum is Amount.
type TransactionDraft struct {
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	Description    string          `json:"description"`
	Amount         decimal.Decimal `json:"amount"`
	DebtAmount     decimal.Decimal `json:"debt_amount"`
	Type           TransactionType `json:"type"`
	Category       string          `json:"category"`
	PaymentMethod  PaymentMethod   `json:"payment_method"`
	Items          []LineItem      `json:"items"`
	CustomerName   string          `json:"customer_name,omitempty"`

	// StockEntries holds products from STOCK candidates that joined the merge.
	// They are saved as products, never as ledger items.
	StockEntries []ProductEntry `json:"stock_entries,omitempty"`

	// Written is set after a partially failed commit; those steps are not
	// written again.
	Written *CommitProgress `json:"written,omitempty"`
}

// CommitProgress records the steps of a TransactionDraft that an earlier
// commit already persisted, and the step that failed.
type CommitProgress struct {
	TransactionID string `json:"transaction_id,omitempty"`
	DebtID        string `json:"debt_id,omitempty"`
	FailedStep    string `json:"failed_step"`
}

// ItemsTotal sums the Total of every item.
func (d *TransactionDraft) ItemsTotal() decimal.Decimal {
	sum := decimal.Zero
	for _, it := range d.Items {
		sum = sum.Add(it.Total)
	}
	return sum
}

// GrandTotal is the conceptual price of the sale: paid now plus owed.
func (d *TransactionDraft) GrandTotal() decimal.Decimal {
	return d.Amount.Add(d.DebtAmount)
}

// ProductEntry is one product to create or replenish.
type ProductEntry struct {
	Name      string          `json:"name"`
	Quantity  decimal.Decimal `json:"quantity"`
	CostPrice decimal.Decimal `json:"cost_price"`
	SalePrice decimal.Decimal `json:"sale_price"`
}

// StockDraft holds one or more independent products.
type StockDraft struct {
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
	Products       []ProductEntry `json:"products"`
}

// ServiceOrderDraft is a service order awaiting confirmation.
type ServiceOrderDraft struct {
	IdempotencyKey     string          `json:"idempotency_key,omitempty"`
	CustomerName       string          `json:"customer_name"`
	Device             string          `json:"device"`
	ProblemDescription string          `json:"problem_description"`
	EstimatedPrice     decimal.Decimal `json:"estimated_price"`
}

// NavigateIntent is a request to open a page; nothing is persisted.
type NavigateIntent struct {
	TargetPage string `json:"target_page"`
}

func (*TransactionDraft) Kind() ActionKind  { return ActionTransaction }
func (*StockDraft) Kind() ActionKind        { return ActionStock }
func (*ServiceOrderDraft) Kind() ActionKind { return ActionServiceOrder }
func (*NavigateIntent) Kind() ActionKind    { return ActionNavigate }

func (*TransactionDraft) isDraft()  {}
func (*StockDraft) isDraft()        {}
func (*ServiceOrderDraft) isDraft() {}
func (*NavigateIntent) isDraft()    {}

// CloneDraft returns a deep copy so snapshots never alias the session's draft.
func CloneDraft(d Draft) Draft {
	switch v := d.(type) {
	case *TransactionDraft:
		c := *v
		c.Items = append([]LineItem(nil), v.Items...)
		c.StockEntries = append([]ProductEntry(nil), v.StockEntries...)
		if v.Written != nil {
			w := *v.Written
			c.Written = &w
		}
		return &c
	case *StockDraft:
		c := *v
		c.Products = append([]ProductEntry(nil), v.Products...)
		return &c
	case *ServiceOrderDraft:
		c := *v
		return &c
	case *NavigateIntent:
		c := *v
		return &c
	default:
		return nil
	}
}
