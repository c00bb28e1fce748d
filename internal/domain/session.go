package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReviewPhase is the state of a capture review session.
//
//	INPUT → PROCESSING → REVIEW → SUCCESS
//	PROCESSING → INPUT   (falha ou nada entendido)
//	REVIEW → REVIEW      (falha ao salvar, rascunho mantido)
type ReviewPhase string

const (
	PhaseInput      ReviewPhase = "INPUT"
	PhaseProcessing ReviewPhase = "PROCESSING"
	PhaseReview     ReviewPhase = "REVIEW"
	PhaseSuccess    ReviewPhase = "SUCCESS"
)

// Classifier context tags.
const (
	ContextQuickCapture = "quick-capture"
	ContextChat         = "chat"
)

// SessionSnapshot is a read-only view of a review session.
type SessionSnapshot struct {
	ID        string        `json:"id"`
	StoreID   string        `json:"store_id,omitempty"`
	Context   string        `json:"context"`
	Phase     ReviewPhase   `json:"phase"`
	Kind      ActionKind    `json:"kind,omitempty"`
	Draft     Draft         `json:"draft,omitempty"`
	Message   string        `json:"message,omitempty"`
	Committed *CommitResult `json:"committed,omitempty"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// DraftPatch is a field-level overwrite applied during REVIEW. Nil fields
// are left untouched.
type DraftPatch struct {
	Description   *string          `json:"description,omitempty"`
	Amount        *decimal.Decimal `json:"amount,omitempty"`
	DebtAmount    *decimal.Decimal `json:"debt_amount,omitempty"`
	Items         *[]LineItem      `json:"items,omitempty"`
	CustomerName  *string          `json:"customer_name,omitempty"`
	PaymentMethod *string          `json:"payment_method,omitempty"`
}
