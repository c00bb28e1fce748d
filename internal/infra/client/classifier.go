package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/boddenberg/pdv-assistant-bfa-go/internal/domain"
	"github.com/boddenberg/pdv-assistant-bfa-go/internal/infra/resilience"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("client")

// ClassifierClient calls the natural-language command classifier (LLM service).
//
// POST {baseURL}/v1/commands/classify
//
//	{"text": "...", "context": "quick-capture"}
//	→ {"actions": [{"type": "TRANSACTION", "data": {...}}]}
type ClassifierClient struct {
	httpClient *http.Client
	baseURL    string
	cb         *gobreaker.CircuitBreaker
	bulkhead   *resilience.Bulkhead
	policy     resilience.Policy
	logger     *zap.Logger
}

// NewClassifierClient creates a new ClassifierClient.
func NewClassifierClient(
	httpClient *http.Client,
	baseURL string,
	cb *gobreaker.CircuitBreaker,
	bulkhead *resilience.Bulkhead,
	policy resilience.Policy,
	logger *zap.Logger,
) *ClassifierClient {
	return &ClassifierClient{
		httpClient: httpClient,
		baseURL:    baseURL,
		cb:         cb,
		bulkhead:   bulkhead,
		policy:     policy,
		logger:     logger,
	}
}

type classifyRequest struct {
	Text    string `json:"text"`
	Context string `json:"context"`
}

type classifyResponse struct {
	Actions []wireAction `json:"actions"`
}

type wireAction struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type wireItem struct {
	Name      string          `json:"name"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Total     decimal.Decimal `json:"total"`
}

type wireTransaction struct {
	Description   string          `json:"description"`
	Amount        decimal.Decimal `json:"amount"`
	DebtAmount    decimal.Decimal `json:"debtAmount"`
	Type          string          `json:"type"`
	Category      string          `json:"category"`
	PaymentMethod string          `json:"paymentMethod"`
	Items         []wireItem      `json:"items"`
	CustomerName  string          `json:"customerName"`
}

type wireStock struct {
	ProductName string          `json:"productName"`
	Quantity    decimal.Decimal `json:"quantity"`
	CostPrice   decimal.Decimal `json:"costPrice"`
	SalePrice   decimal.Decimal `json:"salePrice"`
	Amount      decimal.Decimal `json:"amount"`
	DebtAmount  decimal.Decimal `json:"debtAmount"`
}

type wireServiceOrder struct {
	CustomerName       string          `json:"customerName"`
	Device             string          `json:"device"`
	ProblemDescription string          `json:"problemDescription"`
	EstimatedPrice     decimal.Decimal `json:"estimatedPrice"`
}

type wireNavigate struct {
	TargetPage string `json:"targetPage"`
}

// Classify sends text to the classifier and decodes the returned actions.
// Transport failures and 5xx responses are retried with a fixed delay;
// 4xx responses and malformed bodies fail at once.
func (c *ClassifierClient) Classify(ctx context.Context, text, contextTag string) ([]domain.ActionCandidate, error) {
	ctx, span := tracer.Start(ctx, "ClassifierClient.Classify")
	defer span.End()
	span.SetAttributes(attribute.String("classifier.context", contextTag))

	if err := c.bulkhead.Acquire(ctx); err != nil {
		return nil, &domain.ErrExternalService{Service: "classifier", Err: err}
	}
	defer c.bulkhead.Release()

	body, err := json.Marshal(classifyRequest{Text: text, Context: contextTag})
	if err != nil {
		return nil, err
	}

	result, err := c.cb.Execute(func() (any, error) {
		var out classifyResponse
		innerErr := resilience.Retry(ctx, c.policy, func(ctx context.Context) error {
			out = classifyResponse{}

			url := fmt.Sprintf("%s/v1/commands/classify", c.baseURL)
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
			if err != nil {
				return resilience.Permanent(err)
			}
			req.Header.Set("Content-Type", "application/json")

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode >= 500 {
				return fmt.Errorf("classifier API returned status %d", resp.StatusCode)
			}
			if resp.StatusCode != http.StatusOK {
				msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
				return resilience.Permanent(fmt.Errorf("classifier API returned status %d: %s", resp.StatusCode, msg))
			}
			if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
				return resilience.Permanent(fmt.Errorf("decode classifier response: %w", err))
			}
			return nil
		})
		if innerErr != nil {
			return nil, innerErr
		}
		return &out, nil
	})

	if err != nil {
		span.RecordError(err)
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &domain.ErrCircuitOpen{Service: "classifier"}
		}
		return nil, &domain.ErrExternalService{Service: "classifier", Err: err}
	}

	resp := result.(*classifyResponse)
	candidates := make([]domain.ActionCandidate, 0, len(resp.Actions))
	for _, a := range resp.Actions {
		cand, err := decodeAction(a)
		if err != nil {
			c.logger.Warn("skipping classifier action",
				zap.String("type", a.Type),
				zap.Error(err),
			)
			continue
		}
		candidates = append(candidates, cand)
	}
	span.SetAttributes(attribute.Int("classifier.candidates", len(candidates)))
	return candidates, nil
}

func decodeAction(a wireAction) (domain.ActionCandidate, error) {
	data := a.Data
	if len(data) == 0 {
		data = []byte("{}")
	}

	switch domain.ActionKind(a.Type) {
	case domain.ActionTransaction:
		var w wireTransaction
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, err
		}
		items := make([]domain.LineItem, 0, len(w.Items))
		for _, it := range w.Items {
			items = append(items, domain.LineItem(it))
		}
		return domain.TransactionCandidate{
			Description:   w.Description,
			Amount:        w.Amount,
			DebtAmount:    w.DebtAmount,
			Type:          transactionType(w.Type),
			Category:      w.Category,
			PaymentMethod: w.PaymentMethod,
			Items:         items,
			CustomerName:  w.CustomerName,
		}, nil

	case domain.ActionStock:
		var w wireStock
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, err
		}
		return domain.StockCandidate(w), nil

	case domain.ActionServiceOrder:
		var w wireServiceOrder
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, err
		}
		return domain.ServiceOrderCandidate(w), nil

	case domain.ActionNavigate:
		var w wireNavigate
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, err
		}
		return domain.NavigateCandidate(w), nil
	}
	return nil, fmt.Errorf("unknown action type %q", a.Type)
}

func transactionType(s string) domain.TransactionType {
	switch s {
	case "EXPENSE", "expense", "despesa":
		return domain.TransactionExpense
	case "INCOME", "income", "receita", "venda":
		return domain.TransactionIncome
	}
	return ""
}
