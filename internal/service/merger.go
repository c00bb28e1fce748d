package service

import (
	"slices"
	"strings"

	"github.com/boddenberg/pdv-assistant-bfa-go/internal/domain"

	"github.com/shopspring/decimal"
)

const (
	fallbackIncomeDescription  = "Venda rápida"
	fallbackExpenseDescription = "Despesa rápida"
	fallbackProductName        = "Produto sem nome"
)

// BuildDraft turns the classifier output for one utterance into the single
// draft held by a review session. It returns nil when there is nothing to review.
//
// Precedence:
//   - any TRANSACTION present: every TRANSACTION/STOCK candidate is merged
//     into one TransactionDraft (stock participants add money and become
//     StockEntries);
//   - only STOCK: one StockDraft with an independent product per candidate;
//   - otherwise the first SERVICE_ORDER, then the first NAVIGATE.
func BuildDraft(candidates []domain.ActionCandidate) domain.Draft {
	var (
		monetary     []domain.ActionCandidate
		stocks       []domain.StockCandidate
		hasTx        bool
		serviceOrder *domain.ServiceOrderCandidate
		navigate     *domain.NavigateCandidate
	)

	for _, c := range candidates {
		switch v := c.(type) {
		case domain.TransactionCandidate:
			hasTx = true
			monetary = append(monetary, v)
		case domain.StockCandidate:
			stocks = append(stocks, v)
			monetary = append(monetary, v)
		case domain.ServiceOrderCandidate:
			if serviceOrder == nil {
				serviceOrder = &v
			}
		case domain.NavigateCandidate:
			if navigate == nil {
				navigate = &v
			}
		}
	}

	switch {
	case hasTx:
		return MergeCandidates(monetary)
	case len(stocks) > 0:
		return buildStockDraft(stocks)
	case serviceOrder != nil:
		return &domain.ServiceOrderDraft{
			CustomerName:       strings.TrimSpace(serviceOrder.CustomerName),
			Device:             strings.TrimSpace(serviceOrder.Device),
			ProblemDescription: strings.TrimSpace(serviceOrder.ProblemDescription),
			EstimatedPrice:     money(serviceOrder.EstimatedPrice),
		}
	case navigate != nil:
		return &domain.NavigateIntent{TargetPage: strings.TrimSpace(navigate.TargetPage)}
	}
	return nil
}

// MergeCandidates folds TRANSACTION and STOCK candidates, left to right, into
// one normalized TransactionDraft. Other kinds are ignored. The result
// depends only on the input order.
//
// Amounts and debts are summed, items concatenated in candidate order and
// distinct descriptions joined with " + ". When the merged items sum to a
// positive total, that total replaces the summed amount.
func MergeCandidates(candidates []domain.ActionCandidate) *domain.TransactionDraft {
	d := &domain.TransactionDraft{}
	var (
		descriptions []string
		payment      string
	)

	for _, c := range candidates {
		switch v := c.(type) {
		case domain.TransactionCandidate:
			d.Amount = d.Amount.Add(money(v.Amount))
			d.DebtAmount = d.DebtAmount.Add(money(v.DebtAmount))
			for _, it := range v.Items {
				d.Items = append(d.Items, normalizeItem(it))
			}
			if desc := strings.TrimSpace(v.Description); desc != "" && !slices.Contains(descriptions, desc) {
				descriptions = append(descriptions, desc)
			}
			if d.Type == "" && v.Type != "" {
				d.Type = v.Type
			}
			if d.Category == "" {
				d.Category = strings.TrimSpace(v.Category)
			}
			if payment == "" {
				payment = strings.TrimSpace(v.PaymentMethod)
			}
			if d.CustomerName == "" {
				d.CustomerName = strings.TrimSpace(v.CustomerName)
			}
		case domain.StockCandidate:
			d.Amount = d.Amount.Add(money(v.Amount))
			d.DebtAmount = d.DebtAmount.Add(money(v.DebtAmount))
			d.StockEntries = append(d.StockEntries, productEntry(v))
		}
	}

	if d.Type != domain.TransactionExpense {
		d.Type = domain.TransactionIncome
	}
	if d.Category == "" {
		d.Category = domain.DefaultCategory
	}
	d.PaymentMethod = NormalizePaymentMethod(payment)

	if itemsTotal := d.ItemsTotal(); len(d.Items) > 0 && itemsTotal.IsPositive() {
		d.Amount = itemsTotal
	}

	d.Description = strings.Join(descriptions, " + ")
	if d.Description == "" {
		d.Description = fallbackDescription(d)
	}
	return d
}

func buildStockDraft(stocks []domain.StockCandidate) *domain.StockDraft {
	d := &domain.StockDraft{Products: make([]domain.ProductEntry, 0, len(stocks))}
	for _, s := range stocks {
		d.Products = append(d.Products, productEntry(s))
	}
	return d
}

func productEntry(s domain.StockCandidate) domain.ProductEntry {
	name := strings.TrimSpace(s.ProductName)
	if name == "" {
		name = fallbackProductName
	}
	qty := s.Quantity.Abs()
	if !qty.IsPositive() {
		qty = decimal.NewFromInt(1)
	}
	return domain.ProductEntry{
		Name:      name,
		Quantity:  qty,
		CostPrice: money(s.CostPrice),
		SalePrice: money(s.SalePrice),
	}
}

// normalizeItem enforces quantity > 0 and total = quantity x unit price,
// deriving whichever of the two prices is missing.
func normalizeItem(it domain.LineItem) domain.LineItem {
	it.Name = strings.TrimSpace(it.Name)
	it.Quantity = it.Quantity.Abs()
	if !it.Quantity.IsPositive() {
		it.Quantity = decimal.NewFromInt(1)
	}
	it.UnitPrice = money(it.UnitPrice)
	it.Total = money(it.Total)

	switch {
	case it.Total.IsZero() && it.UnitPrice.IsPositive():
		it.Total = it.Quantity.Mul(it.UnitPrice).Round(2)
	case it.UnitPrice.IsZero() && it.Total.IsPositive():
		it.UnitPrice = it.Total.DivRound(it.Quantity, 2)
	}
	return it
}

// NormalizeItems applies the item invariants to an edited item list.
func NormalizeItems(items []domain.LineItem) []domain.LineItem {
	out := make([]domain.LineItem, 0, len(items))
	for _, it := range items {
		out = append(out, normalizeItem(it))
	}
	return out
}

func fallbackDescription(d *domain.TransactionDraft) string {
	var names []string
	for _, it := range d.Items {
		if it.Name != "" && !slices.Contains(names, it.Name) {
			names = append(names, it.Name)
		}
	}
	if len(names) > 0 {
		return strings.Join(names, ", ")
	}
	if d.Type == domain.TransactionExpense {
		return fallbackExpenseDescription
	}
	return fallbackIncomeDescription
}
