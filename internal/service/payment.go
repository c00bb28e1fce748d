package service

import (
	"strings"

	"github.com/boddenberg/pdv-assistant-bfa-go/internal/domain"
)

// cardBrands are matched as whole tokens ("elo" must not match "modelo").
var cardBrands = map[string]bool{
	"visa":       true,
	"master":     true,
	"mastercard": true,
	"elo":        true,
	"amex":       true,
	"hipercard":  true,
	"hiper":      true,
	"diners":     true,
}

// paymentRule maps descriptor keywords to a method. Rules are checked in
// order and the first match wins.
type paymentRule struct {
	method   domain.PaymentMethod
	keywords []string
	brands   bool
}

var paymentRules = []paymentRule{
	{method: domain.PaymentPix, keywords: []string{"pix"}},
	{method: domain.PaymentBoleto, keywords: []string{"boleto"}},
	{method: domain.PaymentDebito, keywords: []string{"debito"}},
	{method: domain.PaymentCredito, keywords: []string{"credito", "parcelado"}, brands: true},
	{method: domain.PaymentDinheiro, keywords: []string{"dinheiro", "especie", "nota"}},
	// Ambiguous "cartão" with no other hint is treated as credit.
	{method: domain.PaymentCredito, keywords: []string{"cartao", "card"}},
}

// NormalizePaymentMethod maps a free-text payment descriptor to the closed
// enumeration. It is total: every input, including "", yields one value.
func NormalizePaymentMethod(descriptor string) domain.PaymentMethod {
	folded := Fold(descriptor)
	if folded == "" {
		return domain.PaymentOutro
	}
	toks := tokens(folded)

	for _, rule := range paymentRules {
		for _, kw := range rule.keywords {
			if strings.Contains(folded, kw) {
				return rule.method
			}
		}
		if rule.brands {
			for _, tok := range toks {
				if cardBrands[tok] {
					return rule.method
				}
			}
		}
	}
	return domain.PaymentOutro
}
