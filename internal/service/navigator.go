package service

import (
	"context"
	"strings"

	"github.com/boddenberg/pdv-assistant-bfa-go/internal/domain"
)

// pageRoutes maps folded page names and synonyms to client routes.
var pageRoutes = map[string]string{
	"dashboard": "/dashboard",
	"inicio":    "/dashboard",
	"painel":    "/dashboard",
	"home":      "/dashboard",

	"vendas":      "/transactions",
	"venda":       "/transactions",
	"transacoes":  "/transactions",
	"lancamentos": "/transactions",
	"financeiro":  "/transactions",
	"despesas":    "/transactions",

	"estoque":  "/products",
	"produtos": "/products",
	"produto":  "/products",

	"ordens":            "/service-orders",
	"ordem de servico":  "/service-orders",
	"ordens de servico": "/service-orders",
	"os":                "/service-orders",
	"servicos":          "/service-orders",

	"fiado":            "/debts",
	"fiados":           "/debts",
	"dividas":          "/debts",
	"contas a receber": "/debts",

	"caixa":               "/cash-closing",
	"fechamento":          "/cash-closing",
	"fechamento de caixa": "/cash-closing",
	"relatorios":          "/reports",
	"relatorio":           "/reports",
	"configuracoes":       "/settings",
	"ajustes":             "/settings",
}

// PageNavigator resolves navigation intents against a fixed route table.
type PageNavigator struct{}

// NewPageNavigator creates the navigator.
func NewPageNavigator() *PageNavigator { return &PageNavigator{} }

// Navigate returns the route for targetPage. Lookups ignore case, accents
// and a leading "pagina de"/"tela de".
func (n *PageNavigator) Navigate(_ context.Context, targetPage string) (string, error) {
	key := Fold(targetPage)
	for _, prefix := range []string{"pagina de ", "pagina do ", "tela de ", "tela do ", "o ", "a "} {
		if rest, ok := strings.CutPrefix(key, prefix); ok && rest != "" {
			key = rest
			break
		}
	}
	if route, ok := pageRoutes[key]; ok {
		return route, nil
	}
	return "", &domain.ErrValidation{Field: "target_page", Message: "unknown page: " + targetPage}
}
