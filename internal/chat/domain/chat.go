// Package domain — chat.go define os tipos usados pela rota POST /v1/chat.
//
// O chat é a "porta de entrada" em linguagem natural do PDV. Ele recebe
// uma query e devolve uma string, mas quando a mensagem descreve uma
// operação de caixa (venda, despesa, fiado, estoque, OS) ela vira uma
// sessão de captura em vez de ir para o agent.
//
// O fluxo completo:
//  1. Operador manda {"query": "..."} → BFA recebe
//  2. BFA detecta a intenção (ledger ou general)
//  3. ledger  → abre sessão de captura com contexto "chat" e classifica
//  4. general → manda pro Agent Python (POST /v1/chat)
//  5. BFA retorna {"answer": "..."} e, se houver, o session_id do rascunho
package domain

// ============================================================
// Chat — Request/Response entre o chamador e o BFA
// ============================================================

// ChatRequest é o body que o chamador envia no POST /v1/chat.
type ChatRequest struct {
	Query string `json:"query"`
}

// ChatResponse é o que o BFA devolve pro chamador.
//
// SessionID só vem preenchido quando a mensagem abriu uma sessão de captura;
// o frontend usa o id para mostrar a tela de revisão
// (GET /v1/capture/sessions/{id}).
type ChatResponse struct {
	Answer    string `json:"answer"`
	SessionID string `json:"session_id,omitempty"`
	Phase     string `json:"phase,omitempty"`
}

// ============================================================
// Chat — Request/Response entre o BFA e o Agent Python
// ============================================================

// ChatAgentRequest é o payload que o BFA envia pro Agent Python (POST /v1/chat).
//
//	curl -X POST /v1/chat -d '{"query": "..."}'
type ChatAgentRequest struct {
	// Query é o prompt do operador, campo obrigatório
	Query string `json:"query"`

	// StoreID identifica a loja, usado pelo agent para personalizar a resposta
	StoreID string `json:"store_id,omitempty"`

	// Context indica o assunto da conversa ("general", "ledger").
	Context string `json:"context,omitempty"`
}

// ChatAgentResponse é a resposta que o Agent Python devolve.
//
//	{
//	  "answer": "O fechamento de caixa fica em Relatórios...",
//	  "sources": ["faq_caixa.md"],
//	  "tokens_used": 812,
//	  "estimated_cost_usd": 0.0011,
//	  "timestamp": "2026-03-01T14:30:00"
//	}
type ChatAgentResponse struct {
	StoreID    string   `json:"store_id,omitempty"`
	Answer     string   `json:"answer"`
	Sources    []string `json:"sources,omitempty"`
	TokensUsed int      `json:"tokens_used"`
	EstCostUSD float64  `json:"estimated_cost_usd"`
	Timestamp  string   `json:"timestamp"`
}

// ============================================================
// Strategy Context — define qual strategy processar a mensagem
// ============================================================

// Intents detectados pelo roteador do chat.
const (
	IntentLedger  = "ledger"
	IntentGeneral = "general"
)

// ChatContext encapsula tudo que uma Strategy precisa para processar
// uma mensagem do chat. É montado pelo ChatService antes de delegar.
type ChatContext struct {
	StoreID        string
	Query          string
	DetectedIntent string
}
