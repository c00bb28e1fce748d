// Package service — chat_strategy_ledger.go implementa a strategy de
// lançamentos via chat.
//
// ============================================================
// LANÇAMENTO PELO CHAT
// ============================================================
//
// Quando o operador escreve "vendi 2 camisas por 50 no pix" no chat, a
// mensagem não vai pro agent: ela abre uma sessão de captura com contexto
// "chat", passa pelo classificador e vira um rascunho em revisão.
//
// O chat NÃO grava nada. A resposta resume o rascunho e devolve o
// session_id; a confirmação acontece em POST /v1/capture/sessions/{id}/commit,
// igual ao fluxo de captura rápida.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/boddenberg/pdv-assistant-bfa-go/internal/chat/domain"
	"github.com/boddenberg/pdv-assistant-bfa-go/internal/chat/port"
	maindomain "github.com/boddenberg/pdv-assistant-bfa-go/internal/domain"
	pdvservice "github.com/boddenberg/pdv-assistant-bfa-go/internal/service"

	"go.uber.org/zap"
)

// LedgerStrategy implementa ChatStrategy para o intent "ledger".
type LedgerStrategy struct {
	capture port.CaptureStarter
	logger  *zap.Logger
}

// NewLedgerStrategy cria a strategy de lançamentos.
func NewLedgerStrategy(capture port.CaptureStarter, logger *zap.Logger) *LedgerStrategy {
	return &LedgerStrategy{capture: capture, logger: logger}
}

// CanHandle retorna true quando o intent é "ledger".
func (s *LedgerStrategy) CanHandle(intent string) bool {
	return intent == domain.IntentLedger
}

// Handle abre a sessão, classifica a query e resume o rascunho.
//
// Falhas com mensagem para o operador (nada entendido, classificador fora)
// viram resposta do chat; a sessão continua aberta em INPUT e pode ser
// reaproveitada pelo frontend.
func (s *LedgerStrategy) Handle(ctx context.Context, chatCtx *domain.ChatContext) (*domain.ChatResponse, error) {
	ctx, span := chatTracer.Start(ctx, "LedgerStrategy.Handle")
	defer span.End()

	opened := s.capture.Open(ctx, chatCtx.StoreID, maindomain.ContextChat)

	snap, err := s.capture.SubmitText(ctx, chatCtx.StoreID, opened.ID, chatCtx.Query)
	if err != nil {
		var um maindomain.UserMessenger
		if !errors.As(err, &um) {
			return nil, fmt.Errorf("ledger capture: %w", err)
		}
		s.logger.Warn("chat ledger capture failed",
			zap.String("store_id", chatCtx.StoreID),
			zap.String("session_id", opened.ID),
			zap.Error(err),
		)
		return &domain.ChatResponse{
			Answer:    um.UserMessage(),
			SessionID: opened.ID,
			Phase:     string(maindomain.PhaseInput),
		}, nil
	}

	s.logger.Info("chat ledger draft ready",
		zap.String("store_id", chatCtx.StoreID),
		zap.String("session_id", snap.ID),
		zap.String("kind", string(snap.Kind)),
	)

	return &domain.ChatResponse{
		Answer:    Summarize(snap.Draft),
		SessionID: snap.ID,
		Phase:     string(snap.Phase),
	}, nil
}

// Summarize descreve um rascunho em uma frase curta para o chat.
func Summarize(d maindomain.Draft) string {
	switch v := d.(type) {
	case *maindomain.TransactionDraft:
		kind := "venda"
		if v.Type == maindomain.TransactionExpense {
			kind = "despesa"
		}
		var b strings.Builder
		fmt.Fprintf(&b, "Entendi: %s de %s (%s) em %s.",
			kind, pdvservice.FormatBRL(v.Amount), v.Description, v.PaymentMethod)
		if v.DebtAmount.IsPositive() {
			customer := v.CustomerName
			if customer == "" {
				customer = "cliente não informado"
			}
			fmt.Fprintf(&b, " Fiado de %s para %s.", pdvservice.FormatBRL(v.DebtAmount), customer)
		}
		if n := len(v.StockEntries); n > 0 {
			fmt.Fprintf(&b, " %d produto(s) entram no estoque.", n)
		}
		b.WriteString(" Confirme para salvar.")
		return b.String()

	case *maindomain.StockDraft:
		names := make([]string, 0, len(v.Products))
		for _, p := range v.Products {
			names = append(names, fmt.Sprintf("%s x%s", p.Name, p.Quantity.String()))
		}
		return fmt.Sprintf("Entendi: entrada de estoque de %s. Confirme para salvar.", strings.Join(names, ", "))

	case *maindomain.ServiceOrderDraft:
		return fmt.Sprintf("Entendi: ordem de serviço para %s (%s): %s, estimada em %s. Confirme para salvar.",
			v.CustomerName, v.Device, v.ProblemDescription, pdvservice.FormatBRL(v.EstimatedPrice))

	case *maindomain.NavigateIntent:
		return fmt.Sprintf("Confirme para abrir a página %s.", v.TargetPage)
	}
	return "Não entendi o comando. Tente descrever de outra forma."
}
