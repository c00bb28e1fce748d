// Package service — chat_service.go implementa o ChatService.
//
// ============================================================
// ARQUITETURA — Strategy Pattern para Routing de Contexto
// ============================================================
//
// O ChatService é o orquestrador central da rota POST /v1/chat.
// Ele recebe a query do operador, detecta a intenção (intent) e delega
// o processamento para a Strategy correta.
//
// Fluxo completo:
//  1. Handler recebe POST /v1/chat com body {"query": "..."}
//  2. ChatService.ProcessMessage() é chamado
//  3. Detecta a intenção do operador (lançamento? pergunta geral?)
//  4. Busca a Strategy que aceita o intent
//  5. Se não encontra, manda a query direto pro agent
//
// Strategies disponíveis:
//   - LedgerStrategy: transforma a mensagem em rascunho de lançamento
package service

import (
	"context"
	"slices"
	"strings"

	"github.com/boddenberg/pdv-assistant-bfa-go/internal/chat/domain"
	"github.com/boddenberg/pdv-assistant-bfa-go/internal/chat/port"
	pdvservice "github.com/boddenberg/pdv-assistant-bfa-go/internal/service"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

// chatTracer é o tracer OpenTelemetry para o módulo de chat.
var chatTracer = otel.Tracer("chat/service")

// ============================================================
// ChatStrategy — interface que cada contexto implementa
// ============================================================

// ChatStrategy define o contrato de uma estratégia de processamento.
//
// CanHandle: diz se essa strategy sabe lidar com a intenção detectada
// Handle:    processa a mensagem e retorna a resposta
type ChatStrategy interface {
	CanHandle(intent string) bool
	Handle(ctx context.Context, chatCtx *domain.ChatContext) (*domain.ChatResponse, error)
}

// ============================================================
// ChatService — orquestrador com strategy routing
// ============================================================

// ChatService é o serviço principal da rota de chat.
type ChatService struct {
	agentClient port.ChatAgentCaller

	// A ordem importa: a primeira strategy que aceita a intenção ganha.
	strategies []ChatStrategy

	logger *zap.Logger
}

// NewChatService cria o ChatService com as dependências injetadas.
func NewChatService(
	agentClient port.ChatAgentCaller,
	strategies []ChatStrategy,
	logger *zap.Logger,
) *ChatService {
	return &ChatService{
		agentClient: agentClient,
		strategies:  strategies,
		logger:      logger,
	}
}

// ProcessMessage é o ponto de entrada principal do chat.
func (s *ChatService) ProcessMessage(ctx context.Context, storeID string, req *domain.ChatRequest) (*domain.ChatResponse, error) {
	ctx, span := chatTracer.Start(ctx, "ChatService.ProcessMessage")
	defer span.End()

	intent := DetectIntent(req.Query)

	s.logger.Info("chat message received",
		zap.String("store_id", storeID),
		zap.String("intent", intent),
		zap.Int("query_length", len(req.Query)),
	)

	chatCtx := &domain.ChatContext{
		StoreID:        storeID,
		Query:          req.Query,
		DetectedIntent: intent,
	}

	for _, strategy := range s.strategies {
		if strategy.CanHandle(intent) {
			s.logger.Debug("delegating to strategy", zap.String("intent", intent))
			return strategy.Handle(ctx, chatCtx)
		}
	}

	s.logger.Debug("no strategy matched, using default agent call",
		zap.String("intent", intent),
	)
	return s.defaultHandle(ctx, chatCtx)
}

// defaultHandle envia a query diretamente pro Agent Python sem lógica extra.
func (s *ChatService) defaultHandle(ctx context.Context, chatCtx *domain.ChatContext) (*domain.ChatResponse, error) {
	if s.agentClient == nil {
		return &domain.ChatResponse{
			Answer: "Posso registrar vendas, despesas, fiado, estoque e ordens de serviço. " +
				"Experimente: \"vendi 2 camisas por 50 reais no pix\".",
		}, nil
	}

	agentResp, err := s.agentClient.SendChat(ctx, &domain.ChatAgentRequest{
		Query:   chatCtx.Query,
		StoreID: chatCtx.StoreID,
		Context: chatCtx.DetectedIntent,
	})
	if err != nil {
		s.logger.Error("agent call failed",
			zap.String("store_id", chatCtx.StoreID),
			zap.Error(err),
		)
		return nil, err
	}

	return &domain.ChatResponse{Answer: agentResp.Answer}, nil
}

// ============================================================
// DetectIntent — detecção simples de intenção por keywords
// ============================================================

// ledgerWords são verbos e substantivos que indicam uma operação de caixa.
// A comparação é feita sem acento e por palavra inteira.
var ledgerWords = []string{
	"vendi", "vendemos", "venda", "vendeu",
	"comprei", "compramos", "paguei", "pagamos", "gastei", "gastamos",
	"recebi", "recebemos", "fiado", "fiei", "pendura", "pendurou",
	"estoque", "repor", "reposicao", "chegou", "chegaram",
	"conserto", "consertar", "reparo",
}

// ledgerPhrases casam como sequência de palavras.
var ledgerPhrases = []string{
	"ordem de servico", "abrir a tela", "abre a tela", "ir para", "me leva",
}

// DetectIntent analisa a query e retorna IntentLedger ou IntentGeneral.
func DetectIntent(query string) string {
	words := pdvservice.Words(query)
	for _, w := range words {
		if slices.Contains(ledgerWords, w) {
			return domain.IntentLedger
		}
	}

	joined := " " + strings.Join(words, " ") + " "
	for _, p := range ledgerPhrases {
		if strings.Contains(joined, " "+p+" ") {
			return domain.IntentLedger
		}
	}
	return domain.IntentGeneral
}
