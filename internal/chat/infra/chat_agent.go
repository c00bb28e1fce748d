package infra

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/boddenberg/pdv-assistant-bfa-go/internal/chat/domain"
	maindomain "github.com/boddenberg/pdv-assistant-bfa-go/internal/domain"
	"github.com/boddenberg/pdv-assistant-bfa-go/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// tracer é o tracer OpenTelemetry para o módulo chat/infra.
var tracer = otel.Tracer("chat/infra")

// ============================================================
// ChatAgentClient — cliente HTTP que chama o Agent Python
// ============================================================
//
// Chama POST /v1/chat com o contrato simples do agent:
//
//	Request:  {"query": "Como faço o fechamento de caixa?", "store_id": "..."}
//	Response: {"answer": "...", "sources": [...], "tokens_used": 812, ...}
//
// Só recebe as mensagens que NÃO são lançamentos; essas vão pro classificador.

type ChatAgentClient struct {
	httpClient *http.Client
	baseURL    string // ex: https://pdv-assistant-agent-py.up.railway.app
	cb         *gobreaker.CircuitBreaker
	cfg        resilience.Config
}

// NewChatAgentClient cria o client que se comunica com o Agent Python.
// O baseURL deve ser a URL base do agent (sem /v1/chat no final).
func NewChatAgentClient(httpClient *http.Client, baseURL string, cb *gobreaker.CircuitBreaker, cfg resilience.Config) *ChatAgentClient {
	return &ChatAgentClient{
		httpClient: httpClient,
		baseURL:    baseURL,
		cb:         cb,
		cfg:        cfg,
	}
}

// SendChat envia uma mensagem para o Agent Python e retorna a resposta.
//
// Circuit breaker + retry com backoff; respostas 4xx não são repetidas.
func (c *ChatAgentClient) SendChat(ctx context.Context, req *domain.ChatAgentRequest) (*domain.ChatAgentResponse, error) {
	ctx, span := tracer.Start(ctx, "ChatAgentClient.SendChat")
	defer span.End()
	span.SetAttributes(attribute.String("store.id", req.StoreID))

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	result, err := c.cb.Execute(func() (any, error) {
		var agentResp domain.ChatAgentResponse
		innerErr := resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			url := fmt.Sprintf("%s/v1/chat", c.baseURL)
			httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
			if err != nil {
				return resilience.Permanent(fmt.Errorf("create http request: %w", err))
			}
			httpReq.Header.Set("Content-Type", "application/json")

			resp, err := c.httpClient.Do(httpReq)
			if err != nil {
				return fmt.Errorf("http call to agent: %w", err)
			}
			defer resp.Body.Close()

			switch {
			case resp.StatusCode >= 500:
				return fmt.Errorf("agent /v1/chat returned status %d", resp.StatusCode)
			case resp.StatusCode != http.StatusOK:
				return resilience.Permanent(fmt.Errorf("agent /v1/chat returned status %d", resp.StatusCode))
			}

			if err := json.NewDecoder(resp.Body).Decode(&agentResp); err != nil {
				return resilience.Permanent(fmt.Errorf("decode agent response: %w", err))
			}
			return nil
		})

		if innerErr != nil {
			return nil, innerErr
		}
		return &agentResp, nil
	})

	if err != nil {
		span.RecordError(err)
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &maindomain.ErrCircuitOpen{Service: "chat-agent"}
		}
		return nil, &maindomain.ErrExternalService{Service: "chat-agent", Err: err}
	}

	return result.(*domain.ChatAgentResponse), nil
}
