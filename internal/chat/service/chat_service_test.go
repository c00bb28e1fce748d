package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/boddenberg/pdv-assistant-bfa-go/internal/chat/domain"
	"github.com/boddenberg/pdv-assistant-bfa-go/internal/chat/service"
	maindomain "github.com/boddenberg/pdv-assistant-bfa-go/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockAgent struct{ mock.Mock }

func (m *mockAgent) SendChat(ctx context.Context, req *domain.ChatAgentRequest) (*domain.ChatAgentResponse, error) {
	args := m.Called(ctx, req)
	if r := args.Get(0); r != nil {
		return r.(*domain.ChatAgentResponse), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockCapture struct{ mock.Mock }

func (m *mockCapture) Open(ctx context.Context, storeID, contextTag string) *maindomain.SessionSnapshot {
	return m.Called(ctx, storeID, contextTag).Get(0).(*maindomain.SessionSnapshot)
}

func (m *mockCapture) SubmitText(ctx context.Context, storeID, sessionID, text string) (*maindomain.SessionSnapshot, error) {
	args := m.Called(ctx, storeID, sessionID, text)
	if r := args.Get(0); r != nil {
		return r.(*maindomain.SessionSnapshot), args.Error(1)
	}
	return nil, args.Error(1)
}

func newChat(agent *mockAgent, capture *mockCapture) *service.ChatService {
	return service.NewChatService(agent,
		[]service.ChatStrategy{service.NewLedgerStrategy(capture, zap.NewNop())},
		zap.NewNop(),
	)
}

func TestDetectIntent(t *testing.T) {
	tests := []struct {
		query string
		want  string
	}{
		{"Vendi 2 camisas por 50 reais no pix", domain.IntentLedger},
		{"comprei mercadoria, paguei 300", domain.IntentLedger},
		{"a Dona Maria levou no FIADO", domain.IntentLedger},
		{"chegaram 10 bonés pro estoque", domain.IntentLedger},
		{"abre uma ordem de serviço pro João", domain.IntentLedger},
		{"me leva pro caixa", domain.IntentLedger},
		{"Como funciona o fechamento?", domain.IntentGeneral},
		{"quais os produtos mais caros", domain.IntentGeneral},
		{"", domain.IntentGeneral},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, service.DetectIntent(tt.query))
		})
	}
}

func TestProcessMessage_LedgerOpensChatSession(t *testing.T) {
	agent := new(mockAgent)
	capture := new(mockCapture)

	draft := &maindomain.TransactionDraft{
		Description:   "camisas",
		Amount:        decimal.NewFromInt(100),
		Type:          maindomain.TransactionIncome,
		PaymentMethod: maindomain.PaymentPix,
	}
	capture.On("Open", mock.Anything, "store-1", maindomain.ContextChat).
		Return(&maindomain.SessionSnapshot{ID: "sess-1", Phase: maindomain.PhaseInput})
	capture.On("SubmitText", mock.Anything, "store-1", "sess-1", "vendi 2 camisas").
		Return(&maindomain.SessionSnapshot{ID: "sess-1", Phase: maindomain.PhaseReview, Kind: maindomain.ActionTransaction, Draft: draft}, nil)

	resp, err := newChat(agent, capture).ProcessMessage(context.Background(), "store-1", &domain.ChatRequest{Query: "vendi 2 camisas"})

	require.NoError(t, err)
	assert.Equal(t, "sess-1", resp.SessionID)
	assert.Equal(t, "REVIEW", resp.Phase)
	assert.Equal(t, "Entendi: venda de R$ 100,00 (camisas) em Pix. Confirme para salvar.", resp.Answer)
	agent.AssertNotCalled(t, "SendChat", mock.Anything, mock.Anything)
	capture.AssertExpectations(t)
}

func TestProcessMessage_LedgerNotUnderstood(t *testing.T) {
	capture := new(mockCapture)
	capture.On("Open", mock.Anything, "store-1", maindomain.ContextChat).
		Return(&maindomain.SessionSnapshot{ID: "sess-2"})
	capture.On("SubmitText", mock.Anything, "store-1", "sess-2", mock.Anything).
		Return(nil, &maindomain.ErrClassificationEmpty{Text: "vendi"})

	resp, err := newChat(new(mockAgent), capture).ProcessMessage(context.Background(), "store-1", &domain.ChatRequest{Query: "vendi"})

	require.NoError(t, err)
	assert.Equal(t, "Não entendi o comando. Tente descrever de outra forma.", resp.Answer)
	assert.Equal(t, "sess-2", resp.SessionID)
	assert.Equal(t, "INPUT", resp.Phase)
}

func TestProcessMessage_LedgerUnexpectedError(t *testing.T) {
	capture := new(mockCapture)
	capture.On("Open", mock.Anything, "store-1", maindomain.ContextChat).
		Return(&maindomain.SessionSnapshot{ID: "sess-3"})
	capture.On("SubmitText", mock.Anything, "store-1", "sess-3", mock.Anything).
		Return(nil, errors.New("boom"))

	_, err := newChat(new(mockAgent), capture).ProcessMessage(context.Background(), "store-1", &domain.ChatRequest{Query: "vendi"})
	assert.Error(t, err)
}

func TestProcessMessage_GeneralGoesToAgent(t *testing.T) {
	agent := new(mockAgent)
	agent.On("SendChat", mock.Anything, &domain.ChatAgentRequest{
		Query:   "como fecho o caixa?",
		StoreID: "store-1",
		Context: domain.IntentGeneral,
	}).Return(&domain.ChatAgentResponse{Answer: "Vá em Relatórios."}, nil)

	resp, err := newChat(agent, new(mockCapture)).ProcessMessage(context.Background(), "store-1", &domain.ChatRequest{Query: "como fecho o caixa?"})

	require.NoError(t, err)
	assert.Equal(t, "Vá em Relatórios.", resp.Answer)
	assert.Empty(t, resp.SessionID)
	agent.AssertExpectations(t)
}

func TestProcessMessage_AgentFailure(t *testing.T) {
	agent := new(mockAgent)
	agent.On("SendChat", mock.Anything, mock.Anything).
		Return(nil, &maindomain.ErrExternalService{Service: "chat-agent", Err: errors.New("down")})

	_, err := newChat(agent, new(mockCapture)).ProcessMessage(context.Background(), "s", &domain.ChatRequest{Query: "oi"})

	var ext *maindomain.ErrExternalService
	assert.ErrorAs(t, err, &ext)
}

func TestProcessMessage_NoAgentConfigured(t *testing.T) {
	svc := service.NewChatService(nil, nil, zap.NewNop())

	resp, err := svc.ProcessMessage(context.Background(), "s", &domain.ChatRequest{Query: "oi"})

	require.NoError(t, err)
	assert.Contains(t, resp.Answer, "vendi 2 camisas")
}

func TestSummarize(t *testing.T) {
	tests := []struct {
		name  string
		draft maindomain.Draft
		want  string
	}{
		{
			name: "sale with debt",
			draft: &maindomain.TransactionDraft{
				Description:   "Bolo",
				Amount:        decimal.NewFromInt(30),
				DebtAmount:    decimal.NewFromInt(20),
				Type:          maindomain.TransactionIncome,
				PaymentMethod: maindomain.PaymentDinheiro,
				CustomerName:  "Ana",
			},
			want: "Entendi: venda de R$ 30,00 (Bolo) em Dinheiro. Fiado de R$ 20,00 para Ana. Confirme para salvar.",
		},
		{
			name: "expense",
			draft: &maindomain.TransactionDraft{
				Description:   "Aluguel",
				Amount:        decimal.NewFromInt(1500),
				Type:          maindomain.TransactionExpense,
				PaymentMethod: maindomain.PaymentBoleto,
			},
			want: "Entendi: despesa de R$ 1.500,00 (Aluguel) em Boleto. Confirme para salvar.",
		},
		{
			name: "stock",
			draft: &maindomain.StockDraft{Products: []maindomain.ProductEntry{
				{Name: "Boné", Quantity: decimal.NewFromInt(3)},
				{Name: "Meia", Quantity: decimal.NewFromInt(10)},
			}},
			want: "Entendi: entrada de estoque de Boné x3, Meia x10. Confirme para salvar.",
		},
		{
			name:  "navigate",
			draft: &maindomain.NavigateIntent{TargetPage: "estoque"},
			want:  "Confirme para abrir a página estoque.",
		},
		{
			name:  "nil",
			draft: nil,
			want:  "Não entendi o comando. Tente descrever de outra forma.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, service.Summarize(tt.draft))
		})
	}
}
