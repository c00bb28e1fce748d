package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	chatservice "github.com/boddenberg/pdv-assistant-bfa-go/internal/chat/service"
	"github.com/boddenberg/pdv-assistant-bfa-go/internal/domain"
	"github.com/boddenberg/pdv-assistant-bfa-go/internal/handler"
	"github.com/boddenberg/pdv-assistant-bfa-go/internal/infra/cache"
	"github.com/boddenberg/pdv-assistant-bfa-go/internal/infra/observability"
	"github.com/boddenberg/pdv-assistant-bfa-go/internal/infra/sqlite"
	"github.com/boddenberg/pdv-assistant-bfa-go/internal/service"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stubClassifier answers by exact text; unknown text yields no candidates.
type stubClassifier struct {
	mu      sync.Mutex
	answers map[string][]domain.ActionCandidate
	block   chan struct{}
}

func (c *stubClassifier) Classify(ctx context.Context, text, _ string) ([]domain.ActionCandidate, error) {
	if c.block != nil {
		select {
		case <-c.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.answers[text], nil
}

type testEnv struct {
	router http.Handler
	store  *sqlite.Store
}

func newEnv(t *testing.T, classifier *stubClassifier, auth func(http.Handler) http.Handler, checks []handler.HealthCheck) *testEnv {
	t.Helper()
	logger := zap.NewNop()
	metrics := observability.NewMetrics()

	store, err := sqlite.Open(context.Background(), sqlite.MemoryPath, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	sessions := cache.New[*service.ReviewSession](time.Minute)
	t.Cleanup(sessions.Stop)

	captureSvc := service.NewCaptureService(
		sessions,
		classifier,
		service.NewCommitCoordinator(store, service.NewPageNavigator(), metrics, logger),
		nil,
		service.CaptureConfig{SuccessDismissDelay: time.Minute},
		metrics,
		logger,
	)
	chatSvc := chatservice.NewChatService(nil, []chatservice.ChatStrategy{
		chatservice.NewLedgerStrategy(captureSvc, logger),
	}, logger)

	if auth == nil {
		auth = handler.StaticStoreMiddleware("loja-1")
	}
	return &testEnv{
		router: handler.NewRouter(captureSvc, chatSvc, auth, checks, metrics, logger),
		store:  store,
	}
}

func (e *testEnv) do(t *testing.T, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func saleClassifier() *stubClassifier {
	return &stubClassifier{answers: map[string][]domain.ActionCandidate{
		"vendi 2 camisas por 50 cada no pix": {
			domain.TransactionCandidate{
				Description:   "camisas",
				Amount:        decimal.NewFromInt(100),
				Type:          domain.TransactionIncome,
				PaymentMethod: "pix",
			},
		},
	}}
}

func TestHealthz(t *testing.T) {
	env := newEnv(t, saleClassifier(), nil, []handler.HealthCheck{
		{Name: "ledger", Check: func(context.Context) error { return nil }},
	})

	rec := env.do(t, http.MethodGet, "/healthz", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var body domain.HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.Len(t, body.Services, 2)
}

func TestReadyz(t *testing.T) {
	env := newEnv(t, saleClassifier(), nil, nil)

	rec := env.do(t, http.MethodGet, "/readyz", "")

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyz_FailingCheck(t *testing.T) {
	env := newEnv(t, saleClassifier(), nil, []handler.HealthCheck{
		{Name: "ledger", Check: func(context.Context) error { return errors.New("down") }},
	})

	assert.Equal(t, http.StatusServiceUnavailable, env.do(t, http.MethodGet, "/readyz", "").Code)

	rec := env.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "degraded", decode(t, rec)["status"])
}

func TestMetrics(t *testing.T) {
	env := newEnv(t, saleClassifier(), nil, nil)
	env.do(t, http.MethodGet, "/healthz", "")

	rec := env.do(t, http.MethodGet, "/metrics", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "GET /healthz")
}

func TestCaptureFlow_TextEditCommit(t *testing.T) {
	env := newEnv(t, saleClassifier(), nil, nil)

	rec := env.do(t, http.MethodPost, "/v1/capture/sessions", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	opened := decode(t, rec)
	id := opened["id"].(string)
	assert.Equal(t, "INPUT", opened["phase"])
	assert.Equal(t, domain.ContextQuickCapture, opened["context"])

	rec = env.do(t, http.MethodPost, "/v1/capture/sessions/"+id+"/text", `{"text":"vendi 2 camisas por 50 cada no pix"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	review := decode(t, rec)
	assert.Equal(t, "REVIEW", review["phase"])
	draft := review["draft"].(map[string]any)
	assert.Equal(t, "Pix", draft["payment_method"])
	assert.NotEmpty(t, draft["idempotency_key"])

	rec = env.do(t, http.MethodPatch, "/v1/capture/sessions/"+id+"/draft", `{"description":"camisas polo","payment_method":"cartão de crédito"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	draft = decode(t, rec)["draft"].(map[string]any)
	assert.Equal(t, "camisas polo", draft["description"])
	assert.Equal(t, "Crédito", draft["payment_method"])

	rec = env.do(t, http.MethodPost, "/v1/capture/sessions/"+id+"/commit", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	done := decode(t, rec)
	assert.Equal(t, "SUCCESS", done["phase"])
	assert.NotEmpty(t, done["committed"].(map[string]any)["transaction_id"])

	txs, err := env.store.Transactions(context.Background(), "loja-1", time.Time{})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "camisas polo", txs[0].Description)
	assert.Equal(t, domain.PaymentCredito, txs[0].PaymentMethod)

	rec = env.do(t, http.MethodPost, "/v1/capture/sessions/"+id+"/reset", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "INPUT", decode(t, rec)["phase"])

	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, "/v1/capture/sessions/"+id, "").Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/v1/capture/sessions/"+id, "").Code)
}

func TestCapture_NothingUnderstood(t *testing.T) {
	env := newEnv(t, saleClassifier(), nil, nil)
	id := decode(t, env.do(t, http.MethodPost, "/v1/capture/sessions", ""))["id"].(string)

	rec := env.do(t, http.MethodPost, "/v1/capture/sessions/"+id+"/text", `{"text":"bom dia"}`)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decode(t, rec)
	assert.NotEmpty(t, body["message"])
	assert.Equal(t, "INPUT", body["session"].(map[string]any)["phase"])
}

func TestCapture_CommitOutsideReview(t *testing.T) {
	env := newEnv(t, saleClassifier(), nil, nil)
	id := decode(t, env.do(t, http.MethodPost, "/v1/capture/sessions", ""))["id"].(string)

	rec := env.do(t, http.MethodPost, "/v1/capture/sessions/"+id+"/commit", "")

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCapture_SubmitWhileProcessing(t *testing.T) {
	classifier := saleClassifier()
	classifier.block = make(chan struct{})
	env := newEnv(t, classifier, nil, nil)
	id := decode(t, env.do(t, http.MethodPost, "/v1/capture/sessions", ""))["id"].(string)

	first := make(chan int, 1)
	go func() {
		first <- env.do(t, http.MethodPost, "/v1/capture/sessions/"+id+"/text", `{"text":"vendi 2 camisas por 50 cada no pix"}`).Code
	}()

	require.Eventually(t, func() bool {
		rec := env.do(t, http.MethodGet, "/v1/capture/sessions/"+id, "")
		return decode(t, rec)["phase"] == "PROCESSING"
	}, time.Second, 5*time.Millisecond)

	rec := env.do(t, http.MethodPost, "/v1/capture/sessions/"+id+"/text", `{"text":"outra"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	close(classifier.block)
	assert.Equal(t, http.StatusOK, <-first)
}

func TestCapture_OtherStoreSeesNotFound(t *testing.T) {
	tokens := service.NewTokenService("test-secret", time.Hour)
	env := newEnv(t, saleClassifier(), handler.JWTAuthMiddleware(tokens, zap.NewNop()), nil)

	tokenA, err := tokens.SignAccessToken("loja-a")
	require.NoError(t, err)
	tokenB, err := tokens.SignAccessToken("loja-b")
	require.NoError(t, err)

	rec := env.do(t, http.MethodPost, "/v1/capture/sessions", "", "Authorization", "Bearer "+tokenA)
	require.Equal(t, http.StatusCreated, rec.Code)
	opened := decode(t, rec)
	assert.Equal(t, "loja-a", opened["store_id"])
	id := opened["id"].(string)

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/v1/capture/sessions/"+id, "", "Authorization", "Bearer "+tokenA).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/v1/capture/sessions/"+id, "", "Authorization", "Bearer "+tokenB).Code)
}

func TestJWTAuthMiddleware_Rejects(t *testing.T) {
	tokens := service.NewTokenService("test-secret", time.Hour)
	other, err := service.NewTokenService("other-secret", time.Hour).SignAccessToken("loja-a")
	require.NoError(t, err)
	env := newEnv(t, saleClassifier(), handler.JWTAuthMiddleware(tokens, zap.NewNop()), nil)

	tests := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"not bearer", "Basic abc"},
		{"wrong secret", "Bearer " + other},
		{"garbage", "Bearer not.a.jwt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var headers []string
			if tt.header != "" {
				headers = []string{"Authorization", tt.header}
			}
			rec := env.do(t, http.MethodPost, "/v1/capture/sessions", "", headers...)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}

	// operational endpoints stay open
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/healthz", "").Code)
}

func TestNormalizePaymentEndpoint(t *testing.T) {
	env := newEnv(t, saleClassifier(), nil, nil)

	rec := env.do(t, http.MethodGet, "/v1/payment-methods/normalize?q=cart%C3%A3o+de+d%C3%A9bito", "")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "cartão de débito", body["input"])
	assert.Equal(t, "Débito", body["payment_method"])
}

func TestChat_LedgerMessageOpensSession(t *testing.T) {
	env := newEnv(t, saleClassifier(), nil, nil)

	rec := env.do(t, http.MethodPost, "/v1/chat", `{"query":"vendi 2 camisas por 50 cada no pix"}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, "REVIEW", body["phase"])
	id := body["session_id"].(string)
	require.NotEmpty(t, id)

	snap := decode(t, env.do(t, http.MethodGet, "/v1/capture/sessions/"+id, ""))
	assert.Equal(t, domain.ContextChat, snap["context"])
	assert.Equal(t, "REVIEW", snap["phase"])
}

func TestChat_GeneralWithoutAgent(t *testing.T) {
	env := newEnv(t, saleClassifier(), nil, nil)

	rec := env.do(t, http.MethodPost, "/v1/chat", `{"query":"qual o horário de hoje?"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, decode(t, rec)["answer"], "vendi 2 camisas")
}
