// Package handler — chat_handler.go implementa o handler da rota
// POST /v1/chat, a entrada em linguagem natural do PDV.
//
//   - Recebe body JSON: {"query": "..."}
//   - Usa Strategy Pattern para rotear o contexto
//   - Lançamentos abrem uma sessão de captura; o resto vai pro agent
//   - Retorna: {"answer": "...", "session_id": "..."}
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/boddenberg/pdv-assistant-bfa-go/internal/chat/domain"
	"github.com/boddenberg/pdv-assistant-bfa-go/internal/chat/service"
	maindomain "github.com/boddenberg/pdv-assistant-bfa-go/internal/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// tracer é o tracer OpenTelemetry para o módulo chat/handler.
var tracer = otel.Tracer("chat/handler")

// StoreIDFunc extrai a loja autenticada do contexto da request.
type StoreIDFunc func(ctx context.Context) string

// ============================================================
// ChatHandler — POST /v1/chat
// ============================================================

// ChatHandler retorna o http.HandlerFunc para a rota POST /v1/chat.
//
// Request:
//
//	Content-Type: application/json
//	Body: {"query": "vendi 2 camisas por 50 reais no pix"}
//
// Response (200 OK):
//
//	{"answer": "Entendi: venda de R$ 100,00 (camisas) em Pix. Confirme para salvar.",
//	 "session_id": "7c9e...", "phase": "REVIEW"}
//
// O handler é fino: só faz validação básica e delega pro ChatService.
func ChatHandler(chatSvc *service.ChatService, storeID StoreIDFunc, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/chat")
		defer span.End()

		store := storeID(ctx)
		span.SetAttributes(attribute.String("store.id", store))

		var req domain.ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: expected {\"query\": \"your message\"}")
			return
		}

		if req.Query == "" {
			writeError(w, http.StatusBadRequest, "query is required")
			return
		}

		resp, err := chatSvc.ProcessMessage(ctx, store, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

// ============================================================
// Helpers — funções utilitárias do chat handler
// ============================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// handleServiceError mapeia erros de domínio para HTTP status codes.
func handleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	var (
		ext  *maindomain.ErrExternalService
		open *maindomain.ErrCircuitOpen
		val  *maindomain.ErrValidation
	)
	switch {
	case errors.As(err, &open):
		writeError(w, http.StatusServiceUnavailable, "external service unavailable: "+open.Service)
	case errors.As(err, &ext):
		logger.Error("external service error", zap.String("service", ext.Service), zap.Error(ext.Err))
		writeError(w, http.StatusBadGateway, "external service unavailable: "+ext.Service)
	case errors.As(err, &val):
		writeError(w, http.StatusUnprocessableEntity, val.Error())
	default:
		logger.Error("unexpected error in chat handler", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
