package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/boddenberg/pdv-assistant-bfa-go/internal/domain"

	"go.uber.org/zap"
)

// ============================================================
// Shared helper functions
// ============================================================

type errorResponse struct {
	Error   string                  `json:"error"`
	Message string                  `json:"message,omitempty"` // texto para o operador (pt-BR)
	Session *domain.SessionSnapshot `json:"session,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// errorStatus maps domain errors to HTTP status codes.
func errorStatus(err error) int {
	var (
		notFound     *domain.ErrNotFound
		validation   *domain.ErrValidation
		unauthorized *domain.ErrUnauthorized
		conflict     *domain.ErrConflict
		busy         *domain.ErrBusy
		phase        *domain.ErrInvalidPhase
		locked       *domain.ErrDraftLocked
		empty        *domain.ErrClassificationEmpty
		speech       *domain.SpeechError
		transport    *domain.ErrClassificationTransport
		rejected     *domain.ErrCommitRejected
		partial      *domain.ErrCommitPartialFailure
		circuitOpen  *domain.ErrCircuitOpen
		external     *domain.ErrExternalService
	)

	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &unauthorized):
		return http.StatusUnauthorized
	case errors.As(err, &busy), errors.As(err, &phase), errors.As(err, &locked), errors.As(err, &conflict):
		return http.StatusConflict
	case errors.As(err, &empty), errors.As(err, &speech):
		return http.StatusUnprocessableEntity
	case errors.As(err, &transport):
		return http.StatusBadGateway
	case errors.As(err, &partial):
		return http.StatusInternalServerError
	case errors.As(err, &rejected):
		if errors.As(err, &validation) {
			return http.StatusUnprocessableEntity
		}
		return http.StatusBadGateway
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &circuitOpen):
		return http.StatusServiceUnavailable
	case errors.As(err, &external):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// handleServiceError writes err as JSON. snap, when not nil, is the session
// state after the failure so the client can redraw without a second call.
func handleServiceError(w http.ResponseWriter, err error, snap *domain.SessionSnapshot, logger *zap.Logger) {
	status := errorStatus(err)

	switch {
	case status >= 500:
		logger.Error("request failed", zap.Int("status", status), zap.Error(err))
	case status == http.StatusNotFound || status == http.StatusBadRequest:
		logger.Debug("request rejected", zap.Int("status", status), zap.String("error", err.Error()))
	default:
		logger.Warn("request rejected", zap.Int("status", status), zap.Error(err))
	}

	resp := errorResponse{Error: err.Error(), Session: snap}
	var um domain.UserMessenger
	if errors.As(err, &um) {
		resp.Message = um.UserMessage()
	}
	if status == http.StatusInternalServerError && um == nil {
		resp.Error = "internal server error"
	}
	writeJSON(w, status, resp)
}
