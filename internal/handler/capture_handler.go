package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/boddenberg/pdv-assistant-bfa-go/internal/domain"
	"github.com/boddenberg/pdv-assistant-bfa-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// maxAudioBytes caps a voice upload. A few seconds of compressed speech is
// well under 1 MiB.
const maxAudioBytes = 5 << 20

type openSessionRequest struct {
	Context string `json:"context"`
}

type submitTextRequest struct {
	Text string `json:"text"`
}

// POST /v1/capture/sessions
func openSessionHandler(svc *service.CaptureService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "handler.OpenSession")
		defer span.End()

		var req openSessionRequest
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
		}

		snap := svc.Open(ctx, StoreIDFromContext(ctx), req.Context)
		span.SetAttributes(attribute.String("session.id", snap.ID))
		writeJSON(w, http.StatusCreated, snap)
	}
}

// GET /v1/capture/sessions/{sessionId}
func getSessionHandler(svc *service.CaptureService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := svc.Get(StoreIDFromContext(r.Context()), chi.URLParam(r, "sessionId"))
		if err != nil {
			handleServiceError(w, err, nil, logger)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

// POST /v1/capture/sessions/{sessionId}/text
func submitTextHandler(svc *service.CaptureService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "handler.SubmitText")
		defer span.End()

		var req submitTextRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: expected {\"text\": \"...\"}")
			return
		}

		snap, err := svc.SubmitText(ctx, StoreIDFromContext(ctx), chi.URLParam(r, "sessionId"), req.Text)
		if err != nil {
			span.RecordError(err)
			handleServiceError(w, err, snap, logger)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

// POST /v1/capture/sessions/{sessionId}/voice
//
// Body is the raw recording; Content-Type is forwarded to the transcriber.
func submitVoiceHandler(svc *service.CaptureService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "handler.SubmitVoice")
		defer span.End()

		audio, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxAudioBytes))
		if err != nil {
			writeError(w, http.StatusRequestEntityTooLarge, "audio too large")
			return
		}
		span.SetAttributes(attribute.Int("audio.bytes", len(audio)))

		snap, err := svc.SubmitVoice(ctx, StoreIDFromContext(ctx), chi.URLParam(r, "sessionId"), audio, r.Header.Get("Content-Type"))
		if err != nil {
			span.RecordError(err)
			handleServiceError(w, err, snap, logger)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

// PATCH /v1/capture/sessions/{sessionId}/draft
func editDraftHandler(svc *service.CaptureService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var patch domain.DraftPatch
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			writeError(w, http.StatusBadRequest, "invalid draft patch")
			return
		}

		snap, err := svc.Edit(StoreIDFromContext(r.Context()), chi.URLParam(r, "sessionId"), patch)
		if err != nil {
			handleServiceError(w, err, nil, logger)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

// POST /v1/capture/sessions/{sessionId}/commit
func commitHandler(svc *service.CaptureService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "handler.Commit")
		defer span.End()

		snap, err := svc.Commit(ctx, StoreIDFromContext(ctx), chi.URLParam(r, "sessionId"))
		if err != nil {
			span.RecordError(err)
			handleServiceError(w, err, snap, logger)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

// POST /v1/capture/sessions/{sessionId}/reset
func resetHandler(svc *service.CaptureService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := svc.Reset(StoreIDFromContext(r.Context()), chi.URLParam(r, "sessionId"))
		if err != nil {
			handleServiceError(w, err, nil, logger)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

// DELETE /v1/capture/sessions/{sessionId}
func closeSessionHandler(svc *service.CaptureService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Close(StoreIDFromContext(r.Context()), chi.URLParam(r, "sessionId")); err != nil {
			handleServiceError(w, err, nil, logger)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// GET /v1/payment-methods/normalize?q=cartao+de+credito
func normalizePaymentHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		writeJSON(w, http.StatusOK, map[string]string{
			"input":          q,
			"payment_method": string(service.NormalizePaymentMethod(q)),
		})
	}
}
