package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/boddenberg/pdv-assistant-bfa-go/internal/speech"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// TranscriberClient talks to the speech-to-text service. It does not
// recognize anything itself: each upload becomes a one-shot speech.Engine.
//
// POST {baseURL}/v1/transcribe  (body: raw audio)
//
//	→ {"transcript": "...", "final": true}
type TranscriberClient struct {
	httpClient *http.Client
	baseURL    string
	cb         *gobreaker.CircuitBreaker
	logger     *zap.Logger
}

// NewTranscriberClient creates a new TranscriberClient.
func NewTranscriberClient(httpClient *http.Client, baseURL string, cb *gobreaker.CircuitBreaker, logger *zap.Logger) *TranscriberClient {
	return &TranscriberClient{
		httpClient: httpClient,
		baseURL:    baseURL,
		cb:         cb,
		logger:     logger,
	}
}

// NewEngine wraps one recording in a speech.Engine.
func (c *TranscriberClient) NewEngine(audio []byte, contentType string) speech.Engine {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return &transcriberEngine{client: c, audio: audio, contentType: contentType}
}

type transcribeResponse struct {
	Transcript string `json:"transcript"`
	Final      *bool  `json:"final,omitempty"`
}

// errStatus carries a non-2xx status out of the breaker.
type errStatus struct {
	code int
}

func (e *errStatus) Error() string { return fmt.Sprintf("transcriber API returned status %d", e.code) }

func (c *TranscriberClient) transcribe(ctx context.Context, audio []byte, contentType string) (*transcribeResponse, error) {
	ctx, span := tracer.Start(ctx, "TranscriberClient.Transcribe")
	defer span.End()

	result, err := c.cb.Execute(func() (any, error) {
		url := fmt.Sprintf("%s/v1/transcribe", c.baseURL)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(audio))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, &errStatus{code: resp.StatusCode}
		}

		var out transcribeResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return nil, fmt.Errorf("decode transcriber response: %w", err)
		}
		return &out, nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return result.(*transcribeResponse), nil
}

// transcriberEngine reports the STT call through the engine event contract:
// start, one final result, end; or a single error code.
type transcriberEngine struct {
	client      *TranscriberClient
	audio       []byte
	contentType string

	mu     sync.Mutex
	cancel context.CancelFunc
}

func (e *transcriberEngine) Supported() bool {
	return e.client != nil && e.client.baseURL != ""
}

func (e *transcriberEngine) Begin(ev speech.Events) error {
	if len(e.audio) == 0 {
		return errors.New("empty recording")
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.mu.Lock()
	e.cancel = cancel
	e.mu.Unlock()

	go func() {
		defer cancel()

		ev.OnStart()
		out, err := e.client.transcribe(ctx, e.audio, e.contentType)
		if err != nil {
			code := errorCode(ctx, err)
			e.client.logger.Warn("transcription failed", zap.String("code", code), zap.Error(err))
			ev.OnError(code)
			return
		}
		final := out.Final == nil || *out.Final
		if out.Transcript == "" {
			ev.OnError(speech.CodeNoSpeech)
			return
		}
		ev.OnResult(out.Transcript, final)
		ev.OnEnd()
	}()
	return nil
}

func (e *transcriberEngine) Abort() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.cancel()
	}
}

func errorCode(ctx context.Context, err error) string {
	if ctx.Err() != nil {
		return speech.CodeAborted
	}
	var st *errStatus
	if errors.As(err, &st) {
		switch {
		case st.code == http.StatusUnauthorized || st.code == http.StatusForbidden:
			return speech.CodeNotAllowed
		case st.code == http.StatusUnprocessableEntity || st.code == http.StatusNoContent:
			return speech.CodeNoSpeech
		default:
			return fmt.Sprintf("http-%d", st.code)
		}
	}
	return speech.CodeNetwork
}
