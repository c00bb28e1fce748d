package handler

import (
	"context"
	"net/http"
	"time"

	chathandler "github.com/boddenberg/pdv-assistant-bfa-go/internal/chat/handler"
	chatservice "github.com/boddenberg/pdv-assistant-bfa-go/internal/chat/service"
	"github.com/boddenberg/pdv-assistant-bfa-go/internal/domain"
	"github.com/boddenberg/pdv-assistant-bfa-go/internal/infra/observability"
	"github.com/boddenberg/pdv-assistant-bfa-go/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// HealthCheck probes one dependency for /healthz and /readyz.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// NewRouter creates the HTTP router with all routes and middleware.
//
// auth resolves the store of each /v1 request: JWTAuthMiddleware in
// production, StaticStoreMiddleware when AUTH_ENABLED=false.
func NewRouter(
	captureSvc *service.CaptureService,
	chatSvc *chatservice.ChatService,
	auth func(http.Handler) http.Handler,
	checks []HealthCheck,
	metrics *observability.Metrics,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(observability.MetricsMiddleware(metrics))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(checks))
	r.Get("/readyz", readyzHandler(checks))
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {
		r.Use(auth)

		// =============================================
		// 1. Captura (voz/texto → rascunho → caixa)
		// =============================================
		r.Route("/capture/sessions", func(r chi.Router) {
			r.Post("/", openSessionHandler(captureSvc, logger))
			r.Get("/{sessionId}", getSessionHandler(captureSvc, logger))
			r.Delete("/{sessionId}", closeSessionHandler(captureSvc, logger))
			r.Post("/{sessionId}/text", submitTextHandler(captureSvc, logger))
			r.Post("/{sessionId}/voice", submitVoiceHandler(captureSvc, logger))
			r.Patch("/{sessionId}/draft", editDraftHandler(captureSvc, logger))
			r.Post("/{sessionId}/commit", commitHandler(captureSvc, logger))
			r.Post("/{sessionId}/reset", resetHandler(captureSvc, logger))
		})

		// =============================================
		// 2. Chat
		// =============================================
		if chatSvc != nil {
			r.Post("/chat", chathandler.ChatHandler(chatSvc, StoreIDFromContext, logger))
		}

		// =============================================
		// 3. Utilitários
		// =============================================
		r.Get("/payment-methods/normalize", normalizePaymentHandler())
	})

	return r
}

func runChecks(ctx context.Context, checks []HealthCheck) (string, []domain.ServiceHealth) {
	now := time.Now().Format(time.RFC3339)
	services := []domain.ServiceHealth{
		{Name: "pdv-bfa", Status: "healthy", LastChecked: now},
	}

	overall := "healthy"
	for _, c := range checks {
		start := time.Now()
		err := c.Check(ctx)
		status := "healthy"
		if err != nil {
			status = "degraded"
			overall = "degraded"
		}
		services = append(services, domain.ServiceHealth{
			Name:        c.Name,
			Status:      status,
			LatencyMs:   time.Since(start).Milliseconds(),
			LastChecked: now,
		})
	}
	return overall, services
}

func healthzHandler(checks []HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		overall, services := runChecks(r.Context(), checks)
		writeJSON(w, http.StatusOK, domain.HealthStatus{
			Status:   overall,
			Services: services,
		})
	}
}

// readyzHandler fails while any dependency check fails, so the instance is
// taken out of rotation until the store answers again.
func readyzHandler(checks []HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if overall, _ := runChecks(ctx, checks); overall != "healthy" {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}
