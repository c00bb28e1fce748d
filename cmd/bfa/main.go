package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	chatinfra "github.com/boddenberg/pdv-assistant-bfa-go/internal/chat/infra"
	chatport "github.com/boddenberg/pdv-assistant-bfa-go/internal/chat/port"
	chatservice "github.com/boddenberg/pdv-assistant-bfa-go/internal/chat/service"
	"github.com/boddenberg/pdv-assistant-bfa-go/internal/config"
	"github.com/boddenberg/pdv-assistant-bfa-go/internal/handler"
	"github.com/boddenberg/pdv-assistant-bfa-go/internal/infra/cache"
	"github.com/boddenberg/pdv-assistant-bfa-go/internal/infra/client"
	"github.com/boddenberg/pdv-assistant-bfa-go/internal/infra/observability"
	"github.com/boddenberg/pdv-assistant-bfa-go/internal/infra/resilience"
	"github.com/boddenberg/pdv-assistant-bfa-go/internal/infra/sqlite"
	"github.com/boddenberg/pdv-assistant-bfa-go/internal/infra/supabase"
	"github.com/boddenberg/pdv-assistant-bfa-go/internal/port"
	"github.com/boddenberg/pdv-assistant-bfa-go/internal/service"
	"github.com/boddenberg/pdv-assistant-bfa-go/internal/speech"

	"go.uber.org/zap"
)

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("store_backend", cfg.StoreBackend),
		zap.Bool("auth_enabled", cfg.AuthEnabled),
		zap.Bool("voice_enabled", cfg.TranscriberAPIURL != ""),
		zap.Bool("chat_agent_enabled", cfg.ChatAgentURL != ""),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("session_ttl", cfg.SessionTTL),
		zap.Int("classifier_max_retries", cfg.ClassifierMaxRetries),
		zap.Duration("classifier_retry_delay", cfg.ClassifierRetryDelay),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
	)
	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Tracing ---
	shutdownTracer, err := observability.InitTracer(ctx, cfg.OTLPEndpoint, "pdv-bfa")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	// --- Ledger store ---
	var (
		store  port.LedgerStore
		checks []handler.HealthCheck
	)
	switch cfg.StoreBackend {
	case config.BackendSupabase:
		if cfg.SupabaseURL == "" {
			logger.Fatal("STORE_BACKEND=supabase requires SUPABASE_URL")
		}
		logger.Info("using Supabase as ledger backend", zap.String("supabase_url", cfg.SupabaseURL))
		sb := supabase.NewClient(
			httpClient,
			cfg.SupabaseURL,
			cfg.SupabaseAnonKey,
			cfg.SupabaseServiceKey,
			resilience.NewCircuitBreaker("supabase"),
			resilienceCfg,
			logger,
		)
		store = supabase.NewLedgerStore(sb)
		checks = append(checks, handler.HealthCheck{Name: "supabase", Check: sb.Ping})
	default:
		logger.Info("using SQLite as ledger backend", zap.String("path", cfg.SQLitePath))
		db, err := sqlite.Open(ctx, cfg.SQLitePath, logger)
		if err != nil {
			logger.Fatal("failed to open sqlite store", zap.Error(err))
		}
		defer db.Close()
		store = db
		checks = append(checks, handler.HealthCheck{Name: "sqlite", Check: db.Ping})
	}

	// --- Clients ---
	classifier := client.NewClassifierClient(
		httpClient,
		cfg.ClassifierAPIURL,
		resilience.NewCircuitBreaker("classifier"),
		resilience.NewBulkhead(cfg.MaxConcurrency),
		resilience.Policy{MaxRetries: cfg.ClassifierMaxRetries, Delay: cfg.ClassifierRetryDelay},
		logger,
	)

	var engines service.EngineFactory
	if cfg.TranscriberAPIURL != "" {
		engines = client.NewTranscriberClient(httpClient, cfg.TranscriberAPIURL, resilience.NewCircuitBreaker("transcriber"), logger)
	} else {
		logger.Warn("voice capture: TRANSCRIBER_API_URL not set, voice routes report unsupported")
	}

	// --- Sessions ---
	sessions := cache.New[*service.ReviewSession](cfg.SessionTTL)
	sessions.OnEvict(func(id string, rs *service.ReviewSession) {
		rs.Close()
		logger.Debug("capture session expired", zap.String("session_id", id))
	})
	defer sessions.Stop()

	// --- Services ---
	committer := service.NewCommitCoordinator(store, service.NewPageNavigator(), metrics, logger)
	captureSvc := service.NewCaptureService(
		sessions,
		classifier,
		committer,
		engines,
		service.CaptureConfig{
			SuccessDismissDelay: cfg.SuccessDismissDelay,
			VoiceTimeout:        cfg.VoiceCaptureTimeout,
			Speech: speech.Options{
				StartTimeout:  cfg.SpeechStartTimeout,
				BlockedWindow: cfg.SpeechBlockedWindow,
			},
		},
		metrics,
		logger,
	)

	var agent *chatinfra.ChatAgentClient
	if cfg.ChatAgentURL != "" {
		agent = chatinfra.NewChatAgentClient(httpClient, cfg.ChatAgentURL, resilience.NewCircuitBreaker("chat-agent"), resilienceCfg)
	} else {
		logger.Warn("chat: CHAT_AGENT_URL not set, general questions get the help answer")
	}
	chatSvc := chatservice.NewChatService(agentCaller(agent), []chatservice.ChatStrategy{
		chatservice.NewLedgerStrategy(captureSvc, logger),
	}, logger)

	// --- Auth ---
	auth := handler.StaticStoreMiddleware(cfg.DefaultStore)
	if cfg.AuthEnabled {
		auth = handler.JWTAuthMiddleware(service.NewTokenService(cfg.JWTSecret, 0), logger)
	} else {
		logger.Warn("auth disabled: every request uses the default store", zap.String("store_id", cfg.DefaultStore))
	}

	// --- Router ---
	router := handler.NewRouter(captureSvc, chatSvc, auth, checks, metrics, logger)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.VoiceCaptureTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()

	logger.Info("server shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced shutdown", zap.Error(err))
	}
	if err := shutdownTracer(shutdownCtx); err != nil {
		logger.Warn("tracer shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}

// agentCaller keeps a missing agent a nil interface, not a typed nil.
func agentCaller(c *chatinfra.ChatAgentClient) chatport.ChatAgentCaller {
	if c == nil {
		return nil
	}
	return c
}
