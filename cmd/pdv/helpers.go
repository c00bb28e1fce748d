package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/boddenberg/pdv-assistant-bfa-go/internal/infra/client"
	"github.com/boddenberg/pdv-assistant-bfa-go/internal/infra/observability"
	"github.com/boddenberg/pdv-assistant-bfa-go/internal/infra/resilience"
	"github.com/boddenberg/pdv-assistant-bfa-go/internal/infra/sqlite"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var envKeyReplacer = strings.NewReplacer(".", "_")

func newLogger() *zap.Logger {
	return observability.NewLogger(viper.GetString("log.level"))
}

// initStore opens and migrates the ledger at database.path.
func initStore(ctx context.Context, logger *zap.Logger) (*sqlite.Store, error) {
	path := viper.GetString("database.path")
	if path == "" {
		return nil, fmt.Errorf("database path is empty")
	}
	store, err := sqlite.Open(ctx, path, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	return store, nil
}

func newClassifier(logger *zap.Logger) *client.ClassifierClient {
	return client.NewClassifierClient(
		&http.Client{Timeout: viper.GetDuration("classifier.timeout")},
		viper.GetString("classifier.url"),
		resilience.NewCircuitBreaker("classifier"),
		resilience.NewBulkhead(1),
		resilience.Policy{
			MaxRetries: viper.GetInt("classifier.max_retries"),
			Delay:      viper.GetDuration("classifier.retry_delay"),
		},
		logger,
	)
}
