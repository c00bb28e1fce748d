package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"
)

// SchemaVersion is the schema version this build expects after Migrate.
const SchemaVersion = 2

type migration struct {
	Version     int
	Description string
	Statements  []string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "ledger tables",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS transactions (
				id TEXT PRIMARY KEY,
				idempotency_key TEXT NOT NULL UNIQUE,
				store_id TEXT NOT NULL,
				description TEXT NOT NULL,
				amount TEXT NOT NULL,
				type TEXT NOT NULL,
				category TEXT NOT NULL,
				payment_method TEXT NOT NULL,
				counterparty TEXT NOT NULL,
				items TEXT NOT NULL DEFAULT '[]',
				created_at DATETIME NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_transactions_store_created ON transactions(store_id, created_at)`,

			`CREATE TABLE IF NOT EXISTS debts (
				id TEXT PRIMARY KEY,
				idempotency_key TEXT NOT NULL UNIQUE,
				store_id TEXT NOT NULL,
				customer_name TEXT NOT NULL,
				amount TEXT NOT NULL,
				description TEXT NOT NULL,
				transaction_id TEXT,
				status TEXT NOT NULL DEFAULT 'open',
				created_at DATETIME NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_debts_store_customer ON debts(store_id, customer_name)`,
		},
	},
	{
		Version:     2,
		Description: "products and service orders",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS products (
				id TEXT PRIMARY KEY,
				idempotency_key TEXT NOT NULL UNIQUE,
				store_id TEXT NOT NULL,
				name TEXT NOT NULL,
				quantity TEXT NOT NULL,
				cost_price TEXT NOT NULL,
				sale_price TEXT NOT NULL,
				created_at DATETIME NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS service_orders (
				id TEXT PRIMARY KEY,
				idempotency_key TEXT NOT NULL UNIQUE,
				store_id TEXT NOT NULL,
				customer_name TEXT NOT NULL,
				device TEXT NOT NULL,
				problem_description TEXT NOT NULL,
				estimated_price TEXT NOT NULL,
				status TEXT NOT NULL,
				created_at DATETIME NOT NULL
			)`,
		},
	},
}

// Migrate applies every migration newer than PRAGMA user_version, one
// transaction per version.
func (s *Store) Migrate(ctx context.Context) error {
	var current int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		if err := s.apply(ctx, m); err != nil {
			return err
		}
		s.logger.Info("applied migration",
			zap.Int("version", m.Version),
			zap.String("description", m.Description),
		)
	}

	var final int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&final); err != nil {
		return fmt.Errorf("verify schema version: %w", err)
	}
	if final != SchemaVersion {
		return fmt.Errorf("schema version mismatch: expected %d, got %d", SchemaVersion, final)
	}
	return nil
}

func (s *Store) apply(ctx context.Context, m migration) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration %d: %w", m.Version, err)
	}
	defer func(tx *sql.Tx) { _ = tx.Rollback() }(tx)

	for _, stmt := range m.Statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", m.Version, err)
		}
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", m.Version)); err != nil {
		return fmt.Errorf("set schema version %d: %w", m.Version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %d: %w", m.Version, err)
	}
	return nil
}
