// Package sqlite is the local ledger backend used by the CLI and by
// single-store deployments (STORE_BACKEND=sqlite).
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/boddenberg/pdv-assistant-bfa-go/internal/domain"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("sqlite")

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// Store implements port.LedgerStore on SQLite. Rows are inserted with
// INSERT OR IGNORE on the unique idempotency_key, so saving the same record
// twice is a no-op.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open opens (creating if needed) the database at path and migrates it.
func Open(ctx context.Context, path string, logger *zap.Logger) (*Store, error) {
	dsn := MemoryPath
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
		dsn = path + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection: SQLite serializes writers anyway, and every
	// connection to :memory: would see a different database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping is used by the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) exec(ctx context.Context, b sq.InsertBuilder) error {
	query, args, err := b.Options("OR IGNORE").ToSql()
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("sqlite: %w", err)
	}
	return nil
}

// SaveTransaction inserts a ledger row.
func (s *Store) SaveTransaction(ctx context.Context, tx *domain.LedgerTransaction) error {
	ctx, span := tracer.Start(ctx, "SQLite.SaveTransaction")
	defer span.End()

	items := tx.Items
	if items == nil {
		items = []domain.LineItem{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return err
	}

	return s.exec(ctx, sq.Insert("transactions").
		Columns("id", "idempotency_key", "store_id", "description", "amount", "type",
			"category", "payment_method", "counterparty", "items", "created_at").
		Values(tx.ID, tx.IdempotencyKey, tx.StoreID, tx.Description, tx.Amount, string(tx.Type),
			tx.Category, string(tx.PaymentMethod), tx.Counterparty, string(raw), tx.CreatedAt.UTC()))
}

// SaveDebt inserts an open debt row.
func (s *Store) SaveDebt(ctx context.Context, d *domain.Debt) error {
	ctx, span := tracer.Start(ctx, "SQLite.SaveDebt")
	defer span.End()

	var txID sql.NullString
	if d.TransactionID != "" {
		txID = sql.NullString{String: d.TransactionID, Valid: true}
	}

	return s.exec(ctx, sq.Insert("debts").
		Columns("id", "idempotency_key", "store_id", "customer_name", "amount", "description",
			"transaction_id", "created_at").
		Values(d.ID, d.IdempotencyKey, d.StoreID, d.CustomerName, d.Amount, d.Description,
			txID, d.CreatedAt.UTC()))
}

// SaveProduct inserts a product row.
func (s *Store) SaveProduct(ctx context.Context, p *domain.Product) error {
	ctx, span := tracer.Start(ctx, "SQLite.SaveProduct")
	defer span.End()

	return s.exec(ctx, sq.Insert("products").
		Columns("id", "idempotency_key", "store_id", "name", "quantity", "cost_price", "sale_price", "created_at").
		Values(p.ID, p.IdempotencyKey, p.StoreID, p.Name, p.Quantity, p.CostPrice, p.SalePrice, p.CreatedAt.UTC()))
}

// SaveServiceOrder inserts a service order row.
func (s *Store) SaveServiceOrder(ctx context.Context, o *domain.ServiceOrder) error {
	ctx, span := tracer.Start(ctx, "SQLite.SaveServiceOrder")
	defer span.End()

	return s.exec(ctx, sq.Insert("service_orders").
		Columns("id", "idempotency_key", "store_id", "customer_name", "device", "problem_description",
			"estimated_price", "status", "created_at").
		Values(o.ID, o.IdempotencyKey, o.StoreID, o.CustomerName, o.Device, o.ProblemDescription,
			o.EstimatedPrice, o.Status, o.CreatedAt.UTC()))
}

// Transactions lists a store's ledger rows created at or after since,
// newest first.
func (s *Store) Transactions(ctx context.Context, storeID string, since time.Time) ([]domain.LedgerTransaction, error) {
	ctx, span := tracer.Start(ctx, "SQLite.Transactions")
	defer span.End()

	query, args, err := sq.Select("id", "idempotency_key", "store_id", "description", "amount", "type",
		"category", "payment_method", "counterparty", "items", "created_at").
		From("transactions").
		Where(sq.Eq{"store_id": storeID}).
		Where(sq.GtOrEq{"created_at": since.UTC()}).
		OrderBy("created_at DESC").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}
	defer rows.Close()

	var out []domain.LedgerTransaction
	for rows.Next() {
		var (
			tx       domain.LedgerTransaction
			txType   string
			method   string
			rawItems string
		)
		if err := rows.Scan(&tx.ID, &tx.IdempotencyKey, &tx.StoreID, &tx.Description, &tx.Amount, &txType,
			&tx.Category, &method, &tx.Counterparty, &rawItems, &tx.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		tx.Type = domain.TransactionType(txType)
		tx.PaymentMethod = domain.PaymentMethod(method)
		if err := json.Unmarshal([]byte(rawItems), &tx.Items); err != nil {
			return nil, fmt.Errorf("decode items of %s: %w", tx.ID, err)
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

// OpenDebts lists a store's open debts, oldest first.
func (s *Store) OpenDebts(ctx context.Context, storeID string) ([]domain.Debt, error) {
	ctx, span := tracer.Start(ctx, "SQLite.OpenDebts")
	defer span.End()

	query, args, err := sq.Select("id", "idempotency_key", "store_id", "customer_name", "amount",
		"description", "transaction_id", "created_at").
		From("debts").
		Where(sq.Eq{"store_id": storeID, "status": "open"}).
		OrderBy("created_at ASC").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}
	defer rows.Close()

	var out []domain.Debt
	for rows.Next() {
		var (
			d    domain.Debt
			txID sql.NullString
		)
		if err := rows.Scan(&d.ID, &d.IdempotencyKey, &d.StoreID, &d.CustomerName, &d.Amount,
			&d.Description, &txID, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan debt: %w", err)
		}
		d.TransactionID = txID.String
		out = append(out, d)
	}
	return out, rows.Err()
}

// Count returns the number of rows in table. Only the ledger tables are accepted.
func (s *Store) Count(ctx context.Context, table string) (int, error) {
	switch table {
	case "transactions", "debts", "products", "service_orders":
	default:
		return 0, &domain.ErrValidation{Field: "table", Message: "unknown table " + table}
	}

	query, args, err := sq.Select("COUNT(*)").From(table).ToSql()
	if err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: %w", err)
	}
	return n, nil
}
