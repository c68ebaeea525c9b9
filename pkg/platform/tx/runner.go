package tx

import (
	"context"
	"database/sql"
	"fmt"
)

// Runner executes a function as one unit of work. SQL-backed runners open a
// transaction and carry it through the context so stores join it; the no-op
// runner exists for in-memory wiring.
type Runner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// SQLRunner runs units of work inside database transactions.
type SQLRunner struct {
	db *sql.DB
}

// NewSQLRunner wraps a database handle as a Runner.
func NewSQLRunner(db *sql.DB) *SQLRunner {
	return &SQLRunner{db: db}
}

// RunInTx begins a transaction, runs fn with the transaction in context, and
// commits. Any error from fn rolls back. Nested calls join the existing
// transaction rather than opening a second one.
func (r *SQLRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := From(ctx); ok {
		return fn(ctx)
	}

	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = dbTx.Rollback()
	}()

	if err := fn(WithTx(ctx, dbTx)); err != nil {
		return err
	}
	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// NopRunner runs the function directly. Used with in-memory stores, whose
// operations are individually atomic.
type NopRunner struct{}

func (NopRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
