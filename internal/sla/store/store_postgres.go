package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"fingov/internal/sla/models"
	"fingov/pkg/platform/sentinel"
	txctx "fingov/pkg/platform/tx"
)

// PostgresStore persists SLA instances in PostgreSQL and joins any
// transaction carried in the context.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed SLA store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txctx.From(ctx); ok {
		return tx
	}
	return s.db
}

const slaColumns = `id, tenant_id, entity_type, entity_id, state, due_at, action_on_breach, breached, breached_at, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, instance *models.Instance) error {
	if instance == nil {
		return fmt.Errorf("sla instance is required")
	}
	query := `
		INSERT INTO sla_instances (` + slaColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		instance.ID,
		instance.TenantID,
		instance.EntityType,
		instance.EntityID,
		instance.State,
		instance.DueAt,
		string(instance.ActionOnBreach),
		instance.Breached,
		instance.BreachedAt,
		instance.CreatedAt,
		instance.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create sla instance: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteUnbreached(ctx context.Context, tenantID, entityType, entityID string) error {
	query := `
		DELETE FROM sla_instances
		WHERE tenant_id = $1 AND entity_type = $2 AND entity_id = $3 AND breached = FALSE
	`
	if _, err := s.execer(ctx).ExecContext(ctx, query, tenantID, entityType, entityID); err != nil {
		return fmt.Errorf("delete sla instance: %w", err)
	}
	return nil
}

// SelectDue is the sweep's candidate read. SKIP LOCKED keeps concurrent
// sweepers from blocking on each other's rows.
func (s *PostgresStore) SelectDue(ctx context.Context, now time.Time, limit int) ([]*models.Instance, error) {
	query := `
		SELECT ` + slaColumns + `
		FROM sla_instances
		WHERE breached = FALSE AND due_at <= $1
		ORDER BY due_at
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("select due sla instances: %w", err)
	}
	defer rows.Close()

	var instances []*models.Instance
	for rows.Next() {
		instance, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sla instance: %w", err)
		}
		instances = append(instances, instance)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sla instances: %w", err)
	}
	return instances, nil
}

// LockDue re-locks one candidate inside the caller's transaction. A row that
// vanished or is held by another worker surfaces as ErrNotFound; the sweep
// skips it.
func (s *PostgresStore) LockDue(ctx context.Context, id string) (*models.Instance, error) {
	query := `
		SELECT ` + slaColumns + `
		FROM sla_instances
		WHERE id = $1
		FOR UPDATE SKIP LOCKED
	`
	instance, err := scanInstance(s.execer(ctx).QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("lock sla instance: %w", err)
	}
	return instance, nil
}

func (s *PostgresStore) MarkBreached(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE sla_instances
		SET breached = TRUE, breached_at = $2, updated_at = $2
		WHERE id = $1
	`
	res, err := s.execer(ctx).ExecContext(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("mark sla breached: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark sla breached: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// FindPolicy reads one policy matrix row.
func (s *PostgresStore) FindPolicy(ctx context.Context, tenantID, state string) (*models.Policy, error) {
	query := `
		SELECT tenant_id, state, hours, action_on_breach
		FROM sla_policy_matrix
		WHERE tenant_id = $1 AND state = $2
	`
	var (
		policy models.Policy
		action string
	)
	err := s.execer(ctx).QueryRowContext(ctx, query, tenantID, state).
		Scan(&policy.TenantID, &policy.State, &policy.Hours, &action)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find sla policy: %w", err)
	}
	policy.ActionOnBreach = models.BreachAction(action)
	return &policy, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInstance(row rowScanner) (*models.Instance, error) {
	var (
		instance models.Instance
		action   string
	)
	err := row.Scan(
		&instance.ID,
		&instance.TenantID,
		&instance.EntityType,
		&instance.EntityID,
		&instance.State,
		&instance.DueAt,
		&action,
		&instance.Breached,
		&instance.BreachedAt,
		&instance.CreatedAt,
		&instance.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	instance.ActionOnBreach = models.BreachAction(action)
	return &instance, nil
}
