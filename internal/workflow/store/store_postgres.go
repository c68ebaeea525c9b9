package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"fingov/internal/workflow/models"
	"fingov/pkg/platform/sentinel"
	txctx "fingov/pkg/platform/tx"
)

// PostgresStore persists workflow instances in PostgreSQL. When the context
// carries an open transaction the store joins it, so a unit of work spanning
// workflow and SLA mutations commits or rolls back as one.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed workflow store.
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

const instanceColumns = `entity_id, entity_type, tenant_id, state, approval_level, approval_chain, context, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, instance *models.Instance) error {
	if instance == nil {
		return fmt.Errorf("workflow instance is required")
	}
	chain, err := json.Marshal(instance.ApprovalChain)
	if err != nil {
		return fmt.Errorf("marshal approval chain: %w", err)
	}
	instanceCtx, err := json.Marshal(instance.Context)
	if err != nil {
		return fmt.Errorf("marshal instance context: %w", err)
	}

	query := `
		INSERT INTO workflow_instances (` + instanceColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (tenant_id, entity_type, entity_id) DO NOTHING
	`
	res, err := s.execer(ctx).ExecContext(ctx, query,
		instance.EntityID,
		instance.EntityType,
		instance.TenantID,
		string(instance.State),
		instance.ApprovalLevel,
		chain,
		instanceCtx,
		instance.CreatedAt,
		instance.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create workflow instance: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("create workflow instance: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrAlreadyExists
	}
	return nil
}

func (s *PostgresStore) Find(ctx context.Context, tenantID, entityType, entityID string) (*models.Instance, error) {
	query := `
		SELECT ` + instanceColumns + `
		FROM workflow_instances
		WHERE tenant_id = $1 AND entity_type = $2 AND entity_id = $3
	`
	return s.findOne(ctx, query, tenantID, entityType, entityID)
}

// FindForUpdate takes an exclusive row lock for the life of the surrounding
// transaction. Outside a transaction the lock is released immediately, so the
// call degrades to a plain Find.
func (s *PostgresStore) FindForUpdate(ctx context.Context, tenantID, entityType, entityID string) (*models.Instance, error) {
	query := `
		SELECT ` + instanceColumns + `
		FROM workflow_instances
		WHERE tenant_id = $1 AND entity_type = $2 AND entity_id = $3
		FOR UPDATE
	`
	return s.findOne(ctx, query, tenantID, entityType, entityID)
}

func (s *PostgresStore) findOne(ctx context.Context, query, tenantID, entityType, entityID string) (*models.Instance, error) {
	row := s.execer(ctx).QueryRowContext(ctx, query, tenantID, entityType, entityID)
	instance, err := scanInstance(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find workflow instance: %w", err)
	}
	return instance, nil
}

func (s *PostgresStore) Update(ctx context.Context, instance *models.Instance) error {
	if instance == nil {
		return fmt.Errorf("workflow instance is required")
	}
	chain, err := json.Marshal(instance.ApprovalChain)
	if err != nil {
		return fmt.Errorf("marshal approval chain: %w", err)
	}
	instanceCtx, err := json.Marshal(instance.Context)
	if err != nil {
		return fmt.Errorf("marshal instance context: %w", err)
	}

	query := `
		UPDATE workflow_instances
		SET state = $4, approval_level = $5, approval_chain = $6, context = $7, updated_at = $8
		WHERE tenant_id = $1 AND entity_type = $2 AND entity_id = $3
	`
	res, err := s.execer(ctx).ExecContext(ctx, query,
		instance.TenantID,
		instance.EntityType,
		instance.EntityID,
		string(instance.State),
		instance.ApprovalLevel,
		chain,
		instanceCtx,
		instance.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update workflow instance: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update workflow instance: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInstance(row rowScanner) (*models.Instance, error) {
	var (
		instance models.Instance
		state    string
		chain    []byte
		instCtx  []byte
	)
	err := row.Scan(
		&instance.EntityID,
		&instance.EntityType,
		&instance.TenantID,
		&state,
		&instance.ApprovalLevel,
		&chain,
		&instCtx,
		&instance.CreatedAt,
		&instance.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	parsed, ok := models.ParseState(state)
	if !ok {
		return nil, fmt.Errorf("stored state %q is not a known workflow state", state)
	}
	instance.State = parsed

	if err := json.Unmarshal(chain, &instance.ApprovalChain); err != nil {
		return nil, fmt.Errorf("unmarshal approval chain: %w", err)
	}
	if len(instCtx) > 0 {
		if err := json.Unmarshal(instCtx, &instance.Context); err != nil {
			return nil, fmt.Errorf("unmarshal instance context: %w", err)
		}
	}
	return &instance, nil
}
