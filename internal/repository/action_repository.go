package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/kyc-attestation-api/internal/models"
)

// ActionRepository stores the audit trail of ledger mutations.
type ActionRepository struct {
	db *sqlx.DB
}

// NewActionRepository constructs the repository.
func NewActionRepository(db *sqlx.DB) *ActionRepository {
	return &ActionRepository{db: db}
}

// Record inserts an audit row.
func (r *ActionRepository) Record(ctx context.Context, action *models.LedgerAction) error {
	if action.ID == "" {
		action.ID = uuid.NewString()
	}
	if action.CreatedAt.IsZero() {
		action.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO ledger_actions (id, actor, action, target, doc_index, tx_hash, outcome, error_code, created_at)
	VALUES (:id, :actor, :action, :target, :doc_index, :tx_hash, :outcome, :error_code, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, action); err != nil {
		return fmt.Errorf("record ledger action: %w", err)
	}
	return nil
}

// ListByActor returns the most recent actions of an account.
func (r *ActionRepository) ListByActor(ctx context.Context, actor string, limit int) ([]models.LedgerAction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	const query = `SELECT id, actor, action, target, doc_index, tx_hash, outcome, error_code, created_at
	FROM ledger_actions WHERE actor = $1 ORDER BY created_at DESC LIMIT $2`
	var actions []models.LedgerAction
	if err := r.db.SelectContext(ctx, &actions, query, actor, limit); err != nil {
		return nil, fmt.Errorf("list ledger actions: %w", err)
	}
	return actions, nil
}
