package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/kyc-attestation-api/internal/models"
	appErrors "github.com/noah-isme/kyc-attestation-api/pkg/errors"
)

const uploadColumns = `id, owner, cid, display_name, byte_size, fingerprint, gateway_url, status, tx_hash, last_error, created_at, updated_at`

// UploadRepository journals completed storage uploads and their submission state.
type UploadRepository struct {
	db *sqlx.DB
}

// NewUploadRepository constructs the repository.
func NewUploadRepository(db *sqlx.DB) *UploadRepository {
	return &UploadRepository{db: db}
}

// Create inserts a journal entry in UPLOADED state.
func (r *UploadRepository) Create(ctx context.Context, record *models.UploadRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.Status == "" {
		record.Status = models.UploadStatusUploaded
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	const query = `INSERT INTO uploads (` + uploadColumns + `)
	VALUES (:id, :owner, :cid, :display_name, :byte_size, :fingerprint, :gateway_url, :status, :tx_hash, :last_error, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("create upload: %w", err)
	}
	return nil
}

// GetByID fetches an entry by identifier.
func (r *UploadRepository) GetByID(ctx context.Context, id string) (*models.UploadRecord, error) {
	const query = `SELECT ` + uploadColumns + ` FROM uploads WHERE id = $1`
	var record models.UploadRecord
	if err := r.db.GetContext(ctx, &record, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "upload not found")
		}
		return nil, fmt.Errorf("get upload: %w", err)
	}
	return &record, nil
}

// ListByOwner returns the owner's entries in the given state, newest first.
func (r *UploadRepository) ListByOwner(ctx context.Context, owner string, status models.UploadStatus) ([]models.UploadRecord, error) {
	const query = `SELECT ` + uploadColumns + ` FROM uploads WHERE owner = $1 AND status = $2 ORDER BY created_at DESC`
	var records []models.UploadRecord
	if err := r.db.SelectContext(ctx, &records, query, owner, status); err != nil {
		return nil, fmt.Errorf("list uploads: %w", err)
	}
	return records, nil
}

// MarkSubmitted records the ledger transaction that recorded the entry's cid.
func (r *UploadRepository) MarkSubmitted(ctx context.Context, id, txHash string) error {
	const query = `UPDATE uploads SET status = $2, tx_hash = $3, last_error = NULL, updated_at = $4 WHERE id = $1`
	return r.exec(ctx, "mark upload submitted", query, id, models.UploadStatusSubmitted, txHash, time.Now().UTC())
}

// MarkFailed keeps the entry UPLOADED and stores the submission failure.
func (r *UploadRepository) MarkFailed(ctx context.Context, id, cause string) error {
	const query = `UPDATE uploads SET last_error = $2, updated_at = $3 WHERE id = $1`
	return r.exec(ctx, "mark upload failed", query, id, cause, time.Now().UTC())
}

func (r *UploadRepository) exec(ctx context.Context, op, query string, args ...interface{}) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if affected == 0 {
		return appErrors.Clone(appErrors.ErrNotFound, "upload not found")
	}
	return nil
}
