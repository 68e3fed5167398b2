package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/kyc-attestation-api/internal/models"
	appErrors "github.com/noah-isme/kyc-attestation-api/pkg/errors"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

var uploadColumnNames = []string{"id", "owner", "cid", "display_name", "byte_size", "fingerprint", "gateway_url", "status", "tx_hash", "last_error", "created_at", "updated_at"}

func TestUploadRepositoryCreateAndGet(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewUploadRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO uploads")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	record := &models.UploadRecord{
		Owner:       "0x00000000000000000000000000000000000000Aa",
		CID:         "bafkreid",
		DisplayName: "passport.pdf",
		ByteSize:    2048,
		Fingerprint: "1220ab",
		GatewayURL:  "https://gateway.lighthouse.storage/ipfs/bafkreid",
	}
	require.NoError(t, repo.Create(context.Background(), record))
	assert.NotEmpty(t, record.ID)
	assert.Equal(t, models.UploadStatusUploaded, record.Status)

	rows := sqlmock.NewRows(uploadColumnNames).
		AddRow(record.ID, record.Owner, record.CID, record.DisplayName, record.ByteSize, record.Fingerprint, record.GatewayURL, "UPLOADED", nil, nil, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, owner, cid")).
		WithArgs(record.ID).
		WillReturnRows(rows)

	found, err := repo.GetByID(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, record.CID, found.CID)
	assert.Nil(t, found.TxHash)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUploadRepositoryGetMissing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewUploadRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, owner, cid")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(uploadColumnNames))

	_, err := repo.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUploadRepositoryListByOwner(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewUploadRepository(db)

	failure := "ledger unreachable"
	rows := sqlmock.NewRows(uploadColumnNames).
		AddRow("u-1", "0xaa", "bafk1", "id.png", 10, "fp", "url", "UPLOADED", nil, failure, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM uploads WHERE owner = $1 AND status = $2")).
		WithArgs("0xaa", models.UploadStatusUploaded).
		WillReturnRows(rows)

	list, err := repo.ListByOwner(context.Background(), "0xaa", models.UploadStatusUploaded)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.NotNil(t, list[0].LastError)
	assert.Equal(t, failure, *list[0].LastError)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUploadRepositoryMarkSubmitted(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewUploadRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE uploads SET status = $2, tx_hash = $3")).
		WithArgs("u-1", models.UploadStatusSubmitted, "0xhash", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.MarkSubmitted(context.Background(), "u-1", "0xhash"))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE uploads SET last_error = $2")).
		WithArgs("u-2", "boom", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.MarkFailed(context.Background(), "u-2", "boom")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
