package models

import "time"

// UploadStatus tracks whether an uploaded content identifier reached the ledger.
type UploadStatus string

const (
	UploadStatusUploaded  UploadStatus = "UPLOADED"
	UploadStatusSubmitted UploadStatus = "SUBMITTED"
)

// UploadRecord is a journal row for a completed storage upload.
type UploadRecord struct {
	ID          string       `db:"id"`
	Owner       string       `db:"owner"`
	CID         string       `db:"cid"`
	DisplayName string       `db:"display_name"`
	ByteSize    int64        `db:"byte_size"`
	Fingerprint string       `db:"fingerprint"`
	GatewayURL  string       `db:"gateway_url"`
	Status      UploadStatus `db:"status"`
	TxHash      *string      `db:"tx_hash"`
	LastError   *string      `db:"last_error"`
	CreatedAt   time.Time    `db:"created_at"`
	UpdatedAt   time.Time    `db:"updated_at"`
}

// UploadResult is the outcome of a content upload. Failures carry
// Success=false and a human readable Error.
type UploadResult struct {
	Success     bool
	ID          string
	CID         string
	DisplayName string
	ByteSize    int64
	GatewayURL  string
	Error       string
}
