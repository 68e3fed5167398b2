package dto

import (
	"time"

	"github.com/noah-isme/kyc-attestation-api/internal/models"
)

// UploadResponse reports an upload and, when requested, its ledger submission.
type UploadResponse struct {
	Success     bool             `json:"success"`
	ID          string           `json:"id,omitempty"`
	CID         string           `json:"cid,omitempty"`
	DisplayName string           `json:"name,omitempty"`
	ByteSize    int64            `json:"size,omitempty"`
	GatewayURL  string           `json:"url,omitempty"`
	Error       string           `json:"error,omitempty"`
	Submission  *ReceiptResponse `json:"submission,omitempty"`
	SubmitError string           `json:"submitError,omitempty"`
}

// UploadRecordResponse is a journal entry awaiting or past submission.
type UploadRecordResponse struct {
	ID          string    `json:"id"`
	CID         string    `json:"cid"`
	DisplayName string    `json:"name"`
	ByteSize    int64     `json:"size"`
	GatewayURL  string    `json:"url"`
	Status      string    `json:"status"`
	TxHash      string    `json:"txHash,omitempty"`
	LastError   string    `json:"lastError,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// NewUploadResponse converts an upload result.
func NewUploadResponse(result *models.UploadResult) UploadResponse {
	if result == nil {
		return UploadResponse{}
	}
	return UploadResponse{
		Success:     result.Success,
		ID:          result.ID,
		CID:         result.CID,
		DisplayName: result.DisplayName,
		ByteSize:    result.ByteSize,
		GatewayURL:  result.GatewayURL,
		Error:       result.Error,
	}
}

// NewUploadRecordResponses converts journal rows.
func NewUploadRecordResponses(records []models.UploadRecord) []UploadRecordResponse {
	out := make([]UploadRecordResponse, 0, len(records))
	for _, r := range records {
		item := UploadRecordResponse{
			ID:          r.ID,
			CID:         r.CID,
			DisplayName: r.DisplayName,
			ByteSize:    r.ByteSize,
			GatewayURL:  r.GatewayURL,
			Status:      string(r.Status),
			CreatedAt:   r.CreatedAt,
		}
		if r.TxHash != nil {
			item.TxHash = *r.TxHash
		}
		if r.LastError != nil {
			item.LastError = *r.LastError
		}
		out = append(out, item)
	}
	return out
}
