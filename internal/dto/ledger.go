package dto

import (
	"math/big"
	"time"

	"github.com/noah-isme/kyc-attestation-api/internal/ledger"
	"github.com/noah-isme/kyc-attestation-api/internal/models"
)

// DocumentResponse is a document as rendered to the dashboard.
type DocumentResponse struct {
	Owner           string                   `json:"owner"`
	Index           uint64                   `json:"index"`
	CID             string                   `json:"cid"`
	Status          models.AttestationStatus `json:"status"`
	RejectionReason string                   `json:"rejectionReason"`
	GatewayURL      string                   `json:"gatewayUrl"`
}

// PendingEntryResponse is a pending document in an attester's queue.
type PendingEntryResponse struct {
	Owner      string `json:"owner"`
	Index      string `json:"index"`
	CID        string `json:"cid"`
	GatewayURL string `json:"gatewayUrl"`
}

// StatisticsResponse carries ledger counters as decimal strings.
type StatisticsResponse struct {
	TotalDocuments         string `json:"totalDocuments"`
	TotalApprovedDocuments string `json:"totalApprovedDocuments"`
	TotalAttesters         string `json:"totalAttesters"`
}

// AttesterResponse is the staking record of an account.
type AttesterResponse struct {
	Address       string `json:"address"`
	IsActive      bool   `json:"isActive"`
	StakedAmount  string `json:"stakedAmount"`
	RequiredStake string `json:"requiredStake,omitempty"`
}

// StakeResponse exposes the amount an attester must escrow.
type StakeResponse struct {
	RequiredStake string `json:"requiredStake"`
}

// ReceiptResponse reports a finalised ledger transaction.
type ReceiptResponse struct {
	TxHash      string `json:"txHash"`
	BlockNumber uint64 `json:"blockNumber"`
	GasUsed     uint64 `json:"gasUsed,omitempty"`
}

// SubmitDocumentRequest records a content identifier for the caller.
type SubmitDocumentRequest struct {
	CID string `json:"cid" validate:"required,max=256"`
}

// BecomeAttesterRequest stakes value (wei, decimal). Empty stakes the required amount.
type BecomeAttesterRequest struct {
	Value string `json:"value" validate:"omitempty,numeric"`
}

// RejectDocumentRequest carries the rejection reason shown to the owner.
type RejectDocumentRequest struct {
	Reason string `json:"reason" validate:"required,max=1000"`
}

// DashboardResponse aggregates the connected account's view.
type DashboardResponse struct {
	Address      string             `json:"address"`
	Statistics   StatisticsResponse `json:"statistics"`
	Documents    []DocumentResponse `json:"documents"`
	IsAttester   bool               `json:"isAttester"`
	PendingCount int                `json:"pendingCount"`
	GeneratedAt  time.Time          `json:"generatedAt"`
}

// NewDocumentResponses converts documents using gateway to build links.
func NewDocumentResponses(docs []models.Document, gateway func(string) string) []DocumentResponse {
	out := make([]DocumentResponse, 0, len(docs))
	for _, doc := range docs {
		out = append(out, DocumentResponse{
			Owner:           doc.Owner.Hex(),
			Index:           doc.Index,
			CID:             doc.CID,
			Status:          doc.Status,
			RejectionReason: doc.RejectionReason,
			GatewayURL:      link(gateway, doc.CID),
		})
	}
	return out
}

// NewPendingResponses converts pending entries.
func NewPendingResponses(entries []models.PendingEntry, gateway func(string) string) []PendingEntryResponse {
	out := make([]PendingEntryResponse, 0, len(entries))
	for _, entry := range entries {
		out = append(out, PendingEntryResponse{
			Owner:      entry.Owner.Hex(),
			Index:      decimal(entry.Index),
			CID:        entry.CID,
			GatewayURL: link(gateway, entry.CID),
		})
	}
	return out
}

// NewStatisticsResponse converts ledger counters.
func NewStatisticsResponse(stats *models.Statistics) StatisticsResponse {
	if stats == nil {
		return StatisticsResponse{TotalDocuments: "0", TotalApprovedDocuments: "0", TotalAttesters: "0"}
	}
	return StatisticsResponse{
		TotalDocuments:         decimal(stats.TotalDocuments),
		TotalApprovedDocuments: decimal(stats.TotalApprovedDocuments),
		TotalAttesters:         decimal(stats.TotalAttesters),
	}
}

// NewAttesterResponse converts an attester record.
func NewAttesterResponse(attester *models.Attester, requiredStake *big.Int) AttesterResponse {
	resp := AttesterResponse{
		Address:      attester.Address.Hex(),
		IsActive:     attester.IsActive,
		StakedAmount: decimal(attester.StakedAmount),
	}
	if requiredStake != nil {
		resp.RequiredStake = requiredStake.String()
	}
	return resp
}

// NewReceiptResponse converts a transaction receipt.
func NewReceiptResponse(receipt *ledger.Receipt) *ReceiptResponse {
	if receipt == nil {
		return nil
	}
	return &ReceiptResponse{
		TxHash:      receipt.TxHash.Hex(),
		BlockNumber: receipt.BlockNumber,
		GasUsed:     receipt.GasUsed,
	}
}

func decimal(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func link(gateway func(string) string, cid string) string {
	if gateway == nil {
		return ""
	}
	return gateway(cid)
}
