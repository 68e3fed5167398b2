package service

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/noah-isme/kyc-attestation-api/internal/ledger"
	"github.com/noah-isme/kyc-attestation-api/internal/models"
	appErrors "github.com/noah-isme/kyc-attestation-api/pkg/errors"
)

// ToDocumentList zips the parallel sequences returned by getUserDocuments into
// documents ordered by index. Divergent lengths or unknown status codes are
// data integrity faults.
func ToDocumentList(owner common.Address, raw ledger.RawDocuments) ([]models.Document, error) {
	n := len(raw.CIDs)
	if len(raw.Statuses) != n || len(raw.Reasons) != n {
		return nil, appErrors.Clone(appErrors.ErrDataIntegrity,
			fmt.Sprintf("document sequences diverge: %d cids, %d statuses, %d reasons", n, len(raw.Statuses), len(raw.Reasons)))
	}

	docs := make([]models.Document, n)
	for i := 0; i < n; i++ {
		status, err := models.ParseAttestationStatus(raw.Statuses[i])
		if err != nil {
			return nil, appErrors.WrapAs(err, appErrors.ErrDataIntegrity, fmt.Sprintf("document %d has an invalid status", i))
		}
		docs[i] = models.Document{
			Owner:           owner,
			Index:           uint64(i),
			CID:             raw.CIDs[i],
			Status:          status,
			RejectionReason: raw.Reasons[i],
		}
	}
	return docs, nil
}

// ToPendingList zips the parallel sequences returned by getMyPendingDocuments.
func ToPendingList(raw ledger.RawPending) ([]models.PendingEntry, error) {
	n := len(raw.Owners)
	if len(raw.Indices) != n || len(raw.CIDs) != n {
		return nil, appErrors.Clone(appErrors.ErrDataIntegrity,
			fmt.Sprintf("pending sequences diverge: %d owners, %d indices, %d cids", n, len(raw.Indices), len(raw.CIDs)))
	}

	entries := make([]models.PendingEntry, n)
	for i := 0; i < n; i++ {
		if raw.Indices[i] == nil || raw.Indices[i].Sign() < 0 {
			return nil, appErrors.Clone(appErrors.ErrDataIntegrity, fmt.Sprintf("pending entry %d has an invalid index", i))
		}
		entries[i] = models.PendingEntry{Owner: raw.Owners[i], Index: raw.Indices[i], CID: raw.CIDs[i]}
	}
	return entries, nil
}

func toStatistics(raw ledger.RawStatistics) (*models.Statistics, error) {
	if raw.TotalDocuments == nil || raw.TotalApprovedDocuments == nil || raw.TotalAttesters == nil {
		return nil, appErrors.Clone(appErrors.ErrDataIntegrity, "statistics are incomplete")
	}
	return &models.Statistics{
		TotalDocuments:         raw.TotalDocuments,
		TotalApprovedDocuments: raw.TotalApprovedDocuments,
		TotalAttesters:         raw.TotalAttesters,
	}, nil
}
