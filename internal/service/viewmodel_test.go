package service

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/kyc-attestation-api/internal/ledger"
	"github.com/noah-isme/kyc-attestation-api/internal/models"
	appErrors "github.com/noah-isme/kyc-attestation-api/pkg/errors"
)

var ownerAA = common.HexToAddress("0xAAaAaAaaAaAaAaaAaAAAAAAAAaaaAaAaAaaAaaAa")

func TestToDocumentListZipsAlignedSequences(t *testing.T) {
	docs, err := ToDocumentList(ownerAA, ledger.RawDocuments{
		CIDs:     []string{"cidA", "cidB", "cidC"},
		Statuses: []uint8{0, 1, 2},
		Reasons:  []string{"", "", "bad format"},
	})
	require.NoError(t, err)
	require.Len(t, docs, 3)

	assert.Equal(t, models.Document{Owner: ownerAA, Index: 0, CID: "cidA", Status: models.StatusPending}, docs[0])
	assert.Equal(t, models.Document{Owner: ownerAA, Index: 1, CID: "cidB", Status: models.StatusApproved}, docs[1])
	assert.Equal(t, models.Document{Owner: ownerAA, Index: 2, CID: "cidC", Status: models.StatusRejected, RejectionReason: "bad format"}, docs[2])
}

func TestToDocumentListRejectsDivergentLengths(t *testing.T) {
	cases := []ledger.RawDocuments{
		{CIDs: []string{"a", "b"}, Statuses: []uint8{0}, Reasons: []string{"", ""}},
		{CIDs: []string{"a"}, Statuses: []uint8{0}, Reasons: nil},
		{CIDs: nil, Statuses: []uint8{1}, Reasons: []string{""}},
	}
	for _, raw := range cases {
		_, err := ToDocumentList(ownerAA, raw)
		assert.ErrorIs(t, err, appErrors.ErrDataIntegrity)
	}
}

func TestToDocumentListRejectsUnknownStatus(t *testing.T) {
	_, err := ToDocumentList(ownerAA, ledger.RawDocuments{CIDs: []string{"a"}, Statuses: []uint8{7}, Reasons: []string{""}})
	assert.ErrorIs(t, err, appErrors.ErrDataIntegrity)
}

func TestToDocumentListEmpty(t *testing.T) {
	docs, err := ToDocumentList(ownerAA, ledger.RawDocuments{})
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestToPendingList(t *testing.T) {
	entries, err := ToPendingList(ledger.RawPending{
		Owners:  []common.Address{ownerAA},
		Indices: []*big.Int{big.NewInt(4)},
		CIDs:    []string{"cidE"},
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ownerAA, entries[0].Owner)
	assert.Equal(t, int64(4), entries[0].Index.Int64())

	_, err = ToPendingList(ledger.RawPending{Owners: []common.Address{ownerAA}, CIDs: []string{"x"}})
	assert.ErrorIs(t, err, appErrors.ErrDataIntegrity)

	_, err = ToPendingList(ledger.RawPending{Owners: []common.Address{ownerAA}, Indices: []*big.Int{nil}, CIDs: []string{"x"}})
	assert.ErrorIs(t, err, appErrors.ErrDataIntegrity)
}
