package ledger

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Event names emitted by the attestation contract.
const (
	EventDocumentSubmitted  = "DocumentSubmitted"
	EventDocumentAttested   = "DocumentAttested"
	EventDocumentApproved   = "DocumentApproved"
	EventAttesterRegistered = "AttesterRegistered"
	EventAttesterAdded      = "AttesterAdded"
)

// Event is a decoded contract log.
type Event struct {
	Name        string
	BlockNumber uint64
	TxHash      common.Hash
	// Subject is the document owner, or the attester for attester events.
	Subject         common.Address
	Index           *big.Int
	CID             string
	Status          uint8
	RejectionReason string
}

// AffectsDocuments reports whether the event changes a document or the pending set.
func (e Event) AffectsDocuments() bool {
	switch e.Name {
	case EventDocumentSubmitted, EventDocumentAttested, EventDocumentApproved:
		return true
	}
	return false
}
