package models

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// AttestationStatus is the lifecycle state of a submitted document.
type AttestationStatus uint8

// Attestation states as encoded by the ledger.
const (
	StatusPending AttestationStatus = iota
	StatusApproved
	StatusRejected
)

// ParseAttestationStatus converts a raw ledger code.
func ParseAttestationStatus(code uint8) (AttestationStatus, error) {
	status := AttestationStatus(code)
	if !status.Valid() {
		return 0, fmt.Errorf("unknown attestation status %d", code)
	}
	return status, nil
}

// Valid reports whether the status is one of the known states.
func (s AttestationStatus) Valid() bool {
	return s <= StatusRejected
}

// Terminal reports whether the status can no longer change.
func (s AttestationStatus) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

func (s AttestationStatus) String() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusApproved:
		return "Approved"
	case StatusRejected:
		return "Rejected"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(s))
	}
}

// MarshalJSON renders the status name.
func (s AttestationStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON accepts the status name.
func (s *AttestationStatus) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for _, candidate := range []AttestationStatus{StatusPending, StatusApproved, StatusRejected} {
		if candidate.String() == name {
			*s = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown attestation status %q", name)
}

// Document is a content identifier recorded on the ledger by its owner.
type Document struct {
	Owner           common.Address
	Index           uint64
	CID             string
	Status          AttestationStatus
	RejectionReason string
}

// PendingEntry is a document awaiting review, as seen by an attester.
type PendingEntry struct {
	Owner common.Address
	Index *big.Int
	CID   string
}

// Attester is the staking record of an account.
type Attester struct {
	Address      common.Address
	IsActive     bool
	StakedAmount *big.Int
}

// Statistics holds the ledger's aggregate counters.
type Statistics struct {
	TotalDocuments         *big.Int
	TotalApprovedDocuments *big.Int
	TotalAttesters         *big.Int
}
