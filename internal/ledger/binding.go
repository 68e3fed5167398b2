// Package ledger binds the attestation contract. Every ledger function has a
// typed method on Binding; implementations either talk to a deployed contract
// over JSON-RPC (Contract) or keep the state in process (Memory).
package ledger

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/noah-isme/kyc-attestation-api/pkg/wallet"
)

// RawDocuments is the tuple returned by getUserDocuments: parallel sequences
// of cids, status codes and rejection reasons.
type RawDocuments struct {
	CIDs     []string
	Statuses []uint8
	Reasons  []string
}

// RawPending is the tuple returned by getMyPendingDocuments.
type RawPending struct {
	Owners  []common.Address
	Indices []*big.Int
	CIDs    []string
}

// RawStatistics mirrors getStatistics.
type RawStatistics struct {
	TotalDocuments         *big.Int
	TotalApprovedDocuments *big.Int
	TotalAttesters         *big.Int
}

// AttesterRecord mirrors the attesters(address) getter.
type AttesterRecord struct {
	IsActive     bool
	StakedAmount *big.Int
}

// TxOpts identifies the sender of a mutating call.
type TxOpts struct {
	From   common.Address
	Signer wallet.Signer
	// Value is the native amount attached to payable calls.
	Value *big.Int
}

// Receipt describes a finalised transaction.
type Receipt struct {
	TxHash      common.Hash
	BlockNumber uint64
	GasUsed     uint64
}

// Binding is the typed surface of the attestation contract.
type Binding interface {
	GetUserDocuments(ctx context.Context, user common.Address) (RawDocuments, error)
	GetMyPendingDocuments(ctx context.Context, caller common.Address) (RawPending, error)
	IsAttester(ctx context.Context, user common.Address) (bool, error)
	Attesters(ctx context.Context, user common.Address) (AttesterRecord, error)
	GetStatistics(ctx context.Context) (RawStatistics, error)
	RequiredStake(ctx context.Context) (*big.Int, error)

	SubmitDocument(ctx context.Context, opts TxOpts, cid string) (*Receipt, error)
	BecomeAttester(ctx context.Context, opts TxOpts) (*Receipt, error)
	ApproveDocument(ctx context.Context, opts TxOpts, user common.Address, index *big.Int) (*Receipt, error)
	RejectDocument(ctx context.Context, opts TxOpts, user common.Address, index *big.Int, reason string) (*Receipt, error)
}

// EventSource yields contract events from a block onwards.
type EventSource interface {
	// Events returns events from block from onwards and the next block to
	// query. On error the events read so far are returned with the cursor
	// positioned after them.
	Events(ctx context.Context, from uint64) ([]Event, uint64, error)
	// Head returns the latest block number.
	Head(ctx context.Context) (uint64, error)
}
