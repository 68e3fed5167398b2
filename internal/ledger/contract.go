package ledger

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/kyc-attestation-api/pkg/errors"
)

// Backend is the JSON-RPC surface the contract binding needs. *ethclient.Client
// satisfies it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
	BlockNumber(ctx context.Context) (uint64, error)
}

// ContractParams configures a Contract.
type ContractParams struct {
	Address common.Address
	ChainID *big.Int
	Backend Backend
	// ReceiptTimeout bounds waiting for a mined receipt when the caller sets no deadline.
	ReceiptTimeout time.Duration
	// MaxBlockRange is the widest block span requested per log query.
	MaxBlockRange uint64
	Logger        *zap.Logger
}

const (
	defaultMaxBlockRange = 2000
	// maxRangesPerPoll bounds one Events call while catching up a backlog.
	maxRangesPerPoll = 50
)

// Contract binds a deployed attestation contract.
type Contract struct {
	address  common.Address
	chainID  *big.Int
	backend  Backend
	abi      abi.ABI
	bound    *bind.BoundContract
	logger   *zap.Logger
	timeout  time.Duration
	maxRange uint64

	stakeMu sync.Mutex
	stake   *big.Int
}

// NewContract builds a Contract binding.
func NewContract(params ContractParams) (*Contract, error) {
	if params.Backend == nil {
		return nil, fmt.Errorf("ledger backend is required")
	}
	if params.ChainID == nil || params.ChainID.Sign() <= 0 {
		return nil, fmt.Errorf("ledger chain id is required")
	}
	if params.Logger == nil {
		params.Logger = zap.NewNop()
	}
	if params.ReceiptTimeout <= 0 {
		params.ReceiptTimeout = 2 * time.Minute
	}
	if params.MaxBlockRange == 0 {
		params.MaxBlockRange = defaultMaxBlockRange
	}
	parsed, err := abi.JSON(strings.NewReader(AttestationABI))
	if err != nil {
		return nil, fmt.Errorf("parse attestation abi: %w", err)
	}
	return &Contract{
		address:  params.Address,
		chainID:  params.ChainID,
		backend:  params.Backend,
		abi:      parsed,
		bound:    bind.NewBoundContract(params.Address, parsed, params.Backend, params.Backend, params.Backend),
		logger:   params.Logger,
		timeout:  params.ReceiptTimeout,
		maxRange: params.MaxBlockRange,
	}, nil
}

func (c *Contract) call(ctx context.Context, from common.Address, method string, args ...interface{}) ([]interface{}, error) {
	var out []interface{}
	opts := &bind.CallOpts{Context: ctx, From: from}
	if err := c.bound.Call(opts, &out, method, args...); err != nil {
		return nil, classify(method, err)
	}
	return out, nil
}

// GetUserDocuments implements Binding.
func (c *Contract) GetUserDocuments(ctx context.Context, user common.Address) (RawDocuments, error) {
	out, err := c.call(ctx, common.Address{}, "getUserDocuments", user)
	if err != nil {
		return RawDocuments{}, err
	}
	if len(out) != 3 {
		return RawDocuments{}, shapeError("getUserDocuments", len(out))
	}
	return RawDocuments{
		CIDs:     *abi.ConvertType(out[0], new([]string)).(*[]string),
		Statuses: *abi.ConvertType(out[1], new([]uint8)).(*[]uint8),
		Reasons:  *abi.ConvertType(out[2], new([]string)).(*[]string),
	}, nil
}

// GetMyPendingDocuments implements Binding. The call is made from caller so
// the contract resolves the pending set for that account.
func (c *Contract) GetMyPendingDocuments(ctx context.Context, caller common.Address) (RawPending, error) {
	out, err := c.call(ctx, caller, "getMyPendingDocuments")
	if err != nil {
		return RawPending{}, err
	}
	if len(out) != 3 {
		return RawPending{}, shapeError("getMyPendingDocuments", len(out))
	}
	return RawPending{
		Owners:  *abi.ConvertType(out[0], new([]common.Address)).(*[]common.Address),
		Indices: *abi.ConvertType(out[1], new([]*big.Int)).(*[]*big.Int),
		CIDs:    *abi.ConvertType(out[2], new([]string)).(*[]string),
	}, nil
}

// IsAttester implements Binding.
func (c *Contract) IsAttester(ctx context.Context, user common.Address) (bool, error) {
	out, err := c.call(ctx, common.Address{}, "isAttester", user)
	if err != nil {
		return false, err
	}
	if len(out) != 1 {
		return false, shapeError("isAttester", len(out))
	}
	return *abi.ConvertType(out[0], new(bool)).(*bool), nil
}

// Attesters implements Binding.
func (c *Contract) Attesters(ctx context.Context, user common.Address) (AttesterRecord, error) {
	out, err := c.call(ctx, common.Address{}, "attesters", user)
	if err != nil {
		return AttesterRecord{}, err
	}
	if len(out) != 2 {
		return AttesterRecord{}, shapeError("attesters", len(out))
	}
	return AttesterRecord{
		IsActive:     *abi.ConvertType(out[0], new(bool)).(*bool),
		StakedAmount: *abi.ConvertType(out[1], new(*big.Int)).(**big.Int),
	}, nil
}

// GetStatistics implements Binding.
func (c *Contract) GetStatistics(ctx context.Context) (RawStatistics, error) {
	out, err := c.call(ctx, common.Address{}, "getStatistics")
	if err != nil {
		return RawStatistics{}, err
	}
	if len(out) != 3 {
		return RawStatistics{}, shapeError("getStatistics", len(out))
	}
	return RawStatistics{
		TotalDocuments:         *abi.ConvertType(out[0], new(*big.Int)).(**big.Int),
		TotalApprovedDocuments: *abi.ConvertType(out[1], new(*big.Int)).(**big.Int),
		TotalAttesters:         *abi.ConvertType(out[2], new(*big.Int)).(**big.Int),
	}, nil
}

// RequiredStake implements Binding. The constant is cached after the first
// successful read.
func (c *Contract) RequiredStake(ctx context.Context) (*big.Int, error) {
	c.stakeMu.Lock()
	defer c.stakeMu.Unlock()
	if c.stake != nil {
		return new(big.Int).Set(c.stake), nil
	}
	out, err := c.call(ctx, common.Address{}, "REQUIRED_STAKE")
	if err != nil {
		return nil, err
	}
	if len(out) != 1 {
		return nil, shapeError("REQUIRED_STAKE", len(out))
	}
	c.stake = *abi.ConvertType(out[0], new(*big.Int)).(**big.Int)
	return new(big.Int).Set(c.stake), nil
}

// SubmitDocument implements Binding.
func (c *Contract) SubmitDocument(ctx context.Context, opts TxOpts, cid string) (*Receipt, error) {
	return c.transact(ctx, opts, "submitDocument", cid)
}

// BecomeAttester implements Binding.
func (c *Contract) BecomeAttester(ctx context.Context, opts TxOpts) (*Receipt, error) {
	return c.transact(ctx, opts, "becomeAttester")
}

// ApproveDocument implements Binding.
func (c *Contract) ApproveDocument(ctx context.Context, opts TxOpts, user common.Address, index *big.Int) (*Receipt, error) {
	return c.transact(ctx, opts, "approveDocument", user, index)
}

// RejectDocument implements Binding.
func (c *Contract) RejectDocument(ctx context.Context, opts TxOpts, user common.Address, index *big.Int, reason string) (*Receipt, error) {
	return c.transact(ctx, opts, "rejectDocument", user, index, reason)
}

func (c *Contract) transact(ctx context.Context, opts TxOpts, method string, args ...interface{}) (*Receipt, error) {
	if opts.Signer == nil {
		return nil, classify(method, &signerError{err: errNoSender})
	}
	txOpts := &bind.TransactOpts{
		From:    opts.From,
		Context: ctx,
		Value:   opts.Value,
		Signer: func(addr common.Address, tx *types.Transaction) (*types.Transaction, error) {
			if addr != opts.Signer.Address() {
				return nil, &signerError{err: bind.ErrNotAuthorized}
			}
			signed, err := opts.Signer.SignTx(ctx, tx, c.chainID)
			if err != nil {
				return nil, &signerError{err: err}
			}
			return signed, nil
		},
	}

	tx, err := c.bound.Transact(txOpts, method, args...)
	if err != nil {
		return nil, classify(method, err)
	}
	c.logger.Info("ledger transaction sent", zap.String("method", method), zap.String("tx_hash", tx.Hash().Hex()), zap.String("from", opts.From.Hex()))

	waitCtx, cancel := c.withReceiptTimeout(ctx)
	defer cancel()
	receipt, err := bind.WaitMined(waitCtx, c.backend, tx)
	if err != nil {
		return nil, classify(method, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, appErrors.Clone(appErrors.ErrLedgerRejected, fmt.Sprintf("%s: transaction %s reverted", method, tx.Hash().Hex()))
	}
	return &Receipt{
		TxHash:      receipt.TxHash,
		BlockNumber: receipt.BlockNumber.Uint64(),
		GasUsed:     receipt.GasUsed,
	}, nil
}

// Head implements EventSource.
func (c *Contract) Head(ctx context.Context) (uint64, error) {
	head, err := c.backend.BlockNumber(ctx)
	if err != nil {
		return 0, classify("blockNumber", err)
	}
	return head, nil
}

// Events implements EventSource. Logs are requested in windows of at most
// maxRange blocks and the cursor advances after each window.
func (c *Contract) Events(ctx context.Context, from uint64) ([]Event, uint64, error) {
	head, err := c.Head(ctx)
	if err != nil {
		return nil, from, err
	}

	var topics []common.Hash
	for _, name := range []string{EventDocumentSubmitted, EventDocumentAttested, EventDocumentApproved, EventAttesterRegistered, EventAttesterAdded} {
		topics = append(topics, c.abi.Events[name].ID)
	}

	var events []Event
	next := from
	for ranges := 0; next <= head && ranges < maxRangesPerPoll; ranges++ {
		to := head
		if head-next >= c.maxRange {
			to = next + c.maxRange - 1
		}
		logs, err := c.backend.FilterLogs(ctx, ethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(next),
			ToBlock:   new(big.Int).SetUint64(to),
			Addresses: []common.Address{c.address},
			Topics:    [][]common.Hash{topics},
		})
		if err != nil {
			return events, next, classify("filterLogs", err)
		}
		for _, lg := range logs {
			if lg.Removed || len(lg.Topics) == 0 {
				continue
			}
			evt, err := c.decode(lg)
			if err != nil {
				c.logger.Warn("skip undecodable ledger log", zap.String("tx_hash", lg.TxHash.Hex()), zap.Error(err))
				continue
			}
			events = append(events, evt)
		}
		next = to + 1
	}
	return events, next, nil
}

func (c *Contract) decode(lg types.Log) (Event, error) {
	abiEvent, err := c.abi.EventByID(lg.Topics[0])
	if err != nil {
		return Event{}, err
	}
	fields := map[string]interface{}{}
	if err := c.bound.UnpackLogIntoMap(fields, abiEvent.Name, lg); err != nil {
		return Event{}, err
	}

	evt := Event{Name: abiEvent.Name, BlockNumber: lg.BlockNumber, TxHash: lg.TxHash}
	if v, ok := fields["user"].(common.Address); ok {
		evt.Subject = v
	}
	if v, ok := fields["attester"].(common.Address); ok {
		evt.Subject = v
	}
	if v, ok := fields["documentIndex"].(*big.Int); ok {
		evt.Index = v
	}
	if v, ok := fields["cid"].(string); ok {
		evt.CID = v
	}
	if v, ok := fields["status"].(uint8); ok {
		evt.Status = v
	}
	if v, ok := fields["rejectionReason"].(string); ok {
		evt.RejectionReason = v
	}
	return evt, nil
}

func shapeError(method string, got int) error {
	return appErrors.Clone(appErrors.ErrDataIntegrity, fmt.Sprintf("%s returned %d values", method, got))
}

func (c *Contract) withReceiptTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}
