package service

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ipfs/go-cid"
	"go.uber.org/zap"

	"github.com/noah-isme/kyc-attestation-api/internal/ledger"
	"github.com/noah-isme/kyc-attestation-api/internal/models"
	appErrors "github.com/noah-isme/kyc-attestation-api/pkg/errors"
	"github.com/noah-isme/kyc-attestation-api/pkg/logger"
	"github.com/noah-isme/kyc-attestation-api/pkg/wallet"
)

type actionRecorder interface {
	Record(ctx context.Context, action *models.LedgerAction) error
}

// LedgerServiceParams groups constructor dependencies.
type LedgerServiceParams struct {
	Binding ledger.Binding
	Cache   *CacheService
	Metrics *MetricsService
	Actions actionRecorder
	Locks   *wallet.KeyedMutex
	Logger  *zap.Logger
}

// LedgerService is the typed gateway to the attestation ledger. Reads are
// served through the view cache; every acknowledged mutation invalidates the
// views it affects before returning.
type LedgerService struct {
	binding ledger.Binding
	cache   *CacheService
	metrics *MetricsService
	actions actionRecorder
	locks   *wallet.KeyedMutex
	logger  *zap.Logger
}

// NewLedgerService constructs a LedgerService.
func NewLedgerService(params LedgerServiceParams) *LedgerService {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	locks := params.Locks
	if locks == nil {
		locks = wallet.NewKeyedMutex()
	}
	return &LedgerService{
		binding: params.Binding,
		cache:   params.Cache,
		metrics: params.Metrics,
		actions: params.Actions,
		locks:   locks,
		logger:  logger,
	}
}

// ParseAddress validates a hex account address.
func ParseAddress(raw string) (common.Address, error) {
	raw = strings.TrimSpace(raw)
	if !common.IsHexAddress(raw) {
		return common.Address{}, appErrors.Clone(appErrors.ErrValidation, "invalid account address")
	}
	return common.HexToAddress(raw), nil
}

// ParseIndex validates a decimal document index.
func ParseIndex(raw string) (*big.Int, error) {
	index, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok || index.Sign() < 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid document index")
	}
	return index, nil
}

// DocumentsFor returns the owner's documents ordered by index.
func (s *LedgerService) DocumentsFor(ctx context.Context, owner common.Address) ([]models.Document, bool, error) {
	return remember(ctx, s.cache, documentsCacheKey(owner), func() ([]models.Document, error) {
		var raw ledger.RawDocuments
		err := s.observe("getUserDocuments", func() (err error) {
			raw, err = s.binding.GetUserDocuments(ctx, owner)
			return err
		})
		if err != nil {
			return nil, err
		}
		docs, err := ToDocumentList(owner, raw)
		if err != nil {
			s.logger.Error("ledger returned inconsistent documents", zap.String("owner", owner.Hex()), zap.Error(err))
		}
		return docs, err
	})
}

// PendingQueue returns the pending entries visible to the session's account.
func (s *LedgerService) PendingQueue(ctx context.Context, session *models.Session) ([]models.PendingEntry, bool, error) {
	if session == nil {
		return nil, false, appErrors.ErrUnauthorized
	}
	return remember(ctx, s.cache, pendingCacheKey(session.Address), func() ([]models.PendingEntry, error) {
		var raw ledger.RawPending
		err := s.observe("getMyPendingDocuments", func() (err error) {
			raw, err = s.binding.GetMyPendingDocuments(ctx, session.Address)
			return err
		})
		if err != nil {
			return nil, err
		}
		entries, err := ToPendingList(raw)
		if err != nil {
			s.logger.Error("ledger returned inconsistent pending queue", zap.String("caller", session.Address.Hex()), zap.Error(err))
		}
		return entries, err
	})
}

// IsAttester reports whether the account is an active attester.
func (s *LedgerService) IsAttester(ctx context.Context, address common.Address) (bool, error) {
	attester, _, err := s.Attester(ctx, address)
	if err != nil {
		return false, err
	}
	return attester.IsActive, nil
}

// Attester returns the staking record of an account.
func (s *LedgerService) Attester(ctx context.Context, address common.Address) (*models.Attester, bool, error) {
	return remember(ctx, s.cache, attesterCacheKey(address), func() (*models.Attester, error) {
		var (
			record ledger.AttesterRecord
			active bool
		)
		err := s.observe("attesters", func() (err error) {
			record, err = s.binding.Attesters(ctx, address)
			return err
		})
		if err != nil {
			return nil, err
		}
		err = s.observe("isAttester", func() (err error) {
			active, err = s.binding.IsAttester(ctx, address)
			return err
		})
		if err != nil {
			return nil, err
		}
		staked := record.StakedAmount
		if staked == nil {
			staked = big.NewInt(0)
		}
		return &models.Attester{Address: address, IsActive: active, StakedAmount: staked}, nil
	})
}

// Statistics returns the ledger's aggregate counters.
func (s *LedgerService) Statistics(ctx context.Context) (*models.Statistics, bool, error) {
	return remember(ctx, s.cache, cacheKeyStatistics, func() (*models.Statistics, error) {
		var raw ledger.RawStatistics
		err := s.observe("getStatistics", func() (err error) {
			raw, err = s.binding.GetStatistics(ctx)
			return err
		})
		if err != nil {
			return nil, err
		}
		return toStatistics(raw)
	})
}

// RequiredStake returns the exact amount becomeAttester must carry.
func (s *LedgerService) RequiredStake(ctx context.Context) (*big.Int, error) {
	var stake *big.Int
	err := s.observe("REQUIRED_STAKE", func() (err error) {
		stake, err = s.binding.RequiredStake(ctx)
		return err
	})
	return stake, err
}

// SubmitDocument records cid for the session's account.
func (s *LedgerService) SubmitDocument(ctx context.Context, session *models.Session, rawCID string) (*ledger.Receipt, error) {
	rawCID = strings.TrimSpace(rawCID)
	if rawCID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "cid is required")
	}
	if _, err := cid.Decode(rawCID); err != nil {
		return nil, appErrors.WrapAs(err, appErrors.ErrValidation, "cid is not a valid content identifier")
	}
	return s.mutate(ctx, session, mutation{action: models.ActionSubmitDocument}, func(opts ledger.TxOpts) (*ledger.Receipt, error) {
		return s.binding.SubmitDocument(ctx, opts, rawCID)
	})
}

// BecomeAttester stakes value for the session's account. A nil value stakes
// the ledger's required amount.
func (s *LedgerService) BecomeAttester(ctx context.Context, session *models.Session, value *big.Int) (*ledger.Receipt, error) {
	if value == nil {
		stake, err := s.RequiredStake(ctx)
		if err != nil {
			return nil, err
		}
		value = stake
	}
	if value.Sign() < 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "stake must not be negative")
	}
	return s.mutate(ctx, session, mutation{action: models.ActionBecomeAttester}, func(opts ledger.TxOpts) (*ledger.Receipt, error) {
		opts.Value = value
		return s.binding.BecomeAttester(ctx, opts)
	})
}

// ApproveDocument approves a pending document of owner.
func (s *LedgerService) ApproveDocument(ctx context.Context, session *models.Session, owner common.Address, index *big.Int) (*ledger.Receipt, error) {
	if index == nil || index.Sign() < 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid document index")
	}
	m := mutation{action: models.ActionApproveDocument, target: &owner, index: index}
	return s.mutate(ctx, session, m, func(opts ledger.TxOpts) (*ledger.Receipt, error) {
		return s.binding.ApproveDocument(ctx, opts, owner, index)
	})
}

// RejectDocument rejects a pending document of owner with reason.
func (s *LedgerService) RejectDocument(ctx context.Context, session *models.Session, owner common.Address, index *big.Int, reason string) (*ledger.Receipt, error) {
	if index == nil || index.Sign() < 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid document index")
	}
	if strings.TrimSpace(reason) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "rejection reason is required")
	}
	m := mutation{action: models.ActionRejectDocument, target: &owner, index: index}
	return s.mutate(ctx, session, m, func(opts ledger.TxOpts) (*ledger.Receipt, error) {
		return s.binding.RejectDocument(ctx, opts, owner, index, reason)
	})
}

// Refresh drops derived views so the next read re-derives them from the
// ledger. owners limits document invalidation; statistics, pending queues
// and dashboards are always dropped.
func (s *LedgerService) Refresh(ctx context.Context, owners ...common.Address) error {
	patterns := []string{cacheKeyStatistics, cachePatternPending, cachePatternDashboards}
	for _, owner := range owners {
		patterns = append(patterns, documentsCacheKey(owner), attesterCacheKey(owner))
	}
	return s.cache.Invalidate(ctx, patterns...)
}

type mutation struct {
	action models.LedgerActionType
	target *common.Address
	index  *big.Int
}

func (s *LedgerService) mutate(ctx context.Context, session *models.Session, m mutation, send func(ledger.TxOpts) (*ledger.Receipt, error)) (*ledger.Receipt, error) {
	if session == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if session.Signer == nil {
		return nil, appErrors.WrapAs(wallet.ErrNoSigner, appErrors.ErrAuthentication, "no signer is connected for this account")
	}

	unlock, err := s.locks.Lock(ctx, session.Address)
	if err != nil {
		return nil, appErrors.WrapAs(err, appErrors.ErrTransport, "request cancelled while waiting for the wallet")
	}
	defer unlock()

	var receipt *ledger.Receipt
	err = s.observe(string(m.action), func() (err error) {
		receipt, err = send(ledger.TxOpts{From: session.Address, Signer: session.Signer})
		return err
	})
	s.audit(ctx, session.Address, m, receipt, err)
	log := logger.WithRequest(ctx, s.logger)
	if err != nil {
		log.Warn("ledger mutation failed",
			zap.String("action", string(m.action)),
			zap.String("address", session.Address.Hex()),
			zap.Error(err))
		return nil, err
	}

	log.Info("ledger mutation finalised",
		zap.String("action", string(m.action)),
		zap.String("address", session.Address.Hex()),
		zap.String("tx_hash", receipt.TxHash.Hex()),
		zap.Uint64("block", receipt.BlockNumber))

	owners := []common.Address{session.Address}
	if m.target != nil {
		owners = append(owners, *m.target)
	}
	if err := s.Refresh(ctx, owners...); err != nil {
		log.Error("view refresh after mutation failed; views bypass the cache until a flush succeeds",
			zap.String("tx_hash", receipt.TxHash.Hex()),
			zap.Error(err))
	}
	return receipt, nil
}

func (s *LedgerService) observe(method string, call func() error) error {
	start := time.Now()
	err := call()
	s.metrics.ObserveLedgerCall(method, err, time.Since(start))
	return err
}

func (s *LedgerService) audit(ctx context.Context, actor common.Address, m mutation, receipt *ledger.Receipt, err error) {
	if s.actions == nil {
		return
	}
	record := &models.LedgerAction{
		Actor:   actor.Hex(),
		Action:  m.action,
		Outcome: models.ActionOutcomeSuccess,
	}
	if m.target != nil {
		target := m.target.Hex()
		record.Target = &target
	}
	if m.index != nil {
		index := m.index.String()
		record.DocIndex = &index
	}
	if receipt != nil {
		hash := receipt.TxHash.Hex()
		record.TxHash = &hash
	}
	if err != nil {
		record.Outcome = models.ActionOutcomeFailure
		code := appErrors.FromError(err).Code
		record.ErrorCode = &code
	}
	// the audit must outlive a cancelled request
	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if recErr := s.actions.Record(auditCtx, record); recErr != nil {
		s.logger.Warn("failed to record ledger action", zap.String("action", string(m.action)), zap.Error(recErr))
	}
}
