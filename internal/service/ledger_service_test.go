package service

import (
	"context"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/kyc-attestation-api/internal/ledger"
	"github.com/noah-isme/kyc-attestation-api/internal/models"
	appErrors "github.com/noah-isme/kyc-attestation-api/pkg/errors"
	"github.com/noah-isme/kyc-attestation-api/pkg/wallet/wallettest"
)

var testStake = big.NewInt(1_000_000_000_000_000)

type ledgerFixture struct {
	svc     *LedgerService
	memory  *ledger.Memory
	cache   *memoryCacheRepo
	actions *fakeActions
}

func newLedgerFixture(binding ledger.Binding) *ledgerFixture {
	memory, _ := binding.(*ledger.Memory)
	repo := newMemoryCacheRepo()
	actions := &fakeActions{}
	svc := NewLedgerService(LedgerServiceParams{
		Binding: binding,
		Cache:   NewCacheService(repo, nil, time.Minute, nil, true),
		Actions: actions,
	})
	return &ledgerFixture{svc: svc, memory: memory, cache: repo, actions: actions}
}

func (f *ledgerFixture) attester(t *testing.T) *wallettest.Signer {
	t.Helper()
	s := wallettest.NewSigner()
	_, err := f.svc.BecomeAttester(context.Background(), sessionFor(s), nil)
	require.NoError(t, err)
	return s
}

func TestSubmitDocumentAppearsAtNextIndex(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture(ledger.NewMemory(testStake))
	owner := wallettest.NewSigner()

	docs, _, err := f.svc.DocumentsFor(ctx, owner.Address())
	require.NoError(t, err)
	assert.Empty(t, docs)
	assert.True(t, f.cache.has(documentsCacheKey(owner.Address())), "empty view is cached")

	for i := 0; i < 3; i++ {
		cid := testCID(t, string(rune('a'+i)))
		receipt, err := f.svc.SubmitDocument(ctx, sessionFor(owner), cid)
		require.NoError(t, err)
		assert.NotEqual(t, common.Hash{}, receipt.TxHash)

		docs, hit, err := f.svc.DocumentsFor(ctx, owner.Address())
		require.NoError(t, err)
		assert.False(t, hit, "mutation invalidates the owner's documents")
		require.Len(t, docs, i+1)
		assert.Equal(t, uint64(i), docs[i].Index)
		assert.Equal(t, cid, docs[i].CID)
		assert.Equal(t, models.StatusPending, docs[i].Status)
	}

	last := f.actions.last()
	assert.Equal(t, models.ActionSubmitDocument, last.Action)
	assert.Equal(t, models.ActionOutcomeSuccess, last.Outcome)
	require.NotNil(t, last.TxHash)
}

func TestSubmitDocumentValidatesCID(t *testing.T) {
	f := newLedgerFixture(ledger.NewMemory(testStake))
	session := sessionFor(wallettest.NewSigner())

	_, err := f.svc.SubmitDocument(context.Background(), session, " ")
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	_, err = f.svc.SubmitDocument(context.Background(), session, "not-a-cid")
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	assert.Empty(t, f.actions.records, "nothing reached the ledger")
}

func TestMutationsRequireConnectedSigner(t *testing.T) {
	f := newLedgerFixture(ledger.NewMemory(testStake))
	readOnly := &models.Session{Address: common.HexToAddress("0x01")}

	_, err := f.svc.SubmitDocument(context.Background(), readOnly, testCID(t, "x"))
	assert.ErrorIs(t, err, appErrors.ErrAuthentication)
	_, err = f.svc.SubmitDocument(context.Background(), nil, testCID(t, "x"))
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}

func TestBecomeAttesterWrongAmountLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture(ledger.NewMemory(testStake))
	s := wallettest.NewSigner()

	_, err := f.svc.BecomeAttester(ctx, sessionFor(s), big.NewInt(5))
	assert.ErrorIs(t, err, appErrors.ErrLedgerRejected)
	active, err := f.svc.IsAttester(ctx, s.Address())
	require.NoError(t, err)
	assert.False(t, active)

	failed := f.actions.last()
	assert.Equal(t, models.ActionOutcomeFailure, failed.Outcome)
	require.NotNil(t, failed.ErrorCode)
	assert.Equal(t, appErrors.ErrLedgerRejected.Code, *failed.ErrorCode)

	_, err = f.svc.BecomeAttester(ctx, sessionFor(s), new(big.Int).Set(testStake))
	require.NoError(t, err)
	active, err = f.svc.IsAttester(ctx, s.Address())
	require.NoError(t, err)
	assert.True(t, active, "attester view is refreshed after the mutation")

	attester, _, err := f.svc.Attester(ctx, s.Address())
	require.NoError(t, err)
	assert.Equal(t, 0, attester.StakedAmount.Cmp(testStake))
}

func TestApproveAndRejectRules(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture(ledger.NewMemory(testStake))
	owner := wallettest.NewSigner()
	outsider := wallettest.NewSigner()
	attester := f.attester(t)

	for i := 0; i < 2; i++ {
		_, err := f.svc.SubmitDocument(ctx, sessionFor(owner), testCID(t, string(rune('p'+i))))
		require.NoError(t, err)
	}

	_, err := f.svc.ApproveDocument(ctx, sessionFor(outsider), owner.Address(), big.NewInt(0))
	assert.ErrorIs(t, err, appErrors.ErrLedgerRejected)
	_, err = f.svc.RejectDocument(ctx, sessionFor(outsider), owner.Address(), big.NewInt(0), "nope")
	assert.ErrorIs(t, err, appErrors.ErrLedgerRejected)

	_, err = f.svc.RejectDocument(ctx, sessionFor(attester), owner.Address(), big.NewInt(1), "   ")
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	pending, _, err := f.svc.PendingQueue(ctx, sessionFor(attester))
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	_, err = f.svc.ApproveDocument(ctx, sessionFor(attester), owner.Address(), big.NewInt(0))
	require.NoError(t, err)
	_, err = f.svc.RejectDocument(ctx, sessionFor(attester), owner.Address(), big.NewInt(1), "blurry scan")
	require.NoError(t, err)

	docs, _, err := f.svc.DocumentsFor(ctx, owner.Address())
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, docs[0].Status)
	assert.Equal(t, models.StatusRejected, docs[1].Status)
	assert.Equal(t, "blurry scan", docs[1].RejectionReason)

	pending, hit, err := f.svc.PendingQueue(ctx, sessionFor(attester))
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Empty(t, pending, "terminal documents leave the pending queue")

	stats, _, err := f.svc.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalDocuments.Int64())
	assert.Equal(t, int64(1), stats.TotalApprovedDocuments.Int64())
	assert.Equal(t, int64(1), stats.TotalAttesters.Int64())
}

func TestApproveAlreadyApprovedDocumentFails(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture(ledger.NewMemory(testStake))
	owner := wallettest.NewSigner()
	attester := f.attester(t)
	for i := 0; i < 3; i++ {
		_, err := f.svc.SubmitDocument(ctx, sessionFor(owner), testCID(t, string(rune('a'+i))))
		require.NoError(t, err)
	}
	_, err := f.svc.ApproveDocument(ctx, sessionFor(attester), owner.Address(), big.NewInt(2))
	require.NoError(t, err)

	_, err = f.svc.ApproveDocument(ctx, sessionFor(attester), owner.Address(), big.NewInt(2))
	assert.ErrorIs(t, err, appErrors.ErrLedgerRejected)

	docs, _, err := f.svc.DocumentsFor(ctx, owner.Address())
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, docs[2].Status)
}

type divergentBinding struct{ ledger.Binding }

func (divergentBinding) GetUserDocuments(context.Context, common.Address) (ledger.RawDocuments, error) {
	return ledger.RawDocuments{CIDs: []string{"a", "b"}, Statuses: []uint8{0}, Reasons: []string{""}}, nil
}

func TestDocumentsForSurfacesDataIntegrityFault(t *testing.T) {
	f := newLedgerFixture(divergentBinding{Binding: ledger.NewMemory(testStake)})
	_, _, err := f.svc.DocumentsFor(context.Background(), common.HexToAddress("0xaa"))
	assert.ErrorIs(t, err, appErrors.ErrDataIntegrity)
	assert.False(t, f.cache.has(documentsCacheKey(common.HexToAddress("0xaa"))), "faults are not cached")
}

type slowBinding struct {
	ledger.Binding
	inFlight int32
	maxSeen  int32
}

func (b *slowBinding) SubmitDocument(ctx context.Context, opts ledger.TxOpts, cid string) (*ledger.Receipt, error) {
	n := atomic.AddInt32(&b.inFlight, 1)
	defer atomic.AddInt32(&b.inFlight, -1)
	for {
		seen := atomic.LoadInt32(&b.maxSeen)
		if n <= seen || atomic.CompareAndSwapInt32(&b.maxSeen, seen, n) {
			break
		}
	}
	time.Sleep(10 * time.Millisecond)
	return b.Binding.SubmitDocument(ctx, opts, cid)
}

func TestMutationsAreSerialisedPerIdentity(t *testing.T) {
	binding := &slowBinding{Binding: ledger.NewMemory(testStake)}
	f := newLedgerFixture(binding)
	owner := wallettest.NewSigner()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.SubmitDocument(context.Background(), sessionFor(owner), testCID(t, string(rune('k'+i))))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&binding.maxSeen))
	docs, _, err := f.svc.DocumentsFor(context.Background(), owner.Address())
	require.NoError(t, err)
	assert.Len(t, docs, 4)
}

func TestParseHelpers(t *testing.T) {
	_, err := ParseAddress("0x123")
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	addr, err := ParseAddress(" 0xDC893A7cF7c2d69fAf65EDe795D5750c48d3169A ")
	require.NoError(t, err)
	assert.Equal(t, "0xDC893A7cF7c2d69fAf65EDe795D5750c48d3169A", addr.Hex())

	_, err = ParseIndex("-1")
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	idx, err := ParseIndex("2")
	require.NoError(t, err)
	assert.Equal(t, int64(2), idx.Int64())
}

// gatedBinding parks GetMyPendingDocuments after the ledger has answered.
type gatedBinding struct {
	ledger.Binding
	gate    chan struct{}
	read    chan struct{}
	blocked atomic.Bool
}

func (b *gatedBinding) GetMyPendingDocuments(ctx context.Context, caller common.Address) (ledger.RawPending, error) {
	raw, err := b.Binding.GetMyPendingDocuments(ctx, caller)
	if b.blocked.CompareAndSwap(true, false) {
		close(b.read)
		<-b.gate
	}
	return raw, err
}

func TestPendingQueueReadRacingApprovalIsNotCached(t *testing.T) {
	ctx := context.Background()
	binding := &gatedBinding{Binding: ledger.NewMemory(testStake), gate: make(chan struct{}), read: make(chan struct{})}
	f := newLedgerFixture(binding)
	owner := wallettest.NewSigner()
	attester := f.attester(t)
	_, err := f.svc.SubmitDocument(ctx, sessionFor(owner), testCID(t, "race"))
	require.NoError(t, err)

	binding.blocked.Store(true)
	stale := make(chan []models.PendingEntry, 1)
	go func() {
		entries, _, err := f.svc.PendingQueue(ctx, sessionFor(attester))
		assert.NoError(t, err)
		stale <- entries
	}()

	<-binding.read
	_, err = f.svc.ApproveDocument(ctx, sessionFor(attester), owner.Address(), big.NewInt(0))
	require.NoError(t, err)
	close(binding.gate)
	assert.Len(t, <-stale, 1, "the in-flight read still answers with what it saw")

	assert.False(t, f.cache.has(pendingCacheKey(attester.Address())))
	pending, hit, err := f.svc.PendingQueue(ctx, sessionFor(attester))
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Empty(t, pending)

	docs, _, err := f.svc.DocumentsFor(ctx, owner.Address())
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, docs[0].Status)
}

func TestFailedInvalidationBypassesCacheUntilFlushed(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture(ledger.NewMemory(testStake))
	owner := wallettest.NewSigner()
	attester := f.attester(t)
	_, err := f.svc.SubmitDocument(ctx, sessionFor(owner), testCID(t, "flush"))
	require.NoError(t, err)

	pending, _, err := f.svc.PendingQueue(ctx, sessionFor(attester))
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.True(t, f.cache.has(pendingCacheKey(attester.Address())))

	f.cache.setFailDelete(true)
	_, err = f.svc.ApproveDocument(ctx, sessionFor(attester), owner.Address(), big.NewInt(0))
	require.NoError(t, err, "the ledger accepted the approval")
	require.True(t, f.cache.has(pendingCacheKey(attester.Address())), "stale entry survived the failed delete")

	pending, hit, err := f.svc.PendingQueue(ctx, sessionFor(attester))
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Empty(t, pending)

	f.cache.setFailDelete(false)
	require.NoError(t, f.svc.Refresh(ctx))
	assert.False(t, f.cache.has(pendingCacheKey(attester.Address())), "recovery flushes every view")
	_, hit, err = f.svc.PendingQueue(ctx, sessionFor(attester))
	require.NoError(t, err)
	assert.False(t, hit)
	_, hit, err = f.svc.PendingQueue(ctx, sessionFor(attester))
	require.NoError(t, err)
	assert.True(t, hit, "cache serves again once flushed")
}
