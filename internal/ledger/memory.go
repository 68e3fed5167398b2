package ledger

import (
	"context"
	"encoding/binary"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/noah-isme/kyc-attestation-api/internal/models"
)

type memoryDocument struct {
	cid    string
	status models.AttestationStatus
	reason string
}

type pendingRef struct {
	owner common.Address
	index uint64
}

// Memory is an in-process ledger with the same state machine as the deployed
// contract. It backs LEDGER_MODE=memory and the test suite.
type Memory struct {
	mu sync.Mutex

	requiredStake *big.Int
	documents     map[common.Address][]memoryDocument
	attesters     map[common.Address]AttesterRecord

	// pending is compacted with swap-and-pop; position tracks each entry.
	pending  []pendingRef
	position map[pendingRef]int

	totalDocuments uint64
	totalApproved  uint64
	totalAttesters uint64

	block  uint64
	nonce  uint64
	events []Event
}

// NewMemory creates an empty ledger requiring stake for attester registration.
func NewMemory(requiredStake *big.Int) *Memory {
	if requiredStake == nil {
		requiredStake = big.NewInt(0)
	}
	return &Memory{
		requiredStake: new(big.Int).Set(requiredStake),
		documents:     make(map[common.Address][]memoryDocument),
		attesters:     make(map[common.Address]AttesterRecord),
		position:      make(map[pendingRef]int),
	}
}

// GetUserDocuments implements Binding.
func (m *Memory) GetUserDocuments(ctx context.Context, user common.Address) (RawDocuments, error) {
	if err := ctx.Err(); err != nil {
		return RawDocuments{}, classify("getUserDocuments", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	docs := m.documents[user]
	raw := RawDocuments{
		CIDs:     make([]string, len(docs)),
		Statuses: make([]uint8, len(docs)),
		Reasons:  make([]string, len(docs)),
	}
	for i, doc := range docs {
		raw.CIDs[i] = doc.cid
		raw.Statuses[i] = uint8(doc.status)
		raw.Reasons[i] = doc.reason
	}
	return raw, nil
}

// GetMyPendingDocuments implements Binding. Active attesters see the whole
// pending set; other callers are refused.
func (m *Memory) GetMyPendingDocuments(ctx context.Context, caller common.Address) (RawPending, error) {
	if err := ctx.Err(); err != nil {
		return RawPending{}, classify("getMyPendingDocuments", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.attesters[caller].IsActive {
		return RawPending{}, rejected("getMyPendingDocuments", "caller is not an attester")
	}
	raw := RawPending{
		Owners:  make([]common.Address, len(m.pending)),
		Indices: make([]*big.Int, len(m.pending)),
		CIDs:    make([]string, len(m.pending)),
	}
	for i, ref := range m.pending {
		raw.Owners[i] = ref.owner
		raw.Indices[i] = new(big.Int).SetUint64(ref.index)
		raw.CIDs[i] = m.documents[ref.owner][ref.index].cid
	}
	return raw, nil
}

// IsAttester implements Binding.
func (m *Memory) IsAttester(ctx context.Context, user common.Address) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, classify("isAttester", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attesters[user].IsActive, nil
}

// Attesters implements Binding.
func (m *Memory) Attesters(ctx context.Context, user common.Address) (AttesterRecord, error) {
	if err := ctx.Err(); err != nil {
		return AttesterRecord{}, classify("attesters", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.attesters[user]
	if !ok {
		return AttesterRecord{StakedAmount: big.NewInt(0)}, nil
	}
	return AttesterRecord{IsActive: record.IsActive, StakedAmount: new(big.Int).Set(record.StakedAmount)}, nil
}

// GetStatistics implements Binding.
func (m *Memory) GetStatistics(ctx context.Context) (RawStatistics, error) {
	if err := ctx.Err(); err != nil {
		return RawStatistics{}, classify("getStatistics", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return RawStatistics{
		TotalDocuments:         new(big.Int).SetUint64(m.totalDocuments),
		TotalApprovedDocuments: new(big.Int).SetUint64(m.totalApproved),
		TotalAttesters:         new(big.Int).SetUint64(m.totalAttesters),
	}, nil
}

// RequiredStake implements Binding.
func (m *Memory) RequiredStake(ctx context.Context) (*big.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, classify("REQUIRED_STAKE", err)
	}
	return new(big.Int).Set(m.requiredStake), nil
}

// SubmitDocument implements Binding.
func (m *Memory) SubmitDocument(ctx context.Context, opts TxOpts, cid string) (*Receipt, error) {
	const op = "submitDocument"
	if err := m.authorise(ctx, op, opts); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if strings.TrimSpace(cid) == "" {
		return nil, rejected(op, "CID cannot be empty")
	}
	index := uint64(len(m.documents[opts.From]))
	m.documents[opts.From] = append(m.documents[opts.From], memoryDocument{cid: cid, status: models.StatusPending})
	ref := pendingRef{owner: opts.From, index: index}
	m.position[ref] = len(m.pending)
	m.pending = append(m.pending, ref)
	m.totalDocuments++

	receipt := m.mine(opts.From)
	m.emit(Event{Name: EventDocumentSubmitted, Subject: opts.From, Index: new(big.Int).SetUint64(index), CID: cid}, receipt)
	return receipt, nil
}

// BecomeAttester implements Binding.
func (m *Memory) BecomeAttester(ctx context.Context, opts TxOpts) (*Receipt, error) {
	const op = "becomeAttester"
	if err := m.authorise(ctx, op, opts); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if opts.Value == nil || opts.Value.Cmp(m.requiredStake) != 0 {
		return nil, rejected(op, "incorrect stake amount")
	}
	if m.attesters[opts.From].IsActive {
		return nil, rejected(op, "already an attester")
	}
	m.attesters[opts.From] = AttesterRecord{IsActive: true, StakedAmount: new(big.Int).Set(opts.Value)}
	m.totalAttesters++

	receipt := m.mine(opts.From)
	m.emit(Event{Name: EventAttesterRegistered, Subject: opts.From}, receipt)
	return receipt, nil
}

// ApproveDocument implements Binding.
func (m *Memory) ApproveDocument(ctx context.Context, opts TxOpts, user common.Address, index *big.Int) (*Receipt, error) {
	const op = "approveDocument"
	if err := m.authorise(ctx, op, opts); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, err := m.pendingDocument(op, opts.From, user, index)
	if err != nil {
		return nil, err
	}
	doc.status = models.StatusApproved
	m.unqueue(pendingRef{owner: user, index: index.Uint64()})
	m.totalApproved++

	receipt := m.mine(opts.From)
	idx := new(big.Int).Set(index)
	m.emit(Event{Name: EventDocumentAttested, Subject: user, Index: idx, Status: uint8(models.StatusApproved)}, receipt)
	m.emit(Event{Name: EventDocumentApproved, Subject: user, Index: idx}, receipt)
	return receipt, nil
}

// RejectDocument implements Binding.
func (m *Memory) RejectDocument(ctx context.Context, opts TxOpts, user common.Address, index *big.Int, reason string) (*Receipt, error) {
	const op = "rejectDocument"
	if err := m.authorise(ctx, op, opts); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if strings.TrimSpace(reason) == "" {
		return nil, rejected(op, "rejection reason required")
	}
	doc, err := m.pendingDocument(op, opts.From, user, index)
	if err != nil {
		return nil, err
	}
	doc.status = models.StatusRejected
	doc.reason = reason
	m.unqueue(pendingRef{owner: user, index: index.Uint64()})

	receipt := m.mine(opts.From)
	m.emit(Event{Name: EventDocumentAttested, Subject: user, Index: new(big.Int).Set(index), Status: uint8(models.StatusRejected), RejectionReason: reason}, receipt)
	return receipt, nil
}

// Events implements EventSource.
func (m *Memory) Events(ctx context.Context, from uint64) ([]Event, uint64, error) {
	if err := ctx.Err(); err != nil {
		return nil, from, classify("events", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Event
	for _, evt := range m.events {
		if evt.BlockNumber >= from {
			out = append(out, evt)
		}
	}
	if m.block+1 > from {
		return out, m.block + 1, nil
	}
	return out, from, nil
}

// Head implements EventSource.
func (m *Memory) Head(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, classify("head", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.block, nil
}

// authorise mirrors the signature step of a real transaction: the sender must
// be able to sign for From.
func (m *Memory) authorise(ctx context.Context, op string, opts TxOpts) error {
	if err := ctx.Err(); err != nil {
		return classify(op, err)
	}
	if opts.Signer == nil || opts.Signer.Address() != opts.From {
		return classify(op, &signerError{err: errNoSender})
	}
	return nil
}

func (m *Memory) pendingDocument(op string, caller, user common.Address, index *big.Int) (*memoryDocument, error) {
	if !m.attesters[caller].IsActive {
		return nil, rejected(op, "caller is not an attester")
	}
	docs := m.documents[user]
	if index == nil || index.Sign() < 0 || !index.IsUint64() || index.Uint64() >= uint64(len(docs)) {
		return nil, rejected(op, "invalid document index")
	}
	doc := &docs[index.Uint64()]
	if doc.status != models.StatusPending {
		return nil, rejected(op, "document is not pending")
	}
	return doc, nil
}

func (m *Memory) unqueue(ref pendingRef) {
	pos, ok := m.position[ref]
	if !ok {
		return
	}
	last := len(m.pending) - 1
	if pos != last {
		moved := m.pending[last]
		m.pending[pos] = moved
		m.position[moved] = pos
	}
	m.pending = m.pending[:last]
	delete(m.position, ref)
}

func (m *Memory) mine(from common.Address) *Receipt {
	m.block++
	m.nonce++
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], m.nonce)
	return &Receipt{
		TxHash:      crypto.Keccak256Hash(from.Bytes(), buf[:]),
		BlockNumber: m.block,
	}
}

func (m *Memory) emit(evt Event, receipt *Receipt) {
	evt.BlockNumber = receipt.BlockNumber
	evt.TxHash = receipt.TxHash
	m.events = append(m.events, evt)
}
