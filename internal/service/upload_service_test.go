package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/kyc-attestation-api/internal/ledger"
	"github.com/noah-isme/kyc-attestation-api/internal/models"
	appErrors "github.com/noah-isme/kyc-attestation-api/pkg/errors"
	"github.com/noah-isme/kyc-attestation-api/pkg/lighthouse"
	"github.com/noah-isme/kyc-attestation-api/pkg/wallet"
	"github.com/noah-isme/kyc-attestation-api/pkg/wallet/wallettest"
)

type fakeStorage struct {
	t          *testing.T
	noKey      bool
	tokenErr   error
	uploadErr  error
	hash       string
	signatures []string
	// reported overrides what the service echoes back about the stored file
	reported *lighthouse.Uploaded
}

func (f *fakeStorage) Configured() bool              { return !f.noKey }
func (f *fakeStorage) GatewayURL(hash string) string { return "https://gw.test/ipfs/" + hash }

func (f *fakeStorage) AuthMessage(_ context.Context, address string) (string, error) {
	return "sign in " + address, nil
}

func (f *fakeStorage) AccessToken(_ context.Context, address, signature string) (string, error) {
	if f.tokenErr != nil {
		return "", f.tokenErr
	}
	sig, err := hexutil.Decode(signature)
	require.NoError(f.t, err)
	signer, err := wallet.RecoverAddress([]byte("sign in "+address), sig)
	require.NoError(f.t, err)
	assert.Equal(f.t, address, signer.Hex())
	f.signatures = append(f.signatures, signature)
	return "token", nil
}

func (f *fakeStorage) UploadEncrypted(_ context.Context, file lighthouse.File, _, token string, progress lighthouse.ProgressFunc) (*lighthouse.Uploaded, error) {
	assert.Equal(f.t, "token", token)
	if progress != nil {
		progress(0.5)
	}
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	if progress != nil {
		progress(1)
	}
	if f.reported != nil {
		reported := *f.reported
		reported.Hash = f.hash
		return &reported, nil
	}
	return &lighthouse.Uploaded{Name: file.Name, Hash: f.hash, Size: int64(len(file.Content))}, nil
}

type fakeJournal struct {
	mu      sync.Mutex
	records map[string]*models.UploadRecord
}

func newFakeJournal() *fakeJournal { return &fakeJournal{records: map[string]*models.UploadRecord{}} }

func (j *fakeJournal) Create(_ context.Context, record *models.UploadRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	copied := *record
	j.records[record.ID] = &copied
	return nil
}

func (j *fakeJournal) GetByID(_ context.Context, id string) (*models.UploadRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	record, ok := j.records[id]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "upload not found")
	}
	copied := *record
	return &copied, nil
}

func (j *fakeJournal) ListByOwner(_ context.Context, owner string, status models.UploadStatus) ([]models.UploadRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []models.UploadRecord
	for _, r := range j.records {
		if r.Owner == owner && r.Status == status {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (j *fakeJournal) MarkSubmitted(_ context.Context, id, txHash string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.records[id].Status = models.UploadStatusSubmitted
	j.records[id].TxHash = &txHash
	return nil
}

func (j *fakeJournal) MarkFailed(_ context.Context, id, cause string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.records[id].LastError = &cause
	j.records[id].UpdatedAt = time.Now()
	return nil
}

type uploadFixture struct {
	svc     *UploadService
	storage *fakeStorage
	journal *fakeJournal
	ledger  *ledgerFixture
}

func newUploadFixture(t *testing.T, binding ledger.Binding) *uploadFixture {
	lf := newLedgerFixture(binding)
	storage := &fakeStorage{t: t, hash: testCID(t, "encrypted")}
	journal := newFakeJournal()
	svc := NewUploadService(UploadServiceParams{
		Storage: storage,
		Ledger:  lf.svc,
		Journal: journal,
		Config:  UploadConfig{MaxFileSize: 16},
	})
	return &uploadFixture{svc: svc, storage: storage, journal: journal, ledger: lf}
}

func TestUploadReturnsContentReference(t *testing.T) {
	f := newUploadFixture(t, ledger.NewMemory(testStake))
	owner := wallettest.NewSigner()
	var seen []float64

	result, err := f.svc.Upload(context.Background(), sessionFor(owner), lighthouse.File{Name: "passport.PDF", Content: []byte("scan")}, func(p float64) {
		seen = append(seen, p)
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, f.storage.hash, result.CID)
	assert.Equal(t, "passport.PDF", result.DisplayName)
	assert.Equal(t, int64(4), result.ByteSize)
	assert.Equal(t, "https://gw.test/ipfs/"+f.storage.hash, result.GatewayURL)
	assert.Equal(t, []float64{0.5, 1}, seen)
	assert.Len(t, f.storage.signatures, 1)

	record, err := f.journal.GetByID(context.Background(), result.ID)
	require.NoError(t, err)
	assert.Equal(t, models.UploadStatusUploaded, record.Status)
	assert.NotEmpty(t, record.Fingerprint)
	assert.Equal(t, owner.Address().Hex(), record.Owner)
}

func TestUploadPrefersServiceReportedMetadata(t *testing.T) {
	f := newUploadFixture(t, ledger.NewMemory(testStake))
	owner := wallettest.NewSigner()

	f.storage.reported = &lighthouse.Uploaded{Name: "passport.pdf.enc", Size: 44}
	result, err := f.svc.Upload(context.Background(), sessionFor(owner), lighthouse.File{Name: "passport.pdf", Content: []byte("scan")}, nil)
	require.NoError(t, err)
	assert.Equal(t, "passport.pdf.enc", result.DisplayName)
	assert.Equal(t, int64(44), result.ByteSize)

	f.storage.reported = &lighthouse.Uploaded{}
	result, err = f.svc.Upload(context.Background(), sessionFor(owner), lighthouse.File{Name: "licence.png", Content: []byte("front")}, nil)
	require.NoError(t, err)
	assert.Equal(t, "licence.png", result.DisplayName, "falls back to the local name")
	assert.Equal(t, int64(5), result.ByteSize, "falls back to the local size")
}

func TestUploadFailuresCollapseIntoResult(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*uploadFixture, *models.Session)
		file    lighthouse.File
		wantErr *appErrors.Error
	}{
		{
			name:    "unsupported type",
			file:    lighthouse.File{Name: "notes.txt", Content: []byte("x")},
			wantErr: appErrors.ErrValidation,
		},
		{
			name:    "too large",
			file:    lighthouse.File{Name: "id.png", Content: make([]byte, 17)},
			wantErr: appErrors.ErrValidation,
		},
		{
			name:    "missing api key",
			mutate:  func(f *uploadFixture, _ *models.Session) { f.storage.noKey = true },
			file:    lighthouse.File{Name: "id.png", Content: []byte("x")},
			wantErr: appErrors.ErrConfiguration,
		},
		{
			name:    "read only session",
			mutate:  func(_ *uploadFixture, s *models.Session) { s.Signer = nil },
			file:    lighthouse.File{Name: "id.png", Content: []byte("x")},
			wantErr: appErrors.ErrAuthentication,
		},
		{
			name: "wallet declines",
			mutate: func(_ *uploadFixture, s *models.Session) {
				s.Signer.(*wallettest.Signer).Reject = true
			},
			file:    lighthouse.File{Name: "id.png", Content: []byte("x")},
			wantErr: appErrors.ErrAuthentication,
		},
		{
			name: "token refused",
			mutate: func(f *uploadFixture, _ *models.Session) {
				f.storage.tokenErr = appErrors.Clone(appErrors.ErrAuthentication, "failed to get access token")
			},
			file:    lighthouse.File{Name: "id.png", Content: []byte("x")},
			wantErr: appErrors.ErrAuthentication,
		},
		{
			name: "network drop",
			mutate: func(f *uploadFixture, _ *models.Session) {
				f.storage.uploadErr = appErrors.WrapAs(errors.New("connection reset"), appErrors.ErrTransport, "")
			},
			file:    lighthouse.File{Name: "id.png", Content: []byte("x")},
			wantErr: appErrors.ErrTransport,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newUploadFixture(t, ledger.NewMemory(testStake))
			session := sessionFor(wallettest.NewSigner())
			if tc.mutate != nil {
				tc.mutate(f, session)
			}
			var last float64
			result, err := f.svc.Upload(context.Background(), session, tc.file, func(p float64) { last = p })
			assert.ErrorIs(t, err, tc.wantErr)
			require.NotNil(t, result)
			assert.False(t, result.Success)
			assert.NotEmpty(t, result.Error)
			assert.Less(t, last, 1.0)
			assert.Empty(t, f.journal.records)
		})
	}
}

func TestUploadAndSubmitRecordsOnLedger(t *testing.T) {
	ctx := context.Background()
	f := newUploadFixture(t, ledger.NewMemory(testStake))
	owner := wallettest.NewSigner()

	result, receipt, err := f.svc.UploadAndSubmit(ctx, sessionFor(owner), lighthouse.File{Name: "id.jpg", Content: []byte("scan")}, nil)
	require.NoError(t, err)
	require.NotNil(t, receipt)

	docs, _, err := f.ledger.svc.DocumentsFor(ctx, owner.Address())
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, result.CID, docs[0].CID)

	record, err := f.journal.GetByID(ctx, result.ID)
	require.NoError(t, err)
	assert.Equal(t, models.UploadStatusSubmitted, record.Status)
	assert.Equal(t, receipt.TxHash.Hex(), *record.TxHash)

	pending, err := f.svc.ListUnsubmitted(ctx, sessionFor(owner))
	require.NoError(t, err)
	assert.Empty(t, pending)
}

type failingSubmit struct{ ledger.Binding }

func (failingSubmit) SubmitDocument(context.Context, ledger.TxOpts, string) (*ledger.Receipt, error) {
	return nil, appErrors.WrapAs(errors.New("dial tcp: i/o timeout"), appErrors.ErrTransport, "ledger unreachable")
}

func TestFailedSubmissionIsResubmittable(t *testing.T) {
	ctx := context.Background()
	memory := ledger.NewMemory(testStake)
	broken := newUploadFixture(t, failingSubmit{Binding: memory})
	owner := wallettest.NewSigner()

	result, receipt, err := broken.svc.UploadAndSubmit(ctx, sessionFor(owner), lighthouse.File{Name: "id.jpg", Content: []byte("scan")}, nil)
	assert.ErrorIs(t, err, appErrors.ErrTransport)
	assert.Nil(t, receipt)
	assert.True(t, result.Success, "the upload itself succeeded")

	pending, err := broken.svc.ListUnsubmitted(ctx, sessionFor(owner))
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.NotNil(t, pending[0].LastError)

	healed := newLedgerFixture(memory)
	broken.svc.ledger = healed.svc

	_, err = broken.svc.ResubmitUpload(ctx, sessionFor(wallettest.NewSigner()), result.ID)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	receipt, err = broken.svc.ResubmitUpload(ctx, sessionFor(owner), result.ID)
	require.NoError(t, err)
	require.NotNil(t, receipt)

	_, err = broken.svc.ResubmitUpload(ctx, sessionFor(owner), result.ID)
	assert.ErrorIs(t, err, appErrors.ErrConflict)
}
