package service

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"github.com/multiformats/go-multihash"
	"go.uber.org/zap"

	"github.com/noah-isme/kyc-attestation-api/internal/ledger"
	"github.com/noah-isme/kyc-attestation-api/internal/models"
	appErrors "github.com/noah-isme/kyc-attestation-api/pkg/errors"
	"github.com/noah-isme/kyc-attestation-api/pkg/lighthouse"
	"github.com/noah-isme/kyc-attestation-api/pkg/logger"
	"github.com/noah-isme/kyc-attestation-api/pkg/wallet"
)

type storageClient interface {
	Configured() bool
	GatewayURL(hash string) string
	AuthMessage(ctx context.Context, address string) (string, error)
	AccessToken(ctx context.Context, address, signature string) (string, error)
	UploadEncrypted(ctx context.Context, file lighthouse.File, address, token string, progress lighthouse.ProgressFunc) (*lighthouse.Uploaded, error)
}

type uploadJournal interface {
	Create(ctx context.Context, record *models.UploadRecord) error
	GetByID(ctx context.Context, id string) (*models.UploadRecord, error)
	ListByOwner(ctx context.Context, owner string, status models.UploadStatus) ([]models.UploadRecord, error)
	MarkSubmitted(ctx context.Context, id, txHash string) error
	MarkFailed(ctx context.Context, id, cause string) error
}

type documentSubmitter interface {
	SubmitDocument(ctx context.Context, session *models.Session, rawCID string) (*ledger.Receipt, error)
}

// UploadConfig bounds accepted documents.
type UploadConfig struct {
	MaxFileSize int64
	AllowedExts []string
}

// UploadServiceParams groups constructor dependencies.
type UploadServiceParams struct {
	Storage storageClient
	Ledger  documentSubmitter
	Journal uploadJournal
	Metrics *MetricsService
	Locks   *wallet.KeyedMutex
	Logger  *zap.Logger
	Config  UploadConfig
}

// UploadService authenticates a session with the storage service and uploads
// encrypted documents, journaling the resulting content identifiers.
type UploadService struct {
	storage storageClient
	ledger  documentSubmitter
	journal uploadJournal
	metrics *MetricsService
	locks   *wallet.KeyedMutex
	logger  *zap.Logger
	config  UploadConfig
	allowed map[string]struct{}
}

// NewUploadService constructs an UploadService. Locks should be shared with the
// ledger service so that signing stays serialised per account.
func NewUploadService(params UploadServiceParams) *UploadService {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	locks := params.Locks
	if locks == nil {
		locks = wallet.NewKeyedMutex()
	}
	cfg := params.Config
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = 10 * 1024 * 1024
	}
	if len(cfg.AllowedExts) == 0 {
		cfg.AllowedExts = []string{".pdf", ".jpg", ".jpeg", ".png"}
	}
	allowed := make(map[string]struct{}, len(cfg.AllowedExts))
	for _, ext := range cfg.AllowedExts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		allowed[ext] = struct{}{}
	}
	return &UploadService{
		storage: params.Storage,
		ledger:  params.Ledger,
		journal: params.Journal,
		metrics: params.Metrics,
		locks:   locks,
		logger:  logger,
		config:  cfg,
		allowed: allowed,
	}
}

// Upload stores file for the session's account. Failures return a result with
// Success=false and a message alongside the typed error.
func (s *UploadService) Upload(ctx context.Context, session *models.Session, file lighthouse.File, progress lighthouse.ProgressFunc) (*models.UploadResult, error) {
	start := time.Now()
	result, err := s.upload(ctx, session, file, progress)
	s.metrics.ObserveUpload(err, int64(len(file.Content)), time.Since(start))
	if err != nil {
		fields := []zap.Field{zap.String("file", file.Name), zap.Error(err)}
		if session != nil {
			fields = append(fields, zap.String("owner", session.Address.Hex()))
		}
		logger.WithRequest(ctx, s.logger).Warn("document upload failed", fields...)
		return &models.UploadResult{Success: false, DisplayName: file.Name, Error: failureMessage(err)}, err
	}
	return result, nil
}

func (s *UploadService) upload(ctx context.Context, session *models.Session, file lighthouse.File, progress lighthouse.ProgressFunc) (*models.UploadResult, error) {
	if session == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validate(file); err != nil {
		return nil, err
	}
	if s.storage == nil || !s.storage.Configured() {
		return nil, appErrors.Clone(appErrors.ErrConfiguration, "LIGHTHOUSE_API_KEY is not set")
	}
	if session.Signer == nil {
		return nil, appErrors.Clone(appErrors.ErrAuthentication, "no signer available for this account")
	}

	address := session.Address.Hex()
	token, err := s.authenticate(ctx, session)
	if err != nil {
		return nil, err
	}

	uploaded, err := s.storage.UploadEncrypted(ctx, file, address, token, progress)
	if err != nil {
		return nil, err
	}

	// the service's name and size win; local values fill the gaps
	result := &models.UploadResult{
		Success:     true,
		CID:         uploaded.Hash,
		DisplayName: uploaded.Name,
		ByteSize:    uploaded.Size,
		GatewayURL:  s.storage.GatewayURL(uploaded.Hash),
	}
	if result.DisplayName == "" {
		result.DisplayName = file.Name
	}
	if result.ByteSize <= 0 {
		result.ByteSize = int64(len(file.Content))
	}
	s.record(ctx, address, result, file.Content)
	logger.WithRequest(ctx, s.logger).Info("document uploaded", zap.String("owner", address), zap.String("cid", result.CID), zap.Int64("bytes", result.ByteSize))
	return result, nil
}

// UploadAndSubmit uploads file and records its content identifier on the
// ledger. A failed submission keeps the upload result and leaves the journal
// entry resubmittable.
func (s *UploadService) UploadAndSubmit(ctx context.Context, session *models.Session, file lighthouse.File, progress lighthouse.ProgressFunc) (*models.UploadResult, *ledger.Receipt, error) {
	result, err := s.Upload(ctx, session, file, progress)
	if err != nil {
		return result, nil, err
	}
	receipt, err := s.submit(ctx, session, result.ID, result.CID)
	return result, receipt, err
}

// ResubmitUpload retries the ledger submission of a journaled upload.
func (s *UploadService) ResubmitUpload(ctx context.Context, session *models.Session, id string) (*ledger.Receipt, error) {
	if session == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if s.journal == nil {
		return nil, appErrors.Clone(appErrors.ErrConfiguration, "upload journal is not enabled")
	}
	record, err := s.journal.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(record.Owner, session.Address.Hex()) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "upload belongs to another account")
	}
	if record.Status == models.UploadStatusSubmitted {
		return nil, appErrors.Clone(appErrors.ErrConflict, "upload already submitted")
	}
	return s.submit(ctx, session, record.ID, record.CID)
}

// ListUnsubmitted returns the session's uploads that never reached the ledger.
func (s *UploadService) ListUnsubmitted(ctx context.Context, session *models.Session) ([]models.UploadRecord, error) {
	if session == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if s.journal == nil {
		return []models.UploadRecord{}, nil
	}
	records, err := s.journal.ListByOwner(ctx, session.Address.Hex(), models.UploadStatusUploaded)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list uploads")
	}
	return records, nil
}

func (s *UploadService) validate(file lighthouse.File) error {
	name := strings.TrimSpace(file.Name)
	if name == "" {
		return appErrors.Clone(appErrors.ErrValidation, "file name is required")
	}
	if _, ok := s.allowed[strings.ToLower(filepath.Ext(name))]; !ok {
		return appErrors.Clone(appErrors.ErrValidation, "unsupported file type; allowed: "+strings.Join(s.config.AllowedExts, ", "))
	}
	if len(file.Content) == 0 {
		return appErrors.Clone(appErrors.ErrValidation, "file is empty")
	}
	if int64(len(file.Content)) > s.config.MaxFileSize {
		return appErrors.Clone(appErrors.ErrValidation, "file exceeds the maximum upload size")
	}
	return nil
}

// authenticate performs the challenge, signature and token exchange. The signer
// is held only while signing.
func (s *UploadService) authenticate(ctx context.Context, session *models.Session) (string, error) {
	address := session.Address.Hex()
	message, err := s.storage.AuthMessage(ctx, address)
	if err != nil {
		return "", err
	}

	unlock, err := s.locks.Lock(ctx, session.Address)
	if err != nil {
		return "", appErrors.WrapAs(err, appErrors.ErrTransport, "signer busy")
	}
	sig, err := session.Signer.SignText(ctx, []byte(message))
	unlock()
	if err != nil {
		return "", appErrors.WrapAs(err, appErrors.ErrAuthentication, "wallet did not sign the storage challenge")
	}

	return s.storage.AccessToken(ctx, address, hexutil.Encode(sig))
}

func (s *UploadService) record(ctx context.Context, owner string, result *models.UploadResult, content []byte) {
	if s.journal == nil {
		return
	}
	fingerprint := ""
	if sum, err := multihash.Sum(content, multihash.SHA2_256, -1); err == nil {
		fingerprint = sum.B58String()
	}
	now := time.Now().UTC()
	record := &models.UploadRecord{
		ID:          uuid.NewString(),
		Owner:       owner,
		CID:         result.CID,
		DisplayName: result.DisplayName,
		ByteSize:    result.ByteSize,
		Fingerprint: fingerprint,
		GatewayURL:  result.GatewayURL,
		Status:      models.UploadStatusUploaded,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.journal.Create(ctx, record); err != nil {
		s.logger.Warn("failed to journal upload", zap.String("cid", result.CID), zap.Error(err))
		return
	}
	result.ID = record.ID
}

func (s *UploadService) submit(ctx context.Context, session *models.Session, id, cid string) (*ledger.Receipt, error) {
	if s.ledger == nil {
		return nil, appErrors.Clone(appErrors.ErrConfiguration, "ledger is not configured")
	}
	receipt, err := s.ledger.SubmitDocument(ctx, session, cid)
	if s.journal == nil || id == "" {
		return receipt, err
	}
	if err != nil {
		if markErr := s.journal.MarkFailed(ctx, id, failureMessage(err)); markErr != nil {
			s.logger.Warn("failed to mark upload failed", zap.String("id", id), zap.Error(markErr))
		}
		return nil, err
	}
	if markErr := s.journal.MarkSubmitted(ctx, id, receipt.TxHash.Hex()); markErr != nil {
		s.logger.Warn("failed to mark upload submitted", zap.String("id", id), zap.Error(markErr))
	}
	return receipt, nil
}

func failureMessage(err error) string {
	appErr := appErrors.FromError(err)
	if appErr.Message != "" {
		return appErr.Message
	}
	return err.Error()
}
