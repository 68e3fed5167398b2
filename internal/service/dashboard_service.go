package service

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/noah-isme/kyc-attestation-api/internal/dto"
	"github.com/noah-isme/kyc-attestation-api/internal/models"
	appErrors "github.com/noah-isme/kyc-attestation-api/pkg/errors"
)

type ledgerReader interface {
	DocumentsFor(ctx context.Context, owner common.Address) ([]models.Document, bool, error)
	PendingQueue(ctx context.Context, session *models.Session) ([]models.PendingEntry, bool, error)
	IsAttester(ctx context.Context, address common.Address) (bool, error)
	Statistics(ctx context.Context) (*models.Statistics, bool, error)
}

// DashboardServiceConfig tunes dashboard behaviour.
type DashboardServiceConfig struct {
	CacheTTL time.Duration
}

// DashboardServiceParams groups constructor dependencies.
type DashboardServiceParams struct {
	Ledger  ledgerReader
	Gateway func(cid string) string
	Cache   *CacheService
	Logger  *zap.Logger
	Config  DashboardServiceConfig
}

// DashboardService composes the connected account's dashboard.
type DashboardService struct {
	ledger  ledgerReader
	gateway func(string) string
	cache   *CacheService
	logger  *zap.Logger
	now     func() time.Time
	cfg     DashboardServiceConfig
}

// NewDashboardService constructs a DashboardService with sane defaults.
func NewDashboardService(params DashboardServiceParams) *DashboardService {
	cfg := params.Config
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 30 * time.Second
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardService{
		ledger:  params.Ledger,
		gateway: params.Gateway,
		cache:   params.Cache,
		logger:  logger,
		now:     time.Now,
		cfg:     cfg,
	}
}

// Summary returns the dashboard for session and indicates cache utilisation.
func (s *DashboardService) Summary(ctx context.Context, session *models.Session) (*dto.DashboardResponse, bool, error) {
	if session == nil {
		return nil, false, appErrors.ErrUnauthorized
	}
	cacheKey := dashboardCacheKey(session.Address)
	if summary, hit, err := s.tryCache(ctx, cacheKey); err != nil {
		return nil, false, err
	} else if hit {
		return summary, true, nil
	}

	gen, genErr := s.cache.Generation(ctx)
	summary, err := s.compose(ctx, session)
	if err != nil {
		return nil, false, err
	}
	if genErr == nil {
		s.persistCache(ctx, gen, cacheKey, summary)
	}
	return summary, false, nil
}

func (s *DashboardService) compose(ctx context.Context, session *models.Session) (*dto.DashboardResponse, error) {
	stats, _, err := s.ledger.Statistics(ctx)
	if err != nil {
		return nil, err
	}
	docs, _, err := s.ledger.DocumentsFor(ctx, session.Address)
	if err != nil {
		return nil, err
	}
	isAttester, err := s.ledger.IsAttester(ctx, session.Address)
	if err != nil {
		return nil, err
	}

	pendingCount := 0
	if isAttester {
		pending, _, err := s.ledger.PendingQueue(ctx, session)
		if err != nil {
			return nil, err
		}
		pendingCount = len(pending)
	}

	return &dto.DashboardResponse{
		Address:      session.Address.Hex(),
		Statistics:   dto.NewStatisticsResponse(stats),
		Documents:    dto.NewDocumentResponses(docs, s.gateway),
		IsAttester:   isAttester,
		PendingCount: pendingCount,
		GeneratedAt:  s.now().UTC(),
	}, nil
}

func (s *DashboardService) tryCache(ctx context.Context, key string) (*dto.DashboardResponse, bool, error) {
	if s.cache == nil {
		return nil, false, nil
	}
	var cached dto.DashboardResponse
	hit, err := s.cache.Get(ctx, key, &cached)
	if err != nil {
		s.logger.Warn("dashboard cache read failed", zap.String("key", key), zap.Error(err))
		return nil, false, nil
	}
	if hit {
		return &cached, true, nil
	}
	return nil, false, nil
}

func (s *DashboardService) persistCache(ctx context.Context, gen int64, key string, value interface{}) {
	if s.cache == nil {
		return
	}
	s.cache.SetAt(ctx, gen, key, value, s.cfg.CacheTTL)
}
