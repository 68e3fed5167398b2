package service

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/kyc-attestation-api/pkg/errors"
)

// CacheRepository abstracts persistence for cached view models.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
	// Generation returns the invalidation epoch shared by every instance.
	Generation(ctx context.Context) (int64, error)
	// AdvanceGeneration bumps the epoch and returns the new value.
	AdvanceGeneration(ctx context.Context) (int64, error)
}

// Cache keys for derived views.
const (
	cacheKeyStatistics     = "view:statistics"
	cachePatternPending    = "view:pending:*"
	cachePatternDashboards = "view:dashboard:*"
	cachePatternViews      = "view:*"
)

func documentsCacheKey(owner common.Address) string {
	return "view:documents:" + strings.ToLower(owner.Hex())
}

func pendingCacheKey(caller common.Address) string {
	return "view:pending:" + strings.ToLower(caller.Hex())
}

func attesterCacheKey(address common.Address) string {
	return "view:attester:" + strings.ToLower(address.Hex())
}

func dashboardCacheKey(address common.Address) string {
	return "view:dashboard:" + strings.ToLower(address.Hex())
}

// CacheService orchestrates cache operations and related metrics.
type CacheService struct {
	repo       CacheRepository
	metrics    *MetricsService
	defaultTTL time.Duration
	logger     *zap.Logger
	enabled    bool
	// set after a failed invalidation; reads bypass the cache until a
	// full flush succeeds
	suspect atomic.Bool
}

// NewCacheService constructs a cache service.
func NewCacheService(repo CacheRepository, metrics *MetricsService, defaultTTL time.Duration, logger *zap.Logger, enabled bool) *CacheService {
	if defaultTTL <= 0 {
		defaultTTL = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{repo: repo, metrics: metrics, defaultTTL: defaultTTL, logger: logger, enabled: enabled}
}

// Enabled indicates whether caching is active.
func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled && s.repo != nil
}

// Get attempts to retrieve a cached entry. It returns true when the cache was hit.
func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !s.Enabled() || s.suspect.Load() {
		return false, nil
	}
	start := time.Now()
	err := s.repo.Get(ctx, key, dest)
	s.metrics.RecordCacheOperation(err == nil, time.Since(start))
	if err != nil {
		if errors.Is(err, appErrors.ErrCacheMiss) {
			return false, nil
		}
		s.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		return false, err
	}
	return true, nil
}

// Set stores the value in cache.
func (s *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !s.Enabled() {
		return nil
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	start := time.Now()
	err := s.repo.Set(ctx, key, value, ttl)
	s.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		s.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
	return err
}

// remember serves key from cache or loads, stores and returns a fresh value.
// Cache failures degrade to a direct load. A value loaded across an
// invalidation is returned but never stored.
func remember[T any](ctx context.Context, cache *CacheService, key string, load func() (T, error)) (T, bool, error) {
	var cached T
	if hit, err := cache.Get(ctx, key, &cached); err == nil && hit {
		return cached, true, nil
	}
	gen, genErr := cache.Generation(ctx)
	value, err := load()
	if err != nil {
		var zero T
		return zero, false, err
	}
	if genErr == nil {
		cache.SetAt(ctx, gen, key, value, 0)
	}
	return value, false, nil
}

// Generation returns the current invalidation epoch. Callers read it before
// loading a value and hand it to SetAt.
func (s *CacheService) Generation(ctx context.Context) (int64, error) {
	if !s.Enabled() {
		return 0, nil
	}
	gen, err := s.repo.Generation(ctx)
	if err != nil {
		s.logger.Warn("cache generation read failed", zap.Error(err))
	}
	return gen, err
}

// SetAt writes value only while the epoch still equals gen. An
// invalidation racing the write is detected afterwards and the entry is
// removed again.
func (s *CacheService) SetAt(ctx context.Context, gen int64, key string, value interface{}, ttl time.Duration) {
	if !s.Enabled() || s.suspect.Load() {
		return
	}
	if current, err := s.repo.Generation(ctx); err != nil || current != gen {
		s.logger.Debug("discarding view loaded across an invalidation", zap.String("key", key))
		return
	}
	if err := s.Set(ctx, key, value, ttl); err != nil {
		return
	}
	if current, err := s.repo.Generation(ctx); err != nil || current != gen {
		if err := s.repo.DeleteByPattern(ctx, key); err != nil {
			s.logger.Warn("cache evict failed", zap.String("key", key), zap.Error(err))
			s.suspect.Store(true)
		}
	}
}

// Invalidate advances the cache generation and removes cached values for
// the provided patterns. After any failure the cache is bypassed until a
// later call flushes every view.
func (s *CacheService) Invalidate(ctx context.Context, patterns ...string) error {
	if !s.Enabled() {
		return nil
	}
	var errs []error
	if _, err := s.repo.AdvanceGeneration(ctx); err != nil {
		s.logger.Warn("cache generation advance failed", zap.Error(err))
		errs = append(errs, err)
	}
	if s.suspect.Load() {
		patterns = []string{cachePatternViews}
	}
	for _, pattern := range patterns {
		if err := s.repo.DeleteByPattern(ctx, pattern); err != nil {
			s.logger.Warn("cache invalidate failed", zap.String("pattern", pattern), zap.Error(err))
			errs = append(errs, err)
		}
	}
	s.suspect.Store(len(errs) > 0)
	return errors.Join(errs...)
}
