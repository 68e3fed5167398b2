package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/kyc-attestation-api/internal/ledger"
	"github.com/noah-isme/kyc-attestation-api/pkg/jobs"
)

const refreshJobType = "view_refresh"

type viewRefresher interface {
	Refresh(ctx context.Context, owners ...common.Address) error
}

// RefreshConfig tunes the ledger watcher and its refresh queue.
type RefreshConfig struct {
	PollInterval time.Duration
	// StartBlock is the first block watched; zero starts after the chain
	// head seen at Start.
	StartBlock uint64
	Workers    int
	MaxRetries int
	RetryDelay time.Duration
}

// RefreshServiceParams groups constructor dependencies.
type RefreshServiceParams struct {
	Events  ledger.EventSource
	Views   viewRefresher
	Metrics *MetricsService
	Logger  *zap.Logger
	Config  RefreshConfig
}

// RefreshService watches ledger events and re-derives the views they touch,
// so that mutations made by other clients reach the cache too.
type RefreshService struct {
	events  ledger.EventSource
	views   viewRefresher
	metrics *MetricsService
	logger  *zap.Logger
	cfg     RefreshConfig
	queue   *jobs.Queue

	mu     sync.Mutex
	cursor uint64
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRefreshService constructs a RefreshService.
func NewRefreshService(params RefreshServiceParams) *RefreshService {
	cfg := params.Config
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &RefreshService{
		events:  params.Events,
		views:   params.Views,
		metrics: params.Metrics,
		logger:  logger,
		cfg:     cfg,
		cursor:  cfg.StartBlock,
	}
	s.queue = jobs.NewQueue("view-refresh", s.handle, jobs.QueueConfig{
		Workers:    cfg.Workers,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
		OnExhausted: func(job jobs.Job, err error) {
			subject, _ := job.Payload.(common.Address)
			logger.Error("view refresh abandoned", zap.String("subject", subject.Hex()), zap.Int("attempts", job.Attempt), zap.Error(err))
		},
	})
	return s
}

// Start launches the refresh workers and the polling loop.
func (s *RefreshService) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	if s.cfg.StartBlock == 0 {
		head, err := s.events.Head(ctx)
		if err != nil {
			s.logger.Warn("ledger head unavailable; watching from block zero", zap.Error(err))
		} else if head+1 > s.cursor {
			s.cursor = head + 1
		}
	}
	s.queue.Start(ctx)
	watchCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.watch(watchCtx, s.done)
	s.logger.Info("ledger watcher started", zap.Uint64("from_block", s.cursor), zap.Duration("interval", s.cfg.PollInterval))
}

// Stop halts polling and drains the workers.
func (s *RefreshService) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.queue.Stop()
}

func (s *RefreshService) watch(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	for {
		if _, err := s.Poll(ctx); err != nil && ctx.Err() == nil {
			s.logger.Warn("ledger event poll failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Poll reads events past the cursor once and enqueues a refresh per affected
// account. It returns the number of events seen.
func (s *RefreshService) Poll(ctx context.Context) (int, error) {
	s.mu.Lock()
	from := s.cursor
	s.mu.Unlock()

	events, next, err := s.events.Events(ctx, from)
	for _, evt := range events {
		s.metrics.RecordLedgerEvent(evt.Name)
		s.enqueue(evt)
	}

	s.mu.Lock()
	if next > s.cursor {
		s.cursor = next
	}
	s.mu.Unlock()
	return len(events), err
}

// Cursor returns the next block the watcher will read.
func (s *RefreshService) Cursor() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

func (s *RefreshService) enqueue(evt ledger.Event) {
	job := jobs.Job{
		ID:      uuid.NewString(),
		Key:     "owner:" + strings.ToLower(evt.Subject.Hex()),
		Type:    refreshJobType,
		Payload: evt.Subject,
	}
	if err := s.queue.Enqueue(job); err != nil {
		s.logger.Warn("failed to enqueue view refresh", zap.String("event", evt.Name), zap.String("subject", evt.Subject.Hex()), zap.Error(err))
	}
}

func (s *RefreshService) handle(ctx context.Context, job jobs.Job) error {
	subject, _ := job.Payload.(common.Address)
	err := s.views.Refresh(ctx, subject)
	s.metrics.RecordRefreshJob(err)
	return err
}
