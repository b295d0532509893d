package usecase

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/user/proxyservice/internal/entity"
	"github.com/user/proxyservice/internal/repository"
	"github.com/user/proxyservice/pkg/metrics"
)

var ErrFeedbackDisabled = errors.New("block feedback store is not configured")

const (
	defaultCounterTTL = 24 * time.Hour
	maxRecentEvents   = 500
)

// FeedbackRecorder keeps a record of blocked proxies outside the in-memory pools.
// Writes are best effort: failures are logged and counted, never returned.
type FeedbackRecorder interface {
	Record(ctx context.Context, event *entity.BlockEvent)
	BlockCounts(ctx context.Context, targetID string) (map[int64]int64, error)
	RecentEvents(ctx context.Context, targetID string, limit int) ([]*entity.BlockEvent, error)
}

type feedbackUseCase struct {
	counters   repository.BlockCounterRepository
	events     repository.BlockEventRepository
	counterTTL time.Duration
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

// NewFeedbackRecorder creates a FeedbackRecorder. Either repository may be nil to disable that store.
func NewFeedbackRecorder(
	counters repository.BlockCounterRepository,
	events repository.BlockEventRepository,
	counterTTL time.Duration,
	logger *zap.Logger,
	m *metrics.Metrics,
) FeedbackRecorder {
	if counterTTL <= 0 {
		counterTTL = defaultCounterTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.NewNop()
	}
	return &feedbackUseCase{
		counters:   counters,
		events:     events,
		counterTTL: counterTTL,
		logger:     logger,
		metrics:    m,
	}
}

func (uc *feedbackUseCase) Record(ctx context.Context, event *entity.BlockEvent) {
	log := uc.logger.With(
		zap.String("target", event.TargetID),
		zap.Int64("proxy_id", event.ProxyID),
		zap.String("reason", string(event.Reason)),
	)

	if uc.counters != nil {
		n, err := uc.counters.Increment(ctx, event.TargetID, event.ProxyID, uc.counterTTL)
		if err != nil {
			uc.metrics.FeedbackErrorsTotal.WithLabelValues("redis").Inc()
			log.Warn("Failed to increment block counter", zap.Error(err))
		} else {
			log.Debug("Block counter incremented", zap.Int64("count", n))
		}
	}

	if uc.events != nil {
		if err := uc.events.Save(ctx, event); err != nil {
			uc.metrics.FeedbackErrorsTotal.WithLabelValues("postgres").Inc()
			log.Warn("Failed to save block event", zap.Error(err))
		}
	}
}

func (uc *feedbackUseCase) BlockCounts(ctx context.Context, targetID string) (map[int64]int64, error) {
	if uc.counters == nil {
		return nil, ErrFeedbackDisabled
	}
	return uc.counters.Counts(ctx, targetID)
}

func (uc *feedbackUseCase) RecentEvents(ctx context.Context, targetID string, limit int) ([]*entity.BlockEvent, error) {
	if uc.events == nil {
		return nil, ErrFeedbackDisabled
	}
	if limit <= 0 || limit > maxRecentEvents {
		limit = maxRecentEvents
	}
	return uc.events.FindRecent(ctx, targetID, limit)
}
