package integration

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/syncbridge/backend/internal/domain/integration"
	"go.uber.org/zap"
)

const (
	// DefaultMetricsWindowHours is the metrics window when none is given
	DefaultMetricsWindowHours = 24
	// DefaultAnalyticsCacheTTL is how long aggregates are served from cache
	DefaultAnalyticsCacheTTL = 5 * time.Minute
	// DefaultStaleInProgressAfter marks in-progress records as stuck
	DefaultStaleInProgressAfter = 15 * time.Minute
	// DefaultTopErrorsLimit caps the top error list
	DefaultTopErrorsLimit = 10

	analyticsCachePrefix = "sync:analytics:"
)

// AggregateCache stores computed aggregates for a TTL
type AggregateCache interface {
	// Get loads key into dest; returns false on a miss
	Get(ctx context.Context, key string, dest any) (bool, error)
	// Set stores value under key
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	// DeletePrefix removes every key starting with prefix
	DeletePrefix(ctx context.Context, prefix string) error
}

// AnalyticsConfig tunes the analytics service
type AnalyticsConfig struct {
	CacheTTL             time.Duration
	StaleInProgressAfter time.Duration
	// Health thresholds
	BacklogWarning  int64
	BacklogCritical int64
}

// DefaultAnalyticsConfig returns the default analytics configuration
func DefaultAnalyticsConfig() AnalyticsConfig {
	return AnalyticsConfig{
		CacheTTL:             DefaultAnalyticsCacheTTL,
		StaleInProgressAfter: DefaultStaleInProgressAfter,
		BacklogWarning:       1000,
		BacklogCritical:      10000,
	}
}

// AnalyticsFilter scopes an analytics query
type AnalyticsFilter struct {
	TenantID         *uuid.UUID
	ConnectionPairID *uuid.UUID
	Hours            int
}

func (f AnalyticsFilter) window() int {
	if f.Hours <= 0 {
		return DefaultMetricsWindowHours
	}
	return f.Hours
}

func (f AnalyticsFilter) recordFilter() integration.SyncRecordFilter {
	return integration.SyncRecordFilter{TenantID: f.TenantID, ConnectionPairID: f.ConnectionPairID}
}

func (f AnalyticsFilter) cacheKey(kind string) string {
	key := analyticsCachePrefix + kind
	if f.TenantID != nil {
		key += ":t=" + f.TenantID.String()
	}
	if f.ConnectionPairID != nil {
		key += ":p=" + f.ConnectionPairID.String()
	}
	return fmt.Sprintf("%s:h=%d", key, f.window())
}

// SyncMetrics is the dashboard summary of sync activity
type SyncMetrics struct {
	TotalRecords        int64            `json:"total_records"`
	Successful          int64            `json:"successful"`
	Failed              int64            `json:"failed"`
	Pending             int64            `json:"pending"`
	InProgress          int64            `json:"in_progress"`
	WindowHours         int              `json:"window_hours"`
	AttemptsInWindow    int64            `json:"attempts_in_window"`
	SyncRatePerHour     float64          `json:"sync_rate_per_hour"`
	ErrorRatePercent    float64          `json:"error_rate_percent"`
	AvgSyncDurationMs   float64          `json:"avg_sync_duration_ms"`
	StatusDistribution  map[string]int64 `json:"status_distribution"`
	CatalogDistribution map[string]int64 `json:"catalog_distribution"`
	LastSuccessfulSync  *time.Time       `json:"last_successful_sync,omitempty"`
	GeneratedAt         time.Time        `json:"generated_at"`
}

// PairPerformance is the dashboard view of one connection pair
type PairPerformance struct {
	integration.ConnectionPairStats
	SuccessRatePercent float64 `json:"success_rate_percent"`
}

// QueueHealth describes the sync backlog
type QueueHealth struct {
	Status              string  `json:"status"`
	Pending             int64   `json:"pending"`
	InProgress          int64   `json:"in_progress"`
	StaleInProgress     int64   `json:"stale_in_progress"`
	Failed              int64   `json:"failed"`
	QueueDepth          int64   `json:"queue_depth"`
	OldestPendingAgeSec float64 `json:"oldest_pending_age_seconds"`
}

// Queue health labels
const (
	QueueHealthy  = "healthy"
	QueueDegraded = "degraded"
	QueueCritical = "critical"
)

// SyncAnalyticsService aggregates sync records and sync logs for the
// dashboard. It never mutates data; results are cached for a short TTL.
type SyncAnalyticsService struct {
	records integration.SyncRecordFinder
	logs    integration.SyncLogRepository
	queue   integration.JobQueue
	cache   AggregateCache
	config  AnalyticsConfig
	now     func() time.Time
	logger  *zap.Logger
}

// NewSyncAnalyticsService creates a new SyncAnalyticsService. cache and queue may be nil.
func NewSyncAnalyticsService(
	records integration.SyncRecordFinder,
	logs integration.SyncLogRepository,
	queue integration.JobQueue,
	cache AggregateCache,
	config AnalyticsConfig,
	logger *zap.Logger,
) *SyncAnalyticsService {
	if config.CacheTTL <= 0 {
		config.CacheTTL = DefaultAnalyticsCacheTTL
	}
	if config.StaleInProgressAfter <= 0 {
		config.StaleInProgressAfter = DefaultStaleInProgressAfter
	}
	return &SyncAnalyticsService{
		records: records,
		logs:    logs,
		queue:   queue,
		cache:   cache,
		config:  config,
		now:     time.Now,
		logger:  logger,
	}
}

// WithClock replaces the time source
func (s *SyncAnalyticsService) WithClock(now func() time.Time) *SyncAnalyticsService {
	s.now = now
	return s
}

// GetMetrics returns counts, rates and distributions for the filter window
func (s *SyncAnalyticsService) GetMetrics(ctx context.Context, filter AnalyticsFilter) (*SyncMetrics, error) {
	var cached SyncMetrics
	if s.cacheGet(ctx, filter.cacheKey("metrics"), &cached) {
		return &cached, nil
	}

	stats, err := s.records.GetStatistics(ctx, filter.recordFilter())
	if err != nil {
		return nil, fmt.Errorf("get sync statistics: %w", err)
	}
	catalog, err := s.records.CountByCatalogStatus(ctx, filter.recordFilter())
	if err != nil {
		return nil, fmt.Errorf("count catalog statuses: %w", err)
	}

	now := s.now()
	hours := filter.window()
	metrics := &SyncMetrics{
		TotalRecords:        stats.Total,
		Successful:          stats.Count(integration.SyncStatusSynced),
		Failed:              stats.Count(integration.SyncStatusFailed),
		Pending:             stats.Count(integration.SyncStatusPending),
		InProgress:          stats.Count(integration.SyncStatusInProgress),
		WindowHours:         hours,
		StatusDistribution:  make(map[string]int64, len(stats.Counts)),
		CatalogDistribution: make(map[string]int64, len(catalog)),
		LastSuccessfulSync:  stats.LastSuccessfulSync,
		GeneratedAt:         now,
	}
	for _, status := range integration.AllSyncStatuses() {
		metrics.StatusDistribution[status.String()] = stats.Count(status)
	}
	for status, n := range catalog {
		metrics.CatalogDistribution[status.String()] = n
	}

	if s.logs != nil {
		summary, err := s.logs.Summarize(ctx, integration.SyncLogFilter{
			TenantID:         filter.TenantID,
			ConnectionPairID: filter.ConnectionPairID,
			From:             now.Add(-time.Duration(hours) * time.Hour),
			To:               now,
		})
		if err != nil {
			return nil, fmt.Errorf("summarize sync logs: %w", err)
		}
		metrics.AttemptsInWindow = summary.Total
		metrics.SyncRatePerHour = float64(summary.Succeeded) / float64(hours)
		if attempted := summary.Succeeded + summary.Failed; attempted > 0 {
			metrics.ErrorRatePercent = float64(summary.Failed) / float64(attempted) * 100
		}
		metrics.AvgSyncDurationMs = summary.AvgDurationMs
	}

	s.cacheSet(ctx, filter.cacheKey("metrics"), metrics)
	return metrics, nil
}

// GetTopErrors returns the most frequent error messages of failed records
func (s *SyncAnalyticsService) GetTopErrors(ctx context.Context, filter AnalyticsFilter, limit int) ([]integration.ErrorCount, error) {
	if limit <= 0 {
		limit = DefaultTopErrorsLimit
	}
	key := fmt.Sprintf("%s:n=%d", filter.cacheKey("errors"), limit)
	var cached []integration.ErrorCount
	if s.cacheGet(ctx, key, &cached) {
		return cached, nil
	}

	errs, err := s.records.TopErrors(ctx, filter.recordFilter(), limit)
	if err != nil {
		return nil, fmt.Errorf("get top errors: %w", err)
	}
	s.cacheSet(ctx, key, errs)
	return errs, nil
}

// GetConnectionPairPerformance returns per-pair counts and success rate
func (s *SyncAnalyticsService) GetConnectionPairPerformance(ctx context.Context, filter AnalyticsFilter) ([]PairPerformance, error) {
	var cached []PairPerformance
	if s.cacheGet(ctx, filter.cacheKey("pairs"), &cached) {
		return cached, nil
	}

	stats, err := s.records.PairPerformance(ctx, filter.recordFilter())
	if err != nil {
		return nil, fmt.Errorf("get connection pair performance: %w", err)
	}
	result := make([]PairPerformance, len(stats))
	for i, st := range stats {
		result[i] = PairPerformance{ConnectionPairStats: st, SuccessRatePercent: st.SuccessRate()}
	}
	s.cacheSet(ctx, filter.cacheKey("pairs"), result)
	return result, nil
}

// GetQueueHealth reports the backlog and labels it healthy, degraded or critical.
// Not cached.
func (s *SyncAnalyticsService) GetQueueHealth(ctx context.Context, filter AnalyticsFilter) (*QueueHealth, error) {
	stats, err := s.records.GetStatistics(ctx, filter.recordFilter())
	if err != nil {
		return nil, fmt.Errorf("get sync statistics: %w", err)
	}

	now := s.now()
	health := &QueueHealth{
		Pending:    stats.Count(integration.SyncStatusPending),
		InProgress: stats.Count(integration.SyncStatusInProgress),
		Failed:     stats.Count(integration.SyncStatusFailed),
	}
	if stats.OldestPendingAttempt != nil {
		health.OldestPendingAgeSec = now.Sub(*stats.OldestPendingAttempt).Seconds()
	}

	if health.InProgress > 0 {
		stale, err := s.records.FindStaleInProgress(ctx, now.Add(-s.config.StaleInProgressAfter), int(health.InProgress))
		if err != nil {
			return nil, fmt.Errorf("find stale in-progress records: %w", err)
		}
		health.StaleInProgress = int64(len(stale))
	}

	if s.queue != nil {
		depth, err := s.queue.Depth(ctx)
		if err != nil {
			s.logger.Warn("failed to read job queue depth", zap.Error(err))
		} else {
			health.QueueDepth = depth
		}
	}

	health.Status = s.classify(health)
	return health, nil
}

func (s *SyncAnalyticsService) classify(h *QueueHealth) string {
	switch {
	case s.config.BacklogCritical > 0 && h.Pending >= s.config.BacklogCritical:
		return QueueCritical
	case h.StaleInProgress > 0:
		return QueueDegraded
	case s.config.BacklogWarning > 0 && h.Pending >= s.config.BacklogWarning:
		return QueueDegraded
	default:
		return QueueHealthy
	}
}

// InvalidateCache drops every cached aggregate. Called after dashboard mutations.
func (s *SyncAnalyticsService) InvalidateCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeletePrefix(ctx, analyticsCachePrefix); err != nil {
		s.logger.Warn("failed to invalidate analytics cache", zap.Error(err))
	}
}

func (s *SyncAnalyticsService) cacheGet(ctx context.Context, key string, dest any) bool {
	if s.cache == nil {
		return false
	}
	hit, err := s.cache.Get(ctx, key, dest)
	if err != nil {
		s.logger.Warn("analytics cache read failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return hit
}

func (s *SyncAnalyticsService) cacheSet(ctx context.Context, key string, value any) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, value, s.config.CacheTTL); err != nil {
		s.logger.Warn("analytics cache write failed", zap.String("key", key), zap.Error(err))
	}
}
