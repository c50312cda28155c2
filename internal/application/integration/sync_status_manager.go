package integration

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/syncbridge/backend/internal/domain/integration"
	"go.uber.org/zap"
)

// SyncStatusManager is the only writer of sync record status transitions and
// owns the retry-eligibility policy. It never retries on its own; callers ask
// ShouldRetryFailedSync.
type SyncStatusManager struct {
	repo   integration.SyncRecordRepository
	policy integration.RetryPolicy
	logger *zap.Logger
	now    func() time.Time
}

// NewSyncStatusManager creates a new SyncStatusManager.
// A nil policy falls back to the flat 15 minute retry window.
func NewSyncStatusManager(repo integration.SyncRecordRepository, policy integration.RetryPolicy, logger *zap.Logger) *SyncStatusManager {
	if policy == nil {
		policy = integration.NewFlatRetryPolicy(integration.DefaultRetryWindow)
	}
	return &SyncStatusManager{
		repo:   repo,
		policy: policy,
		logger: logger,
		now:    time.Now,
	}
}

// WithClock replaces the time source
func (m *SyncStatusManager) WithClock(now func() time.Time) *SyncStatusManager {
	m.now = now
	return m
}

// Now returns the manager's current time
func (m *SyncStatusManager) Now() time.Time {
	return m.now()
}

// Policy returns the retry policy in use
func (m *SyncStatusManager) Policy() integration.RetryPolicy {
	return m.policy
}

// MarkPending re-queues the record. Idempotent.
func (m *SyncStatusManager) MarkPending(ctx context.Context, record *integration.SyncRecord, reason string) error {
	return m.transition(ctx, record, reason, func(now time.Time) { record.MarkPending(now) })
}

// MarkInProgress marks the record in progress without checking its current
// status. The dispatcher uses TryMarkInProgress instead.
func (m *SyncStatusManager) MarkInProgress(ctx context.Context, record *integration.SyncRecord, reason string) error {
	return m.transition(ctx, record, reason, func(now time.Time) { record.MarkInProgress(now) })
}

// TryMarkInProgress claims the record for a sync attempt with a conditional
// update that only succeeds while the stored status is pending or failed.
// It returns false when another worker got there first.
func (m *SyncStatusManager) TryMarkInProgress(ctx context.Context, record *integration.SyncRecord, reason string) (bool, error) {
	prev := *record
	from := record.SyncStatus

	record.MarkInProgress(m.now())
	ok, err := m.repo.TransitionStatus(ctx, record, integration.SyncStatusPending, integration.SyncStatusFailed)
	if err != nil || !ok {
		restoreStatus(record, &prev)
		if err != nil {
			m.logger.Error("failed to claim sync record",
				zap.String("record_id", record.ID.String()),
				zap.String("reason", reason),
				zap.Error(err),
			)
			return false, fmt.Errorf("claim sync record %s: %w", record.ID, err)
		}
		m.logger.Info("sync record already claimed, skipping",
			zap.String("record_id", record.ID.String()),
			zap.String("status", from.String()),
			zap.String("reason", reason),
		)
		return false, nil
	}

	record.ClearDirty()
	m.logTransition(record, from, reason)
	return true, nil
}

// MarkCompleted records a successful sync, setting LastSyncedAt and clearing the error
func (m *SyncStatusManager) MarkCompleted(ctx context.Context, record *integration.SyncRecord, reason string) error {
	return m.transition(ctx, record, reason, func(now time.Time) { record.MarkCompleted(now) })
}

// MarkFailed records a failed attempt with its error message. Persistence
// errors are logged and swallowed.
func (m *SyncStatusManager) MarkFailed(ctx context.Context, record *integration.SyncRecord, errMsg, reason string) {
	if err := m.transition(ctx, record, reason, func(now time.Time) { record.MarkFailed(errMsg, now) }); err != nil {
		m.logger.Error("failed to persist sync failure",
			zap.String("record_id", record.ID.String()),
			zap.String("sync_error", errMsg),
			zap.Error(err),
		)
	}
}

// NeedsSync reports whether the record should be synced now
func (m *SyncStatusManager) NeedsSync(record *integration.SyncRecord) bool {
	switch record.SyncStatus {
	case integration.SyncStatusPending:
		return true
	case integration.SyncStatusFailed:
		return m.ShouldRetryFailedSync(record)
	default:
		return false
	}
}

// ShouldRetryFailedSync reports whether the retry policy allows another attempt
func (m *SyncStatusManager) ShouldRetryFailedSync(record *integration.SyncRecord) bool {
	return m.policy.ShouldRetry(record, m.now())
}

// ResetFailedItems moves failed records whose last attempt is older than
// maxAgeMinutes back to pending, optionally for one connection pair
func (m *SyncStatusManager) ResetFailedItems(ctx context.Context, maxAgeMinutes int, connectionPairID *uuid.UUID) (int64, error) {
	if maxAgeMinutes < 0 {
		maxAgeMinutes = 0
	}
	cutoff := m.now().Add(-time.Duration(maxAgeMinutes) * time.Minute)

	count, err := m.repo.ResetFailed(ctx, cutoff, connectionPairID)
	if err != nil {
		m.logger.Error("failed to reset failed sync records",
			zap.Int("max_age_minutes", maxAgeMinutes),
			zap.Error(err),
		)
		return 0, fmt.Errorf("reset failed sync records: %w", err)
	}

	fields := []zap.Field{
		zap.Int64("count", count),
		zap.Int("max_age_minutes", maxAgeMinutes),
		zap.Time("cutoff", cutoff),
	}
	if connectionPairID != nil {
		fields = append(fields, zap.String("connection_pair_id", connectionPairID.String()))
	}
	m.logger.Info("reset failed sync records to pending", fields...)
	return count, nil
}

// FailStaleInProgress marks records stuck in progress longer than timeout as
// failed. The update is conditional on the record still being in progress so
// a worker finishing concurrently wins.
func (m *SyncStatusManager) FailStaleInProgress(ctx context.Context, timeout time.Duration, limit int) (int, error) {
	stale, err := m.repo.FindStaleInProgress(ctx, m.now().Add(-timeout), limit)
	if err != nil {
		return 0, fmt.Errorf("find stale in-progress records: %w", err)
	}

	msg := fmt.Sprintf("sync timed out: in progress for more than %s", timeout)
	failed := 0
	for _, record := range stale {
		prev := *record
		record.MarkFailed(msg, m.now())
		ok, err := m.repo.TransitionStatus(ctx, record, integration.SyncStatusInProgress)
		if err != nil || !ok {
			restoreStatus(record, &prev)
			if err != nil {
				m.logger.Error("failed to mark stale sync record failed",
					zap.String("record_id", record.ID.String()),
					zap.Error(err),
				)
			}
			continue
		}
		record.ClearDirty()
		m.logTransition(record, integration.SyncStatusInProgress, "stale_in_progress")
		failed++
	}
	return failed, nil
}

// GetSyncStatistics returns counts per status plus the last success and oldest pending attempt
func (m *SyncStatusManager) GetSyncStatistics(ctx context.Context, filter integration.SyncRecordFilter) (*integration.SyncStatistics, error) {
	stats, err := m.repo.GetStatistics(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("get sync statistics: %w", err)
	}
	return stats, nil
}

func (m *SyncStatusManager) transition(ctx context.Context, record *integration.SyncRecord, reason string, apply func(now time.Time)) error {
	prev := *record
	from := record.SyncStatus
	apply(m.now())

	if err := m.repo.UpdateStatus(ctx, record); err != nil {
		to := record.SyncStatus
		restoreStatus(record, &prev)
		return fmt.Errorf("persist %s transition for %s: %w", to, record.ID, err)
	}
	record.ClearDirty()
	m.logTransition(record, from, reason)
	return nil
}

func (m *SyncStatusManager) logTransition(record *integration.SyncRecord, from integration.SyncStatus, reason string) {
	fields := []zap.Field{
		zap.String("record_id", record.ID.String()),
		zap.String("connection_pair_id", record.ConnectionPairID.String()),
		zap.String("product_id", record.ProductID.String()),
		zap.String("from", from.String()),
		zap.String("to", record.SyncStatus.String()),
		zap.String("reason", reason),
	}
	if record.SyncError != nil {
		fields = append(fields, zap.String("sync_error", *record.SyncError))
	}
	m.logger.Info("sync status transition", fields...)
}

func restoreStatus(record, prev *integration.SyncRecord) {
	record.SyncStatus = prev.SyncStatus
	record.LastSyncAttempt = prev.LastSyncAttempt
	record.SyncError = prev.SyncError
	record.LastSyncedAt = prev.LastSyncedAt
	record.FailureCount = prev.FailureCount
	record.UpdatedAt = prev.UpdatedAt
	record.ClearDirty()
}
