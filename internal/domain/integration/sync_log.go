package integration

import (
	"time"

	"github.com/google/uuid"
)

// SyncLogStatus is the outcome recorded in a sync log entry
type SyncLogStatus string

const (
	SyncLogStatusSuccess SyncLogStatus = "success"
	SyncLogStatusFailed  SyncLogStatus = "failed"
	SyncLogStatusSkipped SyncLogStatus = "skipped"
)

// SyncLog is an append-only audit entry for one sync attempt. Entries are
// never updated once written.
type SyncLog struct {
	ID               uuid.UUID
	TenantID         uuid.UUID
	SyncRecordID     uuid.UUID
	ConnectionPairID uuid.UUID
	JobID            string
	Operation        string
	Status           SyncLogStatus
	Message          string
	Response         []byte
	StartedAt        time.Time
	CompletedAt      time.Time
	DurationMs       int64
}

// NewSyncLog builds a log entry for an attempt that started at startedAt and ended at completedAt
func NewSyncLog(r *SyncRecord, jobID, operation string, status SyncLogStatus, message string, startedAt, completedAt time.Time) *SyncLog {
	return &SyncLog{
		ID:               uuid.New(),
		TenantID:         r.TenantID,
		SyncRecordID:     r.ID,
		ConnectionPairID: r.ConnectionPairID,
		JobID:            jobID,
		Operation:        operation,
		Status:           status,
		Message:          message,
		StartedAt:        startedAt,
		CompletedAt:      completedAt,
		DurationMs:       completedAt.Sub(startedAt).Milliseconds(),
	}
}

// WithResponse attaches the raw destination response
func (l *SyncLog) WithResponse(raw []byte) *SyncLog {
	if len(raw) > 0 {
		l.Response = append([]byte(nil), raw...)
	}
	return l
}
