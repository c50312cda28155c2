package integration

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SyncJobKind distinguishes single-record dispatches from batch sweeps
type SyncJobKind string

const (
	SyncJobKindSingle SyncJobKind = "single"
	SyncJobKindBatch  SyncJobKind = "batch"
)

// SyncJob is the unit of background sync work: a set of record IDs processed
// together by one worker
type SyncJob struct {
	ID               string          `json:"id"`
	Kind             SyncJobKind     `json:"kind"`
	TenantID         uuid.UUID       `json:"tenant_id"`
	ConnectionPairID *uuid.UUID      `json:"connection_pair_id,omitempty"`
	DestinationType  DestinationType `json:"destination_type,omitempty"`
	RecordIDs        []uuid.UUID     `json:"record_ids"`
	Reason           string          `json:"reason,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

// NewSingleSyncJob creates a job for one record
func NewSingleSyncJob(record *SyncRecord, destinationType DestinationType, reason string) *SyncJob {
	pairID := record.ConnectionPairID
	return &SyncJob{
		ID:               uuid.New().String(),
		Kind:             SyncJobKindSingle,
		TenantID:         record.TenantID,
		ConnectionPairID: &pairID,
		DestinationType:  destinationType,
		RecordIDs:        []uuid.UUID{record.ID},
		Reason:           reason,
		CreatedAt:        time.Now(),
	}
}

// NewBatchSyncJob creates a job covering many records
func NewBatchSyncJob(tenantID uuid.UUID, connectionPairID *uuid.UUID, recordIDs []uuid.UUID, reason string) *SyncJob {
	ids := make([]uuid.UUID, len(recordIDs))
	copy(ids, recordIDs)
	return &SyncJob{
		ID:               uuid.New().String(),
		Kind:             SyncJobKindBatch,
		TenantID:         tenantID,
		ConnectionPairID: connectionPairID,
		RecordIDs:        ids,
		Reason:           reason,
		CreatedAt:        time.Now(),
	}
}

// Validate checks the job is processable
func (j *SyncJob) Validate() error {
	if j == nil || j.ID == "" || len(j.RecordIDs) == 0 {
		return ErrInvalidJob
	}
	if j.Kind != SyncJobKindSingle && j.Kind != SyncJobKindBatch {
		return ErrInvalidJob
	}
	return nil
}

// JobQueue accepts sync jobs for background execution. Enqueue never waits for the job to run.
type JobQueue interface {
	// Enqueue submits a job; returns ErrJobQueueFull when the queue cannot accept more work
	Enqueue(ctx context.Context, job *SyncJob) error
	// Depth returns the number of jobs waiting to run
	Depth(ctx context.Context) (int64, error)
}
