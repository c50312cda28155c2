package integration

import (
	"context"

	"github.com/syncbridge/backend/internal/domain/integration"
)

// TransactionScope runs fn with repositories that share one transaction.
// An error from fn rolls everything back.
type TransactionScope interface {
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

type TransactionalRepositories interface {
	SyncRecordRepo() integration.SyncRecordRepository
}

// NoOpTransactionScope hands fn the plain repository. SyncService falls back
// to it when no scope is wired.
type NoOpTransactionScope struct {
	records integration.SyncRecordRepository
}

func NewNoOpTransactionScope(records integration.SyncRecordRepository) *NoOpTransactionScope {
	return &NoOpTransactionScope{records: records}
}

func (s *NoOpTransactionScope) Execute(_ context.Context, fn func(TransactionalRepositories) error) error {
	return fn(s)
}

func (s *NoOpTransactionScope) SyncRecordRepo() integration.SyncRecordRepository { return s.records }

var (
	_ TransactionScope          = (*NoOpTransactionScope)(nil)
	_ TransactionalRepositories = (*NoOpTransactionScope)(nil)
)
