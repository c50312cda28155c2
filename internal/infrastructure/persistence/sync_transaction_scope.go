package persistence

import (
	"context"

	"gorm.io/gorm"

	appintegration "github.com/syncbridge/backend/internal/application/integration"
	"github.com/syncbridge/backend/internal/domain/integration"
)

// GormTransactionScope opens a gorm transaction per Execute
type GormTransactionScope struct {
	db *gorm.DB
}

func NewGormTransactionScope(db *gorm.DB) *GormTransactionScope {
	return &GormTransactionScope{db: db}
}

func (s *GormTransactionScope) Execute(ctx context.Context, fn func(appintegration.TransactionalRepositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(txRepos{tx})
	})
}

// txRepos builds repositories on the transaction handle
type txRepos struct{ tx *gorm.DB }

func (r txRepos) SyncRecordRepo() integration.SyncRecordRepository {
	return NewGormSyncRecordRepository(r.tx)
}

var _ appintegration.TransactionScope = (*GormTransactionScope)(nil)
