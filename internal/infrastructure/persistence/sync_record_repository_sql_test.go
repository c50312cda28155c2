package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domain "github.com/syncbridge/backend/internal/domain/integration"
)

func TestGormSyncRecordRepository_TransitionStatusSQL(t *testing.T) {
	record := &domain.SyncRecord{SyncStatus: domain.SyncStatusInProgress}
	record.ID = uuid.New()
	now := time.Now()
	record.LastSyncAttempt = &now

	t.Run("claims with a conditional update", func(t *testing.T) {
		db, mock, mockDB := newMockDatabase(t)
		defer mockDB.Close()
		repo := NewGormSyncRecordRepository(db.DB)

		mock.ExpectExec(`UPDATE "sync_records" SET .*"sync_status"=.* WHERE \(?id = \$\d+ AND sync_status IN \(\$\d+,\$\d+\)`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		ok, err := repo.TransitionStatus(context.Background(), record, domain.SyncStatusPending, domain.SyncStatusFailed)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("lost race checks existence", func(t *testing.T) {
		db, mock, mockDB := newMockDatabase(t)
		defer mockDB.Close()
		repo := NewGormSyncRecordRepository(db.DB)

		mock.ExpectExec(`UPDATE "sync_records"`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT count\(\*\) FROM "sync_records" WHERE id = \$1`).
			WithArgs(record.ID).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

		ok, err := repo.TransitionStatus(context.Background(), record, domain.SyncStatusPending)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("requires an expected status", func(t *testing.T) {
		db, _, mockDB := newMockDatabase(t)
		defer mockDB.Close()

		_, err := NewGormSyncRecordRepository(db.DB).TransitionStatus(context.Background(), record)
		assert.ErrorIs(t, err, domain.ErrInvalidSyncStatus)
	})
}
