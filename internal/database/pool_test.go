package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/BaSui01/agentrouter/retry"
)

// =============================================================================
// 🧪 PoolManager 测试
// =============================================================================

func setupTestDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *gorm.DB) {
	t.Helper()
	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: mockDB}), &gorm.Config{DisableAutomaticPing: true})
	require.NoError(t, err)
	return mockDB, mock, gormDB
}

func testPool() PoolConfig {
	return PoolConfig{MaxOpenConns: 10, MaxIdleConns: 5}
}

func TestNewPoolManager(t *testing.T) {
	mockDB, _, gormDB := setupTestDB(t)
	defer mockDB.Close()

	manager, err := NewPoolManager(gormDB, testPool(), zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.Equal(t, gormDB, manager.DB())
	assert.Equal(t, "postgres", manager.Dialect())
	assert.NotNil(t, manager.SQLDB())
}

func TestNewPoolManager_NilDB(t *testing.T) {
	_, err := NewPoolManager(nil, testPool(), nil)
	assert.Error(t, err)
}

func TestPoolManager_Ping(t *testing.T) {
	mockDB, mock, gormDB := setupTestDB(t)
	defer mockDB.Close()

	manager, err := NewPoolManager(gormDB, testPool(), zap.NewNop())
	require.NoError(t, err)

	mock.ExpectPing()
	assert.NoError(t, manager.Ping(context.Background()))

	mock.ExpectPing().WillReturnError(sql.ErrConnDone)
	assert.Error(t, manager.Ping(context.Background()))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoolManager_GetStats(t *testing.T) {
	mockDB, _, gormDB := setupTestDB(t)
	defer mockDB.Close()

	manager, err := NewPoolManager(gormDB, testPool(), zap.NewNop())
	require.NoError(t, err)

	stats := manager.GetStats()
	assert.Equal(t, "postgres", stats.Dialect)
	assert.Equal(t, 10, stats.MaxOpenConnections)
	assert.GreaterOrEqual(t, stats.Idle, 0)
}

func TestPoolManager_WithTransaction(t *testing.T) {
	mockDB, mock, gormDB := setupTestDB(t)
	defer mockDB.Close()

	manager, err := NewPoolManager(gormDB, testPool(), zap.NewNop())
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectCommit()
	err = manager.WithTransaction(context.Background(), func(tx *gorm.DB) error { return nil })
	assert.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectRollback()
	err = manager.WithTransaction(context.Background(), func(tx *gorm.DB) error { return assert.AnError })
	assert.ErrorIs(t, err, assert.AnError)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoolManager_WithTransactionRetry(t *testing.T) {
	mockDB, mock, gormDB := setupTestDB(t)
	defer mockDB.Close()

	manager, err := NewPoolManager(gormDB, testPool(), zap.NewNop())
	require.NoError(t, err)

	policy := retry.Policy{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}

	t.Run("deadlock is retried", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectRollback()
		mock.ExpectBegin()
		mock.ExpectCommit()

		calls := 0
		err := manager.WithTransactionRetry(context.Background(), policy, func(tx *gorm.DB) error {
			calls++
			if calls == 1 {
				return errors.New("ERROR: deadlock detected (SQLSTATE 40P01)")
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 2, calls)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("constraint violation is not retried", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectRollback()

		calls := 0
		err := manager.WithTransactionRetry(context.Background(), policy, func(tx *gorm.DB) error {
			calls++
			return errors.New("duplicate key value violates unique constraint")
		})
		assert.Error(t, err)
		assert.Equal(t, 1, calls)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPoolManager_Close(t *testing.T) {
	_, mock, gormDB := setupTestDB(t)

	manager, err := NewPoolManager(gormDB, testPool(), zap.NewNop())
	require.NoError(t, err)

	mock.ExpectClose()
	require.NoError(t, manager.Close())
	require.NoError(t, manager.Close())
	assert.NoError(t, mock.ExpectationsWereMet())

	assert.ErrorIs(t, manager.Ping(context.Background()), ErrPoolClosed)
	err = manager.WithTransaction(context.Background(), func(tx *gorm.DB) error { return nil })
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestPoolManager_HealthCheckStopsOnClose(t *testing.T) {
	_, mock, gormDB := setupTestDB(t)

	cfg := testPool()
	cfg.HealthCheckInterval = 10 * time.Millisecond
	manager, err := NewPoolManager(gormDB, cfg, zap.NewNop())
	require.NoError(t, err)

	mock.ExpectClose()
	require.NoError(t, manager.Close())

	select {
	case <-manager.done:
	case <-time.After(time.Second):
		t.Fatal("done channel not closed")
	}
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("Deadlock found when trying to get lock"), true},
		{errors.New("pq: could not serialize access (SQLSTATE 40001)"), true},
		{errors.New("database is locked"), true},
		{errors.New("driver: bad connection"), true},
		{errors.New("syntax error at or near"), false},
		{ErrPoolClosed, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isRetryableError(tt.err), "%v", tt.err)
	}
}
