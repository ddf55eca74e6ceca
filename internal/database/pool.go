package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/agentrouter/retry"
)

// =============================================================================
// 🗄️ 审计库连接池
// =============================================================================

// ErrPoolClosed 连接池已关闭
var ErrPoolClosed = errors.New("database pool is closed")

// PoolManager 持有审计库的 GORM 实例并管理底层连接池
type PoolManager struct {
	db     *gorm.DB
	sqlDB  *sql.DB
	config PoolConfig
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// PoolConfig 连接池配置
type PoolConfig struct {
	MaxIdleConns        int           `yaml:"max_idle_conns" json:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	MaxOpenConns        int           `yaml:"max_open_conns" json:"max_open_conns" env:"MAX_OPEN_CONNS"`
	ConnMaxLifetime     time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
	ConnMaxIdleTime     time.Duration `yaml:"conn_max_idle_time" json:"conn_max_idle_time" env:"CONN_MAX_IDLE_TIME"`
	HealthCheckInterval time.Duration `yaml:"health_check_interval" json:"health_check_interval" env:"HEALTH_CHECK_INTERVAL"`
}

// DefaultPoolConfig 审计写入是低频批量操作，连接数保持较小
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxIdleConns:        4,
		MaxOpenConns:        16,
		ConnMaxLifetime:     time.Hour,
		ConnMaxIdleTime:     10 * time.Minute,
		HealthCheckInterval: time.Minute,
	}
}

// NewPoolManager 包装已打开的 GORM 实例
func NewPoolManager(db *gorm.DB, config PoolConfig, logger *zap.Logger) (*PoolManager, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(config.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	pm := &PoolManager{
		db:     db,
		sqlDB:  sqlDB,
		config: config,
		logger: logger.With(zap.String("component", "db_pool")),
		done:   make(chan struct{}),
	}

	if config.HealthCheckInterval > 0 {
		go pm.healthCheckLoop()
	}

	pm.logger.Info("database pool initialized",
		zap.String("dialect", db.Dialector.Name()),
		zap.Int("max_idle_conns", config.MaxIdleConns),
		zap.Int("max_open_conns", config.MaxOpenConns),
	)
	return pm, nil
}

// DB 返回 GORM 实例
func (pm *PoolManager) DB() *gorm.DB {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.db
}

// SQLDB 返回底层 *sql.DB，供迁移工具复用连接
func (pm *PoolManager) SQLDB() *sql.DB {
	return pm.sqlDB
}

// Dialect 返回 GORM 方言名（postgres / mysql / sqlite）
func (pm *PoolManager) Dialect() string {
	return pm.db.Dialector.Name()
}

// Ping 检查数据库连接
func (pm *PoolManager) Ping(ctx context.Context) error {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	if pm.closed {
		return ErrPoolClosed
	}
	return pm.sqlDB.PingContext(ctx)
}

// Close 关闭连接池，可重复调用
func (pm *PoolManager) Close() error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if pm.closed {
		return nil
	}
	pm.closed = true
	close(pm.done)
	pm.logger.Info("closing database pool")
	return pm.sqlDB.Close()
}

func (pm *PoolManager) healthCheckLoop() {
	ticker := time.NewTicker(pm.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-pm.done:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := pm.Ping(ctx); err != nil {
			if !errors.Is(err, ErrPoolClosed) {
				pm.logger.Error("database health check failed", zap.Error(err))
			}
		} else {
			s := pm.sqlDB.Stats()
			pm.logger.Debug("database health check passed",
				zap.Int("open_connections", s.OpenConnections),
				zap.Int("in_use", s.InUse),
				zap.Int("idle", s.Idle),
			)
		}
		cancel()
	}
}

// =============================================================================
// 📊 统计信息
// =============================================================================

// PoolStats 连接池统计信息
type PoolStats struct {
	Dialect            string        `json:"dialect"`
	MaxOpenConnections int           `json:"max_open_connections"`
	OpenConnections    int           `json:"open_connections"`
	InUse              int           `json:"in_use"`
	Idle               int           `json:"idle"`
	WaitCount          int64         `json:"wait_count"`
	WaitDuration       time.Duration `json:"wait_duration"`
}

// GetStats 返回连接池统计信息
func (pm *PoolManager) GetStats() PoolStats {
	s := pm.sqlDB.Stats()
	return PoolStats{
		Dialect:            pm.Dialect(),
		MaxOpenConnections: s.MaxOpenConnections,
		OpenConnections:    s.OpenConnections,
		InUse:              s.InUse,
		Idle:               s.Idle,
		WaitCount:          s.WaitCount,
		WaitDuration:       s.WaitDuration,
	}
}

// =============================================================================
// 🔄 事务
// =============================================================================

// TransactionFunc 事务函数类型
type TransactionFunc func(tx *gorm.DB) error

// WithTransaction 在事务中执行函数
func (pm *PoolManager) WithTransaction(ctx context.Context, fn TransactionFunc) error {
	pm.mu.RLock()
	if pm.closed {
		pm.mu.RUnlock()
		return ErrPoolClosed
	}
	db := pm.db
	pm.mu.RUnlock()

	return db.WithContext(ctx).Transaction(fn)
}

// WithTransactionRetry 在事务中执行函数，死锁、序列化失败等瞬时错误按 policy 退避重试
func (pm *PoolManager) WithTransactionRetry(ctx context.Context, policy retry.Policy, fn TransactionFunc) error {
	policy.ShouldRetry = func(err error) bool { return isRetryableError(err) }
	r := retry.NewBackoffRetryer(policy, pm.logger)
	return r.Do(ctx, func() error {
		return pm.WithTransaction(ctx, fn)
	})
}

var retryableFragments = []string{
	"deadlock",
	"serialization failure",
	"40001", // PostgreSQL SQLSTATE
	"connection reset",
	"connection refused",
	"broken pipe",
	"lock timeout",
	"lock wait timeout",
	"database is locked", // SQLite
	"bad connection",
}

func isRetryableError(err error) bool {
	if err == nil || errors.Is(err, ErrPoolClosed) {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, frag := range retryableFragments {
		if strings.Contains(msg, frag) {
			return true
		}
	}
	return false
}
