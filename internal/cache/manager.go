// Package cache provides the Redis-backed classification label store.
// This package is internal and should not be imported by external projects.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// =============================================================================
// 💾 标签缓存管理器
// =============================================================================

// Manager 将分类结果缓存在 Redis 中，实现 classifier.LabelStore
type Manager struct {
	redis  *redis.Client
	config Config
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}

	hits   atomic.Uint64
	misses atomic.Uint64
}

// Config 缓存配置
type Config struct {
	// Redis 地址
	Addr string `yaml:"addr" json:"addr" env:"ADDR"`

	// 密码
	Password string `yaml:"password" json:"password" env:"PASSWORD"`

	// 数据库编号
	DB int `yaml:"db" json:"db" env:"DB"`

	// 键前缀，多个部署共享一个 Redis 时用于隔离
	KeyPrefix string `yaml:"key_prefix" json:"key_prefix" env:"KEY_PREFIX"`

	// 默认过期时间
	DefaultTTL time.Duration `yaml:"default_ttl" json:"default_ttl" env:"DEFAULT_TTL"`

	// 最大重试次数
	MaxRetries int `yaml:"max_retries" json:"max_retries" env:"MAX_RETRIES"`

	// 连接池大小
	PoolSize int `yaml:"pool_size" json:"pool_size" env:"POOL_SIZE"`

	// 最小空闲连接数
	MinIdleConns int `yaml:"min_idle_conns" json:"min_idle_conns" env:"MIN_IDLE_CONNS"`

	// 健康检查间隔，0 表示关闭
	HealthCheckInterval time.Duration `yaml:"health_check_interval" json:"health_check_interval" env:"HEALTH_CHECK_INTERVAL"`
}

// DefaultConfig 返回默认缓存配置
func DefaultConfig() Config {
	return Config{
		Addr:                "localhost:6379",
		KeyPrefix:           "agentrouter:label:",
		DefaultTTL:          10 * time.Minute,
		MaxRetries:          3,
		PoolSize:            10,
		MinIdleConns:        2,
		HealthCheckInterval: 30 * time.Second,
	}
}

// NewManager 创建缓存管理器并验证连接
func NewManager(config Config, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		MaxRetries:   config.MaxRetries,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	m := &Manager{
		redis:  client,
		config: config,
		logger: logger.With(zap.String("component", "label_cache")),
		done:   make(chan struct{}),
	}

	if config.HealthCheckInterval > 0 {
		go m.healthCheckLoop()
	}

	m.logger.Info("label cache initialized",
		zap.String("addr", config.Addr),
		zap.String("key_prefix", config.KeyPrefix),
	)
	return m, nil
}

// =============================================================================
// 🎯 LabelStore
// =============================================================================

// Get 读取标签；未命中返回 ok=false 且 err=nil
func (m *Manager) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return "", false, ErrClosed
	}

	val, err := m.redis.Get(ctx, m.config.KeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		m.misses.Add(1)
		return "", false, nil
	}
	if err != nil {
		m.logger.Error("label get failed", zap.String("key", key), zap.Error(err))
		return "", false, fmt.Errorf("label get failed: %w", err)
	}
	m.hits.Add(1)
	return val, true, nil
}

// Set 写入标签；ttl 为 0 时使用默认过期时间
func (m *Manager) Set(ctx context.Context, key, label string, ttl time.Duration) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return ErrClosed
	}
	if ttl == 0 {
		ttl = m.config.DefaultTTL
	}

	if err := m.redis.Set(ctx, m.config.KeyPrefix+key, label, ttl).Err(); err != nil {
		m.logger.Error("label set failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("label set failed: %w", err)
	}
	return nil
}

// Purge 删除当前前缀下的所有标签，返回删除数量
func (m *Manager) Purge(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return 0, ErrClosed
	}

	var (
		cursor  uint64
		deleted int64
	)
	for {
		keys, next, err := m.redis.Scan(ctx, cursor, m.config.KeyPrefix+"*", 200).Result()
		if err != nil {
			return deleted, fmt.Errorf("label purge scan failed: %w", err)
		}
		if len(keys) > 0 {
			n, err := m.redis.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, fmt.Errorf("label purge delete failed: %w", err)
			}
			deleted += n
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	m.logger.Info("label cache purged", zap.Int64("deleted", deleted))
	return deleted, nil
}

// Ping 检查 Redis 连接
func (m *Manager) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return ErrClosed
	}
	return m.redis.Ping(ctx).Err()
}

// Close 关闭缓存管理器
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	close(m.done)
	m.logger.Info("closing label cache")
	return m.redis.Close()
}

// =============================================================================
// 🏥 健康检查
// =============================================================================

func (m *Manager) healthCheckLoop() {
	ticker := time.NewTicker(m.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := m.Ping(ctx); err != nil && !errors.Is(err, ErrClosed) {
			m.logger.Error("label cache health check failed", zap.Error(err))
		}
		cancel()
	}
}

// =============================================================================
// 📊 统计信息
// =============================================================================

// Stats 缓存统计信息
type Stats struct {
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
	Keys   int64  `json:"keys"`
}

// GetStats 返回本进程的命中统计与 Redis 中的键数量
func (m *Manager) GetStats(ctx context.Context) (*Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}
	keys, err := m.redis.DBSize(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get redis dbsize: %w", err)
	}
	return &Stats{
		Hits:   m.hits.Load(),
		Misses: m.misses.Load(),
		Keys:   keys,
	}, nil
}

// ErrClosed 管理器已关闭
var ErrClosed = errors.New("label cache is closed")
