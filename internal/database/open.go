package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	glebarez "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// =============================================================================
// 🔌 连接打开
// =============================================================================

// Driver 数据库驱动名
type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverMySQL    Driver = "mysql"
	// DriverSQLite 纯 Go 实现（glebarez），无需 CGO
	DriverSQLite Driver = "sqlite"
	// DriverSQLite3 基于 mattn/go-sqlite3，需要 CGO
	DriverSQLite3 Driver = "sqlite3"
)

// Config 数据库连接配置
type Config struct {
	Driver   string `yaml:"driver" json:"driver" env:"DRIVER"`
	DSN      string `yaml:"dsn" json:"dsn" env:"DSN"`
	Host     string `yaml:"host" json:"host" env:"HOST"`
	Port     int    `yaml:"port" json:"port" env:"PORT"`
	Name     string `yaml:"name" json:"name" env:"NAME"`
	User     string `yaml:"user" json:"user" env:"USER"`
	Password string `yaml:"password" json:"password" env:"PASSWORD"`
	SSLMode  string `yaml:"ssl_mode" json:"ssl_mode" env:"SSL_MODE"`

	// 慢查询阈值，0 表示不记录
	SlowThreshold time.Duration `yaml:"slow_threshold" json:"slow_threshold" env:"SLOW_THRESHOLD"`

	Pool PoolConfig `yaml:"pool" json:"pool" env:"POOL"`
}

// ParseDriver 规范化驱动名
func ParseDriver(s string) (Driver, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "postgres", "postgresql", "pg":
		return DriverPostgres, nil
	case "mysql", "mariadb":
		return DriverMySQL, nil
	case "sqlite", "":
		return DriverSQLite, nil
	case "sqlite3":
		return DriverSQLite3, nil
	default:
		return "", fmt.Errorf("unsupported database driver: %s", s)
	}
}

// BuildDSN 根据分项配置构造 DSN；已配置 DSN 时直接返回
func BuildDSN(cfg Config) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}
	driver, err := ParseDriver(cfg.Driver)
	if err != nil {
		return "", err
	}
	switch driver {
	case DriverPostgres:
		sslMode := cfg.SSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, sslMode), nil
	case DriverMySQL:
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Name), nil
	default:
		if cfg.Name == "" {
			return "file::memory:?cache=shared", nil
		}
		return cfg.Name, nil
	}
}

// Dialector 返回驱动对应的 GORM dialector
func Dialector(cfg Config) (gorm.Dialector, error) {
	driver, err := ParseDriver(cfg.Driver)
	if err != nil {
		return nil, err
	}
	dsn, err := BuildDSN(cfg)
	if err != nil {
		return nil, err
	}
	switch driver {
	case DriverPostgres:
		return postgres.Open(dsn), nil
	case DriverMySQL:
		return mysql.Open(dsn), nil
	case DriverSQLite3:
		return gormsqlite.Open(dsn), nil
	default:
		return glebarez.Open(dsn), nil
	}
}

// Open 打开数据库并返回带连接池管理的 PoolManager
func Open(cfg Config, logger *zap.Logger) (*PoolManager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	dialector, err := Dialector(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: NewGormLogger(logger, cfg.SlowThreshold),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.Driver, err)
	}

	pool := cfg.Pool
	if pool == (PoolConfig{}) {
		pool = DefaultPoolConfig()
	}
	return NewPoolManager(db, pool, logger)
}

// =============================================================================
// 📝 GORM 日志适配
// =============================================================================

// gormZapLogger 将 GORM 日志写入 zap
type gormZapLogger struct {
	logger        *zap.Logger
	level         gormlogger.LogLevel
	slowThreshold time.Duration
}

// NewGormLogger 创建写入 zap 的 GORM logger
func NewGormLogger(logger *zap.Logger, slowThreshold time.Duration) gormlogger.Interface {
	return &gormZapLogger{
		logger:        logger.With(zap.String("component", "gorm")),
		level:         gormlogger.Warn,
		slowThreshold: slowThreshold,
	}
}

func (l *gormZapLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

func (l *gormZapLogger) Info(_ context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Info {
		l.logger.Sugar().Infof(msg, args...)
	}
}

func (l *gormZapLogger) Warn(_ context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Warn {
		l.logger.Sugar().Warnf(msg, args...)
	}
}

func (l *gormZapLogger) Error(_ context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Error {
		l.logger.Sugar().Errorf(msg, args...)
	}
}

func (l *gormZapLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.level >= gormlogger.Error:
		sql, rows := fc()
		l.logger.Error("sql error", zap.String("sql", sql), zap.Int64("rows", rows),
			zap.Duration("elapsed", elapsed), zap.Error(err))
	case l.slowThreshold > 0 && elapsed > l.slowThreshold && l.level >= gormlogger.Warn:
		sql, rows := fc()
		l.logger.Warn("slow sql", zap.String("sql", sql), zap.Int64("rows", rows),
			zap.Duration("elapsed", elapsed))
	case l.level >= gormlogger.Info:
		sql, rows := fc()
		l.logger.Debug("sql", zap.String("sql", sql), zap.Int64("rows", rows),
			zap.Duration("elapsed", elapsed))
	}
}
