package migration

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/BaSui01/agentrouter/internal/database"
)

//go:embed migrations
var migrationsFS embed.FS

// DefaultTable 记录审计库迁移版本的表名
const DefaultTable = "dispatch_schema_migrations"

// =============================================================================
// Types
// =============================================================================

// Status 单个迁移的状态
type Status struct {
	Version uint
	Name    string
	Applied bool
	Dirty   bool
}

// Info 当前迁移概况
type Info struct {
	CurrentVersion uint
	Dirty          bool
	Total          int
	Applied        int
	Pending        int
}

// Config 迁移器配置
type Config struct {
	Driver database.Driver
	// DatabaseURL 按驱动格式提供：
	//   postgres: postgres://user:pw@host:5432/db?sslmode=disable 或 key=value 形式
	//   mysql:    user:pw@tcp(host:3306)/db?parseTime=true
	//   sqlite:   文件路径或 file: URI
	DatabaseURL string
	TableName   string
}

// Runner 迁移操作集合，CLI 依赖此接口
type Runner interface {
	Up(ctx context.Context) error
	Down(ctx context.Context) error
	Goto(ctx context.Context, version uint) error
	Force(ctx context.Context, version int) error
	Version(ctx context.Context) (uint, bool, error)
	Status(ctx context.Context) ([]Status, error)
	Info(ctx context.Context) (*Info, error)
	Close() error
}

// Migrator 基于 golang-migrate 管理 dispatch_audit 表结构
type Migrator struct {
	cfg     Config
	dir     string
	migrate *migrate.Migrate
}

// NewMigrator 打开独立连接并加载与驱动对应的内嵌迁移
func NewMigrator(cfg Config) (*Migrator, error) {
	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required")
	}
	if cfg.TableName == "" {
		cfg.TableName = DefaultTable
	}

	dir, sqlDriver, err := layout(cfg.Driver)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(sqlDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	instance, err := withInstance(cfg, db)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create database driver: %w", err)
	}

	src, err := iofs.New(migrationsFS, dir)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("load migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, string(cfg.Driver), instance)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create migrate instance: %w", err)
	}
	return &Migrator{cfg: cfg, dir: dir, migrate: m}, nil
}

// FromDatabaseConfig 用审计库的连接配置构造迁移器
func FromDatabaseConfig(dbCfg database.Config) (*Migrator, error) {
	driver, err := database.ParseDriver(dbCfg.Driver)
	if err != nil {
		return nil, err
	}
	url, err := database.BuildDSN(dbCfg)
	if err != nil {
		return nil, err
	}
	return NewMigrator(Config{Driver: driver, DatabaseURL: url})
}

// layout 返回迁移目录与 database/sql 驱动名。
// 两种 SQLite 驱动共用同一套迁移，迁移连接统一走 sqlite3。
func layout(driver database.Driver) (dir, sqlDriver string, err error) {
	switch driver {
	case database.DriverPostgres:
		return "migrations/postgres", "postgres", nil
	case database.DriverMySQL:
		return "migrations/mysql", "mysql", nil
	case database.DriverSQLite, database.DriverSQLite3:
		return "migrations/sqlite", "sqlite3", nil
	default:
		return "", "", fmt.Errorf("unsupported database driver: %q", driver)
	}
}

func withInstance(cfg Config, db *sql.DB) (migratedb.Driver, error) {
	switch cfg.Driver {
	case database.DriverPostgres:
		return postgres.WithInstance(db, &postgres.Config{MigrationsTable: cfg.TableName})
	case database.DriverMySQL:
		return mysql.WithInstance(db, &mysql.Config{MigrationsTable: cfg.TableName})
	default:
		return sqlite3.WithInstance(db, &sqlite3.Config{MigrationsTable: cfg.TableName})
	}
}

// =============================================================================
// Operations
// =============================================================================

// Up 应用所有未执行的迁移
func (m *Migrator) Up(context.Context) error {
	if err := m.migrate.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// Down 回滚最近一次迁移
func (m *Migrator) Down(context.Context) error {
	if err := m.migrate.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration down failed: %w", err)
	}
	return nil
}

// Goto 迁移到指定版本
func (m *Migrator) Goto(_ context.Context, version uint) error {
	if err := m.migrate.Migrate(version); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration goto failed: %w", err)
	}
	return nil
}

// Force 直接设置版本号并清除 dirty 标记，不执行迁移
func (m *Migrator) Force(_ context.Context, version int) error {
	if err := m.migrate.Force(version); err != nil {
		return fmt.Errorf("migration force failed: %w", err)
	}
	return nil
}

// Version 返回当前版本；尚未迁移时返回 0
func (m *Migrator) Version(context.Context) (uint, bool, error) {
	version, dirty, err := m.migrate.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get version: %w", err)
	}
	return version, dirty, nil
}

// Status 列出所有内嵌迁移及其状态
func (m *Migrator) Status(ctx context.Context) ([]Status, error) {
	current, dirty, err := m.Version(ctx)
	if err != nil {
		return nil, err
	}
	files, err := available(m.dir)
	if err != nil {
		return nil, err
	}

	statuses := make([]Status, 0, len(files))
	for _, f := range files {
		statuses = append(statuses, Status{
			Version: f.version,
			Name:    f.name,
			Applied: f.version <= current,
			Dirty:   dirty && f.version == current,
		})
	}
	return statuses, nil
}

// Info 汇总迁移状态
func (m *Migrator) Info(ctx context.Context) (*Info, error) {
	statuses, err := m.Status(ctx)
	if err != nil {
		return nil, err
	}
	current, dirty, err := m.Version(ctx)
	if err != nil {
		return nil, err
	}
	info := &Info{CurrentVersion: current, Dirty: dirty, Total: len(statuses)}
	for _, s := range statuses {
		if s.Applied {
			info.Applied++
		}
	}
	info.Pending = info.Total - info.Applied
	return info, nil
}

// Close 释放迁移连接
func (m *Migrator) Close() error {
	srcErr, dbErr := m.migrate.Close()
	return errors.Join(srcErr, dbErr)
}

type migrationFile struct {
	version uint
	name    string
}

// available 解析 NNNNNN_name.up.sql 形式的文件名
func available(dir string) ([]migrationFile, error) {
	entries, err := fs.ReadDir(migrationsFS, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var files []migrationFile
	for _, entry := range entries {
		name := path.Base(entry.Name())
		if entry.IsDir() || !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		prefix, rest, ok := strings.Cut(name, "_")
		if !ok {
			continue
		}
		version, err := strconv.ParseUint(prefix, 10, 32)
		if err != nil {
			continue
		}
		files = append(files, migrationFile{
			version: uint(version),
			name:    strings.TrimSuffix(rest, ".up.sql"),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].version < files[j].version })
	return files, nil
}
