package audit

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/BaSui01/agentrouter/dispatch"
)

// Record dispatch_audit 表的一行
type Record struct {
	ID           uint64    `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	RequestID    string    `gorm:"column:request_id;size:64;not null;index:idx_dispatch_audit_request_id" json:"request_id"`
	SessionID    string    `gorm:"column:session_id;size:128;not null;default:''" json:"session_id,omitempty"`
	TenantID     string    `gorm:"column:tenant_id;size:128;not null;default:'';index:idx_dispatch_audit_tenant" json:"tenant_id,omitempty"`
	RoutingKey   string    `gorm:"column:routing_key;size:255;not null;default:''" json:"routing_key"`
	Pool         string    `gorm:"column:pool;size:128;not null;default:'';index:idx_dispatch_audit_pool_created,priority:1" json:"pool,omitempty"`
	Worker       string    `gorm:"column:worker;size:128;not null;default:''" json:"worker,omitempty"`
	Status       string    `gorm:"column:status;size:64;not null;index:idx_dispatch_audit_status" json:"status"`
	ErrorMessage string    `gorm:"column:error_message;type:text" json:"error,omitempty"`
	DurationMS   int64     `gorm:"column:duration_ms;not null;default:0" json:"duration_ms"`
	CreatedAt    time.Time `gorm:"column:created_at;not null;index:idx_dispatch_audit_pool_created,priority:2" json:"created_at"`
}

// TableName 实现 gorm 的 Tabler 接口
func (Record) TableName() string { return "dispatch_audit" }

// FromEntry 将调度审计条目转换为表记录
func FromEntry(e dispatch.AuditEntry) Record {
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return Record{
		RequestID:    e.RequestID,
		SessionID:    e.SessionID,
		TenantID:     e.TenantID,
		RoutingKey:   e.RoutingKey,
		Pool:         e.Pool,
		Worker:       e.Worker,
		Status:       e.Status,
		ErrorMessage: e.Error,
		DurationMS:   e.Duration.Milliseconds(),
		CreatedAt:    ts.UTC(),
	}
}

// Filter 查询条件，零值字段不参与过滤
type Filter struct {
	Pool     string
	Status   string
	TenantID string
	Since    time.Time
	Until    time.Time
	Limit    int
	Offset   int
}

// Store 审计记录的读写
type Store struct {
	db *gorm.DB
}

// NewStore 创建 Store
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate 按 Record 建表，仅用于开发与测试；生产环境使用 migrate 子命令
func (s *Store) AutoMigrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&Record{}); err != nil {
		return fmt.Errorf("failed to auto migrate dispatch_audit: %w", err)
	}
	return nil
}

// Insert 批量写入
func (s *Store) Insert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).CreateInBatches(records, 100).Error; err != nil {
		return fmt.Errorf("insert %d audit records: %w", len(records), err)
	}
	return nil
}

func (s *Store) scoped(ctx context.Context, f Filter) *gorm.DB {
	q := s.db.WithContext(ctx).Model(&Record{})
	if f.Pool != "" {
		q = q.Where("pool = ?", f.Pool)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.TenantID != "" {
		q = q.Where("tenant_id = ?", f.TenantID)
	}
	if !f.Since.IsZero() {
		q = q.Where("created_at >= ?", f.Since.UTC())
	}
	if !f.Until.IsZero() {
		q = q.Where("created_at < ?", f.Until.UTC())
	}
	return q
}

// List 按时间倒序返回匹配的记录，Limit 默认 100
func (s *Store) List(ctx context.Context, f Filter) ([]Record, error) {
	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	var out []Record
	err := s.scoped(ctx, f).
		Order("created_at DESC").Order("id DESC").
		Limit(limit).Offset(f.Offset).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list audit records: %w", err)
	}
	return out, nil
}

// PoolCount 单个池的调度计数
type PoolCount struct {
	Pool  string `json:"pool"`
	Count int64  `json:"count"`
}

// CountByPool 统计匹配记录在各池上的分布，忽略未选中池的失败调度
func (s *Store) CountByPool(ctx context.Context, f Filter) ([]PoolCount, error) {
	f.Pool = ""
	var out []PoolCount
	err := s.scoped(ctx, f).
		Select("pool, COUNT(*) AS count").
		Where("pool <> ''").
		Group("pool").
		Order("pool").
		Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("count audit records: %w", err)
	}
	return out, nil
}
