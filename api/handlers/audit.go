package handlers

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentrouter/internal/audit"
	"github.com/BaSui01/agentrouter/types"
)

// AuditReader 审计记录的只读视图（audit.Store 实现）
type AuditReader interface {
	List(ctx context.Context, f audit.Filter) ([]audit.Record, error)
	CountByPool(ctx context.Context, f audit.Filter) ([]audit.PoolCount, error)
}

// AuditHandler 审计查询处理器
type AuditHandler struct {
	store  AuditReader
	logger *zap.Logger
}

// NewAuditHandler 创建审计查询处理器
func NewAuditHandler(store AuditReader, logger *zap.Logger) *AuditHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditHandler{store: store, logger: logger.With(zap.String("handler", "audit"))}
}

// HandleList 处理 GET /api/v1/audit
//
// 查询参数：pool, status, tenant（或 tenant_id）, since, until（RFC3339）, limit, offset
func (h *AuditHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	f, err := parseAuditFilter(r.URL.Query())
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	records, lerr := h.store.List(r.Context(), f)
	if lerr != nil {
		WriteError(w, types.NewError(types.ErrInternalError, "failed to list audit records").WithCause(lerr), h.logger)
		return
	}
	if records == nil {
		records = []audit.Record{}
	}
	WriteSuccess(w, records)
}

// HandlePoolCounts 处理 GET /api/v1/audit/pools
func (h *AuditHandler) HandlePoolCounts(w http.ResponseWriter, r *http.Request) {
	f, err := parseAuditFilter(r.URL.Query())
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	counts, cerr := h.store.CountByPool(r.Context(), f)
	if cerr != nil {
		WriteError(w, types.NewError(types.ErrInternalError, "failed to count audit records").WithCause(cerr), h.logger)
		return
	}
	if counts == nil {
		counts = []audit.PoolCount{}
	}
	WriteSuccess(w, counts)
}

func parseAuditFilter(q url.Values) (audit.Filter, *types.Error) {
	f := audit.Filter{
		Pool:     q.Get("pool"),
		Status:   q.Get("status"),
		TenantID: q.Get("tenant"),
	}
	if f.TenantID == "" {
		f.TenantID = q.Get("tenant_id")
	}

	var err error
	if f.Since, err = parseTime(q.Get("since")); err != nil {
		return f, types.Errorf(types.ErrInvalidRequest, "invalid since: %v", err)
	}
	if f.Until, err = parseTime(q.Get("until")); err != nil {
		return f, types.Errorf(types.ErrInvalidRequest, "invalid until: %v", err)
	}
	if f.Limit, err = parseNonNegative(q.Get("limit")); err != nil {
		return f, types.Errorf(types.ErrInvalidRequest, "invalid limit: %v", err)
	}
	if f.Offset, err = parseNonNegative(q.Get("offset")); err != nil {
		return f, types.Errorf(types.ErrInvalidRequest, "invalid offset: %v", err)
	}
	return f, nil
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}

func parseNonNegative(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, strconv.ErrRange
	}
	return n, nil
}
