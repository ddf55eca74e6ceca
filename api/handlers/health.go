package handlers

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentrouter/dispatch"
)

// =============================================================================
// 🏥 健康检查 Handler
// =============================================================================

// HealthHandler 健康检查处理器
type HealthHandler struct {
	logger  *zap.Logger
	checks  []HealthCheck
	mu      sync.RWMutex
	timeout time.Duration
	started time.Time
}

// HealthCheck 健康检查接口
type HealthCheck interface {
	Name() string
	Check(ctx context.Context) error
}

// HealthStatus 健康状态响应
type HealthStatus struct {
	Status    string                 `json:"status"` // "healthy", "unhealthy"
	Timestamp time.Time              `json:"timestamp"`
	Uptime    string                 `json:"uptime,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult 单个检查结果
type CheckResult struct {
	Status  string `json:"status"` // "pass", "fail"
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(logger *zap.Logger) *HealthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthHandler{
		logger:  logger,
		timeout: 5 * time.Second,
		started: time.Now(),
	}
}

// RegisterCheck 注册健康检查；nil 被忽略
func (h *HealthHandler) RegisterCheck(check HealthCheck) {
	if check == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, check)
}

// =============================================================================
// 🎯 HTTP 处理程序
// =============================================================================

// HandleHealth 处理 /health 请求（进程存活即健康）
// @Summary 健康检查
// @Tags 健康
// @Produce json
// @Success 200 {object} HealthStatus "服务正常"
// @Router /health [get]
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Uptime:    time.Since(h.started).Round(time.Second).String(),
	})
}

// HandleHealthz 处理 /healthz 请求（Kubernetes 活跃度探针）
func (h *HealthHandler) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
	})
}

// HandleReady 处理 /ready 请求：并发执行所有检查，任一失败返回 503
// @Summary 就绪检查
// @Tags 健康
// @Produce json
// @Success 200 {object} HealthStatus "服务已准备就绪"
// @Failure 503 {object} HealthStatus "服务尚未准备好"
// @Router /ready [get]
func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	h.mu.RLock()
	checks := append([]HealthCheck(nil), h.checks...)
	h.mu.RUnlock()

	results := make([]CheckResult, len(checks))
	var wg sync.WaitGroup
	for i, check := range checks {
		wg.Add(1)
		go func(i int, check HealthCheck) {
			defer wg.Done()
			start := time.Now()
			err := check.Check(ctx)
			latency := time.Since(start)

			results[i] = CheckResult{Status: "pass", Latency: latency.String()}
			if err != nil {
				results[i].Status = "fail"
				results[i].Message = err.Error()
				h.logger.Warn("health check failed",
					zap.String("check", check.Name()),
					zap.Error(err),
					zap.Duration("latency", latency),
				)
			}
		}(i, check)
	}
	wg.Wait()

	status := HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Checks:    make(map[string]CheckResult, len(checks)),
	}
	code := http.StatusOK
	for i, check := range checks {
		status.Checks[check.Name()] = results[i]
		if results[i].Status != "pass" {
			status.Status = "unhealthy"
			code = http.StatusServiceUnavailable
		}
	}
	WriteJSON(w, code, status)
}

// HandleVersion 返回构建信息
func (h *HealthHandler) HandleVersion(version, buildTime, gitCommit string) http.HandlerFunc {
	info := map[string]string{
		"version":    version,
		"build_time": buildTime,
		"git_commit": gitCommit,
	}
	return func(w http.ResponseWriter, r *http.Request) {
		WriteSuccess(w, info)
	}
}

// =============================================================================
// 🔧 内置健康检查实现
// =============================================================================

// PingCheck 以 ping 函数实现的健康检查（数据库、Redis 等）
type PingCheck struct {
	name string
	ping func(ctx context.Context) error
}

// NewPingCheck 创建健康检查
func NewPingCheck(name string, ping func(ctx context.Context) error) *PingCheck {
	return &PingCheck{name: name, ping: ping}
}

func (c *PingCheck) Name() string { return c.name }

func (c *PingCheck) Check(ctx context.Context) error { return c.ping(ctx) }

// RegistryHealthCheck 注册表至少有一个池，且默认池（若配置）存在
type RegistryHealthCheck struct {
	registry *dispatch.Registry
}

// NewRegistryHealthCheck 创建路由表健康检查
func NewRegistryHealthCheck(reg *dispatch.Registry) *RegistryHealthCheck {
	return &RegistryHealthCheck{registry: reg}
}

func (c *RegistryHealthCheck) Name() string { return "router" }

func (c *RegistryHealthCheck) Check(context.Context) error {
	names := c.registry.PoolNames()
	if len(names) == 0 {
		return errors.New("no pools registered")
	}
	if def, ok := c.registry.DefaultPool(); ok {
		if _, err := c.registry.Pool(def); err != nil {
			return err
		}
	}
	return nil
}
