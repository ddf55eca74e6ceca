package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/agentrouter/api/handlers"
	"github.com/BaSui01/agentrouter/config"
	"github.com/BaSui01/agentrouter/internal/audit"
	"github.com/BaSui01/agentrouter/internal/cache"
	"github.com/BaSui01/agentrouter/internal/database"
	"github.com/BaSui01/agentrouter/internal/factory"
	"github.com/BaSui01/agentrouter/internal/metrics"
	"github.com/BaSui01/agentrouter/internal/server"
	"github.com/BaSui01/agentrouter/internal/telemetry"
)

// statsInterval 审计与连接池指标的采样间隔
const statsInterval = 15 * time.Second

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 组装路由器、存储与 HTTP 服务
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	telemetry *telemetry.Providers
	registry  *prometheus.Registry
	collector *metrics.Collector

	redis *cache.Manager
	db    *database.PoolManager
	audit *audit.Writer
	store *audit.Store

	router *factory.Router

	httpManager    *server.Manager
	metricsManager *server.Manager
	group          *server.Group

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer 按配置初始化所有组件；可选组件（Redis、审计库）连接失败时返回错误
func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	s := &Server{cfg: cfg, logger: logger}
	if err := s.init(); err != nil {
		_ = s.closeResources(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *Server) init() (err error) {
	cfg, logger := s.cfg, s.logger

	// 1. 遥测
	if s.telemetry, err = telemetry.Init(cfg.Telemetry, logger); err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}

	// 2. 指标（独立 Registry，便于测试并行创建多个 Server）
	s.registry = prometheus.NewRegistry()
	s.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	s.collector = metrics.NewCollector("agentrouter", s.registry, logger)

	deps := factory.Deps{
		Logger:        logger,
		Recorder:      s.collector,
		CacheRecorder: s.collector,
		Tracer:        s.telemetry.Tracer(),
	}

	// 3. Redis 分类缓存
	if cfg.Redis.Enabled {
		if s.redis, err = cache.NewManager(cfg.Redis.Config, logger); err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		deps.LabelStore = s.redis
	}

	// 4. 审计库
	if cfg.Audit.Enabled {
		if s.db, err = database.Open(cfg.Database, logger); err != nil {
			return fmt.Errorf("open audit database: %w", err)
		}
		s.store = audit.NewStore(s.db.DB())
		if cfg.Audit.AutoMigrate {
			if err = s.store.AutoMigrate(context.Background()); err != nil {
				return err
			}
		}
		s.audit = audit.NewWriter(s.store, cfg.Audit.Config, logger)
		deps.AuditSink = s.audit
	}

	// 5. 路由器
	if s.router, err = factory.Build(cfg, deps); err != nil {
		return fmt.Errorf("build router: %w", err)
	}
	return nil
}

// =============================================================================
// 🌐 HTTP
// =============================================================================

// Handler 构建 API 路由与中间件链
func (s *Server) Handler(ctx context.Context) (http.Handler, error) {
	cfg := s.cfg.Server

	health := handlers.NewHealthHandler(s.logger)
	health.RegisterCheck(handlers.NewRegistryHealthCheck(s.router.Registry()))
	if s.redis != nil {
		health.RegisterCheck(handlers.NewPingCheck("redis", s.redis.Ping))
	}
	if s.db != nil {
		health.RegisterCheck(handlers.NewPingCheck("database", s.db.Ping))
	}

	dispatchHandler := handlers.NewDispatchHandler(s.router.Router, s.router.Registry(), cfg.DispatchTimeout, s.logger)
	dispatchHandler.OriginPatterns = cfg.CORSAllowedOrigins

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", health.HandleHealth)
	mux.HandleFunc("GET /healthz", health.HandleHealthz)
	mux.HandleFunc("GET /ready", health.HandleReady)
	mux.HandleFunc("GET /readyz", health.HandleReady)
	mux.HandleFunc("GET /version", health.HandleVersion(Version, BuildTime, GitCommit))

	mux.HandleFunc("POST /api/v1/dispatch", dispatchHandler.HandleDispatch)
	mux.HandleFunc("GET /api/v1/dispatch/ws", dispatchHandler.HandleWebSocket)
	mux.HandleFunc("GET /api/v1/pools", dispatchHandler.HandlePools)
	mux.HandleFunc("GET /api/v1/routes", dispatchHandler.HandleRoutes)

	if s.store != nil {
		auditHandler := handlers.NewAuditHandler(s.store, s.logger)
		mux.HandleFunc("GET /api/v1/audit", auditHandler.HandleList)
		mux.HandleFunc("GET /api/v1/audit/pools", auditHandler.HandlePoolCounts)
	}

	jwtAuth, err := JWTAuth(cfg.JWT, publicPaths, s.logger)
	if err != nil {
		return nil, err
	}

	return Chain(mux,
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		OTelTracing(s.telemetry.Tracer()),
		MetricsMiddleware(s.collector),
		RequestLogger(s.logger),
		CORS(cfg.CORSAllowedOrigins),
		APIKeyAuth(cfg.APIKeys, publicPaths, cfg.AllowQueryAPIKey, s.logger),
		jwtAuth,
		RateLimiter(ctx, cfg.RateLimitRPS, cfg.RateLimitBurst, limiterKey, s.logger),
	), nil
}

// MetricsHandler 暴露本实例 Registry 的 /metrics
func (s *Server) MetricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry}))
	return mux
}

// Start 启动 API 与 metrics 服务器（非阻塞）
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	handler, err := s.Handler(ctx)
	if err != nil {
		return err
	}

	cfg := s.cfg.Server
	s.httpManager = server.NewManager(handler, server.Config{
		Name:            "api",
		Addr:            fmt.Sprintf(":%d", cfg.HTTPPort),
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		IdleTimeout:     cfg.IdleTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: cfg.ShutdownTimeout,
		TLSCertFile:     cfg.TLSCertFile,
		TLSKeyFile:      cfg.TLSKeyFile,
	}, s.logger)

	if cfg.MetricsPort > 0 {
		s.metricsManager = server.NewManager(s.MetricsHandler(), server.Config{
			Name:            "metrics",
			Addr:            fmt.Sprintf(":%d", cfg.MetricsPort),
			ReadTimeout:     cfg.ReadTimeout,
			WriteTimeout:    cfg.WriteTimeout,
			ShutdownTimeout: cfg.ShutdownTimeout,
		}, s.logger)
	}

	s.group = server.NewGroup(s.logger, s.httpManager, s.metricsManager)
	if err := s.group.Start(); err != nil {
		return err
	}

	s.wg.Add(1)
	go s.reportStats(ctx)

	s.logger.Info("all servers started",
		zap.Int("http_port", cfg.HTTPPort),
		zap.Int("metrics_port", cfg.MetricsPort),
		zap.Strings("pools", s.router.Registry().PoolNames()),
		zap.Bool("audit", s.audit != nil),
		zap.Bool("redis", s.redis != nil),
	)
	return nil
}

// reportStats 定期把审计写入统计与连接池状态写入指标
func (s *Server) reportStats(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.audit != nil {
				st := s.audit.Stats()
				s.collector.RecordAuditStats(st.Written, st.Dropped, st.Failed)
			}
			if s.db != nil {
				st := s.db.GetStats()
				s.collector.RecordDBConnections(st.Dialect, st.OpenConnections, st.Idle)
			}
		}
	}
}

// Run 启动并阻塞到收到信号或服务器异常退出，随后优雅关闭
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}
	waitErr := s.group.Wait(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()
	return errors.Join(waitErr, s.Shutdown(shutdownCtx))
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// Shutdown 先停止接收请求，再刷新审计、关闭连接与遥测
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("starting graceful shutdown")

	var errs []error
	if s.group != nil {
		if err := s.group.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()

	errs = append(errs, s.closeResources(ctx))
	s.logger.Info("graceful shutdown completed")
	return errors.Join(errs...)
}

func (s *Server) closeResources(ctx context.Context) error {
	var errs []error
	if s.audit != nil {
		if err := s.audit.Close(); err != nil {
			errs = append(errs, fmt.Errorf("audit writer: %w", err))
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("database: %w", err))
		}
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	if err := s.telemetry.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("telemetry: %w", err))
	}
	return errors.Join(errs...)
}
