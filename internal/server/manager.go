package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentrouter/internal/tlsutil"
)

// =============================================================================
// 🌐 HTTP 服务器管理器
// =============================================================================

// ErrClosed 服务器已关闭
var ErrClosed = errors.New("server is closed")

// Manager HTTP 服务器管理器
type Manager struct {
	server   *http.Server
	listener net.Listener
	errCh    chan error
	config   Config
	logger   *zap.Logger
	mu       sync.RWMutex
	closed   bool
}

// Config 服务器配置
type Config struct {
	// 名称，仅用于日志（api、metrics）
	Name string `yaml:"name" json:"name"`

	// 监听地址
	Addr string `yaml:"addr" json:"addr"`

	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" json:"idle_timeout"`

	// 最大请求头大小
	MaxHeaderBytes int `yaml:"max_header_bytes" json:"max_header_bytes"`

	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`

	// 两者都配置时以 HTTPS 启动
	TLSCertFile string `yaml:"tls_cert_file" json:"tls_cert_file"`
	TLSKeyFile  string `yaml:"tls_key_file" json:"tls_key_file"`
}

// DefaultConfig 返回默认服务器配置
func DefaultConfig() Config {
	return Config{
		Name:            "api",
		Addr:            ":8080",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     120 * time.Second,
		MaxHeaderBytes:  1 << 20, // 1 MB
		ShutdownTimeout: 30 * time.Second,
	}
}

// TLSEnabled 是否配置了证书
func (c Config) TLSEnabled() bool {
	return c.TLSCertFile != "" && c.TLSKeyFile != ""
}

// NewManager 创建服务器管理器
func NewManager(handler http.Handler, config Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Name == "" {
		config.Name = "http"
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = DefaultConfig().ShutdownTimeout
	}

	return &Manager{
		server: &http.Server{
			Addr:           config.Addr,
			Handler:        handler,
			ReadTimeout:    config.ReadTimeout,
			WriteTimeout:   config.WriteTimeout,
			IdleTimeout:    config.IdleTimeout,
			MaxHeaderBytes: config.MaxHeaderBytes,
		},
		errCh:  make(chan error, 1),
		config: config,
		logger: logger.With(zap.String("component", "http_server"), zap.String("server", config.Name)),
	}
}

// =============================================================================
// 🎯 核心方法
// =============================================================================

// Start 启动服务器（非阻塞）；配置了证书时以 HTTPS 启动
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if m.listener != nil {
		return fmt.Errorf("server %s already started", m.config.Name)
	}

	listener, err := net.Listen("tcp", m.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", m.config.Addr, err)
	}

	if m.config.TLSEnabled() {
		tlsCfg, err := tlsutil.ServerTLSConfig(m.config.TLSCertFile, m.config.TLSKeyFile)
		if err != nil {
			_ = listener.Close()
			return err
		}
		m.server.TLSConfig = tlsCfg
		listener = tls.NewListener(listener, tlsCfg)
	}

	m.listener = listener
	m.logger.Info("starting server",
		zap.String("addr", listener.Addr().String()),
		zap.Bool("tls", m.config.TLSEnabled()),
	)

	go m.serve(listener)
	return nil
}

func (m *Manager) serve(listener net.Listener) {
	if err := m.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		m.logger.Error("server failed", zap.Error(err))
		select {
		case m.errCh <- err:
		default:
		}
	}
}

// Shutdown 优雅关闭服务器，重复调用无副作用
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	if m.listener == nil {
		return nil
	}

	m.logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(ctx, m.config.ShutdownTimeout)
	defer cancel()

	if err := m.server.Shutdown(shutdownCtx); err != nil {
		m.logger.Error("server shutdown failed", zap.Error(err))
		return err
	}
	m.listener = nil

	m.logger.Info("server stopped")
	return nil
}

// Errors 返回异步的服务错误
func (m *Manager) Errors() <-chan error {
	return m.errCh
}

// Addr 返回实际监听地址；未启动时返回配置的地址
func (m *Manager) Addr() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.listener != nil {
		return m.listener.Addr().String()
	}
	return m.config.Addr
}

// IsRunning 已启动且未关闭
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listener != nil && !m.closed
}

// =============================================================================
// 👥 服务器组
// =============================================================================

// Group 统一启动、等待与关闭多个服务器（API 与 metrics）
type Group struct {
	managers []*Manager
	logger   *zap.Logger
}

// NewGroup 创建服务器组，nil 成员会被忽略
func NewGroup(logger *zap.Logger, managers ...*Manager) *Group {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Group{logger: logger}
	for _, m := range managers {
		if m != nil {
			g.managers = append(g.managers, m)
		}
	}
	return g
}

// Start 依次启动；任一失败时关闭已启动的服务器
func (g *Group) Start() error {
	for i, m := range g.managers {
		if err := m.Start(); err != nil {
			for _, started := range g.managers[:i] {
				_ = started.Shutdown(context.Background())
			}
			return err
		}
	}
	return nil
}

// Wait 阻塞直到 ctx 结束、收到 SIGINT/SIGTERM 或任一服务器异常退出。
// 返回的错误只在服务器异常退出时非空。
func (g *Group) Wait(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, len(g.managers))
	done := make(chan struct{})
	defer close(done)
	for _, m := range g.managers {
		go func(m *Manager) {
			select {
			case err := <-m.Errors():
				errCh <- err
			case <-done:
			}
		}(m)
	}

	select {
	case <-ctx.Done():
		g.logger.Info("shutdown requested", zap.Error(context.Cause(ctx)))
		return nil
	case err := <-errCh:
		g.logger.Error("server exited unexpectedly", zap.Error(err))
		return err
	}
}

// Shutdown 关闭所有服务器并合并错误
func (g *Group) Shutdown(ctx context.Context) error {
	var errs []error
	for _, m := range g.managers {
		if err := m.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", m.config.Name, err))
		}
	}
	return errors.Join(errs...)
}
