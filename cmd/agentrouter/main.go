// =============================================================================
// AgentRouter 主入口
// =============================================================================
// 分类驱动的请求路由服务：HTTP/WebSocket API、健康检查、Prometheus 指标
//
// 使用方法:
//
//	agentrouter serve                        # 启动服务
//	agentrouter serve --config config.yaml   # 指定配置文件
//	agentrouter dispatch "my card was stolen" # 本地调度一条请求
//	agentrouter dispatch --demo              # 跑一遍 FinTechCorp 示例请求
//	agentrouter routes                       # 打印路由表
//	agentrouter migrate up                   # 运行审计库迁移
//	agentrouter version                      # 显示版本信息
//	agentrouter health                       # 健康检查
// =============================================================================

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/agentrouter/config"
	"github.com/BaSui01/agentrouter/dispatch"
	"github.com/BaSui01/agentrouter/internal/factory"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// demoQueries FinTechCorp 客服示例请求
var demoQueries = []string{
	"How do I check my account balance?",
	"URGENT: My credit card was stolen!",
	"I can't access my account, this is critical",
	"What are the current loan rates?",
	"ASAP: Fraudulent charges on my card!",
	"How do I update my contact information?",
	"I need help with my loan application",
	"What products do you offer?",
}

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(os.Args[2:])
	case "dispatch":
		err = runDispatch(os.Args[2:], os.Stdout)
	case "routes":
		err = runRoutes(os.Args[2:], os.Stdout)
	case "migrate":
		err = runMigrate(os.Args[2:])
	case "version":
		printVersion()
	case "health":
		err = runHealthCheck(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig 加载并校验配置
func loadConfig(path string) (*config.Config, error) {
	loader := config.NewLoader()
	if path != "" {
		loader = loader.WithConfigPath(path)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// =============================================================================
// 🖥️ serve 命令
// =============================================================================

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting AgentRouter",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	srv, err := NewServer(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize server", zap.Error(err))
		return err
	}
	if err := srv.Run(context.Background()); err != nil {
		logger.Error("server stopped with error", zap.Error(err))
		return err
	}

	logger.Info("AgentRouter stopped")
	return nil
}

// =============================================================================
// 📨 dispatch 命令
// =============================================================================

// runDispatch 在进程内构建路由器并调度文本参数（或示例请求），不启动 HTTP
func runDispatch(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("dispatch", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	demo := fs.Bool("demo", false, "Dispatch the built-in FinTechCorp sample queries")
	session := fs.String("session", "", "Session ID passed to workers")
	timeout := fs.Duration("timeout", time.Minute, "Per-request timeout")
	_ = fs.Parse(args)

	texts := fs.Args()
	if *demo {
		texts = append(texts, demoQueries...)
	}
	if len(texts) == 0 {
		return fmt.Errorf("dispatch: no text given (pass text arguments or --demo)")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	r, err := factory.Build(cfg, factory.Deps{Logger: logger})
	if err != nil {
		return err
	}

	var failed int
	for i, text := range texts {
		ctx, cancel := context.WithTimeout(context.Background(), *timeout)
		res, err := r.Router.Dispatch(ctx, &dispatch.Request{Text: text, SessionID: *session})
		cancel()

		fmt.Fprintf(out, "Query %d: %s\n", i+1, text)
		if err != nil {
			failed++
			fmt.Fprintf(out, "  error: %v\n\n", err)
			continue
		}
		fmt.Fprintf(out, "  route:  %s -> %s / %s\n", res.RoutingKey, res.Pool, res.Worker)
		fmt.Fprintf(out, "  reply:  %s\n\n", res.Response.Content)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d dispatches failed", failed, len(texts))
	}
	return nil
}

// =============================================================================
// 🗺️ routes 命令
// =============================================================================

// runRoutes 打印维度、池，以及每个可达路由键解析到的池
func runRoutes(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("routes", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	reg, err := factory.BuildRegistry(cfg, factory.Deps{})
	if err != nil {
		return err
	}

	for _, d := range reg.Schema() {
		fmt.Fprintf(out, "dimension %s: %s\n", d.Name, strings.Join(d.Strings(), ", "))
	}
	fmt.Fprintln(out)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "POOL\tWORKERS")
	for _, p := range reg.Pools() {
		fmt.Fprintf(tw, "%s\t%s\n", p.Name, strings.Join(p.Workers, ", "))
	}
	fmt.Fprintln(tw)

	explicit := make(map[string]bool)
	for _, route := range reg.Routes() {
		explicit[route.Key.String()] = true
	}
	fmt.Fprintln(tw, "KEY\tPOOL\tSOURCE")
	for _, key := range reg.ReachableKeys() {
		pool, err := reg.Resolve(key)
		if err != nil {
			fmt.Fprintf(tw, "%s\t-\t%v\n", key, err)
			continue
		}
		source := "default"
		if explicit[key.String()] {
			source = "route"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", key, pool, source)
	}
	return tw.Flush()
}

// =============================================================================
// 🏥 健康检查命令
// =============================================================================

func runHealthCheck(args []string) error {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:8080", "Server address")
	_ = fs.Parse(args)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(*addr + "/health")
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed: status %d", resp.StatusCode)
	}

	fmt.Println("OK")
	return nil
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion() {
	fmt.Printf("AgentRouter %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`AgentRouter - classification-driven request router

Usage:
  agentrouter <command> [options]

Commands:
  serve     Start the HTTP / WebSocket server
  dispatch  Dispatch text locally through the configured router
  routes    Print dimensions, pools and the resolved routing table
  migrate   Audit database migration commands
  version   Show version information
  health    Check server health
  help      Show this help message

Common options:
  --config <path>   Path to configuration file (YAML)

Options for 'dispatch':
  --demo            Dispatch the built-in FinTechCorp sample queries
  --session <id>    Session ID passed to workers
  --timeout <dur>   Per-request timeout (default 1m)

Examples:
  agentrouter serve --config /etc/agentrouter/config.yaml
  agentrouter dispatch "my card was stolen, urgent"
  agentrouter dispatch --demo
  agentrouter routes
  agentrouter migrate up
  agentrouter health --addr http://localhost:8080`)
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}

	zapConfig := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       encoding == "console",
		Encoding:          encoding,
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !cfg.EnableCaller,
		DisableStacktrace: !cfg.EnableStacktrace,
	}

	logger, err := zapConfig.Build()
	if err != nil {
		// 回退到基本 logger
		logger, _ = zap.NewProduction()
	}
	return logger.With(zap.String("service", "agentrouter"))
}
