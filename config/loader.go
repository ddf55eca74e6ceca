// =============================================================================
// 📦 AgentRouter 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("AGENTROUTER").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/BaSui01/agentrouter/internal/audit"
	"github.com/BaSui01/agentrouter/internal/cache"
	"github.com/BaSui01/agentrouter/internal/database"
	"github.com/BaSui01/agentrouter/retry"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 AgentRouter 的完整配置结构
type Config struct {
	Server    ServerConfig    `yaml:"server" env:"SERVER"`
	Log       LogConfig       `yaml:"log" env:"LOG"`
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`

	// Redis 分类结果缓存
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Database 审计库
	Database database.Config `yaml:"database" env:"DATABASE"`

	LLM LLMConfig `yaml:"llm" env:"LLM"`

	// Classification 标签维度与分类后端
	Classification ClassificationConfig `yaml:"classification" env:"CLASSIFICATION"`

	// Routing 池、工作者与路由表
	Routing RoutingConfig `yaml:"routing" env:"ROUTING"`

	Retry RetryConfig `yaml:"retry" env:"RETRY"`
	Audit AuditConfig `yaml:"audit" env:"AUDIT"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	HTTPPort        int           `yaml:"http_port" env:"HTTP_PORT"`
	MetricsPort     int           `yaml:"metrics_port" env:"METRICS_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" env:"IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// 单次调度的超时（分类 + 工作者调用）
	DispatchTimeout time.Duration `yaml:"dispatch_timeout" env:"DISPATCH_TIMEOUT"`

	RateLimitRPS   float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`

	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`

	// API Key 认证；为空且未配置 JWT 时不启用认证
	APIKeys          []string `yaml:"api_keys" env:"API_KEYS"`
	AllowQueryAPIKey bool     `yaml:"allow_query_api_key" env:"ALLOW_QUERY_API_KEY"`

	JWT JWTConfig `yaml:"jwt" env:"JWT"`

	// API 端口的证书；两者都配置时以 HTTPS 启动
	TLSCertFile string `yaml:"tls_cert_file" env:"TLS_CERT_FILE"`
	TLSKeyFile  string `yaml:"tls_key_file" env:"TLS_KEY_FILE"`
}

// JWTConfig JWT 认证配置，Secret 与 PublicKey 均为空时不启用
type JWTConfig struct {
	// HS256 密钥
	Secret string `yaml:"secret" env:"SECRET"`
	// RS256 公钥（PEM）
	PublicKey string `yaml:"public_key" env:"PUBLIC_KEY"`
	Issuer    string `yaml:"issuer" env:"ISSUER"`
	Audience  string `yaml:"audience" env:"AUDIENCE"`
}

// Enabled 是否配置了任一验证密钥
func (j JWTConfig) Enabled() bool {
	return j.Secret != "" || j.PublicKey != ""
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format           string   `yaml:"format" env:"FORMAT"`
	OutputPaths      []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	EnableCaller     bool     `yaml:"enable_caller" env:"ENABLE_CALLER"`
	EnableStacktrace bool     `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// RedisConfig 分类缓存的 Redis 配置
type RedisConfig struct {
	Enabled      bool `yaml:"enabled" env:"ENABLED"`
	cache.Config `yaml:",inline"`
}

// LLMConfig 模型服务凭据，分类器与 LLM 工作者共用
type LLMConfig struct {
	OpenAIAPIKey     string        `yaml:"openai_api_key" env:"OPENAI_API_KEY"`
	OpenAIBaseURL    string        `yaml:"openai_base_url" env:"OPENAI_BASE_URL"`
	AnthropicAPIKey  string        `yaml:"anthropic_api_key" env:"ANTHROPIC_API_KEY"`
	AnthropicBaseURL string        `yaml:"anthropic_base_url" env:"ANTHROPIC_BASE_URL"`
	Timeout          time.Duration `yaml:"timeout" env:"TIMEOUT"`
	MaxRetries       int           `yaml:"max_retries" env:"MAX_RETRIES"`
}

// ClassificationConfig 分类配置
type ClassificationConfig struct {
	// 后端: keyword, openai
	Backend string `yaml:"backend" env:"BACKEND"`
	// openai 后端使用的模型
	Model string `yaml:"model" env:"MODEL"`
	// 送入模型前按 token 截断，0 表示不截断
	MaxInputTokens int `yaml:"max_input_tokens" env:"MAX_INPUT_TOKENS"`

	// 维度顺序即路由键中标签的顺序
	Dimensions []DimensionConfig `yaml:"dimensions" env:"-"`

	Cache ClassificationCacheConfig `yaml:"cache" env:"CACHE"`
}

// DimensionConfig 一个标签维度
type DimensionConfig struct {
	Name        string        `yaml:"name"`
	Description string        `yaml:"description"`
	Fallback    string        `yaml:"fallback"`
	Labels      []LabelConfig `yaml:"labels"`
}

// LabelConfig 维度中的一个标签；Keywords 仅 keyword 后端使用
type LabelConfig struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

// ClassificationCacheConfig 分类结果缓存
type ClassificationCacheConfig struct {
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// memory 或 redis；redis 需要 redis.enabled
	Store string        `yaml:"store" env:"STORE"`
	TTL   time.Duration `yaml:"ttl" env:"TTL"`
}

// RoutingConfig 路由配置
type RoutingConfig struct {
	DefaultPool string        `yaml:"default_pool" env:"DEFAULT_POOL"`
	Pools       []PoolConfig  `yaml:"pools" env:"-"`
	Routes      []RouteConfig `yaml:"routes" env:"-"`
}

// PoolConfig 一个工作者池
type PoolConfig struct {
	Name string `yaml:"name"`
	// 池内工作者的默认回复前缀
	Prefix  string         `yaml:"prefix"`
	Workers []WorkerConfig `yaml:"workers"`
}

// WorkerConfig 一个工作者
type WorkerConfig struct {
	Name string `yaml:"name"`
	// 类型: static, openai, anthropic
	Kind         string `yaml:"kind"`
	Model        string `yaml:"model"`
	SystemPrompt string `yaml:"system_prompt"`
	MaxTokens    int64  `yaml:"max_tokens"`
	// 覆盖池的 Prefix
	Prefix string `yaml:"prefix"`
}

// RouteConfig 路由键（按维度顺序以 | 连接）到池的映射
type RouteConfig struct {
	Key  string `yaml:"key"`
	Pool string `yaml:"pool"`
}

// RetryConfig 工作者失败时的整次调度重试
type RetryConfig struct {
	Enabled      bool `yaml:"enabled" env:"ENABLED"`
	retry.Policy `yaml:",inline"`
}

// AuditConfig 调度审计
type AuditConfig struct {
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 启动时按模型自动建表；生产环境建议关闭并使用 migrate 子命令
	AutoMigrate  bool `yaml:"auto_migrate" env:"AUTO_MIGRATE"`
	audit.Config `yaml:",inline"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "AGENTROUTER",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}
	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置。
// 文件中出现的列表（维度、池、路由）整体替换默认值，不做合并。
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段；匿名嵌入的结构体沿用当前前缀
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if fieldType.Anonymous && field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, prefix); err != nil {
				return err
			}
			continue
		}

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}
		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct && field.Type() != reflect.TypeOf(time.Time{}) {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue, ok := os.LookupEnv(envKey)
		if !ok || envValue == "" {
			continue
		}
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}
	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			out := make([]string, 0, len(parts))
			for _, p := range parts {
				if p = strings.TrimSpace(p); p != "" {
					out = append(out, p)
				}
			}
			field.Set(reflect.ValueOf(out))
		}
	}
	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).WithValidator((*Config).Validate).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv 仅从环境变量加载配置
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// =============================================================================
// ✅ 配置验证
// =============================================================================

// Validate 验证配置，汇总所有错误后一次返回
func (c *Config) Validate() error {
	var errs []string

	// 验证服务器配置
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Server.MetricsPort < 0 || c.Server.MetricsPort > 65535 {
		errs = append(errs, "invalid metrics port")
	}
	if c.Server.RateLimitRPS < 0 {
		errs = append(errs, "rate_limit_rps must not be negative")
	}

	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, "telemetry sample_rate must be between 0 and 1")
	}

	if _, err := database.ParseDriver(c.Database.Driver); err != nil {
		errs = append(errs, err.Error())
	}

	errs = append(errs, c.validateClassification()...)
	errs = append(errs, c.validateRouting()...)

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateClassification() []string {
	var errs []string
	cc := c.Classification

	switch cc.Backend {
	case "keyword":
	case "openai":
		if c.LLM.OpenAIAPIKey == "" {
			errs = append(errs, "classification backend openai requires llm.openai_api_key")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown classification backend %q", cc.Backend))
	}

	if cc.Cache.Enabled {
		switch cc.Cache.Store {
		case "memory":
		case "redis":
			if !c.Redis.Enabled {
				errs = append(errs, "classification cache store redis requires redis.enabled")
			}
		default:
			errs = append(errs, fmt.Sprintf("unknown classification cache store %q", cc.Cache.Store))
		}
	}

	if len(cc.Dimensions) == 0 {
		errs = append(errs, "at least one classification dimension is required")
	}
	seenDim := make(map[string]bool, len(cc.Dimensions))
	for _, d := range cc.Dimensions {
		if d.Name == "" {
			errs = append(errs, "dimension name must not be empty")
			continue
		}
		if seenDim[d.Name] {
			errs = append(errs, fmt.Sprintf("duplicate dimension %q", d.Name))
		}
		seenDim[d.Name] = true

		if len(d.Labels) == 0 {
			errs = append(errs, fmt.Sprintf("dimension %q has no labels", d.Name))
		}
		labels := make(map[string]bool, len(d.Labels))
		for _, l := range d.Labels {
			if l.Name == "" || strings.Contains(l.Name, "|") {
				errs = append(errs, fmt.Sprintf("dimension %q: invalid label %q", d.Name, l.Name))
				continue
			}
			if labels[l.Name] {
				errs = append(errs, fmt.Sprintf("dimension %q: duplicate label %q", d.Name, l.Name))
			}
			labels[l.Name] = true
		}
		if d.Fallback != "" && !labels[d.Fallback] {
			errs = append(errs, fmt.Sprintf("dimension %q: fallback %q is not one of its labels", d.Name, d.Fallback))
		}
	}
	return errs
}

func (c *Config) validateRouting() []string {
	var errs []string
	rc := c.Routing

	pools := make(map[string]bool, len(rc.Pools))
	workers := make(map[string]string)
	for _, p := range rc.Pools {
		if p.Name == "" {
			errs = append(errs, "pool name must not be empty")
			continue
		}
		if pools[p.Name] {
			errs = append(errs, fmt.Sprintf("duplicate pool %q", p.Name))
		}
		pools[p.Name] = true

		if len(p.Workers) == 0 {
			errs = append(errs, fmt.Sprintf("pool %q has no workers", p.Name))
		}
		for _, w := range p.Workers {
			if w.Name == "" {
				errs = append(errs, fmt.Sprintf("pool %q: worker name must not be empty", p.Name))
				continue
			}
			if owner, ok := workers[w.Name]; ok {
				errs = append(errs, fmt.Sprintf("worker %q is listed in both %q and %q", w.Name, owner, p.Name))
			}
			workers[w.Name] = p.Name

			switch w.Kind {
			case "", "static":
			case "openai":
				if c.LLM.OpenAIAPIKey == "" {
					errs = append(errs, fmt.Sprintf("worker %q requires llm.openai_api_key", w.Name))
				}
			case "anthropic":
				if c.LLM.AnthropicAPIKey == "" {
					errs = append(errs, fmt.Sprintf("worker %q requires llm.anthropic_api_key", w.Name))
				}
			default:
				errs = append(errs, fmt.Sprintf("worker %q: unknown kind %q", w.Name, w.Kind))
			}
		}
	}

	if rc.DefaultPool != "" && !pools[rc.DefaultPool] {
		errs = append(errs, fmt.Sprintf("default pool %q is not defined", rc.DefaultPool))
	}

	dims := c.Classification.Dimensions
	seenKey := make(map[string]bool, len(rc.Routes))
	for _, r := range rc.Routes {
		parts := strings.Split(r.Key, "|")
		if len(parts) != len(dims) {
			errs = append(errs, fmt.Sprintf("route %q: expected %d labels, got %d", r.Key, len(dims), len(parts)))
		} else {
			for i, part := range parts {
				if !hasLabel(dims[i], part) {
					errs = append(errs, fmt.Sprintf("route %q: %q is not a label of dimension %q", r.Key, part, dims[i].Name))
				}
			}
		}
		if seenKey[r.Key] {
			errs = append(errs, fmt.Sprintf("duplicate route %q", r.Key))
		}
		seenKey[r.Key] = true
		if !pools[r.Pool] {
			errs = append(errs, fmt.Sprintf("route %q targets unknown pool %q", r.Key, r.Pool))
		}
	}
	return errs
}

func hasLabel(d DimensionConfig, name string) bool {
	for _, l := range d.Labels {
		if l.Name == name {
			return true
		}
	}
	return false
}
