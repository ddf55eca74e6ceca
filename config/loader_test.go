// 配置加载器与配置验证测试。
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// --- Loader 测试 ---

func TestLoader_LoadDefaults(t *testing.T) {
	// 不指定配置文件，应该返回默认值
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, "general_team", cfg.Routing.DefaultPool)
}

func TestLoader_LoadFromYAML(t *testing.T) {
	configPath := writeConfig(t, `
server:
  http_port: 8888
  read_timeout: 60s
  api_keys: ["k1", "k2"]
  jwt:
    secret: "s3cret"
    issuer: "fintech"

redis:
  enabled: true
  addr: "redis.example.com:6379"
  password: "secret"
  db: 1

retry:
  enabled: true
  max_retries: 5
  initial_delay: 50ms

audit:
  enabled: true
  batch_size: 10

classification:
  backend: keyword
  dimensions:
    - name: priority
      fallback: low
      labels:
        - name: high
          keywords: ["now"]
        - name: low

routing:
  default_pool: backlog
  pools:
    - name: backlog
      prefix: "[BACKLOG]"
      workers:
        - name: b1
    - name: oncall
      workers:
        - name: o1
          kind: static
  routes:
    - key: high
      pool: oncall

log:
  level: "debug"
  format: "console"
`)

	cfg, err := NewLoader().WithConfigPath(configPath).Load()
	require.NoError(t, err)

	// 验证 YAML 值覆盖了默认值
	assert.Equal(t, 8888, cfg.Server.HTTPPort)
	assert.Equal(t, 60*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, []string{"k1", "k2"}, cfg.Server.APIKeys)
	assert.True(t, cfg.Server.JWT.Enabled())
	assert.Equal(t, "fintech", cfg.Server.JWT.Issuer)

	// 内嵌结构体按 inline 展开
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "redis.example.com:6379", cfg.Redis.Addr)
	assert.Equal(t, 1, cfg.Redis.DB)
	assert.Equal(t, "agentrouter:label:", cfg.Redis.KeyPrefix, "unset fields keep defaults")

	assert.True(t, cfg.Retry.Enabled)
	assert.Equal(t, 5, cfg.Retry.MaxRetries)
	assert.Equal(t, 50*time.Millisecond, cfg.Retry.InitialDelay)
	assert.Equal(t, 10, cfg.Audit.BatchSize)

	// 列表整体替换
	require.Len(t, cfg.Classification.Dimensions, 1)
	assert.Equal(t, "priority", cfg.Classification.Dimensions[0].Name)
	require.Len(t, cfg.Routing.Pools, 2)
	assert.Equal(t, "[BACKLOG]", cfg.Routing.Pools[0].Prefix)
	assert.Equal(t, []RouteConfig{{Key: "high", Pool: "oncall"}}, cfg.Routing.Routes)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.NoError(t, cfg.Validate())
}

func TestLoader_LoadFromEnv(t *testing.T) {
	t.Setenv("AGENTROUTER_SERVER_HTTP_PORT", "7777")
	t.Setenv("AGENTROUTER_SERVER_RATE_LIMIT_RPS", "2.5")
	t.Setenv("AGENTROUTER_SERVER_API_KEYS", "a, b ,,c")
	t.Setenv("AGENTROUTER_SERVER_JWT_SECRET", "env-secret")
	t.Setenv("AGENTROUTER_REDIS_ADDR", "env-redis:6379")
	t.Setenv("AGENTROUTER_REDIS_ENABLED", "true")
	t.Setenv("AGENTROUTER_RETRY_MAX_RETRIES", "4")
	t.Setenv("AGENTROUTER_AUDIT_FLUSH_INTERVAL", "250ms")
	t.Setenv("AGENTROUTER_DATABASE_POOL_MAX_OPEN_CONNS", "3")
	t.Setenv("AGENTROUTER_ROUTING_DEFAULT_POOL", "loan_team")
	t.Setenv("AGENTROUTER_CLASSIFICATION_CACHE_TTL", "1m")
	t.Setenv("AGENTROUTER_LOG_LEVEL", "warn")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 7777, cfg.Server.HTTPPort)
	assert.InDelta(t, 2.5, cfg.Server.RateLimitRPS, 0.001)
	assert.Equal(t, []string{"a", "b", "c"}, cfg.Server.APIKeys)
	assert.Equal(t, "env-secret", cfg.Server.JWT.Secret)
	assert.Equal(t, "env-redis:6379", cfg.Redis.Addr)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, 4, cfg.Retry.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, cfg.Audit.FlushInterval)
	assert.Equal(t, 3, cfg.Database.Pool.MaxOpenConns)
	assert.Equal(t, "loan_team", cfg.Routing.DefaultPool)
	assert.Equal(t, time.Minute, cfg.Classification.Cache.TTL)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoader_EnvOverridesYAML(t *testing.T) {
	configPath := writeConfig(t, `
server:
  http_port: 8888
llm:
  openai_api_key: "yaml-key"
  openai_base_url: "http://yaml"
`)
	t.Setenv("AGENTROUTER_SERVER_HTTP_PORT", "9999")
	t.Setenv("AGENTROUTER_LLM_OPENAI_API_KEY", "env-key")

	cfg, err := NewLoader().WithConfigPath(configPath).Load()
	require.NoError(t, err)

	// 环境变量应该覆盖 YAML
	assert.Equal(t, 9999, cfg.Server.HTTPPort)
	assert.Equal(t, "env-key", cfg.LLM.OpenAIAPIKey)
	// YAML 值应该保留（没有被环境变量覆盖）
	assert.Equal(t, "http://yaml", cfg.LLM.OpenAIBaseURL)
}

func TestLoader_CustomEnvPrefix(t *testing.T) {
	t.Setenv("MYAPP_SERVER_HTTP_PORT", "6666")

	cfg, err := NewLoader().WithEnvPrefix("MYAPP").Load()
	require.NoError(t, err)
	assert.Equal(t, 6666, cfg.Server.HTTPPort)
}

func TestLoader_InvalidEnvValue(t *testing.T) {
	t.Setenv("AGENTROUTER_SERVER_READ_TIMEOUT", "soon")

	_, err := NewLoader().Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AGENTROUTER_SERVER_READ_TIMEOUT")
}

func TestLoader_WithValidator(t *testing.T) {
	validator := func(cfg *Config) error {
		if cfg.Server.HTTPPort < 1024 {
			return assert.AnError
		}
		return nil
	}
	t.Setenv("AGENTROUTER_SERVER_HTTP_PORT", "80")

	_, err := NewLoader().WithValidator(validator).Load()
	assert.Error(t, err)
}

func TestLoader_NonExistentFile(t *testing.T) {
	// 指定不存在的文件，应该使用默认值（不报错）
	cfg, err := NewLoader().WithConfigPath("/non/existent/path/config.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
}

func TestLoader_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, `
server:
  http_port: [invalid
  this is not valid yaml
`)
	_, err := NewLoader().WithConfigPath(configPath).Load()
	assert.Error(t, err)
}

// --- Config 方法测试 ---

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{
			name:   "valid default config",
			modify: func(c *Config) {},
		},
		{
			name:    "invalid HTTP port",
			modify:  func(c *Config) { c.Server.HTTPPort = 70000 },
			wantErr: "invalid HTTP port",
		},
		{
			name:    "sample rate out of range",
			modify:  func(c *Config) { c.Telemetry.SampleRate = 1.5 },
			wantErr: "sample_rate",
		},
		{
			name:    "unknown database driver",
			modify:  func(c *Config) { c.Database.Driver = "oracle" },
			wantErr: "unsupported database driver",
		},
		{
			name:    "openai backend without key",
			modify:  func(c *Config) { c.Classification.Backend = "openai" },
			wantErr: "openai_api_key",
		},
		{
			name:    "unknown backend",
			modify:  func(c *Config) { c.Classification.Backend = "regex" },
			wantErr: "unknown classification backend",
		},
		{
			name: "redis cache without redis",
			modify: func(c *Config) {
				c.Classification.Cache.Enabled = true
				c.Classification.Cache.Store = "redis"
			},
			wantErr: "requires redis.enabled",
		},
		{
			name:    "no dimensions",
			modify:  func(c *Config) { c.Classification.Dimensions = nil },
			wantErr: "at least one classification dimension",
		},
		{
			name:    "fallback outside dimension",
			modify:  func(c *Config) { c.Classification.Dimensions[0].Fallback = "meh" },
			wantErr: "fallback",
		},
		{
			name: "duplicate label",
			modify: func(c *Config) {
				d := &c.Classification.Dimensions[0]
				d.Labels = append(d.Labels, LabelConfig{Name: "urgent"})
			},
			wantErr: "duplicate label",
		},
		{
			name: "duplicate pool",
			modify: func(c *Config) {
				c.Routing.Pools = append(c.Routing.Pools, PoolConfig{Name: "loan_team", Workers: []WorkerConfig{{Name: "x"}}})
			},
			wantErr: "duplicate pool",
		},
		{
			name:    "empty pool",
			modify:  func(c *Config) { c.Routing.Pools[0].Workers = nil },
			wantErr: "has no workers",
		},
		{
			name: "worker in two pools",
			modify: func(c *Config) {
				c.Routing.Pools[1].Workers[0].Name = c.Routing.Pools[0].Workers[0].Name
			},
			wantErr: "is listed in both",
		},
		{
			name:    "unknown worker kind",
			modify:  func(c *Config) { c.Routing.Pools[0].Workers[0].Kind = "gemini" },
			wantErr: "unknown kind",
		},
		{
			name:    "anthropic worker without key",
			modify:  func(c *Config) { c.Routing.Pools[0].Workers[0].Kind = "anthropic" },
			wantErr: "anthropic_api_key",
		},
		{
			name:    "unknown default pool",
			modify:  func(c *Config) { c.Routing.DefaultPool = "nobody" },
			wantErr: "default pool",
		},
		{
			name:   "no default pool is allowed",
			modify: func(c *Config) { c.Routing.DefaultPool = "" },
		},
		{
			name:    "route with wrong arity",
			modify:  func(c *Config) { c.Routing.Routes[0].Key = "urgent" },
			wantErr: "expected 2 labels",
		},
		{
			name:    "route with unknown label",
			modify:  func(c *Config) { c.Routing.Routes[0].Key = "urgent|crypto" },
			wantErr: "is not a label of dimension",
		},
		{
			name: "duplicate route",
			modify: func(c *Config) {
				c.Routing.Routes = append(c.Routing.Routes, RouteConfig{Key: "urgent|loan", Pool: "general_team"})
			},
			wantErr: "duplicate route",
		},
		{
			name:    "route to unknown pool",
			modify:  func(c *Config) { c.Routing.Routes[0].Pool = "crypto_team" },
			wantErr: "unknown pool",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_ValidateAggregatesErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.HTTPPort = 0
	cfg.Routing.DefaultPool = "nobody"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid HTTP port")
	assert.Contains(t, err.Error(), "default pool")
}

// --- MustLoad 测试 ---

func TestMustLoad_Success(t *testing.T) {
	configPath := writeConfig(t, "server:\n  http_port: 8080\n")

	assert.NotPanics(t, func() {
		cfg := MustLoad(configPath)
		assert.Equal(t, 8080, cfg.Server.HTTPPort)
	})
}

func TestMustLoad_InvalidFile(t *testing.T) {
	configPath := writeConfig(t, "invalid: [yaml")
	assert.Panics(t, func() { MustLoad(configPath) })
}

func TestMustLoad_FailsValidation(t *testing.T) {
	configPath := writeConfig(t, "routing:\n  default_pool: nobody\n")
	assert.Panics(t, func() { MustLoad(configPath) })
}

func TestLoadFromEnv_Function(t *testing.T) {
	t.Setenv("AGENTROUTER_ROUTING_DEFAULT_POOL", "account_team")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "account_team", cfg.Routing.DefaultPool)
}
