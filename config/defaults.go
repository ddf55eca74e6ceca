// =============================================================================
// 📦 AgentRouter 默认配置
// =============================================================================
// 提供所有配置项的合理默认值；路由拓扑默认为 FinTechCorp 客服场景
// =============================================================================
package config

import (
	"fmt"
	"time"

	"github.com/BaSui01/agentrouter/dispatch/classifier"
	"github.com/BaSui01/agentrouter/internal/audit"
	"github.com/BaSui01/agentrouter/internal/cache"
	"github.com/BaSui01/agentrouter/internal/database"
	"github.com/BaSui01/agentrouter/retry"
)

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:         DefaultServerConfig(),
		Log:            DefaultLogConfig(),
		Telemetry:      DefaultTelemetryConfig(),
		Redis:          DefaultRedisConfig(),
		Database:       DefaultDatabaseConfig(),
		LLM:            DefaultLLMConfig(),
		Classification: DefaultClassificationConfig(),
		Routing:        DefaultRoutingConfig(),
		Retry:          DefaultRetryConfig(),
		Audit:          DefaultAuditConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    90 * time.Second,
		IdleTimeout:     2 * time.Minute,
		ShutdownTimeout: 15 * time.Second,
		DispatchTimeout: 60 * time.Second,
		RateLimitRPS:    100,
		RateLimitBurst:  200,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "agentrouter",
		SampleRate:   0.1,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置（默认关闭）
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Enabled: false,
		Config:  cache.DefaultConfig(),
	}
}

// DefaultDatabaseConfig 默认使用进程内 SQLite，便于本地试用
func DefaultDatabaseConfig() database.Config {
	return database.Config{
		Driver:        string(database.DriverSQLite),
		Name:          "agentrouter.db",
		SlowThreshold: 200 * time.Millisecond,
		Pool:          database.DefaultPoolConfig(),
	}
}

// DefaultLLMConfig 返回默认 LLM 配置
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Timeout:    2 * time.Minute,
		MaxRetries: 2,
	}
}

// DefaultRetryConfig 默认不重试整次调度
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Enabled: false,
		Policy:  retry.DefaultPolicy(),
	}
}

// DefaultAuditConfig 返回默认审计配置（默认关闭）
func DefaultAuditConfig() AuditConfig {
	return AuditConfig{
		Enabled:     false,
		AutoMigrate: true,
		Config:      audit.DefaultConfig(),
	}
}

// =============================================================================
// 🏦 FinTechCorp 路由拓扑
// =============================================================================

const (
	urgencyDescription = "How urgent the customer inquiry is. urgent: security issues, fraud, " +
		"account lockouts, payment failures. normal: general questions and information requests."
	topicDescription = "The business area of the inquiry. credit_card: charges, fraud, rewards, disputes. " +
		"account: login, security, settings. loan: mortgages, refinancing, applications. " +
		"general: products, services, balances, statements."
)

// DefaultClassificationConfig 紧急程度 × 业务主题 两个维度，关键词后端
func DefaultClassificationConfig() ClassificationConfig {
	kw := classifier.FintechKeywords()
	return ClassificationConfig{
		Backend:        "keyword",
		Model:          "gpt-4o-mini",
		MaxInputTokens: 2000,
		Dimensions: []DimensionConfig{
			keywordDimension("urgency", urgencyDescription, kw["urgency"]),
			keywordDimension("topic", topicDescription, kw["topic"]),
		},
		Cache: ClassificationCacheConfig{
			Enabled: false,
			Store:   "memory",
			TTL:     10 * time.Minute,
		},
	}
}

func keywordDimension(name, description string, set classifier.KeywordSet) DimensionConfig {
	d := DimensionConfig{Name: name, Description: description, Fallback: set.Fallback}
	for _, r := range set.Rules {
		d.Labels = append(d.Labels, LabelConfig{Name: r.Label, Keywords: r.Keywords})
	}
	return d
}

// DefaultRoutingConfig 紧急的专项问题进入专项团队，其余进入综合团队
func DefaultRoutingConfig() RoutingConfig {
	return RoutingConfig{
		DefaultPool: "general_team",
		Pools: []PoolConfig{
			teamPool("general_team", "General Support", "[GENERAL SUPPORT]", 3),
			teamPool("credit_card_team", "Credit Card Specialist", "[CREDIT CARD]", 2),
			teamPool("account_team", "Account Specialist", "[ACCOUNT]", 2),
			teamPool("loan_team", "Loan Specialist", "[LOAN]", 2),
		},
		Routes: []RouteConfig{
			{Key: "urgent|credit_card", Pool: "credit_card_team"},
			{Key: "urgent|account", Pool: "account_team"},
			{Key: "urgent|loan", Pool: "loan_team"},
		},
	}
}

func teamPool(name, role, prefix string, size int) PoolConfig {
	p := PoolConfig{Name: name, Prefix: prefix}
	base := name[:len(name)-len("_team")]
	for i := 1; i <= size; i++ {
		p.Workers = append(p.Workers, WorkerConfig{
			Name: fmt.Sprintf("%s_agent_%d", base, i),
			Kind: "static",
			SystemPrompt: fmt.Sprintf(
				"You are %s %d at FinTechCorp. Help the customer with their inquiry. "+
					"ALWAYS start your response with '%s' and be professional!", role, i, prefix),
			MaxTokens: 512,
		})
	}
	return p
}
