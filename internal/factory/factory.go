package factory

import (
	"fmt"
	"net/http"
	"time"

	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"
	openaiopt "github.com/openai/openai-go/v3/option"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/agentrouter/config"
	"github.com/BaSui01/agentrouter/dispatch"
	"github.com/BaSui01/agentrouter/dispatch/classifier"
	"github.com/BaSui01/agentrouter/dispatch/worker"
	"github.com/BaSui01/agentrouter/internal/tlsutil"
	"github.com/BaSui01/agentrouter/retry"
)

// Deps 外部依赖；全部可选
type Deps struct {
	Logger *zap.Logger

	// Recorder 接收调度指标（internal/metrics.Collector）
	Recorder dispatch.Recorder
	// CacheRecorder 接收分类缓存命中指标
	CacheRecorder classifier.CacheRecorder
	Tracer        trace.Tracer
	AuditSink     dispatch.AuditSink

	// LabelStore 在 classification.cache.store=redis 时使用（internal/cache.Manager）
	LabelStore classifier.LabelStore

	// HTTPClient 供 OpenAI/Anthropic SDK 使用；为空时使用 tlsutil 的加固客户端
	HTTPClient *http.Client
}

func (d Deps) logger() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}

func (d Deps) httpClient(llm config.LLMConfig) *http.Client {
	if d.HTTPClient != nil {
		return d.HTTPClient
	}
	return tlsutil.SecureHTTPClient(llm.Timeout)
}

// Router 由配置构建出的调度入口
type Router struct {
	// Dispatcher 单次调度，恰好一次工作者调用
	Dispatcher *dispatch.Dispatcher
	// Router 对外使用的入口；启用重试时是 RetryingDispatcher，否则即 Dispatcher
	Router dispatch.Router
}

// Registry 返回底层的池注册表
func (r *Router) Registry() *dispatch.Registry {
	return r.Dispatcher.Registry()
}

// Build 按配置构建注册表、分类器与调度器
func Build(cfg *config.Config, deps Deps) (*Router, error) {
	logger := deps.logger()

	reg, err := BuildRegistry(cfg, deps)
	if err != nil {
		return nil, err
	}

	cls, err := BuildClassifier(cfg, deps)
	if err != nil {
		return nil, err
	}

	dims := reg.Schema()
	bound := make([]dispatch.DimensionClassifier, len(dims))
	for i, dim := range dims {
		bound[i] = dispatch.DimensionClassifier{Dimension: dim, Classifier: cls}
	}

	opts := []dispatch.Option{dispatch.WithLogger(logger)}
	if deps.Recorder != nil {
		opts = append(opts, dispatch.WithRecorder(deps.Recorder))
	}
	if deps.Tracer != nil {
		opts = append(opts, dispatch.WithTracer(deps.Tracer))
	}
	if deps.AuditSink != nil {
		opts = append(opts, dispatch.WithAuditSink(deps.AuditSink))
	}

	d, err := dispatch.NewDispatcher(reg, bound, opts...)
	if err != nil {
		return nil, fmt.Errorf("build dispatcher: %w", err)
	}

	r := &Router{Dispatcher: d, Router: d}
	if cfg.Retry.Enabled {
		r.Router = dispatch.NewRetryingDispatcher(d, retry.NewBackoffRetryer(cfg.Retry.Policy, logger))
	}

	logger.Info("router built",
		zap.Int("dimensions", len(dims)),
		zap.Strings("pools", reg.PoolNames()),
		zap.Int("routes", len(reg.Routes())),
		zap.String("backend", cfg.Classification.Backend),
		zap.Bool("retry", cfg.Retry.Enabled),
	)
	return r, nil
}

// BuildSchema 按配置顺序生成维度
func BuildSchema(cc config.ClassificationConfig) []dispatch.Dimension {
	dims := make([]dispatch.Dimension, 0, len(cc.Dimensions))
	for _, d := range cc.Dimensions {
		labels := make([]dispatch.Label, 0, len(d.Labels))
		for _, l := range d.Labels {
			labels = append(labels, dispatch.Label(l.Name))
		}
		dims = append(dims, dispatch.NewDimension(d.Name, labels...))
	}
	return dims
}

// BuildRegistry 注册所有池、路由与默认池
func BuildRegistry(cfg *config.Config, deps Deps) (*dispatch.Registry, error) {
	logger := deps.logger()
	reg := dispatch.NewRegistry(
		dispatch.WithSchema(BuildSchema(cfg.Classification)...),
		dispatch.WithRegistryLogger(logger),
	)

	client := deps.httpClient(cfg.LLM)
	for _, pc := range cfg.Routing.Pools {
		workers := make([]dispatch.Worker, 0, len(pc.Workers))
		for _, wc := range pc.Workers {
			w, err := BuildWorker(pc, wc, cfg.LLM, client, logger)
			if err != nil {
				return nil, err
			}
			workers = append(workers, w)
		}
		if err := reg.Register(pc.Name, workers...); err != nil {
			return nil, fmt.Errorf("register pool %q: %w", pc.Name, err)
		}
	}

	for _, rc := range cfg.Routing.Routes {
		if err := reg.AddRoute(dispatch.ParseRoutingKey(rc.Key), rc.Pool); err != nil {
			return nil, fmt.Errorf("add route %q: %w", rc.Key, err)
		}
	}

	if cfg.Routing.DefaultPool != "" {
		if err := reg.SetDefaultPool(cfg.Routing.DefaultPool); err != nil {
			return nil, fmt.Errorf("set default pool: %w", err)
		}
	}
	return reg, nil
}

// BuildWorker 按 kind 创建工作者
func BuildWorker(pc config.PoolConfig, wc config.WorkerConfig, llm config.LLMConfig, client *http.Client, logger *zap.Logger) (dispatch.Worker, error) {
	switch wc.Kind {
	case "", "static":
		prefix := wc.Prefix
		if prefix == "" {
			prefix = pc.Prefix
		}
		return worker.NewStatic(wc.Name, prefix), nil

	case "openai":
		opts := []openaiopt.RequestOption{openaiopt.WithMaxRetries(llm.MaxRetries)}
		if client != nil {
			opts = append(opts, openaiopt.WithHTTPClient(client))
		}
		return worker.NewOpenAIAgent(worker.ChatConfig{
			Name:           wc.Name,
			APIKey:         llm.OpenAIAPIKey,
			BaseURL:        llm.OpenAIBaseURL,
			Model:          wc.Model,
			SystemPrompt:   wc.SystemPrompt,
			MaxTokens:      wc.MaxTokens,
			RequestOptions: opts,
		}, logger), nil

	case "anthropic":
		opts := []anthropicopt.RequestOption{anthropicopt.WithMaxRetries(llm.MaxRetries)}
		if client != nil {
			opts = append(opts, anthropicopt.WithHTTPClient(client))
		}
		return worker.NewAnthropicAgent(worker.AnthropicConfig{
			Name:           wc.Name,
			APIKey:         llm.AnthropicAPIKey,
			BaseURL:        llm.AnthropicBaseURL,
			Model:          wc.Model,
			SystemPrompt:   wc.SystemPrompt,
			MaxTokens:      wc.MaxTokens,
			RequestOptions: opts,
		}, logger), nil

	default:
		return nil, fmt.Errorf("worker %q: unknown kind %q", wc.Name, wc.Kind)
	}
}

// BuildClassifier 创建分类后端，按需套上缓存
func BuildClassifier(cfg *config.Config, deps Deps) (dispatch.Classifier, error) {
	logger := deps.logger()
	cc := cfg.Classification

	var inner dispatch.Classifier
	switch cc.Backend {
	case "", "keyword":
		inner = classifier.NewKeywordClassifier(KeywordSets(cc))

	case "openai":
		descriptions := make(map[string]string, len(cc.Dimensions))
		for _, d := range cc.Dimensions {
			if d.Description != "" {
				descriptions[d.Name] = d.Description
			}
		}
		opts := []openaiopt.RequestOption{openaiopt.WithMaxRetries(cfg.LLM.MaxRetries)}
		if client := deps.httpClient(cfg.LLM); client != nil {
			opts = append(opts, openaiopt.WithHTTPClient(client))
		}
		c, err := classifier.NewOpenAIClassifier(classifier.OpenAIConfig{
			APIKey:         cfg.LLM.OpenAIAPIKey,
			BaseURL:        cfg.LLM.OpenAIBaseURL,
			Model:          cc.Model,
			Descriptions:   descriptions,
			MaxInputTokens: cc.MaxInputTokens,
			RequestOptions: opts,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("build openai classifier: %w", err)
		}
		inner = c

	default:
		return nil, fmt.Errorf("unknown classification backend %q", cc.Backend)
	}

	if !cc.Cache.Enabled {
		return inner, nil
	}

	var store classifier.LabelStore
	switch cc.Cache.Store {
	case "", "memory":
		store = classifier.NewMemoryStore()
	case "redis":
		if deps.LabelStore == nil {
			return nil, fmt.Errorf("classification cache store redis requires a label store")
		}
		store = deps.LabelStore
	default:
		return nil, fmt.Errorf("unknown classification cache store %q", cc.Cache.Store)
	}

	opts := []classifier.CacheOption{classifier.WithCacheLogger(logger)}
	if deps.CacheRecorder != nil {
		opts = append(opts, classifier.WithCacheRecorder(deps.CacheRecorder))
	}
	return classifier.NewCachingClassifier(inner, store, ttlOrDefault(cc.Cache.TTL), opts...), nil
}

// KeywordSets 把维度配置转换为关键词分类器的规则
func KeywordSets(cc config.ClassificationConfig) map[string]classifier.KeywordSet {
	sets := make(map[string]classifier.KeywordSet, len(cc.Dimensions))
	for _, d := range cc.Dimensions {
		set := classifier.KeywordSet{Fallback: d.Fallback}
		for _, l := range d.Labels {
			if len(l.Keywords) == 0 {
				continue
			}
			set.Rules = append(set.Rules, classifier.KeywordRule{Label: l.Name, Keywords: l.Keywords})
		}
		sets[d.Name] = set
	}
	return sets
}

func ttlOrDefault(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 10 * time.Minute
	}
	return ttl
}
