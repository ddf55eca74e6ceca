package factory

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/agentrouter/config"
	"github.com/BaSui01/agentrouter/dispatch"
	"github.com/BaSui01/agentrouter/internal/cache"
	"github.com/BaSui01/agentrouter/types"
)

type cacheCounter struct {
	mu           sync.Mutex
	hits, misses int
}

func (c *cacheCounter) RecordCacheLookup(_ string, hit bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if hit {
		c.hits++
	} else {
		c.misses++
	}
}

func TestBuild_DefaultTopology(t *testing.T) {
	r, err := Build(config.DefaultConfig(), Deps{Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)
	assert.Same(t, r.Dispatcher, r.Router.(*dispatch.Dispatcher))

	reg := r.Registry()
	assert.ElementsMatch(t, []string{"general_team", "credit_card_team", "account_team", "loan_team"}, reg.PoolNames())
	assert.Len(t, reg.Routes(), 3)
	def, ok := reg.DefaultPool()
	require.True(t, ok)
	assert.Equal(t, "general_team", def)

	// 每个可达路由键都能解析
	for _, key := range reg.ReachableKeys() {
		_, err := reg.Resolve(key)
		assert.NoError(t, err, key.String())
	}
}

func TestBuild_DispatchesFintechQueries(t *testing.T) {
	r, err := Build(config.DefaultConfig(), Deps{})
	require.NoError(t, err)
	ctx := context.Background()

	res, err := r.Router.Dispatch(ctx, &dispatch.Request{Text: "URGENT: my credit card was stolen", SessionID: "thread-1"})
	require.NoError(t, err)
	assert.Equal(t, "credit_card_team", res.Pool)
	assert.Equal(t, "credit_card_agent_1", res.Worker)
	assert.Equal(t, "urgent|credit_card", res.RoutingKey.String())
	assert.True(t, strings.HasPrefix(res.Response.Content, "[CREDIT CARD]"))

	res, err = r.Router.Dispatch(ctx, &dispatch.Request{Text: "How do I check my balance?"})
	require.NoError(t, err)
	assert.Equal(t, "normal|general", res.RoutingKey.String())
	assert.Equal(t, "general_team", res.Pool)
	assert.True(t, strings.HasPrefix(res.Response.Content, "[GENERAL SUPPORT]"))

	_, err = r.Router.Dispatch(ctx, &dispatch.Request{Text: "   "})
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidInput))
}

func TestBuild_RetryWrapsDispatcher(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Retry.Enabled = true

	r, err := Build(cfg, Deps{})
	require.NoError(t, err)
	_, ok := r.Router.(*dispatch.RetryingDispatcher)
	assert.True(t, ok)
}

func TestBuildRegistry_Errors(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*config.Config)
		code   types.ErrorCode
	}{
		{
			name: "duplicate pool",
			modify: func(c *config.Config) {
				c.Routing.Pools = append(c.Routing.Pools, config.PoolConfig{
					Name: "loan_team", Workers: []config.WorkerConfig{{Name: "extra"}},
				})
			},
			code: types.ErrDuplicatePool,
		},
		{
			name:   "empty pool",
			modify: func(c *config.Config) { c.Routing.Pools[0].Workers = nil },
			code:   types.ErrEmptyPool,
		},
		{
			name:   "route to unknown pool",
			modify: func(c *config.Config) { c.Routing.Routes[0].Pool = "crypto_team" },
			code:   types.ErrUnknownPool,
		},
		{
			name: "duplicate route",
			modify: func(c *config.Config) {
				c.Routing.Routes = append(c.Routing.Routes, config.RouteConfig{Key: "urgent|loan", Pool: "general_team"})
			},
			code: types.ErrDuplicateRoute,
		},
		{
			name:   "unknown default pool",
			modify: func(c *config.Config) { c.Routing.DefaultPool = "nobody" },
			code:   types.ErrUnknownPool,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			tt.modify(cfg)
			_, err := BuildRegistry(cfg, Deps{})
			require.Error(t, err)
			assert.True(t, types.IsErrorCode(err, tt.code), err.Error())
		})
	}
}

func TestBuildWorker(t *testing.T) {
	pool := config.PoolConfig{Name: "loan_team", Prefix: "[LOAN]"}

	w, err := BuildWorker(pool, config.WorkerConfig{Name: "loan_agent_1"}, config.LLMConfig{}, nil, nil)
	require.NoError(t, err)
	resp, err := w.Handle(context.Background(), &dispatch.Request{Text: "rates?"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(resp.Content, "[LOAN]"))

	w, err = BuildWorker(pool, config.WorkerConfig{Name: "vip", Prefix: "[VIP]"}, config.LLMConfig{}, nil, nil)
	require.NoError(t, err)
	resp, err = w.Handle(context.Background(), &dispatch.Request{Text: "rates?"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(resp.Content, "[VIP]"))

	w, err = BuildWorker(pool, config.WorkerConfig{Name: "o", Kind: "openai"}, config.LLMConfig{OpenAIAPIKey: "k"}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "o", w.Name())

	w, err = BuildWorker(pool, config.WorkerConfig{Name: "a", Kind: "anthropic"}, config.LLMConfig{AnthropicAPIKey: "k"}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "a", w.Name())

	_, err = BuildWorker(pool, config.WorkerConfig{Name: "g", Kind: "gemini"}, config.LLMConfig{}, nil, nil)
	assert.Error(t, err)
}

func TestKeywordSets(t *testing.T) {
	sets := KeywordSets(config.DefaultClassificationConfig())
	require.Contains(t, sets, "urgency")
	require.Contains(t, sets, "topic")
	assert.Equal(t, "normal", sets["urgency"].Fallback)
	assert.Len(t, sets["topic"].Rules, 4)
}

func TestBuildClassifier_MemoryCache(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Classification.Cache.Enabled = true
	counter := &cacheCounter{}

	r, err := Build(cfg, Deps{CacheRecorder: counter})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := r.Router.Dispatch(context.Background(), &dispatch.Request{Text: "loan application status"})
		require.NoError(t, err)
	}
	assert.Equal(t, 2, counter.misses, "one miss per dimension")
	assert.Equal(t, 2, counter.hits)
}

func TestBuildClassifier_RedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	store, err := cache.NewManager(cache.Config{Addr: mr.Addr(), KeyPrefix: "test:"}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	cfg := config.DefaultConfig()
	cfg.Redis.Enabled = true
	cfg.Classification.Cache.Enabled = true
	cfg.Classification.Cache.Store = "redis"

	r, err := Build(cfg, Deps{LabelStore: store})
	require.NoError(t, err)

	res, err := r.Router.Dispatch(context.Background(), &dispatch.Request{Text: "I'm locked out of my account!"})
	require.NoError(t, err)
	assert.Equal(t, "account_team", res.Pool)
	assert.Len(t, mr.Keys(), 2, "one cached label per dimension")

	_, err = BuildClassifier(cfg, Deps{})
	assert.Error(t, err, "redis store without a label store")
}

func TestBuildClassifier_OpenAIBackend(t *testing.T) {
	var calls int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1", "object": "chat.completion", "created": 1, "model": "gpt-4o-mini",
			"choices": [{"index": 0, "finish_reason": "stop",
				"message": {"role": "assistant", "content": "{\"urgency\":\"urgent\",\"topic\":\"loan\"}"}}]
		}`))
	}))
	defer srv.Close()

	cfg := config.DefaultConfig()
	cfg.Classification.Backend = "openai"
	cfg.LLM.OpenAIAPIKey = "k"
	cfg.LLM.OpenAIBaseURL = srv.URL
	cfg.LLM.MaxRetries = 0
	require.NoError(t, cfg.Validate())

	r, err := Build(cfg, Deps{HTTPClient: srv.Client()})
	require.NoError(t, err)

	res, err := r.Router.Dispatch(context.Background(), &dispatch.Request{Text: "my mortgage payment bounced"})
	require.NoError(t, err)
	assert.Equal(t, "loan_team", res.Pool)
	assert.Equal(t, 2, calls, "one call per dimension")
}

func TestBuildClassifier_UnknownBackend(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Classification.Backend = "regex"
	_, err := BuildClassifier(cfg, Deps{})
	assert.Error(t, err)

	cfg = config.DefaultConfig()
	cfg.Classification.Cache.Enabled = true
	cfg.Classification.Cache.Store = "disk"
	_, err = BuildClassifier(cfg, Deps{})
	assert.Error(t, err)
}
