package classifier

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/BaSui01/agentrouter/dispatch"
)

// LabelStore persists classification results. internal/cache provides a
// Redis implementation; MemoryStore is the in-process default.
type LabelStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, label string, ttl time.Duration) error
}

// CacheRecorder observes cache hits and misses.
type CacheRecorder interface {
	RecordCacheLookup(dimension string, hit bool)
}

// CachingClassifier memoizes an inner classifier per (dimension, text).
// Only labels that belong to the dimension are stored, so a misbehaving
// backend never poisons the cache. Concurrent misses for the same key share
// one backend call. The shared call runs detached from any single caller's
// cancellation and is bounded by callTimeout instead.
type CachingClassifier struct {
	inner       dispatch.Classifier
	store       LabelStore
	ttl         time.Duration
	callTimeout time.Duration
	recorder    CacheRecorder
	group       singleflight.Group
	logger      *zap.Logger
}

// DefaultCallTimeout bounds a shared backend call.
const DefaultCallTimeout = 30 * time.Second

// CacheOption configures CachingClassifier.
type CacheOption func(*CachingClassifier)

// WithCacheRecorder sets the hit/miss recorder.
func WithCacheRecorder(r CacheRecorder) CacheOption {
	return func(c *CachingClassifier) { c.recorder = r }
}

// WithCacheLogger sets the logger.
func WithCacheLogger(logger *zap.Logger) CacheOption {
	return func(c *CachingClassifier) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithCallTimeout bounds the shared backend call. Non-positive values keep the default.
func WithCallTimeout(d time.Duration) CacheOption {
	return func(c *CachingClassifier) {
		if d > 0 {
			c.callTimeout = d
		}
	}
}

// NewCachingClassifier wraps inner. A nil store uses a MemoryStore.
func NewCachingClassifier(inner dispatch.Classifier, store LabelStore, ttl time.Duration, opts ...CacheOption) *CachingClassifier {
	if store == nil {
		store = NewMemoryStore()
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	c := &CachingClassifier{
		inner:       inner,
		store:       store,
		ttl:         ttl,
		callTimeout: DefaultCallTimeout,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(zap.String("component", "classification_cache"))
	return c
}

// Classify implements dispatch.Classifier.
func (c *CachingClassifier) Classify(ctx context.Context, text string, dim dispatch.Dimension) (string, error) {
	key := CacheKey(dim.Name, text)

	if label, ok, err := c.store.Get(ctx, key); err != nil {
		// 存储故障不影响分类，直接回源
		c.logger.Warn("label store get failed", zap.Error(err))
	} else if ok && dim.Contains(dispatch.Label(label)) {
		c.record(dim.Name, true)
		return label, nil
	}
	c.record(dim.Name, false)

	// 共享调用不继承单个调用方的取消；每个调用方只等待自己的 ctx
	ch := c.group.DoChan(key, func() (any, error) {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.callTimeout)
		defer cancel()

		label, err := c.inner.Classify(callCtx, text, dim)
		if err != nil {
			return "", err
		}
		if parsed, perr := dim.Parse(label); perr == nil {
			if serr := c.store.Set(callCtx, key, string(parsed), c.ttl); serr != nil {
				c.logger.Warn("label store set failed", zap.Error(serr))
			}
		}
		return label, nil
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (c *CachingClassifier) record(dimension string, hit bool) {
	if c.recorder != nil {
		c.recorder.RecordCacheLookup(dimension, hit)
	}
}

// CacheKey derives the store key for a (dimension, text) pair.
func CacheKey(dimension, text string) string {
	sum := sha256.Sum256([]byte(text))
	return dimension + ":" + hex.EncodeToString(sum[:16])
}

// MemoryStore is an in-process LabelStore with per-entry expiry.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	label     string
	expiresAt time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry), now: time.Now}
}

// Get implements LabelStore.
func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return "", false, nil
	}
	if s.now().After(e.expiresAt) {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return "", false, nil
	}
	return e.label, true, nil
}

// Set implements LabelStore.
func (s *MemoryStore) Set(_ context.Context, key, label string, ttl time.Duration) error {
	s.mu.Lock()
	s.entries[key] = memoryEntry{label: label, expiresAt: s.now().Add(ttl)}
	s.mu.Unlock()
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
