package classifier

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentrouter/dispatch"
)

type countingClassifier struct {
	calls atomic.Int32
	label string
	err   error
	delay time.Duration
}

func (c *countingClassifier) Classify(context.Context, string, dispatch.Dimension) (string, error) {
	c.calls.Add(1)
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	return c.label, c.err
}

type hitRecorder struct {
	mu         sync.Mutex
	hits, miss int
}

func (r *hitRecorder) RecordCacheLookup(_ string, hit bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if hit {
		r.hits++
	} else {
		r.miss++
	}
}

type brokenStore struct{}

func (brokenStore) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("store down")
}

func (brokenStore) Set(context.Context, string, string, time.Duration) error {
	return errors.New("store down")
}

func TestCachingClassifier_HitAfterMiss(t *testing.T) {
	inner := &countingClassifier{label: "Loan"}
	rec := &hitRecorder{}
	c := NewCachingClassifier(inner, nil, time.Minute, WithCacheRecorder(rec))
	ctx := context.Background()

	first, err := c.Classify(ctx, "loan help", topic)
	require.NoError(t, err)
	assert.Equal(t, "Loan", first)

	second, err := c.Classify(ctx, "loan help", topic)
	require.NoError(t, err)
	assert.Equal(t, "loan", second, "cache stores the normalized label")

	assert.Equal(t, int32(1), inner.calls.Load())
	assert.Equal(t, 1, rec.hits)
	assert.Equal(t, 1, rec.miss)
}

func TestCachingClassifier_DoesNotCacheInvalidLabels(t *testing.T) {
	inner := &countingClassifier{label: "spam"}
	store := NewMemoryStore()
	c := NewCachingClassifier(inner, store, time.Minute)

	for i := 0; i < 2; i++ {
		got, err := c.Classify(context.Background(), "buy now", topic)
		require.NoError(t, err)
		assert.Equal(t, "spam", got, "validation is the caller's job")
	}
	assert.Equal(t, int32(2), inner.calls.Load())
	assert.Zero(t, store.Len())
}

func TestCachingClassifier_ErrorsPropagate(t *testing.T) {
	boom := errors.New("boom")
	c := NewCachingClassifier(&countingClassifier{err: boom}, nil, time.Minute)
	_, err := c.Classify(context.Background(), "x", topic)
	assert.ErrorIs(t, err, boom)
}

func TestCachingClassifier_StoreFailureFallsThrough(t *testing.T) {
	inner := &countingClassifier{label: "urgent"}
	c := NewCachingClassifier(inner, brokenStore{}, time.Minute)

	got, err := c.Classify(context.Background(), "help", urgency)
	require.NoError(t, err)
	assert.Equal(t, "urgent", got)
}

func TestCachingClassifier_SingleflightCollapsesMisses(t *testing.T) {
	inner := &countingClassifier{label: "loan", delay: 50 * time.Millisecond}
	c := NewCachingClassifier(inner, nil, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := c.Classify(context.Background(), "same text", topic)
			assert.NoError(t, err)
			assert.Equal(t, "loan", got)
		}()
	}
	wg.Wait()
	assert.Less(t, inner.calls.Load(), int32(10))
}

// gatedClassifier blocks until release is closed and reports whether the
// context it was given ever got cancelled.
type gatedClassifier struct {
	entered  chan struct{}
	release  chan struct{}
	calls    atomic.Int32
	sawError atomic.Bool
	label    string
}

func (g *gatedClassifier) Classify(ctx context.Context, _ string, _ dispatch.Dimension) (string, error) {
	if g.calls.Add(1) == 1 {
		close(g.entered)
	}
	select {
	case <-g.release:
	case <-ctx.Done():
		g.sawError.Store(true)
		return "", ctx.Err()
	}
	return g.label, nil
}

func TestCachingClassifier_CancelledWaiterDoesNotAffectOthers(t *testing.T) {
	inner := &gatedClassifier{entered: make(chan struct{}), release: make(chan struct{}), label: "loan"}
	c := NewCachingClassifier(inner, nil, time.Minute)

	ctxA, cancelA := context.WithCancel(context.Background())
	defer cancelA()

	errA := make(chan error, 1)
	go func() {
		_, err := c.Classify(ctxA, "refinance my mortgage", topic)
		errA <- err
	}()
	<-inner.entered

	type result struct {
		label string
		err   error
	}
	resB := make(chan result, 1)
	go func() {
		label, err := c.Classify(context.Background(), "refinance my mortgage", topic)
		resB <- result{label, err}
	}()

	// A gives up while the shared call is still in flight
	cancelA()
	select {
	case err := <-errA:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled caller did not return")
	}

	close(inner.release)
	select {
	case r := <-resB:
		require.NoError(t, r.err)
		assert.Equal(t, "loan", r.label)
	case <-time.After(2 * time.Second):
		t.Fatal("second caller did not return")
	}

	assert.False(t, inner.sawError.Load(), "shared call must not inherit a caller's cancellation")
	assert.Equal(t, int32(1), inner.calls.Load())

	// the detached call still populates the cache
	got, err := c.Classify(context.Background(), "refinance my mortgage", topic)
	require.NoError(t, err)
	assert.Equal(t, "loan", got)
	assert.Equal(t, int32(1), inner.calls.Load())
}

func TestCachingClassifier_CallTimeoutBoundsSharedCall(t *testing.T) {
	inner := &gatedClassifier{entered: make(chan struct{}), release: make(chan struct{}), label: "loan"}
	defer close(inner.release)
	c := NewCachingClassifier(inner, nil, time.Minute, WithCallTimeout(20*time.Millisecond))

	_, err := c.Classify(context.Background(), "slow backend", topic)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, inner.sawError.Load())
}

func TestMemoryStore_Expiry(t *testing.T) {
	s := NewMemoryStore()
	now := time.Unix(1000, 0)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", "urgent", time.Second))
	got, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "urgent", got)

	now = now.Add(2 * time.Second)
	_, ok, _ = s.Get(ctx, "k")
	assert.False(t, ok)
	assert.Zero(t, s.Len())
}

func TestCacheKey(t *testing.T) {
	assert.Equal(t, CacheKey("topic", "a"), CacheKey("topic", "a"))
	assert.NotEqual(t, CacheKey("topic", "a"), CacheKey("urgency", "a"))
	assert.NotEqual(t, CacheKey("topic", "a"), CacheKey("topic", "b"))
}
