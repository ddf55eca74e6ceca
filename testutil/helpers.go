// =============================================================================
// 🧪 测试辅助函数
// =============================================================================
// 提供通用的测试辅助函数和断言
//
// 使用方法:
//
//	ctx := testutil.TestContext(t)
//	testutil.AssertFairShare(t, counts, total)
//	testutil.AssertEventuallyTrue(t, func() bool { return condition }, 5*time.Second)
//
// =============================================================================
package testutil

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"testing"
	"time"
)

// =============================================================================
// 🎯 上下文辅助
// =============================================================================

// TestContext 返回带超时的测试上下文
func TestContext(t testing.TB) context.Context {
	return TestContextWithTimeout(t, 30*time.Second)
}

// TestContextWithTimeout 返回带自定义超时的测试上下文
func TestContextWithTimeout(t testing.TB, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// CancelledContext 返回已取消的上下文
func CancelledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

// =============================================================================
// 🔍 断言辅助
// =============================================================================

// AssertEventuallyTrue 断言条件在 timeout 内变为真
func AssertEventuallyTrue(t testing.TB, condition func() bool, timeout time.Duration) {
	t.Helper()
	if !WaitFor(condition, timeout) {
		t.Errorf("condition did not become true within %v", timeout)
	}
}

// WaitFor 等待条件满足或超时
func WaitFor(condition func() bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return condition()
}

// MustJSON 将值转换为 JSON 字符串，失败时 panic
func MustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(data)
}

// =============================================================================
// ⚖️ 轮询公平性辅助
// =============================================================================

// AssertFairShare 断言 total 次选择在 counts 的各 worker 间均分：
// 每个 worker 恰好得到 floor(total/n) 或 ceil(total/n) 次，且总和为 total
func AssertFairShare(t testing.TB, counts map[string]int, total int) {
	t.Helper()

	n := len(counts)
	if n == 0 {
		t.Errorf("no workers were selected")
		return
	}
	lo, hi := total/n, (total+n-1)/n
	sum := 0
	names := make([]string, 0, n)
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		c := counts[name]
		sum += c
		if c < lo || c > hi {
			t.Errorf("worker %q selected %d times, want %d..%d of %d", name, c, lo, hi, total)
		}
	}
	if sum != total {
		t.Errorf("selections sum to %d, want %d", sum, total)
	}
}

// RunConcurrently 用 goroutines 个协程共执行 total 次 fn，fn 收到全局序号
func RunConcurrently(goroutines, total int, fn func(i int)) {
	var wg sync.WaitGroup
	next := make(chan int)
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range next {
				fn(i)
			}
		}()
	}
	for i := 0; i < total; i++ {
		next <- i
	}
	close(next)
	wg.Wait()
}
