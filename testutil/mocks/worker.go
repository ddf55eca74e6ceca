// Package mocks 提供路由测试使用的 Worker 与 Classifier 模拟实现。
//
// 支持固定响应、错误注入、延迟与调用记录。
package mocks

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/BaSui01/agentrouter/dispatch"
)

// MockWorker 是 dispatch.Worker 的模拟实现
type MockWorker struct {
	name string

	mu       sync.Mutex
	response string
	err      error
	delay    time.Duration
	handle   func(ctx context.Context, req *dispatch.Request) (*dispatch.Response, error)
	calls    []*dispatch.Request
}

// NewMockWorker 创建新的 MockWorker，默认回复 "<name> ok"
func NewMockWorker(name string) *MockWorker {
	return &MockWorker{name: name, response: name + " ok"}
}

// WithResponse 设置固定响应内容
func (m *MockWorker) WithResponse(response string) *MockWorker {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.response = response
	return m
}

// WithError 设置返回错误
func (m *MockWorker) WithError(err error) *MockWorker {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithDelay 设置处理延迟；延迟期间响应上下文取消
func (m *MockWorker) WithDelay(d time.Duration) *MockWorker {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// WithHandleFunc 设置自定义处理函数，优先于固定响应与错误
func (m *MockWorker) WithHandleFunc(fn func(ctx context.Context, req *dispatch.Request) (*dispatch.Response, error)) *MockWorker {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handle = fn
	return m
}

// Name 实现 dispatch.Worker
func (m *MockWorker) Name() string { return m.name }

// Handle 实现 dispatch.Worker
func (m *MockWorker) Handle(ctx context.Context, req *dispatch.Request) (*dispatch.Response, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	response, err, delay, handle := m.response, m.err, m.delay, m.handle
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if handle != nil {
		return handle(ctx, req)
	}
	if err != nil {
		return nil, err
	}
	return &dispatch.Response{Content: response}, nil
}

// CallCount 返回调用次数
func (m *MockWorker) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Calls 返回收到的请求副本
func (m *MockWorker) Calls() []*dispatch.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*dispatch.Request(nil), m.calls...)
}

// Workers 批量创建 prefix_1..prefix_n
func Workers(prefix string, n int) []*MockWorker {
	out := make([]*MockWorker, n)
	for i := range out {
		out[i] = NewMockWorker(prefix + "_" + strconv.Itoa(i+1))
	}
	return out
}

// AsWorkers 转换为 dispatch.Worker 切片
func AsWorkers(ws []*MockWorker) []dispatch.Worker {
	out := make([]dispatch.Worker, len(ws))
	for i, w := range ws {
		out[i] = w
	}
	return out
}
