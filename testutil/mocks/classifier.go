package mocks

import (
	"context"
	"sync"

	"github.com/BaSui01/agentrouter/dispatch"
)

// MockClassifier 按维度名返回固定的原始标签
type MockClassifier struct {
	mu     sync.Mutex
	labels map[string]string
	errs   map[string]error
	calls  map[string]int
}

// NewMockClassifier 创建分类器；labels 为 维度名 → 原始标签
func NewMockClassifier(labels map[string]string) *MockClassifier {
	cp := make(map[string]string, len(labels))
	for k, v := range labels {
		cp[k] = v
	}
	return &MockClassifier{labels: cp, errs: map[string]error{}, calls: map[string]int{}}
}

// SetLabel 修改某个维度的返回值
func (m *MockClassifier) SetLabel(dimension, label string) *MockClassifier {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.labels[dimension] = label
	return m
}

// WithError 让某个维度的分类失败
func (m *MockClassifier) WithError(dimension string, err error) *MockClassifier {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[dimension] = err
	return m
}

// Classify 实现 dispatch.Classifier
func (m *MockClassifier) Classify(ctx context.Context, _ string, dim dispatch.Dimension) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[dim.Name]++
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := m.errs[dim.Name]; err != nil {
		return "", err
	}
	return m.labels[dim.Name], nil
}

// CallCount 返回某个维度被分类的次数
func (m *MockClassifier) CallCount(dimension string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[dimension]
}

// Bind 把同一个分类器绑定到每个维度
func (m *MockClassifier) Bind(dims ...dispatch.Dimension) []dispatch.DimensionClassifier {
	out := make([]dispatch.DimensionClassifier, len(dims))
	for i, d := range dims {
		out[i] = dispatch.DimensionClassifier{Dimension: d, Classifier: m}
	}
	return out
}
