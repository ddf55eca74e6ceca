// Package fixtures 提供 FinTechCorp 客服场景的测试数据：
// 默认路由拓扑与八条样例问题及其期望去向。
package fixtures

import (
	"testing"

	"github.com/BaSui01/agentrouter/config"
	"github.com/BaSui01/agentrouter/internal/factory"
)

// Query 一条样例问题与关键词分类器下的期望结果
type Query struct {
	Text    string
	Urgency string
	Topic   string
	Pool    string
}

// RoutingKey 期望的路由键字符串
func (q Query) RoutingKey() string { return q.Urgency + "|" + q.Topic }

// Queries 八条样例问题；只有紧急的专项问题进入专项团队
func Queries() []Query {
	return []Query{
		{"How do I check my account balance?", "normal", "account", "general_team"},
		{"URGENT: My credit card was stolen!", "urgent", "credit_card", "credit_card_team"},
		{"I can't access my account, this is critical", "urgent", "account", "account_team"},
		{"What are the current loan rates?", "normal", "loan", "general_team"},
		{"ASAP: Fraudulent charges on my card!", "urgent", "credit_card", "credit_card_team"},
		{"How do I update my contact information?", "normal", "account", "general_team"},
		{"I need help with my loan application", "normal", "loan", "general_team"},
		{"What products do you offer?", "normal", "general", "general_team"},
	}
}

// PoolSizes 默认拓扑中各池的 worker 数
func PoolSizes() map[string]int {
	return map[string]int{
		"general_team":     3,
		"credit_card_team": 2,
		"account_team":     2,
		"loan_team":        2,
	}
}

// Config 默认 FinTechCorp 配置（关键词分类 + 静态 worker）
func Config() *config.Config {
	return config.DefaultConfig()
}

// NewRouter 按默认拓扑构建路由器，失败时终止测试
func NewRouter(t testing.TB, deps factory.Deps) *factory.Router {
	t.Helper()
	r, err := factory.Build(Config(), deps)
	if err != nil {
		t.Fatalf("build fintech router: %v", err)
	}
	return r
}
