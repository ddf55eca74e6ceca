/*
Package testutil 提供 AgentRouter 测试的共享工具和辅助函数。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 轮询断言: AssertFairShare 校验 floor/ceil 均分，
    RunConcurrently 以固定协程数并发执行
  - 异步断言: AssertEventuallyTrue / WaitFor

# 子包

  - testutil/mocks: MockWorker（固定响应、错误注入、延迟、调用记录）与
    MockClassifier（按维度返回固定标签）
  - testutil/fixtures: FinTechCorp 默认拓扑与八条样例问题

# 使用示例

	ctx := testutil.TestContext(t)
	r := fixtures.NewRouter(t, factory.Deps{})
	res, err := r.Router.Dispatch(ctx, &dispatch.Request{Text: q.Text})
*/
package testutil
