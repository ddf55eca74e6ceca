// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package dispatch routes free-text requests to pooled workers.

# Overview

A Dispatcher runs every configured classification dimension over the
request text, combines the labels into a RoutingKey, resolves the key to a
named Pool through the Registry, selects the next Worker of that pool in
round-robin order and hands the request to it.

	reg := dispatch.NewRegistry(dispatch.WithSchema(urgency, topic))
	_ = reg.Register("credit_card_team", agent1, agent2)
	_ = reg.Register("general_team", agentG)
	_ = reg.AddRoute(dispatch.NewRoutingKey("urgent", "credit_card"), "credit_card_team")
	_ = reg.SetDefaultPool("general_team")

	d, _ := dispatch.NewDispatcher(reg, []dispatch.DimensionClassifier{
		{Dimension: urgency, Classifier: cls},
		{Dimension: topic, Classifier: cls},
	})
	res, err := d.Dispatch(ctx, &dispatch.Request{Text: "URGENT: card stolen"})

# Concurrency

Each Pool owns one rotation cursor guarded by its own mutex. The lock covers
only the read-then-advance step, never the worker call, so pools never
contend with each other and slow workers never serialize unrelated requests.
A rotation slot consumed by a request whose context is later cancelled is
not returned.

# Errors

Registry construction errors (DUPLICATE_POOL, EMPTY_POOL, UNKNOWN_POOL,
DUPLICATE_ROUTE) are returned as *types.Error and are meant to abort startup.
Per-request errors (INVALID_INPUT, UNRECOGNIZED_LABEL,
NO_ROUTE_AND_NO_DEFAULT) are *types.Error as well; worker errors are wrapped
in *WorkerFailure. The Dispatcher makes exactly one attempt per call;
RetryingDispatcher layers a bounded retry on WorkerFailure only.
*/
package dispatch
