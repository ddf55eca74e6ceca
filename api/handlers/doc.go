// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package handlers 提供 AgentRouter HTTP API 的请求处理器实现。

# 核心类型

  - DispatchHandler  — POST /api/v1/dispatch、WebSocket 调度、池与路由表查询
  - AuditHandler     — 调度审计记录与各池计数查询
  - HealthHandler    — 服务健康检查（/health, /healthz, /ready, /version）
  - Response         — 统一 JSON 响应结构（success + data + error + timestamp）
  - ErrorInfo        — 结构化错误信息，含 code、message、retryable 标记
  - ResponseWriter   — 包装 http.ResponseWriter 以捕获状态码

# 错误码到状态码

	INVALID_INPUT / INVALID_REQUEST         400
	UNRECOGNIZED_LABEL                      422
	NO_ROUTE_AND_NO_DEFAULT / UNKNOWN_POOL  404
	DUPLICATE_*                             409
	WORKER_FAILURE / CLASSIFIER_FAILURE     502
	CANCELLED                               504
*/
package handlers
