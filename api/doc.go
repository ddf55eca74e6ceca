// Package api 定义 AgentRouter HTTP API 的请求/响应类型。
//
// # 端点
//
//   - POST /api/v1/dispatch      分类、路由并交给选中的 worker
//   - GET  /api/v1/dispatch/ws   WebSocket，每个文本帧是一次调度
//   - GET  /api/v1/pools         各池的 worker、游标与选择计数
//   - GET  /api/v1/routes        维度、路由表与默认池
//   - GET  /api/v1/audit         调度审计记录（需启用审计）
//   - GET  /api/v1/audit/pools   各池调度计数（需启用审计）
//   - GET  /health /healthz /ready /version
//
// # 认证
//
// 配置了 API Key 时通过 X-API-Key 请求头传递；配置了 JWT 时使用
// Authorization: Bearer <token>。
package api
