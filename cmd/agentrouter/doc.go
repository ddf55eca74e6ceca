/*
Package main 提供 AgentRouter 服务端程序入口。

# 概述

cmd/agentrouter 是路由器的可执行入口，提供 HTTP/WebSocket 调度服务、
本地调度、路由表查看、审计库迁移、健康检查和版本查询等子命令。

# 核心类型

  - Server      — 组装遥测、指标、Redis 缓存、审计库与路由器，管理 API 与 Metrics 双端口
  - Middleware  — HTTP 中间件函数签名 func(http.Handler) http.Handler

# 主要能力

  - 子命令：serve、dispatch（--demo 运行示例请求）、routes、migrate、version、health
  - 中间件链：Recovery、RequestID、SecurityHeaders、OTelTracing、Metrics、
    RequestLogger、CORS、APIKeyAuth、JWTAuth、RateLimiter（按租户或 IP）
  - Metrics 服务器：独立端口暴露 /metrics（独立 Prometheus Registry）
  - 优雅关闭：信号监听 → 关闭 HTTP 与 Metrics → 刷新审计 → 关闭数据库与 Redis → 关闭遥测
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
