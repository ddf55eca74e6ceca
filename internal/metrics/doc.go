// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的路由指标采集，覆盖 HTTP、
分类、轮询选择、调度结果、分类缓存、审计写入与数据库连接。

# 概述

Collector 通过 promauto.With 注册到调用方给定的 Registerer
（为 nil 时使用默认 Registerer），测试可以为每个用例使用独立 Registry。
Collector 同时实现 dispatch.Recorder 与 classifier.CacheRecorder，
由 Dispatcher 和 CachingClassifier 直接驱动。

# 指标

  - http_requests_total / http_request_duration_seconds 等：
    按 method/path/status 分组，状态码归类为 2xx/3xx/4xx/5xx。
  - classifications_total、classification_duration_seconds：按维度与标签。
  - worker_selections_total：按池与工作者，用于观察轮询公平性。
  - dispatches_total、dispatch_duration_seconds：按池与结果状态，
    未解析出池的失败记为 pool="none"。
  - classifier_cache_lookups_total：按维度与 hit/miss。
  - audit_entries、db_connections_open/idle：审计写入与连接池状态。
*/
package metrics
