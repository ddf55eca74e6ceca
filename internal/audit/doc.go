// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 audit 将每次调度的结果持久化到 dispatch_audit 表。

# 概述

Writer 实现 dispatch.AuditSink：Dispatcher 结束一次调度后调用
Record，条目进入有界队列，由后台 goroutine 按批次（BatchSize）
或按时间（FlushInterval）写入 Store。队列已满时丢弃条目并计数，
调度路径不会因审计库变慢而阻塞。

Store 基于 GORM，支持 PostgreSQL、MySQL 与 SQLite，
表结构由 internal/migration 管理；开发环境也可调用
Store.AutoMigrate 直接建表。

# 查询

  - List：按池、状态、租户、时间范围过滤，按时间倒序分页。
  - CountByPool：统计各池在时间窗口内的调度次数，用于核对轮询公平性。
*/
package audit
