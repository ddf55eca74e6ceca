// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 打开调度审计库并管理其连接池。

# 概述

Open 根据 Config.Driver 选择 GORM 方言：postgres、mysql、
sqlite（glebarez 纯 Go 实现）或 sqlite3（mattn，需要 CGO），
随后交给 PoolManager 设置连接池参数并启动后台健康检查。
GORM 自身的日志通过 NewGormLogger 写入 zap。

# 核心类型

  - Config：驱动、DSN 或分项连接参数，以及 PoolConfig。
  - PoolManager：持有 GORM 实例与底层 sql.DB，提供 Ping、GetStats、
    Close 以及事务辅助方法。
  - TransactionFunc：事务回调函数类型。

# 事务重试

WithTransactionRetry 复用 retry 包的指数退避，仅对死锁、序列化失败、
SQLite 锁冲突与连接中断等瞬时错误重试。
*/
package database
