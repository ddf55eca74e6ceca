// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 migration 管理调度审计表 dispatch_audit 的 Schema 版本，
基于 golang-migrate 实现，支持 PostgreSQL、MySQL 与 SQLite。

# 概述

各方言的 SQL 迁移文件通过 embed.FS 内嵌在 migrations/<dialect>/ 下，
文件名遵循 NNNNNN_name.{up,down}.sql。Migrator 打开一条独立连接
执行迁移，版本记录在 dispatch_schema_migrations 表中。

# 核心类型

  - Migrator：Up/Down/Goto/Force/Version/Status/Info。
  - Runner：Migrator 的操作接口，CLI 依赖它以便替换实现。
  - CLI：agentrouter migrate 子命令的格式化输出。

两种 SQLite 驱动（sqlite 与 sqlite3）共用一套迁移文件，
迁移连接统一走 mattn/go-sqlite3。
*/
package migration
