// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 提供基于 Redis 的分类标签缓存。

# 概述

Manager 封装 go-redis 客户端，实现 classifier.LabelStore，
供 CachingClassifier 在多个路由实例之间共享分类结果。
相同文本在 TTL 内只会调用一次分类后端。

# 核心类型

  - Manager：持有 Redis 客户端，提供 Get/Set/Purge/Ping/Close，
    所有键统一加 KeyPrefix 前缀。
  - Config：地址、密码、连接池、默认 TTL、键前缀与健康检查间隔。
  - Stats：本进程命中/未命中计数与 Redis 键数量。

# 主要能力

  - 未命中不是错误：Get 返回 ok=false，分类器直接回源。
  - 健康检查：后台定时 Ping，Close 时退出。
  - Purge：按前缀 SCAN + DEL，用于标签集合变更后清空旧结果。
*/
package cache
