// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 AgentRouter 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 dispatch、api、
cmd/agentrouter 等上层模块提供统一的错误码与上下文约定，以避免循环依赖。

# 核心类型

  - Error / ErrorCode — 结构化错误，含 HTTP 状态码、Retryable 标记与 Cause 链
  - Coder             — 任何携带 ErrorCode 的错误（如 dispatch.WorkerFailure）

# 错误码

  - 请求级：INVALID_INPUT、UNRECOGNIZED_LABEL、NO_ROUTE_AND_NO_DEFAULT、
    WORKER_FAILURE、CLASSIFIER_FAILURE、CANCELLED
  - 注册表：DUPLICATE_POOL、EMPTY_POOL、UNKNOWN_POOL、DUPLICATE_ROUTE、
    DUPLICATE_WORKER、UNKNOWN_WORKER、WORKER_ALREADY_OWNED、INVALID_ROUTING_KEY
  - 传输层：INVALID_REQUEST、UNAUTHORIZED、RATE_LIMITED、INTERNAL_ERROR

# 主要能力

  - Context 传播：WithTraceID / WithTenantID / WithUserID / WithRoles / WithSessionID
  - 错误工具链：Errorf / AsError / GetErrorCode / IsErrorCode / IsRetryable
*/
package types
