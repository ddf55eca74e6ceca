// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 提供 API 与 metrics 两个 HTTP 监听端的生命周期管理。

# 核心类型

  - Manager：单个 http.Server 的非阻塞启动、优雅关闭与异步错误通道。
    配置了证书时使用 tlsutil 的加固 TLS 配置以 HTTPS 启动。
  - Group：同时管理多个 Manager。Wait 在 ctx 结束、收到
    SIGINT/SIGTERM 或任一服务器异常退出时返回，Shutdown 合并关闭错误。
*/
package server
