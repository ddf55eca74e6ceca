// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 factory 把 config.Config 装配成可用的调度器。

Build 依次完成：按维度配置生成标签 schema；按 kind 创建工作者并注册池；
登记路由与默认池；创建分类后端（keyword 或 openai），需要时套上
内存或 Redis 缓存；最后组装 dispatch.Dispatcher，启用重试时再包一层
dispatch.RetryingDispatcher。

配置中的拓扑错误（重复池、空池、未知池、重复路由）在 Build 时
直接返回，进程不应带着错误的路由表启动。
*/
package factory
