// Package config 提供 AgentRouter 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → 环境变量 的顺序叠加。环境变量统一使用
// AGENTROUTER_ 前缀，例如 AGENTROUTER_SERVER_HTTP_PORT、
// AGENTROUTER_ROUTING_DEFAULT_POOL。维度、池和路由表这类列表只能在
// YAML 中配置。
//
// 默认配置即 FinTechCorp 客服拓扑：urgency × topic 两个维度，
// 四个团队池，三条紧急专项路由，其余请求进入 general_team。
package config
