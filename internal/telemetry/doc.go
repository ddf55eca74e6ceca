// Package telemetry 封装 OpenTelemetry SDK 初始化逻辑，
// 为调度流水线提供 TracerProvider 和 MeterProvider。
// 遥测关闭时返回 noop tracer，不连接任何外部服务。
package telemetry
