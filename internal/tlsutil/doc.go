// Package tlsutil 提供集中式 TLS 配置，
// 供 API/metrics 服务端与访问模型服务的 HTTP 客户端共用（TLS 1.2+，仅 AEAD 密码套件）。
package tlsutil
