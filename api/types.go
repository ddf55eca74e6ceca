package api

import (
	"time"

	"github.com/BaSui01/agentrouter/dispatch"
)

// =============================================================================
// 调度请求/响应
// =============================================================================

// DispatchRequest 一次调度请求
// @Description 调度请求结构
type DispatchRequest struct {
	// 客户问题原文
	Text string `json:"text" example:"Someone used my credit card without permission!" binding:"required"`
	// 会话 ID，原样透传给 worker
	SessionID string `json:"session_id,omitempty" example:"sess-42"`
	// 自定义元数据
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ToRequest 转换为 dispatch.Request
func (r DispatchRequest) ToRequest() *dispatch.Request {
	return &dispatch.Request{
		Text:      r.Text,
		SessionID: r.SessionID,
		Metadata:  r.Metadata,
	}
}

// DispatchResponse 一次调度的结果
// @Description 调度结果结构
type DispatchResponse struct {
	RequestID string `json:"request_id" example:"3f1c..."`
	// worker 的回复
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
	// 路由键，例如 "urgent|credit_card"
	RoutingKey string            `json:"routing_key" example:"urgent|credit_card"`
	Labels     map[string]string `json:"labels"`
	Pool       string            `json:"pool" example:"credit_card_team"`
	Worker     string            `json:"worker" example:"credit_card_agent_1"`
	DurationMS int64             `json:"duration_ms"`
}

// FromResult 由 dispatch.Result 构建响应
func FromResult(res *dispatch.Result) DispatchResponse {
	out := DispatchResponse{
		RequestID:  res.RequestID,
		RoutingKey: res.RoutingKey.String(),
		Labels:     make(map[string]string, len(res.Labels)),
		Pool:       res.Pool,
		Worker:     res.Worker,
		DurationMS: res.Duration.Milliseconds(),
	}
	if res.Response != nil {
		out.Content = res.Response.Content
		out.Metadata = res.Response.Metadata
	}
	for dim, l := range res.Labels {
		out.Labels[dim] = string(l)
	}
	return out
}

// =============================================================================
// 路由表
// =============================================================================

// DimensionInfo 分类维度
type DimensionInfo struct {
	Name   string   `json:"name" example:"urgency"`
	Labels []string `json:"labels"`
}

// RouteInfo 路由表中的一条
type RouteInfo struct {
	Key  string `json:"key" example:"urgent|loan"`
	Pool string `json:"pool" example:"loan_team"`
}

// RoutesResponse 路由表视图
type RoutesResponse struct {
	Dimensions  []DimensionInfo `json:"dimensions"`
	Routes      []RouteInfo     `json:"routes"`
	DefaultPool string          `json:"default_pool,omitempty"`
}

// BuildRoutesResponse 读取注册表生成路由表视图
func BuildRoutesResponse(reg *dispatch.Registry) RoutesResponse {
	out := RoutesResponse{}
	for _, d := range reg.Schema() {
		out.Dimensions = append(out.Dimensions, DimensionInfo{Name: d.Name, Labels: d.Strings()})
	}
	for _, r := range reg.Routes() {
		out.Routes = append(out.Routes, RouteInfo{Key: r.Key.String(), Pool: r.Pool})
	}
	if name, ok := reg.DefaultPool(); ok {
		out.DefaultPool = name
	}
	return out
}

// =============================================================================
// WebSocket 消息
// =============================================================================

// WSMessageType WebSocket 消息类型
type WSMessageType string

const (
	WSTypeDispatch WSMessageType = "dispatch"
	WSTypeResult   WSMessageType = "result"
	WSTypeError    WSMessageType = "error"
)

// WSInbound 客户端发来的一帧
type WSInbound struct {
	Type WSMessageType `json:"type,omitempty"`
	Text string        `json:"text"`
	// 为空时沿用连接级的 session_id
	SessionID string            `json:"session_id,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// WSOutbound 服务端发出的一帧
type WSOutbound struct {
	Type      WSMessageType     `json:"type"`
	Result    *DispatchResponse `json:"result,omitempty"`
	Error     *WSError          `json:"error,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// WSError WebSocket 中的错误
type WSError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
