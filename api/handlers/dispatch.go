package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/BaSui01/agentrouter/api"
	"github.com/BaSui01/agentrouter/dispatch"
	"github.com/BaSui01/agentrouter/types"
)

// wsReadLimit 单个 WebSocket 帧上限，与 HTTP 请求体一致
const wsReadLimit = maxBodyBytes

// =============================================================================
// 🚦 调度 Handler
// =============================================================================

// DispatchHandler 把 HTTP/WebSocket 请求交给路由器
type DispatchHandler struct {
	router   dispatch.Router
	registry *dispatch.Registry
	timeout  time.Duration
	logger   *zap.Logger

	// OriginPatterns WebSocket 允许的跨域来源；为空时只接受同源
	OriginPatterns []string
}

// NewDispatchHandler 创建调度处理器；timeout<=0 表示只受请求上下文约束
func NewDispatchHandler(router dispatch.Router, registry *dispatch.Registry, timeout time.Duration, logger *zap.Logger) *DispatchHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DispatchHandler{
		router:   router,
		registry: registry,
		timeout:  timeout,
		logger:   logger.With(zap.String("handler", "dispatch")),
	}
}

func (h *DispatchHandler) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if h.timeout > 0 {
		return context.WithTimeout(ctx, h.timeout)
	}
	return context.WithCancel(ctx)
}

// run 执行一次调度；会话 ID 写入上下文供下游（审计、worker）读取
func (h *DispatchHandler) run(ctx context.Context, in api.DispatchRequest) (*api.DispatchResponse, error) {
	if strings.TrimSpace(in.Text) == "" {
		return nil, types.NewError(types.ErrInvalidInput, "text is required")
	}
	ctx, cancel := h.withTimeout(ctx)
	defer cancel()
	if in.SessionID != "" {
		ctx = types.WithSessionID(ctx, in.SessionID)
	}

	res, err := h.router.Dispatch(ctx, in.ToRequest())
	if err != nil {
		return nil, err
	}
	out := api.FromResult(res)
	return &out, nil
}

// HandleDispatch 处理 POST /api/v1/dispatch
// @Summary 调度一条客户请求
// @Tags 调度
// @Accept json
// @Produce json
// @Param request body api.DispatchRequest true "调度请求"
// @Success 200 {object} Response{data=api.DispatchResponse}
// @Failure 400 {object} Response
// @Failure 404 {object} Response "无匹配路由且无默认池"
// @Failure 502 {object} Response "worker 失败"
// @Router /api/v1/dispatch [post]
func (h *DispatchHandler) HandleDispatch(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var in api.DispatchRequest
	if err := DecodeJSONBody(w, r, &in, h.logger); err != nil {
		return
	}

	out, err := h.run(r.Context(), in)
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, Response{
		Success:   true,
		Data:      out,
		Timestamp: time.Now(),
		RequestID: out.RequestID,
	})
}

// HandlePools 处理 GET /api/v1/pools
// @Summary 各池状态
// @Tags 路由
// @Produce json
// @Success 200 {object} Response{data=[]dispatch.PoolSnapshot}
// @Router /api/v1/pools [get]
func (h *DispatchHandler) HandlePools(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, h.registry.Pools())
}

// HandleRoutes 处理 GET /api/v1/routes
// @Summary 路由表
// @Tags 路由
// @Produce json
// @Success 200 {object} Response{data=api.RoutesResponse}
// @Router /api/v1/routes [get]
func (h *DispatchHandler) HandleRoutes(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, api.BuildRoutesResponse(h.registry))
}

// =============================================================================
// 🔌 WebSocket
// =============================================================================

// wsSession 单个 WebSocket 连接；写操作加锁，WebSocket 不支持并发写
type wsSession struct {
	conn      *websocket.Conn
	mu        sync.Mutex
	sessionID string
}

func (s *wsSession) send(ctx context.Context, msg api.WSOutbound) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Write(ctx, websocket.MessageText, data)
}

func (s *wsSession) sendError(ctx context.Context, err error) error {
	apiErr := ToAPIError(err)
	return s.send(ctx, api.WSOutbound{
		Type:      api.WSTypeError,
		Error:     &api.WSError{Code: string(apiErr.Code), Message: apiErr.Message},
		Timestamp: time.Now(),
	})
}

// HandleWebSocket 处理 GET /api/v1/dispatch/ws
//
// 每个文本帧是一条 api.WSInbound，按到达顺序逐条调度并回写 result 或
// error 帧。查询参数 session_id 设定连接级会话 ID。
func (h *DispatchHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.OriginPatterns})
	if err != nil {
		// Accept 已写出错误响应
		h.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	conn.SetReadLimit(wsReadLimit)

	sess := &wsSession{conn: conn, sessionID: r.URL.Query().Get("session_id")}
	ctx := r.Context()
	h.logger.Debug("websocket connected", zap.String("session_id", sess.sessionID))

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || errors.Is(err, context.Canceled) {
				h.logger.Debug("websocket closed", zap.String("session_id", sess.sessionID))
			} else {
				h.logger.Warn("websocket read failed", zap.Error(err))
			}
			conn.Close(websocket.StatusNormalClosure, "")
			return
		}
		if typ != websocket.MessageText {
			conn.Close(websocket.StatusUnsupportedData, "text frames only")
			return
		}

		var in api.WSInbound
		if err := json.Unmarshal(data, &in); err != nil {
			if werr := sess.sendError(ctx, types.NewError(types.ErrInvalidRequest, "invalid JSON frame").WithCause(err)); werr != nil {
				return
			}
			continue
		}
		if in.Type != "" && in.Type != api.WSTypeDispatch {
			if werr := sess.sendError(ctx, types.Errorf(types.ErrInvalidRequest, "unsupported message type %q", in.Type)); werr != nil {
				return
			}
			continue
		}
		if in.SessionID == "" {
			in.SessionID = sess.sessionID
		}

		out, err := h.run(ctx, api.DispatchRequest{Text: in.Text, SessionID: in.SessionID, Metadata: in.Metadata})
		if err != nil {
			if werr := sess.sendError(ctx, err); werr != nil {
				return
			}
			continue
		}
		if err := sess.send(ctx, api.WSOutbound{Type: api.WSTypeResult, Result: out, Timestamp: time.Now()}); err != nil {
			h.logger.Warn("websocket write failed", zap.Error(err))
			return
		}
	}
}
