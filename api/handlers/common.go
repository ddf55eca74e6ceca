package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentrouter/dispatch"
	"github.com/BaSui01/agentrouter/types"
)

// maxBodyBytes 单个请求体上限
const maxBodyBytes = 1 << 20

// =============================================================================
// 📦 通用响应结构
// =============================================================================

// Response 统一 API 响应结构
type Response struct {
	Success   bool       `json:"success"`
	Data      any        `json:"data,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
	RequestID string     `json:"request_id,omitempty"`
}

// ErrorInfo 错误信息结构
type ErrorInfo struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
	Retryable  bool   `json:"retryable,omitempty"`
	HTTPStatus int    `json:"-"`
}

// =============================================================================
// 🎯 响应辅助函数
// =============================================================================

// WriteJSON 写入 JSON 响应
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)

	// 头已写出，编码失败也无法再改状态码
	_ = json.NewEncoder(w).Encode(data)
}

// WriteSuccess 写入成功响应
func WriteSuccess(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusOK, Response{
		Success:   true,
		Data:      data,
		Timestamp: time.Now(),
	})
}

// WriteError 写入错误响应（从 types.Error）
func WriteError(w http.ResponseWriter, err *types.Error, logger *zap.Logger) {
	status := StatusFor(err)

	info := &ErrorInfo{
		Code:       string(err.Code),
		Message:    err.Message,
		Retryable:  err.Retryable,
		HTTPStatus: status,
	}
	// 5xx 的底层原因（上游 SDK 错误体等）只进日志
	if err.Cause != nil && status < http.StatusInternalServerError {
		info.Details = err.Cause.Error()
	}

	if logger != nil {
		fields := []zap.Field{
			zap.String("code", string(err.Code)),
			zap.String("message", err.Message),
			zap.Int("status", status),
			zap.Bool("retryable", err.Retryable),
		}
		if err.Cause != nil {
			fields = append(fields, zap.Error(err.Cause))
		}
		if status >= http.StatusInternalServerError {
			logger.Error("API error", fields...)
		} else {
			logger.Warn("API error", fields...)
		}
	}

	WriteJSON(w, status, Response{
		Success:   false,
		Error:     info,
		Timestamp: time.Now(),
	})
}

// WriteErrorMessage 写入简单错误消息
func WriteErrorMessage(w http.ResponseWriter, status int, code types.ErrorCode, message string, logger *zap.Logger) {
	WriteError(w, types.NewError(code, message).WithHTTPStatus(status), logger)
}

// WriteAnyError 写入任意错误；带错误码的错误保留其码，其余视为内部错误
func WriteAnyError(w http.ResponseWriter, err error, logger *zap.Logger) {
	WriteError(w, ToAPIError(err), logger)
}

// ToAPIError 把错误链上的第一个错误码转换为 *types.Error
func ToAPIError(err error) *types.Error {
	if e, ok := types.AsError(err); ok && types.GetErrorCode(err) == e.Code {
		return e
	}
	if wf, ok := dispatch.AsWorkerFailure(err); ok {
		return &types.Error{
			Code: types.ErrWorkerFailure,
			Message: fmt.Sprintf("worker %q in pool %q failed for route %q",
				wf.Worker, wf.Pool, wf.RoutingKey),
			Retryable: true,
			Cause:     wf.Cause,
		}
	}
	var c types.Coder
	if errors.As(err, &c) {
		return &types.Error{
			Code:      c.ErrorCode(),
			Message:   c.Error(),
			Retryable: c.ErrorCode() == types.ErrWorkerFailure,
			Cause:     errors.Unwrap(c),
		}
	}
	return types.NewError(types.ErrInternalError, "internal error").WithCause(err)
}

// =============================================================================
// 🔄 错误码到 HTTP 状态码映射
// =============================================================================

// StatusFor 返回错误应使用的 HTTP 状态码
func StatusFor(err *types.Error) int {
	if err.HTTPStatus != 0 {
		return err.HTTPStatus
	}
	return mapErrorCodeToHTTPStatus(err.Code)
}

func mapErrorCodeToHTTPStatus(code types.ErrorCode) int {
	switch code {
	// 4xx 客户端错误
	case types.ErrInvalidInput, types.ErrInvalidRequest, types.ErrInvalidRoutingKey:
		return http.StatusBadRequest
	case types.ErrUnauthorized:
		return http.StatusUnauthorized
	case types.ErrNoRouteAndNoDefault, types.ErrUnknownPool, types.ErrUnknownWorker:
		return http.StatusNotFound
	case types.ErrDuplicatePool, types.ErrDuplicateRoute, types.ErrDuplicateWorker, types.ErrWorkerAlreadyOwned:
		return http.StatusConflict
	case types.ErrUnrecognizedLabel:
		return http.StatusUnprocessableEntity
	case types.ErrRateLimited:
		return http.StatusTooManyRequests

	// 5xx 服务端错误
	case types.ErrWorkerFailure, types.ErrClassifierFailure:
		return http.StatusBadGateway
	case types.ErrCancelled:
		return http.StatusGatewayTimeout
	case types.ErrEmptyPool, types.ErrInternalError:
		return http.StatusInternalServerError

	default:
		return http.StatusInternalServerError
	}
}

// =============================================================================
// 🛡️ 请求验证辅助函数
// =============================================================================

// DecodeJSONBody 解码 JSON 请求体，1 MB 上限，拒绝未知字段
func DecodeJSONBody(w http.ResponseWriter, r *http.Request, dst any, logger *zap.Logger) error {
	if r.Body == nil || r.Body == http.NoBody {
		err := types.NewError(types.ErrInvalidRequest, "request body is empty")
		WriteError(w, err, logger)
		return err
	}

	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		msg := "invalid JSON body"
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			msg = "request body too large"
			status = http.StatusRequestEntityTooLarge
		}
		apiErr := types.NewError(types.ErrInvalidRequest, msg).
			WithCause(err).
			WithHTTPStatus(status)
		WriteError(w, apiErr, logger)
		return apiErr
	}

	return nil
}

// ValidateContentType 验证 Content-Type 为 application/json（忽略参数与大小写）
func ValidateContentType(w http.ResponseWriter, r *http.Request, logger *zap.Logger) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "Content-Type must be application/json").
			WithHTTPStatus(http.StatusUnsupportedMediaType), logger)
		return false
	}
	return true
}

// =============================================================================
// 📊 响应包装器（用于捕获状态码）
// =============================================================================

// ResponseWriter 包装 http.ResponseWriter 以捕获状态码与写出字节数
type ResponseWriter struct {
	http.ResponseWriter
	StatusCode   int
	Written      bool
	BytesWritten int64
}

// NewResponseWriter 创建新的 ResponseWriter
func NewResponseWriter(w http.ResponseWriter) *ResponseWriter {
	return &ResponseWriter{
		ResponseWriter: w,
		StatusCode:     http.StatusOK,
	}
}

// WriteHeader 只记录第一次写入的状态码
func (rw *ResponseWriter) WriteHeader(code int) {
	if !rw.Written {
		rw.StatusCode = code
		rw.Written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

// Write 重写 Write 以标记已写入
func (rw *ResponseWriter) Write(b []byte) (int, error) {
	if !rw.Written {
		rw.WriteHeader(http.StatusOK)
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.BytesWritten += int64(n)
	return n, err
}

// Unwrap 供 http.ResponseController 访问底层连接（WebSocket 升级需要 Hijacker）
func (rw *ResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
