package main

import (
	"context"
	"crypto/rsa"
	"crypto/subtle"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/agentrouter/api/handlers"
	"github.com/BaSui01/agentrouter/config"
	"github.com/BaSui01/agentrouter/internal/metrics"
	"github.com/BaSui01/agentrouter/types"
)

// Middleware 类型定义
type Middleware func(http.Handler) http.Handler

// Chain 将多个中间件串联，第一个在最外层
func Chain(h http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		if middlewares[i] != nil {
			h = middlewares[i](h)
		}
	}
	return h
}

// publicPaths 不需要认证
var publicPaths = []string{"/health", "/healthz", "/ready", "/readyz", "/version", "/metrics"}

func pathSet(paths []string) map[string]struct{} {
	set := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		set[p] = struct{}{}
	}
	return set
}

// Recovery panic 恢复中间件
func Recovery(logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					logger.Error("panic recovered",
						zap.Any("error", rec),
						zap.String("path", r.URL.Path),
						zap.Stack("stack"),
					)
					handlers.WriteErrorMessage(w, http.StatusInternalServerError, types.ErrInternalError, "internal server error", nil)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// RequestID 为每个请求分配 X-Request-ID（保留客户端传入的值），并写入上下文的 trace id
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Request-ID")
			if id == "" || len(id) > 128 {
				id = uuid.NewString()
			}
			w.Header().Set("X-Request-ID", id)
			next.ServeHTTP(w, r.WithContext(types.WithTraceID(r.Context(), id)))
		})
	}
}

// SecurityHeaders 添加常见安全响应头
func SecurityHeaders() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			h.Set("Content-Security-Policy", "default-src 'none'")
			next.ServeHTTP(w, r)
		})
	}
}

// RequestLogger 请求日志中间件；健康检查只记 debug
func RequestLogger(logger *zap.Logger) Middleware {
	quiet := pathSet(publicPaths)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := handlers.NewResponseWriter(w)
			next.ServeHTTP(rw, r)

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rw.StatusCode),
				zap.Duration("duration", time.Since(start)),
				zap.String("remote_addr", r.RemoteAddr),
			}
			if id, ok := types.TraceID(r.Context()); ok {
				fields = append(fields, zap.String("request_id", id))
			}
			if _, ok := quiet[r.URL.Path]; ok {
				logger.Debug("request", fields...)
				return
			}
			logger.Info("request", fields...)
		})
	}
}

// =============================================================================
// 📊 指标与追踪
// =============================================================================

// knownRoutes 作为指标标签的路径；其余归为 "other" 以限制基数
var knownRoutes = pathSet(append([]string{
	"/api/v1/dispatch", "/api/v1/dispatch/ws",
	"/api/v1/pools", "/api/v1/routes",
	"/api/v1/audit", "/api/v1/audit/pools",
}, publicPaths...))

func routeLabel(path string) string {
	if _, ok := knownRoutes[path]; ok {
		return path
	}
	return "other"
}

// MetricsMiddleware 通过 metrics.Collector 记录请求耗时、状态与大小
func MetricsMiddleware(collector *metrics.Collector) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := handlers.NewResponseWriter(w)
			next.ServeHTTP(rw, r)

			reqSize := r.ContentLength
			if reqSize < 0 {
				reqSize = 0
			}
			collector.RecordHTTPRequest(r.Method, routeLabel(r.URL.Path), rw.StatusCode,
				time.Since(start), reqSize, rw.BytesWritten)
		})
	}
}

// OTelTracing 为每个请求创建 server span，并从请求头提取上游 trace 上下文
func OTelTracing(tracer trace.Tracer) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

			route := routeLabel(r.URL.Path)
			ctx, span := tracer.Start(ctx, r.Method+" "+route,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPRequestMethodKey.String(r.Method),
					semconv.HTTPRoute(route),
					semconv.URLPath(r.URL.Path),
				),
			)
			defer span.End()

			rw := handlers.NewResponseWriter(w)
			next.ServeHTTP(rw, r.WithContext(ctx))

			span.SetAttributes(attribute.Int("http.response.status_code", rw.StatusCode))
			if rw.StatusCode >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(rw.StatusCode))
			}
		})
	}
}

// =============================================================================
// 🌐 CORS 与限流
// =============================================================================

// CORS 跨域中间件；allowedOrigins 为空时不设置任何 CORS 头，预检请求返回 403
func CORS(allowedOrigins []string) Middleware {
	originSet := pathSet(allowedOrigins)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			_, allowed := originSet[origin]
			if origin != "" && allowed {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key, Authorization, X-Request-ID")
				h.Set("Access-Control-Max-Age", "86400")
				h.Add("Vary", "Origin")
			}
			if r.Method == http.MethodOptions && origin != "" {
				if !allowed {
					w.WriteHeader(http.StatusForbidden)
					return
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP 取 RemoteAddr 的主机部分
func clientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// limiterKey 优先按租户（JWTAuth 注入）限流，否则按 IP
func limiterKey(r *http.Request) string {
	if tenant, ok := types.TenantID(r.Context()); ok {
		return "tenant:" + tenant
	}
	return "ip:" + clientIP(r)
}

// RateLimiter 令牌桶限流；每个 key 一个桶，3 分钟未访问的桶由后台协程回收
func RateLimiter(ctx context.Context, rps float64, burst int, key func(*http.Request) string, logger *zap.Logger) Middleware {
	if rps <= 0 {
		return nil
	}
	type visitor struct {
		limiter  *rate.Limiter
		lastSeen time.Time
	}
	var (
		mu       sync.Mutex
		visitors = make(map[string]*visitor)
	)
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				mu.Lock()
				for k, v := range visitors {
					if time.Since(v.lastSeen) > 3*time.Minute {
						delete(visitors, k)
					}
				}
				mu.Unlock()
			}
		}
	}()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := key(r)
			mu.Lock()
			v, ok := visitors[k]
			if !ok {
				v = &visitor{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
				visitors[k] = v
			}
			v.lastSeen = time.Now()
			mu.Unlock()

			if !v.limiter.Allow() {
				logger.Debug("rate limited", zap.String("key", k))
				handlers.WriteErrorMessage(w, http.StatusTooManyRequests, types.ErrRateLimited, "too many requests", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// =============================================================================
// 🔐 认证
// =============================================================================

func unauthorized(w http.ResponseWriter, message string) {
	handlers.WriteErrorMessage(w, http.StatusUnauthorized, types.ErrUnauthorized, message, nil)
}

// APIKeyAuth 校验 X-API-Key（allowQuery 时也接受 ?api_key=）；validKeys 为空时不启用
func APIKeyAuth(validKeys []string, skipPaths []string, allowQuery bool, logger *zap.Logger) Middleware {
	if len(validKeys) == 0 {
		return nil
	}
	keys := make([][]byte, len(validKeys))
	for i, k := range validKeys {
		keys[i] = []byte(k)
	}
	skip := pathSet(skipPaths)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := skip[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}
			key := r.Header.Get("X-API-Key")
			if key == "" && allowQuery {
				key = r.URL.Query().Get("api_key")
			}
			for _, k := range keys {
				if subtle.ConstantTimeCompare([]byte(key), k) == 1 {
					next.ServeHTTP(w, r)
					return
				}
			}
			logger.Debug("api key rejected", zap.String("path", r.URL.Path), zap.String("remote_addr", r.RemoteAddr))
			unauthorized(w, "invalid or missing API key")
		})
	}
}

// JWTAuth 校验 Authorization: Bearer 令牌（HS256 / RS256），
// 并把 tenant_id、user_id、roles 声明写入请求上下文；未配置密钥时不启用
func JWTAuth(cfg config.JWTConfig, skipPaths []string, logger *zap.Logger) (Middleware, error) {
	if !cfg.Enabled() {
		return nil, nil
	}
	skip := pathSet(skipPaths)

	var rsaKey *rsa.PublicKey
	if cfg.PublicKey != "" {
		block, _ := pem.Decode([]byte(cfg.PublicKey))
		if block == nil {
			return nil, fmt.Errorf("jwt public key: no PEM block")
		}
		pub, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("jwt public key: %w", err)
		}
		k, ok := pub.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("jwt public key: not an RSA key")
		}
		rsaKey = k
	}
	secret := []byte(cfg.Secret)

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256", "RS256"}), jwt.WithExpirationRequired()}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	parser := jwt.NewParser(opts...)

	keyFunc := func(token *jwt.Token) (any, error) {
		switch token.Method.Alg() {
		case "HS256":
			if len(secret) == 0 {
				return nil, fmt.Errorf("HMAC secret not configured")
			}
			return secret, nil
		case "RS256":
			if rsaKey == nil {
				return nil, fmt.Errorf("RSA public key not configured")
			}
			return rsaKey, nil
		default:
			return nil, fmt.Errorf("unexpected signing method: %s", token.Method.Alg())
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := skip[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			raw, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !found || raw == "" {
				unauthorized(w, "missing or malformed Authorization header")
				return
			}

			claims := jwt.MapClaims{}
			if _, err := parser.ParseWithClaims(raw, claims, keyFunc); err != nil {
				logger.Debug("jwt validation failed", zap.Error(err))
				unauthorized(w, "invalid or expired token")
				return
			}

			ctx := r.Context()
			if tenant, ok := claims["tenant_id"].(string); ok && tenant != "" {
				ctx = types.WithTenantID(ctx, tenant)
			}
			if user, ok := claims["user_id"].(string); ok && user != "" {
				ctx = types.WithUserID(ctx, user)
			} else if sub, err := claims.GetSubject(); err == nil && sub != "" {
				ctx = types.WithUserID(ctx, sub)
			}
			if rawRoles, ok := claims["roles"].([]any); ok {
				roles := make([]string, 0, len(rawRoles))
				for _, role := range rawRoles {
					if s, ok := role.(string); ok {
						roles = append(roles, s)
					}
				}
				if len(roles) > 0 {
					ctx = types.WithRoles(ctx, roles)
				}
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}, nil
}
