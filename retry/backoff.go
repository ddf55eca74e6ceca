package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// Policy 定义重试策略配置
type Policy struct {
	MaxRetries   int           `yaml:"max_retries" env:"MAX_RETRIES"`     // 最大重试次数（0 表示不重试）
	InitialDelay time.Duration `yaml:"initial_delay" env:"INITIAL_DELAY"` // 初始延迟时间
	MaxDelay     time.Duration `yaml:"max_delay" env:"MAX_DELAY"`         // 最大延迟时间
	Multiplier   float64       `yaml:"multiplier" env:"MULTIPLIER"`       // 指数退避倍增因子
	Jitter       bool          `yaml:"jitter" env:"JITTER"`               // ±25% 随机抖动

	// ShouldRetry 决定错误是否可重试；为空时所有非 Permanent 错误都重试
	ShouldRetry func(err error) bool `yaml:"-"`
	// OnRetry 每次重试等待前回调
	OnRetry func(attempt int, err error, delay time.Duration) `yaml:"-"`
}

// DefaultPolicy 返回默认的重试策略
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:   2,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// Retryer 重试器接口
type Retryer interface {
	// Do 执行函数，失败时根据策略重试
	Do(ctx context.Context, fn func() error) error

	// DoWithResult 执行函数并返回结果，失败时根据策略重试
	DoWithResult(ctx context.Context, fn func() (any, error)) (any, error)
}

// backoffRetryer 基于指数退避的重试器实现
type backoffRetryer struct {
	policy Policy
	logger *zap.Logger
}

// NewBackoffRetryer 创建指数退避重试器
func NewBackoffRetryer(policy Policy, logger *zap.Logger) Retryer {
	if logger == nil {
		logger = zap.NewNop()
	}

	// 参数校验
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	if policy.InitialDelay <= 0 {
		policy.InitialDelay = 200 * time.Millisecond
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = 5 * time.Second
	}
	if policy.MaxDelay < policy.InitialDelay {
		policy.MaxDelay = policy.InitialDelay
	}
	if policy.Multiplier < 1.0 {
		policy.Multiplier = 2.0
	}

	return &backoffRetryer{
		policy: policy,
		logger: logger.With(zap.String("component", "retry")),
	}
}

// Do 实现 Retryer.Do
func (r *backoffRetryer) Do(ctx context.Context, fn func() error) error {
	_, err := r.DoWithResult(ctx, func() (any, error) {
		return nil, fn()
	})
	return err
}

// DoWithResult 实现 Retryer.DoWithResult
func (r *backoffRetryer) DoWithResult(ctx context.Context, fn func() (any, error)) (any, error) {
	var lastErr error

	for attempt := 0; attempt <= r.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := r.delay(attempt)

			r.logger.Debug("retrying",
				zap.Int("attempt", attempt),
				zap.Int("max_retries", r.policy.MaxRetries),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)
			if r.policy.OnRetry != nil {
				r.policy.OnRetry(attempt, lastErr, delay)
			}

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, fmt.Errorf("retry cancelled: %w", errors.Join(ctx.Err(), lastErr))
			case <-timer.C:
			}
		}

		result, err := fn()
		if err == nil {
			if attempt > 0 {
				r.logger.Info("retry succeeded", zap.Int("attempt", attempt))
			}
			return result, nil
		}
		lastErr = err

		if !r.retryable(err) {
			return nil, unwrapPermanent(err)
		}
	}

	r.logger.Warn("retries exhausted",
		zap.Int("attempts", r.policy.MaxRetries+1),
		zap.Error(lastErr),
	)
	return nil, fmt.Errorf("failed after %d attempts: %w", r.policy.MaxRetries+1, lastErr)
}

// delay 计算第 attempt 次重试前的等待时间
// delay = initial * multiplier^(attempt-1)，截断到 MaxDelay
func (r *backoffRetryer) delay(attempt int) time.Duration {
	d := float64(r.policy.InitialDelay) * math.Pow(r.policy.Multiplier, float64(attempt-1))
	if d > float64(r.policy.MaxDelay) {
		d = float64(r.policy.MaxDelay)
	}
	if r.policy.Jitter {
		d += (rand.Float64()*2 - 1) * d * 0.25
	}
	if d < float64(r.policy.InitialDelay) {
		d = float64(r.policy.InitialDelay)
	}
	return time.Duration(d)
}

func (r *backoffRetryer) retryable(err error) bool {
	if IsPermanent(err) {
		return false
	}
	if r.policy.ShouldRetry == nil {
		return true
	}
	return r.policy.ShouldRetry(err)
}

// PermanentError 标记不应重试的错误
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent 将错误包装为不可重试错误；重试器返回时会剥掉这层包装
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent 检查错误是否被 Permanent 包装
func IsPermanent(err error) bool {
	var p *PermanentError
	return errors.As(err, &p)
}

func unwrapPermanent(err error) error {
	var p *PermanentError
	if errors.As(err, &p) {
		return p.Err
	}
	return err
}
