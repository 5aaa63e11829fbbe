package telegram

import (
	"context"
	"time"
)

// RateLimiter Token Bucket 速率限制器
// 所有出站 API 调用统一过桶，避免触发 Telegram 限流
type RateLimiter struct {
	tokens   chan struct{}
	stopCh   chan struct{}
	interval time.Duration
}

// NewRateLimiter 创建速率限制器
// ratePerSecond: 每秒允许的请求数
func NewRateLimiter(ratePerSecond int) *RateLimiter {
	limiter := &RateLimiter{
		tokens:   make(chan struct{}, ratePerSecond),
		stopCh:   make(chan struct{}),
		interval: time.Second / time.Duration(ratePerSecond),
	}

	for i := 0; i < ratePerSecond; i++ {
		limiter.tokens <- struct{}{}
	}

	go limiter.refill()

	return limiter
}

// Wait 等待获取令牌（阻塞直到有可用令牌或上下文取消）
func (r *RateLimiter) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-r.tokens:
		return nil
	}
}

// refill 定时补充令牌
func (r *RateLimiter) refill() {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			select {
			case r.tokens <- struct{}{}:
			default:
				// 令牌桶已满
			}
		}
	}
}

// Close 关闭速率限制器
func (r *RateLimiter) Close() {
	close(r.stopCh)
}
