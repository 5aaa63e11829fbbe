package forward

import (
	"sync"
	"time"

	"github.com/journey-ad/telerelay/internal/logger"
)

// inflightTracker 在途消息管道追踪
// 调度器不限制并发，每条消息一个 goroutine；停止时按此等待优雅排空
type inflightTracker struct {
	wg sync.WaitGroup
}

// Go 启动一个消息管道 goroutine，带 panic recovery
func (t *inflightTracker) Go(fn func()) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				logger.L().Errorf("Message pipeline panic recovered: %v", r)
			}
		}()
		fn()
	}()
}

// Drain 等待全部在途管道结束，超时返回 false
func (t *inflightTracker) Drain(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
