package forward

import (
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/journey-ad/telerelay/internal/logger"
)

// DeduplicateCache 基于内容哈希的滑动窗口去重缓存
// 哈希只求近似同一性，不求抗碰撞
type DeduplicateCache struct {
	mu      sync.Mutex
	window  time.Duration
	entries map[uint64]time.Time
	now     func() time.Time
}

// NewDeduplicateCache 创建去重缓存，window 为去重窗口
func NewDeduplicateCache(window time.Duration) *DeduplicateCache {
	return &DeduplicateCache{
		window:  window,
		entries: make(map[uint64]time.Time),
		now:     time.Now,
	}
}

// IsDuplicate 判定文本是否在窗口内出现过
// 空白文本永远放行；命中不刷新时间戳，连发的重复内容按首次时间过期
func (c *DeduplicateCache) IsDuplicate(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}

	h := fnv.New64a()
	h.Write([]byte(strings.TrimSpace(text)))
	key := h.Sum64()

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, seen := range c.entries {
		if now.Sub(seen) >= c.window {
			delete(c.entries, k)
		}
	}

	if _, ok := c.entries[key]; ok {
		logger.L().Debugf("Duplicate message detected (hash=%x), skipping", key)
		return true
	}

	c.entries[key] = now
	return false
}
