package telegram

import (
	"sync"
	"time"
)

// chatInfo 聊天展示信息（标题 + 用户名）
type chatInfo struct {
	Title    string
	Username string
}

// displayCacheItem 缓存项
type displayCacheItem struct {
	info      chatInfo
	expiresAt time.Time
}

// displayCache 聊天展示信息缓存（带 TTL）
// 避免每条消息都调用 getChat
type displayCache struct {
	mu    sync.RWMutex
	items map[int64]displayCacheItem
	ttl   time.Duration
}

func newDisplayCache(ttl time.Duration) *displayCache {
	return &displayCache{
		items: make(map[int64]displayCacheItem),
		ttl:   ttl,
	}
}

// Get 获取缓存，过期视为未命中
func (c *displayCache) Get(chatID int64) (chatInfo, bool) {
	c.mu.RLock()
	item, ok := c.items[chatID]
	c.mu.RUnlock()

	if !ok || time.Now().After(item.expiresAt) {
		return chatInfo{}, false
	}
	return item.info, true
}

// Set 写入缓存，顺带清理少量过期项
func (c *displayCache) Set(chatID int64, info chatInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	cleaned := 0
	for id, item := range c.items {
		if now.After(item.expiresAt) {
			delete(c.items, id)
			cleaned++
			if cleaned >= 16 {
				break
			}
		}
	}

	c.items[chatID] = displayCacheItem{
		info:      info,
		expiresAt: now.Add(c.ttl),
	}
}
