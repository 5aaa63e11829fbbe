package telegram

import (
	"sync"

	"github.com/journey-ad/telerelay/internal/telegram/forward"
)

// recentCapacity 每个聊天保留的最近消息数
const recentCapacity = 100

// recentCache 按聊天维护的最近消息环形缓冲
// Bot API 不提供历史消息读取，媒体组回溯依赖这里的本地留存
type recentCache struct {
	mu    sync.RWMutex
	chats map[int64][]*forward.Message
}

func newRecentCache() *recentCache {
	return &recentCache{
		chats: make(map[int64][]*forward.Message),
	}
}

// Add 追加一条消息，超出容量时丢弃最旧的
func (c *recentCache) Add(msg *forward.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	buf := append(c.chats[msg.ChatID], msg)
	if len(buf) > recentCapacity {
		buf = buf[len(buf)-recentCapacity:]
	}
	c.chats[msg.ChatID] = buf
}

// Recent 返回指定聊天最近的 limit 条消息（旧到新）
func (c *recentCache) Recent(chatID int64, limit int) []*forward.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()

	buf := c.chats[chatID]
	if limit > 0 && len(buf) > limit {
		buf = buf[len(buf)-limit:]
	}

	out := make([]*forward.Message, len(buf))
	copy(out, buf)
	return out
}
