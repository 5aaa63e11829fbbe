package forward

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/journey-ad/telerelay/internal/logger"
)

const (
	// settleDelay 等待相册其余成员到达传输层的时间
	settleDelay = 500 * time.Millisecond

	// groupCacheTTL 媒体组去重缓存时长，需覆盖最慢的下载+重传
	groupCacheTTL = time.Hour

	// historyLookback 回查最近消息的条数上限
	historyLookback = 50

	// maxGroupSize 单个媒体组收集的成员上限
	maxGroupSize = 10
)

// MediaGroupCollector 媒体组的收集、去重与组级过滤
type MediaGroupCollector struct {
	transport Transport
	ruleName  string
	delay     time.Duration
	ttl       time.Duration

	mu        sync.Mutex
	processed map[string]time.Time
	now       func() time.Time
}

// NewMediaGroupCollector 创建媒体组收集器
func NewMediaGroupCollector(transport Transport, ruleName string) *MediaGroupCollector {
	return &MediaGroupCollector{
		transport: transport,
		ruleName:  ruleName,
		delay:     settleDelay,
		ttl:       groupCacheTTL,
		processed: make(map[string]time.Time),
		now:       time.Now,
	}
}

// Collect 收集消息所属媒体组的全部成员，按消息 ID 升序返回
// 非相册消息直接返回单元素列表；回查失败降级为单条处理，绝不让整次转发失败
func (c *MediaGroupCollector) Collect(ctx context.Context, msg *Message) []*Message {
	if msg.GroupedID == "" {
		return []*Message{msg}
	}

	// 等待相册其余成员到达
	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return []*Message{msg}
		}
	}

	recent, err := c.transport.RecentMessages(ctx, msg.ChatID, historyLookback)
	if err != nil {
		logger.L().Warnf("[%s] Failed to fetch recent messages for media group %s: %v", c.ruleName, msg.GroupedID, err)
		return []*Message{msg}
	}

	var members []*Message
	for _, m := range recent {
		if m.GroupedID == msg.GroupedID {
			members = append(members, m)
		}
		if len(members) >= maxGroupSize {
			break
		}
	}

	if len(members) == 0 {
		return []*Message{msg}
	}

	sort.Slice(members, func(i, j int) bool { return members[i].ID < members[j].ID })
	logger.L().Debugf("[%s] Collected media group %s: %d messages", c.ruleName, msg.GroupedID, len(members))
	return members
}

// ShouldSkip 媒体组去重：相册的每个成员都会触发一次事件，仅首次放行
// 返回 true 时调用方必须直接返回，不得转发
func (c *MediaGroupCollector) ShouldSkip(groupedID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if seen, ok := c.processed[groupedID]; ok && now.Sub(seen) < c.ttl {
		logger.L().Debugf("[%s] Media group %s already processed, skipping", c.ruleName, groupedID)
		return true
	}

	c.processed[groupedID] = now
	for gid, ts := range c.processed {
		if now.Sub(ts) >= c.ttl {
			delete(c.processed, gid)
		}
	}
	return false
}

// GroupShouldForward 组级过滤判定
// 全组无文本的纯媒体相册无条件放行；有文本时任一成员通过即放行（OR 语义）
func (c *MediaGroupCollector) GroupShouldForward(msgs []*Message, filter *MessageFilter, senderID int64) bool {
	hasText := false
	for _, m := range msgs {
		if m.Text != "" {
			hasText = true
			break
		}
	}
	if !hasText {
		return true
	}

	for _, m := range msgs {
		if filter.ShouldForward(m, senderID) {
			return true
		}
	}

	logger.L().Debugf("[%s] Media group %s filtered out", c.ruleName, msgs[0].GroupedID)
	return false
}
