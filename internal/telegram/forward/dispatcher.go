package forward

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/journey-ad/telerelay/internal/logger"
)

// Dispatcher 中央调度器：每条新消息事件恰好经过一次
// 展示上下文只解析一次，供所有规则共享
type Dispatcher struct {
	transport     Transport
	forwarders    []*RuleForwarder
	byChat        map[int64][]*RuleForwarder
	entityTimeout time.Duration
}

// NewDispatcher 创建调度器并建立 源聊天 → 规则 索引
func NewDispatcher(transport Transport, forwarders []*RuleForwarder, entityTimeout time.Duration) *Dispatcher {
	d := &Dispatcher{
		transport:     transport,
		forwarders:    forwarders,
		byChat:        make(map[int64][]*RuleForwarder),
		entityTimeout: entityTimeout,
	}
	for _, f := range forwarders {
		for _, chatID := range f.Rule().SourceChats {
			d.byChat[chatID] = append(d.byChat[chatID], f)
		}
	}
	return d
}

// SourceChats 全部规则的源聊天并集（传输层按此注册事件流）
func (d *Dispatcher) SourceChats() []int64 {
	chats := make([]int64, 0, len(d.byChat))
	for chatID := range d.byChat {
		chats = append(chats, chatID)
	}
	return chats
}

// Dispatch 处理一条新消息事件
//
// 媒体组成员无条件交给规则管道（文本可能在组内任一成员上，单条消息不足以判定）；
// 普通消息同步过滤，未命中任何规则时只输出一条汇总日志，不逐规则刷屏。
func (d *Dispatcher) Dispatch(ctx context.Context, msg *Message) {
	rules := d.byChat[msg.ChatID]
	if len(rules) == 0 {
		return
	}

	display := d.resolveDisplay(ctx, msg)

	logger.L().Infof("Message received from %s (%d), sender %s (%d): %q",
		display.ChatTitle, msg.ChatID, display.SenderName, msg.SenderID, Preview(msg, previewLength))

	var matched []*RuleForwarder
	var filteredBy []string
	for _, f := range rules {
		if msg.GroupedID != "" {
			matched = append(matched, f)
		} else if f.Filter().ShouldForward(msg, msg.SenderID) {
			matched = append(matched, f)
		} else {
			filteredBy = append(filteredBy, f.Rule().Name)
			f.MarkFiltered(ctx)
		}
	}

	if len(matched) == 0 {
		logger.L().Debugf("Message filtered by all rules: [%s]", strings.Join(filteredBy, ", "))
		return
	}

	for _, f := range matched {
		f.Handle(ctx, msg, display)
	}
}

// resolveDisplay 带超时解析展示上下文，超时/失败用占位符，绝不阻塞管道
func (d *Dispatcher) resolveDisplay(ctx context.Context, msg *Message) Display {
	rctx, cancel := context.WithTimeout(ctx, d.entityTimeout)
	defer cancel()

	display, err := d.transport.ResolveDisplay(rctx, msg.ChatID, msg.SenderID)
	if err != nil {
		logger.L().Debugf("Failed to resolve display context for chat %d: %v", msg.ChatID, err)
		return Display{
			ChatTitle:  strconv.FormatInt(msg.ChatID, 10),
			SenderName: strconv.FormatInt(msg.SenderID, 10),
		}
	}

	if display.ChatTitle == "" {
		display.ChatTitle = strconv.FormatInt(msg.ChatID, 10)
	}
	if display.SenderName == "" {
		display.SenderName = strconv.FormatInt(msg.SenderID, 10)
	}
	return display
}
