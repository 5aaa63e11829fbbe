package forward

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/journey-ad/telerelay/internal/config"
	"github.com/journey-ad/telerelay/internal/logger"
	"github.com/journey-ad/telerelay/internal/telegram/models"
)

const previewLength = 50

// Recorder 统计/历史持久化协作方
// 由应用层适配到 repository，测试中用内存假实现
type Recorder interface {
	IncrementForwarded(ctx context.Context, ruleName string) error
	IncrementFiltered(ctx context.Context, ruleName string) error
	InsertHistory(ctx context.Context, record *models.HistoryRecord) error
}

// Stats 单规则的运行期计数器
// 多条消息的管道可能并发命中同一规则，必须原子递增
type Stats struct {
	forwarded atomic.Int64
	filtered  atomic.Int64
}

// Forwarded 成功转发条数
func (s *Stats) Forwarded() int64 { return s.forwarded.Load() }

// Filtered 被过滤条数
func (s *Stats) Filtered() int64 { return s.filtered.Load() }

// RuleForwarder 单条规则的完整转发管道
// 持有该规则的过滤器、去重缓存、媒体组收集器与投递引擎
type RuleForwarder struct {
	rule       config.ForwardingRule
	transport  Transport
	filter     *MessageFilter
	dedup      *DeduplicateCache
	collector  *MediaGroupCollector
	downloader *Downloader
	engine     *DeliveryEngine
	recorder   Recorder
	stats      Stats
}

// NewRuleForwarder 按规则组装转发管道
func NewRuleForwarder(rule config.ForwardingRule, transport Transport, recorder Recorder) *RuleForwarder {
	f := &RuleForwarder{
		rule:       rule,
		transport:  transport,
		filter:     NewMessageFilter(&rule),
		collector:  NewMediaGroupCollector(transport, rule.Name),
		downloader: NewDownloader(transport, rule.Name),
		engine:     NewDeliveryEngine(transport, &rule),
		recorder:   recorder,
	}
	if rule.Dedup.Enabled {
		f.dedup = NewDeduplicateCache(rule.DedupWindow())
	}
	return f
}

// Rule 返回规则配置
func (f *RuleForwarder) Rule() config.ForwardingRule { return f.rule }

// Filter 返回编译后的过滤器（调度器对单条消息同步求值用）
func (f *RuleForwarder) Filter() *MessageFilter { return f.filter }

// Stats 返回运行期计数器
func (f *RuleForwarder) Stats() *Stats { return &f.stats }

// MarkFiltered 过滤计数 +1 并同步持久化
func (f *RuleForwarder) MarkFiltered(ctx context.Context) {
	f.stats.filtered.Add(1)
	if err := f.recorder.IncrementFiltered(ctx, f.rule.Name); err != nil {
		logger.L().Errorf("[%s] Failed to persist filtered count: %v", f.rule.Name, err)
	}
}

// Handle 处理一条已通过（或待组级判定的）消息
//
// 管道顺序：组装媒体组 → 组去重 → 组级过滤 → 文本去重 → 预下载 → 逐目标投递 → 清理 → 统计。
// 传输层限流只影响被限流的那一次目标投递：等待后对同一目标重试一次，
// 再被限流按该目标失败处理，已成功的目标不会被重复投递。
func (f *RuleForwarder) Handle(ctx context.Context, msg *Message, display Display) {
	msgs := f.collector.Collect(ctx, msg)
	isGroup := len(msgs) > 1

	if isGroup && f.collector.ShouldSkip(msg.GroupedID) {
		return
	}

	if isGroup && !f.collector.GroupShouldForward(msgs, f.filter, msg.SenderID) {
		f.MarkFiltered(ctx)
		return
	}

	if f.dedup != nil && f.dedup.IsDuplicate(groupText(msgs)) {
		logger.L().Debugf("[%s] Duplicate content filtered", f.rule.Name)
		f.MarkFiltered(ctx)
		return
	}

	if err := f.deliverAll(ctx, msgs, msg, display); err != nil {
		logger.L().Errorf("[%s] Forward failed: %v", f.rule.Name, err)
	}
}

// deliverAll 逐目标投递并记录结果
// 单个目标失败只影响自己；限流在目标内等待后重试一次，不回滚已成功的目标
func (f *RuleForwarder) deliverAll(ctx context.Context, msgs []*Message, trigger *Message, display Display) error {
	targets := f.rule.TargetChats
	if len(targets) == 0 {
		logger.L().Errorf("[%s] No target chats configured", f.rule.Name)
		return nil
	}

	files := NewFileSet(f.downloader, msgs)
	defer files.Cleanup()

	restricted := trigger.Restricted

	// 受限 + force_forward：预下载一次，所有目标复用，避免逐目标重复下载
	if restricted && f.rule.Forwarding.ForceForward {
		local, err := files.Files(ctx)
		if err != nil {
			return err
		}
		if len(local) == 0 && groupText(msgs) == "" {
			logger.L().Errorf("[%s] Download produced no files, nothing to forward", f.rule.Name)
			return nil
		}
	}

	var attr *Attribution
	if f.rule.Forwarding.AddSourceInfo || f.rule.Forwarding.HideSender {
		attr = BuildAttribution(trigger, display)
	}

	successCount := 0
delivery:
	for i, target := range targets {
		err := f.engine.Deliver(ctx, msgs, target, attr, restricted, files)
		if rl, ok := AsRateLimited(err); ok {
			logger.L().Warnf("[%s] Rate limited on target %d, pausing for %s", f.rule.Name, target, rl.RetryAfter)
			select {
			case <-time.After(rl.RetryAfter):
				err = f.engine.Deliver(ctx, msgs, target, attr, restricted, files)
			case <-ctx.Done():
				break delivery
			}
		}
		if err != nil {
			logger.L().Errorf("[%s] Failed to deliver to %d: %v", f.rule.Name, target, err)
			continue
		}
		successCount++

		if delay := f.rule.DelayDuration(); delay > 0 && i < len(targets)-1 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				break delivery
			}
		}
	}

	preview := Preview(trigger, previewLength)
	if successCount == 0 {
		logger.L().Errorf("[%s] Forward failed for all %d targets: %q", f.rule.Name, len(targets), preview)
		return nil
	}

	// 成功转发按消息计一次，不按目标计
	f.stats.forwarded.Add(1)
	if err := f.recorder.IncrementForwarded(ctx, f.rule.Name); err != nil {
		logger.L().Errorf("[%s] Failed to persist forwarded count: %v", f.rule.Name, err)
	}

	record := &models.HistoryRecord{
		TaskID:         uuid.New().String(),
		RuleName:       f.rule.Name,
		MessageID:      trigger.ID,
		SourceChatID:   trigger.ChatID,
		SourceChatName: display.ChatTitle,
		SenderID:       trigger.SenderID,
		SenderName:     display.SenderName,
		Content:        preview,
		MediaType:      string(trigger.Kind),
		ForwardedAt:    time.Now().UTC(),
	}
	if err := f.recorder.InsertHistory(ctx, record); err != nil {
		logger.L().Errorf("[%s] Failed to persist history record: %v", f.rule.Name, err)
	}

	logger.L().Infof("[%s] Forwarded %q to %d/%d targets (total: %d)",
		f.rule.Name, preview, successCount, len(targets), f.stats.Forwarded())
	return nil
}

// groupText 取首个携带文本的成员的文本
func groupText(msgs []*Message) string {
	for _, m := range msgs {
		if m.Text != "" {
			return m.Text
		}
	}
	return ""
}
