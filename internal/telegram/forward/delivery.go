package forward

import (
	"context"
	"errors"
	"fmt"

	botModels "github.com/go-telegram/bot/models"

	"github.com/journey-ad/telerelay/internal/config"
	"github.com/journey-ad/telerelay/internal/logger"
)

// FileSet 一次转发内延迟下载、跨目标复用的本地文件集合
// 同一组消息最多下载一次；清理由创建方负责，恰好一次
type FileSet struct {
	downloader *Downloader
	msgs       []*Message
	fetched    bool
	files      []LocalFile
	dir        string
	err        error
}

// NewFileSet 创建文件集合
func NewFileSet(downloader *Downloader, msgs []*Message) *FileSet {
	return &FileSet{downloader: downloader, msgs: msgs}
}

// Files 首次调用触发下载，之后复用结果
func (fs *FileSet) Files(ctx context.Context) ([]LocalFile, error) {
	if fs.fetched {
		return fs.files, fs.err
	}
	fs.fetched = true
	fs.files, fs.dir, fs.err = fs.downloader.Download(ctx, fs.msgs)
	return fs.files, fs.err
}

// Cleanup 删除暂存子目录（即使没有文件下载成功，目录本身也要删），未下载过则无事发生
func (fs *FileSet) Cleanup() {
	if fs.fetched && fs.dir != "" {
		fs.downloader.Cleanup(fs.dir)
		fs.files = nil
		fs.dir = ""
	}
}

// DeliveryEngine 单目标投递引擎：按规则选择策略并自动降级
type DeliveryEngine struct {
	transport Transport
	ruleName  string
	opts      config.RuleForwarding
}

// NewDeliveryEngine 创建投递引擎
func NewDeliveryEngine(transport Transport, rule *config.ForwardingRule) *DeliveryEngine {
	return &DeliveryEngine{
		transport: transport,
		ruleName:  rule.Name,
		opts:      rule.Forwarding,
	}
}

// Deliver 将消息（组）投递到单个目标
//
// 策略优先级：
//  1. hide_sender      → 引用式复制 + 末尾来源引用块（绝不原生转发）
//  2. 受限 + force_forward → 无条件下载重传
//  3. 受限               → 先引用式复制，任何失败降级为下载重传
//  4. preserve_format    → 原生转发
//  5. 默认               → 引用式复制
//
// 无论走哪个分支，收到"禁止转发"错误都用下载重传对该目标再试一次
// （restricted 标记可能过期，与聊天的实际策略不一致）
func (e *DeliveryEngine) Deliver(ctx context.Context, msgs []*Message, target int64, attr *Attribution, restricted bool, files *FileSet) error {
	var err error
	switch {
	case e.opts.HideSender:
		err = e.sendCopy(ctx, msgs, target, attr)
	case restricted && e.opts.ForceForward:
		return e.sendFiles(ctx, msgs, target, attr, files)
	case restricted:
		if err = e.sendCopy(ctx, msgs, target, attr); err != nil {
			if _, rl := AsRateLimited(err); rl {
				return err
			}
			logger.L().Warnf("[%s] Reference copy to %d failed, falling back to reupload: %v", e.ruleName, target, err)
			return e.sendFiles(ctx, msgs, target, attr, files)
		}
		return nil
	case e.opts.PreserveFormat:
		err = e.transport.Forward(ctx, target, msgs)
	default:
		err = e.sendCopy(ctx, msgs, target, attr)
	}

	if errors.Is(err, ErrForwardsRestricted) {
		logger.L().Warnf("[%s] Target %d rejected forward as restricted, retrying via reupload", e.ruleName, target)
		return e.sendFiles(ctx, msgs, target, attr, files)
	}
	return err
}

// caption 合成投递 caption：hide_sender 走追加引用块，其余走前置来源
func (e *DeliveryEngine) caption(msgs []*Message, attr *Attribution) (string, []botModels.MessageEntity) {
	first := msgs[0]
	if attr == nil {
		return first.Text, first.Entities
	}
	if e.opts.HideSender {
		return attr.AppendTo(first.Text, first.Entities)
	}
	return attr.PrependTo(first.Text, first.Entities)
}

// hasLinkEntity 原文是否自带链接实体
func hasLinkEntity(entities []botModels.MessageEntity) bool {
	for _, e := range entities {
		if e.Type == botModels.MessageEntityTypeURL || e.Type == botModels.MessageEntityTypeTextLink {
			return true
		}
	}
	return false
}

// noPreview 只在来源块的 t.me 链接是唯一链接时禁用预览，原文自带的链接预览照常保留
func (e *DeliveryEngine) noPreview(msgs []*Message, attr *Attribution) bool {
	return attr != nil && !hasLinkEntity(msgs[0].Entities)
}

// sendCopy 引用式复制
func (e *DeliveryEngine) sendCopy(ctx context.Context, msgs []*Message, target int64, attr *Attribution) error {
	text, entities := e.caption(msgs, attr)

	if len(msgs) == 1 && msgs[0].Media == nil {
		if err := e.transport.SendText(ctx, target, text, entities, e.noPreview(msgs, attr)); err != nil {
			return err
		}
	} else {
		if err := e.transport.SendCopy(ctx, target, msgs, text, entities); err != nil {
			return err
		}
	}

	logger.L().Infof("[%s] Copied message to %d", e.ruleName, target)
	return nil
}

// sendFiles 下载重传
func (e *DeliveryEngine) sendFiles(ctx context.Context, msgs []*Message, target int64, attr *Attribution, files *FileSet) error {
	local, err := files.Files(ctx)
	if err != nil {
		return fmt.Errorf("download failed: %w", err)
	}

	text, entities := e.caption(msgs, attr)

	if len(local) == 0 {
		// 没有可下载的媒体，只发文本
		if text == "" {
			return fmt.Errorf("nothing to send: no media downloaded and no text")
		}
		if err := e.transport.SendText(ctx, target, text, entities, e.noPreview(msgs, attr)); err != nil {
			return err
		}
		logger.L().Infof("[%s] Sent text to %d", e.ruleName, target)
		return nil
	}

	logger.L().Infof("[%s] Uploading %d files to %d", e.ruleName, len(local), target)
	if err := e.transport.SendFiles(ctx, target, local, text, entities); err != nil {
		return err
	}

	logger.L().Infof("[%s] Reuploaded message to %d", e.ruleName, target)
	return nil
}
