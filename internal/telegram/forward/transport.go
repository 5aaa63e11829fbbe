package forward

import (
	"context"
	"errors"
	"fmt"
	"time"

	botModels "github.com/go-telegram/bot/models"
)

// ErrForwardsRestricted 源聊天策略禁止转发/引用式复制
var ErrForwardsRestricted = errors.New("forwarding restricted by chat policy")

// RateLimitedError 传输层限流信号，RetryAfter 为需等待的时长
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// AsRateLimited 判断错误链中是否包含限流信号
func AsRateLimited(err error) (*RateLimitedError, bool) {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return rl, true
	}
	return nil, false
}

// Display 一条消息的展示上下文（仅用于日志与历史记录）
type Display struct {
	ChatTitle    string // 源聊天标题
	ChatUsername string // 源聊天用户名（公开聊天，用于 t.me 链接）
	SenderName   string // 发送者显示名
}

// LocalFile 下载到本地暂存目录的媒体文件
type LocalFile struct {
	Path string    // 本地路径
	Kind MediaType // 原消息的媒体类型（决定重传方式）
	Name string    // 上传时使用的文件名
}

// Transport 管道对 Telegram 传输层的全部依赖
// 生产实现见 internal/telegram，测试用假实现在各 _test.go 中
type Transport interface {
	// Forward 原生转发（保留"转发自"标记），msgs 属于同一聊天
	Forward(ctx context.Context, target int64, msgs []*Message) error

	// SendText 发送纯文本
	SendText(ctx context.Context, target int64, text string, entities []botModels.MessageEntity, noPreview bool) error

	// SendCopy 引用式复制：复用服务端媒体引用重新发送，caption 附加在首条
	SendCopy(ctx context.Context, target int64, msgs []*Message, caption string, entities []botModels.MessageEntity) error

	// SendFiles 用本地文件重新上传发送，caption 附加在首个文件
	SendFiles(ctx context.Context, target int64, files []LocalFile, caption string, entities []botModels.MessageEntity) error

	// Download 拉取消息媒体到 destDir，返回本地文件
	Download(ctx context.Context, msg *Message, destDir string) (LocalFile, error)

	// RecentMessages 按消息 ID 倒序返回聊天最近的消息（媒体组回查）
	RecentMessages(ctx context.Context, chatID int64, limit int) ([]*Message, error)

	// ResolveDisplay 解析展示上下文，调用方负责超时控制
	ResolveDisplay(ctx context.Context, chatID, senderID int64) (Display, error)

	// OnMessage 注册新消息回调（按源聊天集合过滤），返回注销函数
	OnMessage(chats []int64, handler func(*Message)) (remove func())
}
