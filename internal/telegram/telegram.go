package telegram

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/journey-ad/telerelay/internal/config"
	"github.com/journey-ad/telerelay/internal/logger"
	"github.com/journey-ad/telerelay/internal/telegram/forward"

	"github.com/go-telegram/bot"
	botModels "github.com/go-telegram/bot/models"
)

// displayCacheTTL 聊天展示信息缓存时长
const displayCacheTTL = 10 * time.Minute

// Config Telegram Bot 配置
type Config struct {
	Token         string // Bot Token
	RatePerSecond int    // 出站 API 调用速率上限
	Debug         bool   // 是否开启调试模式
}

// Bot Telegram Bot 服务，同时实现 forward.Transport
type Bot struct {
	bot     *bot.Bot
	limiter *RateLimiter
	display *displayCache
	recent  *recentCache

	mu      sync.RWMutex
	watched map[int64]bool
	handler func(*forward.Message)
}

// New 创建 Telegram Bot 实例
func New(cfg Config) (*Bot, error) {
	// 验证配置
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram token cannot be empty")
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 30
	}

	telegramBot := &Bot{
		limiter: NewRateLimiter(cfg.RatePerSecond),
		display: newDisplayCache(displayCacheTTL),
		recent:  newRecentCache(),
		watched: make(map[int64]bool),
	}

	// 创建 bot 实例
	opts := []bot.Option{
		bot.WithDefaultHandler(telegramBot.onUpdate),
	}
	if cfg.Debug {
		opts = append(opts, bot.WithDebug())
	}

	b, err := bot.New(cfg.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	telegramBot.bot = b

	logger.L().Info("Telegram bot initialized successfully")
	return telegramBot, nil
}

// InitFromConfig 从应用配置初始化 Telegram Bot
func InitFromConfig(cfg *config.Config) (*Bot, error) {
	return New(Config{
		Token:         cfg.TelegramToken,
		RatePerSecond: cfg.SendRatePerSecond,
		Debug:         false,
	})
}

// Start 启动 Bot（阻塞式，应在 goroutine 中运行）
func (b *Bot) Start(ctx context.Context) error {
	logger.L().Info("Starting Telegram bot...")
	b.bot.Start(ctx)
	logger.L().Info("Telegram bot stopped")
	return nil
}

// Close 释放资源
func (b *Bot) Close() {
	b.limiter.Close()
}

// OnMessage 注册新消息回调，返回注销函数
// 同一时刻只有一个转发管道在消费消息
func (b *Bot) OnMessage(chats []int64, handler func(*forward.Message)) (remove func()) {
	b.mu.Lock()
	b.watched = make(map[int64]bool, len(chats))
	for _, chatID := range chats {
		b.watched[chatID] = true
	}
	b.handler = handler
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		b.watched = make(map[int64]bool)
		b.handler = nil
		b.mu.Unlock()
	}
}

// onUpdate 处理入站更新：转换消息、写入最近消息缓存、交给管道
func (b *Bot) onUpdate(ctx context.Context, _ *bot.Bot, update *botModels.Update) {
	raw := update.Message
	if raw == nil {
		raw = update.ChannelPost
	}
	if raw == nil {
		return
	}

	b.mu.RLock()
	watched := b.watched[raw.Chat.ID]
	handler := b.handler
	b.mu.RUnlock()

	if !watched {
		return
	}

	msg := convertMessage(raw)
	b.recent.Add(msg)

	if handler != nil {
		handler(msg)
	}
}

// convertMessage 将 Bot API 消息转换为管道内部视图
func convertMessage(raw *botModels.Message) *forward.Message {
	text := raw.Text
	entities := raw.Entities
	if text == "" && raw.Caption != "" {
		text = raw.Caption
		entities = raw.CaptionEntities
	}

	kind, media := classifyMedia(raw, entities)

	var senderID int64
	if raw.From != nil {
		senderID = raw.From.ID
	} else if raw.SenderChat != nil {
		senderID = raw.SenderChat.ID
	}

	return &forward.Message{
		ID:         raw.ID,
		ChatID:     raw.Chat.ID,
		GroupedID:  raw.MediaGroupID,
		SenderID:   senderID,
		Text:       text,
		Entities:   entities,
		Kind:       kind,
		Media:      media,
		Restricted: raw.HasProtectedContent,
	}
}

// classifyMedia 媒体分类（动画优先于文档判断，Bot API 会同时填充两者）
// entities 取正文或说明文字回退后的生效实体
func classifyMedia(raw *botModels.Message, entities []botModels.MessageEntity) (forward.MediaType, *forward.MediaRef) {
	switch {
	case len(raw.Photo) > 0:
		// 取最大尺寸的一档
		p := raw.Photo[len(raw.Photo)-1]
		return forward.MediaPhoto, &forward.MediaRef{
			FileID:   p.FileID,
			UniqueID: p.FileUniqueID,
			FileSize: int64(p.FileSize),
		}
	case raw.Animation != nil:
		a := raw.Animation
		return forward.MediaAnimation, &forward.MediaRef{
			FileID:   a.FileID,
			UniqueID: a.FileUniqueID,
			FileName: a.FileName,
			FileSize: int64(a.FileSize),
		}
	case raw.Video != nil:
		v := raw.Video
		return forward.MediaVideo, &forward.MediaRef{
			FileID:   v.FileID,
			UniqueID: v.FileUniqueID,
			FileName: v.FileName,
			FileSize: int64(v.FileSize),
		}
	case raw.Document != nil:
		d := raw.Document
		return forward.MediaDocument, &forward.MediaRef{
			FileID:   d.FileID,
			UniqueID: d.FileUniqueID,
			FileName: d.FileName,
			FileSize: int64(d.FileSize),
		}
	case raw.Audio != nil:
		a := raw.Audio
		return forward.MediaAudio, &forward.MediaRef{
			FileID:   a.FileID,
			UniqueID: a.FileUniqueID,
			FileName: a.FileName,
			FileSize: int64(a.FileSize),
		}
	case raw.Voice != nil:
		v := raw.Voice
		return forward.MediaVoice, &forward.MediaRef{
			FileID:   v.FileID,
			UniqueID: v.FileUniqueID,
			FileSize: int64(v.FileSize),
		}
	case raw.Sticker != nil:
		s := raw.Sticker
		return forward.MediaSticker, &forward.MediaRef{
			FileID:   s.FileID,
			UniqueID: s.FileUniqueID,
			FileSize: int64(s.FileSize),
		}
	case hasURLEntity(entities):
		return forward.MediaWebpage, nil
	default:
		return forward.MediaText, nil
	}
}

// hasURLEntity 文本是否携带链接（视为网页预览消息）
func hasURLEntity(entities []botModels.MessageEntity) bool {
	for _, e := range entities {
		if e.Type == botModels.MessageEntityTypeURL || e.Type == botModels.MessageEntityTypeTextLink {
			return true
		}
	}
	return false
}
