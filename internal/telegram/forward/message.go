package forward

import (
	"strings"

	botModels "github.com/go-telegram/bot/models"
)

// MediaType 消息媒体类型（封闭枚举，入站时由适配层分类一次）
type MediaType string

const (
	MediaText      MediaType = "text"
	MediaPhoto     MediaType = "photo"
	MediaVideo     MediaType = "video"
	MediaDocument  MediaType = "document"
	MediaAudio     MediaType = "audio"
	MediaVoice     MediaType = "voice"
	MediaSticker   MediaType = "sticker"
	MediaAnimation MediaType = "animation"
	MediaWebpage   MediaType = "webpage"
)

// MediaTypes 全部合法的媒体类型
var MediaTypes = []MediaType{
	MediaText, MediaPhoto, MediaVideo, MediaDocument, MediaAudio,
	MediaVoice, MediaSticker, MediaAnimation, MediaWebpage,
}

// MediaRef 服务端媒体引用（引用式复制直接复用，不重新上传字节）
type MediaRef struct {
	FileID   string // Bot API file_id
	UniqueID string // Bot API file_unique_id
	FileName string // 原始文件名（可能为空）
	FileSize int64  // 文件大小（字节），未知为 0
}

// Message 管道内部的消息视图（对本系统只读）
type Message struct {
	ID         int                       // 消息 ID
	ChatID     int64                     // 所属聊天 ID
	GroupedID  string                    // 媒体组 ID，非相册为空
	SenderID   int64                     // 发送者 ID
	Text       string                    // 文本或媒体 caption
	Entities   []botModels.MessageEntity // 格式实体（offset 为 UTF-16 码元）
	Kind       MediaType                 // 分类后的媒体类型
	Media      *MediaRef                 // 媒体引用，text/webpage 为 nil
	Restricted bool                      // 源聊天禁止转发
}

// FileSize 消息携带的文件大小，无文件返回 0
func (m *Message) FileSize() int64 {
	if m.Media == nil {
		return 0
	}
	return m.Media.FileSize
}

// mediaDescription 无文本消息的占位描述（用于预览与历史记录）
func mediaDescription(kind MediaType) string {
	switch kind {
	case MediaText:
		return ""
	default:
		return "[" + string(kind) + "]"
	}
}

// Preview 生成单行内容预览，超长截断
func Preview(m *Message, limit int) string {
	text := m.Text
	if text == "" {
		text = mediaDescription(m.Kind)
	}
	text = strings.ReplaceAll(text, "\n", " ")

	runes := []rune(text)
	if limit > 0 && len(runes) > limit {
		return string(runes[:limit]) + "..."
	}
	return text
}
