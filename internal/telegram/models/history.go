package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// HistoryRecord 一次成功转发的历史记录（供历史面板检索/导出）
type HistoryRecord struct {
	ID             primitive.ObjectID `bson:"_id,omitempty"`
	TaskID         string             `bson:"task_id"`          // 转发任务 ID (UUID)
	RuleName       string             `bson:"rule_name"`        // 规则名（改名时需级联更新）
	MessageID      int                `bson:"message_id"`       // 源消息 ID
	SourceChatID   int64              `bson:"source_chat_id"`   // 源聊天 ID
	SourceChatName string             `bson:"source_chat_name"` // 源聊天名称
	SenderID       int64              `bson:"sender_id"`        // 发送者 ID
	SenderName     string             `bson:"sender_name"`      // 发送者名称
	Content        string             `bson:"content"`          // 内容预览
	MediaType      string             `bson:"media_type"`       // 媒体类型
	ForwardedAt    time.Time          `bson:"forwarded_at"`     // 转发时间（TTL 索引）
}
