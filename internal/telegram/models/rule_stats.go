package models

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// RuleStats 单条规则的转发统计计数
type RuleStats struct {
	ID             primitive.ObjectID `bson:"_id,omitempty"`
	RuleName       string             `bson:"rule_name"`       // 规则名（唯一索引，改名时需级联更新）
	ForwardedCount int64              `bson:"forwarded_count"` // 成功转发条数（每条消息计一次，不按目标计）
	FilteredCount  int64              `bson:"filtered_count"`  // 被过滤条数
}

// Total 处理过的消息总数
func (s *RuleStats) Total() int64 {
	return s.ForwardedCount + s.FilteredCount
}
