package repository

import (
	"context"

	"github.com/journey-ad/telerelay/internal/telegram/models"
)

// RuleStatsRepository 规则统计数据访问接口
type RuleStatsRepository interface {
	// IncrementForwarded 转发成功计数 +1
	IncrementForwarded(ctx context.Context, ruleName string) error

	// IncrementFiltered 过滤计数 +1
	IncrementFiltered(ctx context.Context, ruleName string) error

	// GetStats 获取单条规则的统计
	GetStats(ctx context.Context, ruleName string) (*models.RuleStats, error)

	// GetAllStats 获取全部规则的统计
	GetAllStats(ctx context.Context) ([]*models.RuleStats, error)

	// ResetStats 清零统计，ruleName 为空时清零全部规则
	ResetStats(ctx context.Context, ruleName string) error

	// RenameRule 规则改名时同步统计键
	RenameRule(ctx context.Context, oldName, newName string) error

	// DeleteRule 删除规则的统计
	DeleteRule(ctx context.Context, ruleName string) error

	// EnsureIndexes 确保索引存在
	EnsureIndexes(ctx context.Context) error
}

// HistoryRepository 转发历史数据访问接口
type HistoryRepository interface {
	// Insert 写入一条转发历史
	Insert(ctx context.Context, record *models.HistoryRecord) error

	// Query 按规则名/关键词检索历史，按转发时间倒序分页
	Query(ctx context.Context, ruleName, keyword string, limit, offset int64) ([]*models.HistoryRecord, int64, error)

	// RenameRule 规则改名时同步历史键
	RenameRule(ctx context.Context, oldName, newName string) error

	// DeleteRule 删除规则的全部历史
	DeleteRule(ctx context.Context, ruleName string) error

	// EnsureIndexes 确保索引存在
	EnsureIndexes(ctx context.Context) error
}
