package repository

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/journey-ad/telerelay/internal/telegram/models"
)

type ruleStatsRepository struct {
	collection *mongo.Collection
}

// NewRuleStatsRepository 创建规则统计仓储实例
func NewRuleStatsRepository(db *mongo.Database) RuleStatsRepository {
	return &ruleStatsRepository{
		collection: db.Collection("rule_stats"),
	}
}

// increment 按规则名 upsert 并累加指定字段
func (r *ruleStatsRepository) increment(ctx context.Context, ruleName, field string) error {
	filter := bson.M{"rule_name": ruleName}
	update := bson.M{
		"$inc":         bson.M{field: 1},
		"$setOnInsert": bson.M{"rule_name": ruleName},
	}

	_, err := r.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to increment %s for rule %q: %w", field, ruleName, err)
	}
	return nil
}

// IncrementForwarded 转发成功计数 +1
func (r *ruleStatsRepository) IncrementForwarded(ctx context.Context, ruleName string) error {
	return r.increment(ctx, ruleName, "forwarded_count")
}

// IncrementFiltered 过滤计数 +1
func (r *ruleStatsRepository) IncrementFiltered(ctx context.Context, ruleName string) error {
	return r.increment(ctx, ruleName, "filtered_count")
}

// GetStats 获取单条规则的统计，规则不存在时返回零值
func (r *ruleStatsRepository) GetStats(ctx context.Context, ruleName string) (*models.RuleStats, error) {
	var stats models.RuleStats
	err := r.collection.FindOne(ctx, bson.M{"rule_name": ruleName}).Decode(&stats)
	if err == mongo.ErrNoDocuments {
		return &models.RuleStats{RuleName: ruleName}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stats for rule %q: %w", ruleName, err)
	}
	return &stats, nil
}

// GetAllStats 获取全部规则的统计
func (r *ruleStatsRepository) GetAllStats(ctx context.Context) ([]*models.RuleStats, error) {
	cursor, err := r.collection.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to query rule stats: %w", err)
	}
	defer cursor.Close(ctx)

	var stats []*models.RuleStats
	if err := cursor.All(ctx, &stats); err != nil {
		return nil, fmt.Errorf("failed to decode rule stats: %w", err)
	}
	return stats, nil
}

// ResetStats 清零统计，ruleName 为空时清零全部规则
func (r *ruleStatsRepository) ResetStats(ctx context.Context, ruleName string) error {
	filter := bson.M{}
	if ruleName != "" {
		filter["rule_name"] = ruleName
	}

	update := bson.M{"$set": bson.M{"forwarded_count": 0, "filtered_count": 0}}
	_, err := r.collection.UpdateMany(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to reset stats: %w", err)
	}
	return nil
}

// RenameRule 规则改名时同步统计键
func (r *ruleStatsRepository) RenameRule(ctx context.Context, oldName, newName string) error {
	filter := bson.M{"rule_name": oldName}
	update := bson.M{"$set": bson.M{"rule_name": newName}}

	_, err := r.collection.UpdateMany(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to rename rule stats %q -> %q: %w", oldName, newName, err)
	}
	return nil
}

// DeleteRule 删除规则的统计
func (r *ruleStatsRepository) DeleteRule(ctx context.Context, ruleName string) error {
	_, err := r.collection.DeleteMany(ctx, bson.M{"rule_name": ruleName})
	if err != nil {
		return fmt.Errorf("failed to delete rule stats %q: %w", ruleName, err)
	}
	return nil
}

// EnsureIndexes 确保索引存在
func (r *ruleStatsRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "rule_name", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}

	_, err := r.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create indexes for rule_stats: %w", err)
	}
	return nil
}
