package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/journey-ad/telerelay/internal/telegram/models"
)

type historyRepository struct {
	collection *mongo.Collection
	retention  time.Duration
}

// NewHistoryRepository 创建转发历史仓储实例
// retention 决定 TTL 索引的过期时间
func NewHistoryRepository(db *mongo.Database, retention time.Duration) HistoryRepository {
	return &historyRepository{
		collection: db.Collection("forward_history"),
		retention:  retention,
	}
}

// Insert 写入一条转发历史
func (r *historyRepository) Insert(ctx context.Context, record *models.HistoryRecord) error {
	if record.ForwardedAt.IsZero() {
		record.ForwardedAt = time.Now().UTC()
	}

	_, err := r.collection.InsertOne(ctx, record)
	if err != nil {
		return fmt.Errorf("failed to insert history record: %w", err)
	}
	return nil
}

// Query 按规则名/关键词检索历史，按转发时间倒序分页
// 返回值第二项为满足条件的总条数（供分页）
func (r *historyRepository) Query(ctx context.Context, ruleName, keyword string, limit, offset int64) ([]*models.HistoryRecord, int64, error) {
	filter := bson.M{}
	if ruleName != "" {
		filter["rule_name"] = ruleName
	}
	if keyword != "" {
		filter["content"] = bson.M{"$regex": keyword, "$options": "i"}
	}

	total, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count history records: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "forwarded_at", Value: -1}}).
		SetSkip(offset).
		SetLimit(limit)

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query history records: %w", err)
	}
	defer cursor.Close(ctx)

	var records []*models.HistoryRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, 0, fmt.Errorf("failed to decode history records: %w", err)
	}
	return records, total, nil
}

// RenameRule 规则改名时同步历史键
func (r *historyRepository) RenameRule(ctx context.Context, oldName, newName string) error {
	filter := bson.M{"rule_name": oldName}
	update := bson.M{"$set": bson.M{"rule_name": newName}}

	_, err := r.collection.UpdateMany(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to rename history %q -> %q: %w", oldName, newName, err)
	}
	return nil
}

// DeleteRule 删除规则的全部历史
func (r *historyRepository) DeleteRule(ctx context.Context, ruleName string) error {
	_, err := r.collection.DeleteMany(ctx, bson.M{"rule_name": ruleName})
	if err != nil {
		return fmt.Errorf("failed to delete history for rule %q: %w", ruleName, err)
	}
	return nil
}

// EnsureIndexes 确保索引存在
func (r *historyRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		// 规则名 + 时间，覆盖历史面板的常用查询
		{
			Keys: bson.D{
				{Key: "rule_name", Value: 1},
				{Key: "forwarded_at", Value: -1},
			},
		},
		// TTL 索引，过期自动删除
		{
			Keys:    bson.D{{Key: "forwarded_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(r.retention.Seconds())),
		},
	}

	_, err := r.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create indexes for forward_history: %w", err)
	}
	return nil
}
