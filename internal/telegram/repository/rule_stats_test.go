package repository

import (
	"context"
	"strings"
	"testing"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func statsNamespace(mt *mtest.T) string {
	return mt.DB.Name() + "." + mt.Coll.Name()
}

func TestRuleStatsRepositoryIncrement(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("forwarded success", func(mt *mtest.T) {
		repo := &ruleStatsRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 1},
		))

		if err := repo.IncrementForwarded(context.Background(), "news"); err != nil {
			t.Fatalf("IncrementForwarded failed: %v", err)
		}
	})

	mt.Run("filtered success", func(mt *mtest.T) {
		repo := &ruleStatsRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 1},
		))

		if err := repo.IncrementFiltered(context.Background(), "news"); err != nil {
			t.Fatalf("IncrementFiltered failed: %v", err)
		}
	})

	mt.Run("write error", func(mt *mtest.T) {
		repo := &ruleStatsRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    123,
			Name:    "WriteError",
			Message: "mock write failure",
		}))

		err := repo.IncrementForwarded(context.Background(), "news")
		if err == nil {
			t.Fatalf("expected error but got nil")
		}
		if !strings.Contains(err.Error(), "failed to increment") {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func TestRuleStatsRepositoryGetStats(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("found", func(mt *mtest.T) {
		repo := &ruleStatsRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateCursorResponse(
			0,
			statsNamespace(mt),
			mtest.FirstBatch,
			bson.D{
				{Key: "rule_name", Value: "news"},
				{Key: "forwarded_count", Value: int64(12)},
				{Key: "filtered_count", Value: int64(3)},
			},
		))

		stats, err := repo.GetStats(context.Background(), "news")
		if err != nil {
			t.Fatalf("GetStats failed: %v", err)
		}
		if stats.ForwardedCount != 12 || stats.FilteredCount != 3 {
			t.Fatalf("unexpected stats: %+v", stats)
		}
		if stats.Total() != 15 {
			t.Fatalf("Total() = %d, want 15", stats.Total())
		}
	})

	mt.Run("not found returns zero value", func(mt *mtest.T) {
		repo := &ruleStatsRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateCursorResponse(0, statsNamespace(mt), mtest.FirstBatch))

		stats, err := repo.GetStats(context.Background(), "ghost")
		if err != nil {
			t.Fatalf("GetStats failed: %v", err)
		}
		if stats.RuleName != "ghost" || stats.ForwardedCount != 0 || stats.FilteredCount != 0 {
			t.Fatalf("expected zero-value stats, got %+v", stats)
		}
	})
}

func TestRuleStatsRepositoryGetAllStats(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("success", func(mt *mtest.T) {
		repo := &ruleStatsRepository{collection: mt.Coll}
		first := mtest.CreateCursorResponse(1, statsNamespace(mt), mtest.FirstBatch, bson.D{
			{Key: "rule_name", Value: "news"},
			{Key: "forwarded_count", Value: int64(5)},
		})
		second := mtest.CreateCursorResponse(0, statsNamespace(mt), mtest.NextBatch, bson.D{
			{Key: "rule_name", Value: "backup"},
			{Key: "filtered_count", Value: int64(2)},
		})
		mt.AddMockResponses(first, second)

		stats, err := repo.GetAllStats(context.Background())
		if err != nil {
			t.Fatalf("GetAllStats failed: %v", err)
		}
		if len(stats) != 2 {
			t.Fatalf("expected 2 stats, got %d", len(stats))
		}
	})
}

func TestRuleStatsRepositoryRenameAndDelete(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("rename", func(mt *mtest.T) {
		repo := &ruleStatsRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 1},
		))

		if err := repo.RenameRule(context.Background(), "news", "headlines"); err != nil {
			t.Fatalf("RenameRule failed: %v", err)
		}
	})

	mt.Run("delete", func(mt *mtest.T) {
		repo := &ruleStatsRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}))

		if err := repo.DeleteRule(context.Background(), "news"); err != nil {
			t.Fatalf("DeleteRule failed: %v", err)
		}
	})

	mt.Run("reset all", func(mt *mtest.T) {
		repo := &ruleStatsRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 2},
			bson.E{Key: "nModified", Value: 2},
		))

		if err := repo.ResetStats(context.Background(), ""); err != nil {
			t.Fatalf("ResetStats failed: %v", err)
		}
	})
}
