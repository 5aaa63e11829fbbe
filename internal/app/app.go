package app

import (
	"context"
	"fmt"

	"github.com/journey-ad/telerelay/internal/config"
	"github.com/journey-ad/telerelay/internal/logger"
	"github.com/journey-ad/telerelay/internal/mongo"
	"github.com/journey-ad/telerelay/internal/telegram"
	"github.com/journey-ad/telerelay/internal/telegram/forward"
	"github.com/journey-ad/telerelay/internal/telegram/models"
	"github.com/journey-ad/telerelay/internal/telegram/repository"
)

// App 应用服务容器
// 负责管理所有服务的生命周期（初始化、运行、关闭）
type App struct {
	MongoDB *mongo.Client
	Bot     *telegram.Bot
	Rules   *config.RuleStore
	Manager *forward.Manager

	statsRepo   repository.RuleStatsRepository
	historyRepo repository.HistoryRepository
}

// New 初始化应用及其所有服务
// 按顺序初始化各个服务，任何服务初始化失败都会返回错误
func New(cfg *config.Config) (*App, error) {
	app := &App{}

	// 初始化 MongoDB
	mongoClient, err := mongo.InitFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("init MongoDB failed: %w", err)
	}
	app.MongoDB = mongoClient
	logger.L().Info("MongoDB initialized successfully")

	// 初始化 repositories 与索引
	db := mongoClient.Database()
	app.statsRepo = repository.NewRuleStatsRepository(db)
	app.historyRepo = repository.NewHistoryRepository(db, cfg.HistoryRetention())

	ctx := context.Background()
	if err := app.statsRepo.EnsureIndexes(ctx); err != nil {
		app.Close(ctx)
		return nil, fmt.Errorf("ensure rule stats indexes failed: %w", err)
	}
	if err := app.historyRepo.EnsureIndexes(ctx); err != nil {
		app.Close(ctx)
		return nil, fmt.Errorf("ensure history indexes failed: %w", err)
	}
	logger.L().Debug("Database indexes ensured")

	// 加载转发规则
	rules, err := config.NewRuleStore(cfg.RulesFile)
	if err != nil {
		app.Close(ctx)
		return nil, fmt.Errorf("load forwarding rules failed: %w", err)
	}
	rules.SetCascade(&cascadeAdapter{
		stats:   app.statsRepo,
		history: app.historyRepo,
	})
	app.Rules = rules
	logger.L().Infof("Loaded %d forwarding rule(s) from %s", len(rules.List()), cfg.RulesFile)

	// 初始化 Telegram Bot
	bot, err := telegram.InitFromConfig(cfg)
	if err != nil {
		app.Close(ctx)
		return nil, fmt.Errorf("init Telegram bot failed: %w", err)
	}
	app.Bot = bot

	// 组装转发管道管理器
	recorder := &recorderAdapter{
		stats:   app.statsRepo,
		history: app.historyRepo,
	}
	app.Manager = forward.NewManager(bot, rules, recorder, cfg.EntityFetchTimeout, cfg.StopTimeout)

	return app, nil
}

// Close 优雅关闭所有服务
// 应该在应用退出时调用，确保资源正确释放
func (a *App) Close(ctx context.Context) error {
	if a.Manager != nil && a.Manager.State() == forward.StateRunning {
		if err := a.Manager.Stop(); err != nil {
			logger.L().Warnf("Failed to stop forwarding manager: %v", err)
		}
	}

	if a.Bot != nil {
		a.Bot.Close()
	}

	if a.MongoDB != nil {
		if err := a.MongoDB.Close(ctx); err != nil {
			return fmt.Errorf("close MongoDB failed: %w", err)
		}
	}
	return nil
}

// recorderAdapter 把 repository 适配为管道的统计/历史协作方
type recorderAdapter struct {
	stats   repository.RuleStatsRepository
	history repository.HistoryRepository
}

func (r *recorderAdapter) IncrementForwarded(ctx context.Context, ruleName string) error {
	return r.stats.IncrementForwarded(ctx, ruleName)
}

func (r *recorderAdapter) IncrementFiltered(ctx context.Context, ruleName string) error {
	return r.stats.IncrementFiltered(ctx, ruleName)
}

func (r *recorderAdapter) InsertHistory(ctx context.Context, record *models.HistoryRecord) error {
	return r.history.Insert(ctx, record)
}

// cascadeAdapter 规则改名/删除时级联更新统计与历史
type cascadeAdapter struct {
	stats   repository.RuleStatsRepository
	history repository.HistoryRepository
}

func (c *cascadeAdapter) RenameRule(oldName, newName string) error {
	ctx := context.Background()
	if err := c.stats.RenameRule(ctx, oldName, newName); err != nil {
		return fmt.Errorf("rename rule stats failed: %w", err)
	}
	if err := c.history.RenameRule(ctx, oldName, newName); err != nil {
		return fmt.Errorf("rename rule history failed: %w", err)
	}
	return nil
}

func (c *cascadeAdapter) DeleteRule(name string) error {
	ctx := context.Background()
	if err := c.stats.DeleteRule(ctx, name); err != nil {
		return fmt.Errorf("delete rule stats failed: %w", err)
	}
	if err := c.history.DeleteRule(ctx, name); err != nil {
		return fmt.Errorf("delete rule history failed: %w", err)
	}
	return nil
}
