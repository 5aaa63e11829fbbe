package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config 应用程序配置（从环境变量加载）
type Config struct {
	TelegramToken        string        `env:"TELEGRAM_TOKEN"`                            // Telegram Bot API Token
	MongoURI             string        `env:"MONGO_URI"`                                 // MongoDB 连接 URI
	MongoDBName          string        `env:"MONGO_DB_NAME" envDefault:"telerelay"`      // MongoDB 数据库名称
	RulesFile            string        `env:"RULES_FILE" envDefault:"config/rules.yaml"` // 转发规则文件路径
	HistoryRetentionDays int           `env:"HISTORY_RETENTION_DAYS" envDefault:"7"`     // 转发历史保留天数（TTL 索引）
	SendRatePerSecond    int           `env:"SEND_RATE_PER_SECOND" envDefault:"30"`      // 全局发送速率上限
	EntityFetchTimeout   time.Duration `env:"ENTITY_FETCH_TIMEOUT" envDefault:"5s"`      // 实体信息获取超时
	StopTimeout          time.Duration `env:"STOP_TIMEOUT" envDefault:"10s"`             // 停止时等待在途转发的超时
}

// Load 从环境变量加载并校验配置
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if cfg.TelegramToken == "" {
		return nil, fmt.Errorf("TELEGRAM_TOKEN is required")
	}
	if cfg.MongoURI == "" {
		return nil, fmt.Errorf("MONGO_URI is required")
	}
	if cfg.HistoryRetentionDays < 1 {
		return nil, fmt.Errorf("HISTORY_RETENTION_DAYS must be >= 1, got %d", cfg.HistoryRetentionDays)
	}
	if cfg.SendRatePerSecond < 1 {
		return nil, fmt.Errorf("SEND_RATE_PER_SECOND must be >= 1, got %d", cfg.SendRatePerSecond)
	}

	return cfg, nil
}

// HistoryRetention 转发历史保留时长
func (c *Config) HistoryRetention() time.Duration {
	return time.Duration(c.HistoryRetentionDays) * 24 * time.Hour
}
