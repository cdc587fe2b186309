package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config 描述引擎在启动阶段需要加载的核心配置。
type Config struct {
	Server      ServerConfig      `json:"server"`
	Chain       ChainConfig       `json:"chain"`
	Engine      EngineConfig      `json:"engine"`
	Risk        RiskConfig        `json:"risk"`
	Trading     TradingConfig     `json:"trading"`
	Yield       YieldConfig       `json:"yield"`
	Prediction  PredictionConfig  `json:"prediction"`
	DataService DataServiceConfig `json:"data_service"`
	Journal     JournalConfig     `json:"journal"`
	EventBus    EventBusConfig    `json:"event_bus"`
	Alerting    AlertingConfig    `json:"alerting"`
	Logging     LoggingConfig     `json:"logging"`
}

// ServerConfig 控制 API 服务的监听地址等参数。
type ServerConfig struct {
	Address string `json:"address"`
}

// ChainConfig 包含访问区块链节点与核心合约所需的信息。
// 执行器私钥永远不落盘，只通过环境变量注入。
type ChainConfig struct {
	RPCURL          string `json:"rpc_url"`
	WSURL           string `json:"ws_url"`
	ExecutorKeyEnv  string `json:"executor_key_env"`
	FactoryAddress  string `json:"factory_address"`
	WrappedNative   string `json:"wrapped_native"`
	MarketsFile     string `json:"markets_file"`
	MinExecutorWei  string `json:"min_executor_wei"`
}

// EngineConfig 控制调度器的两个周期任务。
type EngineConfig struct {
	ExecutionIntervalSeconds int `json:"execution_interval_seconds"`
	HealthIntervalSeconds    int `json:"health_interval_seconds"`
}

// RiskConfig 是策略侧使用的默认风险参数；链上 RiskController 仍是最终裁决者。
type RiskConfig struct {
	MaxAllocationBps int `json:"max_allocation_bps"`
	MaxTradesPerDay  int `json:"max_trades_per_day"`
}

// TradingConfig 控制动量交易策略。
type TradingConfig struct {
	MomentumWindow    int     `json:"momentum_window"`
	VolatilityCeiling float64 `json:"volatility_ceiling"`
	MinProfitBps      int     `json:"min_profit_bps"`
	SlippageBps       int     `json:"slippage_bps"`
	ProbeAmountWei    string  `json:"probe_amount_wei"`
}

// YieldConfig 控制收益耕作策略的再平衡节奏。
type YieldConfig struct {
	RebalanceIntervalSeconds int `json:"rebalance_interval_seconds"`
}

// PredictionConfig 控制预测市场套利策略。
type PredictionConfig struct {
	MinSpreadBps   int    `json:"min_spread_bps"`
	MaxPositionBps int    `json:"max_position_bps"`
	MinBetWei      string `json:"min_bet_wei"`
}

// DataServiceConfig 控制数据订阅策略。
type DataServiceConfig struct {
	SignalWindow        int    `json:"signal_window"`
	PremiumThresholdWei string `json:"premium_threshold_wei"`
}

// JournalConfig 配置链下执行流水的存储后端。
type JournalConfig struct {
	Driver      string `json:"driver"`
	DSN         string `json:"dsn"`
	MemoryLimit int    `json:"memory_limit"`
}

// EventBusConfig 配置执行事件对外发布的通道。
type EventBusConfig struct {
	Driver   string         `json:"driver"`
	Redis    RedisConfig    `json:"redis"`
	RabbitMQ RabbitMQConfig `json:"rabbitmq"`
}

// RedisConfig 描述 Redis 事件流的连接参数。
type RedisConfig struct {
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	Stream   string `json:"stream"`
	Limit    int    `json:"limit"`
}

// RabbitMQConfig 描述 RabbitMQ 事件交换机的连接参数。
type RabbitMQConfig struct {
	URL      string `json:"url"`
	Exchange string `json:"exchange"`
	Durable  bool   `json:"durable"`
}

// AlertingConfig 配置告警通道。
type AlertingConfig struct {
	WebhookURL string `json:"webhook_url"`
}

// LoggingConfig 配置结构化日志与审计输出。
type LoggingConfig struct {
	Level       string          `json:"level"`
	Format      string          `json:"format"`
	OutputPaths []string        `json:"output_paths"`
	Audit       AuditLogConfig  `json:"audit"`
}

// AuditLogConfig 配置审计日志文件。
type AuditLogConfig struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

// Load 负责解析指定路径的 JSON 配置文件。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))
	return &cfg, nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8090"
	}
	if c.Chain.ExecutorKeyEnv == "" {
		c.Chain.ExecutorKeyEnv = "AEGIS_EXECUTOR_KEY"
	}
	if c.Chain.MinExecutorWei == "" {
		c.Chain.MinExecutorWei = "1000000000000000"
	}
	if c.Chain.MarketsFile != "" && !filepath.IsAbs(c.Chain.MarketsFile) {
		c.Chain.MarketsFile = filepath.Join(baseDir, c.Chain.MarketsFile)
	}
	if c.Engine.ExecutionIntervalSeconds <= 0 {
		c.Engine.ExecutionIntervalSeconds = 60
	}
	if c.Engine.HealthIntervalSeconds <= 0 {
		c.Engine.HealthIntervalSeconds = 300
	}
	if c.Risk.MaxAllocationBps <= 0 {
		c.Risk.MaxAllocationBps = 2000
	}
	if c.Risk.MaxTradesPerDay <= 0 {
		c.Risk.MaxTradesPerDay = 10
	}
	if c.Trading.MomentumWindow <= 0 {
		c.Trading.MomentumWindow = 5
	}
	if c.Trading.VolatilityCeiling <= 0 {
		c.Trading.VolatilityCeiling = 0.05
	}
	if c.Trading.MinProfitBps <= 0 {
		c.Trading.MinProfitBps = 200
	}
	if c.Trading.SlippageBps <= 0 {
		c.Trading.SlippageBps = 300
	}
	if c.Trading.ProbeAmountWei == "" {
		c.Trading.ProbeAmountWei = "1000000000000000"
	}
	if c.Yield.RebalanceIntervalSeconds <= 0 {
		c.Yield.RebalanceIntervalSeconds = 3600
	}
	if c.Prediction.MinSpreadBps <= 0 {
		c.Prediction.MinSpreadBps = 2000
	}
	if c.Prediction.MaxPositionBps <= 0 {
		c.Prediction.MaxPositionBps = 500
	}
	if c.Prediction.MinBetWei == "" {
		c.Prediction.MinBetWei = "1000000000000000"
	}
	if c.DataService.SignalWindow <= 0 {
		c.DataService.SignalWindow = 5
	}
	if c.DataService.PremiumThresholdWei == "" {
		c.DataService.PremiumThresholdWei = "100000000000000000"
	}
	if c.Journal.Driver == "" {
		c.Journal.Driver = "memory"
	}
	if c.Journal.MemoryLimit <= 0 {
		c.Journal.MemoryLimit = 500
	}
	if c.EventBus.Driver == "" {
		c.EventBus.Driver = "memory"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// ExecutorKey 从环境变量读取执行器私钥；未配置时返回空串，引擎保持空转。
func (c *Config) ExecutorKey() string {
	return strings.TrimSpace(os.Getenv(c.Chain.ExecutorKeyEnv))
}

// ExecutionInterval 返回执行周期。
func (c *Config) ExecutionInterval() time.Duration {
	return time.Duration(c.Engine.ExecutionIntervalSeconds) * time.Second
}

// HealthInterval 返回健康探测周期。
func (c *Config) HealthInterval() time.Duration {
	return time.Duration(c.Engine.HealthIntervalSeconds) * time.Second
}

// RebalanceInterval 返回收益策略的再平衡周期。
func (c *Config) RebalanceInterval() time.Duration {
	return time.Duration(c.Yield.RebalanceIntervalSeconds) * time.Second
}

// ParseWei 将十进制 wei 字符串解析为 big.Int；空串或非法输入返回 0。
func ParseWei(raw string) *big.Int {
	value, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok || value.Sign() < 0 {
		return new(big.Int)
	}
	return value
}
