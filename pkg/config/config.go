package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// WalletConfig 钱包配置
type WalletConfig struct {
	PrivateKey    string // 签名私钥（hex）
	FunderAddress string // 资金地址（proxy wallet）
}

// OrderConfig 下单配置
type OrderConfig struct {
	Mode               string  // 下单方式：limit 或 market
	LimitTimeoutSec    int     // 限价单等待成交的超时时间（秒），超时后撤单并市价兜底
	MarketFixedAmount  float64 // 市价模式的固定下单金额（USDC）
	MinSharePossible   bool    // 最小份额模式：不跟随源单规模，按平台最小要求下单
	StatusPollSec      int     // 限价单状态轮询间隔（秒）
}

// LoopConfig 各环路节奏配置
type LoopConfig struct {
	WalletReconcileSec int // 钱包集合对账间隔（秒）
	DiscoverySec       int // 交易发现轮询间隔（秒）
	FetchLimit         int // 每个钱包每轮拉取的最近成交条数
	QueueSize          int // 执行队列容量（有界通道）
	Workers            int // 执行环路并发 worker 数
}

// Config 应用配置
type Config struct {
	Wallet      WalletConfig
	Order       OrderConfig
	Loop        LoopConfig
	WalletsFile string // 被跟踪钱包列表文件（每行一个地址）
	DBPath      string // SQLite 数据库路径
	LogLevel    string
	LogFile     string
	DryRun      bool // 纸交易模式，不真实下单
}

// ConfigError 配置错误（启动阶段致命）
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// ConfigFile 配置文件结构（YAML 解析）
type ConfigFile struct {
	Wallet struct {
		PrivateKey    string `yaml:"private_key"`
		FunderAddress string `yaml:"funder_address"`
	} `yaml:"wallet"`
	Order struct {
		Mode              string  `yaml:"mode"`
		LimitTimeoutSec   int     `yaml:"limit_timeout_sec"`
		MarketFixedAmount float64 `yaml:"market_fixed_amount"`
		MinSharePossible  *bool   `yaml:"min_share_possible"`
		StatusPollSec     int     `yaml:"status_poll_sec"`
	} `yaml:"order"`
	Loop struct {
		WalletReconcileSec int `yaml:"wallet_reconcile_sec"`
		DiscoverySec       int `yaml:"discovery_sec"`
		FetchLimit         int `yaml:"fetch_limit"`
		QueueSize          int `yaml:"queue_size"`
		Workers            int `yaml:"workers"`
	} `yaml:"loop"`
	WalletsFile string `yaml:"wallets_file"`
	DBPath      string `yaml:"db_path"`
	LogLevel    string `yaml:"log_level"`
	LogFile     string `yaml:"log_file"`
	DryRun      bool   `yaml:"dry_run"`
}

// Load 加载配置（优先级：环境变量 > 配置文件 > 默认值）
//
// filePath 为空时只读环境变量。环境变量名沿用旧版部署脚本，
// 其中 MARKET_ORDER_FIXED_AMMOUNT 的历史拼写保留为别名。
func Load(filePath string) (*Config, error) {
	var configFile *ConfigFile
	if filePath != "" {
		cf, err := loadConfigFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("加载配置文件失败 %s: %w", filePath, err)
		}
		configFile = cf
	}

	config := &Config{
		Wallet: WalletConfig{
			PrivateKey:    getEnvOrFile("PRIVATE_KEY", fileString(configFile, func(cf *ConfigFile) string { return cf.Wallet.PrivateKey }), ""),
			FunderAddress: getEnvOrFile("FUNDER_ADDRESS", fileString(configFile, func(cf *ConfigFile) string { return cf.Wallet.FunderAddress }), ""),
		},
		Order: OrderConfig{
			Mode:              strings.ToLower(getEnvOrFile("ORDER_TYPE", fileString(configFile, func(cf *ConfigFile) string { return cf.Order.Mode }), "limit")),
			LimitTimeoutSec:   intEnvOrFile("LIMIT_ORDER_TIMEOUT", fileInt(configFile, func(cf *ConfigFile) int { return cf.Order.LimitTimeoutSec }), 30),
			MarketFixedAmount: floatEnvOrFile([]string{"MARKET_ORDER_FIXED_AMOUNT", "MARKET_ORDER_FIXED_AMMOUNT"}, fileFloat(configFile, func(cf *ConfigFile) float64 { return cf.Order.MarketFixedAmount }), 1.0),
			MinSharePossible:  boolFromSources("MIN_SHARE_POSSIBLE", fileBoolPtr(configFile, func(cf *ConfigFile) *bool { return cf.Order.MinSharePossible }), true),
			StatusPollSec:     intFromSources(parseIntEnv("ORDER_STATUS_POLL_SEC", 0), fileInt(configFile, func(cf *ConfigFile) int { return cf.Order.StatusPollSec }), 2),
		},
		Loop: LoopConfig{
			WalletReconcileSec: intFromSources(parseIntEnv("WALLET_RECONCILE_SEC", 0), fileInt(configFile, func(cf *ConfigFile) int { return cf.Loop.WalletReconcileSec }), 30),
			DiscoverySec:       intFromSources(parseIntEnv("DISCOVERY_SEC", 0), fileInt(configFile, func(cf *ConfigFile) int { return cf.Loop.DiscoverySec }), 5),
			FetchLimit:         intFromSources(parseIntEnv("TRADE_FETCH_LIMIT", 0), fileInt(configFile, func(cf *ConfigFile) int { return cf.Loop.FetchLimit }), 5),
			QueueSize:          intFromSources(parseIntEnv("QUEUE_SIZE", 0), fileInt(configFile, func(cf *ConfigFile) int { return cf.Loop.QueueSize }), 64),
			Workers:            intFromSources(parseIntEnv("EXECUTOR_WORKERS", 0), fileInt(configFile, func(cf *ConfigFile) int { return cf.Loop.Workers }), 5),
		},
		WalletsFile: getEnvOrFile("WALLETS_TXT_PATH", fileString(configFile, func(cf *ConfigFile) string { return cf.WalletsFile }), "wallets.txt"),
		DBPath:      getEnvOrFile("DB_PATH", fileString(configFile, func(cf *ConfigFile) string { return cf.DBPath }), "data/copycat.db"),
		LogLevel:    getEnvOrFile("LOG_LEVEL", fileString(configFile, func(cf *ConfigFile) string { return cf.LogLevel }), "info"),
		LogFile:     getEnvOrFile("LOG_FILE", fileString(configFile, func(cf *ConfigFile) string { return cf.LogFile }), "logs/copycat.log"),
		DryRun: func() bool {
			if envVal := os.Getenv("DRY_RUN"); envVal != "" {
				return envVal == "true" || envVal == "1"
			}
			if configFile != nil {
				return configFile.DryRun
			}
			return false
		}(),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate 验证配置，非法组合在启动阶段直接失败
func (c *Config) Validate() error {
	if !c.DryRun && c.Wallet.PrivateKey == "" {
		return &ConfigError{Field: "wallet.private_key", Reason: "不能为空（或设置 DRY_RUN=true）"}
	}
	if !c.DryRun && c.Wallet.FunderAddress == "" {
		return &ConfigError{Field: "wallet.funder_address", Reason: "不能为空（或设置 DRY_RUN=true）"}
	}
	if c.Order.Mode != "limit" && c.Order.Mode != "market" {
		return &ConfigError{Field: "order.mode", Reason: fmt.Sprintf("不支持的下单方式 %q，只能是 limit 或 market", c.Order.Mode)}
	}
	if c.Order.Mode == "limit" && c.Order.LimitTimeoutSec <= 0 {
		return &ConfigError{Field: "order.limit_timeout_sec", Reason: "必须大于 0"}
	}
	if c.Order.Mode == "market" && c.Order.MarketFixedAmount <= 0 {
		return &ConfigError{Field: "order.market_fixed_amount", Reason: "必须大于 0"}
	}
	if c.WalletsFile == "" {
		return &ConfigError{Field: "wallets_file", Reason: "不能为空"}
	}
	if c.Loop.QueueSize <= 0 {
		return &ConfigError{Field: "loop.queue_size", Reason: "必须大于 0"}
	}
	if c.Loop.Workers <= 0 {
		return &ConfigError{Field: "loop.workers", Reason: "必须大于 0"}
	}
	return nil
}

// loadConfigFile 从文件加载配置
func loadConfigFile(filePath string) (*ConfigFile, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var configFile ConfigFile
	if err := yaml.Unmarshal(data, &configFile); err != nil {
		return nil, fmt.Errorf("解析 YAML 失败: %w", err)
	}

	return &configFile, nil
}

// getEnvOrFile 按优先级取值：环境变量 > 配置文件 > 默认值
func getEnvOrFile(envKey, fileVal, defaultVal string) string {
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	if fileVal != "" {
		return fileVal
	}
	return defaultVal
}

func fileString(cf *ConfigFile, get func(*ConfigFile) string) string {
	if cf == nil {
		return ""
	}
	return get(cf)
}

func fileInt(cf *ConfigFile, get func(*ConfigFile) int) int {
	if cf == nil {
		return 0
	}
	return get(cf)
}

func fileFloat(cf *ConfigFile, get func(*ConfigFile) float64) float64 {
	if cf == nil {
		return 0
	}
	return get(cf)
}

func fileBoolPtr(cf *ConfigFile, get func(*ConfigFile) *bool) *bool {
	if cf == nil {
		return nil
	}
	return get(cf)
}

func intFromSources(envVal, fileVal, defaultVal int) int {
	if envVal > 0 {
		return envVal
	}
	if fileVal > 0 {
		return fileVal
	}
	return defaultVal
}

// intEnvOrFile 环境变量显式给出的值原样生效（包括非法的非正值，
// 交给 Validate 报错），未设置时退到配置文件和默认值
func intEnvOrFile(envKey string, fileVal, defaultVal int) int {
	if envVal := os.Getenv(envKey); envVal != "" {
		if val, err := strconv.Atoi(envVal); err == nil {
			return val
		}
	}
	if fileVal != 0 {
		return fileVal
	}
	return defaultVal
}

func floatEnvOrFile(envKeys []string, fileVal, defaultVal float64) float64 {
	for _, key := range envKeys {
		if envVal := os.Getenv(key); envVal != "" {
			if val, err := strconv.ParseFloat(envVal, 64); err == nil {
				return val
			}
		}
	}
	if fileVal != 0 {
		return fileVal
	}
	return defaultVal
}

func boolFromSources(envKey string, fileVal *bool, defaultVal bool) bool {
	if envVal := os.Getenv(envKey); envVal != "" {
		return envVal == "true" || envVal == "1"
	}
	if fileVal != nil {
		return *fileVal
	}
	return defaultVal
}

func parseIntEnv(key string, defaultVal int) int {
	if envVal := os.Getenv(key); envVal != "" {
		if val, err := strconv.Atoi(envVal); err == nil {
			return val
		}
	}
	return defaultVal
}
