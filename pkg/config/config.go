package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultBaseURL 远端交易 API 默认地址（本地 FastAPI 服务的 /api 前缀）
	DefaultBaseURL = "http://localhost:8001/api"

	minLeverage = 1
	maxLeverage = 50
)

// GatewayConfig 远端交易 API 访问配置
type GatewayConfig struct {
	BaseURL    string
	Timeout    time.Duration // 单次请求超时
	RetryCount int           // 只对幂等的 GET 请求重试
	RateLimit  int           // 每秒最多请求数，0 表示不限流
	APIToken   string        // 可选，原样放入 Authorization 头
}

// TradingConfig 下单/撤单行为配置
type TradingConfig struct {
	DefaultLeverage int  // 表单初始杠杆
	ConfirmOrders   bool // 提交前是否需要确认
	// CancelClosedAsSuccess 撤单被远端拒绝时，如果重新同步后订单已不在 open 列表，
	// 是否按撤单成功处理（已成交/已撤销的订单）。默认 false，按远端错误处理。
	CancelClosedAsSuccess bool
}

// UIConfig 渲染层配置
type UIConfig struct {
	RefreshInterval time.Duration // 周期性同步间隔，0 表示关闭
	MarketStream    bool          // 是否订阅 WebSocket 行情推送
}

// ProxyConfig 代理配置
type ProxyConfig struct {
	Host string
	Port int
}

// Config 应用配置
type Config struct {
	Gateway  GatewayConfig
	Trading  TradingConfig
	UI       UIConfig
	Proxy    *ProxyConfig
	LogLevel string // 日志级别
	LogFile  string // 日志文件路径
	// DebugAddr 调试服务监听地址（expvar/pprof），为空不启动
	DebugAddr string
}

// ConfigFile 配置文件结构（用于 YAML/JSON 解析）
// 0/false 合法的项使用指针，区分“未配置”和“显式配置为零值”
type ConfigFile struct {
	Gateway struct {
		BaseURL        string `yaml:"base_url" json:"base_url"`
		TimeoutSeconds int    `yaml:"timeout_seconds" json:"timeout_seconds"`
		RetryCount     *int   `yaml:"retry_count" json:"retry_count"`
		RateLimit      *int   `yaml:"rate_limit" json:"rate_limit"`
		APIToken       string `yaml:"api_token" json:"api_token"`
	} `yaml:"gateway" json:"gateway"`
	Trading struct {
		DefaultLeverage       int   `yaml:"default_leverage" json:"default_leverage"`
		ConfirmOrders         *bool `yaml:"confirm_orders" json:"confirm_orders"`
		CancelClosedAsSuccess *bool `yaml:"cancel_closed_as_success" json:"cancel_closed_as_success"`
	} `yaml:"trading" json:"trading"`
	UI struct {
		RefreshIntervalMs *int  `yaml:"refresh_interval_ms" json:"refresh_interval_ms"`
		MarketStream      *bool `yaml:"market_stream" json:"market_stream"`
	} `yaml:"ui" json:"ui"`
	Proxy struct {
		Host string `yaml:"host" json:"host"`
		Port int    `yaml:"port" json:"port"`
	} `yaml:"proxy" json:"proxy"`
	LogLevel  string `yaml:"log_level" json:"log_level"`
	LogFile   string `yaml:"log_file" json:"log_file"`
	DebugAddr string `yaml:"debug_addr" json:"debug_addr"`
}

// Default 返回全部使用默认值的配置
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			BaseURL:    DefaultBaseURL,
			Timeout:    30 * time.Second,
			RetryCount: 2,
			RateLimit:  10,
		},
		Trading: TradingConfig{
			DefaultLeverage: 1,
			ConfirmOrders:   true,
		},
		LogLevel: "info",
		LogFile:  "logs/perpdesk.log",
	}
}

// LoadOptions 加载选项
type LoadOptions struct {
	// Overrides 在校验之前调用，用于命令行参数覆盖
	Overrides func(*Config)
}

// LoadFromFile 从指定文件加载配置，filePath 为空时只使用环境变量和默认值
// 优先级：配置文件 > 环境变量 > 默认值
func LoadFromFile(filePath string) (*Config, error) {
	return LoadFromFileWithOptions(filePath, LoadOptions{})
}

// LoadFromFileWithOptions 同 LoadFromFile，覆盖项应用后只校验一次
func LoadFromFileWithOptions(filePath string, opts LoadOptions) (*Config, error) {
	var configFile *ConfigFile
	if filePath != "" {
		var err error
		configFile, err = loadConfigFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("加载配置文件失败 %s: %w", filePath, err)
		}
	}
	if configFile == nil {
		configFile = &ConfigFile{}
	}

	def := Default()
	cf := configFile
	config := &Config{
		Gateway: GatewayConfig{
			BaseURL:    firstString(cf.Gateway.BaseURL, getEnv("PERPDESK_BASE_URL", def.Gateway.BaseURL)),
			Timeout:    time.Duration(firstInt(cf.Gateway.TimeoutSeconds, parseIntEnv("PERPDESK_TIMEOUT_SECONDS", int(def.Gateway.Timeout/time.Second)))) * time.Second,
			RetryCount: intOr(cf.Gateway.RetryCount, parseIntEnv("PERPDESK_RETRY_COUNT", def.Gateway.RetryCount)),
			RateLimit:  intOr(cf.Gateway.RateLimit, parseIntEnv("PERPDESK_RATE_LIMIT", def.Gateway.RateLimit)),
			APIToken:   firstString(cf.Gateway.APIToken, getEnv("PERPDESK_API_TOKEN", "")),
		},
		Trading: TradingConfig{
			DefaultLeverage:       firstInt(cf.Trading.DefaultLeverage, parseIntEnv("PERPDESK_DEFAULT_LEVERAGE", def.Trading.DefaultLeverage)),
			ConfirmOrders:         boolOr(cf.Trading.ConfirmOrders, parseBoolEnv("PERPDESK_CONFIRM_ORDERS", def.Trading.ConfirmOrders)),
			CancelClosedAsSuccess: boolOr(cf.Trading.CancelClosedAsSuccess, parseBoolEnv("PERPDESK_CANCEL_CLOSED_AS_SUCCESS", false)),
		},
		UI: UIConfig{
			RefreshInterval: time.Duration(intOr(cf.UI.RefreshIntervalMs, parseIntEnv("PERPDESK_REFRESH_INTERVAL_MS", 0))) * time.Millisecond,
			MarketStream:    boolOr(cf.UI.MarketStream, parseBoolEnv("PERPDESK_MARKET_STREAM", false)),
		},
		Proxy:     parseProxyConfig(cf),
		LogLevel:  firstString(cf.LogLevel, getEnv("LOG_LEVEL", def.LogLevel)),
		LogFile:   firstString(cf.LogFile, getEnv("LOG_FILE", def.LogFile)),
		DebugAddr: firstString(cf.DebugAddr, getEnv("PERPDESK_DEBUG_ADDR", "")),
	}

	if opts.Overrides != nil {
		opts.Overrides(config)
	}

	// 验证配置
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}

	// 设置代理环境变量（resty 会从环境变量读取代理）
	if config.Proxy != nil {
		proxyURL := fmt.Sprintf("http://%s:%d", config.Proxy.Host, config.Proxy.Port)
		os.Setenv("HTTP_PROXY", proxyURL)
		os.Setenv("HTTPS_PROXY", proxyURL)
	}

	return config, nil
}

// loadConfigFile 加载配置文件（支持 YAML 和 JSON）
func loadConfigFile(filePath string) (*ConfigFile, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var configFile ConfigFile
	ext := strings.ToLower(filepath.Ext(filePath))

	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &configFile); err != nil {
			return nil, fmt.Errorf("解析 YAML 配置文件失败: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &configFile); err != nil {
			return nil, fmt.Errorf("解析 JSON 配置文件失败: %w", err)
		}
	default:
		return nil, fmt.Errorf("不支持的配置文件格式: %s (支持 .yaml, .yml, .json)", ext)
	}

	return &configFile, nil
}

// Validate 验证配置
func (c *Config) Validate() error {
	u, err := url.Parse(c.Gateway.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("gateway.base_url 无效: %q", c.Gateway.BaseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("gateway.base_url 只支持 http/https: %q", c.Gateway.BaseURL)
	}
	if c.Gateway.Timeout <= 0 {
		return fmt.Errorf("gateway.timeout_seconds 必须大于 0")
	}
	if c.Gateway.RetryCount < 0 {
		return fmt.Errorf("gateway.retry_count 不能为负数")
	}
	if c.Gateway.RateLimit < 0 {
		return fmt.Errorf("gateway.rate_limit 不能为负数")
	}
	if c.Trading.DefaultLeverage < minLeverage || c.Trading.DefaultLeverage > maxLeverage {
		return fmt.Errorf("trading.default_leverage 必须在 %d 到 %d 之间", minLeverage, maxLeverage)
	}
	if c.UI.RefreshInterval < 0 {
		return fmt.Errorf("ui.refresh_interval_ms 不能为负数")
	}
	return nil
}

// parseProxyConfig 解析代理配置（配置文件 > 环境变量），都未设置时返回 nil
func parseProxyConfig(cf *ConfigFile) *ProxyConfig {
	proxyHost := cf.Proxy.Host
	proxyPort := cf.Proxy.Port
	if proxyHost == "" {
		proxyHost = getEnv("PROXY_HOST", "")
		proxyPort = parseIntEnv("PROXY_PORT", 0)
	}
	if proxyHost == "" || proxyPort <= 0 {
		return nil
	}
	return &ProxyConfig{Host: proxyHost, Port: proxyPort}
}

func firstString(configValue, fallback string) string {
	if configValue != "" {
		return configValue
	}
	return fallback
}

func firstInt(configValue, fallback int) int {
	if configValue != 0 {
		return configValue
	}
	return fallback
}

func intOr(configValue *int, fallback int) int {
	if configValue != nil {
		return *configValue
	}
	return fallback
}

func boolOr(configValue *bool, fallback bool) bool {
	if configValue != nil {
		return *configValue
	}
	return fallback
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseIntEnv 解析整数环境变量
func parseIntEnv(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// parseBoolEnv 解析布尔环境变量
func parseBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
