package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/betbot/gocrash/internal/domain"
	"github.com/betbot/gocrash/internal/reserve"
	"github.com/betbot/gocrash/pkg/logger"
)

// Config 运行配置（已合并文件 / 环境变量 / 默认值）
type Config struct {
	Engine       EngineConfig
	Reserve      reserve.Params
	Risk         RiskConfig
	Paths        PathsConfig
	Log          logger.Config
	Source       SourceConfig
	ControlPlane ControlPlaneConfig
	MetricsAddr  string
	DryRun       bool
}

// EngineConfig 决策引擎参数
type EngineConfig struct {
	Pattern          []domain.SafetyLevel // 加速模式，默认 [7,7,6]
	FixedLevel       domain.SafetyLevel   // 非 0 时关闭轮换，固定使用该等级
	FallbackLevel    domain.SafetyLevel
	Targets          domain.Targets
	TriggerThreshold decimal.Decimal // 低于该倍数计入连续低值
	TriggerSize      int
	AnomalyTimeout   time.Duration // 超过该时长没有结果则刷新并重置会话
	RegimeWindow     int
	RegimeThreshold  decimal.Decimal
	RegimeFavorable  float64 // 百分比，例如 51
	HistoryCap       int     // 历史记录超过该数量时截断
	HistoryKeep      int     // 截断后保留的条数
	BufferSize       int     // 结果环形缓冲
	BalanceRetries   int     // 检查点余额读取重试次数
}

// RiskConfig 熔断参数
type RiskConfig struct {
	MaxConsecutiveErrors int
	DailyLossLimit       decimal.Decimal // 0 表示不限制
}

// PathsConfig 本地文件路径
type PathsConfig struct {
	StateDir   string // 状态快照目录
	StateID    string // 快照文件名中的实例 id
	QueueDir   string // 命令队列（badger）
	SQLitePath string // 事件落库，空则不落库
	QueueKey   string // 命令队列加密 key（可选）
}

// SourceConfig 结果来源 / 下注执行
type SourceConfig struct {
	Mode         string // http / replay / paper
	BaseURL      string // http 模式：外部识别服务地址
	Token        string
	PollInterval time.Duration
	Timeout      time.Duration
	RateLimit    int // 每秒请求数
	ReplayFile   string
	ReplayDelay  time.Duration
	PaperBalance decimal.Decimal // paper / replay 模式的初始余额
}

// ControlPlaneConfig 控制面 HTTP 服务
type ControlPlaneConfig struct {
	Enabled bool
	Addr    string
	Token   string
}

var globalConfig *Config
var configFilePath string

// SetConfigPath 设置配置文件路径
func SetConfigPath(path string) {
	configFilePath = path
}

// GetConfigPath 获取配置文件路径
func GetConfigPath() string {
	return configFilePath
}

// ConfigFile 配置文件结构（用于 YAML/JSON 解析）
type ConfigFile struct {
	Engine struct {
		Pattern          []int   `yaml:"pattern" json:"pattern"`
		FixedLevel       int     `yaml:"fixed_level" json:"fixed_level"`
		FallbackLevel    int     `yaml:"fallback_level" json:"fallback_level"`
		TargetPrimary    float64 `yaml:"target_primary" json:"target_primary"`
		TargetDefense    float64 `yaml:"target_defense" json:"target_defense"`
		TargetSurvival   float64 `yaml:"target_survival" json:"target_survival"`
		TriggerThreshold float64 `yaml:"trigger_threshold" json:"trigger_threshold"`
		TriggerSize      int     `yaml:"trigger_size" json:"trigger_size"`
		AnomalyTimeout   int     `yaml:"anomaly_timeout_seconds" json:"anomaly_timeout_seconds"`
		RegimeWindow     int     `yaml:"regime_window" json:"regime_window"`
		RegimeThreshold  float64 `yaml:"regime_threshold" json:"regime_threshold"`
		RegimeFavorable  float64 `yaml:"regime_favorable_pct" json:"regime_favorable_pct"`
		HistoryCap       int     `yaml:"history_cap" json:"history_cap"`
		HistoryKeep      int     `yaml:"history_keep" json:"history_keep"`
		BufferSize       int     `yaml:"buffer_size" json:"buffer_size"`
		BalanceRetries   int     `yaml:"balance_retries" json:"balance_retries"`
	} `yaml:"engine" json:"engine"`
	Reserve struct {
		MetaLucroPct           float64 `yaml:"meta_lucro_pct" json:"meta_lucro_pct"`
		PctReserva             float64 `yaml:"pct_reserva" json:"pct_reserva"`
		LimiteEmprestimoPct    float64 `yaml:"limite_emprestimo_pct" json:"limite_emprestimo_pct"`
		TaxaPagamento          float64 `yaml:"taxa_pagamento" json:"taxa_pagamento"`
		EmprestimoMinimoPct    float64 `yaml:"emprestimo_minimo_pct" json:"emprestimo_minimo_pct"`
		PicoDeficitPct         float64 `yaml:"pico_deficit_pct" json:"pico_deficit_pct"`
		GatilhosParaEmprestimo int     `yaml:"gatilhos_para_emprestimo" json:"gatilhos_para_emprestimo"`
		EmprestimoAtivo        *bool   `yaml:"emprestimo_ativo" json:"emprestimo_ativo"`
	} `yaml:"reserve" json:"reserve"`
	Risk struct {
		MaxConsecutiveErrors int     `yaml:"max_consecutive_errors" json:"max_consecutive_errors"`
		DailyLossLimit       float64 `yaml:"daily_loss_limit" json:"daily_loss_limit"`
	} `yaml:"risk" json:"risk"`
	Paths struct {
		StateDir   string `yaml:"state_dir" json:"state_dir"`
		StateID    string `yaml:"state_id" json:"state_id"`
		QueueDir   string `yaml:"queue_dir" json:"queue_dir"`
		SQLitePath string `yaml:"sqlite_path" json:"sqlite_path"`
	} `yaml:"paths" json:"paths"`
	Source struct {
		Mode         string  `yaml:"mode" json:"mode"`
		BaseURL      string  `yaml:"base_url" json:"base_url"`
		PollMillis   int     `yaml:"poll_interval_ms" json:"poll_interval_ms"`
		TimeoutSecs  int     `yaml:"timeout_seconds" json:"timeout_seconds"`
		RateLimit    int     `yaml:"rate_limit" json:"rate_limit"`
		ReplayFile   string  `yaml:"replay_file" json:"replay_file"`
		ReplayMillis int     `yaml:"replay_delay_ms" json:"replay_delay_ms"`
		PaperBalance float64 `yaml:"paper_balance" json:"paper_balance"`
	} `yaml:"source" json:"source"`
	ControlPlane struct {
		Enabled *bool  `yaml:"enabled" json:"enabled"`
		Addr    string `yaml:"addr" json:"addr"`
	} `yaml:"controlplane" json:"controlplane"`
	Log         logger.Config `yaml:"log" json:"log"`
	MetricsAddr string        `yaml:"metrics_addr" json:"metrics_addr"`
	DryRun      bool          `yaml:"dry_run" json:"dry_run"`
}

// Load 加载配置
func Load() (*Config, error) {
	return LoadFromFile(configFilePath)
}

// LoadFromFile 从指定文件加载配置（优先级：环境变量 > 配置文件 > 默认值）
func LoadFromFile(filePath string) (*Config, error) {
	if globalConfig != nil && configFilePath == filePath {
		return globalConfig, nil
	}

	cf := &ConfigFile{}
	if filePath != "" {
		loaded, err := loadConfigFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("加载配置文件失败 %s: %w", filePath, err)
		}
		cf = loaded
	}

	cfg, err := build(cf)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	globalConfig = cfg
	configFilePath = filePath
	return cfg, nil
}

// Get 返回已加载的全局配置
func Get() *Config {
	return globalConfig
}

// reset 测试使用
func reset() {
	globalConfig = nil
	configFilePath = ""
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

func build(cf *ConfigFile) (*Config, error) {
	pattern, err := parsePattern(getEnv("ENGINE_PATTERN", joinInts(cf.Engine.Pattern)))
	if err != nil {
		return nil, err
	}
	if len(pattern) == 0 {
		pattern = []domain.SafetyLevel{domain.NS7, domain.NS7, domain.NS6}
	}

	defaults := reserve.DefaultParams()
	rp := reserve.Params{
		MetaLucroPct:           decFrom(cf.Reserve.MetaLucroPct, parseFloatEnv("RESERVE_META_LUCRO_PCT", 0), defaults.MetaLucroPct),
		PctReserva:             decFrom(cf.Reserve.PctReserva, parseFloatEnv("RESERVE_PCT_RESERVA", 0), defaults.PctReserva),
		LimiteEmprestimoPct:    decFrom(cf.Reserve.LimiteEmprestimoPct, parseFloatEnv("RESERVE_LIMITE_EMPRESTIMO_PCT", 0), defaults.LimiteEmprestimoPct),
		TaxaPagamento:          decFrom(cf.Reserve.TaxaPagamento, parseFloatEnv("RESERVE_TAXA_PAGAMENTO", 0), defaults.TaxaPagamento),
		EmprestimoMinimoPct:    decFrom(cf.Reserve.EmprestimoMinimoPct, parseFloatEnv("RESERVE_EMPRESTIMO_MINIMO_PCT", 0), defaults.EmprestimoMinimoPct),
		PicoDeficitPct:         decFrom(cf.Reserve.PicoDeficitPct, parseFloatEnv("RESERVE_PICO_DEFICIT_PCT", 0), defaults.PicoDeficitPct),
		GatilhosParaEmprestimo: intFrom(cf.Reserve.GatilhosParaEmprestimo, parseIntEnv("RESERVE_GATILHOS_PARA_EMPRESTIMO", 0), defaults.GatilhosParaEmprestimo),
		EmprestimoAtivo:        parseBoolEnv("RESERVE_EMPRESTIMO_ATIVO", boolPtr(cf.Reserve.EmprestimoAtivo, defaults.EmprestimoAtivo)),
	}

	logCfg := cf.Log
	logCfg.Level = getEnv("LOG_LEVEL", strOr(logCfg.Level, "info"))
	logCfg.OutputFile = getEnv("LOG_FILE", logCfg.OutputFile)
	if logCfg.MaxSize == 0 {
		logCfg.MaxSize = 100
	}
	if logCfg.MaxBackups == 0 {
		logCfg.MaxBackups = 3
	}
	if logCfg.MaxAge == 0 {
		logCfg.MaxAge = 7
	}

	cfg := &Config{
		Engine: EngineConfig{
			Pattern:       pattern,
			FixedLevel:    domain.SafetyLevel(intFrom(cf.Engine.FixedLevel, parseIntEnv("ENGINE_FIXED_LEVEL", 0), 0)),
			FallbackLevel: domain.SafetyLevel(intFrom(cf.Engine.FallbackLevel, parseIntEnv("ENGINE_FALLBACK_LEVEL", 0), int(domain.NS7))),
			Targets: domain.Targets{
				Primary:  decFrom(cf.Engine.TargetPrimary, parseFloatEnv("ENGINE_TARGET_PRIMARY", 0), domain.D("2.00")),
				Defense:  decFrom(cf.Engine.TargetDefense, parseFloatEnv("ENGINE_TARGET_DEFENSE", 0), domain.D("1.25")),
				Survival: decFrom(cf.Engine.TargetSurvival, parseFloatEnv("ENGINE_TARGET_SURVIVAL", 0), domain.D("2.50")),
			},
			TriggerThreshold: decFrom(cf.Engine.TriggerThreshold, parseFloatEnv("ENGINE_TRIGGER_THRESHOLD", 0), domain.D("2.00")),
			TriggerSize:      intFrom(cf.Engine.TriggerSize, parseIntEnv("ENGINE_TRIGGER_SIZE", 0), 6),
			AnomalyTimeout:   time.Duration(intFrom(cf.Engine.AnomalyTimeout, parseIntEnv("ENGINE_ANOMALY_TIMEOUT_SECONDS", 0), 120)) * time.Second,
			RegimeWindow:     intFrom(cf.Engine.RegimeWindow, parseIntEnv("ENGINE_REGIME_WINDOW", 0), 100),
			RegimeThreshold:  decFrom(cf.Engine.RegimeThreshold, parseFloatEnv("ENGINE_REGIME_THRESHOLD", 0), domain.D("1.99")),
			RegimeFavorable:  floatFrom(cf.Engine.RegimeFavorable, parseFloatEnv("ENGINE_REGIME_FAVORABLE_PCT", 0), 51),
			HistoryCap:       intFrom(cf.Engine.HistoryCap, 0, 500),
			HistoryKeep:      intFrom(cf.Engine.HistoryKeep, 0, 250),
			BufferSize:       intFrom(cf.Engine.BufferSize, 0, 256),
			BalanceRetries:   intFrom(cf.Engine.BalanceRetries, parseIntEnv("ENGINE_BALANCE_RETRIES", 0), 3),
		},
		Reserve: rp,
		Risk: RiskConfig{
			MaxConsecutiveErrors: intFrom(cf.Risk.MaxConsecutiveErrors, parseIntEnv("RISK_MAX_CONSECUTIVE_ERRORS", 0), 3),
			DailyLossLimit:       decFrom(cf.Risk.DailyLossLimit, parseFloatEnv("RISK_DAILY_LOSS_LIMIT", 0), decimal.Zero),
		},
		Paths: PathsConfig{
			StateDir:   getEnv("STATE_DIR", strOr(cf.Paths.StateDir, "data/state")),
			StateID:    getEnv("STATE_ID", strOr(cf.Paths.StateID, "crash")),
			QueueDir:   getEnv("QUEUE_DIR", strOr(cf.Paths.QueueDir, "data/queue")),
			SQLitePath: getEnv("SQLITE_PATH", strOr(cf.Paths.SQLitePath, "data/crash.db")),
			QueueKey:   getEnv("QUEUE_ENCRYPTION_KEY", ""),
		},
		Log: logCfg,
		Source: SourceConfig{
			Mode:         strings.ToLower(getEnv("SOURCE_MODE", strOr(cf.Source.Mode, "paper"))),
			BaseURL:      getEnv("SOURCE_BASE_URL", cf.Source.BaseURL),
			Token:        getEnv("SOURCE_TOKEN", ""),
			PollInterval: time.Duration(intFrom(cf.Source.PollMillis, parseIntEnv("SOURCE_POLL_INTERVAL_MS", 0), 500)) * time.Millisecond,
			Timeout:      time.Duration(intFrom(cf.Source.TimeoutSecs, parseIntEnv("SOURCE_TIMEOUT_SECONDS", 0), 10)) * time.Second,
			RateLimit:    intFrom(cf.Source.RateLimit, parseIntEnv("SOURCE_RATE_LIMIT", 0), 10),
			ReplayFile:   getEnv("SOURCE_REPLAY_FILE", cf.Source.ReplayFile),
			ReplayDelay:  time.Duration(intFrom(cf.Source.ReplayMillis, parseIntEnv("SOURCE_REPLAY_DELAY_MS", 0), 0)) * time.Millisecond,
			PaperBalance: decFrom(cf.Source.PaperBalance, parseFloatEnv("SOURCE_PAPER_BALANCE", 0), domain.D("1000")),
		},
		ControlPlane: ControlPlaneConfig{
			Enabled: parseBoolEnv("CONTROLPLANE_ENABLED", boolPtr(cf.ControlPlane.Enabled, true)),
			Addr:    getEnv("CONTROLPLANE_ADDR", strOr(cf.ControlPlane.Addr, "127.0.0.1:8686")),
			Token:   getEnv("CONTROLPLANE_TOKEN", ""),
		},
		MetricsAddr: getEnv("METRICS_ADDR", cf.MetricsAddr),
		DryRun:      parseBoolEnv("DRY_RUN", cf.DryRun),
	}
	return cfg, nil
}

// Validate 验证配置
func (c *Config) Validate() error {
	if err := domain.ValidatePattern(c.Engine.Pattern); err != nil {
		return fmt.Errorf("engine.pattern 无效: %w", err)
	}
	if c.Engine.FixedLevel != 0 && !c.Engine.FixedLevel.Valid() {
		return fmt.Errorf("engine.fixed_level=%d 必须在 6~10 之间", c.Engine.FixedLevel)
	}
	if !c.Engine.FallbackLevel.Valid() {
		return fmt.Errorf("engine.fallback_level=%d 必须在 6~10 之间", c.Engine.FallbackLevel)
	}
	if err := c.Engine.Targets.Validate(); err != nil {
		return fmt.Errorf("engine 目标倍数无效: %w", err)
	}
	if c.Engine.TriggerThreshold.LessThanOrEqual(domain.One) {
		return fmt.Errorf("engine.trigger_threshold=%s 必须大于 1", c.Engine.TriggerThreshold)
	}
	if c.Engine.TriggerSize <= 0 {
		return fmt.Errorf("engine.trigger_size 必须大于 0")
	}
	if c.Engine.AnomalyTimeout < time.Second {
		return fmt.Errorf("engine.anomaly_timeout_seconds 至少为 1 秒")
	}
	if c.Engine.RegimeWindow <= 0 {
		return fmt.Errorf("engine.regime_window 必须大于 0")
	}
	if c.Engine.RegimeFavorable <= 0 || c.Engine.RegimeFavorable > 100 {
		return fmt.Errorf("engine.regime_favorable_pct=%.2f 必须在 (0,100] 之间", c.Engine.RegimeFavorable)
	}
	if c.Engine.HistoryKeep <= 0 || c.Engine.HistoryKeep > c.Engine.HistoryCap {
		return fmt.Errorf("engine.history_keep=%d 必须在 (0, history_cap=%d] 之间", c.Engine.HistoryKeep, c.Engine.HistoryCap)
	}
	if err := c.Reserve.Validate(); err != nil {
		return err
	}
	if c.Risk.MaxConsecutiveErrors <= 0 {
		return fmt.Errorf("risk.max_consecutive_errors 必须大于 0")
	}
	if c.Paths.StateDir == "" {
		return fmt.Errorf("paths.state_dir 不能为空")
	}
	switch c.Source.Mode {
	case "http":
		if c.Source.BaseURL == "" {
			return fmt.Errorf("source.mode=http 时必须设置 source.base_url")
		}
	case "replay":
		if c.Source.ReplayFile == "" {
			return fmt.Errorf("source.mode=replay 时必须设置 source.replay_file")
		}
	case "paper":
	default:
		return fmt.Errorf("source.mode=%s 无效 (支持 http, replay, paper)", c.Source.Mode)
	}
	if c.Source.Mode != "http" && !c.Source.PaperBalance.IsPositive() {
		return fmt.Errorf("source.paper_balance 必须大于 0")
	}
	return nil
}

func parsePattern(raw string) ([]domain.SafetyLevel, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var out []domain.SafetyLevel
	for _, part := range strings.Split(raw, ",") {
		lvl, err := domain.ParseSafetyLevel(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("engine.pattern: %w", err)
		}
		out = append(out, lvl)
	}
	return out, nil
}

func joinInts(v []int) string {
	parts := make([]string, 0, len(v))
	for _, n := range v {
		parts = append(parts, strconv.Itoa(n))
	}
	return strings.Join(parts, ",")
}

// decFrom 环境变量 > 配置文件 > 默认值（0 视为未设置）
func decFrom(fileValue, envValue float64, def decimal.Decimal) decimal.Decimal {
	if envValue != 0 {
		return decimal.NewFromFloat(envValue)
	}
	if fileValue != 0 {
		return decimal.NewFromFloat(fileValue)
	}
	return def
}

func intFrom(fileValue, envValue, def int) int {
	if envValue != 0 {
		return envValue
	}
	if fileValue != 0 {
		return fileValue
	}
	return def
}

func floatFrom(fileValue, envValue, def float64) float64 {
	if envValue != 0 {
		return envValue
	}
	if fileValue != 0 {
		return fileValue
	}
	return def
}

func strOr(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func boolPtr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
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

// parseFloatEnv 解析浮点数环境变量
func parseFloatEnv(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
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
