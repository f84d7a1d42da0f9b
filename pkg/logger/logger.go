package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// Logger 全局日志实例
	Logger *logrus.Logger
	// currentLogFile 当前日志文件路径
	currentLogFile string
	// currentDay 按天命名时的当前日期（20060102）
	currentDay string
	// savedConfig 保存的日志配置（用于按天切换）
	savedConfig Config
	logMu       sync.Mutex
)

// Config 日志配置
type Config struct {
	Level      string `yaml:"level" json:"level"`             // debug, info, warn, error
	OutputFile string `yaml:"output_file" json:"output_file"` // 为空则只输出到控制台
	MaxSize    int    `yaml:"max_size" json:"max_size"`       // MB
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	MaxAge     int    `yaml:"max_age" json:"max_age"` // 天
	Compress   bool   `yaml:"compress" json:"compress"`
	// LogByDay 按天命名日志文件：logs/bot_2026-01-05.log
	LogByDay bool `yaml:"log_by_day" json:"log_by_day"`
	// NoColor 关闭颜色（dashboard 模式下输出只写文件）
	NoColor bool `yaml:"no_color" json:"no_color"`
	// Quiet 不输出到控制台
	Quiet bool `yaml:"quiet" json:"quiet"`
}

func newFormatter(cfg Config) logrus.Formatter {
	return &logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "06-01-02 15:04:05", // 格式: yy-mm-dd HH:MM:ss
		ForceColors:     !cfg.NoColor,
		DisableColors:   cfg.NoColor,
	}
}

// dayFileName logs/bot.log -> logs/bot_2026-01-05.log
func dayFileName(basePath string, day time.Time) string {
	dir := filepath.Dir(basePath)
	base := filepath.Base(basePath)
	ext := filepath.Ext(base)
	name := base[:len(base)-len(ext)]
	return filepath.Join(dir, fmt.Sprintf("%s_%s%s", name, day.Format("2006-01-02"), ext))
}

// build 创建 logger 并同步设置全局 logrus（组件里 logrus.WithField 创建的 entry 也会写入文件）
func build(cfg Config, now time.Time) (*logrus.Logger, string, error) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}

	var writers []io.Writer
	if !cfg.Quiet {
		writers = append(writers, os.Stdout)
	}

	path := ""
	if cfg.OutputFile != "" {
		path = cfg.OutputFile
		if cfg.LogByDay {
			path = dayFileName(cfg.OutputFile, now)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, "", err
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   path,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		})
	}
	if len(writers) == 0 {
		writers = append(writers, io.Discard)
	}
	out := io.MultiWriter(writers...)

	l := logrus.New()
	l.SetLevel(level)
	l.SetFormatter(newFormatter(cfg))
	l.SetOutput(out)

	logrus.SetOutput(out)
	logrus.SetLevel(level)
	logrus.SetFormatter(newFormatter(cfg))
	return l, path, nil
}

// Init 初始化日志系统
func Init(cfg Config) error {
	logMu.Lock()
	defer logMu.Unlock()

	now := time.Now()
	l, path, err := build(cfg, now)
	if err != nil {
		return err
	}
	Logger = l
	savedConfig = cfg
	currentLogFile = path
	currentDay = now.Format("20060102")
	return nil
}

// InitDefault 使用默认配置初始化日志系统
func InitDefault() error {
	return Init(Config{
		Level:      "info",
		OutputFile: "logs/bot.log",
		MaxSize:    100, // 100MB
		MaxBackups: 3,
		MaxAge:     7,
		Compress:   true,
		LogByDay:   true,
	})
}

// rotateIfNeeded 日期变化时切换到新文件
func rotateIfNeeded(now time.Time) error {
	logMu.Lock()
	defer logMu.Unlock()

	if !savedConfig.LogByDay || savedConfig.OutputFile == "" {
		return nil
	}
	day := now.Format("20060102")
	if day == currentDay {
		return nil
	}
	l, path, err := build(savedConfig, now)
	if err != nil {
		return err
	}
	old := currentLogFile
	Logger = l
	currentLogFile = path
	currentDay = day
	Logger.Infof("日志文件已切换: %s -> %s", old, path)
	return nil
}

// StartRotationChecker 每分钟检查一次日期，ctx 结束时退出
func StartRotationChecker(done <-chan struct{}) {
	if !savedConfig.LogByDay || savedConfig.OutputFile == "" {
		return
	}
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case t := <-ticker.C:
				if err := rotateIfNeeded(t); err != nil && Logger != nil {
					Logger.Errorf("检查日志轮转失败: %v", err)
				}
			}
		}
	}()
}

// Debugf 记录格式化的 DEBUG 级别日志
func Debugf(format string, args ...interface{}) {
	if Logger != nil {
		Logger.Debugf(format, args...)
	}
}

// Info 记录 INFO 级别日志
func Info(args ...interface{}) {
	if Logger != nil {
		Logger.Info(args...)
	}
}

// Infof 记录格式化的 INFO 级别日志
func Infof(format string, args ...interface{}) {
	if Logger != nil {
		Logger.Infof(format, args...)
	}
}

// Warnf 记录格式化的 WARN 级别日志
func Warnf(format string, args ...interface{}) {
	if Logger != nil {
		Logger.Warnf(format, args...)
	}
}

// Errorf 记录格式化的 ERROR 级别日志
func Errorf(format string, args ...interface{}) {
	if Logger != nil {
		Logger.Errorf(format, args...)
	}
}

// WithField 添加字段到日志上下文
func WithField(key string, value interface{}) *logrus.Entry {
	if Logger != nil {
		return Logger.WithField(key, value)
	}
	return logrus.WithField(key, value)
}

// GetCurrentLogFile 获取当前日志文件路径
func GetCurrentLogFile() string {
	logMu.Lock()
	defer logMu.Unlock()
	return currentLogFile
}
