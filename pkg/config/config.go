package config

// 统一配置加载：.env 文件 + 环境变量 + 默认值。
// main 启动时调用 Load，一次初始化后全局只读。

import (
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/joho/godotenv"
)

// Config 保存运行时关键参数。
type Config struct {
	Addr                 string // HTTP 监听地址
	DataDir              string // 数据目录
	MaxParallel          int    // 主机级并发上限 (<=0 不限制)
	DefaultTimeout       int    // 未指定时每次连接/每条命令的超时（秒）
	HistoryRetentionDays int
	HistoryMaxRows       int
	HistoryFlushInterval int
	HistoryBatchSize     int
	SecretKey            string // 密码加密口令（为空则使用数据目录下的密钥文件）
}

var (
	once   sync.Once
	global *Config
)

// Load 读取全局配置（只初始化一次）。
// 环境变量：
//
//	SCRIPTRUNNER_ADDR             监听地址 (默认 :5000)
//	SCRIPTRUNNER_DATA_DIR         数据目录 (默认 data)
//	SCRIPTRUNNER_MAX_PARALLEL     并发数 (默认 8)
//	SCRIPTRUNNER_DEFAULT_TIMEOUT  默认超时秒数 (默认 30)
//	SCRIPTRUNNER_SECRET_KEY       密码加密口令
func Load() *Config {
	once.Do(func() {
		_ = godotenv.Load()
		c := &Config{
			Addr:                 envOr("SCRIPTRUNNER_ADDR", ":5000"),
			DataDir:              envOr("SCRIPTRUNNER_DATA_DIR", "data"),
			MaxParallel:          envInt("SCRIPTRUNNER_MAX_PARALLEL", 8),
			DefaultTimeout:       envInt("SCRIPTRUNNER_DEFAULT_TIMEOUT", 30),
			HistoryRetentionDays: envInt("SCRIPTRUNNER_HISTORY_RETENTION_DAYS", 0),
			HistoryMaxRows:       envInt("SCRIPTRUNNER_HISTORY_MAX_ROWS", 0),
			HistoryFlushInterval: envInt("SCRIPTRUNNER_HISTORY_FLUSH_INTERVAL", 2),
			HistoryBatchSize:     envInt("SCRIPTRUNNER_HISTORY_BATCH_SIZE", 20),
			SecretKey:            envOr("SCRIPTRUNNER_SECRET_KEY", ""),
		}
		_ = os.MkdirAll(c.DataDir, 0755)
		global = c
	})
	return global
}

// DBPath 返回 sqlite 文件路径。
func (c *Config) DBPath() string { return filepath.Join(c.DataDir, "scriptrunner.db") }

// KeyFilePath 返回自举密钥文件路径。
func (c *Config) KeyFilePath() string { return filepath.Join(c.DataDir, "secret.key") }

// Helpers
func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}
