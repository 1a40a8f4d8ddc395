// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	// IndexFileName 书籍索引文件名
	IndexFileName = "bookList.json"
	// BooksDirName 书籍文档所在子目录
	BooksDirName = "books"
)

// Config 存储应用配置，启动时构建一次后传入各组件
type Config struct {
	Port      string
	Host      string
	StaticDir string
	DataDir   string
	LogDir    string
	DebugMode bool

	// 请求限制
	MaxBodyBytes   int64
	RateLimitRPS   float64
	RateLimitBurst int
	AllowedOrigins []string

	// 远程种子数据
	SeedRemoteURL string
	SeedTimeout   time.Duration
}

// Load 从环境变量加载配置
func Load() (*Config, error) {
	// 尝试加载.env文件（可选）
	_ = godotenv.Load()

	maxBody, err := getEnvInt64("MAX_BODY_BYTES", 10<<20)
	if err != nil {
		return nil, err
	}
	rps, err := getEnvFloat("RATE_LIMIT_RPS", 0)
	if err != nil {
		return nil, err
	}
	burst, err := getEnvInt64("RATE_LIMIT_BURST", 20)
	if err != nil {
		return nil, err
	}
	seedTimeout, err := getEnvDuration("SEED_TIMEOUT", 15*time.Second)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:           getEnv("PORT", "8000"),
		Host:           getEnv("HOST", "0.0.0.0"),
		StaticDir:      getEnv("STATIC_DIR", "."),
		DataDir:        getEnv("DATA_DIR", "data"),
		LogDir:         getEnv("LOG_DIR", "logs"),
		DebugMode:      getEnvBool("DEBUG_MODE", false),
		MaxBodyBytes:   maxBody,
		RateLimitRPS:   rps,
		RateLimitBurst: int(burst),
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "*")),
		SeedRemoteURL:  strings.TrimRight(getEnv("SEED_REMOTE_URL", ""), "/"),
		SeedTimeout:    seedTimeout,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 检查配置是否可用
func (c *Config) Validate() error {
	port, err := strconv.Atoi(c.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid port %q", c.Port)
	}
	if c.DataDir == "" {
		return fmt.Errorf("data dir must not be empty")
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("max body bytes must be positive, got %d", c.MaxBodyBytes)
	}
	if c.RateLimitRPS < 0 {
		return fmt.Errorf("rate limit rps must not be negative, got %v", c.RateLimitRPS)
	}
	if c.RateLimitRPS > 0 && c.RateLimitBurst < 1 {
		return fmt.Errorf("rate limit burst must be at least 1 when rate limiting is enabled")
	}
	return nil
}

// WithPort 返回替换端口后的配置副本，用于命令行参数覆盖
func (c *Config) WithPort(port string) (*Config, error) {
	cp := *c
	cp.Port = port
	if err := cp.Validate(); err != nil {
		return nil, err
	}
	return &cp, nil
}

// Addr 监听地址
func (c *Config) Addr() string {
	return c.Host + ":" + c.Port
}

// IndexFile 书籍索引文件的完整路径
func (c *Config) IndexFile() string {
	return filepath.Join(c.DataDir, IndexFileName)
}

// BooksDir 书籍文档目录的完整路径
func (c *Config) BooksDir() string {
	return filepath.Join(c.DataDir, BooksDirName)
}

// SeedEnabled 是否配置了远程种子数据源
func (c *Config) SeedEnabled() bool {
	return c.SeedRemoteURL != ""
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvBool 获取布尔类型环境变量
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	return value == "true" || value == "1" || value == "yes"
}

func getEnvInt64(key string, defaultValue int64) (int64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
