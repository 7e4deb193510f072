package config

import (
	"fmt"
	"os"
	"strconv"
)

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// Config medvault-records（HTTP API）配置
type Config struct {
	HTTP struct {
		Addr string
	}
	Database DatabaseConfig
	Redis    struct {
		Addr     string
		Password string
		DB       int
	}
	Log struct {
		Level  string
		Format string
	}

	// SecretKey 字段加密密钥（64位hex字符串 或 任意口令）
	// 缺失时启动必须失败，绝不能在没有密钥的情况下运行
	SecretKey string

	// Admin bootstrap 凭据（首次启动时创建默认管理员）
	Admin struct {
		Username string
		Password string
	}

	// Session 会话配置
	Session struct {
		IdleMinutes int // 空闲超时（分钟），默认 15
	}

	// Token 激活令牌配置
	Token struct {
		ValidHours int // 有效期（小时），默认 24
	}

	// Invite 激活链接投递 webhook（可选，为空则不投递）
	Invite struct {
		WebhookURL string
		BaseURL    string // 激活链接前缀，如 https://records.example.org
	}
}

// Load 从环境变量加载配置
// SecretKey 缺失时返回错误：禁止在没有加密密钥的情况下启动
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = parseInt(getEnv("DB_PORT", "5432"), 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "medvault")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = parseInt(getEnv("DB_MAX_CONNS", "10"), 10)
	cfg.Database.MaxIdle = parseInt(getEnv("DB_MAX_IDLE", "5"), 5)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = 0

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	cfg.SecretKey = os.Getenv("MEDVAULT_SECRET_KEY")
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("MEDVAULT_SECRET_KEY not set in environment")
	}

	cfg.Admin.Username = getEnv("ADMIN_USERNAME", "")
	cfg.Admin.Password = getEnv("ADMIN_PASSWORD", "")

	cfg.Session.IdleMinutes = parseInt(getEnv("SESSION_IDLE_MINUTES", "15"), 15)
	cfg.Token.ValidHours = parseInt(getEnv("TOKEN_VALID_HOURS", "24"), 24)

	cfg.Invite.WebhookURL = getEnv("INVITE_WEBHOOK_URL", "")
	cfg.Invite.BaseURL = getEnv("INVITE_BASE_URL", "http://localhost:8080")

	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}
