package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/qr-backend/internal/constants"
	"github.com/qr-backend/internal/logger"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 应用配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Database DatabaseConfig `mapstructure:"database"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Queue    QueueConfig    `mapstructure:"queue"`
	CORS     CORSConfig     `mapstructure:"cors"`
	Security SecurityConfig `mapstructure:"security"`
	Codes    CodesConfig    `mapstructure:"codes"`
	Quota    QuotaConfig    `mapstructure:"quota"`
	Bulk     BulkConfig     `mapstructure:"bulk"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug / release
}

// LogConfig 日志配置
type LogConfig struct {
	Dir        string `mapstructure:"dir"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// ToLoggerOptions 转换为 logger 配置
func (c LogConfig) ToLoggerOptions() logger.Options {
	return logger.Options{
		Dir:        c.Dir,
		Filename:   c.Filename,
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAgeDays: c.MaxAgeDays,
		Compress:   c.Compress,
	}
}

// DatabasePoolConfig 数据库连接池配置
type DatabasePoolConfig struct {
	MaxOpenConns           int `mapstructure:"max_open_conns"`
	MaxIdleConns           int `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeSeconds int `mapstructure:"conn_max_lifetime_seconds"`
	ConnMaxIdleTimeSeconds int `mapstructure:"conn_max_idle_time_seconds"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver string             `mapstructure:"driver"` // 数据库驱动（sqlite/postgres）
	DSN    string             `mapstructure:"dsn"`    // 数据库连接串
	Pool   DatabasePoolConfig `mapstructure:"pool"`
}

// JWTConfig JWT 配置（令牌携带 tenant_id 与 actor）
type JWTConfig struct {
	SecretKey   string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
	Issuer      string `mapstructure:"issuer"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// QueueConfig 异步队列配置
type QueueConfig struct {
	Enabled     bool           `mapstructure:"enabled"`
	Host        string         `mapstructure:"host"`
	Port        int            `mapstructure:"port"`
	Password    string         `mapstructure:"password"`
	DB          int            `mapstructure:"db"`
	Concurrency int            `mapstructure:"concurrency"`
	Queues      map[string]int `mapstructure:"queues"`
}

// CORSConfig 跨域配置
type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	VerifyRateLimit RateLimitConfig `mapstructure:"verify_rate_limit"`
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	WindowSeconds int `mapstructure:"window_seconds"`
	MaxRequests   int `mapstructure:"max_requests"`
	BlockSeconds  int `mapstructure:"block_seconds"`
}

// CodesConfig 发码配置
type CodesConfig struct {
	RootSecret       string `mapstructure:"root_secret"`       // 租户密钥派生根密钥
	TokenBytes       int    `mapstructure:"token_bytes"`       // 令牌随机字节数（至少 16）
	MicroCheckBytes  int    `mapstructure:"micro_check_bytes"` // 微码校验值字节数
	WatermarkBytes   int    `mapstructure:"watermark_bytes"`   // 水印哈希字节数
	MaxMintRetries   int    `mapstructure:"max_mint_retries"`  // 令牌冲突重试次数
	VerifyBaseURL    string `mapstructure:"verify_base_url"`   // 校验页基础地址
	DefaultTTLInDays int    `mapstructure:"default_ttl_days"`  // 无批次时的默认有效期（0 为永久）
}

// QuotaConfig 发码配额配置
type QuotaConfig struct {
	MonthlyLimit  int64            `mapstructure:"monthly_limit"`
	MaxBatchSize  int64            `mapstructure:"max_batch_size"`
	TenantMonthly map[string]int64 `mapstructure:"tenant_monthly"` // 按租户覆盖月度上限
}

// BulkConfig 批处理配置
type BulkConfig struct {
	ChunkSize          int `mapstructure:"chunk_size"`
	ProgressTTLSeconds int `mapstructure:"progress_ttl_seconds"`
	MaxErrorsKept      int `mapstructure:"max_errors_kept"`
}

// Normalize 补齐非法配置为默认值
func (c CodesConfig) Normalize() CodesConfig {
	if c.TokenBytes < constants.DefaultTokenBytes {
		c.TokenBytes = constants.DefaultTokenBytes
	}
	if c.MicroCheckBytes < 8 || c.MicroCheckBytes > 32 {
		c.MicroCheckBytes = constants.DefaultDerivationBytes
	}
	if c.WatermarkBytes < 8 || c.WatermarkBytes > 32 {
		c.WatermarkBytes = constants.DefaultDerivationBytes
	}
	if c.MaxMintRetries <= 0 {
		c.MaxMintRetries = constants.DefaultMintRetryLimit
	}
	return c
}

// Normalize 补齐非法配置为默认值
func (c BulkConfig) Normalize() BulkConfig {
	if c.ChunkSize <= 0 {
		c.ChunkSize = constants.DefaultBulkChunkSize
	}
	if c.ProgressTTLSeconds <= 0 {
		c.ProgressTTLSeconds = 86400
	}
	if c.MaxErrorsKept <= 0 {
		c.MaxErrorsKept = 1000
	}
	return c
}

// Load 从 .env 与 config.yml 加载配置
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Warnw("dotenv_load_failed", "error", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")     // 从当前目录查找
	viper.AddConfigPath("../")   // 如果从 cmd/server 运行
	viper.AddConfigPath("./etc") // etc 文件夹

	setDefaults(viper.GetViper())

	// 环境变量支持
	viper.AutomaticEnv()                                   // 自动读取环境变量
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // 将 . 替换为 _ (例如 server.port -> SERVER_PORT)

	if err := viper.ReadInConfig(); err != nil {
		logger.Warnw("config_file_read_failed",
			"error", err,
			"fallback", "env_or_defaults",
		)
	} else {
		logger.Infow("config_file_loaded", "file", viper.ConfigFileUsed())
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		logger.Errorw("config_unmarshal_failed", "error", err)
		panic(fmt.Errorf("配置解析失败: %w", err))
	}
	cfg.Codes = cfg.Codes.Normalize()
	cfg.Bulk = cfg.Bulk.Normalize()
	if strings.TrimSpace(cfg.Codes.RootSecret) == "" {
		logger.Warnw("codes_root_secret_missing", "fallback", "jwt.secret")
		cfg.Codes.RootSecret = cfg.JWT.SecretKey
	}

	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("log.dir", "")
	v.SetDefault("log.filename", "app.log")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 7)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("log.compress", true)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./db/qr.db")
	v.SetDefault("database.pool.max_open_conns", 1)
	v.SetDefault("database.pool.max_idle_conns", 1)
	v.SetDefault("database.pool.conn_max_lifetime_seconds", 0)
	v.SetDefault("database.pool.conn_max_idle_time_seconds", 0)
	v.SetDefault("jwt.secret", "change-me-in-production")
	v.SetDefault("jwt.expire_hours", 24)
	v.SetDefault("jwt.issuer", "qr-backend")
	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", constants.RedisPrefixDefault)
	v.SetDefault("queue.enabled", true)
	v.SetDefault("queue.host", "127.0.0.1")
	v.SetDefault("queue.port", 6379)
	v.SetDefault("queue.password", "")
	v.SetDefault("queue.db", 1)
	v.SetDefault("queue.concurrency", 4)
	v.SetDefault("queue.queues", map[string]int{
		constants.QueueDefault:  10,
		constants.QueueCritical: 5,
	})
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{
		"Content-Type",
		"Content-Length",
		"Accept-Encoding",
		"Authorization",
		"Cache-Control",
		"X-Requested-With",
		"X-Request-ID",
	})
	v.SetDefault("cors.allow_credentials", true)
	v.SetDefault("cors.max_age", 600)
	v.SetDefault("security.verify_rate_limit.window_seconds", 60)
	v.SetDefault("security.verify_rate_limit.max_requests", 30)
	v.SetDefault("security.verify_rate_limit.block_seconds", 300)
	v.SetDefault("codes.root_secret", "")
	v.SetDefault("codes.token_bytes", constants.DefaultTokenBytes)
	v.SetDefault("codes.micro_check_bytes", constants.DefaultDerivationBytes)
	v.SetDefault("codes.watermark_bytes", constants.DefaultDerivationBytes)
	v.SetDefault("codes.max_mint_retries", constants.DefaultMintRetryLimit)
	v.SetDefault("codes.verify_base_url", "")
	v.SetDefault("codes.default_ttl_days", 0)
	v.SetDefault("quota.monthly_limit", 100000)
	v.SetDefault("quota.max_batch_size", 10000)
	v.SetDefault("bulk.chunk_size", constants.DefaultBulkChunkSize)
	v.SetDefault("bulk.progress_ttl_seconds", 86400)
	v.SetDefault("bulk.max_errors_kept", 1000)
}
