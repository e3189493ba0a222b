package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig          `mapstructure:"server"`
	Database  DatabaseConfig        `mapstructure:"database"`
	Redis     RedisConfig           `mapstructure:"redis"`
	JWT       JWTConfig             `mapstructure:"jwt"`
	Auth      AuthConfig            `mapstructure:"auth"`
	Password  PasswordConfig        `mapstructure:"password"`
	Plans     map[string]PlanConfig `mapstructure:"plans"`
	RateLimit RateLimitConfig       `mapstructure:"rate_limit"`
	OAuth     OAuthConfig           `mapstructure:"oauth"`
	Billing   BillingConfig         `mapstructure:"billing"`
	CORS      CORSConfig            `mapstructure:"cors"`
	Log       LogConfig             `mapstructure:"log"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
	// SecureCookie 会话 cookie 是否只在 HTTPS 下发送
	SecureCookie bool `mapstructure:"secure_cookie"`
}

type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"` // mysql, postgres, sqlite
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	DSN          string `mapstructure:"dsn"` // 设置后忽略上面的连接参数
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// JWTConfig 会话令牌配置。更换 Secret 会让所有已签发的令牌失效。
type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	TTL    time.Duration `mapstructure:"ttl"`
	Issuer string        `mapstructure:"issuer"`
}

type AuthConfig struct {
	LockoutThreshold int           `mapstructure:"lockout_threshold"`
	LockoutDuration  time.Duration `mapstructure:"lockout_duration"`
	BcryptCost       int           `mapstructure:"bcrypt_cost"`
	HashConcurrency  int           `mapstructure:"hash_concurrency"`
	RepoTimeout      time.Duration `mapstructure:"repo_timeout"`
}

type PasswordConfig struct {
	MinLength      int  `mapstructure:"min_length"`
	MaxLength      int  `mapstructure:"max_length"`
	RequireUpper   bool `mapstructure:"require_upper"`
	RequireLower   bool `mapstructure:"require_lower"`
	RequireDigit   bool `mapstructure:"require_digit"`
	RequireSpecial bool `mapstructure:"require_special"`
}

// PlanConfig 套餐限额，MonthlyQuota 为 -1 表示不限量
type PlanConfig struct {
	MonthlyQuota      int `mapstructure:"monthly_quota"`
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
	RequestsPerHour   int `mapstructure:"requests_per_hour"`
	PeriodDays        int `mapstructure:"period_days"`
}

type RateLimitConfig struct {
	IdleWindows   int           `mapstructure:"idle_windows"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	Shards        int           `mapstructure:"shards"`
}

type OAuthConfig struct {
	Github GithubOAuthConfig `mapstructure:"github"`
}

type GithubOAuthConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RedirectURI  string `mapstructure:"redirect_uri"`
}

type BillingConfig struct {
	WebhookSecret string `mapstructure:"webhook_secret"`
	Queue         string `mapstructure:"queue"`
	MaxWorkers    int    `mapstructure:"max_workers"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// 内置套餐
const (
	PlanFree       = "free"
	PlanPro        = "pro"
	PlanEnterprise = "enterprise"
)

func Load(configPath string) (*Config, error) {
	// 优先尝试读取 config.local.yaml（包含真实密钥，不提交到git）
	dir := filepath.Dir(configPath)
	localConfigPath := filepath.Join(dir, "config.local.yaml")
	if _, err := os.Stat(localConfigPath); err == nil {
		configPath = localConfigPath
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	// 环境变量覆盖
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.secure_cookie", false)

	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.host", "127.0.0.1")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.username", "root")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "hashtag")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 50)

	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.ttl", "72h")
	v.SetDefault("jwt.issuer", "hashtag-server")

	v.SetDefault("auth.lockout_threshold", 5)
	v.SetDefault("auth.lockout_duration", "15m")
	v.SetDefault("auth.bcrypt_cost", 12)
	v.SetDefault("auth.hash_concurrency", 0)
	v.SetDefault("auth.repo_timeout", "5s")

	v.SetDefault("password.min_length", 8)
	v.SetDefault("password.max_length", 72)
	v.SetDefault("password.require_upper", true)
	v.SetDefault("password.require_lower", true)
	v.SetDefault("password.require_digit", true)
	v.SetDefault("password.require_special", false)

	for id, plan := range DefaultPlans() {
		prefix := "plans." + id + "."
		v.SetDefault(prefix+"monthly_quota", plan.MonthlyQuota)
		v.SetDefault(prefix+"requests_per_minute", plan.RequestsPerMinute)
		v.SetDefault(prefix+"requests_per_hour", plan.RequestsPerHour)
		v.SetDefault(prefix+"period_days", plan.PeriodDays)
	}

	v.SetDefault("rate_limit.idle_windows", 3)
	v.SetDefault("rate_limit.sweep_interval", "1m")
	v.SetDefault("rate_limit.shards", 32)

	v.SetDefault("oauth.github.client_id", "")
	v.SetDefault("oauth.github.client_secret", "")
	v.SetDefault("oauth.github.redirect_uri", "")

	v.SetDefault("billing.webhook_secret", "")
	v.SetDefault("billing.queue", "billing_events")
	v.SetDefault("billing.max_workers", 2)

	v.SetDefault("cors.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{"Authorization", "Content-Type"})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)
}

// DefaultPlans 返回内置套餐限额
func DefaultPlans() map[string]PlanConfig {
	return map[string]PlanConfig{
		PlanFree:       {MonthlyQuota: 100, RequestsPerMinute: 10, RequestsPerHour: 100, PeriodDays: 30},
		PlanPro:        {MonthlyQuota: 1000, RequestsPerMinute: 60, RequestsPerHour: 1000, PeriodDays: 30},
		PlanEnterprise: {MonthlyQuota: -1, RequestsPerMinute: 300, RequestsPerHour: 10000, PeriodDays: 30},
	}
}

// Validate 检查配置是否可用于启动服务
func (c *Config) Validate() error {
	if len(c.JWT.Secret) < 32 {
		return fmt.Errorf("jwt.secret must be at least 32 bytes")
	}
	if c.JWT.TTL <= 0 {
		return fmt.Errorf("jwt.ttl must be positive")
	}
	if c.Auth.LockoutThreshold <= 0 {
		return fmt.Errorf("auth.lockout_threshold must be positive")
	}
	if c.Auth.LockoutDuration <= 0 {
		return fmt.Errorf("auth.lockout_duration must be positive")
	}
	if _, ok := c.Plans[PlanFree]; !ok {
		return fmt.Errorf("plans.%s is required", PlanFree)
	}
	for id, plan := range c.Plans {
		if id != PlanFree && id != PlanPro && id != PlanEnterprise {
			return fmt.Errorf("unknown plan %q", id)
		}
		if plan.MonthlyQuota < -1 {
			return fmt.Errorf("plans.%s.monthly_quota must be -1 or non-negative", id)
		}
		if plan.RequestsPerMinute <= 0 {
			return fmt.Errorf("plans.%s.requests_per_minute must be positive", id)
		}
	}
	return nil
}
