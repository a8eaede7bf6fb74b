package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	StrategyCounter = "counter"
	StrategyMax     = "max"
	StrategyRedis   = "redis"
)

type Config struct {
	Port    string
	GinMode string

	DBDriver string // sqlite, mysql, postgres
	DBDSN    string

	TableCount int

	SessionTTL        time.Duration
	SessionRateLimit  int
	SessionRateWindow time.Duration

	OrderNumberBase     int
	OrderNumberStrategy string
	RedisAddr           string

	AMQPURL string

	RetentionAge      time.Duration
	RetentionInterval time.Duration

	JWTSecret     string
	JWTTTL        time.Duration
	AdminEmail    string
	AdminPassword string

	PublicBaseURL string
	CORSOrigins   []string
	IPRateLimit   int

	LogLevel  string
	LogFormat string

	PolicyFile string
	Policy     Policy
}

var defaults = map[string]interface{}{
	"port":                  "8080",
	"gin_mode":              "debug",
	"db_driver":             "sqlite",
	"db_dsn":                "file:cafe.db?_busy_timeout=5000",
	"table_count":           10,
	"session_ttl":           "90m",
	"session_rate_limit":    5,
	"session_rate_window":   "1m",
	"order_number_base":     1000,
	"order_number_strategy": StrategyCounter,
	"redis_addr":            "localhost:6379",
	"amqp_url":              "",
	"retention_age":         "72h",
	"retention_interval":    "6h",
	"jwt_secret":            "",
	"jwt_ttl":               "12h",
	"admin_email":           "",
	"admin_password":        "",
	"public_base_url":       "http://localhost:8080",
	"cors_origins":          "*",
	"ip_rate_limit":         120,
	"log_level":             "info",
	"log_format":            "text",
	"policy_file":           "",
	"policy_preset":         PresetDefault,
}

// NewViper returns a viper instance reading the process environment
// (PORT, DB_DRIVER, SESSION_TTL, ...) on top of the built-in defaults.
func NewViper() *viper.Viper {
	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	v.AutomaticEnv()
	return v
}

// Load reads .env (if present) and resolves the configuration through v.
func Load(v *viper.Viper) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{
		Port:                v.GetString("port"),
		GinMode:             v.GetString("gin_mode"),
		DBDriver:            strings.ToLower(v.GetString("db_driver")),
		DBDSN:               v.GetString("db_dsn"),
		TableCount:          v.GetInt("table_count"),
		SessionTTL:          v.GetDuration("session_ttl"),
		SessionRateLimit:    v.GetInt("session_rate_limit"),
		SessionRateWindow:   v.GetDuration("session_rate_window"),
		OrderNumberBase:     v.GetInt("order_number_base"),
		OrderNumberStrategy: strings.ToLower(v.GetString("order_number_strategy")),
		RedisAddr:           v.GetString("redis_addr"),
		AMQPURL:             v.GetString("amqp_url"),
		RetentionAge:        v.GetDuration("retention_age"),
		RetentionInterval:   v.GetDuration("retention_interval"),
		JWTSecret:           v.GetString("jwt_secret"),
		JWTTTL:              v.GetDuration("jwt_ttl"),
		AdminEmail:          v.GetString("admin_email"),
		AdminPassword:       v.GetString("admin_password"),
		PublicBaseURL:       v.GetString("public_base_url"),
		CORSOrigins:         splitList(v.GetString("cors_origins")),
		IPRateLimit:         v.GetInt("ip_rate_limit"),
		LogLevel:            v.GetString("log_level"),
		LogFormat:           v.GetString("log_format"),
		PolicyFile:          v.GetString("policy_file"),
	}

	policy, err := PresetPolicy(v.GetString("policy_preset"))
	if err != nil {
		return nil, err
	}
	if cfg.PolicyFile != "" {
		if policy, err = LoadPolicy(cfg.PolicyFile); err != nil {
			return nil, err
		}
	}
	cfg.Policy = policy

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.DBDriver {
	case "sqlite", "mysql", "postgres":
	default:
		return fmt.Errorf("DB_DRIVER must be sqlite, mysql or postgres, got %q", c.DBDriver)
	}
	if c.DBDSN == "" {
		return errors.New("DB_DSN is required")
	}
	if c.TableCount <= 0 {
		return fmt.Errorf("TABLE_COUNT must be positive, got %d", c.TableCount)
	}
	if c.SessionTTL <= 0 {
		return errors.New("SESSION_TTL must be positive")
	}
	if c.SessionRateLimit <= 0 || c.SessionRateWindow <= 0 {
		return errors.New("SESSION_RATE_LIMIT and SESSION_RATE_WINDOW must be positive")
	}
	if c.OrderNumberBase <= 0 {
		return errors.New("ORDER_NUMBER_BASE must be positive")
	}
	switch c.OrderNumberStrategy {
	case StrategyCounter, StrategyMax:
	case StrategyRedis:
		if c.RedisAddr == "" {
			return errors.New("REDIS_ADDR is required for the redis order number strategy")
		}
	default:
		return fmt.Errorf("ORDER_NUMBER_STRATEGY must be counter, max or redis, got %q", c.OrderNumberStrategy)
	}
	if c.RetentionAge < 24*time.Hour {
		return errors.New("RETENTION_AGE must be at least 24h")
	}
	if c.RetentionInterval <= 0 {
		return errors.New("RETENTION_INTERVAL must be positive")
	}
	if c.IPRateLimit < 0 {
		return errors.New("IP_RATE_LIMIT must not be negative")
	}
	if c.JWTTTL <= 0 {
		return errors.New("JWT_TTL must be positive")
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
