package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"ethpoint/internal/model"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Quota    QuotaConfig    `mapstructure:"quota"`
	Payments PaymentsConfig `mapstructure:"payments"`
	Admin    AdminConfig    `mapstructure:"admin"`
	Business BusinessConfig `mapstructure:"business"`
}

type ServerConfig struct {
	Port       int    `mapstructure:"port"`
	CORSOrigin string `mapstructure:"cors_origin"`
	StaticRoot string `mapstructure:"static_root"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type DatabaseConfig struct {
	Dialect      string `mapstructure:"dialect"`
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	LogLevel     string `mapstructure:"log_level"`
}

// RedisConfig with an empty Addr disables distributed account locks.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// KafkaConfig with no brokers disables the outbox sender.
type KafkaConfig struct {
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	PaymentEvents string `mapstructure:"payment_events"`
	AccountEvents string `mapstructure:"account_events"`
}

type AuthConfig struct {
	JWTSecret  string        `mapstructure:"jwt_secret"`
	TokenTTL   time.Duration `mapstructure:"token_ttl"`
	BcryptCost int           `mapstructure:"bcrypt_cost"`
}

type QuotaConfig struct {
	ResetDelay   time.Duration `mapstructure:"reset_delay"`
	ResetDelayMS int64         `mapstructure:"reset_delay_ms"`
}

// PaymentsConfig maps payment method ids to payout addresses.
type PaymentsConfig struct {
	Addresses map[string]string `mapstructure:"addresses"`
}

type AdminConfig struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type BusinessConfig struct {
	OutboxInterval  time.Duration `mapstructure:"outbox_interval"`
	OutboxBatchSize int           `mapstructure:"outbox_batch_size"`
	MaxRetryCount   int           `mapstructure:"max_retry_count"`
	AdminPageLimit  int           `mapstructure:"admin_page_limit"`
}

const DefaultJWTSecret = "super-secret-ethpoint-key"

// envAliases lists the environment variables read for each key, first match wins.
var envAliases = map[string][]string{
	"server.port":                {"PORT", "SERVER_PORT"},
	"server.cors_origin":         {"CORS_ORIGIN"},
	"server.static_root":         {"STATIC_ROOT"},
	"log.level":                  {"LOG_LEVEL"},
	"log.format":                 {"LOG_FORMAT"},
	"database.dialect":           {"DB_DIALECT"},
	"database.dsn":               {"DATABASE_DSN"},
	"database.max_open_conns":    {"DB_MAX_OPEN_CONNS"},
	"database.max_idle_conns":    {"DB_MAX_IDLE_CONNS"},
	"database.log_level":         {"DB_LOG_LEVEL"},
	"redis.addr":                 {"REDIS_ADDR"},
	"redis.password":             {"REDIS_PASSWORD"},
	"redis.db":                   {"REDIS_DB"},
	"kafka.brokers":              {"KAFKA_BROKERS"},
	"kafka.topic.payment_events": {"KAFKA_TOPIC_PAYMENT_EVENTS"},
	"kafka.topic.account_events": {"KAFKA_TOPIC_ACCOUNT_EVENTS"},
	"auth.jwt_secret":            {"JWT_SECRET"},
	"auth.token_ttl":             {"TOKEN_TTL"},
	"auth.bcrypt_cost":           {"BCRYPT_COST"},
	"quota.reset_delay":          {"RESET_DELAY"},
	"quota.reset_delay_ms":       {"RESET_DELAY_MS"},
	"admin.username":             {"DEFAULT_ADMIN_USERNAME"},
	"admin.password":             {"DEFAULT_ADMIN_PASSWORD"},
	"business.outbox_interval":   {"OUTBOX_INTERVAL"},
	"business.outbox_batch_size": {"OUTBOX_BATCH_SIZE"},
	"business.max_retry_count":   {"OUTBOX_MAX_RETRY_COUNT"},
	"business.admin_page_limit":  {"ADMIN_PAGE_LIMIT"},
}

// AddressEnvName returns the environment variable holding the payout address
// of a payment method, e.g. usdt-bep20 -> ADDRESS_USDT_BEP20.
func AddressEnvName(methodID string) string {
	return "ADDRESS_" + strings.ToUpper(strings.ReplaceAll(methodID, "-", "_"))
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.cors_origin", "*")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("database.dialect", "sqlite")
	v.SetDefault("database.dsn", "ethpoint.db")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic.payment_events", "ethpoint.payment.events")
	v.SetDefault("kafka.topic.account_events", "ethpoint.account.events")
	v.SetDefault("auth.jwt_secret", DefaultJWTSecret)
	v.SetDefault("auth.token_ttl", 7*24*time.Hour)
	v.SetDefault("auth.bcrypt_cost", 12)
	v.SetDefault("quota.reset_delay", time.Hour)
	v.SetDefault("quota.reset_delay_ms", 0)
	v.SetDefault("business.outbox_interval", time.Second)
	v.SetDefault("business.outbox_batch_size", 100)
	v.SetDefault("business.max_retry_count", 5)
	v.SetDefault("business.admin_page_limit", 100)
}

// Load reads the optional YAML file at configPath and applies environment overrides.
// A missing file is not an error; every key has a default or an environment source.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	for key, envs := range envAliases {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	for _, method := range model.DefaultPaymentMethods() {
		if err := v.BindEnv("payments.addresses."+method.ID, AddressEnvName(method.ID)); err != nil {
			return nil, fmt.Errorf("bind env for %s: %w", method.ID, err)
		}
	}

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			v.SetConfigType("yaml")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if cfg.Quota.ResetDelayMS > 0 {
		cfg.Quota.ResetDelay = time.Duration(cfg.Quota.ResetDelayMS) * time.Millisecond
	}
	if cfg.Payments.Addresses == nil {
		cfg.Payments.Addresses = map[string]string{}
	}
	for id, addr := range cfg.Payments.Addresses {
		cfg.Payments.Addresses[id] = strings.TrimSpace(addr)
	}
	cfg.Kafka.Brokers = compact(cfg.Kafka.Brokers)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch strings.ToLower(c.Database.Dialect) {
	case "mysql", "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database dialect %q", c.Database.Dialect)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database dsn is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("jwt secret is required")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("token ttl must be positive")
	}
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		return fmt.Errorf("bcrypt cost must be between 4 and 31, got %d", c.Auth.BcryptCost)
	}
	if c.Quota.ResetDelay <= 0 {
		return fmt.Errorf("quota reset delay must be positive")
	}
	return nil
}

func compact(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
