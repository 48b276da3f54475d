package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"trade-settlement/internal/logging"
	"trade-settlement/internal/version"
)

// EnvPrefix prefixes every environment override, e.g. TRADESETTLE_AUTH_JWT_SECRET.
const EnvPrefix = "TRADESETTLE"

// Config materialises application configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Logging  logging.Config `mapstructure:"logging"`
	Server   ServerConfig   `mapstructure:"server"`
	Quote    QuoteConfig    `mapstructure:"quote"`
	Workflow WorkflowConfig `mapstructure:"workflow"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Session  SessionConfig  `mapstructure:"session"`
	Events   EventsConfig   `mapstructure:"events"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Board    BoardConfig    `mapstructure:"board"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// ServerConfig covers the HTTP surface.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	BodyLimit       int           `mapstructure:"body_limit"`
	AllowOrigins    string        `mapstructure:"allow_origins"`
	RateLimit       int           `mapstructure:"rate_limit"`
	RateWindow      time.Duration `mapstructure:"rate_window"`
}

// QuoteConfig points at the external rate source.
type QuoteConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// WorkflowConfig governs payment rules.
type WorkflowConfig struct {
	FreshnessWindow time.Duration `mapstructure:"freshness_window"`
	ExecutorTimeout time.Duration `mapstructure:"executor_timeout"`
	AllowFallback   bool          `mapstructure:"allow_fallback"`
	// ExecutorURL selects a remote executor for the trade command; empty runs in process.
	ExecutorURL string `mapstructure:"executor_url"`
}

// AuthConfig holds bearer verification and the client-side token.
type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	Issuer    string        `mapstructure:"issuer"`
	Leeway    time.Duration `mapstructure:"leeway"`
	Token     string        `mapstructure:"token"`
}

// SessionConfig selects the session store.
type SessionConfig struct {
	Backend   string        `mapstructure:"backend"`
	TTL       time.Duration `mapstructure:"ttl"`
	RedisURL  string        `mapstructure:"redis_url"`
	KeyPrefix string        `mapstructure:"key_prefix"`
	LockTTL   time.Duration `mapstructure:"lock_ttl"`
}

// EventsConfig enables Kafka trade events.
type EventsConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// NotifyConfig routes settlement notifications.
type NotifyConfig struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes the Telegram bot.
type TelegramConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	BotToken string        `mapstructure:"bot_token"`
	ChatID   string        `mapstructure:"chat_id"`
	APIBase  string        `mapstructure:"api_base"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// BoardConfig sets rate board defaults.
type BoardConfig struct {
	Base          string        `mapstructure:"base"`
	Symbols       []string      `mapstructure:"symbols"`
	Interval      time.Duration `mapstructure:"interval"`
	AlignToBucket bool          `mapstructure:"align_to_bucket"`
	MaxPoints     int           `mapstructure:"max_points"`
}

// Load builds configuration from .env, file, environment, and defaults.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// loadDotEnv exports variables from path without overriding the real environment.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "tradesettle")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stderr")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.body_limit", 64*1024)
	v.SetDefault("server.allow_origins", "*")
	v.SetDefault("server.rate_limit", 60)
	v.SetDefault("server.rate_window", "1m")

	v.SetDefault("quote.base_url", "https://api.exchangerate.host")
	v.SetDefault("quote.api_key", "")
	v.SetDefault("quote.request_timeout", "5s")
	v.SetDefault("quote.user_agent", version.UserAgent())

	v.SetDefault("workflow.freshness_window", "60s")
	v.SetDefault("workflow.executor_timeout", "10s")
	v.SetDefault("workflow.allow_fallback", false)
	v.SetDefault("workflow.executor_url", "")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "")
	v.SetDefault("auth.leeway", "30s")
	v.SetDefault("auth.token", "")

	v.SetDefault("session.backend", "memory")
	v.SetDefault("session.ttl", "30m")
	v.SetDefault("session.redis_url", "")
	v.SetDefault("session.key_prefix", "tradesettle:session:")
	v.SetDefault("session.lock_ttl", "30s")

	v.SetDefault("events.enabled", false)
	v.SetDefault("events.brokers", []string{})
	v.SetDefault("events.topic", "trade.executed")
	v.SetDefault("events.write_timeout", "5s")

	v.SetDefault("notify.telegram.enabled", false)
	v.SetDefault("notify.telegram.bot_token", "")
	v.SetDefault("notify.telegram.chat_id", "")
	v.SetDefault("notify.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("notify.telegram.timeout", "10s")

	v.SetDefault("board.base", "USD")
	v.SetDefault("board.symbols", []string{"EUR", "GBP", "JPY", "CHF"})
	v.SetDefault("board.interval", "1m")
	v.SetDefault("board.align_to_bucket", true)
	v.SetDefault("board.max_points", 1000)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Quote.RequestTimeout <= 0 {
		return fmt.Errorf("quote.request_timeout must be greater than zero")
	}
	if c.Workflow.ExecutorTimeout <= 0 {
		return fmt.Errorf("workflow.executor_timeout must be greater than zero")
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("server.rate_limit cannot be negative")
	}
	if c.Server.RateLimit > 0 && c.Server.RateWindow <= 0 {
		return fmt.Errorf("server.rate_window must be greater than zero when rate limiting")
	}
	switch strings.ToLower(c.Session.Backend) {
	case "memory":
	case "redis":
		if c.Session.RedisURL == "" {
			return fmt.Errorf("session.redis_url is required for the redis backend")
		}
	default:
		return fmt.Errorf("session.backend must be memory or redis, got %q", c.Session.Backend)
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("session.ttl must be greater than zero")
	}
	if c.Events.Enabled {
		if len(c.Events.Brokers) == 0 {
			return fmt.Errorf("events.brokers is required when events are enabled")
		}
		if c.Events.Topic == "" {
			return fmt.Errorf("events.topic is required when events are enabled")
		}
	}
	if c.Notify.Telegram.Enabled {
		if c.Notify.Telegram.BotToken == "" {
			return fmt.Errorf("notify.telegram.bot_token is required")
		}
		if c.Notify.Telegram.ChatID == "" {
			return fmt.Errorf("notify.telegram.chat_id is required")
		}
	}
	if c.Board.MaxPoints <= 0 {
		return fmt.Errorf("board.max_points must be greater than zero")
	}
	if c.Board.Interval <= 0 {
		return fmt.Errorf("board.interval must be greater than zero")
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Board.MaxPoints
}
