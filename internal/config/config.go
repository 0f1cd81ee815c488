// Package config provides configuration loading, defaults, and validation.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/neilnvaidya/owlby-api/internal/domain"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Log           LogConfig           `mapstructure:"log"`
	CORS          CORSConfig          `mapstructure:"cors"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Auth          AuthConfig          `mapstructure:"auth"`
	AI            AIConfig            `mapstructure:"ai"`
	Gate          GateConfig          `mapstructure:"gate"`
	Limits        LimitsConfig        `mapstructure:"limits"`
	RateLimit     RateLimitConfig     `mapstructure:"rate_limit"`
	UsageRecorder UsageRecorderConfig `mapstructure:"usage_recorder"`
	Retention     RetentionConfig     `mapstructure:"retention"`
}

type ServerConfig struct {
	Host              string `mapstructure:"host"`
	Port              int    `mapstructure:"port"`
	Mode              string `mapstructure:"mode"`
	ReadHeaderTimeout int    `mapstructure:"read_header_timeout"`
	IdleTimeout       int    `mapstructure:"idle_timeout"`
}

func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	ToStdout   bool   `mapstructure:"to_stdout"`
	FilePath   string `mapstructure:"file_path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	Name            string `mapstructure:"name"`
	SSLMode         string `mapstructure:"sslmode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

type AuthConfig struct {
	JWTSecret       string `mapstructure:"jwt_secret"`
	CacheSize       int    `mapstructure:"cache_size"`
	CacheTTLSeconds int    `mapstructure:"cache_ttl_seconds"`
}

// ModelChain is the ordered candidate list for one route.
type ModelChain struct {
	Primary   string `mapstructure:"primary"`
	Fallback1 string `mapstructure:"fallback1"`
	Fallback2 string `mapstructure:"fallback2"`
}

// Tiers returns the chain as a de-duplicated ordered list. A fallback entry
// that repeats an earlier entry is dropped so one dispatch never executes the
// identical model twice.
func (c ModelChain) Tiers() []string {
	tiers := make([]string, 0, 3)
	seen := make(map[string]struct{}, 3)
	for _, model := range []string{c.Primary, c.Fallback1, c.Fallback2} {
		model = strings.TrimSpace(model)
		if model == "" {
			continue
		}
		if _, dup := seen[model]; dup {
			continue
		}
		seen[model] = struct{}{}
		tiers = append(tiers, model)
	}
	return tiers
}

type AIConfig struct {
	APIKey           string                `mapstructure:"api_key"`
	BaseURL          string                `mapstructure:"base_url"`
	AttemptTimeoutMs int                   `mapstructure:"attempt_timeout_ms"`
	TotalBudgetMs    int                   `mapstructure:"total_budget_ms"`
	PrimaryAttempts  int                   `mapstructure:"primary_attempts"`
	RetryBackoffMs   int                   `mapstructure:"retry_backoff_ms"`
	Routes           map[string]ModelChain `mapstructure:"routes"`
}

type GateConfig struct {
	TimeoutMs int             `mapstructure:"timeout_ms"`
	Cache     GateCacheConfig `mapstructure:"cache"`
}

type GateCacheConfig struct {
	Size          int `mapstructure:"size"`
	TTLSeconds    int `mapstructure:"ttl_seconds"`
	JitterPercent int `mapstructure:"jitter_percent"`
}

type LimitsConfig struct {
	ChatDaily   int `mapstructure:"chat_daily"`
	LessonDaily int `mapstructure:"lesson_daily"`
	StoryDaily  int `mapstructure:"story_daily"`
}

// ByRoute maps each route to its free-tier daily limit.
func (c LimitsConfig) ByRoute() map[string]int {
	return map[string]int{
		domain.RouteChat:   c.ChatDaily,
		domain.RouteLesson: c.LessonDaily,
		domain.RouteStory:  c.StoryDaily,
	}
}

type RateLimitConfig struct {
	Requests       int `mapstructure:"requests"`
	WindowSeconds  int `mapstructure:"window_seconds"`
	IdleTTLSeconds int `mapstructure:"idle_ttl_seconds"`
}

func (c RateLimitConfig) Window() time.Duration {
	return time.Duration(c.WindowSeconds) * time.Second
}

type UsageRecorderConfig struct {
	Workers   int `mapstructure:"workers"`
	QueueSize int `mapstructure:"queue_size"`
}

type RetentionConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Days     int    `mapstructure:"days"`
	Schedule string `mapstructure:"schedule"`
}

// Load reads config.yaml (if present), applies env overrides and defaults,
// and validates the result.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/owlby")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.mode", "release")
	viper.SetDefault("server.read_header_timeout", 30)
	viper.SetDefault("server.idle_timeout", 120)

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "console")
	viper.SetDefault("log.to_stdout", true)
	viper.SetDefault("log.file_path", "")
	viper.SetDefault("log.max_size_mb", 100)
	viper.SetDefault("log.max_backups", 10)
	viper.SetDefault("log.max_age_days", 30)
	viper.SetDefault("log.compress", true)

	viper.SetDefault("cors.allowed_origins", []string{})
	viper.SetDefault("cors.allow_credentials", false)

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "owlby")
	viper.SetDefault("database.password", "")
	viper.SetDefault("database.name", "owlby")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("database.max_open_conns", 20)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", 300)

	viper.SetDefault("auth.jwt_secret", "")
	viper.SetDefault("auth.cache_size", 2048)
	viper.SetDefault("auth.cache_ttl_seconds", 300)

	viper.SetDefault("ai.api_key", "")
	viper.SetDefault("ai.base_url", "https://generativelanguage.googleapis.com")
	viper.SetDefault("ai.attempt_timeout_ms", 12000)
	viper.SetDefault("ai.total_budget_ms", 15000)
	viper.SetDefault("ai.primary_attempts", 1)
	viper.SetDefault("ai.retry_backoff_ms", 250)
	viper.SetDefault("ai.routes.chat.primary", "gemini-2.5-flash")
	viper.SetDefault("ai.routes.chat.fallback1", "gemini-2.5-flash-lite")
	viper.SetDefault("ai.routes.chat.fallback2", "gemini-2.0-flash")
	viper.SetDefault("ai.routes.lesson.primary", "gemini-2.5-pro")
	viper.SetDefault("ai.routes.lesson.fallback1", "gemini-2.5-flash")
	viper.SetDefault("ai.routes.lesson.fallback2", "gemini-2.5-flash-lite")
	viper.SetDefault("ai.routes.story.primary", "gemini-2.5-pro")
	viper.SetDefault("ai.routes.story.fallback1", "gemini-2.5-flash")
	viper.SetDefault("ai.routes.story.fallback2", "gemini-2.0-flash")

	viper.SetDefault("gate.timeout_ms", 4000)
	viper.SetDefault("gate.cache.size", 4096)
	viper.SetDefault("gate.cache.ttl_seconds", 30)
	viper.SetDefault("gate.cache.jitter_percent", 10)

	viper.SetDefault("limits.chat_daily", 10)
	viper.SetDefault("limits.lesson_daily", 5)
	viper.SetDefault("limits.story_daily", 5)

	viper.SetDefault("rate_limit.requests", 30)
	viper.SetDefault("rate_limit.window_seconds", 60)
	viper.SetDefault("rate_limit.idle_ttl_seconds", 600)

	viper.SetDefault("usage_recorder.workers", 2)
	viper.SetDefault("usage_recorder.queue_size", 256)

	viper.SetDefault("retention.enabled", true)
	viper.SetDefault("retention.days", 90)
	viper.SetDefault("retention.schedule", "0 3 * * *")
}

func (c *Config) validate() error {
	for _, route := range domain.Routes {
		chain, ok := c.AI.Routes[route]
		if !ok {
			return fmt.Errorf("ai.routes.%s is not configured", route)
		}
		if len(chain.Tiers()) == 0 {
			return fmt.Errorf("ai.routes.%s.primary must be set", route)
		}
	}
	for route, limit := range c.Limits.ByRoute() {
		if limit <= 0 {
			return fmt.Errorf("limits: daily limit for %s must be positive", route)
		}
	}
	if c.AI.AttemptTimeoutMs <= 0 || c.AI.TotalBudgetMs <= 0 {
		return fmt.Errorf("ai: attempt_timeout_ms and total_budget_ms must be positive")
	}
	if c.AI.PrimaryAttempts <= 0 {
		c.AI.PrimaryAttempts = 1
	}
	return nil
}
