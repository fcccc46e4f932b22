package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides: llm.model is read from JAGENT_LLM_MODEL.
const EnvPrefix = "JAGENT"

// Config holds all application configuration
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Agent     AgentConfig     `mapstructure:"agent"`
	Market    MarketConfig    `mapstructure:"market"`
	Fraud     FraudConfig     `mapstructure:"fraud"`
	Failsafe  FailsafeConfig  `mapstructure:"failsafe"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	NATS      NATSConfig      `mapstructure:"nats"`
	API       APIConfig       `mapstructure:"api"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Webhook   WebhookConfig   `mapstructure:"webhook"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
}

// AppConfig contains application-level settings
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"` // development, staging, production
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"` // "json" or "console"
}

// LLMConfig contains the chat model settings. An empty APIKey runs chat offline.
type LLMConfig struct {
	APIKey         string        `mapstructure:"api_key"`
	Endpoint       string        `mapstructure:"endpoint"`
	Model          string        `mapstructure:"model"`
	FallbackModels []string      `mapstructure:"fallback_models"`
	Temperature    float64       `mapstructure:"temperature"`
	MaxTokens      int           `mapstructure:"max_tokens"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
}

// AgentConfig tunes sessions.
type AgentConfig struct {
	MaxSteps       int    `mapstructure:"max_steps"`
	DefaultUser    string `mapstructure:"default_user"`
	FinalSuffix    bool   `mapstructure:"final_suffix"`
	Nudge          bool   `mapstructure:"nudge"`
	MemoryMessages int    `mapstructure:"memory_messages"`
	// BannedPhrases replaces the compliance denylist when non-empty.
	BannedPhrases []string `mapstructure:"banned_phrases"`
}

// MarketConfig contains price, history and news provider settings
type MarketConfig struct {
	RiskFreeRate       float64       `mapstructure:"risk_free_rate"`
	CacheTTLHours      float64       `mapstructure:"cache_ttl_hours"`
	HTTPTimeout        time.Duration `mapstructure:"http_timeout"`
	HistoryMonths      int           `mapstructure:"history_months"`
	AlphaVantageAPIKey string        `mapstructure:"alphavantage_api_key"`
	AlphaVantagePerMin int           `mapstructure:"alphavantage_per_minute"`
	FinnhubAPIKey      string        `mapstructure:"finnhub_api_key"`
	FinnhubPerMin      int           `mapstructure:"finnhub_per_minute"`
	NewsLimit          int           `mapstructure:"news_limit"`
}

// FraudConfig contains the screening policy
type FraudConfig struct {
	OddHours             []int   `mapstructure:"odd_hours"`
	LargeAmountThreshold float64 `mapstructure:"large_amount_threshold"`
}

// FailsafeConfig contains the quality gate settings
type FailsafeConfig struct {
	Strict     bool   `mapstructure:"strict"`
	Verbose    bool   `mapstructure:"verbose"`
	PolicyFile string `mapstructure:"policy_file"`
}

// DatabaseConfig contains PostgreSQL settings. An empty URL runs ephemeral.
type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	SeedFile string `mapstructure:"seed_file"`
	Migrate  bool   `mapstructure:"migrate"`
	Audit    bool   `mapstructure:"audit"`
}

// RedisConfig contains the optional Redis price cache URL
type RedisConfig struct {
	URL string `mapstructure:"url"`
}

// NATSConfig contains NATS messaging settings. An empty URL disables events.
type NATSConfig struct {
	URL    string `mapstructure:"url"`
	Prefix string `mapstructure:"prefix"`
}

// APIConfig contains REST API settings
type APIConfig struct {
	Host         string   `mapstructure:"host"`
	Port         int      `mapstructure:"port"`
	AllowOrigins []string `mapstructure:"allow_origins"`
	RateLimit    float64  `mapstructure:"rate_limit"` // requests per second per client
	RateBurst    int      `mapstructure:"rate_burst"`
}

// MetricsConfig contains the Prometheus endpoint settings
type MetricsConfig struct {
	Port    int  `mapstructure:"port"`
	Enabled bool `mapstructure:"enabled"`
}

// WebhookConfig contains Finnhub webhook settings
type WebhookConfig struct {
	Secret     string        `mapstructure:"secret"`
	DedupeTTL  time.Duration `mapstructure:"dedupe_ttl"`
	EventsPath string        `mapstructure:"events_path"`
}

// SchedulerConfig contains cron specs for maintenance jobs
type SchedulerConfig struct {
	CachePrune  string `mapstructure:"cache_prune"`
	DedupeSweep string `mapstructure:"dedupe_sweep"`
}

// TelegramConfig contains bot settings
type TelegramConfig struct {
	BotToken       string `mapstructure:"bot_token"`
	PollingTimeout int    `mapstructure:"polling_timeout"`
	Debug          bool   `mapstructure:"debug"`
}

// legacyEnv binds unprefixed variables that deployments already set.
var legacyEnv = map[string]string{
	"llm.api_key":                 "OPENAI_API_KEY",
	"llm.model":                   "OPENAI_MODEL",
	"market.risk_free_rate":       "RISK_FREE_RATE",
	"market.cache_ttl_hours":      "CACHE_TTL_HOURS",
	"agent.max_steps":             "MAX_AGENT_STEPS",
	"database.url":                "DATABASE_URL",
	"database.seed_file":          "SEED_FILE",
	"redis.url":                   "REDIS_URL",
	"nats.url":                    "NATS_URL",
	"market.finnhub_api_key":      "FINNHUB_API_KEY",
	"webhook.secret":              "FINNHUB_WEBHOOK_SECRET",
	"market.alphavantage_api_key": "ALPHAVANTAGE_API_KEY",
	"failsafe.strict":             "FAILSAFE_STRICT",
	"failsafe.verbose":            "FAILSAFE_VERBOSE",
	"telegram.bot_token":          "TELEGRAM_BOT_TOKEN",
}

// LoadDotEnv loads .env files into the process environment. Missing files
// are ignored; existing variables win.
func LoadDotEnv(files ...string) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		_ = godotenv.Load(f)
	}
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	for key, env := range legacyEnv {
		if err := v.BindEnv(key, EnvPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; using defaults and environment variables
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "jagent")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_format", "console")

	// LLM defaults
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.endpoint", "https://api.openai.com/v1/chat/completions")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.fallback_models", []string{})
	v.SetDefault("llm.temperature", 0.1)
	v.SetDefault("llm.max_tokens", 0)
	v.SetDefault("llm.timeout", 60*time.Second)
	v.SetDefault("llm.max_retries", 2)

	// Agent defaults
	v.SetDefault("agent.max_steps", 4)
	v.SetDefault("agent.default_user", "Jack Alltrades")
	v.SetDefault("agent.final_suffix", true)
	v.SetDefault("agent.nudge", true)
	v.SetDefault("agent.memory_messages", 20)
	v.SetDefault("agent.banned_phrases", []string{})

	// Market defaults
	v.SetDefault("market.risk_free_rate", 0.0425)
	v.SetDefault("market.cache_ttl_hours", 1)
	v.SetDefault("market.http_timeout", 10*time.Second)
	v.SetDefault("market.history_months", 6)
	v.SetDefault("market.alphavantage_api_key", "")
	v.SetDefault("market.alphavantage_per_minute", 5)
	v.SetDefault("market.finnhub_api_key", "")
	v.SetDefault("market.finnhub_per_minute", 60)
	v.SetDefault("market.news_limit", 5)

	// Fraud defaults
	v.SetDefault("fraud.odd_hours", []int{0, 1, 2, 3, 4})
	v.SetDefault("fraud.large_amount_threshold", 5000.0)

	// Failsafe defaults
	v.SetDefault("failsafe.strict", true)
	v.SetDefault("failsafe.verbose", false)
	v.SetDefault("failsafe.policy_file", "")

	// Storage defaults
	v.SetDefault("database.url", "")
	v.SetDefault("database.seed_file", "data/seed_counterparties.json")
	v.SetDefault("database.migrate", true)
	v.SetDefault("database.audit", true)
	v.SetDefault("redis.url", "")
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.prefix", "jagent.events.")

	// API defaults
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.allow_origins", []string{"*"})
	v.SetDefault("api.rate_limit", 5.0)
	v.SetDefault("api.rate_burst", 10)

	// Monitoring defaults
	v.SetDefault("metrics.port", 9100)
	v.SetDefault("metrics.enabled", true)

	// Webhook defaults
	v.SetDefault("webhook.secret", "")
	v.SetDefault("webhook.dedupe_ttl", time.Hour)
	v.SetDefault("webhook.events_path", ".data/finnhub_events.jsonl")

	// Scheduler defaults (six fields, seconds first)
	v.SetDefault("scheduler.cache_prune", "0 0 * * * *")
	v.SetDefault("scheduler.dedupe_sweep", "0 */5 * * * *")

	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.polling_timeout", 60)
	v.SetDefault("telegram.debug", false)
}

// GetAPIAddr returns the API server address
func (c *APIConfig) GetAPIAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// CacheTTL returns the price cache TTL as time.Duration
func (c *MarketConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLHours * float64(time.Hour))
}

// IsProduction reports whether the app runs in production.
func (c *AppConfig) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}
