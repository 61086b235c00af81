package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Reasoning ReasoningConfig `yaml:"reasoning" mapstructure:"reasoning"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Gemini    GeminiConfig    `yaml:"gemini" mapstructure:"gemini"`
	OpenAI    OpenAIConfig    `yaml:"openai" mapstructure:"openai"`
	Interview InterviewConfig `yaml:"interview" mapstructure:"interview"`
	Lock      LockConfig      `yaml:"lock" mapstructure:"lock"`
	Events    EventsConfig    `yaml:"events" mapstructure:"events"`
	Notion    NotionConfig    `yaml:"notion" mapstructure:"notion"`
	Monitor   MonitorConfig   `yaml:"monitoring" mapstructure:"monitoring"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the session store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ReasoningConfig selects the language-model provider and how calls to it
// are guarded.
type ReasoningConfig struct {
	Provider    string        `yaml:"provider" mapstructure:"provider"`
	TimeoutSecs int           `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSec  float64       `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	Burst       int           `yaml:"burst" mapstructure:"burst"`
	Retry       RetryConfig   `yaml:"retry" mapstructure:"retry"`
	Circuit     CircuitConfig `yaml:"circuit" mapstructure:"circuit"`
}

// RetryConfig configures retries of transient provider failures.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// CircuitConfig configures the per-provider circuit breaker.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// GeminiConfig holds Gemini settings. With Vertex set, Project and Location
// are used instead of an API key.
type GeminiConfig struct {
	Key      string `yaml:"key" mapstructure:"key"`
	Project  string `yaml:"project" mapstructure:"project"`
	Location string `yaml:"location" mapstructure:"location"`
	Model    string `yaml:"model" mapstructure:"model"`
	Vertex   bool   `yaml:"vertex" mapstructure:"vertex"`
}

// OpenAIConfig holds OpenAI-compatible API settings.
type OpenAIConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// InterviewConfig tunes the conversation itself.
type InterviewConfig struct {
	AnalystName    string           `yaml:"analyst_name" mapstructure:"analyst_name"`
	Turnaround     string           `yaml:"turnaround" mapstructure:"turnaround"`
	LockWaitSecs   int              `yaml:"lock_wait_secs" mapstructure:"lock_wait_secs"`
	RecentMessages int              `yaml:"recent_messages" mapstructure:"recent_messages"`
	Continuation   GenerationConfig `yaml:"continuation" mapstructure:"continuation"`
	Extraction     GenerationConfig `yaml:"extraction" mapstructure:"extraction"`
}

// GenerationConfig holds sampling parameters for one kind of reasoning call.
type GenerationConfig struct {
	Temperature float64 `yaml:"temperature" mapstructure:"temperature"`
	TopP        float64 `yaml:"top_p" mapstructure:"top_p"`
	MaxTokens   int     `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// LockConfig selects the per-session turn lock.
type LockConfig struct {
	Driver   string `yaml:"driver" mapstructure:"driver"`
	RedisURL string `yaml:"redis_url" mapstructure:"redis_url"`
	TTLSecs  int    `yaml:"ttl_secs" mapstructure:"ttl_secs"`
}

// callsPerTurn is the most reasoning calls one turn makes: compose, extract
// and the closing re-compose.
const callsPerTurn = 3

const lockTTLMargin = 30 * time.Second

// LockTTL is the expiry for a distributed session lock. It never drops below
// the worst-case turn: every call retried to max_attempts, each hitting the
// reasoning timeout, plus the backoff between attempts. A larger
// lock.ttl_secs wins.
func (c *Config) LockTTL() time.Duration {
	attempts := max(c.Reasoning.Retry.MaxAttempts, 1)
	perCall := time.Duration(attempts) * time.Duration(c.Reasoning.TimeoutSecs) * time.Second
	backoff := time.Duration(attempts-1) * time.Duration(c.Reasoning.Retry.MaxBackoffMs) * time.Millisecond
	turn := callsPerTurn*(perCall+backoff) + lockTTLMargin

	if configured := time.Duration(c.Lock.TTLSecs) * time.Second; configured > turn {
		return configured
	}
	return turn
}

// EventsConfig selects where turn and completion events are published.
type EventsConfig struct {
	Driver        string `yaml:"driver" mapstructure:"driver"`
	NATSURL       string `yaml:"nats_url" mapstructure:"nats_url"`
	SubjectPrefix string `yaml:"subject_prefix" mapstructure:"subject_prefix"`
}

// NotionConfig holds Notion API credentials and the issue catalog database.
type NotionConfig struct {
	Token     string `yaml:"token" mapstructure:"token"`
	CatalogDB string `yaml:"catalog_db" mapstructure:"catalog_db"`
}

// MonitorConfig configures the background session checker and its webhook
// alerts.
type MonitorConfig struct {
	Enabled           bool    `yaml:"enabled" mapstructure:"enabled"`
	CheckIntervalSecs int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	StaleAfterHours   int     `yaml:"stale_after_hours" mapstructure:"stale_after_hours"`
	StaleThreshold    int     `yaml:"stale_threshold" mapstructure:"stale_threshold"`
	MinCompletionRate float64 `yaml:"min_completion_rate" mapstructure:"min_completion_rate"`
	CooldownMins      int     `yaml:"cooldown_mins" mapstructure:"cooldown_mins"`
	WebhookURL        string  `yaml:"webhook_url" mapstructure:"webhook_url"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// envOnlyKeys are settings usually supplied through the environment.
var envOnlyKeys = []string{
	"anthropic.key",
	"gemini.key",
	"gemini.project",
	"openai.key",
	"openai.base_url",
	"notion.token",
	"notion.catalog_db",
	"lock.redis_url",
	"events.nats_url",
	"monitoring.webhook_url",
}

// Load reads configuration from .env, config file and environment.
func Load() (*Config, error) {
	// .env is optional; existing environment variables win.
	_ = godotenv.Load()

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("INTERVIEW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "interview.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("reasoning.provider", "anthropic")
	v.SetDefault("reasoning.timeout_secs", 20)
	v.SetDefault("reasoning.rate_per_sec", 5.0)
	v.SetDefault("reasoning.burst", 5)
	v.SetDefault("reasoning.retry.max_attempts", 3)
	v.SetDefault("reasoning.retry.initial_backoff_ms", 500)
	v.SetDefault("reasoning.retry.max_backoff_ms", 10000)
	v.SetDefault("reasoning.circuit.failure_threshold", 5)
	v.SetDefault("reasoning.circuit.reset_timeout_secs", 30)
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("gemini.model", "gemini-2.5-flash")
	v.SetDefault("gemini.location", "us-central1")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("interview.analyst_name", "Sarah")
	v.SetDefault("interview.turnaround", "2-3 weeks")
	v.SetDefault("interview.lock_wait_secs", 30)
	v.SetDefault("interview.recent_messages", 10)
	v.SetDefault("interview.continuation.temperature", 0.85)
	v.SetDefault("interview.continuation.top_p", 0.95)
	v.SetDefault("interview.continuation.max_tokens", 1000)
	v.SetDefault("interview.extraction.temperature", 0.2)
	v.SetDefault("interview.extraction.max_tokens", 2048)
	v.SetDefault("lock.driver", "local")
	v.SetDefault("lock.ttl_secs", 0)
	v.SetDefault("events.driver", "none")
	v.SetDefault("events.subject_prefix", "interview")
	v.SetDefault("monitoring.enabled", true)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.stale_after_hours", 72)
	v.SetDefault("monitoring.stale_threshold", 1)
	v.SetDefault("monitoring.min_completion_rate", 0.2)
	v.SetDefault("monitoring.cooldown_mins", 360)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Keys without a value above still need registering, otherwise
	// AutomaticEnv never surfaces them to Unmarshal.
	for _, key := range envOnlyKeys {
		v.SetDefault(key, "")
	}
	v.SetDefault("gemini.vertex", false)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command needs. Mode is one of "serve",
// "chat", "start", "migrate" or "read" (commands that only read sessions).
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "serve", "chat":
		errs = append(errs, c.validateStore()...)
		errs = append(errs, c.validateReasoning()...)
		errs = append(errs, c.validateInterview()...)
		errs = append(errs, c.validateLock()...)
		errs = append(errs, c.validateEvents()...)
		if mode == "serve" && c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	case "start", "migrate", "read":
		errs = append(errs, c.validateStore()...)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateStore() []string {
	var errs []string
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, "store.driver must be sqlite or postgres")
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}
	return errs
}

func (c *Config) validateReasoning() []string {
	var errs []string
	switch c.Reasoning.Provider {
	case "anthropic":
		if c.Anthropic.Key == "" {
			errs = append(errs, "anthropic.key is required")
		}
	case "gemini":
		if c.Gemini.Vertex {
			if c.Gemini.Project == "" {
				errs = append(errs, "gemini.project is required for vertex")
			}
		} else if c.Gemini.Key == "" {
			errs = append(errs, "gemini.key is required")
		}
	case "openai":
		if c.OpenAI.Key == "" {
			errs = append(errs, "openai.key is required")
		}
	default:
		errs = append(errs, "reasoning.provider must be anthropic, gemini or openai")
	}
	if c.Reasoning.TimeoutSecs <= 0 {
		errs = append(errs, "reasoning.timeout_secs must be > 0")
	}
	return errs
}

func (c *Config) validateInterview() []string {
	var errs []string
	for name, g := range map[string]GenerationConfig{
		"continuation": c.Interview.Continuation,
		"extraction":   c.Interview.Extraction,
	} {
		if g.Temperature < 0 || g.Temperature > 1 {
			errs = append(errs, "interview."+name+".temperature must be between 0 and 1")
		}
		if g.TopP < 0 || g.TopP > 1 {
			errs = append(errs, "interview."+name+".top_p must be between 0 and 1")
		}
		if g.MaxTokens <= 0 {
			errs = append(errs, "interview."+name+".max_tokens must be > 0")
		}
	}
	if c.Interview.RecentMessages < 4 {
		errs = append(errs, "interview.recent_messages must be >= 4")
	}
	return errs
}

func (c *Config) validateLock() []string {
	switch c.Lock.Driver {
	case "local":
		return nil
	case "redis":
		if c.Lock.RedisURL == "" {
			return []string{"lock.redis_url is required for redis"}
		}
		return nil
	default:
		return []string{"lock.driver must be local or redis"}
	}
}

func (c *Config) validateEvents() []string {
	switch c.Events.Driver {
	case "none", "":
		return nil
	case "nats":
		if c.Events.NATSURL == "" {
			return []string{"events.nats_url is required for nats"}
		}
		return nil
	default:
		return []string{"events.driver must be none or nats"}
	}
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
