package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the support conversation service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	AllowAnyOrigin   bool

	LogLevel  string
	LogFormat string

	MemoryBackend      string
	DatabaseURL        string
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	SQLitePath         string
	MemoryRetention    time.Duration
	MemoryContextTurns int
	MemoryReadTimeout  time.Duration
	MemoryWriteTimeout time.Duration
	MemoryRedactPII    bool

	RiskTiersFile         string
	RiskModerateThreshold int

	CompletionMode        string
	CompletionHTTPURL     string
	ArkAPIKey             string
	ArkAccessKey          string
	ArkSecretKey          string
	ArkModel              string
	ArkBaseURL            string
	ArkRegion             string
	OpenAIAPIKey          string
	OpenAIModel           string
	OpenAIBaseURL         string
	CompletionMaxTokens   int
	CompletionTimeout     time.Duration
	GeneratorContextTurns int
	PromptTokenBudget     int
	TokenizerEncoding     string

	AlertChannel        string
	AlertWebhookURL     string
	AlertRecipient      string
	AlertTimeout        time.Duration
	AlertMode           string
	RocketMQNameServers []string
	RocketMQTopic       string
	RocketMQGroup       string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "solace"),
		AllowAnyOrigin:   false,
		LogLevel:         envOrDefault("LOG_LEVEL", "info"),
		LogFormat:        envOrDefault("LOG_FORMAT", "json"),

		MemoryBackend:      strings.ToLower(envOrDefault("MEMORY_BACKEND", "auto")),
		DatabaseURL:        stringsTrimSpace("DATABASE_URL"),
		RedisAddr:          stringsTrimSpace("REDIS_ADDR"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		SQLitePath:         stringsTrimSpace("SQLITE_PATH"),
		MemoryContextTurns: 10,
		MemoryReadTimeout:  2 * time.Second,
		MemoryWriteTimeout: 2 * time.Second,
		MemoryRedactPII:    true,

		RiskTiersFile:         stringsTrimSpace("RISK_TIERS_FILE"),
		RiskModerateThreshold: 0,

		CompletionMode:        strings.ToLower(envOrDefault("COMPLETION_MODE", "auto")),
		CompletionHTTPURL:     stringsTrimSpace("COMPLETION_HTTP_URL"),
		ArkAPIKey:             stringsTrimSpace("ARK_API_KEY"),
		ArkAccessKey:          stringsTrimSpace("ARK_ACCESS_KEY"),
		ArkSecretKey:          stringsTrimSpace("ARK_SECRET_KEY"),
		ArkModel:              stringsTrimSpace("ARK_MODEL"),
		ArkBaseURL:            envOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		ArkRegion:             envOrDefault("ARK_REGION", "cn-beijing"),
		OpenAIAPIKey:          stringsTrimSpace("OPENAI_API_KEY"),
		OpenAIModel:           envOrDefault("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL:         stringsTrimSpace("OPENAI_BASE_URL"),
		CompletionMaxTokens:   500,
		CompletionTimeout:     20 * time.Second,
		GeneratorContextTurns: 6,
		PromptTokenBudget:     0,
		TokenizerEncoding:     envOrDefault("TOKENIZER_ENCODING", "cl100k_base"),

		AlertChannel:        strings.ToLower(envOrDefault("ALERT_CHANNEL", "log")),
		AlertWebhookURL:     stringsTrimSpace("ALERT_WEBHOOK_URL"),
		AlertRecipient:      envOrDefault("ALERT_RECIPIENT", "admin.alerts.mh@example.com"),
		AlertTimeout:        5 * time.Second,
		AlertMode:           strings.ToLower(envOrDefault("ALERT_MODE", "async")),
		RocketMQNameServers: listFromEnv("ROCKETMQ_NAMESERVERS"),
		RocketMQTopic:       envOrDefault("ROCKETMQ_TOPIC", "solace_crisis_alerts"),
		RocketMQGroup:       envOrDefault("ROCKETMQ_GROUP", "solace_alert_producer"),

		ShutdownTimeout: 15 * time.Second,
	}

	var err error
	if cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout); err != nil {
		return Config{}, err
	}
	if cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin); err != nil {
		return Config{}, err
	}
	if cfg.RedisDB, err = intFromEnv("REDIS_DB", cfg.RedisDB); err != nil {
		return Config{}, err
	}
	if cfg.MemoryRetention, err = durationFromEnv("MEMORY_RETENTION", cfg.MemoryRetention); err != nil {
		return Config{}, err
	}
	if cfg.MemoryContextTurns, err = intFromEnv("MEMORY_CONTEXT_TURNS", cfg.MemoryContextTurns); err != nil {
		return Config{}, err
	}
	if cfg.MemoryReadTimeout, err = durationFromEnv("MEMORY_READ_TIMEOUT", cfg.MemoryReadTimeout); err != nil {
		return Config{}, err
	}
	if cfg.MemoryWriteTimeout, err = durationFromEnv("MEMORY_WRITE_TIMEOUT", cfg.MemoryWriteTimeout); err != nil {
		return Config{}, err
	}
	if cfg.MemoryRedactPII, err = boolFromEnv("MEMORY_REDACT_PII", cfg.MemoryRedactPII); err != nil {
		return Config{}, err
	}
	if cfg.RiskModerateThreshold, err = intFromEnv("RISK_MODERATE_THRESHOLD", cfg.RiskModerateThreshold); err != nil {
		return Config{}, err
	}
	if cfg.CompletionMaxTokens, err = intFromEnv("COMPLETION_MAX_TOKENS", cfg.CompletionMaxTokens); err != nil {
		return Config{}, err
	}
	if cfg.CompletionTimeout, err = durationFromEnv("COMPLETION_TIMEOUT", cfg.CompletionTimeout); err != nil {
		return Config{}, err
	}
	if cfg.GeneratorContextTurns, err = intFromEnv("GENERATOR_CONTEXT_TURNS", cfg.GeneratorContextTurns); err != nil {
		return Config{}, err
	}
	if cfg.PromptTokenBudget, err = intFromEnv("GENERATOR_PROMPT_TOKEN_BUDGET", cfg.PromptTokenBudget); err != nil {
		return Config{}, err
	}
	if cfg.AlertTimeout, err = durationFromEnv("ALERT_TIMEOUT", cfg.AlertTimeout); err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.MemoryBackend {
	case "auto", "memory", "postgres", "redis", "sqlite":
	default:
		return fmt.Errorf("MEMORY_BACKEND must be one of auto|memory|postgres|redis|sqlite")
	}
	switch c.CompletionMode {
	case "auto", "http", "ark", "openai", "mock":
	default:
		return fmt.Errorf("COMPLETION_MODE must be one of auto|http|ark|openai|mock")
	}
	switch c.AlertChannel {
	case "log", "webhook", "rocketmq":
	default:
		return fmt.Errorf("ALERT_CHANNEL must be one of log|webhook|rocketmq")
	}
	switch c.AlertMode {
	case "async", "sync":
	default:
		return fmt.Errorf("ALERT_MODE must be async or sync")
	}
	if c.MemoryContextTurns <= 0 {
		return fmt.Errorf("MEMORY_CONTEXT_TURNS must be positive")
	}
	if c.GeneratorContextTurns <= 0 {
		return fmt.Errorf("GENERATOR_CONTEXT_TURNS must be positive")
	}
	if c.CompletionMaxTokens <= 0 {
		return fmt.Errorf("COMPLETION_MAX_TOKENS must be positive")
	}
	if c.PromptTokenBudget < 0 {
		return fmt.Errorf("GENERATOR_PROMPT_TOKEN_BUDGET must be >= 0")
	}
	if c.RiskModerateThreshold < 0 {
		return fmt.Errorf("RISK_MODERATE_THRESHOLD must be >= 0")
	}
	if c.MemoryRetention < 0 {
		return fmt.Errorf("MEMORY_RETENTION must be >= 0")
	}
	for key, d := range map[string]time.Duration{
		"COMPLETION_TIMEOUT":   c.CompletionTimeout,
		"ALERT_TIMEOUT":        c.AlertTimeout,
		"MEMORY_READ_TIMEOUT":  c.MemoryReadTimeout,
		"MEMORY_WRITE_TIMEOUT": c.MemoryWriteTimeout,
		"APP_SHUTDOWN_TIMEOUT": c.ShutdownTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	if c.AlertChannel == "webhook" && c.AlertWebhookURL == "" {
		return fmt.Errorf("ALERT_WEBHOOK_URL is required when ALERT_CHANNEL=webhook")
	}
	if c.AlertChannel == "rocketmq" && len(c.RocketMQNameServers) == 0 {
		return fmt.Errorf("ROCKETMQ_NAMESERVERS is required when ALERT_CHANNEL=rocketmq")
	}
	return nil
}

// SyncAlerts reports whether turns wait for alert delivery.
func (c Config) SyncAlerts() bool {
	return c.AlertMode == "sync"
}

func envOrDefault(key, fallback string) string {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func listFromEnv(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
