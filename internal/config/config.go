package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App           App           `mapstructure:"app"`
	AI            AI            `mapstructure:"ai"`
	Search        Search        `mapstructure:"search"`
	Pipeline      Pipeline      `mapstructure:"pipeline"`
	Keywords      Keywords      `mapstructure:"keywords"`
	RateLimit     RateLimit     `mapstructure:"rate_limit"`
	Retry         Retry         `mapstructure:"retry"`
	Workers       Workers       `mapstructure:"workers"`
	Database      Database      `mapstructure:"database"`
	Server        Server        `mapstructure:"server"`
	Observability Observability `mapstructure:"observability"`
	Notifications Notifications `mapstructure:"notifications"`
	Logging       Logging       `mapstructure:"logging"`
}

// App holds general application configuration
type App struct {
	Debug    bool   `mapstructure:"debug"`
	Timezone string `mapstructure:"timezone"`
}

// AI holds AI/LLM configuration
type AI struct {
	Gemini GeminiConfig `mapstructure:"gemini"`
}

// GeminiConfig holds Google Gemini configuration
type GeminiConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxTokens   int32         `mapstructure:"max_tokens"`
	Temperature float32       `mapstructure:"temperature"`
}

// Search holds search provider configuration
type Search struct {
	DefaultProvider string          `mapstructure:"default_provider"`
	MaxResults      int             `mapstructure:"max_results"`
	Timeout         time.Duration   `mapstructure:"timeout"`
	Language        string          `mapstructure:"language"`
	SinceHours      int             `mapstructure:"since_hours"`
	Concurrency     int             `mapstructure:"concurrency"`
	FetchFullText   bool            `mapstructure:"fetch_full_text"`
	Providers       SearchProviders `mapstructure:"providers"`
}

// SearchProviders holds configuration for all search providers
type SearchProviders struct {
	NewsAPI NewsAPIConfig      `mapstructure:"newsapi"`
	Google  GoogleSearchConfig `mapstructure:"google"`
}

// NewsAPIConfig holds newsapi.org configuration
type NewsAPIConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

// GoogleSearchConfig holds Google Custom Search configuration
type GoogleSearchConfig struct {
	APIKey   string `mapstructure:"api_key"`
	SearchID string `mapstructure:"search_id"`
}

// Pipeline holds collection, analysis and selection tunables
type Pipeline struct {
	AnalysisBatchSize int `mapstructure:"analysis_batch_size"`
	MinQualityScore   int `mapstructure:"min_quality_score"`
	MaxPerCategory    int `mapstructure:"max_per_category"`
	DailyQuizSetSize  int `mapstructure:"daily_quiz_set_size"`
	BackfillLimit     int `mapstructure:"backfill_limit"` // 0 backfills every pending article
}

// Keywords holds the keyword cooldown policy
type Keywords struct {
	CooldownDays int `mapstructure:"cooldown_days"`
	MinUsage     int `mapstructure:"min_usage"`
}

// RateLimit holds the shared AI token bucket configuration
type RateLimit struct {
	Capacity       int           `mapstructure:"capacity"`
	RefillInterval time.Duration `mapstructure:"refill_interval"`
	AcquireTimeout time.Duration `mapstructure:"acquire_timeout"`
}

// Retry holds the per-unit retry policy
type Retry struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	Backoff     time.Duration `mapstructure:"backoff"`
}

// Workers holds the async worker pool sizing
type Workers struct {
	CoreSize  int           `mapstructure:"core_size"`
	MaxSize   int           `mapstructure:"max_size"`
	QueueSize int           `mapstructure:"queue_size"`
	KeepAlive time.Duration `mapstructure:"keep_alive"`
}

// Database holds persistence configuration
type Database struct {
	ConnectionString string `mapstructure:"connection_string"`
}

// Server holds admin HTTP server configuration
type Server struct {
	Host          string        `mapstructure:"host"`
	Port          int           `mapstructure:"port"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	DailyInterval time.Duration `mapstructure:"daily_interval"`
	AdminAPIKey   string        `mapstructure:"admin_api_key"` // Empty disables the POST endpoints
}

// Observability holds analytics configuration
type Observability struct {
	PostHog PostHogConfig `mapstructure:"posthog"`
}

// PostHogConfig holds PostHog configuration
type PostHogConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
	Host    string `mapstructure:"host"`
}

// Notifications holds chat webhooks that receive run summaries
type Notifications struct {
	SlackWebhookURL   string `mapstructure:"slack_webhook_url"`
	DiscordWebhookURL string `mapstructure:"discord_webhook_url"`
}

// Logging holds logging configuration
type Logging struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

var globalConfig *Config

// Load loads the configuration from various sources
func Load(configFile string) (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	// Load .env file if it exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			fmt.Printf("Warning: Error loading .env file: %v\n", err)
		}
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME")
		viper.SetConfigName(".newsquiz")
		viper.SetConfigType("yaml")
	}

	setDefaults()
	bindEnvironmentVariables()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, err
	}

	globalConfig = config
	return config, nil
}

// Get returns the global configuration, loading it if necessary
func Get() *Config {
	if globalConfig == nil {
		config, err := Load("")
		if err != nil {
			panic(fmt.Sprintf("Failed to load configuration: %v", err))
		}
		return config
	}
	return globalConfig
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("app.debug", false)
	viper.SetDefault("app.timezone", "UTC")

	viper.SetDefault("ai.gemini.model", "gemini-flash-lite-latest")
	viper.SetDefault("ai.gemini.timeout", "60s")
	viper.SetDefault("ai.gemini.max_tokens", 8192)
	viper.SetDefault("ai.gemini.temperature", 0.7)

	viper.SetDefault("search.default_provider", "newsapi")
	viper.SetDefault("search.max_results", 10)
	viper.SetDefault("search.timeout", "15s")
	viper.SetDefault("search.language", "en")
	viper.SetDefault("search.since_hours", 24)
	viper.SetDefault("search.concurrency", 2)
	viper.SetDefault("search.fetch_full_text", false)
	viper.SetDefault("search.providers.newsapi.base_url", "https://newsapi.org/v2")

	// Batches above 3 articles produce truncated analysis responses often enough to matter.
	viper.SetDefault("pipeline.analysis_batch_size", 3)
	viper.SetDefault("pipeline.min_quality_score", 70)
	viper.SetDefault("pipeline.max_per_category", 5)
	viper.SetDefault("pipeline.daily_quiz_set_size", 10)
	viper.SetDefault("pipeline.backfill_limit", 100)

	viper.SetDefault("keywords.cooldown_days", 3)
	viper.SetDefault("keywords.min_usage", 2)

	viper.SetDefault("rate_limit.capacity", 30)
	viper.SetDefault("rate_limit.refill_interval", "2s")
	viper.SetDefault("rate_limit.acquire_timeout", "0s")

	viper.SetDefault("retry.max_attempts", 3)
	viper.SetDefault("retry.backoff", "2s")

	viper.SetDefault("workers.core_size", 5)
	viper.SetDefault("workers.max_size", 10)
	viper.SetDefault("workers.queue_size", 100)
	viper.SetDefault("workers.keep_alive", "60s")

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "15s")
	viper.SetDefault("server.write_timeout", "120s")
	viper.SetDefault("server.daily_interval", "0s")

	viper.SetDefault("observability.posthog.enabled", false)
	viper.SetDefault("observability.posthog.host", "https://us.i.posthog.com")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
}

// bindEnvironmentVariables sets up flexible environment variable binding
func bindEnvironmentVariables() {
	bindEnvKeys("ai.gemini.api_key", []string{
		"GEMINI_API_KEY",
		"GOOGLE_GEMINI_API_KEY",
		"GOOGLE_AI_API_KEY",
	})

	bindEnvKeys("search.providers.newsapi.api_key", []string{
		"NEWSAPI_API_KEY",
		"NEWS_API_KEY",
	})

	bindEnvKeys("search.providers.google.api_key", []string{
		"GOOGLE_CUSTOM_SEARCH_API_KEY",
		"GOOGLE_CSE_API_KEY",
	})

	bindEnvKeys("search.providers.google.search_id", []string{
		"GOOGLE_CUSTOM_SEARCH_ID",
		"GOOGLE_CSE_ID",
	})

	bindEnvKeys("search.default_provider", []string{
		"SEARCH_PROVIDER",
	})

	bindEnvKeys("database.connection_string", []string{
		"DATABASE_URL",
		"NEWSQUIZ_DATABASE_URL",
	})

	bindEnvKeys("server.admin_api_key", []string{
		"ADMIN_API_KEY",
	})

	bindEnvKeys("observability.posthog.api_key", []string{
		"POSTHOG_API_KEY",
	})

	bindEnvKeys("notifications.slack_webhook_url", []string{
		"SLACK_WEBHOOK_URL",
	})

	bindEnvKeys("notifications.discord_webhook_url", []string{
		"DISCORD_WEBHOOK_URL",
	})

	bindEnvKeys("app.debug", []string{
		"DEBUG",
		"NEWSQUIZ_DEBUG",
	})

	bindEnvKeys("logging.level", []string{
		"LOG_LEVEL",
	})
}

// bindEnvKeys binds the first found environment variable to a viper key
func bindEnvKeys(viperKey string, envKeys []string) {
	for _, envKey := range envKeys {
		if value := os.Getenv(envKey); value != "" {
			viper.Set(viperKey, value)
			return
		}
	}
}

// validateConfig ensures configuration values are usable
func validateConfig(config *Config) error {
	var errors []string

	switch config.Search.DefaultProvider {
	case "newsapi":
		if config.Search.Providers.NewsAPI.APIKey == "" {
			errors = append(errors, "NewsAPI requires an API key. Set NEWSAPI_API_KEY environment variable")
		}
	case "google":
		if config.Search.Providers.Google.APIKey == "" || config.Search.Providers.Google.SearchID == "" {
			errors = append(errors, "Google Custom Search requires both API key and Search ID. Set GOOGLE_CUSTOM_SEARCH_API_KEY and GOOGLE_CUSTOM_SEARCH_ID")
		}
	case "mock":
	default:
		errors = append(errors, fmt.Sprintf("Unknown search provider: %s. Supported: newsapi, google, mock", config.Search.DefaultProvider))
	}

	if config.Pipeline.AnalysisBatchSize < 1 {
		errors = append(errors, "pipeline.analysis_batch_size must be at least 1")
	}
	if config.Pipeline.MinQualityScore < 1 || config.Pipeline.MinQualityScore > 100 {
		errors = append(errors, "pipeline.min_quality_score must be between 1 and 100")
	}
	if config.Pipeline.BackfillLimit < 0 {
		errors = append(errors, "pipeline.backfill_limit must not be negative")
	}
	if config.Keywords.CooldownDays < 1 || config.Keywords.MinUsage < 1 {
		errors = append(errors, "keywords.cooldown_days and keywords.min_usage must be positive")
	}
	if config.RateLimit.Capacity < 1 || config.RateLimit.RefillInterval <= 0 {
		errors = append(errors, "rate_limit.capacity and rate_limit.refill_interval must be positive")
	}
	if config.RateLimit.AcquireTimeout < 0 {
		errors = append(errors, "rate_limit.acquire_timeout cannot be negative")
	}
	if config.Retry.MaxAttempts < 1 {
		errors = append(errors, "retry.max_attempts must be at least 1")
	}
	if config.Workers.CoreSize < 1 || config.Workers.MaxSize < config.Workers.CoreSize {
		errors = append(errors, "workers.core_size must be positive and not exceed workers.max_size")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration errors:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// Location returns the configured timezone used to decide "today".
func (a App) Location() *time.Location {
	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// GetSearchProviderConfig returns configuration for creating a search provider
func GetSearchProviderConfig(cfg *Config, providerType string) map[string]string {
	switch providerType {
	case "newsapi":
		return map[string]string{
			"api_key":  cfg.Search.Providers.NewsAPI.APIKey,
			"base_url": cfg.Search.Providers.NewsAPI.BaseURL,
		}
	case "google":
		return map[string]string{
			"api_key":   cfg.Search.Providers.Google.APIKey,
			"search_id": cfg.Search.Providers.Google.SearchID,
		}
	default:
		return map[string]string{}
	}
}

// Reset clears the global configuration (useful for testing)
func Reset() {
	globalConfig = nil
	viper.Reset()
}
