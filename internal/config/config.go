package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/kavik/groupwarden-go/internal/constants"
)

type Config struct {
	Platform   PlatformConfig
	Postgres   PostgresConfig
	Redis      RedisConfig
	Weather    WeatherConfig
	Translate  TranslateConfig
	Gemini     GeminiConfig
	OpenAI     OpenAIConfig
	Dispatch   DispatchConfig
	Gateway    GatewayConfig
	Moderation ModerationConfig
	Logging    LoggingConfig
	Bot        BotConfig
}

type PlatformConfig struct {
	BaseURL string
	WSURL   string
	Token   string
}

type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type WeatherConfig struct {
	APIKey string
}

type TranslateConfig struct {
	Email string
}

type GeminiConfig struct {
	APIKey string
}

type OpenAIConfig struct {
	APIKey         string
	EnableFallback bool
}

type DispatchConfig struct {
	EventDeadline      time.Duration
	MaxConcurrent      int
	MaxMutationRetries int
	LaneBuffer         int
	LaneIdleTimeout    time.Duration
}

type GatewayConfig struct {
	ServiceTimeout   time.Duration
	FailureThreshold int
	Cooldown         time.Duration
}

type ModerationConfig struct {
	WarnThreshold int
	DedupWindow   time.Duration
}

type LoggingConfig struct {
	Level string
	File  string
}

type BotConfig struct {
	Name   string
	Prefix string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Platform: PlatformConfig{
			BaseURL: getEnv("PLATFORM_BASE_URL", "https://api.telegram.org"),
			WSURL:   getEnv("PLATFORM_WS_URL", "ws://localhost:8081/updates"),
			Token:   getEnv("PLATFORM_BOT_TOKEN", ""),
		},
		Postgres: PostgresConfig{
			Host:     getEnv("POSTGRES_HOST", "localhost"),
			Port:     getEnvInt("POSTGRES_PORT", 5432),
			User:     getEnv("POSTGRES_USER", "groupwarden"),
			Password: getEnv("POSTGRES_PASSWORD", ""),
			Database: getEnv("POSTGRES_DB", "groupwarden"),
			SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Weather: WeatherConfig{
			APIKey: getEnv("WEATHER_API_KEY", ""),
		},
		Translate: TranslateConfig{
			Email: getEnv("TRANSLATE_CONTACT_EMAIL", ""),
		},
		Gemini: GeminiConfig{
			APIKey: getEnv("GEMINI_API_KEY", ""),
		},
		OpenAI: OpenAIConfig{
			APIKey:         getEnv("OPENAI_API_KEY", ""),
			EnableFallback: getEnvBool("OPENAI_ENABLE_FALLBACK", true),
		},
		Dispatch: DispatchConfig{
			EventDeadline:      getEnvDuration("DISPATCH_EVENT_DEADLINE", constants.DispatchConfig.EventDeadline),
			MaxConcurrent:      getEnvInt("DISPATCH_MAX_CONCURRENT", constants.DispatchConfig.MaxConcurrent),
			MaxMutationRetries: getEnvInt("DISPATCH_MUTATION_RETRIES", constants.DispatchConfig.MaxMutationRetries),
			LaneBuffer:         getEnvInt("DISPATCH_LANE_BUFFER", constants.DispatchConfig.LaneBuffer),
			LaneIdleTimeout:    getEnvDuration("DISPATCH_LANE_IDLE_TIMEOUT", constants.DispatchConfig.LaneIdleTimeout),
		},
		Gateway: GatewayConfig{
			ServiceTimeout:   getEnvDuration("GATEWAY_SERVICE_TIMEOUT", constants.APIConfig.ServiceTimeout),
			FailureThreshold: getEnvInt("GATEWAY_FAILURE_THRESHOLD", constants.CircuitBreakerConfig.FailureThreshold),
			Cooldown:         getEnvDuration("GATEWAY_COOLDOWN", constants.CircuitBreakerConfig.Cooldown),
		},
		Moderation: ModerationConfig{
			WarnThreshold: getEnvInt("MODERATION_WARN_THRESHOLD", constants.ModerationConfig.WarnThreshold),
			DedupWindow:   getEnvDuration("MODERATION_DEDUP_WINDOW", constants.DedupConfig.Window),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
			File:  getEnv("LOG_FILE", "logs/bot.log"),
		},
		Bot: BotConfig{
			Name:   getEnv("BOT_NAME", "GroupWarden"),
			Prefix: getEnv("BOT_PREFIX", "/"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Platform.BaseURL == "" {
		return fmt.Errorf("PLATFORM_BASE_URL is required")
	}
	if c.Platform.WSURL == "" {
		return fmt.Errorf("PLATFORM_WS_URL is required")
	}
	if c.Platform.Token == "" {
		return fmt.Errorf("PLATFORM_BOT_TOKEN is required")
	}
	if c.Bot.Prefix == "" {
		return fmt.Errorf("BOT_PREFIX must not be empty")
	}
	if c.Dispatch.MaxConcurrent <= 0 {
		return fmt.Errorf("DISPATCH_MAX_CONCURRENT must be positive")
	}
	if c.Dispatch.EventDeadline <= 0 {
		return fmt.Errorf("DISPATCH_EVENT_DEADLINE must be positive")
	}
	if c.Gateway.FailureThreshold <= 0 {
		return fmt.Errorf("GATEWAY_FAILURE_THRESHOLD must be positive")
	}
	if c.Moderation.WarnThreshold <= 0 {
		return fmt.Errorf("MODERATION_WARN_THRESHOLD must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return d
		}
	}
	return defaultValue
}
