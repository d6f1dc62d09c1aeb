package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration values for the bot
type Config struct {
	// Discord
	DiscordToken string

	// Database
	DatabasePath string

	// Sync loop intervals
	ChatInterval     time.Duration
	PresenceInterval time.Duration
	StatusInterval   time.Duration

	// Logging
	LogLevel string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		DiscordToken: os.Getenv("DISCORD_BOT_TOKEN"),
		DatabasePath: getEnvOrDefault("DATABASE_PATH", "./data/bot.db"),
		LogLevel:     getEnvOrDefault("LOG_LEVEL", "info"),
	}

	var err error
	if cfg.ChatInterval, err = intervalFromEnv("CHAT_INTERVAL_SECONDS", 5); err != nil {
		return nil, err
	}
	if cfg.PresenceInterval, err = intervalFromEnv("PRESENCE_INTERVAL_SECONDS", 10); err != nil {
		return nil, err
	}
	if cfg.StatusInterval, err = intervalFromEnv("STATUS_INTERVAL_SECONDS", 30); err != nil {
		return nil, err
	}

	// Validate required fields
	if cfg.DiscordToken == "" {
		return nil, fmt.Errorf("DISCORD_BOT_TOKEN is required")
	}

	return cfg, nil
}

func intervalFromEnv(key string, defaultSeconds int) (time.Duration, error) {
	raw := getEnvOrDefault(key, strconv.Itoa(defaultSeconds))
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, raw)
	}
	return time.Duration(seconds) * time.Second, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
