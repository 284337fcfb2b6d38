package config

import (
	"errors"
	"fmt"
	"modbot/internal/core/domain"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var ErrUnknownPlatform = errors.New("unknown platform")

// Env holds secrets and process settings taken from the environment.
type Env struct {
	DiscordToken        string `envconfig:"DISCORD_TOKEN"`
	TelegramToken       string `envconfig:"TELEGRAM_TOKEN"`
	DiscordClientSecret string `envconfig:"DISCORD_CLIENT_SECRET"`
	DatabaseURL         string `envconfig:"DATABASE_URL"`
	Port                int    `envconfig:"PORT" default:"5000"`
	ConfigPath          string `envconfig:"BOT_CONFIG" default:"config.json"`
	LogLevel            string `envconfig:"LOG_LEVEL"`
}

// LoadEnv reads the environment after applying an optional .env file.
func LoadEnv() (Env, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return Env{}, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	var env Env
	if err := envconfig.Process("", &env); err != nil {
		return Env{}, fmt.Errorf("error reading environment: %w", err)
	}

	return env, nil
}

// Token returns the bot token for platform.
func (e Env) Token(platform string) (string, error) {
	var token, name string

	switch platform {
	case PlatformDiscord:
		token, name = e.DiscordToken, "DISCORD_TOKEN"
	case PlatformTelegram:
		token, name = e.TelegramToken, "TELEGRAM_TOKEN"
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPlatform, platform)
	}

	if token == "" {
		return "", fmt.Errorf("%w: %s is not set", domain.ErrMissingToken, name)
	}

	return token, nil
}
