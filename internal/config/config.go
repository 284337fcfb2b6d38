package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const (
	PlatformDiscord  = "discord"
	PlatformTelegram = "telegram"
)

type Config struct {
	Prefix      string      `mapstructure:"prefix"`
	LogChannel  string      `mapstructure:"log_channel"`
	MuteRole    string      `mapstructure:"mute_role"`
	MaxWarnings int         `mapstructure:"max_warnings"`
	AutoMod     AutoMod     `mapstructure:"auto_mod"`
	Permissions Permissions `mapstructure:"permissions"`
	ClientID    string      `mapstructure:"client_id"`
	RedirectURI string      `mapstructure:"redirect_uri"`

	LogLevel  string    `mapstructure:"log_level"`
	Platform  string    `mapstructure:"platform"`
	Handler   Handler   `mapstructure:"handler"`
	Dedupe    Dedupe    `mapstructure:"dedupe"`
	Dispatch  Dispatch  `mapstructure:"dispatch"`
	Transport Transport `mapstructure:"transport"`
	Web       Web       `mapstructure:"web"`
	OAuth     OAuth     `mapstructure:"oauth"`
}

type AutoMod struct {
	Enabled       bool `mapstructure:"enabled"`
	SpamThreshold int  `mapstructure:"spam_threshold"`
	SpamInterval  int  `mapstructure:"spam_interval"`
}

type Permissions struct {
	ModeratorRoles []string `mapstructure:"moderator_roles"`
	AdminRoles     []string `mapstructure:"admin_roles"`
	SuperAdmins    []string `mapstructure:"super_admins"`
}

type Handler struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

type Dedupe struct {
	TTL      time.Duration `mapstructure:"ttl"`
	Capacity int           `mapstructure:"capacity"`
}

type Dispatch struct {
	MaxConcurrent int64 `mapstructure:"max_concurrent"`
	LaneBuffer    int   `mapstructure:"lane_buffer"`
}

type Transport struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	RetryDelay      time.Duration `mapstructure:"retry_delay"`
	RateLimitDelay  time.Duration `mapstructure:"rate_limit_delay"`
	StableAfter     time.Duration `mapstructure:"stable_after"`
	DisconnectAfter time.Duration `mapstructure:"disconnect_after"`
}

type Web struct {
	Host string `mapstructure:"host"`
}

type OAuth struct {
	TokenURL string `mapstructure:"token_url"`
	UserURL  string `mapstructure:"user_url"`
}

// defaultDocument stands in for a missing settings file.
func defaultDocument() map[string]any {
	return map[string]any{
		"prefix":       "!",
		"log_channel":  nil,
		"mute_role":    "Muted",
		"max_warnings": 3,
		"auto_mod": map[string]any{
			"enabled":        false,
			"spam_threshold": 5,
			"spam_interval":  10,
		},
	}
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	v.SetEnvPrefix("MODBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("log_level", "info")
	v.SetDefault("platform", PlatformDiscord)
	v.SetDefault("handler.timeout", "2500ms")
	v.SetDefault("dedupe.ttl", "10m")
	v.SetDefault("dedupe.capacity", 4096)
	v.SetDefault("dispatch.max_concurrent", 16)
	v.SetDefault("dispatch.lane_buffer", 64)
	v.SetDefault("transport.max_attempts", 5)
	v.SetDefault("transport.retry_delay", "5s")
	v.SetDefault("transport.rate_limit_delay", "10s")
	v.SetDefault("transport.stable_after", "60s")
	v.SetDefault("transport.disconnect_after", "30s")
	v.SetDefault("permissions.super_admins", []string{})
	v.SetDefault("web.host", "0.0.0.0")
	v.SetDefault("oauth.token_url", "https://discord.com/api/oauth2/token")
	v.SetDefault("oauth.user_url", "https://discord.com/api/users/@me")

	return v
}

// Load reads the settings document at path. A missing file yields the default document,
// an unreadable one an empty document. Neither is fatal.
func Load(path string) Config {
	log.Info().Str("path", path).Msg("reading config file...")

	v := newViper(path)
	err := v.ReadInConfig()

	var notFound viper.ConfigFileNotFoundError
	switch {
	case err == nil:
		log.Info().Msg("configuration loaded successfully")
	case errors.Is(err, fs.ErrNotExist) || errors.As(err, &notFound):
		log.Error().Str("path", path).Msg("config file not found, using default configuration")
		if err := v.MergeConfigMap(defaultDocument()); err != nil {
			log.Error().Err(err).Msg("could not apply default configuration")
		}
	default:
		log.Error().Err(err).Msg("error parsing config file, using empty configuration")
		v = newViper(path)
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		log.Error().Err(err).Msg("invalid config values, using empty configuration")

		c = Config{}
		if err := newViper(path).Unmarshal(&c); err != nil {
			log.Error().Err(err).Msg("could not apply operational defaults")
		}
	}

	return c
}

// ParseLevel maps a config log level to zerolog, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
