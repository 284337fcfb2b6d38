package config

import (
	"modbot/internal/core/domain"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name            string
		path            func(t *testing.T) string
		wantPrefix      string
		wantMuteRole    string
		wantMaxWarnings int
		wantModerators  []string
	}{
		{
			name: "valid document",
			path: func(t *testing.T) string {
				return writeConfig(t, `{
					"prefix": "?",
					"log_channel": 1234567890,
					"mute_role": "Silenced",
					"max_warnings": 5,
					"auto_mod": {"enabled": true, "spam_threshold": 7, "spam_interval": 15},
					"permissions": {"moderator_roles": ["Moderator", "Helper"], "admin_roles": ["Admin"]},
					"handler": {"timeout": "4s"}
				}`)
			},
			wantPrefix:      "?",
			wantMuteRole:    "Silenced",
			wantMaxWarnings: 5,
			wantModerators:  []string{"Moderator", "Helper"},
		},
		{
			name: "missing file uses default document",
			path: func(t *testing.T) string {
				return filepath.Join(t.TempDir(), "absent.json")
			},
			wantPrefix:      "!",
			wantMuteRole:    "Muted",
			wantMaxWarnings: 3,
		},
		{
			name: "malformed file uses empty document",
			path: func(t *testing.T) string {
				return writeConfig(t, `{"prefix": "!", `)
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := Load(tc.path(t))

			assert.Equal(t, tc.wantPrefix, c.Prefix)
			assert.Equal(t, tc.wantMuteRole, c.MuteRole)
			assert.Equal(t, tc.wantMaxWarnings, c.MaxWarnings)
			assert.Equal(t, tc.wantModerators, c.Permissions.ModeratorRoles)

			assert.Equal(t, PlatformDiscord, c.Platform)
			assert.Equal(t, 5, c.Transport.MaxAttempts)
			assert.Equal(t, 5*time.Second, c.Transport.RetryDelay)
			assert.Equal(t, 10*time.Second, c.Transport.RateLimitDelay)
			assert.Equal(t, time.Minute, c.Transport.StableAfter)
			assert.Equal(t, 10*time.Minute, c.Dedupe.TTL)
			assert.Equal(t, "0.0.0.0", c.Web.Host)
		})
	}
}

func TestLoad_ValuesFromDocument(t *testing.T) {
	c := Load(writeConfig(t, `{
		"log_channel": 1234567890,
		"auto_mod": {"enabled": true, "spam_threshold": 7, "spam_interval": 15},
		"handler": {"timeout": "4s"},
		"dispatch": {"max_concurrent": 4}
	}`))

	assert.Equal(t, "1234567890", c.LogChannel)
	assert.Equal(t, AutoMod{Enabled: true, SpamThreshold: 7, SpamInterval: 15}, c.AutoMod)
	assert.Equal(t, 4*time.Second, c.Handler.Timeout)
	assert.Equal(t, int64(4), c.Dispatch.MaxConcurrent)
	assert.Equal(t, 64, c.Dispatch.LaneBuffer)
}

func TestLoad_DefaultTimeout(t *testing.T) {
	c := Load(filepath.Join(t.TempDir(), "absent.json"))

	assert.Equal(t, 2500*time.Millisecond, c.Handler.Timeout)
	assert.False(t, c.AutoMod.Enabled)
	assert.Equal(t, 5, c.AutoMod.SpamThreshold)
}

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"trace":   zerolog.TraceLevel,
		"DEBUG":   zerolog.DebugLevel,
		"info":    zerolog.InfoLevel,
		"warn":    zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"":        zerolog.InfoLevel,
		"verbose": zerolog.InfoLevel,
	}

	for input, want := range tests {
		assert.Equal(t, want, ParseLevel(input), input)
	}
}

func TestEnv_Token(t *testing.T) {
	env := Env{DiscordToken: "d-token"}

	token, err := env.Token(PlatformDiscord)
	require.NoError(t, err)
	assert.Equal(t, "d-token", token)

	_, err = env.Token(PlatformTelegram)
	require.ErrorIs(t, err, domain.ErrMissingToken)

	_, err = env.Token("irc")
	require.ErrorIs(t, err, ErrUnknownPlatform)
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("TELEGRAM_TOKEN=from-dotenv\n"), 0o600))
	t.Chdir(dir)

	t.Setenv("DISCORD_TOKEN", "d-token")
	t.Setenv("PORT", "8080")
	t.Setenv("TELEGRAM_TOKEN", "")
	os.Unsetenv("TELEGRAM_TOKEN")

	env, err := LoadEnv()
	require.NoError(t, err)

	assert.Equal(t, "d-token", env.DiscordToken)
	assert.Equal(t, "from-dotenv", env.TelegramToken)
	assert.Equal(t, 8080, env.Port)
	assert.Equal(t, "config.json", env.ConfigPath)
}
