package main

import (
	"bytes"
	"modbot/internal/config"
	"modbot/internal/core/domain"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStatus struct{}

func (fakeStatus) Name() string { return "modbot#0001" }
func (fakeStatus) Origins() []string { return []string{"1", "2"} }
func (fakeStatus) Latency() time.Duration { return 42 * time.Millisecond }

func TestBuildRegistry(t *testing.T) {
	registry, err := buildRegistry(fakeStatus{}, "!", time.Now())
	require.NoError(t, err)

	for _, kind := range []domain.InvocationKind{domain.TextPrefixed, domain.StructuredInteraction} {
		var names []string
		for _, entry := range registry.Catalog(kind) {
			names = append(names, entry.Name)
			assert.NotEmpty(t, entry.Description)
		}
		assert.Equal(t, []string{"botinfo", "help", "ping"}, names, kind)

		reg, ok := registry.Lookup(kind, "ping")
		require.True(t, ok)
		assert.Equal(t, pingCooldown, reg.Cooldown)
	}
}

func TestNewTransport(t *testing.T) {
	tests := []struct {
		name     string
		platform string
		wantName string
		wantKind domain.InvocationKind
		wantErr  error
	}{
		{
			name:     "discord",
			platform: config.PlatformDiscord,
			wantName: "discord",
			wantKind: domain.StructuredInteraction,
		},
		{
			name:     "telegram",
			platform: config.PlatformTelegram,
			wantName: "telegram",
			wantKind: domain.TextPrefixed,
		},
		{
			name:     "unknown",
			platform: "irc",
			wantErr:  config.ErrUnknownPlatform,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			transport, err := newTransport(config.Config{Platform: tc.platform, Prefix: "!"}, "token")
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.wantName, transport.Name())
			assert.Equal(t, tc.wantKind, transport.CatalogKind())
			assert.False(t, transport.Ready())
		})
	}
}

func TestPrintCommands(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"prefix": "?"}`), 0o600))
	t.Chdir(dir)

	var out bytes.Buffer
	require.NoError(t, printCommands(&out, path))

	assert.Contains(t, out.String(), "text commands:\n")
	assert.Contains(t, out.String(), "  ?ping - ")
	assert.Contains(t, out.String(), "interaction commands:\n")
	assert.Contains(t, out.String(), "  /botinfo - ")
}

func TestRunApp_MissingToken(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"platform": "telegram"}`), 0o600))
	t.Chdir(dir)
	t.Setenv("TELEGRAM_TOKEN", "")

	err := runApp(t.Context(), path, true)
	require.ErrorIs(t, err, domain.ErrMissingToken)
}
