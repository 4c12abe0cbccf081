package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, DefaultServerAddress, cfg.BasicConfig.ServerAddress)
	assert.Equal(t, DefaultMaxIterations, cfg.Chat.MaxIterations)
	assert.Equal(t, DefaultSystemPrompt, cfg.Chat.SystemPrompt)
	assert.Equal(t, DefaultMaxTokens, cfg.Chat.MaxTokens)
	assert.Contains(t, cfg.Databases, "sqlite3")
	assert.Equal(t, "whisper-1", cfg.Speech.TranscriptionModel)
	assert.Equal(t, "tts-1", cfg.Speech.SpeechModel)
	assert.Equal(t, "alloy", cfg.Speech.Voice)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, 300, cfg.Redis.TurnTTL)
}

func TestLoadMissingDefaultFile(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxIterations, cfg.Chat.MaxIterations)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `{
		"basic_config": {"server_address": ":9000", "max_workers": 4},
		"chat": {"max_iterations": 3, "system_prompt": "be brief"},
		"providers": {"openai": {"model": "gpt-4o-mini"}},
		"databases": {"sqlite3": {"dsn": "shop.db"}},
		"redis": {"enabled": true, "host": "localhost", "port": 6379},
		"tools": {"web_search": true}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.BasicConfig.ServerAddress)
	assert.Equal(t, 4, cfg.BasicConfig.MaxWorkers)
	assert.Equal(t, 3, cfg.Chat.MaxIterations)
	assert.Equal(t, "be brief", cfg.Chat.SystemPrompt)
	assert.Equal(t, "gpt-4o-mini", cfg.Providers["openai"].Model)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "shop.db"), cfg.Databases["sqlite3"].DSN)
	assert.True(t, cfg.Redis.Enabled)
	assert.True(t, cfg.Tools.WebSearch)
}

func TestLoadKeepsSpecialSQLiteDSN(t *testing.T) {
	cfg, err := Load(writeConfig(t, `{"databases": {"sqlite3": {"dsn": ":memory:"}}}`))
	require.NoError(t, err)
	assert.Equal(t, ":memory:", cfg.Databases["sqlite3"].DSN)
}

func TestLoadRejectsBadInput(t *testing.T) {
	_, err := Load(writeConfig(t, `{"chat": {"max_iterations": -1}}`))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, `{"chat": `))
	assert.Error(t, err)
}
