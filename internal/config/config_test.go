package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoad_ProvidersKeepDeclarationOrder(t *testing.T) {
	path := writeConfig(t, `
[provider.onecloud]
client_id = "oc-id"
client_secret = "oc-secret"
redirect_uri = "http://127.0.0.1:53682/callback"

[provider.dropbox]
client_id = "db-id"
client_secret = "db-secret"
redirect_uri = "http://127.0.0.1:53682/callback"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"onecloud", "dropbox"}, cfg.ProviderOrder())

	configured := cfg.Configured()
	require.Len(t, configured, 2)
	assert.Equal(t, "onecloud", configured[0].ID)
	assert.Equal(t, "oc-id", configured[0].Credentials.ClientID)
	assert.True(t, configured[0].Credentials.Complete())
}

func TestLoad_DefaultsSurviveSparseFile(t *testing.T) {
	path := writeConfig(t, `
[logging]
level = "debug"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "auto", cfg.Logging.Format)
	assert.Equal(t, defaultWorkers, cfg.Transfers.Workers)
	assert.NotEmpty(t, cfg.Storage.DBPath)
}

func TestLoad_UnknownKeySuggestion(t *testing.T) {
	path := writeConfig(t, `
[logging]
levle = "debug"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `did you mean "level"`)
}

func TestLoad_UnknownProviderKeySuggestion(t *testing.T) {
	path := writeConfig(t, `
[provider.dropbox]
client_id = "x"
client_secrt = "y"
redirect_uri = "http://localhost/cb"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `did you mean "client_secret"`)
}

func TestLoad_UnknownSection(t *testing.T) {
	path := writeConfig(t, `
[loging]
level = "info"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown section")
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)

	assert.Empty(t, cfg.Providers)
	assert.Equal(t, defaultLogLevel, cfg.Logging.Level)
}

func TestValidate_RejectsBadValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.Level = "chatty"
	cfg.Transfers.Workers = 0

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "logging.level")
	assert.Contains(t, err.Error(), "transfers.workers")
}

func TestResolve_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
[provider.dropbox]
client_id = "file-id"
client_secret = "file-secret"
redirect_uri = "http://127.0.0.1:53682/callback"

[logging]
level = "info"
`)

	t.Setenv("SKYMUX_LOG_LEVEL", "debug")
	t.Setenv("SKYMUX_DB_PATH", "/tmp/override.db")
	t.Setenv("SKYMUX_DROPBOX_CLIENT_SECRET", "env-secret")

	cfg, err := Resolve(path, []string{"dropbox", "onecloud"})
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "/tmp/override.db", cfg.Storage.DBPath)
	assert.Equal(t, "env-secret", cfg.Providers["dropbox"].ClientSecret)
	assert.Equal(t, "file-id", cfg.Providers["dropbox"].ClientID)
}

func TestResolve_EnvOnlyProvider(t *testing.T) {
	t.Setenv("SKYMUX_ONECLOUD_CLIENT_ID", "env-id")
	t.Setenv("SKYMUX_ONECLOUD_CLIENT_SECRET", "env-secret")
	t.Setenv("SKYMUX_ONECLOUD_REDIRECT_URI", "http://127.0.0.1:53682/callback")

	cfg, err := Resolve(filepath.Join(t.TempDir(), "nope.toml"), []string{"dropbox", "onecloud"})
	require.NoError(t, err)

	assert.Equal(t, []string{"onecloud"}, cfg.ProviderOrder())
	assert.True(t, cfg.Configured()[0].Credentials.Complete())
}

func TestInit_RefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.toml")

	require.NoError(t, Init(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[provider.dropbox]")

	assert.Error(t, Init(path))
}

func TestLevenshtein(t *testing.T) {
	assert.Equal(t, 0, levenshtein("level", "level"))
	assert.Equal(t, 1, levenshtein("levle", "level"))
	assert.Equal(t, 5, levenshtein("", "level"))
}
