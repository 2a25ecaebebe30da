package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variable names for overrides.
const (
	EnvConfig   = "SKYMUX_CONFIG"
	EnvDBPath   = "SKYMUX_DB_PATH"
	EnvLogLevel = "SKYMUX_LOG_LEVEL"
)

// Per-provider credential variables follow the pattern
// SKYMUX_<PROVIDER>_CLIENT_ID / _CLIENT_SECRET / _REDIRECT_URI, with
// the provider id upper-cased. They override the config file so
// secrets can stay out of it.
const (
	envPrefix         = "SKYMUX_"
	envSuffixID       = "_CLIENT_ID"
	envSuffixSecret   = "_CLIENT_SECRET"
	envSuffixRedirect = "_REDIRECT_URI"
)

// LoadDotEnv loads a .env file from the working directory into the
// process environment. A missing file is not an error; the feature
// exists for development setups.
func LoadDotEnv() {
	_ = godotenv.Load()
}

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath string
	DBPath     string
	LogLevel   string
}

// ReadEnvOverrides reads the override environment variables.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath: os.Getenv(EnvConfig),
		DBPath:     os.Getenv(EnvDBPath),
		LogLevel:   os.Getenv(EnvLogLevel),
	}
}

// envProviderKey maps a provider id to its environment variable stem,
// e.g. "dropbox" -> "SKYMUX_DROPBOX".
func envProviderKey(providerID string) string {
	return envPrefix + strings.ToUpper(strings.ReplaceAll(providerID, "-", "_"))
}

// applyProviderEnv overlays credential variables for the given provider
// id onto the config entry. Returns true when any field was set.
func applyProviderEnv(cfg *Config, providerID string) bool {
	stem := envProviderKey(providerID)

	pc := cfg.Providers[providerID]
	set := false

	if v := os.Getenv(stem + envSuffixID); v != "" {
		pc.ClientID = v
		set = true
	}

	if v := os.Getenv(stem + envSuffixSecret); v != "" {
		pc.ClientSecret = v
		set = true
	}

	if v := os.Getenv(stem + envSuffixRedirect); v != "" {
		pc.RedirectURI = v
		set = true
	}

	if set {
		cfg.Providers[providerID] = pc
	}

	return set
}
