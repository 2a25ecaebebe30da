package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/skymux/skymux-go/internal/cloud"
	"github.com/skymux/skymux-go/internal/provider"
)

// Load reads and parses a TOML config file, validates it, and returns
// the resulting Config. Unknown keys are fatal with "did you mean?"
// suggestions — silently ignoring a typo in a config file leads to
// hard-to-debug behavior.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	cfg.providerOrder = providerDeclarationOrder(&md)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads the config file if it exists, otherwise returns
// all defaults. This supports the zero-config first run.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// providerDeclarationOrder extracts [provider.*] section ids in the
// order they appear in the file. TOML maps lose order on decode; the
// metadata key list preserves it.
func providerDeclarationOrder(md *toml.MetaData) []string {
	var order []string

	seen := make(map[string]bool)

	for _, key := range md.Keys() {
		parts := key
		if len(parts) < 2 || parts[0] != "provider" {
			continue
		}

		id := parts[1]
		if !seen[id] {
			seen[id] = true

			order = append(order, id)
		}
	}

	return order
}

// Resolve applies the full override chain and returns the effective
// configuration: defaults, then .env, then the config file, then
// environment variables. knownProviders lists the compiled-in provider
// ids so credentials supplied purely via environment still surface.
func Resolve(cliConfigPath string, knownProviders []string) (*Config, error) {
	LoadDotEnv()

	env := ReadEnvOverrides()

	path := DefaultConfigPath()
	if env.ConfigPath != "" {
		path = env.ConfigPath
	}

	if cliConfigPath != "" {
		path = cliConfigPath
	}

	cfg, err := LoadOrDefault(path)
	if err != nil {
		return nil, err
	}

	for _, id := range cfg.providerOrder {
		applyProviderEnv(cfg, id)
	}

	// Env-only providers: credentials with no config file section.
	for _, id := range knownProviders {
		if _, declared := cfg.Providers[id]; declared {
			continue
		}

		if applyProviderEnv(cfg, id) {
			cfg.providerOrder = append(cfg.providerOrder, id)
		}
	}

	if env.DBPath != "" {
		cfg.Storage.DBPath = env.DBPath
	}

	if env.LogLevel != "" {
		cfg.Logging.Level = strings.ToLower(env.LogLevel)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	return cfg, nil
}

// Configured maps the provider sections into registry load entries,
// preserving declaration order.
func (c *Config) Configured() []provider.ConfiguredProvider {
	out := make([]provider.ConfiguredProvider, 0, len(c.providerOrder))

	for _, id := range c.providerOrder {
		pc := c.Providers[id]

		out = append(out, provider.ConfiguredProvider{
			ID: id,
			Credentials: cloud.Credentials{
				ClientID:     pc.ClientID,
				ClientSecret: pc.ClientSecret,
				RedirectURI:  pc.RedirectURI,
			},
		})
	}

	return out
}
