// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for skymux. The override chain is
// defaults -> .env file -> config file -> environment variables; later
// layers win. Provider sections keep their declaration order from the
// file because that order decides how providers are listed everywhere.
package config

// Config is the top-level configuration parsed from a TOML file.
type Config struct {
	Providers map[string]ProviderConfig `toml:"provider"`
	Storage   StorageConfig             `toml:"storage"`
	Logging   LoggingConfig             `toml:"logging"`
	Transfers TransfersConfig           `toml:"transfers"`

	// providerOrder is the declaration order of [provider.*] sections
	// in the file. Env-only providers are appended alphabetically.
	providerOrder []string
}

// ProviderConfig is the OAuth2 client credential triple for one backend.
// A section with any field missing is skipped at registry load, not an
// error — providers are opt-in.
type ProviderConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURI  string `toml:"redirect_uri"`
}

// StorageConfig locates the account database.
type StorageConfig struct {
	DBPath string `toml:"db_path"`
}

// LoggingConfig controls log output behavior.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // auto, text, json
	File   string `toml:"file"`   // empty = stderr
}

// TransfersConfig sizes the background operation pool.
type TransfersConfig struct {
	Workers int `toml:"workers"`
}

// ProviderOrder returns provider ids in config declaration order.
func (c *Config) ProviderOrder() []string {
	out := make([]string, len(c.providerOrder))
	copy(out, c.providerOrder)

	return out
}
