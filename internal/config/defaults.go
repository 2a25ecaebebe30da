package config

// Default values for configuration options. The zero-config first run
// works with these alone: no providers, local database, stderr logging.
const (
	defaultLogLevel  = "info"
	defaultLogFormat = "auto"
	defaultWorkers   = 4
)

// DefaultConfig returns a Config populated with all default values.
// It is the starting point for TOML decoding so unset fields retain
// their defaults, and the fallback when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		Providers: make(map[string]ProviderConfig),
		Storage: StorageConfig{
			DBPath: DefaultDBPath(),
		},
		Logging: LoggingConfig{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
		Transfers: TransfersConfig{
			Workers: defaultWorkers,
		},
	}
}
