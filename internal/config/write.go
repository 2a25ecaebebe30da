package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// configTemplate is the commented starter file written by Init. Every
// key is present but commented out so the defaults stay authoritative.
const configTemplate = `# skymux configuration.
# Providers are opt-in: a [provider.<id>] section with complete
# credentials enables that backend. Section order decides listing order.

# [provider.dropbox]
# client_id = ""
# client_secret = ""
# redirect_uri = "http://127.0.0.1:53682/callback"

# [provider.onecloud]
# client_id = ""
# client_secret = ""
# redirect_uri = "http://127.0.0.1:53682/callback"

# [storage]
# db_path = ""          # default: platform data dir

# [logging]
# level = "info"        # debug, info, warn, error
# format = "auto"       # auto, text, json
# file = ""             # empty = stderr

# [transfers]
# workers = 4
`

// Init writes the starter config file at path, creating parent
// directories as needed. An existing file is never overwritten.
func Init(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config: %s already exists", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("config: creating config directory: %w", err)
	}

	if err := os.WriteFile(path, []byte(configTemplate), 0o600); err != nil {
		return fmt.Errorf("config: writing %s: %w", path, err)
	}

	return nil
}
