package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var validLogLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "error": true,
}

var validLogFormats = map[string]bool{
	"auto": true, "text": true, "json": true,
}

// Validate checks the configuration for values that would misbehave at
// runtime. Provider credential completeness is deliberately not checked
// here — incomplete providers are skipped at registry load, not fatal.
func Validate(cfg *Config) error {
	var errs []error

	if !validLogLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, fmt.Errorf("invalid logging.level %q (debug, info, warn, error)", cfg.Logging.Level))
	}

	if !validLogFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, fmt.Errorf("invalid logging.format %q (auto, text, json)", cfg.Logging.Format))
	}

	if cfg.Transfers.Workers < 1 {
		errs = append(errs, fmt.Errorf("transfers.workers must be at least 1, got %d", cfg.Transfers.Workers))
	}

	if cfg.Storage.DBPath == "" {
		errs = append(errs, errors.New("storage.db_path is empty and no default could be derived"))
	}

	for id, pc := range cfg.Providers {
		if pc.RedirectURI == "" {
			continue
		}

		if _, err := url.Parse(pc.RedirectURI); err != nil {
			errs = append(errs, fmt.Errorf("provider.%s.redirect_uri is not a valid URL: %v", id, err))
		}
	}

	return errors.Join(errs...)
}
