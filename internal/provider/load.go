package provider

import (
	"log/slog"

	"github.com/skymux/skymux-go/internal/cloud"
)

// ConfiguredProvider pairs a provider id with the credentials the host
// configured for it, in the order they appeared in configuration.
type ConfiguredProvider struct {
	ID          string
	Credentials cloud.Credentials
}

// LoadConfigured registers every configured provider that has a known
// factory and complete credentials. Incomplete entries are skipped,
// not rejected: a host legitimately configures only a subset of
// backends, so a missing secret disables that provider rather than
// failing startup. Each skip is logged.
func (r *Registry) LoadConfigured(available map[string]cloud.Factory, configured []ConfiguredProvider) {
	for _, cp := range configured {
		factory, ok := available[cp.ID]
		if !ok {
			r.logger.Warn("skipping configured provider with no adapter",
				slog.String("provider", cp.ID),
			)

			continue
		}

		if !cp.Credentials.Complete() {
			r.logger.Info("provider disabled: incomplete credentials",
				slog.String("provider", cp.ID),
			)

			continue
		}

		// Complete entries cannot fail Register.
		if err := r.Register(cp.ID, factory, cp.Credentials); err != nil {
			r.logger.Warn("provider registration failed",
				slog.String("provider", cp.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}
