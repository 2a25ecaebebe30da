// Package provider implements the registry mapping provider ids to
// adapter factories. The registry is an explicitly constructed value
// passed to whatever needs it — there is no package-global instance —
// so its lifecycle is tied to the process, not to import order.
package provider

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/skymux/skymux-go/internal/cloud"
)

// Registration is one provider entry: the factory plus the client
// credential triple the host configured for it.
type Registration struct {
	ID          string
	Factory     cloud.Factory
	Credentials cloud.Credentials
}

// Registry holds the set of enabled providers. Safe for concurrent
// use. It holds no network or credential state beyond the table.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Registration
	order   []string // registration order, for Enabled()
	logger  *slog.Logger
}

// NewRegistry returns an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}

	return &Registry{
		entries: make(map[string]Registration),
		logger:  logger,
	}
}

// Register adds or replaces a provider entry. Incomplete credentials
// fail with ErrIncompleteCredentials — a provider with a missing
// client id, secret, or redirect target can never complete an OAuth2
// exchange, so registering it would only defer the failure.
// Re-registering an id replaces the factory and credentials but keeps
// the original position in the enabled order.
func (r *Registry) Register(id string, factory cloud.Factory, creds cloud.Credentials) error {
	if id == "" || factory == nil {
		return fmt.Errorf("provider: registering %q: %w", id, cloud.ErrIncompleteCredentials)
	}

	if !creds.Complete() {
		return fmt.Errorf("provider: registering %q: %w", id, cloud.ErrIncompleteCredentials)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[id]; !exists {
		r.order = append(r.order, id)
	}

	r.entries[id] = Registration{ID: id, Factory: factory, Credentials: creds}

	r.logger.Info("provider registered", slog.String("provider", id))

	return nil
}

// Resolve returns the registration for id. Fails with
// ErrUnknownProvider when no entry exists.
func (r *Registry) Resolve(id string) (Registration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.entries[id]
	if !ok {
		return Registration{}, fmt.Errorf("provider: resolving %q: %w", id, cloud.ErrUnknownProvider)
	}

	return reg, nil
}

// Adapter resolves id and constructs an adapter bound to the
// registered credentials. The common path for the auth flow and the
// dispatch layer.
func (r *Registry) Adapter(id string) (cloud.Adapter, error) {
	reg, err := r.Resolve(id)
	if err != nil {
		return nil, err
	}

	return reg.Factory(reg.Credentials), nil
}

// Enabled returns the provider ids in registration order. The UI uses
// this to offer sign-in choices.
func (r *Registry) Enabled() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, len(r.order))
	copy(out, r.order)

	return out
}
