// Package auth implements the OAuth2 authentication state machine
// shared by all providers. The flow owns sequencing, anti-forgery
// state verification, and the single-refresh rule; everything
// backend-specific (authorization URL shape, token endpoint encoding,
// response schemas) is delegated to the adapter strategy resolved
// through the provider registry.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/skymux/skymux-go/internal/cloud"
	"github.com/skymux/skymux-go/internal/provider"
	"github.com/skymux/skymux-go/internal/store"
)

// stateTokenBytes is the number of random bytes in the anti-forgery
// state parameter.
const stateTokenBytes = 16

// pendingTTL bounds how long an issued authorization URL stays
// redeemable. Stale entries are dropped on the next Begin call.
const pendingTTL = 10 * time.Minute

// pendingAuth is one outstanding authorization request. Presence in
// the pending map means the attempt is between BeginAuthorization and
// its callback; the entry is consumed, successfully or not, by the
// first HandleCallback carrying its state token.
type pendingAuth struct {
	providerID string
	issuedAt   time.Time
}

// Flow is the authentication state machine. One Flow serves all
// providers; per-attempt state is keyed by the anti-forgery token.
type Flow struct {
	registry *provider.Registry
	accounts *store.Store
	logger   *slog.Logger

	mu      sync.Mutex
	pending map[string]*pendingAuth // keyed by state token

	// refreshGroup collapses overlapping refreshes for one account
	// into a single backend call.
	refreshGroup singleflight.Group

	// now is stubbed in tests.
	now func() time.Time
}

// NewFlow builds the state machine over the given registry and store.
func NewFlow(registry *provider.Registry, accounts *store.Store, logger *slog.Logger) *Flow {
	if logger == nil {
		logger = slog.Default()
	}

	return &Flow{
		registry: registry,
		accounts: accounts,
		logger:   logger,
		pending:  make(map[string]*pendingAuth),
		now:      time.Now,
	}
}

// BeginAuthorization resolves the provider's adapter, issues a fresh
// anti-forgery state token, and returns the backend authorization URL
// with that token embedded. The attempt transitions Unauthenticated ->
// AuthorizationRequested.
func (f *Flow) BeginAuthorization(_ context.Context, providerID string) (authURL, state string, err error) {
	adapter, err := f.registry.Adapter(providerID)
	if err != nil {
		return "", "", err
	}

	state, err = generateState()
	if err != nil {
		return "", "", fmt.Errorf("auth: generating state token: %w", err)
	}

	f.mu.Lock()
	f.expireStalePending()
	f.pending[state] = &pendingAuth{
		providerID: providerID,
		issuedAt:   f.now(),
	}
	f.mu.Unlock()

	f.logger.Info("authorization requested",
		slog.String("provider", providerID),
	)

	return adapter.BuildAuthorizationURI(state), state, nil
}

// expireStalePending drops pending entries past their TTL.
// Caller holds f.mu.
func (f *Flow) expireStalePending() {
	cutoff := f.now().Add(-pendingTTL)

	for state, p := range f.pending {
		if p.issuedAt.Before(cutoff) {
			delete(f.pending, state)
		}
	}
}

// HandleCallback consumes the redirect parameters delivered to the
// authorization callback. The returned provider id tells the caller
// which adapter to complete the exchange with.
//
// A state token that was never issued (or already consumed) fails with
// ErrStateMismatch — the request is rejected as CSRF/replay. A
// backend-reported error parameter fails with ErrAuthDenied and
// terminates the attempt.
func (f *Flow) HandleCallback(state, code, errParam string) (providerID string, err error) {
	f.mu.Lock()
	p, ok := f.pending[state]
	if ok {
		delete(f.pending, state)
	}
	f.mu.Unlock()

	if !ok {
		return "", fmt.Errorf("auth: callback state %q: %w", state, cloud.ErrStateMismatch)
	}

	if errParam != "" {
		f.logger.Warn("authorization denied by backend",
			slog.String("provider", p.providerID),
			slog.String("error", errParam),
		)

		return "", fmt.Errorf("auth: %s: %s: %w", p.providerID, errParam, cloud.ErrAuthDenied)
	}

	if code == "" {
		return "", fmt.Errorf("auth: callback missing authorization code: %w", cloud.ErrAuthDenied)
	}

	f.logger.Info("authorization granted",
		slog.String("provider", p.providerID),
	)

	return p.providerID, nil
}

// CompleteAuthorization exchanges the authorization code for a token
// set via the adapter's token-endpoint strategy. Any transport or
// backend-reported failure surfaces as ErrTokenExchange.
func (f *Flow) CompleteAuthorization(ctx context.Context, providerID, code string) (cloud.TokenSet, error) {
	adapter, err := f.registry.Adapter(providerID)
	if err != nil {
		return cloud.TokenSet{}, err
	}

	tokens, err := adapter.ExchangeToken(ctx, code)
	if err != nil {
		if errors.Is(err, cloud.ErrTokenExchange) {
			return cloud.TokenSet{}, cloud.WrapOp(providerID, "", "exchange token", err)
		}

		return cloud.TokenSet{}, cloud.WrapOp(providerID, "", "exchange token",
			fmt.Errorf("%v: %w", err, cloud.ErrTokenExchange))
	}

	f.logger.Info("token exchange complete",
		slog.String("provider", providerID),
		slog.Time("expiry", tokens.Expiry),
	)

	return tokens, nil
}

// FetchProfile retrieves and normalizes the backend's user-info
// response. Fails with ErrProfileFetch.
func (f *Flow) FetchProfile(ctx context.Context, providerID, accessToken string) (string, cloud.Profile, error) {
	adapter, err := f.registry.Adapter(providerID)
	if err != nil {
		return "", cloud.Profile{}, err
	}

	id, prof, err := adapter.FetchProfile(ctx, accessToken)
	if err != nil {
		if errors.Is(err, cloud.ErrProfileFetch) {
			return "", cloud.Profile{}, cloud.WrapOp(providerID, "", "fetch profile", err)
		}

		return "", cloud.Profile{}, cloud.WrapOp(providerID, "", "fetch profile",
			fmt.Errorf("%v: %w", err, cloud.ErrProfileFetch))
	}

	return id, prof, nil
}

// SignIn composes the full new-account path: complete the exchange for
// an authorization code already verified by HandleCallback, fetch the
// profile, and persist the account. The store rejects a duplicate
// (provider, id) pair rather than overwriting live credentials.
func (f *Flow) SignIn(ctx context.Context, providerID, code string) (cloud.Account, error) {
	tokens, err := f.CompleteAuthorization(ctx, providerID, code)
	if err != nil {
		return cloud.Account{}, err
	}

	id, prof, err := f.FetchProfile(ctx, providerID, tokens.AccessToken)
	if err != nil {
		return cloud.Account{}, err
	}

	account, err := f.accounts.Create(ctx, id, providerID, tokens, prof)
	if err != nil {
		return cloud.Account{}, err
	}

	f.logger.Info("sign-in complete",
		slog.String("provider", providerID),
		slog.String("account", account.ID),
	)

	return account, nil
}

// Refresh mints a new token set for the account and commits it with
// first-writer-wins semantics. Overlapping refreshes for the same
// account collapse into one backend call; every waiter receives the
// winner's committed snapshot.
//
// A rejected refresh token fails with ErrRefresh and demotes the
// account to Expired — surfaced, never silently retried. The record
// is preserved for re-authentication.
func (f *Flow) Refresh(ctx context.Context, account cloud.Account) (cloud.Account, error) {
	// The group key carries the provider so the same backend id under
	// two providers never collapses into one call.
	result, err, _ := f.refreshGroup.Do(account.ProviderID+"/"+account.ID, func() (any, error) {
		return f.refreshOnce(ctx, account)
	})
	if err != nil {
		return cloud.Account{}, err
	}

	refreshed, ok := result.(cloud.Account)
	if !ok {
		return cloud.Account{}, fmt.Errorf("auth: unexpected refresh result type %T", result)
	}

	return refreshed, nil
}

func (f *Flow) refreshOnce(ctx context.Context, account cloud.Account) (cloud.Account, error) {
	if account.RefreshToken == "" {
		f.markExpired(ctx, account.ProviderID, account.ID)
		return cloud.Account{}, cloud.WrapOp(account.ProviderID, account.ID, "refresh",
			fmt.Errorf("no refresh token: %w", cloud.ErrRefresh))
	}

	adapter, err := f.registry.Adapter(account.ProviderID)
	if err != nil {
		return cloud.Account{}, err
	}

	f.logger.Info("refreshing access token",
		slog.String("provider", account.ProviderID),
		slog.String("account", account.ID),
	)

	tokens, err := adapter.RefreshToken(ctx, account.RefreshToken)
	if err != nil {
		// A transport fault is not a rejection: surface it without
		// demoting the account, so a flaky network cannot force
		// re-authentication.
		if errors.Is(err, cloud.ErrTransport) {
			return cloud.Account{}, cloud.WrapOp(account.ProviderID, account.ID, "refresh", err)
		}

		f.markExpired(ctx, account.ProviderID, account.ID)

		if errors.Is(err, cloud.ErrRefresh) {
			return cloud.Account{}, cloud.WrapOp(account.ProviderID, account.ID, "refresh", err)
		}

		return cloud.Account{}, cloud.WrapOp(account.ProviderID, account.ID, "refresh",
			fmt.Errorf("%v: %w", err, cloud.ErrRefresh))
	}

	// Backends may omit the refresh token on rotation; keep the old one.
	if tokens.RefreshToken == "" {
		tokens.RefreshToken = account.RefreshToken
	}

	updated, err := f.accounts.UpdateTokens(ctx, account.ProviderID, account.ID, tokens, account.Version)
	if errors.Is(err, cloud.ErrStaleUpdate) {
		// A concurrent refresh committed first. Its tokens are newer;
		// discard ours and serve the stored state.
		return f.accounts.GetByProvider(ctx, account.ProviderID, account.ID)
	}

	if err != nil {
		return cloud.Account{}, err
	}

	return updated, nil
}

// markExpired is best-effort: a failed demotion is logged, not
// propagated, because the refresh error is the condition the caller
// must see.
func (f *Flow) markExpired(ctx context.Context, providerID, id string) {
	if err := f.accounts.MarkExpired(ctx, providerID, id); err != nil && !errors.Is(err, cloud.ErrAccountNotFound) {
		f.logger.Warn("failed to mark account expired",
			slog.String("provider", providerID),
			slog.String("account", id),
			slog.String("error", err.Error()),
		)
	}
}

// generateState produces a cryptographically random hex string for
// the OAuth2 state parameter.
func generateState() (string, error) {
	b := make([]byte, stateTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	return hex.EncodeToString(b), nil
}
