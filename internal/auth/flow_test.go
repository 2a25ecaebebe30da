package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skymux/skymux-go/internal/cloud"
	"github.com/skymux/skymux-go/internal/cloudtest"
	"github.com/skymux/skymux-go/internal/provider"
	"github.com/skymux/skymux-go/internal/store"
)

type flowEnv struct {
	flow     *Flow
	registry *provider.Registry
	accounts *store.Store
	adapter  *cloudtest.FakeAdapter
}

func newFlowEnv(t *testing.T) *flowEnv {
	t.Helper()

	logger := slog.Default()

	accounts, err := store.Open(context.Background(), ":memory:", logger)
	require.NoError(t, err)

	t.Cleanup(func() { accounts.Close() })

	registry := provider.NewRegistry(logger)
	adapter := cloudtest.NewFakeAdapter("acme", cloud.Credentials{})

	require.NoError(t, registry.Register("acme", adapter.Factory(), cloud.Credentials{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURI:  "http://127.0.0.1:0/callback",
	}))

	return &flowEnv{
		flow:     NewFlow(registry, accounts, logger),
		registry: registry,
		accounts: accounts,
		adapter:  adapter,
	}
}

func TestBeginAuthorization_EmbedsState(t *testing.T) {
	env := newFlowEnv(t)

	authURL, state, err := env.flow.BeginAuthorization(context.Background(), "acme")
	require.NoError(t, err)
	require.NotEmpty(t, state)

	parsed, err := url.Parse(authURL)
	require.NoError(t, err)
	assert.Equal(t, state, parsed.Query().Get("state"))
	assert.Equal(t, "client-id", parsed.Query().Get("client_id"))
}

func TestBeginAuthorization_UnknownProvider(t *testing.T) {
	env := newFlowEnv(t)

	_, _, err := env.flow.BeginAuthorization(context.Background(), "nope")
	assert.ErrorIs(t, err, cloud.ErrUnknownProvider)
}

func TestHandleCallback_VerifiesState(t *testing.T) {
	env := newFlowEnv(t)

	_, state, err := env.flow.BeginAuthorization(context.Background(), "acme")
	require.NoError(t, err)

	providerID, err := env.flow.HandleCallback(state, "code123", "")
	require.NoError(t, err)
	assert.Equal(t, "acme", providerID)

	// The state token is consumed: a replay is rejected.
	_, err = env.flow.HandleCallback(state, "code123", "")
	assert.ErrorIs(t, err, cloud.ErrStateMismatch)
}

func TestHandleCallback_ForgedState(t *testing.T) {
	env := newFlowEnv(t)

	_, _, err := env.flow.BeginAuthorization(context.Background(), "acme")
	require.NoError(t, err)

	_, err = env.flow.HandleCallback("forged", "code123", "")
	assert.ErrorIs(t, err, cloud.ErrStateMismatch)
}

func TestHandleCallback_BackendDenied(t *testing.T) {
	env := newFlowEnv(t)

	_, state, err := env.flow.BeginAuthorization(context.Background(), "acme")
	require.NoError(t, err)

	_, err = env.flow.HandleCallback(state, "", "access_denied")
	assert.ErrorIs(t, err, cloud.ErrAuthDenied)
}

func TestHandleCallback_ExpiredPending(t *testing.T) {
	env := newFlowEnv(t)

	_, state, err := env.flow.BeginAuthorization(context.Background(), "acme")
	require.NoError(t, err)

	// Jump past the pending TTL; the next Begin sweeps stale entries.
	env.flow.now = func() time.Time { return time.Now().Add(pendingTTL + time.Minute) }

	_, _, err = env.flow.BeginAuthorization(context.Background(), "acme")
	require.NoError(t, err)

	_, err = env.flow.HandleCallback(state, "code123", "")
	assert.ErrorIs(t, err, cloud.ErrStateMismatch)
}

func TestCompleteAuthorization_WrapsExchangeFailure(t *testing.T) {
	env := newFlowEnv(t)
	env.adapter.ExchangeErr = fmt.Errorf("backend says no")

	_, err := env.flow.CompleteAuthorization(context.Background(), "acme", "code123")
	assert.ErrorIs(t, err, cloud.ErrTokenExchange)

	var opErr *cloud.OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "acme", opErr.Provider)
}

func TestSignIn_PersistsAccount(t *testing.T) {
	env := newFlowEnv(t)
	ctx := context.Background()

	expiry := time.Now().Add(time.Hour).Truncate(time.Second).UTC()
	env.adapter.Tokens = cloud.TokenSet{AccessToken: "tok", RefreshToken: "r", Expiry: expiry}
	env.adapter.UserID = "user@example.com"

	account, err := env.flow.SignIn(ctx, "acme", "code123")
	require.NoError(t, err)
	assert.Equal(t, "acme", account.ProviderID)
	assert.Equal(t, "tok", account.AccessToken)

	// Round trip through the store returns identical token fields.
	got, err := env.accounts.Get(ctx, "user@example.com")
	require.NoError(t, err)
	assert.Equal(t, "tok", got.AccessToken)
	assert.Equal(t, "r", got.RefreshToken)
	assert.True(t, expiry.Equal(got.Expiry))
	assert.Equal(t, 1, env.adapter.ExchangeCalls)
	assert.Equal(t, 1, env.adapter.ProfileCalls)
}

func TestSignIn_DuplicateRejected(t *testing.T) {
	env := newFlowEnv(t)
	ctx := context.Background()

	_, err := env.flow.SignIn(ctx, "acme", "code123")
	require.NoError(t, err)

	_, err = env.flow.SignIn(ctx, "acme", "code456")
	assert.ErrorIs(t, err, cloud.ErrDuplicateAccount)
}

func TestRefresh_CommitsNewTokens(t *testing.T) {
	env := newFlowEnv(t)
	ctx := context.Background()

	account, err := env.flow.SignIn(ctx, "acme", "code123")
	require.NoError(t, err)

	newExpiry := time.Now().Add(2 * time.Hour).Truncate(time.Second).UTC()
	env.adapter.Tokens = cloud.TokenSet{AccessToken: "tok2", RefreshToken: "r2", Expiry: newExpiry}

	refreshed, err := env.flow.Refresh(ctx, account)
	require.NoError(t, err)
	assert.Equal(t, "tok2", refreshed.AccessToken)
	assert.Equal(t, account.Version+1, refreshed.Version)

	got, err := env.accounts.Get(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, "tok2", got.AccessToken)
}

func TestRefresh_KeepsOldRefreshTokenWhenOmitted(t *testing.T) {
	env := newFlowEnv(t)
	ctx := context.Background()

	env.adapter.Tokens = cloud.TokenSet{
		AccessToken: "tok", RefreshToken: "r1", Expiry: time.Now().Add(time.Hour),
	}

	account, err := env.flow.SignIn(ctx, "acme", "code123")
	require.NoError(t, err)

	// Backend rotates the access token but omits the refresh token.
	env.adapter.Tokens = cloud.TokenSet{AccessToken: "tok2", Expiry: time.Now().Add(time.Hour)}

	refreshed, err := env.flow.Refresh(ctx, account)
	require.NoError(t, err)
	assert.Equal(t, "r1", refreshed.RefreshToken)
}

func TestRefresh_RejectedDemotesToExpired(t *testing.T) {
	env := newFlowEnv(t)
	ctx := context.Background()

	account, err := env.flow.SignIn(ctx, "acme", "code123")
	require.NoError(t, err)

	env.adapter.RefreshErr = fmt.Errorf("invalid_grant: %w", cloud.ErrRefresh)

	_, err = env.flow.Refresh(ctx, account)
	assert.ErrorIs(t, err, cloud.ErrRefresh)

	// Record preserved but non-operable until re-authorized.
	all, listErr := env.accounts.List(ctx)
	require.NoError(t, listErr)
	require.Len(t, all, 1)
	assert.Equal(t, cloud.StatusExpired, all[0].Status)
	assert.False(t, all[0].Operable(time.Now()))
}

func TestRefresh_TransportFaultDoesNotDemote(t *testing.T) {
	env := newFlowEnv(t)
	ctx := context.Background()

	account, err := env.flow.SignIn(ctx, "acme", "code123")
	require.NoError(t, err)

	env.adapter.RefreshErr = fmt.Errorf("dial tcp: %w", cloud.ErrTransport)

	_, err = env.flow.Refresh(ctx, account)
	assert.ErrorIs(t, err, cloud.ErrTransport)

	got, err := env.accounts.Get(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, cloud.StatusActive, got.Status)
}

func TestRefresh_OverlappingCallsCollapse(t *testing.T) {
	env := newFlowEnv(t)
	ctx := context.Background()

	account, err := env.flow.SignIn(ctx, "acme", "code123")
	require.NoError(t, err)

	env.adapter.RefreshDelay = 100 * time.Millisecond
	baseCalls := env.adapter.RefreshCalls

	const waiters = 6

	var wg sync.WaitGroup

	results := make([]cloud.Account, waiters)

	for i := range waiters {
		wg.Add(1)

		go func(n int) {
			defer wg.Done()

			r, rerr := env.flow.Refresh(ctx, account)
			if assert.NoError(t, rerr) {
				results[n] = r
			}
		}(i)
	}

	wg.Wait()

	// Overlapping refreshes collapse; the backend saw far fewer calls
	// than waiters, and every waiter got the committed snapshot.
	assert.Less(t, env.adapter.RefreshCalls-baseCalls, waiters)

	for _, r := range results {
		assert.Equal(t, results[0].Version, r.Version)
	}
}

func TestRefresh_SameIDAcrossProvidersStayIndependent(t *testing.T) {
	env := newFlowEnv(t)
	ctx := context.Background()

	boxAdapter := cloudtest.NewFakeAdapter("box", cloud.Credentials{})
	require.NoError(t, env.registry.Register("box", boxAdapter.Factory(), cloud.Credentials{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURI:  "http://127.0.0.1:0/callback",
	}))

	// Same backend id under both providers, as when providers key
	// accounts by the user's email.
	env.adapter.UserID = "user@example.com"
	boxAdapter.UserID = "user@example.com"

	acmeAccount, err := env.flow.SignIn(ctx, "acme", "code-acme")
	require.NoError(t, err)
	boxAccount, err := env.flow.SignIn(ctx, "box", "code-box")
	require.NoError(t, err)

	expiry := time.Now().Add(2 * time.Hour).Truncate(time.Second).UTC()
	env.adapter.Tokens = cloud.TokenSet{AccessToken: "acme-tok2", RefreshToken: "ra2", Expiry: expiry}
	boxAdapter.Tokens = cloud.TokenSet{AccessToken: "box-tok2", RefreshToken: "rb2", Expiry: expiry}
	env.adapter.RefreshDelay = 50 * time.Millisecond
	boxAdapter.RefreshDelay = 50 * time.Millisecond

	var (
		wg                          sync.WaitGroup
		acmeRefreshed, boxRefreshed cloud.Account
	)

	wg.Add(2)

	go func() {
		defer wg.Done()

		r, rerr := env.flow.Refresh(ctx, acmeAccount)
		if assert.NoError(t, rerr) {
			acmeRefreshed = r
		}
	}()

	go func() {
		defer wg.Done()

		r, rerr := env.flow.Refresh(ctx, boxAccount)
		if assert.NoError(t, rerr) {
			boxRefreshed = r
		}
	}()

	wg.Wait()

	// Overlapping refreshes for the same id under different providers
	// never collapse: each backend is called and each waiter gets its
	// own provider's snapshot.
	assert.Equal(t, 1, env.adapter.RefreshCalls)
	assert.Equal(t, 1, boxAdapter.RefreshCalls)
	assert.Equal(t, "acme-tok2", acmeRefreshed.AccessToken)
	assert.Equal(t, "box-tok2", boxRefreshed.AccessToken)

	// The commits landed on their own rows.
	got, err := env.accounts.GetByProvider(ctx, "acme", "user@example.com")
	require.NoError(t, err)
	assert.Equal(t, "acme-tok2", got.AccessToken)

	got, err = env.accounts.GetByProvider(ctx, "box", "user@example.com")
	require.NoError(t, err)
	assert.Equal(t, "box-tok2", got.AccessToken)
}

func TestRefresh_StaleVersionServesWinner(t *testing.T) {
	env := newFlowEnv(t)
	ctx := context.Background()

	account, err := env.flow.SignIn(ctx, "acme", "code123")
	require.NoError(t, err)

	// First refresh commits and bumps the version.
	first, err := env.flow.Refresh(ctx, account)
	require.NoError(t, err)

	// A second refresh still holding the original snapshot loses the
	// version race; it must receive the winner's state, not an error.
	env.adapter.Tokens = cloud.TokenSet{AccessToken: "tok-late", Expiry: time.Now().Add(time.Hour)}

	got, err := env.flow.Refresh(ctx, account)
	require.NoError(t, err)
	assert.Equal(t, first.AccessToken, got.AccessToken)
	assert.Equal(t, first.Version, got.Version)
}

func TestSignInInteractive_EndToEnd(t *testing.T) {
	logger := slog.Default()

	accounts, err := store.Open(context.Background(), ":memory:", logger)
	require.NoError(t, err)

	defer accounts.Close()

	// Reserve a port for the callback listener.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	addr := l.Addr().String()
	require.NoError(t, l.Close())

	registry := provider.NewRegistry(logger)
	adapter := cloudtest.NewFakeAdapter("acme", cloud.Credentials{})
	require.NoError(t, registry.Register("acme", adapter.Factory(), cloud.Credentials{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURI:  "http://" + addr + "/callback",
	}))

	flow := NewFlow(registry, accounts, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// The "browser" extracts the state from the auth URL and hits the
	// callback the way a real redirect would.
	openURL := func(authURL string) error {
		parsed, perr := url.Parse(authURL)
		if perr != nil {
			return perr
		}

		state := parsed.Query().Get("state")

		go func() {
			cb := fmt.Sprintf("http://%s/callback?state=%s&code=code123", addr, state)

			for range 50 {
				resp, gerr := http.Get(cb)
				if gerr == nil {
					resp.Body.Close()
					return
				}

				time.Sleep(20 * time.Millisecond)
			}
		}()

		return nil
	}

	account, err := flow.SignInInteractive(ctx, "acme", openURL)
	require.NoError(t, err)
	assert.Equal(t, "acme", account.ProviderID)
	assert.Equal(t, "tok", account.AccessToken)

	got, err := accounts.Get(context.Background(), account.ID)
	require.NoError(t, err)
	assert.Equal(t, account.AccessToken, got.AccessToken)
}
