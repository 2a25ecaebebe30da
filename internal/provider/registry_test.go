package provider

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skymux/skymux-go/internal/cloud"
	"github.com/skymux/skymux-go/internal/cloudtest"
)

func fullCreds() cloud.Credentials {
	return cloud.Credentials{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURI:  "http://localhost/callback",
	}
}

func fakeFactory(creds cloud.Credentials) cloud.Adapter {
	return cloudtest.NewFakeAdapter("fake", creds)
}

func TestRegister_CompleteCredentials(t *testing.T) {
	r := NewRegistry(slog.Default())

	require.NoError(t, r.Register("acme", fakeFactory, fullCreds()))

	reg, err := r.Resolve("acme")
	require.NoError(t, err)
	assert.Equal(t, "acme", reg.ID)
	assert.Equal(t, "client-id", reg.Credentials.ClientID)
}

func TestRegister_IncompleteCredentials(t *testing.T) {
	r := NewRegistry(slog.Default())

	cases := []cloud.Credentials{
		{ClientSecret: "s", RedirectURI: "u"},
		{ClientID: "c", RedirectURI: "u"},
		{ClientID: "c", ClientSecret: "s"},
		{},
	}

	for _, creds := range cases {
		err := r.Register("acme", fakeFactory, creds)
		require.ErrorIs(t, err, cloud.ErrIncompleteCredentials)
	}

	_, err := r.Resolve("acme")
	assert.ErrorIs(t, err, cloud.ErrUnknownProvider)
	assert.Empty(t, r.Enabled())
}

func TestResolve_Unknown(t *testing.T) {
	r := NewRegistry(slog.Default())

	_, err := r.Resolve("nope")
	assert.ErrorIs(t, err, cloud.ErrUnknownProvider)
}

func TestEnabled_RegistrationOrder(t *testing.T) {
	r := NewRegistry(slog.Default())

	require.NoError(t, r.Register("box", fakeFactory, fullCreds()))
	require.NoError(t, r.Register("dropbox", fakeFactory, fullCreds()))
	require.NoError(t, r.Register("acme", fakeFactory, fullCreds()))

	assert.Equal(t, []string{"box", "dropbox", "acme"}, r.Enabled())

	// Re-registration replaces the entry but keeps its position.
	require.NoError(t, r.Register("dropbox", fakeFactory, fullCreds()))
	assert.Equal(t, []string{"box", "dropbox", "acme"}, r.Enabled())
}

func TestAdapter_ConstructsWithRegisteredCredentials(t *testing.T) {
	r := NewRegistry(slog.Default())
	require.NoError(t, r.Register("acme", fakeFactory, fullCreds()))

	a, err := r.Adapter("acme")
	require.NoError(t, err)
	assert.NotNil(t, a)

	_, err = r.Adapter("other")
	assert.ErrorIs(t, err, cloud.ErrUnknownProvider)
}

func TestLoadConfigured_SkipsIncompleteSilently(t *testing.T) {
	r := NewRegistry(slog.Default())

	available := map[string]cloud.Factory{
		"acme": fakeFactory,
		"box":  fakeFactory,
	}

	r.LoadConfigured(available, []ConfiguredProvider{
		{ID: "acme", Credentials: fullCreds()},
		{ID: "box", Credentials: cloud.Credentials{ClientID: "only-id"}},
		{ID: "ghost", Credentials: fullCreds()}, // no adapter built in
	})

	assert.Equal(t, []string{"acme"}, r.Enabled())
}
