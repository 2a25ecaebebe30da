// Package onecloud implements the unified contract for Graph-style
// backends (OneDrive and API-compatible services).
//
// The API is resource-shaped: entities are addressed by opaque item
// id under /me/drive/items/{id}, metadata carries file/folder facets,
// and collections paginate via @odata.nextLink. Content transfers are
// plain PUT/GET against the item's /content route.
//
// Name-conflict policy: fail. Every write that could collide carries
// @microsoft.graph.conflictBehavior=fail, so an existing name comes
// back as ErrNameConflict instead of an auto-rename or overwrite.
package onecloud

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/skymux/skymux-go/internal/cloud"
	"github.com/skymux/skymux-go/internal/httpapi"
)

// ProviderID is the registry identifier for this adapter.
const ProviderID = "onecloud"

// Production endpoints; tests override via options.
const (
	defaultAuthURL  = "https://login.microsoftonline.com/common/oauth2/v2.0/authorize"
	defaultTokenURL = "https://login.microsoftonline.com/common/oauth2/v2.0/token"
	defaultAPIBase  = "https://graph.microsoft.com"
)

// scopes requested at authorization. offline_access is what makes the
// backend issue a refresh token.
var scopes = []string{"Files.ReadWrite", "User.Read", "offline_access"}

// Adapter is the Graph-style implementation of cloud.Adapter. One
// instance serves one account's operations.
type Adapter struct {
	oauth   *oauth2.Config
	api     *httpapi.Client
	apiBase string
	logger  *slog.Logger
}

// Option customizes an Adapter, mainly for tests.
type Option func(*options)

type options struct {
	authURL    string
	tokenURL   string
	apiBase    string
	httpClient *http.Client
	logger     *slog.Logger
}

// WithEndpoints overrides the OAuth2 endpoints (tests point these at
// an httptest server).
func WithEndpoints(authURL, tokenURL string) Option {
	return func(o *options) {
		o.authURL = authURL
		o.tokenURL = tokenURL
	}
}

// WithBaseURL overrides the API host.
func WithBaseURL(apiBase string) Option {
	return func(o *options) { o.apiBase = apiBase }
}

// WithHTTPClient substitutes the transport for API calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

// WithLogger sets the adapter logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// New builds a Graph-style adapter bound to the given client
// credentials.
func New(creds cloud.Credentials, opts ...Option) *Adapter {
	o := options{
		authURL:  defaultAuthURL,
		tokenURL: defaultTokenURL,
		apiBase:  defaultAPIBase,
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		opt(&o)
	}

	var clientOpts []httpapi.Option
	if o.httpClient != nil {
		clientOpts = append(clientOpts, httpapi.WithHTTPClient(o.httpClient))
	}

	return &Adapter{
		oauth: &oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			RedirectURL:  creds.RedirectURI,
			Scopes:       scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  o.authURL,
				TokenURL: o.tokenURL,
			},
		},
		api:     httpapi.New(o.apiBase, o.logger, clientOpts...),
		apiBase: o.apiBase,
		logger:  o.logger,
	}
}

// Factory adapts New to the registry's constructor shape.
func Factory(opts ...Option) cloud.Factory {
	return func(creds cloud.Credentials) cloud.Adapter {
		return New(creds, opts...)
	}
}

// BuildAuthorizationURI embeds the anti-forgery state token.
func (a *Adapter) BuildAuthorizationURI(state string) string {
	return a.oauth.AuthCodeURL(state)
}

// ExchangeToken converts the authorization code into a token set.
func (a *Adapter) ExchangeToken(ctx context.Context, code string) (cloud.TokenSet, error) {
	tok, err := a.oauth.Exchange(ctx, code)
	if err != nil {
		return cloud.TokenSet{}, fmt.Errorf("onecloud: exchange: %v: %w", err, cloud.ErrTokenExchange)
	}

	return tokenSet(tok), nil
}

// RefreshToken mints a fresh access token from the refresh grant.
func (a *Adapter) RefreshToken(ctx context.Context, refreshToken string) (cloud.TokenSet, error) {
	src := a.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})

	tok, err := src.Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			// The backend answered and said no: invalid_grant, consent
			// revoked, disabled account. Re-authentication is required.
			return cloud.TokenSet{}, fmt.Errorf("onecloud: refresh rejected: %v: %w", err, cloud.ErrRefresh)
		}

		return cloud.TokenSet{}, fmt.Errorf("onecloud: refresh: %v: %w", err, cloud.ErrTransport)
	}

	return tokenSet(tok), nil
}

func tokenSet(tok *oauth2.Token) cloud.TokenSet {
	return cloud.TokenSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}
}

// meResponse mirrors GET /v1.0/me.
type meResponse struct {
	ID                string `json:"id"`
	DisplayName       string `json:"displayName"`
	Mail              string `json:"mail"`
	UserPrincipalName string `json:"userPrincipalName"`
}

// FetchProfile maps the /me response to the normalized profile. Some
// tenants leave mail empty; userPrincipalName is the fallback.
func (a *Adapter) FetchProfile(ctx context.Context, accessToken string) (string, cloud.Profile, error) {
	var resp meResponse

	err := a.api.DoJSON(ctx, httpapi.Request{
		Method:      http.MethodGet,
		Path:        "/v1.0/me",
		AccessToken: accessToken,
	}, nil, &resp)
	if err != nil {
		return "", cloud.Profile{}, fmt.Errorf("onecloud: fetching profile: %v: %w", err, cloud.ErrProfileFetch)
	}

	email := resp.Mail
	if email == "" {
		email = resp.UserPrincipalName
	}

	return resp.ID, cloud.Profile{
		Name:  resp.DisplayName,
		Email: email,
	}, nil
}

// Logout clears local state only. Graph-style backends expose no
// token revocation endpoint for this grant, so the tokens simply age
// out server-side.
func (a *Adapter) Logout(_ context.Context, account cloud.Account) error {
	a.logger.Debug("logout is local only, backend offers no revocation",
		slog.String("account", account.ID),
	)

	return nil
}

// interface guard
var _ cloud.Adapter = (*Adapter)(nil)
