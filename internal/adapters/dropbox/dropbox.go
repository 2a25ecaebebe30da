// Package dropbox implements the unified contract for Dropbox.
//
// Dropbox is RPC-shaped: metadata operations are POSTs against
// api.dropboxapi.com with JSON bodies, content transfers go through
// content.dropboxapi.com with arguments in a Dropbox-API-Arg header,
// and failures arrive as HTTP 409 with a machine-readable
// error_summary. Entities are addressed by path.
//
// Name-conflict policy: conflicts are surfaced verbatim as
// ErrNameConflict. The adapter never auto-renames or overwrites.
package dropbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/oauth2"

	"github.com/skymux/skymux-go/internal/cloud"
	"github.com/skymux/skymux-go/internal/httpapi"
)

// ProviderID is the registry identifier for this adapter.
const ProviderID = "dropbox"

// Production endpoints; tests override via options.
const (
	defaultAuthURL     = "https://www.dropbox.com/oauth2/authorize"
	defaultTokenURL    = "https://api.dropboxapi.com/oauth2/token"
	defaultAPIBase     = "https://api.dropboxapi.com"
	defaultContentBase = "https://content.dropboxapi.com"
)

// Adapter is the Dropbox implementation of cloud.Adapter. One instance
// serves one account's operations.
type Adapter struct {
	oauth   *oauth2.Config
	api     *httpapi.Client
	content *httpapi.Client
	logger  *slog.Logger
}

// Option customizes an Adapter, mainly for tests.
type Option func(*options)

type options struct {
	authURL     string
	tokenURL    string
	apiBase     string
	contentBase string
	httpClient  *http.Client
	logger      *slog.Logger
}

// WithEndpoints overrides the OAuth2 endpoints (tests point these at
// an httptest server).
func WithEndpoints(authURL, tokenURL string) Option {
	return func(o *options) {
		o.authURL = authURL
		o.tokenURL = tokenURL
	}
}

// WithBaseURLs overrides the API and content hosts.
func WithBaseURLs(apiBase, contentBase string) Option {
	return func(o *options) {
		o.apiBase = apiBase
		o.contentBase = contentBase
	}
}

// WithHTTPClient substitutes the transport for API calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

// WithLogger sets the adapter logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// New builds a Dropbox adapter bound to the given client credentials.
func New(creds cloud.Credentials, opts ...Option) *Adapter {
	o := options{
		authURL:     defaultAuthURL,
		tokenURL:    defaultTokenURL,
		apiBase:     defaultAPIBase,
		contentBase: defaultContentBase,
		logger:      slog.Default(),
	}

	for _, opt := range opts {
		opt(&o)
	}

	clientOpts := []httpapi.Option{httpapi.WithClassifier(classify)}
	if o.httpClient != nil {
		clientOpts = append(clientOpts, httpapi.WithHTTPClient(o.httpClient))
	}

	return &Adapter{
		oauth: &oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			RedirectURL:  creds.RedirectURI,
			Endpoint: oauth2.Endpoint{
				AuthURL:  o.authURL,
				TokenURL: o.tokenURL,
			},
		},
		api:     httpapi.New(o.apiBase, o.logger, clientOpts...),
		content: httpapi.New(o.contentBase, o.logger, clientOpts...),
		logger:  o.logger,
	}
}

// Factory adapts New to the registry's constructor shape.
func Factory(opts ...Option) cloud.Factory {
	return func(creds cloud.Credentials) cloud.Adapter {
		return New(creds, opts...)
	}
}

// BuildAuthorizationURI embeds the anti-forgery state and requests a
// refresh token (token_access_type=offline — without it Dropbox issues
// only a short-lived access token).
func (a *Adapter) BuildAuthorizationURI(state string) string {
	return a.oauth.AuthCodeURL(state,
		oauth2.SetAuthURLParam("token_access_type", "offline"),
	)
}

// ExchangeToken converts the authorization code into a token set.
func (a *Adapter) ExchangeToken(ctx context.Context, code string) (cloud.TokenSet, error) {
	tok, err := a.oauth.Exchange(ctx, code)
	if err != nil {
		return cloud.TokenSet{}, fmt.Errorf("dropbox: exchange: %v: %w", err, cloud.ErrTokenExchange)
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
			// The backend answered and said no: invalid_grant, revoked
			// app, disabled account. Re-authentication is required.
			return cloud.TokenSet{}, fmt.Errorf("dropbox: refresh rejected: %v: %w", err, cloud.ErrRefresh)
		}

		return cloud.TokenSet{}, fmt.Errorf("dropbox: refresh: %v: %w", err, cloud.ErrTransport)
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

// currentAccountResponse mirrors /2/users/get_current_account.
type currentAccountResponse struct {
	AccountID string `json:"account_id"`
	Name      struct {
		DisplayName string `json:"display_name"`
	} `json:"name"`
	Email           string `json:"email"`
	ProfilePhotoURL string `json:"profile_photo_url"`
}

// FetchProfile maps the current-account response to the normalized
// profile. The Dropbox account_id is the stable account identifier.
func (a *Adapter) FetchProfile(ctx context.Context, accessToken string) (string, cloud.Profile, error) {
	var resp currentAccountResponse

	err := a.api.DoJSON(ctx, httpapi.Request{
		Method:      http.MethodPost,
		Path:        "/2/users/get_current_account",
		AccessToken: accessToken,
	}, nil, &resp)
	if err != nil {
		return "", cloud.Profile{}, fmt.Errorf("dropbox: current account: %v: %w", err, cloud.ErrProfileFetch)
	}

	return resp.AccountID, cloud.Profile{
		Name:      resp.Name.DisplayName,
		Email:     resp.Email,
		AvatarURL: resp.ProfilePhotoURL,
	}, nil
}

// Logout revokes the access token remotely; Dropbox supports
// /2/auth/token/revoke, so remote invalidation is attempted but a
// transport failure is not fatal to the local logout.
func (a *Adapter) Logout(ctx context.Context, account cloud.Account) error {
	err := a.api.DoJSON(ctx, httpapi.Request{
		Method:      http.MethodPost,
		Path:        "/2/auth/token/revoke",
		AccessToken: account.AccessToken,
	}, nil, nil)
	if err != nil && !errors.Is(err, cloud.ErrTransport) && !errors.Is(err, cloud.ErrUnauthorized) {
		return fmt.Errorf("dropbox: revoking token: %w", err)
	}

	if err != nil {
		a.logger.Warn("token revoke failed, clearing local state only",
			slog.String("error", err.Error()),
		)
	}

	return nil
}

// classify maps Dropbox's HTTP statuses to the taxonomy. Dropbox
// reports operation failures as 409 with an error_summary string; the
// summary, not the status, distinguishes not-found from conflict.
func classify(code int, body []byte) error {
	if code == http.StatusConflict {
		var parsed struct {
			ErrorSummary string `json:"error_summary"`
		}

		if json.Unmarshal(body, &parsed) == nil {
			switch {
			case strings.Contains(parsed.ErrorSummary, "not_found"):
				return cloud.ErrNotFound
			case strings.Contains(parsed.ErrorSummary, "conflict"):
				return cloud.ErrNameConflict
			case strings.Contains(parsed.ErrorSummary, "insufficient_space"):
				return cloud.ErrQuotaExceeded
			}
		}

		return cloud.ErrNameConflict
	}

	return httpapi.ClassifyDefault(code, body)
}

// interface guard
var _ cloud.Adapter = (*Adapter)(nil)
