package cloud

import (
	"context"
	"io"
)

// Adapter is the per-provider implementation of the unified contract:
// the OAuth2 strategy methods the auth flow delegates to, plus the
// file/folder operations. One Adapter instance serves one account.
//
// Every network operation takes a context and must honor the adapter's
// transport timeout; on timeout it fails with ErrTransport. Adapters
// perform no automatic retries — the session layer owns the single
// refresh-and-retry recovery step.
type Adapter interface {
	AuthStrategy
	FileOperations

	// Logout clears any adapter-local token state. Remote session
	// invalidation is best-effort: backends without a revocation
	// endpoint simply drop local state.
	Logout(ctx context.Context, account Account) error
}

// AuthStrategy is the backend-specific half of the OAuth2 flow. The
// auth state machine owns sequencing and state verification; the
// strategy owns URL shape, token-endpoint body encoding, and the
// success/error JSON schema of its backend.
type AuthStrategy interface {
	// BuildAuthorizationURI returns the backend authorization URL with
	// the caller-supplied anti-forgery state token embedded.
	BuildAuthorizationURI(state string) string

	// ExchangeToken converts an authorization code into a token set.
	// Fails with ErrTokenExchange on any transport or backend failure.
	ExchangeToken(ctx context.Context, code string) (TokenSet, error)

	// RefreshToken mints a new token set from a refresh token. Fails
	// with ErrRefresh when the backend rejects the grant.
	RefreshToken(ctx context.Context, refreshToken string) (TokenSet, error)

	// FetchProfile maps the backend's user-info response to the
	// normalized profile. The returned id is the backend-assigned
	// stable account identifier. Fails with ErrProfileFetch.
	FetchProfile(ctx context.Context, accessToken string) (id string, profile Profile, err error)
}

// FileOperations is the uniform file/folder surface. Identifiers are
// meaningful only within the adapter's account namespace.
type FileOperations interface {
	// ListChildren fetches the folder's children with one backend
	// call per invocation. Results are never cached by this layer.
	ListChildren(ctx context.Context, account Account, folder Folder) ([]Entry, error)

	// UploadFile stores the content as a new file in the destination
	// folder. Conflict handling is backend policy — implementations
	// document whether they rename, overwrite, or fail — but the
	// outcome is always reported: ErrNameConflict, ErrQuotaExceeded,
	// or ErrTransport on failure.
	UploadFile(ctx context.Context, account Account, content io.Reader, name string, dest Folder) (File, error)

	// DownloadFile streams the remote file into w. Fails with
	// ErrNotFound when the remote file no longer exists.
	DownloadFile(ctx context.Context, account Account, file File, w io.Writer) error

	// UpdateFile replaces the remote file's content.
	UpdateFile(ctx context.Context, account Account, file File, content io.Reader) (File, error)

	// DeleteFile and DeleteFolder report ErrNotFound on an already
	// deleted entity; callers treat that as success-equivalent.
	DeleteFile(ctx context.Context, account Account, file File) error
	DeleteFolder(ctx context.Context, account Account, folder Folder) error

	RenameFile(ctx context.Context, account Account, file File, newName string) (File, error)
	RenameFolder(ctx context.Context, account Account, folder Folder, newName string) (Folder, error)

	// MoveFile relocates the file under target. Source and target are
	// both explicit — there is no implicit current-selection state.
	MoveFile(ctx context.Context, account Account, file File, target Folder) (File, error)

	CreateFolder(ctx context.Context, account Account, name string, parent Folder) (Folder, error)
}

// Factory constructs an adapter bound to one provider's client
// credentials. The registry maps provider ids to factories so callers
// need no compile-time backend list.
type Factory func(creds Credentials) Adapter

// Credentials is the client credential triple a host application
// configures per provider. All three fields must be non-empty for the
// provider to be usable.
type Credentials struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

// Complete reports whether all credential fields are present.
func (c Credentials) Complete() bool {
	return c.ClientID != "" && c.ClientSecret != "" && c.RedirectURI != ""
}
