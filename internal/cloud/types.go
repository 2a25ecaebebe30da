// Package cloud defines the backend-neutral data model and the unified
// adapter contract every storage provider implements. Callers never see
// raw backend JSON — adapters normalize into these types.
package cloud

import "time"

// Account is one authenticated user session against one provider.
// It is always handled by value: components receive snapshots, never
// references into the store's internal state.
type Account struct {
	// ID is the backend-assigned stable identifier (username, email,
	// or backend user id). Unique only within one provider.
	ID         string
	ProviderID string

	AccessToken  string
	RefreshToken string // empty when the backend issues none
	Expiry       time.Time

	Profile Profile
	Status  AccountStatus

	// Version is the store's write serial for this record. Token
	// updates carry the version they read; a stale version loses.
	Version int64
}

// AccountStatus tracks whether the account's credentials are usable.
type AccountStatus string

const (
	// StatusActive means the access token is valid or refreshable.
	StatusActive AccountStatus = "active"
	// StatusExpired means a refresh was rejected by the backend and
	// the user must re-authenticate. The record is preserved.
	StatusExpired AccountStatus = "expired"
)

// Expired reports whether the access token is past its expiry.
// A zero expiry is treated as non-expiring.
func (a Account) Expired(now time.Time) bool {
	return !a.Expiry.IsZero() && !now.Before(a.Expiry)
}

// Operable reports whether the account can serve file operations:
// a non-empty access token that is either unexpired or refreshable.
func (a Account) Operable(now time.Time) bool {
	if a.Status == StatusExpired || a.AccessToken == "" {
		return false
	}

	return !a.Expired(now) || a.RefreshToken != ""
}

// Profile is denormalized user display data. Cache only — the
// provider's user-info endpoint is authoritative.
type Profile struct {
	Name      string
	Email     string
	AvatarURL string
}

// TokenSet is the outcome of an authorization-code exchange or a
// refresh: the new credentials to commit to the store.
type TokenSet struct {
	AccessToken  string
	RefreshToken string // empty when the backend did not rotate it
	Expiry       time.Time
}

// File is a leaf entity in a provider namespace. IDs are unique only
// within one account; cross-account comparison is undefined.
type File struct {
	ID       string
	Name     string
	Size     int64
	MIMEType string
	// Path is the backend-specific reference (path or ID route)
	// adapters use to address the file. Opaque to callers.
	Path     string
	ParentID string
}

// Folder is a container entity. Children are fetched on demand via
// ListChildren, never cached by the contract layer.
type Folder struct {
	ID       string
	Name     string
	Path     string
	ParentID string // empty for root
}

// Root returns the root folder reference for a provider namespace.
func Root() Folder {
	return Folder{ID: "root", Path: ""}
}

// Entry is one listing result: exactly one of File or Folder is set,
// indicated by IsFolder. Listings return entries so callers branch
// once at the boundary instead of carrying a type-tagged union around.
type Entry struct {
	IsFolder bool
	File     File
	Folder   Folder
}

// Name returns the display name regardless of entry kind.
func (e Entry) Name() string {
	if e.IsFolder {
		return e.Folder.Name
	}

	return e.File.Name
}

// FileEntry wraps a File as a listing entry.
func FileEntry(f File) Entry {
	return Entry{File: f}
}

// FolderEntry wraps a Folder as a listing entry.
func FolderEntry(f Folder) Entry {
	return Entry{IsFolder: true, Folder: f}
}
