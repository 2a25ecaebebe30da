// Package cloudtest provides an in-memory fake adapter for tests.
// The fake implements the full contract with scriptable failures and
// call counters so auth, registry, and dispatch tests do not need a
// live backend or an httptest server.
package cloudtest

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/skymux/skymux-go/internal/cloud"
)

// FakeAdapter is a contract implementation backed by process memory.
// Zero value is not usable; construct with NewFakeAdapter.
type FakeAdapter struct {
	Provider string
	Creds    cloud.Credentials

	mu      sync.Mutex
	nextID  int
	folders map[string]cloud.Folder
	files   map[string]cloud.File
	content map[string][]byte

	// Scriptable outcomes. A nil field means success.
	ExchangeErr error
	RefreshErr  error
	ProfileErr  error
	OpErr       error // returned by every file operation when set
	OpErrOnce   bool  // clear OpErr after the first failing operation

	// RefreshDelay simulates a slow token endpoint so tests can hold
	// several refreshes in flight at once.
	RefreshDelay time.Duration

	// Canned results.
	Tokens  cloud.TokenSet
	UserID  string
	Profile cloud.Profile

	// Call counters, guarded by mu.
	ExchangeCalls int
	RefreshCalls  int
	ProfileCalls  int
	ListCalls     int
	LogoutCalls   int
}

// NewFakeAdapter returns a fake with a root folder and sane token
// defaults (access "tok", refresh "refresh-tok", expiry one hour out).
func NewFakeAdapter(providerID string, creds cloud.Credentials) *FakeAdapter {
	return &FakeAdapter{
		Provider: providerID,
		Creds:    creds,
		folders:  map[string]cloud.Folder{"root": cloud.Root()},
		files:    map[string]cloud.File{},
		content:  map[string][]byte{},
		Tokens: cloud.TokenSet{
			AccessToken:  "tok",
			RefreshToken: "refresh-tok",
			Expiry:       time.Now().Add(time.Hour),
		},
		UserID:  "user@example.com",
		Profile: cloud.Profile{Name: "Test User", Email: "user@example.com"},
	}
}

// Factory returns a cloud.Factory producing this same fake, so tests
// can hold the instance while the registry constructs "new" adapters.
func (f *FakeAdapter) Factory() cloud.Factory {
	return func(creds cloud.Credentials) cloud.Adapter {
		f.Creds = creds
		return f
	}
}

func (f *FakeAdapter) BuildAuthorizationURI(state string) string {
	return fmt.Sprintf("https://auth.%s.example/authorize?client_id=%s&state=%s&redirect_uri=%s",
		f.Provider, f.Creds.ClientID, state, f.Creds.RedirectURI)
}

func (f *FakeAdapter) ExchangeToken(_ context.Context, code string) (cloud.TokenSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.ExchangeCalls++

	if f.ExchangeErr != nil {
		return cloud.TokenSet{}, f.ExchangeErr
	}

	if code == "" {
		return cloud.TokenSet{}, cloud.ErrTokenExchange
	}

	return f.Tokens, nil
}

func (f *FakeAdapter) RefreshToken(_ context.Context, refreshToken string) (cloud.TokenSet, error) {
	f.mu.Lock()
	f.RefreshCalls++
	delay := f.RefreshDelay
	refreshErr := f.RefreshErr
	tokens := f.Tokens
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	if refreshErr != nil {
		return cloud.TokenSet{}, refreshErr
	}

	if refreshToken == "" {
		return cloud.TokenSet{}, cloud.ErrRefresh
	}

	return tokens, nil
}

func (f *FakeAdapter) FetchProfile(_ context.Context, _ string) (string, cloud.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.ProfileCalls++

	if f.ProfileErr != nil {
		return "", cloud.Profile{}, f.ProfileErr
	}

	return f.UserID, f.Profile, nil
}

func (f *FakeAdapter) Logout(_ context.Context, _ cloud.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.LogoutCalls++

	return nil
}

// SeedFile installs a file under the given parent and returns it.
func (f *FakeAdapter) SeedFile(name, parentID string, content []byte) cloud.File {
	f.mu.Lock()
	defer f.mu.Unlock()

	file := cloud.File{
		ID:       f.newID(),
		Name:     name,
		Size:     int64(len(content)),
		ParentID: parentID,
	}
	f.files[file.ID] = file
	f.content[file.ID] = content

	return file
}

// SeedFolder installs a folder under the given parent and returns it.
func (f *FakeAdapter) SeedFolder(name, parentID string) cloud.Folder {
	f.mu.Lock()
	defer f.mu.Unlock()

	folder := cloud.Folder{ID: f.newID(), Name: name, ParentID: parentID}
	f.folders[folder.ID] = folder

	return folder
}

// takeOpErr returns the scripted operation error, clearing it when
// OpErrOnce is set. Caller holds mu.
func (f *FakeAdapter) takeOpErr() error {
	err := f.OpErr
	if err != nil && f.OpErrOnce {
		f.OpErr = nil
		f.OpErrOnce = false
	}

	return err
}

func (f *FakeAdapter) newID() string {
	f.nextID++
	return fmt.Sprintf("id-%d", f.nextID)
}

func (f *FakeAdapter) ListChildren(_ context.Context, _ cloud.Account, folder cloud.Folder) ([]cloud.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.ListCalls++

	if err := f.takeOpErr(); err != nil {
		return nil, err
	}

	if _, ok := f.folders[folder.ID]; !ok {
		return nil, cloud.ErrNotFound
	}

	var out []cloud.Entry

	for _, fo := range f.folders {
		if fo.ParentID == folder.ID {
			out = append(out, cloud.FolderEntry(fo))
		}
	}

	for _, fi := range f.files {
		if fi.ParentID == folder.ID {
			out = append(out, cloud.FileEntry(fi))
		}
	}

	return out, nil
}

func (f *FakeAdapter) UploadFile(_ context.Context, _ cloud.Account, content io.Reader, name string, dest cloud.Folder) (cloud.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.takeOpErr(); err != nil {
		return cloud.File{}, err
	}

	for _, fi := range f.files {
		if fi.ParentID == dest.ID && cloud.SameName(fi.Name, name) {
			return cloud.File{}, cloud.ErrNameConflict
		}
	}

	data, err := io.ReadAll(content)
	if err != nil {
		return cloud.File{}, cloud.ErrTransport
	}

	file := cloud.File{ID: f.newID(), Name: name, Size: int64(len(data)), ParentID: dest.ID}
	f.files[file.ID] = file
	f.content[file.ID] = data

	return file, nil
}

func (f *FakeAdapter) DownloadFile(_ context.Context, _ cloud.Account, file cloud.File, w io.Writer) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.takeOpErr(); err != nil {
		return err
	}

	data, ok := f.content[file.ID]
	if !ok {
		return cloud.ErrNotFound
	}

	_, err := w.Write(data)

	return err
}

func (f *FakeAdapter) UpdateFile(_ context.Context, _ cloud.Account, file cloud.File, content io.Reader) (cloud.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.takeOpErr(); err != nil {
		return cloud.File{}, err
	}

	existing, ok := f.files[file.ID]
	if !ok {
		return cloud.File{}, cloud.ErrNotFound
	}

	data, err := io.ReadAll(content)
	if err != nil {
		return cloud.File{}, cloud.ErrTransport
	}

	existing.Size = int64(len(data))
	f.files[file.ID] = existing
	f.content[file.ID] = data

	return existing, nil
}

func (f *FakeAdapter) DeleteFile(_ context.Context, _ cloud.Account, file cloud.File) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.takeOpErr(); err != nil {
		return err
	}

	if _, ok := f.files[file.ID]; !ok {
		return cloud.ErrNotFound
	}

	delete(f.files, file.ID)
	delete(f.content, file.ID)

	return nil
}

func (f *FakeAdapter) DeleteFolder(_ context.Context, _ cloud.Account, folder cloud.Folder) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.takeOpErr(); err != nil {
		return err
	}

	if _, ok := f.folders[folder.ID]; !ok {
		return cloud.ErrNotFound
	}

	delete(f.folders, folder.ID)

	return nil
}

func (f *FakeAdapter) RenameFile(_ context.Context, _ cloud.Account, file cloud.File, newName string) (cloud.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.takeOpErr(); err != nil {
		return cloud.File{}, err
	}

	existing, ok := f.files[file.ID]
	if !ok {
		return cloud.File{}, cloud.ErrNotFound
	}

	for _, fi := range f.files {
		if fi.ID != file.ID && fi.ParentID == existing.ParentID && cloud.SameName(fi.Name, newName) {
			return cloud.File{}, cloud.ErrNameConflict
		}
	}

	existing.Name = newName
	f.files[file.ID] = existing

	return existing, nil
}

func (f *FakeAdapter) RenameFolder(_ context.Context, _ cloud.Account, folder cloud.Folder, newName string) (cloud.Folder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.takeOpErr(); err != nil {
		return cloud.Folder{}, err
	}

	existing, ok := f.folders[folder.ID]
	if !ok {
		return cloud.Folder{}, cloud.ErrNotFound
	}

	existing.Name = newName
	f.folders[folder.ID] = existing

	return existing, nil
}

func (f *FakeAdapter) MoveFile(_ context.Context, _ cloud.Account, file cloud.File, target cloud.Folder) (cloud.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.takeOpErr(); err != nil {
		return cloud.File{}, err
	}

	existing, ok := f.files[file.ID]
	if !ok {
		return cloud.File{}, cloud.ErrNotFound
	}

	if _, ok := f.folders[target.ID]; !ok {
		return cloud.File{}, cloud.ErrNotFound
	}

	existing.ParentID = target.ID
	f.files[file.ID] = existing

	return existing, nil
}

func (f *FakeAdapter) CreateFolder(_ context.Context, _ cloud.Account, name string, parent cloud.Folder) (cloud.Folder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.takeOpErr(); err != nil {
		return cloud.Folder{}, err
	}

	for _, fo := range f.folders {
		if fo.ParentID == parent.ID && cloud.SameName(fo.Name, name) {
			return cloud.Folder{}, cloud.ErrNameConflict
		}
	}

	folder := cloud.Folder{ID: f.newID(), Name: name, ParentID: parent.ID}
	f.folders[folder.ID] = folder

	return folder, nil
}

// interface guard
var _ cloud.Adapter = (*FakeAdapter)(nil)
