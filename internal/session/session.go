// Package session is the dispatch layer: it resolves, at account-load
// time, which adapter serves an account, and exposes the unified
// file/folder contract asynchronously through the task pool. The
// session also owns the single transparent-refresh recovery step every
// network operation is entitled to.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/skymux/skymux-go/internal/auth"
	"github.com/skymux/skymux-go/internal/cloud"
	"github.com/skymux/skymux-go/internal/provider"
	"github.com/skymux/skymux-go/internal/store"
	"github.com/skymux/skymux-go/internal/task"
)

// Manager constructs sessions for stored accounts. One Manager (and
// one pool) serves the whole process; sessions are cheap per-account
// views over it.
type Manager struct {
	registry *provider.Registry
	accounts *store.Store
	flow     *auth.Flow
	pool     *task.Pool
	logger   *slog.Logger
}

// NewManager wires the dispatch layer over its collaborators.
func NewManager(registry *provider.Registry, accounts *store.Store, flow *auth.Flow, pool *task.Pool, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		registry: registry,
		accounts: accounts,
		flow:     flow,
		pool:     pool,
		logger:   logger,
	}
}

// Open loads the account and resolves its adapter through the
// registry. No backend-specific branching happens here or anywhere
// above: the provider id on the record selects the strategy.
func (m *Manager) Open(ctx context.Context, accountID string) (*Session, error) {
	account, err := m.accounts.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}

	adapter, err := m.registry.Adapter(account.ProviderID)
	if err != nil {
		return nil, err
	}

	return &Session{
		manager: m,
		adapter: adapter,
		account: account,
		logger: m.logger.With(
			slog.String("provider", account.ProviderID),
			slog.String("account", account.ID),
		),
	}, nil
}

// Session binds one account to its adapter. Operations on the same
// session are not serialized: overlapping calls may complete in any
// order, and callers needing ordering sequence their own calls.
// Operations on different sessions run fully in parallel.
type Session struct {
	manager *Manager
	adapter cloud.Adapter
	logger  *slog.Logger

	mu      sync.Mutex
	account cloud.Account
}

// snapshot returns the current account state by value.
func (s *Session) snapshot() cloud.Account {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.account
}

func (s *Session) setAccount(a cloud.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.account = a
}

// Account returns the session's account snapshot.
func (s *Session) Account() cloud.Account {
	return s.snapshot()
}

// withAuth runs op with a usable token, performing at most one
// transparent refresh: eagerly when the local token is known-expired,
// or reactively when the backend rejects it. A failure after the
// refresh is surfaced verbatim — nothing is retried twice.
func (s *Session) withAuth(ctx context.Context, opName string, op func(context.Context, cloud.Account) error) error {
	account := s.snapshot()

	if account.Status == cloud.StatusExpired {
		return cloud.WrapOp(account.ProviderID, account.ID, opName,
			fmt.Errorf("account requires re-authentication: %w", cloud.ErrRefresh))
	}

	refreshed := false

	if account.Expired(time.Now()) {
		next, err := s.manager.flow.Refresh(ctx, account)
		if err != nil {
			return err
		}

		s.setAccount(next)
		account = next
		refreshed = true
	}

	err := op(ctx, account)
	if err == nil {
		return nil
	}

	if errors.Is(err, cloud.ErrUnauthorized) && !refreshed {
		next, rerr := s.manager.flow.Refresh(ctx, account)
		if rerr != nil {
			return rerr
		}

		s.setAccount(next)

		if err = op(ctx, next); err == nil {
			return nil
		}
	}

	return cloud.WrapOp(account.ProviderID, account.ID, opName, err)
}

// run submits an authenticated operation returning a value.
func run[T any](s *Session, ctx context.Context, opName string, op func(context.Context, cloud.Account) (T, error)) *task.Handle[T] {
	return task.Submit(s.manager.pool, ctx, opName, func(ctx context.Context) (T, error) {
		var out T

		err := s.withAuth(ctx, opName, func(ctx context.Context, account cloud.Account) error {
			var opErr error
			out, opErr = op(ctx, account)
			return opErr
		})

		return out, err
	})
}

// ListChildren fetches the folder's children: one backend call, no
// caching.
func (s *Session) ListChildren(ctx context.Context, folder cloud.Folder) *task.Handle[[]cloud.Entry] {
	return run(s, ctx, "list children", func(ctx context.Context, a cloud.Account) ([]cloud.Entry, error) {
		return s.adapter.ListChildren(ctx, a, folder)
	})
}

// Upload stores content as a new file in dest.
func (s *Session) Upload(ctx context.Context, content io.Reader, name string, dest cloud.Folder) *task.Handle[cloud.File] {
	return run(s, ctx, "upload file", func(ctx context.Context, a cloud.Account) (cloud.File, error) {
		return s.adapter.UploadFile(ctx, a, content, name, dest)
	})
}

// Download streams the remote file into w.
func (s *Session) Download(ctx context.Context, file cloud.File, w io.Writer) *task.Handle[struct{}] {
	return run(s, ctx, "download file", func(ctx context.Context, a cloud.Account) (struct{}, error) {
		return struct{}{}, s.adapter.DownloadFile(ctx, a, file, w)
	})
}

// Update replaces the remote file's content.
func (s *Session) Update(ctx context.Context, file cloud.File, content io.Reader) *task.Handle[cloud.File] {
	return run(s, ctx, "update file", func(ctx context.Context, a cloud.Account) (cloud.File, error) {
		return s.adapter.UpdateFile(ctx, a, file, content)
	})
}

// DeleteFile removes the remote file. ErrNotFound on an already
// deleted entity is success-equivalent for callers.
func (s *Session) DeleteFile(ctx context.Context, file cloud.File) *task.Handle[struct{}] {
	return run(s, ctx, "delete file", func(ctx context.Context, a cloud.Account) (struct{}, error) {
		return struct{}{}, s.adapter.DeleteFile(ctx, a, file)
	})
}

// DeleteFolder removes the remote folder.
func (s *Session) DeleteFolder(ctx context.Context, folder cloud.Folder) *task.Handle[struct{}] {
	return run(s, ctx, "delete folder", func(ctx context.Context, a cloud.Account) (struct{}, error) {
		return struct{}{}, s.adapter.DeleteFolder(ctx, a, folder)
	})
}

// RenameFile renames the file in place.
func (s *Session) RenameFile(ctx context.Context, file cloud.File, newName string) *task.Handle[cloud.File] {
	return run(s, ctx, "rename file", func(ctx context.Context, a cloud.Account) (cloud.File, error) {
		return s.adapter.RenameFile(ctx, a, file, newName)
	})
}

// RenameFolder renames the folder in place.
func (s *Session) RenameFolder(ctx context.Context, folder cloud.Folder, newName string) *task.Handle[cloud.Folder] {
	return run(s, ctx, "rename folder", func(ctx context.Context, a cloud.Account) (cloud.Folder, error) {
		return s.adapter.RenameFolder(ctx, a, folder, newName)
	})
}

// Move relocates file under target. Source file and target folder are
// both explicit arguments — the two selection steps happen before the
// call, never inferred from shared state.
func (s *Session) Move(ctx context.Context, file cloud.File, target cloud.Folder) *task.Handle[cloud.File] {
	return run(s, ctx, "move file", func(ctx context.Context, a cloud.Account) (cloud.File, error) {
		return s.adapter.MoveFile(ctx, a, file, target)
	})
}

// CreateFolder creates a folder under parent.
func (s *Session) CreateFolder(ctx context.Context, name string, parent cloud.Folder) *task.Handle[cloud.Folder] {
	return run(s, ctx, "create folder", func(ctx context.Context, a cloud.Account) (cloud.Folder, error) {
		return s.adapter.CreateFolder(ctx, a, name, parent)
	})
}

// PrepareListener receives the readiness outcome of PrepareAPI.
type PrepareListener interface {
	AuthPrepareSucceeded()
	AuthPrepareFailed(error)
}

// PrepareAPI performs the pre-operation handshake asynchronously:
// it validates the cached token, refreshing once if expired, and
// signals the listener instead of blocking the caller. Delivery is
// at-most-once.
func (s *Session) PrepareAPI(ctx context.Context, listener PrepareListener) *task.Handle[struct{}] {
	return task.Submit(s.manager.pool, ctx, "prepare api", func(ctx context.Context) (struct{}, error) {
		err := s.withAuth(ctx, "prepare api", func(context.Context, cloud.Account) error {
			// Token validity is the handshake; a refreshable-but-
			// expired token was already renewed by withAuth.
			return nil
		})
		if err != nil {
			listener.AuthPrepareFailed(err)
			return struct{}{}, err
		}

		listener.AuthPrepareSucceeded()

		return struct{}{}, nil
	})
}

// Logout clears local token state for the account: the adapter drops
// or revokes what it can (remote invalidation is not guaranteed), and
// the stored record is demoted so file operations refuse it until the
// user signs in again. The record itself is preserved.
func (s *Session) Logout(ctx context.Context) error {
	account := s.snapshot()

	if err := s.adapter.Logout(ctx, account); err != nil {
		return cloud.WrapOp(account.ProviderID, account.ID, "logout", err)
	}

	if err := s.manager.accounts.MarkExpired(ctx, account.ProviderID, account.ID); err != nil {
		return err
	}

	account.Status = cloud.StatusExpired
	s.setAccount(account)

	s.logger.Info("logged out, local token state cleared")

	return nil
}
