// Package store implements the authoritative local record of known
// accounts, backed by an embedded SQLite database in WAL mode. All
// other components read account data by value; only the store mutates
// the backing database.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver, registers as "sqlite".

	"github.com/skymux/skymux-go/internal/cloud"
)

// walJournalSizeLimit caps the WAL journal at 64 MiB.
const walJournalSizeLimit = 67108864

// ErrAmbiguousAccount is returned by Get when the bare account id
// matches records under more than one provider. Callers disambiguate
// with GetByProvider.
var ErrAmbiguousAccount = errors.New("store: account id matches multiple providers")

// Store is the SQLite-backed account store. Mutations are serialized
// per account id; reads may run concurrently with writes to other ids.
type Store struct {
	db     *sql.DB
	logger *slog.Logger

	// Per-id mutation locks, created lazily.
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	listenersMu sync.RWMutex
	listeners   []Listener

	stmts accountStatements
}

type accountStatements struct {
	insert, getByID, getByProvider, countByKey, list, listByProvider,
	updateTokens, markExpired, remove *sql.Stmt
}

// Listener receives account lifecycle notifications. Delivery is
// synchronous, at-most-once, and not replayed.
type Listener interface {
	AccountAdded(cloud.Account)
	AccountRemoved(cloud.Account)
}

// Open opens (or creates) the account database at dbPath, applies
// migrations, and prepares statements. Use ":memory:" for tests.
func Open(ctx context.Context, dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("opening account database", slog.String("path", dbPath))

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}

	if err := setPragmas(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{
		db:     db,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}

	if err := s.prepareStatements(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: prepare statements: %w", err)
	}

	logger.Info("account database ready", slog.String("path", dbPath))

	return s, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// setPragmas configures SQLite for WAL mode and safety.
func setPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
		"PRAGMA foreign_keys = ON",
		fmt.Sprintf("PRAGMA journal_size_limit = %d", walJournalSizeLimit),
	}

	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("store: set pragma %q: %w", p, err)
		}
	}

	return nil
}

const accountColumns = `id, provider_id, access_token, refresh_token, expiry,
	profile_name, profile_email, profile_avatar_url, status, version`

func (s *Store) prepareStatements(ctx context.Context) error {
	prepare := func(dst **sql.Stmt, query string) error {
		if *dst != nil {
			return nil
		}

		stmt, err := s.db.PrepareContext(ctx, query)
		if err != nil {
			return fmt.Errorf("preparing %q: %w", query, err)
		}

		*dst = stmt

		return nil
	}

	specs := []struct {
		dst   **sql.Stmt
		query string
	}{
		{&s.stmts.insert, `INSERT INTO accounts (` + accountColumns + `, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`},
		{&s.stmts.getByID, `SELECT ` + accountColumns + ` FROM accounts WHERE id = ? LIMIT 2`},
		{&s.stmts.getByProvider, `SELECT ` + accountColumns + ` FROM accounts WHERE provider_id = ? AND id = ?`},
		{&s.stmts.countByKey, `SELECT COUNT(*) FROM accounts WHERE provider_id = ? AND id = ?`},
		{&s.stmts.list, `SELECT ` + accountColumns + ` FROM accounts ORDER BY provider_id, id`},
		{&s.stmts.listByProvider, `SELECT ` + accountColumns + ` FROM accounts WHERE provider_id = ? ORDER BY id`},
		{&s.stmts.updateTokens, `UPDATE accounts
			SET access_token = ?, refresh_token = ?, expiry = ?, status = ?, version = version + 1, updated_at = ?
			WHERE provider_id = ? AND id = ? AND version = ?`},
		{&s.stmts.markExpired, `UPDATE accounts
			SET status = ?, version = version + 1, updated_at = ? WHERE provider_id = ? AND id = ?`},
		{&s.stmts.remove, `DELETE FROM accounts WHERE provider_id = ? AND id = ?`},
	}

	for _, sp := range specs {
		if err := prepare(sp.dst, sp.query); err != nil {
			return err
		}
	}

	return nil
}

// idLock returns the mutation lock for one account id.
func (s *Store) idLock(id string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	mu, ok := s.locks[id]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[id] = mu
	}

	return mu
}

// Subscribe registers a lifecycle listener.
func (s *Store) Subscribe(l Listener) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()

	s.listeners = append(s.listeners, l)
}

func (s *Store) notifyAdded(a cloud.Account) {
	s.listenersMu.RLock()
	defer s.listenersMu.RUnlock()

	for _, l := range s.listeners {
		l.AccountAdded(a)
	}
}

func (s *Store) notifyRemoved(a cloud.Account) {
	s.listenersMu.RLock()
	defer s.listenersMu.RUnlock()

	for _, l := range s.listeners {
		l.AccountRemoved(a)
	}
}

// Create persists a new account from a completed authorization
// exchange. Fails with ErrDuplicateAccount when an account with the
// same id and provider already exists — overwrite is rejected so a
// re-login cannot silently discard a live refresh token; callers must
// Remove first.
func (s *Store) Create(ctx context.Context, id, providerID string, tokens cloud.TokenSet, profile cloud.Profile) (cloud.Account, error) {
	mu := s.idLock(id)
	mu.Lock()
	defer mu.Unlock()

	if _, err := s.GetByProvider(ctx, providerID, id); err == nil {
		return cloud.Account{}, fmt.Errorf("store: create %s/%s: %w", providerID, id, cloud.ErrDuplicateAccount)
	} else if !errors.Is(err, cloud.ErrAccountNotFound) {
		return cloud.Account{}, err
	}

	now := time.Now()
	account := cloud.Account{
		ID:           id,
		ProviderID:   providerID,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		Expiry:       tokens.Expiry,
		Profile:      profile,
		Status:       cloud.StatusActive,
		Version:      1,
	}

	_, err := s.stmts.insert.ExecContext(ctx,
		account.ID, account.ProviderID, account.AccessToken, account.RefreshToken,
		expiryToUnix(account.Expiry),
		profile.Name, profile.Email, profile.AvatarURL,
		string(account.Status), account.Version,
		now.Unix(), now.Unix(),
	)
	if err != nil {
		return cloud.Account{}, fmt.Errorf("store: create %s/%s: %w", providerID, id, err)
	}

	s.logger.Info("account created",
		slog.String("provider", providerID),
		slog.String("account", id),
	)

	s.notifyAdded(account)

	return account, nil
}

// Get returns the account with the given id. Fails with
// ErrAccountNotFound when absent and ErrAmbiguousAccount when the id
// exists under more than one provider.
func (s *Store) Get(ctx context.Context, id string) (cloud.Account, error) {
	rows, err := s.stmts.getByID.QueryContext(ctx, id)
	if err != nil {
		return cloud.Account{}, fmt.Errorf("store: get %s: %w", id, err)
	}
	defer rows.Close()

	var accounts []cloud.Account

	for rows.Next() {
		a, scanErr := scanAccount(rows)
		if scanErr != nil {
			return cloud.Account{}, scanErr
		}

		accounts = append(accounts, a)
	}

	if err := rows.Err(); err != nil {
		return cloud.Account{}, fmt.Errorf("store: get %s: %w", id, err)
	}

	switch len(accounts) {
	case 0:
		return cloud.Account{}, fmt.Errorf("store: get %s: %w", id, cloud.ErrAccountNotFound)
	case 1:
		return accounts[0], nil
	default:
		return cloud.Account{}, fmt.Errorf("store: get %s: %w", id, ErrAmbiguousAccount)
	}
}

// GetByProvider returns the account under the exact (provider, id) key.
func (s *Store) GetByProvider(ctx context.Context, providerID, id string) (cloud.Account, error) {
	row := s.stmts.getByProvider.QueryRowContext(ctx, providerID, id)

	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return cloud.Account{}, fmt.Errorf("store: get %s/%s: %w", providerID, id, cloud.ErrAccountNotFound)
	}

	if err != nil {
		return cloud.Account{}, err
	}

	return a, nil
}

// List returns all accounts, ordered by provider then id.
func (s *Store) List(ctx context.Context) ([]cloud.Account, error) {
	return s.queryAccounts(ctx, s.stmts.list)
}

// ListByProvider returns all accounts for one provider.
func (s *Store) ListByProvider(ctx context.Context, providerID string) ([]cloud.Account, error) {
	return s.queryAccounts(ctx, s.stmts.listByProvider, providerID)
}

func (s *Store) queryAccounts(ctx context.Context, stmt *sql.Stmt, args ...any) ([]cloud.Account, error) {
	rows, err := stmt.QueryContext(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("store: listing accounts: %w", err)
	}
	defer rows.Close()

	var out []cloud.Account

	for rows.Next() {
		a, scanErr := scanAccount(rows)
		if scanErr != nil {
			return nil, scanErr
		}

		out = append(out, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: listing accounts: %w", err)
	}

	return out, nil
}

// UpdateTokens commits a refresh or exchange outcome for the account
// under the exact (provider, id) key. The update is restricted to the
// token fields and resets status to active. It only applies when
// prevVersion is still the current version: overlapping refreshes
// resolve first-writer-wins, and the loser gets ErrStaleUpdate so its
// token set is discarded instead of clobbering newer data. Fails with
// ErrAccountNotFound when the record is gone.
func (s *Store) UpdateTokens(ctx context.Context, providerID, id string, tokens cloud.TokenSet, prevVersion int64) (cloud.Account, error) {
	mu := s.idLock(id)
	mu.Lock()
	defer mu.Unlock()

	res, err := s.stmts.updateTokens.ExecContext(ctx,
		tokens.AccessToken, tokens.RefreshToken, expiryToUnix(tokens.Expiry),
		string(cloud.StatusActive), time.Now().Unix(),
		providerID, id, prevVersion,
	)
	if err != nil {
		return cloud.Account{}, fmt.Errorf("store: update tokens for %s/%s: %w", providerID, id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return cloud.Account{}, fmt.Errorf("store: update tokens for %s/%s: %w", providerID, id, err)
	}

	if n == 0 {
		// Distinguish a stale version from a removed account.
		var count int
		if err := s.stmts.countByKey.QueryRowContext(ctx, providerID, id).Scan(&count); err != nil {
			return cloud.Account{}, fmt.Errorf("store: update tokens for %s/%s: %w", providerID, id, err)
		}

		if count == 0 {
			return cloud.Account{}, fmt.Errorf("store: update tokens for %s/%s: %w", providerID, id, cloud.ErrAccountNotFound)
		}

		s.logger.Info("discarding stale token update",
			slog.String("provider", providerID),
			slog.String("account", id),
			slog.Int64("stale_version", prevVersion),
		)

		return cloud.Account{}, fmt.Errorf("store: update tokens for %s/%s: %w", providerID, id, cloud.ErrStaleUpdate)
	}

	a, err := s.GetByProvider(ctx, providerID, id)
	if err != nil {
		return cloud.Account{}, err
	}

	s.logger.Info("account tokens updated",
		slog.String("provider", providerID),
		slog.String("account", id),
		slog.Time("expiry", a.Expiry),
		slog.Int64("version", a.Version),
	)

	return a, nil
}

// MarkExpired demotes the account under the exact (provider, id) key
// after a rejected refresh. The record is preserved so the user can
// re-authenticate; file operations refuse it until then. The same id
// under another provider is untouched.
func (s *Store) MarkExpired(ctx context.Context, providerID, id string) error {
	mu := s.idLock(id)
	mu.Lock()
	defer mu.Unlock()

	res, err := s.stmts.markExpired.ExecContext(ctx, string(cloud.StatusExpired), time.Now().Unix(), providerID, id)
	if err != nil {
		return fmt.Errorf("store: marking %s/%s expired: %w", providerID, id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: marking %s/%s expired: %w", providerID, id, err)
	}

	if n == 0 {
		return fmt.Errorf("store: marking %s/%s expired: %w", providerID, id, cloud.ErrAccountNotFound)
	}

	s.logger.Warn("account marked expired, re-authentication required",
		slog.String("provider", providerID),
		slog.String("account", id),
	)

	return nil
}

// Remove deletes the persisted record and notifies listeners after the
// deletion succeeds. Removing an absent account is a no-op, not an
// error, so retries are idempotent. An id present under more than one
// provider fails with ErrAmbiguousAccount before anything is deleted.
// Remote backend state is untouched.
func (s *Store) Remove(ctx context.Context, id string) error {
	mu := s.idLock(id)
	mu.Lock()
	defer mu.Unlock()

	account, err := s.Get(ctx, id)
	if errors.Is(err, cloud.ErrAccountNotFound) {
		s.logger.Info("remove: account already absent", slog.String("account", id))
		return nil
	}

	if err != nil {
		return err
	}

	if _, err := s.stmts.remove.ExecContext(ctx, account.ProviderID, id); err != nil {
		return fmt.Errorf("store: remove %s: %w", id, err)
	}

	s.logger.Info("account removed",
		slog.String("provider", account.ProviderID),
		slog.String("account", id),
	)

	s.notifyRemoved(account)

	return nil
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (cloud.Account, error) {
	var (
		a      cloud.Account
		expiry int64
		status string
	)

	err := row.Scan(
		&a.ID, &a.ProviderID, &a.AccessToken, &a.RefreshToken, &expiry,
		&a.Profile.Name, &a.Profile.Email, &a.Profile.AvatarURL,
		&status, &a.Version,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return cloud.Account{}, err
	}

	if err != nil {
		return cloud.Account{}, fmt.Errorf("store: scanning account row: %w", err)
	}

	a.Expiry = unixToExpiry(expiry)
	a.Status = cloud.AccountStatus(status)

	return a, nil
}

// expiryToUnix maps the zero time to 0 (no expiry).
func expiryToUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}

	return t.Unix()
}

func unixToExpiry(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}

	return time.Unix(sec, 0).UTC()
}
