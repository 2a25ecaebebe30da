package cloud

import (
	"errors"
	"fmt"
)

// Sentinel errors forming the failure taxonomy shared by every
// component. Use errors.Is(err, cloud.ErrNotFound) to check.
var (
	// Registration and lookup failures — caller misuse, never retried.
	ErrUnknownProvider       = errors.New("cloud: unknown provider")
	ErrIncompleteCredentials = errors.New("cloud: incomplete provider credentials")
	ErrAccountNotFound       = errors.New("cloud: account not found")
	ErrDuplicateAccount      = errors.New("cloud: account already exists")

	// Auth failures — surfaced to the caller; ErrRefresh additionally
	// demotes the account to expired.
	ErrTokenExchange = errors.New("cloud: token exchange failed")
	ErrProfileFetch  = errors.New("cloud: profile fetch failed")
	ErrRefresh       = errors.New("cloud: token refresh rejected")
	ErrAuthDenied    = errors.New("cloud: authorization denied")
	ErrStateMismatch = errors.New("cloud: authorization state mismatch")

	// Operation failures reported by the backend — surfaced verbatim,
	// not retried automatically.
	ErrNotFound      = errors.New("cloud: not found")
	ErrNameConflict  = errors.New("cloud: name conflict")
	ErrQuotaExceeded = errors.New("cloud: quota exceeded")

	// ErrUnauthorized marks a rejected access token. The session layer
	// converts it into exactly one refresh attempt; callers see it only
	// when the retry after refresh fails too.
	ErrUnauthorized = errors.New("cloud: unauthorized")

	// ErrTransport covers network faults and timeouts alike — callers
	// treat both identically (retry or surface), so there is no
	// distinct timeout kind.
	ErrTransport = errors.New("cloud: transport failure")

	// ErrStaleUpdate means a token commit lost a first-writer-wins
	// race; the losing token set is discarded, not an account fault.
	ErrStaleUpdate = errors.New("cloud: stale token update discarded")
)

// OpError wraps a taxonomy sentinel with the provider id, account id,
// and attempted operation so the presentation layer can render a
// message without inspecting backend detail.
type OpError struct {
	Provider string
	Account  string
	Op       string
	Err      error // sentinel or wrapped cause, for errors.Is()
}

func (e *OpError) Error() string {
	if e.Account != "" {
		return fmt.Sprintf("cloud: %s on %s/%s: %v", e.Op, e.Provider, e.Account, e.Err)
	}

	return fmt.Sprintf("cloud: %s on %s: %v", e.Op, e.Provider, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// WrapOp annotates err with operation context. Returns nil when err is
// nil so call sites can wrap unconditionally.
func WrapOp(provider, account, op string, err error) error {
	if err == nil {
		return nil
	}

	return &OpError{Provider: provider, Account: account, Op: op, Err: err}
}
