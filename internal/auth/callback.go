package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/skymux/skymux-go/internal/cloud"
)

// shutdownTimeout is how long to wait for the callback server to drain.
const shutdownTimeout = 5 * time.Second

// callbackResult carries the redirect parameters from the handler.
type callbackResult struct {
	state string
	code  string
	err   string // backend error parameter, empty on success
}

// SignInInteractive runs the whole browser-based sign-in for one
// provider:
//  1. Binds an HTTP listener on the host/port of the provider's
//     registered redirect URI
//  2. Issues the authorization URL and opens the browser
//  3. Receives the redirect, verifies the anti-forgery state
//  4. Exchanges the code, fetches the profile, persists the account
//
// openURL is called with the authorization URL; the CLI uses it to
// launch the default browser. If openURL fails, the URL is printed to
// stderr so the user can open it manually.
func (f *Flow) SignInInteractive(ctx context.Context, providerID string, openURL func(string) error) (cloud.Account, error) {
	reg, err := f.registry.Resolve(providerID)
	if err != nil {
		return cloud.Account{}, err
	}

	redirect, err := url.Parse(reg.Credentials.RedirectURI)
	if err != nil {
		return cloud.Account{}, fmt.Errorf("auth: parsing redirect URI for %s: %w", providerID, err)
	}

	resultCh := make(chan callbackResult, 1)
	mux := http.NewServeMux()
	registerCallbackHandler(mux, redirect.Path, resultCh)

	srv, err := startCallbackServer(ctx, redirect.Host, mux, f.logger)
	if err != nil {
		return cloud.Account{}, err
	}

	defer shutdownCallbackServer(srv, f.logger)

	authURL, state, err := f.BeginAuthorization(ctx, providerID)
	if err != nil {
		return cloud.Account{}, err
	}

	launchBrowser(authURL, openURL, f.logger)

	result, err := waitForCallback(ctx, resultCh)
	if err != nil {
		return cloud.Account{}, err
	}

	if result.state != state {
		return cloud.Account{}, fmt.Errorf("auth: callback state mismatch (possible CSRF): %w", cloud.ErrStateMismatch)
	}

	if _, err := f.HandleCallback(result.state, result.code, result.err); err != nil {
		return cloud.Account{}, err
	}

	return f.SignIn(ctx, providerID, result.code)
}

// startCallbackServer binds the listener and starts serving. Serve
// errors other than a clean shutdown are logged, not propagated — by
// then the caller is already waiting on the callback channel or gone.
func startCallbackServer(ctx context.Context, addr string, mux *http.ServeMux, logger *slog.Logger) (*http.Server, error) {
	lc := net.ListenConfig{}

	listener, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("auth: binding callback listener on %s: %w", addr, err)
	}

	logger.Info("callback server listening", slog.String("addr", listener.Addr().String()))

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: shutdownTimeout,
	}

	go func() {
		if serveErr := srv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			logger.Warn("callback server error", slog.String("error", serveErr.Error()))
		}
	}()

	return srv, nil
}

// registerCallbackHandler adds the redirect route to the mux. The raw
// parameters are forwarded; state verification happens in the flow.
func registerCallbackHandler(mux *http.ServeMux, path string, resultCh chan<- callbackResult) {
	if path == "" {
		path = "/"
	}

	mux.HandleFunc("GET "+path, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		result := callbackResult{
			state: q.Get("state"),
			code:  q.Get("code"),
			err:   q.Get("error"),
		}

		if result.err != "" {
			http.Error(w, "Authorization failed: "+result.err, http.StatusBadRequest)
		} else {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			fmt.Fprint(w, "<html><body><h1>Sign-in complete</h1>"+
				"<p>You can close this window and return to the application.</p></body></html>")
		}

		select {
		case resultCh <- result:
		default:
			// A second hit on the callback is a replay; drop it.
		}
	})
}

// shutdownCallbackServer gracefully shuts down the callback server.
func shutdownCallbackServer(srv *http.Server, logger *slog.Logger) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("callback server shutdown error", slog.String("error", err.Error()))
	}
}

// launchBrowser attempts to open the auth URL. If it fails, prints the
// URL to stderr as a fallback so the user can copy-paste it.
func launchBrowser(authURL string, openURL func(string) error, logger *slog.Logger) {
	logger.Info("opening browser for authorization")

	if openErr := openURL(authURL); openErr != nil {
		logger.Warn("failed to open browser, printing URL",
			slog.String("error", openErr.Error()),
		)

		fmt.Fprintf(os.Stderr, "Open this URL in your browser:\n%s\n", authURL)
	}
}

// waitForCallback blocks until the redirect fires or ctx is canceled.
func waitForCallback(ctx context.Context, resultCh <-chan callbackResult) (callbackResult, error) {
	select {
	case result := <-resultCh:
		return result, nil
	case <-ctx.Done():
		return callbackResult{}, fmt.Errorf("auth: sign-in canceled: %w", ctx.Err())
	}
}
