package main

import (
	"fmt"
	"os/exec"
	"runtime"

	"github.com/spf13/cobra"
)

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login <provider>",
		Short: "Sign in to a provider through the browser",
		Long: `Sign in to a cloud storage provider. A browser window opens with the
provider's consent page; the local callback listener captures the
authorization code and the account is saved. Run 'skymux providers'
for the list of configured providers.`,
		Args: cobra.ExactArgs(1),
		RunE: runLogin,
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out the selected account",
		Long: `Sign out the account given by --account. Remote token revocation is
attempted where the backend supports it; the account record is kept
and marked expired so a later login restores it.`,
		Args: cobra.NoArgs,
		RunE: runLogout,
	}
}

func runLogin(cmd *cobra.Command, args []string) error {
	providerID := args[0]

	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	account, err := a.flow.SignInInteractive(cmd.Context(), providerID, openBrowser)
	if err != nil {
		return err
	}

	statusf("Signed in to %s as %s (%s).\n", providerID, account.Profile.Name, account.ID)

	return nil
}

func runLogout(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	sess, err := a.session(cmd.Context())
	if err != nil {
		return err
	}

	if err := sess.Logout(cmd.Context()); err != nil {
		return err
	}

	statusf("Signed out %s.\n", flagAccount)

	return nil
}

// openBrowser launches the platform browser for the authorization URL.
// Failures are tolerated upstream: the URL is printed as a fallback.
func openBrowser(url string) error {
	var c *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		c = exec.Command("open", url)
	case "windows":
		c = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		c = exec.Command("xdg-open", url)
	}

	if err := c.Start(); err != nil {
		return fmt.Errorf("launching browser: %w", err)
	}

	// Detach; the browser outlives the command.
	go func() { _ = c.Wait() }()

	return nil
}
