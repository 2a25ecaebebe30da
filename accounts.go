package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/skymux/skymux-go/internal/cloud"
)

func newAccountsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "List signed-in accounts",
		Args:  cobra.NoArgs,
		RunE:  runAccounts,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <account-id>",
		Short: "Forget an account and its tokens",
		Args:  cobra.ExactArgs(1),
		RunE:  runAccountsRemove,
	})

	return cmd
}

// accountOutput is the JSON schema for `accounts --json`.
type accountOutput struct {
	ID       string `json:"id"`
	Provider string `json:"provider"`
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
	Status   string `json:"status"`
	Expiry   string `json:"expiry,omitempty"`
}

func runAccounts(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	accounts, err := a.accounts.List(cmd.Context())
	if err != nil {
		return err
	}

	if flagJSON {
		out := make([]accountOutput, 0, len(accounts))
		for _, acct := range accounts {
			out = append(out, toAccountOutput(acct))
		}

		return json.NewEncoder(os.Stdout).Encode(out)
	}

	if len(accounts) == 0 {
		statusf("No accounts. Run 'skymux login <provider>' to add one.\n")

		return nil
	}

	rows := make([][]string, 0, len(accounts))
	for _, acct := range accounts {
		rows = append(rows, []string{
			acct.ID,
			acct.ProviderID,
			acct.Profile.Name,
			string(acct.Status),
			formatExpiry(acct.Expiry),
		})
	}

	printTable(os.Stdout, []string{"ACCOUNT", "PROVIDER", "NAME", "STATUS", "EXPIRES"}, rows)

	return nil
}

func toAccountOutput(acct cloud.Account) accountOutput {
	out := accountOutput{
		ID:       acct.ID,
		Provider: acct.ProviderID,
		Name:     acct.Profile.Name,
		Email:    acct.Profile.Email,
		Status:   string(acct.Status),
	}
	if !acct.Expiry.IsZero() {
		out.Expiry = acct.Expiry.UTC().Format(time.RFC3339)
	}

	return out
}

func formatExpiry(t time.Time) string {
	if t.IsZero() {
		return "-"
	}

	return formatTime(t)
}

func runAccountsRemove(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.accounts.Remove(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("removing account: %w", err)
	}

	statusf("Removed %s.\n", args[0])

	return nil
}
