package main

import (
	"encoding/json"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/skymux/skymux-go/internal/adapters"
)

func newProvidersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List providers and whether they are enabled",
		Long: `List the compiled-in providers. A provider is enabled when its config
section (or environment variables) supply a complete credential set;
otherwise it is listed as available but disabled.`,
		Args: cobra.NoArgs,
		RunE: runProviders,
	}
}

// providerOutput is the JSON schema for `providers --json`.
type providerOutput struct {
	ID      string `json:"id"`
	Enabled bool   `json:"enabled"`
}

func runProviders(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	enabled := make(map[string]bool)
	for _, id := range a.registry.Enabled() {
		enabled[id] = true
	}

	// Enabled ones first in registration order, then the rest sorted.
	ordered := a.registry.Enabled()

	var disabled []string

	for id := range adapters.Builtin() {
		if !enabled[id] {
			disabled = append(disabled, id)
		}
	}

	sort.Strings(disabled)

	ordered = append(ordered, disabled...)

	if flagJSON {
		out := make([]providerOutput, 0, len(ordered))
		for _, id := range ordered {
			out = append(out, providerOutput{ID: id, Enabled: enabled[id]})
		}

		return json.NewEncoder(os.Stdout).Encode(out)
	}

	rows := make([][]string, 0, len(ordered))

	for _, id := range ordered {
		state := "disabled (no credentials)"
		if enabled[id] {
			state = "enabled"
		}

		rows = append(rows, []string{id, state})
	}

	printTable(os.Stdout, []string{"PROVIDER", "STATE"}, rows)

	return nil
}
