package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skymux/skymux-go/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the skymux configuration file",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a commented starter config file",
		Args:  cobra.NoArgs,
		RunE:  runConfigInit,
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the config file path in effect",
		Args:  cobra.NoArgs,
		Run:   runConfigPath,
	})

	return cmd
}

func runConfigInit(_ *cobra.Command, _ []string) error {
	path := flagConfigPath
	if path == "" {
		path = config.DefaultConfigPath()
	}

	if err := config.Init(path); err != nil {
		return err
	}

	statusf("Wrote %s.\n", path)

	return nil
}

func runConfigPath(_ *cobra.Command, _ []string) {
	path := flagConfigPath
	if path == "" {
		path = config.DefaultConfigPath()
	}

	fmt.Println(path)
}
