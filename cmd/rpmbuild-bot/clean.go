package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// createCleanCommand creates the clean subcommand
func createCleanCommand() *cobra.Command {
	cleanCmd := &cobra.Command{
		Use:   "clean [flags] NAME...",
		Short: "Discard a pending build",
		Long: `Delete the artifacts and logs of the pending build of a package so
it can be built again. The artifacts must be unchanged since the build.`,
		Args: cobra.MinimumNArgs(1),
		RunE: executeClean,
	}

	return cleanCmd
}

// executeClean handles the clean command execution logic
func executeClean(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	for _, ref := range packageRefs(args) {
		m, err := newManager(cfg, ref, false)
		if err != nil {
			return err
		}
		removed, err := m.Clean()
		if err != nil {
			return fmt.Errorf("clean of %s failed: %w", m.Pkg.Name, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Cleaned %s (%d files removed)\n", m.Pkg.Name, len(removed))
	}
	return nil
}
