package main

import (
	"fmt"

	"github.com/open-edge-platform/rpmbuild-bot/internal/lifecycle"
	"github.com/spf13/cobra"
)

// createListCommand creates the list subcommand
func createListCommand() *cobra.Command {
	listCmd := &cobra.Command{
		Use:   "list [PATTERN]",
		Short: "List recorded releases",
		Long: `List the uploaded releases and pending builds of all packages, or of
the packages whose name matches the glob PATTERN.

The most recent upload of each package is marked with "*", a pending build
with "(pending)".`,
		Args: cobra.MaximumNArgs(1),
		RunE: executeList,
	}

	return listCmd
}

// executeList handles the list command execution logic
func executeList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	pattern := ""
	if len(args) > 0 {
		pattern = args[0]
	}
	releases, err := lifecycle.List(cfg, pattern)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if len(releases) == 0 {
		fmt.Fprintln(w, "No releases found.")
		return nil
	}
	for _, r := range releases {
		mark := " "
		if r.Latest {
			mark = "*"
		}
		line := fmt.Sprintf("%s %s:%s", mark, r.Name, r.Version)
		if r.Pending {
			line += " (pending)"
		}
		fmt.Fprintln(w, line)
	}
	return nil
}
