package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var removeRepo string

// createRemoveCommand creates the remove subcommand
func createRemoveCommand() *cobra.Command {
	removeCmd := &cobra.Command{
		Use:   "remove [flags] NAME[:VERSION]...",
		Short: "Remove a release from a repository",
		Long: `Delete the artifacts of an uploaded release from a repository and
forget the release.

Without --repo the pending local build is removed instead, like the clean
command does.`,
		Args: cobra.MinimumNArgs(1),
		RunE: executeRemove,
	}

	removeCmd.Flags().StringVarP(&removeRepo, "repo", "r", "",
		"Repository to remove the release from (default: remove the local build)")
	_ = removeCmd.RegisterFlagCompletionFunc("repo", repositoryCompletion)

	return removeCmd
}

// executeRemove handles the remove command execution logic
func executeRemove(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	for _, ref := range packageRefs(args) {
		m, err := newManager(cfg, ref, false)
		if err != nil {
			return err
		}

		if removeRepo == "" {
			if m.Pkg.Version != "" {
				if pending, err := m.PendingVersion(); err == nil && pending != m.Pkg.Version {
					return fmt.Errorf("pending build of %s is version %s, not %s; use --repo to remove an uploaded release",
						m.Pkg.Name, pending, m.Pkg.Version)
				}
			}
			removed, err := m.Clean()
			if err != nil {
				return fmt.Errorf("removal of the build of %s failed: %w", m.Pkg.Name, err)
			}
			fmt.Fprintf(w, "Removed the pending build of %s (%d files)\n", m.Pkg.Name, len(removed))
			continue
		}

		removed, err := m.Remove(removeRepo)
		if err != nil {
			return fmt.Errorf("removal of %s failed: %w", m.Pkg.Name, err)
		}
		fmt.Fprintf(w, "Removed %s version %s from %s (%d files)\n",
			m.Pkg.Name, m.Pkg.Version, removeRepo, len(removed))
	}
	return nil
}
