package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Move command flags
var (
	moveFrom string = "" // Empty means the repository holding the release
	moveTo   string = "" // Empty means the repository after it
)

// createMoveCommand creates the move subcommand
func createMoveCommand() *cobra.Command {
	moveCmd := &cobra.Command{
		Use:   "move [flags] NAME:VERSION...",
		Short: "Move an uploaded release to another repository",
		Long: `Move the artifacts of an uploaded release between repositories.

Without --from the release is looked up in the configured repositories;
without --to it moves to the next repository in configuration order.
The artifacts must be unchanged since the build.`,
		Args: cobra.MinimumNArgs(1),
		RunE: executeMove,
	}

	moveCmd.Flags().StringVar(&moveFrom, "from", "", "Source repository id")
	moveCmd.Flags().StringVar(&moveTo, "to", "", "Destination repository id")
	_ = moveCmd.RegisterFlagCompletionFunc("from", repositoryCompletion)
	_ = moveCmd.RegisterFlagCompletionFunc("to", repositoryCompletion)

	return moveCmd
}

// executeMove handles the move command execution logic
func executeMove(cmd *cobra.Command, args []string) error {
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

		result, err := m.Move(moveFrom, moveTo)
		if err != nil {
			return fmt.Errorf("move of %s failed: %w", m.Pkg.Name, err)
		}
		fmt.Fprintf(w, "Moved %s version %s from %s to %s (%d files)\n",
			m.Pkg.Name, result.Version, result.From, result.To, len(result.Moved))
	}
	return nil
}
