package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// createInfoCommand creates the info subcommand
func createInfoCommand() *cobra.Command {
	infoCmd := &cobra.Command{
		Use:   "info NAME[:VERSION]",
		Short: "Show where the artifacts of a release are",
		Long: `Show the artifacts recorded for a release and the repositories that
currently hold them. Without a version the pending build is shown.

Artifacts whose modification time differs from the recorded one are
flagged as stale.`,
		Args: cobra.ExactArgs(1),
		RunE: executeInfo,
	}

	return infoCmd
}

// executeInfo handles the info command execution logic
func executeInfo(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	m, err := newManager(cfg, args[0], false)
	if err != nil {
		return err
	}

	d, err := m.Info()
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	state := "uploaded"
	switch {
	case d.Pending:
		state = "pending"
	case d.Latest:
		state = "uploaded, latest"
	}
	fmt.Fprintf(w, "%s %s (%s)\n", d.Name, d.Version, state)
	fmt.Fprintf(w, "Manifest: %s\n", d.Manifest)
	for _, a := range d.Artifacts {
		fmt.Fprintf(w, "  %s [%s] built %s\n", a.Name, a.Kind, a.Recorded.UTC().Format(time.RFC3339))
		if len(a.Locations) == 0 {
			fmt.Fprintln(w, "    (not found)")
		}
		for _, l := range a.Locations {
			where := l.Repository
			if where == "" {
				where = "build"
			}
			stale := ""
			if l.Stale {
				stale = " (stale)"
			}
			fmt.Fprintf(w, "    %s: %s%s\n", where, l.Path, stale)
		}
	}
	return nil
}
