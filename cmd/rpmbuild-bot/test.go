package main

import (
	"fmt"
	"strings"

	"github.com/open-edge-platform/rpmbuild-bot/internal/builder"
	"github.com/spf13/cobra"
)

// Test command flags
var (
	testPhase string = string(builder.PhaseAll)
	testClean bool
)

// createTestCommand creates the test subcommand
func createTestCommand() *cobra.Command {
	phases := make([]string, 0, len(builder.Phases()))
	for _, p := range builder.Phases() {
		phases = append(phases, string(p))
	}

	testCmd := &cobra.Command{
		Use:   "test [flags] SPEC...",
		Short: "Run a test build for the base architecture",
		Long: `Run a test build of a spec for the base architecture without the
distribution tag. --phase restricts the build to one stage; stages after
"prep" are short-circuited and reuse the previous stage's tree.

A test build never touches a pending build. Use --clean to remove the
packages and logs of earlier test builds instead of building.`,
		Args:              cobra.MinimumNArgs(1),
		RunE:              executeTest,
		ValidArgsFunction: specFileCompletion,
	}

	testCmd.Flags().StringVarP(&testPhase, "phase", "p", string(builder.PhaseAll),
		"Build phase to run ("+strings.Join(phases, ", ")+")")
	testCmd.Flags().BoolVar(&testClean, "clean", false,
		"Remove the results of earlier test builds")
	_ = testCmd.RegisterFlagCompletionFunc("phase", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return phases, cobra.ShellCompDirectiveNoFileComp
	})

	return testCmd
}

// executeTest handles the test command execution logic
func executeTest(cmd *cobra.Command, args []string) error {
	phase, err := builder.ParsePhase(testPhase)
	if err != nil {
		return &configError{err: err}
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	for _, ref := range packageRefs(args) {
		m, err := newManager(cfg, ref, true)
		if err != nil {
			return err
		}

		if testClean {
			removed, err := m.CleanTest()
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "Removed %d test packages of %s\n", len(removed), m.Pkg.Name)
			continue
		}

		rpms, err := m.Test(phase)
		if err != nil {
			return fmt.Errorf("test build of %s failed: %w", m.Pkg.Name, err)
		}
		fmt.Fprintf(w, "Test build of %s (%s) succeeded, log: %s\n", m.Pkg.Name, phase, m.TestLog(phase))
		for _, r := range rpms {
			fmt.Fprintf(w, "  %s\n", r)
		}
	}
	return nil
}
