package main

import (
	"fmt"

	"github.com/open-edge-platform/rpmbuild-bot/internal/utils/logger"
	"github.com/spf13/cobra"
)

// createBuildCommand creates the build subcommand
func createBuildCommand() *cobra.Command {
	buildCmd := &cobra.Command{
		Use:   "build [flags] SPEC...",
		Short: "Build the packages of a spec for all target architectures",
		Long: `Build binary packages for every configured architecture, the source
package and the ZIP archive of a spec, and record them in a build manifest.

The build stays pending until it is uploaded or cleaned; building again
before that fails unless --force is given. Several specs may be given
separated by spaces or commas.`,
		Args:              cobra.MinimumNArgs(1),
		RunE:              executeBuild,
		ValidArgsFunction: specFileCompletion,
	}

	return buildCmd
}

// executeBuild handles the build command execution logic
func executeBuild(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.Logger()

	for _, ref := range packageRefs(args) {
		m, err := newManager(cfg, ref, true)
		if err != nil {
			return err
		}

		log.Infof("Building %s from %s", m.Pkg.Name, m.Pkg.SpecFile)
		result, err := m.Build()
		if err != nil {
			return fmt.Errorf("build of %s failed: %w", m.Pkg.Name, err)
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Built %s version %s\n", m.Pkg.Name, result.Version)
		for _, a := range result.Artifacts {
			fmt.Fprintf(w, "  %s\n", a)
		}
		fmt.Fprintf(w, "Manifest: %s\n", result.Manifest)
	}
	return nil
}

// specFileCompletion offers spec files for commands taking a spec
func specFileCompletion(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return []string{"spec"}, cobra.ShellCompDirectiveFilterFileExt
}
