package main

import (
	"fmt"

	"github.com/open-edge-platform/rpmbuild-bot/internal/cache"
	"github.com/spf13/cobra"
)

func createCacheCommand() *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage cached artifacts",
		Long: `Manage the directories rpmbuild-bot fills while building.

Available commands:
  clean    Remove extracted legacy runtimes, staged sources or ZIP trees`,
	}

	cacheCmd.AddCommand(createCacheCleanCommand())

	return cacheCmd
}

func createCacheCleanCommand() *cobra.Command {
	var (
		opts cache.CleanOptions
		all  bool
	)

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove extracted legacy runtimes and staged sources",
		Long: `Remove cached data to reclaim disk space.

By default, the command removes the extracted legacy runtimes. Use flags to
target staged sources or the trees left over from building ZIP archives, or
to restrict cleanup to one package.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			legacyFlag := cmd.Flags().Changed("legacy")
			sourcesFlag := cmd.Flags().Changed("sources")
			zipFlag := cmd.Flags().Changed("zip-roots")

			if all {
				opts.CleanLegacy = true
				opts.CleanSources = true
				opts.CleanZipRoot = true
			} else if !legacyFlag && !sourcesFlag && !zipFlag {
				opts.CleanLegacy = true
			}

			if !opts.CleanLegacy && !opts.CleanSources && !opts.CleanZipRoot {
				return fmt.Errorf("nothing to clean: specify --legacy, --sources, --zip-roots, or --all")
			}

			result, err := cache.Clean(cfg, opts)
			if err != nil {
				return err
			}

			output := []string{}
			if opts.DryRun {
				output = append(output, "Dry run: no files were deleted.")
			}

			if len(result.RemovedPaths) > 0 {
				header := "Removed paths:"
				if opts.DryRun {
					header = "Would remove:"
				}
				output = append(output, header)
				output = append(output, indentPaths(result.RemovedPaths)...)
			}

			if len(result.RemovedPaths) == 0 && len(result.SkippedPaths) == 0 {
				scopeDesc := "cache"
				if opts.Package != "" {
					scopeDesc += fmt.Sprintf(" for package '%s'", opts.Package)
				}
				output = append(output, fmt.Sprintf("No %s entries found.", scopeDesc))
			}

			if len(result.SkippedPaths) > 0 {
				output = append(output, "Skipped (not found):")
				output = append(output, indentPaths(result.SkippedPaths)...)
			}

			writer := cmd.OutOrStdout()
			for _, line := range output {
				fmt.Fprintln(writer, line)
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Remove legacy runtimes, staged sources and ZIP trees")
	cmd.Flags().BoolVar(&opts.CleanLegacy, "legacy", false, "Remove extracted legacy runtimes")
	cmd.Flags().BoolVar(&opts.CleanSources, "sources", false, "Remove staged package sources")
	cmd.Flags().BoolVar(&opts.CleanZipRoot, "zip-roots", false, "Remove trees left over from ZIP archive creation")
	cmd.Flags().StringVar(&opts.Package, "package", "", "Restrict cleanup to one package")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Show what would be removed without deleting anything")

	return cmd
}

func indentPaths(values []string) []string {
	lines := make([]string, len(values))
	for i, v := range values {
		lines[i] = "  " + v
	}
	return lines
}
