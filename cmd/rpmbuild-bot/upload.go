package main

import (
	"fmt"

	"github.com/open-edge-platform/rpmbuild-bot/internal/lifecycle"
	"github.com/spf13/cobra"
)

// Upload command flags
var (
	uploadRepo   string = "" // Empty means the first configured repository
	uploadCommit bool
)

// createUploadCommand creates the upload subcommand
func createUploadCommand() *cobra.Command {
	uploadCmd := &cobra.Command{
		Use:   "upload [flags] SPEC...",
		Short: "Publish a pending build to a repository",
		Long: `Copy the artifacts of the pending build of a spec into a repository,
archive its manifest and build logs and finish the build.

The manifest is verified first: an artifact changed or removed since the
build stops the upload before anything is copied. With --commit the spec
and its auxiliary files are committed to git before copying.`,
		Args:              cobra.MinimumNArgs(1),
		RunE:              executeUpload,
		ValidArgsFunction: specFileCompletion,
	}

	uploadCmd.Flags().StringVarP(&uploadRepo, "repo", "r", "",
		"Target repository id (default: the first configured repository)")
	uploadCmd.Flags().BoolVarP(&uploadCommit, "commit", "c", false,
		"Commit the spec and auxiliary files with a release message")
	_ = uploadCmd.RegisterFlagCompletionFunc("repo", repositoryCompletion)

	return uploadCmd
}

// executeUpload handles the upload command execution logic
func executeUpload(cmd *cobra.Command, args []string) error {
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

		result, err := m.Upload(lifecycle.UploadOptions{Repository: uploadRepo, Commit: uploadCommit})
		if err != nil {
			return fmt.Errorf("upload of %s failed: %w", m.Pkg.Name, err)
		}
		fmt.Fprintf(w, "Uploaded %s version %s to %s (%d files)\n",
			m.Pkg.Name, result.Version, result.Repository, len(result.Copied))
		if result.Commit != "" {
			fmt.Fprintf(w, "Committed release as %s\n", result.Commit)
		}
	}
	return nil
}

// repositoryCompletion offers the configured repository ids
func repositoryCompletion(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}
	return cfg.RepositoryIDs(), cobra.ShellCompDirectiveNoFileComp
}
