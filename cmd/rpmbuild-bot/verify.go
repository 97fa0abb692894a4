package main

import (
	"fmt"

	"github.com/open-edge-platform/rpmbuild-bot/internal/rpmutils"
	"github.com/spf13/cobra"
)

var verifyKeyring string

// createVerifyCommand creates the verify subcommand
func createVerifyCommand() *cobra.Command {
	verifyCmd := &cobra.Command{
		Use:   "verify [flags] NAME...",
		Short: "Check the signatures of a pending build",
		Long: `Check the OpenPGP signatures and digests of the packages of a pending
build. The keyring defaults to the gpg_key of the default repository.`,
		Args: cobra.MinimumNArgs(1),
		RunE: executeVerify,
	}

	verifyCmd.Flags().StringVarP(&verifyKeyring, "keyring", "k", "",
		"Armored public keyring to verify against")

	return verifyCmd
}

// executeVerify handles the verify command execution logic
func executeVerify(cmd *cobra.Command, args []string) error {
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

		results, err := m.Verify(verifyKeyring)
		if err != nil {
			return err
		}
		for _, r := range results {
			status := "OK " + r.NEVRA
			if !r.OK {
				status = fmt.Sprintf("FAILED: %v", r.Error)
			}
			fmt.Fprintf(w, "%s: %s\n", r.Path, status)
		}
		if failed := rpmutils.Failed(results); len(failed) > 0 {
			return fmt.Errorf("%d of %d packages of %s failed verification", len(failed), len(results), m.Pkg.Name)
		}
	}
	return nil
}
