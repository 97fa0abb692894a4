package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

// completionTarget describes how the completion script of one shell is
// generated and where it is installed relative to the home directory.
type completionTarget struct {
	generate func(root *cobra.Command, w io.Writer) error
	dir      string
	file     string
}

var completionTargets = map[string]completionTarget{
	"bash": {
		generate: func(root *cobra.Command, w io.Writer) error { return root.GenBashCompletionV2(w, true) },
		dir:      ".bash_completion.d",
		file:     "rpmbuild-bot.bash",
	},
	"zsh": {
		generate: func(root *cobra.Command, w io.Writer) error { return root.GenZshCompletion(w) },
		dir:      filepath.Join(".zsh", "completion"),
		file:     "_rpmbuild-bot",
	},
	"fish": {
		generate: func(root *cobra.Command, w io.Writer) error { return root.GenFishCompletion(w, true) },
		dir:      filepath.Join(".config", "fish", "completions"),
		file:     "rpmbuild-bot.fish",
	},
	"powershell": {
		generate: func(root *cobra.Command, w io.Writer) error { return root.GenPowerShellCompletionWithDesc(w) },
		dir:      filepath.Join("Documents", "WindowsPowerShell"),
		file:     "rpmbuild-bot-completion.ps1",
	},
}

// systemBashCompletionDir is used instead of the home directory when
// RPMBUILD_BOT_COMPLETION_SCOPE=system and it is writable.
const systemBashCompletionDir = "/etc/bash_completion.d"

// createInstallCompletionCommand creates the install-completion subcommand
func createInstallCompletionCommand() *cobra.Command {
	shells := make([]string, 0, len(completionTargets))
	for name := range completionTargets {
		shells = append(shells, name)
	}
	sort.Strings(shells)

	installCompletionCmd := &cobra.Command{
		Use:   "install-completion",
		Short: "Install shell completion script",
		Long: `Install the shell completion script for Bash, Zsh, Fish, or PowerShell.
The shell is detected from $SHELL unless --shell is given. An existing
script is only replaced with --force.`,
		Args: cobra.NoArgs,
		RunE: executeInstallCompletion,
	}

	installCompletionCmd.Flags().String("shell", "", "Shell type ("+strings.Join(shells, ", ")+")")
	_ = installCompletionCmd.RegisterFlagCompletionFunc("shell", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return shells, cobra.ShellCompDirectiveNoFileComp
	})

	return installCompletionCmd
}

// detectShell guesses the shell of the operator from the environment
func detectShell() (string, error) {
	shellEnv := os.Getenv("SHELL")
	if shellEnv == "" {
		if os.Getenv("PSModulePath") != "" {
			return "powershell", nil
		}
		return "", fmt.Errorf("could not detect shell. Please specify with --shell flag")
	}
	for _, name := range []string{"bash", "zsh", "fish"} {
		if strings.Contains(filepath.Base(shellEnv), name) {
			return name, nil
		}
	}
	return "", fmt.Errorf("unsupported shell: %s. Please specify shell with --shell flag", shellEnv)
}

// executeInstallCompletion handles installation of shell completion scripts
func executeInstallCompletion(cmd *cobra.Command, args []string) error {
	shellType, err := cmd.Flags().GetString("shell")
	if err != nil {
		return err
	}
	if shellType == "" {
		if shellType, err = detectShell(); err != nil {
			return err
		}
	}
	target, ok := completionTargets[shellType]
	if !ok {
		return fmt.Errorf("unsupported shell type: %s", shellType)
	}

	var buf bytes.Buffer
	if err := target.generate(cmd.Root(), &buf); err != nil {
		return fmt.Errorf("error generating %s completion: %w", shellType, err)
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("could not determine home directory: %w", err)
	}
	completionDir := filepath.Join(homeDir, target.dir)
	if shellType == "bash" && os.Getenv("RPMBUILD_BOT_COMPLETION_SCOPE") == "system" && dirWritable(systemBashCompletionDir) {
		completionDir = systemBashCompletionDir
	}
	if err := os.MkdirAll(completionDir, 0700); err != nil {
		return fmt.Errorf("could not create directory %s: %w", completionDir, err)
	}
	targetPath := filepath.Join(completionDir, target.file)

	if _, err := os.Stat(targetPath); err == nil && !force {
		return fmt.Errorf("completion file already exists at %s. Use --force to overwrite", targetPath)
	}
	if err := os.WriteFile(targetPath, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("could not write completion file: %w", err)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Shell completion installed for %s at %s\n", shellType, targetPath)
	fmt.Fprintf(w, "Source the file from your shell profile to activate it.\n")
	return nil
}

// dirWritable checks if the specified directory is writable by attempting to create and remove a temporary file.
func dirWritable(p string) bool {
	tf, err := os.CreateTemp(p, ".probe-*")
	if err != nil {
		return false
	}
	tf.Close()
	_ = os.Remove(tf.Name())
	return true
}
