package main

import (
	"fmt"

	"github.com/open-edge-platform/rpmbuild-bot/internal/config"
	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"
)

// createConfigCommand creates the config subcommand
func createConfigCommand() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Manage the rpmbuild-bot configuration.

Available commands:
  init    Initialize a new configuration file with default values
  show    Print the effective configuration`,
	}

	configCmd.AddCommand(createConfigInitCommand())
	configCmd.AddCommand(createConfigShowCommand())

	return configCmd
}

// createConfigInitCommand creates the config init subcommand
func createConfigInitCommand() *cobra.Command {
	initCmd := &cobra.Command{
		Use:   "init [config-file]",
		Short: "Initialize a new configuration file",
		Long: `Initialize a new configuration file with default values.

If no path is specified, the config will be created in the current directory as rpmbuild-bot.yml

Examples:
  # Create config in current directory
  rpmbuild-bot config init

  # Create config at specific location
  rpmbuild-bot config init /etc/rpmbuild-bot/config.yml

  # Create config in user's home directory
  rpmbuild-bot config init ~/.rpmbuild-bot/config.yml`,
		Args: cobra.MaximumNArgs(1),
		RunE: executeConfigInit,
	}

	return initCmd
}

// executeConfigInit handles the config init command logic
func executeConfigInit(cmd *cobra.Command, args []string) error {
	configPath := config.OverlayFileName
	if len(args) > 0 {
		configPath = args[0]
	}

	// Create default config
	defaultConfig := config.DefaultConfig()

	// Save to file with descriptive comments
	if err := defaultConfig.SaveWithComments(configPath); err != nil {
		return &configError{err: fmt.Errorf("failed to save config file: %w", err)}
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Configuration file created at: %s\n", configPath)
	fmt.Fprintf(w, "\nDefault configuration settings:\n")
	fmt.Fprintf(w, "  Top Directory: %s\n", defaultConfig.TopDir)
	fmt.Fprintf(w, "  Architectures: %v\n", defaultConfig.Archs)
	fmt.Fprintf(w, "  Builder: %s\n", defaultConfig.RPMBuild)
	fmt.Fprintf(w, "  Log Level: %s\n", defaultConfig.Logging.Level)
	fmt.Fprintf(w, "\nAdd repositories and edit the configuration file to customize these settings.\n")

	return nil
}

// createConfigShowCommand creates the config show subcommand
func createConfigShowCommand() *cobra.Command {
	showCmd := &cobra.Command{
		Use:   "show [SPEC]",
		Short: "Print the effective configuration",
		Long: `Print the configuration after defaults, the configuration file and,
when SPEC is given, the overlays next to the spec are applied.`,
		Args: cobra.MaximumNArgs(1),
		RunE: executeConfigShow,
	}

	return showCmd
}

// executeConfigShow handles the config show command logic
func executeConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if len(args) > 0 {
		m, err := newManager(cfg, args[0], true)
		if err != nil {
			return err
		}
		cfg = m.Config
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("rendering configuration: %w", err)
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}
