package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/google/uuid"
	"github.com/open-edge-platform/rpmbuild-bot/internal/config"
	"github.com/open-edge-platform/rpmbuild-bot/internal/lifecycle"
	"github.com/open-edge-platform/rpmbuild-bot/internal/utils/logger"
	"github.com/open-edge-platform/rpmbuild-bot/internal/utils/security"
	"github.com/open-edge-platform/rpmbuild-bot/internal/utils/shell"
	"github.com/open-edge-platform/rpmbuild-bot/internal/utils/slice"
	"github.com/spf13/cobra"
)

// Command-line flags that can override config file settings
var (
	configFile string = "" // Path to config file
	logLevel   string = "" // Empty means use config file value
	logFile    string = "" // Empty means use config file value
	force      bool        // Override guards against replacing existing state
)

// Exit codes
const (
	exitConfig   = 1
	exitIO       = 2
	exitBot      = 101
	exitExternal = 102
)

// Lines of a failed tool's log shown with the error
const logTailLines = 20

func main() {
	rootCmd := createRootCommand()
	security.AttachRecursive(rootCmd, security.DefaultLimits())

	err := rootCmd.Execute()
	closeLog()
	os.Exit(reportError(os.Stderr, err))
}

// createRootCommand creates and configures the root cobra command with all subcommands
func createRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "rpmbuild-bot",
		Short: "Build, publish and track RPM package releases",
		Long: `rpmbuild-bot builds RPM packages for a set of target architectures
with rpmbuild, records every produced file in a build manifest and moves
releases through their lifecycle:

  build -> upload -> move ... -> remove
        \-> clean

Each command takes a package reference: a spec name (searched in the
configured spec directories) or a path to a spec file, optionally followed
by :VERSION.

Use 'rpmbuild-bot <command> --help' for more information about a command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Add global flags
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "",
		"Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "",
		"Log file path to tee logs (overrides configuration file)")
	rootCmd.PersistentFlags().BoolVarP(&force, "force", "f", false,
		"Overwrite existing builds, uploads and repository files")

	// Add all subcommands
	rootCmd.AddCommand(createBuildCommand())
	rootCmd.AddCommand(createTestCommand())
	rootCmd.AddCommand(createUploadCommand())
	rootCmd.AddCommand(createMoveCommand())
	rootCmd.AddCommand(createRemoveCommand())
	rootCmd.AddCommand(createCleanCommand())
	rootCmd.AddCommand(createListCommand())
	rootCmd.AddCommand(createInfoCommand())
	rootCmd.AddCommand(createVerifyCommand())
	rootCmd.AddCommand(createCacheCommand())
	rootCmd.AddCommand(createConfigCommand())
	rootCmd.AddCommand(createVersionCommand())
	rootCmd.AddCommand(createInstallCompletionCommand())

	return rootCmd
}

// configError marks failures to load the configuration.
type configError struct {
	err error
}

func (e *configError) Error() string { return e.err.Error() }
func (e *configError) Unwrap() error { return e.err }

var closeLog = func() {}

// loadConfig reads the configuration selected by the global flags and sets
// up logging accordingly.
func loadConfig() (*config.Config, error) {
	path := configFile
	if path == "" {
		path = config.FindConfigFile()
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, &configError{err: err}
	}
	if logFile != "" {
		cfg.Logging.File = logFile
	}

	_, cleanup, err := logger.InitWithConfig(logger.Config{Level: cfg.Logging.Level, FilePath: cfg.Logging.File})
	if err != nil {
		return nil, &configError{err: err}
	}
	closeLog = cleanup
	if logLevel != "" {
		logger.SetLogLevel(logLevel)
		cfg.Logging.Level = logLevel
	}

	log := logger.WithRun(uuid.NewString())
	if path != "" {
		log.Debugf("Using configuration from: %s", path)
	}
	log.Debugf("Config: top_dir=%s, log_dir=%s, archs=%v, repositories=%v",
		cfg.TopDir, cfg.LogDir, cfg.Archs, cfg.RepositoryIDs())
	return cfg, nil
}

// newManager prepares the lifecycle of the package ref. withSpec resolves
// the spec file and applies the configuration overlays next to it.
func newManager(cfg *config.Config, ref string, withSpec bool) (*lifecycle.Manager, error) {
	var pkg *lifecycle.Package
	var err error
	if withSpec {
		if pkg, err = lifecycle.ResolveSpec(cfg, ref); err != nil {
			return nil, err
		}
		if cfg, err = cfg.WithOverlays(pkg.Overlays()...); err != nil {
			return nil, &configError{err: err}
		}
	} else if pkg, err = lifecycle.NewPackage(ref); err != nil {
		return nil, err
	}

	m, err := lifecycle.New(cfg, pkg)
	if err != nil {
		return nil, &configError{err: err}
	}
	m.Force = force
	return m, nil
}

// packageRefs splits arguments that may list several packages separated by
// commas.
func packageRefs(args []string) []string {
	var refs []string
	for _, a := range args {
		refs = append(refs, slice.SplitCSV(a)...)
	}
	return slice.Unique(refs)
}

// reportError prints err for the operator and returns the exit code.
func reportError(w io.Writer, err error) int {
	if err == nil {
		return 0
	}
	fmt.Fprintf(w, "ERROR: %v\n", err)
	if hint := lifecycle.HintOf(err); hint != "" {
		fmt.Fprintf(w, "HINT: %s\n", hint)
	}

	var cfgErr *configError
	var runErr *shell.RunError
	switch {
	case errors.As(err, &cfgErr):
		return exitConfig
	case errors.As(err, &runErr):
		if runErr.LogFile != "" {
			if lines, tailErr := shell.Tail(runErr.LogFile, logTailLines); tailErr == nil && len(lines) > 0 {
				fmt.Fprintf(w, "Last lines of %s:\n", runErr.LogFile)
				for _, l := range lines {
					fmt.Fprintf(w, "  %s\n", l)
				}
			}
		}
		return exitExternal
	case lifecycle.KindOf(err) == lifecycle.External:
		return exitExternal
	case lifecycle.KindOf(err) != 0:
		return exitBot
	}

	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return exitIO
	}
	return exitBot
}
