// Package cli provides the command-line interface for fwrelease.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rescale/fwrelease/internal/config"
	"github.com/rescale/fwrelease/internal/logging"
	"github.com/rescale/fwrelease/internal/pathutil"
	"github.com/rescale/fwrelease/internal/version"
)

var (
	// Global flags
	cfgFile    string
	projectDir string
	logFile    string
	verbose    bool
	debug      bool

	// Global logger
	logger *logging.Logger

	// Global context for signal handling
	rootContext context.Context
	cancelFunc  context.CancelFunc
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "fwrelease",
		Short: "Firmware versioning and release packaging for PlatformIO builds",
		Long: `fwrelease ` + version.Version + ` - Built: ` + version.BuildTime + `
Versions firmware builds and packages them into field-ready release archives.

Build hooks:
  pre-build   Bump the version ledger and emit firmware info build flags
  post-build  Package the release archive (and optionally publish it)

The build system passes its construction environment as a JSON or YAML
dump (--env). Project settings are read from fwrelease.ini in the
project directory.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Initialize logger
			logger = logging.NewLogger(cmd.ErrOrStderr())
			if verbose || debug {
				logging.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Settings file (default: <project-dir>/fwrelease.ini)")
	rootCmd.PersistentFlags().StringVarP(&projectDir, "project-dir", "d", "", "PlatformIO project directory (default: current directory)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Also write JSON logs to this file (overrides [log] file)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output (shows debug messages)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug output (same as --verbose)")

	rootCmd.Version = version.Version + " (" + version.BuildTime + ")"

	// Customize completion command description
	completionCmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Enable tab-completion for fwrelease commands",
		Long: `Generate shell completion scripts to enable tab-completion for fwrelease.

QUICK START:

  zsh:
    mkdir -p ~/.zsh/completions
    fwrelease completion zsh > ~/.zsh/completions/_fwrelease
    # Then add to ~/.zshrc: fpath=(~/.zsh/completions $fpath)

  Linux with bash:
    fwrelease completion bash | sudo tee /etc/bash_completion.d/fwrelease

For detailed instructions, use: fwrelease completion [shell] --help`,
	}
	rootCmd.AddCommand(completionCmd)

	// Add subcommands for each shell
	completionCmd.AddCommand(&cobra.Command{
		Use:   "bash",
		Short: "Generate bash completion script",
		Long: `Generate the autocompletion script for bash.

  fwrelease completion bash | sudo tee /etc/bash_completion.d/fwrelease

QUICK TEST (temporary, current session only):
  source <(fwrelease completion bash)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootCmd.Root().GenBashCompletion(cmd.OutOrStdout())
		},
	})

	completionCmd.AddCommand(&cobra.Command{
		Use:   "zsh",
		Short: "Generate zsh completion script",
		Long: `Generate the autocompletion script for zsh.

  fwrelease completion zsh > "${fpath[1]}/_fwrelease"

QUICK TEST (temporary, current session only):
  source <(fwrelease completion zsh)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootCmd.Root().GenZshCompletion(cmd.OutOrStdout())
		},
	})

	completionCmd.AddCommand(&cobra.Command{
		Use:   "fish",
		Short: "Generate fish completion script",
		Long: `Generate the autocompletion script for fish.

  fwrelease completion fish > ~/.config/fish/completions/fwrelease.fish`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootCmd.Root().GenFishCompletion(cmd.OutOrStdout(), true)
		},
	})

	completionCmd.AddCommand(&cobra.Command{
		Use:   "powershell",
		Short: "Generate PowerShell completion script",
		Long: `Generate the autocompletion script for PowerShell.

  fwrelease completion powershell >> $PROFILE`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootCmd.Root().GenPowerShellCompletion(cmd.OutOrStdout())
		},
	})

	// Disable default completion command (we're adding our own above)
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	return rootCmd
}

// Execute runs the CLI.
func Execute() error {
	// Create a context that can be cancelled by signals
	rootContext, cancelFunc = context.WithCancel(context.Background())
	defer cancelFunc()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		for sig := range sigChan {
			if sig != nil {
				fmt.Fprintf(os.Stderr, "\nReceived signal %v, cancelling...\n", sig)
				cancelFunc()
			}
		}
	}()

	rootCmd := NewRootCmd()
	AddCommands(rootCmd)
	err := rootCmd.Execute()

	// Clean up signal handler
	signal.Stop(sigChan)
	close(sigChan)
	if logger != nil {
		logger.Close()
	}

	return err
}

// AddCommands adds all subcommands to the root command.
func AddCommands(rootCmd *cobra.Command) {
	rootCmd.AddCommand(newPreBuildCmd())
	rootCmd.AddCommand(newPostBuildCmd())
	rootCmd.AddCommand(newPublishCmd())
	rootCmd.AddCommand(newInfoCmd())
	rootCmd.AddCommand(newTagCmd())
	rootCmd.AddCommand(newConfigCmd())
}

// GetLogger returns the global CLI logger.
func GetLogger() *logging.Logger {
	if logger == nil {
		logger = logging.NewDefaultCLILogger()
	}
	return logger
}

// GetContext returns the global CLI context with signal handling.
// This context will be cancelled when the user presses Ctrl+C.
func GetContext() context.Context {
	if rootContext == nil {
		return context.Background()
	}
	return rootContext
}

// resolveProjectDir returns the absolute project directory from --project-dir.
func resolveProjectDir() (string, error) {
	dir, err := pathutil.ResolveAbsolutePath(projectDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve project directory: %w", err)
	}
	return dir, nil
}

// configPath returns --config, or fwrelease.ini inside dir.
func configPath(dir string) string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.PathFor(dir)
}

// loadConfig loads and validates the project settings and applies the [log]
// section to the global logger. Flags win over the file.
func loadConfig(dir string) (*config.Config, error) {
	cfg, err := config.Load(configPath(dir))
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings in %s: %w", configPath(dir), err)
	}

	log := GetLogger()
	if !verbose && !debug && cfg.Log.Level != "" {
		logging.SetGlobalLevel(logging.ParseLevel(cfg.Log.Level))
	}
	path := cfg.Log.File
	if logFile != "" {
		path = logFile
	}
	if path != "" {
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		if err := log.EnableFile(logging.FileConfig{
			Path:       path,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAgeDays: cfg.Log.MaxAgeDays,
		}); err != nil {
			log.Warnf("Failed to open log file %s: %v", path, err)
		}
	}
	return cfg, nil
}
