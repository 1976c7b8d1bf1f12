package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rescale/fwrelease/internal/hooks"
)

// newPreBuildCmd creates the 'pre-build' command.
func newPreBuildCmd() *cobra.Command {
	var (
		envFile  string
		flagsOut string
		opts     hooks.PreBuildOptions
	)

	cmd := &cobra.Command{
		Use:   "pre-build",
		Short: "Bump the firmware version and emit firmware info build flags",
		Long: `Run before compilation.

Compares the working tree against the last commit; when sources changed the
patch version in the ledger is incremented. The record is then exposed to the
firmware as -D build flags and as a generated lib/firmware_info library.

The build flags are printed one per line on stdout, or written to --flags-out.

Examples:
  # From a PlatformIO extra script
  fwrelease pre-build --env .pio/build/esp32/env.json --yes

  # Skip on clean builds
  fwrelease pre-build --env env.json --clean`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			view, err := loadView(envFile)
			if err != nil {
				return err
			}
			s, err := newSession(cmd, view)
			if err != nil {
				return err
			}

			res, err := hooks.PreBuild(GetContext(), s.deps, view, opts)
			if err != nil {
				return fmt.Errorf("pre-build failed: %w", err)
			}
			if res.Skipped {
				return nil
			}
			GetLogger().Infof("Firmware %s (%s)", res.Proposal.Record.FullTag(), res.Proposal.Outcome)
			return writeFlags(cmd, flagsOut, res.Flags)
		},
	}

	cmd.Flags().StringVarP(&envFile, "env", "e", "", "Construction environment dump (JSON or YAML)")
	cmd.Flags().StringVar(&flagsOut, "flags-out", "", "Write build flags to this file instead of stdout")
	cmd.Flags().BoolVarP(&opts.AssumeYes, "yes", "y", false, "Do not ask for confirmation")
	cmd.Flags().BoolVar(&opts.Clean, "clean", false, "Clean build (skips the update)")
	cmd.Flags().StringSliceVar(&opts.Targets, "targets", nil, "Build targets (idedata and debug skip the update)")
	cmd.MarkFlagRequired("env")

	return cmd
}

func writeFlags(cmd *cobra.Command, path string, flags []string) error {
	if path == "" {
		for _, f := range flags {
			fmt.Fprintln(cmd.OutOrStdout(), f)
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	content := strings.Join(flags, "\n")
	if content != "" {
		content += "\n"
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write build flags: %w", err)
	}
	return nil
}
