package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rescale/fwrelease/internal/envview"
	"github.com/rescale/fwrelease/internal/hooks"
	"github.com/rescale/fwrelease/internal/localfs"
	"github.com/rescale/fwrelease/internal/models"
	"github.com/rescale/fwrelease/internal/vcs"
)

// newInfoCmd creates the 'info' command.
func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show repository provenance, the ledger and packaged releases",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd, nil)
			if err != nil {
				return err
			}
			ctx := GetContext()
			out := cmd.OutOrStdout()

			info := vcs.Snapshot(ctx, s.deps.VCS)
			fmt.Fprintln(out, "Repository")
			fmt.Fprintf(out, "  Project:     %s\n", orNone(info.Project))
			fmt.Fprintf(out, "  Latest tag:  %s\n", orNone(info.Tag))
			fmt.Fprintf(out, "  Branch:      %s\n", orNone(info.Branch))
			fmt.Fprintf(out, "  Commit:      %s\n", orNone(info.Commit))
			fmt.Fprintf(out, "  Origin:      %s\n", orNone(info.Origin))
			fmt.Fprintln(out)

			l := hooks.Ledger(s.deps, envview.NewMapView(nil))
			fmt.Fprintf(out, "Ledger (%s)\n", l.CurrentPath())
			if _, err := os.Stat(l.CurrentPath()); os.IsNotExist(err) {
				fmt.Fprintln(out, "  not created yet; the next pre-build starts at 1.0.0")
			} else {
				rec, err := l.LoadOrInit(ctx)
				if err != nil {
					return err
				}
				printRecord(out, rec)
				if prev, err := l.LoadBackup(); err == nil && prev.Version != rec.Version {
					fmt.Fprintf(out, "  Previous:    %s\n", prev.Version)
				}
			}
			fmt.Fprintln(out)

			releaseDir := s.cfg.Release.Dir
			if !filepath.IsAbs(releaseDir) {
				releaseDir = filepath.Join(s.dir, releaseDir)
			}
			fmt.Fprintf(out, "Releases (%s)\n", releaseDir)
			return printReleases(out, releaseDir)
		},
	}
}

func printRecord(out io.Writer, rec *models.FirmwareRecord) {
	fmt.Fprintf(out, "  Version:     %s (%d)\n", rec.Version, rec.NumericVersion())
	fmt.Fprintf(out, "  Tag:         %s\n", rec.FullTag())
	fmt.Fprintf(out, "  Board:       %s\n", orNone(rec.Board))
	fmt.Fprintf(out, "  Env:         %s\n", orNone(rec.ToolchainEnv))
	fmt.Fprintf(out, "  Date:        %s\n", rec.BuildDate)
	if rec.ContentDigest != "" {
		fmt.Fprintf(out, "  ELF SHA-256: %s\n", rec.ContentDigest)
	}
}

// printReleases lists <releaseDir>/<env>/*.zip.
func printReleases(out io.Writer, releaseDir string) error {
	envs, err := localfs.ListDirectory(releaseDir, localfs.ListOptions{})
	if os.IsNotExist(err) {
		fmt.Fprintln(out, "  none")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", releaseDir, err)
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	found := 0
	for _, env := range envs {
		if !env.IsDir {
			continue
		}
		zips, err := localfs.ListDirectory(env.Path, localfs.ListOptions{Pattern: "*.zip"})
		if err != nil {
			return fmt.Errorf("failed to list %s: %w", env.Path, err)
		}
		for _, z := range zips {
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", env.Name, z.Name, formatSize(z.Size), z.ModTime.Format("2006-01-02 15:04"))
			found++
		}
	}
	if found == 0 {
		fmt.Fprintln(out, "  none")
		return nil
	}
	return tw.Flush()
}

func orNone(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func formatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
