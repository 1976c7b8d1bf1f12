// Package hooks implements the two build entry points: the pre-build pass
// that versions the firmware and exposes its metadata to the compiler, and
// the post-build pass that packages (and optionally publishes) the release.
package hooks

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/rescale/fwrelease/internal/config"
	"github.com/rescale/fwrelease/internal/envview"
	"github.com/rescale/fwrelease/internal/ledger"
	"github.com/rescale/fwrelease/internal/logging"
	"github.com/rescale/fwrelease/internal/models"
	"github.com/rescale/fwrelease/internal/notify"
	"github.com/rescale/fwrelease/internal/progress"
	"github.com/rescale/fwrelease/internal/publish"
	"github.com/rescale/fwrelease/internal/vcs"
)

// Deps are the collaborators shared by both hooks.
type Deps struct {
	ProjectDir string
	Config     *config.Config
	VCS        vcs.Provider
	Logger     *logging.Logger
	// Now defaults to time.Now.
	Now func() time.Time

	// In answers the confirmation prompt. Nil declines it.
	In io.Reader
	// Out receives the human-readable summary.
	Out io.Writer

	// HTTPClient fetches remote template bundles.
	HTTPClient *retryablehttp.Client
	// Publisher is used when post-build publishing is requested.
	Publisher publish.Publisher
	Notifier  *notify.Notifier
	Reporter  progress.Reporter
}

func (d *Deps) defaults() {
	if d.Config == nil {
		d.Config = config.New()
	}
	if d.Logger == nil {
		d.Logger = logging.Nop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Out == nil {
		d.Out = io.Discard
	}
	if d.VCS == nil {
		d.VCS = vcs.NewGit(d.ProjectDir, d.Logger)
	}
	if d.Notifier == nil {
		d.Notifier = notify.NewNotifier(false, d.Logger)
	}
}

// Ledger returns the ledger for this project, stamped with the board and
// env of view.
func Ledger(d Deps, view envview.View) *ledger.Ledger {
	d.defaults()
	return ledger.New(ledger.Options{
		Dir:          d.ProjectDir,
		CurrentFile:  d.Config.Ledger.File,
		BackupFile:   d.Config.Ledger.BackupFile,
		VCS:          d.VCS,
		Logger:       d.Logger,
		Now:          d.Now,
		Board:        strings.TrimSpace(envview.GetString(view, "BOARD", "")),
		ToolchainEnv: strings.TrimSpace(envview.GetString(view, "PIOENV", "")),
	})
}

func (d Deps) abs(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(d.ProjectDir, path)
}

// confirm asks question on out and reads one answer from in. Only answers
// starting with "y" accept; EOF declines.
func confirm(in io.Reader, out io.Writer, question string) bool {
	if in == nil {
		return false
	}
	fmt.Fprintf(out, "\t%s [y/n]\n", question)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(line)), "y")
}

// PrintSummary writes the record fields a developer checks after a build.
func PrintSummary(out io.Writer, rec *models.FirmwareRecord) {
	fmt.Fprintln(out)
	fmt.Fprintf(out, "\tFirmware Version          = %s\n", rec.Version)
	fmt.Fprintf(out, "\tFirmware Description      = %s\n", rec.Description)
	fmt.Fprintf(out, "\tFirmware Compilation Date = %s\n", rec.BuildDate)
	fmt.Fprintf(out, "\tFirmware Version-Name     = %s\n", rec.FullTag())
}
