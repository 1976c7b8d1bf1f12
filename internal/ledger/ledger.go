// Package ledger owns the persisted firmware metadata record.
//
// The ledger is a pair of JSON files: the current record and a backup of the
// record it replaced. Every Commit rotates current into backup, so at most one
// backup exists on disk.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/blang/semver"

	"github.com/rescale/fwrelease/internal/constants"
	"github.com/rescale/fwrelease/internal/logging"
	"github.com/rescale/fwrelease/internal/models"
	"github.com/rescale/fwrelease/internal/vcs"
)

// Outcome classifies a ProposeNext decision.
type Outcome int

const (
	// OutcomeNoChanges means nothing outside build artifacts changed.
	OutcomeNoChanges Outcome = iota
	// OutcomeAlreadyBumped means the backup file is itself pending, so this
	// change set was already counted by an earlier build.
	OutcomeAlreadyBumped
	// OutcomeBumped means the patch version was incremented.
	OutcomeBumped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNoChanges:
		return "no-changes"
	case OutcomeAlreadyBumped:
		return "already-bumped"
	case OutcomeBumped:
		return "bumped"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Proposal is the record ProposeNext wants committed.
type Proposal struct {
	Record  *models.FirmwareRecord
	Outcome Outcome
	// Changed is the filtered change set that drove the decision.
	Changed []string
}

// Options configures a Ledger.
type Options struct {
	// Dir is the project directory. CurrentFile and BackupFile are relative to it.
	Dir         string
	CurrentFile string
	BackupFile  string

	VCS    vcs.Provider
	Logger *logging.Logger
	// Now defaults to time.Now.
	Now func() time.Time

	// Board and ToolchainEnv are stamped on every refreshed record.
	Board        string
	ToolchainEnv string
}

// Ledger reads and writes the current/backup record pair.
type Ledger struct {
	opts Options
}

// New returns a Ledger with defaults applied.
func New(opts Options) *Ledger {
	if opts.CurrentFile == "" {
		opts.CurrentFile = constants.DefaultLedgerFile
	}
	if opts.BackupFile == "" {
		opts.BackupFile = constants.DefaultLedgerBackupFile
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	if opts.VCS == nil {
		opts.VCS = vcs.Static{}
	}
	return &Ledger{opts: opts}
}

// CurrentPath is the on-disk path of the current record.
func (l *Ledger) CurrentPath() string {
	return filepath.Join(l.opts.Dir, filepath.FromSlash(l.opts.CurrentFile))
}

// BackupPath is the on-disk path of the backup record.
func (l *Ledger) BackupPath() string {
	return filepath.Join(l.opts.Dir, filepath.FromSlash(l.opts.BackupFile))
}

// LoadOrInit reads the current record. When no ledger exists yet it returns a
// fresh 1.0.0 record stamped with the build date and the latest tag. The
// returned record is not written; call Commit.
func (l *Ledger) LoadOrInit(ctx context.Context) (*models.FirmwareRecord, error) {
	data, err := os.ReadFile(l.CurrentPath())
	if errors.Is(err, os.ErrNotExist) {
		rec := models.NewFirmwareRecord(l.opts.Now())
		rec.GitVersion = l.opts.VCS.LatestTagVersion(ctx)
		l.opts.Logger.Infof("No firmware ledger at %s, starting at %s", l.CurrentPath(), rec.Version)
		return rec, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read firmware ledger %s: %w", l.CurrentPath(), err)
	}
	return Decode(data, l.CurrentPath())
}

// Decode parses a ledger file. source names the file in errors.
func Decode(data []byte, source string) (*models.FirmwareRecord, error) {
	var rec models.FirmwareRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		if errors.Is(err, models.ErrMalformedVersion) {
			return nil, fmt.Errorf("%s: %w", source, err)
		}
		return nil, fmt.Errorf("failed to parse firmware ledger %s: %w", source, err)
	}
	return &rec, nil
}

// Encode renders rec the way it is stored: 4-space indent, fixed key order.
func Encode(rec *models.FirmwareRecord) ([]byte, error) {
	data, err := json.MarshalIndent(rec, "", "    ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal firmware record: %w", err)
	}
	return append(data, '\n'), nil
}

// FilterChanged drops build artifacts and the backup file from a pending
// change list. The current ledger file always counts as a change.
func (l *Ledger) FilterChanged(all []string) []string {
	var out []string
	for _, f := range all {
		switch {
		case strings.Contains(f, ".bin"):
		case l.isCurrent(f):
			out = append(out, f)
		case l.isBackup(f):
		default:
			out = append(out, f)
		}
	}
	return out
}

func (l *Ledger) isCurrent(f string) bool { return samePath(f, l.opts.CurrentFile) }
func (l *Ledger) isBackup(f string) bool  { return samePath(f, l.opts.BackupFile) }

// samePath matches a VCS-reported path against a project-relative ledger path.
// VCS paths may be relative to a parent directory, so a suffix match on a
// path boundary counts.
func samePath(reported, ledgerFile string) bool {
	r := filepath.ToSlash(strings.TrimSpace(reported))
	want := filepath.ToSlash(ledgerFile)
	return r == want || strings.HasSuffix(r, "/"+want)
}

// ProposeNext decides the next record from current and the raw list of
// pending files. Only OutcomeBumped changes the version; every outcome
// refreshes the build date, provenance, board and toolchain env.
func (l *Ledger) ProposeNext(ctx context.Context, current *models.FirmwareRecord, pending []string) Proposal {
	next := current.Clone()
	changed := l.FilterChanged(pending)

	outcome := OutcomeNoChanges
	if len(changed) > 0 {
		outcome = OutcomeBumped
		for _, f := range pending {
			if l.isBackup(f) {
				outcome = OutcomeAlreadyBumped
				break
			}
		}
	}

	switch outcome {
	case OutcomeNoChanges:
		l.opts.Logger.Infof("No pending changes to commit, firmware version stays %s", next.Version)
	case OutcomeAlreadyBumped:
		l.opts.Logger.Infof("Firmware info has already been updated, version stays %s", next.Version)
	case OutcomeBumped:
		l.opts.Logger.Infof("Pending changes to commit, firmware version goes from %s to %s", current.Version, current.Version.Increment())
		for i, f := range changed {
			l.opts.Logger.Infof("  Changed file[%02d]: %s", i+1, f)
		}
		next.Version = current.Version.Increment()
	}

	l.Refresh(ctx, next)
	return Proposal{Record: next, Outcome: outcome, Changed: changed}
}

// Refresh stamps rec with the build date, VCS provenance, board and
// toolchain env.
func (l *Ledger) Refresh(ctx context.Context, rec *models.FirmwareRecord) {
	rec.BuildDate = models.FormatBuildDate(l.opts.Now())
	l.RefreshProvenance(ctx, rec)
}

// RefreshProvenance is Refresh without touching the build date. The
// post-build pass uses it so the packaged record keeps its pre-build date.
func (l *Ledger) RefreshProvenance(ctx context.Context, rec *models.FirmwareRecord) {
	info := vcs.Snapshot(ctx, l.opts.VCS)
	rec.GitProject = info.Project
	rec.GitVersion = info.Tag
	rec.GitBranch = info.Branch
	rec.GitCommit = info.Commit
	rec.GitOrigin = info.Origin
	rec.Board = l.opts.Board
	rec.ToolchainEnv = models.NormalizeToolchainEnv(l.opts.ToolchainEnv)
}

// Commit persists rec as the current record. The new content is written to a
// temp file first; only then is the old backup deleted, current renamed to
// backup, and the temp file renamed to current. A failure before the final
// renames leaves the previous ledger untouched.
func (l *Ledger) Commit(rec *models.FirmwareRecord) error {
	current, backup := l.CurrentPath(), l.BackupPath()

	data, err := Encode(rec)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(current), 0755); err != nil {
		return fmt.Errorf("failed to create ledger directory: %w", err)
	}

	tmp := current + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write ledger temp file %s: %w", tmp, err)
	}

	hadCurrent := fileExists(current)
	if err := os.MkdirAll(filepath.Dir(backup), 0755); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to create backup directory: %w", err)
	}
	if err := os.Remove(backup); err != nil && !errors.Is(err, os.ErrNotExist) {
		os.Remove(tmp)
		return fmt.Errorf("failed to remove ledger backup %s: %w", backup, err)
	}
	if hadCurrent {
		if err := os.Rename(current, backup); err != nil {
			os.Remove(tmp)
			return fmt.Errorf("failed to rotate ledger %s to %s: %w", current, backup, err)
		}
	} else if err := os.WriteFile(backup, data, 0644); err != nil {
		// First build: seed the backup so the pair always exists together.
		os.Remove(tmp)
		return fmt.Errorf("failed to write ledger backup %s: %w", backup, err)
	}
	if err := os.Rename(tmp, current); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to rename ledger temp file: %w", err)
	}
	return nil
}

// LoadBackup reads the backup record, if any.
func (l *Ledger) LoadBackup() (*models.FirmwareRecord, error) {
	data, err := os.ReadFile(l.BackupPath())
	if err != nil {
		return nil, err
	}
	return Decode(data, l.BackupPath())
}

// CompareWithTag compares rec's version with the latest VCS tag. It returns
// -1, 0 or 1 as rec is behind, equal to or ahead of the tag; ok is false when
// there is no tag or it is not a version. A ledger behind its tag is logged.
func (l *Ledger) CompareWithTag(rec *models.FirmwareRecord) (cmp int, ok bool) {
	tag := strings.TrimSpace(rec.GitVersion)
	if tag == "" {
		return 0, false
	}
	tagged, err := semver.ParseTolerant(tag)
	if err != nil {
		l.opts.Logger.Debugf("Tag %q is not a version: %v", tag, err)
		return 0, false
	}
	ledger := semver.Version{
		Major: uint64(rec.Version[0]),
		Minor: uint64(rec.Version[1]),
		Patch: uint64(rec.Version[2]),
	}
	cmp = ledger.Compare(tagged)
	if cmp < 0 {
		l.opts.Logger.Warnf("Firmware version %s is behind the latest tag %s", rec.Version, tag)
	}
	return cmp, true
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
