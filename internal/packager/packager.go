// Package packager assembles a release bundle for one build and zips it.
//
// A release is laid out as
//
//	<release>/v<tag>/            template bundle contents, launchers
//	<release>/v<tag>/bin/        record, firmware image, staged tools, firmware.md5
//
// and then compressed to <release>/<env>/<project>_v<tag>.zip. The v<tag>
// directory is removed afterwards and older archives for the same env are
// pruned.
package packager

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/rescale/fwrelease/internal/constants"
	"github.com/rescale/fwrelease/internal/diskspace"
	"github.com/rescale/fwrelease/internal/envview"
	"github.com/rescale/fwrelease/internal/ledger"
	"github.com/rescale/fwrelease/internal/localfs"
	"github.com/rescale/fwrelease/internal/logging"
	"github.com/rescale/fwrelease/internal/models"
	"github.com/rescale/fwrelease/internal/progress"
	"github.com/rescale/fwrelease/internal/template"
	"github.com/rescale/fwrelease/internal/uploader"
	"github.com/rescale/fwrelease/internal/util/archive"
)

// ErrMissingArtifact is returned when a file the release needs is absent.
var ErrMissingArtifact = errors.New("missing release artifact")

// Options configures a Packager. Relative paths are taken from ProjectDir.
type Options struct {
	ProjectDir string
	ReleaseDir string
	// LedgerFile names the record written into bin/, so the release carries
	// its own metadata.
	LedgerFile string

	// Bundle is a template zip path or http(s) URL. Empty searches
	// BundleCandidates and continues without a bundle if none exists.
	Bundle           string
	BundleCandidates []string

	// ProjectName prefixes the archive name; empty uses the record's
	// repository name.
	ProjectName string
	// Exclude holds glob patterns of file names left out of the archive.
	Exclude []string

	// Resolver carries strictness, denylist and depth. StagingDir is set
	// by the packager.
	Resolver template.Options

	HTTPClient *retryablehttp.Client
	Reporter   progress.Reporter
	Logger     *logging.Logger
}

// Release describes a packaged build.
type Release struct {
	ArchivePath string
	Tag         string
	// Digest is the MD5 of the firmware image as written to bin/firmware.md5.
	Digest string
	// Adapter names the uploader adapter that rewrote the command.
	Adapter string
	// Command is the upload command embedded in the launchers, before
	// interpreter substitution.
	Command string
	// Staged lists the files the upload command pulled into bin/.
	Staged []template.StagedFile
	// Pruned lists older archives removed from the env folder.
	Pruned []string
}

// Packager builds releases.
type Packager struct {
	opts   Options
	logger *logging.Logger
}

// New returns a packager. Zero-valued options get defaults.
func New(opts Options) *Packager {
	if opts.ReleaseDir == "" {
		opts.ReleaseDir = constants.DefaultReleaseDir
	}
	if opts.LedgerFile == "" {
		opts.LedgerFile = constants.DefaultLedgerFile
	}
	if opts.BundleCandidates == nil {
		opts.BundleCandidates = constants.DefaultBundleCandidates
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	return &Packager{opts: opts, logger: logger}
}

func (p *Packager) abs(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(p.opts.ProjectDir, path)
}

// OutputDir is the working directory for the release of tag.
func (p *Packager) OutputDir(tag string) string {
	return filepath.Join(p.abs(p.opts.ReleaseDir), "v"+tag)
}

// ArchiveDir is the per-env folder holding finished archives.
func (p *Packager) ArchiveDir(view envview.View) string {
	env := strings.TrimSpace(envview.GetString(view, "PIOENV", ""))
	if env == "" {
		env = constants.UnknownToolchainEnv
	}
	return filepath.Join(p.abs(p.opts.ReleaseDir), env)
}

// ArchiveName is <project>_v<tag>.zip.
func (p *Packager) ArchiveName(rec *models.FirmwareRecord) string {
	project := strings.TrimSpace(p.opts.ProjectName)
	if project == "" {
		project = strings.TrimSpace(rec.GitProject)
	}
	if project == "" {
		project = constants.DefaultProjectName
	}
	return project + "_v" + rec.FullTag() + ".zip"
}

// Package builds the release for rec from the build environment view.
// Failures leave the v<tag> directory behind; the next call removes it.
func (p *Packager) Package(ctx context.Context, rec *models.FirmwareRecord, view envview.View) (*Release, error) {
	tag := rec.FullTag()
	outDir := p.OutputDir(tag)
	binDir := filepath.Join(outDir, constants.BinDirName)

	if err := os.RemoveAll(outDir); err != nil {
		return nil, &archive.Error{Op: "remove", Path: outDir, Err: err}
	}

	p.logger.Infof(">> Moving files to release folder %s", outDir)
	if err := p.extractBundle(ctx, outDir); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(binDir, 0755); err != nil {
		return nil, &archive.Error{Op: "mkdir", Path: binDir, Err: err}
	}
	if err := p.writeRecord(rec, binDir); err != nil {
		return nil, err
	}
	if err := p.copyEssentials(view, binDir); err != nil {
		return nil, err
	}

	rel := &Release{Tag: tag}

	resolverOpts := p.opts.Resolver
	resolverOpts.StagingDir = binDir
	staging := template.New(view, resolverOpts)

	res, err := staging.ResolveKey("UPLOADCMD")
	if err != nil {
		return nil, fmt.Errorf("failed to resolve UPLOADCMD: %w", err)
	}
	for _, token := range res.Unresolved {
		p.logger.Warnf("UPLOADCMD: %s left unresolved", token)
	}
	rel.Staged, err = template.Materialize(res.Copies)
	if err != nil {
		return nil, &archive.Error{Op: "stage", Path: binDir, Err: err}
	}
	for _, s := range rel.Staged {
		if s.Staged {
			p.logger.Debugf("Staged %s", s.Source)
		}
	}

	firmware, err := staging.DefaultFirmwarePath()
	if err != nil {
		return nil, fmt.Errorf("%w: firmware image: %v", ErrMissingArtifact, err)
	}
	rel.Digest, err = writeDigest(firmware, filepath.Join(binDir, constants.DigestFileName))
	if err != nil {
		return nil, err
	}

	adapter := uploader.Select(view)
	rel.Adapter = adapter.Name()
	plainOpts := p.opts.Resolver
	plainOpts.StagingDir = ""
	rc := uploader.RewriteContext{
		View:     view,
		Resolver: template.New(view, plainOpts),
		OutDir:   outDir,
		BinDir:   binDir,
		Logger:   p.logger,
	}
	rel.Command, err = adapter.Rewrite(rc, res.Value)
	if err != nil {
		return nil, fmt.Errorf("%s adapter failed: %w", adapter.Name(), err)
	}
	p.logger.Debugf("Upload command (%s): %s", adapter.Name(), rel.Command)

	if err := writeScripts(outDir, tag, rel.Command); err != nil {
		return nil, err
	}

	p.logger.Infof(">> Zipping everything together")
	archiveDir := p.ArchiveDir(view)
	name := p.ArchiveName(rec)
	rel.ArchivePath = filepath.Join(archiveDir, name)
	if err := checkSpace(outDir, rel.ArchivePath); err != nil {
		return nil, err
	}
	if err := archive.Create(outDir, rel.ArchivePath, archive.CreateOptions{
		Exclude:  p.opts.Exclude,
		Reporter: p.opts.Reporter,
	}); err != nil {
		return nil, err
	}
	if err := os.RemoveAll(outDir); err != nil {
		return nil, &archive.Error{Op: "remove", Path: outDir, Err: err}
	}

	rel.Pruned, err = archive.Prune(archiveDir, name)
	for _, path := range rel.Pruned {
		p.logger.Debugf("Removed old release %s", path)
	}
	if err != nil {
		// The new archive exists; a stale neighbour is not worth failing for.
		p.logger.Warnf("Failed to prune %s: %v", archiveDir, err)
	}
	return rel, nil
}

// writeRecord stores rec in bin/ under the ledger's file name. The record is
// encoded from memory so a release can be built before the ledger is
// committed.
func (p *Packager) writeRecord(rec *models.FirmwareRecord, binDir string) error {
	data, err := ledger.Encode(rec)
	if err != nil {
		return err
	}
	dest := filepath.Join(binDir, filepath.Base(filepath.FromSlash(p.opts.LedgerFile)))
	if err := os.WriteFile(dest, data, 0644); err != nil {
		return &archive.Error{Op: "write", Path: dest, Err: err}
	}
	return nil
}

// copyEssentials copies the objcopy tool and the linked image into bin/.
// Entries that do not exist are skipped, matching a build that produced no
// .elf.
func (p *Packager) copyEssentials(view envview.View, binDir string) error {
	var files []string
	if objcopy := strings.Trim(envview.GetString(view, "OBJCOPY", ""), `"' `); objcopy != "" {
		files = append(files, objcopy)
	}
	if elf, ok := ElfPath(view); ok {
		files = append(files, elf)
	}

	seen := make(map[string]bool)
	for _, f := range files {
		if seen[f] || !localfs.IsRegularFile(f) {
			if !seen[f] {
				p.logger.Debugf("Skipping %s (not a file)", f)
			}
			continue
		}
		seen[f] = true
		if _, err := localfs.CopyInto(f, binDir); err != nil {
			return &archive.Error{Op: "copy", Path: f, Err: err}
		}
	}
	return nil
}

// ElfPath returns $BUILD_DIR/firmware.elf when it exists.
func ElfPath(view envview.View) (string, bool) {
	res, err := template.New(view, template.Options{}).ResolveKey("BUILD_DIR")
	if err != nil {
		return "", false
	}
	dir := strings.Trim(strings.TrimSpace(res.Value), `"'`)
	if dir == "" {
		return "", false
	}
	path := filepath.Join(dir, "firmware.elf")
	if !localfs.IsRegularFile(path) {
		return "", false
	}
	return path, true
}

// writeDigest stores the MD5 of the firmware image with its first letter
// upper-cased, the format existing flashing tools compare against.
func writeDigest(firmware, dest string) (string, error) {
	f, err := os.Open(firmware)
	if err != nil {
		return "", fmt.Errorf("%w: firmware image %s: %v", ErrMissingArtifact, firmware, err)
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", &archive.Error{Op: "read", Path: firmware, Err: err}
	}
	digest := Capitalize(hex.EncodeToString(h.Sum(nil)))
	if err := os.WriteFile(dest, []byte(digest), 0644); err != nil {
		return "", &archive.Error{Op: "write", Path: dest, Err: err}
	}
	return digest, nil
}

// Capitalize upper-cases the first letter and lower-cases the rest.
func Capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}

// checkSpace refuses to start a zip that cannot fit next to the archives
// already in the release folder. The uncompressed tree size bounds the
// archive size.
func checkSpace(srcDir, archivePath string) error {
	if err := os.MkdirAll(filepath.Dir(archivePath), 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(archivePath), err)
	}
	var size int64
	err := localfs.WalkFiles(srcDir, localfs.WalkOptions{IncludeHidden: true}, func(e localfs.FileEntry) error {
		size += e.Size
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to measure %s: %w", srcDir, err)
	}
	return diskspace.CheckAvailableSpace(archivePath, size, diskspace.DefaultSafetyMargin)
}
