package hooks

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rescale/fwrelease/internal/envview"
	"github.com/rescale/fwrelease/internal/packager"
	"github.com/rescale/fwrelease/internal/publish"
	"github.com/rescale/fwrelease/internal/template"
)

// PostBuildOptions control the post-build pass.
type PostBuildOptions struct {
	// Publish uploads the archive with Deps.Publisher.
	Publish bool
}

// PostBuildResult reports the packaged release.
type PostBuildResult struct {
	Release *packager.Release
	// Location is where the archive was published; empty when not published.
	Location string
	// LedgerUpdated is set when the ELF digest or provenance changed the
	// stored record.
	LedgerUpdated bool
}

// PostBuild packages the release and records the ELF digest in the ledger.
// The ledger is only committed once the archive exists, so a failed
// packaging pass leaves it untouched.
func PostBuild(ctx context.Context, d Deps, view envview.View, opts PostBuildOptions) (*PostBuildResult, error) {
	d.defaults()

	l := Ledger(d, view)
	loaded, err := l.LoadOrInit(ctx)
	if err != nil {
		return nil, err
	}
	rec := loaded.Clone()
	l.RefreshProvenance(ctx, rec)

	if elf, ok := packager.ElfPath(view); ok {
		digest, err := fileSHA256(elf)
		if err != nil {
			return nil, fmt.Errorf("failed to hash %s: %w", elf, err)
		}
		rec.ContentDigest = digest
	} else {
		d.Logger.Warnf("No firmware.elf under BUILD_DIR; the ledger keeps its previous digest")
	}

	res := &PostBuildResult{}
	cfg := d.Config
	pkg := packager.New(packager.Options{
		ProjectDir:  d.ProjectDir,
		ReleaseDir:  cfg.Release.Dir,
		LedgerFile:  cfg.Ledger.File,
		Bundle:      cfg.Release.Bundle,
		ProjectName: cfg.Release.ProjectName,
		Exclude:     cfg.Release.Exclude,
		Resolver: template.Options{
			Denylist: cfg.Resolver.Denylist,
			Strict:   cfg.Resolver.Strict,
			MaxDepth: cfg.Resolver.MaxDepth,
		},
		HTTPClient: d.HTTPClient,
		Reporter:   d.Reporter,
		Logger:     d.Logger,
	})

	tag := rec.FullTag()
	res.Release, err = pkg.Package(ctx, rec, view)
	if err != nil {
		d.Notifier.ReleaseFailed(tag, err)
		return nil, err
	}
	if *rec != *loaded {
		if err := l.Commit(rec); err != nil {
			return nil, fmt.Errorf("failed to commit firmware ledger: %w", err)
		}
		res.LedgerUpdated = true
	}
	d.Logger.Infof("Release %s written to %s", tag, res.Release.ArchivePath)
	d.Notifier.ReleaseReady(tag, res.Release.ArchivePath)

	if !opts.Publish {
		return res, nil
	}
	if d.Publisher == nil {
		d.Logger.Warnf("Publishing requested but no publisher is configured")
		return res, nil
	}

	res.Location, err = d.Publisher.Publish(ctx, res.Release.ArchivePath)
	if errors.Is(err, publish.ErrDisabled) {
		d.Logger.Warnf("Publishing requested but [publish] target is none")
		return res, nil
	}
	if err != nil {
		d.Notifier.ReleaseFailed(tag, err)
		return res, fmt.Errorf("release packaged but not published: %w", err)
	}
	d.Logger.Infof("Published %s to %s", tag, res.Location)
	d.Notifier.Published(tag, res.Location)
	return res, nil
}

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
