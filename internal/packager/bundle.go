package packager

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/rescale/fwrelease/internal/constants"
	fwhttp "github.com/rescale/fwrelease/internal/http"
	"github.com/rescale/fwrelease/internal/localfs"
	"github.com/rescale/fwrelease/internal/progress"
	"github.com/rescale/fwrelease/internal/util/archive"
	"github.com/rescale/fwrelease/internal/validation"
)

// bundleCacheDir holds downloaded template bundles under the release dir.
const bundleCacheDir = ".bundle"

// IsRemote reports whether bundle names an http(s) URL.
func IsRemote(bundle string) bool {
	lower := strings.ToLower(strings.TrimSpace(bundle))
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// locateBundle returns the local zip to seed the release with, downloading
// it first when configured as a URL. An empty path with a nil error means
// no bundle is configured and none of the candidates exist.
func (p *Packager) locateBundle(ctx context.Context) (string, error) {
	bundle := strings.TrimSpace(p.opts.Bundle)
	if bundle == "" {
		for _, c := range p.opts.BundleCandidates {
			candidate := p.abs(c)
			if localfs.IsRegularFile(candidate) {
				return candidate, nil
			}
		}
		return "", nil
	}

	if !IsRemote(bundle) {
		local := p.abs(bundle)
		if !localfs.IsRegularFile(local) {
			return "", fmt.Errorf("%w: template bundle %s", ErrMissingArtifact, local)
		}
		return local, nil
	}

	u, err := url.Parse(bundle)
	if err != nil {
		return "", fmt.Errorf("invalid bundle URL %s: %w", bundle, err)
	}
	name := path.Base(u.Path)
	if err := validation.ValidateFilename(name); err != nil {
		name = "bundle.zip"
	}
	dest := filepath.Join(p.abs(p.opts.ReleaseDir), bundleCacheDir, name)

	client := p.opts.HTTPClient
	if client == nil {
		client = fwhttp.NewRetryableClient(nil, p.logger)
	}
	reporter := p.opts.Reporter
	if reporter == nil {
		reporter = progress.NewNoOpProgress()
	}

	dctx, cancel := context.WithTimeout(ctx, constants.BundleDownloadTimeout)
	defer cancel()
	p.logger.Infof("Downloading template bundle %s", bundle)
	if err := fwhttp.Download(dctx, client, bundle, dest, reporter); err != nil {
		if localfs.IsRegularFile(dest) {
			p.logger.Warnf("Using cached template bundle %s: %v", dest, err)
			return dest, nil
		}
		return "", err
	}
	return dest, nil
}

// extractBundle unpacks the template bundle into outDir.
func (p *Packager) extractBundle(ctx context.Context, outDir string) error {
	bundle, err := p.locateBundle(ctx)
	if err != nil {
		return err
	}
	if bundle == "" {
		p.logger.Warnf("No template bundle found (tried %s); release will only contain bin/ and launchers",
			strings.Join(p.opts.BundleCandidates, ", "))
		return nil
	}
	p.logger.Debugf("Extracting template bundle %s", bundle)
	if err := archive.Extract(bundle, outDir); err != nil {
		return fmt.Errorf("failed to extract template bundle: %w", err)
	}
	return nil
}
