// Package publish uploads finished release archives to shared storage so
// technicians can fetch them without access to the build machine.
package publish

import (
	"context"
	"errors"
	"fmt"
	nethttp "net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rescale/fwrelease/internal/config"
	"github.com/rescale/fwrelease/internal/constants"
	fwhttp "github.com/rescale/fwrelease/internal/http"
	"github.com/rescale/fwrelease/internal/logging"
	"github.com/rescale/fwrelease/internal/util/archive"
)

// ErrDisabled is returned by the publisher of target "none".
var ErrDisabled = errors.New("publishing is disabled (publish target is none)")

// Publisher uploads one release archive and returns where it was stored.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, archivePath string) (string, error)
}

// Options carries the shared collaborators of all publishers.
type Options struct {
	// HTTPClient is used by every target, including the cloud SDKs, so
	// proxy settings apply uniformly. Nil builds one from cfg.
	HTTPClient *nethttp.Client
	// Network is used when HTTPClient is nil.
	Network config.NetworkConfig
	Logger  *logging.Logger
	// Retry overrides fwhttp.DefaultRetryConfig for the cloud targets.
	Retry *fwhttp.RetryConfig
}

// New returns the publisher selected by cfg.Target.
func New(cfg config.PublishConfig, opts Options) (Publisher, error) {
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	if cfg.Target == "" || cfg.Target == config.PublishNone {
		return None{}, nil
	}
	if opts.HTTPClient == nil {
		client, err := fwhttp.NewClient(opts.Network, opts.Logger)
		if err != nil {
			return nil, err
		}
		opts.HTTPClient = client
	}

	retry := fwhttp.DefaultRetryConfig()
	if opts.Retry != nil {
		retry = *opts.Retry
	}
	retry.OnRetry = func(attempt int, err error, errType fwhttp.ErrorType) {
		opts.Logger.Warnf("Upload attempt %d failed (%s): %v", attempt, errType, err)
	}

	switch strings.ToLower(cfg.Target) {
	case config.PublishS3:
		return newS3(cfg, opts.HTTPClient, retry, opts.Logger)
	case config.PublishAzure:
		return newAzure(cfg, opts.HTTPClient, retry, opts.Logger)
	case config.PublishHTTP:
		return newHTTP(cfg, fwhttp.NewRetryableClient(opts.HTTPClient, opts.Logger), opts.Logger)
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownPublishTarget, cfg.Target)
	}
}

// None is the publisher for target "none".
type None struct{}

func (None) Name() string { return config.PublishNone }

func (None) Publish(ctx context.Context, archivePath string) (string, error) {
	return "", ErrDisabled
}

// ObjectKey is the storage key for an archive: <prefix>/<env>/<name>, where
// env is the archive's parent folder.
func ObjectKey(prefix, archivePath string) string {
	env := filepath.Base(filepath.Dir(archivePath))
	name := filepath.Base(archivePath)
	prefix = strings.Trim(strings.ReplaceAll(prefix, `\`, "/"), "/")
	if env == "." || env == string(filepath.Separator) || env == "" {
		return path.Join(prefix, name)
	}
	return path.Join(prefix, env, name)
}

// prepare validates the archive and bounds the upload by PublishTimeout.
func prepare(ctx context.Context, archivePath string) (context.Context, context.CancelFunc, int64, error) {
	if err := archive.Validate(archivePath); err != nil {
		return nil, nil, 0, err
	}
	info, err := os.Stat(archivePath)
	if err != nil {
		return nil, nil, 0, err
	}
	ctx, cancel := context.WithTimeout(ctx, constants.PublishTimeout)
	return ctx, cancel, info.Size(), nil
}
