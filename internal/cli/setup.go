package cli

import (
	"fmt"
	nethttp "net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rescale/fwrelease/internal/config"
	"github.com/rescale/fwrelease/internal/envview"
	"github.com/rescale/fwrelease/internal/hooks"
	fwhttp "github.com/rescale/fwrelease/internal/http"
	"github.com/rescale/fwrelease/internal/notify"
	"github.com/rescale/fwrelease/internal/progress"
	"github.com/rescale/fwrelease/internal/publish"
	"github.com/rescale/fwrelease/internal/vcs"
)

// session is the per-invocation state shared by the hook commands.
type session struct {
	dir  string
	cfg  *config.Config
	deps hooks.Deps
}

// newSession resolves the project directory and loads its settings. When
// --project-dir is not given and view carries PROJECT_DIR, that is used.
func newSession(cmd *cobra.Command, view envview.View) (*session, error) {
	if projectDir == "" && view != nil {
		if dir := strings.TrimSpace(envview.GetString(view, "PROJECT_DIR", "")); dir != "" {
			projectDir = dir
		}
	}
	dir, err := resolveProjectDir()
	if err != nil {
		return nil, err
	}
	cfg, err := loadConfig(dir)
	if err != nil {
		return nil, err
	}

	log := GetLogger()
	s := &session{
		dir: dir,
		cfg: cfg,
		deps: hooks.Deps{
			ProjectDir: dir,
			Config:     cfg,
			VCS:        vcs.NewGit(dir, log),
			Logger:     log,
			In:         cmd.InOrStdin(),
			Out:        cmd.ErrOrStderr(),
			Notifier:   notify.NewNotifier(cfg.Release.Notify, log),
			Reporter:   progress.NewReporter(),
		},
	}
	return s, nil
}

// httpClient builds the proxy-aware client and hands a retrying wrapper to
// the bundle downloader.
func (s *session) httpClient() (*nethttp.Client, error) {
	client, err := fwhttp.NewClient(s.cfg.Network, s.deps.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to configure HTTP client: %w", err)
	}
	s.deps.HTTPClient = fwhttp.NewRetryableClient(client, s.deps.Logger)
	return client, nil
}

// publisher returns the configured publisher, sharing client.
func (s *session) publisher(client *nethttp.Client) (publish.Publisher, error) {
	p, err := publish.New(s.cfg.Publish, publish.Options{
		HTTPClient: client,
		Network:    s.cfg.Network,
		Logger:     s.deps.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create %s publisher: %w", s.cfg.Publish.Target, err)
	}
	s.deps.Publisher = p
	return p, nil
}

// loadView reads the environment dump at path. An empty path is an error
// because the hooks cannot resolve anything without it.
func loadView(path string) (*envview.MapView, error) {
	if path == "" {
		return nil, fmt.Errorf("--env is required")
	}
	return envview.Load(path)
}
