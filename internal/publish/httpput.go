package publish

import (
	"context"
	"fmt"
	"io"
	nethttp "net/http"
	"net/url"
	"os"
	"strings"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/rescale/fwrelease/internal/config"
	"github.com/rescale/fwrelease/internal/logging"
	"github.com/rescale/fwrelease/internal/progress"
)

// HTTP uploads archives with PUT <base>/<env>/<name>, authenticated with a
// bearer token read from the environment.
type HTTP struct {
	client   *retryablehttp.Client
	base     *url.URL
	tokenEnv string
	logger   *logging.Logger
}

func newHTTP(cfg config.PublishConfig, client *retryablehttp.Client, logger *logging.Logger) (*HTTP, error) {
	if strings.TrimSpace(cfg.HTTPURL) == "" {
		return nil, config.ErrMissingHTTPURL
	}
	base, err := url.Parse(strings.TrimSpace(cfg.HTTPURL))
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return nil, config.ErrInvalidHTTPURL
	}
	return &HTTP{client: client, base: base, tokenEnv: cfg.HTTPTokenEnv, logger: logger}, nil
}

func (p *HTTP) Name() string { return config.PublishHTTP }

// Target returns the URL archivePath is uploaded to.
func (p *HTTP) Target(archivePath string) string {
	u := *p.base
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + ObjectKey("", archivePath)
	return u.String()
}

// fileBody closes the archive once the transport is done with a request body.
type fileBody struct {
	io.Reader
	f *os.File
}

func (b *fileBody) Close() error { return b.f.Close() }

func (p *HTTP) Publish(ctx context.Context, archivePath string) (string, error) {
	ctx, cancel, size, err := prepare(ctx, archivePath)
	if err != nil {
		return "", err
	}
	defer cancel()

	target := p.Target(archivePath)
	ui := progress.NewTransferUI()
	bar := ui.AddBar(archivePath, target, size)

	// Reopened on each retry so every attempt sends the whole file.
	body := func() (io.Reader, error) {
		f, err := os.Open(archivePath)
		if err != nil {
			return nil, err
		}
		return &fileBody{Reader: bar.ProxyReader(f), f: f}, nil
	}

	err = p.put(ctx, target, body, size)
	bar.Complete(target, err)
	ui.Wait()
	if err != nil {
		return "", err
	}
	p.logger.Debugf("Uploaded %s to %s", archivePath, target)
	return target, nil
}

func (p *HTTP) put(ctx context.Context, target string, body func() (io.Reader, error), size int64) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, nethttp.MethodPut, target, retryablehttp.ReaderFunc(body))
	if err != nil {
		return fmt.Errorf("failed to create request for %s: %w", target, err)
	}
	req.ContentLength = size
	req.Header.Set("Content-Type", "application/zip")
	if p.tokenEnv != "" {
		if token := os.Getenv(p.tokenEnv); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		} else {
			p.logger.Debugf("%s is not set; uploading without a token", p.tokenEnv)
		}
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to upload to %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("upload to %s rejected: status %d: %s", target, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}
