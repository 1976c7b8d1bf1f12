// Package http builds the outbound HTTP clients used to fetch template
// bundles and publish release archives.
package http

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	nethttp "net/http"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/net/http2"

	"github.com/rescale/fwrelease/internal/config"
	"github.com/rescale/fwrelease/internal/constants"
	"github.com/rescale/fwrelease/internal/logging"
	"github.com/rescale/fwrelease/internal/progress"
)

// NewClient creates the client shared by bundle downloads and publishers.
//
//   - Proxy settings come from cfg (see ConfigureHTTPClient)
//   - HTTP/2 is negotiated unless disabled by cfg, the DISABLE_HTTP2=true
//     environment variable, or an active proxy
//   - No overall timeout; callers bound each operation with a context
func NewClient(cfg config.NetworkConfig, logger *logging.Logger) (*nethttp.Client, error) {
	client, err := ConfigureHTTPClient(cfg, logger)
	if err != nil {
		return nil, err
	}

	tr, ok := client.Transport.(*nethttp.Transport)
	if !ok {
		// NTLM wraps the transport; leave it as configured.
		return client, nil
	}

	// Release archives are already compressed.
	tr.DisableCompression = true
	tr.ForceAttemptHTTP2 = true
	_ = http2.ConfigureTransport(tr)

	if cfg.DisableHTTP2 || os.Getenv("DISABLE_HTTP2") == "true" || (proxyActive(cfg) && os.Getenv("FORCE_HTTP2") != "true") {
		tr.ForceAttemptHTTP2 = false
		tr.TLSNextProto = make(map[string]func(string, *tls.Conn) nethttp.RoundTripper)
	}

	client.Transport = tr
	client.Timeout = 0
	return client, nil
}

// proxyActive trusts the configured mode first and only consults the
// environment in system mode.
func proxyActive(cfg config.NetworkConfig) bool {
	switch cfg.ProxyMode {
	case config.ProxyModeNone, "":
		return false
	case config.ProxyModeSystem:
		return os.Getenv("HTTP_PROXY") != "" || os.Getenv("HTTPS_PROXY") != "" ||
			os.Getenv("http_proxy") != "" || os.Getenv("https_proxy") != ""
	default:
		return cfg.ProxyHost != ""
	}
}

// NewRetryableClient wraps base with retryablehttp, logging retries through logger.
func NewRetryableClient(base *nethttp.Client, logger *logging.Logger) *retryablehttp.Client {
	if logger == nil {
		logger = logging.Nop()
	}
	rc := retryablehttp.NewClient()
	if base != nil {
		rc.HTTPClient = base
	}
	rc.RetryMax = constants.MaxRetries
	rc.RetryWaitMin = constants.RetryInitialDelay
	rc.RetryWaitMax = constants.RetryMaxDelay
	rc.Logger = logging.RetryLogger{L: logger}
	return rc
}

// Download fetches url into dest, replacing any existing file only once the
// body has been read completely.
func Download(ctx context.Context, client *retryablehttp.Client, url, dest string, reporter progress.Reporter) error {
	if reporter == nil {
		reporter = progress.NewNoOpProgress()
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, nethttp.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request for %s: %w", url, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != nethttp.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("failed to download %s: status %d: %s", url, resp.StatusCode, string(body))
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", dest, err)
	}
	tmpPath := dest + ".tmp"
	out, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", tmpPath, err)
	}

	reporter.Start(resp.ContentLength, "Downloading "+filepath.Base(dest))
	_, copyErr := io.Copy(out, progress.NewProgressReader(resp.Body, 0, reporter))
	closeErr := out.Close()
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		os.Remove(tmpPath)
		reporter.Error(copyErr)
		return fmt.Errorf("failed to download %s: %w", url, copyErr)
	}
	reporter.Finish()

	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save %s: %w", dest, err)
	}
	return nil
}
