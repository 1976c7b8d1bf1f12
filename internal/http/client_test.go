package http

import (
	"context"
	nethttp "net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/rescale/fwrelease/internal/config"
	"github.com/rescale/fwrelease/internal/logging"
)

func newTestRetryClient(t *testing.T) *retryablehttp.Client {
	t.Helper()
	base, err := NewClient(config.NetworkConfig{ProxyMode: config.ProxyModeNone}, logging.Nop())
	if err != nil {
		t.Fatal(err)
	}
	rc := NewRetryableClient(base, logging.Nop())
	rc.RetryWaitMin = time.Millisecond
	rc.RetryWaitMax = 5 * time.Millisecond
	return rc
}

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Write([]byte("PK-bundle"))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "cache", "usbUpdateInfo.zip")
	if err := Download(context.Background(), newTestRetryClient(t), srv.URL+"/usbUpdateInfo.zip", dest, nil); err != nil {
		t.Fatalf("Download: %v", err)
	}
	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "PK-bundle" {
		t.Errorf("downloaded %q", data)
	}
	if _, err := os.Stat(dest + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary file left behind")
	}
}

func TestDownload_RetriesServerErrors(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(nethttp.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "bundle.zip")
	if err := Download(context.Background(), newTestRetryClient(t), srv.URL, dest, nil); err != nil {
		t.Fatalf("Download: %v", err)
	}
	if got := atomic.LoadInt32(&hits); got != 3 {
		t.Errorf("expected 3 requests, got %d", got)
	}
}

func TestDownload_NotFoundKeepsExistingFile(t *testing.T) {
	srv := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		nethttp.NotFound(w, r)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "bundle.zip")
	if err := os.WriteFile(dest, []byte("previous"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := Download(context.Background(), newTestRetryClient(t), srv.URL, dest, nil); err == nil {
		t.Fatal("expected error for 404")
	}
	data, _ := os.ReadFile(dest)
	if string(data) != "previous" {
		t.Errorf("existing file was replaced: %q", data)
	}
}

func TestProxyActive(t *testing.T) {
	t.Setenv("HTTP_PROXY", "")
	t.Setenv("HTTPS_PROXY", "")
	t.Setenv("http_proxy", "")
	t.Setenv("https_proxy", "")

	if proxyActive(config.NetworkConfig{ProxyMode: config.ProxyModeSystem}) {
		t.Error("system mode without proxy variables should be inactive")
	}
	t.Setenv("HTTPS_PROXY", "http://proxy.corp:3128")
	if !proxyActive(config.NetworkConfig{ProxyMode: config.ProxyModeSystem}) {
		t.Error("system mode with HTTPS_PROXY should be active")
	}
	if proxyActive(config.NetworkConfig{ProxyMode: config.ProxyModeNone}) {
		t.Error("no-proxy mode is never active")
	}
	if !proxyActive(config.NetworkConfig{ProxyMode: config.ProxyModeBasic, ProxyHost: "proxy.corp"}) {
		t.Error("basic mode with a host is active")
	}
}
