package http

import (
	"crypto/tls"
	"fmt"
	"net"
	nethttp "net/http"
	"net/url"
	"os"
	"strings"

	ntlmssp "github.com/Azure/go-ntlmssp"
	"golang.org/x/net/http/httpproxy"

	"github.com/rescale/fwrelease/internal/config"
	"github.com/rescale/fwrelease/internal/constants"
	"github.com/rescale/fwrelease/internal/logging"
)

// ProxyPasswordEnv supplies the proxy password when fwrelease.ini leaves it
// out, which is the usual case on shared build machines.
const ProxyPasswordEnv = "FWRELEASE_PROXY_PASSWORD"

// ConfigureHTTPClient builds a client whose transport follows the proxy
// settings in cfg. In NTLM mode the transport is wrapped in an NTLM
// negotiator and is no longer an *http.Transport.
func ConfigureHTTPClient(cfg config.NetworkConfig, logger *logging.Logger) (*nethttp.Client, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	transport := newTransport()

	mode := strings.ToLower(cfg.ProxyMode)
	switch mode {
	case config.ProxyModeNone, "":
		transport.Proxy = nil

	case config.ProxyModeSystem:
		transport.Proxy = nethttp.ProxyFromEnvironment

	case config.ProxyModeBasic, config.ProxyModeNTLM:
		if cfg.ProxyHost == "" {
			logger.Warnf("Proxy mode is %s but proxy_host is missing; connecting directly", mode)
			transport.Proxy = nil
			break
		}
		if cfg.ProxyPassword == "" {
			cfg.ProxyPassword = os.Getenv(ProxyPasswordEnv)
		}
		if cfg.ProxyUser != "" && cfg.ProxyPassword == "" {
			logger.Warnf("Proxy user configured but no password (set %s); proxy auth disabled", ProxyPasswordEnv)
		}
		transport.Proxy = proxyFuncWithBypass(buildProxyURL(cfg), cfg.NoProxy, logger)

		if mode == config.ProxyModeNTLM {
			return &nethttp.Client{
				Transport: ntlmssp.Negotiator{RoundTripper: transport},
			}, nil
		}

	default:
		return nil, fmt.Errorf("unsupported proxy mode: %s", cfg.ProxyMode)
	}

	return &nethttp.Client{Transport: transport}, nil
}

func newTransport() *nethttp.Transport {
	return &nethttp.Transport{
		DialContext: (&net.Dialer{
			Timeout:   constants.HTTPDialTimeout,
			KeepAlive: constants.HTTPDialKeepAlive,
		}).DialContext,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		MaxIdleConns:          16,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       constants.HTTPIdleConnTimeout,
		TLSHandshakeTimeout:   constants.HTTPTLSHandshakeTimeout,
		ExpectContinueTimeout: constants.HTTPExpectContinueTimeout,
	}
}

// buildProxyURL constructs a proxy URL from config
func buildProxyURL(cfg config.NetworkConfig) *url.URL {
	port := cfg.ProxyPort
	if port == 0 {
		port = 8080
	}

	proxyURL := &url.URL{
		Scheme: "http",
		Host:   fmt.Sprintf("%s:%d", cfg.ProxyHost, port),
	}

	// Credentials are embedded only when both halves are known; an empty
	// password makes some proxies reject the request outright.
	if cfg.ProxyUser != "" && cfg.ProxyPassword != "" {
		proxyURL.User = url.UserPassword(cfg.ProxyUser, cfg.ProxyPassword)
	}
	return proxyURL
}

// proxyFuncWithBypass returns a proxy function that respects the NoProxy bypass list.
// If noProxy is empty, behaves identically to http.ProxyURL.
func proxyFuncWithBypass(proxyURL *url.URL, noProxy string, logger *logging.Logger) func(*nethttp.Request) (*url.URL, error) {
	if noProxy == "" {
		return nethttp.ProxyURL(proxyURL)
	}
	cfg := httpproxy.Config{
		HTTPProxy:  proxyURL.String(),
		HTTPSProxy: proxyURL.String(),
		NoProxy:    noProxy,
	}
	proxyFunc := cfg.ProxyFunc()
	return func(req *nethttp.Request) (*url.URL, error) {
		result, err := proxyFunc(req.URL)
		if result == nil {
			logger.Debugf("Proxy bypass: %s (direct connection)", req.URL.Host)
		} else {
			logger.Debugf("Proxied: %s → %s", req.URL.Host, result.Host)
		}
		return result, err
	}
}

// NeedsProxyPassword reports whether an authenticating proxy mode has a
// user but no password from either the config or the environment.
func NeedsProxyPassword(cfg config.NetworkConfig) bool {
	mode := strings.ToLower(cfg.ProxyMode)
	if mode != config.ProxyModeBasic && mode != config.ProxyModeNTLM {
		return false
	}
	return cfg.ProxyUser != "" && cfg.ProxyPassword == "" && os.Getenv(ProxyPasswordEnv) == ""
}
