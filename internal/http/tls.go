package http

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	nethttp "net/http"
	"os"

	ntlmssp "github.com/Azure/go-ntlmssp"
	"golang.org/x/net/http2"
)

// ErrNoCertificates is returned when a CA bundle holds no PEM certificates.
var ErrNoCertificates = errors.New("no certificates found in CA bundle")

// WithCABundle returns a copy of client that trusts the PEM certificates in
// path on top of the system pool. The proxy and NTLM settings of client are
// kept; client itself is not modified.
func WithCABundle(client *nethttp.Client, path string) (*nethttp.Client, error) {
	pemCerts, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA bundle: %w", err)
	}
	pool, err := x509.SystemCertPool()
	if err != nil || pool == nil {
		pool = x509.NewCertPool()
	}
	if !pool.AppendCertsFromPEM(pemCerts) {
		return nil, fmt.Errorf("%w: %s", ErrNoCertificates, path)
	}

	out := &nethttp.Client{}
	if client != nil {
		*out = *client
	}
	switch t := out.Transport.(type) {
	case nil:
		out.Transport = withRootCAs(newTransport(), pool)
	case *nethttp.Transport:
		out.Transport = withRootCAs(t, pool)
	case ntlmssp.Negotiator:
		tr, ok := t.RoundTripper.(*nethttp.Transport)
		if !ok {
			return nil, fmt.Errorf("cannot add a CA bundle to NTLM transport %T", t.RoundTripper)
		}
		out.Transport = ntlmssp.Negotiator{RoundTripper: withRootCAs(tr, pool)}
	default:
		return nil, fmt.Errorf("cannot add a CA bundle to transport %T", out.Transport)
	}
	return out, nil
}

func withRootCAs(tr *nethttp.Transport, pool *x509.CertPool) *nethttp.Transport {
	clone := tr.Clone()
	if clone.TLSClientConfig == nil {
		clone.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	clone.TLSClientConfig.RootCAs = pool
	// The h2 upgrade hooks copied by Clone still point at tr's connection pool.
	if len(clone.TLSNextProto) > 0 {
		clone.TLSNextProto = nil
		_ = http2.ConfigureTransport(clone)
	}
	return clone
}
