// Package httputil builds the HTTP client used for source downloads.
package httputil

import (
	"fmt"
	"net"
	"net/http"
	"time"
)

// ClientOptions configures the download client.
type ClientOptions struct {
	// Timeout bounds a whole request including the body. Zero means no
	// overall limit, which suits large tarballs; stalls are caught by
	// ResponseHeaderTimeout and the caller's context.
	Timeout time.Duration

	// DialTimeout is the TCP dial timeout. Default: 30s.
	DialTimeout time.Duration

	// ResponseHeaderTimeout is the time to wait for response headers. Default: 30s.
	ResponseHeaderTimeout time.Duration

	// MaxRedirects is the maximum redirect depth. Default: 10.
	MaxRedirects int

	// AllowPrivateRedirects permits redirects into private, loopback and
	// link-local networks. Set for mirrors configured on a LAN.
	AllowPrivateRedirects bool

	// AllowInsecureRedirects permits redirects to plain HTTP.
	AllowInsecureRedirects bool

	// UserAgent is sent on every request.
	UserAgent string
}

// DefaultUserAgent identifies download requests.
const DefaultUserAgent = "pkgbuild-fetch/1"

// NewClient creates an HTTP client for source downloads. Transparent
// compression is disabled so the bytes hashed are the bytes served.
func NewClient(opts ClientOptions) *http.Client {
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 30 * time.Second
	}
	if opts.ResponseHeaderTimeout == 0 {
		opts.ResponseHeaderTimeout = 30 * time.Second
	}
	if opts.MaxRedirects == 0 {
		opts.MaxRedirects = 10
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}

	transport := &http.Transport{
		Proxy:              http.ProxyFromEnvironment,
		DisableCompression: true,
		DialContext: (&net.Dialer{
			Timeout:   opts.DialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: opts.ResponseHeaderTimeout,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
	}

	return &http.Client{
		Timeout:       opts.Timeout,
		Transport:     &userAgentTransport{base: transport, agent: opts.UserAgent},
		CheckRedirect: redirectChecker(opts),
	}
}

type userAgentTransport struct {
	base  http.RoundTripper
	agent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", t.agent)
	}
	return t.base.RoundTrip(req)
}

func redirectChecker(opts ClientOptions) func(req *http.Request, via []*http.Request) error {
	return func(req *http.Request, via []*http.Request) error {
		// Prevent HTTPS -> HTTP downgrades
		if req.URL.Scheme != "https" && !opts.AllowInsecureRedirects {
			return fmt.Errorf("redirect to non-HTTPS URL is not allowed: %s", req.URL)
		}
		if len(via) >= opts.MaxRedirects {
			return fmt.Errorf("too many redirects")
		}
		if opts.AllowPrivateRedirects {
			return nil
		}

		host := req.URL.Hostname()
		if ip := net.ParseIP(host); ip != nil {
			return ValidateIP(ip, host)
		}
		// Check every resolved address to defeat DNS rebinding
		ips, err := net.LookupIP(host)
		if err != nil {
			return fmt.Errorf("failed to resolve redirect host %s: %w", host, err)
		}
		for _, ip := range ips {
			if err := ValidateIP(ip, host); err != nil {
				return fmt.Errorf("refusing redirect: %s resolves to blocked IP %s", host, ip)
			}
		}
		return nil
	}
}
