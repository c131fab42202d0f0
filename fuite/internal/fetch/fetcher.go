// Package fetch performs outbound HTTP retrieval for listing pages and raw
// paste content.
//
// Every call rotates the User-Agent pseudo-randomly and routes through a
// random proxy from the shared pool when one is available. A failure
// attributable to a pool proxy removes that proxy; the caller still gets
// the failure. Pool exhaustion falls back to the ambient environment proxy
// configuration, then to a direct connection.
package fetch

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	xproxy "golang.org/x/net/proxy"

	"github.com/hazyhaar/fuite/fuite/internal/proxy"
)

// defaultUserAgents is the rotation pool. Rotating defeats trivial
// user-agent blocking on listing pages; it is not a security feature.
var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64; rv:127.0) Gecko/20100101 Firefox/127.0",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:127.0) Gecko/20100101 Firefox/127.0",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
}

// Config configures the fetcher.
type Config struct {
	Timeout  time.Duration // per-request timeout. Default: 30s.
	MaxBytes int64         // response body cap. Default: 2 MiB.
	// UserAgents overrides the built-in rotation pool.
	UserAgents []string
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 2 * 1024 * 1024
	}
	if len(c.UserAgents) == 0 {
		c.UserAgents = defaultUserAgents
	}
}

// Request describes one retrieval.
type Request struct {
	URL string
	// SlowDownMarker is the site-specific rate-limit phrase. When the body
	// contains it, the result is RateLimited even on HTTP 200.
	SlowDownMarker string
}

// Result is a successful retrieval outcome.
type Result struct {
	Body        []byte
	StatusCode  int
	RateLimited bool
	// Proxy is the pool endpoint used, empty for ambient/direct.
	Proxy string
}

// Fetcher retrieves URLs through the shared proxy pool.
type Fetcher struct {
	config Config
	pool   *proxy.Pool
}

// New creates a Fetcher. pool may be empty; it must not be nil.
func New(cfg Config, pool *proxy.Pool) *Fetcher {
	cfg.defaults()
	return &Fetcher{config: cfg, pool: pool}
}

// Fetch retrieves req.URL. A non-2xx status, transport failure, or timeout
// is an error; a rate-limit marker in the body is a success with
// Result.RateLimited set, and callers must pause instead of treating the
// body as content.
func (f *Fetcher) Fetch(ctx context.Context, req Request) (*Result, error) {
	endpoint := f.pool.Pick()

	client, err := f.client(endpoint)
	if err != nil {
		// A pool endpoint we cannot even build a transport for is as dead
		// as one that fails mid-request.
		f.pool.Remove(endpoint)
		return nil, fmt.Errorf("fetch: proxy %s: %w", endpoint, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch: new request: %w", err)
	}
	httpReq.Header.Set("User-Agent", f.config.UserAgents[rand.IntN(len(f.config.UserAgents))])

	resp, err := client.Do(httpReq)
	if err != nil {
		f.pool.Remove(endpoint)
		return nil, fmt.Errorf("fetch: %s: %w", req.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Non-success status is a site answer, not a proxy fault; the
		// endpoint stays in the pool.
		return nil, fmt.Errorf("fetch: %s: http %d", req.URL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.config.MaxBytes))
	if err != nil {
		f.pool.Remove(endpoint)
		return nil, fmt.Errorf("fetch: read body: %w", err)
	}

	res := &Result{Body: body, StatusCode: resp.StatusCode}
	if endpoint != nil {
		res.Proxy = endpoint.String()
	}
	if req.SlowDownMarker != "" && strings.Contains(string(body), req.SlowDownMarker) {
		res.RateLimited = true
		res.Body = nil
	}
	return res, nil
}

// client builds an http.Client for the chosen endpoint. nil endpoint uses
// the ambient environment proxy configuration (or direct when none is set).
func (f *Fetcher) client(endpoint *url.URL) (*http.Client, error) {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout: f.config.Timeout,
		}).DialContext,
	}

	if endpoint != nil {
		switch endpoint.Scheme {
		case "http", "https":
			transport.Proxy = http.ProxyURL(endpoint)
		case "socks5":
			dialer, err := xproxy.FromURL(endpoint, &net.Dialer{Timeout: f.config.Timeout})
			if err != nil {
				return nil, fmt.Errorf("socks5 dialer: %w", err)
			}
			cd, ok := dialer.(xproxy.ContextDialer)
			if !ok {
				return nil, fmt.Errorf("socks5 dialer for %s does not support context dialing", endpoint)
			}
			transport.Proxy = nil
			transport.DialContext = cd.DialContext
		default:
			return nil, fmt.Errorf("unsupported proxy scheme %q", endpoint.Scheme)
		}
	}

	return &http.Client{
		Timeout:   f.config.Timeout,
		Transport: transport,
	}, nil
}
