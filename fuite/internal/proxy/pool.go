// Package proxy maintains the shared egress proxy pool.
//
// Every site poller reads (random pick) and writes (remove-on-failure)
// the pool concurrently; all mutation happens under one mutex. A removed
// endpoint stays gone for the process lifetime unless Replace loads a new
// generation.
package proxy

import (
	"bufio"
	"fmt"
	"math/rand/v2"
	"net/url"
	"os"
	"strings"
	"sync"
)

// Pool is a mutex-guarded set of proxy endpoints.
type Pool struct {
	mu        sync.Mutex
	endpoints []*url.URL
}

// NewPool creates a pool from already-parsed endpoints.
func NewPool(endpoints []*url.URL) *Pool {
	p := &Pool{}
	p.Replace(endpoints)
	return p
}

// Pick returns a uniformly random live endpoint, or nil if the pool is
// empty (exhausted pools fall back to ambient/direct connections at the
// fetcher).
func (p *Pool) Pick() *url.URL {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.endpoints) == 0 {
		return nil
	}
	return p.endpoints[rand.IntN(len(p.endpoints))]
}

// Remove drops an endpoint after a failure attributed to it. Idempotent:
// concurrent removals of the same endpoint leave the pool consistent.
func (p *Pool) Remove(endpoint *url.URL) {
	if endpoint == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, e := range p.endpoints {
		if e.String() == endpoint.String() {
			p.endpoints = append(p.endpoints[:i], p.endpoints[i+1:]...)
			return
		}
	}
}

// Replace swaps in a whole new generation of endpoints.
func (p *Pool) Replace(endpoints []*url.URL) {
	cp := make([]*url.URL, len(endpoints))
	copy(cp, endpoints)
	p.mu.Lock()
	p.endpoints = cp
	p.mu.Unlock()
}

// Len reports the number of live endpoints.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.endpoints)
}

// Endpoints returns a snapshot of the live endpoints, for status reporting.
func (p *Pool) Endpoints() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.endpoints))
	for i, e := range p.endpoints {
		out[i] = e.String()
	}
	return out
}

// LoadFile reads a proxies file: one endpoint URL per line, blank lines and
// `#` comments ignored. Supported schemes: http, https, socks5.
func LoadFile(path string) ([]*url.URL, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("proxy: open %s: %w", path, err)
	}
	defer f.Close()

	var endpoints []*url.URL
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		u, err := Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("proxy: %s line %d: %w", path, line, err)
		}
		endpoints = append(endpoints, u)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("proxy: read %s: %w", path, err)
	}
	return endpoints, nil
}

// Parse validates a single proxy endpoint URL.
func Parse(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", raw, err)
	}
	switch u.Scheme {
	case "http", "https", "socks5":
	default:
		return nil, fmt.Errorf("unsupported proxy scheme %q in %q", u.Scheme, raw)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("endpoint %q has no host", raw)
	}
	return u, nil
}
