// Package proxy supplies a rotating sequence of outbound-proxy endpoints,
// loaded from an inline list or a file, one per line, # comments allowed.
package proxy

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"sync"
)

// Pool cycles through a fixed proxy list. An empty pool is valid and means
// "run without proxy": Next returns "".
type Pool struct {
	mu      sync.Mutex
	proxies []string
	next    int
}

// Options controls which proxies are accepted into the pool.
type Options struct {
	Inline       string   // separator-delimited list (";", ",", whitespace)
	FilePath     string   // one proxy URL per line
	AllowSchemes []string // e.g. http, https, socks5; empty means allow all
}

// NewPool builds a pool from opts. Entries with a disallowed scheme or an
// unparseable URL are skipped with a warning; duplicates are dropped
// preserving first-seen order.
func NewPool(opts Options) *Pool {
	var raw []string
	raw = append(raw, splitList(opts.Inline)...)
	if opts.FilePath != "" {
		raw = append(raw, readLines(opts.FilePath)...)
	}

	allowed := make(map[string]struct{}, len(opts.AllowSchemes))
	for _, s := range opts.AllowSchemes {
		allowed[strings.ToLower(strings.TrimSpace(s))] = struct{}{}
	}

	seen := make(map[string]struct{})
	var proxies []string
	for _, p := range raw {
		if _, dup := seen[p]; dup {
			continue
		}
		u, err := url.Parse(p)
		if err != nil || u.Host == "" {
			slog.Warn("Skipping invalid proxy entry", "proxy", Mask(p))
			continue
		}
		if len(allowed) > 0 {
			if _, ok := allowed[strings.ToLower(u.Scheme)]; !ok {
				slog.Warn("Skipping proxy with disallowed scheme", "proxy", Mask(p), "scheme", u.Scheme)
				continue
			}
		}
		seen[p] = struct{}{}
		proxies = append(proxies, p)
	}

	if len(proxies) == 0 {
		slog.Warn("Proxy pool is empty; running without proxy")
	} else {
		slog.Info("Loaded proxy pool", "count", len(proxies))
	}
	return &Pool{proxies: proxies}
}

// Next returns the next proxy URL in rotation, or "" when the pool is empty.
func (p *Pool) Next() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.proxies) == 0 {
		return ""
	}
	out := p.proxies[p.next%len(p.proxies)]
	p.next++
	return out
}

// Len returns the number of proxies in the pool.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.proxies)
}

// All returns a copy of the pool contents.
func (p *Pool) All() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.proxies))
	copy(out, p.proxies)
	return out
}

// Mask hides credentials in a proxy URL for logging.
func Mask(proxyURL string) string {
	u, err := url.Parse(proxyURL)
	if err != nil || u.User == nil {
		return proxyURL
	}
	name := u.User.Username()
	return fmt.Sprintf("%s://%s:***@%s%s", u.Scheme, name, u.Host, u.Path)
}

func splitList(raw string) []string {
	for _, sep := range []string{";", ",", "\t", " "} {
		raw = strings.ReplaceAll(raw, sep, "\n")
	}
	var out []string
	for _, line := range strings.Split(raw, "\n") {
		s := strings.TrimSpace(line)
		if s != "" && !strings.HasPrefix(s, "#") {
			out = append(out, s)
		}
	}
	return out
}

func readLines(path string) []string {
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("Failed to read proxy pool file", "path", path, "error", err)
		return nil
	}
	var out []string
	for _, line := range strings.Split(string(data), "\n") {
		s := strings.TrimSpace(line)
		if s != "" && !strings.HasPrefix(s, "#") {
			out = append(out, s)
		}
	}
	return out
}
