// Package robots caches per-origin robots exclusion rules for the crawler.
//
// Only the `User-agent: *` block's Disallow prefixes are honored. A fetch
// failure blocks the whole origin (fail closed); a 404 means unrestricted.
package robots

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Doer issues HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Cache holds disallow prefixes per origin, populated at most once per origin
// for the lifetime of the process.
type Cache struct {
	client    Doer
	userAgent string

	mu    sync.RWMutex
	rules map[string][]string
}

// NewCache builds a cache. A nil client falls back to a default http.Client
// with a short timeout.
func NewCache(client Doer, userAgent string) *Cache {
	if client == nil {
		client = &http.Client{Timeout: 8 * time.Second}
	}
	return &Cache{
		client:    client,
		userAgent: userAgent,
		rules:     make(map[string][]string),
	}
}

// Allowed reports whether rawURL may be fetched under the origin's cached
// rules, fetching and caching them on first sight of the origin.
func (c *Cache) Allowed(ctx context.Context, rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}
	origin := u.Scheme + "://" + u.Host

	prefixes := c.originRules(ctx, origin)

	path := u.Path
	if path == "" {
		path = "/"
	}
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return false
		}
	}
	return true
}

func (c *Cache) originRules(ctx context.Context, origin string) []string {
	c.mu.RLock()
	prefixes, ok := c.rules[origin]
	c.mu.RUnlock()
	if ok {
		return prefixes
	}

	prefixes, err := c.fetch(ctx, origin)
	if err != nil {
		// Fail closed: an unreachable rules file blocks the origin.
		zap.L().Warn("robots fetch failed, blocking origin",
			zap.String("origin", origin),
			zap.Error(err))
		prefixes = []string{"/"}
	}

	c.mu.Lock()
	c.rules[origin] = prefixes
	c.mu.Unlock()
	return prefixes
}

func (c *Cache) fetch(ctx context.Context, origin string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+"/robots.txt", nil)
	if err != nil {
		return nil, eris.Wrap(err, "robots: create request")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "robots: fetch rules")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("robots: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 256<<10))
	if err != nil {
		return nil, eris.Wrap(err, "robots: read rules")
	}
	return parseDisallow(string(body)), nil
}

// parseDisallow extracts the Disallow prefixes from the `User-agent: *`
// block of a robots.txt body.
func parseDisallow(body string) []string {
	var prefixes []string
	inWildcard := false

	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		switch key {
		case "user-agent":
			inWildcard = value == "*"
		case "disallow":
			if inWildcard && value != "" {
				prefixes = append(prefixes, value)
			}
		}
	}
	return prefixes
}
