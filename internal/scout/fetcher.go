package scout

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/ukfreecomps/pipeline/internal/resilience"
)

// Page is a fetched document plus the URL it actually resolved to after
// redirects.
type Page struct {
	Body     string
	FinalURL string
}

// Fetcher issues polite HTTP GETs: identifying headers, a bounded timeout,
// and a per-host rate limiter enforcing the inter-request delay.
type Fetcher struct {
	client    *http.Client
	userAgent string
	from      string
	delay     time.Duration

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewFetcher builds a fetcher from crawl settings.
func NewFetcher(userAgent, fromEmail string, timeout, delay time.Duration) *Fetcher {
	return &Fetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
		from:      fromEmail,
		delay:     delay,
		limiters:  make(map[string]*rate.Limiter),
	}
}

// Fetch GETs rawURL, waiting on the host's limiter first. Network errors and
// retriable statuses are tagged transient.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrapf(err, "scout: parse url %q", rawURL)
	}

	if err := f.limiter(u.Host).Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "scout: rate wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "scout: create request")
	}
	req.Header.Set("User-Agent", f.userAgent)
	if f.from != "" {
		req.Header.Set("From", f.from)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrapf(err, "scout: fetch %s", rawURL), 0)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := eris.Errorf("scout: fetch %s: status %d", rawURL, resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrapf(err, "scout: read %s", rawURL), 0)
	}

	return &Page{Body: string(body), FinalURL: resp.Request.URL.String()}, nil
}

// limiter returns the host's rate limiter, creating it on first use. Burst 1
// so the very first request to a host goes out immediately.
func (f *Fetcher) limiter(host string) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()

	l, ok := f.limiters[host]
	if !ok {
		l = rate.NewLimiter(rate.Every(f.delay), 1)
		f.limiters[host] = l
	}
	return l
}
