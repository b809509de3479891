package scout

import (
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/ukfreecomps/pipeline/internal/robots"
)

// ErrUnresolved means a candidate could not be traced to a final
// non-aggregator destination. The candidate is dropped, not retried.
var ErrUnresolved = eris.New("scout: destination unresolved")

// CTA phrase lists. Exact matches score highest, substring matches lower;
// any deny phrase disqualifies the link outright.
var ctaAllowPhrases = []string{
	"enter now", "enter competition", "visit site", "go to competition",
	"enter here", "click to enter", "take me there", "enter",
}

var ctaDenyPhrases = []string{
	"login", "register", "sign up", "terms", "privacy",
	"cookie", "contact", "about", "home", "back",
}

var ctaPathBonuses = []string{"/out", "/go/", "/visit", "/exit"}

// resolver follows redirect chains and mines interstitial aggregator pages
// for their outbound call-to-action until it lands off the aggregator set.
// Every hop passes the robots gate before it is fetched.
type resolver struct {
	fetcher     *Fetcher
	robots      *robots.Cache
	aggregators map[string]bool
	maxDepth    int
}

func newResolver(f *Fetcher, rc *robots.Cache, aggregatorHosts []string, maxDepth int) *resolver {
	hosts := make(map[string]bool, len(aggregatorHosts))
	for _, h := range aggregatorHosts {
		hosts[strings.ToLower(h)] = true
	}
	return &resolver{fetcher: f, robots: rc, aggregators: hosts, maxDepth: maxDepth}
}

// Resolve returns the final destination URL for a discovered candidate. The
// depth cap guarantees termination on cyclic aggregator chains.
func (r *resolver) Resolve(ctx context.Context, rawURL string) (string, error) {
	visited := make(map[string]bool)
	return r.resolve(ctx, rawURL, 0, visited)
}

func (r *resolver) resolve(ctx context.Context, rawURL string, depth int, visited map[string]bool) (string, error) {
	if depth > r.maxDepth {
		return "", ErrUnresolved
	}
	if !r.robots.Allowed(ctx, rawURL) {
		return "", ErrUnresolved
	}

	page, err := r.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return "", err
	}

	if visited[page.FinalURL] {
		return "", ErrUnresolved
	}
	visited[page.FinalURL] = true

	final, err := url.Parse(page.FinalURL)
	if err != nil {
		return "", eris.Wrapf(err, "scout: parse final url %q", page.FinalURL)
	}
	if !r.aggregators[strings.ToLower(final.Host)] {
		return page.FinalURL, nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.Body))
	if err != nil {
		return "", eris.Wrap(err, "scout: parse aggregator page")
	}

	cta, ok := bestCTA(doc, final)
	if !ok {
		return "", ErrUnresolved
	}
	return r.resolve(ctx, cta, depth+1, visited)
}

// bestCTA picks the highest-scoring outbound call-to-action link on an
// aggregator page.
func bestCTA(doc *goquery.Document, base *url.URL) (string, bool) {
	var (
		bestURL   string
		bestScore int
	)

	doc.Find("a[href]").Each(func(_ int, anchor *goquery.Selection) {
		href, _ := anchor.Attr("href")
		target := resolveHref(base, href)
		if target == "" {
			return
		}

		text := strings.ToLower(collapseSpace(anchor.Text()))
		for _, deny := range ctaDenyPhrases {
			if strings.Contains(text, deny) {
				return
			}
		}

		score := 0
		for _, allow := range ctaAllowPhrases {
			if text == allow {
				score += 10
			} else if strings.Contains(text, allow) {
				score += 5
			}
		}

		pathLower := strings.ToLower(target)
		for _, bonus := range ctaPathBonuses {
			if strings.Contains(pathLower, bonus) {
				score += 3
			}
		}

		if score > bestScore {
			bestScore = score
			bestURL = target
		}
	})

	return bestURL, bestScore > 0
}
