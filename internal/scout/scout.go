// Package scout crawls seed sites, discovers candidate competition links,
// resolves them to their final destination, and publishes raw listings.
package scout

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/ukfreecomps/pipeline/internal/bus"
	"github.com/ukfreecomps/pipeline/internal/config"
	"github.com/ukfreecomps/pipeline/internal/metrics"
	"github.com/ukfreecomps/pipeline/internal/model"
	"github.com/ukfreecomps/pipeline/internal/robots"
)

// Scout crawls the configured seed sites and publishes RawListing messages.
type Scout struct {
	sites      []model.SeedSite
	robots     *robots.Cache
	fetcher    *Fetcher
	resolver   *resolver
	publisher  bus.Publisher
	maxPerPage int
}

// New wires a scout from crawl settings. The robots cache is owned by the
// caller so its per-origin rules span every crawl of the process.
func New(cfg config.ScoutConfig, sites []model.SeedSite, rc *robots.Cache, pub bus.Publisher) *Scout {
	fetcher := NewFetcher(
		cfg.UserAgent(),
		cfg.BotEmail,
		time.Duration(cfg.FetchTimeoutSecs)*time.Second,
		time.Duration(cfg.DelayMs)*time.Millisecond,
	)
	return &Scout{
		sites:      sites,
		robots:     rc,
		fetcher:    fetcher,
		resolver:   newResolver(fetcher, rc, cfg.AggregatorHosts, cfg.MaxResolveDepth),
		publisher:  pub,
		maxPerPage: cfg.MaxEntriesPerPage,
	}
}

// SiteCount reports how many seed sites are configured.
func (s *Scout) SiteCount() int { return len(s.sites) }

// Crawl visits every seed site in order and returns the number of raw
// listings published. Per-site failures are logged and skipped; the run is
// best effort and never aborts as a whole.
func (s *Scout) Crawl(ctx context.Context) int {
	start := time.Now()
	total := 0

	for _, site := range s.sites {
		if ctx.Err() != nil {
			break
		}

		n, err := s.crawlSite(ctx, site)
		if err != nil {
			zap.L().Warn("site crawl failed",
				zap.String("site", site.Name),
				zap.Error(err),
			)
			continue
		}
		total += n
	}

	zap.L().Info("crawl finished",
		zap.Int("published", total),
		zap.Duration("took", time.Since(start)),
	)
	return total
}

func (s *Scout) crawlSite(ctx context.Context, site model.SeedSite) (int, error) {
	if !s.robots.Allowed(ctx, site.URL) {
		zap.L().Info("site disallowed by robots rules", zap.String("site", site.Name))
		return 0, nil
	}

	page, err := s.fetcher.Fetch(ctx, site.URL)
	if err != nil {
		return 0, err
	}

	if site.Type == model.SiteTypeBrand {
		return s.publishBrandPage(ctx, site, page)
	}
	return s.publishDiscovered(ctx, site, page)
}

// publishBrandPage emits one listing for a brand's own competition page.
func (s *Scout) publishBrandPage(ctx context.Context, site model.SeedSite, page *Page) (int, error) {
	title := pageTitle(page.Body)
	if title == "" {
		title = site.Name
	}

	listing := model.RawListing{
		SourceURL:   page.FinalURL,
		SourceSite:  site.Name,
		SiteType:    site.Type,
		FetchedAt:   time.Now().UTC().Format(time.RFC3339),
		HTMLExcerpt: excerpt(page.Body, brandExcerptMax),
		Title:       title,
	}
	if err := s.publisher.Publish(ctx, listing); err != nil {
		return 0, err
	}
	metrics.ListingsPublished.WithLabelValues(site.Name).Inc()
	return 1, nil
}

// publishDiscovered mines an aggregator or forum landing page for candidate
// links, resolves each to its final destination, and publishes the survivors.
func (s *Scout) publishDiscovered(ctx context.Context, site model.SeedSite, page *Page) (int, error) {
	base, err := url.Parse(page.FinalURL)
	if err != nil {
		return 0, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.Body))
	if err != nil {
		return 0, err
	}

	entries := discoverEntries(doc, base, s.maxPerPage)
	zap.L().Info("entries discovered",
		zap.String("site", site.Name),
		zap.Int("count", len(entries)),
	)

	published := 0
	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}

		if !s.robots.Allowed(ctx, entry.URL) {
			continue
		}

		finalURL, err := s.resolver.Resolve(ctx, entry.URL)
		if err != nil {
			zap.L().Debug("candidate dropped",
				zap.String("url", entry.URL),
				zap.Error(err),
			)
			continue
		}

		body := entry.Excerpt
		if s.robots.Allowed(ctx, finalURL) {
			if finalPage, err := s.fetcher.Fetch(ctx, finalURL); err == nil {
				body = finalPage.Body
			}
		}

		listing := model.RawListing{
			SourceURL:   finalURL,
			SourceSite:  site.Name,
			SiteType:    site.Type,
			FetchedAt:   time.Now().UTC().Format(time.RFC3339),
			HTMLExcerpt: excerpt(body, entryExcerptMax),
			Title:       entry.Title,
		}
		if err := s.publisher.Publish(ctx, listing); err != nil {
			zap.L().Warn("publish failed",
				zap.String("url", finalURL),
				zap.Error(err),
			)
			continue
		}
		metrics.ListingsPublished.WithLabelValues(site.Name).Inc()
		published++
	}
	return published, nil
}

func pageTitle(body string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return ""
	}
	return collapseSpace(doc.Find("title").First().Text())
}
