// Package converter turns raw listings into initial Competition records with
// heuristic fields and a curated summary.
package converter

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ukfreecomps/pipeline/internal/bus"
	"github.com/ukfreecomps/pipeline/internal/metrics"
	"github.com/ukfreecomps/pipeline/internal/model"
	"github.com/ukfreecomps/pipeline/pkg/gemini"
)

// Converter builds Competition records from RawListing messages and publishes
// them downstream. It never persists.
type Converter struct {
	publisher  bus.Publisher
	summarizer *summarizer
	now        func() time.Time
}

// New wires a converter. A nil or disabled llm means every summary uses the
// deterministic template.
func New(pub bus.Publisher, llm gemini.Client, summaryModel string) *Converter {
	return &Converter{
		publisher:  pub,
		summarizer: &summarizer{llm: llm, model: summaryModel},
		now:        time.Now,
	}
}

// Handle consumes one raw-listing message. Unparseable payloads are dropped;
// publish failures are retried via redelivery.
func (c *Converter) Handle(ctx context.Context, body []byte) bus.Verdict {
	var raw model.RawListing
	if err := json.Unmarshal(body, &raw); err != nil {
		zap.L().Error("raw listing unparseable, dropping",
			zap.Error(err),
		)
		metrics.PermanentDrops.WithLabelValues("converter").Inc()
		return bus.Drop
	}
	raw.Normalize(c.now())

	comp := c.Convert(ctx, raw)

	if err := c.publisher.Publish(ctx, comp); err != nil {
		zap.L().Error("publish failed, retrying",
			zap.String("id", comp.ID),
			zap.Error(err),
		)
		return bus.Retry
	}

	zap.L().Info("competition published",
		zap.String("id", comp.ID),
		zap.Int("hype", comp.HypeScore),
		zap.String("source_url", comp.SourceURL),
	)
	return bus.Ack
}

// Convert derives the initial Competition from a raw listing. Fields not yet
// knowable stay null; isFree starts optimistic pending validation.
func (c *Converter) Convert(ctx context.Context, raw model.RawListing) model.Competition {
	title := strings.TrimSpace(raw.Title)
	if title == "" {
		title = raw.SourceSite
	}
	if title == "" {
		title = "Unknown Competition"
	}

	sourceSite := deriveSourceSite(raw.SourceURL, raw.SourceSite)

	var doc *goquery.Document
	if raw.HTMLExcerpt != "" {
		doc, _ = goquery.NewDocumentFromReader(strings.NewReader(raw.HTMLExcerpt))
	}

	prizeSummary := inferPrizeSummary(doc, title)
	entryTime := estimateEntryTime(raw.HTMLExcerpt)
	hype := scoreHype(title, prizeSummary)

	heuristic := buildHeuristicSummary(title, sourceSite, prizeSummary, entryTime, hype)
	curated := c.summarizer.Generate(ctx, title, sourceSite, raw.HTMLExcerpt, heuristic)

	return model.Competition{
		ID:                uuid.NewString(),
		SourceURL:         raw.SourceURL,
		SourceSite:        sourceSite,
		Title:             title,
		PrizeSummary:      &prizeSummary,
		IsFree:            true,
		HasSkillQuestion:  hasSkillQuestion(raw.HTMLExcerpt),
		EntryTimeEstimate: entryTime,
		HypeScore:         hype,
		CuratedSummary:    curated,
		DiscoveredAt:      raw.FetchedAt,
	}
}

// deriveSourceSite prefers the hostname of the source URL, stripped of a
// leading www, over the site label carried in the message.
func deriveSourceSite(sourceURL, fallback string) string {
	u, err := url.Parse(sourceURL)
	if err == nil && u.Hostname() != "" {
		return strings.TrimPrefix(u.Hostname(), "www.")
	}
	if fallback != "" {
		return fallback
	}
	return "unknown"
}
