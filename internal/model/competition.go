// Package model defines the record types shared by every pipeline stage.
package model

import "time"

// SiteType categorizes a seed site by how listings are discovered on it.
type SiteType string

const (
	// SiteTypeAggregator is a site listing many third-party competitions.
	SiteTypeAggregator SiteType = "aggregator"
	// SiteTypeBrand is a single brand's own competition page.
	SiteTypeBrand SiteType = "brand"
	// SiteTypeForum is a community thread or forum category.
	SiteTypeForum SiteType = "forum"
)

// Valid reports whether t is one of the known site types.
func (t SiteType) Valid() bool {
	switch t {
	case SiteTypeAggregator, SiteTypeBrand, SiteTypeForum:
		return true
	}
	return false
}

// SeedSite is a crawl target. The list is config-loaded and never mutated at
// runtime.
type SeedSite struct {
	Name string   `json:"name" yaml:"name"`
	URL  string   `json:"url" yaml:"url"`
	Type SiteType `json:"type" yaml:"type"`
}

// RawListing is the scout's output unit. It exists only as a channel message
// and is never persisted directly.
type RawListing struct {
	SourceURL   string   `json:"sourceUrl"`
	SourceSite  string   `json:"sourceSite"`
	SiteType    SiteType `json:"siteType"`
	FetchedAt   string   `json:"fetchedAt"`
	HTMLExcerpt string   `json:"htmlExcerpt"`
	Title       string   `json:"title"`

	// Legacy field names published by early scout builds. The converter
	// accepts either spelling.
	LegacyURL       string `json:"url,omitempty"`
	LegacyScrapedAt string `json:"scrapedAt,omitempty"`
	LegacyHTML      string `json:"html,omitempty"`
}

// Normalize folds the legacy field spellings into the canonical ones and
// defaults FetchedAt to now when both spellings are absent.
func (r *RawListing) Normalize(now time.Time) {
	if r.SourceURL == "" {
		r.SourceURL = r.LegacyURL
	}
	if r.FetchedAt == "" {
		r.FetchedAt = r.LegacyScrapedAt
	}
	if r.FetchedAt == "" {
		r.FetchedAt = now.UTC().Format(time.RFC3339)
	}
	if r.HTMLExcerpt == "" {
		r.HTMLExcerpt = r.LegacyHTML
	}
}

// ExemptionType is the UK promotional-law classification of a competition.
type ExemptionType string

const (
	ExemptionFreeDraw         ExemptionType = "free_draw"
	ExemptionPrizeCompetition ExemptionType = "prize_competition"
	ExemptionUnknown          ExemptionType = "unknown"
)

// ParseExemptionType restricts an arbitrary string to the known values,
// returning ExemptionUnknown for anything else.
func ParseExemptionType(s string) ExemptionType {
	switch ExemptionType(s) {
	case ExemptionFreeDraw:
		return ExemptionFreeDraw
	case ExemptionPrizeCompetition:
		return ExemptionPrizeCompetition
	}
	return ExemptionUnknown
}

// HypeScore bounds. Stages that adjust the score must clamp into this range.
const (
	HypeScoreMin = 1
	HypeScoreMax = 10
)

// ClampHypeScore forces v into [HypeScoreMin, HypeScoreMax].
func ClampHypeScore(v int) int {
	if v < HypeScoreMin {
		return HypeScoreMin
	}
	if v > HypeScoreMax {
		return HypeScoreMax
	}
	return v
}

// Competition is the canonical persisted entity. It is created by the
// converter (which assigns the id), enriched by the validator (which stamps
// VerifiedAt), and upserted by the sink keyed on ID.
type Competition struct {
	ID         string `json:"id"`
	SourceURL  string `json:"sourceUrl"`
	SourceSite string `json:"sourceSite"`
	Title      string `json:"title"`

	PrizeSummary       *string  `json:"prizeSummary"`
	PrizeValueEstimate *float64 `json:"prizeValueEstimate"`
	ClosesAt           *string  `json:"closesAt"`

	IsFree            bool   `json:"isFree"`
	HasSkillQuestion  bool   `json:"hasSkillQuestion"`
	EntryTimeEstimate string `json:"entryTimeEstimate"`
	HypeScore         int    `json:"hypeScore"`
	CuratedSummary    string `json:"curatedSummary"`

	ExemptionType       ExemptionType `json:"exemptionType,omitempty"`
	SkillTestRequired   bool          `json:"skillTestRequired,omitempty"`
	FreeRouteVerified   bool          `json:"freeRouteVerified,omitempty"`
	SubscriptionRisk    bool          `json:"subscriptionRisk,omitempty"`
	PremiumRateDetected bool          `json:"premiumRateDetected,omitempty"`

	DiscoveredAt string  `json:"discoveredAt"`
	VerifiedAt   *string `json:"verifiedAt"`
}

// Verified reports whether the validator has approved this record.
func (c *Competition) Verified() bool {
	return c.VerifiedAt != nil && *c.VerifiedAt != ""
}
