package validator

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ukfreecomps/pipeline/internal/model"
)

// validateSchema runs the structural gate ahead of any external call. All
// violations are collected so the log shows every problem at once.
func validateSchema(comp *model.Competition) []string {
	var errs []string

	requireString := func(name, value string) {
		if strings.TrimSpace(value) == "" {
			errs = append(errs, name+" is missing or empty")
		}
	}
	requireString("id", comp.ID)
	requireString("sourceUrl", comp.SourceURL)
	requireString("sourceSite", comp.SourceSite)
	requireString("title", comp.Title)
	requireString("discoveredAt", comp.DiscoveredAt)

	if comp.SourceURL != "" {
		if u, err := url.Parse(comp.SourceURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Sprintf("sourceUrl is not a valid URL: %q", comp.SourceURL))
		}
	}

	if comp.DiscoveredAt != "" && !parsesAsInstant(comp.DiscoveredAt) {
		errs = append(errs, fmt.Sprintf("discoveredAt is not a valid ISO datetime: %q", comp.DiscoveredAt))
	}
	if comp.ClosesAt != nil && !parsesAsInstant(*comp.ClosesAt) {
		errs = append(errs, fmt.Sprintf("closesAt is not a valid ISO datetime: %q", *comp.ClosesAt))
	}
	if comp.VerifiedAt != nil && !parsesAsInstant(*comp.VerifiedAt) {
		errs = append(errs, fmt.Sprintf("verifiedAt is not a valid ISO datetime: %q", *comp.VerifiedAt))
	}

	if comp.HypeScore < model.HypeScoreMin || comp.HypeScore > model.HypeScoreMax {
		errs = append(errs, fmt.Sprintf("hypeScore must be 1-10, got: %d", comp.HypeScore))
	}
	if comp.PrizeValueEstimate != nil && *comp.PrizeValueEstimate < 0 {
		errs = append(errs, fmt.Sprintf("prizeValueEstimate must be >= 0, got: %v", *comp.PrizeValueEstimate))
	}

	return errs
}

var instantLayouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func parsesAsInstant(s string) bool {
	for _, layout := range instantLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}
