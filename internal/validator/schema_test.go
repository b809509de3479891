package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ukfreecomps/pipeline/internal/model"
)

func validCompetition() model.Competition {
	return model.Competition{
		ID:                "b2c8a3de-1111-2222-3333-444455556666",
		SourceURL:         "https://brand.example/win",
		SourceSite:        "brand.example",
		Title:             "Win a holiday to Spain",
		IsFree:            true,
		EntryTimeEstimate: "30–60 seconds",
		HypeScore:         9,
		CuratedSummary:    "A great competition worth entering.",
		DiscoveredAt:      "2026-08-01T10:00:00Z",
	}
}

func TestValidateSchemaAccepts(t *testing.T) {
	t.Parallel()

	comp := validCompetition()
	assert.Empty(t, validateSchema(&comp))
}

func TestValidateSchemaRejects(t *testing.T) {
	t.Parallel()

	closesBad := "not-a-date"
	negative := -5.0

	tests := []struct {
		name   string
		mutate func(*model.Competition)
		want   string
	}{
		{"missing id", func(c *model.Competition) { c.ID = "  " }, "id is missing"},
		{"missing sourceUrl", func(c *model.Competition) { c.SourceURL = "" }, "sourceUrl is missing"},
		{"missing sourceSite", func(c *model.Competition) { c.SourceSite = "" }, "sourceSite is missing"},
		{"missing title", func(c *model.Competition) { c.Title = "" }, "title is missing"},
		{"missing discoveredAt", func(c *model.Competition) { c.DiscoveredAt = "" }, "discoveredAt is missing"},
		{"malformed sourceUrl", func(c *model.Competition) { c.SourceURL = "not a url" }, "not a valid URL"},
		{"bad discoveredAt", func(c *model.Competition) { c.DiscoveredAt = "yesterday" }, "not a valid ISO datetime"},
		{"bad closesAt", func(c *model.Competition) { c.ClosesAt = &closesBad }, "closesAt is not a valid"},
		{"hype too low", func(c *model.Competition) { c.HypeScore = 0 }, "hypeScore must be 1-10"},
		{"hype too high", func(c *model.Competition) { c.HypeScore = 11 }, "hypeScore must be 1-10"},
		{"negative prize value", func(c *model.Competition) { c.PrizeValueEstimate = &negative }, "prizeValueEstimate must be >= 0"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			comp := validCompetition()
			tt.mutate(&comp)
			errs := validateSchema(&comp)
			assert.NotEmpty(t, errs)
			assert.Contains(t, errs[0], tt.want)
		})
	}
}

func TestValidateSchemaCollectsAllViolations(t *testing.T) {
	t.Parallel()

	comp := model.Competition{HypeScore: 0}
	errs := validateSchema(&comp)
	assert.GreaterOrEqual(t, len(errs), 6)
}
