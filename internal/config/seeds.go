package config

import (
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ukfreecomps/pipeline/internal/model"
)

// defaultSeedSites is the built-in crawl list used when no seeds file is
// configured. Kept intentionally small; the real list lives in config.
var defaultSeedSites = []model.SeedSite{
	{Name: "Loquax", URL: "https://www.loquax.co.uk/", Type: model.SiteTypeAggregator},
	{Name: "The Prize Finder", URL: "https://www.theprizefinder.com/", Type: model.SiteTypeAggregator},
	{Name: "Competition Database", URL: "https://www.competitiondatabase.co.uk/", Type: model.SiteTypeAggregator},
	{Name: "Magic Freebies Competitions", URL: "https://www.magicfreebies.co.uk/competitions/", Type: model.SiteTypeAggregator},
	{Name: "MSE Competitions Forum", URL: "https://forums.moneysavingexpert.com/categories/competitions", Type: model.SiteTypeForum},
	{Name: "HotUKDeals Competitions", URL: "https://www.hotukdeals.com/tag/competition", Type: model.SiteTypeForum},
}

// LoadSeedSites reads the seed-site list from path, falling back to the
// built-in defaults when path is empty or unreadable. Entries with a missing
// name/url or an unknown type are skipped with a warning.
func LoadSeedSites(path string) []model.SeedSite {
	if path == "" {
		return defaultSeedSites
	}

	data, err := os.ReadFile(path)
	if err != nil {
		zap.L().Warn("seeds file unreadable, using built-in defaults",
			zap.String("path", path),
			zap.Error(err),
		)
		return defaultSeedSites
	}

	sites, err := parseSeedSites(data)
	if err != nil {
		zap.L().Warn("seeds file invalid, using built-in defaults",
			zap.String("path", path),
			zap.Error(err),
		)
		return defaultSeedSites
	}
	if len(sites) == 0 {
		zap.L().Warn("seeds file contains no valid sites, using built-in defaults",
			zap.String("path", path),
		)
		return defaultSeedSites
	}

	zap.L().Info("loaded seed sites",
		zap.String("path", path),
		zap.Int("count", len(sites)),
	)
	return sites
}

func parseSeedSites(data []byte) ([]model.SeedSite, error) {
	var raw []model.SeedSite
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, eris.Wrap(err, "config: parse seeds yaml")
	}

	sites := make([]model.SeedSite, 0, len(raw))
	for _, s := range raw {
		if s.Name == "" || s.URL == "" || !s.Type.Valid() {
			zap.L().Warn("skipping invalid seed site",
				zap.String("name", s.Name),
				zap.String("url", s.URL),
				zap.String("type", string(s.Type)),
			)
			continue
		}
		sites = append(sites, s)
	}
	return sites, nil
}
