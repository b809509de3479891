package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/ukfreecomps/pipeline/internal/model"
	"github.com/ukfreecomps/pipeline/internal/resilience"
)

// SQLiteStore implements Store using modernc.org/sqlite for local runs.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	sdb, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := sdb.Exec(pragma); err != nil {
			sdb.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: sdb}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS competitions (
	id                    TEXT PRIMARY KEY,
	source_url            TEXT NOT NULL,
	source_site           TEXT NOT NULL,
	title                 TEXT NOT NULL,
	prize_summary         TEXT,
	prize_value_estimate  REAL,
	closes_at             TEXT,
	is_free               INTEGER NOT NULL DEFAULT 1,
	has_skill_question    INTEGER NOT NULL DEFAULT 0,
	entry_time_estimate   TEXT NOT NULL DEFAULT '',
	hype_score            INTEGER NOT NULL,
	curated_summary       TEXT NOT NULL,
	discovered_at         TEXT NOT NULL,
	verified_at           TEXT,
	exemption_type        TEXT NOT NULL DEFAULT 'unknown',
	skill_test_required   INTEGER NOT NULL DEFAULT 0,
	free_route_verified   INTEGER NOT NULL DEFAULT 0,
	subscription_risk     INTEGER NOT NULL DEFAULT 0,
	premium_rate_detected INTEGER NOT NULL DEFAULT 0,

	manual_verified       INTEGER NOT NULL DEFAULT 0,
	flagged               INTEGER NOT NULL DEFAULT 0,
	click_count           INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_competitions_verified_at ON competitions(verified_at);
CREATE INDEX IF NOT EXISTS idx_competitions_source_site ON competitions(source_site);
`

// Migrate applies the schema.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteMigration); err != nil {
		return eris.Wrap(err, "sqlite: migrate")
	}
	return nil
}

const sqliteUpsertSQL = `
INSERT INTO competitions (
	id, source_url, source_site, title,
	prize_summary, prize_value_estimate, closes_at,
	is_free, has_skill_question, entry_time_estimate, hype_score,
	curated_summary, discovered_at, verified_at, exemption_type,
	skill_test_required, free_route_verified, subscription_risk, premium_rate_detected
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
	source_url            = excluded.source_url,
	source_site           = excluded.source_site,
	title                 = excluded.title,
	prize_summary         = excluded.prize_summary,
	prize_value_estimate  = excluded.prize_value_estimate,
	closes_at             = excluded.closes_at,
	is_free               = excluded.is_free,
	has_skill_question    = excluded.has_skill_question,
	entry_time_estimate   = excluded.entry_time_estimate,
	hype_score            = excluded.hype_score,
	curated_summary       = excluded.curated_summary,
	discovered_at         = excluded.discovered_at,
	verified_at           = excluded.verified_at,
	exemption_type        = excluded.exemption_type,
	skill_test_required   = excluded.skill_test_required,
	free_route_verified   = excluded.free_route_verified,
	subscription_risk     = excluded.subscription_risk,
	premium_rate_detected = excluded.premium_rate_detected
`

// UpsertCompetition writes a competition row, overwriting every mutable
// column on conflict.
func (s *SQLiteStore) UpsertCompetition(ctx context.Context, comp *model.Competition) error {
	exemption := comp.ExemptionType
	if exemption == "" {
		exemption = model.ExemptionUnknown
	}

	_, err := s.db.ExecContext(ctx, sqliteUpsertSQL,
		comp.ID, comp.SourceURL, comp.SourceSite, comp.Title,
		comp.PrizeSummary, comp.PrizeValueEstimate, comp.ClosesAt,
		comp.IsFree, comp.HasSkillQuestion, comp.EntryTimeEstimate, comp.HypeScore,
		comp.CuratedSummary, comp.DiscoveredAt, comp.VerifiedAt, string(exemption),
		comp.SkillTestRequired, comp.FreeRouteVerified, comp.SubscriptionRisk, comp.PremiumRateDetected,
	)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return resilience.NewTransientError(eris.Wrapf(err, "sqlite: upsert competition %s", comp.ID), 0)
		}
		return eris.Wrapf(err, "sqlite: upsert competition %s", comp.ID)
	}
	return nil
}

// Ping performs a trivial round trip for the readiness probe.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return resilience.NewTransientError(eris.Wrap(err, "sqlite: ping"), 0)
	}
	return nil
}

// Close closes the database handle.
func (s *SQLiteStore) Close() error {
	return eris.Wrap(s.db.Close(), "sqlite: close")
}
