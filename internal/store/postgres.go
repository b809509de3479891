package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/ukfreecomps/pipeline/internal/config"
	"github.com/ukfreecomps/pipeline/internal/db"
	"github.com/ukfreecomps/pipeline/internal/model"
	"github.com/ukfreecomps/pipeline/internal/resilience"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *config.PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// newPostgresWithPool wires an existing pool, used by tests with pgxmock.
func newPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, closeFn: pool.Close}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS competitions (
	id                    TEXT PRIMARY KEY,
	source_url            TEXT NOT NULL,
	source_site           TEXT NOT NULL,
	title                 TEXT NOT NULL,
	prize_summary         TEXT,
	prize_value_estimate  DOUBLE PRECISION,
	closes_at             TEXT,
	is_free               BOOLEAN NOT NULL DEFAULT true,
	has_skill_question    BOOLEAN NOT NULL DEFAULT false,
	entry_time_estimate   TEXT NOT NULL DEFAULT '',
	hype_score            INTEGER NOT NULL,
	curated_summary       TEXT NOT NULL,
	discovered_at         TEXT NOT NULL,
	verified_at           TEXT,
	exemption_type        TEXT NOT NULL DEFAULT 'unknown',
	skill_test_required   BOOLEAN NOT NULL DEFAULT false,
	free_route_verified   BOOLEAN NOT NULL DEFAULT false,
	subscription_risk     BOOLEAN NOT NULL DEFAULT false,
	premium_rate_detected BOOLEAN NOT NULL DEFAULT false,

	-- Mutated out of band by human review and the click-redirect surface.
	-- Never written by the pipeline's upsert.
	manual_verified       BOOLEAN NOT NULL DEFAULT false,
	flagged               BOOLEAN NOT NULL DEFAULT false,
	click_count           INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_competitions_verified_at ON competitions(verified_at);
CREATE INDEX IF NOT EXISTS idx_competitions_source_site ON competitions(source_site);
`

// Migrate applies the schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresMigration); err != nil {
		return eris.Wrap(err, "postgres: migrate")
	}
	return nil
}

const upsertCompetitionSQL = `
INSERT INTO competitions (
	id, source_url, source_site, title,
	prize_summary, prize_value_estimate, closes_at,
	is_free, has_skill_question, entry_time_estimate, hype_score,
	curated_summary, discovered_at, verified_at, exemption_type,
	skill_test_required, free_route_verified, subscription_risk, premium_rate_detected
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
	$11, $12, $13, $14, $15, $16, $17, $18, $19
)
ON CONFLICT (id) DO UPDATE SET
	source_url            = EXCLUDED.source_url,
	source_site           = EXCLUDED.source_site,
	title                 = EXCLUDED.title,
	prize_summary         = EXCLUDED.prize_summary,
	prize_value_estimate  = EXCLUDED.prize_value_estimate,
	closes_at             = EXCLUDED.closes_at,
	is_free               = EXCLUDED.is_free,
	has_skill_question    = EXCLUDED.has_skill_question,
	entry_time_estimate   = EXCLUDED.entry_time_estimate,
	hype_score            = EXCLUDED.hype_score,
	curated_summary       = EXCLUDED.curated_summary,
	discovered_at         = EXCLUDED.discovered_at,
	verified_at           = EXCLUDED.verified_at,
	exemption_type        = EXCLUDED.exemption_type,
	skill_test_required   = EXCLUDED.skill_test_required,
	free_route_verified   = EXCLUDED.free_route_verified,
	subscription_risk     = EXCLUDED.subscription_risk,
	premium_rate_detected = EXCLUDED.premium_rate_detected
`

// UpsertCompetition writes a competition row, overwriting every mutable
// column on conflict. Latest write wins; the pipeline is the sole writer of
// these columns.
func (s *PostgresStore) UpsertCompetition(ctx context.Context, comp *model.Competition) error {
	exemption := comp.ExemptionType
	if exemption == "" {
		exemption = model.ExemptionUnknown
	}

	_, err := s.pool.Exec(ctx, upsertCompetitionSQL,
		comp.ID, comp.SourceURL, comp.SourceSite, comp.Title,
		comp.PrizeSummary, comp.PrizeValueEstimate, comp.ClosesAt,
		comp.IsFree, comp.HasSkillQuestion, comp.EntryTimeEstimate, comp.HypeScore,
		comp.CuratedSummary, comp.DiscoveredAt, comp.VerifiedAt, string(exemption),
		comp.SkillTestRequired, comp.FreeRouteVerified, comp.SubscriptionRisk, comp.PremiumRateDetected,
	)
	if err != nil {
		return classifyStoreError(eris.Wrapf(err, "postgres: upsert competition %s", comp.ID))
	}
	return nil
}

// Ping performs a trivial round trip for the readiness probe.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return resilience.NewTransientError(eris.Wrap(err, "postgres: ping"), 0)
	}
	return nil
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// classifyStoreError tags connection-shaped failures transient so the sink
// nacks them; constraint and schema errors stay untagged and are dropped.
func classifyStoreError(err error) error {
	if resilience.IsTransient(err) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) {
		return resilience.NewTransientError(err, 0)
	}
	return err
}
