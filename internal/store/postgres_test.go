package store

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ukfreecomps/pipeline/internal/model"
	"github.com/ukfreecomps/pipeline/internal/resilience"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit
// testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(
		pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp),
	)
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return newPostgresWithPool(mock), mock
}

func sampleCompetition() *model.Competition {
	verified := "2026-08-31T12:00:00Z"
	return &model.Competition{
		ID:                "11111111-2222-3333-4444-555555555555",
		SourceURL:         "https://brand.example/win",
		SourceSite:        "brand.example",
		Title:             "Win a holiday to Spain",
		IsFree:            true,
		EntryTimeEstimate: "30–60 seconds",
		HypeScore:         9,
		CuratedSummary:    "A cracking competition.",
		ExemptionType:     model.ExemptionFreeDraw,
		DiscoveredAt:      "2026-08-01T10:00:00Z",
		VerifiedAt:        &verified,
	}
}

// upsertArgs mirrors the parameter order of upsertCompetitionSQL.
func upsertArgs(c *model.Competition, exemption string) []any {
	return []any{c.ID, c.SourceURL, c.SourceSite, c.Title,
		c.PrizeSummary, c.PrizeValueEstimate, c.ClosesAt,
		c.IsFree, c.HasSkillQuestion, c.EntryTimeEstimate, c.HypeScore,
		c.CuratedSummary, c.DiscoveredAt, c.VerifiedAt, exemption,
		c.SkillTestRequired, c.FreeRouteVerified, c.SubscriptionRisk, c.PremiumRateDetected}
}

func TestPostgresStore_UpsertCompetition(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	comp := sampleCompetition()
	mock.ExpectExec(`INSERT INTO competitions`).
		WithArgs(upsertArgs(comp, "free_draw")...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.UpsertCompetition(context.Background(), comp))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertCompetition_Redelivery(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	// Same id arriving twice produces two upserts against one row; the mock
	// sees two execs, the table would see one INSERT and one UPDATE.
	comp := sampleCompetition()
	mock.ExpectExec(`INSERT INTO competitions`).
		WithArgs(upsertArgs(comp, "free_draw")...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, s.UpsertCompetition(context.Background(), comp))

	comp.HypeScore = 4
	mock.ExpectExec(`INSERT INTO competitions`).
		WithArgs(upsertArgs(comp, "free_draw")...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, s.UpsertCompetition(context.Background(), comp))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertCompetition_EmptyExemptionDefaulted(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	comp := sampleCompetition()
	comp.ExemptionType = ""
	mock.ExpectExec(`INSERT INTO competitions`).
		WithArgs(upsertArgs(comp, "unknown")...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.UpsertCompetition(context.Background(), comp))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertCompetition_ContextDeadlineIsTransient(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	comp := sampleCompetition()
	mock.ExpectExec(`INSERT INTO competitions`).
		WithArgs(upsertArgs(comp, "free_draw")...).
		WillReturnError(context.DeadlineExceeded)

	err := s.UpsertCompetition(context.Background(), comp)
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}

func TestPostgresStore_UpsertCompetition_ConstraintErrorIsPermanent(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	comp := sampleCompetition()
	mock.ExpectExec(`INSERT INTO competitions`).
		WithArgs(upsertArgs(comp, "free_draw")...).
		WillReturnError(assert.AnError)

	err := s.UpsertCompetition(context.Background(), comp)
	require.Error(t, err)
	assert.False(t, resilience.IsTransient(err))
}

func TestPostgresStore_Ping(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectPing()
	assert.NoError(t, s.Ping(context.Background()))

	mock.ExpectPing().WillReturnError(assert.AnError)
	err := s.Ping(context.Background())
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS competitions`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	assert.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
