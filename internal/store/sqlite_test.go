package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite("file:" + t.Name() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestSQLiteStore_UpsertIdempotent(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	comp := sampleCompetition()
	require.NoError(t, s.UpsertCompetition(ctx, comp))

	// Redelivery with different field values: exactly one row remains and it
	// reflects the latest write.
	comp.HypeScore = 4
	comp.Title = "Win a holiday to Spain (updated)"
	require.NoError(t, s.UpsertCompetition(ctx, comp))

	var count, hype int
	var title string
	row := s.db.QueryRow(`SELECT COUNT(*) FROM competitions`)
	require.NoError(t, row.Scan(&count))
	row = s.db.QueryRow(`SELECT hype_score, title FROM competitions WHERE id = ?`, comp.ID)
	require.NoError(t, row.Scan(&hype, &title))

	assert.Equal(t, 1, count)
	assert.Equal(t, 4, hype)
	assert.Equal(t, "Win a holiday to Spain (updated)", title)
}

func TestSQLiteStore_UpsertLeavesReviewColumnsAlone(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	comp := sampleCompetition()
	require.NoError(t, s.UpsertCompetition(ctx, comp))

	// Simulate the out-of-band review surface.
	_, err := s.db.Exec(`UPDATE competitions SET manual_verified = 1, flagged = 1, click_count = 7 WHERE id = ?`, comp.ID)
	require.NoError(t, err)

	require.NoError(t, s.UpsertCompetition(ctx, comp))

	var manual, flagged, clicks int
	row := s.db.QueryRow(`SELECT manual_verified, flagged, click_count FROM competitions WHERE id = ?`, comp.ID)
	require.NoError(t, row.Scan(&manual, &flagged, &clicks))
	assert.Equal(t, 1, manual)
	assert.Equal(t, 1, flagged)
	assert.Equal(t, 7, clicks)
}

func TestSQLiteStore_Ping(t *testing.T) {
	s := newTestSQLite(t)
	assert.NoError(t, s.Ping(context.Background()))
}
