// Package store persists competitions in a relational database, with
// Postgres for production and SQLite for local development.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/ukfreecomps/pipeline/internal/config"
	"github.com/ukfreecomps/pipeline/internal/model"
)

// Store is the persistence interface the sink writes through. Upserts key on
// the competition id, so redelivered messages are idempotent.
type Store interface {
	UpsertCompetition(ctx context.Context, comp *model.Competition) error
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// Open selects a backend by the configured driver.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL, &cfg.Pool)
	case "sqlite":
		return NewSQLite(cfg.DatabaseURL)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}
