// Package sink persists final competitions into the relational store.
package sink

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/ukfreecomps/pipeline/internal/bus"
	"github.com/ukfreecomps/pipeline/internal/metrics"
	"github.com/ukfreecomps/pipeline/internal/model"
	"github.com/ukfreecomps/pipeline/internal/resilience"
	"github.com/ukfreecomps/pipeline/internal/store"
)

// Sink writes approved competitions to the store, keyed on id so redelivery
// is idempotent.
type Sink struct {
	store store.Store
}

// New wires a sink over a store.
func New(st store.Store) *Sink {
	return &Sink{store: st}
}

// Handle consumes one final-listing message. Malformed payloads and records
// missing identity fields are poison and dropped. Connection-shaped store
// failures retry via redelivery; everything else is acked away with an alarm
// so a bad record never blocks the channel.
func (s *Sink) Handle(ctx context.Context, body []byte) bus.Verdict {
	var comp model.Competition
	if err := json.Unmarshal(body, &comp); err != nil {
		zap.L().Error("final competition unparseable, dropping", zap.Error(err))
		metrics.PermanentDrops.WithLabelValues("sink").Inc()
		return bus.Drop
	}

	if strings.TrimSpace(comp.ID) == "" || strings.TrimSpace(comp.SourceURL) == "" {
		zap.L().Error("final competition missing identity fields, dropping",
			zap.String("id", comp.ID),
			zap.String("source_url", comp.SourceURL),
		)
		metrics.PermanentDrops.WithLabelValues("sink").Inc()
		return bus.Drop
	}

	if err := s.store.UpsertCompetition(ctx, &comp); err != nil {
		if resilience.IsTransient(err) {
			zap.L().Warn("upsert failed transiently, retrying",
				zap.String("id", comp.ID),
				zap.Error(err),
			)
			return bus.Retry
		}
		zap.L().Error("upsert failed permanently, dropping",
			zap.String("id", comp.ID),
			zap.String("classification", resilience.Classify(err)),
			zap.Error(err),
		)
		metrics.PermanentDrops.WithLabelValues("sink").Inc()
		return bus.Drop
	}

	metrics.Upserts.Inc()
	zap.L().Info("competition persisted",
		zap.String("id", comp.ID),
		zap.Bool("verified", comp.Verified()),
	)
	return bus.Ack
}
