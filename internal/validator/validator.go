// Package validator gates malformed competition records and enriches
// legitimate ones with compliance and liveness signals.
package validator

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ukfreecomps/pipeline/internal/bus"
	"github.com/ukfreecomps/pipeline/internal/metrics"
	"github.com/ukfreecomps/pipeline/internal/model"
	"github.com/ukfreecomps/pipeline/internal/resilience"
	"github.com/ukfreecomps/pipeline/pkg/gemini"
)

// Validator enriches and approves competitions, publishing approved records
// downstream.
type Validator struct {
	publisher bus.Publisher
	enricher  *enricher
	now       func() time.Time
}

// New wires a validator. A nil or disabled llm means every record gets the
// conservative fallback enrichment.
func New(pub bus.Publisher, llm gemini.Client, enrichModel string) *Validator {
	return &Validator{
		publisher: pub,
		enricher:  &enricher{llm: llm, model: enrichModel},
		now:       time.Now,
	}
}

// Handle consumes one validated-listing message. Permanent failures (schema
// violations, not-live determinations) are dropped; everything else retries
// via redelivery.
func (v *Validator) Handle(ctx context.Context, body []byte) bus.Verdict {
	var comp model.Competition
	if err := json.Unmarshal(body, &comp); err != nil {
		zap.L().Error("competition unparseable, dropping", zap.Error(err))
		metrics.PermanentDrops.WithLabelValues("validator").Inc()
		return bus.Drop
	}

	if _, err := v.Process(ctx, comp, ""); err != nil {
		if resilience.IsPermanent(err) {
			zap.L().Warn("competition rejected",
				zap.String("id", comp.ID),
				zap.Error(err),
			)
			metrics.PermanentDrops.WithLabelValues("validator").Inc()
			return bus.Drop
		}
		zap.L().Error("validation failed transiently, retrying",
			zap.String("id", comp.ID),
			zap.Error(err),
		)
		return bus.Retry
	}
	return bus.Ack
}

// Process runs the schema gate and compliance enrichment, stamps the
// approval time, and publishes the result downstream. Rejections carry a
// permanent tag; repeated validation of the same invalid record always
// rejects.
func (v *Validator) Process(ctx context.Context, comp model.Competition, htmlExcerpt string) (*model.Competition, error) {
	if errs := validateSchema(&comp); len(errs) > 0 {
		return nil, resilience.NewPermanentError(
			eris.Errorf("validator: schema rejected: %s", strings.Join(errs, "; ")))
	}

	enrichment := v.enricher.Enrich(ctx, &comp, htmlExcerpt)

	if !enrichment.Live {
		return nil, resilience.NewPermanentError(
			eris.New("validator: competition determined not live"))
	}

	oldHype := comp.HypeScore
	comp.IsFree = enrichment.FreeEntry
	comp.HasSkillQuestion = enrichment.HasSkillQuestion
	comp.EntryTimeEstimate = enrichment.EntryTimeEstimate
	comp.HypeScore = model.ClampHypeScore(comp.HypeScore + enrichment.HypeScoreAdjustment)
	comp.ExemptionType = enrichment.ExemptionType
	comp.FreeRouteVerified = enrichment.FreeRouteVerified
	comp.SkillTestRequired = enrichment.SkillTestRequired
	comp.SubscriptionRisk = enrichment.SubscriptionRisk
	comp.PremiumRateDetected = enrichment.PremiumRateDetected

	verifiedAt := v.now().UTC().Format(time.RFC3339)
	comp.VerifiedAt = &verifiedAt

	if err := v.publisher.Publish(ctx, comp); err != nil {
		return nil, eris.Wrap(err, "validator: publish approved competition")
	}

	zap.L().Info("competition approved",
		zap.String("id", comp.ID),
		zap.Int("hype_before", oldHype),
		zap.Int("hype_after", comp.HypeScore),
		zap.Bool("free", comp.IsFree),
	)
	return &comp, nil
}
