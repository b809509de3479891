package validator

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ukfreecomps/pipeline/internal/metrics"
	"github.com/ukfreecomps/pipeline/internal/model"
	"github.com/ukfreecomps/pipeline/pkg/gemini"
)

const (
	enrichTimeout    = 15 * time.Second
	enrichExcerptMax = 4000

	hypeAdjustmentMin = -3
	hypeAdjustmentMax = 3
)

// Enrichment is the strict, fully-defaulted compliance signal set applied to
// a competition that passed the schema gate.
type Enrichment struct {
	Live                bool
	FreeEntry           bool
	HasSkillQuestion    bool
	EntryTimeEstimate   string
	HypeScoreAdjustment int
	ExemptionType       model.ExemptionType
	FreeRouteVerified   bool
	SkillTestRequired   bool
	SubscriptionRisk    bool
	PremiumRateDetected bool
}

// fallbackEnrichment is the conservative substitute when the generative call
// fails outright: optimistic on liveness and free entry so an outage never
// silently empties the pipeline, neutral on everything else.
func fallbackEnrichment() Enrichment {
	return Enrichment{
		Live:              true,
		FreeEntry:         true,
		EntryTimeEstimate: "1–2 minutes",
		ExemptionType:     model.ExemptionUnknown,
	}
}

// partialEnrichment is the tolerant wire shape parsed from the model's JSON.
// Every field is optional; coerce folds it into a strict Enrichment.
type partialEnrichment struct {
	Live                *bool    `json:"live"`
	FreeEntry           *bool    `json:"free_entry"`
	HasSkillQuestion    *bool    `json:"has_skill_question"`
	EntryTimeEstimate   *string  `json:"entry_time_estimate"`
	HypeScoreAdjustment *float64 `json:"hype_score_adjustment"`
	ExemptionType       *string  `json:"exemption_type"`
	FreeRouteVerified   *bool    `json:"free_route_verified"`
	SkillTestRequired   *bool    `json:"skill_test_required"`
	SubscriptionRisk    *bool    `json:"subscription_risk"`
	PremiumRateDetected *bool    `json:"premium_rate_detected"`
}

// coerce defaults each field independently so a partially malformed response
// degrades gracefully instead of failing outright.
func (p *partialEnrichment) coerce() Enrichment {
	boolOf := func(v *bool) bool { return v != nil && *v }

	e := Enrichment{
		Live:                boolOf(p.Live),
		FreeEntry:           boolOf(p.FreeEntry),
		HasSkillQuestion:    boolOf(p.HasSkillQuestion),
		EntryTimeEstimate:   "unknown",
		ExemptionType:       model.ExemptionUnknown,
		FreeRouteVerified:   boolOf(p.FreeRouteVerified),
		SkillTestRequired:   boolOf(p.SkillTestRequired),
		SubscriptionRisk:    boolOf(p.SubscriptionRisk),
		PremiumRateDetected: boolOf(p.PremiumRateDetected),
	}

	if p.EntryTimeEstimate != nil && strings.TrimSpace(*p.EntryTimeEstimate) != "" {
		e.EntryTimeEstimate = strings.TrimSpace(*p.EntryTimeEstimate)
	}
	if p.ExemptionType != nil {
		e.ExemptionType = model.ParseExemptionType(*p.ExemptionType)
	}
	if p.HypeScoreAdjustment != nil {
		adj := int(*p.HypeScoreAdjustment)
		if adj < hypeAdjustmentMin {
			adj = hypeAdjustmentMin
		}
		if adj > hypeAdjustmentMax {
			adj = hypeAdjustmentMax
		}
		e.HypeScoreAdjustment = adj
	}
	return e
}

var fencedJSONRe = regexp.MustCompile("(?is)```(?:json)?\\s*([\\s\\S]+?)```")

// parseEnrichment tries a direct JSON parse, then extraction from a fenced
// code block.
func parseEnrichment(raw string) (*partialEnrichment, error) {
	var p partialEnrichment
	if err := json.Unmarshal([]byte(raw), &p); err == nil {
		return &p, nil
	}

	if m := fencedJSONRe.FindStringSubmatch(raw); m != nil {
		if err := json.Unmarshal([]byte(m[1]), &p); err == nil {
			return &p, nil
		}
	}
	return nil, fmt.Errorf("validator: enrichment output is not valid JSON: %.200s", raw)
}

// enricher wraps the generative compliance pass.
type enricher struct {
	llm   gemini.Client
	model string
}

// Enrich returns the model's compliance judgment for a competition, or the
// conservative fallback on any call or parse failure.
func (e *enricher) Enrich(ctx context.Context, comp *model.Competition, htmlExcerpt string) Enrichment {
	if e.llm == nil || !e.llm.Enabled() {
		return fallbackEnrichment()
	}

	prompt := buildEnrichmentPrompt(comp.Title, comp.SourceURL, htmlExcerpt)

	callCtx, cancel := context.WithTimeout(ctx, enrichTimeout)
	defer cancel()

	raw, err := e.llm.GenerateJSON(callCtx, e.model, prompt)
	if err != nil {
		metrics.LLMFallbacks.WithLabelValues("validator").Inc()
		zap.L().Warn("enrichment call failed, using fallback",
			zap.String("id", comp.ID),
			zap.Error(err),
		)
		return fallbackEnrichment()
	}

	partial, err := parseEnrichment(raw)
	if err != nil {
		metrics.LLMFallbacks.WithLabelValues("validator").Inc()
		zap.L().Warn("enrichment output unparseable, using fallback",
			zap.String("id", comp.ID),
			zap.Error(err),
		)
		return fallbackEnrichment()
	}

	enrichment := partial.coerce()
	zap.L().Debug("enrichment applied",
		zap.String("id", comp.ID),
		zap.Bool("live", enrichment.Live),
		zap.Bool("free", enrichment.FreeEntry),
		zap.Int("adjustment", enrichment.HypeScoreAdjustment),
	)
	return enrichment
}

func buildEnrichmentPrompt(title, sourceURL, htmlExcerpt string) string {
	runes := []rune(htmlExcerpt)
	if len(runes) > enrichExcerptMax {
		htmlExcerpt = string(runes[:enrichExcerptMax])
	}

	return fmt.Sprintf(`You are validating online prize competitions for a UK competition listing website.

Your job:
- Decide if the competition is still LIVE.
- Decide if there is a FREE ENTRY route (no payment required to enter).
- Decide if a SKILL QUESTION is required (e.g. quiz question, 'spot the ball', tie-breaker answer).
- Determine UK Gambling Act compliance metrics: exemption_type, free_route_verified, skill_test_required, subscription_risk, and premium_rate_detected.
- Estimate TIME TO ENTER based on how complex the entry is.
- Optionally adjust a hype score.

You MUST respond with VALID JSON ONLY, no extra text, no comments.

JSON schema:
{
  "live": boolean,
  "free_entry": boolean,
  "has_skill_question": boolean,
  "exemption_type": string, // "free_draw" | "prize_competition" | "unknown"
  "free_route_verified": boolean,
  "skill_test_required": boolean,
  "subscription_risk": boolean,
  "premium_rate_detected": boolean,
  "entry_time_estimate": string,   // e.g. "30 seconds", "2-3 minutes"
  "hype_score_adjustment": number  // between -3 and 3
}

Guidelines:
- live: false if the page clearly says closed/ended or has a past closing date.
- free_entry: true only if the main way to enter does NOT require payment (ignore optional extra-pay entries).
- has_skill_question: true if there is any question that requires knowledge/creativity beyond just filling a form.
- exemption_type: "free_draw" if entry is purely chance with no payment or via a free route (e.g., postal). "prize_competition" if a significant skill test prevents a large proportion of people from entering or winning. "unknown" if unclear.
- free_route_verified: true if a free entry route (like postal or free web entry) is explicitly mentioned and verified in the text.
- skill_test_required: true if a non-trivial skill, judgment, or knowledge test is required.
- subscription_risk: true if entry clearly requires signing up to a recurring paid subscription.
- premium_rate_detected: true if the text mentions premium rate phone numbers (e.g. starting with 09) or text messages that cost significant money.
- entry_time_estimate: "30-60 seconds" for name/email/postcode, "2-3 minutes" for social follows or multiple steps, "5+ minutes" for long forms or uploads.
- hype_score_adjustment: +2 to +3 for very high-value prizes, +1 for attractive mid-range prizes, 0 for average, -1 to -3 for low-value or spammy prizes.

Now analyse this competition:

TITLE:
%s

URL:
%s

HTML_SNIPPET (may be truncated):
%s

Return ONLY JSON, exactly matching the schema above.`, title, sourceURL, htmlExcerpt)
}
