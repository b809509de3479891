package converter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ukfreecomps/pipeline/internal/metrics"
	"github.com/ukfreecomps/pipeline/internal/resilience"
	"github.com/ukfreecomps/pipeline/pkg/gemini"
)

const (
	curatedSummaryMax = 400
	summaryTimeout    = 12 * time.Second
	summaryExcerptMax = 4000
	summaryTemp       = 0.7
	summaryMaxTokens  = 150
	summaryRetries    = 2

	// houseAdSentinel is the model's answer when the page only advertises the
	// listing site itself.
	houseAdSentinel = "HOUSE_AD"
)

// summarizer produces the curated summary, preferring the generative path
// and always having the deterministic template ready.
type summarizer struct {
	llm   gemini.Client
	model string
}

// Generate returns a non-empty summary capped at 400 chars. Generative
// failures, empty output, and the house-ad sentinel all fall back to the
// templated sentence after the retry budget.
func (s *summarizer) Generate(ctx context.Context, title, sourceSite, htmlExcerpt, heuristicFallback string) string {
	if s.llm == nil || !s.llm.Enabled() {
		return capSummary(heuristicFallback)
	}

	prompt := buildSummaryPrompt(title, sourceSite, htmlExcerpt)

	text, err := resilience.DoVal(ctx, resilience.RetryConfig{
		MaxAttempts:    summaryRetries,
		InitialBackoff: 250 * time.Millisecond,
		ShouldRetry:    func(error) bool { return true },
		OnRetry:        resilience.RetryLogger("gemini", "summary"),
	}, func(ctx context.Context) (string, error) {
		callCtx, cancel := context.WithTimeout(ctx, summaryTimeout)
		defer cancel()

		text, err := s.llm.GenerateText(callCtx, s.model, gemini.TextRequest{
			Prompt:      prompt,
			Temperature: summaryTemp,
			MaxTokens:   summaryMaxTokens,
		})
		if err != nil {
			return "", err
		}
		text = strings.TrimSpace(text)
		if text == "" || strings.Contains(text, houseAdSentinel) {
			return "", fmt.Errorf("converter: unusable summary output")
		}
		return text, nil
	})
	if err != nil {
		metrics.LLMFallbacks.WithLabelValues("converter").Inc()
		zap.L().Warn("summary generation exhausted, using template",
			zap.Error(err),
		)
		return capSummary(heuristicFallback)
	}
	return capSummary(text)
}

func buildSummaryPrompt(title, sourceSite, htmlExcerpt string) string {
	runes := []rune(htmlExcerpt)
	if len(runes) > summaryExcerptMax {
		htmlExcerpt = string(runes[:summaryExcerptMax])
	}

	return fmt.Sprintf(`You are helping write short, human-sounding descriptions of online prize competitions for a UK competition listing site.

Input:
- Proposed Title: %s
- Found on: %s (This is the aggregator or forum, NOT necessarily the prize provider)
- HTML snippet: %s

Task:
Write 2-3 natural sentences that:
- Identify the REAL prize being offered.
- Identify the ACTUAL brand running the competition if mentioned (e.g. "Lidl", "Tesco", "Magic Radio").
- Briefly describe the entry method (e.g. "simple form", "social media share", "trivia question").
- Sounds like a real human "comper" recommending it to a friend.

Constraints:
- Do NOT describe %s itself (we know it's a listing site).
- If the HTML appears to be just an advertisement for %s, return "HOUSE_AD".
- Do NOT copy text verbatim; always paraphrase.
- Return only the description text, no JSON or quotes.`,
		title, sourceSite, htmlExcerpt, sourceSite, sourceSite)
}

// buildHeuristicSummary assembles the deterministic template from the
// heuristic fields. The intro rotates on title length so listings from one
// site don't all read identically.
func buildHeuristicSummary(title, sourceSite, prizeSummary, entryTime string, hypeScore int) string {
	prize := strings.TrimSuffix(prizeSummary, ".")
	intros := []string{
		fmt.Sprintf("Up for grabs from %s is %s.", sourceSite, prize),
		fmt.Sprintf("%s is running a competition where you could win %s.", sourceSite, prize),
		fmt.Sprintf("This giveaway from %s features %s as the top prize.", sourceSite, prize),
	}

	var effort string
	switch entryTime {
	case "30–60 seconds":
		effort = "Entry is lightning-fast — just fill in a couple of details and you're done."
	case "2–3 minutes":
		effort = "Entry involves a few extra steps such as following on social media, but it shouldn't take long."
	case "1–2 minutes":
		effort = "It takes only a minute or two to complete your entry."
	default:
		effort = "Entry is quick and straightforward."
	}

	var hype string
	switch {
	case hypeScore >= 8:
		hype = "This one is well worth entering — high prize value and a solid chance for dedicated deal hunters."
	case hypeScore >= 6:
		hype = "A decent competition with a worthwhile prize — add it to your entry list today."
	default:
		hype = "A nice little freebie — low effort and something to add to your daily entries."
	}

	return intros[len(title)%len(intros)] + " " + effort + " " + hype
}

// capSummary guarantees the non-empty, bounded-length invariant.
func capSummary(text string) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "A competition listed on UKFreeComps — click through for full details."
	}
	runes := []rune(trimmed)
	if len(runes) <= curatedSummaryMax {
		return trimmed
	}
	return string(runes[:curatedSummaryMax-1]) + "…"
}
