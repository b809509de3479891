package converter

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/ukfreecomps/pipeline/internal/model"
)

const prizeSummaryMax = 120

// defaultPrizeSummary is used when no heading or title is substantive.
const defaultPrizeSummary = "Prize details to be confirmed"

// inferPrizeSummary picks the best prize description from the page's first
// h1, first h2, or the listing title. Candidates over 5 chars qualify; among
// those at most 120 chars the longest wins, otherwise the first candidate.
func inferPrizeSummary(doc *goquery.Document, title string) string {
	raw := []string{title}
	if doc != nil {
		raw = []string{
			collapseSpace(doc.Find("h1").First().Text()),
			collapseSpace(doc.Find("h2").First().Text()),
			strings.TrimSpace(title),
		}
	}

	var candidates []string
	for _, c := range raw {
		if len(c) > 5 {
			candidates = append(candidates, c)
		}
	}
	if len(candidates) == 0 {
		return defaultPrizeSummary
	}

	best := ""
	for _, c := range candidates {
		if len(c) <= prizeSummaryMax && len(c) > len(best) {
			best = c
		}
	}
	if best == "" {
		best = candidates[0]
	}

	runes := []rune(best)
	if len(runes) > prizeSummaryMax {
		best = string(runes[:prizeSummaryMax])
	}
	return best
}

var socialSignals = []string{
	"follow us", "follow @", "retweet", "share this",
	"tag a friend", "tag someone", "instagram", "facebook share", "twitter",
}

var simpleFormSignals = []string{
	`type="email"`, `name="email"`, `type="text"`,
	`name="name"`, `name="firstname"`, `name="first_name"`,
}

// estimateEntryTime classifies entry effort from surface signals in the raw
// excerpt. Social steps take longest; a bare form is the quickest.
func estimateEntryTime(html string) string {
	lower := strings.ToLower(html)
	for _, s := range socialSignals {
		if strings.Contains(lower, s) {
			return "2–3 minutes"
		}
	}
	for _, s := range simpleFormSignals {
		if strings.Contains(lower, s) {
			return "30–60 seconds"
		}
	}
	return "1–2 minutes"
}

type hypeRule struct {
	keywords []string
	score    int
}

var hypeRules = []hypeRule{
	{[]string{"holiday", "cruise", "flight", "vacation", "safari", "travel"}, 9},
	{[]string{"macbook", "iphone", "ps5", "playstation", "xbox", "gaming laptop", "ipad"}, 9},
	{[]string{"car", "vehicle", "van", "motorbike", "tesla", "bmw"}, 8},
	{[]string{"£10,000", "£5,000", "£2,000", "£1,500", "£1,000", "cash prize"}, 10},
	{[]string{"£500", "£750", "£800", "amazon voucher", "gift card"}, 8},
	{[]string{"spa", "experience", "event ticket", "concert", "festival"}, 7},
	{[]string{"kitchen", "appliance", "dyson", "hoover", "vacuum", "coffee machine"}, 6},
	{[]string{"book", "subscription", "hamper", "beauty", "skincare"}, 5},
	{[]string{"t-shirt", "cap", "mug", "keyring", "badge", "sticker"}, 3},
	{[]string{"sample", "trial", "freebie", "goodie bag"}, 4},
}

const defaultHypeScore = 5

// scoreHype matches title and prize text against the keyword table, taking
// the highest matching score and defaulting to a neutral mid-value.
func scoreHype(title, prizeSummary string) int {
	haystack := strings.ToLower(title + " " + prizeSummary)
	best := defaultHypeScore
	for _, rule := range hypeRules {
		for _, kw := range rule.keywords {
			if strings.Contains(haystack, kw) {
				if rule.score > best {
					best = rule.score
				}
				break
			}
		}
	}
	return model.ClampHypeScore(best)
}

var skillQuestionRe = regexp.MustCompile(`(?i)skill|question|answer|tie.?break`)

func hasSkillQuestion(html string) bool {
	return skillQuestionRe.MatchString(html)
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
