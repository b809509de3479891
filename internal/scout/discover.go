package scout

import (
	"net/url"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// candidate is a discovered link worth resolving into a raw listing.
type candidate struct {
	URL     string
	Title   string
	Excerpt string
}

// containerSelectors are tried in order when looking for the structural
// listing pattern of an aggregator or forum index page.
var containerSelectors = []string{
	"li", "article", "tr",
	".competition", ".listing", ".thread", ".post", ".item",
}

// minStructuredEntries is the threshold for treating a repeated container as
// the authoritative entry list.
const minStructuredEntries = 5

var competitionKeywords = []string{"win", "competition", "prize", "giveaway", "draw"}

var excludedLinkKeywords = []string{
	"login", "log in", "register", "sign up", "signup",
	"terms", "privacy", "cookie",
}

// Navigation paths internal to aggregator/forum software, never listings.
var (
	excludedExactPaths   = map[string]bool{"": true, "/": true, "/index.php": true, "/forum.php": true}
	excludedPathPrefixes = []string{"/members/", "/search/", "/style/"}
)

const minTitleLen = 5

// discoverEntries extracts candidate competition links from a landing page.
// Structured extraction wins when a repeated container pattern holds enough
// linked entries; otherwise every link is scanned for competition keywords or
// off-origin enter/out/exit signals.
func discoverEntries(doc *goquery.Document, base *url.URL, max int) []candidate {
	entries := discoverStructured(doc, base)
	if entries == nil {
		entries = discoverByKeyword(doc, base)
	}

	entries = dedupe(entries)

	// External destinations are more likely the true competition page.
	sort.SliceStable(entries, func(i, j int) bool {
		return isExternal(entries[i].URL, base) && !isExternal(entries[j].URL, base)
	})

	if len(entries) > max {
		entries = entries[:max]
	}
	return entries
}

func discoverStructured(doc *goquery.Document, base *url.URL) []candidate {
	for _, selector := range containerSelectors {
		var containers []*goquery.Selection
		doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
			if s.Find("a[href]").Length() > 0 {
				containers = append(containers, s)
			}
		})
		if len(containers) < minStructuredEntries {
			continue
		}

		var entries []candidate
		for _, container := range containers {
			anchor := container.Find("a[href]").First()
			href, _ := anchor.Attr("href")
			target := resolveHref(base, href)
			if target == "" {
				continue
			}

			title := strings.TrimSpace(anchor.Text())
			if len(title) < minTitleLen {
				title = collapseSpace(container.Text())
			}
			if skipLink(target, title) || len(title) < minTitleLen {
				continue
			}

			html, _ := goquery.OuterHtml(container)
			entries = append(entries, candidate{
				URL:     target,
				Title:   truncateTitle(title),
				Excerpt: html,
			})
		}
		if len(entries) > 0 {
			return entries
		}
	}
	return nil
}

func discoverByKeyword(doc *goquery.Document, base *url.URL) []candidate {
	var entries []candidate
	doc.Find("a[href]").Each(func(_ int, anchor *goquery.Selection) {
		href, _ := anchor.Attr("href")
		target := resolveHref(base, href)
		if target == "" {
			return
		}

		title := collapseSpace(anchor.Text())
		lower := strings.ToLower(title)

		matched := false
		for _, kw := range competitionKeywords {
			if strings.Contains(lower, kw) {
				matched = true
				break
			}
		}
		if !matched && isExternal(target, base) {
			signal := lower + " " + strings.ToLower(target)
			matched = strings.Contains(signal, "enter") ||
				strings.Contains(signal, "/out") ||
				strings.Contains(signal, "/exit")
		}
		if !matched || skipLink(target, title) || len(title) < minTitleLen {
			return
		}

		html, _ := goquery.OuterHtml(anchor.Parent())
		entries = append(entries, candidate{
			URL:     target,
			Title:   truncateTitle(title),
			Excerpt: html,
		})
	})
	return entries
}

// skipLink rejects login/legal/navigation links by keyword and path.
func skipLink(target, title string) bool {
	signal := strings.ToLower(title + " " + target)
	for _, kw := range excludedLinkKeywords {
		if strings.Contains(signal, kw) {
			return true
		}
	}

	u, err := url.Parse(target)
	if err != nil {
		return true
	}
	if excludedExactPaths[u.Path] {
		return true
	}
	for _, prefix := range excludedPathPrefixes {
		if strings.HasPrefix(u.Path, prefix) {
			return true
		}
	}
	return false
}

func resolveHref(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") ||
		strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	abs := base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return ""
	}
	abs.Fragment = ""
	return abs.String()
}

func isExternal(target string, base *url.URL) bool {
	u, err := url.Parse(target)
	if err != nil {
		return false
	}
	return u.Host != "" && u.Host != base.Host
}

func dedupe(entries []candidate) []candidate {
	seen := make(map[string]bool, len(entries))
	out := entries[:0]
	for _, e := range entries {
		if seen[e.URL] {
			continue
		}
		seen[e.URL] = true
		out = append(out, e)
	}
	return out
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncateTitle(s string) string {
	const maxTitle = 200
	runes := []rune(s)
	if len(runes) <= maxTitle {
		return s
	}
	return string(runes[:maxTitle])
}
