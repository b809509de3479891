package scout

import (
	"net/url"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestDiscoverStructuredList(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	b.WriteString("<ul>")
	for i := 0; i < 6; i++ {
		b.WriteString(`<li><a href="/comps/entry-`)
		b.WriteByte(byte('0' + i))
		b.WriteString(`">Win a fabulous prize number `)
		b.WriteByte(byte('0' + i))
		b.WriteString(`</a></li>`)
	}
	b.WriteString("</ul>")

	base := mustURL(t, "https://agg.example/competitions")
	entries := discoverEntries(parseDoc(t, b.String()), base, 40)

	require.Len(t, entries, 6)
	assert.Equal(t, "https://agg.example/comps/entry-0", entries[0].URL)
	assert.Contains(t, entries[0].Title, "Win a fabulous prize")
	assert.NotEmpty(t, entries[0].Excerpt)
}

func TestDiscoverFallsBackToKeywords(t *testing.T) {
	t.Parallel()

	html := `
		<p><a href="/giveaway/tv">Win a 65 inch TV</a></p>
		<p><a href="/news/today">Daily news roundup</a></p>
		<p><a href="https://other.example/out/123">click through here</a></p>`

	base := mustURL(t, "https://agg.example/")
	entries := discoverEntries(parseDoc(t, html), base, 40)

	require.Len(t, entries, 2)
	// External-origin links sort first.
	assert.Equal(t, "https://other.example/out/123", entries[0].URL)
	assert.Equal(t, "https://agg.example/giveaway/tv", entries[1].URL)
}

func TestDiscoverExcludesNavAndLegalLinks(t *testing.T) {
	t.Parallel()

	html := `<ul>
		<li><a href="/comps/one">Win prize draw one here</a></li>
		<li><a href="/comps/two">Win prize draw two here</a></li>
		<li><a href="/comps/three">Win prize draw three ok</a></li>
		<li><a href="/comps/four">Win prize draw four now</a></li>
		<li><a href="/members/john">Win stuff on my profile</a></li>
		<li><a href="/terms">Competition terms and rules</a></li>
		<li><a href="/login">Login to win more often</a></li>
	</ul>`

	base := mustURL(t, "https://forum.example/forum")
	entries := discoverEntries(parseDoc(t, html), base, 40)

	require.Len(t, entries, 4)
	for _, e := range entries {
		assert.NotContains(t, e.URL, "/members/")
		assert.NotContains(t, e.URL, "/terms")
		assert.NotContains(t, e.URL, "/login")
	}
}

func TestDiscoverCapsEntries(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	b.WriteString("<ul>")
	for i := 0; i < 60; i++ {
		b.WriteString(`<li><a href="/c/`)
		b.WriteString(strings.Repeat("x", i+1))
		b.WriteString(`">Win a lovely prize today</a></li>`)
	}
	b.WriteString("</ul>")

	base := mustURL(t, "https://agg.example/")
	entries := discoverEntries(parseDoc(t, b.String()), base, 40)
	assert.Len(t, entries, 40)
}

func TestDiscoverDropsShortTitles(t *testing.T) {
	t.Parallel()

	html := `
		<p><a href="/giveaway/a">Win</a></p>
		<p><a href="/giveaway/b">Win a holiday to Spain</a></p>`

	base := mustURL(t, "https://agg.example/")
	entries := discoverEntries(parseDoc(t, html), base, 40)

	require.Len(t, entries, 1)
	assert.Equal(t, "https://agg.example/giveaway/b", entries[0].URL)
}

func TestSkipLink(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		target string
		title  string
		want   bool
	}{
		{"plain listing", "https://x.example/comps/1", "Win a car", false},
		{"root path", "https://x.example/", "Win a car", true},
		{"forum index", "https://x.example/forum.php", "Win a car", true},
		{"search path", "https://x.example/search/?q=win", "Win a car", true},
		{"privacy keyword in title", "https://x.example/p/1", "Privacy policy", true},
		{"signup in url", "https://x.example/signup", "Great prizes", true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, skipLink(tt.target, tt.title))
		})
	}
}

func TestExcerptSanitizesAndCaps(t *testing.T) {
	t.Parallel()

	dirty := `<div onclick="evil()"><script>alert(1)</script><p>Win a holiday</p></div>`
	clean := excerpt(dirty, 5000)
	assert.NotContains(t, clean, "script")
	assert.NotContains(t, clean, "onclick")
	assert.Contains(t, clean, "Win a holiday")

	long := strings.Repeat("é", 6000)
	assert.Equal(t, 100, len([]rune(excerpt(long, 100))))
}

func TestExcerptKeepsEntryFormSignals(t *testing.T) {
	t.Parallel()

	page := `<h1>Win a holiday to Spain</h1>` +
		`<form action="/enter"><input type="email" name="email">` +
		`<input type="text" name="first_name"><button type="submit">Enter</button></form>` +
		`<script>track()</script>`
	clean := excerpt(page, 5000)

	assert.Contains(t, clean, `type="email"`)
	assert.Contains(t, clean, `name="email"`)
	assert.Contains(t, clean, `name="first_name"`)
	assert.Contains(t, clean, "<form")
	assert.NotContains(t, clean, "script")
	assert.NotContains(t, clean, "action=")
}
