package scout

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Excerpt caps. Discovered entries carry a small fragment; brand pages keep
// more because the converter mines them for headings and form signals.
const (
	entryExcerptMax = 5000
	brandExcerptMax = 50000
)

// The UGC policy strips form markup, but the converter classifies entry
// effort from input type/name attributes in the excerpt, so those elements
// are allowed back in.
var excerptPolicy = func() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowElements("form", "label", "select", "option", "textarea", "fieldset", "legend")
	p.AllowAttrs("type", "name", "placeholder").OnElements("input", "button")
	p.AllowNoAttrs().OnElements("input", "button")
	return p
}()

// excerpt sanitizes untrusted HTML and caps its length. The cap is applied
// on runes so a multi-byte character is never split.
func excerpt(html string, max int) string {
	clean := strings.TrimSpace(excerptPolicy.Sanitize(html))
	runes := []rune(clean)
	if len(runes) <= max {
		return clean
	}
	return string(runes[:max])
}
