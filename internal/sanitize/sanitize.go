// Package sanitize applies the strict post-render HTML allowlist (spec
// §4.5) to every rendered document before it leaves the renderer:
// allowed tags/attributes, URL scheme checks, and a YouTube-only
// iframe policy with forced attributes. bluemonday's policy model
// allows elements by structural rule but cannot express "force this
// exact attribute set," so the iframe case is handled by a pre-pass
// that extracts permitted iframes, lets bluemonday strip everything
// else (including any iframe it would otherwise have dropped
// outright), then reinserts the rewritten iframe markup.
package sanitize

import (
	"fmt"
	"regexp"

	"github.com/microcosm-cc/bluemonday"
)

// youtubeEmbed matches the three permitted YouTube iframe src shapes
// (spec §4.5).
var youtubeEmbed = regexp.MustCompile(
	`^https://(?:www\.youtube\.com/embed/|www\.youtube\.com/shorts/|www\.youtube-nocookie\.com/embed/)[A-Za-z0-9_-]{11}$`,
)

var iframeTag = regexp.MustCompile(`(?is)<iframe\b[^>]*?(?:/>|>.*?</iframe>)`)
var srcAttr = regexp.MustCompile(`(?is)\bsrc\s*=\s*["']([^"']+)["']`)
var placeholderPattern = regexp.MustCompile(`AGBLOGGERIFRAMEPLACEHOLDER(\d+)ENDPLACEHOLDER`)

// Sanitizer wraps a configured bluemonday policy.
type Sanitizer struct {
	policy *bluemonday.Policy
}

// New builds the fixed allowlist policy (spec §4.5). allowDataImages
// toggles the optional whitelisted `data:image/` form.
func New(allowDataImages bool) *Sanitizer {
	p := bluemonday.NewPolicy()

	p.AllowStandardURLs()
	p.AllowURLSchemes("http", "https", "mailto")
	p.RequireParseableURLs(true)
	p.AllowRelativeURLs(true)

	blocks := []string{
		"p", "div", "blockquote", "pre", "hr",
		"h1", "h2", "h3", "h4", "h5", "h6",
		"ul", "ol", "li",
		"table", "thead", "tbody", "tr", "th", "td",
		"figure", "figcaption",
	}
	p.AllowElements(blocks...)

	inline := []string{
		"a", "strong", "em", "b", "i", "u", "s", "del", "ins",
		"code", "span", "br", "sub", "sup", "mark", "kbd",
	}
	p.AllowElements(inline...)

	p.AllowAttrs("href").OnElements("a")
	p.AllowAttrs("title").OnElements("a", "abbr")
	p.AllowAttrs("id").OnElements("h1", "h2", "h3", "h4", "h5", "h6", "a")
	p.AllowAttrs("class").OnElements("span", "div", "code", "pre")
	p.AllowAttrs("colspan", "rowspan").OnElements("td", "th")
	p.AllowAttrs("align").Matching(bluemonday.CellAlign).OnElements("td", "th")

	p.AllowImages()
	p.AllowAttrs("src", "alt", "width", "height").OnElements("img")
	if allowDataImages {
		p.AllowDataURIImages()
	}

	// Script-bearing constructs (<script>, on* handlers, style with
	// expressions) are never in an allowlisted tag/attribute set above,
	// so bluemonday strips them unconditionally.

	return &Sanitizer{policy: p}
}

// Sanitize runs html through the iframe pre-pass, the allowlist
// policy, then reinserts any surviving YouTube iframes with their
// forced attribute set (spec §4.5).
func (s *Sanitizer) Sanitize(html string) string {
	withPlaceholders, iframes := extractIframes(html)
	cleaned := s.policy.Sanitize(withPlaceholders)
	return reinsertIframes(cleaned, iframes)
}

func extractIframes(html string) (string, []string) {
	var kept []string
	out := iframeTag.ReplaceAllStringFunc(html, func(tag string) string {
		m := srcAttr.FindStringSubmatch(tag)
		if m == nil || !youtubeEmbed.MatchString(m[1]) {
			return ""
		}
		rewritten := fmt.Sprintf(
			`<iframe src="%s" allowfullscreen loading="lazy" referrerpolicy="no-referrer" sandbox="allow-scripts allow-same-origin allow-popups"></iframe>`,
			m[1],
		)
		kept = append(kept, rewritten)
		return fmt.Sprintf("AGBLOGGERIFRAMEPLACEHOLDER%dENDPLACEHOLDER", len(kept)-1)
	})
	return out, kept
}

func reinsertIframes(html string, iframes []string) string {
	return placeholderPattern.ReplaceAllStringFunc(html, func(match string) string {
		sub := placeholderPattern.FindStringSubmatch(match)
		idx := 0
		fmt.Sscanf(sub[1], "%d", &idx)
		if idx < 0 || idx >= len(iframes) {
			return ""
		}
		return iframes[idx]
	})
}
