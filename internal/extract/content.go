package extract

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// contentSelectors locate the main body of an article page for the
// paragraph-level pass, most specific first.
var contentSelectors = []string{
	"article", "main",
	".content", "#content",
	".post-content", ".entry-content",
	"[role=main]",
	".article-body", ".story-body", ".page-content",
}

// boilerplatePrefixes remove promotional and legal filler lines wherever
// they appear in extracted text.
var boilerplatePrefixes = []string{
	"copyright",
	"privacy policy",
	"terms of service",
	"subscribe",
	"follow us",
	"share",
	"cookie policy",
	"all rights reserved",
	"sign up for",
	"download our app",
	"advertisement",
}

// chromeLines are navigation words that only count as noise when a line
// consists of nothing else.
var chromeLines = map[string]struct{}{
	"home": {}, "about": {}, "contact": {}, "menu": {}, "navigation": {},
}

// MeaningfulContent collects paragraph text from the page's main content
// containers. It returns an empty string when nothing usable is found;
// callers fall back to full Article extraction below MinMeaningfulChars.
func MeaningfulContent(input []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(input))
	if err != nil {
		return ""
	}
	var b strings.Builder
	for _, sel := range contentSelectors {
		doc.Find(sel).Find("p").Each(func(_ int, p *goquery.Selection) {
			text := collapseSpaces(strings.TrimSpace(p.Text()))
			if len(text) < 20 {
				return
			}
			b.WriteString(text)
			b.WriteString("\n")
		})
		if b.Len() > 0 {
			break
		}
	}
	return strings.TrimSpace(b.String())
}

// MinMeaningfulChars is the threshold below which the paragraph pass is
// considered to have failed.
const MinMeaningfulChars = 200

// PageText is the full per-page extraction pipeline: paragraph pass first,
// article mode when that comes up short, then boilerplate filtering.
func PageText(input []byte) string {
	text := MeaningfulContent(input)
	if len(text) < MinMeaningfulChars {
		text = Article(input).Text
	}
	return FilterBoilerplate(text)
}

// FilterBoilerplate drops filler lines: legal/promo prefixes anywhere, and
// bare navigation words.
func FilterBoilerplate(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		lower := strings.ToLower(trimmed)
		if _, ok := chromeLines[lower]; ok {
			continue
		}
		skip := false
		for _, prefix := range boilerplatePrefixes {
			if strings.HasPrefix(lower, prefix) {
				skip = true
				break
			}
		}
		if skip {
			continue
		}
		out = append(out, trimmed)
	}
	return strings.Join(out, "\n")
}

// CapChars truncates text to at most max bytes, preferring to cut at a
// sentence boundary when one falls in the last fifth of the window.
func CapChars(text string, max int) string {
	if max <= 0 || len(text) <= max {
		return text
	}
	window := truncateRunes(text, max)
	floor := max - max/5
	if idx := lastSentenceEnd(window); idx >= floor {
		return strings.TrimSpace(window[:idx+1])
	}
	return strings.TrimSpace(window)
}

func lastSentenceEnd(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		switch s[i] {
		case '.', '!', '?':
			return i
		}
	}
	return -1
}
