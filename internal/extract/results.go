package extract

import (
	"bytes"
	"html"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// SearchResult is one canonical record lifted from a search results page.
// EngineScore and State carry the engine's own hidden-field values verbatim;
// both may be empty or "None".
type SearchResult struct {
	Title       string
	URL         string
	Description string
	EngineScore string
	State       string
}

// blockSelectors are tried in order; the first selector with any matches
// defines the result blocks for the whole page.
var blockSelectors = []string{
	"table.result",
	"div.result",
	"div.web-result",
}

// navPatterns mark link targets that are site chrome rather than results.
var navPatterns = []string{
	"/page/", "/edit/", "/user/", "/admin/",
	"javascript:", "#", "mailto:", "/search?", "/tag/", "/category/",
}

// SearchResults parses a search engine results page. Canonical data comes
// from hidden input fields inside each result block; visible title/extract
// paragraphs are fallbacks. When no block selector matches, the page is
// scanned for plausible outbound links instead.
func SearchResults(input []byte) []SearchResult {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(input))
	if err != nil {
		return nil
	}

	var blocks *goquery.Selection
	for _, sel := range blockSelectors {
		if s := doc.Find(sel); s.Length() > 0 {
			blocks = s
			break
		}
	}
	if blocks == nil {
		return harvestLinks(doc)
	}

	out := make([]SearchResult, 0, blocks.Length())
	blocks.Each(func(_ int, block *goquery.Selection) {
		r := SearchResult{
			Title:       hiddenField(block, "title"),
			URL:         hiddenField(block, "url"),
			Description: hiddenField(block, "extract"),
			EngineScore: hiddenField(block, "score"),
			State:       hiddenField(block, "state"),
		}
		if r.Title == "" {
			r.Title = strings.TrimSpace(block.Find("p.title").First().Text())
		}
		if r.Description == "" {
			r.Description = strings.TrimSpace(block.Find("p.extract").First().Text())
		}
		if r.URL == "" {
			if href, ok := block.Find("a[href]").First().Attr("href"); ok {
				r.URL = strings.TrimSpace(href)
			}
		}
		if !isHTTPURL(r.URL) {
			return
		}
		r.Title = DecodeEntities(r.Title)
		r.Description = DecodeEntities(r.Description)
		out = append(out, r)
	})
	return out
}

func hiddenField(block *goquery.Selection, name string) string {
	v, _ := block.Find("input[name=" + name + "]").First().Attr("value")
	return strings.TrimSpace(v)
}

// harvestLinks is the degraded path for pages with no recognizable result
// blocks: keep outbound links with substantial anchor text, skip obvious
// navigation, and derive a description from the text around each link.
func harvestLinks(doc *goquery.Document) []SearchResult {
	var out []SearchResult
	seen := map[string]struct{}{}
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		href = strings.TrimSpace(href)
		if !strings.HasPrefix(href, "http") {
			return
		}
		text := strings.TrimSpace(a.Text())
		if len(text) < 10 {
			return
		}
		lower := strings.ToLower(href)
		for _, pat := range navPatterns {
			if strings.Contains(lower, pat) {
				return
			}
		}
		if _, ok := seen[href]; ok {
			return
		}
		seen[href] = struct{}{}
		out = append(out, SearchResult{
			Title:       DecodeEntities(text),
			URL:         href,
			Description: DecodeEntities(surroundingText(a, text)),
		})
	})
	return out
}

// surroundingText returns up to 200 characters on each side of the anchor
// text within its parent block.
func surroundingText(a *goquery.Selection, anchor string) string {
	parent := a.Closest("p,li,td,div")
	if parent.Length() == 0 {
		parent = a.Parent()
	}
	full := collapseSpaces(strings.TrimSpace(parent.Text()))
	if full == "" || anchor == "" {
		return full
	}
	idx := strings.Index(full, anchor)
	if idx < 0 {
		return truncateRunes(full, 400)
	}
	start := idx - 200
	if start < 0 {
		start = 0
	}
	end := idx + len(anchor) + 200
	if end > len(full) {
		end = len(full)
	}
	return strings.TrimSpace(full[start:end])
}

func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	// back off to a rune boundary
	for n > 0 && (s[n]&0xC0) == 0x80 {
		n--
	}
	return s[:n]
}

func isHTTPURL(u string) bool {
	lower := strings.ToLower(strings.TrimSpace(u))
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// DecodeEntities resolves named and numeric HTML entities. Decoding is
// idempotent for fully decoded output.
func DecodeEntities(s string) string {
	if !strings.Contains(s, "&") {
		return s
	}
	return html.UnescapeString(s)
}
