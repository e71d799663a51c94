package score

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// QualityThreshold is the minimum score a result needs to be considered
// for processing.
const QualityThreshold = 20

// stopWords are dropped during query tokenization.
var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"by": {}, "for": {}, "from": {}, "how": {}, "in": {}, "is": {}, "it": {},
	"of": {}, "on": {}, "or": {}, "that": {}, "the": {}, "this": {}, "to": {},
	"was": {}, "what": {}, "when": {}, "where": {}, "which": {}, "who": {},
	"why": {}, "will": {}, "with": {},
}

// domainAuthority adds a fixed bonus for recognizable hosts. Entries are
// ordered most specific first; the first substring match of the lowercased
// URL wins.
var domainAuthority = []struct {
	Needle string
	Bonus  int
}{
	{"wikipedia.org", 200},
	{"britannica.com", 180},
	{"reuters.com", 170},
	{"apnews.com", 170},
	{"bbc.com", 160},
	{"bbc.co.uk", 160},
	{"nytimes.com", 150},
	{"theguardian.com", 140},
	{"economist.com", 140},
	{"nature.com", 140},
	{"sciencedirect.com", 130},
	{"springer.com", 120},
	{"arxiv.org", 120},
	{"scholar.google", 120},
	{"jstor.org", 110},
	{"pubmed.ncbi.nlm.nih.gov", 120},
	{"who.int", 120},
	{"un.org", 110},
	{".gov", 110},
	{".edu", 100},
	{".ac.uk", 100},
	{"stackoverflow.com", 100},
	{"github.com", 90},
	{"mozilla.org", 90},
	{"arstechnica.com", 80},
	{"techcrunch.com", 70},
	{"wired.com", 70},
	{".org", 40},
	{".net", 20},
}

var punct = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)

// Tokenize lowercases, strips punctuation, splits on whitespace, and drops
// stop words.
func Tokenize(query string) []string {
	cleaned := punct.ReplaceAllString(strings.ToLower(query), " ")
	fields := strings.Fields(cleaned)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, stop := stopWords[f]; stop {
			continue
		}
		out = append(out, f)
	}
	return out
}

// Input carries the scoreable fields of one search result.
type Input struct {
	Title       string
	URL         string
	Description string
	EngineScore string
}

// Result scores one search hit against the query. The score is a
// deterministic additive integer: the engine's own score when parseable,
// word-boundary query token matches in title and description, and a fixed
// domain-authority bonus.
func Result(in Input, query string) int {
	total := engineScore(in.EngineScore)

	tokens := Tokenize(query)
	titleMatches := 0
	for _, tok := range tokens {
		if len(tok) <= 2 {
			continue
		}
		re, err := wordRe(tok)
		if err != nil {
			continue
		}
		if re.MatchString(strings.ToLower(in.Title)) {
			titleMatches++
			total += 25
		}
		if re.MatchString(strings.ToLower(in.Description)) {
			total += 10
		}
	}
	if titleMatches >= 2 {
		total += float64(10 * titleMatches)
	}

	total += DomainBonus(in.URL)
	return int(math.Round(total))
}

// DomainBonus returns the authority bonus for a URL, zero when no entry
// matches.
func DomainBonus(rawURL string) float64 {
	lower := strings.ToLower(rawURL)
	for _, entry := range domainAuthority {
		if strings.Contains(lower, entry.Needle) {
			return float64(entry.Bonus)
		}
	}
	return 0
}

func engineScore(raw string) float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "none") {
		return 0
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return v
}

func wordRe(token string) (*regexp.Regexp, error) {
	return regexp.Compile(`\b` + regexp.QuoteMeta(token) + `\b`)
}
