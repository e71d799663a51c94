package budget

import (
	"math"
	"runtime"
	"sync"
)

// Process-envelope constants. The 128 MB figure reflects the reference
// deployment's process ceiling; MaxContentBytes leaves a 16 MB safety margin
// under it.
const (
	processCeilingBytes = 128 * 1024 * 1024
	safetyMarginBytes   = 16 * 1024 * 1024

	// MaxContentBytes is the default ceiling on cumulative fetched content.
	MaxContentBytes = processCeilingBytes - safetyMarginBytes

	// HeapGuardBytes refuses admissions that would push the live heap past
	// this point even when the content ceiling still has room.
	HeapGuardBytes = processCeilingBytes * 8 / 10

	// MaxTokens bounds the estimated token total of all admitted content.
	MaxTokens = 32_000

	// MaxPerPageChars caps a single page's contribution before admission.
	MaxPerPageChars = 4_000

	// minAdmitBytes is the floor under which a truncated admission is not
	// worth keeping at all.
	minAdmitBytes = 500
)

// EstimateTokensFromChars converts a character count into an estimated token
// count using a conservative heuristic (~4 chars per token in English).
func EstimateTokensFromChars(charCount int) int {
	if charCount <= 0 {
		return 0
	}
	return int(math.Ceil(float64(charCount) / 4.0))
}

// EstimateTokens returns the estimated token count of a string.
func EstimateTokens(s string) int {
	return EstimateTokensFromChars(len(s))
}

// State is a point-in-time copy of the governor's accounting, safe to report.
type State struct {
	TotalContentBytes int `json:"totalContentBytes"`
	MaxContentBytes   int `json:"maxContentBytes"`
	CurrentTokens     int `json:"currentTokens"`
	MaxTokens         int `json:"maxTokens"`
	MaxPerPageChars   int `json:"maxPerPageChars"`
}

// Admission is the outcome of one byte-ceiling admission request.
type Admission struct {
	Text           string
	Admitted       bool
	Truncated      bool
	OriginalLength int
	// Reason explains a rejection; empty when admitted.
	Reason string
	// Note tags truncated content for downstream display.
	Note string
}

// Truncation tags attached to content the governor had to shorten.
const (
	NoteMemoryTruncated = "[Content truncated due to memory limits]"
	NoteTokenOptimized  = "[Content optimized for token efficiency]"
)

// Governor enforces the byte ceiling, the heap guard, and the token ceiling
// for one request. It is the only component that mutates budget state; all
// fetch paths funnel through it, and both counters are monotone
// non-decreasing for the life of the request.
type Governor struct {
	mu sync.Mutex

	maxContentBytes int
	heapGuardBytes  int
	maxTokens       int
	maxPerPageChars int

	totalContentBytes int
	currentTokens     int

	// heapBytes reports the current live heap; replaceable for tests.
	heapBytes func() int
}

// NewGovernor returns a governor with the default ceilings.
func NewGovernor() *Governor {
	return &Governor{
		maxContentBytes: MaxContentBytes,
		heapGuardBytes:  HeapGuardBytes,
		maxTokens:       MaxTokens,
		maxPerPageChars: MaxPerPageChars,
		heapBytes:       liveHeapBytes,
	}
}

// NewGovernorWithLimits builds a governor with explicit ceilings, primarily
// for tests that need to exercise budget pressure without 100 MB payloads.
func NewGovernorWithLimits(maxContentBytes, heapGuardBytes, maxTokens, maxPerPageChars int) *Governor {
	g := NewGovernor()
	if maxContentBytes > 0 {
		g.maxContentBytes = maxContentBytes
	}
	if heapGuardBytes > 0 {
		g.heapGuardBytes = heapGuardBytes
	}
	if maxTokens > 0 {
		g.maxTokens = maxTokens
	}
	if maxPerPageChars > 0 {
		g.maxPerPageChars = maxPerPageChars
	}
	return g
}

// SetHeapProbe replaces the live-heap signal. Nil restores the default.
func (g *Governor) SetHeapProbe(probe func() int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if probe == nil {
		probe = liveHeapBytes
	}
	g.heapBytes = probe
}

func liveHeapBytes() int {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return int(m.HeapAlloc)
}

// MaxPerPage returns the per-page character cap in force.
func (g *Governor) MaxPerPage() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.maxPerPageChars
}

// Snapshot returns a copy of the current accounting.
func (g *Governor) Snapshot() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return State{
		TotalContentBytes: g.totalContentBytes,
		MaxContentBytes:   g.maxContentBytes,
		CurrentTokens:     g.currentTokens,
		MaxTokens:         g.maxTokens,
		MaxPerPageChars:   g.maxPerPageChars,
	}
}

// Admit decides whether content may join the request's working set under the
// byte ceiling and heap guard. Oversized candidates are truncated to half
// the remaining byte budget; below the floor they are rejected entirely.
func (g *Governor) Admit(content string) Admission {
	g.mu.Lock()
	defer g.mu.Unlock()

	n := len(content)
	withinBytes := g.totalContentBytes+n <= g.maxContentBytes
	withinHeap := g.heapBytes()+n <= g.heapGuardBytes
	if withinBytes && withinHeap {
		g.totalContentBytes += n
		return Admission{Text: content, Admitted: true, OriginalLength: n}
	}

	allowed := (g.maxContentBytes - g.totalContentBytes) / 2
	if allowed > n {
		allowed = n
	}
	if allowed < minAdmitBytes {
		return Admission{OriginalLength: n, Reason: "insufficient memory"}
	}
	g.totalContentBytes += allowed
	if allowed == n {
		return Admission{Text: content, Admitted: true, OriginalLength: n}
	}
	return Admission{
		Text:           content[:allowed],
		Admitted:       true,
		Truncated:      true,
		OriginalLength: n,
		Note:           NoteMemoryTruncated,
	}
}

// CanAddContent reports whether the estimated tokens of s still fit under
// the token ceiling.
func (g *Governor) CanAddContent(s string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.currentTokens+EstimateTokens(s) < g.maxTokens
}

// AddContent accounts s against the token ceiling, truncating to the
// remaining allowance when needed, and returns the accepted text. An empty
// return means the allowance is exhausted.
func (g *Governor) AddContent(s string) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	remaining := g.maxTokens - g.currentTokens
	if remaining <= 0 {
		return "", false
	}
	est := EstimateTokens(s)
	if est < remaining {
		g.currentTokens += est
		return s, false
	}
	// Truncate to the char equivalent of the remaining allowance.
	allowedChars := remaining * 4
	if allowedChars >= len(s) {
		g.currentTokens += est
		return s, false
	}
	truncated := s[:allowedChars]
	g.currentTokens += EstimateTokens(truncated)
	return truncated, true
}
