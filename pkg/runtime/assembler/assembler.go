package assembler

import (
	"sort"

	"github.com/wilhg/sagebot/pkg/adapters/llm"
)

// ElidedMarker replaces tool outputs dropped to fit the context budget.
const ElidedMarker = "[output elided to fit the context budget]"

// TruncatedMarker is appended to a clipped tool output.
const TruncatedMarker = "\n[output truncated]"

// AssemblyLog summarizes the assembly decision.
type AssemblyLog struct {
	TotalTokens int // estimated tokens of the returned messages
	ElidedCount int // tool outputs replaced by ElidedMarker
	OverBudget  bool
}

// TokenEstimator estimates token usage of text content.
type TokenEstimator func(text string) int

// Assembler keeps a conversation inside token budgets: a per-item budget for
// tool outputs and a total budget for the whole request.
type Assembler struct {
	estimate   TokenEstimator
	maxTokens  int
	itemTokens int
}

// Option configures the Assembler.
type Option func(*Assembler)

// WithTokenEstimator sets the token estimator. Defaults to rune length.
func WithTokenEstimator(est TokenEstimator) Option {
	return func(a *Assembler) {
		if est != nil {
			a.estimate = est
		}
	}
}

// WithMaxTokens sets the total budget. Defaults to a large value (1e9).
func WithMaxTokens(n int) Option {
	return func(a *Assembler) {
		if n > 0 {
			a.maxTokens = n
		}
	}
}

// WithItemTokens sets the budget of a single tool output. Zero means unlimited.
func WithItemTokens(n int) Option {
	return func(a *Assembler) {
		if n > 0 {
			a.itemTokens = n
		}
	}
}

// New creates a new Assembler.
func New(opts ...Option) *Assembler {
	a := &Assembler{
		estimate:  func(s string) int { return len([]rune(s)) },
		maxTokens: 1_000_000_000,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Estimate returns the token estimate of text.
func (a *Assembler) Estimate(text string) int { return a.estimate(text) }

// Clip shortens text to the item budget, marking the cut. The result is the
// longest rune prefix whose estimate fits, plus TruncatedMarker.
func (a *Assembler) Clip(text string) (string, bool) {
	if a.itemTokens <= 0 || a.estimate(text) <= a.itemTokens {
		return text, false
	}
	runes := []rune(text)
	n := sort.Search(len(runes)+1, func(i int) bool {
		return a.estimate(string(runes[:i])) > a.itemTokens
	}) - 1
	if n < 0 {
		n = 0
	}
	return string(runes[:n]) + TruncatedMarker, true
}

// Fit returns messages whose estimate stays under the total budget by eliding
// tool outputs oldest first. System and user messages are pinned and the most
// recent tool output is kept, so the result may still exceed the budget
// (reported as OverBudget). The input slice is not modified.
func (a *Assembler) Fit(msgs []llm.Message) ([]llm.Message, AssemblyLog) {
	out := append([]llm.Message(nil), msgs...)
	costs := make([]int, len(out))
	total := 0
	lastTool := -1
	for i, m := range out {
		costs[i] = a.estimate(m.Content)
		total += costs[i]
		if m.Role == llm.RoleTool {
			lastTool = i
		}
	}
	log := AssemblyLog{}
	marker := a.estimate(ElidedMarker)
	for i := range out {
		if total <= a.maxTokens {
			break
		}
		if out[i].Role != llm.RoleTool || i == lastTool || costs[i] <= marker {
			continue
		}
		total += marker - costs[i]
		out[i].Content = ElidedMarker
		log.ElidedCount++
	}
	log.TotalTokens = total
	log.OverBudget = total > a.maxTokens
	return out, log
}
